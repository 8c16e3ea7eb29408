package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog"

	"grievance-management-api/monitor"
)

const requestIDKey = "request_id"

type Config struct {
	CloseTimeout         time.Duration
	RetryMaxRetries      int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	RetryMultiplier      float64
	DeadLetterTopic      string
}

func DefaultConfig() Config {
	return Config{
		CloseTimeout:         10 * time.Second,
		RetryMaxRetries:      3,
		RetryInitialInterval: 200 * time.Millisecond,
		RetryMaxInterval:     2 * time.Second,
		RetryMultiplier:      2.0,
		DeadLetterTopic:      TopicDeadLetter,
	}
}

// Handler processes one event payload. A returned error triggers retries;
// once retries are exhausted the message goes to the dead-letter topic.
type Handler func(ctx context.Context, payload []byte) error

// Bus is an in-process publish/subscribe channel with a router that retries
// failed handlers and dead-letters what still fails.
type Bus struct {
	pubsub *gochannel.GoChannel
	router *message.Router
	logger zerolog.Logger
}

func NewBus(cfg Config, logger zerolog.Logger) (*Bus, error) {
	wmLogger := NewLoggerAdapter(logger)

	pubsub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, wmLogger)

	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: cfg.CloseTimeout}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("create event router: %w", err)
	}

	// Outermost first: poison queue sees the error only after retries give up.
	poisonQueue, err := middleware.PoisonQueue(pubsub, cfg.DeadLetterTopic)
	if err != nil {
		return nil, fmt.Errorf("create poison queue middleware: %w", err)
	}
	router.AddMiddleware(
		poisonQueue,
		middleware.Retry{
			MaxRetries:      cfg.RetryMaxRetries,
			InitialInterval: cfg.RetryInitialInterval,
			MaxInterval:     cfg.RetryMaxInterval,
			Multiplier:      cfg.RetryMultiplier,
			Logger:          wmLogger,
		}.Middleware,
		middleware.Recoverer,
	)

	b := &Bus{pubsub: pubsub, router: router, logger: logger}
	router.AddNoPublisherHandler("dead-letter-log", cfg.DeadLetterTopic, pubsub, b.logDeadLetter)
	return b, nil
}

func (b *Bus) logDeadLetter(msg *message.Message) error {
	topic := msg.Metadata.Get(middleware.PoisonedTopicKey)
	monitor.NotificationsDeadLetteredTotal.WithLabelValues(topic).Inc()
	b.logger.Error().
		Str("topic", topic).
		Str("handler", msg.Metadata.Get(middleware.PoisonedHandlerKey)).
		Str("reason", msg.Metadata.Get(middleware.ReasonForPoisonedKey)).
		Str("request_id", msg.Metadata.Get(requestIDKey)).
		RawJSON("payload", msg.Payload).
		Msg("event dead-lettered")
	return nil
}

// Subscribe registers h for topic. Must be called before Start.
func (b *Bus) Subscribe(name, topic string, h Handler) {
	b.router.AddNoPublisherHandler(name, topic, b.pubsub, func(msg *message.Message) error {
		return h(msg.Context(), msg.Payload)
	})
}

// Start runs the router in the background and returns once handlers are
// subscribed, so events published afterwards are not dropped.
func (b *Bus) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- b.router.Run(ctx)
	}()

	select {
	case <-b.router.Running():
		go func() {
			if err := <-errCh; err != nil {
				b.logger.Error().Err(err).Msg("event router stopped")
			}
		}()
		return nil
	case err := <-errCh:
		if err == nil {
			err = errors.New("event router exited before starting")
		}
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Publish encodes payload as JSON and publishes it on topic.
func (b *Bus) Publish(ctx context.Context, topic string, payload interface{}) error {
	data, err := encode(payload)
	if err != nil {
		return err
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	if id, ok := ctx.Value(RequestIDContextKey).(string); ok && id != "" {
		msg.Metadata.Set(requestIDKey, id)
	}
	if err := b.pubsub.Publish(topic, msg); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Close stops the router, waiting for in-flight handlers, then the channel.
func (b *Bus) Close() error {
	return errors.Join(b.router.Close(), b.pubsub.Close())
}

type contextKey string

// RequestIDContextKey carries the HTTP request id into published events.
const RequestIDContextKey contextKey = "request_id"
