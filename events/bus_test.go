package events

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grievance-management-api/models"
	"grievance-management-api/monitor"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RetryInitialInterval = time.Millisecond
	cfg.RetryMaxInterval = 5 * time.Millisecond
	cfg.CloseTimeout = time.Second
	return cfg
}

func startBus(t *testing.T, setup func(b *Bus)) *Bus {
	t.Helper()
	bus, err := NewBus(testConfig(), zerolog.Nop())
	require.NoError(t, err)
	setup(bus)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, bus.Start(ctx))
	t.Cleanup(func() {
		cancel()
		_ = bus.Close()
	})
	return bus
}

func TestBusDeliversDecodedPayload(t *testing.T) {
	received := make(chan GrievanceStatusChanged, 1)
	bus := startBus(t, func(b *Bus) {
		b.Subscribe("status-test", TopicGrievanceStatusChanged, func(ctx context.Context, payload []byte) error {
			var evt GrievanceStatusChanged
			if err := Decode(payload, &evt); err != nil {
				return err
			}
			received <- evt
			return nil
		})
	})

	err := bus.Publish(context.Background(), TopicGrievanceStatusChanged, GrievanceStatusChanged{
		GrievanceID: 4,
		SubmitterID: 9,
		OldStatus:   models.StatusPending,
		NewStatus:   models.StatusInProgress,
	})
	require.NoError(t, err)

	select {
	case evt := <-received:
		assert.Equal(t, uint(4), evt.GrievanceID)
		assert.Equal(t, models.StatusInProgress, evt.NewStatus)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestBusRetriesThenDeadLetters(t *testing.T) {
	const topic = "test.always_fails"
	var attempts atomic.Int32
	before := testutil.ToFloat64(monitor.NotificationsDeadLetteredTotal.WithLabelValues(topic))

	bus := startBus(t, func(b *Bus) {
		b.Subscribe("failing", topic, func(ctx context.Context, payload []byte) error {
			attempts.Add(1)
			return errors.New("store down")
		})
	})

	require.NoError(t, bus.Publish(context.Background(), topic, GrievanceSubmitted{GrievanceID: 1}))

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(monitor.NotificationsDeadLetteredTotal.WithLabelValues(topic)) == before+1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(testConfig().RetryMaxRetries+1), attempts.Load())
}

func TestBusRecoversPanickingHandler(t *testing.T) {
	const topic = "test.panics"
	before := testutil.ToFloat64(monitor.NotificationsDeadLetteredTotal.WithLabelValues(topic))

	bus := startBus(t, func(b *Bus) {
		b.Subscribe("panicking", topic, func(ctx context.Context, payload []byte) error {
			panic("boom")
		})
	})

	require.NoError(t, bus.Publish(context.Background(), topic, GrievanceSubmitted{GrievanceID: 2}))

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(monitor.NotificationsDeadLetteredTotal.WithLabelValues(topic)) == before+1
	}, 2*time.Second, 10*time.Millisecond)
}
