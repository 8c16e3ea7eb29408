package config

import (
	"crypto/tls"
	"errors"
	"time"

	mail "github.com/go-mail/mail/v2"
	"github.com/rs/zerolog/log"
	gobreaker "github.com/sony/gobreaker/v2"
)

// ErrMailDisabled is returned when SMTP_HOST or SMTP_FROM is unset.
var ErrMailDisabled = errors.New("smtp not configured (SMTP_HOST/SMTP_FROM)")

type mailSender interface {
	DialAndSend(m ...*mail.Message) error
}

// Mailer sends HTML mail through SMTP. Sends go through a circuit breaker so a
// dead relay fails fast instead of stalling notification handlers.
type Mailer struct {
	from    string
	sender  mailSender
	breaker *gobreaker.CircuitBreaker[any]
}

func NewMailer(cfg SMTPConfig) *Mailer {
	if !cfg.Enabled() {
		return &Mailer{}
	}

	d := mail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Pass)
	d.StartTLSPolicy = mail.MandatoryStartTLS
	d.Timeout = 10 * time.Second
	d.TLSConfig = &tls.Config{
		ServerName:         cfg.Host,
		InsecureSkipVerify: cfg.SkipTLSVerify, // dev only
	}

	return newMailer(cfg.From, d)
}

func newMailer(from string, sender mailSender) *Mailer {
	settings := gobreaker.Settings{
		Name:        "smtp",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("mail circuit breaker state changed")
		},
	}
	return &Mailer{
		from:    from,
		sender:  sender,
		breaker: gobreaker.NewCircuitBreaker[any](settings),
	}
}

func (m *Mailer) Enabled() bool {
	return m != nil && m.sender != nil
}

func (m *Mailer) SendMail(to []string, subject, html string) error {
	if len(to) == 0 {
		return nil
	}
	if !m.Enabled() {
		return ErrMailDisabled
	}

	msg := mail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to...)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", html)

	_, err := m.breaker.Execute(func() (any, error) {
		return nil, m.sender.DialAndSend(msg)
	})
	return err
}
