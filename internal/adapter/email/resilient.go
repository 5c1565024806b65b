package email

import (
	"context"

	"github.com/canopyhq/canopy/internal/port/mailer"
	"github.com/canopyhq/canopy/internal/resilience"
)

// ResilientMailer wraps a mailer with a circuit breaker so a dead SMTP
// server fails fast instead of stalling every login request on a timeout.
type ResilientMailer struct {
	inner   mailer.Mailer
	breaker *resilience.Breaker
}

// NewResilientMailer wraps inner with the given breaker.
func NewResilientMailer(inner mailer.Mailer, breaker *resilience.Breaker) *ResilientMailer {
	return &ResilientMailer{inner: inner, breaker: breaker}
}

// Send delivers through the breaker.
func (m *ResilientMailer) Send(ctx context.Context, to, subject, body string) error {
	return m.breaker.Execute(func() error {
		return m.inner.Send(ctx, to, subject, body)
	})
}
