// Package mailer defines the outbound email port used by the login flow.
package mailer

import "context"

// Mailer sends a single email. The body is HTML.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Noop discards every message. Used when no SMTP host is configured.
type Noop struct{}

func (Noop) Send(context.Context, string, string, string) error { return nil }
