// Package email delivers notification messages prepared by the auth flows.
// Delivery failures never roll back the action that produced the message.
package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gatehouse/internal/config"
)

// Message is a plain-text notification for a single recipient.
type Message struct {
	To      string
	Subject string
	Body    string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// TransportError wraps any delivery failure.
type TransportError struct {
	To  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("sending email to %s: %v", e.To, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ErrNotConfigured is wrapped in the TransportError returned by NoopSender.
var ErrNotConfigured = errors.New("email transport not configured")

// NoopSender stands in when no SMTP server is configured. It logs the
// message and reports it as undelivered.
type NoopSender struct{}

func (NoopSender) Send(_ context.Context, msg Message) error {
	slog.Warn("email transport not configured, message dropped", "component", "email", "to", msg.To, "subject", msg.Subject)
	return &TransportError{To: msg.To, Err: ErrNotConfigured}
}

// NewSender picks the SMTP transport when configured and NoopSender otherwise.
func NewSender(cfg config.SMTPConfig) Sender {
	if !cfg.Configured() {
		return NoopSender{}
	}
	return NewSMTPSender(cfg)
}

// Deliver sends msg and logs a failure instead of returning it. The result
// reports whether the message went out.
func Deliver(ctx context.Context, s Sender, msg Message) bool {
	if err := s.Send(ctx, msg); err != nil {
		slog.Error("email delivery failed", "component", "email", "to", msg.To, "error", err)
		return false
	}
	return true
}
