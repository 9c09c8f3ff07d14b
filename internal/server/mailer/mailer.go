// Package mailer delivers the account emails: verification links, reset
// links and reset confirmations.
package mailer

import "context"

// Kind labels a message for logs and metrics.
type Kind string

const (
	KindVerification              Kind = "verification"
	KindPasswordReset             Kind = "password_reset"
	KindPasswordResetConfirmation Kind = "password_reset_confirmation"
)

type Message struct {
	Kind    Kind
	To      string
	Subject string
	Body    string
}

// Transport hands a single message to the outside world.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

// Mailer is what services depend on: a blocking send whose failure the
// caller handles, and a fire-and-forget send whose failure is only logged.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
	SendAsync(msg Message)
}
