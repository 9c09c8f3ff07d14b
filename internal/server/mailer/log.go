package mailer

import (
	"context"

	"github.com/dmitrijs2005/inboxview/internal/logging"
)

// LogTransport writes messages to the log instead of sending them. It is
// used when no SMTP host is configured. Bodies carry codes and are only
// logged at debug level.
type LogTransport struct {
	logger logging.Logger
}

func NewLogTransport(l logging.Logger) *LogTransport {
	return &LogTransport{logger: l}
}

func (t *LogTransport) Send(ctx context.Context, msg Message) error {
	t.logger.Info(ctx, "email not sent: no SMTP host configured", "kind", msg.Kind, "to", msg.To, "subject", msg.Subject)
	t.logger.Debug(ctx, "email body", "kind", msg.Kind, "body", msg.Body)
	return nil
}
