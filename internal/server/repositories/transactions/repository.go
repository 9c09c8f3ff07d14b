// Package transactions reads purchases extracted from a user's mailbox.
package transactions

import (
	"context"
	"time"

	"github.com/dmitrijs2005/inboxview/internal/server/models"
)

type Repository interface {
	// ListByPeriod returns the account's transactions dated in [from, to),
	// oldest first.
	ListByPeriod(ctx context.Context, accountID int64, from, to time.Time) ([]models.MailboxTransaction, error)
}
