// Package verifications persists email verification records.
package verifications

import (
	"context"
	"time"

	"github.com/dmitrijs2005/inboxview/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, v *models.EmailVerification) error

	// FindLatest returns the newest record of the account that has not been
	// superseded, or common.ErrorNotFound.
	FindLatest(ctx context.Context, accountID int64) (*models.EmailVerification, error)

	// IncrementAttempts records one more failed check and returns the new count.
	IncrementAttempts(ctx context.Context, id int64) (int, error)

	// MarkVerified consumes the record. A record that was consumed already
	// (possibly by a concurrent request) yields common.ErrorNotFound.
	MarkVerified(ctx context.Context, id int64, at time.Time) error

	// SoftDeleteByAccount supersedes every live record of the account.
	SoftDeleteByAccount(ctx context.Context, accountID int64, at time.Time) error
}
