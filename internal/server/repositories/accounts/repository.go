// Package accounts declares the credential store: persistence of accounts,
// their password hashes and embedded password-reset state.
package accounts

import (
	"context"
	"time"

	"github.com/dmitrijs2005/inboxview/internal/server/models"
)

// Repository never returns soft-deleted accounts. Lookups that find nothing
// return common.ErrorNotFound.
type Repository interface {
	FindByID(ctx context.Context, id int64) (*models.Account, error)
	FindByUsername(ctx context.Context, username string) (*models.Account, error)
	FindByGUID(ctx context.Context, guid string) (*models.Account, error)

	// FindByGUIDAndResetToken matches the pending reset token exactly.
	FindByGUIDAndResetToken(ctx context.Context, guid, token string) (*models.Account, error)

	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)

	// Save inserts an account with a zero ID and otherwise updates it, provided
	// the stored version still equals a.Version. A lost race yields
	// common.ErrConcurrentModification; a taken username or email yields
	// common.ErrDuplicateIdentifier. On success a.Version is bumped.
	Save(ctx context.Context, a *models.Account) (*models.Account, error)

	// SoftDelete stamps date_deleted under the same version check as Save.
	SoftDelete(ctx context.Context, a *models.Account, at time.Time) error
}
