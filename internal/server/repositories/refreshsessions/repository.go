// Package refreshsessions declares the server-side repository contract for
// refresh sessions: a stable session id paired with the one access token
// that may currently be exchanged.
package refreshsessions

import (
	"context"
	"time"

	"github.com/dmitrijs2005/inboxview/internal/server/models"
)

// Repository defines operations for issuing, rotating, and revoking refresh sessions.
type Repository interface {
	// Create stores a new session and fills in its ID.
	Create(ctx context.Context, s *models.RefreshSession) error

	// FindActive returns the session with the given id whose paired access
	// token equals accessToken and whose expiry is after now. Any miss,
	// including a malformed id, is common.ErrorNotFound.
	FindActive(ctx context.Context, guid, accessToken string, now time.Time) (*models.RefreshSession, error)

	// Rotate atomically swaps the paired access token and moves the expiry,
	// under the same predicate as FindActive. Of two concurrent rotations of
	// one pair at most one succeeds; the other gets common.ErrorNotFound.
	Rotate(ctx context.Context, guid, presentedAccessToken, newAccessToken string, now, expiration time.Time) (*models.RefreshSession, error)

	// The Delete methods are idempotent: deleting nothing is not an error.
	DeleteByGUID(ctx context.Context, guid string) error
	DeleteByAccessToken(ctx context.Context, accessToken string) error
	DeleteByAccount(ctx context.Context, accountID int64) error
}
