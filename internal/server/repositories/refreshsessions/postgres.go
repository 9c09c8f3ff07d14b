// Package refreshsessions provides a PostgreSQL-backed repository for the
// refresh sessions used in the server's authentication flow.
package refreshsessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/inboxview/internal/common"
	"github.com/dmitrijs2005/inboxview/internal/dbx"
	"github.com/dmitrijs2005/inboxview/internal/server/models"
	"github.com/google/uuid"
)

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts s and sets s.ID from the generated key.
func (r *PostgresRepository) Create(ctx context.Context, s *models.RefreshSession) error {
	query := `
		INSERT INTO refresh_session (session_guid, access_token, account_id, date_added, expiration_date)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING refresh_session_id
	`
	err := r.db.QueryRowContext(ctx, query, s.GUID, s.AccessToken, s.AccountID, s.DateAdded, s.ExpirationDate).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// FindActive returns the matching unexpired session or common.ErrorNotFound.
func (r *PostgresRepository) FindActive(ctx context.Context, guid, accessToken string, now time.Time) (*models.RefreshSession, error) {
	if _, err := uuid.Parse(guid); err != nil {
		return nil, common.ErrorNotFound
	}

	query := `
		SELECT refresh_session_id, session_guid, access_token, account_id, date_added, expiration_date
		FROM refresh_session
		WHERE session_guid = $1 AND access_token = $2 AND expiration_date > $3
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, guid, accessToken, now))
}

// Rotate replaces the paired access token and expiry in a single conditional
// UPDATE and returns the updated row.
func (r *PostgresRepository) Rotate(ctx context.Context, guid, presentedAccessToken, newAccessToken string, now, expiration time.Time) (*models.RefreshSession, error) {
	if _, err := uuid.Parse(guid); err != nil {
		return nil, common.ErrorNotFound
	}

	query := `
		UPDATE refresh_session
		SET access_token = $4, expiration_date = $5
		WHERE session_guid = $1 AND access_token = $2 AND expiration_date > $3
		RETURNING refresh_session_id, session_guid, access_token, account_id, date_added, expiration_date
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, guid, presentedAccessToken, now, newAccessToken, expiration))
}

// DeleteByGUID removes a session by its id.
func (r *PostgresRepository) DeleteByGUID(ctx context.Context, guid string) error {
	if _, err := uuid.Parse(guid); err != nil {
		return nil
	}
	return r.exec(ctx, `DELETE FROM refresh_session WHERE session_guid = $1`, guid)
}

// DeleteByAccessToken removes the session currently paired with accessToken.
func (r *PostgresRepository) DeleteByAccessToken(ctx context.Context, accessToken string) error {
	return r.exec(ctx, `DELETE FROM refresh_session WHERE access_token = $1`, accessToken)
}

// DeleteByAccount removes every session of an account.
func (r *PostgresRepository) DeleteByAccount(ctx context.Context, accountID int64) error {
	return r.exec(ctx, `DELETE FROM refresh_session WHERE account_id = $1`, accountID)
}

func (r *PostgresRepository) exec(ctx context.Context, query string, arg any) error {
	if _, err := r.db.ExecContext(ctx, query, arg); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.RefreshSession, error) {
	s := &models.RefreshSession{}
	if err := row.Scan(&s.ID, &s.GUID, &s.AccessToken, &s.AccountID, &s.DateAdded, &s.ExpirationDate); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}
