package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/dmitrijs2005/inboxview/internal/common"
	"github.com/dmitrijs2005/inboxview/internal/logging"
	"github.com/dmitrijs2005/inboxview/internal/server/auth"
	"github.com/dmitrijs2005/inboxview/internal/server/metrics"
	"github.com/dmitrijs2005/inboxview/internal/server/models"
	"github.com/dmitrijs2005/inboxview/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/inboxview/internal/timex"
)

// SessionManager owns refresh sessions. A session keeps its id for life;
// rotation swaps the paired access token and pushes the expiry out. Unknown,
// expired and mismatched sessions all fail with common.ErrSessionInvalid.
type SessionManager struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	codes       auth.CodeGenerator
	clock       timex.Clock
	logger      logging.Logger
}

func NewSessionManager(db *sql.DB, m repomanager.RepositoryManager, codes auth.CodeGenerator, clock timex.Clock, logger logging.Logger) *SessionManager {
	return &SessionManager{
		db:          db,
		repomanager: m,
		codes:       codes,
		clock:       clock,
		logger:      logger.With("module", "sessions"),
	}
}

// Issue opens a session for accountID paired with accessToken.
func (s *SessionManager) Issue(ctx context.Context, accountID int64, accessToken string, ttl time.Duration) (*models.RefreshSession, error) {
	now := s.clock.Now()
	session := &models.RefreshSession{
		GUID:           s.codes.NewCode(),
		AccessToken:    accessToken,
		AccountID:      accountID,
		DateAdded:      now,
		ExpirationDate: now.Add(ttl),
	}

	if err := s.repomanager.RefreshSessions(s.db).Create(ctx, session); err != nil {
		s.logger.Error(ctx, "issue session", "account_id", accountID, "error", err)
		return nil, dependencyError("create refresh session", err)
	}
	return session, nil
}

// Lookup returns the session only if it is active and paired with
// presentedAccessToken. It changes nothing.
func (s *SessionManager) Lookup(ctx context.Context, sessionID, presentedAccessToken string) (*models.RefreshSession, error) {
	session, err := s.repomanager.RefreshSessions(s.db).FindActive(ctx, sessionID, presentedAccessToken, s.clock.Now())
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.logger.Warn(ctx, "refresh session rejected")
			return nil, common.ErrSessionInvalid
		}
		return nil, dependencyError("find refresh session", err)
	}
	return session, nil
}

// Rotate pairs the session with newAccessToken and sets its expiry to now+ttl,
// provided it is still active and paired with presentedAccessToken. The check
// and the write are one conditional update, so of two concurrent rotations
// of the same pair only one succeeds.
func (s *SessionManager) Rotate(ctx context.Context, sessionID, presentedAccessToken, newAccessToken string, ttl time.Duration) (*models.RefreshSession, error) {
	now := s.clock.Now()

	session, err := s.repomanager.RefreshSessions(s.db).Rotate(ctx, sessionID, presentedAccessToken, newAccessToken, now, now.Add(ttl))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			metrics.RecordSessionRotation(metrics.ResultInvalid)
			s.logger.Warn(ctx, "refresh session rotation rejected")
			return nil, common.ErrSessionInvalid
		}
		metrics.RecordSessionRotation(metrics.ResultError)
		return nil, dependencyError("rotate refresh session", err)
	}

	metrics.RecordSessionRotation(metrics.ResultSuccess)
	return session, nil
}

// Revoke deletes a session. Revoking an unknown session is not an error.
func (s *SessionManager) Revoke(ctx context.Context, sessionID string) error {
	if err := s.repomanager.RefreshSessions(s.db).DeleteByGUID(ctx, sessionID); err != nil {
		return dependencyError("revoke refresh session", err)
	}
	return nil
}

// RevokeByAccessToken deletes the session currently paired with accessToken.
func (s *SessionManager) RevokeByAccessToken(ctx context.Context, accessToken string) error {
	if err := s.repomanager.RefreshSessions(s.db).DeleteByAccessToken(ctx, accessToken); err != nil {
		return dependencyError("revoke refresh session", err)
	}
	return nil
}

// RevokeAll deletes every session of the account.
func (s *SessionManager) RevokeAll(ctx context.Context, accountID int64) error {
	if err := s.repomanager.RefreshSessions(s.db).DeleteByAccount(ctx, accountID); err != nil {
		return dependencyError("revoke account sessions", err)
	}
	return nil
}
