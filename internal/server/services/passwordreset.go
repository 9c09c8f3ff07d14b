package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/inboxview/internal/common"
	"github.com/dmitrijs2005/inboxview/internal/logging"
	"github.com/dmitrijs2005/inboxview/internal/server/auth"
	"github.com/dmitrijs2005/inboxview/internal/server/mailer"
	"github.com/dmitrijs2005/inboxview/internal/server/metrics"
	"github.com/dmitrijs2005/inboxview/internal/server/models"
	"github.com/dmitrijs2005/inboxview/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/inboxview/internal/timex"
)

const (
	// MaxResetAttempts is the highest stored attempt count at which a reset
	// token is still accepted.
	MaxResetAttempts = 10
	// ResetWindow is how long a reset token stays valid after it is requested.
	ResetWindow = 10 * time.Minute
)

const (
	stageRequest = "request"
	stageConfirm = "confirm"
)

// ConfirmResetRequest carries the token from the reset link and the new
// password entered twice.
type ConfirmResetRequest struct {
	AccountGUID          string
	Token                string
	Password             string
	PasswordConfirmation string
}

// PasswordResetManager issues and redeems password reset tokens stored on
// the account. Neither operation reveals whether an account exists: an
// unknown username or an unmatched token looks like success to the caller.
type PasswordResetManager struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	hasher      auth.PasswordHasher
	sessions    *SessionManager
	mailer      mailer.Mailer
	codes       auth.CodeGenerator
	clock       timex.Clock
	logger      logging.Logger
	appURL      string
}

func NewPasswordResetManager(db *sql.DB, m repomanager.RepositoryManager, hasher auth.PasswordHasher, sessions *SessionManager,
	mail mailer.Mailer, codes auth.CodeGenerator, clock timex.Clock, logger logging.Logger, appURL string) *PasswordResetManager {
	return &PasswordResetManager{
		db:          db,
		repomanager: m,
		hasher:      hasher,
		sessions:    sessions,
		mailer:      mail,
		codes:       codes,
		clock:       clock,
		logger:      logger.With("module", "password_reset"),
		appURL:      appURL,
	}
}

// RequestReset stores a fresh token on the account and emails the reset link.
func (p *PasswordResetManager) RequestReset(ctx context.Context, username string) error {
	repo := p.repomanager.Accounts(p.db)

	account, err := repo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			metrics.RecordPasswordReset(stageRequest, metrics.ResultUnknownAccount)
			p.logger.Info(ctx, "password reset requested for unknown account")
			return nil
		}
		metrics.RecordPasswordReset(stageRequest, metrics.ResultError)
		return dependencyError("find account", err)
	}

	now := p.clock.Now()
	token := p.codes.NewCode()
	account.PasswordResetToken = &token
	account.PasswordResetDateRequested = &now
	account.PasswordResetCount = 0
	account.DateUpdated = now

	if _, err := repo.Save(ctx, account); err != nil {
		// a concurrent request already stored its token; a 409 would reveal the account
		if errors.Is(err, common.ErrConcurrentModification) {
			metrics.RecordPasswordReset(stageRequest, metrics.ResultConflict)
			p.logger.Warn(ctx, "concurrent password reset request", "account_id", account.ID)
			return nil
		}
		metrics.RecordPasswordReset(stageRequest, metrics.ResultError)
		return dependencyError("store reset token", err)
	}

	msg, err := mailer.PasswordResetEmail(account.Email, p.appURL, account.GUID, token)
	if err == nil {
		err = p.mailer.Send(ctx, msg)
	}
	if err != nil {
		metrics.RecordPasswordReset(stageRequest, metrics.ResultError)
		return dependencyError("send reset email", err)
	}

	metrics.RecordPasswordReset(stageRequest, metrics.ResultSuccess)
	return nil
}

// ConfirmReset sets a new password when the token matches, has been tried at
// most MaxResetAttempts times and was requested less than ResetWindow ago.
// The token is single use. A mismatched confirmation fails with
// common.ErrValidation before anything is looked up; every other rejection
// returns nil.
func (p *PasswordResetManager) ConfirmReset(ctx context.Context, req ConfirmResetRequest) error {
	if req.Password != req.PasswordConfirmation {
		return fmt.Errorf("%w: password and password confirmation must be the same", common.ErrValidation)
	}
	if req.Password == "" {
		return fmt.Errorf("%w: password must not be empty", common.ErrValidation)
	}

	repo := p.repomanager.Accounts(p.db)

	account, err := repo.FindByGUIDAndResetToken(ctx, req.AccountGUID, req.Token)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			metrics.RecordPasswordReset(stageConfirm, metrics.ResultUnknownToken)
			p.logger.Warn(ctx, "password reset confirm for unknown account or token", "account_guid", req.AccountGUID)
			return nil
		}
		metrics.RecordPasswordReset(stageConfirm, metrics.ResultError)
		return dependencyError("find account", err)
	}

	now := p.clock.Now()
	if !resetAcceptable(account, now) {
		account.PasswordResetCount++
		account.DateUpdated = now
		if _, err := repo.Save(ctx, account); err != nil {
			if errors.Is(err, common.ErrConcurrentModification) {
				metrics.RecordPasswordReset(stageConfirm, metrics.ResultConflict)
				p.logger.Warn(ctx, "concurrent password reset rejection", "account_id", account.ID)
				return nil
			}
			metrics.RecordPasswordReset(stageConfirm, metrics.ResultError)
			return dependencyError("count reset attempt", err)
		}
		metrics.RecordPasswordReset(stageConfirm, metrics.ResultRejected)
		p.logger.Warn(ctx, "password reset rejected", "account_id", account.ID, "attempts", account.PasswordResetCount)
		return nil
	}

	hash, err := p.hasher.Hash(req.Password)
	if err != nil {
		metrics.RecordPasswordReset(stageConfirm, metrics.ResultError)
		return fmt.Errorf("%w: hash password: %v", common.ErrorInternal, err)
	}

	account.Password = hash
	account.PasswordDateReset = &now
	account.PasswordResetToken = nil
	account.PasswordResetDateRequested = nil
	account.PasswordResetCount = 0
	account.DateUpdated = now

	if _, err := repo.Save(ctx, account); err != nil {
		metrics.RecordPasswordReset(stageConfirm, metrics.ResultError)
		return dependencyError("store password", err)
	}
	metrics.RecordPasswordReset(stageConfirm, metrics.ResultSuccess)
	p.logger.Info(ctx, "password reset", "account_id", account.ID)

	if err := p.sessions.RevokeAll(ctx, account.ID); err != nil {
		p.logger.Error(ctx, "revoke sessions after password reset", "account_id", account.ID, "error", err)
	}

	msg, err := mailer.PasswordResetConfirmationEmail(account.Email)
	if err != nil {
		p.logger.Error(ctx, "render reset confirmation email", "account_id", account.ID, "error", err)
		return nil
	}
	p.mailer.SendAsync(msg)
	return nil
}

func resetAcceptable(account *models.Account, now time.Time) bool {
	if account.PasswordResetCount > MaxResetAttempts {
		return false
	}
	if account.PasswordResetDateRequested == nil {
		return false
	}
	return account.PasswordResetDateRequested.Add(ResetWindow).After(now)
}
