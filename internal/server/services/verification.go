package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"time"

	"github.com/dmitrijs2005/inboxview/internal/common"
	"github.com/dmitrijs2005/inboxview/internal/dbx"
	"github.com/dmitrijs2005/inboxview/internal/logging"
	"github.com/dmitrijs2005/inboxview/internal/server/auth"
	"github.com/dmitrijs2005/inboxview/internal/server/mailer"
	"github.com/dmitrijs2005/inboxview/internal/server/metrics"
	"github.com/dmitrijs2005/inboxview/internal/server/models"
	"github.com/dmitrijs2005/inboxview/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/inboxview/internal/timex"
)

const (
	// MaxVerificationAttempts is the highest stored attempt count at which a
	// code is still checked.
	MaxVerificationAttempts = 10
	// VerificationWindow is how long a verification code stays valid.
	VerificationWindow = 24 * time.Hour
)

// VerificationSender starts email verification for a freshly created account.
type VerificationSender interface {
	SendVerification(ctx context.Context, account *models.Account) error
}

// VerificationManager runs the email verification state machine:
// unverified, pending (code, attempts), verified. A resend supersedes the
// pending record with a fresh one.
type VerificationManager struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	mailer      mailer.Mailer
	codes       auth.CodeGenerator
	clock       timex.Clock
	logger      logging.Logger
	appURL      string
}

func NewVerificationManager(db *sql.DB, m repomanager.RepositoryManager, mail mailer.Mailer, codes auth.CodeGenerator,
	clock timex.Clock, logger logging.Logger, appURL string) *VerificationManager {
	return &VerificationManager{
		db:          db,
		repomanager: m,
		mailer:      mail,
		codes:       codes,
		clock:       clock,
		logger:      logger.With("module", "verification"),
		appURL:      appURL,
	}
}

// SendVerification stores a new pending record for account and emails the
// link. The record stays stored when the email fails.
func (v *VerificationManager) SendVerification(ctx context.Context, account *models.Account) error {
	record := &models.EmailVerification{
		AccountID: account.ID,
		Code:      v.codes.NewCode(),
		DateAdded: v.clock.Now(),
	}
	if err := v.repomanager.Verifications(v.db).Create(ctx, record); err != nil {
		v.logger.Error(ctx, "store verification", "account_id", account.ID, "error", err)
		return dependencyError("store verification", err)
	}

	msg, err := mailer.VerificationEmail(account.Email, v.appURL, account.GUID, record.Code)
	if err != nil {
		return dependencyError("email verification cannot be sent", err)
	}
	if err := v.mailer.Send(ctx, msg); err != nil {
		return dependencyError("email verification cannot be sent", err)
	}
	return nil
}

// Consume checks code against the latest pending record of the account.
// It succeeds only when the record is unconsumed, its attempt count is
// within MaxVerificationAttempts, the code matches and the record is younger
// than VerificationWindow; then the record and the account are marked
// verified in one transaction. Every other outcome counts one more attempt
// and fails with common.ErrInvalidCode.
func (v *VerificationManager) Consume(ctx context.Context, accountGUID, code string) (*models.Account, error) {
	account, err := v.repomanager.Accounts(v.db).FindByGUID(ctx, accountGUID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, dependencyError("find account", err)
	}

	record, err := v.repomanager.Verifications(v.db).FindLatest(ctx, account.ID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, dependencyError("find verification", err)
	}

	now := v.clock.Now()
	if !acceptable(record, code, now) {
		return nil, v.reject(ctx, record)
	}

	err = dbx.WithTx(ctx, v.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := v.repomanager.Verifications(tx).MarkVerified(ctx, record.ID, now); err != nil {
			return err
		}
		account.DateVerified = &now
		account.DateUpdated = now
		_, err := v.repomanager.Accounts(tx).Save(ctx, account)
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			// consumed concurrently
			return nil, v.reject(ctx, record)
		}
		metrics.RecordVerificationAttempt(metrics.ResultError)
		return nil, dependencyError("mark verified", err)
	}

	metrics.RecordVerificationAttempt(metrics.ResultVerified)
	v.logger.Info(ctx, "email verified", "account_id", account.ID)
	return account, nil
}

// Resend supersedes the pending record and sends a fresh code.
func (v *VerificationManager) Resend(ctx context.Context, accountGUID string) error {
	account, err := v.repomanager.Accounts(v.db).FindByGUID(ctx, accountGUID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorNotFound
		}
		return dependencyError("find account", err)
	}
	if account.Verified() {
		return common.ErrAlreadyVerified
	}

	if err := v.repomanager.Verifications(v.db).SoftDeleteByAccount(ctx, account.ID, v.clock.Now()); err != nil {
		return dependencyError("supersede verification", err)
	}
	return v.SendVerification(ctx, account)
}

func acceptable(record *models.EmailVerification, code string, now time.Time) bool {
	if record.DateVerified != nil {
		return false
	}
	if record.AttemptCount > MaxVerificationAttempts {
		return false
	}
	if subtle.ConstantTimeCompare([]byte(record.Code), []byte(code)) != 1 {
		return false
	}
	return now.Sub(record.DateAdded) <= VerificationWindow
}

func (v *VerificationManager) reject(ctx context.Context, record *models.EmailVerification) error {
	attempts, err := v.repomanager.Verifications(v.db).IncrementAttempts(ctx, record.ID)
	if err != nil {
		metrics.RecordVerificationAttempt(metrics.ResultError)
		return dependencyError("count verification attempt", err)
	}
	metrics.RecordVerificationAttempt(metrics.ResultInvalid)
	v.logger.Warn(ctx, "verification code rejected", "account_id", record.AccountID, "attempts", attempts)
	return common.ErrInvalidCode
}
