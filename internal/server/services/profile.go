package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/inboxview/internal/common"
	"github.com/dmitrijs2005/inboxview/internal/dbx"
	"github.com/dmitrijs2005/inboxview/internal/logging"
	"github.com/dmitrijs2005/inboxview/internal/server/models"
	"github.com/dmitrijs2005/inboxview/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/inboxview/internal/timex"
)

type ProfileUpdate struct {
	FirstName string
	LastName  string
	Phone     string
}

// ProfileService serves the authenticated user's own account. Every method
// takes the username taken from the caller's verified access token.
type ProfileService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	clock       timex.Clock
	logger      logging.Logger
}

func NewProfileService(db *sql.DB, m repomanager.RepositoryManager, clock timex.Clock, logger logging.Logger) *ProfileService {
	return &ProfileService{db: db, repomanager: m, clock: clock, logger: logger.With("module", "profile")}
}

func (p *ProfileService) Get(ctx context.Context, username string) (*models.Account, error) {
	return p.find(ctx, p.db, username)
}

// Update replaces the profile fields. A concurrent change to the same
// account fails with common.ErrConcurrentModification.
func (p *ProfileService) Update(ctx context.Context, username string, upd ProfileUpdate) (*models.Account, error) {
	account, err := p.find(ctx, p.db, username)
	if err != nil {
		return nil, err
	}

	account.FirstName = upd.FirstName
	account.LastName = upd.LastName
	account.Phone = upd.Phone
	account.DateUpdated = p.clock.Now()

	saved, err := p.repomanager.Accounts(p.db).Save(ctx, account)
	if err != nil {
		return nil, dependencyError("update profile", err)
	}
	return saved, nil
}

// Delete soft-deletes the account and drops all of its refresh sessions in
// one transaction.
func (p *ProfileService) Delete(ctx context.Context, username string) error {
	err := dbx.WithTx(ctx, p.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		account, err := p.find(ctx, tx, username)
		if err != nil {
			return err
		}
		if err := p.repomanager.Accounts(tx).SoftDelete(ctx, account, p.clock.Now()); err != nil {
			return dependencyError("delete account", err)
		}
		if err := p.repomanager.RefreshSessions(tx).DeleteByAccount(ctx, account.ID); err != nil {
			return dependencyError("revoke account sessions", err)
		}
		p.logger.Info(ctx, "account deleted", "account_id", account.ID)
		return nil
	})
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		return dependencyError("delete account", err)
	}
	return err
}

// ListTransactions returns the user's mailbox transactions of one calendar
// month, oldest first.
func (p *ProfileService) ListTransactions(ctx context.Context, username string, year, month int) ([]models.MailboxTransaction, error) {
	if month < 1 || month > 12 {
		return nil, fmt.Errorf("%w: month must be between 1 and 12", common.ErrValidation)
	}
	if year < 1 || year > 9999 {
		return nil, fmt.Errorf("%w: year out of range", common.ErrValidation)
	}

	account, err := p.find(ctx, p.db, username)
	if err != nil {
		return nil, err
	}

	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	txs, err := p.repomanager.Transactions(p.db).ListByPeriod(ctx, account.ID, from, from.AddDate(0, 1, 0))
	if err != nil {
		return nil, dependencyError("list transactions", err)
	}
	return txs, nil
}

func (p *ProfileService) find(ctx context.Context, db dbx.DBTX, username string) (*models.Account, error) {
	account, err := p.repomanager.Accounts(db).FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, dependencyError("find account", err)
	}
	return account, nil
}
