package accounts

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

const selectAccount = `SELECT account_id, account_guid, username, email, password,
		first_name, last_name, phone, date_added, date_updated, date_deleted, date_verified, version,
		password_reset_token, password_reset_date_requested, password_reset_count, password_date_reset
		FROM account`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) FindByID(ctx context.Context, id int64) (*models.Account, error) {
	return r.findOne(ctx, selectAccount+`
		 WHERE account_id = $1 AND date_deleted IS NULL`, id)
}

func (r *PostgresRepository) FindByUsername(ctx context.Context, username string) (*models.Account, error) {
	return r.findOne(ctx, selectAccount+`
		 WHERE username = $1 AND date_deleted IS NULL`, username)
}

func (r *PostgresRepository) FindByGUID(ctx context.Context, guid string) (*models.Account, error) {
	if _, err := uuid.Parse(guid); err != nil {
		return nil, common.ErrorNotFound
	}
	return r.findOne(ctx, selectAccount+`
		 WHERE account_guid = $1 AND date_deleted IS NULL`, guid)
}

func (r *PostgresRepository) FindByGUIDAndResetToken(ctx context.Context, guid, token string) (*models.Account, error) {
	if _, err := uuid.Parse(guid); err != nil {
		return nil, common.ErrorNotFound
	}
	return r.findOne(ctx, selectAccount+`
		 WHERE account_guid = $1 AND password_reset_token = $2 AND date_deleted IS NULL`, guid, token)
}

func (r *PostgresRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM account WHERE username = $1 AND date_deleted IS NULL)`, username)
}

func (r *PostgresRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM account WHERE email = $1 AND date_deleted IS NULL)`, email)
}

func (r *PostgresRepository) Save(ctx context.Context, a *models.Account) (*models.Account, error) {
	if a.ID == 0 {
		return r.create(ctx, a)
	}
	return r.update(ctx, a)
}

func (r *PostgresRepository) SoftDelete(ctx context.Context, a *models.Account, at time.Time) error {
	query :=
		`UPDATE account SET date_deleted = $3, date_updated = $3, version = version + 1
		 WHERE account_id = $1 AND version = $2 AND date_deleted IS NULL
		 `

	res, err := r.db.ExecContext(ctx, query, a.ID, a.Version, at)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if err := requireOneRow(res); err != nil {
		return err
	}

	a.DateDeleted = &at
	a.DateUpdated = at
	a.Version++
	return nil
}

func (r *PostgresRepository) create(ctx context.Context, a *models.Account) (*models.Account, error) {
	query :=
		`INSERT INTO account (account_guid, username, email, password, first_name, last_name, phone,
		     date_added, date_updated, date_verified, version)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 0)
		 RETURNING account_id
		 `

	if a.GUID == "" {
		a.GUID = uuid.NewString()
	}

	err := r.db.QueryRowContext(ctx, query,
		a.GUID, a.Username, a.Email, a.Password, a.FirstName, a.LastName, a.Phone,
		a.DateAdded, a.DateUpdated, a.DateVerified).Scan(&a.ID)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, common.ErrDuplicateIdentifier
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	a.Version = 0
	return a, nil
}

func (r *PostgresRepository) update(ctx context.Context, a *models.Account) (*models.Account, error) {
	query :=
		`UPDATE account SET username = $3, email = $4, password = $5, first_name = $6, last_name = $7,
		     phone = $8, date_updated = $9, date_verified = $10, password_reset_token = $11,
		     password_reset_date_requested = $12, password_reset_count = $13, password_date_reset = $14,
		     version = version + 1
		 WHERE account_id = $1 AND version = $2 AND date_deleted IS NULL
		 `

	res, err := r.db.ExecContext(ctx, query,
		a.ID, a.Version, a.Username, a.Email, a.Password, a.FirstName, a.LastName,
		a.Phone, a.DateUpdated, a.DateVerified, a.PasswordResetToken,
		a.PasswordResetDateRequested, a.PasswordResetCount, a.PasswordDateReset)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, common.ErrDuplicateIdentifier
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if err := requireOneRow(res); err != nil {
		return nil, err
	}

	a.Version++
	return a, nil
}

func (r *PostgresRepository) findOne(ctx context.Context, query string, args ...any) (*models.Account, error) {
	a := &models.Account{}
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&a.ID, &a.GUID, &a.Username, &a.Email, &a.Password,
		&a.FirstName, &a.LastName, &a.Phone, &a.DateAdded, &a.DateUpdated, &a.DateDeleted, &a.DateVerified, &a.Version,
		&a.PasswordResetToken, &a.PasswordResetDateRequested, &a.PasswordResetCount, &a.PasswordDateReset,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return a, nil
}

func (r *PostgresRepository) exists(ctx context.Context, query string, arg string) (bool, error) {
	var ok bool
	if err := r.db.QueryRowContext(ctx, query, arg).Scan(&ok); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return ok, nil
}

// requireOneRow turns a versioned write that matched nothing into
// ErrConcurrentModification.
func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrConcurrentModification
	}
	return nil
}
