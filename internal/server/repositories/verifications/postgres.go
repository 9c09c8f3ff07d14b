package verifications

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/inboxview/internal/common"
	"github.com/dmitrijs2005/inboxview/internal/dbx"
	"github.com/dmitrijs2005/inboxview/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, v *models.EmailVerification) error {
	query :=
		`INSERT INTO account_verification (account_id, code, attempt_count, date_added)
		 VALUES ($1, $2, $3, $4)
		 RETURNING account_verification_id
		 `

	if err := r.db.QueryRowContext(ctx, query, v.AccountID, v.Code, v.AttemptCount, v.DateAdded).Scan(&v.ID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) FindLatest(ctx context.Context, accountID int64) (*models.EmailVerification, error) {
	query :=
		`SELECT account_verification_id, account_id, code, attempt_count, date_added, date_verified, date_deleted
		 FROM account_verification
		 WHERE account_id = $1 AND date_deleted IS NULL
		 ORDER BY date_added DESC, account_verification_id DESC
		 LIMIT 1
		 `

	v := &models.EmailVerification{}
	err := r.db.QueryRowContext(ctx, query, accountID).Scan(
		&v.ID, &v.AccountID, &v.Code, &v.AttemptCount, &v.DateAdded, &v.DateVerified, &v.DateDeleted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return v, nil
}

func (r *PostgresRepository) IncrementAttempts(ctx context.Context, id int64) (int, error) {
	query :=
		`UPDATE account_verification SET attempt_count = attempt_count + 1
		 WHERE account_verification_id = $1
		 RETURNING attempt_count
		 `

	var count int
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&count); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrorNotFound
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return count, nil
}

func (r *PostgresRepository) MarkVerified(ctx context.Context, id int64, at time.Time) error {
	query :=
		`UPDATE account_verification SET date_verified = $2
		 WHERE account_verification_id = $1 AND date_verified IS NULL AND date_deleted IS NULL
		 `

	res, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) SoftDeleteByAccount(ctx context.Context, accountID int64, at time.Time) error {
	query :=
		`UPDATE account_verification SET date_deleted = $2
		 WHERE account_id = $1 AND date_deleted IS NULL
		 `

	if _, err := r.db.ExecContext(ctx, query, accountID, at); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
