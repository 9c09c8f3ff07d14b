package transactions

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/inboxview/internal/dbx"
	"github.com/dmitrijs2005/inboxview/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) ListByPeriod(ctx context.Context, accountID int64, from, to time.Time) ([]models.MailboxTransaction, error) {
	query :=
		`SELECT mailbox_transaction_id, account_id, merchant_name, amount, transaction_date
		 FROM mailbox_transaction
		 WHERE account_id = $1 AND transaction_date >= $2 AND transaction_date < $3
		 ORDER BY transaction_date, mailbox_transaction_id
		 `

	rows, err := r.db.QueryContext(ctx, query, accountID, from, to)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := make([]models.MailboxTransaction, 0)
	for rows.Next() {
		var t models.MailboxTransaction
		if err := rows.Scan(&t.ID, &t.AccountID, &t.MerchantName, &t.Amount, &t.TransactionDate); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}
