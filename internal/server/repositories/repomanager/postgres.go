package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/inboxview/internal/dbx"
	"github.com/dmitrijs2005/inboxview/internal/server/migrations"
	"github.com/dmitrijs2005/inboxview/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/inboxview/internal/server/repositories/refreshsessions"
	"github.com/dmitrijs2005/inboxview/internal/server/repositories/transactions"
	"github.com/dmitrijs2005/inboxview/internal/server/repositories/verifications"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// DriverName is the database/sql driver registered by pgx.
const DriverName = "pgx"

// PostgresRepositoryManager vends PostgreSQL-backed repository implementations
// and exposes a schema migration hook.
type PostgresRepositoryManager struct{}

// Open returns a pgx-backed connection pool. It does not contact the server.
func Open(dsn string) (*sql.DB, error) {
	return sql.Open(DriverName, dsn)
}

// Accounts returns an accounts.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Accounts(db dbx.DBTX) accounts.Repository {
	return accounts.NewPostgresRepository(db)
}

// RefreshSessions returns a refreshsessions.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) RefreshSessions(db dbx.DBTX) refreshsessions.Repository {
	return refreshsessions.NewPostgresRepository(db)
}

// Verifications returns a verifications.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Verifications(db dbx.DBTX) verifications.Repository {
	return verifications.NewPostgresRepository(db)
}

// Transactions returns a transactions.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Transactions(db dbx.DBTX) transactions.Repository {
	return transactions.NewPostgresRepository(db)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations sets up goose with the embedded migrations and runs them
// against the provided database connection.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return gooseUpContext(ctx, db, ".")
}

// NewPostgresRepositoryManager constructs a PostgreSQL-backed RepositoryManager.
func NewPostgresRepositoryManager() RepositoryManager {
	return &PostgresRepositoryManager{}
}
