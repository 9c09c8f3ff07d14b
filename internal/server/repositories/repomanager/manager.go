// Package repomanager vends repositories bound to a dbx.DBTX, so services can
// run the same repository code against the pool or inside a transaction.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/inboxview/internal/dbx"
	"github.com/dmitrijs2005/inboxview/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/inboxview/internal/server/repositories/refreshsessions"
	"github.com/dmitrijs2005/inboxview/internal/server/repositories/transactions"
	"github.com/dmitrijs2005/inboxview/internal/server/repositories/verifications"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Accounts(db dbx.DBTX) accounts.Repository
	RefreshSessions(db dbx.DBTX) refreshsessions.Repository
	Verifications(db dbx.DBTX) verifications.Repository
	Transactions(db dbx.DBTX) transactions.Repository
}
