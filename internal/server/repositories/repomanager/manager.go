package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/requestlogs"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/tokens"
)

// RepositoryManager vends repositories bound to either the pool or an open
// transaction, so services decide the transactional scope.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Accounts(db dbx.DBTX) accounts.Repository
	Tokens(db dbx.DBTX) tokens.Repository
	RequestLogs(db dbx.DBTX) requestlogs.Repository
}
