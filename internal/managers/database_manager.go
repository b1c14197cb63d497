// Package managers handles the business logic and orchestrates interactions between the application and the database.
package managers

import (
	log "github.com/sirupsen/logrus"

	"github.com/kithnet/server-core/internal/interfaces"
)

// DatabaseMgr hands out the connection pool behind the PgxPoolIface
// abstraction. Handlers begin transactions on it; managers take an
// interfaces.Querier instead, which both the pool and pgx.Tx satisfy, so
// the same manager call joins a handler transaction or runs standalone.
type DatabaseMgr interface {
	GetPool() interfaces.PgxPoolIface
}

// DatabaseManager is the single holder of the pool. All session ledger and
// connection edge writes flow through managers that receive it, never around
// them.
type DatabaseManager struct {
	Pool interfaces.PgxPoolIface
}

// GetPool returns the database connection pool.
func (dbMgr *DatabaseManager) GetPool() interfaces.PgxPoolIface {
	return dbMgr.Pool
}

// NewDatabaseManager wraps the given pool. Tests pass a pgxmock pool here.
func NewDatabaseManager(pool interfaces.PgxPoolIface) DatabaseMgr {
	log.Info("Initializing database manager")
	return &DatabaseManager{Pool: pool}
}
