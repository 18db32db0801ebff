// Package sqlstore implements the relationaldb repository contract on
// database/sql, supporting postgres (lib/pq) and sqlite (modernc) with one
// query set written against ? placeholders and rebound per driver.
package sqlstore

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/bigfin/bigfind/internal/core/contract"
	"github.com/bigfin/bigfind/internal/core/ledger"
	"github.com/bigfin/bigfind/internal/core/prefund"
	"github.com/bigfin/bigfind/internal/core/recon"
	"github.com/bigfin/bigfind/internal/core/transfer"
	"github.com/bigfin/bigfind/internal/storage/relationaldb"
)

// Database implements relationaldb.RepositoryManager.
type Database struct {
	db     *sql.DB
	config *relationaldb.Config
}

// NewDatabase validates the config and returns an unopened database.
func NewDatabase(config *relationaldb.Config) (*Database, error) {
	if err := config.Validate(); err != nil {
		return nil, relationaldb.NewConfigurationError("new_database", "invalid configuration", err)
	}
	return &Database{config: config}, nil
}

// Open opens the connection pool and initialises the schema.
func (d *Database) Open(ctx context.Context) error {
	connStr, err := d.config.BuildConnectionString()
	if err != nil {
		return relationaldb.NewConfigurationError("open", "failed to build connection string", err)
	}

	sqlDB, err := sql.Open(d.config.Driver, connStr)
	if err != nil {
		return relationaldb.NewConnectionError("open", "failed to open database connection", err)
	}

	sqlDB.SetMaxOpenConns(d.config.MaxOpenConns)
	sqlDB.SetMaxIdleConns(d.config.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(d.config.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(d.config.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, d.config.DefaultTimeout)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		sqlDB.Close()
		return relationaldb.NewConnectionError("open", "failed to ping database", err)
	}

	d.db = sqlDB
	if err := d.initSchema(ctx); err != nil {
		d.db.Close()
		d.db = nil
		return relationaldb.NewSchemaError("open", "failed to initialize schema", err)
	}
	return nil
}

// Close closes the connection pool.
func (d *Database) Close(ctx context.Context) error {
	if d.db == nil {
		return nil
	}
	err := d.db.Close()
	d.db = nil
	if err != nil {
		return relationaldb.NewConnectionError("close", "failed to close database connection", err)
	}
	return nil
}

// Ping tests the database connection.
func (d *Database) Ping(ctx context.Context) error {
	if d.db == nil {
		return relationaldb.ErrDatabaseClosed
	}
	pingCtx, cancel := context.WithTimeout(ctx, d.config.DefaultTimeout)
	defer cancel()
	if err := d.db.PingContext(pingCtx); err != nil {
		return relationaldb.NewConnectionError("ping", "database ping failed", err)
	}
	return nil
}

// withinTx runs fn against a transaction-scoped context, committing on nil
// and rolling back otherwise.
func (d *Database) withinTx(ctx context.Context, fn func(tc *TransactionContext) error) error {
	if d.db == nil {
		return relationaldb.ErrDatabaseClosed
	}
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return relationaldb.NewTransactionError("begin", "failed to begin transaction", err)
	}
	if err := fn(newTransactionContext(tx, d.config.Driver)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			return relationaldb.NewTransactionError("rollback", "rollback failed", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return relationaldb.NewTransactionError("commit", "commit failed", err)
	}
	return nil
}

// Ledger returns the ledger store, transactional via WithinTx.
func (d *Database) Ledger() ledger.Store {
	return &ledgerStore{
		LedgerRepository: NewLedgerRepository(d.db, d.config.Driver),
		db:               d,
	}
}

// Contracts returns the contract store over the connection pool.
func (d *Database) Contracts() contract.Store {
	return NewContractRepository(d.db, d.config.Driver)
}

// Instruments returns the funding instrument store.
func (d *Database) Instruments() transfer.InstrumentStore {
	return NewInstrumentRepository(d.db, d.config.Driver)
}

// Recon returns the reconciliation store.
func (d *Database) Recon() recon.Store {
	return NewReconRepository(d.db, d.config.Driver)
}

// PrefundUnits returns the prefund unit-of-work.
func (d *Database) PrefundUnits() prefund.UnitOfWork {
	return &prefundUnitOfWork{db: d}
}

// TransferUnits returns the transfer unit-of-work.
func (d *Database) TransferUnits() transfer.UnitOfWork {
	return &transferUnitOfWork{db: d}
}

// ledgerStore adds WithinTx to the pool-scoped ledger repository.
type ledgerStore struct {
	*LedgerRepository
	db *Database
}

func (s *ledgerStore) WithinTx(ctx context.Context, fn func(tx ledger.TxStore) error) error {
	return s.db.withinTx(ctx, func(tc *TransactionContext) error {
		return fn(tc.Ledger())
	})
}

type prefundUnitOfWork struct {
	db *Database
}

func (u *prefundUnitOfWork) WithinTx(ctx context.Context, fn func(tx prefund.Tx) error) error {
	return u.db.withinTx(ctx, func(tc *TransactionContext) error {
		return fn(tc)
	})
}

type transferUnitOfWork struct {
	db *Database
}

func (u *transferUnitOfWork) WithinTx(ctx context.Context, fn func(tx transfer.TxContext) error) error {
	return u.db.withinTx(ctx, func(tc *TransactionContext) error {
		return fn(tc)
	})
}
