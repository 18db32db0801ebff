package relationaldb

import (
	"context"

	"github.com/bigfin/bigfind/internal/core/contract"
	"github.com/bigfin/bigfind/internal/core/ledger"
	"github.com/bigfin/bigfind/internal/core/prefund"
	"github.com/bigfin/bigfind/internal/core/recon"
	"github.com/bigfin/bigfind/internal/core/transfer"
)

// RepositoryManager is the single entry point to relational persistence.
// The accessors return the core persistence ports; the unit-of-work
// accessors open multi-store transactions for the orchestration paths.
type RepositoryManager interface {
	// Connection management
	Open(ctx context.Context) error
	Close(ctx context.Context) error
	Ping(ctx context.Context) error

	// Repository access
	Ledger() ledger.Store
	Contracts() contract.Store
	Instruments() transfer.InstrumentStore
	Recon() recon.Store

	// Unit-of-work access
	PrefundUnits() prefund.UnitOfWork
	TransferUnits() transfer.UnitOfWork
}
