package memory

import (
	"context"

	"github.com/bigfin/bigfind/internal/core/contract"
	"github.com/bigfin/bigfind/internal/core/ledger"
	"github.com/bigfin/bigfind/internal/core/recon"
	"github.com/bigfin/bigfind/internal/core/transfer"
)

// The methods below make *Store satisfy relationaldb.RepositoryManager so
// standalone mode can swap it in for the SQL-backed database.

// Open is a no-op. The store is ready as soon as it is constructed.
func (s *Store) Open(ctx context.Context) error { return nil }

// Close is a no-op. Contents are discarded with the process.
func (s *Store) Close(ctx context.Context) error { return nil }

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error { return nil }

// Ledger returns the transactional ledger store.
func (s *Store) Ledger() ledger.Store { return s.LedgerStore() }

// Contracts returns the contract store.
func (s *Store) Contracts() contract.Store { return s }

// Instruments returns the funding instrument store.
func (s *Store) Instruments() transfer.InstrumentStore { return s }

// Recon returns the reconciliation store.
func (s *Store) Recon() recon.Store { return s }
