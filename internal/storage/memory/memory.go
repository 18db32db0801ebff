// Package memory holds an in-memory implementation of every persistence
// port. Transactions are serialised and rolled back via snapshots, which is
// enough for tests and single-process standalone runs.
package memory

import (
	"context"
	"sync"

	"github.com/bigfin/bigfind/internal/core/accounts"
	"github.com/bigfin/bigfind/internal/core/contract"
	"github.com/bigfin/bigfind/internal/core/ledger"
	"github.com/bigfin/bigfind/internal/core/prefund"
	"github.com/bigfin/bigfind/internal/core/recon"
	"github.com/bigfin/bigfind/internal/core/transfer"
)

// Store keeps every table as a map or ordered slice. All data methods take
// the data mutex; transactions additionally take the tx mutex for their
// whole extent, so at most one transaction runs at a time.
type Store struct {
	txMu sync.Mutex
	mu   sync.Mutex

	accounts      map[string]accounts.Account
	journals      map[string]ledger.Journal
	journalOrder  []string
	entries       []entryRow
	contracts     map[string]contract.Contract
	scheduleItems []contract.ScheduleItem
	prefundTxs    []prefund.Transaction
	instruments   map[string]transfer.FundingInstrument
	disbursements map[string]transfer.Disbursement
	repayments    map[string]transfer.Repayment
	runs          map[string]recon.Run
	exceptions    map[string]recon.Exception
	exceptionIDs  []string
}

// New returns an empty store.
func New() *Store {
	return &Store{
		accounts:      make(map[string]accounts.Account),
		journals:      make(map[string]ledger.Journal),
		contracts:     make(map[string]contract.Contract),
		instruments:   make(map[string]transfer.FundingInstrument),
		disbursements: make(map[string]transfer.Disbursement),
		repayments:    make(map[string]transfer.Repayment),
		runs:          make(map[string]recon.Run),
		exceptions:    make(map[string]recon.Exception),
	}
}

func key(tenantID, id string) string {
	return tenantID + "/" + id
}

// entryRow pairs a posted entry with its tenant, which the entry itself
// does not carry.
type entryRow struct {
	tenantID string
	entry    ledger.Entry
}

// snapshot copies the container structure. Stored values are never mutated
// in place (writes replace whole entries), so shallow copies suffice.
type snapshot struct {
	accounts      map[string]accounts.Account
	journals      map[string]ledger.Journal
	journalOrder  []string
	entries       []entryRow
	contracts     map[string]contract.Contract
	scheduleItems []contract.ScheduleItem
	prefundTxs    []prefund.Transaction
	instruments   map[string]transfer.FundingInstrument
	disbursements map[string]transfer.Disbursement
	repayments    map[string]transfer.Repayment
	runs          map[string]recon.Run
	exceptions    map[string]recon.Exception
	exceptionIDs  []string
}

func copyMap[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *Store) take() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshot{
		accounts:      copyMap(s.accounts),
		journals:      copyMap(s.journals),
		journalOrder:  append([]string(nil), s.journalOrder...),
		entries:       append([]entryRow(nil), s.entries...),
		contracts:     copyMap(s.contracts),
		scheduleItems: append([]contract.ScheduleItem(nil), s.scheduleItems...),
		prefundTxs:    append([]prefund.Transaction(nil), s.prefundTxs...),
		instruments:   copyMap(s.instruments),
		disbursements: copyMap(s.disbursements),
		repayments:    copyMap(s.repayments),
		runs:          copyMap(s.runs),
		exceptions:    copyMap(s.exceptions),
		exceptionIDs:  append([]string(nil), s.exceptionIDs...),
	}
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts = snap.accounts
	s.journals = snap.journals
	s.journalOrder = snap.journalOrder
	s.entries = snap.entries
	s.contracts = snap.contracts
	s.scheduleItems = snap.scheduleItems
	s.prefundTxs = snap.prefundTxs
	s.instruments = snap.instruments
	s.disbursements = snap.disbursements
	s.repayments = snap.repayments
	s.runs = snap.runs
	s.exceptions = snap.exceptions
	s.exceptionIDs = snap.exceptionIDs
}

func (s *Store) withinTx(ctx context.Context, fn func() error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	snap := s.take()
	if err := fn(); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// LedgerStore wraps the store with the transactional ledger contract.
func (s *Store) LedgerStore() ledger.Store {
	return &ledgerStore{Store: s}
}

// PrefundUnits returns the prefund unit-of-work.
func (s *Store) PrefundUnits() prefund.UnitOfWork {
	return prefundUnits{s: s}
}

// TransferUnits returns the transfer unit-of-work.
func (s *Store) TransferUnits() transfer.UnitOfWork {
	return transferUnits{s: s}
}

type ledgerStore struct {
	*Store
}

func (l *ledgerStore) WithinTx(ctx context.Context, fn func(tx ledger.TxStore) error) error {
	return l.Store.withinTx(ctx, func() error {
		return fn(l.Store)
	})
}

type prefundUnits struct {
	s *Store
}

func (u prefundUnits) WithinTx(ctx context.Context, fn func(tx prefund.Tx) error) error {
	return u.s.withinTx(ctx, func() error {
		return fn(txContext{s: u.s})
	})
}

type transferUnits struct {
	s *Store
}

func (u transferUnits) WithinTx(ctx context.Context, fn func(tx transfer.TxContext) error) error {
	return u.s.withinTx(ctx, func() error {
		return fn(txContext{s: u.s})
	})
}

// txContext exposes the store under the per-concern port types.
type txContext struct {
	s *Store
}

func (t txContext) Ledger() ledger.TxStore                    { return t.s }
func (t txContext) Prefund() prefund.Store                    { return t.s }
func (t txContext) Contracts() contract.Store                 { return t.s }
func (t txContext) Disbursements() transfer.DisbursementStore { return t.s }
func (t txContext) Repayments() transfer.RepaymentStore       { return t.s }
func (t txContext) Instruments() transfer.InstrumentStore     { return t.s }
