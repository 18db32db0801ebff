package ledger

import (
	"context"
	"errors"

	"github.com/bigfin/bigfind/internal/core/accounts"
	"github.com/bigfin/bigfind/internal/core/money"
)

// Storage sentinels. Implementations return these (possibly wrapped) so the
// engine can distinguish absence from failure.
var (
	ErrAccountNotFound = errors.New("account not found")
	ErrJournalNotFound = errors.New("journal not found")
)

// AccountSum aggregates posted debits and credits for one account.
type AccountSum struct {
	AccountCode string
	DebitCents  money.Cents
	CreditCents money.Cents
}

// Store is the persistence port of the ledger engine. WithinTx runs fn in a
// single transaction; a returned error rolls everything back. The TxStore
// read methods outside a transaction observe committed state only.
type Store interface {
	TxStore

	WithinTx(ctx context.Context, fn func(tx TxStore) error) error
}

// TxStore is the set of operations the engine needs against the backing
// store, usable standalone or inside a transaction.
type TxStore interface {
	// GetAccount returns the registry record for code, or ErrAccountNotFound.
	GetAccount(ctx context.Context, code string) (*accounts.Account, error)

	// InsertAccount adds a registry record. Accounts are immutable; a
	// duplicate code is an error.
	InsertAccount(ctx context.Context, a *accounts.Account) error

	// ListAccounts returns the whole chart, ordered by code.
	ListAccounts(ctx context.Context) ([]accounts.Account, error)

	// LockAccounts acquires write locks on the given accounts. Callers pass
	// codes in canonical (sorted) order to keep lock acquisition deadlock
	// free. Implementations without row locks may lock coarser.
	LockAccounts(ctx context.Context, codes []string) error

	// LastEntry returns the most recent posted entry for the account under
	// the tenant, or nil if the account has no entries yet.
	LastEntry(ctx context.Context, tenantID, accountCode string) (*Entry, error)

	// InsertJournal persists the journal and all of its entries.
	InsertJournal(ctx context.Context, j *Journal) error

	// GetJournal loads a journal with its entries, or ErrJournalNotFound.
	GetJournal(ctx context.Context, tenantID, journalID string) (*Journal, error)

	// SetReversedBy records the reversal link on the original journal. It
	// fails if the journal already carries a reversal link.
	SetReversedBy(ctx context.Context, tenantID, journalID, reversalID string) error

	// ListContractJournals returns a contract's journals with entries,
	// newest first.
	ListContractJournals(ctx context.Context, tenantID, contractID string, page Page) ([]Journal, error)

	// EntrySums aggregates debits and credits per account for the tenant.
	EntrySums(ctx context.Context, tenantID string) ([]AccountSum, error)

	// ContractEntrySums aggregates debits and credits per account across
	// the journals of one contract.
	ContractEntrySums(ctx context.Context, tenantID, contractID string) ([]AccountSum, error)
}
