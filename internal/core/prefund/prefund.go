// Package prefund tracks per-lender custodial balances as an append-only
// transaction trail. The latest COMPLETED row's balances are authoritative;
// the full trail folds to the same totals under the sign rules below.
package prefund

import (
	"context"
	"errors"
	"time"

	"github.com/bigfin/bigfind/internal/core/ledger"
	"github.com/bigfin/bigfind/internal/core/money"
)

// TransactionType is the kind of custodial balance movement.
type TransactionType string

const (
	TypeDeposit             TransactionType = "DEPOSIT"
	TypeWithdrawal          TransactionType = "WITHDRAWAL"
	TypeFee                 TransactionType = "FEE"
	TypeDisbursementHold    TransactionType = "DISBURSEMENT_HOLD"
	TypeDisbursementRelease TransactionType = "DISBURSEMENT_RELEASE"
)

// TransactionStatus is the settlement state of a prefund movement.
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "PENDING"
	StatusCompleted TransactionStatus = "COMPLETED"
	StatusFailed    TransactionStatus = "FAILED"
)

// Transaction is one audit-trail row of a lender's custodial balance.
type Transaction struct {
	ID                  string
	TenantID            string
	CustomerID          string
	Type                TransactionType
	AmountCents         money.Cents
	Status              TransactionStatus
	BalanceAfterCents   money.Cents
	AvailableAfterCents money.Cents
	CreatedAt           time.Time
}

// Sign returns the direction a transaction type moves the balance: +1 adds
// funds, -1 removes or encumbers them.
func (t TransactionType) Sign() int {
	switch t {
	case TypeDeposit, TypeDisbursementRelease:
		return +1
	case TypeWithdrawal, TypeFee, TypeDisbursementHold:
		return -1
	}
	return 0
}

// Fold recomputes the balance implied by completed transactions. Used by
// reconciliation to cross-check the recorded available_after.
func Fold(txs []Transaction) money.Cents {
	var total money.Cents
	for _, tx := range txs {
		if tx.Status != StatusCompleted {
			continue
		}
		total += money.Cents(tx.Type.Sign()) * tx.AmountCents
	}
	return total
}

// ErrNoTransactions is returned when a customer has no prefund history.
var ErrNoTransactions = errors.New("no prefund transactions")

// Store is the prefund persistence port.
type Store interface {
	// LatestCompleted returns the most recent COMPLETED transaction for
	// the customer, or ErrNoTransactions.
	LatestCompleted(ctx context.Context, tenantID, customerID string) (*Transaction, error)

	// ListCompleted returns all COMPLETED transactions for the customer,
	// oldest first.
	ListCompleted(ctx context.Context, tenantID, customerID string) ([]Transaction, error)

	// ListCustomers returns every customer id with at least one prefund
	// transaction under the tenant.
	ListCustomers(ctx context.Context, tenantID string) ([]string, error)

	// AppendTransaction persists a new trail row.
	AppendTransaction(ctx context.Context, tx *Transaction) error
}

// Tx bundles the stores a prefund operation touches in one transaction.
type Tx interface {
	Prefund() Store
	Ledger() ledger.TxStore
}

// UnitOfWork runs a function inside a single storage transaction.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}
