package transfer

import (
	"context"
	"errors"
	"time"

	"github.com/bigfin/bigfind/internal/core/contract"
	"github.com/bigfin/bigfind/internal/core/ledger"
	"github.com/bigfin/bigfind/internal/core/prefund"
)

// ErrRecordNotFound is returned by stores when no transfer record matches.
var ErrRecordNotFound = errors.New("transfer record not found")

// DisbursementStore is the disbursement persistence port.
type DisbursementStore interface {
	InsertDisbursement(ctx context.Context, d *Disbursement) error
	UpdateDisbursement(ctx context.Context, d *Disbursement) error
	GetDisbursement(ctx context.Context, tenantID, id string) (*Disbursement, error)
	GetDisbursementByProviderRef(ctx context.Context, tenantID, providerRef string) (*Disbursement, error)

	// ListDisbursementsInitiatedBetween returns records with initiated_at
	// inside [start, end], for reconciliation.
	ListDisbursementsInitiatedBetween(ctx context.Context, tenantID string, start, end time.Time) ([]Disbursement, error)

	// ListHeldDisbursements returns records in HELD availability state.
	ListHeldDisbursements(ctx context.Context, tenantID string) ([]Disbursement, error)
}

// RepaymentStore is the repayment persistence port.
type RepaymentStore interface {
	InsertRepayment(ctx context.Context, r *Repayment) error
	UpdateRepayment(ctx context.Context, r *Repayment) error
	GetRepayment(ctx context.Context, tenantID, id string) (*Repayment, error)
	GetRepaymentByProviderRef(ctx context.Context, tenantID, providerRef string) (*Repayment, error)
	ListRepaymentsInitiatedBetween(ctx context.Context, tenantID string, start, end time.Time) ([]Repayment, error)

	// ListHeldRepayments returns records in HELD availability state.
	ListHeldRepayments(ctx context.Context, tenantID string) ([]Repayment, error)

	// ListDueScheduledRepayments returns SCHEDULED records whose
	// scheduled_for is at or before the cutoff.
	ListDueScheduledRepayments(ctx context.Context, tenantID string, cutoff time.Time) ([]Repayment, error)
}

// InstrumentStore is the funding instrument persistence port.
type InstrumentStore interface {
	InsertInstrument(ctx context.Context, f *FundingInstrument) error
	GetInstrument(ctx context.Context, tenantID, id string) (*FundingInstrument, error)
	UpdateInstrument(ctx context.Context, f *FundingInstrument) error
}

// TxContext bundles every store a single orchestration transaction may
// touch. Record update, contract transition and journal posting commit or
// roll back together.
type TxContext interface {
	Disbursements() DisbursementStore
	Repayments() RepaymentStore
	Contracts() contract.Store
	Instruments() InstrumentStore
	Prefund() prefund.Store
	Ledger() ledger.TxStore
}

// UnitOfWork opens one storage transaction around fn.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(tx TxContext) error) error
}
