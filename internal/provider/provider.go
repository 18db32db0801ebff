// Package provider defines the PaymentProvider port the transfer
// orchestrator and reconciliation engine speak to, plus the webhook
// contract and an in-memory implementation for tests and standalone mode.
package provider

import (
	"context"
	"time"

	"github.com/bigfin/bigfind/internal/core/money"
)

// TransferStatus is the provider-side vocabulary for transfer state.
type TransferStatus string

const (
	StatusCreated    TransferStatus = "created"
	StatusPending    TransferStatus = "pending"
	StatusProcessing TransferStatus = "processing"
	StatusCompleted  TransferStatus = "completed"
	StatusFailed     TransferStatus = "failed"
	StatusReturned   TransferStatus = "returned"
	StatusCanceled   TransferStatus = "canceled"
)

// CreateTransferInput is the provider call to move money between two
// payment methods.
type CreateTransferInput struct {
	SourcePaymentMethodID      string
	DestinationPaymentMethodID string
	AmountCents                money.Cents
	Currency                   string
	Description                string
	IdempotencyKey             string
	Metadata                   map[string]string
}

// Transfer is the provider's view of a money movement. Metadata carries the
// domain record type ("disbursement" or "repayment") set at creation.
type Transfer struct {
	ID          string
	Status      TransferStatus
	AmountCents money.Cents
	CreatedAt   time.Time
	CompletedAt *time.Time
	Metadata    map[string]string
}

// MetadataTypeKey is the metadata key carrying the domain record type.
const MetadataTypeKey = "type"

// PaymentMethod is one rail-specific endpoint attached to a provider
// account.
type PaymentMethod struct {
	ID   string
	Type string // e.g. "ach-debit-fund", "rtp-credit", "push-to-card"
}

// Window bounds a ListTransfers query.
type Window struct {
	Start time.Time
	End   time.Time
}

// PaymentProvider is the external money-movement port. Any concrete
// provider adapter must satisfy it; tests substitute the in-memory double.
type PaymentProvider interface {
	// CreateTransfer initiates a transfer, idempotent on IdempotencyKey.
	CreateTransfer(ctx context.Context, in CreateTransferInput) (*Transfer, error)

	// GetTransfer fetches a transfer by provider id.
	GetTransfer(ctx context.Context, id string) (*Transfer, error)

	// ListTransfers returns transfers created inside the window.
	ListTransfers(ctx context.Context, w Window) ([]Transfer, error)

	// ListPaymentMethods returns the payment methods of an account.
	ListPaymentMethods(ctx context.Context, accountRef string) ([]PaymentMethod, error)

	// Cancel requests cancellation, best effort and idempotent.
	Cancel(ctx context.Context, id string) error
}
