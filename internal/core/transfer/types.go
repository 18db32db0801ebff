// Package transfer orchestrates money movement through the payment
// provider port: idempotent initiation with rail fallback, provider status
// ingestion and the funds-availability state machine.
package transfer

import (
	"time"

	"github.com/bigfin/bigfind/internal/core/contract"
	"github.com/bigfin/bigfind/internal/core/ledger"
	"github.com/bigfin/bigfind/internal/core/money"
	"github.com/bigfin/bigfind/internal/core/routing"
)

// Status is the domain-side transfer record state.
type Status string

const (
	StatusScheduled Status = "SCHEDULED"
	StatusInitiated Status = "INITIATED"
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusReturned  Status = "RETURNED"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether a status admits no further provider-driven
// transitions (explicit reversals excepted).
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusReturned, StatusCancelled:
		return true
	}
	return false
}

// AvailabilityState tracks funds usability, separately from transfer
// status.
type AvailabilityState string

const (
	AvailabilityInitiated AvailabilityState = "INITIATED"
	AvailabilityPending   AvailabilityState = "PENDING"
	AvailabilityReceived  AvailabilityState = "RECEIVED"
	AvailabilityHeld      AvailabilityState = "HELD"
	AvailabilityAvailable AvailabilityState = "AVAILABLE"
	AvailabilityFailed    AvailabilityState = "FAILED"
)

// RecordKind distinguishes the two transfer record tables.
type RecordKind string

const (
	KindDisbursement RecordKind = "disbursement"
	KindRepayment    RecordKind = "repayment"
)

// InstrumentStatus is the verification state of a funding instrument.
type InstrumentStatus string

const (
	InstrumentPending  InstrumentStatus = "PENDING"
	InstrumentVerified InstrumentStatus = "VERIFIED"
	InstrumentRemoved  InstrumentStatus = "REMOVED"
	InstrumentFailed   InstrumentStatus = "FAILED"
)

// FundingInstrument is a handle to an external payment target. ProviderRef
// doubles as the provider account reference for payment-method listing.
type FundingInstrument struct {
	ID             string
	TenantID       string
	CustomerID     string
	Type           routing.InstrumentType
	Status         InstrumentStatus
	ProviderRef    string
	SupportedRails []routing.Rail
	CreatedAt      time.Time
}

// Capabilities converts the instrument into the router's view of it.
func (f *FundingInstrument) Capabilities() routing.Capabilities {
	return routing.Capabilities{
		Type:           f.Type,
		Verified:       f.Status == InstrumentVerified,
		SupportedRails: f.SupportedRails,
	}
}

// Disbursement shadows a provider transfer that funds a loan.
type Disbursement struct {
	ID                      string
	TenantID                string
	ContractID              string
	AmountCents             money.Cents
	ExpressFeeCents         money.Cents
	NetAmountCents          money.Cents
	Source                  ledger.DisbursementSource
	DestinationInstrumentID string
	Status                  Status
	AvailabilityState       AvailabilityState
	JournalID               string // funding journal, set on completion
	ProviderRef             string
	Rail                    routing.Rail
	IdempotencyKey          string
	HeldUntil               *time.Time
	InitiatedAt             *time.Time
	CompletedAt             *time.Time
	FailedAt                *time.Time
	FailureReason           string
	CreatedAt               time.Time
}

// Repayment shadows a provider transfer that collects from the borrower.
// Applied carries the waterfall split computed at initiation, so the
// settlement journal uses the exact split agreed then.
type Repayment struct {
	ID                 string
	TenantID           string
	ContractID         string
	AmountCents        money.Cents
	SourceInstrumentID string
	Status             Status
	AvailabilityState  AvailabilityState
	Applied            contract.Split
	JournalID          string // settlement journal, set on completion
	ProviderRef        string
	Rail               routing.Rail
	IdempotencyKey     string
	HeldUntil          *time.Time
	ScheduledFor       *time.Time
	InitiatedAt        *time.Time
	CompletedAt        *time.Time
	FailedAt           *time.Time
	FailureReason      string
	CreatedAt          time.Time
}

// TransferResult is the caller-visible outcome of an initiation.
type TransferResult struct {
	RecordID         string         `json:"record_id"`
	Kind             RecordKind     `json:"kind"`
	ContractID       string         `json:"contract_id"`
	ProviderRef      string         `json:"provider_ref"`
	Rail             routing.Rail   `json:"rail"`
	Status           string         `json:"status"`
	AmountCents      money.Cents    `json:"amount_cents"`
	FeeCents         money.Cents    `json:"fee_cents"`
	NetAmountCents   money.Cents    `json:"net_amount_cents"`
	EstimatedArrival time.Time      `json:"estimated_arrival"`
	AttemptedRails   []routing.Rail `json:"attempted_rails"`
	Reason           string         `json:"reason"`
}
