// Package recon implements the daily reconciliation run: transfer matching
// against the provider, ledger integrity checks and prefund trail
// consistency, producing persisted exceptions by type and severity.
package recon

import (
	"context"
	"errors"
	"time"

	"github.com/bigfin/bigfind/internal/core/money"
	"github.com/bigfin/bigfind/internal/core/transfer"
	"github.com/bigfin/bigfind/internal/provider"
)

// ErrRunNotFound is returned by stores when no run matches.
var ErrRunNotFound = errors.New("reconciliation run not found")

// RunStatus is the lifecycle state of one reconciliation run.
type RunStatus string

const (
	RunRunning   RunStatus = "RUNNING"
	RunCompleted RunStatus = "COMPLETED"
	RunFailed    RunStatus = "FAILED"
)

// Run is one reconciliation execution over a window.
type Run struct {
	ID          string
	TenantID    string
	WindowStart time.Time
	WindowEnd   time.Time
	Status      RunStatus
	DryRun      bool

	ExceptionCount    int
	AutoResolvedCount int

	StartedAt  time.Time
	FinishedAt *time.Time
	Error      string
}

// ExceptionType classifies what a reconciliation check found.
type ExceptionType string

const (
	// ExceptionTransferStatus flags a local record whose status disagrees
	// with the provider's.
	ExceptionTransferStatus ExceptionType = "transfer_status"

	// ExceptionTransferMissing flags a provider transfer marked as ours
	// that no local record claims.
	ExceptionTransferMissing ExceptionType = "transfer_missing"

	// ExceptionTransferOrphaned flags a local record whose provider
	// reference the provider has not known for over a day.
	ExceptionTransferOrphaned ExceptionType = "transfer_orphaned"

	// ExceptionAmountMismatch flags an amount disagreement on a matched
	// transfer.
	ExceptionAmountMismatch ExceptionType = "amount_mismatch"

	// ExceptionLedgerImbalance flags a tenant whose trial balance does not
	// net to zero.
	ExceptionLedgerImbalance ExceptionType = "ledger_imbalance"

	// ExceptionPrefundMismatch flags a prefund trail whose fold disagrees
	// with the recorded available balance.
	ExceptionPrefundMismatch ExceptionType = "prefund_mismatch"
)

// Severity grades an exception for triage.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// severityForAmount grades a monetary discrepancy by size.
func severityForAmount(discrepancy money.Cents) Severity {
	switch d := discrepancy.Abs(); {
	case d < 1_000:
		return SeverityLow
	case d < 10_000:
		return SeverityMedium
	case d < 100_000:
		return SeverityHigh
	default:
		return SeverityCritical
	}
}

// severityForStatus grades a status disagreement. A locally settled record
// the provider disputes is the worst case; a provider that settled a record
// still pending locally means money moved without its ledger effects.
func severityForStatus(local transfer.Status, remote provider.TransferStatus) Severity {
	switch {
	case local == transfer.StatusCompleted && (remote == provider.StatusFailed || remote == provider.StatusReturned || remote == provider.StatusCanceled):
		return SeverityCritical
	case (local == transfer.StatusInitiated || local == transfer.StatusPending) && remote == provider.StatusCompleted:
		return SeverityHigh
	default:
		return SeverityMedium
	}
}

// ExceptionStatus is the triage state of an exception.
type ExceptionStatus string

const (
	ExceptionOpen          ExceptionStatus = "open"
	ExceptionInvestigating ExceptionStatus = "investigating"
	ExceptionResolved      ExceptionStatus = "resolved"
	ExceptionIgnored       ExceptionStatus = "ignored"
)

// ResolutionAutoCorrected marks an exception the engine corrected itself by
// replaying the provider status.
const ResolutionAutoCorrected = "auto_corrected"

// Exception is one reconciliation finding.
type Exception struct {
	ID       string
	RunID    string
	TenantID string
	Type     ExceptionType
	Severity Severity
	Status   ExceptionStatus

	// Kind and RecordID address the local record, when one exists.
	Kind     transfer.RecordKind
	RecordID string

	ProviderRef      string
	LocalStatus      transfer.Status
	ProviderStatus   provider.TransferStatus
	DiscrepancyCents money.Cents
	Detail           string

	CreatedAt      time.Time
	ResolvedAt     *time.Time
	ResolutionType string
}

// Store is the reconciliation persistence port.
type Store interface {
	InsertRun(ctx context.Context, run *Run) error
	UpdateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, tenantID, runID string) (*Run, error)

	InsertException(ctx context.Context, e *Exception) error
	UpdateException(ctx context.Context, e *Exception) error
	ListExceptions(ctx context.Context, tenantID, runID string) ([]Exception, error)
}

// expectedStatus maps a provider status to the domain status a record of
// the given kind should carry once the update lands.
func expectedStatus(kind transfer.RecordKind, remote provider.TransferStatus) (transfer.Status, bool) {
	switch remote {
	case provider.StatusCreated, provider.StatusPending, provider.StatusProcessing:
		return transfer.StatusPending, true
	case provider.StatusCompleted:
		return transfer.StatusCompleted, true
	case provider.StatusFailed:
		return transfer.StatusFailed, true
	case provider.StatusReturned:
		if kind == transfer.KindDisbursement {
			return transfer.StatusFailed, true
		}
		return transfer.StatusReturned, true
	case provider.StatusCanceled:
		return transfer.StatusCancelled, true
	}
	return "", false
}
