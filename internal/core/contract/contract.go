// Package contract holds the loan contract lifecycle, amortization
// schedule generation and the repayment application waterfall.
package contract

import (
	"context"
	"errors"
	"time"

	"github.com/bigfin/bigfind/internal/core/errs"
	"github.com/bigfin/bigfind/internal/core/money"
)

// Status is the loan contract lifecycle state.
type Status string

const (
	StatusPendingDisbursement Status = "PENDING_DISBURSEMENT"
	StatusActive              Status = "ACTIVE"
	StatusPaidOff             Status = "PAID_OFF"
	StatusDefaulted           Status = "DEFAULTED"
	StatusCancelled           Status = "CANCELLED"
)

// PaymentFrequency is the repayment cadence.
type PaymentFrequency string

const (
	FrequencyWeekly   PaymentFrequency = "WEEKLY"
	FrequencyBiweekly PaymentFrequency = "BIWEEKLY"
	FrequencyMonthly  PaymentFrequency = "MONTHLY"
)

// Contract is an originated loan. Balance fields track outstanding
// receivables by component; they hit zero together exactly when the loan is
// paid off.
type Contract struct {
	ID               string
	TenantID         string
	CustomerID       string
	LenderID         string
	Status           Status
	PrincipalCents   money.Cents
	APRBps           int64 // annual rate in basis points
	TermMonths       int
	PaymentFrequency PaymentFrequency
	FirstPaymentDate time.Time

	PrincipalBalanceCents money.Cents
	InterestBalanceCents  money.Cents
	FeesBalanceCents      money.Cents

	DisbursedAt *time.Time
	PaidOffAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// OutstandingCents is the total owed across all components.
func (c *Contract) OutstandingCents() money.Cents {
	return c.PrincipalBalanceCents + c.InterestBalanceCents + c.FeesBalanceCents
}

// Activate transitions the contract out of PENDING_DISBURSEMENT when its
// disbursement settles.
func (c *Contract) Activate(at time.Time) error {
	if c.Status != StatusPendingDisbursement {
		return errs.New(errs.CodeInvalidState, "contract %s is %s, expected %s", c.ID, c.Status, StatusPendingDisbursement)
	}
	c.Status = StatusActive
	c.DisbursedAt = &at
	c.PrincipalBalanceCents = c.PrincipalCents
	c.UpdatedAt = at
	return nil
}

// RevertActivation undoes Activate after a reversed disbursement. Only an
// untouched ACTIVE contract (full principal outstanding, no interest or
// fees) can go back to PENDING_DISBURSEMENT.
func (c *Contract) RevertActivation(at time.Time) error {
	if c.Status != StatusActive {
		return errs.New(errs.CodeInvalidState, "contract %s is %s, cannot revert activation", c.ID, c.Status)
	}
	if c.PrincipalBalanceCents != c.PrincipalCents || c.InterestBalanceCents != 0 || c.FeesBalanceCents != 0 {
		return errs.New(errs.CodeInvalidState, "contract %s has repayment activity, cannot revert activation", c.ID)
	}
	c.Status = StatusPendingDisbursement
	c.DisbursedAt = nil
	c.PrincipalBalanceCents = 0
	c.UpdatedAt = at
	return nil
}

// ApplySplit reduces the component balances by a settled repayment split
// and transitions to PAID_OFF when everything reaches zero.
func (c *Contract) ApplySplit(split Split, at time.Time) error {
	if c.Status != StatusActive {
		return errs.New(errs.CodeInvalidState, "contract %s is %s, repayments require %s", c.ID, c.Status, StatusActive)
	}
	c.FeesBalanceCents -= split.FeeCents
	c.InterestBalanceCents -= split.InterestCents
	c.PrincipalBalanceCents -= split.PrincipalCents
	if c.FeesBalanceCents < 0 || c.InterestBalanceCents < 0 || c.PrincipalBalanceCents < 0 {
		return errs.New(errs.CodeInvalidState, "contract %s: split drives a component balance negative", c.ID)
	}
	c.UpdatedAt = at
	if c.OutstandingCents() == 0 {
		c.Status = StatusPaidOff
		c.PaidOffAt = &at
	}
	return nil
}

// RevertSplit restores balances after a returned repayment. A PAID_OFF
// contract reopens as ACTIVE.
func (c *Contract) RevertSplit(split Split, at time.Time) error {
	if c.Status != StatusActive && c.Status != StatusPaidOff {
		return errs.New(errs.CodeInvalidState, "contract %s is %s, cannot revert a repayment", c.ID, c.Status)
	}
	c.FeesBalanceCents += split.FeeCents
	c.InterestBalanceCents += split.InterestCents
	c.PrincipalBalanceCents += split.PrincipalCents
	if c.Status == StatusPaidOff {
		c.Status = StatusActive
		c.PaidOffAt = nil
	}
	c.UpdatedAt = at
	return nil
}

// ErrContractNotFound is returned by stores when no contract matches.
var ErrContractNotFound = errors.New("contract not found")

// Store is the contract persistence port.
type Store interface {
	GetContract(ctx context.Context, tenantID, contractID string) (*Contract, error)
	InsertContract(ctx context.Context, c *Contract) error
	UpdateContract(ctx context.Context, c *Contract) error
	InsertScheduleItems(ctx context.Context, items []ScheduleItem) error
	ListScheduleItems(ctx context.Context, tenantID, contractID string) ([]ScheduleItem, error)
}
