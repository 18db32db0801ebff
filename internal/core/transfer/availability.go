package transfer

import (
	"context"
	"time"

	"github.com/bigfin/bigfind/internal/core/money"
)

// HoldPolicy decides whether settled funds are held before becoming
// available. Settlement logically passes through RECEIVED; the persisted
// state is the policy outcome, HELD with a release time or AVAILABLE.
type HoldPolicy struct {
	Enabled bool

	// ThresholdCents holds amounts at or above it. Zero holds everything
	// when the policy is enabled.
	ThresholdCents money.Cents

	// Duration is how long held funds stay in HELD.
	Duration time.Duration
}

// Evaluate returns the post-settlement availability state and, for HELD,
// the release time.
func (p HoldPolicy) Evaluate(amount money.Cents, settledAt time.Time) (AvailabilityState, *time.Time) {
	if !p.Enabled || amount < p.ThresholdCents {
		return AvailabilityAvailable, nil
	}
	release := settledAt.Add(p.Duration)
	return AvailabilityHeld, &release
}

// ReleaseExpiredHolds moves every HELD record whose release time has passed
// to AVAILABLE. Returns how many records were released.
func (o *Orchestrator) ReleaseExpiredHolds(ctx context.Context, tenantID string) (int, error) {
	now := o.clock()
	released := 0
	err := o.uow.WithinTx(ctx, func(tx TxContext) error {
		held, err := tx.Disbursements().ListHeldDisbursements(ctx, tenantID)
		if err != nil {
			return err
		}
		for i := range held {
			d := &held[i]
			if d.HeldUntil == nil || d.HeldUntil.After(now) {
				continue
			}
			d.AvailabilityState = AvailabilityAvailable
			d.HeldUntil = nil
			if err := tx.Disbursements().UpdateDisbursement(ctx, d); err != nil {
				return err
			}
			released++
		}

		heldRepayments, err := tx.Repayments().ListHeldRepayments(ctx, tenantID)
		if err != nil {
			return err
		}
		for i := range heldRepayments {
			r := &heldRepayments[i]
			if r.HeldUntil == nil || r.HeldUntil.After(now) {
				continue
			}
			r.AvailabilityState = AvailabilityAvailable
			r.HeldUntil = nil
			if err := tx.Repayments().UpdateRepayment(ctx, r); err != nil {
				return err
			}
			released++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return released, nil
}
