package transfer

import (
	"context"
	"errors"
	"log"

	"github.com/bigfin/bigfind/internal/core/errs"
	"github.com/bigfin/bigfind/internal/core/ledger"
	"github.com/bigfin/bigfind/internal/core/prefund"
	"github.com/bigfin/bigfind/internal/provider"
)

// ProcessStatusUpdate ingests one provider status change, from a webhook or
// from reconciliation polling. The record update, contract transition and
// any journal posting commit in a single transaction.
//
// Updates are idempotent and monotonic: a duplicate or out-of-order update
// for a record already past the reported state is a no-op. The one
// transition out of COMPLETED is an explicit return, which reverses the
// settlement journal.
func (o *Orchestrator) ProcessStatusUpdate(ctx context.Context, tenantID string, up provider.StatusUpdate) error {
	if up.ProviderRef == "" {
		return errs.InvalidRequest("status update has no provider reference")
	}
	return o.uow.WithinTx(ctx, func(tx TxContext) error {
		d, err := tx.Disbursements().GetDisbursementByProviderRef(ctx, tenantID, up.ProviderRef)
		if err == nil {
			return o.applyDisbursementUpdate(ctx, tx, d, up)
		}
		if !errors.Is(err, ErrRecordNotFound) {
			return err
		}
		r, err := tx.Repayments().GetRepaymentByProviderRef(ctx, tenantID, up.ProviderRef)
		if err == nil {
			return o.applyRepaymentUpdate(ctx, tx, r, up)
		}
		if !errors.Is(err, ErrRecordNotFound) {
			return err
		}
		// Unknown references are not an error here; reconciliation raises
		// them as orphaned transfers.
		log.Printf("transfer: status update for unknown provider ref %s ignored", up.ProviderRef)
		return nil
	})
}

func (o *Orchestrator) applyDisbursementUpdate(ctx context.Context, tx TxContext, d *Disbursement, up provider.StatusUpdate) error {
	now := o.clock()
	switch up.Status {
	case provider.StatusCreated, provider.StatusPending, provider.StatusProcessing:
		if d.Status != StatusInitiated && d.Status != StatusPending {
			return nil
		}
		d.Status = StatusPending
		d.AvailabilityState = AvailabilityPending
		return tx.Disbursements().UpdateDisbursement(ctx, d)

	case provider.StatusCompleted:
		if d.Status == StatusCompleted || d.Status.Terminal() {
			return nil
		}
		c, err := tx.Contracts().GetContract(ctx, d.TenantID, d.ContractID)
		if err != nil {
			return err
		}
		if err := c.Activate(up.OccurredAt); err != nil {
			return err
		}
		journal, err := o.ledger.DisbursementJournal(ctx, tx.Ledger(), d.TenantID, d.ContractID, d.Source, d.AmountCents, d.ExpressFeeCents, "status-ingestion")
		if err != nil {
			return err
		}
		if d.Source == ledger.SourcePrefund {
			// The hold converts into a real balance reduction: release the
			// encumbrance, then debit custody for the disbursed amount.
			if _, err := prefund.Append(ctx, tx.Prefund(), d.TenantID, c.LenderID, prefund.TypeDisbursementRelease, d.AmountCents, now); err != nil {
				return err
			}
			if _, err := prefund.Append(ctx, tx.Prefund(), d.TenantID, c.LenderID, prefund.TypeWithdrawal, d.AmountCents, now); err != nil {
				return err
			}
		}
		d.Status = StatusCompleted
		d.JournalID = journal.ID
		d.CompletedAt = &up.OccurredAt
		d.AvailabilityState, d.HeldUntil = o.cfg.Holds.Evaluate(d.AmountCents, up.OccurredAt)
		if err := tx.Contracts().UpdateContract(ctx, c); err != nil {
			return err
		}
		return tx.Disbursements().UpdateDisbursement(ctx, d)

	case provider.StatusFailed, provider.StatusCanceled:
		if d.Status.Terminal() {
			return nil
		}
		if up.Status == provider.StatusCanceled {
			d.Status = StatusCancelled
		} else {
			d.Status = StatusFailed
		}
		d.AvailabilityState = AvailabilityFailed
		d.FailedAt = &up.OccurredAt
		d.FailureReason = up.FailureReason
		if d.Source == ledger.SourcePrefund {
			c, err := tx.Contracts().GetContract(ctx, d.TenantID, d.ContractID)
			if err != nil {
				return err
			}
			if _, err := prefund.Append(ctx, tx.Prefund(), d.TenantID, c.LenderID, prefund.TypeDisbursementRelease, d.AmountCents, now); err != nil {
				return err
			}
		}
		return tx.Disbursements().UpdateDisbursement(ctx, d)

	case provider.StatusReturned:
		if d.Status == StatusCompleted {
			return o.reverseDisbursement(ctx, tx, d, up)
		}
		if d.Status.Terminal() {
			return nil
		}
		d.Status = StatusFailed
		d.AvailabilityState = AvailabilityFailed
		d.FailedAt = &up.OccurredAt
		d.FailureReason = up.FailureReason
		return tx.Disbursements().UpdateDisbursement(ctx, d)
	}
	return errs.InvalidRequest("unknown provider status %q", up.Status)
}

// reverseDisbursement unwinds a settled disbursement the bank later
// returned: reverse the funding journal, restore the prefund balance and
// put the contract back to PENDING_DISBURSEMENT.
func (o *Orchestrator) reverseDisbursement(ctx context.Context, tx TxContext, d *Disbursement, up provider.StatusUpdate) error {
	now := o.clock()
	if _, err := o.ledger.ReverseInTx(ctx, tx.Ledger(), d.TenantID, d.JournalID, "disbursement returned", "status-ingestion"); err != nil {
		return err
	}
	c, err := tx.Contracts().GetContract(ctx, d.TenantID, d.ContractID)
	if err != nil {
		return err
	}
	if err := c.RevertActivation(up.OccurredAt); err != nil {
		return err
	}
	if d.Source == ledger.SourcePrefund {
		if _, err := prefund.Append(ctx, tx.Prefund(), d.TenantID, c.LenderID, prefund.TypeDeposit, d.AmountCents, now); err != nil {
			return err
		}
	}
	d.Status = StatusFailed
	d.AvailabilityState = AvailabilityFailed
	d.FailedAt = &up.OccurredAt
	d.FailureReason = up.FailureReason
	if err := tx.Contracts().UpdateContract(ctx, c); err != nil {
		return err
	}
	return tx.Disbursements().UpdateDisbursement(ctx, d)
}

func (o *Orchestrator) applyRepaymentUpdate(ctx context.Context, tx TxContext, r *Repayment, up provider.StatusUpdate) error {
	switch up.Status {
	case provider.StatusCreated, provider.StatusPending, provider.StatusProcessing:
		if r.Status != StatusInitiated && r.Status != StatusPending {
			return nil
		}
		r.Status = StatusPending
		r.AvailabilityState = AvailabilityPending
		return tx.Repayments().UpdateRepayment(ctx, r)

	case provider.StatusCompleted:
		if r.Status == StatusCompleted || r.Status.Terminal() {
			return nil
		}
		c, err := tx.Contracts().GetContract(ctx, r.TenantID, r.ContractID)
		if err != nil {
			return err
		}
		if err := c.ApplySplit(r.Applied, up.OccurredAt); err != nil {
			return err
		}
		journal, err := o.ledger.RepaymentJournal(ctx, tx.Ledger(), r.TenantID, r.ContractID, ledger.RepaymentSplit{
			FeeCents:       r.Applied.FeeCents,
			InterestCents:  r.Applied.InterestCents,
			PrincipalCents: r.Applied.PrincipalCents,
		}, "status-ingestion")
		if err != nil {
			return err
		}
		r.Status = StatusCompleted
		r.JournalID = journal.ID
		r.CompletedAt = &up.OccurredAt
		r.AvailabilityState, r.HeldUntil = o.cfg.Holds.Evaluate(r.AmountCents, up.OccurredAt)
		if err := tx.Contracts().UpdateContract(ctx, c); err != nil {
			return err
		}
		return tx.Repayments().UpdateRepayment(ctx, r)

	case provider.StatusReturned:
		if r.Status == StatusCompleted {
			return o.reverseRepayment(ctx, tx, r, up)
		}
		if r.Status.Terminal() {
			return nil
		}
		r.Status = StatusReturned
		r.AvailabilityState = AvailabilityFailed
		r.FailedAt = &up.OccurredAt
		r.FailureReason = up.FailureReason
		return tx.Repayments().UpdateRepayment(ctx, r)

	case provider.StatusFailed, provider.StatusCanceled:
		if r.Status.Terminal() {
			return nil
		}
		if up.Status == provider.StatusCanceled {
			r.Status = StatusCancelled
		} else {
			r.Status = StatusFailed
		}
		r.AvailabilityState = AvailabilityFailed
		r.FailedAt = &up.OccurredAt
		r.FailureReason = up.FailureReason
		return tx.Repayments().UpdateRepayment(ctx, r)
	}
	return errs.InvalidRequest("unknown provider status %q", up.Status)
}

// reverseRepayment unwinds a settled repayment after an ACH return: the
// settlement journal is reversed and the contract balances are restored,
// reopening a PAID_OFF contract when needed.
func (o *Orchestrator) reverseRepayment(ctx context.Context, tx TxContext, r *Repayment, up provider.StatusUpdate) error {
	if _, err := o.ledger.ReverseInTx(ctx, tx.Ledger(), r.TenantID, r.JournalID, "repayment returned", "status-ingestion"); err != nil {
		return err
	}
	c, err := tx.Contracts().GetContract(ctx, r.TenantID, r.ContractID)
	if err != nil {
		return err
	}
	if err := c.RevertSplit(r.Applied, up.OccurredAt); err != nil {
		return err
	}
	r.Status = StatusReturned
	r.AvailabilityState = AvailabilityFailed
	r.FailedAt = &up.OccurredAt
	r.FailureReason = up.FailureReason
	if err := tx.Contracts().UpdateContract(ctx, c); err != nil {
		return err
	}
	return tx.Repayments().UpdateRepayment(ctx, r)
}
