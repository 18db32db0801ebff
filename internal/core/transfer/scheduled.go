package transfer

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/bigfin/bigfind/internal/core/contract"
	"github.com/bigfin/bigfind/internal/core/errs"
	"github.com/bigfin/bigfind/internal/core/money"
	"github.com/bigfin/bigfind/internal/core/routing"
)

// ScheduleRepaymentInput describes a future automatic collection, typically
// one installment of the amortization schedule.
type ScheduleRepaymentInput struct {
	TenantID           string
	ContractID         string
	AmountCents        money.Cents
	SourceInstrumentID string
	ScheduledFor       time.Time
}

// ScheduleRepayment records a repayment to be collected at ScheduledFor.
// The waterfall split is deliberately not fixed here; it is computed
// against the balances current when the collection actually starts.
func (o *Orchestrator) ScheduleRepayment(ctx context.Context, in ScheduleRepaymentInput) (*Repayment, error) {
	if in.TenantID == "" || in.ContractID == "" {
		return nil, errs.InvalidRequest("tenant_id and contract_id are required")
	}
	if in.AmountCents <= 0 {
		return nil, errs.InvalidRequest("amount_cents must be positive")
	}
	if in.SourceInstrumentID == "" {
		return nil, errs.InvalidRequest("scheduled repayment requires a source instrument")
	}

	var out *Repayment
	err := o.uow.WithinTx(ctx, func(tx TxContext) error {
		c, err := tx.Contracts().GetContract(ctx, in.TenantID, in.ContractID)
		if err != nil {
			if errors.Is(err, contract.ErrContractNotFound) {
				return errs.NotFound("contract", in.ContractID)
			}
			return err
		}
		if c.Status != contract.StatusActive {
			return errs.New(errs.CodeInvalidState, "contract %s is %s, scheduling requires %s", c.ID, c.Status, contract.StatusActive)
		}
		scheduledFor := in.ScheduledFor
		r := &Repayment{
			ID:                 uuid.NewString(),
			TenantID:           in.TenantID,
			ContractID:         in.ContractID,
			AmountCents:        in.AmountCents,
			SourceInstrumentID: in.SourceInstrumentID,
			Status:             StatusScheduled,
			AvailabilityState:  AvailabilityInitiated,
			ScheduledFor:       &scheduledFor,
			CreatedAt:          o.clock(),
		}
		if err := tx.Repayments().InsertRepayment(ctx, r); err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// InitiateScheduled starts collection of a due SCHEDULED repayment over
// standard ACH, computing the waterfall split against current balances.
func (o *Orchestrator) InitiateScheduled(ctx context.Context, tenantID, repaymentID string) (*TransferResult, error) {
	now := o.clock()
	prep := &preparation{}
	var in InitiateInput

	err := o.uow.WithinTx(ctx, func(tx TxContext) error {
		r, err := tx.Repayments().GetRepayment(ctx, tenantID, repaymentID)
		if err != nil {
			if errors.Is(err, ErrRecordNotFound) {
				return errs.NotFound("repayment", repaymentID)
			}
			return err
		}
		if r.Status != StatusScheduled {
			return errs.New(errs.CodeInvalidState, "repayment %s is %s, expected %s", r.ID, r.Status, StatusScheduled)
		}
		if r.ScheduledFor != nil && r.ScheduledFor.After(now) {
			return errs.New(errs.CodeInvalidState, "repayment %s is not due until %s", r.ID, r.ScheduledFor)
		}

		c, err := tx.Contracts().GetContract(ctx, tenantID, r.ContractID)
		if err != nil {
			return err
		}
		if c.Status != contract.StatusActive {
			return errs.New(errs.CodeInvalidState, "contract %s is %s, repayments require %s", c.ID, c.Status, contract.StatusActive)
		}
		inst, err := tx.Instruments().GetInstrument(ctx, tenantID, r.SourceInstrumentID)
		if err != nil {
			return err
		}
		caps := inst.Capabilities()
		decision, err := o.router.Route(routing.Request{
			Speed:       routing.SpeedStandard,
			Direction:   routing.DirectionDebit,
			AmountCents: r.AmountCents,
			Source:      caps,
			Now:         now,
		})
		if err != nil {
			return err
		}

		scratch := *c
		split, residual := contract.ApplyWaterfall(&scratch, r.AmountCents)
		if residual > 0 {
			return errs.InvalidRequest("scheduled repayment %s exceeds outstanding balance %s", r.AmountCents, c.OutstandingCents())
		}

		r.Status = StatusInitiated
		r.Applied = split
		if err := tx.Repayments().UpdateRepayment(ctx, r); err != nil {
			return err
		}

		prep.contract = c
		prep.instrument = inst
		prep.decision = decision
		prep.split = split
		prep.record = recordRef{kind: KindRepayment, id: r.ID}
		in = InitiateInput{
			TenantID:           tenantID,
			Kind:               KindRepayment,
			ContractID:         r.ContractID,
			AmountCents:        r.AmountCents,
			Speed:              routing.SpeedStandard,
			SourceInstrumentID: r.SourceInstrumentID,
			IdempotencyKey:     r.IdempotencyKey,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return o.execute(ctx, in, prep, now)
}

// RunDueScheduledRepayments initiates every SCHEDULED repayment due at or
// before now. Individual failures are logged and do not stop the sweep.
func (o *Orchestrator) RunDueScheduledRepayments(ctx context.Context, tenantID string) (int, error) {
	now := o.clock()
	var due []Repayment
	err := o.uow.WithinTx(ctx, func(tx TxContext) error {
		var err error
		due, err = tx.Repayments().ListDueScheduledRepayments(ctx, tenantID, now)
		return err
	})
	if err != nil {
		return 0, err
	}

	started := 0
	for _, r := range due {
		if _, err := o.InitiateScheduled(ctx, tenantID, r.ID); err != nil {
			log.Printf("transfer: scheduled repayment %s failed to start: %v", r.ID, err)
			continue
		}
		started++
	}
	return started, nil
}
