package transfer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bigfin/bigfind/internal/core/contract"
	"github.com/bigfin/bigfind/internal/core/errs"
	"github.com/bigfin/bigfind/internal/core/ledger"
	"github.com/bigfin/bigfind/internal/core/money"
	"github.com/bigfin/bigfind/internal/core/prefund"
	"github.com/bigfin/bigfind/internal/core/routing"
	"github.com/bigfin/bigfind/internal/idempotency"
	"github.com/bigfin/bigfind/internal/provider"
)

// Config carries the orchestrator knobs that come from configuration.
type Config struct {
	// PlatformAccountRef is the provider account holding the platform's
	// own payment methods.
	PlatformAccountRef string

	// ProviderTimeout bounds each provider call.
	ProviderTimeout time.Duration

	// Holds is the funds-availability hold policy.
	Holds HoldPolicy
}

// Orchestrator drives disbursements and repayments end to end: routing,
// provider initiation with rail fallback, idempotency capture and status
// ingestion.
type Orchestrator struct {
	uow      UnitOfWork
	ledger   *ledger.Engine
	router   *routing.Engine
	provider provider.PaymentProvider
	idem     *idempotency.Store
	cfg      Config
	clock    func() time.Time
}

// NewOrchestrator wires the orchestrator. idem may be nil, which disables
// caller idempotency capture (provider-side idempotency still applies).
func NewOrchestrator(uow UnitOfWork, eng *ledger.Engine, router *routing.Engine, pp provider.PaymentProvider, idem *idempotency.Store, cfg Config) *Orchestrator {
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = 15 * time.Second
	}
	return &Orchestrator{
		uow:      uow,
		ledger:   eng,
		router:   router,
		provider: pp,
		idem:     idem,
		cfg:      cfg,
		clock:    time.Now,
	}
}

// WithClock overrides the orchestrator clock. Test hook.
func (o *Orchestrator) WithClock(clock func() time.Time) *Orchestrator {
	o.clock = clock
	return o
}

// InitiateInput describes one transfer to start.
type InitiateInput struct {
	TenantID   string
	Kind       RecordKind
	ContractID string

	// AmountCents is the gross amount: principal for disbursements, the
	// collected amount for repayments.
	AmountCents money.Cents

	Speed routing.Speed

	// Source identifies where disbursement cash comes from. Ignored for
	// repayments.
	Source ledger.DisbursementSource

	// SourceInstrumentID is the borrower instrument debited by a
	// repayment. Ignored for disbursements.
	SourceInstrumentID string

	// DestinationInstrumentID is the borrower instrument credited by a
	// disbursement. Ignored for repayments.
	DestinationInstrumentID string

	IdempotencyKey string
	Actor          string
}

func (in *InitiateInput) validate() error {
	if in.TenantID == "" {
		return errs.InvalidRequest("tenant_id is required")
	}
	if in.ContractID == "" {
		return errs.InvalidRequest("contract_id is required")
	}
	if in.AmountCents <= 0 {
		return errs.InvalidRequest("amount_cents must be positive")
	}
	switch in.Kind {
	case KindDisbursement:
		if in.DestinationInstrumentID == "" {
			return errs.InvalidRequest("disbursement requires a destination instrument")
		}
		if in.Source != ledger.SourcePrefund && in.Source != ledger.SourceDirect {
			return errs.InvalidRequest("unknown disbursement source %q", in.Source)
		}
	case KindRepayment:
		if in.SourceInstrumentID == "" {
			return errs.InvalidRequest("repayment requires a source instrument")
		}
	default:
		return errs.InvalidRequest("unknown transfer kind %q", in.Kind)
	}
	switch in.Speed {
	case routing.SpeedStandard, routing.SpeedInstant:
	default:
		return errs.InvalidRequest("unknown speed %q", in.Speed)
	}
	return nil
}

// Provider payment-method types per rail. The credit map keys the
// destination side of disbursements; the debit map keys the source side of
// repayments. Instant rails are credit-only, so collections stay on ACH.
var creditMethodTypes = map[routing.Rail][]string{
	routing.RailRTP:        {"rtp-credit"},
	routing.RailFedNow:     {"fednow-credit"},
	routing.RailPushToCard: {"push-to-card"},
	routing.RailSameDayACH: {"ach-credit-same-day"},
	routing.RailACH:        {"ach-credit-standard"},
}

var debitMethodTypes = map[routing.Rail][]string{
	routing.RailSameDayACH: {"ach-debit-collect", "ach-debit-fund"},
	routing.RailACH:        {"ach-debit-collect", "ach-debit-fund"},
}

// / Platform-side method types: funding debits pull from the platform bank,
// collection credits land there.
var (
	platformFundTypes    = []string{"ach-debit-fund"}
	platformCollectTypes = []string{"ach-credit-standard"}
)

// txPrefundReader satisfies routing.PrefundReader against the prefund store
// of an already-open transaction.
type txPrefundReader struct {
	st prefund.Store
}

func (r txPrefundReader) AvailableBalance(ctx context.Context, tenantID, customerID string) (money.Cents, error) {
	latest, err := r.st.LatestCompleted(ctx, tenantID, customerID)
	if err != nil {
		if errors.Is(err, prefund.ErrNoTransactions) {
			return 0, nil
		}
		return 0, err
	}
	return latest.AvailableAfterCents, nil
}

func pickMethod(methods []provider.PaymentMethod, wanted []string) (string, bool) {
	for _, want := range wanted {
		for _, m := range methods {
			if m.Type == want {
				return m.ID, true
			}
		}
	}
	return "", false
}

// Initiate starts a transfer. Replays within the idempotency window return
// the originally captured result without touching the provider.
func (o *Orchestrator) Initiate(ctx context.Context, in InitiateInput) (*TransferResult, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	if replay, err := o.replayed(ctx, in.TenantID, in.IdempotencyKey); err != nil {
		return nil, err
	} else if replay != nil {
		return replay, nil
	}

	now := o.clock()
	prep, err := o.prepare(ctx, in, now)
	if err != nil {
		return nil, err
	}

	result, err := o.execute(ctx, in, prep, now)
	if err != nil {
		return nil, err
	}
	o.capture(ctx, in.TenantID, in.IdempotencyKey, result)
	return result, nil
}

// preparation is everything decided before the provider is called.
type preparation struct {
	contract   *contract.Contract
	instrument *FundingInstrument
	decision   *routing.Decision
	fee        money.Cents
	split      contract.Split
	record     recordRef
}

// recordRef addresses the persisted INITIATED record across transactions.
type recordRef struct {
	kind RecordKind
	id   string
}

// prepare validates the contract, routes the transfer, prices the fee and
// persists the INITIATED record (plus the prefund hold) in one transaction.
func (o *Orchestrator) prepare(ctx context.Context, in InitiateInput, now time.Time) (*preparation, error) {
	prep := &preparation{}
	err := o.uow.WithinTx(ctx, func(tx TxContext) error {
		c, err := tx.Contracts().GetContract(ctx, in.TenantID, in.ContractID)
		if err != nil {
			if errors.Is(err, contract.ErrContractNotFound) {
				return errs.NotFound("contract", in.ContractID)
			}
			return err
		}
		prep.contract = c

		instrumentID := in.DestinationInstrumentID
		direction := routing.DirectionCredit
		if in.Kind == KindRepayment {
			instrumentID = in.SourceInstrumentID
			direction = routing.DirectionDebit
		}
		inst, err := tx.Instruments().GetInstrument(ctx, in.TenantID, instrumentID)
		if err != nil {
			if errors.Is(err, ErrRecordNotFound) {
				return errs.NotFound("funding instrument", instrumentID)
			}
			return err
		}
		if inst.Status == InstrumentRemoved || inst.Status == InstrumentFailed {
			return errs.New(errs.CodeInstrumentInvalid, "instrument %s is %s", inst.ID, inst.Status)
		}
		prep.instrument = inst

		caps := inst.Capabilities()
		req := routing.Request{
			Speed:       in.Speed,
			Direction:   direction,
			AmountCents: in.AmountCents,
			Now:         now,
		}
		if direction == routing.DirectionCredit {
			req.Destination = &caps
		} else {
			req.Source = caps
		}
		decision, err := o.router.Route(req)
		if err != nil {
			return err
		}
		prep.decision = decision
		prep.fee = decision.FeeCents

		switch in.Kind {
		case KindDisbursement:
			if c.Status != contract.StatusPendingDisbursement {
				return errs.New(errs.CodeInvalidState, "contract %s is %s, disbursement requires %s", c.ID, c.Status, contract.StatusPendingDisbursement)
			}
			if in.AmountCents != c.PrincipalCents {
				return errs.InvalidRequest("disbursement amount %s does not match contract principal %s", in.AmountCents, c.PrincipalCents)
			}
			if in.Speed == routing.SpeedInstant {
				// The waiver reads availability through the open transaction;
				// a second unit of work here would deadlock single-writer
				// stores and could see a stale balance.
				quote, err := o.router.QuoteExpressFee(ctx, txPrefundReader{st: tx.Prefund()}, in.TenantID, c.LenderID, in.AmountCents)
				if err != nil {
					return err
				}
				prep.fee = quote.FeeCents
			}
			return o.insertDisbursement(ctx, tx, in, prep, now)

		case KindRepayment:
			if c.Status != contract.StatusActive {
				return errs.New(errs.CodeInvalidState, "contract %s is %s, repayments require %s", c.ID, c.Status, contract.StatusActive)
			}
			// The split is computed against current balances but applied
			// only at settlement; the copy leaves the contract untouched.
			scratch := *c
			split, residual := contract.ApplyWaterfall(&scratch, in.AmountCents)
			if residual > 0 {
				return errs.InvalidRequest("repayment %s exceeds outstanding balance %s", in.AmountCents, c.OutstandingCents())
			}
			prep.split = split
			return o.insertRepayment(ctx, tx, in, prep, now, nil)
		}
		return errs.InvalidRequest("unknown transfer kind %q", in.Kind)
	})
	if err != nil {
		return nil, err
	}
	return prep, nil
}

func (o *Orchestrator) insertDisbursement(ctx context.Context, tx TxContext, in InitiateInput, prep *preparation, now time.Time) error {
	d := &Disbursement{
		ID:                      uuid.NewString(),
		TenantID:                in.TenantID,
		ContractID:              in.ContractID,
		AmountCents:             in.AmountCents,
		ExpressFeeCents:         prep.fee,
		NetAmountCents:          in.AmountCents - prep.fee,
		Source:                  in.Source,
		DestinationInstrumentID: in.DestinationInstrumentID,
		Status:                  StatusInitiated,
		AvailabilityState:       AvailabilityInitiated,
		IdempotencyKey:          in.IdempotencyKey,
		CreatedAt:               now,
	}
	if d.NetAmountCents <= 0 {
		return errs.InvalidRequest("express fee %s consumes the whole principal", prep.fee)
	}
	if in.Source == ledger.SourcePrefund {
		// Encumber lender funds for the life of the transfer. The append
		// fails with INSUFFICIENT_FUNDS when availability cannot cover it.
		if _, err := prefund.Append(ctx, tx.Prefund(), in.TenantID, prep.contract.LenderID, prefund.TypeDisbursementHold, in.AmountCents, now); err != nil {
			return err
		}
	}
	if err := tx.Disbursements().InsertDisbursement(ctx, d); err != nil {
		return err
	}
	prep.record = recordRef{kind: KindDisbursement, id: d.ID}
	return nil
}

func (o *Orchestrator) insertRepayment(ctx context.Context, tx TxContext, in InitiateInput, prep *preparation, now time.Time, scheduledFor *time.Time) error {
	r := &Repayment{
		ID:                 uuid.NewString(),
		TenantID:           in.TenantID,
		ContractID:         in.ContractID,
		AmountCents:        in.AmountCents,
		SourceInstrumentID: in.SourceInstrumentID,
		Status:             StatusInitiated,
		AvailabilityState:  AvailabilityInitiated,
		Applied:            prep.split,
		IdempotencyKey:     in.IdempotencyKey,
		ScheduledFor:       scheduledFor,
		CreatedAt:          now,
	}
	if err := tx.Repayments().InsertRepayment(ctx, r); err != nil {
		return err
	}
	prep.record = recordRef{kind: KindRepayment, id: r.ID}
	return nil
}

// execute walks the selected rail and its fallback chain until the provider
// accepts a transfer, then records the acceptance. Exhausting every rail
// marks the record FAILED and surfaces PROVIDER_ERROR.
func (o *Orchestrator) execute(ctx context.Context, in InitiateInput, prep *preparation, now time.Time) (*TransferResult, error) {
	rails := append([]routing.Rail{prep.decision.Rail}, prep.decision.FallbackRails...)

	sourcePM, destPM, err := o.resolveEndpoints(ctx, in, prep)
	if err != nil {
		return nil, o.failRecord(ctx, in, prep, err.Error())
	}

	providerKey := in.IdempotencyKey
	if providerKey == "" {
		providerKey = prep.record.id
	}
	providerKey += "-transfer"

	// The borrower receives principal net of the express fee; the fee
	// itself never leaves the platform.
	amount := in.AmountCents
	if in.Kind == KindDisbursement {
		amount = in.AmountCents - prep.fee
	}

	var attempted []routing.Rail
	var lastErr error
	for _, rail := range rails {
		src, dst, ok := endpointsForRail(rail, in.Kind, sourcePM, destPM)
		if !ok {
			continue
		}
		attempted = append(attempted, rail)

		callCtx, cancel := context.WithTimeout(ctx, o.cfg.ProviderTimeout)
		tr, err := o.provider.CreateTransfer(callCtx, provider.CreateTransferInput{
			SourcePaymentMethodID:      src,
			DestinationPaymentMethodID: dst,
			AmountCents:                amount,
			Currency:                   "USD",
			Description:                fmt.Sprintf("%s for contract %s", in.Kind, in.ContractID),
			IdempotencyKey:             providerKey,
			Metadata: map[string]string{
				provider.MetadataTypeKey: string(in.Kind),
				"record_id":              prep.record.id,
				"tenant_id":              in.TenantID,
			},
		})
		cancel()
		if err != nil {
			lastErr = err
			log.Printf("transfer: rail %s rejected for %s %s: %v", rail, in.Kind, prep.record.id, err)
			continue
		}

		result, err := o.recordAcceptance(ctx, in, prep, rail, tr.ID, now)
		if err != nil {
			return nil, err
		}
		result.AttemptedRails = attempted
		return result, nil
	}

	reason := fmt.Sprintf("all rails exhausted: %s", joinRails(attempted))
	if err := o.failRecord(ctx, in, prep, reason); err != nil {
		return nil, err
	}
	return nil, errs.Wrap(errs.CodeProviderError, lastErr, "%s", reason).WithDetail("attempted_rails", attempted)
}

// resolveEndpoints lists payment methods for both sides once; rail
// filtering happens per attempt.
func (o *Orchestrator) resolveEndpoints(ctx context.Context, in InitiateInput, prep *preparation) (instrumentPMs, platformPMs []provider.PaymentMethod, err error) {
	callCtx, cancel := context.WithTimeout(ctx, o.cfg.ProviderTimeout)
	defer cancel()

	instrumentPMs, err = o.provider.ListPaymentMethods(callCtx, prep.instrument.ProviderRef)
	if err != nil {
		return nil, nil, err
	}
	platformPMs, err = o.provider.ListPaymentMethods(callCtx, o.cfg.PlatformAccountRef)
	if err != nil {
		return nil, nil, err
	}
	return instrumentPMs, platformPMs, nil
}

// endpointsForRail maps a rail to the concrete source and destination
// payment-method ids, or reports the rail unusable for these endpoints.
func endpointsForRail(rail routing.Rail, kind RecordKind, instrumentPMs, platformPMs []provider.PaymentMethod) (src, dst string, ok bool) {
	if kind == KindDisbursement {
		src, ok = pickMethod(platformPMs, platformFundTypes)
		if !ok {
			return "", "", false
		}
		dst, ok = pickMethod(instrumentPMs, creditMethodTypes[rail])
		return src, dst, ok
	}
	src, ok = pickMethod(instrumentPMs, debitMethodTypes[rail])
	if !ok {
		return "", "", false
	}
	dst, ok = pickMethod(platformPMs, platformCollectTypes)
	return src, dst, ok
}

// recordAcceptance flips the record to PENDING with the provider reference
// and builds the caller result.
func (o *Orchestrator) recordAcceptance(ctx context.Context, in InitiateInput, prep *preparation, rail routing.Rail, providerRef string, now time.Time) (*TransferResult, error) {
	result := &TransferResult{
		RecordID:       prep.record.id,
		Kind:           in.Kind,
		ContractID:     in.ContractID,
		ProviderRef:    providerRef,
		Rail:           rail,
		Status:         string(provider.StatusProcessing),
		AmountCents:    in.AmountCents,
		FeeCents:       prep.fee,
		NetAmountCents: in.AmountCents - prep.fee,
		Reason:         prep.decision.Reason,
	}
	err := o.uow.WithinTx(ctx, func(tx TxContext) error {
		switch in.Kind {
		case KindDisbursement:
			d, err := tx.Disbursements().GetDisbursement(ctx, in.TenantID, prep.record.id)
			if err != nil {
				return err
			}
			d.Status = StatusPending
			d.AvailabilityState = AvailabilityPending
			d.ProviderRef = providerRef
			d.Rail = rail
			d.InitiatedAt = &now
			result.EstimatedArrival = o.router.EstimateArrival(rail, now)
			return tx.Disbursements().UpdateDisbursement(ctx, d)
		default:
			r, err := tx.Repayments().GetRepayment(ctx, in.TenantID, prep.record.id)
			if err != nil {
				return err
			}
			r.Status = StatusPending
			r.AvailabilityState = AvailabilityPending
			r.ProviderRef = providerRef
			r.Rail = rail
			r.InitiatedAt = &now
			result.EstimatedArrival = o.router.EstimateArrival(rail, now)
			return tx.Repayments().UpdateRepayment(ctx, r)
		}
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// failRecord marks the record FAILED and releases any prefund hold, in one
// transaction.
func (o *Orchestrator) failRecord(ctx context.Context, in InitiateInput, prep *preparation, reason string) error {
	now := o.clock()
	return o.uow.WithinTx(ctx, func(tx TxContext) error {
		switch prep.record.kind {
		case KindDisbursement:
			d, err := tx.Disbursements().GetDisbursement(ctx, in.TenantID, prep.record.id)
			if err != nil {
				return err
			}
			d.Status = StatusFailed
			d.AvailabilityState = AvailabilityFailed
			d.FailedAt = &now
			d.FailureReason = reason
			if d.Source == ledger.SourcePrefund {
				if _, err := prefund.Append(ctx, tx.Prefund(), in.TenantID, prep.contract.LenderID, prefund.TypeDisbursementRelease, d.AmountCents, now); err != nil {
					return err
				}
			}
			return tx.Disbursements().UpdateDisbursement(ctx, d)
		default:
			r, err := tx.Repayments().GetRepayment(ctx, in.TenantID, prep.record.id)
			if err != nil {
				return err
			}
			r.Status = StatusFailed
			r.AvailabilityState = AvailabilityFailed
			r.FailedAt = &now
			r.FailureReason = reason
			return tx.Repayments().UpdateRepayment(ctx, r)
		}
	})
}

// replayed returns the captured result for a seen idempotency key.
func (o *Orchestrator) replayed(ctx context.Context, tenantID, key string) (*TransferResult, error) {
	if o.idem == nil || key == "" {
		return nil, nil
	}
	rec, err := o.idem.Get(ctx, idemKey(tenantID, key))
	if err != nil || rec == nil {
		return nil, err
	}
	var result TransferResult
	if err := json.Unmarshal(rec.Response, &result); err != nil {
		return nil, errs.Internal(err, "corrupt idempotency record for key %s", key)
	}
	return &result, nil
}

// capture stores the result under the idempotency key. Capture failures are
// logged, not surfaced: the transfer already happened.
func (o *Orchestrator) capture(ctx context.Context, tenantID, key string, result *TransferResult) {
	if o.idem == nil || key == "" {
		return
	}
	payload, err := json.Marshal(result)
	if err == nil {
		_, err = o.idem.Put(ctx, idemKey(tenantID, key), payload, 201)
	}
	if err != nil {
		log.Printf("transfer: idempotency capture failed for key %s: %v", key, err)
	}
}

func idemKey(tenantID, key string) string {
	return "transfer/" + tenantID + "/" + key
}

func joinRails(rails []routing.Rail) string {
	parts := make([]string, len(rails))
	for i, r := range rails {
		parts[i] = string(r)
	}
	return strings.Join(parts, ", ")
}

// GetDisbursement returns one disbursement record.
func (o *Orchestrator) GetDisbursement(ctx context.Context, tenantID, id string) (*Disbursement, error) {
	var out *Disbursement
	err := o.uow.WithinTx(ctx, func(tx TxContext) error {
		d, err := tx.Disbursements().GetDisbursement(ctx, tenantID, id)
		if err != nil {
			if errors.Is(err, ErrRecordNotFound) {
				return errs.NotFound("disbursement", id)
			}
			return err
		}
		out = d
		return nil
	})
	return out, err
}

// GetRepayment returns one repayment record.
func (o *Orchestrator) GetRepayment(ctx context.Context, tenantID, id string) (*Repayment, error) {
	var out *Repayment
	err := o.uow.WithinTx(ctx, func(tx TxContext) error {
		r, err := tx.Repayments().GetRepayment(ctx, tenantID, id)
		if err != nil {
			if errors.Is(err, ErrRecordNotFound) {
				return errs.NotFound("repayment", id)
			}
			return err
		}
		out = r
		return nil
	})
	return out, err
}

// Cancel requests cancellation of an in-flight transfer. A record the
// provider never accepted is cancelled locally; otherwise the provider is
// asked and the final state arrives through status ingestion.
func (o *Orchestrator) Cancel(ctx context.Context, tenantID string, kind RecordKind, id string) error {
	var providerRef string
	err := o.uow.WithinTx(ctx, func(tx TxContext) error {
		now := o.clock()
		switch kind {
		case KindDisbursement:
			d, err := tx.Disbursements().GetDisbursement(ctx, tenantID, id)
			if err != nil {
				if errors.Is(err, ErrRecordNotFound) {
					return errs.NotFound("disbursement", id)
				}
				return err
			}
			if d.Status.Terminal() {
				return errs.New(errs.CodeInvalidState, "disbursement %s is already %s", id, d.Status)
			}
			if d.ProviderRef == "" {
				d.Status = StatusCancelled
				d.AvailabilityState = AvailabilityFailed
				d.FailedAt = &now
				if d.Source == ledger.SourcePrefund {
					c, err := tx.Contracts().GetContract(ctx, tenantID, d.ContractID)
					if err != nil {
						return err
					}
					if _, err := prefund.Append(ctx, tx.Prefund(), tenantID, c.LenderID, prefund.TypeDisbursementRelease, d.AmountCents, now); err != nil {
						return err
					}
				}
				return tx.Disbursements().UpdateDisbursement(ctx, d)
			}
			providerRef = d.ProviderRef
			return nil
		case KindRepayment:
			r, err := tx.Repayments().GetRepayment(ctx, tenantID, id)
			if err != nil {
				if errors.Is(err, ErrRecordNotFound) {
					return errs.NotFound("repayment", id)
				}
				return err
			}
			if r.Status.Terminal() {
				return errs.New(errs.CodeInvalidState, "repayment %s is already %s", id, r.Status)
			}
			if r.ProviderRef == "" {
				r.Status = StatusCancelled
				r.AvailabilityState = AvailabilityFailed
				r.FailedAt = &now
				return tx.Repayments().UpdateRepayment(ctx, r)
			}
			providerRef = r.ProviderRef
			return nil
		}
		return errs.InvalidRequest("unknown transfer kind %q", kind)
	})
	if err != nil || providerRef == "" {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, o.cfg.ProviderTimeout)
	defer cancel()
	if err := o.provider.Cancel(callCtx, providerRef); err != nil {
		return errs.Wrap(errs.CodeProviderError, err, "cancel of %s rejected", providerRef)
	}
	return nil
}
