package recon

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bigfin/bigfind/internal/core/ledger"
	"github.com/bigfin/bigfind/internal/core/money"
	"github.com/bigfin/bigfind/internal/core/prefund"
	"github.com/bigfin/bigfind/internal/core/transfer"
	"github.com/bigfin/bigfind/internal/provider"
)

// Config carries the reconciliation knobs.
type Config struct {
	// DryRun reports exceptions without persisting corrections.
	DryRun bool

	// AutoResolve lets benign status lags be corrected by replaying the
	// provider status through normal ingestion.
	AutoResolve bool

	// Window is the lookback applied when the caller gives no explicit
	// window.
	Window time.Duration
}

// Engine runs reconciliation over one tenant at a time.
type Engine struct {
	store    Store
	uow      transfer.UnitOfWork
	provider provider.PaymentProvider
	ledger   *ledger.Engine
	orch     *transfer.Orchestrator
	cfg      Config
	clock    func() time.Time
}

// NewEngine wires the reconciliation engine.
func NewEngine(store Store, uow transfer.UnitOfWork, pp provider.PaymentProvider, eng *ledger.Engine, orch *transfer.Orchestrator, cfg Config) *Engine {
	if cfg.Window <= 0 {
		cfg.Window = 7 * 24 * time.Hour
	}
	return &Engine{
		store:    store,
		uow:      uow,
		provider: pp,
		ledger:   eng,
		orch:     orch,
		cfg:      cfg,
		clock:    time.Now,
	}
}

// WithClock overrides the engine clock. Test hook.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	return e
}

// Report summarises one finished run.
type Report struct {
	Run        *Run
	Exceptions []Exception
}

// collector gathers exceptions from concurrent checks.
type collector struct {
	mu         sync.Mutex
	exceptions []Exception
}

func (c *collector) add(ex Exception) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exceptions = append(c.exceptions, ex)
}

// RunOptions narrows one run. The zero value reconciles every check over
// the configured window with the configured dry-run setting.
type RunOptions struct {
	// PeriodStart and PeriodEnd bound the matching window. An unset start
	// defaults to the end minus the configured window; an unset end
	// defaults to now.
	PeriodStart *time.Time
	PeriodEnd   *time.Time

	// Types restricts the run to the checks able to produce these
	// exception types. Empty runs every check.
	Types []ExceptionType

	// DryRun forces reporting-only for this run.
	DryRun bool
}

// wants reports whether any of the given exception types is selected.
func (o RunOptions) wants(types ...ExceptionType) bool {
	if len(o.Types) == 0 {
		return true
	}
	for _, sel := range o.Types {
		for _, t := range types {
			if sel == t {
				return true
			}
		}
	}
	return false
}

// Run executes the selected reconciliation checks for the tenant over the
// window. The run row is persisted first, marked FAILED if any check errors
// out, and finished with exception counts otherwise.
func (e *Engine) Run(ctx context.Context, tenantID string, opts RunOptions) (*Report, error) {
	now := e.clock()
	windowEnd := now
	if opts.PeriodEnd != nil {
		windowEnd = *opts.PeriodEnd
	}
	windowStart := windowEnd.Add(-e.cfg.Window)
	if opts.PeriodStart != nil {
		windowStart = *opts.PeriodStart
	}
	dryRun := e.cfg.DryRun || opts.DryRun

	run := &Run{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		Status:      RunRunning,
		DryRun:      dryRun,
		StartedAt:   now,
	}
	if err := e.store.InsertRun(ctx, run); err != nil {
		return nil, err
	}

	col := &collector{}
	g, gctx := errgroup.WithContext(ctx)
	if opts.wants(ExceptionTransferStatus, ExceptionTransferMissing, ExceptionTransferOrphaned, ExceptionAmountMismatch) {
		g.Go(func() error { return e.matchTransfers(gctx, tenantID, windowStart, windowEnd, col) })
	}
	if opts.wants(ExceptionLedgerImbalance) {
		g.Go(func() error { return e.checkLedger(gctx, tenantID, col) })
	}
	if opts.wants(ExceptionPrefundMismatch) {
		g.Go(func() error { return e.checkPrefund(gctx, tenantID, col) })
	}

	if err := g.Wait(); err != nil {
		finished := e.clock()
		run.Status = RunFailed
		run.Error = err.Error()
		run.FinishedAt = &finished
		if uerr := e.store.UpdateRun(ctx, run); uerr != nil {
			log.Printf("recon: run %s could not be marked failed: %v", run.ID, uerr)
		}
		return nil, err
	}

	exceptions := col.exceptions
	for i := range exceptions {
		ex := &exceptions[i]
		ex.ID = uuid.NewString()
		ex.RunID = run.ID
		ex.TenantID = tenantID
		ex.Status = ExceptionOpen
		ex.CreatedAt = now

		if e.autoResolvable(ex, dryRun) {
			if err := e.resolve(ctx, tenantID, ex); err != nil {
				log.Printf("recon: auto-resolution of %s failed: %v", ex.ProviderRef, err)
			} else {
				resolved := e.clock()
				ex.Status = ExceptionResolved
				ex.ResolutionType = ResolutionAutoCorrected
				ex.ResolvedAt = &resolved
				run.AutoResolvedCount++
			}
		}
		if err := e.store.InsertException(ctx, ex); err != nil {
			return nil, err
		}
	}

	finished := e.clock()
	run.Status = RunCompleted
	run.ExceptionCount = len(exceptions)
	run.FinishedAt = &finished
	if err := e.store.UpdateRun(ctx, run); err != nil {
		return nil, err
	}
	return &Report{Run: run, Exceptions: exceptions}, nil
}

// autoResolvable limits automatic correction to the benign case: the
// provider settled, the webhook never landed, and the amounts agree.
func (e *Engine) autoResolvable(ex *Exception, dryRun bool) bool {
	if !e.cfg.AutoResolve || dryRun || e.orch == nil {
		return false
	}
	return ex.Type == ExceptionTransferStatus &&
		ex.ProviderStatus == provider.StatusCompleted &&
		(ex.LocalStatus == transfer.StatusPending || ex.LocalStatus == transfer.StatusInitiated) &&
		ex.DiscrepancyCents == 0
}

// resolve replays the provider status through normal ingestion so the
// correction takes the same path a webhook would have.
func (e *Engine) resolve(ctx context.Context, tenantID string, ex *Exception) error {
	return e.orch.ProcessStatusUpdate(ctx, tenantID, provider.StatusUpdate{
		ProviderRef: ex.ProviderRef,
		Status:      ex.ProviderStatus,
		OccurredAt:  e.clock(),
	})
}

// orphanGrace is how long a local record may sit unmatched at the provider
// before it is flagged; younger records are presumed in flight.
const orphanGrace = 24 * time.Hour

// localRecord is the kind-independent view transfer matching works on.
type localRecord struct {
	kind        transfer.RecordKind
	id          string
	providerRef string
	status      transfer.Status
	amount      money.Cents
	initiatedAt *time.Time
}

// matchTransfers cross-checks local records against the provider's
// transfers for the window.
func (e *Engine) matchTransfers(ctx context.Context, tenantID string, start, end time.Time, col *collector) error {
	var locals []localRecord
	err := e.uow.WithinTx(ctx, func(tx transfer.TxContext) error {
		disbs, err := tx.Disbursements().ListDisbursementsInitiatedBetween(ctx, tenantID, start, end)
		if err != nil {
			return err
		}
		for _, d := range disbs {
			locals = append(locals, localRecord{
				kind: transfer.KindDisbursement, id: d.ID, providerRef: d.ProviderRef,
				status: d.Status, amount: d.NetAmountCents, initiatedAt: d.InitiatedAt,
			})
		}
		repays, err := tx.Repayments().ListRepaymentsInitiatedBetween(ctx, tenantID, start, end)
		if err != nil {
			return err
		}
		for _, r := range repays {
			locals = append(locals, localRecord{
				kind: transfer.KindRepayment, id: r.ID, providerRef: r.ProviderRef,
				status: r.Status, amount: r.AmountCents, initiatedAt: r.InitiatedAt,
			})
		}
		return nil
	})
	if err != nil {
		return err
	}

	remote, err := e.provider.ListTransfers(ctx, provider.Window{Start: start, End: end})
	if err != nil {
		return err
	}
	remoteByID := make(map[string]*provider.Transfer, len(remote))
	for i := range remote {
		remoteByID[remote[i].ID] = &remote[i]
	}

	grace := e.clock().Add(-orphanGrace)
	matched := make(map[string]bool, len(locals))
	for _, local := range locals {
		if local.providerRef == "" {
			// Never reached the provider; nothing to match against.
			continue
		}
		tr, ok := remoteByID[local.providerRef]
		if !ok {
			if local.initiatedAt == nil || local.initiatedAt.After(grace) {
				// In flight; the provider may simply not list it yet.
				continue
			}
			col.add(Exception{
				Type:        ExceptionTransferOrphaned,
				Severity:    SeverityHigh,
				Kind:        local.kind,
				RecordID:    local.id,
				ProviderRef: local.providerRef,
				LocalStatus: local.status,
				Detail:      fmt.Sprintf("provider has no transfer %s", local.providerRef),
			})
			continue
		}
		matched[local.providerRef] = true

		expected, known := expectedStatus(local.kind, tr.Status)
		if known && expected != local.status {
			col.add(Exception{
				Type:           ExceptionTransferStatus,
				Severity:       severityForStatus(local.status, tr.Status),
				Kind:           local.kind,
				RecordID:       local.id,
				ProviderRef:    local.providerRef,
				LocalStatus:    local.status,
				ProviderStatus: tr.Status,
				Detail:         fmt.Sprintf("local %s, provider reports %s", local.status, tr.Status),
			})
			continue
		}

		// Amounts are only comparable once the statuses agree.
		if tr.AmountCents != local.amount {
			diff := (local.amount - tr.AmountCents).Abs()
			col.add(Exception{
				Type:             ExceptionAmountMismatch,
				Severity:         severityForAmount(diff),
				Kind:             local.kind,
				RecordID:         local.id,
				ProviderRef:      local.providerRef,
				LocalStatus:      local.status,
				ProviderStatus:   tr.Status,
				DiscrepancyCents: diff,
				Detail:           fmt.Sprintf("local %s vs provider %s", local.amount, tr.AmountCents),
			})
		}
	}

	for _, tr := range remote {
		if matched[tr.ID] || knownLocally(locals, tr.ID) {
			continue
		}
		// Only transfers the metadata marks as ours are expected to have a
		// local record; anything else on the provider account is not this
		// engine's concern.
		kind := transfer.RecordKind(tr.Metadata[provider.MetadataTypeKey])
		if kind != transfer.KindDisbursement && kind != transfer.KindRepayment {
			continue
		}
		col.add(Exception{
			Type:           ExceptionTransferMissing,
			Severity:       SeverityHigh,
			Kind:           kind,
			ProviderRef:    tr.ID,
			ProviderStatus: tr.Status,
			Detail:         fmt.Sprintf("provider transfer %s (%s, %s) has no local record", tr.ID, tr.Status, tr.AmountCents),
		})
	}
	return nil
}

func knownLocally(locals []localRecord, providerRef string) bool {
	for _, l := range locals {
		if l.providerRef == providerRef {
			return true
		}
	}
	return false
}

// checkLedger verifies the tenant's trial balance nets to zero.
func (e *Engine) checkLedger(ctx context.Context, tenantID string, col *collector) error {
	tb, err := e.ledger.GetTrialBalance(ctx, tenantID)
	if err != nil {
		return err
	}
	if tb.IsBalanced {
		return nil
	}
	diff := tb.TotalDebitCents - tb.TotalCreditCents
	col.add(Exception{
		Type:             ExceptionLedgerImbalance,
		Severity:         SeverityCritical,
		DiscrepancyCents: diff,
		Detail:           fmt.Sprintf("trial balance off by %s (debits %s, credits %s)", diff, tb.TotalDebitCents, tb.TotalCreditCents),
	})
	return nil
}

// checkPrefund folds every customer's trail and compares it against the
// recorded available balance.
func (e *Engine) checkPrefund(ctx context.Context, tenantID string, col *collector) error {
	return e.uow.WithinTx(ctx, func(tx transfer.TxContext) error {
		customers, err := tx.Prefund().ListCustomers(ctx, tenantID)
		if err != nil {
			return err
		}
		for _, customerID := range customers {
			txs, err := tx.Prefund().ListCompleted(ctx, tenantID, customerID)
			if err != nil {
				return err
			}
			if len(txs) == 0 {
				continue
			}
			folded := prefund.Fold(txs)
			recorded := txs[len(txs)-1].AvailableAfterCents
			if folded == recorded {
				continue
			}
			diff := recorded - folded
			col.add(Exception{
				Type:             ExceptionPrefundMismatch,
				Severity:         severityForAmount(diff),
				RecordID:         customerID,
				DiscrepancyCents: diff,
				Detail:           fmt.Sprintf("customer %s trail folds to %s but records %s", customerID, folded, recorded),
			})
		}
		return nil
	})
}
