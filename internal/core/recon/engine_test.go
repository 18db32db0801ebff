package recon_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigfin/bigfind/internal/core/accounts"
	"github.com/bigfin/bigfind/internal/core/contract"
	"github.com/bigfin/bigfind/internal/core/ledger"
	"github.com/bigfin/bigfind/internal/core/money"
	"github.com/bigfin/bigfind/internal/core/prefund"
	"github.com/bigfin/bigfind/internal/core/recon"
	"github.com/bigfin/bigfind/internal/core/routing"
	"github.com/bigfin/bigfind/internal/core/transfer"
	"github.com/bigfin/bigfind/internal/provider"
	"github.com/bigfin/bigfind/internal/storage/memory"
)

const (
	tenantID    = "tenant-1"
	lenderID    = "lender-1"
	platformRef = "acct-platform"
	borrowerRef = "acct-borrower"
)

// harness freezes one clock across the orchestrator, provider and recon
// engine so window arithmetic is deterministic.
type harness struct {
	store *memory.Store
	eng   *ledger.Engine
	pp    *provider.MemoryProvider
	funds *prefund.Service
	orch  *transfer.Orchestrator
	rec   *recon.Engine
	now   time.Time
}

func newHarness(t *testing.T, cfg recon.Config) *harness {
	t.Helper()
	store := memory.New()
	eng := ledger.NewEngine(store.LedgerStore())
	require.NoError(t, eng.SeedChart(context.Background(), accounts.DefaultChart()))

	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	router := routing.NewEngine(routing.DefaultFeeSchedule(), routing.NewArrivalEstimator(loc))

	h := &harness{
		store: store,
		eng:   eng,
		now:   time.Date(2026, 3, 3, 10, 0, 0, 0, loc),
	}
	clock := func() time.Time { return h.now }

	h.pp = provider.NewMemoryProvider().WithClock(clock)
	h.pp.RegisterPaymentMethods(platformRef,
		provider.PaymentMethod{ID: "pm-platform-fund", Type: "ach-debit-fund"},
		provider.PaymentMethod{ID: "pm-platform-collect", Type: "ach-credit-standard"},
	)
	h.pp.RegisterPaymentMethods(borrowerRef,
		provider.PaymentMethod{ID: "pm-ach-credit", Type: "ach-credit-standard"},
		provider.PaymentMethod{ID: "pm-ach-debit", Type: "ach-debit-collect"},
	)

	h.funds = prefund.NewService(store.PrefundUnits(), eng)
	h.orch = transfer.NewOrchestrator(store.TransferUnits(), eng, router, h.pp, nil, transfer.Config{
		PlatformAccountRef: platformRef,
		ProviderTimeout:    5 * time.Second,
	}).WithClock(clock)
	h.rec = recon.NewEngine(store, store.TransferUnits(), h.pp, eng, h.orch, cfg).WithClock(clock)
	return h
}

// startRepayment seeds an active contract and initiates a 10,000 cent
// standard repayment, leaving the record PENDING at the provider.
func (h *harness) startRepayment(t *testing.T) *transfer.TransferResult {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.store.InsertContract(ctx, &contract.Contract{
		ID:                    "c-1",
		TenantID:              tenantID,
		LenderID:              lenderID,
		Status:                contract.StatusActive,
		PrincipalCents:        50_000,
		PrincipalBalanceCents: 50_000,
		CreatedAt:             h.now,
	}))
	require.NoError(t, h.store.InsertInstrument(ctx, &transfer.FundingInstrument{
		ID:          "inst-1",
		TenantID:    tenantID,
		Type:        routing.InstrumentBankAccount,
		Status:      transfer.InstrumentVerified,
		ProviderRef: borrowerRef,
		CreatedAt:   h.now,
	}))

	res, err := h.orch.Initiate(ctx, transfer.InitiateInput{
		TenantID:           tenantID,
		Kind:               transfer.KindRepayment,
		ContractID:         "c-1",
		AmountCents:        10_000,
		Speed:              routing.SpeedStandard,
		SourceInstrumentID: "inst-1",
	})
	require.NoError(t, err)
	return res
}

func exceptionTypes(exceptions []recon.Exception) map[recon.ExceptionType]recon.Exception {
	out := make(map[recon.ExceptionType]recon.Exception, len(exceptions))
	for _, ex := range exceptions {
		out[ex.Type] = ex
	}
	return out
}

func TestCleanRunProducesNoExceptions(t *testing.T) {
	h := newHarness(t, recon.Config{Window: 24 * time.Hour})
	ctx := context.Background()
	res := h.startRepayment(t)

	require.NoError(t, h.pp.SettleTransfer(res.ProviderRef, provider.StatusCompleted, ""))
	require.NoError(t, h.orch.ProcessStatusUpdate(ctx, tenantID, provider.StatusUpdate{
		ProviderRef: res.ProviderRef,
		Status:      provider.StatusCompleted,
		OccurredAt:  h.now,
	}))

	report, err := h.rec.Run(ctx, tenantID, recon.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, recon.RunCompleted, report.Run.Status)
	assert.Empty(t, report.Exceptions)
	assert.Zero(t, report.Run.ExceptionCount)

	// The run row is persisted and queryable.
	run, err := h.store.GetRun(ctx, tenantID, report.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, recon.RunCompleted, run.Status)
	require.NotNil(t, run.FinishedAt)
}

func TestStatusLagAutoResolved(t *testing.T) {
	h := newHarness(t, recon.Config{Window: 24 * time.Hour, AutoResolve: true})
	ctx := context.Background()
	res := h.startRepayment(t)

	// The provider settled but the webhook never arrived.
	require.NoError(t, h.pp.SettleTransfer(res.ProviderRef, provider.StatusCompleted, ""))

	report, err := h.rec.Run(ctx, tenantID, recon.RunOptions{})
	require.NoError(t, err)
	require.Len(t, report.Exceptions, 1)

	ex := report.Exceptions[0]
	assert.Equal(t, recon.ExceptionTransferStatus, ex.Type)
	assert.Equal(t, recon.ExceptionResolved, ex.Status)
	assert.Equal(t, recon.ResolutionAutoCorrected, ex.ResolutionType)
	require.NotNil(t, ex.ResolvedAt)
	assert.Equal(t, recon.SeverityHigh, ex.Severity)
	assert.Equal(t, 1, report.Run.AutoResolvedCount)

	// The correction took the normal ingestion path.
	r, err := h.orch.GetRepayment(ctx, tenantID, res.RecordID)
	require.NoError(t, err)
	assert.Equal(t, transfer.StatusCompleted, r.Status)

	c, err := h.store.GetContract(ctx, tenantID, "c-1")
	require.NoError(t, err)
	assert.Equal(t, money.Cents(40_000), c.PrincipalBalanceCents)

	// Persisted exceptions carry distinct ids and the run reference.
	stored, err := h.store.ListExceptions(ctx, tenantID, report.Run.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.NotEmpty(t, stored[0].ID)
}

func TestDryRunReportsWithoutCorrecting(t *testing.T) {
	h := newHarness(t, recon.Config{Window: 24 * time.Hour, AutoResolve: true, DryRun: true})
	ctx := context.Background()
	res := h.startRepayment(t)
	require.NoError(t, h.pp.SettleTransfer(res.ProviderRef, provider.StatusCompleted, ""))

	report, err := h.rec.Run(ctx, tenantID, recon.RunOptions{})
	require.NoError(t, err)
	assert.True(t, report.Run.DryRun)
	require.Len(t, report.Exceptions, 1)
	assert.Equal(t, recon.ExceptionOpen, report.Exceptions[0].Status)
	assert.Zero(t, report.Run.AutoResolvedCount)

	r, err := h.orch.GetRepayment(ctx, tenantID, res.RecordID)
	require.NoError(t, err)
	assert.Equal(t, transfer.StatusPending, r.Status)
}

func TestAmountMismatch(t *testing.T) {
	h := newHarness(t, recon.Config{Window: 24 * time.Hour})
	ctx := context.Background()
	res := h.startRepayment(t)

	h.pp.OverrideAmount(res.ProviderRef, 9_000)

	report, err := h.rec.Run(ctx, tenantID, recon.RunOptions{})
	require.NoError(t, err)
	types := exceptionTypes(report.Exceptions)

	// Statuses agree, so the disagreement is purely monetary and the
	// discrepancy is reported as a magnitude.
	ex, ok := types[recon.ExceptionAmountMismatch]
	require.True(t, ok)
	assert.Equal(t, money.Cents(1_000), ex.DiscrepancyCents)
	assert.Equal(t, recon.SeverityMedium, ex.Severity)
	assert.Equal(t, res.RecordID, ex.RecordID)
}

func TestAmountCheckDeferredBehindStatusLag(t *testing.T) {
	h := newHarness(t, recon.Config{Window: 24 * time.Hour})
	ctx := context.Background()
	res := h.startRepayment(t)

	// Both the status and the amount disagree: only the status exception is
	// raised until the statuses converge.
	h.pp.OverrideAmount(res.ProviderRef, 9_000)
	require.NoError(t, h.pp.SettleTransfer(res.ProviderRef, provider.StatusCompleted, ""))

	report, err := h.rec.Run(ctx, tenantID, recon.RunOptions{})
	require.NoError(t, err)
	types := exceptionTypes(report.Exceptions)

	_, ok := types[recon.ExceptionTransferStatus]
	assert.True(t, ok)
	_, ok = types[recon.ExceptionAmountMismatch]
	assert.False(t, ok)
}

func TestMissingAndOrphanedTransfers(t *testing.T) {
	h := newHarness(t, recon.Config{Window: 7 * 24 * time.Hour})
	ctx := context.Background()
	res := h.startRepayment(t)

	// Point the local record at a reference the provider never issued. The
	// provider's real transfer then has no local owner either.
	r, err := h.store.GetRepayment(ctx, tenantID, res.RecordID)
	require.NoError(t, err)
	r.ProviderRef = "tr-vanished"
	require.NoError(t, h.store.UpdateRepayment(ctx, r))

	// A day and change later the record is no longer presumed in flight.
	h.now = h.now.Add(30 * time.Hour)

	report, err := h.rec.Run(ctx, tenantID, recon.RunOptions{})
	require.NoError(t, err)
	types := exceptionTypes(report.Exceptions)

	orphan, ok := types[recon.ExceptionTransferOrphaned]
	require.True(t, ok)
	assert.Equal(t, recon.SeverityHigh, orphan.Severity)
	assert.Equal(t, "tr-vanished", orphan.ProviderRef)
	assert.Equal(t, res.RecordID, orphan.RecordID)

	missing, ok := types[recon.ExceptionTransferMissing]
	require.True(t, ok)
	assert.Equal(t, recon.SeverityHigh, missing.Severity)
	assert.Equal(t, res.ProviderRef, missing.ProviderRef)
	assert.Equal(t, transfer.KindRepayment, missing.Kind)
}

func TestFreshUnlistedRecordNotOrphaned(t *testing.T) {
	h := newHarness(t, recon.Config{Window: 24 * time.Hour})
	ctx := context.Background()
	res := h.startRepayment(t)

	r, err := h.store.GetRepayment(ctx, tenantID, res.RecordID)
	require.NoError(t, err)
	r.ProviderRef = "tr-vanished"
	require.NoError(t, h.store.UpdateRepayment(ctx, r))

	// Initiated moments ago: the provider listing may simply lag.
	report, err := h.rec.Run(ctx, tenantID, recon.RunOptions{})
	require.NoError(t, err)
	types := exceptionTypes(report.Exceptions)

	_, ok := types[recon.ExceptionTransferOrphaned]
	assert.False(t, ok)
}

func TestForeignProviderTransferIgnored(t *testing.T) {
	h := newHarness(t, recon.Config{Window: 24 * time.Hour})
	ctx := context.Background()

	// A transfer on the same provider account that this platform did not
	// create: no domain type in the metadata, so matching skips it.
	_, err := h.pp.CreateTransfer(ctx, provider.CreateTransferInput{
		SourcePaymentMethodID:      "pm-platform-fund",
		DestinationPaymentMethodID: "pm-ach-credit",
		AmountCents:                5_000,
		Currency:                   "USD",
		IdempotencyKey:             "external-1",
	})
	require.NoError(t, err)

	report, err := h.rec.Run(ctx, tenantID, recon.RunOptions{})
	require.NoError(t, err)
	assert.Empty(t, report.Exceptions)
}

func TestLedgerImbalanceIsCritical(t *testing.T) {
	h := newHarness(t, recon.Config{Window: 24 * time.Hour})
	ctx := context.Background()

	// A journal written behind the engine's back with a lone debit.
	require.NoError(t, h.store.InsertJournal(ctx, &ledger.Journal{
		ID:       uuid.NewString(),
		TenantID: tenantID,
		Type:     ledger.JournalAdjustment,
		Entries: []ledger.Entry{
			{AccountCode: accounts.CashPrefund, DebitCents: 1_000, CreatedAt: h.now},
		},
		CreatedAt: h.now,
	}))

	report, err := h.rec.Run(ctx, tenantID, recon.RunOptions{})
	require.NoError(t, err)
	types := exceptionTypes(report.Exceptions)

	ex, ok := types[recon.ExceptionLedgerImbalance]
	require.True(t, ok)
	assert.Equal(t, recon.SeverityCritical, ex.Severity)
	assert.Equal(t, money.Cents(1_000), ex.DiscrepancyCents)
}

func TestPrefundTrailMismatch(t *testing.T) {
	h := newHarness(t, recon.Config{Window: 24 * time.Hour})
	ctx := context.Background()

	_, err := h.funds.Deposit(ctx, tenantID, lenderID, 50_000, "ops")
	require.NoError(t, err)

	// Corrupt the trail: the recorded running balances disagree with what
	// folding the amounts yields.
	require.NoError(t, h.store.AppendTransaction(ctx, &prefund.Transaction{
		ID:                  uuid.NewString(),
		TenantID:            tenantID,
		CustomerID:          lenderID,
		Type:                prefund.TypeDeposit,
		AmountCents:         1_000,
		Status:              prefund.StatusCompleted,
		BalanceAfterCents:   99_999,
		AvailableAfterCents: 99_999,
		CreatedAt:           h.now,
	}))

	report, err := h.rec.Run(ctx, tenantID, recon.RunOptions{})
	require.NoError(t, err)
	types := exceptionTypes(report.Exceptions)

	ex, ok := types[recon.ExceptionPrefundMismatch]
	require.True(t, ok)
	assert.Equal(t, lenderID, ex.RecordID)
	assert.Equal(t, money.Cents(99_999-51_000), ex.DiscrepancyCents)
}

func TestRunWindowExcludesOldRecords(t *testing.T) {
	h := newHarness(t, recon.Config{Window: 24 * time.Hour})
	ctx := context.Background()
	res := h.startRepayment(t)
	require.NoError(t, h.pp.SettleTransfer(res.ProviderRef, provider.StatusCompleted, ""))

	// Two days later the stale record is outside the window and the lag is
	// never reported.
	h.now = h.now.Add(48 * time.Hour)
	report, err := h.rec.Run(ctx, tenantID, recon.RunOptions{})
	require.NoError(t, err)
	assert.Empty(t, report.Exceptions)

	// An explicit period start reaches back far enough to surface it.
	start := h.now.Add(-72 * time.Hour)
	report, err = h.rec.Run(ctx, tenantID, recon.RunOptions{PeriodStart: &start})
	require.NoError(t, err)
	require.Len(t, report.Exceptions, 1)
	assert.Equal(t, recon.ExceptionTransferStatus, report.Exceptions[0].Type)
}

func TestRunTypeSelectionSkipsOtherChecks(t *testing.T) {
	h := newHarness(t, recon.Config{Window: 24 * time.Hour})
	ctx := context.Background()

	// Both a transfer status lag and a ledger imbalance exist.
	res := h.startRepayment(t)
	require.NoError(t, h.pp.SettleTransfer(res.ProviderRef, provider.StatusCompleted, ""))
	require.NoError(t, h.store.InsertJournal(ctx, &ledger.Journal{
		ID:       uuid.NewString(),
		TenantID: tenantID,
		Type:     ledger.JournalAdjustment,
		Entries: []ledger.Entry{
			{AccountCode: accounts.CashPrefund, DebitCents: 1_000, CreatedAt: h.now},
		},
		CreatedAt: h.now,
	}))

	report, err := h.rec.Run(ctx, tenantID, recon.RunOptions{
		Types: []recon.ExceptionType{recon.ExceptionLedgerImbalance},
	})
	require.NoError(t, err)
	require.Len(t, report.Exceptions, 1)
	assert.Equal(t, recon.ExceptionLedgerImbalance, report.Exceptions[0].Type)
}

func TestPerRunDryRunOverride(t *testing.T) {
	h := newHarness(t, recon.Config{Window: 24 * time.Hour, AutoResolve: true})
	ctx := context.Background()
	res := h.startRepayment(t)
	require.NoError(t, h.pp.SettleTransfer(res.ProviderRef, provider.StatusCompleted, ""))

	report, err := h.rec.Run(ctx, tenantID, recon.RunOptions{DryRun: true})
	require.NoError(t, err)
	assert.True(t, report.Run.DryRun)
	require.Len(t, report.Exceptions, 1)
	assert.Equal(t, recon.ExceptionOpen, report.Exceptions[0].Status)
	assert.Zero(t, report.Run.AutoResolvedCount)

	// The next run without the override corrects the lag.
	report, err = h.rec.Run(ctx, tenantID, recon.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Run.AutoResolvedCount)

	r, err := h.orch.GetRepayment(ctx, tenantID, res.RecordID)
	require.NoError(t, err)
	assert.Equal(t, transfer.StatusCompleted, r.Status)
}
