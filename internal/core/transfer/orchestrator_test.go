package transfer_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigfin/bigfind/internal/core/accounts"
	"github.com/bigfin/bigfind/internal/core/contract"
	"github.com/bigfin/bigfind/internal/core/errs"
	"github.com/bigfin/bigfind/internal/core/ledger"
	"github.com/bigfin/bigfind/internal/core/money"
	"github.com/bigfin/bigfind/internal/core/prefund"
	"github.com/bigfin/bigfind/internal/core/routing"
	"github.com/bigfin/bigfind/internal/core/transfer"
	"github.com/bigfin/bigfind/internal/idempotency"
	"github.com/bigfin/bigfind/internal/provider"
	"github.com/bigfin/bigfind/internal/storage/keyValueDb"
	"github.com/bigfin/bigfind/internal/storage/memory"
)

const (
	tenantID    = "tenant-1"
	lenderID    = "lender-1"
	borrowerID  = "borrower-1"
	platformRef = "acct-platform"
	borrowerRef = "acct-borrower"
)

// fixture wires a full orchestrator against the in-memory store and
// provider. The clock is frozen and advanced explicitly.
type fixture struct {
	store *memory.Store
	eng   *ledger.Engine
	pp    *provider.MemoryProvider
	funds *prefund.Service
	orch  *transfer.Orchestrator
	now   time.Time
}

func newFixture(t *testing.T, holds transfer.HoldPolicy) *fixture {
	t.Helper()
	store := memory.New()
	eng := ledger.NewEngine(store.LedgerStore())
	require.NoError(t, eng.SeedChart(context.Background(), accounts.DefaultChart()))

	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	router := routing.NewEngine(routing.DefaultFeeSchedule(), routing.NewArrivalEstimator(loc))

	pp := provider.NewMemoryProvider()
	pp.RegisterPaymentMethods(platformRef,
		provider.PaymentMethod{ID: "pm-platform-fund", Type: "ach-debit-fund"},
		provider.PaymentMethod{ID: "pm-platform-collect", Type: "ach-credit-standard"},
	)
	pp.RegisterPaymentMethods(borrowerRef,
		provider.PaymentMethod{ID: "pm-rtp", Type: "rtp-credit"},
		provider.PaymentMethod{ID: "pm-fednow", Type: "fednow-credit"},
		provider.PaymentMethod{ID: "pm-ach-credit", Type: "ach-credit-standard"},
		provider.PaymentMethod{ID: "pm-ach-debit", Type: "ach-debit-collect"},
	)

	funds := prefund.NewService(store.PrefundUnits(), eng)
	idem := idempotency.NewStore(keyValueDb.NewMemoryDB())

	f := &fixture{
		store: store,
		eng:   eng,
		pp:    pp,
		funds: funds,
		now:   time.Date(2026, 3, 3, 10, 0, 0, 0, loc),
	}
	f.orch = transfer.NewOrchestrator(store.TransferUnits(), eng, router, pp, idem, transfer.Config{
		PlatformAccountRef: platformRef,
		ProviderTimeout:    5 * time.Second,
		Holds:              holds,
	}).WithClock(func() time.Time { return f.now })
	return f
}

func (f *fixture) seedPendingContract(t *testing.T, principal money.Cents) *contract.Contract {
	t.Helper()
	c := &contract.Contract{
		ID:             "c-1",
		TenantID:       tenantID,
		CustomerID:     borrowerID,
		LenderID:       lenderID,
		Status:         contract.StatusPendingDisbursement,
		PrincipalCents: principal,
		CreatedAt:      f.now,
	}
	require.NoError(t, f.store.InsertContract(context.Background(), c))
	return c
}

func (f *fixture) seedActiveContract(t *testing.T, fees, interest, principal money.Cents) *contract.Contract {
	t.Helper()
	c := &contract.Contract{
		ID:                    "c-1",
		TenantID:              tenantID,
		CustomerID:            borrowerID,
		LenderID:              lenderID,
		Status:                contract.StatusActive,
		PrincipalCents:        principal,
		PrincipalBalanceCents: principal,
		InterestBalanceCents:  interest,
		FeesBalanceCents:      fees,
		CreatedAt:             f.now,
	}
	require.NoError(t, f.store.InsertContract(context.Background(), c))
	return c
}

func (f *fixture) seedInstrument(t *testing.T) *transfer.FundingInstrument {
	t.Helper()
	inst := &transfer.FundingInstrument{
		ID:          "inst-1",
		TenantID:    tenantID,
		CustomerID:  borrowerID,
		Type:        routing.InstrumentBankAccount,
		Status:      transfer.InstrumentVerified,
		ProviderRef: borrowerRef,
		CreatedAt:   f.now,
	}
	require.NoError(t, f.store.InsertInstrument(context.Background(), inst))
	return inst
}

func disburseInput(speed routing.Speed, source ledger.DisbursementSource, amount money.Cents) transfer.InitiateInput {
	return transfer.InitiateInput{
		TenantID:                tenantID,
		Kind:                    transfer.KindDisbursement,
		ContractID:              "c-1",
		AmountCents:             amount,
		Speed:                   speed,
		Source:                  source,
		DestinationInstrumentID: "inst-1",
	}
}

func TestInitiateInstantDisbursement(t *testing.T) {
	f := newFixture(t, transfer.HoldPolicy{})
	ctx := context.Background()
	f.seedPendingContract(t, 100_000)
	f.seedInstrument(t)

	res, err := f.orch.Initiate(ctx, disburseInput(routing.SpeedInstant, ledger.SourceDirect, 100_000))
	require.NoError(t, err)

	assert.Equal(t, transfer.KindDisbursement, res.Kind)
	assert.Equal(t, routing.RailRTP, res.Rail)
	assert.Equal(t, []routing.Rail{routing.RailRTP}, res.AttemptedRails)
	assert.Equal(t, money.Cents(499), res.FeeCents)
	assert.Equal(t, money.Cents(99_501), res.NetAmountCents)
	assert.NotEmpty(t, res.ProviderRef)
	assert.Equal(t, f.now, res.EstimatedArrival)

	d, err := f.orch.GetDisbursement(ctx, tenantID, res.RecordID)
	require.NoError(t, err)
	assert.Equal(t, transfer.StatusPending, d.Status)
	assert.Equal(t, transfer.AvailabilityPending, d.AvailabilityState)
	assert.Equal(t, res.ProviderRef, d.ProviderRef)
	assert.Equal(t, routing.RailRTP, d.Rail)
	require.NotNil(t, d.InitiatedAt)

	// The provider moves the net amount; the fee never leaves the platform.
	pt, err := f.pp.GetTransfer(ctx, res.ProviderRef)
	require.NoError(t, err)
	assert.Equal(t, money.Cents(99_501), pt.AmountCents)
	assert.Equal(t, string(transfer.KindDisbursement), pt.Metadata[provider.MetadataTypeKey])
}

func TestPrefundCoverageWaivesExpressFee(t *testing.T) {
	f := newFixture(t, transfer.HoldPolicy{})
	ctx := context.Background()
	f.seedPendingContract(t, 100_000)
	f.seedInstrument(t)

	_, err := f.funds.Deposit(ctx, tenantID, lenderID, 100_000, "ops")
	require.NoError(t, err)

	res, err := f.orch.Initiate(ctx, disburseInput(routing.SpeedInstant, ledger.SourcePrefund, 100_000))
	require.NoError(t, err)
	assert.Equal(t, money.Zero, res.FeeCents)
	assert.Equal(t, money.Cents(100_000), res.NetAmountCents)

	// The whole balance is encumbered for the life of the transfer.
	available, err := f.funds.AvailableBalance(ctx, tenantID, lenderID)
	require.NoError(t, err)
	assert.Equal(t, money.Zero, available)
}

func TestPrefundDisbursementInsufficientFunds(t *testing.T) {
	f := newFixture(t, transfer.HoldPolicy{})
	ctx := context.Background()
	f.seedPendingContract(t, 100_000)
	f.seedInstrument(t)

	_, err := f.funds.Deposit(ctx, tenantID, lenderID, 50_000, "ops")
	require.NoError(t, err)

	_, err = f.orch.Initiate(ctx, disburseInput(routing.SpeedInstant, ledger.SourcePrefund, 100_000))
	require.Error(t, err)
	assert.Equal(t, errs.CodeInsufficientFunds, errs.CodeOf(err))

	// The transaction rolled back: nothing encumbered.
	available, err := f.funds.AvailableBalance(ctx, tenantID, lenderID)
	require.NoError(t, err)
	assert.Equal(t, money.Cents(50_000), available)
}

func TestRailFallback(t *testing.T) {
	f := newFixture(t, transfer.HoldPolicy{})
	ctx := context.Background()
	f.seedPendingContract(t, 100_000)
	f.seedInstrument(t)

	f.pp.FailMethodType("rtp-credit", true)
	f.pp.FailMethodType("fednow-credit", true)

	res, err := f.orch.Initiate(ctx, disburseInput(routing.SpeedInstant, ledger.SourceDirect, 100_000))
	require.NoError(t, err)
	assert.Equal(t, routing.RailACH, res.Rail)
	assert.Equal(t, []routing.Rail{routing.RailRTP, routing.RailFedNow, routing.RailACH}, res.AttemptedRails)
	// The express fee was agreed at initiation and survives the downgrade.
	assert.Equal(t, money.Cents(499), res.FeeCents)

	d, err := f.orch.GetDisbursement(ctx, tenantID, res.RecordID)
	require.NoError(t, err)
	assert.Equal(t, routing.RailACH, d.Rail)
}

func TestAllRailsExhaustedReleasesPrefundHold(t *testing.T) {
	f := newFixture(t, transfer.HoldPolicy{})
	ctx := context.Background()
	f.seedPendingContract(t, 100_000)
	f.seedInstrument(t)

	_, err := f.funds.Deposit(ctx, tenantID, lenderID, 100_000, "ops")
	require.NoError(t, err)

	f.pp.FailMethodType("rtp-credit", true)
	f.pp.FailMethodType("fednow-credit", true)
	f.pp.FailMethodType("ach-credit-standard", true)

	_, err = f.orch.Initiate(ctx, disburseInput(routing.SpeedInstant, ledger.SourcePrefund, 100_000))
	require.Error(t, err)
	assert.Equal(t, errs.CodeProviderError, errs.CodeOf(err))

	available, err := f.funds.AvailableBalance(ctx, tenantID, lenderID)
	require.NoError(t, err)
	assert.Equal(t, money.Cents(100_000), available)
}

func TestIdempotentReplay(t *testing.T) {
	f := newFixture(t, transfer.HoldPolicy{})
	ctx := context.Background()
	f.seedPendingContract(t, 100_000)
	f.seedInstrument(t)

	in := disburseInput(routing.SpeedInstant, ledger.SourceDirect, 100_000)
	in.IdempotencyKey = "disb-1"

	first, err := f.orch.Initiate(ctx, in)
	require.NoError(t, err)

	replay, err := f.orch.Initiate(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, first.RecordID, replay.RecordID)
	assert.Equal(t, first.ProviderRef, replay.ProviderRef)
	assert.Equal(t, first.Rail, replay.Rail)
}

func TestDisbursementValidation(t *testing.T) {
	f := newFixture(t, transfer.HoldPolicy{})
	ctx := context.Background()
	f.seedPendingContract(t, 100_000)
	f.seedInstrument(t)

	// Amount must match the contract principal exactly.
	_, err := f.orch.Initiate(ctx, disburseInput(routing.SpeedInstant, ledger.SourceDirect, 90_000))
	require.Error(t, err)
	assert.Equal(t, errs.CodeInvalidRequest, errs.CodeOf(err))

	// Unknown contract.
	in := disburseInput(routing.SpeedInstant, ledger.SourceDirect, 100_000)
	in.ContractID = "nope"
	_, err = f.orch.Initiate(ctx, in)
	require.Error(t, err)
	assert.Equal(t, errs.CodeNotFound, errs.CodeOf(err))

	// Unknown instrument.
	in = disburseInput(routing.SpeedInstant, ledger.SourceDirect, 100_000)
	in.DestinationInstrumentID = "nope"
	_, err = f.orch.Initiate(ctx, in)
	require.Error(t, err)
	assert.Equal(t, errs.CodeNotFound, errs.CodeOf(err))
}

func TestDisbursementRequiresPendingContract(t *testing.T) {
	f := newFixture(t, transfer.HoldPolicy{})
	f.seedActiveContract(t, 0, 0, 100_000)
	f.seedInstrument(t)

	_, err := f.orch.Initiate(context.Background(), disburseInput(routing.SpeedInstant, ledger.SourceDirect, 100_000))
	require.Error(t, err)
	assert.Equal(t, errs.CodeInvalidState, errs.CodeOf(err))
}

func TestInitiateRepaymentComputesSplit(t *testing.T) {
	f := newFixture(t, transfer.HoldPolicy{})
	ctx := context.Background()
	f.seedActiveContract(t, 500, 1_200, 100_000)
	f.seedInstrument(t)

	res, err := f.orch.Initiate(ctx, transfer.InitiateInput{
		TenantID:           tenantID,
		Kind:               transfer.KindRepayment,
		ContractID:         "c-1",
		AmountCents:        10_000,
		Speed:              routing.SpeedStandard,
		SourceInstrumentID: "inst-1",
	})
	require.NoError(t, err)
	assert.Equal(t, routing.RailACH, res.Rail)
	assert.Equal(t, money.Zero, res.FeeCents)

	r, err := f.orch.GetRepayment(ctx, tenantID, res.RecordID)
	require.NoError(t, err)
	assert.Equal(t, transfer.StatusPending, r.Status)
	assert.Equal(t, contract.Split{FeeCents: 500, InterestCents: 1_200, PrincipalCents: 8_300}, r.Applied)

	// Balances move only at settlement.
	c, err := f.store.GetContract(ctx, tenantID, "c-1")
	require.NoError(t, err)
	assert.Equal(t, money.Cents(100_000), c.PrincipalBalanceCents)
}

func TestRepaymentExceedingOutstandingRejected(t *testing.T) {
	f := newFixture(t, transfer.HoldPolicy{})
	f.seedActiveContract(t, 0, 0, 5_000)
	f.seedInstrument(t)

	_, err := f.orch.Initiate(context.Background(), transfer.InitiateInput{
		TenantID:           tenantID,
		Kind:               transfer.KindRepayment,
		ContractID:         "c-1",
		AmountCents:        6_000,
		Speed:              routing.SpeedStandard,
		SourceInstrumentID: "inst-1",
	})
	require.Error(t, err)
	assert.Equal(t, errs.CodeInvalidRequest, errs.CodeOf(err))
}

func TestDisbursementSettlementActivatesContract(t *testing.T) {
	f := newFixture(t, transfer.HoldPolicy{})
	ctx := context.Background()
	f.seedPendingContract(t, 100_000)
	f.seedInstrument(t)

	_, err := f.funds.Deposit(ctx, tenantID, lenderID, 100_000, "ops")
	require.NoError(t, err)

	res, err := f.orch.Initiate(ctx, disburseInput(routing.SpeedInstant, ledger.SourcePrefund, 100_000))
	require.NoError(t, err)

	settled := f.now.Add(time.Minute)
	require.NoError(t, f.orch.ProcessStatusUpdate(ctx, tenantID, provider.StatusUpdate{
		ProviderRef: res.ProviderRef,
		Status:      provider.StatusCompleted,
		OccurredAt:  settled,
	}))

	d, err := f.orch.GetDisbursement(ctx, tenantID, res.RecordID)
	require.NoError(t, err)
	assert.Equal(t, transfer.StatusCompleted, d.Status)
	assert.Equal(t, transfer.AvailabilityAvailable, d.AvailabilityState)
	assert.NotEmpty(t, d.JournalID)
	require.NotNil(t, d.CompletedAt)

	c, err := f.store.GetContract(ctx, tenantID, "c-1")
	require.NoError(t, err)
	assert.Equal(t, contract.StatusActive, c.Status)
	assert.Equal(t, money.Cents(100_000), c.PrincipalBalanceCents)

	// The hold converted into a withdrawal: custody and availability are
	// both empty.
	available, err := f.funds.AvailableBalance(ctx, tenantID, lenderID)
	require.NoError(t, err)
	assert.Equal(t, money.Zero, available)
	cash, err := f.eng.GetAccountBalance(ctx, tenantID, accounts.CashPrefund)
	require.NoError(t, err)
	assert.Equal(t, money.Zero, cash)
	principal, err := f.eng.GetAccountBalance(ctx, tenantID, accounts.LoansPrincipal)
	require.NoError(t, err)
	assert.Equal(t, money.Cents(100_000), principal)

	// A duplicate settlement webhook is a no-op.
	require.NoError(t, f.orch.ProcessStatusUpdate(ctx, tenantID, provider.StatusUpdate{
		ProviderRef: res.ProviderRef,
		Status:      provider.StatusCompleted,
		OccurredAt:  settled.Add(time.Minute),
	}))
	principal, err = f.eng.GetAccountBalance(ctx, tenantID, accounts.LoansPrincipal)
	require.NoError(t, err)
	assert.Equal(t, money.Cents(100_000), principal)
}

func TestStaleStatusUpdateIgnored(t *testing.T) {
	f := newFixture(t, transfer.HoldPolicy{})
	ctx := context.Background()
	f.seedPendingContract(t, 100_000)
	f.seedInstrument(t)

	res, err := f.orch.Initiate(ctx, disburseInput(routing.SpeedInstant, ledger.SourceDirect, 100_000))
	require.NoError(t, err)

	require.NoError(t, f.orch.ProcessStatusUpdate(ctx, tenantID, provider.StatusUpdate{
		ProviderRef: res.ProviderRef,
		Status:      provider.StatusCompleted,
		OccurredAt:  f.now.Add(time.Minute),
	}))

	// A late "pending" replay must not regress the record.
	require.NoError(t, f.orch.ProcessStatusUpdate(ctx, tenantID, provider.StatusUpdate{
		ProviderRef: res.ProviderRef,
		Status:      provider.StatusPending,
		OccurredAt:  f.now.Add(2 * time.Minute),
	}))
	d, err := f.orch.GetDisbursement(ctx, tenantID, res.RecordID)
	require.NoError(t, err)
	assert.Equal(t, transfer.StatusCompleted, d.Status)
}

func TestDisbursementReturnReversesSettlement(t *testing.T) {
	f := newFixture(t, transfer.HoldPolicy{})
	ctx := context.Background()
	f.seedPendingContract(t, 100_000)
	f.seedInstrument(t)

	_, err := f.funds.Deposit(ctx, tenantID, lenderID, 100_000, "ops")
	require.NoError(t, err)

	res, err := f.orch.Initiate(ctx, disburseInput(routing.SpeedInstant, ledger.SourcePrefund, 100_000))
	require.NoError(t, err)
	require.NoError(t, f.orch.ProcessStatusUpdate(ctx, tenantID, provider.StatusUpdate{
		ProviderRef: res.ProviderRef,
		Status:      provider.StatusCompleted,
		OccurredAt:  f.now.Add(time.Minute),
	}))

	require.NoError(t, f.orch.ProcessStatusUpdate(ctx, tenantID, provider.StatusUpdate{
		ProviderRef:   res.ProviderRef,
		Status:        provider.StatusReturned,
		FailureReason: "R01 insufficient funds",
		OccurredAt:    f.now.Add(2 * time.Hour),
	}))

	d, err := f.orch.GetDisbursement(ctx, tenantID, res.RecordID)
	require.NoError(t, err)
	assert.Equal(t, transfer.StatusFailed, d.Status)
	assert.Equal(t, "R01 insufficient funds", d.FailureReason)

	c, err := f.store.GetContract(ctx, tenantID, "c-1")
	require.NoError(t, err)
	assert.Equal(t, contract.StatusPendingDisbursement, c.Status)
	assert.Nil(t, c.DisbursedAt)

	// Reversal restored both the receivable and the custodial balance.
	principal, err := f.eng.GetAccountBalance(ctx, tenantID, accounts.LoansPrincipal)
	require.NoError(t, err)
	assert.Equal(t, money.Zero, principal)
	available, err := f.funds.AvailableBalance(ctx, tenantID, lenderID)
	require.NoError(t, err)
	assert.Equal(t, money.Cents(100_000), available)
}

func TestFailedDisbursementReleasesHold(t *testing.T) {
	f := newFixture(t, transfer.HoldPolicy{})
	ctx := context.Background()
	f.seedPendingContract(t, 100_000)
	f.seedInstrument(t)

	_, err := f.funds.Deposit(ctx, tenantID, lenderID, 100_000, "ops")
	require.NoError(t, err)

	res, err := f.orch.Initiate(ctx, disburseInput(routing.SpeedInstant, ledger.SourcePrefund, 100_000))
	require.NoError(t, err)
	require.NoError(t, f.orch.ProcessStatusUpdate(ctx, tenantID, provider.StatusUpdate{
		ProviderRef:   res.ProviderRef,
		Status:        provider.StatusFailed,
		FailureReason: "account closed",
		OccurredAt:    f.now.Add(time.Minute),
	}))

	d, err := f.orch.GetDisbursement(ctx, tenantID, res.RecordID)
	require.NoError(t, err)
	assert.Equal(t, transfer.StatusFailed, d.Status)

	available, err := f.funds.AvailableBalance(ctx, tenantID, lenderID)
	require.NoError(t, err)
	assert.Equal(t, money.Cents(100_000), available)

	c, err := f.store.GetContract(ctx, tenantID, "c-1")
	require.NoError(t, err)
	assert.Equal(t, contract.StatusPendingDisbursement, c.Status)
}

func TestRepaymentSettlementAndReturn(t *testing.T) {
	f := newFixture(t, transfer.HoldPolicy{})
	ctx := context.Background()
	f.seedActiveContract(t, 0, 0, 10_000)
	f.seedInstrument(t)

	res, err := f.orch.Initiate(ctx, transfer.InitiateInput{
		TenantID:           tenantID,
		Kind:               transfer.KindRepayment,
		ContractID:         "c-1",
		AmountCents:        10_000,
		Speed:              routing.SpeedStandard,
		SourceInstrumentID: "inst-1",
	})
	require.NoError(t, err)

	require.NoError(t, f.orch.ProcessStatusUpdate(ctx, tenantID, provider.StatusUpdate{
		ProviderRef: res.ProviderRef,
		Status:      provider.StatusCompleted,
		OccurredAt:  f.now.Add(time.Minute),
	}))

	c, err := f.store.GetContract(ctx, tenantID, "c-1")
	require.NoError(t, err)
	assert.Equal(t, contract.StatusPaidOff, c.Status)
	assert.Equal(t, money.Zero, c.PrincipalBalanceCents)

	r, err := f.orch.GetRepayment(ctx, tenantID, res.RecordID)
	require.NoError(t, err)
	assert.Equal(t, transfer.StatusCompleted, r.Status)
	assert.NotEmpty(t, r.JournalID)

	// The ACH return reopens the paid-off contract.
	require.NoError(t, f.orch.ProcessStatusUpdate(ctx, tenantID, provider.StatusUpdate{
		ProviderRef:   res.ProviderRef,
		Status:        provider.StatusReturned,
		FailureReason: "R10 unauthorized",
		OccurredAt:    f.now.Add(48 * time.Hour),
	}))

	c, err = f.store.GetContract(ctx, tenantID, "c-1")
	require.NoError(t, err)
	assert.Equal(t, contract.StatusActive, c.Status)
	assert.Equal(t, money.Cents(10_000), c.PrincipalBalanceCents)

	r, err = f.orch.GetRepayment(ctx, tenantID, res.RecordID)
	require.NoError(t, err)
	assert.Equal(t, transfer.StatusReturned, r.Status)

	principal, err := f.eng.GetAccountBalance(ctx, tenantID, accounts.LoansPrincipal)
	require.NoError(t, err)
	assert.Equal(t, money.Zero, principal)
}

func TestUnknownProviderRefIgnored(t *testing.T) {
	f := newFixture(t, transfer.HoldPolicy{})
	err := f.orch.ProcessStatusUpdate(context.Background(), tenantID, provider.StatusUpdate{
		ProviderRef: "mem-transfer-999999",
		Status:      provider.StatusCompleted,
		OccurredAt:  f.now,
	})
	require.NoError(t, err)
}

func TestHoldPolicyEvaluate(t *testing.T) {
	settled := time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC)

	off := transfer.HoldPolicy{}
	state, until := off.Evaluate(1_000_000, settled)
	assert.Equal(t, transfer.AvailabilityAvailable, state)
	assert.Nil(t, until)

	p := transfer.HoldPolicy{Enabled: true, ThresholdCents: 50_000, Duration: 48 * time.Hour}
	state, until = p.Evaluate(49_999, settled)
	assert.Equal(t, transfer.AvailabilityAvailable, state)
	assert.Nil(t, until)

	state, until = p.Evaluate(50_000, settled)
	assert.Equal(t, transfer.AvailabilityHeld, state)
	require.NotNil(t, until)
	assert.Equal(t, settled.Add(48*time.Hour), *until)
}

func TestHeldFundsReleaseAfterDuration(t *testing.T) {
	f := newFixture(t, transfer.HoldPolicy{Enabled: true, ThresholdCents: 50_000, Duration: 48 * time.Hour})
	ctx := context.Background()
	f.seedPendingContract(t, 100_000)
	f.seedInstrument(t)

	res, err := f.orch.Initiate(ctx, disburseInput(routing.SpeedInstant, ledger.SourceDirect, 100_000))
	require.NoError(t, err)

	settled := f.now.Add(time.Minute)
	require.NoError(t, f.orch.ProcessStatusUpdate(ctx, tenantID, provider.StatusUpdate{
		ProviderRef: res.ProviderRef,
		Status:      provider.StatusCompleted,
		OccurredAt:  settled,
	}))

	d, err := f.orch.GetDisbursement(ctx, tenantID, res.RecordID)
	require.NoError(t, err)
	assert.Equal(t, transfer.AvailabilityHeld, d.AvailabilityState)
	require.NotNil(t, d.HeldUntil)
	assert.Equal(t, settled.Add(48*time.Hour), *d.HeldUntil)

	// Too early: nothing released.
	released, err := f.orch.ReleaseExpiredHolds(ctx, tenantID)
	require.NoError(t, err)
	assert.Zero(t, released)

	f.now = settled.Add(48*time.Hour + time.Second)
	released, err = f.orch.ReleaseExpiredHolds(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, 1, released)

	d, err = f.orch.GetDisbursement(ctx, tenantID, res.RecordID)
	require.NoError(t, err)
	assert.Equal(t, transfer.AvailabilityAvailable, d.AvailabilityState)
	assert.Nil(t, d.HeldUntil)
}

func TestScheduledRepaymentLifecycle(t *testing.T) {
	f := newFixture(t, transfer.HoldPolicy{})
	ctx := context.Background()
	f.seedActiveContract(t, 0, 1_000, 50_000)
	f.seedInstrument(t)

	due := f.now.Add(24 * time.Hour)
	r, err := f.orch.ScheduleRepayment(ctx, transfer.ScheduleRepaymentInput{
		TenantID:           tenantID,
		ContractID:         "c-1",
		AmountCents:        5_000,
		SourceInstrumentID: "inst-1",
		ScheduledFor:       due,
	})
	require.NoError(t, err)
	assert.Equal(t, transfer.StatusScheduled, r.Status)

	// Not due yet: neither a direct initiation nor the sweep may start it.
	_, err = f.orch.InitiateScheduled(ctx, tenantID, r.ID)
	require.Error(t, err)
	assert.Equal(t, errs.CodeInvalidState, errs.CodeOf(err))

	started, err := f.orch.RunDueScheduledRepayments(ctx, tenantID)
	require.NoError(t, err)
	assert.Zero(t, started)

	f.now = due.Add(time.Minute)
	started, err = f.orch.RunDueScheduledRepayments(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, 1, started)

	got, err := f.orch.GetRepayment(ctx, tenantID, r.ID)
	require.NoError(t, err)
	assert.Equal(t, transfer.StatusPending, got.Status)
	assert.NotEmpty(t, got.ProviderRef)
	// Split computed against balances current at collection time.
	assert.Equal(t, contract.Split{InterestCents: 1_000, PrincipalCents: 4_000}, got.Applied)
}

func TestScheduleRepaymentRequiresActiveContract(t *testing.T) {
	f := newFixture(t, transfer.HoldPolicy{})
	f.seedPendingContract(t, 50_000)
	f.seedInstrument(t)

	_, err := f.orch.ScheduleRepayment(context.Background(), transfer.ScheduleRepaymentInput{
		TenantID:           tenantID,
		ContractID:         "c-1",
		AmountCents:        5_000,
		SourceInstrumentID: "inst-1",
		ScheduledFor:       f.now,
	})
	require.Error(t, err)
	assert.Equal(t, errs.CodeInvalidState, errs.CodeOf(err))
}

func TestCancelScheduledRepaymentLocally(t *testing.T) {
	f := newFixture(t, transfer.HoldPolicy{})
	ctx := context.Background()
	f.seedActiveContract(t, 0, 0, 50_000)
	f.seedInstrument(t)

	r, err := f.orch.ScheduleRepayment(ctx, transfer.ScheduleRepaymentInput{
		TenantID:           tenantID,
		ContractID:         "c-1",
		AmountCents:        5_000,
		SourceInstrumentID: "inst-1",
		ScheduledFor:       f.now.Add(24 * time.Hour),
	})
	require.NoError(t, err)

	require.NoError(t, f.orch.Cancel(ctx, tenantID, transfer.KindRepayment, r.ID))

	got, err := f.orch.GetRepayment(ctx, tenantID, r.ID)
	require.NoError(t, err)
	assert.Equal(t, transfer.StatusCancelled, got.Status)

	// Cancelling a terminal record is refused.
	err = f.orch.Cancel(ctx, tenantID, transfer.KindRepayment, r.ID)
	require.Error(t, err)
	assert.Equal(t, errs.CodeInvalidState, errs.CodeOf(err))
}

func TestSameDayCollectionUsesStandardDebitMethods(t *testing.T) {
	f := newFixture(t, transfer.HoldPolicy{})
	ctx := context.Background()
	f.seedActiveContract(t, 0, 0, 50_000)

	// A funding-only bank account: its provider side carries just the
	// ach-debit-fund method, and it settles over same-day ACH.
	f.pp.RegisterPaymentMethods("acct-funding",
		provider.PaymentMethod{ID: "pm-fund-only", Type: "ach-debit-fund"},
	)
	inst := &transfer.FundingInstrument{
		ID:             "inst-fund",
		TenantID:       tenantID,
		CustomerID:     borrowerID,
		Type:           routing.InstrumentBankAccount,
		Status:         transfer.InstrumentVerified,
		ProviderRef:    "acct-funding",
		SupportedRails: []routing.Rail{routing.RailSameDayACH, routing.RailACH},
		CreatedAt:      f.now,
	}
	require.NoError(t, f.store.InsertInstrument(ctx, inst))

	res, err := f.orch.Initiate(ctx, transfer.InitiateInput{
		TenantID:           tenantID,
		Kind:               transfer.KindRepayment,
		ContractID:         "c-1",
		AmountCents:        10_000,
		Speed:              routing.SpeedInstant,
		SourceInstrumentID: "inst-fund",
	})
	require.NoError(t, err)
	assert.Equal(t, routing.RailSameDayACH, res.Rail)

	pt, err := f.pp.GetTransfer(ctx, res.ProviderRef)
	require.NoError(t, err)
	assert.Equal(t, money.Cents(10_000), pt.AmountCents)
	assert.Equal(t, string(transfer.KindRepayment), pt.Metadata[provider.MetadataTypeKey])
}

func TestCancelInFlightGoesThroughProvider(t *testing.T) {
	f := newFixture(t, transfer.HoldPolicy{})
	ctx := context.Background()
	f.seedPendingContract(t, 100_000)
	f.seedInstrument(t)

	res, err := f.orch.Initiate(ctx, disburseInput(routing.SpeedInstant, ledger.SourceDirect, 100_000))
	require.NoError(t, err)

	require.NoError(t, f.orch.Cancel(ctx, tenantID, transfer.KindDisbursement, res.RecordID))

	// The provider accepted the cancel; the final state lands through
	// status ingestion, not synchronously.
	pt, err := f.pp.GetTransfer(ctx, res.ProviderRef)
	require.NoError(t, err)
	assert.Equal(t, provider.StatusCanceled, pt.Status)

	require.NoError(t, f.orch.ProcessStatusUpdate(ctx, tenantID, provider.StatusUpdate{
		ProviderRef: res.ProviderRef,
		Status:      provider.StatusCanceled,
		OccurredAt:  f.now.Add(time.Minute),
	}))
	d, err := f.orch.GetDisbursement(ctx, tenantID, res.RecordID)
	require.NoError(t, err)
	assert.Equal(t, transfer.StatusCancelled, d.Status)
}
