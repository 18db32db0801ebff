package prefund_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigfin/bigfind/internal/core/accounts"
	"github.com/bigfin/bigfind/internal/core/errs"
	"github.com/bigfin/bigfind/internal/core/ledger"
	"github.com/bigfin/bigfind/internal/core/money"
	"github.com/bigfin/bigfind/internal/core/prefund"
	"github.com/bigfin/bigfind/internal/storage/memory"
)

const (
	tenant = "tenant-1"
	lender = "lender-1"
)

func newTestService(t *testing.T) (*prefund.Service, *memory.Store, *ledger.Engine) {
	t.Helper()
	store := memory.New()
	eng := ledger.NewEngine(store.LedgerStore())
	require.NoError(t, eng.SeedChart(context.Background(), accounts.DefaultChart()))
	return prefund.NewService(store.PrefundUnits(), eng), store, eng
}

func TestDepositAndWithdraw(t *testing.T) {
	svc, _, eng := newTestService(t)
	ctx := context.Background()

	row, err := svc.Deposit(ctx, tenant, lender, 100_000, "ops")
	require.NoError(t, err)
	assert.Equal(t, prefund.TypeDeposit, row.Type)
	assert.Equal(t, prefund.StatusCompleted, row.Status)
	assert.Equal(t, money.Cents(100_000), row.BalanceAfterCents)
	assert.Equal(t, money.Cents(100_000), row.AvailableAfterCents)

	// The custody journal posted in the same transaction.
	cash, err := eng.GetAccountBalance(ctx, tenant, accounts.CashPrefund)
	require.NoError(t, err)
	assert.Equal(t, money.Cents(100_000), cash)

	row, err = svc.Withdraw(ctx, tenant, lender, 40_000, "ops")
	require.NoError(t, err)
	assert.Equal(t, money.Cents(60_000), row.BalanceAfterCents)
	assert.Equal(t, money.Cents(60_000), row.AvailableAfterCents)

	cash, err = eng.GetAccountBalance(ctx, tenant, accounts.CashPrefund)
	require.NoError(t, err)
	assert.Equal(t, money.Cents(60_000), cash)
}

func TestWithdrawBeyondAvailableFails(t *testing.T) {
	svc, _, eng := newTestService(t)
	ctx := context.Background()

	_, err := svc.Deposit(ctx, tenant, lender, 10_000, "ops")
	require.NoError(t, err)

	_, err = svc.Withdraw(ctx, tenant, lender, 10_001, "ops")
	require.Error(t, err)
	assert.Equal(t, errs.CodeInsufficientFunds, errs.CodeOf(err))

	// The failed withdrawal left no trail row and no journal.
	available, err := svc.AvailableBalance(ctx, tenant, lender)
	require.NoError(t, err)
	assert.Equal(t, money.Cents(10_000), available)

	cash, err := eng.GetAccountBalance(ctx, tenant, accounts.CashPrefund)
	require.NoError(t, err)
	assert.Equal(t, money.Cents(10_000), cash)
}

func TestHoldMovesAvailabilityOnly(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Deposit(ctx, tenant, lender, 50_000, "ops")
	require.NoError(t, err)

	row, err := svc.Hold(ctx, tenant, lender, 30_000)
	require.NoError(t, err)
	assert.Equal(t, money.Cents(50_000), row.BalanceAfterCents)
	assert.Equal(t, money.Cents(20_000), row.AvailableAfterCents)

	// Withdrawal against held funds is refused even though the balance
	// would cover it.
	_, err = svc.Withdraw(ctx, tenant, lender, 30_000, "ops")
	require.Error(t, err)
	assert.Equal(t, errs.CodeInsufficientFunds, errs.CodeOf(err))

	row, err = svc.Release(ctx, tenant, lender, 30_000)
	require.NoError(t, err)
	assert.Equal(t, money.Cents(50_000), row.BalanceAfterCents)
	assert.Equal(t, money.Cents(50_000), row.AvailableAfterCents)
}

func TestHoldBeyondAvailableFails(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Deposit(ctx, tenant, lender, 5_000, "ops")
	require.NoError(t, err)

	_, err = svc.Hold(ctx, tenant, lender, 5_001)
	require.Error(t, err)
	assert.Equal(t, errs.CodeInsufficientFunds, errs.CodeOf(err))
}

func TestAvailableBalanceNoHistory(t *testing.T) {
	svc, _, _ := newTestService(t)
	available, err := svc.AvailableBalance(context.Background(), tenant, "stranger")
	require.NoError(t, err)
	assert.Equal(t, money.Zero, available)
}

func TestFoldMatchesRecordedBalances(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Deposit(ctx, tenant, lender, 80_000, "ops")
	require.NoError(t, err)
	_, err = svc.Hold(ctx, tenant, lender, 30_000)
	require.NoError(t, err)
	_, err = svc.Withdraw(ctx, tenant, lender, 10_000, "ops")
	require.NoError(t, err)

	rows, err := store.ListCompleted(ctx, tenant, lender)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	latest := rows[len(rows)-1]
	assert.Equal(t, prefund.Fold(rows), latest.AvailableAfterCents)
	assert.Equal(t, money.Cents(40_000), latest.AvailableAfterCents)
	assert.Equal(t, money.Cents(70_000), latest.BalanceAfterCents)
}

func TestValidationRejectsNonPositiveAmounts(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	for _, f := range []func() error{
		func() error { _, err := svc.Deposit(ctx, tenant, lender, 0, "x"); return err },
		func() error { _, err := svc.Withdraw(ctx, tenant, lender, -5, "x"); return err },
		func() error { _, err := svc.Hold(ctx, tenant, lender, 0); return err },
		func() error { _, err := svc.Release(ctx, tenant, lender, -1); return err },
	} {
		err := f()
		require.Error(t, err)
		assert.Equal(t, errs.CodeInvalidRequest, errs.CodeOf(err))
	}
}
