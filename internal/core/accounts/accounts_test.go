package accounts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalSide(t *testing.T) {
	assert.Equal(t, SideDebit, TypeAsset.NormalSide())
	assert.Equal(t, SideDebit, TypeExpense.NormalSide())
	assert.Equal(t, SideCredit, TypeLiability.NormalSide())
	assert.Equal(t, SideCredit, TypeEquity.NormalSide())
	assert.Equal(t, SideCredit, TypeRevenue.NormalSide())
}

func TestValidateCode(t *testing.T) {
	require.NoError(t, ValidateCode("Cash"))
	require.NoError(t, ValidateCode("Revenue:Fees:Express"))

	assert.Error(t, ValidateCode(""))
	assert.Error(t, ValidateCode("Loans::Principal"))
	assert.Error(t, ValidateCode(":Loans"))
	assert.Error(t, ValidateCode("Loans:"))
}

func TestParentOf(t *testing.T) {
	assert.Equal(t, "", ParentOf("Cash"))
	assert.Equal(t, "Cash", ParentOf("Cash:Operating"))
	assert.Equal(t, "Revenue:Fees", ParentOf("Revenue:Fees:Late"))
}

func TestDefaultChartIsWellFormed(t *testing.T) {
	chart := DefaultChart()
	byCode := make(map[string]Account, len(chart))
	for _, a := range chart {
		require.NoError(t, ValidateCode(a.Code))
		require.True(t, a.Type.Valid(), "account %s", a.Code)
		_, dup := byCode[a.Code]
		require.False(t, dup, "duplicate code %s", a.Code)
		byCode[a.Code] = a
	}

	// Every declared parent precedes its children in seed order.
	seen := make(map[string]bool)
	for _, a := range chart {
		if a.ParentCode != "" {
			assert.True(t, seen[a.ParentCode], "account %s seeded before parent %s", a.Code, a.ParentCode)
		}
		seen[a.Code] = true
	}

	// The template accounts are all present.
	for _, code := range []string{
		CashOperating, CashPrefund, LoansPrincipal, LoansInterest, LoansFees,
		PrefundBalances, RevenueInterest, RevenueFeesExpress, RevenueFeesLate,
		RevenueFeesNSF, ExpensesBadDebt, EquityRetained,
	} {
		_, ok := byCode[code]
		assert.True(t, ok, "missing system account %s", code)
	}
}
