// Package accounts implements the chart of accounts: a hierarchical,
// immutable registry of ledger accounts with their normal balance side.
package accounts

import (
	"strings"
	"time"

	"github.com/bigfin/bigfind/internal/core/errs"
)

// Type classifies an account for normal-side and reporting purposes.
type Type string

const (
	TypeAsset     Type = "ASSET"
	TypeLiability Type = "LIABILITY"
	TypeEquity    Type = "EQUITY"
	TypeRevenue   Type = "REVENUE"
	TypeExpense   Type = "EXPENSE"
)

// Side is the side of an entry, debit or credit.
type Side string

const (
	SideDebit  Side = "DEBIT"
	SideCredit Side = "CREDIT"
)

// Valid reports whether t is a known account type.
func (t Type) Valid() bool {
	switch t {
	case TypeAsset, TypeLiability, TypeEquity, TypeRevenue, TypeExpense:
		return true
	}
	return false
}

// NormalSide returns the side that increases an account of this type.
// Assets and expenses grow on debit; everything else grows on credit.
func (t Type) NormalSide() Side {
	switch t {
	case TypeAsset, TypeExpense:
		return SideDebit
	default:
		return SideCredit
	}
}

// Account is an immutable registry record. Code is globally unique and
// colon-separated to express hierarchy ("Loans:Principal").
type Account struct {
	Code       string
	Name       string
	Type       Type
	ParentCode string
	IsSystem   bool
	CreatedAt  time.Time
}

// ParentOf returns the parent code implied by a colon-separated code, or ""
// for a top-level account.
func ParentOf(code string) string {
	idx := strings.LastIndex(code, ":")
	if idx < 0 {
		return ""
	}
	return code[:idx]
}

// ValidateCode rejects empty codes and codes with empty segments
// ("Loans::Principal", ":Loans", "Loans:").
func ValidateCode(code string) error {
	if code == "" {
		return errs.InvalidRequest("account code must not be empty")
	}
	for _, seg := range strings.Split(code, ":") {
		if seg == "" {
			return errs.InvalidRequest("account code %q has an empty segment", code)
		}
	}
	return nil
}

// Well-known system account codes referenced by transaction templates.
const (
	CashOperating      = "Cash:Operating"
	CashPrefund        = "Cash:Prefund"
	LoansPrincipal     = "Loans:Principal"
	LoansInterest      = "Loans:Interest"
	LoansFees          = "Loans:Fees"
	PrefundBalances    = "Liabilities:Prefund_Balances"
	RevenueInterest    = "Revenue:Interest_Income"
	RevenueFeesExpress = "Revenue:Fees:Express"
	RevenueFeesLate    = "Revenue:Fees:Late"
	RevenueFeesNSF     = "Revenue:Fees:NSF"
	ExpensesBadDebt    = "Expenses:Bad_Debt"
	EquityRetained     = "Equity:Retained"
)

// DefaultChart returns the system accounts every transaction template
// references. Seeded once at startup; additional tenant-visible accounts
// hang off these roots.
func DefaultChart() []Account {
	return []Account{
		{Code: "Cash", Name: "Cash", Type: TypeAsset, IsSystem: true},
		{Code: CashOperating, Name: "Operating Cash", Type: TypeAsset, ParentCode: "Cash", IsSystem: true},
		{Code: CashPrefund, Name: "Prefund Custodial Cash", Type: TypeAsset, ParentCode: "Cash", IsSystem: true},
		{Code: "Loans", Name: "Loans Receivable", Type: TypeAsset, IsSystem: true},
		{Code: LoansPrincipal, Name: "Loan Principal Receivable", Type: TypeAsset, ParentCode: "Loans", IsSystem: true},
		{Code: LoansInterest, Name: "Loan Interest Receivable", Type: TypeAsset, ParentCode: "Loans", IsSystem: true},
		{Code: LoansFees, Name: "Loan Fees Receivable", Type: TypeAsset, ParentCode: "Loans", IsSystem: true},
		{Code: "Liabilities", Name: "Liabilities", Type: TypeLiability, IsSystem: true},
		{Code: PrefundBalances, Name: "Lender Prefund Balances", Type: TypeLiability, ParentCode: "Liabilities", IsSystem: true},
		{Code: "Revenue", Name: "Revenue", Type: TypeRevenue, IsSystem: true},
		{Code: RevenueInterest, Name: "Interest Income", Type: TypeRevenue, ParentCode: "Revenue", IsSystem: true},
		{Code: "Revenue:Fees", Name: "Fee Revenue", Type: TypeRevenue, ParentCode: "Revenue", IsSystem: true},
		{Code: RevenueFeesExpress, Name: "Express Funding Fees", Type: TypeRevenue, ParentCode: "Revenue:Fees", IsSystem: true},
		{Code: RevenueFeesLate, Name: "Late Fees", Type: TypeRevenue, ParentCode: "Revenue:Fees", IsSystem: true},
		{Code: RevenueFeesNSF, Name: "NSF Fees", Type: TypeRevenue, ParentCode: "Revenue:Fees", IsSystem: true},
		{Code: "Expenses", Name: "Expenses", Type: TypeExpense, IsSystem: true},
		{Code: ExpensesBadDebt, Name: "Bad Debt Expense", Type: TypeExpense, ParentCode: "Expenses", IsSystem: true},
		{Code: EquityRetained, Name: "Retained Earnings", Type: TypeEquity, ParentCode: "", IsSystem: true},
	}
}
