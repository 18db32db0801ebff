package ledger

import (
	"context"
	"fmt"

	"github.com/bigfin/bigfind/internal/core/accounts"
	"github.com/bigfin/bigfind/internal/core/errs"
	"github.com/bigfin/bigfind/internal/core/money"
)

// Transaction templates. Each builds a specific balanced journal and posts
// it through PostInTx, so every template inherits the same validation and
// balance invariants.

// DisbursementSource identifies where disbursement cash comes from.
type DisbursementSource string

const (
	SourcePrefund DisbursementSource = "PREFUND"
	SourceDirect  DisbursementSource = "DIRECT"
)

// DisbursementJournal posts the funding of a loan. Principal is recognised
// as a receivable; the credit side depends on the funding source. A non-zero
// express fee adds a fee revenue pair.
func (e *Engine) DisbursementJournal(ctx context.Context, tx TxStore, tenantID, contractID string, source DisbursementSource, principal, expressFee money.Cents, actor string) (*Journal, error) {
	if principal <= 0 {
		return nil, errs.InvalidRequest("disbursement principal must be positive")
	}
	creditAccount := accounts.CashOperating
	if source == SourcePrefund {
		creditAccount = accounts.PrefundBalances
	}
	entries := []EntryInput{
		{AccountCode: accounts.LoansPrincipal, DebitCents: principal},
		{AccountCode: creditAccount, CreditCents: principal},
	}
	if expressFee > 0 {
		entries = append(entries,
			EntryInput{AccountCode: accounts.CashOperating, DebitCents: expressFee},
			EntryInput{AccountCode: accounts.RevenueFeesExpress, CreditCents: expressFee},
		)
	}
	return e.PostInTx(ctx, tx, tenantID, CreateJournalInput{
		Type:        JournalDisbursement,
		Description: fmt.Sprintf("Loan disbursement (%s)", source),
		ContractID:  contractID,
		Entries:     entries,
		CreatedBy:   actor,
	})
}

// RepaymentSplit is the waterfall outcome applied by a repayment journal.
type RepaymentSplit struct {
	FeeCents       money.Cents
	InterestCents  money.Cents
	PrincipalCents money.Cents
}

// Total returns the cash amount the split accounts for.
func (s RepaymentSplit) Total() money.Cents {
	return s.FeeCents + s.InterestCents + s.PrincipalCents
}

// RepaymentJournal posts a settled repayment: one cash debit against the
// waterfall components. Zero components omit their entry.
func (e *Engine) RepaymentJournal(ctx context.Context, tx TxStore, tenantID, contractID string, split RepaymentSplit, actor string) (*Journal, error) {
	total := split.Total()
	if total <= 0 {
		return nil, errs.InvalidRequest("repayment must apply a positive amount")
	}
	entries := []EntryInput{{AccountCode: accounts.CashOperating, DebitCents: total}}
	if split.FeeCents > 0 {
		entries = append(entries, EntryInput{AccountCode: accounts.LoansFees, CreditCents: split.FeeCents})
	}
	if split.InterestCents > 0 {
		entries = append(entries, EntryInput{AccountCode: accounts.LoansInterest, CreditCents: split.InterestCents})
	}
	if split.PrincipalCents > 0 {
		entries = append(entries, EntryInput{AccountCode: accounts.LoansPrincipal, CreditCents: split.PrincipalCents})
	}
	return e.PostInTx(ctx, tx, tenantID, CreateJournalInput{
		Type:        JournalRepayment,
		Description: "Loan repayment",
		ContractID:  contractID,
		Entries:     entries,
		CreatedBy:   actor,
	})
}

// FeeKind selects the revenue account for an assessed fee.
type FeeKind string

const (
	FeeLate    FeeKind = "late"
	FeeNSF     FeeKind = "nsf"
	FeeExpress FeeKind = "express"
)

func (k FeeKind) revenueAccount() (string, error) {
	switch k {
	case FeeLate:
		return accounts.RevenueFeesLate, nil
	case FeeNSF:
		return accounts.RevenueFeesNSF, nil
	case FeeExpress:
		return accounts.RevenueFeesExpress, nil
	}
	return "", errs.InvalidRequest("unknown fee kind %q", k)
}

// FeeAssessmentJournal records a fee owed by the borrower.
func (e *Engine) FeeAssessmentJournal(ctx context.Context, tx TxStore, tenantID, contractID string, kind FeeKind, amount money.Cents, actor string) (*Journal, error) {
	if amount <= 0 {
		return nil, errs.InvalidRequest("fee amount must be positive")
	}
	revenue, err := kind.revenueAccount()
	if err != nil {
		return nil, err
	}
	return e.PostInTx(ctx, tx, tenantID, CreateJournalInput{
		Type:        JournalFeeAssessment,
		Description: fmt.Sprintf("%s fee assessment", kind),
		ContractID:  contractID,
		Entries: []EntryInput{
			{AccountCode: accounts.LoansFees, DebitCents: amount},
			{AccountCode: revenue, CreditCents: amount},
		},
		CreatedBy: actor,
	})
}

// InterestAccrualJournal recognises accrued interest as receivable income.
func (e *Engine) InterestAccrualJournal(ctx context.Context, tx TxStore, tenantID, contractID string, amount money.Cents, actor string) (*Journal, error) {
	if amount <= 0 {
		return nil, errs.InvalidRequest("accrual amount must be positive")
	}
	return e.PostInTx(ctx, tx, tenantID, CreateJournalInput{
		Type:        JournalInterestAccrual,
		Description: "Interest accrual",
		ContractID:  contractID,
		Entries: []EntryInput{
			{AccountCode: accounts.LoansInterest, DebitCents: amount},
			{AccountCode: accounts.RevenueInterest, CreditCents: amount},
		},
		CreatedBy: actor,
	})
}

// PrefundDepositJournal records lender cash arriving into custody: the
// platform gains cash and owes the lender the same amount.
func (e *Engine) PrefundDepositJournal(ctx context.Context, tx TxStore, tenantID string, amount money.Cents, actor string) (*Journal, error) {
	if amount <= 0 {
		return nil, errs.InvalidRequest("deposit amount must be positive")
	}
	return e.PostInTx(ctx, tx, tenantID, CreateJournalInput{
		Type:        JournalAdjustment,
		Description: "Prefund deposit",
		Entries: []EntryInput{
			{AccountCode: accounts.CashPrefund, DebitCents: amount},
			{AccountCode: accounts.PrefundBalances, CreditCents: amount},
		},
		CreatedBy: actor,
	})
}

// PrefundWithdrawalJournal records custody cash returned to the lender.
func (e *Engine) PrefundWithdrawalJournal(ctx context.Context, tx TxStore, tenantID string, amount money.Cents, actor string) (*Journal, error) {
	if amount <= 0 {
		return nil, errs.InvalidRequest("withdrawal amount must be positive")
	}
	return e.PostInTx(ctx, tx, tenantID, CreateJournalInput{
		Type:        JournalAdjustment,
		Description: "Prefund withdrawal",
		Entries: []EntryInput{
			{AccountCode: accounts.PrefundBalances, DebitCents: amount},
			{AccountCode: accounts.CashPrefund, CreditCents: amount},
		},
		CreatedBy: actor,
	})
}

// WriteOffJournal moves a contract's remaining receivables to bad debt.
func (e *Engine) WriteOffJournal(ctx context.Context, tx TxStore, tenantID, contractID string, balances ContractBalances, actor string) (*Journal, error) {
	total := balances.PrincipalCents + balances.InterestCents + balances.FeesCents
	if total <= 0 {
		return nil, errs.InvalidRequest("nothing to write off")
	}
	entries := []EntryInput{{AccountCode: accounts.ExpensesBadDebt, DebitCents: total}}
	if balances.PrincipalCents > 0 {
		entries = append(entries, EntryInput{AccountCode: accounts.LoansPrincipal, CreditCents: balances.PrincipalCents})
	}
	if balances.InterestCents > 0 {
		entries = append(entries, EntryInput{AccountCode: accounts.LoansInterest, CreditCents: balances.InterestCents})
	}
	if balances.FeesCents > 0 {
		entries = append(entries, EntryInput{AccountCode: accounts.LoansFees, CreditCents: balances.FeesCents})
	}
	return e.PostInTx(ctx, tx, tenantID, CreateJournalInput{
		Type:        JournalAdjustment,
		Description: "Write-off",
		ContractID:  contractID,
		Entries:     entries,
		CreatedBy:   actor,
	})
}
