package ledger

import (
	"time"

	"github.com/bigfin/bigfind/internal/core/money"
)

// JournalType classifies the business event a journal records.
type JournalType string

const (
	JournalDisbursement    JournalType = "DISBURSEMENT"
	JournalRepayment       JournalType = "REPAYMENT"
	JournalFeeAssessment   JournalType = "FEE_ASSESSMENT"
	JournalInterestAccrual JournalType = "INTEREST_ACCRUAL"
	JournalAdjustment      JournalType = "ADJUSTMENT"
	JournalReversal        JournalType = "REVERSAL"
)

// Valid reports whether t is a known journal type.
func (t JournalType) Valid() bool {
	switch t {
	case JournalDisbursement, JournalRepayment, JournalFeeAssessment,
		JournalInterestAccrual, JournalAdjustment, JournalReversal:
		return true
	}
	return false
}

// Journal is an append-only unit of posting. After creation the only
// permitted mutation is setting ReversedByJournalID, exactly once.
type Journal struct {
	ID                  string
	TenantID            string
	ContractID          string // empty for contract-free journals (prefund moves)
	Type                JournalType
	Description         string
	IsReversal          bool
	ReversesJournalID   string
	ReversedByJournalID string
	ReversalReason      string
	CreatedBy           string
	CreatedAt           time.Time

	Entries []Entry
}

// Entry is a single debit or credit line within a journal. Exactly one of
// DebitCents and CreditCents is non-zero. BalanceAfterCents is the account's
// running total after this entry, signed per the account's normal side.
type Entry struct {
	JournalID         string
	AccountCode       string
	DebitCents        money.Cents
	CreditCents       money.Cents
	BalanceAfterCents money.Cents
	CreatedAt         time.Time
}

// EntryInput is a caller-supplied journal line before posting.
type EntryInput struct {
	AccountCode string
	DebitCents  money.Cents
	CreditCents money.Cents
}

// CreateJournalInput is the request to post a new journal.
type CreateJournalInput struct {
	Type        JournalType
	Description string
	ContractID  string
	Entries     []EntryInput
	CreatedBy   string
}

// ContractBalances is the per-component view of a contract's receivables,
// derived from the Loans:* entries of its journals.
type ContractBalances struct {
	PrincipalCents money.Cents
	InterestCents  money.Cents
	FeesCents      money.Cents
	TotalCents     money.Cents
}

// TrialBalanceRow is one account's totals in a trial balance report.
type TrialBalanceRow struct {
	AccountCode string
	AccountName string
	DebitCents  money.Cents
	CreditCents money.Cents
	NetCents    money.Cents // signed per the account's normal side
}

// TrialBalance is the full report. IsBalanced is the core conservation
// check: total debits must equal total credits exactly.
type TrialBalance struct {
	Rows             []TrialBalanceRow
	TotalDebitCents  money.Cents
	TotalCreditCents money.Cents
	IsBalanced       bool
	AsOf             time.Time
}

// Page bounds a listing query.
type Page struct {
	Limit  int
	Offset int
}

// Normalize clamps a page to sane bounds.
func (p Page) Normalize() Page {
	if p.Limit <= 0 || p.Limit > 500 {
		p.Limit = 50
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
