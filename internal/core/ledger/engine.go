// Package ledger implements the double-entry ledger engine: balanced
// journal creation, running balances, reversal-only mutability and the
// trial balance report.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/bigfin/bigfind/internal/core/accounts"
	"github.com/bigfin/bigfind/internal/core/errs"
	"github.com/bigfin/bigfind/internal/core/money"
)

const accountCacheSize = 1024

// Engine posts journals against a Store. Safe for concurrent use; account
// ordering inside the store transaction provides the serialization across
// journals touching overlapping accounts.
type Engine struct {
	store Store
	clock func() time.Time

	// accountTypes caches code -> account type. Accounts are immutable so
	// entries never need invalidation.
	accountTypes *lru.Cache[string, accounts.Type]
}

// NewEngine creates a ledger engine over the given store.
func NewEngine(store Store) *Engine {
	cache, _ := lru.New[string, accounts.Type](accountCacheSize)
	return &Engine{
		store:        store,
		clock:        time.Now,
		accountTypes: cache,
	}
}

// WithClock overrides the engine clock. Test hook.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	return e
}

// SeedChart inserts any missing accounts from the given chart. Existing
// codes are left untouched.
func (e *Engine) SeedChart(ctx context.Context, chart []accounts.Account) error {
	return e.store.WithinTx(ctx, func(tx TxStore) error {
		for i := range chart {
			a := chart[i]
			if err := accounts.ValidateCode(a.Code); err != nil {
				return err
			}
			if !a.Type.Valid() {
				return errs.InvalidRequest("account %s has invalid type %q", a.Code, a.Type)
			}
			_, err := tx.GetAccount(ctx, a.Code)
			if err == nil {
				continue
			}
			if !errors.Is(err, ErrAccountNotFound) {
				return err
			}
			if a.ParentCode != "" {
				if _, perr := tx.GetAccount(ctx, a.ParentCode); perr != nil {
					return errs.InvalidRequest("account %s references missing parent %s", a.Code, a.ParentCode)
				}
			}
			if a.CreatedAt.IsZero() {
				a.CreatedAt = e.clock()
			}
			if err := tx.InsertAccount(ctx, &a); err != nil {
				return err
			}
		}
		return nil
	})
}

// CreateJournal validates and posts a balanced journal in one transaction.
// No side effects occur on validation failure.
func (e *Engine) CreateJournal(ctx context.Context, tenantID string, in CreateJournalInput) (*Journal, error) {
	var j *Journal
	err := e.store.WithinTx(ctx, func(tx TxStore) error {
		var err error
		j, err = e.PostInTx(ctx, tx, tenantID, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	return j, nil
}

// PostInTx posts a journal inside an already-open transaction. The transfer
// orchestrator uses this to combine record updates and ledger effects into
// one commit.
func (e *Engine) PostInTx(ctx context.Context, tx TxStore, tenantID string, in CreateJournalInput) (*Journal, error) {
	if err := e.validateInput(ctx, tx, tenantID, in); err != nil {
		return nil, err
	}

	now := e.clock()
	j := &Journal{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		ContractID:  in.ContractID,
		Type:        in.Type,
		Description: in.Description,
		IsReversal:  in.Type == JournalReversal,
		CreatedBy:   in.CreatedBy,
		CreatedAt:   now,
	}

	// Lock touched accounts in canonical order before reading balances.
	codes := make([]string, 0, len(in.Entries))
	seen := make(map[string]bool, len(in.Entries))
	for _, entry := range in.Entries {
		if !seen[entry.AccountCode] {
			seen[entry.AccountCode] = true
			codes = append(codes, entry.AccountCode)
		}
	}
	sort.Strings(codes)
	if err := tx.LockAccounts(ctx, codes); err != nil {
		return nil, err
	}

	// Running balances cascade in input order; entries of this journal that
	// hit the same account observe each other.
	running := make(map[string]money.Cents, len(codes))
	for _, code := range codes {
		last, err := tx.LastEntry(ctx, tenantID, code)
		if err != nil {
			return nil, err
		}
		if last != nil {
			running[code] = last.BalanceAfterCents
		}
	}

	j.Entries = make([]Entry, 0, len(in.Entries))
	for _, entry := range in.Entries {
		side, err := e.normalSide(ctx, tx, entry.AccountCode)
		if err != nil {
			return nil, err
		}
		prev := running[entry.AccountCode]
		var after money.Cents
		if side == accounts.SideDebit {
			after = prev + entry.DebitCents - entry.CreditCents
		} else {
			after = prev + entry.CreditCents - entry.DebitCents
		}
		running[entry.AccountCode] = after
		j.Entries = append(j.Entries, Entry{
			JournalID:         j.ID,
			AccountCode:       entry.AccountCode,
			DebitCents:        entry.DebitCents,
			CreditCents:       entry.CreditCents,
			BalanceAfterCents: after,
			CreatedAt:         now,
		})
	}

	if err := tx.InsertJournal(ctx, j); err != nil {
		return nil, err
	}
	return j, nil
}

// validateInput performs all pre-write checks. Violations surface as
// INVALID_REQUEST with no state change.
func (e *Engine) validateInput(ctx context.Context, tx TxStore, tenantID string, in CreateJournalInput) error {
	if tenantID == "" {
		return errs.InvalidRequest("tenant is required")
	}
	if !in.Type.Valid() {
		return errs.InvalidRequest("invalid journal type %q", in.Type)
	}
	if len(in.Entries) < 2 {
		return errs.InvalidRequest("a journal requires at least two entries")
	}

	var debits, credits money.Cents
	for i, entry := range in.Entries {
		if entry.DebitCents < 0 || entry.CreditCents < 0 {
			return errs.InvalidRequest("entry %d: negative amount", i)
		}
		if (entry.DebitCents == 0) == (entry.CreditCents == 0) {
			return errs.InvalidRequest("entry %d: exactly one of debit or credit must be non-zero", i)
		}
		if _, err := e.normalSide(ctx, tx, entry.AccountCode); err != nil {
			if errors.Is(err, ErrAccountNotFound) {
				return errs.InvalidRequest("entry %d: unknown account %q", i, entry.AccountCode)
			}
			return err
		}
		debits += entry.DebitCents
		credits += entry.CreditCents
	}
	if debits != credits {
		return errs.InvalidRequest("journal is unbalanced: debits %d != credits %d", debits, credits).
			WithDetail("total_debit_cents", int64(debits)).
			WithDetail("total_credit_cents", int64(credits))
	}
	return nil
}

func (e *Engine) normalSide(ctx context.Context, tx TxStore, code string) (accounts.Side, error) {
	if t, ok := e.accountTypes.Get(code); ok {
		return t.NormalSide(), nil
	}
	a, err := tx.GetAccount(ctx, code)
	if err != nil {
		return "", err
	}
	e.accountTypes.Add(code, a.Type)
	return a.Type.NormalSide(), nil
}

// ReverseJournal creates a REVERSAL journal whose entries swap the
// original's debits and credits, and links the original to it, all in one
// transaction. Running balances are recomputed through the account rather
// than copied, so interleaved journals stay consistent.
func (e *Engine) ReverseJournal(ctx context.Context, tenantID, journalID, reason, actor string) (*Journal, error) {
	var reversal *Journal
	err := e.store.WithinTx(ctx, func(tx TxStore) error {
		var err error
		reversal, err = e.ReverseInTx(ctx, tx, tenantID, journalID, reason, actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	return reversal, nil
}

// ReverseInTx reverses a journal inside an already-open transaction.
func (e *Engine) ReverseInTx(ctx context.Context, tx TxStore, tenantID, journalID, reason, actor string) (*Journal, error) {
	original, err := tx.GetJournal(ctx, tenantID, journalID)
	if err != nil {
		if errors.Is(err, ErrJournalNotFound) {
			return nil, errs.NotFound("journal", journalID)
		}
		return nil, err
	}
	if original.IsReversal {
		return nil, errs.New(errs.CodeInvalidState, "journal %s is itself a reversal", journalID)
	}
	if original.ReversedByJournalID != "" {
		return nil, errs.New(errs.CodeInvalidState, "journal %s is already reversed by %s", journalID, original.ReversedByJournalID)
	}

	entries := make([]EntryInput, 0, len(original.Entries))
	for _, entry := range original.Entries {
		entries = append(entries, EntryInput{
			AccountCode: entry.AccountCode,
			DebitCents:  entry.CreditCents,
			CreditCents: entry.DebitCents,
		})
	}

	reversal, err := e.PostInTx(ctx, tx, tenantID, CreateJournalInput{
		Type:        JournalReversal,
		Description: fmt.Sprintf("Reversal of %s: %s", journalID, reason),
		ContractID:  original.ContractID,
		Entries:     entries,
		CreatedBy:   actor,
	})
	if err != nil {
		return nil, err
	}
	reversal.ReversesJournalID = journalID
	reversal.ReversalReason = reason

	if err := tx.SetReversedBy(ctx, tenantID, journalID, reversal.ID); err != nil {
		return nil, err
	}
	return reversal, nil
}

// GetAccountBalance returns the account's current running balance: the
// latest entry's balance_after, or zero for an untouched account.
func (e *Engine) GetAccountBalance(ctx context.Context, tenantID, code string) (money.Cents, error) {
	if _, err := e.normalSide(ctx, e.store, code); err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return 0, errs.NotFound("account", code)
		}
		return 0, err
	}
	last, err := e.store.LastEntry(ctx, tenantID, code)
	if err != nil {
		return 0, err
	}
	if last == nil {
		return 0, nil
	}
	return last.BalanceAfterCents, nil
}

// GetContractBalances derives the outstanding principal, interest and fee
// receivables for one contract from its posted entries.
func (e *Engine) GetContractBalances(ctx context.Context, tenantID, contractID string) (ContractBalances, error) {
	sums, err := e.store.ContractEntrySums(ctx, tenantID, contractID)
	if err != nil {
		return ContractBalances{}, err
	}
	var b ContractBalances
	for _, s := range sums {
		net := s.DebitCents - s.CreditCents // Loans:* accounts are assets
		switch s.AccountCode {
		case accounts.LoansPrincipal:
			b.PrincipalCents = net
		case accounts.LoansInterest:
			b.InterestCents = net
		case accounts.LoansFees:
			b.FeesCents = net
		}
	}
	b.TotalCents = b.PrincipalCents + b.InterestCents + b.FeesCents
	return b, nil
}

// GetTrialBalance reports per-account totals and checks conservation.
func (e *Engine) GetTrialBalance(ctx context.Context, tenantID string) (*TrialBalance, error) {
	sums, err := e.store.EntrySums(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	chart, err := e.store.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(chart))
	sides := make(map[string]accounts.Side, len(chart))
	for _, a := range chart {
		names[a.Code] = a.Name
		sides[a.Code] = a.Type.NormalSide()
	}

	tb := &TrialBalance{AsOf: e.clock()}
	for _, s := range sums {
		net := s.DebitCents - s.CreditCents
		if sides[s.AccountCode] == accounts.SideCredit {
			net = s.CreditCents - s.DebitCents
		}
		tb.Rows = append(tb.Rows, TrialBalanceRow{
			AccountCode: s.AccountCode,
			AccountName: names[s.AccountCode],
			DebitCents:  s.DebitCents,
			CreditCents: s.CreditCents,
			NetCents:    net,
		})
		tb.TotalDebitCents += s.DebitCents
		tb.TotalCreditCents += s.CreditCents
	}
	sort.Slice(tb.Rows, func(i, j int) bool { return tb.Rows[i].AccountCode < tb.Rows[j].AccountCode })
	tb.IsBalanced = tb.TotalDebitCents == tb.TotalCreditCents
	return tb, nil
}

// GetContractJournals lists a contract's journals with entries, newest
// first.
func (e *Engine) GetContractJournals(ctx context.Context, tenantID, contractID string, page Page) ([]Journal, error) {
	return e.store.ListContractJournals(ctx, tenantID, contractID, page.Normalize())
}
