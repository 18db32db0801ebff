package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/bigfin/bigfind/internal/core/accounts"
	"github.com/bigfin/bigfind/internal/core/ledger"
	"github.com/bigfin/bigfind/internal/core/prefund"
)

func (s *Store) GetAccount(ctx context.Context, code string) (*accounts.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[code]
	if !ok {
		return nil, ledger.ErrAccountNotFound
	}
	return &a, nil
}

func (s *Store) InsertAccount(ctx context.Context, a *accounts.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[a.Code]; ok {
		return fmt.Errorf("account %s already exists", a.Code)
	}
	s.accounts[a.Code] = *a
	return nil
}

func (s *Store) ListAccounts(ctx context.Context) ([]accounts.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]accounts.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// LockAccounts is a no-op; the transaction mutex already serialises writers.
func (s *Store) LockAccounts(ctx context.Context, codes []string) error {
	return nil
}

func (s *Store) LastEntry(ctx context.Context, tenantID, accountCode string) (*ledger.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.entries) - 1; i >= 0; i-- {
		row := s.entries[i]
		if row.tenantID == tenantID && row.entry.AccountCode == accountCode {
			e := row.entry
			return &e, nil
		}
	}
	return nil, nil
}

func (s *Store) InsertJournal(ctx context.Context, j *ledger.Journal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(j.TenantID, j.ID)
	if _, ok := s.journals[k]; ok {
		return fmt.Errorf("journal %s already exists", j.ID)
	}

	stored := *j
	stored.Entries = append([]ledger.Entry(nil), j.Entries...)
	s.journals[k] = stored
	s.journalOrder = append(s.journalOrder, k)
	for _, e := range stored.Entries {
		s.entries = append(s.entries, entryRow{tenantID: j.TenantID, entry: e})
	}
	return nil
}

func (s *Store) GetJournal(ctx context.Context, tenantID, journalID string) (*ledger.Journal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.journals[key(tenantID, journalID)]
	if !ok {
		return nil, ledger.ErrJournalNotFound
	}
	out := j
	out.Entries = append([]ledger.Entry(nil), j.Entries...)
	return &out, nil
}

func (s *Store) SetReversedBy(ctx context.Context, tenantID, journalID, reversalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(tenantID, journalID)
	j, ok := s.journals[k]
	if !ok {
		return ledger.ErrJournalNotFound
	}
	if j.ReversedByJournalID != "" {
		return fmt.Errorf("journal %s already carries a reversal link", journalID)
	}
	j.ReversedByJournalID = reversalID
	s.journals[k] = j
	return nil
}

func (s *Store) ListContractJournals(ctx context.Context, tenantID, contractID string, page ledger.Page) ([]ledger.Journal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	page = page.Normalize()
	var matched []ledger.Journal
	for _, k := range s.journalOrder {
		j := s.journals[k]
		if j.TenantID == tenantID && j.ContractID == contractID {
			out := j
			out.Entries = append([]ledger.Entry(nil), j.Entries...)
			matched = append(matched, out)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if page.Offset >= len(matched) {
		return nil, nil
	}
	matched = matched[page.Offset:]
	if len(matched) > page.Limit {
		matched = matched[:page.Limit]
	}
	return matched, nil
}

func (s *Store) EntrySums(ctx context.Context, tenantID string) ([]ledger.AccountSum, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sums := make(map[string]*ledger.AccountSum)
	for _, row := range s.entries {
		if row.tenantID != tenantID {
			continue
		}
		accumulate(sums, row.entry)
	}
	return sortedSums(sums), nil
}

func (s *Store) ContractEntrySums(ctx context.Context, tenantID, contractID string) ([]ledger.AccountSum, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sums := make(map[string]*ledger.AccountSum)
	for _, row := range s.entries {
		if row.tenantID != tenantID {
			continue
		}
		j, ok := s.journals[key(tenantID, row.entry.JournalID)]
		if !ok || j.ContractID != contractID {
			continue
		}
		accumulate(sums, row.entry)
	}
	return sortedSums(sums), nil
}

func accumulate(sums map[string]*ledger.AccountSum, e ledger.Entry) {
	sum, ok := sums[e.AccountCode]
	if !ok {
		sum = &ledger.AccountSum{AccountCode: e.AccountCode}
		sums[e.AccountCode] = sum
	}
	sum.DebitCents += e.DebitCents
	sum.CreditCents += e.CreditCents
}

func sortedSums(sums map[string]*ledger.AccountSum) []ledger.AccountSum {
	out := make([]ledger.AccountSum, 0, len(sums))
	for _, sum := range sums {
		out = append(out, *sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountCode < out[j].AccountCode })
	return out
}

func (s *Store) LatestCompleted(ctx context.Context, tenantID, customerID string) (*prefund.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.prefundTxs) - 1; i >= 0; i-- {
		t := s.prefundTxs[i]
		if t.TenantID == tenantID && t.CustomerID == customerID && t.Status == prefund.StatusCompleted {
			return &t, nil
		}
	}
	return nil, prefund.ErrNoTransactions
}

func (s *Store) ListCompleted(ctx context.Context, tenantID, customerID string) ([]prefund.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []prefund.Transaction
	for _, t := range s.prefundTxs {
		if t.TenantID == tenantID && t.CustomerID == customerID && t.Status == prefund.StatusCompleted {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Store) ListCustomers(ctx context.Context, tenantID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool)
	var out []string
	for _, t := range s.prefundTxs {
		if t.TenantID == tenantID && !seen[t.CustomerID] {
			seen[t.CustomerID] = true
			out = append(out, t.CustomerID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) AppendTransaction(ctx context.Context, t *prefund.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.prefundTxs = append(s.prefundTxs, *t)
	return nil
}
