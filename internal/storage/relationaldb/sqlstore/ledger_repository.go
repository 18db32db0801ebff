package sqlstore

import (
	"context"
	"database/sql"
	"strings"

	"github.com/bigfin/bigfind/internal/core/accounts"
	"github.com/bigfin/bigfind/internal/core/ledger"
	"github.com/bigfin/bigfind/internal/storage/relationaldb"
)

// LedgerRepository implements ledger.TxStore against an executor, which may
// be the pool or an open transaction.
type LedgerRepository struct {
	exec   executor
	driver string
}

func NewLedgerRepository(exec executor, driver string) *LedgerRepository {
	return &LedgerRepository{exec: exec, driver: driver}
}

func (r *LedgerRepository) GetAccount(ctx context.Context, code string) (*accounts.Account, error) {
	query := rebind(r.driver, `SELECT code, name, type, parent_code, is_system, created_at
		FROM accounts WHERE code = ?`)

	var a accounts.Account
	err := r.exec.QueryRowContext(ctx, query, code).Scan(
		&a.Code, &a.Name, &a.Type, &a.ParentCode, &a.IsSystem, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrAccountNotFound
	}
	if err != nil {
		return nil, relationaldb.NewQueryError("get_account", "failed to load account", err)
	}
	return &a, nil
}

func (r *LedgerRepository) InsertAccount(ctx context.Context, a *accounts.Account) error {
	query := rebind(r.driver, `INSERT INTO accounts
		(code, name, type, parent_code, is_system, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`)

	_, err := r.exec.ExecContext(ctx, query,
		a.Code, a.Name, a.Type, a.ParentCode, a.IsSystem, a.CreatedAt)
	if err != nil {
		return relationaldb.WrapError(err, "insert_account")
	}
	return nil
}

func (r *LedgerRepository) ListAccounts(ctx context.Context) ([]accounts.Account, error) {
	query := `SELECT code, name, type, parent_code, is_system, created_at
		FROM accounts ORDER BY code`

	rows, err := r.exec.QueryContext(ctx, query)
	if err != nil {
		return nil, relationaldb.NewQueryError("list_accounts", "failed to list accounts", err)
	}
	defer rows.Close()

	var out []accounts.Account
	for rows.Next() {
		var a accounts.Account
		if err := rows.Scan(&a.Code, &a.Name, &a.Type, &a.ParentCode, &a.IsSystem, &a.CreatedAt); err != nil {
			return nil, relationaldb.NewDataError("list_accounts", "failed to scan account", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *LedgerRepository) LockAccounts(ctx context.Context, codes []string) error {
	// SQLite serialises the whole database per write transaction, so the
	// row locks are only needed on postgres.
	if r.driver != "postgres" || len(codes) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(codes)), ", ")
	query := rebind(r.driver, forUpdate(r.driver,
		"SELECT code FROM accounts WHERE code IN ("+placeholders+")"))

	args := make([]interface{}, len(codes))
	for i, c := range codes {
		args[i] = c
	}
	rows, err := r.exec.QueryContext(ctx, query, args...)
	if err != nil {
		return relationaldb.NewQueryError("lock_accounts", "failed to lock accounts", err)
	}
	return rows.Close()
}

func (r *LedgerRepository) LastEntry(ctx context.Context, tenantID, accountCode string) (*ledger.Entry, error) {
	query := rebind(r.driver, `SELECT journal_id, account_code, debit_cents, credit_cents,
			balance_after_cents, created_at
		FROM entries WHERE tenant_id = ? AND account_code = ?
		ORDER BY created_at DESC, seq DESC LIMIT 1`)

	var e ledger.Entry
	err := r.exec.QueryRowContext(ctx, query, tenantID, accountCode).Scan(
		&e.JournalID, &e.AccountCode, &e.DebitCents, &e.CreditCents,
		&e.BalanceAfterCents, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, relationaldb.NewQueryError("last_entry", "failed to load last entry", err)
	}
	return &e, nil
}

func (r *LedgerRepository) InsertJournal(ctx context.Context, j *ledger.Journal) error {
	journalQuery := rebind(r.driver, `INSERT INTO journals
		(id, tenant_id, contract_id, type, description, is_reversal,
		 reverses_journal_id, reversed_by_journal_id, reversal_reason,
		 created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := r.exec.ExecContext(ctx, journalQuery,
		j.ID, j.TenantID, j.ContractID, j.Type, j.Description, j.IsReversal,
		j.ReversesJournalID, j.ReversedByJournalID, j.ReversalReason,
		j.CreatedBy, j.CreatedAt)
	if err != nil {
		return relationaldb.WrapError(err, "insert_journal")
	}

	entryQuery := rebind(r.driver, `INSERT INTO entries
		(journal_id, seq, tenant_id, account_code, debit_cents, credit_cents,
		 balance_after_cents, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)

	for seq, e := range j.Entries {
		_, err := r.exec.ExecContext(ctx, entryQuery,
			j.ID, seq, j.TenantID, e.AccountCode, e.DebitCents, e.CreditCents,
			e.BalanceAfterCents, e.CreatedAt)
		if err != nil {
			return relationaldb.WrapError(err, "insert_journal_entry")
		}
	}
	return nil
}

func (r *LedgerRepository) GetJournal(ctx context.Context, tenantID, journalID string) (*ledger.Journal, error) {
	query := rebind(r.driver, `SELECT id, tenant_id, contract_id, type, description,
			is_reversal, reverses_journal_id, reversed_by_journal_id,
			reversal_reason, created_by, created_at
		FROM journals WHERE tenant_id = ? AND id = ?`)

	var j ledger.Journal
	err := r.exec.QueryRowContext(ctx, query, tenantID, journalID).Scan(
		&j.ID, &j.TenantID, &j.ContractID, &j.Type, &j.Description,
		&j.IsReversal, &j.ReversesJournalID, &j.ReversedByJournalID,
		&j.ReversalReason, &j.CreatedBy, &j.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrJournalNotFound
	}
	if err != nil {
		return nil, relationaldb.NewQueryError("get_journal", "failed to load journal", err)
	}

	entries, err := r.journalEntries(ctx, j.ID)
	if err != nil {
		return nil, err
	}
	j.Entries = entries
	return &j, nil
}

func (r *LedgerRepository) journalEntries(ctx context.Context, journalID string) ([]ledger.Entry, error) {
	query := rebind(r.driver, `SELECT journal_id, account_code, debit_cents, credit_cents,
			balance_after_cents, created_at
		FROM entries WHERE journal_id = ? ORDER BY seq`)

	rows, err := r.exec.QueryContext(ctx, query, journalID)
	if err != nil {
		return nil, relationaldb.NewQueryError("journal_entries", "failed to load entries", err)
	}
	defer rows.Close()

	var out []ledger.Entry
	for rows.Next() {
		var e ledger.Entry
		if err := rows.Scan(&e.JournalID, &e.AccountCode, &e.DebitCents, &e.CreditCents,
			&e.BalanceAfterCents, &e.CreatedAt); err != nil {
			return nil, relationaldb.NewDataError("journal_entries", "failed to scan entry", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *LedgerRepository) SetReversedBy(ctx context.Context, tenantID, journalID, reversalID string) error {
	query := rebind(r.driver, `UPDATE journals SET reversed_by_journal_id = ?
		WHERE tenant_id = ? AND id = ? AND reversed_by_journal_id = ''`)

	res, err := r.exec.ExecContext(ctx, query, reversalID, tenantID, journalID)
	if err != nil {
		return relationaldb.WrapError(err, "set_reversed_by")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return relationaldb.NewQueryError("set_reversed_by", "failed to read rows affected", err)
	}
	if affected == 0 {
		if _, err := r.GetJournal(ctx, tenantID, journalID); err != nil {
			return err
		}
		return relationaldb.NewConstraintError("set_reversed_by",
			"journal already carries a reversal link", nil)
	}
	return nil
}

func (r *LedgerRepository) ListContractJournals(ctx context.Context, tenantID, contractID string, page ledger.Page) ([]ledger.Journal, error) {
	page = page.Normalize()
	query := rebind(r.driver, `SELECT id, tenant_id, contract_id, type, description,
			is_reversal, reverses_journal_id, reversed_by_journal_id,
			reversal_reason, created_by, created_at
		FROM journals WHERE tenant_id = ? AND contract_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`)

	rows, err := r.exec.QueryContext(ctx, query, tenantID, contractID, page.Limit, page.Offset)
	if err != nil {
		return nil, relationaldb.NewQueryError("list_contract_journals", "failed to list journals", err)
	}
	defer rows.Close()

	var out []ledger.Journal
	for rows.Next() {
		var j ledger.Journal
		if err := rows.Scan(&j.ID, &j.TenantID, &j.ContractID, &j.Type, &j.Description,
			&j.IsReversal, &j.ReversesJournalID, &j.ReversedByJournalID,
			&j.ReversalReason, &j.CreatedBy, &j.CreatedAt); err != nil {
			return nil, relationaldb.NewDataError("list_contract_journals", "failed to scan journal", err)
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, relationaldb.NewQueryError("list_contract_journals", "row iteration failed", err)
	}

	for i := range out {
		entries, err := r.journalEntries(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Entries = entries
	}
	return out, nil
}

func (r *LedgerRepository) EntrySums(ctx context.Context, tenantID string) ([]ledger.AccountSum, error) {
	query := rebind(r.driver, `SELECT account_code,
			COALESCE(SUM(debit_cents), 0), COALESCE(SUM(credit_cents), 0)
		FROM entries WHERE tenant_id = ?
		GROUP BY account_code ORDER BY account_code`)

	return r.scanSums(ctx, "entry_sums", query, tenantID)
}

func (r *LedgerRepository) ContractEntrySums(ctx context.Context, tenantID, contractID string) ([]ledger.AccountSum, error) {
	query := rebind(r.driver, `SELECT e.account_code,
			COALESCE(SUM(e.debit_cents), 0), COALESCE(SUM(e.credit_cents), 0)
		FROM entries e
		JOIN journals j ON j.id = e.journal_id
		WHERE e.tenant_id = ? AND j.contract_id = ?
		GROUP BY e.account_code ORDER BY e.account_code`)

	return r.scanSums(ctx, "contract_entry_sums", query, tenantID, contractID)
}

func (r *LedgerRepository) scanSums(ctx context.Context, op, query string, args ...interface{}) ([]ledger.AccountSum, error) {
	rows, err := r.exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, relationaldb.NewQueryError(op, "failed to aggregate entries", err)
	}
	defer rows.Close()

	var out []ledger.AccountSum
	for rows.Next() {
		var s ledger.AccountSum
		if err := rows.Scan(&s.AccountCode, &s.DebitCents, &s.CreditCents); err != nil {
			return nil, relationaldb.NewDataError(op, "failed to scan aggregate", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
