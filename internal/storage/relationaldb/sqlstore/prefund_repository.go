package sqlstore

import (
	"context"
	"database/sql"

	"github.com/bigfin/bigfind/internal/core/prefund"
	"github.com/bigfin/bigfind/internal/storage/relationaldb"
)

// PrefundRepository implements prefund.Store against an executor.
type PrefundRepository struct {
	exec   executor
	driver string
}

func NewPrefundRepository(exec executor, driver string) *PrefundRepository {
	return &PrefundRepository{exec: exec, driver: driver}
}

func (r *PrefundRepository) LatestCompleted(ctx context.Context, tenantID, customerID string) (*prefund.Transaction, error) {
	query := rebind(r.driver, forUpdate(r.driver, `SELECT id, tenant_id, customer_id, type, amount_cents,
			status, balance_after_cents, available_after_cents, created_at
		FROM prefund_transactions
		WHERE tenant_id = ? AND customer_id = ? AND status = ?
		ORDER BY created_at DESC, id DESC LIMIT 1`))

	var t prefund.Transaction
	err := r.exec.QueryRowContext(ctx, query, tenantID, customerID, prefund.StatusCompleted).Scan(
		&t.ID, &t.TenantID, &t.CustomerID, &t.Type, &t.AmountCents,
		&t.Status, &t.BalanceAfterCents, &t.AvailableAfterCents, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, prefund.ErrNoTransactions
	}
	if err != nil {
		return nil, relationaldb.NewQueryError("latest_completed", "failed to load prefund transaction", err)
	}
	return &t, nil
}

func (r *PrefundRepository) ListCompleted(ctx context.Context, tenantID, customerID string) ([]prefund.Transaction, error) {
	query := rebind(r.driver, `SELECT id, tenant_id, customer_id, type, amount_cents,
			status, balance_after_cents, available_after_cents, created_at
		FROM prefund_transactions
		WHERE tenant_id = ? AND customer_id = ? AND status = ?
		ORDER BY created_at, id`)

	rows, err := r.exec.QueryContext(ctx, query, tenantID, customerID, prefund.StatusCompleted)
	if err != nil {
		return nil, relationaldb.NewQueryError("list_completed", "failed to list prefund transactions", err)
	}
	defer rows.Close()

	var out []prefund.Transaction
	for rows.Next() {
		var t prefund.Transaction
		if err := rows.Scan(&t.ID, &t.TenantID, &t.CustomerID, &t.Type, &t.AmountCents,
			&t.Status, &t.BalanceAfterCents, &t.AvailableAfterCents, &t.CreatedAt); err != nil {
			return nil, relationaldb.NewDataError("list_completed", "failed to scan prefund transaction", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *PrefundRepository) ListCustomers(ctx context.Context, tenantID string) ([]string, error) {
	query := rebind(r.driver, `SELECT DISTINCT customer_id FROM prefund_transactions
		WHERE tenant_id = ? ORDER BY customer_id`)

	rows, err := r.exec.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, relationaldb.NewQueryError("list_customers", "failed to list prefund customers", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, relationaldb.NewDataError("list_customers", "failed to scan customer id", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *PrefundRepository) AppendTransaction(ctx context.Context, t *prefund.Transaction) error {
	query := rebind(r.driver, `INSERT INTO prefund_transactions
		(id, tenant_id, customer_id, type, amount_cents, status,
		 balance_after_cents, available_after_cents, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := r.exec.ExecContext(ctx, query,
		t.ID, t.TenantID, t.CustomerID, t.Type, t.AmountCents, t.Status,
		t.BalanceAfterCents, t.AvailableAfterCents, t.CreatedAt)
	if err != nil {
		return relationaldb.WrapError(err, "append_prefund_transaction")
	}
	return nil
}
