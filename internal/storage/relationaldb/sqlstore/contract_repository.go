package sqlstore

import (
	"context"
	"database/sql"

	"github.com/bigfin/bigfind/internal/core/contract"
	"github.com/bigfin/bigfind/internal/storage/relationaldb"
)

// ContractRepository implements contract.Store against an executor.
type ContractRepository struct {
	exec   executor
	driver string
}

func NewContractRepository(exec executor, driver string) *ContractRepository {
	return &ContractRepository{exec: exec, driver: driver}
}

func (r *ContractRepository) GetContract(ctx context.Context, tenantID, contractID string) (*contract.Contract, error) {
	query := rebind(r.driver, forUpdate(r.driver, `SELECT id, tenant_id, customer_id, lender_id, status,
			principal_cents, apr_bps, term_months, payment_frequency,
			first_payment_date, principal_balance_cents, interest_balance_cents,
			fees_balance_cents, disbursed_at, paid_off_at, created_at, updated_at
		FROM contracts WHERE tenant_id = ? AND id = ?`))

	var c contract.Contract
	var disbursedAt, paidOffAt sql.NullTime
	err := r.exec.QueryRowContext(ctx, query, tenantID, contractID).Scan(
		&c.ID, &c.TenantID, &c.CustomerID, &c.LenderID, &c.Status,
		&c.PrincipalCents, &c.APRBps, &c.TermMonths, &c.PaymentFrequency,
		&c.FirstPaymentDate, &c.PrincipalBalanceCents, &c.InterestBalanceCents,
		&c.FeesBalanceCents, &disbursedAt, &paidOffAt, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, contract.ErrContractNotFound
	}
	if err != nil {
		return nil, relationaldb.NewQueryError("get_contract", "failed to load contract", err)
	}
	if disbursedAt.Valid {
		c.DisbursedAt = &disbursedAt.Time
	}
	if paidOffAt.Valid {
		c.PaidOffAt = &paidOffAt.Time
	}
	return &c, nil
}

func (r *ContractRepository) InsertContract(ctx context.Context, c *contract.Contract) error {
	query := rebind(r.driver, `INSERT INTO contracts
		(id, tenant_id, customer_id, lender_id, status, principal_cents,
		 apr_bps, term_months, payment_frequency, first_payment_date,
		 principal_balance_cents, interest_balance_cents, fees_balance_cents,
		 disbursed_at, paid_off_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := r.exec.ExecContext(ctx, query,
		c.ID, c.TenantID, c.CustomerID, c.LenderID, c.Status, c.PrincipalCents,
		c.APRBps, c.TermMonths, c.PaymentFrequency, c.FirstPaymentDate,
		c.PrincipalBalanceCents, c.InterestBalanceCents, c.FeesBalanceCents,
		c.DisbursedAt, c.PaidOffAt, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return relationaldb.WrapError(err, "insert_contract")
	}
	return nil
}

func (r *ContractRepository) UpdateContract(ctx context.Context, c *contract.Contract) error {
	query := rebind(r.driver, `UPDATE contracts SET
		status = ?, principal_balance_cents = ?, interest_balance_cents = ?,
		fees_balance_cents = ?, disbursed_at = ?, paid_off_at = ?, updated_at = ?
		WHERE tenant_id = ? AND id = ?`)

	res, err := r.exec.ExecContext(ctx, query,
		c.Status, c.PrincipalBalanceCents, c.InterestBalanceCents,
		c.FeesBalanceCents, c.DisbursedAt, c.PaidOffAt, c.UpdatedAt,
		c.TenantID, c.ID)
	if err != nil {
		return relationaldb.WrapError(err, "update_contract")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return relationaldb.NewQueryError("update_contract", "failed to read rows affected", err)
	}
	if affected == 0 {
		return contract.ErrContractNotFound
	}
	return nil
}

func (r *ContractRepository) InsertScheduleItems(ctx context.Context, items []contract.ScheduleItem) error {
	query := rebind(r.driver, `INSERT INTO schedule_items
		(id, tenant_id, contract_id, seq, due_date, principal_cents,
		 interest_cents, total_cents)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)

	for _, it := range items {
		_, err := r.exec.ExecContext(ctx, query,
			it.ID, it.TenantID, it.ContractID, it.Sequence, it.DueDate,
			it.PrincipalCents, it.InterestCents, it.TotalCents)
		if err != nil {
			return relationaldb.WrapError(err, "insert_schedule_items")
		}
	}
	return nil
}

func (r *ContractRepository) ListScheduleItems(ctx context.Context, tenantID, contractID string) ([]contract.ScheduleItem, error) {
	query := rebind(r.driver, `SELECT id, tenant_id, contract_id, seq, due_date,
			principal_cents, interest_cents, total_cents
		FROM schedule_items WHERE tenant_id = ? AND contract_id = ?
		ORDER BY seq`)

	rows, err := r.exec.QueryContext(ctx, query, tenantID, contractID)
	if err != nil {
		return nil, relationaldb.NewQueryError("list_schedule_items", "failed to list schedule items", err)
	}
	defer rows.Close()

	var out []contract.ScheduleItem
	for rows.Next() {
		var it contract.ScheduleItem
		if err := rows.Scan(&it.ID, &it.TenantID, &it.ContractID, &it.Sequence,
			&it.DueDate, &it.PrincipalCents, &it.InterestCents, &it.TotalCents); err != nil {
			return nil, relationaldb.NewDataError("list_schedule_items", "failed to scan schedule item", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}
