package sqlstore

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/bigfin/bigfind/internal/core/routing"
	"github.com/bigfin/bigfind/internal/core/transfer"
	"github.com/bigfin/bigfind/internal/storage/relationaldb"
)

// TransferRepository implements the disbursement and repayment persistence
// ports against an executor.
type TransferRepository struct {
	exec   executor
	driver string
}

func NewTransferRepository(exec executor, driver string) *TransferRepository {
	return &TransferRepository{exec: exec, driver: driver}
}

const disbursementColumns = `id, tenant_id, contract_id, amount_cents,
	express_fee_cents, net_amount_cents, source, destination_instrument_id,
	status, availability_state, journal_id, provider_ref, rail,
	idempotency_key, held_until, initiated_at, completed_at, failed_at,
	failure_reason, created_at`

func (r *TransferRepository) InsertDisbursement(ctx context.Context, d *transfer.Disbursement) error {
	query := rebind(r.driver, `INSERT INTO disbursements (`+disbursementColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := r.exec.ExecContext(ctx, query,
		d.ID, d.TenantID, d.ContractID, d.AmountCents,
		d.ExpressFeeCents, d.NetAmountCents, d.Source, d.DestinationInstrumentID,
		d.Status, d.AvailabilityState, d.JournalID, d.ProviderRef, d.Rail,
		d.IdempotencyKey, d.HeldUntil, d.InitiatedAt, d.CompletedAt, d.FailedAt,
		d.FailureReason, d.CreatedAt)
	if err != nil {
		return relationaldb.WrapError(err, "insert_disbursement")
	}
	return nil
}

func (r *TransferRepository) UpdateDisbursement(ctx context.Context, d *transfer.Disbursement) error {
	query := rebind(r.driver, `UPDATE disbursements SET
		status = ?, availability_state = ?, journal_id = ?, provider_ref = ?,
		rail = ?, held_until = ?, initiated_at = ?, completed_at = ?,
		failed_at = ?, failure_reason = ?
		WHERE tenant_id = ? AND id = ?`)

	res, err := r.exec.ExecContext(ctx, query,
		d.Status, d.AvailabilityState, d.JournalID, d.ProviderRef,
		d.Rail, d.HeldUntil, d.InitiatedAt, d.CompletedAt,
		d.FailedAt, d.FailureReason,
		d.TenantID, d.ID)
	if err != nil {
		return relationaldb.WrapError(err, "update_disbursement")
	}
	return requireAffected(res, "update_disbursement")
}

func (r *TransferRepository) GetDisbursement(ctx context.Context, tenantID, id string) (*transfer.Disbursement, error) {
	query := rebind(r.driver, forUpdate(r.driver,
		`SELECT `+disbursementColumns+` FROM disbursements WHERE tenant_id = ? AND id = ?`))
	return r.scanDisbursement(r.exec.QueryRowContext(ctx, query, tenantID, id))
}

func (r *TransferRepository) GetDisbursementByProviderRef(ctx context.Context, tenantID, providerRef string) (*transfer.Disbursement, error) {
	query := rebind(r.driver, forUpdate(r.driver,
		`SELECT `+disbursementColumns+` FROM disbursements
		WHERE tenant_id = ? AND provider_ref = ? AND provider_ref <> ''`))
	return r.scanDisbursement(r.exec.QueryRowContext(ctx, query, tenantID, providerRef))
}

func (r *TransferRepository) ListDisbursementsInitiatedBetween(ctx context.Context, tenantID string, start, end time.Time) ([]transfer.Disbursement, error) {
	query := rebind(r.driver, `SELECT `+disbursementColumns+` FROM disbursements
		WHERE tenant_id = ? AND initiated_at >= ? AND initiated_at <= ?
		ORDER BY initiated_at, id`)
	return r.listDisbursements(ctx, "list_disbursements_initiated_between", query, tenantID, start, end)
}

func (r *TransferRepository) ListHeldDisbursements(ctx context.Context, tenantID string) ([]transfer.Disbursement, error) {
	query := rebind(r.driver, `SELECT `+disbursementColumns+` FROM disbursements
		WHERE tenant_id = ? AND availability_state = ?
		ORDER BY held_until, id`)
	return r.listDisbursements(ctx, "list_held_disbursements", query, tenantID, transfer.AvailabilityHeld)
}

func (r *TransferRepository) listDisbursements(ctx context.Context, op, query string, args ...interface{}) ([]transfer.Disbursement, error) {
	rows, err := r.exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, relationaldb.NewQueryError(op, "failed to list disbursements", err)
	}
	defer rows.Close()

	var out []transfer.Disbursement
	for rows.Next() {
		d, err := r.scanDisbursement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *TransferRepository) scanDisbursement(row rowScanner) (*transfer.Disbursement, error) {
	var d transfer.Disbursement
	var heldUntil, initiatedAt, completedAt, failedAt sql.NullTime
	err := row.Scan(
		&d.ID, &d.TenantID, &d.ContractID, &d.AmountCents,
		&d.ExpressFeeCents, &d.NetAmountCents, &d.Source, &d.DestinationInstrumentID,
		&d.Status, &d.AvailabilityState, &d.JournalID, &d.ProviderRef, &d.Rail,
		&d.IdempotencyKey, &heldUntil, &initiatedAt, &completedAt, &failedAt,
		&d.FailureReason, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, transfer.ErrRecordNotFound
	}
	if err != nil {
		return nil, relationaldb.NewDataError("scan_disbursement", "failed to scan disbursement", err)
	}
	d.HeldUntil = timePtr(heldUntil)
	d.InitiatedAt = timePtr(initiatedAt)
	d.CompletedAt = timePtr(completedAt)
	d.FailedAt = timePtr(failedAt)
	return &d, nil
}

const repaymentColumns = `id, tenant_id, contract_id, amount_cents,
	source_instrument_id, status, availability_state, applied_fee_cents,
	applied_interest_cents, applied_principal_cents, journal_id, provider_ref,
	rail, idempotency_key, held_until, scheduled_for, initiated_at,
	completed_at, failed_at, failure_reason, created_at`

func (r *TransferRepository) InsertRepayment(ctx context.Context, p *transfer.Repayment) error {
	query := rebind(r.driver, `INSERT INTO repayments (`+repaymentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := r.exec.ExecContext(ctx, query,
		p.ID, p.TenantID, p.ContractID, p.AmountCents,
		p.SourceInstrumentID, p.Status, p.AvailabilityState, p.Applied.FeeCents,
		p.Applied.InterestCents, p.Applied.PrincipalCents, p.JournalID, p.ProviderRef,
		p.Rail, p.IdempotencyKey, p.HeldUntil, p.ScheduledFor, p.InitiatedAt,
		p.CompletedAt, p.FailedAt, p.FailureReason, p.CreatedAt)
	if err != nil {
		return relationaldb.WrapError(err, "insert_repayment")
	}
	return nil
}

func (r *TransferRepository) UpdateRepayment(ctx context.Context, p *transfer.Repayment) error {
	query := rebind(r.driver, `UPDATE repayments SET
		status = ?, availability_state = ?, applied_fee_cents = ?,
		applied_interest_cents = ?, applied_principal_cents = ?, journal_id = ?,
		provider_ref = ?, rail = ?, held_until = ?, scheduled_for = ?,
		initiated_at = ?, completed_at = ?, failed_at = ?, failure_reason = ?
		WHERE tenant_id = ? AND id = ?`)

	res, err := r.exec.ExecContext(ctx, query,
		p.Status, p.AvailabilityState, p.Applied.FeeCents,
		p.Applied.InterestCents, p.Applied.PrincipalCents, p.JournalID,
		p.ProviderRef, p.Rail, p.HeldUntil, p.ScheduledFor,
		p.InitiatedAt, p.CompletedAt, p.FailedAt, p.FailureReason,
		p.TenantID, p.ID)
	if err != nil {
		return relationaldb.WrapError(err, "update_repayment")
	}
	return requireAffected(res, "update_repayment")
}

func (r *TransferRepository) GetRepayment(ctx context.Context, tenantID, id string) (*transfer.Repayment, error) {
	query := rebind(r.driver, forUpdate(r.driver,
		`SELECT `+repaymentColumns+` FROM repayments WHERE tenant_id = ? AND id = ?`))
	return r.scanRepayment(r.exec.QueryRowContext(ctx, query, tenantID, id))
}

func (r *TransferRepository) GetRepaymentByProviderRef(ctx context.Context, tenantID, providerRef string) (*transfer.Repayment, error) {
	query := rebind(r.driver, forUpdate(r.driver,
		`SELECT `+repaymentColumns+` FROM repayments
		WHERE tenant_id = ? AND provider_ref = ? AND provider_ref <> ''`))
	return r.scanRepayment(r.exec.QueryRowContext(ctx, query, tenantID, providerRef))
}

func (r *TransferRepository) ListRepaymentsInitiatedBetween(ctx context.Context, tenantID string, start, end time.Time) ([]transfer.Repayment, error) {
	query := rebind(r.driver, `SELECT `+repaymentColumns+` FROM repayments
		WHERE tenant_id = ? AND initiated_at >= ? AND initiated_at <= ?
		ORDER BY initiated_at, id`)
	return r.listRepayments(ctx, "list_repayments_initiated_between", query, tenantID, start, end)
}

func (r *TransferRepository) ListHeldRepayments(ctx context.Context, tenantID string) ([]transfer.Repayment, error) {
	query := rebind(r.driver, `SELECT `+repaymentColumns+` FROM repayments
		WHERE tenant_id = ? AND availability_state = ?
		ORDER BY held_until, id`)
	return r.listRepayments(ctx, "list_held_repayments", query, tenantID, transfer.AvailabilityHeld)
}

func (r *TransferRepository) ListDueScheduledRepayments(ctx context.Context, tenantID string, cutoff time.Time) ([]transfer.Repayment, error) {
	query := rebind(r.driver, `SELECT `+repaymentColumns+` FROM repayments
		WHERE tenant_id = ? AND status = ? AND scheduled_for <= ?
		ORDER BY scheduled_for, id`)
	return r.listRepayments(ctx, "list_due_scheduled_repayments", query, tenantID, transfer.StatusScheduled, cutoff)
}

func (r *TransferRepository) listRepayments(ctx context.Context, op, query string, args ...interface{}) ([]transfer.Repayment, error) {
	rows, err := r.exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, relationaldb.NewQueryError(op, "failed to list repayments", err)
	}
	defer rows.Close()

	var out []transfer.Repayment
	for rows.Next() {
		p, err := r.scanRepayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *TransferRepository) scanRepayment(row rowScanner) (*transfer.Repayment, error) {
	var p transfer.Repayment
	var heldUntil, scheduledFor, initiatedAt, completedAt, failedAt sql.NullTime
	err := row.Scan(
		&p.ID, &p.TenantID, &p.ContractID, &p.AmountCents,
		&p.SourceInstrumentID, &p.Status, &p.AvailabilityState, &p.Applied.FeeCents,
		&p.Applied.InterestCents, &p.Applied.PrincipalCents, &p.JournalID, &p.ProviderRef,
		&p.Rail, &p.IdempotencyKey, &heldUntil, &scheduledFor, &initiatedAt,
		&completedAt, &failedAt, &p.FailureReason, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, transfer.ErrRecordNotFound
	}
	if err != nil {
		return nil, relationaldb.NewDataError("scan_repayment", "failed to scan repayment", err)
	}
	p.HeldUntil = timePtr(heldUntil)
	p.ScheduledFor = timePtr(scheduledFor)
	p.InitiatedAt = timePtr(initiatedAt)
	p.CompletedAt = timePtr(completedAt)
	p.FailedAt = timePtr(failedAt)
	return &p, nil
}

// InstrumentRepository implements transfer.InstrumentStore. Supported rails
// are stored as a comma-separated list.
type InstrumentRepository struct {
	exec   executor
	driver string
}

func NewInstrumentRepository(exec executor, driver string) *InstrumentRepository {
	return &InstrumentRepository{exec: exec, driver: driver}
}

func (r *InstrumentRepository) InsertInstrument(ctx context.Context, f *transfer.FundingInstrument) error {
	query := rebind(r.driver, `INSERT INTO funding_instruments
		(id, tenant_id, customer_id, type, status, provider_ref,
		 supported_rails, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := r.exec.ExecContext(ctx, query,
		f.ID, f.TenantID, f.CustomerID, f.Type, f.Status, f.ProviderRef,
		joinRails(f.SupportedRails), f.CreatedAt)
	if err != nil {
		return relationaldb.WrapError(err, "insert_instrument")
	}
	return nil
}

func (r *InstrumentRepository) GetInstrument(ctx context.Context, tenantID, id string) (*transfer.FundingInstrument, error) {
	query := rebind(r.driver, `SELECT id, tenant_id, customer_id, type, status,
			provider_ref, supported_rails, created_at
		FROM funding_instruments WHERE tenant_id = ? AND id = ?`)

	var f transfer.FundingInstrument
	var rails string
	err := r.exec.QueryRowContext(ctx, query, tenantID, id).Scan(
		&f.ID, &f.TenantID, &f.CustomerID, &f.Type, &f.Status,
		&f.ProviderRef, &rails, &f.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, transfer.ErrRecordNotFound
	}
	if err != nil {
		return nil, relationaldb.NewQueryError("get_instrument", "failed to load instrument", err)
	}
	f.SupportedRails = splitRails(rails)
	return &f, nil
}

func (r *InstrumentRepository) UpdateInstrument(ctx context.Context, f *transfer.FundingInstrument) error {
	query := rebind(r.driver, `UPDATE funding_instruments SET
		status = ?, provider_ref = ?, supported_rails = ?
		WHERE tenant_id = ? AND id = ?`)

	res, err := r.exec.ExecContext(ctx, query,
		f.Status, f.ProviderRef, joinRails(f.SupportedRails), f.TenantID, f.ID)
	if err != nil {
		return relationaldb.WrapError(err, "update_instrument")
	}
	return requireAffected(res, "update_instrument")
}

func requireAffected(res sql.Result, op string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return relationaldb.NewQueryError(op, "failed to read rows affected", err)
	}
	if affected == 0 {
		return transfer.ErrRecordNotFound
	}
	return nil
}

func joinRails(rails []routing.Rail) string {
	parts := make([]string, len(rails))
	for i, rail := range rails {
		parts[i] = string(rail)
	}
	return strings.Join(parts, ",")
}

func splitRails(s string) []routing.Rail {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	rails := make([]routing.Rail, len(parts))
	for i, p := range parts {
		rails[i] = routing.Rail(p)
	}
	return rails
}
