package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/bigfin/bigfind/internal/core/recon"
	"github.com/bigfin/bigfind/internal/storage/relationaldb"
)

// ReconRepository implements recon.Store against an executor.
type ReconRepository struct {
	exec   executor
	driver string
}

func NewReconRepository(exec executor, driver string) *ReconRepository {
	return &ReconRepository{exec: exec, driver: driver}
}

func (r *ReconRepository) InsertRun(ctx context.Context, run *recon.Run) error {
	query := rebind(r.driver, `INSERT INTO recon_runs
		(id, tenant_id, window_start, window_end, status, dry_run,
		 exception_count, auto_resolved_count, started_at, finished_at, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := r.exec.ExecContext(ctx, query,
		run.ID, run.TenantID, run.WindowStart, run.WindowEnd, run.Status, run.DryRun,
		run.ExceptionCount, run.AutoResolvedCount, run.StartedAt, run.FinishedAt, run.Error)
	if err != nil {
		return relationaldb.WrapError(err, "insert_recon_run")
	}
	return nil
}

func (r *ReconRepository) UpdateRun(ctx context.Context, run *recon.Run) error {
	query := rebind(r.driver, `UPDATE recon_runs SET
		status = ?, exception_count = ?, auto_resolved_count = ?,
		finished_at = ?, error = ?
		WHERE tenant_id = ? AND id = ?`)

	res, err := r.exec.ExecContext(ctx, query,
		run.Status, run.ExceptionCount, run.AutoResolvedCount,
		run.FinishedAt, run.Error,
		run.TenantID, run.ID)
	if err != nil {
		return relationaldb.WrapError(err, "update_recon_run")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return relationaldb.NewQueryError("update_recon_run", "failed to read rows affected", err)
	}
	if affected == 0 {
		return recon.ErrRunNotFound
	}
	return nil
}

func (r *ReconRepository) GetRun(ctx context.Context, tenantID, runID string) (*recon.Run, error) {
	query := rebind(r.driver, `SELECT id, tenant_id, window_start, window_end, status,
			dry_run, exception_count, auto_resolved_count, started_at,
			finished_at, error
		FROM recon_runs WHERE tenant_id = ? AND id = ?`)

	var run recon.Run
	var finishedAt sql.NullTime
	err := r.exec.QueryRowContext(ctx, query, tenantID, runID).Scan(
		&run.ID, &run.TenantID, &run.WindowStart, &run.WindowEnd, &run.Status,
		&run.DryRun, &run.ExceptionCount, &run.AutoResolvedCount, &run.StartedAt,
		&finishedAt, &run.Error)
	if err == sql.ErrNoRows {
		return nil, recon.ErrRunNotFound
	}
	if err != nil {
		return nil, relationaldb.NewQueryError("get_recon_run", "failed to load reconciliation run", err)
	}
	run.FinishedAt = timePtr(finishedAt)
	return &run, nil
}

func (r *ReconRepository) InsertException(ctx context.Context, e *recon.Exception) error {
	query := rebind(r.driver, `INSERT INTO recon_exceptions
		(id, run_id, tenant_id, type, severity, status, kind, record_id,
		 provider_ref, local_status, provider_status, discrepancy_cents,
		 detail, created_at, resolved_at, resolution_type)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := r.exec.ExecContext(ctx, query,
		e.ID, e.RunID, e.TenantID, e.Type, e.Severity, e.Status, e.Kind, e.RecordID,
		e.ProviderRef, e.LocalStatus, e.ProviderStatus, e.DiscrepancyCents,
		e.Detail, e.CreatedAt, e.ResolvedAt, e.ResolutionType)
	if err != nil {
		return relationaldb.WrapError(err, "insert_recon_exception")
	}
	return nil
}

func (r *ReconRepository) UpdateException(ctx context.Context, e *recon.Exception) error {
	query := rebind(r.driver, `UPDATE recon_exceptions SET
		status = ?, severity = ?, detail = ?, resolved_at = ?, resolution_type = ?
		WHERE tenant_id = ? AND id = ?`)

	res, err := r.exec.ExecContext(ctx, query,
		e.Status, e.Severity, e.Detail, e.ResolvedAt, e.ResolutionType, e.TenantID, e.ID)
	if err != nil {
		return relationaldb.WrapError(err, "update_recon_exception")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return relationaldb.NewQueryError("update_recon_exception", "failed to read rows affected", err)
	}
	if affected == 0 {
		return relationaldb.NewDataError("update_recon_exception", "exception not found", nil)
	}
	return nil
}

func (r *ReconRepository) ListExceptions(ctx context.Context, tenantID, runID string) ([]recon.Exception, error) {
	query := rebind(r.driver, `SELECT id, run_id, tenant_id, type, severity, status,
			kind, record_id, provider_ref, local_status, provider_status,
			discrepancy_cents, detail, created_at, resolved_at, resolution_type
		FROM recon_exceptions WHERE tenant_id = ? AND run_id = ?
		ORDER BY created_at, id`)

	rows, err := r.exec.QueryContext(ctx, query, tenantID, runID)
	if err != nil {
		return nil, relationaldb.NewQueryError("list_recon_exceptions", "failed to list exceptions", err)
	}
	defer rows.Close()

	var out []recon.Exception
	for rows.Next() {
		var e recon.Exception
		var resolvedAt sql.NullTime
		if err := rows.Scan(&e.ID, &e.RunID, &e.TenantID, &e.Type, &e.Severity, &e.Status,
			&e.Kind, &e.RecordID, &e.ProviderRef, &e.LocalStatus, &e.ProviderStatus,
			&e.DiscrepancyCents, &e.Detail, &e.CreatedAt, &resolvedAt, &e.ResolutionType); err != nil {
			return nil, relationaldb.NewDataError("list_recon_exceptions", "failed to scan exception", err)
		}
		e.ResolvedAt = timePtr(resolvedAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
