package sqlstore

import "context"

// Schema statements are written in the portable subset both drivers accept.
// Partial unique indexes keep provider references unique once assigned
// while allowing any number of records that never reached the provider.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		code        TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		type        TEXT NOT NULL,
		parent_code TEXT NOT NULL DEFAULT '',
		is_system   BOOLEAN NOT NULL DEFAULT FALSE,
		created_at  TIMESTAMPTZ NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS journals (
		id                     TEXT PRIMARY KEY,
		tenant_id              TEXT NOT NULL,
		contract_id            TEXT NOT NULL DEFAULT '',
		type                   TEXT NOT NULL,
		description            TEXT NOT NULL DEFAULT '',
		is_reversal            BOOLEAN NOT NULL DEFAULT FALSE,
		reverses_journal_id    TEXT NOT NULL DEFAULT '',
		reversed_by_journal_id TEXT NOT NULL DEFAULT '',
		reversal_reason        TEXT NOT NULL DEFAULT '',
		created_by             TEXT NOT NULL DEFAULT '',
		created_at             TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_journals_contract
		ON journals (tenant_id, contract_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS entries (
		journal_id          TEXT NOT NULL REFERENCES journals(id),
		seq                 INTEGER NOT NULL,
		tenant_id           TEXT NOT NULL,
		account_code        TEXT NOT NULL REFERENCES accounts(code),
		debit_cents         BIGINT NOT NULL DEFAULT 0,
		credit_cents        BIGINT NOT NULL DEFAULT 0,
		balance_after_cents BIGINT NOT NULL DEFAULT 0,
		created_at          TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (journal_id, seq)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_entries_account
		ON entries (tenant_id, account_code, created_at)`,

	`CREATE TABLE IF NOT EXISTS contracts (
		id                      TEXT NOT NULL,
		tenant_id               TEXT NOT NULL,
		customer_id             TEXT NOT NULL,
		lender_id               TEXT NOT NULL DEFAULT '',
		status                  TEXT NOT NULL,
		principal_cents         BIGINT NOT NULL,
		apr_bps                 BIGINT NOT NULL,
		term_months             INTEGER NOT NULL,
		payment_frequency       TEXT NOT NULL,
		first_payment_date      TIMESTAMPTZ NOT NULL,
		principal_balance_cents BIGINT NOT NULL DEFAULT 0,
		interest_balance_cents  BIGINT NOT NULL DEFAULT 0,
		fees_balance_cents      BIGINT NOT NULL DEFAULT 0,
		disbursed_at            TIMESTAMPTZ,
		paid_off_at             TIMESTAMPTZ,
		created_at              TIMESTAMPTZ NOT NULL,
		updated_at              TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (tenant_id, id)
	)`,

	`CREATE TABLE IF NOT EXISTS schedule_items (
		id              TEXT PRIMARY KEY,
		tenant_id       TEXT NOT NULL,
		contract_id     TEXT NOT NULL,
		seq             INTEGER NOT NULL,
		due_date        TIMESTAMPTZ NOT NULL,
		principal_cents BIGINT NOT NULL,
		interest_cents  BIGINT NOT NULL,
		total_cents     BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_schedule_contract
		ON schedule_items (tenant_id, contract_id, seq)`,

	`CREATE TABLE IF NOT EXISTS prefund_transactions (
		id                    TEXT PRIMARY KEY,
		tenant_id             TEXT NOT NULL,
		customer_id           TEXT NOT NULL,
		type                  TEXT NOT NULL,
		amount_cents          BIGINT NOT NULL,
		status                TEXT NOT NULL,
		balance_after_cents   BIGINT NOT NULL,
		available_after_cents BIGINT NOT NULL,
		created_at            TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_prefund_customer
		ON prefund_transactions (tenant_id, customer_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS funding_instruments (
		id              TEXT NOT NULL,
		tenant_id       TEXT NOT NULL,
		customer_id     TEXT NOT NULL,
		type            TEXT NOT NULL,
		status          TEXT NOT NULL,
		provider_ref    TEXT NOT NULL DEFAULT '',
		supported_rails TEXT NOT NULL DEFAULT '',
		created_at      TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (tenant_id, id)
	)`,

	`CREATE TABLE IF NOT EXISTS disbursements (
		id                        TEXT NOT NULL,
		tenant_id                 TEXT NOT NULL,
		contract_id               TEXT NOT NULL,
		amount_cents              BIGINT NOT NULL,
		express_fee_cents         BIGINT NOT NULL DEFAULT 0,
		net_amount_cents          BIGINT NOT NULL,
		source                    TEXT NOT NULL,
		destination_instrument_id TEXT NOT NULL DEFAULT '',
		status                    TEXT NOT NULL,
		availability_state        TEXT NOT NULL,
		journal_id                TEXT NOT NULL DEFAULT '',
		provider_ref              TEXT NOT NULL DEFAULT '',
		rail                      TEXT NOT NULL DEFAULT '',
		idempotency_key           TEXT NOT NULL DEFAULT '',
		held_until                TIMESTAMPTZ,
		initiated_at              TIMESTAMPTZ,
		completed_at              TIMESTAMPTZ,
		failed_at                 TIMESTAMPTZ,
		failure_reason            TEXT NOT NULL DEFAULT '',
		created_at                TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (tenant_id, id)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_disbursements_provider_ref
		ON disbursements (tenant_id, provider_ref) WHERE provider_ref <> ''`,

	`CREATE TABLE IF NOT EXISTS repayments (
		id                      TEXT NOT NULL,
		tenant_id               TEXT NOT NULL,
		contract_id             TEXT NOT NULL,
		amount_cents            BIGINT NOT NULL,
		source_instrument_id    TEXT NOT NULL DEFAULT '',
		status                  TEXT NOT NULL,
		availability_state      TEXT NOT NULL,
		applied_fee_cents       BIGINT NOT NULL DEFAULT 0,
		applied_interest_cents  BIGINT NOT NULL DEFAULT 0,
		applied_principal_cents BIGINT NOT NULL DEFAULT 0,
		journal_id              TEXT NOT NULL DEFAULT '',
		provider_ref            TEXT NOT NULL DEFAULT '',
		rail                    TEXT NOT NULL DEFAULT '',
		idempotency_key         TEXT NOT NULL DEFAULT '',
		held_until              TIMESTAMPTZ,
		scheduled_for           TIMESTAMPTZ,
		initiated_at            TIMESTAMPTZ,
		completed_at            TIMESTAMPTZ,
		failed_at               TIMESTAMPTZ,
		failure_reason          TEXT NOT NULL DEFAULT '',
		created_at              TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (tenant_id, id)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_repayments_provider_ref
		ON repayments (tenant_id, provider_ref) WHERE provider_ref <> ''`,

	`CREATE TABLE IF NOT EXISTS recon_runs (
		id                  TEXT PRIMARY KEY,
		tenant_id           TEXT NOT NULL,
		window_start        TIMESTAMPTZ NOT NULL,
		window_end          TIMESTAMPTZ NOT NULL,
		status              TEXT NOT NULL,
		dry_run             BOOLEAN NOT NULL DEFAULT FALSE,
		exception_count     INTEGER NOT NULL DEFAULT 0,
		auto_resolved_count INTEGER NOT NULL DEFAULT 0,
		started_at          TIMESTAMPTZ NOT NULL,
		finished_at         TIMESTAMPTZ,
		error               TEXT NOT NULL DEFAULT ''
	)`,

	`CREATE TABLE IF NOT EXISTS recon_exceptions (
		id                TEXT PRIMARY KEY,
		run_id            TEXT NOT NULL,
		tenant_id         TEXT NOT NULL,
		type              TEXT NOT NULL,
		severity          TEXT NOT NULL,
		status            TEXT NOT NULL,
		kind              TEXT NOT NULL DEFAULT '',
		record_id         TEXT NOT NULL DEFAULT '',
		provider_ref      TEXT NOT NULL DEFAULT '',
		local_status      TEXT NOT NULL DEFAULT '',
		provider_status   TEXT NOT NULL DEFAULT '',
		discrepancy_cents BIGINT NOT NULL DEFAULT 0,
		detail            TEXT NOT NULL DEFAULT '',
		created_at        TIMESTAMPTZ NOT NULL,
		resolved_at       TIMESTAMPTZ,
		resolution_type   TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_recon_exceptions_run
		ON recon_exceptions (tenant_id, run_id)`,
}

func (d *Database) initSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
