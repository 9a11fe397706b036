package postgres

// Migrations are applied in order inside one transaction. The event
// table's unique (stream_id, seq) index is what turns a concurrent
// append into a detectable conflict instead of a silent overwrite.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS ledger_events (
		id           TEXT PRIMARY KEY,
		stream_id    TEXT        NOT NULL,
		seq          BIGINT      NOT NULL,
		kind         TEXT        NOT NULL,
		data         JSONB       NOT NULL,
		recorded_at  TIMESTAMPTZ NOT NULL,
		UNIQUE (stream_id, seq)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_events_stream
		ON ledger_events (stream_id, seq)`,

	`CREATE TABLE IF NOT EXISTS credit_balances (
		owner_kind   TEXT        NOT NULL,
		owner_id     TEXT        NOT NULL,
		credit_type  TEXT        NOT NULL,
		balance      BIGINT      NOT NULL DEFAULT 0,
		created_at   TIMESTAMPTZ NOT NULL,
		updated_at   TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (owner_kind, owner_id, credit_type)
	)`,

	`CREATE TABLE IF NOT EXISTS division_balances (
		division_id     TEXT PRIMARY KEY,
		balance         BIGINT NOT NULL DEFAULT 0,
		last_invoice_at TIMESTAMPTZ,
		last_payment_at TIMESTAMPTZ,
		last_credit_at  TIMESTAMPTZ
	)`,

	`CREATE TABLE IF NOT EXISTS division_invoices (
		division_id  TEXT   NOT NULL,
		invoice_id   TEXT   NOT NULL,
		amount       BIGINT NOT NULL,
		outstanding  BIGINT NOT NULL,
		PRIMARY KEY (division_id, invoice_id)
	)`,

	`CREATE TABLE IF NOT EXISTS invoice_generation_batches (
		batch_id     TEXT PRIMARY KEY,
		month_year   TEXT    NOT NULL,
		total        INTEGER NOT NULL DEFAULT 0,
		completed    INTEGER NOT NULL DEFAULT 0,
		failed       INTEGER NOT NULL DEFAULT 0,
		status       TEXT    NOT NULL,
		started_at   TIMESTAMPTZ NOT NULL,
		completed_at TIMESTAMPTZ
	)`,
}
