// Package postgres implements store.Store on PostgreSQL using pgx.
//
// Events and projection rows are written through the same pgx
// transaction, and the credit balance row lock is a plain
// SELECT ... FOR UPDATE held until commit.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	ledger "github.com/beneflow/ledger"
	"github.com/beneflow/ledger/credit"
	"github.com/beneflow/ledger/division"
	"github.com/beneflow/ledger/event"
	"github.com/beneflow/ledger/invoicegen"
	"github.com/beneflow/ledger/store"
)

// compile-time interface checks
var (
	_ store.Store = (*Store)(nil)
	_ store.Tx    = (*Tx)(nil)
)

// querier is the subset of pgx shared by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements store.Store using a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a PostgreSQL store around an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Connect opens a connection pool for the given DSN and returns a store
// around it.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("ledger/postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ledger/postgres: ping: %w", err)
	}
	return New(pool), nil
}

// Pool returns the underlying pgx pool for direct access.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Migrate creates the required tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ledger.ErrMigrationFailed, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	for _, stmt := range migrations {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("%w: %v", ledger.ErrMigrationFailed, err)
		}
	}
	return tx.Commit(ctx)
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// BeginTx opens a database transaction.
func (s *Store) BeginTx(ctx context.Context) (store.Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledger/postgres: begin: %w", err)
	}
	return &Tx{tx: tx}, nil
}

func (s *Store) AppendEvents(ctx context.Context, streamID string, expectedVersion int64, recs []event.Recorded) error {
	// The non-transactional path still needs append atomicity, so it
	// opens its own short transaction.
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ledger/postgres: begin append: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if err := appendEvents(ctx, tx, streamID, expectedVersion, recs); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) ReadStream(ctx context.Context, streamID string) ([]event.Recorded, error) {
	return readStream(ctx, s.pool, streamID)
}

func (s *Store) GetCreditBalance(ctx context.Context, owner credit.OwnerRef, creditType credit.Type) (*credit.Balance, error) {
	return getCreditBalance(ctx, s.pool, owner, creditType, false)
}

func (s *Store) PutCreditBalance(ctx context.Context, b *credit.Balance) error {
	return putCreditBalance(ctx, s.pool, b)
}

func (s *Store) GetDivisionBalance(ctx context.Context, divisionID string) (*division.Balance, error) {
	return getDivisionBalance(ctx, s.pool, divisionID)
}

func (s *Store) PutDivisionBalance(ctx context.Context, b *division.Balance) error {
	return putDivisionBalance(ctx, s.pool, b)
}

func (s *Store) GetInvoiceEntry(ctx context.Context, divisionID, invoiceID string) (*division.InvoiceEntry, error) {
	return getInvoiceEntry(ctx, s.pool, divisionID, invoiceID)
}

func (s *Store) PutInvoiceEntry(ctx context.Context, e *division.InvoiceEntry) error {
	return putInvoiceEntry(ctx, s.pool, e)
}

func (s *Store) GetGenerationBatch(ctx context.Context, batchID string) (*invoicegen.GenerationStatus, error) {
	return getGenerationBatch(ctx, s.pool, batchID)
}

func (s *Store) PutGenerationBatch(ctx context.Context, g *invoicegen.GenerationStatus) error {
	return putGenerationBatch(ctx, s.pool, g)
}

// Tx implements store.Tx over a pgx transaction.
type Tx struct {
	tx pgx.Tx
}

// Commit commits the transaction.
func (t *Tx) Commit(ctx context.Context) error { return t.tx.Commit(ctx) }

// Rollback aborts the transaction. Rolling back after commit is a
// no-op, mirroring database/sql.
func (t *Tx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}

// LockCreditBalance acquires a row-level lock on the balance row. The
// lock is held until the transaction commits or rolls back.
func (t *Tx) LockCreditBalance(ctx context.Context, owner credit.OwnerRef, creditType credit.Type) (*credit.Balance, error) {
	return getCreditBalance(ctx, t.tx, owner, creditType, true)
}

func (t *Tx) AppendEvents(ctx context.Context, streamID string, expectedVersion int64, recs []event.Recorded) error {
	return appendEvents(ctx, t.tx, streamID, expectedVersion, recs)
}

func (t *Tx) ReadStream(ctx context.Context, streamID string) ([]event.Recorded, error) {
	return readStream(ctx, t.tx, streamID)
}

func (t *Tx) GetCreditBalance(ctx context.Context, owner credit.OwnerRef, creditType credit.Type) (*credit.Balance, error) {
	return getCreditBalance(ctx, t.tx, owner, creditType, false)
}

func (t *Tx) PutCreditBalance(ctx context.Context, b *credit.Balance) error {
	return putCreditBalance(ctx, t.tx, b)
}

func (t *Tx) GetDivisionBalance(ctx context.Context, divisionID string) (*division.Balance, error) {
	return getDivisionBalance(ctx, t.tx, divisionID)
}

func (t *Tx) PutDivisionBalance(ctx context.Context, b *division.Balance) error {
	return putDivisionBalance(ctx, t.tx, b)
}

func (t *Tx) GetInvoiceEntry(ctx context.Context, divisionID, invoiceID string) (*division.InvoiceEntry, error) {
	return getInvoiceEntry(ctx, t.tx, divisionID, invoiceID)
}

func (t *Tx) PutInvoiceEntry(ctx context.Context, e *division.InvoiceEntry) error {
	return putInvoiceEntry(ctx, t.tx, e)
}

func (t *Tx) GetGenerationBatch(ctx context.Context, batchID string) (*invoicegen.GenerationStatus, error) {
	return getGenerationBatch(ctx, t.tx, batchID)
}

func (t *Tx) PutGenerationBatch(ctx context.Context, g *invoicegen.GenerationStatus) error {
	return putGenerationBatch(ctx, t.tx, g)
}

// ==================== Event streams ====================

func appendEvents(ctx context.Context, q querier, streamID string, expectedVersion int64, recs []event.Recorded) error {
	var current int64
	err := q.QueryRow(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM ledger_events WHERE stream_id = $1`,
		streamID,
	).Scan(&current)
	if err != nil {
		return fmt.Errorf("ledger/postgres: read stream version %s: %w", streamID, err)
	}
	if current != expectedVersion {
		return ledger.ErrConcurrencyConflict
	}

	for _, rec := range recs {
		_, err := q.Exec(ctx,
			`INSERT INTO ledger_events (id, stream_id, seq, kind, data, recorded_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			rec.ID.String(), rec.StreamID, rec.Seq, rec.Kind, rec.Data, rec.RecordedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				// A concurrent writer won the (stream_id, seq) slot.
				return ledger.ErrConcurrencyConflict
			}
			return fmt.Errorf("ledger/postgres: append %s@%d: %w", rec.StreamID, rec.Seq, err)
		}
	}
	return nil
}

func readStream(ctx context.Context, q querier, streamID string) ([]event.Recorded, error) {
	rows, err := q.Query(ctx,
		`SELECT id, stream_id, seq, kind, data, recorded_at
		 FROM ledger_events WHERE stream_id = $1 ORDER BY seq`,
		streamID,
	)
	if err != nil {
		return nil, fmt.Errorf("ledger/postgres: read stream %s: %w", streamID, err)
	}
	defer rows.Close()

	var recs []event.Recorded
	for rows.Next() {
		var (
			rec   event.Recorded
			rawID string
		)
		if err := rows.Scan(&rawID, &rec.StreamID, &rec.Seq, &rec.Kind, &rec.Data, &rec.RecordedAt); err != nil {
			return nil, fmt.Errorf("ledger/postgres: scan event: %w", err)
		}
		if err := rec.ID.Scan(rawID); err != nil {
			return nil, fmt.Errorf("ledger/postgres: scan event id: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// ==================== Credit balances ====================

func getCreditBalance(ctx context.Context, q querier, owner credit.OwnerRef, creditType credit.Type, forUpdate bool) (*credit.Balance, error) {
	query := `SELECT balance, created_at, updated_at FROM credit_balances
		 WHERE owner_kind = $1 AND owner_id = $2 AND credit_type = $3`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	b := &credit.Balance{Owner: owner, Type: creditType}
	err := q.QueryRow(ctx, query, string(owner.Kind), owner.ID, string(creditType)).
		Scan(&b.Amount, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ledger.ErrBalanceNotFound
		}
		return nil, fmt.Errorf("ledger/postgres: get credit balance %s: %w", owner, err)
	}
	return b, nil
}

func putCreditBalance(ctx context.Context, q querier, b *credit.Balance) error {
	_, err := q.Exec(ctx,
		`INSERT INTO credit_balances (owner_kind, owner_id, credit_type, balance, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (owner_kind, owner_id, credit_type)
		 DO UPDATE SET balance = EXCLUDED.balance, updated_at = EXCLUDED.updated_at`,
		string(b.Owner.Kind), b.Owner.ID, string(b.Type), b.Amount, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("ledger/postgres: put credit balance %s: %w", b.Owner, err)
	}
	return nil
}

// ==================== Division balances ====================

func getDivisionBalance(ctx context.Context, q querier, divisionID string) (*division.Balance, error) {
	b := &division.Balance{DivisionID: divisionID}
	err := q.QueryRow(ctx,
		`SELECT balance, last_invoice_at, last_payment_at, last_credit_at
		 FROM division_balances WHERE division_id = $1`,
		divisionID,
	).Scan(&b.Amount, &b.LastInvoiceAt, &b.LastPaymentAt, &b.LastCreditAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ledger.ErrDivisionNotFound
		}
		return nil, fmt.Errorf("ledger/postgres: get division balance %s: %w", divisionID, err)
	}
	return b, nil
}

func putDivisionBalance(ctx context.Context, q querier, b *division.Balance) error {
	_, err := q.Exec(ctx,
		`INSERT INTO division_balances (division_id, balance, last_invoice_at, last_payment_at, last_credit_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (division_id)
		 DO UPDATE SET balance = EXCLUDED.balance,
			last_invoice_at = EXCLUDED.last_invoice_at,
			last_payment_at = EXCLUDED.last_payment_at,
			last_credit_at = EXCLUDED.last_credit_at`,
		b.DivisionID, b.Amount, b.LastInvoiceAt, b.LastPaymentAt, b.LastCreditAt,
	)
	if err != nil {
		return fmt.Errorf("ledger/postgres: put division balance %s: %w", b.DivisionID, err)
	}
	return nil
}

func getInvoiceEntry(ctx context.Context, q querier, divisionID, invoiceID string) (*division.InvoiceEntry, error) {
	e := &division.InvoiceEntry{DivisionID: divisionID, InvoiceID: invoiceID}
	err := q.QueryRow(ctx,
		`SELECT amount, outstanding FROM division_invoices
		 WHERE division_id = $1 AND invoice_id = $2`,
		divisionID, invoiceID,
	).Scan(&e.Amount, &e.Outstanding)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ledger.ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("ledger/postgres: get invoice entry %s/%s: %w", divisionID, invoiceID, err)
	}
	return e, nil
}

func putInvoiceEntry(ctx context.Context, q querier, e *division.InvoiceEntry) error {
	_, err := q.Exec(ctx,
		`INSERT INTO division_invoices (division_id, invoice_id, amount, outstanding)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (division_id, invoice_id)
		 DO UPDATE SET amount = EXCLUDED.amount, outstanding = EXCLUDED.outstanding`,
		e.DivisionID, e.InvoiceID, e.Amount, e.Outstanding,
	)
	if err != nil {
		return fmt.Errorf("ledger/postgres: put invoice entry %s/%s: %w", e.DivisionID, e.InvoiceID, err)
	}
	return nil
}

// ==================== Generation batches ====================

func getGenerationBatch(ctx context.Context, q querier, batchID string) (*invoicegen.GenerationStatus, error) {
	g := &invoicegen.GenerationStatus{BatchID: batchID}
	var (
		status      string
		completedAt *time.Time
	)
	err := q.QueryRow(ctx,
		`SELECT month_year, total, completed, failed, status, started_at, completed_at
		 FROM invoice_generation_batches WHERE batch_id = $1`,
		batchID,
	).Scan(&g.MonthYear, &g.Total, &g.Completed, &g.Failed, &status, &g.StartedAt, &completedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ledger.ErrBatchNotFound
		}
		return nil, fmt.Errorf("ledger/postgres: get generation batch %s: %w", batchID, err)
	}
	g.Status = invoicegen.Status(status)
	g.CompletedAt = completedAt
	return g, nil
}

func putGenerationBatch(ctx context.Context, q querier, g *invoicegen.GenerationStatus) error {
	_, err := q.Exec(ctx,
		`INSERT INTO invoice_generation_batches
			(batch_id, month_year, total, completed, failed, status, started_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (batch_id)
		 DO UPDATE SET month_year = EXCLUDED.month_year,
			total = EXCLUDED.total,
			completed = EXCLUDED.completed,
			failed = EXCLUDED.failed,
			status = EXCLUDED.status,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at`,
		g.BatchID, g.MonthYear, g.Total, g.Completed, g.Failed, string(g.Status), g.StartedAt, g.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("ledger/postgres: put generation batch %s: %w", g.BatchID, err)
	}
	return nil
}

// isUniqueViolation reports whether err is a PostgreSQL unique
// constraint violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
