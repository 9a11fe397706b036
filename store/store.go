// Package store defines the unified storage interface for the ledger
// core: ordered event streams plus the projection rows derived from
// them.
//
// Events and their projections are always committed together: command
// flows run inside a Tx so that no event is persisted without its
// corresponding projection update, and vice versa.
package store

import (
	"context"

	"github.com/beneflow/ledger/credit"
	"github.com/beneflow/ledger/division"
	"github.com/beneflow/ledger/event"
	"github.com/beneflow/ledger/invoicegen"
)

// Streams is the append-only event log. Events within one stream are
// strictly ordered by sequence; replay returns them in that exact
// order.
type Streams interface {
	// AppendEvents appends recs after position expectedVersion in one
	// all-or-nothing operation. A concurrent writer that advanced the
	// stream first causes ledger.ErrConcurrencyConflict; the caller may
	// retry the whole retrieve→command→persist cycle.
	AppendEvents(ctx context.Context, streamID string, expectedVersion int64, recs []event.Recorded) error

	// ReadStream returns every recorded event for streamID in commit
	// order. An unknown stream yields an empty slice, not an error.
	ReadStream(ctx context.Context, streamID string) ([]event.Recorded, error)
}

// Projections is the queryable read-model surface. Rows are derived
// from events and only written by the projection layer.
type Projections interface {
	// Credit balances
	GetCreditBalance(ctx context.Context, owner credit.OwnerRef, creditType credit.Type) (*credit.Balance, error)
	PutCreditBalance(ctx context.Context, b *credit.Balance) error

	// Division balances
	GetDivisionBalance(ctx context.Context, divisionID string) (*division.Balance, error)
	PutDivisionBalance(ctx context.Context, b *division.Balance) error
	GetInvoiceEntry(ctx context.Context, divisionID, invoiceID string) (*division.InvoiceEntry, error)
	PutInvoiceEntry(ctx context.Context, e *division.InvoiceEntry) error

	// Invoice generation batches
	GetGenerationBatch(ctx context.Context, batchID string) (*invoicegen.GenerationStatus, error)
	PutGenerationBatch(ctx context.Context, s *invoicegen.GenerationStatus) error
}

// Store is the unified storage interface for the ledger core.
type Store interface {
	Streams
	Projections

	// BeginTx opens an atomic unit of work. Everything done through the
	// returned Tx is committed or rolled back together.
	BeginTx(ctx context.Context) (Tx, error)

	// Migrate creates the required schema or indexes.
	Migrate(ctx context.Context) error

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close releases the underlying resources.
	Close() error
}

// Tx is a transactional view of the store. Rollback leaves no partial
// effect: either all appends and projection writes land, or none do.
type Tx interface {
	Streams
	Projections

	// LockCreditBalance acquires a pessimistic row-level lock on the
	// balance row for (owner, creditType) and returns it. The lock is
	// held until Commit or Rollback, preventing two concurrent purchases
	// from passing a sufficiency check against a stale balance. A
	// missing row returns ledger.ErrBalanceNotFound.
	LockCreditBalance(ctx context.Context, owner credit.OwnerRef, creditType credit.Type) (*credit.Balance, error)

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
