// Package invoicegen tracks the lifecycle of a batch invoice-generation
// run: started → per-invoice completed/failed → batch completed, with a
// terminal status derived from the counters.
//
// The design tolerates benign over-counting from retries: completed +
// failed ≤ total is desirable but not enforced. Unlike the other
// aggregates, reporting progress against an unknown batch fails loudly.
package invoicegen

import (
	"errors"
	"fmt"
	"time"

	"github.com/beneflow/ledger/aggregate"
	"github.com/beneflow/ledger/event"
)

// Status is the lifecycle state of a generation batch.
type Status string

const (
	StatusInProgress          Status = "in_progress"
	StatusCompleted           Status = "completed"
	StatusCompletedWithErrors Status = "completed_with_errors"
	StatusFailed              Status = "failed"
)

// ErrUnknownBatch is returned when progress is reported against a batch
// that was never started.
var ErrUnknownBatch = errors.New("invoicegen: unknown batch")

// StreamID returns the event stream identity for one batch.
func StreamID(batchID string) string {
	return "invoicegen|" + batchID
}

// DeriveStatus computes the terminal status of a run from its counters.
// Completion called before all invoices reported in yields in_progress,
// a benign state rather than an error.
func DeriveStatus(completed, failed, total int) Status {
	switch {
	case failed > 0 && completed == 0:
		return StatusFailed
	case failed > 0 && completed > 0:
		return StatusCompletedWithErrors
	case completed >= total:
		return StatusCompleted
	default:
		return StatusInProgress
	}
}

// Batch is the invoice generation batch aggregate.
type Batch struct {
	aggregate.Root

	batchID     string
	monthYear   string
	total       int
	completed   int
	failed      int
	status      Status
	started     bool
	startedAt   time.Time
	completedAt *time.Time
}

// NewBatch creates an empty batch aggregate for the given id.
func NewBatch(batchID string) (*Batch, error) {
	if batchID == "" {
		return nil, fmt.Errorf("invoicegen: empty batch id")
	}

	b := &Batch{batchID: batchID}
	b.Init(StreamID(batchID))
	return b, nil
}

// BatchID returns the batch identity.
func (b *Batch) BatchID() string { return b.batchID }

// Started reports whether a BatchStarted event has been applied.
func (b *Batch) Started() bool { return b.started }

// Start opens the run with the expected invoice count.
func (b *Batch) Start(monthYear string, totalInvoices int, startedAt time.Time) error {
	if totalInvoices < 0 {
		return fmt.Errorf("invoicegen: negative total %d for batch %s", totalInvoices, b.batchID)
	}
	return b.Record(b, &BatchStarted{
		BatchID:       b.batchID,
		MonthYear:     monthYear,
		TotalInvoices: totalInvoices,
		StartedAt:     startedAt.UTC(),
	})
}

// CompleteInvoice records one successfully generated invoice. The batch
// must already exist.
func (b *Batch) CompleteInvoice(invoiceID string, completedAt time.Time) error {
	if !b.started {
		return fmt.Errorf("%w: %s", ErrUnknownBatch, b.batchID)
	}
	return b.Record(b, &InvoiceCompleted{
		BatchID:     b.batchID,
		InvoiceID:   invoiceID,
		CompletedAt: completedAt.UTC(),
	})
}

// FailInvoice records one invoice that could not be generated. The
// batch must already exist.
func (b *Batch) FailInvoice(invoiceID string, genErr string, failedAt time.Time) error {
	if !b.started {
		return fmt.Errorf("%w: %s", ErrUnknownBatch, b.batchID)
	}
	return b.Record(b, &InvoiceFailed{
		BatchID:   b.batchID,
		InvoiceID: invoiceID,
		Error:     genErr,
		FailedAt:  failedAt.UTC(),
	})
}

// Complete closes the run, deriving the terminal status from the
// counters at this moment.
func (b *Batch) Complete(completedAt time.Time) error {
	if !b.started {
		return fmt.Errorf("%w: %s", ErrUnknownBatch, b.batchID)
	}
	return b.Record(b, &BatchCompleted{
		BatchID:     b.batchID,
		Status:      DeriveStatus(b.completed, b.failed, b.total),
		CompletedAt: completedAt.UTC(),
	})
}

// Snapshot returns the batch counters and status. For an unknown batch
// it returns the zero-value snapshot.
func (b *Batch) Snapshot() GenerationStatus {
	if !b.started {
		return GenerationStatus{BatchID: b.batchID}
	}
	return GenerationStatus{
		BatchID:     b.batchID,
		MonthYear:   b.monthYear,
		Total:       b.total,
		Completed:   b.completed,
		Failed:      b.failed,
		Status:      b.status,
		StartedAt:   b.startedAt,
		CompletedAt: b.completedAt,
	}
}

// ApplyEvent implements aggregate.Applier.
func (b *Batch) ApplyEvent(e event.Event) error {
	switch ev := e.(type) {
	case *BatchStarted:
		b.started = true
		b.monthYear = ev.MonthYear
		b.total = ev.TotalInvoices
		b.completed = 0
		b.failed = 0
		b.status = StatusInProgress
		b.startedAt = ev.StartedAt
	case *InvoiceCompleted:
		b.completed++
	case *InvoiceFailed:
		b.failed++
	case *BatchCompleted:
		b.status = ev.Status
		at := ev.CompletedAt
		b.completedAt = &at
	default:
		return fmt.Errorf("invoicegen: unexpected event %q on %s", e.Kind(), b.StreamID())
	}
	return nil
}

// GenerationStatus is the projected batch row returned by read
// accessors.
type GenerationStatus struct {
	BatchID     string     `json:"batch_id"`
	MonthYear   string     `json:"month_year"`
	Total       int        `json:"total"`
	Completed   int        `json:"completed"`
	Failed      int        `json:"failed"`
	Status      Status     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
