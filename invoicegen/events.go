package invoicegen

import (
	"fmt"
	"time"

	"github.com/beneflow/ledger/event"
)

// Event kind constants for the invoice generation batch stream.
const (
	KindBatchStarted     = "generation_batch_started"
	KindInvoiceCompleted = "generation_invoice_completed"
	KindInvoiceFailed    = "generation_invoice_failed"
	KindBatchCompleted   = "generation_batch_completed"
)

// BatchStarted opens a batch invoice-generation run.
type BatchStarted struct {
	BatchID       string    `json:"batch_id"`
	MonthYear     string    `json:"month_year"` // "2025-05"
	TotalInvoices int       `json:"total_invoices"`
	StartedAt     time.Time `json:"started_at"`
}

func (BatchStarted) Kind() string { return KindBatchStarted }

// InvoiceCompleted records one invoice successfully generated within
// the batch.
type InvoiceCompleted struct {
	BatchID     string    `json:"batch_id"`
	InvoiceID   string    `json:"invoice_id"`
	CompletedAt time.Time `json:"completed_at"`
}

func (InvoiceCompleted) Kind() string { return KindInvoiceCompleted }

// InvoiceFailed records one invoice that could not be generated.
type InvoiceFailed struct {
	BatchID   string    `json:"batch_id"`
	InvoiceID string    `json:"invoice_id"`
	Error     string    `json:"error"`
	FailedAt  time.Time `json:"failed_at"`
}

func (InvoiceFailed) Kind() string { return KindInvoiceFailed }

// BatchCompleted closes the run and fixes the terminal status.
type BatchCompleted struct {
	BatchID     string    `json:"batch_id"`
	Status      Status    `json:"status"`
	CompletedAt time.Time `json:"completed_at"`
}

func (BatchCompleted) Kind() string { return KindBatchCompleted }

// DecodeEvent decodes the invoice generation event kinds.
func DecodeEvent(kind string, data []byte) (event.Event, error) {
	switch kind {
	case KindBatchStarted:
		return event.Unmarshal(data, &BatchStarted{})
	case KindInvoiceCompleted:
		return event.Unmarshal(data, &InvoiceCompleted{})
	case KindInvoiceFailed:
		return event.Unmarshal(data, &InvoiceFailed{})
	case KindBatchCompleted:
		return event.Unmarshal(data, &BatchCompleted{})
	default:
		return nil, fmt.Errorf("invoicegen: unknown event kind %q", kind)
	}
}
