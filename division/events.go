package division

import (
	"fmt"
	"time"

	"github.com/beneflow/ledger/event"
)

// Event kind constants for the division balance stream.
const (
	KindInvoiceGenerated = "division_invoice_generated"
	KindInvoicePaid      = "division_invoice_paid"
	KindCreditApplied    = "division_credit_applied"
)

// InvoiceGenerated records a new invoice issued against the division.
// AmountTTC is the tax-inclusive total in minor currency units.
type InvoiceGenerated struct {
	DivisionID  string    `json:"division_id"`
	InvoiceID   string    `json:"invoice_id"`
	AmountTTC   int64     `json:"amount_ttc"`
	GeneratedAt time.Time `json:"generated_at"`
}

func (InvoiceGenerated) Kind() string { return KindInvoiceGenerated }

// InvoicePaid records a payment received against one invoice. The
// invoice's outstanding amount is floored at zero; an overpayment is
// absorbed silently and only moves the aggregate balance.
type InvoicePaid struct {
	DivisionID string    `json:"division_id"`
	InvoiceID  string    `json:"invoice_id"`
	AmountPaid int64     `json:"amount_paid"`
	PaidAt     time.Time `json:"paid_at"`
}

func (InvoicePaid) Kind() string { return KindInvoicePaid }

// CreditApplied records a credit note against the division. With an
// invoice id the credit also reduces that invoice's outstanding amount
// (floored at zero); without one it only affects the aggregate total,
// e.g. a goodwill credit not tied to an invoice.
type CreditApplied struct {
	DivisionID   string    `json:"division_id"`
	InvoiceID    string    `json:"invoice_id,omitempty"`
	CreditAmount int64     `json:"credit_amount"`
	Reason       string    `json:"reason,omitempty"`
	AppliedAt    time.Time `json:"applied_at"`
}

func (CreditApplied) Kind() string { return KindCreditApplied }

// DecodeEvent decodes the division balance event kinds.
func DecodeEvent(kind string, data []byte) (event.Event, error) {
	switch kind {
	case KindInvoiceGenerated:
		return event.Unmarshal(data, &InvoiceGenerated{})
	case KindInvoicePaid:
		return event.Unmarshal(data, &InvoicePaid{})
	case KindCreditApplied:
		return event.Unmarshal(data, &CreditApplied{})
	default:
		return nil, fmt.Errorf("division: unknown event kind %q", kind)
	}
}
