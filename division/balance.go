// Package division tracks an organizational division's outstanding
// invoice balance across invoice generation, payment and credit-note
// events.
//
// balance = Σ invoice amounts − Σ payments − Σ credits applied. The
// aggregate total may go negative (overpayment), but a single invoice's
// outstanding sub-ledger never does: it is clamped at zero.
package division

import (
	"fmt"
	"time"

	"github.com/beneflow/ledger/aggregate"
	"github.com/beneflow/ledger/event"
)

// StreamID returns the event stream identity for one division.
func StreamID(divisionID string) string {
	return "division|" + divisionID
}

// invoiceState tracks one invoice's original amount and what is still
// outstanding on it.
type invoiceState struct {
	amount      int64
	outstanding int64
}

// Aggregate is the division balance aggregate. The handlers do not
// detect duplicate real-world invoices; that is the caller's
// responsibility before emitting.
type Aggregate struct {
	aggregate.Root

	divisionID string
	balance    int64
	invoices   map[string]invoiceState
}

// NewAggregate creates an empty aggregate for the given division.
func NewAggregate(divisionID string) (*Aggregate, error) {
	if divisionID == "" {
		return nil, fmt.Errorf("division: empty division id")
	}

	a := &Aggregate{
		divisionID: divisionID,
		invoices:   make(map[string]invoiceState),
	}
	a.Init(StreamID(divisionID))
	return a, nil
}

// DivisionID returns the division this aggregate belongs to.
func (a *Aggregate) DivisionID() string { return a.divisionID }

// CurrentBalance returns the replayed aggregate balance.
func (a *Aggregate) CurrentBalance() int64 { return a.balance }

// Outstanding returns the outstanding amount for one invoice and
// whether the invoice is known to this aggregate.
func (a *Aggregate) Outstanding(invoiceID string) (int64, bool) {
	st, ok := a.invoices[invoiceID]
	return st.outstanding, ok
}

// InvoiceGenerated records a new invoice: the balance grows by the
// invoice total and an outstanding entry is created at the full amount.
func (a *Aggregate) InvoiceGenerated(invoiceID string, amountTTC int64, generatedAt time.Time) error {
	if invoiceID == "" {
		return fmt.Errorf("division: empty invoice id for %s", a.divisionID)
	}
	return a.Record(a, &InvoiceGenerated{
		DivisionID:  a.divisionID,
		InvoiceID:   invoiceID,
		AmountTTC:   amountTTC,
		GeneratedAt: generatedAt.UTC(),
	})
}

// InvoicePaid records a payment against one invoice.
func (a *Aggregate) InvoicePaid(invoiceID string, amountPaid int64, paidAt time.Time) error {
	if invoiceID == "" {
		return fmt.Errorf("division: empty invoice id for %s", a.divisionID)
	}
	return a.Record(a, &InvoicePaid{
		DivisionID: a.divisionID,
		InvoiceID:  invoiceID,
		AmountPaid: amountPaid,
		PaidAt:     paidAt.UTC(),
	})
}

// CreditApplied records a credit note. invoiceID may be empty for a
// general-purpose adjustment.
func (a *Aggregate) CreditApplied(invoiceID string, creditAmount int64, reason string, appliedAt time.Time) error {
	return a.Record(a, &CreditApplied{
		DivisionID:   a.divisionID,
		InvoiceID:    invoiceID,
		CreditAmount: creditAmount,
		Reason:       reason,
		AppliedAt:    appliedAt.UTC(),
	})
}

// ApplyEvent implements aggregate.Applier.
func (a *Aggregate) ApplyEvent(e event.Event) error {
	switch ev := e.(type) {
	case *InvoiceGenerated:
		a.balance += ev.AmountTTC
		a.invoices[ev.InvoiceID] = invoiceState{amount: ev.AmountTTC, outstanding: ev.AmountTTC}
	case *InvoicePaid:
		a.balance -= ev.AmountPaid
		a.settle(ev.InvoiceID, ev.AmountPaid)
	case *CreditApplied:
		a.balance -= ev.CreditAmount
		if ev.InvoiceID != "" {
			a.settle(ev.InvoiceID, ev.CreditAmount)
		}
	default:
		return fmt.Errorf("division: unexpected event %q on %s", e.Kind(), a.StreamID())
	}
	return nil
}

// settle decreases one invoice's outstanding amount, floored at zero.
func (a *Aggregate) settle(invoiceID string, amount int64) {
	st, ok := a.invoices[invoiceID]
	if !ok {
		return
	}
	st.outstanding -= amount
	if st.outstanding < 0 {
		st.outstanding = 0
	}
	a.invoices[invoiceID] = st
}

// Balance is the projected balance row for one division.
type Balance struct {
	DivisionID    string     `json:"division_id"`
	Amount        int64      `json:"amount"`
	LastInvoiceAt *time.Time `json:"last_invoice_at,omitempty"`
	LastPaymentAt *time.Time `json:"last_payment_at,omitempty"`
	LastCreditAt  *time.Time `json:"last_credit_at,omitempty"`
}

// InvoiceEntry is the projected per-invoice outstanding row.
type InvoiceEntry struct {
	DivisionID  string `json:"division_id"`
	InvoiceID   string `json:"invoice_id"`
	Amount      int64  `json:"amount"`
	Outstanding int64  `json:"outstanding"`
}
