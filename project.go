package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/beneflow/ledger/credit"
	"github.com/beneflow/ledger/division"
	"github.com/beneflow/ledger/event"
	"github.com/beneflow/ledger/store"
)

// The projection layer folds freshly committed events into the read
// model inside the same transaction that persisted them, so the log
// and the rows can never drift apart.

// projectCreditEvents applies recs to the projected balance row for
// (owner, creditType) and returns the updated row.
func projectCreditEvents(ctx context.Context, p store.Projections, owner credit.OwnerRef, creditType credit.Type, recs []event.Recorded) (*credit.Balance, error) {
	b, err := p.GetCreditBalance(ctx, owner, creditType)
	if err != nil {
		if !errors.Is(err, ErrBalanceNotFound) {
			return nil, err
		}
		b = &credit.Balance{Owner: owner, Type: creditType}
	}

	for _, rec := range recs {
		e, err := rec.Decode(credit.DecodeEvent)
		if err != nil {
			return nil, fmt.Errorf("ledger: project credit event %s@%d: %w", rec.StreamID, rec.Seq, err)
		}
		switch ev := e.(type) {
		case *credit.CreditAdded:
			b.Amount += ev.Amount
		case *credit.CreditConsumed:
			b.Amount -= ev.Amount
		case *credit.CreditExpired:
			b.Amount -= ev.Amount
		case *credit.CreditAdjusted:
			b.Amount = ev.NewAmount
		default:
			return nil, fmt.Errorf("ledger: unexpected credit event %q", rec.Kind)
		}
		// Event time, not wall-clock time, so replaying the stream
		// reproduces the row exactly.
		if b.CreatedAt.IsZero() {
			b.CreatedAt = rec.RecordedAt
		}
		b.UpdatedAt = rec.RecordedAt
	}

	if err := p.PutCreditBalance(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// projectDivisionEvents applies recs to the division balance row and
// the per-invoice outstanding entries, and returns the updated balance.
func projectDivisionEvents(ctx context.Context, p store.Projections, divisionID string, recs []event.Recorded) (*division.Balance, error) {
	b, err := p.GetDivisionBalance(ctx, divisionID)
	if err != nil {
		if !errors.Is(err, ErrDivisionNotFound) {
			return nil, err
		}
		b = &division.Balance{DivisionID: divisionID}
	}

	for _, rec := range recs {
		e, err := rec.Decode(division.DecodeEvent)
		if err != nil {
			return nil, fmt.Errorf("ledger: project division event %s@%d: %w", rec.StreamID, rec.Seq, err)
		}
		switch ev := e.(type) {
		case *division.InvoiceGenerated:
			b.Amount += ev.AmountTTC
			at := ev.GeneratedAt
			b.LastInvoiceAt = &at
			entry := &division.InvoiceEntry{
				DivisionID:  divisionID,
				InvoiceID:   ev.InvoiceID,
				Amount:      ev.AmountTTC,
				Outstanding: ev.AmountTTC,
			}
			if err := p.PutInvoiceEntry(ctx, entry); err != nil {
				return nil, err
			}
		case *division.InvoicePaid:
			b.Amount -= ev.AmountPaid
			at := ev.PaidAt
			b.LastPaymentAt = &at
			if err := settleInvoiceEntry(ctx, p, divisionID, ev.InvoiceID, ev.AmountPaid); err != nil {
				return nil, err
			}
		case *division.CreditApplied:
			b.Amount -= ev.CreditAmount
			at := ev.AppliedAt
			b.LastCreditAt = &at
			if ev.InvoiceID != "" {
				if err := settleInvoiceEntry(ctx, p, divisionID, ev.InvoiceID, ev.CreditAmount); err != nil {
					return nil, err
				}
			}
		default:
			return nil, fmt.Errorf("ledger: unexpected division event %q", rec.Kind)
		}
	}

	if err := p.PutDivisionBalance(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// settleInvoiceEntry decrements an invoice's outstanding amount,
// floored at zero. A payment against an unknown invoice only affects
// the division total.
func settleInvoiceEntry(ctx context.Context, p store.Projections, divisionID, invoiceID string, amount int64) error {
	entry, err := p.GetInvoiceEntry(ctx, divisionID, invoiceID)
	if err != nil {
		if errors.Is(err, ErrInvoiceNotFound) {
			return nil
		}
		return err
	}

	entry.Outstanding -= amount
	if entry.Outstanding < 0 {
		entry.Outstanding = 0
	}
	return p.PutInvoiceEntry(ctx, entry)
}
