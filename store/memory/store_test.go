package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	ledger "github.com/beneflow/ledger"
	"github.com/beneflow/ledger/credit"
	"github.com/beneflow/ledger/event"
)

func mustRecord(t *testing.T, streamID string, seq int64) event.Recorded {
	t.Helper()
	rec, err := event.Record(streamID, seq, &credit.CreditAdded{
		Owner:  credit.UserRef("u1"),
		Type:   credit.TypeCash,
		Amount: 100,
		At:     time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	return rec
}

func TestAppendAndReadStream(t *testing.T) {
	ctx := context.Background()
	s := New()

	recs := []event.Recorded{mustRecord(t, "s1", 1), mustRecord(t, "s1", 2)}
	if err := s.AppendEvents(ctx, "s1", 0, recs); err != nil {
		t.Fatalf("AppendEvents: %v", err)
	}

	got, err := s.ReadStream(ctx, "s1")
	if err != nil {
		t.Fatalf("ReadStream: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("events: got %d, want 2", len(got))
	}
	for i, rec := range got {
		if want := int64(i + 1); rec.Seq != want {
			t.Errorf("event %d seq: got %d, want %d", i, rec.Seq, want)
		}
	}

	// Unknown stream is empty, not an error.
	got, err = s.ReadStream(ctx, "missing")
	if err != nil {
		t.Fatalf("ReadStream missing: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("missing stream: got %d events", len(got))
	}
}

func TestAppendStaleVersionConflicts(t *testing.T) {
	ctx := context.Background()
	s := New()

	if err := s.AppendEvents(ctx, "s1", 0, []event.Recorded{mustRecord(t, "s1", 1)}); err != nil {
		t.Fatalf("AppendEvents: %v", err)
	}

	// A writer that loaded at version 0 loses.
	err := s.AppendEvents(ctx, "s1", 0, []event.Recorded{mustRecord(t, "s1", 1)})
	if !errors.Is(err, ledger.ErrConcurrencyConflict) {
		t.Fatalf("got %v, want ErrConcurrencyConflict", err)
	}
}

func TestRollbackLeavesNoPartialEffect(t *testing.T) {
	ctx := context.Background()
	s := New()

	tx, err := s.BeginTx(ctx)
	if err != nil {
		t.Fatalf("BeginTx: %v", err)
	}

	if err := tx.AppendEvents(ctx, "s1", 0, []event.Recorded{mustRecord(t, "s1", 1)}); err != nil {
		t.Fatalf("AppendEvents: %v", err)
	}
	if err := tx.PutCreditBalance(ctx, &credit.Balance{
		Owner:  credit.UserRef("u1"),
		Type:   credit.TypeCash,
		Amount: 100,
	}); err != nil {
		t.Fatalf("PutCreditBalance: %v", err)
	}
	if err := tx.Rollback(ctx); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	// Neither the events nor the projection row survived.
	recs, err := s.ReadStream(ctx, "s1")
	if err != nil {
		t.Fatalf("ReadStream: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("stream after rollback: got %d events", len(recs))
	}
	if _, err := s.GetCreditBalance(ctx, credit.UserRef("u1"), credit.TypeCash); !errors.Is(err, ledger.ErrBalanceNotFound) {
		t.Errorf("balance after rollback: got %v, want ErrBalanceNotFound", err)
	}
}

func TestCommitPersistsBoth(t *testing.T) {
	ctx := context.Background()
	s := New()

	tx, err := s.BeginTx(ctx)
	if err != nil {
		t.Fatalf("BeginTx: %v", err)
	}
	if err := tx.AppendEvents(ctx, "s1", 0, []event.Recorded{mustRecord(t, "s1", 1)}); err != nil {
		t.Fatalf("AppendEvents: %v", err)
	}
	if err := tx.PutCreditBalance(ctx, &credit.Balance{
		Owner:  credit.UserRef("u1"),
		Type:   credit.TypeCash,
		Amount: 100,
	}); err != nil {
		t.Fatalf("PutCreditBalance: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	recs, _ := s.ReadStream(ctx, "s1")
	if len(recs) != 1 {
		t.Errorf("stream after commit: got %d events, want 1", len(recs))
	}
	b, err := s.GetCreditBalance(ctx, credit.UserRef("u1"), credit.TypeCash)
	if err != nil {
		t.Fatalf("GetCreditBalance: %v", err)
	}
	if b.Amount != 100 {
		t.Errorf("balance: got %d, want 100", b.Amount)
	}
}

func TestLockCreditBalance(t *testing.T) {
	ctx := context.Background()
	s := New()

	if err := s.PutCreditBalance(ctx, &credit.Balance{
		Owner:  credit.UserRef("u1"),
		Type:   credit.TypeCash,
		Amount: 500,
	}); err != nil {
		t.Fatalf("PutCreditBalance: %v", err)
	}

	tx, err := s.BeginTx(ctx)
	if err != nil {
		t.Fatalf("BeginTx: %v", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	b, err := tx.LockCreditBalance(ctx, credit.UserRef("u1"), credit.TypeCash)
	if err != nil {
		t.Fatalf("LockCreditBalance: %v", err)
	}
	if b.Amount != 500 {
		t.Errorf("locked balance: got %d, want 500", b.Amount)
	}

	if _, err := tx.LockCreditBalance(ctx, credit.UserRef("nobody"), credit.TypeCash); !errors.Is(err, ledger.ErrBalanceNotFound) {
		t.Errorf("missing row: got %v, want ErrBalanceNotFound", err)
	}
}

// Transactions serialize: a second writer blocks until the first
// commits, so both purchases check against a fresh balance.
func TestTransactionsSerialize(t *testing.T) {
	ctx := context.Background()
	s := New()

	if err := s.PutCreditBalance(ctx, &credit.Balance{
		Owner:  credit.UserRef("u1"),
		Type:   credit.TypeCash,
		Amount: 100,
	}); err != nil {
		t.Fatalf("PutCreditBalance: %v", err)
	}

	spend := func() error {
		tx, err := s.BeginTx(ctx)
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx) //nolint:errcheck

		b, err := tx.LockCreditBalance(ctx, credit.UserRef("u1"), credit.TypeCash)
		if err != nil {
			return err
		}
		if b.Amount < 100 {
			return ledger.ErrInsufficientBalance
		}
		b.Amount -= 100
		if err := tx.PutCreditBalance(ctx, b); err != nil {
			return err
		}
		return tx.Commit(ctx)
	}

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() { errs <- spend() }()
	}

	var insufficient int
	for i := 0; i < 2; i++ {
		if err := <-errs; errors.Is(err, ledger.ErrInsufficientBalance) {
			insufficient++
		} else if err != nil {
			t.Fatalf("spend: %v", err)
		}
	}

	// Exactly one of the two concurrent spends can win.
	if insufficient != 1 {
		t.Errorf("insufficient outcomes: got %d, want 1", insufficient)
	}
	b, _ := s.GetCreditBalance(ctx, credit.UserRef("u1"), credit.TypeCash)
	if b.Amount != 0 {
		t.Errorf("final balance: got %d, want 0", b.Amount)
	}
}
