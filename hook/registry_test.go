package hook

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/beneflow/ledger/credit"
	"github.com/beneflow/ledger/types"
)

// creditWatcher implements a subset of the hook interfaces.
type creditWatcher struct {
	name string

	mu       sync.Mutex
	added    []CreditNotice
	consumed []CreditNotice
	err      error
}

func (w *creditWatcher) Name() string { return w.name }

func (w *creditWatcher) OnCreditAdded(_ context.Context, n CreditNotice) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.added = append(w.added, n)
	return w.err
}

func (w *creditWatcher) OnCreditConsumed(_ context.Context, n CreditNotice) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.consumed = append(w.consumed, n)
	return w.err
}

func TestRegisterAndLookup(t *testing.T) {
	r := NewRegistry()

	w := &creditWatcher{name: "watcher"}
	if err := r.Register(w); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if got := r.Count(); got != 1 {
		t.Errorf("Count: got %d, want 1", got)
	}
	if r.Get("watcher") != w {
		t.Error("Get did not return the registered hook")
	}
	if r.Get("missing") != nil {
		t.Error("Get for unknown name should return nil")
	}
	if got := len(r.List()); got != 1 {
		t.Errorf("List: got %d entries, want 1", got)
	}
}

func TestRegisterRejectsDuplicateName(t *testing.T) {
	r := NewRegistry()

	if err := r.Register(&creditWatcher{name: "watcher"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(&creditWatcher{name: "watcher"}); err == nil {
		t.Error("expected duplicate registration error")
	}
}

func TestEmitDispatchesOnlyImplementedInterfaces(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry()

	w := &creditWatcher{name: "watcher"}
	if err := r.Register(w); err != nil {
		t.Fatalf("Register: %v", err)
	}

	n := CreditNotice{
		Owner:   credit.UserRef("u1"),
		Type:    credit.TypeCash,
		Amount:  types.EUR(100),
		Balance: types.EUR(900),
		At:      time.Now(),
	}
	r.EmitCreditAdded(ctx, n)
	r.EmitCreditConsumed(ctx, n)
	// The watcher does not implement expiry; this must not panic.
	r.EmitCreditExpired(ctx, n)

	if len(w.added) != 1 || len(w.consumed) != 1 {
		t.Errorf("dispatch counts: added=%d consumed=%d", len(w.added), len(w.consumed))
	}
	if w.added[0].Amount.Amount != 100 {
		t.Errorf("notice amount: got %d, want 100", w.added[0].Amount.Amount)
	}
}

func TestEmitSwallowsHookErrors(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry()

	failing := &creditWatcher{name: "failing", err: errors.New("boom")}
	healthy := &creditWatcher{name: "healthy"}
	if err := r.Register(failing); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(healthy); err != nil {
		t.Fatalf("Register: %v", err)
	}

	// A failing hook never blocks the others.
	r.EmitCreditAdded(ctx, CreditNotice{Owner: credit.UserRef("u1"), Type: credit.TypeCash})

	if len(failing.added) != 1 || len(healthy.added) != 1 {
		t.Errorf("dispatch counts: failing=%d healthy=%d", len(failing.added), len(healthy.added))
	}
}
