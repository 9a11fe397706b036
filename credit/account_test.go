package credit

import (
	"testing"
)

func TestNewAccountValidation(t *testing.T) {
	tests := []struct {
		name       string
		owner      OwnerRef
		creditType Type
		wantErr    bool
	}{
		{"user owner", UserRef("u1"), TypeCash, false},
		{"financer owner", FinancerRef("f1"), TypeCash, false},
		{"division owner", DivisionRef("d1"), TypeCash, false},
		{"empty owner id", OwnerRef{Kind: OwnerUser}, TypeCash, true},
		{"bad owner kind", OwnerRef{Kind: "robot", ID: "r1"}, TypeCash, true},
		{"empty credit type", UserRef("u1"), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAccount(tt.owner, tt.creditType)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewAccount: err=%v, wantErr=%v", err, tt.wantErr)
			}
		})
	}
}

func TestAccountStreamID(t *testing.T) {
	a, err := NewAccount(UserRef("u1"), TypeCash)
	if err != nil {
		t.Fatalf("NewAccount: %v", err)
	}
	if got, want := a.StreamID(), "credit|user|u1|cash"; got != want {
		t.Errorf("StreamID: got %q, want %q", got, want)
	}
}

func TestAddRejectsNonPositive(t *testing.T) {
	a, _ := NewAccount(UserRef("u1"), TypeCash)

	for _, amount := range []int64{0, -100} {
		if err := a.Add(amount, "test"); err == nil {
			t.Errorf("Add(%d): expected error", amount)
		}
	}
	if a.HasStaged() {
		t.Error("rejected Add staged an event")
	}
}

func TestConsumeInsufficientIsObservableNoOp(t *testing.T) {
	a, _ := NewAccount(UserRef("u1"), TypeCash)

	outcome, err := a.Consume(500, 800, "u1", "lunch")
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if outcome != OutcomeInsufficient {
		t.Errorf("outcome: got %v, want insufficient", outcome)
	}
	if a.HasStaged() {
		t.Error("insufficient consume staged an event")
	}
}

func TestConsumeSufficient(t *testing.T) {
	a, _ := NewAccount(UserRef("u1"), TypeCash)
	if err := a.Add(1000, "allocation"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	outcome, err := a.Consume(1000, 800, "u1", "lunch")
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if outcome != OutcomeConsumed {
		t.Errorf("outcome: got %v, want consumed", outcome)
	}
	if got := a.ReplayedBalance(); got != 200 {
		t.Errorf("balance: got %d, want 200", got)
	}
	if got := len(a.Staged()); got != 2 {
		t.Errorf("staged: got %d, want 2", got)
	}
}

func TestConsumeExactBalance(t *testing.T) {
	a, _ := NewAccount(UserRef("u1"), TypeCash)

	outcome, err := a.Consume(800, 800, "u1", "lunch")
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if outcome != OutcomeConsumed {
		t.Errorf("exact-amount consume: got %v, want consumed", outcome)
	}
}

func TestExpireIsUnconditional(t *testing.T) {
	a, _ := NewAccount(UserRef("u1"), TypeCash)
	if err := a.Add(300, "allocation"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	// Expiry does not check sufficiency.
	if err := a.Expire(500, "period end"); err != nil {
		t.Fatalf("Expire: %v", err)
	}
	if got := a.ReplayedBalance(); got != -200 {
		t.Errorf("balance: got %d, want -200", got)
	}
}

func TestAdjustSetsBalance(t *testing.T) {
	a, _ := NewAccount(UserRef("u1"), TypeCash)
	if err := a.Add(1000, "allocation"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := a.Adjust(1000, 250, "admin-1", "correction"); err != nil {
		t.Fatalf("Adjust: %v", err)
	}
	if got := a.ReplayedBalance(); got != 250 {
		t.Errorf("balance: got %d, want 250", got)
	}
}

func TestApplyEventRejectsForeignEvents(t *testing.T) {
	a, _ := NewAccount(UserRef("u1"), TypeCash)

	if err := a.ApplyEvent(&foreignEvent{}); err == nil {
		t.Error("expected error for foreign event")
	}
}

type foreignEvent struct{}

func (foreignEvent) Kind() string { return "something_else" }

func TestDecodeEventRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		kind string
		data string
	}{
		{"added", KindCreditAdded, `{"owner":{"kind":"user","id":"u1"},"type":"cash","amount":100}`},
		{"consumed", KindCreditConsumed, `{"owner":{"kind":"user","id":"u1"},"type":"cash","amount":50}`},
		{"expired", KindCreditExpired, `{"owner":{"kind":"user","id":"u1"},"type":"cash","amount":25}`},
		{"adjusted", KindCreditAdjusted, `{"owner":{"kind":"user","id":"u1"},"type":"cash","old_amount":100,"new_amount":70}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := DecodeEvent(tt.kind, []byte(tt.data))
			if err != nil {
				t.Fatalf("DecodeEvent: %v", err)
			}
			if e.Kind() != tt.kind {
				t.Errorf("Kind: got %q, want %q", e.Kind(), tt.kind)
			}
		})
	}

	if _, err := DecodeEvent("unknown_kind", []byte(`{}`)); err == nil {
		t.Error("expected error for unknown kind")
	}
}
