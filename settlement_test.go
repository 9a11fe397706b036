package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	ledger "github.com/beneflow/ledger"
	"github.com/beneflow/ledger/credit"
	"github.com/beneflow/ledger/hook"
)

// fakeGateway records charge requests and fails on demand.
type fakeGateway struct {
	mu    sync.Mutex
	fail  error
	calls []ledger.ChargeRequest
}

func (g *fakeGateway) CreateCharge(_ context.Context, req ledger.ChargeRequest) (*ledger.Charge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, req)
	if g.fail != nil {
		return nil, g.fail
	}
	return &ledger.Charge{ChargeID: "ch_1", ClientSecret: "cs_1"}, nil
}

func (g *fakeGateway) CancelCharge(context.Context, string) error { return nil }

// captureHook records the notices it receives.
type captureHook struct {
	mu       sync.Mutex
	progress []hook.ProgressNotice
	failures []hook.FailureNotice
	restores []hook.RestoreNotice
}

func (h *captureHook) Name() string { return "capture" }

func (h *captureHook) OnPurchaseProgress(_ context.Context, n hook.ProgressNotice) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.progress = append(h.progress, n)
	return nil
}

func (h *captureHook) OnPaymentFailed(_ context.Context, n hook.FailureNotice) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures = append(h.failures, n)
	return nil
}

func (h *captureHook) OnBalanceRestored(_ context.Context, n hook.RestoreNotice) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.restores = append(h.restores, n)
	return nil
}

func TestProcessBalancePayment(t *testing.T) {
	ctx := context.Background()
	capture := &captureHook{}
	l := newTestLedger(t, ledger.WithHook(capture))
	owner := ledger.UserRef("u1")

	if _, err := l.AddCredit(ctx, owner, credit.TypeCash, 5000, "allocation"); err != nil {
		t.Fatalf("AddCredit: %v", err)
	}

	res, err := l.ProcessBalancePayment(ctx, ledger.PaymentRequest{
		OrderID: "order-1",
		UserID:  "u1",
		Owner:   owner,
		Reason:  "order-1",
	}, 3000)
	if err != nil {
		t.Fatalf("ProcessBalancePayment: %v", err)
	}

	if res.Method != ledger.MethodBalance {
		t.Errorf("method: got %s, want balance", res.Method)
	}
	if res.RemainingBalance.Amount != 2000 {
		t.Errorf("remaining: got %d, want 2000", res.RemainingBalance.Amount)
	}

	b, err := l.GetBalance(ctx, owner, credit.TypeCash)
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if b.Amount != 2000 {
		t.Errorf("projected balance: got %d, want 2000", b.Amount)
	}

	if len(capture.progress) != 1 {
		t.Fatalf("progress notices: got %d, want 1", len(capture.progress))
	}
	if got := capture.progress[0].BalanceAmount.Amount; got != 3000 {
		t.Errorf("notice amount: got %d, want 3000", got)
	}
	if got := capture.progress[0].RemainingBalance.Amount; got != 2000 {
		t.Errorf("notice remaining balance: got %d, want 2000", got)
	}
}

func TestProcessBalancePaymentInsufficient(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	owner := ledger.UserRef("u1")

	if _, err := l.AddCredit(ctx, owner, credit.TypeCash, 1000, "allocation"); err != nil {
		t.Fatalf("AddCredit: %v", err)
	}

	_, err := l.ProcessBalancePayment(ctx, ledger.PaymentRequest{
		OrderID: "order-1",
		UserID:  "u1",
		Owner:   owner,
	}, 2500)
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("got %v, want ErrInsufficientBalance", err)
	}
	if !errors.Is(err, ledger.ErrPaymentFailed) {
		t.Errorf("insufficiency should also match ErrPaymentFailed")
	}

	// No partial effect.
	b, err := l.GetBalance(ctx, owner, credit.TypeCash)
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if b.Amount != 1000 {
		t.Errorf("balance after failed payment: got %d, want 1000", b.Amount)
	}
}

func TestProcessBalancePaymentMissingAccount(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	_, err := l.ProcessBalancePayment(ctx, ledger.PaymentRequest{
		OrderID: "order-1",
		UserID:  "u1",
		Owner:   ledger.UserRef("nobody"),
	}, 100)
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("got %v, want ErrInsufficientBalance", err)
	}
}

func TestProcessMixedPayment(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{}
	capture := &captureHook{}
	l := newTestLedger(t, ledger.WithGateway(gw), ledger.WithHook(capture))
	owner := ledger.UserRef("u1")

	if _, err := l.AddCredit(ctx, owner, credit.TypeCash, 800, "allocation"); err != nil {
		t.Fatalf("AddCredit: %v", err)
	}

	plan, err := l.PlanPayment(ctx, owner, 2000)
	if err != nil {
		t.Fatalf("PlanPayment: %v", err)
	}

	res, err := l.ProcessMixedPayment(ctx, ledger.PaymentRequest{
		OrderID: "order-1",
		UserID:  "u1",
		Owner:   owner,
		Reason:  "order-1",
	}, plan)
	if err != nil {
		t.Fatalf("ProcessMixedPayment: %v", err)
	}

	if res.ChargeID != "ch_1" || res.ClientSecret != "cs_1" {
		t.Errorf("charge handle: %+v", res)
	}
	if res.RemainingBalance.Amount != 0 {
		t.Errorf("remaining: got %d, want 0", res.RemainingBalance.Amount)
	}

	// The charge carries the split for traceability.
	if len(gw.calls) != 1 {
		t.Fatalf("gateway calls: got %d, want 1", len(gw.calls))
	}
	call := gw.calls[0]
	if call.Amount.Amount != 1200 {
		t.Errorf("charge amount: got %d, want 1200", call.Amount.Amount)
	}
	if call.Metadata["order_id"] != "order-1" ||
		call.Metadata["balance_amount"] != "800" ||
		call.Metadata["card_amount"] != "1200" {
		t.Errorf("charge metadata: %v", call.Metadata)
	}
	if call.IdempotencyKey == "" {
		t.Error("charge has no idempotency key")
	}

	b, err := l.GetBalance(ctx, owner, credit.TypeCash)
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if b.Amount != 0 {
		t.Errorf("balance: got %d, want 0", b.Amount)
	}

	if len(capture.progress) != 1 {
		t.Fatalf("progress notices: got %d, want 1", len(capture.progress))
	}
	if got := capture.progress[0].RemainingBalance.Amount; got != 0 {
		t.Errorf("notice remaining balance: got %d, want 0", got)
	}
}

func TestProcessMixedPaymentGatewayFailureCompensates(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{fail: &ledger.GatewayError{Code: "card_declined", Message: "declined"}}
	capture := &captureHook{}
	l := newTestLedger(t, ledger.WithGateway(gw), ledger.WithHook(capture))
	owner := ledger.UserRef("u1")

	if _, err := l.AddCredit(ctx, owner, credit.TypeCash, 800, "allocation"); err != nil {
		t.Fatalf("AddCredit: %v", err)
	}

	plan, err := l.PlanPayment(ctx, owner, 2000)
	if err != nil {
		t.Fatalf("PlanPayment: %v", err)
	}

	_, err = l.ProcessMixedPayment(ctx, ledger.PaymentRequest{
		OrderID: "order-1",
		UserID:  "u1",
		Owner:   owner,
		Reason:  "order-1",
	}, plan)
	if !errors.Is(err, ledger.ErrPaymentFailed) {
		t.Fatalf("got %v, want ErrPaymentFailed", err)
	}
	var gwErr *ledger.GatewayError
	if !errors.As(err, &gwErr) || gwErr.Code != "card_declined" {
		t.Errorf("gateway cause not preserved: %v", err)
	}

	// Compensation restored the debited share exactly.
	b, err := l.GetBalance(ctx, owner, credit.TypeCash)
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if b.Amount != 800 {
		t.Errorf("balance after compensation: got %d, want 800", b.Amount)
	}

	if len(capture.failures) == 0 {
		t.Error("no failure notice emitted")
	}
	if len(capture.restores) != 1 {
		t.Fatalf("restore notices: got %d, want 1", len(capture.restores))
	}
	if got := capture.restores[0].Amount.Amount; got != 800 {
		t.Errorf("restored amount: got %d, want 800", got)
	}
}

func TestProcessMixedPaymentAmountMismatch(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, ledger.WithGateway(&fakeGateway{}))

	bad := ledger.PaymentPlan{
		Method:        ledger.MethodMixed,
		OrderAmount:   ledger.EUR(2000),
		BalanceAmount: ledger.EUR(800),
		CardAmount:    ledger.EUR(1100), // off by 100
	}
	_, err := l.ProcessMixedPayment(ctx, ledger.PaymentRequest{OrderID: "order-1", Owner: ledger.UserRef("u1")}, bad)
	if !errors.Is(err, ledger.ErrAmountMismatch) {
		t.Fatalf("got %v, want ErrAmountMismatch", err)
	}
}

func TestProcessMixedPaymentCardOnlyPlan(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{}
	l := newTestLedger(t, ledger.WithGateway(gw))

	// A caller-built card-only plan leaves BalanceAmount as the zero
	// Money value, with no currency. Validation must accept it.
	plan := ledger.PaymentPlan{
		Method:      ledger.MethodCard,
		OrderAmount: ledger.EUR(2000),
		CardAmount:  ledger.EUR(2000),
	}

	res, err := l.ProcessMixedPayment(ctx, ledger.PaymentRequest{
		OrderID: "order-1",
		UserID:  "u1",
		Owner:   ledger.UserRef("u1"),
	}, plan)
	if err != nil {
		t.Fatalf("ProcessMixedPayment: %v", err)
	}
	if len(gw.calls) != 1 || gw.calls[0].Amount.Amount != 2000 {
		t.Fatalf("gateway calls: %+v", gw.calls)
	}
	if res.RemainingBalance.Amount != 0 {
		t.Errorf("remaining: got %d, want 0", res.RemainingBalance.Amount)
	}
}

func TestProcessMixedPaymentCurrencyMismatch(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, ledger.WithGateway(&fakeGateway{}))

	bad := ledger.PaymentPlan{
		Method:        ledger.MethodMixed,
		OrderAmount:   ledger.EUR(2000),
		BalanceAmount: ledger.USD(800),
		CardAmount:    ledger.EUR(1200),
	}
	_, err := l.ProcessMixedPayment(ctx, ledger.PaymentRequest{OrderID: "order-1", Owner: ledger.UserRef("u1")}, bad)
	if !errors.Is(err, ledger.ErrInvalidAmount) {
		t.Fatalf("got %v, want ErrInvalidAmount", err)
	}
}

func TestProcessMixedPaymentWithoutGateway(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	plan := ledger.PaymentPlan{
		Method:      ledger.MethodCard,
		OrderAmount: ledger.EUR(2000),
		CardAmount:  ledger.EUR(2000),
	}

	_, err := l.ProcessMixedPayment(ctx, ledger.PaymentRequest{OrderID: "order-1", Owner: ledger.UserRef("u1")}, plan)
	if err == nil {
		t.Fatal("expected error without configured gateway")
	}
}

func TestConcurrentBalancePaymentsNeverOverdraw(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	owner := ledger.UserRef("u1")

	if _, err := l.AddCredit(ctx, owner, credit.TypeCash, 100, "allocation"); err != nil {
		t.Fatalf("AddCredit: %v", err)
	}

	// Two simultaneous purchases of the full balance. The row lock in
	// the debit path must let exactly one through.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = l.ProcessBalancePayment(ctx, ledger.PaymentRequest{
				OrderID: "order-" + string(rune('a'+i)),
				UserID:  "u1",
				Owner:   owner,
			}, 100)
		}(i)
	}
	wg.Wait()

	succeeded, insufficient := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ledger.ErrInsufficientBalance):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 || insufficient != 1 {
		t.Fatalf("got %d successes and %d insufficiencies, want 1 and 1", succeeded, insufficient)
	}

	b, err := l.GetBalance(ctx, owner, credit.TypeCash)
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if b.Amount != 0 {
		t.Errorf("final balance: got %d, want 0", b.Amount)
	}
}
