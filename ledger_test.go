package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	ledger "github.com/beneflow/ledger"
	"github.com/beneflow/ledger/credit"
	"github.com/beneflow/ledger/invoicegen"
	"github.com/beneflow/ledger/store/memory"
)

func newTestLedger(t *testing.T, opts ...ledger.Option) *ledger.Ledger {
	t.Helper()
	l := ledger.New(memory.New(), opts...)
	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = l.Stop() })
	return l
}

func TestAddAndGetBalance(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	owner := ledger.UserRef("u1")

	b, err := l.AddCredit(ctx, owner, credit.TypeCash, 5000, "monthly allocation")
	if err != nil {
		t.Fatalf("AddCredit: %v", err)
	}
	if b.Amount != 5000 {
		t.Errorf("balance: got %d, want 5000", b.Amount)
	}

	got, err := l.GetBalance(ctx, owner, credit.TypeCash)
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if got.Amount != 5000 {
		t.Errorf("projected balance: got %d, want 5000", got.Amount)
	}
}

func TestGetBalanceUnknownAccount(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	_, err := l.GetBalance(ctx, ledger.UserRef("nobody"), credit.TypeCash)
	if !errors.Is(err, ledger.ErrBalanceNotFound) {
		t.Fatalf("got %v, want ErrBalanceNotFound", err)
	}
}

func TestConsumeCredit(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	owner := ledger.UserRef("u1")

	if _, err := l.AddCredit(ctx, owner, credit.TypeCash, 1000, "allocation"); err != nil {
		t.Fatalf("AddCredit: %v", err)
	}

	outcome, b, err := l.ConsumeCredit(ctx, owner, credit.TypeCash, 600, "u1", "lunch")
	if err != nil {
		t.Fatalf("ConsumeCredit: %v", err)
	}
	if outcome != credit.OutcomeConsumed {
		t.Errorf("outcome: got %v, want consumed", outcome)
	}
	if b.Amount != 400 {
		t.Errorf("balance: got %d, want 400", b.Amount)
	}
}

func TestConsumeCreditInsufficientIsNoOp(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	owner := ledger.UserRef("u1")

	if _, err := l.AddCredit(ctx, owner, credit.TypeCash, 500, "allocation"); err != nil {
		t.Fatalf("AddCredit: %v", err)
	}

	outcome, _, err := l.ConsumeCredit(ctx, owner, credit.TypeCash, 800, "u1", "lunch")
	if err != nil {
		t.Fatalf("ConsumeCredit: %v", err)
	}
	if outcome != credit.OutcomeInsufficient {
		t.Errorf("outcome: got %v, want insufficient", outcome)
	}

	// Nothing changed.
	b, err := l.GetBalance(ctx, owner, credit.TypeCash)
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if b.Amount != 500 {
		t.Errorf("balance after no-op: got %d, want 500", b.Amount)
	}
}

func TestConsumeCreditUnknownAccountReturnsZeroBalance(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	owner := ledger.UserRef("nobody")

	outcome, b, err := l.ConsumeCredit(ctx, owner, credit.TypeCash, 100, "u1", "lunch")
	if err != nil {
		t.Fatalf("ConsumeCredit: %v", err)
	}
	if outcome != credit.OutcomeInsufficient {
		t.Errorf("outcome: got %v, want insufficient", outcome)
	}
	if b == nil {
		t.Fatal("balance is nil, want a zero-valued row")
	}
	if b.Amount != 0 || b.Owner != owner || b.Type != credit.TypeCash {
		t.Errorf("zero balance row: %+v", b)
	}
}

func TestBalanceRowTimestamps(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	owner := ledger.UserRef("u1")

	first, err := l.AddCredit(ctx, owner, credit.TypeCash, 1000, "allocation")
	if err != nil {
		t.Fatalf("AddCredit: %v", err)
	}
	if first.CreatedAt.IsZero() {
		t.Fatal("CreatedAt not set on first projection")
	}
	if !first.CreatedAt.Equal(first.UpdatedAt) {
		t.Errorf("first projection: CreatedAt %v != UpdatedAt %v", first.CreatedAt, first.UpdatedAt)
	}

	second, err := l.AddCredit(ctx, owner, credit.TypeCash, 500, "top-up")
	if err != nil {
		t.Fatalf("AddCredit: %v", err)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("CreatedAt changed on second event: %v -> %v", first.CreatedAt, second.CreatedAt)
	}
	if second.UpdatedAt.Before(first.UpdatedAt) {
		t.Errorf("UpdatedAt went backwards: %v -> %v", first.UpdatedAt, second.UpdatedAt)
	}
}

func TestExpireAndAdjustCredit(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	owner := ledger.FinancerRef("fin-1")

	if _, err := l.AddCredit(ctx, owner, credit.TypeCash, 2000, "allocation"); err != nil {
		t.Fatalf("AddCredit: %v", err)
	}

	b, err := l.ExpireCredit(ctx, owner, credit.TypeCash, 300, "period end")
	if err != nil {
		t.Fatalf("ExpireCredit: %v", err)
	}
	if b.Amount != 1700 {
		t.Errorf("balance after expiry: got %d, want 1700", b.Amount)
	}

	b, err = l.AdjustCredit(ctx, owner, credit.TypeCash, 999, "admin-1", "support ticket 4711")
	if err != nil {
		t.Fatalf("AdjustCredit: %v", err)
	}
	if b.Amount != 999 {
		t.Errorf("balance after adjust: got %d, want 999", b.Amount)
	}
}

func TestRestoreBalance(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	owner := ledger.UserRef("u1")

	if _, err := l.AddCredit(ctx, owner, credit.TypeCash, 1000, "allocation"); err != nil {
		t.Fatalf("AddCredit: %v", err)
	}
	if _, _, err := l.ConsumeCredit(ctx, owner, credit.TypeCash, 400, "u1", "order-1"); err != nil {
		t.Fatalf("ConsumeCredit: %v", err)
	}

	b, err := l.RestoreBalance(ctx, owner, credit.TypeCash, 400, "order-1")
	if err != nil {
		t.Fatalf("RestoreBalance: %v", err)
	}
	if b.Amount != 1000 {
		t.Errorf("restored balance: got %d, want 1000", b.Amount)
	}
}

func TestDivisionFlow(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	now := time.Now().UTC()

	b, err := l.DivisionInvoiceGenerated(ctx, "div-1", "inv-1", 10000, now)
	if err != nil {
		t.Fatalf("DivisionInvoiceGenerated: %v", err)
	}
	if b.Amount != 10000 {
		t.Errorf("balance: got %d, want 10000", b.Amount)
	}

	entry, err := l.GetInvoiceOutstanding(ctx, "div-1", "inv-1")
	if err != nil {
		t.Fatalf("GetInvoiceOutstanding: %v", err)
	}
	if entry.Outstanding != 10000 {
		t.Errorf("outstanding: got %d, want 10000", entry.Outstanding)
	}

	// Overpayment: division total goes negative, outstanding floors at 0.
	b, err = l.DivisionInvoicePaid(ctx, "div-1", "inv-1", 12000, now)
	if err != nil {
		t.Fatalf("DivisionInvoicePaid: %v", err)
	}
	if b.Amount != -2000 {
		t.Errorf("balance after overpayment: got %d, want -2000", b.Amount)
	}
	entry, err = l.GetInvoiceOutstanding(ctx, "div-1", "inv-1")
	if err != nil {
		t.Fatalf("GetInvoiceOutstanding: %v", err)
	}
	if entry.Outstanding != 0 {
		t.Errorf("outstanding after overpayment: got %d, want 0", entry.Outstanding)
	}

	b, err = l.ApplyDivisionCredit(ctx, "div-1", "", 500, "goodwill", now)
	if err != nil {
		t.Fatalf("ApplyDivisionCredit: %v", err)
	}
	if b.Amount != -2500 {
		t.Errorf("balance after credit: got %d, want -2500", b.Amount)
	}
}

func TestGenerationBatchFlow(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	status, err := l.StartGenerationBatch(ctx, "batch-1", "2025-05", 2)
	if err != nil {
		t.Fatalf("StartGenerationBatch: %v", err)
	}
	if status.Status != invoicegen.StatusInProgress {
		t.Errorf("status: got %s, want in_progress", status.Status)
	}

	if _, err := l.MarkInvoiceCompleted(ctx, "batch-1", "inv-1"); err != nil {
		t.Fatalf("MarkInvoiceCompleted: %v", err)
	}
	if _, err := l.MarkInvoiceFailed(ctx, "batch-1", "inv-2", "missing address"); err != nil {
		t.Fatalf("MarkInvoiceFailed: %v", err)
	}

	status, err = l.CompleteGenerationBatch(ctx, "batch-1")
	if err != nil {
		t.Fatalf("CompleteGenerationBatch: %v", err)
	}
	if status.Status != invoicegen.StatusCompletedWithErrors {
		t.Errorf("status: got %s, want completed_with_errors", status.Status)
	}

	// The projection agrees with the command result.
	got, err := l.GetGenerationStatus(ctx, "batch-1")
	if err != nil {
		t.Fatalf("GetGenerationStatus: %v", err)
	}
	if got.Completed != 1 || got.Failed != 1 || got.Status != invoicegen.StatusCompletedWithErrors {
		t.Errorf("projected status: %+v", got)
	}
}

func TestProgressOnUnknownBatch(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	// The facade surfaces the root not-found sentinel alongside the
	// aggregate's own error, so both errors.Is checks hold.
	_, err := l.MarkInvoiceCompleted(ctx, "ghost", "inv-1")
	if !errors.Is(err, ledger.ErrBatchNotFound) {
		t.Fatalf("got %v, want ErrBatchNotFound", err)
	}
	if !errors.Is(err, invoicegen.ErrUnknownBatch) {
		t.Errorf("got %v, want ErrUnknownBatch to also match", err)
	}
	if !ledger.IsNotFound(err) {
		t.Errorf("IsNotFound(%v) = false, want true", err)
	}

	if _, err := l.MarkInvoiceFailed(ctx, "ghost", "inv-1", "boom"); !errors.Is(err, ledger.ErrBatchNotFound) {
		t.Errorf("MarkInvoiceFailed: got %v, want ErrBatchNotFound", err)
	}
	if _, err := l.CompleteGenerationBatch(ctx, "ghost"); !errors.Is(err, ledger.ErrBatchNotFound) {
		t.Errorf("CompleteGenerationBatch: got %v, want ErrBatchNotFound", err)
	}
}

func TestGetGenerationStatusUnknownBatchIsEmpty(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	status, err := l.GetGenerationStatus(ctx, "ghost")
	if err != nil {
		t.Fatalf("GetGenerationStatus: %v", err)
	}
	if status != (invoicegen.GenerationStatus{}) {
		t.Errorf("expected empty status, got %+v", status)
	}
}

func TestPlanPayment(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	owner := ledger.UserRef("u1")

	// No account yet: card pays everything.
	plan, err := l.PlanPayment(ctx, owner, 2000)
	if err != nil {
		t.Fatalf("PlanPayment: %v", err)
	}
	if plan.Method != ledger.MethodCard {
		t.Errorf("method: got %s, want card", plan.Method)
	}

	if _, err := l.AddCredit(ctx, owner, credit.TypeCash, 800, "allocation"); err != nil {
		t.Fatalf("AddCredit: %v", err)
	}

	plan, err = l.PlanPayment(ctx, owner, 2000)
	if err != nil {
		t.Fatalf("PlanPayment: %v", err)
	}
	if plan.Method != ledger.MethodMixed {
		t.Errorf("method: got %s, want mixed", plan.Method)
	}
	if plan.BalanceAmount.Amount != 800 || plan.CardAmount.Amount != 1200 {
		t.Errorf("shares: %d + %d", plan.BalanceAmount.Amount, plan.CardAmount.Amount)
	}
}
