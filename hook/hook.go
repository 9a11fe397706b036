// Package hook provides an extensible hook system for Ledger.
// Hooks can observe credit, division and settlement lifecycle events
// to extend functionality.
package hook

import (
	"context"
	"time"

	"github.com/beneflow/ledger/credit"
	"github.com/beneflow/ledger/invoicegen"
	"github.com/beneflow/ledger/types"
)

// Hook is the base interface that all hooks must implement.
type Hook interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Notice payloads
// ──────────────────────────────────────────────────

// CreditNotice describes a change to a credit account.
type CreditNotice struct {
	Owner    credit.OwnerRef
	Type     credit.Type
	Amount   types.Money
	Balance  types.Money
	Context  string
	ByUserID string
	At       time.Time
}

// AdjustmentNotice describes an administrative balance correction.
type AdjustmentNotice struct {
	Owner     credit.OwnerRef
	Type      credit.Type
	OldAmount types.Money
	NewAmount types.Money
	ByAdminID string
	Context   string
	At        time.Time
}

// ProgressNotice tracks the steps of a settlement attempt.
// RemainingBalance is the owner's cash balance after the step.
type ProgressNotice struct {
	OrderID          string
	UserID           string
	Step             string
	Method           string
	BalanceAmount    types.Money
	CardAmount       types.Money
	RemainingBalance types.Money
	At               time.Time
}

// FailureNotice describes a failed settlement attempt.
type FailureNotice struct {
	OrderID string
	UserID  string
	Stage   string
	Err     error
	At      time.Time
}

// RestoreNotice describes credit returned to an account after a
// failed or refunded purchase.
type RestoreNotice struct {
	Owner   credit.OwnerRef
	Type    credit.Type
	Amount  types.Money
	OrderID string
	At      time.Time
}

// DivisionNotice describes a change to a division balance.
type DivisionNotice struct {
	DivisionID string
	InvoiceID  string
	Amount     types.Money
	Balance    types.Money
	Reason     string
	At         time.Time
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the hook is initialized.
type OnInit interface {
	Hook
	OnInit(ctx context.Context, l interface{}) error
}

// OnShutdown is called when the hook is shutting down.
type OnShutdown interface {
	Hook
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Credit account hooks
// ──────────────────────────────────────────────────

// OnCreditAdded is called when credit is granted to an account.
type OnCreditAdded interface {
	Hook
	OnCreditAdded(ctx context.Context, n CreditNotice) error
}

// OnCreditConsumed is called when credit is spent from an account.
type OnCreditConsumed interface {
	Hook
	OnCreditConsumed(ctx context.Context, n CreditNotice) error
}

// OnCreditExpired is called when credit is expired from an account.
type OnCreditExpired interface {
	Hook
	OnCreditExpired(ctx context.Context, n CreditNotice) error
}

// OnCreditAdjusted is called when an admin corrects a balance.
type OnCreditAdjusted interface {
	Hook
	OnCreditAdjusted(ctx context.Context, n AdjustmentNotice) error
}

// ──────────────────────────────────────────────────
// Settlement hooks
// ──────────────────────────────────────────────────

// OnPurchaseProgress is called at each step of a settlement attempt.
type OnPurchaseProgress interface {
	Hook
	OnPurchaseProgress(ctx context.Context, n ProgressNotice) error
}

// OnPaymentFailed is called when a settlement attempt fails.
type OnPaymentFailed interface {
	Hook
	OnPaymentFailed(ctx context.Context, n FailureNotice) error
}

// OnBalanceRestored is called when consumed credit is returned.
type OnBalanceRestored interface {
	Hook
	OnBalanceRestored(ctx context.Context, n RestoreNotice) error
}

// ──────────────────────────────────────────────────
// Division hooks
// ──────────────────────────────────────────────────

// OnDivisionInvoiceGenerated is called when an invoice is charged to a
// division.
type OnDivisionInvoiceGenerated interface {
	Hook
	OnDivisionInvoiceGenerated(ctx context.Context, n DivisionNotice) error
}

// OnDivisionInvoicePaid is called when a division payment is recorded.
type OnDivisionInvoicePaid interface {
	Hook
	OnDivisionInvoicePaid(ctx context.Context, n DivisionNotice) error
}

// OnDivisionCreditApplied is called when goodwill credit is applied to
// a division.
type OnDivisionCreditApplied interface {
	Hook
	OnDivisionCreditApplied(ctx context.Context, n DivisionNotice) error
}

// ──────────────────────────────────────────────────
// Invoice generation hooks
// ──────────────────────────────────────────────────

// OnBatchStarted is called when a monthly generation batch starts.
type OnBatchStarted interface {
	Hook
	OnBatchStarted(ctx context.Context, status invoicegen.GenerationStatus) error
}

// OnBatchCompleted is called when a generation batch finishes.
type OnBatchCompleted interface {
	Hook
	OnBatchCompleted(ctx context.Context, status invoicegen.GenerationStatus) error
}
