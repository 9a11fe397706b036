// Package audithook bridges Ledger lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not depend
// on a concrete backend. Callers inject a RecorderFunc adapter (or the
// mongotrail recorder) at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/beneflow/ledger/hook"
	"github.com/beneflow/ledger/invoicegen"
)

// Compile-time interface checks.
var (
	_ hook.Hook                       = (*Extension)(nil)
	_ hook.OnCreditAdded              = (*Extension)(nil)
	_ hook.OnCreditConsumed           = (*Extension)(nil)
	_ hook.OnCreditExpired            = (*Extension)(nil)
	_ hook.OnCreditAdjusted           = (*Extension)(nil)
	_ hook.OnBalanceRestored          = (*Extension)(nil)
	_ hook.OnPurchaseProgress         = (*Extension)(nil)
	_ hook.OnPaymentFailed            = (*Extension)(nil)
	_ hook.OnDivisionInvoiceGenerated = (*Extension)(nil)
	_ hook.OnDivisionInvoicePaid      = (*Extension)(nil)
	_ hook.OnDivisionCreditApplied    = (*Extension)(nil)
	_ hook.OnBatchStarted             = (*Extension)(nil)
	_ hook.OnBatchCompleted           = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// It is defined locally so this package does not import a storage
// driver — callers inject the concrete recorder at wiring time.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges Ledger lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements hook.Hook.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Credit account hooks
// ──────────────────────────────────────────────────

// OnCreditAdded implements hook.OnCreditAdded.
func (e *Extension) OnCreditAdded(ctx context.Context, n hook.CreditNotice) error {
	return e.record(ctx, ActionCreditAdded, SeverityInfo, OutcomeSuccess,
		ResourceCredit, n.Owner.String(), CategoryCredit, nil,
		"credit_type", string(n.Type),
		"amount", n.Amount.Amount,
		"balance", n.Balance.Amount,
		"context", n.Context,
	)
}

// OnCreditConsumed implements hook.OnCreditConsumed.
func (e *Extension) OnCreditConsumed(ctx context.Context, n hook.CreditNotice) error {
	return e.record(ctx, ActionCreditConsumed, SeverityInfo, OutcomeSuccess,
		ResourceCredit, n.Owner.String(), CategoryCredit, nil,
		"credit_type", string(n.Type),
		"amount", n.Amount.Amount,
		"balance", n.Balance.Amount,
		"by_user", n.ByUserID,
	)
}

// OnCreditExpired implements hook.OnCreditExpired.
func (e *Extension) OnCreditExpired(ctx context.Context, n hook.CreditNotice) error {
	return e.record(ctx, ActionCreditExpired, SeverityInfo, OutcomeSuccess,
		ResourceCredit, n.Owner.String(), CategoryCredit, nil,
		"credit_type", string(n.Type),
		"amount", n.Amount.Amount,
		"balance", n.Balance.Amount,
	)
}

// OnCreditAdjusted implements hook.OnCreditAdjusted.
func (e *Extension) OnCreditAdjusted(ctx context.Context, n hook.AdjustmentNotice) error {
	return e.record(ctx, ActionCreditAdjusted, SeverityWarning, OutcomeSuccess,
		ResourceCredit, n.Owner.String(), CategoryAdjustment, nil,
		"credit_type", string(n.Type),
		"old_amount", n.OldAmount.Amount,
		"new_amount", n.NewAmount.Amount,
		"by_admin", n.ByAdminID,
		"context", n.Context,
	)
}

// OnBalanceRestored implements hook.OnBalanceRestored.
func (e *Extension) OnBalanceRestored(ctx context.Context, n hook.RestoreNotice) error {
	return e.record(ctx, ActionCreditRestored, SeverityWarning, OutcomeSuccess,
		ResourceCredit, n.Owner.String(), CategoryPayment, nil,
		"credit_type", string(n.Type),
		"amount", n.Amount.Amount,
		"order_id", n.OrderID,
	)
}

// ──────────────────────────────────────────────────
// Settlement hooks
// ──────────────────────────────────────────────────

// OnPurchaseProgress implements hook.OnPurchaseProgress.
func (e *Extension) OnPurchaseProgress(ctx context.Context, n hook.ProgressNotice) error {
	return e.record(ctx, ActionPaymentProgress, SeverityInfo, OutcomeSuccess,
		ResourcePayment, n.OrderID, CategoryPayment, nil,
		"user_id", n.UserID,
		"step", n.Step,
		"method", n.Method,
		"balance_amount", n.BalanceAmount.Amount,
		"card_amount", n.CardAmount.Amount,
		"remaining_balance", n.RemainingBalance.Amount,
	)
}

// OnPaymentFailed implements hook.OnPaymentFailed.
func (e *Extension) OnPaymentFailed(ctx context.Context, n hook.FailureNotice) error {
	return e.record(ctx, ActionPaymentFailed, SeverityCritical, OutcomeFailure,
		ResourcePayment, n.OrderID, CategoryPayment, n.Err,
		"user_id", n.UserID,
		"stage", n.Stage,
	)
}

// ──────────────────────────────────────────────────
// Division hooks
// ──────────────────────────────────────────────────

// OnDivisionInvoiceGenerated implements hook.OnDivisionInvoiceGenerated.
func (e *Extension) OnDivisionInvoiceGenerated(ctx context.Context, n hook.DivisionNotice) error {
	return e.record(ctx, ActionDivisionInvoiced, SeverityInfo, OutcomeSuccess,
		ResourceDivision, n.DivisionID, CategoryInvoicing, nil,
		"invoice_id", n.InvoiceID,
		"amount", n.Amount.Amount,
		"balance", n.Balance.Amount,
	)
}

// OnDivisionInvoicePaid implements hook.OnDivisionInvoicePaid.
func (e *Extension) OnDivisionInvoicePaid(ctx context.Context, n hook.DivisionNotice) error {
	return e.record(ctx, ActionDivisionPaid, SeverityInfo, OutcomeSuccess,
		ResourceDivision, n.DivisionID, CategoryInvoicing, nil,
		"invoice_id", n.InvoiceID,
		"amount", n.Amount.Amount,
		"balance", n.Balance.Amount,
	)
}

// OnDivisionCreditApplied implements hook.OnDivisionCreditApplied.
func (e *Extension) OnDivisionCreditApplied(ctx context.Context, n hook.DivisionNotice) error {
	return e.record(ctx, ActionDivisionCredited, SeverityWarning, OutcomeSuccess,
		ResourceDivision, n.DivisionID, CategoryAdjustment, nil,
		"invoice_id", n.InvoiceID,
		"amount", n.Amount.Amount,
		"balance", n.Balance.Amount,
		"reason", n.Reason,
	)
}

// ──────────────────────────────────────────────────
// Invoice generation hooks
// ──────────────────────────────────────────────────

// OnBatchStarted implements hook.OnBatchStarted.
func (e *Extension) OnBatchStarted(ctx context.Context, status invoicegen.GenerationStatus) error {
	return e.record(ctx, ActionBatchStarted, SeverityInfo, OutcomeSuccess,
		ResourceBatch, status.BatchID, CategoryInvoicing, nil,
		"month_year", status.MonthYear,
		"total", status.Total,
	)
}

// OnBatchCompleted implements hook.OnBatchCompleted.
func (e *Extension) OnBatchCompleted(ctx context.Context, status invoicegen.GenerationStatus) error {
	severity := SeverityInfo
	outcome := OutcomeSuccess
	switch status.Status {
	case invoicegen.StatusFailed:
		severity = SeverityError
		outcome = OutcomeFailure
	case invoicegen.StatusCompletedWithErrors:
		severity = SeverityWarning
		outcome = OutcomePartial
	}

	return e.record(ctx, ActionBatchCompleted, severity, outcome,
		ResourceBatch, status.BatchID, CategoryInvoicing, nil,
		"month_year", status.MonthYear,
		"status", string(status.Status),
		"completed", status.Completed,
		"failed", status.Failed,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
