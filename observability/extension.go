// Package observability provides a metrics hook for Ledger that records
// lifecycle event counts through an injected MetricFactory.
package observability

import (
	"context"

	"github.com/beneflow/ledger"
	"github.com/beneflow/ledger/hook"
	"github.com/beneflow/ledger/invoicegen"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ hook.Hook                       = (*MetricsExtension)(nil)
	_ hook.OnInit                     = (*MetricsExtension)(nil)
	_ hook.OnCreditAdded              = (*MetricsExtension)(nil)
	_ hook.OnCreditConsumed           = (*MetricsExtension)(nil)
	_ hook.OnCreditExpired            = (*MetricsExtension)(nil)
	_ hook.OnCreditAdjusted           = (*MetricsExtension)(nil)
	_ hook.OnPurchaseProgress         = (*MetricsExtension)(nil)
	_ hook.OnPaymentFailed            = (*MetricsExtension)(nil)
	_ hook.OnBalanceRestored          = (*MetricsExtension)(nil)
	_ hook.OnDivisionInvoiceGenerated = (*MetricsExtension)(nil)
	_ hook.OnDivisionInvoicePaid      = (*MetricsExtension)(nil)
	_ hook.OnDivisionCreditApplied    = (*MetricsExtension)(nil)
	_ hook.OnBatchStarted             = (*MetricsExtension)(nil)
	_ hook.OnBatchCompleted           = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a Ledger hook to automatically track settlement metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Credit metrics
	CreditAdded    Counter
	CreditConsumed Counter
	CreditExpired  Counter
	CreditAdjusted Counter
	CreditGranted  Histogram

	// Settlement metrics
	PurchaseSteps        Counter
	PaymentFailures      Counter
	CardChargeFailures   Counter
	CompensationFailures Counter
	BalancesRestored     Counter
	CardShare            Histogram

	// Division metrics
	DivisionInvoiced     Counter
	DivisionPaid         Counter
	DivisionCredited     Counter
	DivisionInvoiceTotal Histogram

	// Generation metrics
	BatchesStarted   Counter
	BatchesCompleted Counter
	BatchesFailed    Counter
	BatchSize        Histogram
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Credit metrics
		CreditAdded:    factory.Counter("ledger.credit.added"),
		CreditConsumed: factory.Counter("ledger.credit.consumed"),
		CreditExpired:  factory.Counter("ledger.credit.expired"),
		CreditAdjusted: factory.Counter("ledger.credit.adjusted"),
		CreditGranted:  factory.Histogram("ledger.credit.granted_amount"),

		// Settlement metrics
		PurchaseSteps:        factory.Counter("ledger.purchase.steps"),
		PaymentFailures:      factory.Counter("ledger.payment.failures"),
		CardChargeFailures:   factory.Counter("ledger.payment.card.failures"),
		CompensationFailures: factory.Counter("ledger.payment.compensation.failures"),
		BalancesRestored:     factory.Counter("ledger.balance.restored"),
		CardShare:            factory.Histogram("ledger.payment.card_amount"),

		// Division metrics
		DivisionInvoiced:     factory.Counter("ledger.division.invoiced"),
		DivisionPaid:         factory.Counter("ledger.division.paid"),
		DivisionCredited:     factory.Counter("ledger.division.credited"),
		DivisionInvoiceTotal: factory.Histogram("ledger.division.invoice_total"),

		// Generation metrics
		BatchesStarted:   factory.Counter("ledger.generation.started"),
		BatchesCompleted: factory.Counter("ledger.generation.completed"),
		BatchesFailed:    factory.Counter("ledger.generation.failed"),
		BatchSize:        factory.Histogram("ledger.generation.batch_size"),
	}
}

// Name implements hook.Hook.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements hook.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	// No initialization needed
	return nil
}

// ──────────────────────────────────────────────────
// Credit account hooks
// ──────────────────────────────────────────────────

// OnCreditAdded implements hook.OnCreditAdded.
func (m *MetricsExtension) OnCreditAdded(_ context.Context, n hook.CreditNotice) error {
	m.CreditAdded.Inc()
	m.CreditGranted.Observe(float64(n.Amount.Amount))
	return nil
}

// OnCreditConsumed implements hook.OnCreditConsumed.
func (m *MetricsExtension) OnCreditConsumed(_ context.Context, _ hook.CreditNotice) error {
	m.CreditConsumed.Inc()
	return nil
}

// OnCreditExpired implements hook.OnCreditExpired.
func (m *MetricsExtension) OnCreditExpired(_ context.Context, _ hook.CreditNotice) error {
	m.CreditExpired.Inc()
	return nil
}

// OnCreditAdjusted implements hook.OnCreditAdjusted.
func (m *MetricsExtension) OnCreditAdjusted(_ context.Context, _ hook.AdjustmentNotice) error {
	m.CreditAdjusted.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Settlement hooks
// ──────────────────────────────────────────────────

// OnPurchaseProgress implements hook.OnPurchaseProgress.
func (m *MetricsExtension) OnPurchaseProgress(_ context.Context, n hook.ProgressNotice) error {
	m.PurchaseSteps.Inc()
	if n.CardAmount.IsPositive() {
		m.CardShare.Observe(float64(n.CardAmount.Amount))
	}
	return nil
}

// OnPaymentFailed implements hook.OnPaymentFailed.
func (m *MetricsExtension) OnPaymentFailed(_ context.Context, n hook.FailureNotice) error {
	m.PaymentFailures.Inc()
	switch n.Stage {
	case ledger.StageCardCharge:
		m.CardChargeFailures.Inc()
	case ledger.StageCompensation:
		m.CompensationFailures.Inc()
	}
	return nil
}

// OnBalanceRestored implements hook.OnBalanceRestored.
func (m *MetricsExtension) OnBalanceRestored(_ context.Context, _ hook.RestoreNotice) error {
	m.BalancesRestored.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Division hooks
// ──────────────────────────────────────────────────

// OnDivisionInvoiceGenerated implements hook.OnDivisionInvoiceGenerated.
func (m *MetricsExtension) OnDivisionInvoiceGenerated(_ context.Context, n hook.DivisionNotice) error {
	m.DivisionInvoiced.Inc()
	m.DivisionInvoiceTotal.Observe(float64(n.Amount.Amount))
	return nil
}

// OnDivisionInvoicePaid implements hook.OnDivisionInvoicePaid.
func (m *MetricsExtension) OnDivisionInvoicePaid(_ context.Context, _ hook.DivisionNotice) error {
	m.DivisionPaid.Inc()
	return nil
}

// OnDivisionCreditApplied implements hook.OnDivisionCreditApplied.
func (m *MetricsExtension) OnDivisionCreditApplied(_ context.Context, _ hook.DivisionNotice) error {
	m.DivisionCredited.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Invoice generation hooks
// ──────────────────────────────────────────────────

// OnBatchStarted implements hook.OnBatchStarted.
func (m *MetricsExtension) OnBatchStarted(_ context.Context, s invoicegen.GenerationStatus) error {
	m.BatchesStarted.Inc()
	m.BatchSize.Observe(float64(s.Total))
	return nil
}

// OnBatchCompleted implements hook.OnBatchCompleted.
func (m *MetricsExtension) OnBatchCompleted(_ context.Context, s invoicegen.GenerationStatus) error {
	if s.Status == invoicegen.StatusFailed {
		m.BatchesFailed.Inc()
		return nil
	}
	m.BatchesCompleted.Inc()
	return nil
}
