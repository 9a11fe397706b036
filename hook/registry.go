package hook

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/beneflow/ledger/invoicegen"
)

// Registry manages all registered hooks and provides efficient
// dispatch. It uses type-cached discovery so emission never walks the
// full hook list.
type Registry struct {
	mu     sync.RWMutex
	hooks  []Hook
	logger *slog.Logger

	// Type-cached hook lists for efficient dispatch
	onInit                     []OnInit
	onShutdown                 []OnShutdown
	onCreditAdded              []OnCreditAdded
	onCreditConsumed           []OnCreditConsumed
	onCreditExpired            []OnCreditExpired
	onCreditAdjusted           []OnCreditAdjusted
	onPurchaseProgress         []OnPurchaseProgress
	onPaymentFailed            []OnPaymentFailed
	onBalanceRestored          []OnBalanceRestored
	onDivisionInvoiceGenerated []OnDivisionInvoiceGenerated
	onDivisionInvoicePaid      []OnDivisionInvoicePaid
	onDivisionCreditApplied    []OnDivisionCreditApplied
	onBatchStarted             []OnBatchStarted
	onBatchCompleted           []OnBatchCompleted
}

// NewRegistry creates a new hook registry.
func NewRegistry() *Registry {
	return &Registry{
		logger: slog.Default(),
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// Register adds a hook to the registry and caches its interfaces.
func (r *Registry) Register(h Hook) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.hooks {
		if existing.Name() == h.Name() {
			return fmt.Errorf("hook: duplicate registration: %s", h.Name())
		}
	}

	r.hooks = append(r.hooks, h)

	// Type-switch to cache interfaces
	if v, ok := h.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := h.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := h.(OnCreditAdded); ok {
		r.onCreditAdded = append(r.onCreditAdded, v)
	}
	if v, ok := h.(OnCreditConsumed); ok {
		r.onCreditConsumed = append(r.onCreditConsumed, v)
	}
	if v, ok := h.(OnCreditExpired); ok {
		r.onCreditExpired = append(r.onCreditExpired, v)
	}
	if v, ok := h.(OnCreditAdjusted); ok {
		r.onCreditAdjusted = append(r.onCreditAdjusted, v)
	}
	if v, ok := h.(OnPurchaseProgress); ok {
		r.onPurchaseProgress = append(r.onPurchaseProgress, v)
	}
	if v, ok := h.(OnPaymentFailed); ok {
		r.onPaymentFailed = append(r.onPaymentFailed, v)
	}
	if v, ok := h.(OnBalanceRestored); ok {
		r.onBalanceRestored = append(r.onBalanceRestored, v)
	}
	if v, ok := h.(OnDivisionInvoiceGenerated); ok {
		r.onDivisionInvoiceGenerated = append(r.onDivisionInvoiceGenerated, v)
	}
	if v, ok := h.(OnDivisionInvoicePaid); ok {
		r.onDivisionInvoicePaid = append(r.onDivisionInvoicePaid, v)
	}
	if v, ok := h.(OnDivisionCreditApplied); ok {
		r.onDivisionCreditApplied = append(r.onDivisionCreditApplied, v)
	}
	if v, ok := h.(OnBatchStarted); ok {
		r.onBatchStarted = append(r.onBatchStarted, v)
	}
	if v, ok := h.(OnBatchCompleted); ok {
		r.onBatchCompleted = append(r.onBatchCompleted, v)
	}

	r.logger.Info("hook registered", "name", h.Name())

	return nil
}

// Get returns a hook by name.
func (r *Registry) Get(name string) Hook {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, h := range r.hooks {
		if h.Name() == name {
			return h
		}
	}
	return nil
}

// List returns all registered hooks.
func (r *Registry) List() []Hook {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Hook, len(r.hooks))
	copy(result, r.hooks)
	return result
}

// Count returns the number of registered hooks.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.hooks)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all hooks that implement it.
func (r *Registry) EmitInit(ctx context.Context, ledger interface{}) {
	r.mu.RLock()
	hooks := r.onInit
	r.mu.RUnlock()

	for _, h := range hooks {
		if err := r.callWithTimeout(ctx, h.Name(), func() error {
			return h.OnInit(ctx, ledger)
		}); err != nil {
			r.logger.Warn("hook OnInit failed", "hook", h.Name(), "error", err)
		}
	}
}

// EmitShutdown calls OnShutdown for all hooks that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	hooks := r.onShutdown
	r.mu.RUnlock()

	for _, h := range hooks {
		if err := r.callWithTimeout(ctx, h.Name(), func() error {
			return h.OnShutdown(ctx)
		}); err != nil {
			r.logger.Warn("hook OnShutdown failed", "hook", h.Name(), "error", err)
		}
	}
}

// EmitCreditAdded emits a credit added notice.
func (r *Registry) EmitCreditAdded(ctx context.Context, n CreditNotice) {
	r.mu.RLock()
	hooks := r.onCreditAdded
	r.mu.RUnlock()

	for _, h := range hooks {
		if err := r.callWithTimeout(ctx, h.Name(), func() error {
			return h.OnCreditAdded(ctx, n)
		}); err != nil {
			r.logger.Warn("hook OnCreditAdded failed", "hook", h.Name(), "error", err)
		}
	}
}

// EmitCreditConsumed emits a credit consumed notice.
func (r *Registry) EmitCreditConsumed(ctx context.Context, n CreditNotice) {
	r.mu.RLock()
	hooks := r.onCreditConsumed
	r.mu.RUnlock()

	for _, h := range hooks {
		if err := r.callWithTimeout(ctx, h.Name(), func() error {
			return h.OnCreditConsumed(ctx, n)
		}); err != nil {
			r.logger.Warn("hook OnCreditConsumed failed", "hook", h.Name(), "error", err)
		}
	}
}

// EmitCreditExpired emits a credit expired notice.
func (r *Registry) EmitCreditExpired(ctx context.Context, n CreditNotice) {
	r.mu.RLock()
	hooks := r.onCreditExpired
	r.mu.RUnlock()

	for _, h := range hooks {
		if err := r.callWithTimeout(ctx, h.Name(), func() error {
			return h.OnCreditExpired(ctx, n)
		}); err != nil {
			r.logger.Warn("hook OnCreditExpired failed", "hook", h.Name(), "error", err)
		}
	}
}

// EmitCreditAdjusted emits an adjustment notice.
func (r *Registry) EmitCreditAdjusted(ctx context.Context, n AdjustmentNotice) {
	r.mu.RLock()
	hooks := r.onCreditAdjusted
	r.mu.RUnlock()

	for _, h := range hooks {
		if err := r.callWithTimeout(ctx, h.Name(), func() error {
			return h.OnCreditAdjusted(ctx, n)
		}); err != nil {
			r.logger.Warn("hook OnCreditAdjusted failed", "hook", h.Name(), "error", err)
		}
	}
}

// EmitPurchaseProgress emits a settlement progress notice.
func (r *Registry) EmitPurchaseProgress(ctx context.Context, n ProgressNotice) {
	r.mu.RLock()
	hooks := r.onPurchaseProgress
	r.mu.RUnlock()

	for _, h := range hooks {
		if err := r.callWithTimeout(ctx, h.Name(), func() error {
			return h.OnPurchaseProgress(ctx, n)
		}); err != nil {
			r.logger.Warn("hook OnPurchaseProgress failed", "hook", h.Name(), "error", err)
		}
	}
}

// EmitPaymentFailed emits a settlement failure notice.
func (r *Registry) EmitPaymentFailed(ctx context.Context, n FailureNotice) {
	r.mu.RLock()
	hooks := r.onPaymentFailed
	r.mu.RUnlock()

	for _, h := range hooks {
		if err := r.callWithTimeout(ctx, h.Name(), func() error {
			return h.OnPaymentFailed(ctx, n)
		}); err != nil {
			r.logger.Warn("hook OnPaymentFailed failed", "hook", h.Name(), "error", err)
		}
	}
}

// EmitBalanceRestored emits a balance restoration notice.
func (r *Registry) EmitBalanceRestored(ctx context.Context, n RestoreNotice) {
	r.mu.RLock()
	hooks := r.onBalanceRestored
	r.mu.RUnlock()

	for _, h := range hooks {
		if err := r.callWithTimeout(ctx, h.Name(), func() error {
			return h.OnBalanceRestored(ctx, n)
		}); err != nil {
			r.logger.Warn("hook OnBalanceRestored failed", "hook", h.Name(), "error", err)
		}
	}
}

// EmitDivisionInvoiceGenerated emits a division invoice notice.
func (r *Registry) EmitDivisionInvoiceGenerated(ctx context.Context, n DivisionNotice) {
	r.mu.RLock()
	hooks := r.onDivisionInvoiceGenerated
	r.mu.RUnlock()

	for _, h := range hooks {
		if err := r.callWithTimeout(ctx, h.Name(), func() error {
			return h.OnDivisionInvoiceGenerated(ctx, n)
		}); err != nil {
			r.logger.Warn("hook OnDivisionInvoiceGenerated failed", "hook", h.Name(), "error", err)
		}
	}
}

// EmitDivisionInvoicePaid emits a division payment notice.
func (r *Registry) EmitDivisionInvoicePaid(ctx context.Context, n DivisionNotice) {
	r.mu.RLock()
	hooks := r.onDivisionInvoicePaid
	r.mu.RUnlock()

	for _, h := range hooks {
		if err := r.callWithTimeout(ctx, h.Name(), func() error {
			return h.OnDivisionInvoicePaid(ctx, n)
		}); err != nil {
			r.logger.Warn("hook OnDivisionInvoicePaid failed", "hook", h.Name(), "error", err)
		}
	}
}

// EmitDivisionCreditApplied emits a division credit notice.
func (r *Registry) EmitDivisionCreditApplied(ctx context.Context, n DivisionNotice) {
	r.mu.RLock()
	hooks := r.onDivisionCreditApplied
	r.mu.RUnlock()

	for _, h := range hooks {
		if err := r.callWithTimeout(ctx, h.Name(), func() error {
			return h.OnDivisionCreditApplied(ctx, n)
		}); err != nil {
			r.logger.Warn("hook OnDivisionCreditApplied failed", "hook", h.Name(), "error", err)
		}
	}
}

// EmitBatchStarted emits a batch started notice.
func (r *Registry) EmitBatchStarted(ctx context.Context, status invoicegen.GenerationStatus) {
	r.mu.RLock()
	hooks := r.onBatchStarted
	r.mu.RUnlock()

	for _, h := range hooks {
		if err := r.callWithTimeout(ctx, h.Name(), func() error {
			return h.OnBatchStarted(ctx, status)
		}); err != nil {
			r.logger.Warn("hook OnBatchStarted failed", "hook", h.Name(), "error", err)
		}
	}
}

// EmitBatchCompleted emits a batch completed notice.
func (r *Registry) EmitBatchCompleted(ctx context.Context, status invoicegen.GenerationStatus) {
	r.mu.RLock()
	hooks := r.onBatchCompleted
	r.mu.RUnlock()

	for _, h := range hooks {
		if err := r.callWithTimeout(ctx, h.Name(), func() error {
			return h.OnBatchCompleted(ctx, status)
		}); err != nil {
			r.logger.Warn("hook OnBatchCompleted failed", "hook", h.Name(), "error", err)
		}
	}
}

// callWithTimeout calls a hook function with a timeout.
// Hooks must never block the settlement pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, hookName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		return fmt.Errorf("hook timeout: %s", hookName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
