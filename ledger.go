package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/beneflow/ledger/aggregate"
	"github.com/beneflow/ledger/credit"
	"github.com/beneflow/ledger/division"
	"github.com/beneflow/ledger/hook"
	"github.com/beneflow/ledger/invoicegen"
	"github.com/beneflow/ledger/store"
	"github.com/beneflow/ledger/types"
)

// Ledger is the event-sourced credit and settlement engine.
//
// Every command follows the same cycle: open a transaction, replay the
// aggregate from its stream, execute the command, append the staged
// events, fold them into the read model, commit. Hooks fire after the
// commit so observers never see uncommitted state.
type Ledger struct {
	store   store.Store
	hooks   *hook.Registry
	gateway Gateway
	logger  *slog.Logger

	// Configuration
	currency string
}

// New creates a new Ledger instance.
func New(s store.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:    s,
		hooks:    hook.NewRegistry(),
		logger:   slog.Default(),
		currency: "eur",
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Option configures a Ledger instance.
type Option func(*Ledger)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
		l.hooks.WithLogger(logger)
	}
}

// WithHook registers a hook.
func WithHook(h hook.Hook) Option {
	return func(l *Ledger) {
		_ = l.hooks.Register(h) //nolint:errcheck // best-effort hook registration during init
	}
}

// WithGateway sets the external payment gateway client.
func WithGateway(g Gateway) Option {
	return func(l *Ledger) {
		l.gateway = g
	}
}

// WithCurrency sets the minor-unit currency used for notifications and
// settlement amounts. Defaults to "eur".
func WithCurrency(currency string) Option {
	return func(l *Ledger) {
		l.currency = currency
	}
}

// Start migrates the store and initializes hooks.
func (l *Ledger) Start(ctx context.Context) error {
	if err := l.store.Migrate(ctx); err != nil {
		return err
	}

	l.hooks.EmitInit(ctx, l)

	l.logger.Info("ledger started", "currency", l.currency, "hooks", l.hooks.Count())
	return nil
}

// Stop shuts down the Ledger.
func (l *Ledger) Stop() error {
	ctx := context.Background()
	l.hooks.EmitShutdown(ctx)
	return l.store.Close()
}

// Hooks returns the hook registry for post-construction registration.
func (l *Ledger) Hooks() *hook.Registry { return l.hooks }

// Store returns the underlying store.
func (l *Ledger) Store() store.Store { return l.store }

// money wraps a minor-unit amount in the ledger's configured currency.
func (l *Ledger) money(amount int64) types.Money {
	return types.Minor(amount, l.currency)
}

// ──────────────────────────────────────────────────
// Credit accounts
// ──────────────────────────────────────────────────

// loadAccount replays the credit account aggregate for (owner,
// creditType) from its event stream.
func loadAccount(ctx context.Context, s aggregate.Streams, owner credit.OwnerRef, creditType credit.Type) (*credit.Account, error) {
	acct, err := credit.NewAccount(owner, creditType)
	if err != nil {
		return nil, err
	}
	if _, err := aggregate.Load(ctx, s, &acct.Root, acct, credit.DecodeEvent); err != nil {
		return nil, err
	}
	return acct, nil
}

// AddCredit grants credit to an account and returns the updated
// projected balance.
func (l *Ledger) AddCredit(ctx context.Context, owner credit.OwnerRef, creditType credit.Type, amount int64, reason string) (*credit.Balance, error) {
	tx, err := l.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	acct, err := loadAccount(ctx, tx, owner, creditType)
	if err != nil {
		return nil, err
	}
	if err := acct.Add(amount, reason); err != nil {
		return nil, err
	}

	recs, err := aggregate.Save(ctx, tx, &acct.Root)
	if err != nil {
		return nil, err
	}
	b, err := projectCreditEvents(ctx, tx, owner, creditType, recs)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	l.logger.Info("credit added",
		"owner", owner.String(),
		"type", creditType,
		"amount", amount,
		"balance", b.Amount,
	)
	l.hooks.EmitCreditAdded(ctx, hook.CreditNotice{
		Owner:   owner,
		Type:    creditType,
		Amount:  l.money(amount),
		Balance: l.money(b.Amount),
		Context: reason,
		At:      b.UpdatedAt,
	})
	return b, nil
}

// ConsumeCredit spends credit from an account. Insufficiency is an
// observable no-op: the returned outcome is OutcomeInsufficient, no
// event is recorded and no error is returned. Callers that need a
// user-facing insufficiency error must check the outcome themselves.
func (l *Ledger) ConsumeCredit(ctx context.Context, owner credit.OwnerRef, creditType credit.Type, amount int64, byUserID, reason string) (credit.ConsumeOutcome, *credit.Balance, error) {
	tx, err := l.store.BeginTx(ctx)
	if err != nil {
		return credit.OutcomeInsufficient, nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	available := int64(0)
	current, err := tx.GetCreditBalance(ctx, owner, creditType)
	switch {
	case err == nil:
		available = current.Amount
	case errors.Is(err, ErrBalanceNotFound):
		// Unknown account behaves as a zero balance; the returned row
		// is zero-valued rather than nil so callers can read it.
		current = &credit.Balance{Owner: owner, Type: creditType}
	default:
		return credit.OutcomeInsufficient, nil, err
	}

	acct, err := loadAccount(ctx, tx, owner, creditType)
	if err != nil {
		return credit.OutcomeInsufficient, nil, err
	}
	outcome, err := acct.Consume(available, amount, byUserID, reason)
	if err != nil {
		return outcome, nil, err
	}
	if outcome == credit.OutcomeInsufficient {
		l.logger.Debug("credit consume skipped",
			"owner", owner.String(),
			"type", creditType,
			"requested", amount,
			"available", available,
		)
		return outcome, current, nil
	}

	recs, err := aggregate.Save(ctx, tx, &acct.Root)
	if err != nil {
		return credit.OutcomeInsufficient, nil, err
	}
	b, err := projectCreditEvents(ctx, tx, owner, creditType, recs)
	if err != nil {
		return credit.OutcomeInsufficient, nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return credit.OutcomeInsufficient, nil, err
	}

	l.logger.Info("credit consumed",
		"owner", owner.String(),
		"type", creditType,
		"amount", amount,
		"balance", b.Amount,
	)
	l.hooks.EmitCreditConsumed(ctx, hook.CreditNotice{
		Owner:    owner,
		Type:     creditType,
		Amount:   l.money(amount),
		Balance:  l.money(b.Amount),
		Context:  reason,
		ByUserID: byUserID,
		At:       b.UpdatedAt,
	})
	return outcome, b, nil
}

// ExpireCredit removes credit unconditionally, e.g. at the end of a
// benefits period.
func (l *Ledger) ExpireCredit(ctx context.Context, owner credit.OwnerRef, creditType credit.Type, amount int64, reason string) (*credit.Balance, error) {
	tx, err := l.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	acct, err := loadAccount(ctx, tx, owner, creditType)
	if err != nil {
		return nil, err
	}
	if err := acct.Expire(amount, reason); err != nil {
		return nil, err
	}

	recs, err := aggregate.Save(ctx, tx, &acct.Root)
	if err != nil {
		return nil, err
	}
	b, err := projectCreditEvents(ctx, tx, owner, creditType, recs)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	l.logger.Info("credit expired",
		"owner", owner.String(),
		"type", creditType,
		"amount", amount,
		"balance", b.Amount,
	)
	l.hooks.EmitCreditExpired(ctx, hook.CreditNotice{
		Owner:   owner,
		Type:    creditType,
		Amount:  l.money(amount),
		Balance: l.money(b.Amount),
		Context: reason,
		At:      b.UpdatedAt,
	})
	return b, nil
}

// AdjustCredit records an administrative correction that sets the
// balance to newAmount. The previous amount is captured from the
// projection for the audit trail.
func (l *Ledger) AdjustCredit(ctx context.Context, owner credit.OwnerRef, creditType credit.Type, newAmount int64, byAdminID, reason string) (*credit.Balance, error) {
	tx, err := l.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	oldAmount := int64(0)
	if current, err := tx.GetCreditBalance(ctx, owner, creditType); err == nil {
		oldAmount = current.Amount
	} else if !errors.Is(err, ErrBalanceNotFound) {
		return nil, err
	}

	acct, err := loadAccount(ctx, tx, owner, creditType)
	if err != nil {
		return nil, err
	}
	if err := acct.Adjust(oldAmount, newAmount, byAdminID, reason); err != nil {
		return nil, err
	}

	recs, err := aggregate.Save(ctx, tx, &acct.Root)
	if err != nil {
		return nil, err
	}
	b, err := projectCreditEvents(ctx, tx, owner, creditType, recs)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	l.logger.Info("credit adjusted",
		"owner", owner.String(),
		"type", creditType,
		"old", oldAmount,
		"new", newAmount,
		"admin", byAdminID,
	)
	l.hooks.EmitCreditAdjusted(ctx, hook.AdjustmentNotice{
		Owner:     owner,
		Type:      creditType,
		OldAmount: l.money(oldAmount),
		NewAmount: l.money(newAmount),
		ByAdminID: byAdminID,
		Context:   reason,
		At:        b.UpdatedAt,
	})
	return b, nil
}

// RestoreBalance returns previously consumed credit to an account,
// e.g. after a refund or a failed settlement. It is an AddCredit with
// a restoration audit context and its own notification.
func (l *Ledger) RestoreBalance(ctx context.Context, owner credit.OwnerRef, creditType credit.Type, amount int64, orderID string) (*credit.Balance, error) {
	b, err := l.AddCredit(ctx, owner, creditType, amount, "restore:"+orderID)
	if err != nil {
		return nil, err
	}

	l.hooks.EmitBalanceRestored(ctx, hook.RestoreNotice{
		Owner:   owner,
		Type:    creditType,
		Amount:  l.money(amount),
		OrderID: orderID,
		At:      b.UpdatedAt,
	})
	return b, nil
}

// GetBalance returns the projected balance for (owner, creditType).
// An account that never received credit returns ErrBalanceNotFound.
func (l *Ledger) GetBalance(ctx context.Context, owner credit.OwnerRef, creditType credit.Type) (*credit.Balance, error) {
	return l.store.GetCreditBalance(ctx, owner, creditType)
}

// ──────────────────────────────────────────────────
// Division balances
// ──────────────────────────────────────────────────

// loadDivision replays the division balance aggregate from its stream.
func loadDivision(ctx context.Context, s aggregate.Streams, divisionID string) (*division.Aggregate, error) {
	agg, err := division.NewAggregate(divisionID)
	if err != nil {
		return nil, err
	}
	if _, err := aggregate.Load(ctx, s, &agg.Root, agg, division.DecodeEvent); err != nil {
		return nil, err
	}
	return agg, nil
}

// DivisionInvoiceGenerated records an invoice charged to a division:
// the division owes more, and the invoice starts fully outstanding.
func (l *Ledger) DivisionInvoiceGenerated(ctx context.Context, divisionID, invoiceID string, amountTTC int64, generatedAt time.Time) (*division.Balance, error) {
	tx, err := l.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	agg, err := loadDivision(ctx, tx, divisionID)
	if err != nil {
		return nil, err
	}
	if err := agg.InvoiceGenerated(invoiceID, amountTTC, generatedAt); err != nil {
		return nil, err
	}

	recs, err := aggregate.Save(ctx, tx, &agg.Root)
	if err != nil {
		return nil, err
	}
	b, err := projectDivisionEvents(ctx, tx, divisionID, recs)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	l.logger.Info("division invoice generated",
		"division", divisionID,
		"invoice", invoiceID,
		"amount", amountTTC,
		"balance", b.Amount,
	)
	l.hooks.EmitDivisionInvoiceGenerated(ctx, hook.DivisionNotice{
		DivisionID: divisionID,
		InvoiceID:  invoiceID,
		Amount:     l.money(amountTTC),
		Balance:    l.money(b.Amount),
		At:         generatedAt,
	})
	return b, nil
}

// DivisionInvoicePaid records a payment the division made against an
// invoice. Overpayment is absorbed: the invoice's outstanding amount
// floors at zero while the division total still drops by the full
// amount paid.
func (l *Ledger) DivisionInvoicePaid(ctx context.Context, divisionID, invoiceID string, amountPaid int64, paidAt time.Time) (*division.Balance, error) {
	tx, err := l.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	agg, err := loadDivision(ctx, tx, divisionID)
	if err != nil {
		return nil, err
	}
	if err := agg.InvoicePaid(invoiceID, amountPaid, paidAt); err != nil {
		return nil, err
	}

	recs, err := aggregate.Save(ctx, tx, &agg.Root)
	if err != nil {
		return nil, err
	}
	b, err := projectDivisionEvents(ctx, tx, divisionID, recs)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	l.logger.Info("division invoice paid",
		"division", divisionID,
		"invoice", invoiceID,
		"amount", amountPaid,
		"balance", b.Amount,
	)
	l.hooks.EmitDivisionInvoicePaid(ctx, hook.DivisionNotice{
		DivisionID: divisionID,
		InvoiceID:  invoiceID,
		Amount:     l.money(amountPaid),
		Balance:    l.money(b.Amount),
		At:         paidAt,
	})
	return b, nil
}

// ApplyDivisionCredit applies goodwill credit to a division. With an
// invoice id the credit also settles that invoice's outstanding
// amount; without one it only reduces the division total.
func (l *Ledger) ApplyDivisionCredit(ctx context.Context, divisionID, invoiceID string, creditAmount int64, reason string, appliedAt time.Time) (*division.Balance, error) {
	tx, err := l.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	agg, err := loadDivision(ctx, tx, divisionID)
	if err != nil {
		return nil, err
	}
	if err := agg.CreditApplied(invoiceID, creditAmount, reason, appliedAt); err != nil {
		return nil, err
	}

	recs, err := aggregate.Save(ctx, tx, &agg.Root)
	if err != nil {
		return nil, err
	}
	b, err := projectDivisionEvents(ctx, tx, divisionID, recs)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	l.logger.Info("division credit applied",
		"division", divisionID,
		"invoice", invoiceID,
		"amount", creditAmount,
		"balance", b.Amount,
	)
	l.hooks.EmitDivisionCreditApplied(ctx, hook.DivisionNotice{
		DivisionID: divisionID,
		InvoiceID:  invoiceID,
		Amount:     l.money(creditAmount),
		Balance:    l.money(b.Amount),
		Reason:     reason,
		At:         appliedAt,
	})
	return b, nil
}

// GetDivisionBalance returns the projected balance for a division.
func (l *Ledger) GetDivisionBalance(ctx context.Context, divisionID string) (*division.Balance, error) {
	return l.store.GetDivisionBalance(ctx, divisionID)
}

// GetInvoiceOutstanding returns the outstanding tracking entry for one
// division invoice.
func (l *Ledger) GetInvoiceOutstanding(ctx context.Context, divisionID, invoiceID string) (*division.InvoiceEntry, error) {
	return l.store.GetInvoiceEntry(ctx, divisionID, invoiceID)
}

// ──────────────────────────────────────────────────
// Invoice generation batches
// ──────────────────────────────────────────────────

// loadBatch replays the generation batch aggregate from its stream.
func loadBatch(ctx context.Context, s aggregate.Streams, batchID string) (*invoicegen.Batch, error) {
	b, err := invoicegen.NewBatch(batchID)
	if err != nil {
		return nil, err
	}
	if _, err := aggregate.Load(ctx, s, &b.Root, b, invoicegen.DecodeEvent); err != nil {
		return nil, err
	}
	return b, nil
}

// saveBatch persists the staged batch events and refreshes the status
// projection row.
func saveBatch(ctx context.Context, tx store.Tx, b *invoicegen.Batch) (invoicegen.GenerationStatus, error) {
	if _, err := aggregate.Save(ctx, tx, &b.Root); err != nil {
		return invoicegen.GenerationStatus{}, err
	}
	status := b.Snapshot()
	if err := tx.PutGenerationBatch(ctx, &status); err != nil {
		return invoicegen.GenerationStatus{}, err
	}
	return status, nil
}

// StartGenerationBatch opens a monthly invoice generation run.
func (l *Ledger) StartGenerationBatch(ctx context.Context, batchID, monthYear string, totalInvoices int) (invoicegen.GenerationStatus, error) {
	tx, err := l.store.BeginTx(ctx)
	if err != nil {
		return invoicegen.GenerationStatus{}, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	b, err := loadBatch(ctx, tx, batchID)
	if err != nil {
		return invoicegen.GenerationStatus{}, err
	}
	if err := b.Start(monthYear, totalInvoices, time.Now().UTC()); err != nil {
		return invoicegen.GenerationStatus{}, err
	}

	status, err := saveBatch(ctx, tx, b)
	if err != nil {
		return invoicegen.GenerationStatus{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return invoicegen.GenerationStatus{}, err
	}

	l.logger.Info("generation batch started",
		"batch", batchID,
		"month", monthYear,
		"total", totalInvoices,
	)
	l.hooks.EmitBatchStarted(ctx, status)
	return status, nil
}

// batchErr lifts the aggregate's unknown-batch failure onto the root
// not-found sentinel, so errors.Is(err, ErrBatchNotFound) and
// IsNotFound hold at the facade boundary regardless of whether the
// store or the aggregate noticed first.
func batchErr(err error) error {
	if errors.Is(err, invoicegen.ErrUnknownBatch) && !errors.Is(err, ErrBatchNotFound) {
		return fmt.Errorf("%w: %w", ErrBatchNotFound, err)
	}
	return err
}

// MarkInvoiceCompleted records one successfully generated invoice in a
// batch. The batch must exist; an unknown batch returns an error
// matching both ErrBatchNotFound and invoicegen.ErrUnknownBatch.
func (l *Ledger) MarkInvoiceCompleted(ctx context.Context, batchID, invoiceID string) (invoicegen.GenerationStatus, error) {
	tx, err := l.store.BeginTx(ctx)
	if err != nil {
		return invoicegen.GenerationStatus{}, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	b, err := loadBatch(ctx, tx, batchID)
	if err != nil {
		return invoicegen.GenerationStatus{}, err
	}
	if err := b.CompleteInvoice(invoiceID, time.Now().UTC()); err != nil {
		return invoicegen.GenerationStatus{}, batchErr(err)
	}

	status, err := saveBatch(ctx, tx, b)
	if err != nil {
		return invoicegen.GenerationStatus{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return invoicegen.GenerationStatus{}, err
	}
	return status, nil
}

// MarkInvoiceFailed records one failed invoice generation in a batch.
// The batch must exist; an unknown batch returns an error matching
// ErrBatchNotFound.
func (l *Ledger) MarkInvoiceFailed(ctx context.Context, batchID, invoiceID, genErr string) (invoicegen.GenerationStatus, error) {
	tx, err := l.store.BeginTx(ctx)
	if err != nil {
		return invoicegen.GenerationStatus{}, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	b, err := loadBatch(ctx, tx, batchID)
	if err != nil {
		return invoicegen.GenerationStatus{}, err
	}
	if err := b.FailInvoice(invoiceID, genErr, time.Now().UTC()); err != nil {
		return invoicegen.GenerationStatus{}, batchErr(err)
	}

	status, err := saveBatch(ctx, tx, b)
	if err != nil {
		return invoicegen.GenerationStatus{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return invoicegen.GenerationStatus{}, err
	}
	return status, nil
}

// CompleteGenerationBatch closes a batch and derives its terminal
// status from the completed/failed counters.
func (l *Ledger) CompleteGenerationBatch(ctx context.Context, batchID string) (invoicegen.GenerationStatus, error) {
	tx, err := l.store.BeginTx(ctx)
	if err != nil {
		return invoicegen.GenerationStatus{}, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	b, err := loadBatch(ctx, tx, batchID)
	if err != nil {
		return invoicegen.GenerationStatus{}, err
	}
	if err := b.Complete(time.Now().UTC()); err != nil {
		return invoicegen.GenerationStatus{}, batchErr(err)
	}

	status, err := saveBatch(ctx, tx, b)
	if err != nil {
		return invoicegen.GenerationStatus{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return invoicegen.GenerationStatus{}, err
	}

	l.logger.Info("generation batch completed",
		"batch", batchID,
		"status", status.Status,
		"completed", status.Completed,
		"failed", status.Failed,
	)
	l.hooks.EmitBatchCompleted(ctx, status)
	return status, nil
}

// GetGenerationStatus returns the counters and status for a batch. An
// unknown batch returns an empty status, not an error.
func (l *Ledger) GetGenerationStatus(ctx context.Context, batchID string) (invoicegen.GenerationStatus, error) {
	status, err := l.store.GetGenerationBatch(ctx, batchID)
	if err != nil {
		if errors.Is(err, ErrBatchNotFound) {
			return invoicegen.GenerationStatus{}, nil
		}
		return invoicegen.GenerationStatus{}, err
	}
	return *status, nil
}

// ──────────────────────────────────────────────────
// Payment planning
// ──────────────────────────────────────────────────

// PlanPayment reads the owner's cash balance and decides how an order
// should be funded. A missing balance row plans a full card payment.
func (l *Ledger) PlanPayment(ctx context.Context, owner credit.OwnerRef, orderAmount int64) (PaymentPlan, error) {
	balance := int64(0)
	b, err := l.store.GetCreditBalance(ctx, owner, credit.TypeCash)
	switch {
	case err == nil:
		balance = b.Amount
	case errors.Is(err, ErrBalanceNotFound):
		// No account yet: card pays everything.
	default:
		return PaymentPlan{}, err
	}

	plan, err := DeterminePaymentMethod(l.money(orderAmount), l.money(balance))
	if err != nil {
		return PaymentPlan{}, fmt.Errorf("ledger: plan payment for %s: %w", owner, err)
	}
	return plan, nil
}
