package ledger

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/beneflow/ledger/aggregate"
	"github.com/beneflow/ledger/credit"
	"github.com/beneflow/ledger/hook"
	"github.com/beneflow/ledger/store"
	"github.com/beneflow/ledger/types"
)

// Settlement stages, used in failure reporting and progress notices.
const (
	StageBalanceCheck = "balance_check"
	StageBalanceDebit = "balance_debit"
	StageCardCharge   = "card_charge"
	StageCompensation = "compensation"
)

// PaymentRequest describes a purchase to settle.
type PaymentRequest struct {
	OrderID string
	UserID  string
	Owner   credit.OwnerRef
	Reason  string
}

// PaymentResult is the immutable outcome of a successful settlement.
// For a mixed settlement the card share is pending until the gateway
// confirms it asynchronously; ChargeID and ClientSecret identify that
// pending charge.
type PaymentResult struct {
	OrderID          string
	Method           PaymentMethod
	BalanceAmount    types.Money
	CardAmount       types.Money
	RemainingBalance types.Money
	ChargeID         string
	ClientSecret     string
}

// ProcessBalancePayment settles an order entirely from the owner's
// cash balance.
//
// The balance row is locked for the whole check-consume-reread window
// so two concurrent purchases cannot both pass the sufficiency check
// against a stale balance. Insufficient funds (or a missing row) roll
// the transaction back and return a PaymentError wrapping
// ErrInsufficientBalance.
func (l *Ledger) ProcessBalancePayment(ctx context.Context, req PaymentRequest, amount int64) (*PaymentResult, error) {
	if amount <= 0 {
		return nil, &PaymentError{OrderID: req.OrderID, Stage: StageBalanceCheck, Err: ErrInvalidAmount}
	}

	tx, err := l.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	remaining, err := l.debitBalance(ctx, tx, req, amount)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	l.logger.Info("balance payment settled",
		"order", req.OrderID,
		"owner", req.Owner.String(),
		"amount", amount,
		"remaining", remaining.Amount,
	)
	l.hooks.EmitPurchaseProgress(ctx, hook.ProgressNotice{
		OrderID:          req.OrderID,
		UserID:           req.UserID,
		Step:             StageBalanceDebit,
		Method:           string(MethodBalance),
		BalanceAmount:    l.money(amount),
		CardAmount:       l.money(0),
		RemainingBalance: l.money(remaining.Amount),
		At:               remaining.UpdatedAt,
	})

	return &PaymentResult{
		OrderID:          req.OrderID,
		Method:           MethodBalance,
		BalanceAmount:    l.money(amount),
		CardAmount:       l.money(0),
		RemainingBalance: l.money(remaining.Amount),
	}, nil
}

// ProcessMixedPayment settles an order by combining a balance debit
// with an external card charge.
//
// The balance debit commits before the gateway call so the row lock is
// never held across the network. If the gateway then fails, the debit
// is undone by a compensating credit with its own idempotency key; a
// short window where the debit is visible before compensation lands is
// accepted in exchange for the shorter lock hold.
func (l *Ledger) ProcessMixedPayment(ctx context.Context, req PaymentRequest, plan PaymentPlan) (*PaymentResult, error) {
	if l.gateway == nil {
		return nil, &PaymentError{OrderID: req.OrderID, Stage: StageCardCharge, Err: errors.New("ledger: no payment gateway configured")}
	}
	// Validate on raw minor units. A hand-built card-only or
	// balance-only plan carries a zero-value Money for the unused
	// share, so Money arithmetic (which requires matching currencies)
	// cannot be used here.
	if plan.BalanceAmount.Amount < 0 || plan.CardAmount.Amount < 0 {
		return nil, &PaymentError{OrderID: req.OrderID, Stage: StageBalanceCheck, Err: ErrInvalidAmount}
	}
	if plan.BalanceAmount.Amount+plan.CardAmount.Amount != plan.OrderAmount.Amount {
		return nil, &PaymentError{OrderID: req.OrderID, Stage: StageBalanceCheck, Err: ErrAmountMismatch}
	}
	for _, share := range []types.Money{plan.BalanceAmount, plan.CardAmount} {
		if share.Amount > 0 && share.Currency != plan.OrderAmount.Currency {
			return nil, &PaymentError{OrderID: req.OrderID, Stage: StageBalanceCheck, Err: ErrInvalidAmount}
		}
	}

	balanceAmount := plan.BalanceAmount.Amount
	cardAmount := plan.CardAmount.Amount

	// Balance leg first, in its own transaction.
	var remaining types.Money
	if balanceAmount > 0 {
		tx, err := l.store.BeginTx(ctx)
		if err != nil {
			return nil, err
		}
		defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

		debited, err := l.debitBalance(ctx, tx, req, balanceAmount)
		if err != nil {
			return nil, err
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}
		remaining = l.money(debited.Amount)

		l.hooks.EmitPurchaseProgress(ctx, hook.ProgressNotice{
			OrderID:          req.OrderID,
			UserID:           req.UserID,
			Step:             StageBalanceDebit,
			Method:           string(MethodMixed),
			BalanceAmount:    plan.BalanceAmount,
			CardAmount:       plan.CardAmount,
			RemainingBalance: remaining,
			At:               time.Now().UTC(),
		})
	} else {
		remaining = l.money(0)
	}

	// Card leg. The idempotency key ties the charge, its metadata and
	// any compensating credit to this one attempt.
	attemptKey := uuid.NewString()
	charge, err := l.gateway.CreateCharge(ctx, ChargeRequest{
		Amount:         plan.CardAmount,
		IdempotencyKey: attemptKey,
		Metadata: map[string]string{
			"order_id":       req.OrderID,
			"balance_amount": strconv.FormatInt(balanceAmount, 10),
			"card_amount":    strconv.FormatInt(cardAmount, 10),
		},
	})
	if err != nil {
		l.logger.Error("card charge failed",
			"order", req.OrderID,
			"owner", req.Owner.String(),
			"amount", cardAmount,
			"error", err,
		)

		if balanceAmount > 0 {
			l.compensateDebit(ctx, req, balanceAmount, attemptKey)
		}

		failure := &PaymentError{OrderID: req.OrderID, Stage: StageCardCharge, Err: err}
		l.hooks.EmitPaymentFailed(ctx, hook.FailureNotice{
			OrderID: req.OrderID,
			UserID:  req.UserID,
			Stage:   StageCardCharge,
			Err:     err,
			At:      time.Now().UTC(),
		})
		return nil, failure
	}

	l.logger.Info("mixed payment settled",
		"order", req.OrderID,
		"owner", req.Owner.String(),
		"balance_amount", balanceAmount,
		"card_amount", cardAmount,
		"charge", charge.ChargeID,
	)

	return &PaymentResult{
		OrderID:          req.OrderID,
		Method:           plan.Method,
		BalanceAmount:    plan.BalanceAmount,
		CardAmount:       plan.CardAmount,
		RemainingBalance: remaining,
		ChargeID:         charge.ChargeID,
		ClientSecret:     charge.ClientSecret,
	}, nil
}

// debitBalance executes the locked balance leg inside tx: lock the
// row, check sufficiency, consume, and return the re-read balance.
// The caller owns commit and rollback.
func (l *Ledger) debitBalance(ctx context.Context, tx store.Tx, req PaymentRequest, amount int64) (*credit.Balance, error) {
	locked, err := tx.LockCreditBalance(ctx, req.Owner, credit.TypeCash)
	if err != nil {
		if errors.Is(err, ErrBalanceNotFound) {
			return nil, &PaymentError{OrderID: req.OrderID, Stage: StageBalanceCheck, Err: ErrInsufficientBalance}
		}
		return nil, err
	}
	if locked.Amount < amount {
		return nil, &PaymentError{OrderID: req.OrderID, Stage: StageBalanceCheck, Err: ErrInsufficientBalance}
	}

	acct, err := loadAccount(ctx, tx, req.Owner, credit.TypeCash)
	if err != nil {
		return nil, err
	}
	outcome, err := acct.Consume(locked.Amount, amount, req.UserID, req.Reason)
	if err != nil {
		return nil, err
	}
	if outcome != credit.OutcomeConsumed {
		// The lock makes this unreachable unless the projection and the
		// stream disagree.
		return nil, &PaymentError{OrderID: req.OrderID, Stage: StageBalanceDebit, Err: ErrInsufficientBalance}
	}

	recs, err := aggregate.Save(ctx, tx, &acct.Root)
	if err != nil {
		return nil, err
	}
	return projectCreditEvents(ctx, tx, req.Owner, credit.TypeCash, recs)
}

// compensateDebit restores a debited amount after a failed card
// charge. Failure here is logged and surfaced through the failure
// hook; the caller still reports the original gateway error.
func (l *Ledger) compensateDebit(ctx context.Context, req PaymentRequest, amount int64, attemptKey string) {
	_, err := l.AddCredit(ctx, req.Owner, credit.TypeCash, amount, "compensation:"+req.OrderID+":"+attemptKey)
	if err != nil {
		l.logger.Error("compensation failed",
			"order", req.OrderID,
			"owner", req.Owner.String(),
			"amount", amount,
			"key", attemptKey,
			"error", err,
		)
		l.hooks.EmitPaymentFailed(ctx, hook.FailureNotice{
			OrderID: req.OrderID,
			UserID:  req.UserID,
			Stage:   StageCompensation,
			Err:     err,
			At:      time.Now().UTC(),
		})
		return
	}

	l.hooks.EmitBalanceRestored(ctx, hook.RestoreNotice{
		Owner:   req.Owner,
		Type:    credit.TypeCash,
		Amount:  l.money(amount),
		OrderID: req.OrderID,
		At:      time.Now().UTC(),
	})
}
