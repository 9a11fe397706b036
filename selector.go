package ledger

import (
	"fmt"

	"github.com/beneflow/ledger/types"
)

// PaymentMethod identifies which funding sources settle an order.
type PaymentMethod string

const (
	// MethodBalance settles the whole order from the user's credit
	// balance.
	MethodBalance PaymentMethod = "balance"
	// MethodMixed splits the order between the balance and a card
	// charge.
	MethodMixed PaymentMethod = "mixed"
	// MethodCard settles the whole order with a card charge.
	MethodCard PaymentMethod = "card"
)

// PaymentPlan is the immutable output of DeterminePaymentMethod: which
// method applies and how much each funding source contributes. The
// amounts always sum exactly to the order amount.
type PaymentPlan struct {
	Method        PaymentMethod
	OrderAmount   types.Money
	BalanceAmount types.Money
	CardAmount    types.Money
}

// DeterminePaymentMethod decides how an order is funded given the
// order amount and the user's current balance. It is a pure function:
// no side effects, no persistence.
//
// A negative balance is treated as zero. A negative order amount is a
// caller error and returns ledger.ErrInvalidAmount.
func DeterminePaymentMethod(orderAmount, userBalance types.Money) (PaymentPlan, error) {
	if orderAmount.IsNegative() {
		return PaymentPlan{}, fmt.Errorf("%w: negative order amount %s", ErrInvalidAmount, orderAmount)
	}

	effective := userBalance.ClampNonNegative()
	zero := types.Zero(orderAmount.Currency)

	switch {
	case effective.GreaterOrEqual(orderAmount) && effective.IsPositive():
		return PaymentPlan{
			Method:        MethodBalance,
			OrderAmount:   orderAmount,
			BalanceAmount: orderAmount,
			CardAmount:    zero,
		}, nil
	case effective.IsPositive():
		return PaymentPlan{
			Method:        MethodMixed,
			OrderAmount:   orderAmount,
			BalanceAmount: effective,
			CardAmount:    orderAmount.Subtract(effective),
		}, nil
	default:
		return PaymentPlan{
			Method:        MethodCard,
			OrderAmount:   orderAmount,
			BalanceAmount: zero,
			CardAmount:    orderAmount,
		}, nil
	}
}
