package ledger

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound     = errors.New("ledger: not found")
	ErrInvalidInput = errors.New("ledger: invalid input")

	// Event store errors
	ErrConcurrencyConflict = errors.New("ledger: concurrent modification of aggregate stream")
	ErrTxDone              = errors.New("ledger: transaction already finished")

	// Credit account errors
	ErrBalanceNotFound     = errors.New("ledger: credit balance not found")
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")
	ErrInvalidOwner        = errors.New("ledger: invalid credit owner")

	// Division errors
	ErrDivisionNotFound = errors.New("ledger: division balance not found")
	ErrInvoiceNotFound  = errors.New("ledger: invoice not found")

	// Invoice generation errors
	ErrBatchNotFound = errors.New("ledger: generation batch not found")

	// Payment errors
	ErrInvalidAmount        = errors.New("ledger: invalid amount")
	ErrAmountMismatch       = errors.New("ledger: payment amounts do not match order total")
	ErrInvalidPaymentMethod = errors.New("ledger: invalid payment method")
	ErrPaymentFailed        = errors.New("ledger: payment failed")

	// Store errors
	ErrStoreClosed     = errors.New("ledger: store is closed")
	ErrMigrationFailed = errors.New("ledger: migration failed")
)

// PaymentError carries the underlying gateway failure alongside the
// ErrPaymentFailed sentinel so callers can branch with errors.Is and
// still surface the provider message to the user.
type PaymentError struct {
	OrderID string
	Stage   string // "balance" or "card"
	Err     error
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("ledger: payment failed for order %s at %s stage: %v", e.OrderID, e.Stage, e.Err)
}

// Unwrap lets errors.Is match both ErrPaymentFailed and the cause.
func (e *PaymentError) Unwrap() []error {
	return []error{ErrPaymentFailed, e.Err}
}

// IsNotFound returns true if the error is any of the not-found errors.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrBalanceNotFound) ||
		errors.Is(err, ErrDivisionNotFound) ||
		errors.Is(err, ErrInvoiceNotFound) ||
		errors.Is(err, ErrBatchNotFound)
}

// IsRetryable returns true if the error is temporary and the whole
// retrieve→command→persist cycle can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}
