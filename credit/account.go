// Package credit implements the per-owner, per-type credit balance
// ledger: an event-sourced account aggregate plus its projected balance
// row.
//
// The event log is authoritative for audit and replay; the projected
// Balance row is authoritative for fast sufficiency checks and is kept
// transactionally consistent with the log.
package credit

import (
	"fmt"
	"time"

	"github.com/beneflow/ledger/aggregate"
	"github.com/beneflow/ledger/event"
	"github.com/beneflow/ledger/types"
)

// ConsumeOutcome is the observable result of a consume command.
// Insufficiency is a deliberate no-op, not an error: no event is
// emitted, but the caller can always tell the two outcomes apart.
type ConsumeOutcome int

const (
	// OutcomeConsumed means the sufficiency check passed and a
	// CreditConsumed event was recorded.
	OutcomeConsumed ConsumeOutcome = iota
	// OutcomeInsufficient means the account balance could not cover the
	// requested amount; nothing was recorded.
	OutcomeInsufficient
)

// String returns the outcome name.
func (o ConsumeOutcome) String() string {
	if o == OutcomeConsumed {
		return "consumed"
	}
	return "insufficient"
}

// Account is the credit account aggregate for one (owner, credit type)
// composite. Its replayed balance is the audit-trail view; sufficiency
// decisions use the projected balance supplied by the caller.
type Account struct {
	aggregate.Root

	owner      OwnerRef
	creditType Type
	balance    int64
}

// NewAccount creates an empty account aggregate for the given owner and
// credit type. Replay (aggregate.Load) rebuilds state from the stream.
func NewAccount(owner OwnerRef, creditType Type) (*Account, error) {
	if err := validateOwner(owner); err != nil {
		return nil, err
	}
	if creditType == "" {
		return nil, fmt.Errorf("credit: empty credit type for %s", owner)
	}

	a := &Account{owner: owner, creditType: creditType}
	a.Init(StreamID(owner, creditType))
	return a, nil
}

// Owner returns the account owner.
func (a *Account) Owner() OwnerRef { return a.owner }

// CreditType returns the account's credit type.
func (a *Account) CreditType() Type { return a.creditType }

// ReplayedBalance returns the balance derived purely from the applied
// event stream. This is the audit view, not the sufficiency source.
func (a *Account) ReplayedBalance() int64 { return a.balance }

// Add grants credit to the account. It always succeeds; there is no
// upper bound on an account balance.
func (a *Account) Add(amount int64, context string) error {
	if amount <= 0 {
		return fmt.Errorf("credit: add amount must be positive, got %d", amount)
	}
	return a.Record(a, &CreditAdded{
		Owner:   a.owner,
		Type:    a.creditType,
		Amount:  amount,
		Context: context,
		At:      time.Now().UTC(),
	})
}

// Consume spends credit from the account. available is the current
// projected balance for the account; when it cannot cover amount the
// command is an observable no-op (OutcomeInsufficient, no event).
func (a *Account) Consume(available, amount int64, byUserID, context string) (ConsumeOutcome, error) {
	if amount <= 0 {
		return OutcomeInsufficient, fmt.Errorf("credit: consume amount must be positive, got %d", amount)
	}
	if available < amount {
		return OutcomeInsufficient, nil
	}

	err := a.Record(a, &CreditConsumed{
		Owner:    a.owner,
		Type:     a.creditType,
		Amount:   amount,
		ByUserID: byUserID,
		Context:  context,
		At:       time.Now().UTC(),
	})
	if err != nil {
		return OutcomeInsufficient, err
	}
	return OutcomeConsumed, nil
}

// Expire removes credit unconditionally. No sufficiency check is made;
// expiry can drive the balance negative if mis-used.
func (a *Account) Expire(amount int64, context string) error {
	if amount <= 0 {
		return fmt.Errorf("credit: expire amount must be positive, got %d", amount)
	}
	return a.Record(a, &CreditExpired{
		Owner:   a.owner,
		Type:    a.creditType,
		Amount:  amount,
		Context: context,
		At:      time.Now().UTC(),
	})
}

// Adjust records an administrative correction from oldAmount to
// newAmount. The projection sets the balance to newAmount.
func (a *Account) Adjust(oldAmount, newAmount int64, byAdminID, context string) error {
	return a.Record(a, &CreditAdjusted{
		Owner:     a.owner,
		Type:      a.creditType,
		OldAmount: oldAmount,
		NewAmount: newAmount,
		ByAdminID: byAdminID,
		Context:   context,
		At:        time.Now().UTC(),
	})
}

// ApplyEvent implements aggregate.Applier. Application is deterministic:
// replaying the same ordered event list always yields the same state.
func (a *Account) ApplyEvent(e event.Event) error {
	switch ev := e.(type) {
	case *CreditAdded:
		a.balance += ev.Amount
	case *CreditConsumed:
		a.balance -= ev.Amount
	case *CreditExpired:
		a.balance -= ev.Amount
	case *CreditAdjusted:
		a.balance = ev.NewAmount
	default:
		return fmt.Errorf("credit: unexpected event %q on %s", e.Kind(), a.StreamID())
	}
	return nil
}

// Balance is the projected balance row for one (owner, credit type)
// key: the fast, queryable source for sufficiency checks, kept
// transactionally consistent with the event stream.
type Balance struct {
	Owner  OwnerRef `json:"owner"`
	Type   Type     `json:"type"`
	Amount int64    `json:"amount"`
	types.Entity
}
