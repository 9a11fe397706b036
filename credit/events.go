package credit

import (
	"fmt"
	"time"

	"github.com/beneflow/ledger/event"
)

// Event kind constants for the credit account stream.
const (
	KindCreditAdded    = "credit_added"
	KindCreditConsumed = "credit_consumed"
	KindCreditExpired  = "credit_expired"
	KindCreditAdjusted = "credit_adjusted"
)

// CreditAdded records credit granted to an account. Amounts are minor
// currency units.
type CreditAdded struct {
	Owner   OwnerRef  `json:"owner"`
	Type    Type      `json:"type"`
	Amount  int64     `json:"amount"`
	Context string    `json:"context,omitempty"`
	At      time.Time `json:"at"`
}

func (CreditAdded) Kind() string { return KindCreditAdded }

// CreditConsumed records credit spent from an account. It is only ever
// emitted after a sufficiency check against the projected balance.
type CreditConsumed struct {
	Owner    OwnerRef  `json:"owner"`
	Type     Type      `json:"type"`
	Amount   int64     `json:"amount"`
	ByUserID string    `json:"by_user_id,omitempty"`
	Context  string    `json:"context,omitempty"`
	At       time.Time `json:"at"`
}

func (CreditConsumed) Kind() string { return KindCreditConsumed }

// CreditExpired records credit removed by expiry. Expiry is
// unconditional and may drive a balance negative; the caller is
// responsible for correctness.
type CreditExpired struct {
	Owner   OwnerRef  `json:"owner"`
	Type    Type      `json:"type"`
	Amount  int64     `json:"amount"`
	Context string    `json:"context,omitempty"`
	At      time.Time `json:"at"`
}

func (CreditExpired) Kind() string { return KindCreditExpired }

// CreditAdjusted records an administrative correction. Both the prior
// and the new amount are kept for the audit trail; the projection sets
// the balance to NewAmount rather than applying a delta.
type CreditAdjusted struct {
	Owner     OwnerRef  `json:"owner"`
	Type      Type      `json:"type"`
	OldAmount int64     `json:"old_amount"`
	NewAmount int64     `json:"new_amount"`
	ByAdminID string    `json:"by_admin_id,omitempty"`
	Context   string    `json:"context,omitempty"`
	At        time.Time `json:"at"`
}

func (CreditAdjusted) Kind() string { return KindCreditAdjusted }

// DecodeEvent decodes the credit account event kinds.
func DecodeEvent(kind string, data []byte) (event.Event, error) {
	switch kind {
	case KindCreditAdded:
		return event.Unmarshal(data, &CreditAdded{})
	case KindCreditConsumed:
		return event.Unmarshal(data, &CreditConsumed{})
	case KindCreditExpired:
		return event.Unmarshal(data, &CreditExpired{})
	case KindCreditAdjusted:
		return event.Unmarshal(data, &CreditAdjusted{})
	default:
		return nil, fmt.Errorf("credit: unknown event kind %q", kind)
	}
}
