package credit

import (
	"fmt"
	"strings"
)

// OwnerKind enumerates the entity kinds that can hold a credit account.
// A typed kind plus identifier replaces the stringly-typed
// (owner_type, owner_id) pair so that an invalid owner kind cannot be
// constructed from arbitrary input.
type OwnerKind string

const (
	OwnerUser     OwnerKind = "user"
	OwnerFinancer OwnerKind = "financer"
	OwnerDivision OwnerKind = "division"
)

// Valid reports whether the kind is one of the known owner kinds.
func (k OwnerKind) Valid() bool {
	switch k {
	case OwnerUser, OwnerFinancer, OwnerDivision:
		return true
	}
	return false
}

// OwnerRef identifies the holder of a credit account.
type OwnerRef struct {
	Kind OwnerKind `json:"kind"`
	ID   string    `json:"id"`
}

// UserRef returns an OwnerRef for a user.
func UserRef(userID string) OwnerRef { return OwnerRef{Kind: OwnerUser, ID: userID} }

// FinancerRef returns an OwnerRef for a financer.
func FinancerRef(financerID string) OwnerRef { return OwnerRef{Kind: OwnerFinancer, ID: financerID} }

// DivisionRef returns an OwnerRef for a division.
func DivisionRef(divisionID string) OwnerRef { return OwnerRef{Kind: OwnerDivision, ID: divisionID} }

// Valid reports whether the reference carries a known kind and a
// non-empty identifier.
func (o OwnerRef) Valid() bool {
	return o.Kind.Valid() && o.ID != ""
}

// String returns the canonical "kind:id" form.
func (o OwnerRef) String() string {
	return string(o.Kind) + ":" + o.ID
}

// Type identifies a credit type within an owner's accounts.
type Type string

// TypeCash is the spendable cash balance used to settle purchases.
const TypeCash Type = "cash"

// StreamID returns the event stream identity for one (owner, credit
// type) account. Identity is immutable once the first event is recorded.
func StreamID(owner OwnerRef, creditType Type) string {
	return strings.Join([]string{"credit", string(owner.Kind), owner.ID, string(creditType)}, "|")
}

// validateOwner returns a descriptive error for an invalid owner ref.
func validateOwner(owner OwnerRef) error {
	if !owner.Valid() {
		return fmt.Errorf("credit: invalid owner %q", owner.String())
	}
	return nil
}
