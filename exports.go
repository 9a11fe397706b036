package ledger

import (
	"github.com/beneflow/ledger/credit"
	"github.com/beneflow/ledger/types"
)

// Re-export common types for convenience so users don't have to import
// the types package.

// Money is re-exported from the types package.
type Money = types.Money

// Entity is re-exported from the types package.
type Entity = types.Entity

// Re-export Money constructors
var (
	EUR   = types.EUR
	USD   = types.USD
	GBP   = types.GBP
	CHF   = types.CHF
	Zero  = types.Zero
	Minor = types.Minor
)

// Re-export Entity constructor
var NewEntity = types.NewEntity

// OwnerRef is re-exported from the credit package.
type OwnerRef = credit.OwnerRef

// Re-export owner reference constructors
var (
	UserRef     = credit.UserRef
	FinancerRef = credit.FinancerRef
	DivisionRef = credit.DivisionRef
)
