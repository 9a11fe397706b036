package audithook

// Action constants for audit events.
const (
	// Credit actions
	ActionCreditAdded    = "credit.added"
	ActionCreditConsumed = "credit.consumed"
	ActionCreditExpired  = "credit.expired"
	ActionCreditAdjusted = "credit.adjusted"
	ActionCreditRestored = "credit.restored"

	// Settlement actions
	ActionPaymentProgress = "payment.progress"
	ActionPaymentFailed   = "payment.failed"

	// Division actions
	ActionDivisionInvoiced = "division.invoiced"
	ActionDivisionPaid     = "division.paid"
	ActionDivisionCredited = "division.credited"

	// Generation actions
	ActionBatchStarted   = "generation.started"
	ActionBatchCompleted = "generation.completed"
)

// Resource constants for audit events.
const (
	ResourceCredit   = "credit"
	ResourcePayment  = "payment"
	ResourceDivision = "division"
	ResourceBatch    = "generation_batch"
)

// Category constants for audit events.
const (
	CategoryCredit     = "credit"
	CategoryPayment    = "payment"
	CategoryInvoicing  = "invoicing"
	CategoryAdjustment = "adjustment"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
