package audithook

// Action constants for audit events.
const (
	// Ledger actions
	ActionLedgerStarted = "ledger.started"
	ActionLedgerStopped = "ledger.stopped"

	// Invoice actions
	ActionInvoiceCreated = "invoice.created"
	ActionInvoicePaid    = "invoice.paid"

	// Payment actions
	ActionPaymentRejected = "payment.rejected"
	ActionTransferFailed  = "transfer.failed"
)

// Resource constants for audit events.
const (
	ResourceLedger  = "ledger"
	ResourceInvoice = "invoice"
	ResourcePayment = "payment"
)

// Category constants for audit events.
const (
	CategoryLifecycle = "lifecycle"
	CategoryBilling   = "billing"
	CategoryPayment   = "payment"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

var severityRank = map[string]int{
	SeverityInfo:     0,
	SeverityWarning:  1,
	SeverityError:    2,
	SeverityCritical: 3,
}

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
