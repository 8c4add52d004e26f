package tally

import (
	"errors"
	"fmt"
)

// Sentinel errors. PayInvoice checks, in order, ErrInvoiceNotFound,
// ErrInvoiceAlreadyPaid and ErrInsufficientPayment.
var (
	ErrAlreadyExists = errors.New("tally: already exists")
	ErrInvalidInput  = errors.New("tally: invalid input")

	ErrInvoiceNotFound     = errors.New("tally: invoice does not exist")
	ErrInvoiceAlreadyPaid  = errors.New("tally: invoice already paid")
	ErrInsufficientPayment = errors.New("tally: not enough value to pay invoice")
	ErrInvalidRecipient    = errors.New("tally: invalid recipient")
	ErrPaymentNotFound     = errors.New("tally: payment not found")

	ErrTransferFailed = errors.New("tally: value transfer failed")

	ErrStoreNotReady   = errors.New("tally: store not ready")
	ErrStoreClosed     = errors.New("tally: store is closed")
	ErrMigrationFailed = errors.New("tally: migration failed")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("tally: validation failed for %s: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is match ErrInvalidInput.
func (e ValidationError) Unwrap() error { return ErrInvalidInput }

// IsNotFound reports whether err names a missing invoice or payment.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrInvoiceNotFound) ||
		errors.Is(err, ErrPaymentNotFound)
}

// IsPaymentRejected returns true if PayInvoice refused the payment before
// any value moved.
func IsPaymentRejected(err error) bool {
	return errors.Is(err, ErrInvoiceNotFound) ||
		errors.Is(err, ErrInvoiceAlreadyPaid) ||
		errors.Is(err, ErrInsufficientPayment)
}

// IsRetryable reports whether the same call may succeed later.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransferFailed) ||
		errors.Is(err, ErrStoreNotReady)
}
