package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/xraph/tally"
)

// Error codes carried in ErrorResponse.Code.
const (
	CodeInvoiceNotFound     = "invoice_not_found"
	CodeInvoiceAlreadyPaid  = "invoice_already_paid"
	CodeInsufficientPayment = "insufficient_payment"
	CodeTransferFailed      = "transfer_failed"
	CodeInvalidRecipient    = "invalid_recipient"
	CodeInvalidInput        = "invalid_input"
	CodeUnavailable         = "unavailable"
	CodeInternal            = "internal"
)

type errorMapping struct {
	err    error
	status int
	code   string
}

// errorMappings is checked in order; more specific sentinels come first.
var errorMappings = []errorMapping{
	{tally.ErrInvoiceNotFound, http.StatusNotFound, CodeInvoiceNotFound},
	{tally.ErrInvoiceAlreadyPaid, http.StatusConflict, CodeInvoiceAlreadyPaid},
	{tally.ErrInsufficientPayment, http.StatusPaymentRequired, CodeInsufficientPayment},
	{tally.ErrTransferFailed, http.StatusBadGateway, CodeTransferFailed},
	{tally.ErrInvalidRecipient, http.StatusBadRequest, CodeInvalidRecipient},
	{tally.ErrInvalidInput, http.StatusBadRequest, CodeInvalidInput},
	{tally.ErrStoreClosed, http.StatusServiceUnavailable, CodeUnavailable},
	{tally.ErrStoreNotReady, http.StatusServiceUnavailable, CodeUnavailable},
}

// statusFor maps a ledger error to an HTTP status and error code.
func statusFor(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, CodeInternal
}

// Error is returned by Client when the server answers with an error.
// It unwraps to the matching tally sentinel so errors.Is works across HTTP.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("tally/api: %s (%d): %s", e.Code, e.Status, e.Message)
}

// Unwrap returns the tally sentinel for Code, or nil.
func (e *Error) Unwrap() error {
	for _, m := range errorMappings {
		if m.code == e.Code {
			return m.err
		}
	}
	return nil
}
