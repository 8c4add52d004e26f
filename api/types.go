package api

import (
	"github.com/xraph/tally/account"
	"github.com/xraph/tally/types"
)

// CreateInvoiceRequest is the body of POST /invoices.
type CreateInvoiceRequest struct {
	Recipient   account.Address `json:"recipient"`
	Description string          `json:"description"`
	Amount      types.Amount    `json:"amount"`
}

// CreateInvoiceResponse is returned by POST /invoices.
type CreateInvoiceResponse struct {
	ID uint64 `json:"id"`
}

// PayInvoiceRequest is the body of POST /invoices/{id}/pay.
type PayInvoiceRequest struct {
	Payer  account.Address `json:"payer"`
	Amount types.Amount    `json:"amount"`
}

// PayInvoiceResponse is returned by POST /invoices/{id}/pay.
type PayInvoiceResponse struct {
	InvoiceID uint64 `json:"invoice_id"`
}

// CountResponse is returned by GET /invoices/count.
type CountResponse struct {
	Count uint64 `json:"count"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
