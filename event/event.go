// Package event defines the typed notifications the ledger emits and the
// append-only, hash-chained log that records them.
//
// Field order of each event is fixed: it is the order consumers decode by
// (CBOR arrays) and the order JSON keys appear in.
package event

import (
	"github.com/xraph/tally/account"
	"github.com/xraph/tally/types"
)

// Kind names an event variant.
type Kind string

const (
	KindInvoiceCreated Kind = "InvoiceCreated"
	KindInvoicePaid    Kind = "InvoicePaid"
)

// Event is implemented by every ledger event variant.
type Event interface {
	Kind() Kind
	// Invoice returns the id of the invoice the event is about.
	Invoice() uint64
	isEvent()
}

// InvoiceCreated is emitted once per successful CreateInvoice.
type InvoiceCreated struct {
	_           struct{}        `cbor:",toarray"`
	ID          uint64          `json:"id"`
	Recipient   account.Address `json:"recipient"`
	Amount      types.Amount    `json:"amount"`
	Description string          `json:"description"`
}

// Kind implements Event.
func (InvoiceCreated) Kind() Kind { return KindInvoiceCreated }

// Invoice implements Event.
func (e InvoiceCreated) Invoice() uint64 { return e.ID }

func (InvoiceCreated) isEvent() {}

// InvoicePaid is emitted once per successful PayInvoice. AmountPaid is the
// full value the payer sent, which may exceed the invoice amount.
type InvoicePaid struct {
	_          struct{}        `cbor:",toarray"`
	InvoiceID  uint64          `json:"invoice_id"`
	Payer      account.Address `json:"payer"`
	AmountPaid types.Amount    `json:"amount_paid"`
}

// Kind implements Event.
func (InvoicePaid) Kind() Kind { return KindInvoicePaid }

// Invoice implements Event.
func (e InvoicePaid) Invoice() uint64 { return e.InvoiceID }

func (InvoicePaid) isEvent() {}
