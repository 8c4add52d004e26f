// Package invoice defines the invoice record kept by the ledger.
package invoice

import (
	"time"

	"github.com/xraph/tally/account"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/types"
)

// Status is the lifecycle state of an existing invoice.
type Status string

const (
	StatusCreated Status = "created"
	StatusPaid    Status = "paid"
)

// Invoice is a request for payment addressed to a recipient.
//
// ID, Recipient, Description and Amount never change after creation.
// Paid moves from false to true at most once; the payment fields are set
// in the same step.
type Invoice struct {
	types.Entity
	ID          uint64          `json:"id"`
	Recipient   account.Address `json:"recipient"`
	Description string          `json:"description"`
	Amount      types.Amount    `json:"amount"`
	Paid        bool            `json:"paid"`

	Payer      account.Address `json:"payer,omitzero"`
	AmountPaid types.Amount    `json:"amount_paid,omitzero"`
	PaymentID  id.PaymentID    `json:"payment_id,omitzero"`
	PaidAt     *time.Time      `json:"paid_at,omitempty"`
}

// Status reports whether the invoice is still open or already settled.
func (i Invoice) Status() Status {
	if i.Paid {
		return StatusPaid
	}
	return StatusCreated
}

// Overpayment returns how much more than Amount the payer sent.
func (i Invoice) Overpayment() types.Amount {
	if !i.Paid {
		return types.ZeroAmount
	}
	over, err := i.AmountPaid.Sub(i.Amount)
	if err != nil {
		return types.ZeroAmount
	}
	return over
}

// Payment records who settled an invoice and with how much.
type Payment struct {
	ID     id.PaymentID
	Payer  account.Address
	Amount types.Amount
	PaidAt time.Time
}

// Apply returns a copy of inv with p recorded against it.
func (p Payment) Apply(inv Invoice) Invoice {
	paidAt := p.PaidAt
	inv.Paid = true
	inv.Payer = p.Payer
	inv.AmountPaid = p.Amount
	inv.PaymentID = p.ID
	inv.PaidAt = &paidAt
	inv.Touch(p.PaidAt)
	return inv
}
