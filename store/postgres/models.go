package postgres

import (
	"fmt"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/tally/account"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/invoice"
	"github.com/xraph/tally/types"
)

// ==================== Invoice model ====================

type invoiceModel struct {
	grove.BaseModel `grove:"table:tally_invoices"`

	ID          int64      `grove:"id,pk"`
	Recipient   string     `grove:"recipient"`
	Description string     `grove:"description"`
	Amount      string     `grove:"amount"`
	Paid        bool       `grove:"paid"`
	Payer       string     `grove:"payer"`
	AmountPaid  string     `grove:"amount_paid"`
	PaymentID   string     `grove:"payment_id"`
	PaidAt      *time.Time `grove:"paid_at"`
	CreatedAt   time.Time  `grove:"created_at"`
	UpdatedAt   time.Time  `grove:"updated_at"`
}

func toInvoiceModel(inv *invoice.Invoice) *invoiceModel {
	m := &invoiceModel{
		ID:          int64(inv.ID), //nolint:gosec // ids are dense from zero
		Recipient:   inv.Recipient.String(),
		Description: inv.Description,
		Amount:      inv.Amount.String(),
		Paid:        inv.Paid,
		AmountPaid:  inv.AmountPaid.String(),
		PaymentID:   inv.PaymentID.String(),
		PaidAt:      inv.PaidAt,
		CreatedAt:   inv.CreatedAt,
		UpdatedAt:   inv.UpdatedAt,
	}
	if inv.Paid {
		m.Payer = inv.Payer.String()
	}
	return m
}

func fromInvoiceModel(m *invoiceModel) (*invoice.Invoice, error) {
	recipient, err := account.Parse(m.Recipient)
	if err != nil {
		return nil, fmt.Errorf("invoice %d recipient: %w", m.ID, err)
	}
	amount, err := types.ParseAmount(m.Amount)
	if err != nil {
		return nil, fmt.Errorf("invoice %d amount: %w", m.ID, err)
	}

	inv := &invoice.Invoice{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:          uint64(m.ID), //nolint:gosec // ids are never negative
		Recipient:   recipient,
		Description: m.Description,
		Amount:      amount,
		Paid:        m.Paid,
		PaidAt:      m.PaidAt,
	}
	if !m.Paid {
		return inv, nil
	}

	if inv.Payer, err = account.Parse(m.Payer); err != nil {
		return nil, fmt.Errorf("invoice %d payer: %w", m.ID, err)
	}
	if inv.AmountPaid, err = types.ParseAmount(m.AmountPaid); err != nil {
		return nil, fmt.Errorf("invoice %d amount_paid: %w", m.ID, err)
	}
	if inv.PaymentID, err = id.ParsePaymentID(m.PaymentID); err != nil {
		return nil, fmt.Errorf("invoice %d payment_id: %w", m.ID, err)
	}
	return inv, nil
}
