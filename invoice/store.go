package invoice

import (
	"context"

	"github.com/xraph/tally/account"
	"github.com/xraph/tally/id"
)

// Store persists invoices. Implementations must make MarkPaid conditional on
// the invoice being unpaid so that two payers can never both succeed.
type Store interface {
	CreateInvoice(ctx context.Context, inv *Invoice) error
	GetInvoice(ctx context.Context, invoiceID uint64) (*Invoice, error)
	ListInvoices(ctx context.Context, opts ListOpts) ([]*Invoice, error)
	CountInvoices(ctx context.Context) (uint64, error)
	MarkInvoicePaid(ctx context.Context, invoiceID uint64, p Payment) error
	RevertInvoicePayment(ctx context.Context, invoiceID uint64, paymentID id.PaymentID) error
}

// ListOpts filters ListInvoices. Results are ordered by ID ascending.
type ListOpts struct {
	Status    Status
	Recipient account.Address
	Payer     account.Address
	Limit     int
	Offset    int
}

// Matches reports whether inv passes the filters in opts. Limit and Offset
// are not considered.
func (o ListOpts) Matches(inv *Invoice) bool {
	if o.Status != "" && inv.Status() != o.Status {
		return false
	}
	if !o.Recipient.IsZero() && inv.Recipient != o.Recipient {
		return false
	}
	if !o.Payer.IsZero() && inv.Payer != o.Payer {
		return false
	}
	return true
}
