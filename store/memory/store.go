// Package memory is an in-process Store. It is the default backend and holds
// state only for the life of the process.
package memory

import (
	"context"
	"sync"

	"github.com/xraph/tally"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/invoice"
	"github.com/xraph/tally/store"
)

var _ store.Store = (*Store)(nil)

// Store keeps invoices in a slice indexed by id. Values are copied in and
// out so callers never share memory with the store.
type Store struct {
	mu       sync.RWMutex
	invoices []invoice.Invoice
	closed   bool
}

// New creates an empty Store.
func New() *Store {
	return &Store{}
}

// Invoice Store implementation
func (s *Store) CreateInvoice(_ context.Context, inv *invoice.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return tally.ErrStoreClosed
	}
	switch n := uint64(len(s.invoices)); {
	case inv.ID < n:
		return tally.ErrAlreadyExists
	case inv.ID > n:
		return tally.ValidationError{Field: "id", Message: "invoice ids must be dense"}
	}
	s.invoices = append(s.invoices, *inv)
	return nil
}

func (s *Store) GetInvoice(_ context.Context, invoiceID uint64) (*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if invoiceID >= uint64(len(s.invoices)) {
		return nil, tally.ErrInvoiceNotFound
	}
	inv := s.invoices[invoiceID]
	return &inv, nil
}

func (s *Store) ListInvoices(_ context.Context, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*invoice.Invoice, 0)
	skipped := 0
	for i := range s.invoices {
		inv := s.invoices[i]
		if !opts.Matches(&inv) {
			continue
		}
		if skipped < opts.Offset {
			skipped++
			continue
		}
		result = append(result, &inv)
		if opts.Limit > 0 && len(result) == opts.Limit {
			break
		}
	}
	return result, nil
}

func (s *Store) CountInvoices(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return uint64(len(s.invoices)), nil
}

func (s *Store) MarkInvoicePaid(_ context.Context, invoiceID uint64, p invoice.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if invoiceID >= uint64(len(s.invoices)) {
		return tally.ErrInvoiceNotFound
	}
	if s.invoices[invoiceID].Paid {
		return tally.ErrInvoiceAlreadyPaid
	}
	s.invoices[invoiceID] = p.Apply(s.invoices[invoiceID])
	return nil
}

func (s *Store) RevertInvoicePayment(_ context.Context, invoiceID uint64, paymentID id.PaymentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if invoiceID >= uint64(len(s.invoices)) {
		return tally.ErrInvoiceNotFound
	}
	inv := s.invoices[invoiceID]
	if !inv.Paid || inv.PaymentID.String() != paymentID.String() {
		return tally.ErrPaymentNotFound
	}
	s.invoices[invoiceID] = unpaid(inv)
	return nil
}

// Store management
func (s *Store) Migrate(_ context.Context) error {
	return nil
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return tally.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

func unpaid(inv invoice.Invoice) invoice.Invoice {
	return invoice.Invoice{
		Entity:      inv.Entity,
		ID:          inv.ID,
		Recipient:   inv.Recipient,
		Description: inv.Description,
		Amount:      inv.Amount,
	}
}
