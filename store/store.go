// Package store defines the persistence contract for Tally.
package store

import (
	"context"

	"github.com/xraph/tally/invoice"
)

// Store is the unified storage interface for the ledger.
//
// Backends return the tally sentinel errors (ErrInvoiceNotFound,
// ErrInvoiceAlreadyPaid, ErrAlreadyExists, ErrPaymentNotFound) so callers
// can match them with errors.Is regardless of driver.
type Store interface {
	invoice.Store

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
