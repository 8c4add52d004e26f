// Package plugin provides an extensible plugin system for Tally.
// Plugins hook into ledger lifecycle and event flow to extend functionality
// without touching the ledger's critical section.
package plugin

import (
	"context"
	"time"

	"github.com/xraph/tally/account"
	"github.com/xraph/tally/event"
	"github.com/xraph/tally/types"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the ledger starts.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, l any) error
}

// OnShutdown is called when the ledger stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Event hooks
// ──────────────────────────────────────────────────

// OnEvent receives every appended event record, whatever its kind.
type OnEvent interface {
	Plugin
	OnEvent(ctx context.Context, rec event.Record) error
}

// OnInvoiceCreated is called after an invoice is created.
type OnInvoiceCreated interface {
	Plugin
	OnInvoiceCreated(ctx context.Context, evt event.InvoiceCreated) error
}

// OnInvoicePaid is called after an invoice is paid.
type OnInvoicePaid interface {
	Plugin
	OnInvoicePaid(ctx context.Context, evt event.InvoicePaid) error
}

// ──────────────────────────────────────────────────
// Failure and timing hooks
// ──────────────────────────────────────────────────

// Rejection describes a payment the ledger refused.
type Rejection struct {
	InvoiceID uint64
	Payer     account.Address
	Value     types.Amount
	Err       error
}

// OnPaymentRejected is called when PayInvoice returns an error.
type OnPaymentRejected interface {
	Plugin
	OnPaymentRejected(ctx context.Context, r Rejection) error
}

// Operation names a finished ledger call and how long it took.
type Operation struct {
	Name    string
	Elapsed time.Duration
	Err     error
}

// OnOperation is called after every CreateInvoice and PayInvoice call.
type OnOperation interface {
	Plugin
	OnOperation(ctx context.Context, op Operation) error
}
