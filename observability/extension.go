// Package observability provides a metrics extension for Tally that records
// ledger event counts and operation latency via a MetricFactory.
package observability

import (
	"context"
	"errors"

	"github.com/xraph/tally"
	"github.com/xraph/tally/event"
	"github.com/xraph/tally/plugin"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin            = (*MetricsExtension)(nil)
	_ plugin.OnInit            = (*MetricsExtension)(nil)
	_ plugin.OnInvoiceCreated  = (*MetricsExtension)(nil)
	_ plugin.OnInvoicePaid     = (*MetricsExtension)(nil)
	_ plugin.OnPaymentRejected = (*MetricsExtension)(nil)
	_ plugin.OnOperation       = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records ledger metrics.
// Register it as a Ledger plugin to track invoice flow automatically.
type MetricsExtension struct {
	factory MetricFactory

	// Invoice metrics
	InvoiceCreated Counter
	InvoicePaid    Counter
	InvoiceAmount  Histogram
	AmountPaid     Histogram

	// Rejection metrics
	RejectedNotFound     Counter
	RejectedAlreadyPaid  Counter
	RejectedInsufficient Counter
	TransferFailed       Counter

	// Latency metrics
	CreateLatency Histogram
	PayLatency    Histogram

	// Error metrics
	StoreErrors Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		InvoiceCreated: factory.Counter("tally.invoice.created"),
		InvoicePaid:    factory.Counter("tally.invoice.paid"),
		InvoiceAmount:  factory.Histogram("tally.invoice.amount_wei"),
		AmountPaid:     factory.Histogram("tally.invoice.amount_paid_wei"),

		RejectedNotFound:     factory.Counter("tally.payment.rejected.not_found"),
		RejectedAlreadyPaid:  factory.Counter("tally.payment.rejected.already_paid"),
		RejectedInsufficient: factory.Counter("tally.payment.rejected.insufficient"),
		TransferFailed:       factory.Counter("tally.payment.transfer_failed"),

		CreateLatency: factory.Histogram("tally.create.latency_ms"),
		PayLatency:    factory.Histogram("tally.pay.latency_ms"),

		StoreErrors: factory.Counter("tally.store.errors"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ any) error {
	return nil
}

// OnInvoiceCreated implements plugin.OnInvoiceCreated.
func (m *MetricsExtension) OnInvoiceCreated(_ context.Context, evt event.InvoiceCreated) error {
	m.InvoiceCreated.Inc()
	m.InvoiceAmount.Observe(evt.Amount.Float64())
	return nil
}

// OnInvoicePaid implements plugin.OnInvoicePaid.
func (m *MetricsExtension) OnInvoicePaid(_ context.Context, evt event.InvoicePaid) error {
	m.InvoicePaid.Inc()
	m.AmountPaid.Observe(evt.AmountPaid.Float64())
	return nil
}

// OnPaymentRejected implements plugin.OnPaymentRejected.
func (m *MetricsExtension) OnPaymentRejected(_ context.Context, r plugin.Rejection) error {
	switch {
	case errors.Is(r.Err, tally.ErrInvoiceNotFound):
		m.RejectedNotFound.Inc()
	case errors.Is(r.Err, tally.ErrInvoiceAlreadyPaid):
		m.RejectedAlreadyPaid.Inc()
	case errors.Is(r.Err, tally.ErrInsufficientPayment):
		m.RejectedInsufficient.Inc()
	case errors.Is(r.Err, tally.ErrTransferFailed):
		m.TransferFailed.Inc()
	}
	return nil
}

// OnOperation implements plugin.OnOperation.
func (m *MetricsExtension) OnOperation(_ context.Context, op plugin.Operation) error {
	ms := float64(op.Elapsed.Microseconds()) / 1000
	switch op.Name {
	case "CreateInvoice":
		m.CreateLatency.Observe(ms)
		if op.Err != nil {
			m.StoreErrors.Inc()
		}
	case "PayInvoice":
		m.PayLatency.Observe(ms)
		if op.Err != nil && !tally.IsPaymentRejected(op.Err) && !errors.Is(op.Err, tally.ErrTransferFailed) {
			m.StoreErrors.Inc()
		}
	}
	return nil
}
