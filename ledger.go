package tally

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/tally/account"
	"github.com/xraph/tally/event"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/invoice"
	"github.com/xraph/tally/plugin"
	"github.com/xraph/tally/settlement"
	"github.com/xraph/tally/store"
	"github.com/xraph/tally/types"
)

const tracerName = "github.com/xraph/tally"

// Ledger is the invoice ledger engine.
type Ledger struct {
	id      id.LedgerID
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger
	settler settlement.Settler
	events  *event.Log
	tracer  trace.Tracer

	// mu serialises CreateInvoice and PayInvoice. Readers take the read
	// lock so they never observe a payment that is about to be rolled back.
	mu     sync.RWMutex
	count  uint64
	loaded atomic.Bool
}

// New creates a new Ledger instance.
func New(s store.Store, opts ...Option) *Ledger {
	l := &Ledger{
		id:      id.NewLedgerID(),
		store:   s,
		plugins: plugin.NewRegistry(),
		logger:  slog.Default(),
		settler: settlement.Direct{},
		events:  event.NewLog(),
		tracer:  otel.Tracer(tracerName),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Option configures a Ledger instance.
type Option func(*Ledger)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
		l.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(l *Ledger) {
		_ = l.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithPluginTimeout bounds each plugin hook call.
func WithPluginTimeout(d time.Duration) Option {
	return func(l *Ledger) {
		l.plugins.WithTimeout(d)
	}
}

// WithSettler sets the value transfer backend. Defaults to settlement.Direct.
func WithSettler(s settlement.Settler) Option {
	return func(l *Ledger) {
		l.settler = s
	}
}

// WithEventLog sets the event log records are appended to.
func WithEventLog(log *event.Log) Option {
	return func(l *Ledger) {
		l.events = log
	}
}

// WithTracer sets the OpenTelemetry tracer. Defaults to the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(l *Ledger) {
		l.tracer = t
	}
}

// ID returns the identifier of this ledger instance.
func (l *Ledger) ID() id.LedgerID { return l.id }

// Store returns the underlying store.
func (l *Ledger) Store() store.Store { return l.store }

// Plugins returns the plugin registry.
func (l *Ledger) Plugins() *plugin.Registry { return l.plugins }

// Start migrates the store, loads the invoice count and initialises plugins.
func (l *Ledger) Start(ctx context.Context) error {
	if err := l.store.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrMigrationFailed, err)
	}

	count, err := l.InvoiceCount(ctx)
	if err != nil {
		return err
	}

	l.plugins.EmitInit(ctx, l)

	l.logger.Info("ledger started",
		"ledger_id", l.id.String(),
		"invoice_count", count,
		"plugins", l.plugins.Count(),
	)

	return nil
}

// Stop shuts down plugins, closes the event log, which ends every
// subscription, and closes the store.
func (l *Ledger) Stop() error {
	ctx := context.Background()
	l.plugins.EmitShutdown(ctx)
	l.events.Close()

	l.logger.Info("ledger stopped", "ledger_id", l.id.String())
	return l.store.Close()
}

// Health reports whether the store is reachable.
func (l *Ledger) Health(ctx context.Context) error {
	return l.store.Ping(ctx)
}

// ──────────────────────────────────────────────────
// Invoices
// ──────────────────────────────────────────────────

// CreateInvoice records a new unpaid invoice and returns its id. Ids are
// assigned densely from zero in creation order.
func (l *Ledger) CreateInvoice(ctx context.Context, recipient account.Address, description string, amount types.Amount) (uint64, error) {
	ctx, span := l.tracer.Start(ctx, "tally.CreateInvoice")
	defer span.End()
	start := time.Now()

	invoiceID, rec, err := l.createInvoice(ctx, recipient, description, amount)
	l.plugins.EmitOperation(ctx, plugin.Operation{Name: "CreateInvoice", Elapsed: time.Since(start), Err: err})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		l.logger.Error("create invoice failed", "recipient", recipient.String(), "error", err)
		return 0, err
	}

	span.SetAttributes(attribute.Int64("tally.invoice_id", int64(invoiceID))) //nolint:gosec // ids are dense from zero
	l.logger.Info("invoice created",
		"invoice_id", invoiceID,
		"recipient", recipient.String(),
		"amount", amount.String(),
	)
	if rec != nil {
		l.plugins.EmitRecord(ctx, *rec)
	}

	return invoiceID, nil
}

// createInvoice returns a nil record when the invoice was stored but the
// event could not be appended.
func (l *Ledger) createInvoice(ctx context.Context, recipient account.Address, description string, amount types.Amount) (uint64, *event.Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.loadCountLocked(ctx); err != nil {
		return 0, nil, err
	}

	inv := &invoice.Invoice{
		Entity:      types.NewEntity(),
		ID:          l.count,
		Recipient:   recipient,
		Description: description,
		Amount:      amount,
	}
	if err := l.store.CreateInvoice(ctx, inv); err != nil {
		return 0, nil, err
	}
	l.count++

	rec, err := l.events.Append(event.InvoiceCreated{
		ID:          inv.ID,
		Recipient:   recipient,
		Amount:      amount,
		Description: description,
	})
	if err != nil {
		// The invoice is already stored; only the record is missing.
		l.logger.Error("append invoice created event", "invoice_id", inv.ID, "error", err)
		return inv.ID, nil, nil
	}

	return inv.ID, &rec, nil
}

// PayInvoice settles an invoice with value from payer. The checks run in a
// fixed order: the invoice must exist, must be unpaid, and value must cover
// its amount. Overpayment is accepted and forwarded in full.
//
// The whole call is atomic: when the transfer to the recipient fails, the
// invoice stays unpaid, no event is recorded and the payer keeps their value.
func (l *Ledger) PayInvoice(ctx context.Context, invoiceID uint64, payer account.Address, value types.Amount) error {
	ctx, span := l.tracer.Start(ctx, "tally.PayInvoice",
		trace.WithAttributes(attribute.Int64("tally.invoice_id", int64(invoiceID)))) //nolint:gosec // ids are dense from zero
	defer span.End()
	start := time.Now()

	rec, err := l.payInvoice(ctx, invoiceID, payer, value)
	l.plugins.EmitOperation(ctx, plugin.Operation{Name: "PayInvoice", Elapsed: time.Since(start), Err: err})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		l.logger.Warn("payment rejected",
			"invoice_id", invoiceID,
			"payer", payer.String(),
			"value", value.String(),
			"error", err,
		)
		l.plugins.EmitPaymentRejected(ctx, plugin.Rejection{
			InvoiceID: invoiceID,
			Payer:     payer,
			Value:     value,
			Err:       err,
		})
		return err
	}

	l.logger.Info("invoice paid",
		"invoice_id", invoiceID,
		"payer", payer.String(),
		"amount_paid", value.String(),
	)
	if rec != nil {
		l.plugins.EmitRecord(ctx, *rec)
	}

	return nil
}

// payInvoice returns a nil record when the payment settled but the event
// could not be appended.
func (l *Ledger) payInvoice(ctx context.Context, invoiceID uint64, payer account.Address, value types.Amount) (*event.Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.loadCountLocked(ctx); err != nil {
		return nil, err
	}
	if invoiceID >= l.count {
		return nil, ErrInvoiceNotFound
	}

	inv, err := l.store.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.Paid {
		return nil, ErrInvoiceAlreadyPaid
	}
	if value.LessThan(inv.Amount) {
		return nil, ErrInsufficientPayment
	}

	payment := invoice.Payment{
		ID:     id.NewPaymentID(),
		Payer:  payer,
		Amount: value,
		PaidAt: time.Now().UTC(),
	}

	hold, err := l.settler.Prepare(ctx, settlement.Request{
		PaymentID: payment.ID,
		InvoiceID: invoiceID,
		Payer:     payer,
		Recipient: inv.Recipient,
		Amount:    value,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}

	if err := l.store.MarkInvoicePaid(ctx, invoiceID, payment); err != nil {
		return nil, l.abort(context.WithoutCancel(ctx), hold, err)
	}

	receipt, err := l.settler.Execute(ctx, hold)
	if err != nil {
		// The rollback must finish even when ctx is what failed the transfer.
		rollbackCtx := context.WithoutCancel(ctx)
		failure := fmt.Errorf("%w: %w", ErrTransferFailed, err)
		if rerr := l.store.RevertInvoicePayment(rollbackCtx, invoiceID, payment.ID); rerr != nil {
			l.logger.Error("revert invoice payment",
				"invoice_id", invoiceID,
				"payment_id", payment.ID.String(),
				"error", rerr,
			)
			failure = errors.Join(failure, rerr)
		}
		return nil, l.abort(rollbackCtx, hold, failure)
	}

	rec, err := l.events.Append(event.InvoicePaid{
		InvoiceID:  invoiceID,
		Payer:      payer,
		AmountPaid: value,
	})
	if err != nil {
		l.logger.Error("append invoice paid event", "invoice_id", invoiceID, "error", err)
	}
	var out *event.Record
	if err == nil {
		out = &rec
	}

	l.logger.Debug("payment settled",
		"invoice_id", invoiceID,
		"payment_id", payment.ID.String(),
		"hold_id", hold.ID.String(),
		"receipt_id", receipt.ID.String(),
	)

	return out, nil
}

// abort returns a prepared hold to the payer and passes cause through,
// joined with the abort error when the hold could not be released.
func (l *Ledger) abort(ctx context.Context, hold *settlement.Hold, cause error) error {
	if err := l.settler.Abort(ctx, hold); err != nil {
		l.logger.Error("abort settlement hold",
			"hold_id", hold.ID.String(),
			"error", err,
		)
		return errors.Join(cause, err)
	}
	return cause
}

// GetInvoice returns a copy of the invoice with the given id.
func (l *Ledger) GetInvoice(ctx context.Context, invoiceID uint64) (invoice.Invoice, error) {
	ctx, span := l.tracer.Start(ctx, "tally.GetInvoice",
		trace.WithAttributes(attribute.Int64("tally.invoice_id", int64(invoiceID)))) //nolint:gosec // ids are dense from zero
	defer span.End()

	if err := l.ensureLoaded(ctx); err != nil {
		return invoice.Invoice{}, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	if invoiceID >= l.count {
		return invoice.Invoice{}, ErrInvoiceNotFound
	}
	inv, err := l.store.GetInvoice(ctx, invoiceID)
	if err != nil {
		span.RecordError(err)
		return invoice.Invoice{}, err
	}
	return *inv, nil
}

// InvoiceCount returns one past the highest invoice id. It never decreases.
func (l *Ledger) InvoiceCount(ctx context.Context) (uint64, error) {
	if err := l.ensureLoaded(ctx); err != nil {
		return 0, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.count, nil
}

// ListInvoices returns copies of the invoices matching opts, ordered by id.
func (l *Ledger) ListInvoices(ctx context.Context, opts invoice.ListOpts) ([]invoice.Invoice, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	invs, err := l.store.ListInvoices(ctx, opts)
	if err != nil {
		return nil, err
	}
	out := make([]invoice.Invoice, len(invs))
	for i, inv := range invs {
		out[i] = *inv
	}
	return out, nil
}

// ensureLoaded reads the invoice count from the store once.
func (l *Ledger) ensureLoaded(ctx context.Context) error {
	if l.loaded.Load() {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loadCountLocked(ctx)
}

func (l *Ledger) loadCountLocked(ctx context.Context) error {
	if l.loaded.Load() {
		return nil
	}
	count, err := l.store.CountInvoices(ctx)
	if err != nil {
		return fmt.Errorf("tally: load invoice count: %w", err)
	}
	l.count = count
	l.loaded.Store(true)
	return nil
}

// ──────────────────────────────────────────────────
// Events
// ──────────────────────────────────────────────────

// Events returns up to limit records with sequence numbers above after.
func (l *Ledger) Events(_ context.Context, after uint64, limit int) ([]event.Record, error) {
	return l.events.Since(after, limit), nil
}

// Subscribe streams records appended from now on. Call cancel to stop.
func (l *Ledger) Subscribe(buffer int) (<-chan event.Record, func()) {
	return l.events.Subscribe(buffer)
}

// VerifyEvents checks the hash chain of the event log.
func (l *Ledger) VerifyEvents() error {
	return l.events.Verify()
}
