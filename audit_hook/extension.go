// Package audithook bridges ledger events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not depend on
// any particular audit store. Callers inject a RecorderFunc adapter at
// wiring time, or use LogRecorder to write the trail through slog.
package audithook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/xraph/tally"
	"github.com/xraph/tally/event"
	"github.com/xraph/tally/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin            = (*Extension)(nil)
	_ plugin.OnInit            = (*Extension)(nil)
	_ plugin.OnShutdown        = (*Extension)(nil)
	_ plugin.OnInvoiceCreated  = (*Extension)(nil)
	_ plugin.OnInvoicePaid     = (*Extension)(nil)
	_ plugin.OnPaymentRejected = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a single audit trail entry.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// LogRecorder writes audit events to logger at info level, or warn for
// anything that did not succeed.
func LogRecorder(logger *slog.Logger) Recorder {
	return RecorderFunc(func(ctx context.Context, e *AuditEvent) error {
		level := slog.LevelInfo
		if e.Outcome != OutcomeSuccess {
			level = slog.LevelWarn
		}
		logger.Log(ctx, level, "audit",
			"action", e.Action,
			"resource", e.Resource,
			"resource_id", e.ResourceID,
			"category", e.Category,
			"outcome", e.Outcome,
			"severity", e.Severity,
			"reason", e.Reason,
			"metadata", e.Metadata,
		)
		return nil
	})
}

// Extension bridges ledger events to an audit trail backend.
type Extension struct {
	recorder    Recorder
	only        map[string]struct{} // nil keeps every action
	skip        map[string]struct{}
	minSeverity int
	logger      *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit implements plugin.OnInit.
func (e *Extension) OnInit(ctx context.Context, l any) error {
	var ledgerID string
	if tl, ok := l.(*tally.Ledger); ok {
		ledgerID = tl.ID().String()
	}
	return e.record(ctx, ActionLedgerStarted, SeverityInfo, OutcomeSuccess,
		ResourceLedger, ledgerID, CategoryLifecycle, nil,
	)
}

// OnShutdown implements plugin.OnShutdown.
func (e *Extension) OnShutdown(ctx context.Context) error {
	return e.record(ctx, ActionLedgerStopped, SeverityInfo, OutcomeSuccess,
		ResourceLedger, "", CategoryLifecycle, nil,
	)
}

// ──────────────────────────────────────────────────
// Invoice hooks
// ──────────────────────────────────────────────────

// OnInvoiceCreated implements plugin.OnInvoiceCreated.
func (e *Extension) OnInvoiceCreated(ctx context.Context, evt event.InvoiceCreated) error {
	return e.record(ctx, ActionInvoiceCreated, SeverityInfo, OutcomeSuccess,
		ResourceInvoice, invoiceKey(evt.ID), CategoryBilling, nil,
		"recipient", evt.Recipient.String(),
		"amount", evt.Amount.String(),
		"description", evt.Description,
	)
}

// OnInvoicePaid implements plugin.OnInvoicePaid.
func (e *Extension) OnInvoicePaid(ctx context.Context, evt event.InvoicePaid) error {
	return e.record(ctx, ActionInvoicePaid, SeverityInfo, OutcomeSuccess,
		ResourceInvoice, invoiceKey(evt.InvoiceID), CategoryPayment, nil,
		"payer", evt.Payer.String(),
		"amount_paid", evt.AmountPaid.String(),
	)
}

// OnPaymentRejected implements plugin.OnPaymentRejected. Failed transfers
// are audited as critical; ordinary rejections as warnings.
func (e *Extension) OnPaymentRejected(ctx context.Context, r plugin.Rejection) error {
	action, severity := ActionPaymentRejected, SeverityWarning
	if errors.Is(r.Err, tally.ErrTransferFailed) {
		action, severity = ActionTransferFailed, SeverityCritical
	}
	return e.record(ctx, action, severity, OutcomeFailure,
		ResourcePayment, invoiceKey(r.InvoiceID), CategoryPayment, r.Err,
		"payer", r.Payer.String(),
		"value", r.Value.String(),
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// wants reports whether action at severity passes the configured filters.
func (e *Extension) wants(action, severity string) bool {
	if e.only != nil {
		if _, ok := e.only[action]; !ok {
			return false
		}
	}
	if _, ok := e.skip[action]; ok {
		return false
	}
	return severityRank[severity] >= e.minSeverity
}

func invoiceKey(invoiceID uint64) string {
	return strconv.FormatUint(invoiceID, 10)
}

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if !e.wants(action, severity) {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
