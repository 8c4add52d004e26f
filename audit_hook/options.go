package audithook

import "log/slog"

// Option configures an Extension.
type Option func(*Extension)

// WithLogger sets the logger used to report recorder failures.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extension) {
		e.logger = logger
	}
}

// WithOnly restricts the trail to actions. Without it every action is kept.
func WithOnly(actions ...string) Option {
	return func(e *Extension) {
		e.only = make(map[string]struct{}, len(actions))
		for _, action := range actions {
			e.only[action] = struct{}{}
		}
	}
}

// WithSkip drops actions from the trail. It applies after WithOnly.
func WithSkip(actions ...string) Option {
	return func(e *Extension) {
		if e.skip == nil {
			e.skip = make(map[string]struct{}, len(actions))
		}
		for _, action := range actions {
			e.skip[action] = struct{}{}
		}
	}
}

// WithMinSeverity drops events below severity. Unknown names keep everything.
func WithMinSeverity(severity string) Option {
	return func(e *Extension) {
		e.minSeverity = severityRank[severity]
	}
}

// Actions lists every action the extension emits.
func Actions() []string {
	return []string{
		ActionLedgerStarted,
		ActionLedgerStopped,
		ActionInvoiceCreated,
		ActionInvoicePaid,
		ActionPaymentRejected,
		ActionTransferFailed,
	}
}
