// Package api exposes the ledger over HTTP with a chi router, and provides
// a Go client for the same endpoints.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/xraph/tally"
	"github.com/xraph/tally/account"
	"github.com/xraph/tally/event"
	"github.com/xraph/tally/invoice"
	"github.com/xraph/tally/types"
)

// Event paging limits for GET /events.
const (
	DefaultEventLimit = 100
	MaxEventLimit     = 1000
)

// Service is the ledger surface the handler serves. *tally.Ledger implements it.
type Service interface {
	CreateInvoice(ctx context.Context, recipient account.Address, description string, amount types.Amount) (uint64, error)
	PayInvoice(ctx context.Context, invoiceID uint64, payer account.Address, value types.Amount) error
	GetInvoice(ctx context.Context, invoiceID uint64) (invoice.Invoice, error)
	InvoiceCount(ctx context.Context) (uint64, error)
	ListInvoices(ctx context.Context, opts invoice.ListOpts) ([]invoice.Invoice, error)
	Events(ctx context.Context, after uint64, limit int) ([]event.Record, error)
}

type healthChecker interface {
	Health(ctx context.Context) error
}

var _ Service = (*tally.Ledger)(nil)

// Handler serves the ledger endpoints.
type Handler struct {
	svc     Service
	logger  *slog.Logger
	timeout time.Duration
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithTimeout bounds each request. Zero disables the timeout.
func WithTimeout(d time.Duration) HandlerOption {
	return func(h *Handler) {
		h.timeout = d
	}
}

// NewHandler creates a Handler for svc.
func NewHandler(svc Service, opts ...HandlerOption) *Handler {
	h := &Handler{
		svc:     svc,
		logger:  slog.Default(),
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register registers the ledger routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/invoices", func(r chi.Router) {
		r.Post("/", h.handleCreateInvoice)
		r.Get("/", h.handleListInvoices)
		r.Get("/count", h.handleInvoiceCount)
		r.Get("/{id}", h.handleGetInvoice)
		r.Post("/{id}/pay", h.handlePayInvoice)
	})
	r.Get("/events", h.handleEvents)
	if _, ok := h.svc.(healthChecker); ok {
		r.Get("/healthz", h.handleHealth)
	}
}

// Router returns a standalone router with request ids, panic recovery,
// request logging and the configured timeout.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)
	if h.timeout > 0 {
		r.Use(middleware.Timeout(h.timeout))
	}
	h.Register(r)
	return r
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.logger.DebugContext(r.Context(), "http request",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}

// ──────────────────────────────────────────────────
// Invoice handlers
// ──────────────────────────────────────────────────

func (h *Handler) handleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req CreateInvoiceRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.Recipient.IsZero() {
		h.writeError(w, r, tally.ErrInvalidRecipient)
		return
	}

	invoiceID, err := h.svc.CreateInvoice(r.Context(), req.Recipient, req.Description, req.Amount)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, CreateInvoiceResponse{ID: invoiceID})
}

func (h *Handler) handlePayInvoice(w http.ResponseWriter, r *http.Request) {
	invoiceID, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req PayInvoiceRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.Payer.IsZero() {
		h.writeError(w, r, tally.ValidationError{Field: "payer", Message: "required"})
		return
	}

	if err := h.svc.PayInvoice(r.Context(), invoiceID, req.Payer, req.Amount); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PayInvoiceResponse{InvoiceID: invoiceID})
}

func (h *Handler) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	invoiceID, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	inv, err := h.svc.GetInvoice(r.Context(), invoiceID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (h *Handler) handleInvoiceCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.svc.InvoiceCount(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Count: count})
}

func (h *Handler) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	opts, err := listOpts(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	invs, err := h.svc.ListInvoices(r.Context(), opts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if invs == nil {
		invs = []invoice.Invoice{}
	}
	writeJSON(w, http.StatusOK, invs)
}

// ──────────────────────────────────────────────────
// Event and health handlers
// ──────────────────────────────────────────────────

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	after, err := queryUint(q.Get("after"), "after")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	limit := DefaultEventLimit
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			h.writeError(w, r, tally.ValidationError{Field: "limit", Message: "must be a positive integer"})
			return
		}
		limit = min(n, MaxEventLimit)
	}

	records, err := h.svc.Events(r.Context(), after, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if records == nil {
		records = []event.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.(healthChecker).Health(r.Context()); err != nil {
		h.logger.WarnContext(r.Context(), "health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Code: CodeUnavailable, Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			"request_id", middleware.GetReqID(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
	}
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeJSON(w, status, ErrorResponse{Code: code, Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // client went away
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return tally.ValidationError{Field: "body", Message: err.Error()}
	}
	return nil
}

func pathID(r *http.Request) (uint64, error) {
	raw := chi.URLParam(r, "id")
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, tally.ValidationError{Field: "id", Message: "must be a non-negative integer"}
	}
	return n, nil
}

func queryUint(s, field string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, tally.ValidationError{Field: field, Message: "must be a non-negative integer"}
	}
	return n, nil
}

func listOpts(r *http.Request) (invoice.ListOpts, error) {
	q := r.URL.Query()
	var opts invoice.ListOpts

	switch q.Get("paid") {
	case "":
	case "true":
		opts.Status = invoice.StatusPaid
	case "false":
		opts.Status = invoice.StatusCreated
	default:
		return opts, tally.ValidationError{Field: "paid", Message: "must be true or false"}
	}

	for field, dst := range map[string]*account.Address{"recipient": &opts.Recipient, "payer": &opts.Payer} {
		if s := q.Get(field); s != "" {
			addr, err := account.Parse(s)
			if err != nil {
				return opts, tally.ValidationError{Field: field, Message: err.Error()}
			}
			*dst = addr
		}
	}

	for field, dst := range map[string]*int{"limit": &opts.Limit, "offset": &opts.Offset} {
		if s := q.Get(field); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 0 {
				return opts, tally.ValidationError{Field: field, Message: "must be a non-negative integer"}
			}
			*dst = n
		}
	}

	return opts, nil
}
