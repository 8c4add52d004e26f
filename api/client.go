package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/xraph/tally/account"
	"github.com/xraph/tally/event"
	"github.com/xraph/tally/invoice"
	"github.com/xraph/tally/types"
)

// Client talks to a tally HTTP server. Its method set mirrors Service, so it
// can stand in for an in-process ledger.
type Client struct {
	baseURL string
	http    *http.Client
}

var _ Service = (*Client)(nil)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.http = hc
	}
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateInvoice calls POST /invoices.
func (c *Client) CreateInvoice(ctx context.Context, recipient account.Address, description string, amount types.Amount) (uint64, error) {
	var resp CreateInvoiceResponse
	err := c.do(ctx, http.MethodPost, "/invoices", nil, CreateInvoiceRequest{
		Recipient:   recipient,
		Description: description,
		Amount:      amount,
	}, &resp)
	return resp.ID, err
}

// PayInvoice calls POST /invoices/{id}/pay.
func (c *Client) PayInvoice(ctx context.Context, invoiceID uint64, payer account.Address, value types.Amount) error {
	path := "/invoices/" + strconv.FormatUint(invoiceID, 10) + "/pay"
	return c.do(ctx, http.MethodPost, path, nil, PayInvoiceRequest{Payer: payer, Amount: value}, &PayInvoiceResponse{})
}

// GetInvoice calls GET /invoices/{id}.
func (c *Client) GetInvoice(ctx context.Context, invoiceID uint64) (invoice.Invoice, error) {
	var inv invoice.Invoice
	err := c.do(ctx, http.MethodGet, "/invoices/"+strconv.FormatUint(invoiceID, 10), nil, nil, &inv)
	return inv, err
}

// InvoiceCount calls GET /invoices/count.
func (c *Client) InvoiceCount(ctx context.Context) (uint64, error) {
	var resp CountResponse
	err := c.do(ctx, http.MethodGet, "/invoices/count", nil, nil, &resp)
	return resp.Count, err
}

// ListInvoices calls GET /invoices.
func (c *Client) ListInvoices(ctx context.Context, opts invoice.ListOpts) ([]invoice.Invoice, error) {
	q := url.Values{}
	switch opts.Status {
	case invoice.StatusPaid:
		q.Set("paid", "true")
	case invoice.StatusCreated:
		q.Set("paid", "false")
	}
	if !opts.Recipient.IsZero() {
		q.Set("recipient", opts.Recipient.String())
	}
	if !opts.Payer.IsZero() {
		q.Set("payer", opts.Payer.String())
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}

	var invs []invoice.Invoice
	err := c.do(ctx, http.MethodGet, "/invoices", q, nil, &invs)
	return invs, err
}

// Events calls GET /events.
func (c *Client) Events(ctx context.Context, after uint64, limit int) ([]event.Record, error) {
	q := url.Values{}
	q.Set("after", strconv.FormatUint(after, 10))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var records []event.Record
	err := c.do(ctx, http.MethodGet, "/events", q, nil, &records)
	return records, err
}

// Health calls GET /healthz.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("tally/api: encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("tally/api: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("tally/api: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var er ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&er); err != nil || er.Code == "" {
			er = ErrorResponse{Code: CodeInternal, Message: resp.Status}
		}
		return &Error{Status: resp.StatusCode, Code: er.Code, Message: er.Message}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("tally/api: decode response: %w", err)
	}
	return nil
}
