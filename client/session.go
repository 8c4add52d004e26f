// Package client implements an operator session against a ledger. A session
// acts as one identity and keeps its own view of the invoices it created and
// paid, built from the ledger's event log.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/xraph/tally/account"
	"github.com/xraph/tally/event"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/types"
)

// ErrUnknownInvoice is returned when paying an id the session has not
// recorded as created. No ledger call is made.
var ErrUnknownInvoice = errors.New("invoice not found, check the id")

// ErrNoIdentity is returned when a session is opened without an identity.
var ErrNoIdentity = errors.New("client: session needs an identity")

// eventPage is how many records Sync asks for per call.
const eventPage = 100

// Ledger is what a session needs from the ledger. Both *tally.Ledger and
// *api.Client implement it.
type Ledger interface {
	CreateInvoice(ctx context.Context, recipient account.Address, description string, amount types.Amount) (uint64, error)
	PayInvoice(ctx context.Context, invoiceID uint64, payer account.Address, value types.Amount) error
	Events(ctx context.Context, after uint64, limit int) ([]event.Record, error)
}

// Entry is one line of a session list.
type Entry struct {
	ID          uint64
	Recipient   account.Address
	Description string
	Amount      types.Amount
	// AmountPaid is set on entries of the paid list.
	AmountPaid types.Amount
}

// Session is a single operator's view of the ledger.
type Session struct {
	id       id.SessionID
	identity account.Address
	ledger   Ledger
	unit     types.Unit
	logger   *slog.Logger

	mu     sync.Mutex
	cursor uint64
	// mark is the hash of the record at cursor. A log that no longer has it
	// there was restarted.
	mark   event.Hash
	issued map[uint64]struct{}
	// While creates are in flight, InvoiceCreated payloads nobody claimed
	// yet are kept in unclaimed so a concurrent Sync cannot skip them.
	inflight  int
	unclaimed map[uint64]event.InvoiceCreated
	created   []Entry
	paid      []Entry
}

// Option configures a Session.
type Option func(*Session)

// WithUnit sets the denomination ParseAmount reads. Default is Ether.
func WithUnit(u types.Unit) Option {
	return func(s *Session) {
		s.unit = u
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// New opens a session acting as identity.
func New(ledger Ledger, identity account.Address, opts ...Option) (*Session, error) {
	if identity.IsZero() {
		return nil, ErrNoIdentity
	}
	s := &Session{
		id:        id.NewSessionID(),
		identity:  identity,
		ledger:    ledger,
		unit:      types.Ether,
		logger:    slog.Default(),
		issued:    make(map[uint64]struct{}),
		unclaimed: make(map[uint64]event.InvoiceCreated),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() id.SessionID { return s.id }

// Identity returns the address the session acts as.
func (s *Session) Identity() account.Address { return s.identity }

// Unit returns the denomination used by ParseAmount.
func (s *Session) Unit() types.Unit { return s.unit }

// ParseAmount reads an operator-entered amount in the session unit,
// so "1.5" means 1.5 ETH by default.
func (s *Session) ParseAmount(v string) (types.Amount, error) {
	return types.ParseIn(v, s.unit)
}

// CreateInvoice bills recipient and records the new invoice in the
// created list once its InvoiceCreated event is seen.
func (s *Session) CreateInvoice(ctx context.Context, recipient account.Address, description string, amount types.Amount) (uint64, error) {
	s.mu.Lock()
	s.inflight++
	s.mu.Unlock()

	invoiceID, err := s.ledger.CreateInvoice(ctx, recipient, description, amount)

	s.mu.Lock()
	if err == nil {
		if p, ok := s.unclaimed[invoiceID]; ok {
			s.addCreated(p)
		} else {
			s.issued[invoiceID] = struct{}{}
		}
	}
	s.inflight--
	if s.inflight == 0 {
		clear(s.unclaimed)
	}
	s.mu.Unlock()

	if err != nil {
		return 0, err
	}

	if err := s.Sync(ctx); err != nil {
		return invoiceID, fmt.Errorf("client: invoice %d created but event sync failed: %w", invoiceID, err)
	}
	s.logger.Debug("session created invoice",
		"session_id", s.id.String(),
		"invoice_id", invoiceID,
	)
	return invoiceID, nil
}

// PayInvoice pays an invoice this session created. Ids missing from the
// created list fail with ErrUnknownInvoice before reaching the ledger.
func (s *Session) PayInvoice(ctx context.Context, invoiceID uint64, value types.Amount) error {
	if !s.hasCreated(invoiceID) {
		return fmt.Errorf("%w: %d", ErrUnknownInvoice, invoiceID)
	}
	if err := s.ledger.PayInvoice(ctx, invoiceID, s.identity, value); err != nil {
		return err
	}
	if err := s.Sync(ctx); err != nil {
		return fmt.Errorf("client: invoice %d paid but event sync failed: %w", invoiceID, err)
	}
	s.logger.Debug("session paid invoice",
		"session_id", s.id.String(),
		"invoice_id", invoiceID,
	)
	return nil
}

// Sync reads events past the session cursor and applies the ones that
// concern this session.
//
// Each page starts one record early so the session can check that the
// record at its cursor is still the one it applied. A mismatch means the
// ledger's event log was restarted, and reading resumes from its start.
func (s *Session) Sync(ctx context.Context) error {
	for {
		s.mu.Lock()
		after, mark := s.cursor, s.mark
		s.mu.Unlock()

		from := after
		if after > 0 {
			from = after - 1
		}
		records, err := s.ledger.Events(ctx, from, eventPage)
		if err != nil {
			return err
		}
		full := len(records) == eventPage

		if after > 0 {
			if len(records) == 0 || records[0].Seq != after || records[0].Hash != mark {
				s.restart(after)
				continue
			}
			records = records[1:]
		}

		s.mu.Lock()
		for _, rec := range records {
			if rec.Seq <= s.cursor {
				continue
			}
			s.apply(rec)
			s.cursor, s.mark = rec.Seq, rec.Hash
		}
		s.mu.Unlock()

		if !full {
			return nil
		}
	}
}

// restart rewinds the cursor after the ledger's log was replaced. Entries
// already listed stay; events for them are not applied twice.
func (s *Session) restart(after uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursor != after {
		return
	}
	s.logger.Warn("ledger event log restarted, rereading from the start",
		"session_id", s.id.String(),
		"cursor", after,
	)
	s.cursor, s.mark = 0, event.Hash{}
}

// apply must be called with s.mu held.
func (s *Session) apply(rec event.Record) {
	switch p := rec.Payload.(type) {
	case event.InvoiceCreated:
		if _, ok := s.issued[p.ID]; ok {
			delete(s.issued, p.ID)
			s.addCreated(p)
			return
		}
		if s.inflight > 0 {
			s.unclaimed[p.ID] = p
		}
	case event.InvoicePaid:
		if p.Payer != s.identity || hasEntry(s.paid, p.InvoiceID) {
			return
		}
		i := slices.IndexFunc(s.created, func(e Entry) bool { return e.ID == p.InvoiceID })
		if i < 0 {
			return
		}
		entry := s.created[i]
		entry.AmountPaid = p.AmountPaid
		s.paid = append(s.paid, entry)
	}
}

// addCreated must be called with s.mu held.
func (s *Session) addCreated(p event.InvoiceCreated) {
	if hasEntry(s.created, p.ID) {
		return
	}
	s.created = append(s.created, Entry{
		ID:          p.ID,
		Recipient:   p.Recipient,
		Description: p.Description,
		Amount:      p.Amount,
	})
}

func hasEntry(entries []Entry, invoiceID uint64) bool {
	return slices.ContainsFunc(entries, func(e Entry) bool { return e.ID == invoiceID })
}

func (s *Session) hasCreated(invoiceID uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return hasEntry(s.created, invoiceID)
}

// Created returns the invoices this session created, oldest first.
func (s *Session) Created() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.created)
}

// Paid returns the invoices this session paid, in payment order.
func (s *Session) Paid() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.paid)
}
