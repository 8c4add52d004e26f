// Package id defines TypeID-based identifiers for Tally entities.
//
// Invoices are numbered sequentially by the ledger. Everything else carries
// a K-sortable TypeID ("prefix_suffix") whose prefix names what it is.
package id

import (
	"errors"
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix names the entity an ID belongs to.
type Prefix string

const (
	PrefixLedger  Prefix = "ldg"
	PrefixEvent   Prefix = "evt"
	PrefixPayment Prefix = "pay"
	PrefixHold    Prefix = "hold"
	PrefixReceipt Prefix = "rcpt"
	PrefixSession Prefix = "sess"
)

// ErrEmpty is returned when parsing an empty string.
var ErrEmpty = errors.New("id: empty")

// ID wraps a TypeID. The zero value is Nil and renders as "".
type ID struct {
	tid typeid.TypeID
	ok  bool
}

// Nil is the zero ID.
var Nil ID

type (
	LedgerID  = ID
	EventID   = ID
	PaymentID = ID
	HoldID    = ID
	ReceiptID = ID
	SessionID = ID
)

// New generates an ID under prefix. An invalid prefix is a programming
// error and panics.
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: prefix %q: %v", prefix, err))
	}
	return ID{tid: tid, ok: true}
}

func NewLedgerID() LedgerID   { return New(PrefixLedger) }
func NewEventID() EventID     { return New(PrefixEvent) }
func NewPaymentID() PaymentID { return New(PrefixPayment) }
func NewHoldID() HoldID       { return New(PrefixHold) }
func NewReceiptID() ReceiptID { return New(PrefixReceipt) }
func NewSessionID() SessionID { return New(PrefixSession) }

// Parse reads any well-formed TypeID.
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, ErrEmpty
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}
	return ID{tid: tid, ok: true}, nil
}

// ParseWithPrefix reads s and requires its prefix to be want.
func ParseWithPrefix(s string, want Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}
	if got := parsed.Prefix(); got != want {
		return Nil, fmt.Errorf("id: %q has prefix %q, want %q", s, got, want)
	}
	return parsed, nil
}

func ParseLedgerID(s string) (LedgerID, error)   { return ParseWithPrefix(s, PrefixLedger) }
func ParseEventID(s string) (EventID, error)     { return ParseWithPrefix(s, PrefixEvent) }
func ParseReceiptID(s string) (ReceiptID, error) { return ParseWithPrefix(s, PrefixReceipt) }
func ParseHoldID(s string) (HoldID, error)       { return ParseWithPrefix(s, PrefixHold) }
func ParseSessionID(s string) (SessionID, error) { return ParseWithPrefix(s, PrefixSession) }

// ParsePaymentID reads a payment id. The empty string is an unpaid
// invoice's payment id and yields Nil.
func ParsePaymentID(s string) (PaymentID, error) {
	if s == "" {
		return Nil, nil
	}
	return ParseWithPrefix(s, PrefixPayment)
}

func (i ID) String() string {
	if !i.ok {
		return ""
	}
	return i.tid.String()
}

func (i ID) Prefix() Prefix {
	if !i.ok {
		return ""
	}
	return Prefix(i.tid.Prefix())
}

func (i ID) IsNil() bool { return !i.ok }

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Empty input yields Nil.
func (i *ID) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*i = Nil
		return nil
	}
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}
