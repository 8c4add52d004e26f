// Package settlement moves the value attached to an invoice payment from the
// payer to the recipient.
//
// Transfers run in two phases so the ledger can keep a payment atomic:
// Prepare secures the payer's value, Execute forwards it to the recipient,
// and Abort returns a prepared hold to the payer. A hold is either executed
// or aborted, never both.
package settlement

import (
	"context"
	"errors"
	"time"

	"github.com/xraph/tally/account"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/types"
)

// Sentinel errors returned by settlers.
var (
	ErrInsufficientFunds = errors.New("settlement: insufficient funds")
	ErrAccountFrozen     = errors.New("settlement: account frozen")
	ErrUnknownHold       = errors.New("settlement: unknown hold")
)

// Settler transfers value between accounts in two phases.
type Settler interface {
	// Prepare secures req.Amount from the payer. Nothing reaches the
	// recipient until Execute.
	Prepare(ctx context.Context, req Request) (*Hold, error)

	// Execute forwards a prepared hold to the recipient.
	Execute(ctx context.Context, hold *Hold) (*Receipt, error)

	// Abort returns a prepared hold to the payer.
	Abort(ctx context.Context, hold *Hold) error
}

// Request describes one transfer.
type Request struct {
	PaymentID id.PaymentID
	InvoiceID uint64
	Payer     account.Address
	Recipient account.Address
	Amount    types.Amount
}

// Hold is the settler's reference to secured but not yet forwarded value.
type Hold struct {
	ID         id.HoldID
	Request    Request
	PreparedAt time.Time
}

// Receipt confirms a completed transfer.
type Receipt struct {
	ID        id.ReceiptID
	HoldID    id.HoldID
	SettledAt time.Time
}

// Direct forwards whatever value accompanies a payment. The payer's value is
// already in hand, so Prepare cannot fail for lack of funds.
type Direct struct{}

var _ Settler = Direct{}

// Prepare implements Settler.
func (Direct) Prepare(_ context.Context, req Request) (*Hold, error) {
	return &Hold{ID: id.NewHoldID(), Request: req, PreparedAt: time.Now().UTC()}, nil
}

// Execute implements Settler.
func (Direct) Execute(_ context.Context, hold *Hold) (*Receipt, error) {
	if hold == nil {
		return nil, ErrUnknownHold
	}
	return &Receipt{ID: id.NewReceiptID(), HoldID: hold.ID, SettledAt: time.Now().UTC()}, nil
}

// Abort implements Settler.
func (Direct) Abort(context.Context, *Hold) error { return nil }
