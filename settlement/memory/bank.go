// Package memory provides an in-memory account book that settles invoice
// payments against tracked balances. It backs demos and tests.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/tally/account"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/settlement"
	"github.com/xraph/tally/types"
)

var _ settlement.Settler = (*Bank)(nil)

// Bank keeps balances per account and settles holds between them.
type Bank struct {
	mu       sync.Mutex
	balances map[account.Address]types.Amount
	holds    map[string]*settlement.Hold
	frozen   map[account.Address]bool
	logger   *slog.Logger
}

// Option configures a Bank.
type Option func(*Bank)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bank) { b.logger = logger }
}

// New creates an empty bank.
func New(opts ...Option) *Bank {
	b := &Bank{
		balances: make(map[account.Address]types.Amount),
		holds:    make(map[string]*settlement.Hold),
		frozen:   make(map[account.Address]bool),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Deposit credits amount to addr.
func (b *Bank) Deposit(addr account.Address, amount types.Amount) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[addr] = b.balances[addr].Add(amount)
}

// Balance returns the spendable balance of addr.
func (b *Bank) Balance(addr account.Address) types.Amount {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balances[addr]
}

// Freeze makes addr refuse incoming transfers until Unfreeze.
func (b *Bank) Freeze(addr account.Address) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frozen[addr] = true
}

// Unfreeze lifts a Freeze.
func (b *Bank) Unfreeze(addr account.Address) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.frozen, addr)
}

// OpenHolds returns the number of prepared holds not yet executed or aborted.
func (b *Bank) OpenHolds() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.holds)
}

// Prepare debits the payer and parks the amount in a hold.
func (b *Bank) Prepare(_ context.Context, req settlement.Request) (*settlement.Hold, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frozen[req.Payer] {
		return nil, fmt.Errorf("%w: payer %s", settlement.ErrAccountFrozen, req.Payer)
	}
	remaining, err := b.balances[req.Payer].Sub(req.Amount)
	if err != nil {
		return nil, fmt.Errorf("%w: %s has %s, needs %s",
			settlement.ErrInsufficientFunds, req.Payer, b.balances[req.Payer], req.Amount)
	}
	b.balances[req.Payer] = remaining

	hold := &settlement.Hold{ID: id.NewHoldID(), Request: req, PreparedAt: time.Now().UTC()}
	b.holds[hold.ID.String()] = hold

	b.logger.Debug("hold prepared", "hold_id", hold.ID.String(), "payer", req.Payer.String(), "amount", req.Amount.String())
	return hold, nil
}

// Execute credits the recipient from the hold. A frozen recipient leaves the
// hold open so the caller can abort it.
func (b *Bank) Execute(_ context.Context, hold *settlement.Hold) (*settlement.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if hold == nil || b.holds[hold.ID.String()] == nil {
		return nil, settlement.ErrUnknownHold
	}
	to := hold.Request.Recipient
	if b.frozen[to] {
		return nil, fmt.Errorf("%w: recipient %s", settlement.ErrAccountFrozen, to)
	}

	b.balances[to] = b.balances[to].Add(hold.Request.Amount)
	delete(b.holds, hold.ID.String())

	b.logger.Debug("hold executed", "hold_id", hold.ID.String(), "recipient", to.String())
	return &settlement.Receipt{ID: id.NewReceiptID(), HoldID: hold.ID, SettledAt: time.Now().UTC()}, nil
}

// Abort refunds the hold to the payer.
func (b *Bank) Abort(_ context.Context, hold *settlement.Hold) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if hold == nil || b.holds[hold.ID.String()] == nil {
		return settlement.ErrUnknownHold
	}
	from := hold.Request.Payer
	b.balances[from] = b.balances[from].Add(hold.Request.Amount)
	delete(b.holds, hold.ID.String())

	b.logger.Debug("hold aborted", "hold_id", hold.ID.String(), "payer", from.String())
	return nil
}
