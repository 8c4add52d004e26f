package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"

	"github.com/xraph/tally"
	"github.com/xraph/tally/account"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/invoice"
	"github.com/xraph/tally/settlement"
	"github.com/xraph/tally/store/sqlite"
	"github.com/xraph/tally/types"
)

var (
	alice = account.MustParse("0x70997970c51812dc3a010c7d01b50e0d17dc79c8")
	bob   = account.MustParse("0x3c44cdddb6a900fa2b585dd299e03d12fa4293bc")
)

func openDB(t *testing.T, path string) *grove.DB {
	t.Helper()
	drv := sqlitedriver.New()
	if err := drv.Open(context.Background(), path); err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db, err := grove.Open(drv)
	if err != nil {
		t.Fatalf("grove.Open: %v", err)
	}
	return db
}

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s := sqlite.New(openDB(t, filepath.Join(t.TempDir(), "tally.db")))
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seed(t *testing.T, s *sqlite.Store, n int) {
	t.Helper()
	for i := range n {
		inv := &invoice.Invoice{
			Entity:      types.NewEntity(),
			ID:          uint64(i), //nolint:gosec // small test index
			Recipient:   alice,
			Description: "hosting",
			Amount:      types.NewAmount(uint64(100 * (i + 1))), //nolint:gosec // small test index
		}
		if err := s.CreateInvoice(context.Background(), inv); err != nil {
			t.Fatalf("CreateInvoice(%d): %v", i, err)
		}
	}
}

func TestMigrateTwice(t *testing.T) {
	s := newStore(t)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	big := types.MustParseAmount("123456789012345678901234567890")
	inv := &invoice.Invoice{
		Entity:      types.NewEntity(),
		ID:          0,
		Recipient:   alice,
		Description: "audit, phase 1",
		Amount:      big,
	}
	if err := s.CreateInvoice(ctx, inv); err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}

	got, err := s.GetInvoice(ctx, 0)
	if err != nil {
		t.Fatalf("GetInvoice: %v", err)
	}
	if got.Recipient != alice || got.Description != "audit, phase 1" || !got.Amount.Equal(big) {
		t.Errorf("GetInvoice = %+v", got)
	}
	if got.Paid || got.PaidAt != nil || !got.Payer.IsZero() {
		t.Errorf("new invoice should be unpaid: %+v", got)
	}
	if !got.CreatedAt.Equal(inv.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, inv.CreatedAt)
	}

	if _, err := s.GetInvoice(ctx, 1); !errors.Is(err, tally.ErrInvoiceNotFound) {
		t.Errorf("GetInvoice(1): expected ErrInvoiceNotFound, got %v", err)
	}
	n, err := s.CountInvoices(ctx)
	if err != nil || n != 1 {
		t.Errorf("CountInvoices = %d, %v; want 1", n, err)
	}
}

func TestMarkPaidOnceAndRevert(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	seed(t, s, 1)

	paidAt := time.Now().UTC().Truncate(time.Microsecond)
	p := invoice.Payment{ID: id.NewPaymentID(), Payer: bob, Amount: types.NewAmount(150), PaidAt: paidAt}
	if err := s.MarkInvoicePaid(ctx, 0, p); err != nil {
		t.Fatalf("MarkInvoicePaid: %v", err)
	}
	if err := s.MarkInvoicePaid(ctx, 0, p); !errors.Is(err, tally.ErrInvoiceAlreadyPaid) {
		t.Errorf("second mark: expected ErrInvoiceAlreadyPaid, got %v", err)
	}
	if err := s.MarkInvoicePaid(ctx, 4, p); !errors.Is(err, tally.ErrInvoiceNotFound) {
		t.Errorf("missing: expected ErrInvoiceNotFound, got %v", err)
	}

	inv, err := s.GetInvoice(ctx, 0)
	if err != nil {
		t.Fatalf("GetInvoice: %v", err)
	}
	if !inv.Paid || inv.Payer != bob || !inv.AmountPaid.Equal(types.NewAmount(150)) {
		t.Errorf("invoice not marked: %+v", inv)
	}
	if inv.PaidAt == nil || !inv.PaidAt.Equal(paidAt) {
		t.Errorf("PaidAt = %v, want %v", inv.PaidAt, paidAt)
	}
	if inv.PaymentID.String() != p.ID.String() {
		t.Errorf("PaymentID = %q, want %q", inv.PaymentID, p.ID)
	}

	if err := s.RevertInvoicePayment(ctx, 0, id.NewPaymentID()); !errors.Is(err, tally.ErrPaymentNotFound) {
		t.Errorf("foreign payment: expected ErrPaymentNotFound, got %v", err)
	}
	if err := s.RevertInvoicePayment(ctx, 0, p.ID); err != nil {
		t.Fatalf("RevertInvoicePayment: %v", err)
	}
	inv, err = s.GetInvoice(ctx, 0)
	if err != nil {
		t.Fatalf("GetInvoice: %v", err)
	}
	if inv.Paid || inv.PaidAt != nil || !inv.PaymentID.IsNil() {
		t.Errorf("invoice not reverted: %+v", inv)
	}
}

func TestListInvoices(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	seed(t, s, 4)

	p := invoice.Payment{ID: id.NewPaymentID(), Payer: bob, Amount: types.NewAmount(300), PaidAt: time.Now().UTC()}
	if err := s.MarkInvoicePaid(ctx, 2, p); err != nil {
		t.Fatalf("MarkInvoicePaid: %v", err)
	}

	tests := []struct {
		name    string
		opts    invoice.ListOpts
		wantIDs []uint64
	}{
		{"all", invoice.ListOpts{}, []uint64{0, 1, 2, 3}},
		{"paid", invoice.ListOpts{Status: invoice.StatusPaid}, []uint64{2}},
		{"open", invoice.ListOpts{Status: invoice.StatusCreated}, []uint64{0, 1, 3}},
		{"page", invoice.ListOpts{Limit: 2, Offset: 1}, []uint64{1, 2}},
		{"by payer", invoice.ListOpts{Payer: bob}, []uint64{2}},
		{"other recipient", invoice.ListOpts{Recipient: bob}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListInvoices(ctx, tt.opts)
			if err != nil {
				t.Fatalf("ListInvoices: %v", err)
			}
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("len: got %d, want %d", len(got), len(tt.wantIDs))
			}
			for i, inv := range got {
				if inv.ID != tt.wantIDs[i] {
					t.Errorf("position %d: got id %d, want %d", i, inv.ID, tt.wantIDs[i])
				}
			}
		})
	}
}

func TestLedgerOnSQLite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tally.db")

	l := tally.New(sqlite.New(openDB(t, path)))
	if err := l.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	for i := range 2 {
		invoiceID, err := l.CreateInvoice(ctx, alice, "", types.NewAmount(10))
		if err != nil {
			t.Fatalf("CreateInvoice: %v", err)
		}
		if invoiceID != uint64(i) { //nolint:gosec // small test index
			t.Errorf("id = %d, want %d", invoiceID, i)
		}
	}
	if err := l.PayInvoice(ctx, 0, bob, types.NewAmount(12)); err != nil {
		t.Fatalf("PayInvoice: %v", err)
	}
	if err := l.PayInvoice(ctx, 0, bob, types.NewAmount(12)); !errors.Is(err, tally.ErrInvoiceAlreadyPaid) {
		t.Errorf("second PayInvoice: expected ErrInvoiceAlreadyPaid, got %v", err)
	}
	if err := l.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	// A new ledger on the same file continues the numbering.
	again := tally.New(sqlite.New(openDB(t, path)))
	if err := again.Start(ctx); err != nil {
		t.Fatalf("Start again: %v", err)
	}
	t.Cleanup(func() { _ = again.Stop() })

	count, err := again.InvoiceCount(ctx)
	if err != nil || count != 2 {
		t.Fatalf("InvoiceCount = %d, %v; want 2", count, err)
	}
	inv, err := again.GetInvoice(ctx, 0)
	if err != nil {
		t.Fatalf("GetInvoice: %v", err)
	}
	if !inv.Paid || inv.Payer != bob || !inv.AmountPaid.Equal(types.NewAmount(12)) {
		t.Errorf("paid invoice after restart = %+v", inv)
	}
	invoiceID, err := again.CreateInvoice(ctx, alice, "", types.NewAmount(1))
	if err != nil || invoiceID != 2 {
		t.Errorf("CreateInvoice after restart = %d, %v; want 2", invoiceID, err)
	}
}

// cancellingSettler cancels the payment's context while forwarding value,
// then fails with the cancellation.
type cancellingSettler struct {
	settlement.Direct
	cancel context.CancelFunc
}

func (s *cancellingSettler) Execute(ctx context.Context, hold *settlement.Hold) (*settlement.Receipt, error) {
	if s.cancel == nil {
		return s.Direct.Execute(ctx, hold)
	}
	s.cancel()
	return nil, ctx.Err()
}

func TestCancelledTransferRollsBack(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	settler := &cancellingSettler{cancel: cancel}

	l := tally.New(sqlite.New(openDB(t, filepath.Join(t.TempDir(), "tally.db"))), tally.WithSettler(settler))
	if err := l.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = l.Stop() })

	invoiceID, err := l.CreateInvoice(ctx, alice, "", types.NewAmount(10))
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}

	err = l.PayInvoice(ctx, invoiceID, bob, types.NewAmount(10))
	if !errors.Is(err, tally.ErrTransferFailed) {
		t.Fatalf("PayInvoice() error = %v, want ErrTransferFailed", err)
	}
	if errors.Is(err, tally.ErrPaymentNotFound) {
		t.Errorf("rollback did not reach the stored payment: %v", err)
	}

	bg := context.Background()
	inv, err := l.GetInvoice(bg, invoiceID)
	if err != nil {
		t.Fatalf("GetInvoice: %v", err)
	}
	if inv.Paid {
		t.Fatal("invoice left paid although the transfer failed")
	}

	settler.cancel = nil
	if err := l.PayInvoice(bg, invoiceID, bob, types.NewAmount(10)); err != nil {
		t.Errorf("PayInvoice after rollback: %v", err)
	}
}
