package tally_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/xraph/tally"
	"github.com/xraph/tally/account"
	"github.com/xraph/tally/event"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/plugin"
	"github.com/xraph/tally/settlement"
	settlemem "github.com/xraph/tally/settlement/memory"
	"github.com/xraph/tally/store/memory"
	"github.com/xraph/tally/types"
)

var (
	alice = account.MustParse("0x5fbdb2315678afecb367f032d93f642f64180aa3")
	bob   = account.MustParse("0x70997970c51812dc3a010c7d01b50e0d17dc79c8")
	carol = account.MustParse("0x3c44cdddb6a900fa2b585dd299e03d12fa4293bc")

	oneEther = types.MustParseAmount("1000000000000000000")
)

func newLedger(t *testing.T, opts ...tally.Option) *tally.Ledger {
	t.Helper()
	l := tally.New(memory.New(), opts...)
	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = l.Stop() })
	return l
}

func mustCreate(t *testing.T, l *tally.Ledger, amount types.Amount) uint64 {
	t.Helper()
	invoiceID, err := l.CreateInvoice(context.Background(), alice, "invoice", amount)
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}
	return invoiceID
}

func TestInitialState(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()

	count, err := l.InvoiceCount(ctx)
	if err != nil {
		t.Fatalf("InvoiceCount: %v", err)
	}
	if count != 0 {
		t.Errorf("InvoiceCount() = %d, want 0", count)
	}
	if _, err := l.GetInvoice(ctx, 0); !errors.Is(err, tally.ErrInvoiceNotFound) || !tally.IsNotFound(err) {
		t.Errorf("GetInvoice(0) error = %v, want ErrInvoiceNotFound", err)
	}
}

func TestCreateInvoice(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()

	t.Run("RoundTrip", func(t *testing.T) {
		invoiceID, err := l.CreateInvoice(ctx, alice, "audit services", oneEther)
		if err != nil {
			t.Fatalf("CreateInvoice: %v", err)
		}
		if invoiceID != 0 {
			t.Errorf("first id = %d, want 0", invoiceID)
		}

		inv, err := l.GetInvoice(ctx, invoiceID)
		if err != nil {
			t.Fatalf("GetInvoice: %v", err)
		}
		if inv.ID != 0 || inv.Recipient != alice || inv.Description != "audit services" {
			t.Errorf("unexpected invoice: %+v", inv)
		}
		if !inv.Amount.Equal(oneEther) {
			t.Errorf("Amount = %s, want %s", inv.Amount, oneEther)
		}
		if inv.Paid {
			t.Error("new invoice should be unpaid")
		}
	})

	t.Run("MonotonicIDs", func(t *testing.T) {
		for want := uint64(1); want <= 5; want++ {
			got := mustCreate(t, l, types.NewAmount(want))
			if got != want {
				t.Fatalf("id = %d, want %d", got, want)
			}
			count, err := l.InvoiceCount(ctx)
			if err != nil {
				t.Fatalf("InvoiceCount: %v", err)
			}
			if count != want+1 {
				t.Errorf("InvoiceCount() = %d, want %d", count, want+1)
			}
		}
	})

	t.Run("ZeroAmountAndEmptyDescription", func(t *testing.T) {
		invoiceID, err := l.CreateInvoice(ctx, bob, "", types.ZeroAmount)
		if err != nil {
			t.Fatalf("CreateInvoice: %v", err)
		}
		inv, err := l.GetInvoice(ctx, invoiceID)
		if err != nil {
			t.Fatalf("GetInvoice: %v", err)
		}
		if inv.Description != "" || !inv.Amount.IsZero() {
			t.Errorf("unexpected invoice: %+v", inv)
		}
	})
}

func TestGetInvoiceReturnsCopy(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	invoiceID := mustCreate(t, l, oneEther)

	inv, err := l.GetInvoice(ctx, invoiceID)
	if err != nil {
		t.Fatalf("GetInvoice: %v", err)
	}
	inv.Paid = true
	inv.Description = "tampered"

	again, err := l.GetInvoice(ctx, invoiceID)
	if err != nil {
		t.Fatalf("GetInvoice: %v", err)
	}
	if again.Paid || again.Description != "invoice" {
		t.Errorf("stored invoice changed through a copy: %+v", again)
	}
}

func TestPayInvoice(t *testing.T) {
	ctx := context.Background()

	t.Run("ExactPayment", func(t *testing.T) {
		l := newLedger(t)
		invoiceID := mustCreate(t, l, oneEther)

		if err := l.PayInvoice(ctx, invoiceID, bob, oneEther); err != nil {
			t.Fatalf("PayInvoice: %v", err)
		}
		inv, err := l.GetInvoice(ctx, invoiceID)
		if err != nil {
			t.Fatalf("GetInvoice: %v", err)
		}
		if !inv.Paid || inv.Payer != bob || !inv.AmountPaid.Equal(oneEther) {
			t.Errorf("unexpected invoice after payment: %+v", inv)
		}
		if inv.PaymentID.IsNil() || inv.PaidAt == nil {
			t.Error("payment id and time should be recorded")
		}
	})

	t.Run("Overpayment", func(t *testing.T) {
		l := newLedger(t)
		invoiceID := mustCreate(t, l, types.NewAmount(100))

		if err := l.PayInvoice(ctx, invoiceID, bob, types.NewAmount(150)); err != nil {
			t.Fatalf("PayInvoice: %v", err)
		}
		inv, err := l.GetInvoice(ctx, invoiceID)
		if err != nil {
			t.Fatalf("GetInvoice: %v", err)
		}
		if !inv.Overpayment().Equal(types.NewAmount(50)) {
			t.Errorf("Overpayment() = %s, want 50", inv.Overpayment())
		}
	})

	t.Run("PayerMayBeRecipient", func(t *testing.T) {
		l := newLedger(t)
		invoiceID := mustCreate(t, l, types.NewAmount(1))
		if err := l.PayInvoice(ctx, invoiceID, alice, types.NewAmount(1)); err != nil {
			t.Fatalf("PayInvoice: %v", err)
		}
	})

	t.Run("Rejections", func(t *testing.T) {
		l := newLedger(t)
		unpaid := mustCreate(t, l, oneEther)
		paid := mustCreate(t, l, oneEther)
		if err := l.PayInvoice(ctx, paid, bob, oneEther); err != nil {
			t.Fatalf("PayInvoice: %v", err)
		}

		tests := []struct {
			name    string
			id      uint64
			value   types.Amount
			wantErr error
		}{
			{"Nonexistent", 99, oneEther, tally.ErrInvoiceNotFound},
			{"NextID", 2, oneEther, tally.ErrInvoiceNotFound},
			{"AlreadyPaid", paid, oneEther, tally.ErrInvoiceAlreadyPaid},
			{"AlreadyPaidBeatsUnderpayment", paid, types.NewAmount(1), tally.ErrInvoiceAlreadyPaid},
			{"Underpayment", unpaid, types.MustParseAmount("999999999999999999"), tally.ErrInsufficientPayment},
			{"ZeroValue", unpaid, types.ZeroAmount, tally.ErrInsufficientPayment},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				err := l.PayInvoice(ctx, tt.id, carol, tt.value)
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("PayInvoice() error = %v, want %v", err, tt.wantErr)
				}
				if !tally.IsPaymentRejected(err) {
					t.Errorf("IsPaymentRejected(%v) = false", err)
				}
			})
		}

		inv, err := l.GetInvoice(ctx, unpaid)
		if err != nil {
			t.Fatalf("GetInvoice: %v", err)
		}
		if inv.Paid {
			t.Error("rejected payments must not change state")
		}
	})
}

func TestEventsOnePerSuccess(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()

	invoiceID := mustCreate(t, l, oneEther)
	_ = l.PayInvoice(ctx, invoiceID, bob, types.NewAmount(1)) // rejected
	if err := l.PayInvoice(ctx, invoiceID, bob, oneEther); err != nil {
		t.Fatalf("PayInvoice: %v", err)
	}
	_ = l.PayInvoice(ctx, invoiceID, carol, oneEther) // rejected

	records, err := l.Events(ctx, 0, 0)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}

	created, ok := records[0].Created()
	if !ok {
		t.Fatalf("first record kind = %s", records[0].Kind)
	}
	if created.ID != invoiceID || created.Recipient != alice || !created.Amount.Equal(oneEther) || created.Description != "invoice" {
		t.Errorf("unexpected InvoiceCreated: %+v", created)
	}

	paid, ok := records[1].Paid()
	if !ok {
		t.Fatalf("second record kind = %s", records[1].Kind)
	}
	if paid.InvoiceID != invoiceID || paid.Payer != bob || !paid.AmountPaid.Equal(oneEther) {
		t.Errorf("unexpected InvoicePaid: %+v", paid)
	}

	if err := l.VerifyEvents(); err != nil {
		t.Errorf("VerifyEvents: %v", err)
	}
}

func TestConcurrentPayersExactlyOneWins(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	invoiceID := mustCreate(t, l, oneEther)

	const payers = 16
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		wins     int
		conflict int
	)
	for i := range payers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			payer := account.Address{byte(i + 1)}
			err := l.PayInvoice(ctx, invoiceID, payer, oneEther)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, tally.ErrInvoiceAlreadyPaid):
				conflict++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if wins != 1 || conflict != payers-1 {
		t.Errorf("wins=%d conflicts=%d, want 1/%d", wins, conflict, payers-1)
	}
	records, _ := l.Events(ctx, 0, 0)
	if len(records) != 2 {
		t.Errorf("got %d records, want 2", len(records))
	}
}

func TestConcurrentCreatesAreDense(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()

	const creators = 32
	ids := make(chan uint64, creators)
	var wg sync.WaitGroup
	for range creators {
		wg.Add(1)
		go func() {
			defer wg.Done()
			invoiceID, err := l.CreateInvoice(ctx, alice, "", types.NewAmount(1))
			if err != nil {
				t.Errorf("CreateInvoice: %v", err)
				return
			}
			ids <- invoiceID
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[uint64]bool)
	for invoiceID := range ids {
		if seen[invoiceID] {
			t.Errorf("duplicate id %d", invoiceID)
		}
		seen[invoiceID] = true
	}
	for want := range uint64(creators) {
		if !seen[want] {
			t.Errorf("missing id %d", want)
		}
	}
}

func TestAtomicityUnderFailedTransfer(t *testing.T) {
	ctx := context.Background()
	bank := settlemem.New()
	bank.Deposit(bob, oneEther)
	bank.Freeze(alice)

	l := newLedger(t, tally.WithSettler(bank))
	invoiceID := mustCreate(t, l, oneEther)

	err := l.PayInvoice(ctx, invoiceID, bob, oneEther)
	if !errors.Is(err, tally.ErrTransferFailed) {
		t.Fatalf("PayInvoice() error = %v, want ErrTransferFailed", err)
	}
	if !errors.Is(err, settlement.ErrAccountFrozen) {
		t.Errorf("error should carry the settlement cause: %v", err)
	}
	if !tally.IsRetryable(err) {
		t.Error("transfer failures should be retryable")
	}

	inv, err := l.GetInvoice(ctx, invoiceID)
	if err != nil {
		t.Fatalf("GetInvoice: %v", err)
	}
	if inv.Paid || !inv.PaymentID.IsNil() {
		t.Errorf("invoice should be unpaid after rollback: %+v", inv)
	}
	if !bank.Balance(bob).Equal(oneEther) {
		t.Errorf("payer balance = %s, want %s", bank.Balance(bob), oneEther)
	}
	if !bank.Balance(alice).IsZero() {
		t.Errorf("recipient balance = %s, want 0", bank.Balance(alice))
	}
	if bank.OpenHolds() != 0 {
		t.Errorf("open holds = %d, want 0", bank.OpenHolds())
	}
	records, _ := l.Events(ctx, 0, 0)
	if len(records) != 1 {
		t.Errorf("got %d records, want only InvoiceCreated", len(records))
	}

	// The same invoice can be paid once the recipient is reachable again.
	bank.Unfreeze(alice)
	if err := l.PayInvoice(ctx, invoiceID, bob, oneEther); err != nil {
		t.Fatalf("PayInvoice after unfreeze: %v", err)
	}
	if !bank.Balance(alice).Equal(oneEther) || !bank.Balance(bob).IsZero() {
		t.Errorf("balances after payment: alice=%s bob=%s", bank.Balance(alice), bank.Balance(bob))
	}
}

// ctxStore fails writes once their context is done, like the SQL stores.
type ctxStore struct {
	*memory.Store
}

func (s ctxStore) RevertInvoicePayment(ctx context.Context, invoiceID uint64, paymentID id.PaymentID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Store.RevertInvoicePayment(ctx, invoiceID, paymentID)
}

// cancellingSettler cancels the caller's context during Execute and reports
// the cancellation, as a transfer cut short by a client disconnect would.
type cancellingSettler struct {
	settlement.Direct
	cancel  context.CancelFunc
	aborted []context.Context
}

func (s *cancellingSettler) Execute(ctx context.Context, hold *settlement.Hold) (*settlement.Receipt, error) {
	if s.cancel == nil {
		return s.Direct.Execute(ctx, hold)
	}
	s.cancel()
	return nil, ctx.Err()
}

func (s *cancellingSettler) Abort(ctx context.Context, _ *settlement.Hold) error {
	s.aborted = append(s.aborted, ctx)
	return ctx.Err()
}

func TestRollbackSurvivesCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	settler := &cancellingSettler{cancel: cancel}

	l := tally.New(ctxStore{memory.New()}, tally.WithSettler(settler))
	invoiceID, err := l.CreateInvoice(ctx, alice, "", oneEther)
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}

	err = l.PayInvoice(ctx, invoiceID, bob, oneEther)
	if !errors.Is(err, tally.ErrTransferFailed) || !errors.Is(err, context.Canceled) {
		t.Fatalf("PayInvoice() error = %v, want ErrTransferFailed wrapping context.Canceled", err)
	}
	if errors.Is(err, tally.ErrPaymentNotFound) {
		t.Errorf("rollback should have found the payment: %v", err)
	}
	if len(settler.aborted) != 1 || settler.aborted[0].Err() != nil {
		t.Errorf("hold should be aborted once on a live context, got %d aborts", len(settler.aborted))
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
	if err := l.PayInvoice(bg, invoiceID, bob, oneEther); err != nil {
		t.Errorf("invoice should stay payable after the rollback: %v", err)
	}
}

// plainRecorder counts every record delivered to OnEvent.
type plainRecorder struct {
	mu      sync.Mutex
	records []event.Record
}

func (*plainRecorder) Name() string { return "plain-recorder" }

func (p *plainRecorder) OnEvent(_ context.Context, rec event.Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = append(p.records, rec)
	return nil
}

func TestNoEmissionWithoutRecord(t *testing.T) {
	ctx := context.Background()
	log := event.NewLog()
	log.Close()
	rec := &plainRecorder{}
	l := newLedger(t, tally.WithEventLog(log), tally.WithPlugin(rec))

	invoiceID, err := l.CreateInvoice(ctx, alice, "", oneEther)
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}
	if err := l.PayInvoice(ctx, invoiceID, bob, oneEther); err != nil {
		t.Fatalf("PayInvoice: %v", err)
	}

	inv, err := l.GetInvoice(ctx, invoiceID)
	if err != nil || !inv.Paid {
		t.Fatalf("GetInvoice = %+v, %v; want paid", inv, err)
	}
	if len(rec.records) != 0 {
		t.Errorf("plugins got %d records from a closed log, want 0", len(rec.records))
	}
}

func TestStopEndsSubscriptions(t *testing.T) {
	l := tally.New(memory.New())
	ch, cancel := l.Subscribe(1)
	defer cancel()

	if err := l.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if _, open := <-ch; open {
		t.Error("subscription should end when the ledger stops")
	}
}

func TestInsufficientFundsIsTransferFailure(t *testing.T) {
	bank := settlemem.New()
	l := newLedger(t, tally.WithSettler(bank))
	invoiceID := mustCreate(t, l, oneEther)

	err := l.PayInvoice(context.Background(), invoiceID, bob, oneEther)
	if !errors.Is(err, tally.ErrTransferFailed) || !errors.Is(err, settlement.ErrInsufficientFunds) {
		t.Fatalf("PayInvoice() error = %v", err)
	}
}

func TestCountLoadsFromStore(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	first := tally.New(s)
	for range 3 {
		if _, err := first.CreateInvoice(ctx, alice, "", types.NewAmount(1)); err != nil {
			t.Fatalf("CreateInvoice: %v", err)
		}
	}

	second := tally.New(s)
	count, err := second.InvoiceCount(ctx)
	if err != nil {
		t.Fatalf("InvoiceCount: %v", err)
	}
	if count != 3 {
		t.Errorf("InvoiceCount() = %d, want 3", count)
	}
	invoiceID, err := second.CreateInvoice(ctx, alice, "", types.NewAmount(1))
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}
	if invoiceID != 3 {
		t.Errorf("next id = %d, want 3", invoiceID)
	}
}

func TestStoreClosed(t *testing.T) {
	ctx := context.Background()
	l := tally.New(memory.New())
	if err := l.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := l.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if _, err := l.CreateInvoice(ctx, alice, "", oneEther); !errors.Is(err, tally.ErrStoreClosed) {
		t.Errorf("CreateInvoice after Stop error = %v, want ErrStoreClosed", err)
	}
	count, _ := l.InvoiceCount(ctx)
	if count != 0 {
		t.Errorf("failed create must not advance the count, got %d", count)
	}
}

type hookRecorder struct {
	mu       sync.Mutex
	created  []event.InvoiceCreated
	paid     []event.InvoicePaid
	rejected []plugin.Rejection
	ops      []string
}

func (*hookRecorder) Name() string { return "hook-recorder" }

func (h *hookRecorder) OnInvoiceCreated(_ context.Context, e event.InvoiceCreated) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.created = append(h.created, e)
	return nil
}

func (h *hookRecorder) OnInvoicePaid(_ context.Context, e event.InvoicePaid) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.paid = append(h.paid, e)
	return nil
}

func (h *hookRecorder) OnPaymentRejected(_ context.Context, r plugin.Rejection) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rejected = append(h.rejected, r)
	return nil
}

func (h *hookRecorder) OnOperation(_ context.Context, op plugin.Operation) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ops = append(h.ops, op.Name)
	return nil
}

func TestPluginHooks(t *testing.T) {
	ctx := context.Background()
	hooks := &hookRecorder{}
	l := newLedger(t, tally.WithPlugin(hooks))

	invoiceID := mustCreate(t, l, oneEther)
	_ = l.PayInvoice(ctx, invoiceID, bob, types.NewAmount(1))
	if err := l.PayInvoice(ctx, invoiceID, bob, oneEther); err != nil {
		t.Fatalf("PayInvoice: %v", err)
	}

	if len(hooks.created) != 1 || len(hooks.paid) != 1 {
		t.Errorf("created=%d paid=%d, want 1/1", len(hooks.created), len(hooks.paid))
	}
	if len(hooks.rejected) != 1 || !errors.Is(hooks.rejected[0].Err, tally.ErrInsufficientPayment) {
		t.Errorf("rejected = %+v", hooks.rejected)
	}
	if len(hooks.ops) != 3 {
		t.Errorf("ops = %v, want 3 entries", hooks.ops)
	}
}

func TestSubscribe(t *testing.T) {
	l := newLedger(t)
	ch, cancel := l.Subscribe(4)
	defer cancel()

	invoiceID := mustCreate(t, l, oneEther)
	rec := <-ch
	created, ok := rec.Created()
	if !ok || created.ID != invoiceID {
		t.Errorf("unexpected record: %+v", rec)
	}
}
