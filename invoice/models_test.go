package invoice_test

import (
	"testing"
	"time"

	"github.com/xraph/tally/account"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/invoice"
	"github.com/xraph/tally/types"
)

var (
	alice = account.MustParse("0x70997970c51812dc3a010c7d01b50e0d17dc79c8")
	bob   = account.MustParse("0x3c44cdddb6a900fa2b585dd299e03d12fa4293bc")
)

func TestStatus(t *testing.T) {
	inv := invoice.Invoice{ID: 0, Recipient: alice, Amount: types.NewAmount(100)}
	if got := inv.Status(); got != invoice.StatusCreated {
		t.Errorf("Status: got %s, want %s", got, invoice.StatusCreated)
	}

	paid := invoice.Payment{ID: id.NewPaymentID(), Payer: bob, Amount: types.NewAmount(150), PaidAt: time.Now()}.Apply(inv)
	if got := paid.Status(); got != invoice.StatusPaid {
		t.Errorf("Status: got %s, want %s", got, invoice.StatusPaid)
	}
	if inv.Paid {
		t.Error("Apply mutated the original invoice")
	}
	if paid.Payer != bob {
		t.Errorf("Payer: got %s, want %s", paid.Payer, bob)
	}
	if paid.PaidAt == nil {
		t.Fatal("PaidAt not set")
	}
}

func TestOverpayment(t *testing.T) {
	inv := invoice.Invoice{Recipient: alice, Amount: types.NewAmount(100)}
	if got := inv.Overpayment(); !got.IsZero() {
		t.Errorf("unpaid overpayment: got %s, want 0", got)
	}

	paid := invoice.Payment{Payer: bob, Amount: types.NewAmount(130), PaidAt: time.Now()}.Apply(inv)
	if got := paid.Overpayment(); !got.Equal(types.NewAmount(30)) {
		t.Errorf("overpayment: got %s, want 30", got)
	}
}

func TestListOptsMatches(t *testing.T) {
	open := &invoice.Invoice{ID: 0, Recipient: alice, Amount: types.NewAmount(1)}
	settled := invoice.Payment{Payer: bob, Amount: types.NewAmount(1), PaidAt: time.Now()}.Apply(invoice.Invoice{ID: 1, Recipient: bob, Amount: types.NewAmount(1)})

	tests := []struct {
		name string
		opts invoice.ListOpts
		inv  *invoice.Invoice
		want bool
	}{
		{"no filter", invoice.ListOpts{}, open, true},
		{"status created", invoice.ListOpts{Status: invoice.StatusCreated}, open, true},
		{"status paid excludes open", invoice.ListOpts{Status: invoice.StatusPaid}, open, false},
		{"status paid", invoice.ListOpts{Status: invoice.StatusPaid}, &settled, true},
		{"recipient", invoice.ListOpts{Recipient: alice}, open, true},
		{"other recipient", invoice.ListOpts{Recipient: bob}, open, false},
		{"payer", invoice.ListOpts{Payer: bob}, &settled, true},
		{"payer on unpaid", invoice.ListOpts{Payer: bob}, open, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.opts.Matches(tt.inv); got != tt.want {
				t.Errorf("Matches: got %v, want %v", got, tt.want)
			}
		})
	}
}
