package cli_test

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tally"
	"github.com/xraph/tally/account"
	"github.com/xraph/tally/api"
	"github.com/xraph/tally/internal/cli"
	"github.com/xraph/tally/store/memory"
	"github.com/xraph/tally/types"
)

var (
	alice = account.MustParse("0x5fbdb2315678afecb367f032d93f642f64180aa3")
	bob   = account.MustParse("0x70997970c51812dc3a010c7d01b50e0d17dc79c8")
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := cli.NewRootCmdForTest()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func newServer(t *testing.T) (*tally.Ledger, string) {
	t.Helper()
	l := tally.New(memory.New())
	require.NoError(t, l.Start(context.Background()))
	t.Cleanup(func() { _ = l.Stop() })
	srv := httptest.NewServer(api.NewHandler(l).Router())
	t.Cleanup(srv.Close)
	return l, srv.URL
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "tally dev")
}

func TestInvoiceCommands(t *testing.T) {
	l, url := newServer(t)

	out, err := execute(t, "", "invoice", "create", "--server", url,
		"--recipient", alice.String(), "--amount", "1.5", "--description", "audit")
	require.NoError(t, err)
	assert.Contains(t, out, "invoice created, id 0")

	inv, err := l.GetInvoice(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, "1500000000000000000", inv.Amount.String())

	out, err = execute(t, "", "invoice", "pay", "0", "--server", url,
		"--payer", bob.String(), "--amount", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "invoice 0 paid")

	out, err = execute(t, "", "invoice", "get", "0", "--server", url)
	require.NoError(t, err)
	assert.Contains(t, out, "Invoice #0")
	assert.Contains(t, out, "PAID")
	assert.Contains(t, out, "Overpaid")
	assert.Contains(t, out, "0.5 ETH")

	out, err = execute(t, "", "invoice", "list", "--server", url, "--unit", "wei", "--paid")
	require.NoError(t, err)
	assert.Contains(t, out, "1500000000000000000 wei")
}

func TestInvoicePayErrors(t *testing.T) {
	l, url := newServer(t)
	_, err := l.CreateInvoice(context.Background(), alice, "", types.NewAmount(10))
	require.NoError(t, err)

	_, err = execute(t, "", "invoice", "pay", "5", "--server", url,
		"--payer", bob.String(), "--amount", "1", "--unit", "wei")
	assert.ErrorIs(t, err, tally.ErrInvoiceNotFound)

	_, err = execute(t, "", "invoice", "pay", "0", "--server", url,
		"--payer", bob.String(), "--amount", "9", "--unit", "wei")
	assert.ErrorIs(t, err, tally.ErrInsufficientPayment)

	_, err = execute(t, "", "invoice", "pay", "zero", "--server", url,
		"--payer", bob.String(), "--amount", "9")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a number")
}

func TestInvoiceCreateRejectsZeroRecipient(t *testing.T) {
	_, url := newServer(t)
	_, err := execute(t, "", "invoice", "create", "--server", url,
		"--recipient", account.Zero.String(), "--amount", "1")
	assert.ErrorIs(t, err, tally.ErrInvalidRecipient)
}

func TestSessionInProcess(t *testing.T) {
	script := strings.Join([]string{
		"create " + alice.String() + " 0.5 web hosting",
		"pay 7 1",
		"pay 0 0.4",
		"pay 0 0.5",
		"created",
		"paid",
		"bogus",
		"quit",
	}, "\n")

	out, err := execute(t, script, "session", "--as", bob.String())
	require.NoError(t, err)

	assert.Contains(t, out, "in-process ledger")
	assert.Contains(t, out, "invoice created, id 0")
	assert.Contains(t, out, "invoice not found, check the id: 7")
	assert.Contains(t, out, "not enough value")
	assert.Contains(t, out, "invoice 0 paid")
	assert.Contains(t, out, "web hosting")
	assert.Contains(t, out, `unknown command "bogus"`)
}

func TestSessionAgainstServer(t *testing.T) {
	l, url := newServer(t)

	script := "create " + alice.String() + " 100\npay 0 100\n"
	out, err := execute(t, script, "session", "--server", url, "--as", bob.String(), "--unit", "wei")
	require.NoError(t, err)
	assert.Contains(t, out, "invoice 0 paid")

	inv, err := l.GetInvoice(context.Background(), 0)
	require.NoError(t, err)
	assert.True(t, inv.Paid)
	assert.Equal(t, bob, inv.Payer)
}

func TestSessionRequiresIdentity(t *testing.T) {
	_, err := execute(t, "", "session")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "as")

	_, err = execute(t, "", "session", "--as", "0xnope")
	assert.ErrorIs(t, err, account.ErrInvalidAddress)
}
