package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xraph/tally"
	"github.com/xraph/tally/account"
	"github.com/xraph/tally/api"
	"github.com/xraph/tally/client"
	"github.com/xraph/tally/internal/config"
	"github.com/xraph/tally/store/memory"
)

const sessionHelp = `commands:
  create <recipient> <amount> [description...]   bill recipient
  pay <id> <amount>                              pay an invoice you created
  created                                        invoices created in this session
  paid                                           invoices paid in this session
  sync                                           read new ledger events
  whoami                                         show the session identity
  help                                           show this help
  quit                                           leave the session`

func newSessionCmd() *cobra.Command {
	var (
		serverURL string
		identity  string
		unitName  string
	)

	cmd := &cobra.Command{
		Use:   "session",
		Short: "Open an interactive billing session",
		Long: "Open an interactive session acting as one address. Without --server the " +
			"session runs against a private in-process ledger.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			addr, err := account.Parse(identity)
			if err != nil {
				return fmt.Errorf("--as: %w", err)
			}
			unit, err := config.Config{Unit: unitName}.ParseUnit()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			logger := slog.New(slog.DiscardHandler)

			var ledger client.Ledger
			if serverURL != "" {
				ledger = api.NewClient(serverURL)
			} else {
				local := tally.New(memory.New(), tally.WithLogger(logger))
				if err := local.Start(ctx); err != nil {
					return err
				}
				defer func() { _ = local.Stop() }()
				ledger = local
				fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render("no --server given, using an in-process ledger"))
			}

			sess, err := client.New(ledger, addr, client.WithUnit(unit), client.WithLogger(logger))
			if err != nil {
				return err
			}
			if err := sess.Sync(ctx); err != nil {
				return fmt.Errorf("initial sync: %w", err)
			}
			return runREPL(ctx, sess, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "", "Base URL of a tally server")
	cmd.Flags().StringVar(&identity, "as", "", "Address the session acts as")
	cmd.Flags().StringVar(&unitName, "unit", "ETH", "Unit for entered amounts (ETH, gwei, wei)")
	_ = cmd.MarkFlagRequired("as")

	return cmd
}

// runREPL reads commands from in until EOF or quit.
func runREPL(ctx context.Context, sess *client.Session, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, titleStyle.Render("tally session")+" "+dimStyle.Render(sess.Identity().String()))
	fmt.Fprintln(out, dimStyle.Render(`type "help" for commands`))

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "tally> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		done, err := dispatch(ctx, sess, fields, out)
		if err != nil {
			fmt.Fprintln(out, renderErr(err))
		}
		if done {
			return nil
		}
	}
}

func dispatch(ctx context.Context, sess *client.Session, fields []string, out io.Writer) (bool, error) {
	unit := sess.Unit()
	switch cmd, args := fields[0], fields[1:]; cmd {
	case "create":
		if len(args) < 2 {
			return false, errors.New("usage: create <recipient> <amount> [description...]")
		}
		recipient, err := account.Parse(args[0])
		if err != nil {
			return false, err
		}
		if recipient.IsZero() {
			return false, tally.ErrInvalidRecipient
		}
		amount, err := sess.ParseAmount(args[1])
		if err != nil {
			return false, err
		}
		invoiceID, err := sess.CreateInvoice(ctx, recipient, strings.Join(args[2:], " "), amount)
		if err != nil {
			return false, err
		}
		fmt.Fprintln(out, renderOK(fmt.Sprintf("invoice created, id %d", invoiceID)))

	case "pay":
		if len(args) != 2 {
			return false, errors.New("usage: pay <id> <amount>")
		}
		invoiceID, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return false, fmt.Errorf("invoice id %q is not a number", args[0])
		}
		value, err := sess.ParseAmount(args[1])
		if err != nil {
			return false, err
		}
		if err := sess.PayInvoice(ctx, invoiceID, value); err != nil {
			return false, err
		}
		fmt.Fprintln(out, renderOK(fmt.Sprintf("invoice %d paid", invoiceID)))

	case "created":
		fmt.Fprintln(out, renderEntries("Created invoices", sess.Created(), unit, false))

	case "paid":
		fmt.Fprintln(out, renderEntries("Paid invoices", sess.Paid(), unit, true))

	case "sync":
		if err := sess.Sync(ctx); err != nil {
			return false, err
		}
		fmt.Fprintln(out, renderOK("synced"))

	case "whoami":
		fmt.Fprintln(out, field("Identity", sess.Identity().String()))
		fmt.Fprintln(out, field("Session", sess.ID().String()))
		fmt.Fprintln(out, field("Unit", unit.Symbol))

	case "help":
		fmt.Fprintln(out, sessionHelp)

	case "quit", "exit":
		return true, nil

	default:
		return false, fmt.Errorf("unknown command %q, try help", cmd)
	}
	return false, nil
}
