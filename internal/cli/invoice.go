package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/xraph/tally"
	"github.com/xraph/tally/account"
	"github.com/xraph/tally/api"
	"github.com/xraph/tally/internal/config"
	"github.com/xraph/tally/invoice"
	"github.com/xraph/tally/types"
)

// invoiceFlags are shared by the invoice subcommands.
type invoiceFlags struct {
	server string
	unit   string
}

func (f *invoiceFlags) client() *api.Client {
	return api.NewClient(f.server)
}

func (f *invoiceFlags) parseUnit() (types.Unit, error) {
	return config.Config{Unit: f.unit}.ParseUnit()
}

func (f *invoiceFlags) parseAmount(s string) (types.Amount, error) {
	unit, err := f.parseUnit()
	if err != nil {
		return types.Amount{}, err
	}
	return types.ParseIn(s, unit)
}

func newInvoiceCmd() *cobra.Command {
	flags := &invoiceFlags{}

	cmd := &cobra.Command{
		Use:   "invoice",
		Short: "Create, pay and inspect invoices on a tally server",
	}
	cmd.PersistentFlags().StringVar(&flags.server, "server", "http://localhost:8080", "Base URL of a tally server")
	cmd.PersistentFlags().StringVar(&flags.unit, "unit", "ETH", "Unit for amounts (ETH, gwei, wei)")

	cmd.AddCommand(newInvoiceCreateCmd(flags))
	cmd.AddCommand(newInvoicePayCmd(flags))
	cmd.AddCommand(newInvoiceGetCmd(flags))
	cmd.AddCommand(newInvoiceListCmd(flags))
	return cmd
}

func newInvoiceCreateCmd(flags *invoiceFlags) *cobra.Command {
	var recipient, amount, description string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an invoice",
		RunE: func(cmd *cobra.Command, _ []string) error {
			addr, err := account.Parse(recipient)
			if err != nil {
				return fmt.Errorf("--recipient: %w", err)
			}
			if addr.IsZero() {
				return tally.ErrInvalidRecipient
			}
			value, err := flags.parseAmount(amount)
			if err != nil {
				return fmt.Errorf("--amount: %w", err)
			}
			invoiceID, err := flags.client().CreateInvoice(cmd.Context(), addr, description, value)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderOK(fmt.Sprintf("invoice created, id %d", invoiceID)))
			return nil
		},
	}

	cmd.Flags().StringVar(&recipient, "recipient", "", "Address to bill")
	cmd.Flags().StringVar(&amount, "amount", "", "Amount owed")
	cmd.Flags().StringVar(&description, "description", "", "Free-form description")
	_ = cmd.MarkFlagRequired("recipient")
	_ = cmd.MarkFlagRequired("amount")

	return cmd
}

func newInvoicePayCmd(flags *invoiceFlags) *cobra.Command {
	var payer, amount string

	cmd := &cobra.Command{
		Use:   "pay <id>",
		Short: "Pay an invoice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			invoiceID, err := parseInvoiceID(args[0])
			if err != nil {
				return err
			}
			addr, err := account.Parse(payer)
			if err != nil {
				return fmt.Errorf("--payer: %w", err)
			}
			value, err := flags.parseAmount(amount)
			if err != nil {
				return fmt.Errorf("--amount: %w", err)
			}
			if err := flags.client().PayInvoice(cmd.Context(), invoiceID, addr, value); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderOK(fmt.Sprintf("invoice %d paid", invoiceID)))
			return nil
		},
	}

	cmd.Flags().StringVar(&payer, "payer", "", "Address paying the invoice")
	cmd.Flags().StringVar(&amount, "amount", "", "Value sent; may exceed the invoice amount")
	_ = cmd.MarkFlagRequired("payer")
	_ = cmd.MarkFlagRequired("amount")

	return cmd
}

func newInvoiceGetCmd(flags *invoiceFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one invoice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			invoiceID, err := parseInvoiceID(args[0])
			if err != nil {
				return err
			}
			unit, err := flags.parseUnit()
			if err != nil {
				return err
			}
			inv, err := flags.client().GetInvoice(cmd.Context(), invoiceID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderInvoice(inv, unit))
			return nil
		},
	}
}

func newInvoiceListCmd(flags *invoiceFlags) *cobra.Command {
	var (
		paid, open bool
		recipient  string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List invoices",
		RunE: func(cmd *cobra.Command, _ []string) error {
			unit, err := flags.parseUnit()
			if err != nil {
				return err
			}
			opts := invoice.ListOpts{Limit: limit}
			switch {
			case paid && open:
				return fmt.Errorf("--paid and --open are mutually exclusive")
			case paid:
				opts.Status = invoice.StatusPaid
			case open:
				opts.Status = invoice.StatusCreated
			}
			if recipient != "" {
				if opts.Recipient, err = account.Parse(recipient); err != nil {
					return fmt.Errorf("--recipient: %w", err)
				}
			}
			invs, err := flags.client().ListInvoices(cmd.Context(), opts)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderInvoices(invs, unit))
			return nil
		},
	}

	cmd.Flags().BoolVar(&paid, "paid", false, "Only paid invoices")
	cmd.Flags().BoolVar(&open, "open", false, "Only unpaid invoices")
	cmd.Flags().StringVar(&recipient, "recipient", "", "Only invoices billed to this address")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of invoices")

	return cmd
}

func parseInvoiceID(s string) (uint64, error) {
	invoiceID, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invoice id %q is not a number", s)
	}
	return invoiceID, nil
}
