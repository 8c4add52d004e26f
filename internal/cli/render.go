package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/xraph/tally/client"
	"github.com/xraph/tally/invoice"
	"github.com/xraph/tally/types"
)

var (
	accent  = lipgloss.Color("#D97706")
	fg      = lipgloss.Color("#E8E6E3")
	dim     = lipgloss.Color("#6B7280")
	faint   = lipgloss.Color("#3F3F46")
	success = lipgloss.Color("#22C55E")
	danger  = lipgloss.Color("#EF4444")
	warning = lipgloss.Color("#F59E0B")
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(accent)
	labelStyle   = lipgloss.NewStyle().Foreground(dim).Width(12)
	valueStyle   = lipgloss.NewStyle().Foreground(fg)
	dimStyle     = lipgloss.NewStyle().Foreground(dim)
	paidStyle    = lipgloss.NewStyle().Foreground(success).Bold(true)
	openStyle    = lipgloss.NewStyle().Foreground(warning).Bold(true)
	errTagStyle  = lipgloss.NewStyle().Foreground(danger).Bold(true)
	okTagStyle   = lipgloss.NewStyle().Foreground(success).Bold(true)
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(fg)
	cardStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(accent).Padding(0, 2)
	separatorRow = lipgloss.NewStyle().Foreground(faint).Render(strings.Repeat("─", 64))
)

func renderAmount(a types.Amount, unit types.Unit) string {
	return a.Format(unit)
}

func renderStatus(paid bool) string {
	if paid {
		return paidStyle.Render("PAID")
	}
	return openStyle.Render("OPEN")
}

func field(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), valueStyle.Render(value))
}

// renderInvoice renders one invoice as a card.
func renderInvoice(inv invoice.Invoice, unit types.Unit) string {
	lines := []string{
		titleStyle.Render(fmt.Sprintf("Invoice #%d", inv.ID)) + "  " + renderStatus(inv.Paid),
		field("Recipient", inv.Recipient.String()),
		field("Amount", renderAmount(inv.Amount, unit)),
	}
	if inv.Description != "" {
		lines = append(lines, field("Description", inv.Description))
	}
	if inv.Paid {
		lines = append(lines,
			field("Payer", inv.Payer.String()),
			field("Paid", renderAmount(inv.AmountPaid, unit)),
		)
		if over := inv.Overpayment(); !over.IsZero() {
			lines = append(lines, field("Overpaid", renderAmount(over, unit)))
		}
	}
	return cardStyle.Render(strings.Join(lines, "\n"))
}

// renderInvoices renders a list as a table.
func renderInvoices(invs []invoice.Invoice, unit types.Unit) string {
	if len(invs) == 0 {
		return dimStyle.Render("no invoices")
	}
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("%-6s %-8s %-14s %-22s %s", "ID", "STATUS", "RECIPIENT", "AMOUNT", "DESCRIPTION")))
	b.WriteString("\n" + separatorRow + "\n")
	for _, inv := range invs {
		status := "OPEN"
		if inv.Paid {
			status = "PAID"
		}
		fmt.Fprintf(&b, "%-6d %-8s %-14s %-22s %s\n",
			inv.ID, status, inv.Recipient.Short(), renderAmount(inv.Amount, unit), inv.Description)
	}
	return strings.TrimRight(b.String(), "\n")
}

// renderEntries renders a session list.
func renderEntries(title string, entries []client.Entry, unit types.Unit, paid bool) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n")
	if len(entries) == 0 {
		b.WriteString(dimStyle.Render("  (empty)"))
		return b.String()
	}
	for _, e := range entries {
		amount := renderAmount(e.Amount, unit)
		if paid {
			amount = renderAmount(e.AmountPaid, unit)
		}
		fmt.Fprintf(&b, "  #%-5d %-14s %-22s %s\n", e.ID, e.Recipient.Short(), amount, e.Description)
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderOK(msg string) string {
	return okTagStyle.Render("ok") + " " + msg
}

func renderErr(err error) string {
	return errTagStyle.Render("error") + " " + err.Error()
}
