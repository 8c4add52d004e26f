// Package tally provides an invoice ledger for Go applications.
//
// A party creates an invoice naming a recipient, a description and an amount
// in the smallest currency unit. Any payer can then settle it with a transfer
// of at least that amount. The ledger records the transition from unpaid to
// paid exactly once and never forgets an invoice.
//
// Tally is designed as a library, not a service. Import it directly, or run
// the bundled HTTP server from cmd/tally. It provides:
//
//   - Sequential invoice ids starting at zero
//   - Exactly-once payment with atomic value transfer
//   - A hash-chained event log of InvoiceCreated and InvoicePaid records
//   - Pluggable storage (memory, SQLite, PostgreSQL, MongoDB via Grove)
//   - Plugins for audit trails, metrics and event publishing
//
// # Quick Start
//
//	l := tally.New(memory.New())
//	if err := l.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer l.Stop()
//
//	recipient := account.MustParse("0x5fbdb2315678afecb367f032d93f642f64180aa3")
//	invoiceID, err := l.CreateInvoice(ctx, recipient, "consulting", types.MustParseAmount("1000000000000000000"))
//
//	payer := account.MustParse("0x70997970c51812dc3a010c7d01b50e0d17dc79c8")
//	err = l.PayInvoice(ctx, invoiceID, payer, types.MustParseAmount("1000000000000000000"))
//
// # Payment rules
//
// PayInvoice checks, in this order, that the invoice exists, that it is not
// already paid, and that the value covers the amount. Overpayment is accepted
// and forwarded to the recipient in full. Value moves through a
// settlement.Settler; when the transfer fails the payment is rolled back and
// ErrTransferFailed is returned.
//
// Mutations are serialised by a single lock, so two payers racing for the
// same invoice see exactly one success and one ErrInvoiceAlreadyPaid.
//
// # Identifiers
//
// Invoices use dense integer ids. Every other entity uses a TypeID:
//
//	evt_01h2xcejqtf2nbrexx3vqjhp41   // event record
//	pay_01h455vb4pex5vsknk084sn02q   // payment
//	hold_01h455vb4pex5vsknk084sn02q  // settlement hold
package tally
