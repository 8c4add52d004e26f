package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	_ "github.com/xraph/grove/drivers/pgdriver/pgmigrate" // registers the migrate executor
	"github.com/xraph/grove/migrate"

	"github.com/xraph/tally"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/invoice"
	tallystore "github.com/xraph/tally/store"
)

// compile-time interface check
var _ tallystore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
// Amounts are stored as decimal text so no value is ever truncated.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("tally/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("tally/postgres: %w: %w", tally.ErrMigrationFailed, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Invoice Store ====================

func (s *Store) CreateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	m := toInvoiceModel(inv)
	if _, err := s.pg.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("tally/postgres: create invoice %d: %w", inv.ID, err)
	}
	return nil
}

func (s *Store) GetInvoice(ctx context.Context, invoiceID uint64) (*invoice.Invoice, error) {
	m := new(invoiceModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", int64(invoiceID)). //nolint:gosec // ids are dense from zero
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, tally.ErrInvoiceNotFound
		}
		return nil, err
	}
	return fromInvoiceModel(m)
}

func (s *Store) ListInvoices(ctx context.Context, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	var models []invoiceModel
	q := s.pg.NewSelect(&models)

	switch opts.Status {
	case invoice.StatusPaid:
		q = q.Where("paid")
	case invoice.StatusCreated:
		q = q.Where("NOT paid")
	}
	argIdx := 0
	if !opts.Recipient.IsZero() {
		argIdx++
		q = q.Where(fmt.Sprintf("recipient = $%d", argIdx), opts.Recipient.String())
	}
	if !opts.Payer.IsZero() {
		argIdx++
		q = q.Where(fmt.Sprintf("payer = $%d", argIdx), opts.Payer.String())
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*invoice.Invoice, len(models))
	for i := range models {
		inv, err := fromInvoiceModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = inv
	}
	return result, nil
}

func (s *Store) CountInvoices(ctx context.Context) (uint64, error) {
	var total int64
	if err := s.pg.NewRaw(`SELECT COUNT(*) FROM tally_invoices`).Scan(ctx, &total); err != nil {
		return 0, err
	}
	return uint64(total), nil //nolint:gosec // COUNT is never negative
}

// MarkInvoicePaid only touches a row that is still unpaid. When nothing
// matched, a follow-up read tells a missing invoice from a paid one.
func (s *Store) MarkInvoicePaid(ctx context.Context, invoiceID uint64, p invoice.Payment) error {
	res, err := s.pg.NewUpdate((*invoiceModel)(nil)).
		Set("paid = $1", true).
		Set("payer = $2", p.Payer.String()).
		Set("amount_paid = $3", p.Amount.String()).
		Set("payment_id = $4", p.ID.String()).
		Set("paid_at = $5", p.PaidAt).
		Set("updated_at = $6", p.PaidAt).
		Where("id = $7", int64(invoiceID)). //nolint:gosec // ids are dense from zero
		Where("NOT paid").
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		if _, err := s.GetInvoice(ctx, invoiceID); err != nil {
			return err
		}
		return tally.ErrInvoiceAlreadyPaid
	}
	return nil
}

func (s *Store) RevertInvoicePayment(ctx context.Context, invoiceID uint64, paymentID id.PaymentID) error {
	res, err := s.pg.NewUpdate((*invoiceModel)(nil)).
		Set("paid = $1", false).
		Set("payer = $2", "").
		Set("amount_paid = $3", "0").
		Set("payment_id = $4", "").
		Set("paid_at = NULL").
		Set("updated_at = $5", now()).
		Where("id = $6", int64(invoiceID)). //nolint:gosec // ids are dense from zero
		Where("payment_id = $7", paymentID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return tally.ErrPaymentNotFound
	}
	return nil
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
