package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/tally"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/invoice"
	tallystore "github.com/xraph/tally/store"
)

// Collection name constants.
const (
	colInvoices = "tally_invoices"
)

// compile-time interface check
var _ tallystore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for the tally collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if len(models) == 0 {
			continue
		}
		if _, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("tally/mongo: migrate %s indexes: %w", col, err)
		}
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
	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return tally.ErrAlreadyExists
		}
		return fmt.Errorf("tally/mongo: create invoice: %w", err)
	}
	return nil
}

func (s *Store) GetInvoice(ctx context.Context, invoiceID uint64) (*invoice.Invoice, error) {
	var m invoiceModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": int64(invoiceID)}). //nolint:gosec // ids are dense from zero
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, tally.ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("tally/mongo: get invoice: %w", err)
	}
	return fromInvoiceModel(&m)
}

func (s *Store) ListInvoices(ctx context.Context, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	var models []invoiceModel

	filter := bson.M{}
	switch opts.Status {
	case invoice.StatusPaid:
		filter["paid"] = true
	case invoice.StatusCreated:
		filter["paid"] = false
	}
	if !opts.Recipient.IsZero() {
		filter["recipient"] = opts.Recipient.String()
	}
	if !opts.Payer.IsZero() {
		filter["payer"] = opts.Payer.String()
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("tally/mongo: list invoices: %w", err)
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
	n, err := s.mdb.Collection(colInvoices).CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("tally/mongo: count invoices: %w", err)
	}
	return uint64(n), nil //nolint:gosec // counts are never negative
}

// MarkInvoicePaid filters on paid=false so the update is a single atomic
// compare-and-set on the document.
func (s *Store) MarkInvoicePaid(ctx context.Context, invoiceID uint64, p invoice.Payment) error {
	res, err := s.mdb.NewUpdate((*invoiceModel)(nil)).
		Filter(bson.M{"_id": int64(invoiceID), "paid": false}). //nolint:gosec // ids are dense from zero
		Set("paid", true).
		Set("payer", p.Payer.String()).
		Set("amount_paid", p.Amount.String()).
		Set("payment_id", p.ID.String()).
		Set("paid_at", p.PaidAt).
		Set("updated_at", p.PaidAt).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/mongo: mark invoice paid: %w", err)
	}
	if res.MatchedCount() == 0 {
		if _, err := s.GetInvoice(ctx, invoiceID); err != nil {
			return err
		}
		return tally.ErrInvoiceAlreadyPaid
	}
	return nil
}

func (s *Store) RevertInvoicePayment(ctx context.Context, invoiceID uint64, paymentID id.PaymentID) error {
	res, err := s.mdb.NewUpdate((*invoiceModel)(nil)).
		Filter(bson.M{"_id": int64(invoiceID), "payment_id": paymentID.String()}). //nolint:gosec // ids are dense from zero
		Set("paid", false).
		Set("payer", "").
		Set("amount_paid", "0").
		Set("payment_id", "").
		Set("paid_at", nil).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/mongo: revert invoice payment: %w", err)
	}
	if res.MatchedCount() == 0 {
		return tally.ErrPaymentNotFound
	}
	return nil
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all tally collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colInvoices: {
			{Keys: bson.D{{Key: "recipient", Value: 1}, {Key: "_id", Value: 1}}},
			{Keys: bson.D{{Key: "payer", Value: 1}, {Key: "_id", Value: 1}}},
			{Keys: bson.D{{Key: "paid", Value: 1}, {Key: "_id", Value: 1}}},
		},
	}
}
