package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Tally store (SQLite).
var Migrations = migrate.NewGroup("tally")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_tally_invoices",
			Version: "20260101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tally_invoices (
    id          INTEGER PRIMARY KEY,
    recipient   TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    amount      TEXT NOT NULL,
    paid        INTEGER NOT NULL DEFAULT 0,
    payer       TEXT NOT NULL DEFAULT '',
    amount_paid TEXT NOT NULL DEFAULT '0',
    payment_id  TEXT NOT NULL DEFAULT '',
    paid_at     TIMESTAMP,
    created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_tally_invoices_recipient ON tally_invoices (recipient);
CREATE INDEX IF NOT EXISTS idx_tally_invoices_payer ON tally_invoices (payer) WHERE paid = 1;
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tally_invoices`)
				return err
			},
		},
	)
}
