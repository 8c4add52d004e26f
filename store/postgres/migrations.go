package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Tally store (PostgreSQL).
var Migrations = migrate.NewGroup("tally")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_tally_invoices",
			Version: "20260101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tally_invoices (
    id          BIGINT PRIMARY KEY CHECK (id >= 0),
    recipient   TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    amount      TEXT NOT NULL,
    paid        BOOLEAN NOT NULL DEFAULT FALSE,
    payer       TEXT NOT NULL DEFAULT '',
    amount_paid TEXT NOT NULL DEFAULT '0',
    payment_id  TEXT NOT NULL DEFAULT '',
    paid_at     TIMESTAMPTZ,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_tally_invoices_recipient ON tally_invoices (recipient);
CREATE INDEX IF NOT EXISTS idx_tally_invoices_payer ON tally_invoices (payer) WHERE paid;
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
