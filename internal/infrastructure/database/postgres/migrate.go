package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/gofiber/fiber/v2/log"
)

// migrations run in order inside one transaction. Each statement must be
// safe to run against a database that already has it applied.
var migrations = []string{
	// serializes instances that start together; released at commit
	`SELECT pg_advisory_xact_lock(7320114)`,

	// product: older installs kept the level in a quoted "Stock" column
	`CREATE TABLE IF NOT EXISTS product (
		product_id SERIAL PRIMARY KEY,
		product_name TEXT NOT NULL DEFAULT '',
		product_price NUMERIC(12,2) NOT NULL DEFAULT 0,
		stock INT NOT NULL DEFAULT 0,
		product_pic TEXT,
		discontinued BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`DO $$
	BEGIN
		IF EXISTS (SELECT 1 FROM information_schema.columns WHERE table_name = 'product' AND column_name = 'Stock')
			AND NOT EXISTS (SELECT 1 FROM information_schema.columns WHERE table_name = 'product' AND column_name = 'stock') THEN
			ALTER TABLE product RENAME COLUMN "Stock" TO stock;
		END IF;
	END
	$$`,
	`ALTER TABLE product ADD COLUMN IF NOT EXISTS stock INT NOT NULL DEFAULT 0`,
	`ALTER TABLE product ADD COLUMN IF NOT EXISTS discontinued BOOLEAN NOT NULL DEFAULT FALSE`,
	`ALTER TABLE product ADD COLUMN IF NOT EXISTS updated_at TIMESTAMPTZ NOT NULL DEFAULT now()`,
	`UPDATE product SET stock = 0 WHERE stock < 0`,
	`DO $$
	BEGIN
		IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'product_stock_non_negative') THEN
			ALTER TABLE product ADD CONSTRAINT product_stock_non_negative CHECK (stock >= 0);
		END IF;
	END
	$$`,

	`CREATE TABLE IF NOT EXISTS users (
		"userId" SERIAL PRIMARY KEY,
		email TEXT NOT NULL,
		"firstName" TEXT,
		"lastName" TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS cart (
		cart_id UUID PRIMARY KEY,
		user_id INT NOT NULL UNIQUE,
		email TEXT NOT NULL DEFAULT '',
		enabled BOOLEAN NOT NULL DEFAULT TRUE,
		items JSONB NOT NULL DEFAULT '[]',
		total_price NUMERIC(12,2) NOT NULL DEFAULT 0,
		version INT NOT NULL DEFAULT 1,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	// orders: the serial-keyed layout is moved aside rather than converted
	`DO $$
	BEGIN
		IF EXISTS (SELECT 1 FROM information_schema.columns WHERE table_name = 'orders' AND column_name = 'orderID') THEN
			ALTER TABLE orders RENAME TO orders_legacy;
		END IF;
	END
	$$`,
	`CREATE TABLE IF NOT EXISTS orders (
		order_id UUID PRIMARY KEY,
		user_id INT NOT NULL,
		user_email TEXT NOT NULL DEFAULT '',
		items JSONB NOT NULL,
		total NUMERIC(12,2) NOT NULL,
		order_date TIMESTAMPTZ NOT NULL,
		payment_method TEXT NOT NULL,
		cart_id UUID NOT NULL,
		cart_version INT NOT NULL,
		UNIQUE (cart_id, cart_version)
	)`,
	`CREATE INDEX IF NOT EXISTS orders_user_date_idx ON orders (user_id, order_date DESC)`,

	// users: case-insensitive duplicates are merged onto the lowest id. Carts
	// and orders move to the surviving id first; two carts in one group
	// cannot be merged without touching reserved stock, so that aborts.
	`CREATE TEMP TABLE user_merge ON COMMIT DROP AS
	SELECT "userId" AS dup_id, keep_id
	FROM (SELECT "userId", min("userId") OVER (PARTITION BY lower(email)) AS keep_id FROM users) grouped
	WHERE "userId" <> keep_id`,
	`DO $$
	DECLARE
		clash TEXT;
	BEGIN
		SELECT string_agg(email, ', ' ORDER BY email) INTO clash
		FROM (
			SELECT lower(u.email) AS email
			FROM cart c
			JOIN users u ON u."userId" = c.user_id
			WHERE lower(u.email) IN (
				SELECT lower(d.email) FROM user_merge m JOIN users d ON d."userId" = m.dup_id
			)
			GROUP BY lower(u.email)
			HAVING count(*) > 1
		) groups;
		IF clash IS NOT NULL THEN
			RAISE EXCEPTION 'duplicate users hold more than one cart, resolve by hand: %', clash;
		END IF;
	END
	$$`,
	`UPDATE cart c SET user_id = m.keep_id FROM user_merge m WHERE c.user_id = m.dup_id`,
	`UPDATE orders o SET user_id = m.keep_id FROM user_merge m WHERE o.user_id = m.dup_id`,
	`DELETE FROM users u USING user_merge m WHERE u."userId" = m.dup_id`,
	`CREATE UNIQUE INDEX IF NOT EXISTS users_email_lower_key ON users (lower(email))`,
}

// Migrate brings the schema up to date. It is safe to call on every start.
func Migrate(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migrate: begin: %w", err)
	}
	defer tx.Rollback()

	for i, stmt := range migrations {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: step %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migrate: commit: %w", err)
	}
	log.Infof("postgres: schema up to date (%d steps)", len(migrations))
	return nil
}
