package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaVersion = 1

var migrations = map[int][]string{
	1: {
		`CREATE TABLE IF NOT EXISTS guest_houses (
			id          BIGSERIAL PRIMARY KEY,
			name        TEXT NOT NULL,
			price_cents BIGINT NOT NULL CHECK (price_cents >= 0),
			total_rooms INT NOT NULL CHECK (total_rooms >= 0),
			is_active   BOOLEAN NOT NULL DEFAULT TRUE,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS packages (
			id                   BIGSERIAL PRIMARY KEY,
			name                 TEXT NOT NULL,
			price_multiplier_pct INT NOT NULL DEFAULT 100 CHECK (price_multiplier_pct >= 0),
			per_guest            BOOLEAN NOT NULL DEFAULT FALSE,
			is_active            BOOLEAN NOT NULL DEFAULT TRUE
		)`,
		`CREATE TABLE IF NOT EXISTS room_availability (
			id                    BIGSERIAL PRIMARY KEY,
			guest_house_id        BIGINT NOT NULL REFERENCES guest_houses(id),
			date                  DATE NOT NULL,
			total_rooms           INT NOT NULL,
			available_rooms       INT NOT NULL,
			price_per_night_cents BIGINT NOT NULL,
			updated_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT room_availability_guest_house_date_key UNIQUE (guest_house_id, date),
			CONSTRAINT room_availability_bounds CHECK (available_rooms >= 0 AND available_rooms <= total_rooms)
		)`,
		`CREATE TABLE IF NOT EXISTS bookings (
			id                BIGSERIAL PRIMARY KEY,
			external_id       TEXT,
			guest_house_id    BIGINT NOT NULL REFERENCES guest_houses(id),
			user_id           TEXT NOT NULL,
			agent_id          TEXT,
			package_id        BIGINT REFERENCES packages(id),
			check_in          DATE NOT NULL,
			check_out         DATE NOT NULL,
			num_guests        INT NOT NULL CHECK (num_guests > 0),
			rooms             INT NOT NULL DEFAULT 1 CHECK (rooms > 0),
			total_price_cents BIGINT NOT NULL,
			status            TEXT NOT NULL CHECK (status IN ('pending', 'confirmed', 'cancelled')),
			created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT bookings_external_id_key UNIQUE (external_id),
			CONSTRAINT bookings_range CHECK (check_in < check_out)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_guest_house ON bookings(guest_house_id, check_in)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_user ON bookings(user_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_agent ON bookings(agent_id, created_at DESC) WHERE agent_id IS NOT NULL`,
	},
}

// Migrate brings the schema up to schemaVersion. Each version runs in its own transaction.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_meta (key TEXT PRIMARY KEY, value INT NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_meta: %w", err)
	}

	var current int
	err := db.QueryRow(ctx, `SELECT value FROM schema_meta WHERE key = 'schema_version'`).Scan(&current)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("read schema version: %w", err)
	}

	for v := current + 1; v <= schemaVersion; v++ {
		if err := applyVersion(ctx, db, v); err != nil {
			return fmt.Errorf("migrate to v%d: %w", v, err)
		}
	}
	return nil
}

func applyVersion(ctx context.Context, db *pgxpool.Pool, v int) error {
	tx, err := db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, stmt := range migrations[v] {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO schema_meta(key, value) VALUES ('schema_version', $1)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, v); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
