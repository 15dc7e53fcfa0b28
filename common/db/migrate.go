package db

import (
	"context"
	"fmt"
)

// Schema: one identity row per physical code, an append-only event chain,
// and two 1-1 satellites (invariable facts, scanned payload). The identity
// row carries the movable current-event pointer.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS code_identity (
		id               UUID PRIMARY KEY,
		current_event_id UUID,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS code_event (
		id         UUID PRIMARY KEY,
		code_id    UUID NOT NULL REFERENCES code_identity(id) ON DELETE CASCADE,
		status     TEXT NOT NULL,
		order_id   UUID,
		comment    TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE INDEX IF NOT EXISTS idx_code_event_code ON code_event (code_id)`,

	`CREATE TABLE IF NOT EXISTS code_invariable (
		code_id         UUID PRIMARY KEY REFERENCES code_identity(id) ON DELETE CASCADE,
		owner_id        UUID NOT NULL,
		profile_id      UUID NOT NULL,
		seller_id       UUID,
		material_id     UUID NOT NULL,
		offer_id        UUID,
		variation_id    UUID,
		modification_id UUID,
		part_id         UUID NOT NULL,
		customs_number  TEXT
	)`,

	`CREATE INDEX IF NOT EXISTS idx_code_invariable_tuple
		ON code_invariable (owner_id, material_id, offer_id, variation_id, modification_id)`,

	`CREATE INDEX IF NOT EXISTS idx_code_invariable_part ON code_invariable (part_id)`,

	// owner_id is denormalized from code_invariable so the per-owner
	// uniqueness of a decoded value can be a hard constraint
	`CREATE TABLE IF NOT EXISTS code_payload (
		code_id      UUID PRIMARY KEY REFERENCES code_identity(id) ON DELETE CASCADE,
		owner_id     UUID NOT NULL,
		value        TEXT NOT NULL,
		storage_name TEXT NOT NULL,
		extension    TEXT NOT NULL,
		uploaded     BOOLEAN NOT NULL DEFAULT false,
		UNIQUE (owner_id, value)
	)`,
}

// Migrate creates the schema if it does not exist yet
func Migrate(ctx context.Context, db *DB) error {
	for i, stmt := range migrations {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}

	db.log.Info("database schema up to date", "statements", len(migrations))
	return nil
}
