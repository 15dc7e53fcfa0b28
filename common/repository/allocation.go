package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sellerhub/marking/common/db"
	"github.com/sellerhub/marking/common/faults"
	"github.com/sellerhub/marking/common/models"
)

// AllocationRepository picks eligible codes out of the available pool.
//
// Eligibility: status "new", exact product tuple match (a NULL component
// matches NULL, never "any"), and the code's seller either unset or equal to
// the acting profile. Ordering is two-tier: codes owned by the acting profile
// before partner-owned ones, then oldest last-modified first within each
// tier, so the self pool drains before borrowing and stale codes never
// starve.
type AllocationRepository struct {
	db *db.DB
}

// NewAllocationRepository creates a new allocation repository
func NewAllocationRepository(database *db.DB) *AllocationRepository {
	return &AllocationRepository{db: database}
}

// FindOneAvailable locks and returns exactly one eligible code identity, or
// ErrNotFound. SKIP LOCKED keeps concurrent callers from ever selecting the
// same row; calling transactions own the lock until commit.
func (r *AllocationRepository) FindOneAvailable(ctx context.Context, tx pgx.Tx, ownerID, profileID uuid.UUID, tuple models.ProductTuple) (uuid.UUID, error) {
	query := `
		SELECT ci.id
		FROM code_identity ci
		JOIN code_event ce ON ce.id = ci.current_event_id
		JOIN code_invariable inv ON inv.code_id = ci.id
		WHERE ce.status = $1
		  AND inv.owner_id = $2
		  AND inv.material_id = $3
		  AND inv.offer_id IS NOT DISTINCT FROM $4
		  AND inv.variation_id IS NOT DISTINCT FROM $5
		  AND inv.modification_id IS NOT DISTINCT FROM $6
		  AND (inv.seller_id IS NULL OR inv.seller_id = $7)
		ORDER BY (inv.profile_id = $7) DESC, ci.updated_at ASC
		LIMIT 1
		FOR UPDATE OF ci SKIP LOCKED
	`

	var codeID uuid.UUID
	err := tx.QueryRow(ctx, query,
		models.StatusNew,
		ownerID,
		tuple.MaterialID,
		tuple.OfferID,
		tuple.VariationID,
		tuple.ModificationID,
		profileID,
	).Scan(&codeID)
	if err == pgx.ErrNoRows {
		return uuid.Nil, faults.ErrNotFound
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to find available code: %w", err)
	}

	return codeID, nil
}
