package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sellerhub/marking/common/db"
	"github.com/sellerhub/marking/common/faults"
	"github.com/sellerhub/marking/common/models"
)

const uniqueViolation = "23505"

// CodeRepository handles database operations for code identities and their
// event chains. Every mutation of the chain goes through a caller-owned
// transaction so that "insert event + repoint current pointer" stays atomic.
type CodeRepository struct {
	db *db.DB
}

// NewCodeRepository creates a new code repository
func NewCodeRepository(database *db.DB) *CodeRepository {
	return &CodeRepository{db: database}
}

// CreateScanned materializes a freshly scanned code: identity, invariable,
// payload, and the first event, in one transaction. A (owner, value) unique
// violation is reported as a DuplicateError.
func (r *CodeRepository) CreateScanned(ctx context.Context, tx pgx.Tx, code *models.NewCode) (uuid.UUID, error) {
	codeID := uuid.New()
	now := time.Now().UTC()

	_, err := tx.Exec(ctx,
		`INSERT INTO code_identity (id, created_at, updated_at) VALUES ($1, $2, $2)`,
		codeID, now,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create code identity: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO code_invariable
			(code_id, owner_id, profile_id, seller_id, material_id, offer_id, variation_id, modification_id, part_id, customs_number)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		codeID,
		code.OwnerID,
		code.ProfileID,
		code.SellerID,
		code.Tuple.MaterialID,
		code.Tuple.OfferID,
		code.Tuple.VariationID,
		code.Tuple.ModificationID,
		code.PartID,
		code.CustomsNumber,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create code invariable: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO code_payload (code_id, owner_id, value, storage_name, extension, uploaded)
		 VALUES ($1, $2, $3, $4, $5, false)`,
		codeID, code.OwnerID, code.Value, code.StorageName, code.Extension,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return uuid.Nil, &faults.DuplicateError{OwnerID: code.OwnerID, Value: code.Value}
		}
		return uuid.Nil, fmt.Errorf("failed to create code payload: %w", err)
	}

	event := &models.CodeEvent{
		ID:        uuid.New(),
		CodeID:    codeID,
		Status:    code.Status,
		Comment:   code.Comment,
		CreatedAt: now,
	}
	if err := r.AppendEvent(ctx, tx, event); err != nil {
		return uuid.Nil, err
	}

	return codeID, nil
}

// AppendEvent inserts a new event version and repoints the identity's
// current-event pointer in the same transaction
func (r *CodeRepository) AppendEvent(ctx context.Context, tx pgx.Tx, event *models.CodeEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	_, err := tx.Exec(ctx,
		`INSERT INTO code_event (id, code_id, status, order_id, comment, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		event.ID, event.CodeID, event.Status, event.OrderID, event.Comment, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append code event: %w", err)
	}

	ct, err := tx.Exec(ctx,
		`UPDATE code_identity SET current_event_id = $2, updated_at = $3 WHERE id = $1`,
		event.CodeID, event.ID, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to repoint current event: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("code %s: %w", event.CodeID, faults.ErrNotFound)
	}

	return nil
}

// CurrentEventForUpdate reads the current event of a code and locks the
// identity row so concurrent transitions serialize
func (r *CodeRepository) CurrentEventForUpdate(ctx context.Context, tx pgx.Tx, codeID uuid.UUID) (*models.CodeEvent, error) {
	query := `
		SELECT ce.id, ce.code_id, ce.status, ce.order_id, ce.comment, ce.created_at
		FROM code_identity ci
		JOIN code_event ce ON ce.id = ci.current_event_id
		WHERE ci.id = $1
		FOR UPDATE OF ci
	`

	event := &models.CodeEvent{}
	err := tx.QueryRow(ctx, query, codeID).Scan(
		&event.ID,
		&event.CodeID,
		&event.Status,
		&event.OrderID,
		&event.Comment,
		&event.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("code %s: %w", codeID, faults.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get current event: %w", err)
	}

	return event, nil
}

// SetSeller claims a code for a selling profile
func (r *CodeRepository) SetSeller(ctx context.Context, tx pgx.Tx, codeID, sellerID uuid.UUID) error {
	_, err := tx.Exec(ctx,
		`UPDATE code_invariable SET seller_id = $2 WHERE code_id = $1`,
		codeID, sellerID,
	)
	if err != nil {
		return fmt.Errorf("failed to set seller: %w", err)
	}
	return nil
}

// ClearSeller releases a code back to the shareable pool
func (r *CodeRepository) ClearSeller(ctx context.Context, tx pgx.Tx, codeID uuid.UUID) error {
	_, err := tx.Exec(ctx,
		`UPDATE code_invariable SET seller_id = NULL WHERE code_id = $1`,
		codeID,
	)
	if err != nil {
		return fmt.Errorf("failed to clear seller: %w", err)
	}
	return nil
}

// GetByID assembles the full read model of one code
func (r *CodeRepository) GetByID(ctx context.Context, codeID uuid.UUID) (*models.CodeView, error) {
	query := `
		SELECT ci.id, ci.current_event_id, ci.created_at, ci.updated_at,
		       ce.id, ce.code_id, ce.status, ce.order_id, ce.comment, ce.created_at,
		       inv.owner_id, inv.profile_id, inv.seller_id,
		       inv.material_id, inv.offer_id, inv.variation_id, inv.modification_id,
		       inv.part_id, inv.customs_number,
		       p.value, p.storage_name, p.extension, p.uploaded
		FROM code_identity ci
		JOIN code_event ce ON ce.id = ci.current_event_id
		JOIN code_invariable inv ON inv.code_id = ci.id
		LEFT JOIN code_payload p ON p.code_id = ci.id
	 	WHERE ci.id = $1
	`

	view := &models.CodeView{}
	var (
		value       *string
		storageName *string
		extension   *string
		uploaded    *bool
	)
	err := r.db.QueryRow(ctx, query, codeID).Scan(
		&view.Identity.ID,
		&view.Identity.CurrentEventID,
		&view.Identity.CreatedAt,
		&view.Identity.UpdatedAt,
		&view.Event.ID,
		&view.Event.CodeID,
		&view.Event.Status,
		&view.Event.OrderID,
		&view.Event.Comment,
		&view.Event.CreatedAt,
		&view.Invariable.OwnerID,
		&view.Invariable.ProfileID,
		&view.Invariable.SellerID,
		&view.Invariable.Tuple.MaterialID,
		&view.Invariable.Tuple.OfferID,
		&view.Invariable.Tuple.VariationID,
		&view.Invariable.Tuple.ModificationID,
		&view.Invariable.PartID,
		&view.Invariable.CustomsNumber,
		&value,
		&storageName,
		&extension,
		&uploaded,
	)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("code %s: %w", codeID, faults.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get code: %w", err)
	}

	view.Invariable.CodeID = view.Identity.ID
	if value != nil {
		view.Payload = &models.CodePayload{
			CodeID:      view.Identity.ID,
			OwnerID:     view.Invariable.OwnerID,
			Value:       *value,
			StorageName: *storageName,
			Extension:   *extension,
			Uploaded:    *uploaded,
		}
	}

	return view, nil
}

// ValueExists reports whether a decoded value is already registered for an
// owner anywhere in the system
func (r *CodeRepository) ValueExists(ctx context.Context, ownerID uuid.UUID, value string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM code_payload WHERE owner_id = $1 AND value = $2)`,
		ownerID, value,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check value existence: %w", err)
	}
	return exists, nil
}

// CountByTuple counts codes registered for an owner and product tuple,
// regardless of status
func (r *CodeRepository) CountByTuple(ctx context.Context, ownerID uuid.UUID, tuple models.ProductTuple) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT count(*)
		 FROM code_invariable
		 WHERE owner_id = $1
		   AND material_id = $2
		   AND offer_id IS NOT DISTINCT FROM $3
		   AND variation_id IS NOT DISTINCT FROM $4
		   AND modification_id IS NOT DISTINCT FROM $5`,
		ownerID, tuple.MaterialID, tuple.OfferID, tuple.VariationID, tuple.ModificationID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count codes by tuple: %w", err)
	}
	return count, nil
}

// FindProcessForOrderTuple locks and returns one code reserved against the
// order for the given product tuple
func (r *CodeRepository) FindProcessForOrderTuple(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, tuple models.ProductTuple) (uuid.UUID, error) {
	query := `
		SELECT ci.id
		FROM code_identity ci
		JOIN code_event ce ON ce.id = ci.current_event_id
		JOIN code_invariable inv ON inv.code_id = ci.id
		WHERE ce.status = $1
		  AND ce.order_id = $2
		  AND inv.material_id = $3
		  AND inv.offer_id IS NOT DISTINCT FROM $4
		  AND inv.variation_id IS NOT DISTINCT FROM $5
		  AND inv.modification_id IS NOT DISTINCT FROM $6
		ORDER BY ci.updated_at ASC
		LIMIT 1
		FOR UPDATE OF ci SKIP LOCKED
	`

	var codeID uuid.UUID
	err := tx.QueryRow(ctx, query,
		models.StatusProcess, orderID,
		tuple.MaterialID, tuple.OfferID, tuple.VariationID, tuple.ModificationID,
	).Scan(&codeID)
	if err == pgx.ErrNoRows {
		return uuid.Nil, faults.ErrNotFound
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to find reserved code: %w", err)
	}

	return codeID, nil
}

// ListProcessByOrder locks and returns every code still reserved against the
// order
func (r *CodeRepository) ListProcessByOrder(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) ([]uuid.UUID, error) {
	query := `
		SELECT ci.id
		FROM code_identity ci
		JOIN code_event ce ON ce.id = ci.current_event_id
		WHERE ce.status = $1 AND ce.order_id = $2
		ORDER BY ci.updated_at ASC
		FOR UPDATE OF ci
	`

	rows, err := tx.Query(ctx, query, models.StatusProcess, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reserved codes: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan code id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reserved codes: %w", err)
	}

	return ids, nil
}

// ListByPartWithStatus locks and returns all codes of a batch/part whose
// current status matches; used for bulk decommission and bulk delete
func (r *CodeRepository) ListByPartWithStatus(ctx context.Context, tx pgx.Tx, partID uuid.UUID, status models.Status) ([]uuid.UUID, error) {
	query := `
		SELECT ci.id
		FROM code_identity ci
		JOIN code_event ce ON ce.id = ci.current_event_id
		JOIN code_invariable inv ON inv.code_id = ci.id
		WHERE inv.part_id = $1 AND ce.status = $2
		ORDER BY ci.updated_at ASC
		FOR UPDATE OF ci
	`

	rows, err := tx.Query(ctx, query, partID, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list codes by part: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan code id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating part codes: %w", err)
	}

	return ids, nil
}

// MarkUploaded flags a payload after the external uploader confirms storage
func (r *CodeRepository) MarkUploaded(ctx context.Context, codeID uuid.UUID) error {
	ct, err := r.db.Exec(ctx,
		`UPDATE code_payload SET uploaded = true WHERE code_id = $1`,
		codeID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark payload uploaded: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("payload for code %s: %w", codeID, faults.ErrNotFound)
	}
	return nil
}
