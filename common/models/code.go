package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle state of a marking code
type Status string

const (
	// StatusNew: available, unreserved
	StatusNew Status = "new"
	// StatusProcess: reserved against an order
	StatusProcess Status = "process"
	// StatusDone: fulfilled, terminal
	StatusDone Status = "done"
	// StatusDecommission: written off without fulfilling an order
	StatusDecommission Status = "decommission"
	// StatusError: failed ingestion, assigned only at creation, never allocatable
	StatusError Status = "error"
	// StatusDelete: soft-removed
	StatusDelete Status = "delete"
)

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusProcess, StatusDone, StatusDecommission, StatusError, StatusDelete:
		return true
	}
	return false
}

// ParseStatus converts a raw string into a Status
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown code status %q", raw)
	}
	return s, nil
}

// ProductTuple identifies the product a code belongs to. Optional components
// are pointers: nil means "explicitly absent" and matches only absence, never
// "any".
type ProductTuple struct {
	MaterialID     uuid.UUID  `db:"material_id" json:"material_id"`
	OfferID        *uuid.UUID `db:"offer_id" json:"offer_id,omitempty"`
	VariationID    *uuid.UUID `db:"variation_id" json:"variation_id,omitempty"`
	ModificationID *uuid.UUID `db:"modification_id" json:"modification_id,omitempty"`
}

// String renders the tuple for logs
func (t ProductTuple) String() string {
	part := func(id *uuid.UUID) string {
		if id == nil {
			return "-"
		}
		return id.String()
	}
	return fmt.Sprintf("%s/%s/%s/%s", t.MaterialID, part(t.OfferID), part(t.VariationID), part(t.ModificationID))
}

// CodeIdentity is the immutable handle of one physical marking code.
// Maps to: code_identity table
type CodeIdentity struct {
	ID uuid.UUID `db:"id" json:"id"`

	// Pointer to the single current event of the chain
	CurrentEventID *uuid.UUID `db:"current_event_id" json:"current_event_id,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// CodeEvent is one state change in a code's append-only chain.
// Maps to: code_event table
type CodeEvent struct {
	ID      uuid.UUID  `db:"id" json:"id"`
	CodeID  uuid.UUID  `db:"code_id" json:"code_id"`
	Status  Status     `db:"status" json:"status"`
	OrderID *uuid.UUID `db:"order_id" json:"order_id,omitempty"`
	Comment string     `db:"comment" json:"comment"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// CodeInvariable holds the facts fixed at a code's creation. Only seller_id
// ever changes after creation (set on reservation, cleared on cancel).
// Maps to: code_invariable table
type CodeInvariable struct {
	CodeID    uuid.UUID  `db:"code_id" json:"code_id"`
	OwnerID   uuid.UUID  `db:"owner_id" json:"owner_id"`
	ProfileID uuid.UUID  `db:"profile_id" json:"profile_id"`
	SellerID  *uuid.UUID `db:"seller_id" json:"seller_id,omitempty"`

	Tuple ProductTuple `json:"tuple"`

	// Batch grouping id, shared by codes processed together
	PartID uuid.UUID `db:"part_id" json:"part_id"`

	CustomsNumber *string `db:"customs_number" json:"customs_number,omitempty"`
}

// CodePayload holds the decoded symbol and its rendered image reference.
// Maps to: code_payload table
type CodePayload struct {
	CodeID  uuid.UUID `db:"code_id" json:"code_id"`
	OwnerID uuid.UUID `db:"owner_id" json:"owner_id"`

	// Decoded symbol text (or a synthesized placeholder for error records)
	Value string `db:"value" json:"value"`

	// Content-hash-derived storage name of the rendered image
	StorageName string `db:"storage_name" json:"storage_name"`
	Extension   string `db:"extension" json:"extension"`

	// Whether long-term image storage has confirmed the upload
	Uploaded bool `db:"uploaded" json:"uploaded"`
}

// CodeView is the assembled read model of one code
type CodeView struct {
	Identity   CodeIdentity   `json:"identity"`
	Event      CodeEvent      `json:"event"`
	Invariable CodeInvariable `json:"invariable"`
	Payload    *CodePayload   `json:"payload,omitempty"`
}

// NewCode carries everything needed to materialize a freshly scanned code
type NewCode struct {
	OwnerID   uuid.UUID
	ProfileID uuid.UUID
	// SellerID is set when the code is not shareable between legal entities
	SellerID *uuid.UUID

	Tuple         ProductTuple
	PartID        uuid.UUID
	CustomsNumber *string

	Value       string
	StorageName string
	Extension   string

	// StatusNew for verified codes, StatusError for failed decodes
	Status  Status
	Comment string
}
