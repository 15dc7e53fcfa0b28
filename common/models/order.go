package models

import "github.com/google/uuid"

// OrderStatus mirrors the subset of the upstream order lifecycle this
// service reacts to
type OrderStatus string

const (
	OrderCompleted OrderStatus = "completed"
	OrderCanceled  OrderStatus = "canceled"
)

// OrderNotification is the upstream "order changed" message. The core
// resolves the actual status and lines through the Order Read API.
type OrderNotification struct {
	OrderID         uuid.UUID  `json:"order_id"`
	EventID         uuid.UUID  `json:"event_id"`
	PreviousEventID *uuid.UUID `json:"previous_event_id,omitempty"`
}

// OrderEvent is the resolved state of an order at one point in its history
type OrderEvent struct {
	ID      uuid.UUID   `json:"id"`
	OrderID uuid.UUID   `json:"order_id"`
	Status  OrderStatus `json:"status"`
	Lines   []OrderLine `json:"lines"`
}

// OrderLine is one ordered position
type OrderLine struct {
	Tuple    ProductTuple `json:"tuple"`
	Quantity int          `json:"quantity"`
}

// RecipeComponent is one raw-material constituent of a finished good
type RecipeComponent struct {
	Tuple    ProductTuple `json:"tuple"`
	Quantity int          `json:"quantity"`
}

// UploadRequest is the fire-and-forget message sent to the external CDN
// uploader after a code image is persisted
type UploadRequest struct {
	CodeID      uuid.UUID `json:"code_id"`
	Class       string    `json:"class"`
	StorageName string    `json:"storage_name"`
}

// IngestRequest is the inbound ingestion submission, dispatched to the
// worker as an asynchronous task
type IngestRequest struct {
	OwnerID   uuid.UUID `json:"owner_id"`
	ProfileID uuid.UUID `json:"profile_id"`

	Tuple         ProductTuple `json:"tuple"`
	PartID        uuid.UUID    `json:"part_id"`
	CustomsNumber *string      `json:"customs_number,omitempty"`

	DocumentPath string `json:"document_path"`

	// FirstAssignment relaxes the catalog cross-check when no prior codes
	// exist for the tuple. Caller-asserted; the pipeline logs when the
	// assertion contradicts stored state.
	FirstAssignment bool `json:"first_assignment"`

	// Shareable codes carry no seller and may be consumed by partner
	// profiles; non-shareable codes are claimed for the owning profile
	Shareable bool `json:"shareable"`
}
