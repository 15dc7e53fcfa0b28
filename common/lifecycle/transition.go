// Package lifecycle implements the code status state machine. Transitions
// never mutate an existing event: each one appends a new event version and
// repoints the identity's current pointer, keeping the full history.
package lifecycle

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sellerhub/marking/common/faults"
	"github.com/sellerhub/marking/common/logger"
	"github.com/sellerhub/marking/common/models"
)

// EventStore is the persistence surface the transition service drives.
// Implemented by repository.CodeRepository.
type EventStore interface {
	CurrentEventForUpdate(ctx context.Context, tx pgx.Tx, codeID uuid.UUID) (*models.CodeEvent, error)
	AppendEvent(ctx context.Context, tx pgx.Tx, event *models.CodeEvent) error
	SetSeller(ctx context.Context, tx pgx.Tx, codeID, sellerID uuid.UUID) error
	ClearSeller(ctx context.Context, tx pgx.Tx, codeID uuid.UUID) error
}

// Request describes one requested transition
type Request struct {
	Target models.Status

	// Required when Target is StatusProcess
	OrderID  *uuid.UUID
	SellerID *uuid.UUID

	Comment string
}

// allowedEdges is the closed transition graph. StatusError is absent on
// purpose: it is assigned only at creation time by the ingestion pipeline,
// and StatusDone is terminal.
var allowedEdges = map[models.Status]map[models.Status]bool{
	models.StatusNew: {
		models.StatusProcess:      true,
		models.StatusDecommission: true,
		models.StatusDelete:       true,
	},
	models.StatusProcess: {
		models.StatusDone: true,
		models.StatusNew:  true, // cancel-return
	},
}

// Service validates and applies status transitions
type Service struct {
	store EventStore
	log   *logger.Logger
}

// NewService creates a new transition service
func NewService(store EventStore, log *logger.Logger) *Service {
	return &Service{store: store, log: log}
}

// Transition applies one state change to a code within the caller's
// transaction. It returns the freshly appended event, a ValidationError for
// a disallowed or malformed request, or ErrNotFound when the code has no
// current event.
func (s *Service) Transition(ctx context.Context, tx pgx.Tx, codeID uuid.UUID, req Request) (*models.CodeEvent, error) {
	if err := validateRequest(codeID, req); err != nil {
		return nil, err
	}

	current, err := s.store.CurrentEventForUpdate(ctx, tx, codeID)
	if err != nil {
		return nil, err
	}

	if !allowedEdges[current.Status][req.Target] {
		return nil, &faults.ValidationError{
			CodeID: codeID,
			Reason: "transition " + string(current.Status) + " -> " + string(req.Target) + " is not allowed",
		}
	}

	event := &models.CodeEvent{
		ID:        uuid.New(),
		CodeID:    codeID,
		Status:    req.Target,
		Comment:   req.Comment,
		CreatedAt: time.Now().UTC(),
	}

	switch req.Target {
	case models.StatusProcess:
		event.OrderID = req.OrderID
		if err := s.store.SetSeller(ctx, tx, codeID, *req.SellerID); err != nil {
			return nil, err
		}
	case models.StatusDone:
		// fulfillment keeps the order reference for traceability
		event.OrderID = current.OrderID
	case models.StatusNew:
		// cancel-return drops the order reference and releases the seller claim
		if err := s.store.ClearSeller(ctx, tx, codeID); err != nil {
			return nil, err
		}
	}

	if err := s.store.AppendEvent(ctx, tx, event); err != nil {
		return nil, err
	}

	s.log.Debug("code transitioned",
		"code_id", codeID,
		"from", current.Status,
		"to", req.Target)

	return event, nil
}

func validateRequest(codeID uuid.UUID, req Request) error {
	if !req.Target.Valid() {
		return &faults.ValidationError{CodeID: codeID, Reason: "unknown target status " + string(req.Target)}
	}

	if req.Target == models.StatusError {
		return &faults.ValidationError{CodeID: codeID, Reason: "error status is assigned only at creation"}
	}

	if req.Target == models.StatusProcess {
		if req.OrderID == nil {
			return &faults.ValidationError{CodeID: codeID, Reason: "reservation requires an order reference"}
		}
		if req.SellerID == nil {
			return &faults.ValidationError{CodeID: codeID, Reason: "reservation requires a seller profile"}
		}
	}

	return nil
}
