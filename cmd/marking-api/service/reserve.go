// Package service implements the write-side operations of the marking API.
package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sellerhub/marking/common/faults"
	"github.com/sellerhub/marking/common/lifecycle"
	"github.com/sellerhub/marking/common/logger"
	"github.com/sellerhub/marking/common/models"
)

// reserve retries a bounded number of times when it loses a row race
const maxReserveAttempts = 3

// Allocator picks one eligible code out of the available pool.
// Implemented by repository.AllocationRepository.
type Allocator interface {
	FindOneAvailable(ctx context.Context, tx pgx.Tx, ownerID, profileID uuid.UUID, tuple models.ProductTuple) (uuid.UUID, error)
}

// Transitioner applies one lifecycle transition.
// Implemented by lifecycle.Service.
type Transitioner interface {
	Transition(ctx context.Context, tx pgx.Tx, codeID uuid.UUID, req lifecycle.Request) (*models.CodeEvent, error)
}

// TxRunner runs a function inside a database transaction.
// Implemented by db.DB.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error
}

// ReserveRequest asks for a quantity of codes of one product to be bound to
// an order
type ReserveRequest struct {
	OwnerID   uuid.UUID           `json:"owner_id"`
	ProfileID uuid.UUID           `json:"profile_id"`
	OrderID   uuid.UUID           `json:"order_id"`
	Tuple     models.ProductTuple `json:"tuple"`
	Quantity  int                 `json:"quantity"`
}

// Validate rejects structurally invalid reserve requests
func (r *ReserveRequest) Validate() error {
	if r.OwnerID == uuid.Nil || r.ProfileID == uuid.Nil || r.OrderID == uuid.Nil {
		return &faults.ValidationError{Reason: "owner_id, profile_id and order_id are required"}
	}
	if r.Tuple.MaterialID == uuid.Nil {
		return &faults.ValidationError{Reason: "tuple.material_id is required"}
	}
	if r.Quantity < 1 {
		return &faults.ValidationError{Reason: "quantity must be positive"}
	}
	return nil
}

// ReserveService binds available codes to orders. All-or-nothing: a
// shortage mid-batch rolls the whole reservation back.
type ReserveService struct {
	log       *logger.Logger
	runner    TxRunner
	allocator Allocator
	machine   Transitioner
}

// NewReserveService creates a new reserve service
func NewReserveService(log *logger.Logger, runner TxRunner, allocator Allocator, machine Transitioner) *ReserveService {
	return &ReserveService{log: log, runner: runner, allocator: allocator, machine: machine}
}

// Reserve allocates req.Quantity codes and moves each to process, bound to
// the order. Returns the reserved code ids, an InsufficientError when the
// pool runs out, or a ValidationError for a malformed request.
func (s *ReserveService) Reserve(ctx context.Context, req *ReserveRequest) ([]uuid.UUID, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	log := s.log.WithOrderID(req.OrderID.String())

	var reserved []uuid.UUID
	var err error
	for attempt := 1; attempt <= maxReserveAttempts; attempt++ {
		reserved, err = s.reserveOnce(ctx, req)
		if err == nil {
			log.Info("codes reserved",
				"quantity", len(reserved),
				"tuple", req.Tuple.String(),
				"attempt", attempt)
			return reserved, nil
		}
		if !faults.IsConflict(err) {
			return nil, err
		}
		log.Warn("reservation lost a race, retrying", "attempt", attempt)
	}
	return nil, fmt.Errorf("reservation failed after %d attempts: %w", maxReserveAttempts, err)
}

func (s *ReserveService) reserveOnce(ctx context.Context, req *ReserveRequest) ([]uuid.UUID, error) {
	sellerID := req.ProfileID
	orderID := req.OrderID
	reserved := make([]uuid.UUID, 0, req.Quantity)

	err := s.runner.WithTx(ctx, func(tx pgx.Tx) error {
		for i := 0; i < req.Quantity; i++ {
			codeID, err := s.allocator.FindOneAvailable(ctx, tx, req.OwnerID, req.ProfileID, req.Tuple)
			if err != nil {
				if faults.IsNotFound(err) {
					return &faults.InsufficientError{Requested: req.Quantity, Available: i}
				}
				return err
			}

			if _, err := s.machine.Transition(ctx, tx, codeID, lifecycle.Request{
				Target:   models.StatusProcess,
				OrderID:  &orderID,
				SellerID: &sellerID,
				Comment:  "reserved for order",
			}); err != nil {
				return err
			}
			reserved = append(reserved, codeID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reserved, nil
}
