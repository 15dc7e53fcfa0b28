package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sellerhub/marking/common/lifecycle"
	"github.com/sellerhub/marking/common/logger"
	"github.com/sellerhub/marking/common/models"
)

// PartLister finds codes of one submitted part in a given status.
// Implemented by repository.CodeRepository.
type PartLister interface {
	ListByPartWithStatus(ctx context.Context, tx pgx.Tx, partID uuid.UUID, status models.Status) ([]uuid.UUID, error)
}

// PartsService applies bulk lifecycle operations over whole submitted
// parts. Only still-available codes are touched; reserved, finished and
// error-tagged codes of the part stay as they are.
type PartsService struct {
	log     *logger.Logger
	runner  TxRunner
	codes   PartLister
	machine Transitioner
}

// NewPartsService creates a new parts service
func NewPartsService(log *logger.Logger, runner TxRunner, codes PartLister, machine Transitioner) *PartsService {
	return &PartsService{log: log, runner: runner, codes: codes, machine: machine}
}

// Decommission writes off every available code of the part
func (s *PartsService) Decommission(ctx context.Context, partID uuid.UUID, comment string) (int, error) {
	if comment == "" {
		comment = "part decommissioned"
	}
	return s.bulkTransition(ctx, partID, models.StatusDecommission, comment)
}

// Delete soft-removes every available code of the part
func (s *PartsService) Delete(ctx context.Context, partID uuid.UUID, comment string) (int, error) {
	if comment == "" {
		comment = "part deleted"
	}
	return s.bulkTransition(ctx, partID, models.StatusDelete, comment)
}

func (s *PartsService) bulkTransition(ctx context.Context, partID uuid.UUID, target models.Status, comment string) (int, error) {
	var moved int
	err := s.runner.WithTx(ctx, func(tx pgx.Tx) error {
		codeIDs, err := s.codes.ListByPartWithStatus(ctx, tx, partID, models.StatusNew)
		if err != nil {
			return err
		}
		for _, codeID := range codeIDs {
			if _, err := s.machine.Transition(ctx, tx, codeID, lifecycle.Request{
				Target:  target,
				Comment: comment,
			}); err != nil {
				return err
			}
		}
		moved = len(codeIDs)
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.log.WithPart(partID.String()).Info("bulk transition applied",
		"target", target,
		"count", moved)
	return moved, nil
}
