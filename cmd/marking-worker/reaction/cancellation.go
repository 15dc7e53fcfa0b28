package reaction

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/sellerhub/marking/common/faults"
	"github.com/sellerhub/marking/common/idempotency"
	"github.com/sellerhub/marking/common/lifecycle"
	"github.com/sellerhub/marking/common/logger"
	"github.com/sellerhub/marking/common/models"
)

// CancellationHandler returns every code reserved against a canceled order
// back to the free pool, detaching the order reference and any seller pin
// the reservation carried.
type CancellationHandler struct {
	log     *logger.Logger
	guard   idempotency.Guard
	runner  TxRunner
	codes   CodeFinder
	machine Transitioner
	orders  OrderAPI
}

// NewCancellationHandler creates a cancellation reaction handler
func NewCancellationHandler(log *logger.Logger, guard idempotency.Guard, runner TxRunner, codes CodeFinder, machine Transitioner, orders OrderAPI) *CancellationHandler {
	return &CancellationHandler{log: log, guard: guard, runner: runner, codes: codes, machine: machine, orders: orders}
}

// Name identifies this handler in guard keys and logs
func (h *CancellationHandler) Name() string { return "cancellation" }

// Handle reacts to one order notification. Safe to call repeatedly with the
// same notification.
func (h *CancellationHandler) Handle(ctx context.Context, note *models.OrderNotification) error {
	log := h.log.WithOrderID(note.OrderID.String())
	key := guardKey(note.OrderID, models.StatusNew, h.Name())

	seen, err := h.guard.Seen(ctx, GuardNamespace, key)
	if err != nil {
		return fmt.Errorf("failed to check cancellation guard: %w", err)
	}
	if seen {
		log.Debug("cancellation already applied, skipping")
		return nil
	}

	event, err := h.orders.OrderEvent(ctx, note.EventID)
	if err != nil {
		if faults.IsNotFound(err) {
			log.Error("order event vanished upstream, dropping notification", "event_id", note.EventID)
			return nil
		}
		return fmt.Errorf("failed to resolve order event: %w", err)
	}
	if event.Status != models.OrderCanceled {
		return nil
	}

	err = h.runner.WithTx(ctx, func(tx pgx.Tx) error {
		reserved, err := h.codes.ListProcessByOrder(ctx, tx, event.OrderID)
		if err != nil {
			return err
		}
		for _, codeID := range reserved {
			if _, err := h.machine.Transition(ctx, tx, codeID, lifecycle.Request{
				Target:  models.StatusNew,
				Comment: "order canceled",
			}); err != nil {
				return fmt.Errorf("failed to return code %s: %w", codeID, err)
			}
		}
		if len(reserved) > 0 {
			log.Info("returned reservations to pool", "count", len(reserved))
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := h.guard.Mark(ctx, GuardNamespace, key); err != nil {
		log.Warn("failed to mark cancellation as processed", "error", err)
	}
	return nil
}
