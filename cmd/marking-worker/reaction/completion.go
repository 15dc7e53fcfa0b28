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

// CompletionHandler closes out reserved codes when an order reaches its
// completed state: one code per physical unit shipped goes to done, and any
// reservation the order did not consume returns to the free pool.
type CompletionHandler struct {
	log     *logger.Logger
	guard   idempotency.Guard
	runner  TxRunner
	codes   CodeFinder
	machine Transitioner
	orders  OrderAPI
}

// NewCompletionHandler creates a completion reaction handler
func NewCompletionHandler(log *logger.Logger, guard idempotency.Guard, runner TxRunner, codes CodeFinder, machine Transitioner, orders OrderAPI) *CompletionHandler {
	return &CompletionHandler{log: log, guard: guard, runner: runner, codes: codes, machine: machine, orders: orders}
}

// Name identifies this handler in guard keys and logs
func (h *CompletionHandler) Name() string { return "completion" }

// Handle reacts to one order notification. Safe to call repeatedly with the
// same notification.
func (h *CompletionHandler) Handle(ctx context.Context, note *models.OrderNotification) error {
	log := h.log.WithOrderID(note.OrderID.String())
	key := guardKey(note.OrderID, models.StatusDone, h.Name())

	seen, err := h.guard.Seen(ctx, GuardNamespace, key)
	if err != nil {
		return fmt.Errorf("failed to check completion guard: %w", err)
	}
	if seen {
		log.Debug("completion already applied, skipping")
		return nil
	}

	event, err := h.orders.OrderEvent(ctx, note.EventID)
	if err != nil {
		if faults.IsNotFound(err) {
			// the order service has already forgotten this event; nothing
			// left to react to, retrying will not help
			log.Error("order event vanished upstream, dropping notification", "event_id", note.EventID)
			return nil
		}
		return fmt.Errorf("failed to resolve order event: %w", err)
	}
	if event.Status != models.OrderCompleted {
		return nil
	}

	err = h.runner.WithTx(ctx, func(tx pgx.Tx) error {
		for _, line := range event.Lines {
			if err := h.fulfillLine(ctx, tx, log, event, line); err != nil {
				return err
			}
		}
		return h.releaseLeftovers(ctx, tx, log, event)
	})
	if err != nil {
		return err
	}

	if err := h.guard.Mark(ctx, GuardNamespace, key); err != nil {
		// the work is committed; a redelivery will re-read the order,
		// find nothing left in process and change nothing
		log.Warn("failed to mark completion as processed", "error", err)
	}
	return nil
}

// fulfillLine moves one reserved code to done per physical unit the line
// expands to. A finished good without a recipe consumes codes of its own
// product tuple.
func (h *CompletionHandler) fulfillLine(ctx context.Context, tx pgx.Tx, log *logger.Logger, event *models.OrderEvent, line models.OrderLine) error {
	components, err := h.orders.Recipe(ctx, line.Tuple.MaterialID)
	if err != nil {
		return fmt.Errorf("failed to resolve recipe: %w", err)
	}
	if len(components) == 0 {
		components = []models.RecipeComponent{{Tuple: line.Tuple, Quantity: 1}}
	}

	for _, component := range components {
		need := component.Quantity * line.Quantity
		for i := 0; i < need; i++ {
			codeID, err := h.codes.FindProcessForOrderTuple(ctx, tx, event.OrderID, component.Tuple)
			if err != nil {
				if faults.IsNotFound(err) {
					log.Warn("reservation shortage on completion",
						"tuple", component.Tuple.String(),
						"fulfilled", i,
						"needed", need)
					break
				}
				return err
			}

			if _, err := h.machine.Transition(ctx, tx, codeID, lifecycle.Request{
				Target:  models.StatusDone,
				Comment: "order completed",
			}); err != nil {
				return fmt.Errorf("failed to finalize code %s: %w", codeID, err)
			}
		}
	}
	return nil
}

// releaseLeftovers returns reservations the completed order did not
// consume, such as over-reserved quantities after an order edit
func (h *CompletionHandler) releaseLeftovers(ctx context.Context, tx pgx.Tx, log *logger.Logger, event *models.OrderEvent) error {
	leftovers, err := h.codes.ListProcessByOrder(ctx, tx, event.OrderID)
	if err != nil {
		return err
	}
	for _, codeID := range leftovers {
		if _, err := h.machine.Transition(ctx, tx, codeID, lifecycle.Request{
			Target:  models.StatusNew,
			Comment: "released unused reservation on completion",
		}); err != nil {
			return fmt.Errorf("failed to release code %s: %w", codeID, err)
		}
	}
	if len(leftovers) > 0 {
		log.Info("released unused reservations", "count", len(leftovers))
	}
	return nil
}
