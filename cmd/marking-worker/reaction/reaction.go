// Package reaction applies code lifecycle consequences of upstream order
// changes. Every handler hides behind a processed-guard so a redelivered
// notification is a no-op, and all state changes of one notification land
// in a single database transaction.
package reaction

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sellerhub/marking/common/lifecycle"
	"github.com/sellerhub/marking/common/models"
)

// GuardNamespace scopes processed-notification marks in the guard store
const GuardNamespace = "order-reaction"

// CodeFinder locates codes reserved against an order.
// Implemented by repository.CodeRepository.
type CodeFinder interface {
	FindProcessForOrderTuple(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, tuple models.ProductTuple) (uuid.UUID, error)
	ListProcessByOrder(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) ([]uuid.UUID, error)
}

// Transitioner applies one lifecycle transition.
// Implemented by lifecycle.Service.
type Transitioner interface {
	Transition(ctx context.Context, tx pgx.Tx, codeID uuid.UUID, req lifecycle.Request) (*models.CodeEvent, error)
}

// OrderAPI resolves order state and material recipes upstream.
// Implemented by clients.OrdersClient.
type OrderAPI interface {
	OrderEvent(ctx context.Context, eventID uuid.UUID) (*models.OrderEvent, error)
	Recipe(ctx context.Context, materialID uuid.UUID) ([]models.RecipeComponent, error)
}

// TxRunner runs a function inside a database transaction.
// Implemented by db.DB.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error
}

// guardKey dedupes per order, per outcome, per handler, so the completion
// and cancellation handlers of one order never shadow each other
func guardKey(orderID uuid.UUID, target models.Status, handler string) string {
	return fmt.Sprintf("%s:%s:%s", orderID, target, handler)
}
