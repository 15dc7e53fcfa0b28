package lifecycle

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sellerhub/marking/common/faults"
	"github.com/sellerhub/marking/common/logger"
	"github.com/sellerhub/marking/common/models"
)

// fakeStore keeps event chains in memory and ignores the transaction handle
type fakeStore struct {
	current map[uuid.UUID]*models.CodeEvent
	chains  map[uuid.UUID][]*models.CodeEvent
	sellers map[uuid.UUID]*uuid.UUID
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		current: make(map[uuid.UUID]*models.CodeEvent),
		chains:  make(map[uuid.UUID][]*models.CodeEvent),
		sellers: make(map[uuid.UUID]*uuid.UUID),
	}
}

func (f *fakeStore) seed(status models.Status, orderID *uuid.UUID) uuid.UUID {
	codeID := uuid.New()
	ev := &models.CodeEvent{ID: uuid.New(), CodeID: codeID, Status: status, OrderID: orderID}
	f.current[codeID] = ev
	f.chains[codeID] = []*models.CodeEvent{ev}
	return codeID
}

func (f *fakeStore) CurrentEventForUpdate(ctx context.Context, tx pgx.Tx, codeID uuid.UUID) (*models.CodeEvent, error) {
	ev, ok := f.current[codeID]
	if !ok {
		return nil, faults.ErrNotFound
	}
	return ev, nil
}

func (f *fakeStore) AppendEvent(ctx context.Context, tx pgx.Tx, event *models.CodeEvent) error {
	f.current[event.CodeID] = event
	f.chains[event.CodeID] = append(f.chains[event.CodeID], event)
	return nil
}

func (f *fakeStore) SetSeller(ctx context.Context, tx pgx.Tx, codeID, sellerID uuid.UUID) error {
	f.sellers[codeID] = &sellerID
	return nil
}

func (f *fakeStore) ClearSeller(ctx context.Context, tx pgx.Tx, codeID uuid.UUID) error {
	f.sellers[codeID] = nil
	return nil
}

func newService(store *fakeStore) *Service {
	return NewService(store, logger.New("error", "text"))
}

func TestTransition_ReserveRequiresOrderAndSeller(t *testing.T) {
	store := newFakeStore()
	svc := newService(store)
	codeID := store.seed(models.StatusNew, nil)

	_, err := svc.Transition(context.Background(), nil, codeID, Request{Target: models.StatusProcess})
	if !faults.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}

	orderID := uuid.New()
	_, err = svc.Transition(context.Background(), nil, codeID, Request{Target: models.StatusProcess, OrderID: &orderID})
	if !faults.IsValidation(err) {
		t.Fatalf("expected validation error without seller, got %v", err)
	}

	sellerID := uuid.New()
	ev, err := svc.Transition(context.Background(), nil, codeID, Request{
		Target:   models.StatusProcess,
		OrderID:  &orderID,
		SellerID: &sellerID,
	})
	if err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if ev.Status != models.StatusProcess {
		t.Errorf("expected process status, got %s", ev.Status)
	}
	if ev.OrderID == nil || *ev.OrderID != orderID {
		t.Errorf("expected order reference on reservation event")
	}
	if got := store.sellers[codeID]; got == nil || *got != sellerID {
		t.Errorf("expected seller claim to be recorded")
	}
}

func TestTransition_GraphClosure(t *testing.T) {
	all := []models.Status{
		models.StatusNew, models.StatusProcess, models.StatusDone,
		models.StatusDecommission, models.StatusError, models.StatusDelete,
	}

	valid := map[[2]models.Status]bool{
		{models.StatusNew, models.StatusProcess}:      true,
		{models.StatusNew, models.StatusDecommission}: true,
		{models.StatusNew, models.StatusDelete}:       true,
		{models.StatusProcess, models.StatusDone}:     true,
		{models.StatusProcess, models.StatusNew}:      true,
	}

	orderID := uuid.New()
	sellerID := uuid.New()

	for _, from := range all {
		for _, to := range all {
			store := newFakeStore()
			svc := newService(store)

			var seedOrder *uuid.UUID
			if from == models.StatusProcess {
				seedOrder = &orderID
			}
			codeID := store.seed(from, seedOrder)

			req := Request{Target: to, Comment: "test"}
			if to == models.StatusProcess {
				req.OrderID = &orderID
				req.SellerID = &sellerID
			}

			ev, err := svc.Transition(context.Background(), nil, codeID, req)
			if valid[[2]models.Status{from, to}] {
				if err != nil {
					t.Errorf("%s -> %s: expected success, got %v", from, to, err)
				}
				continue
			}

			if err == nil {
				t.Errorf("%s -> %s: expected rejection, got event %v", from, to, ev.Status)
				continue
			}
			if !faults.IsValidation(err) {
				t.Errorf("%s -> %s: expected validation error, got %v", from, to, err)
			}
			// rejected transitions must leave the chain untouched
			if len(store.chains[codeID]) != 1 {
				t.Errorf("%s -> %s: rejected transition appended an event", from, to)
			}
		}
	}
}

func TestTransition_SingleCurrentEvent(t *testing.T) {
	store := newFakeStore()
	svc := newService(store)
	codeID := store.seed(models.StatusNew, nil)

	orderID := uuid.New()
	sellerID := uuid.New()

	steps := []Request{
		{Target: models.StatusProcess, OrderID: &orderID, SellerID: &sellerID},
		{Target: models.StatusNew},
		{Target: models.StatusProcess, OrderID: &orderID, SellerID: &sellerID},
		{Target: models.StatusDone},
	}

	for i, req := range steps {
		if _, err := svc.Transition(context.Background(), nil, codeID, req); err != nil {
			t.Fatalf("step %d failed: %v", i, err)
		}
	}

	// history retained, one current
	if len(store.chains[codeID]) != 5 {
		t.Errorf("expected 5 events in chain, got %d", len(store.chains[codeID]))
	}
	if store.current[codeID].Status != models.StatusDone {
		t.Errorf("expected current status done, got %s", store.current[codeID].Status)
	}
}

func TestTransition_CancelClearsOrderAndSeller(t *testing.T) {
	store := newFakeStore()
	svc := newService(store)

	orderID := uuid.New()
	codeID := store.seed(models.StatusProcess, &orderID)
	sellerID := uuid.New()
	store.sellers[codeID] = &sellerID

	ev, err := svc.Transition(context.Background(), nil, codeID, Request{Target: models.StatusNew, Comment: "order canceled"})
	if err != nil {
		t.Fatalf("cancel-return failed: %v", err)
	}
	if ev.OrderID != nil {
		t.Errorf("cancel-return must drop the order reference")
	}
	if store.sellers[codeID] != nil {
		t.Errorf("cancel-return must release the seller claim")
	}
}

func TestTransition_DoneKeepsOrderReference(t *testing.T) {
	store := newFakeStore()
	svc := newService(store)

	orderID := uuid.New()
	codeID := store.seed(models.StatusProcess, &orderID)

	ev, err := svc.Transition(context.Background(), nil, codeID, Request{Target: models.StatusDone})
	if err != nil {
		t.Fatalf("fulfillment failed: %v", err)
	}
	if ev.OrderID == nil || *ev.OrderID != orderID {
		t.Errorf("fulfillment event must keep the order reference")
	}
}

func TestTransition_UnknownCode(t *testing.T) {
	svc := newService(newFakeStore())

	_, err := svc.Transition(context.Background(), nil, uuid.New(), Request{Target: models.StatusDecommission})
	if !faults.IsNotFound(err) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestTransition_ErrorNeverATarget(t *testing.T) {
	store := newFakeStore()
	svc := newService(store)
	codeID := store.seed(models.StatusNew, nil)

	_, err := svc.Transition(context.Background(), nil, codeID, Request{Target: models.StatusError})
	if !faults.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
