package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sellerhub/marking/common/faults"
	"github.com/sellerhub/marking/common/lifecycle"
	"github.com/sellerhub/marking/common/logger"
	"github.com/sellerhub/marking/common/models"
)

type poolCode struct {
	id        uuid.UUID
	ownerID   uuid.UUID
	profileID uuid.UUID
	sellerID  *uuid.UUID
	tuple     models.ProductTuple
	partID    uuid.UUID
	status    models.Status
	orderID   *uuid.UUID
}

// fakePool mimics the allocation query: status new, exact tuple match,
// seller unset or equal to the acting profile, self-owned codes before
// partner-owned ones, oldest first within each tier. Insertion order stands
// in for updated_at.
type fakePool struct {
	codes []*poolCode

	conflictsLeft int
}

func (p *fakePool) add(code *poolCode) uuid.UUID {
	code.id = uuid.New()
	code.status = models.StatusNew
	p.codes = append(p.codes, code)
	return code.id
}

func (p *fakePool) find(id uuid.UUID) *poolCode {
	for _, c := range p.codes {
		if c.id == id {
			return c
		}
	}
	return nil
}

func (p *fakePool) FindOneAvailable(_ context.Context, _ pgx.Tx, ownerID, profileID uuid.UUID, tuple models.ProductTuple) (uuid.UUID, error) {
	var best *poolCode
	for _, c := range p.codes {
		if c.status != models.StatusNew || c.ownerID != ownerID || c.tuple.String() != tuple.String() {
			continue
		}
		if c.sellerID != nil && *c.sellerID != profileID {
			continue
		}
		if best == nil {
			best = c
			continue
		}
		bestSelf := best.profileID == profileID
		candSelf := c.profileID == profileID
		if candSelf && !bestSelf {
			best = c
		}
	}
	if best == nil {
		return uuid.Nil, faults.ErrNotFound
	}
	return best.id, nil
}

func (p *fakePool) ListByPartWithStatus(_ context.Context, _ pgx.Tx, partID uuid.UUID, status models.Status) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for _, c := range p.codes {
		if c.partID == partID && c.status == status {
			ids = append(ids, c.id)
		}
	}
	return ids, nil
}

func (p *fakePool) Transition(_ context.Context, _ pgx.Tx, codeID uuid.UUID, req lifecycle.Request) (*models.CodeEvent, error) {
	if p.conflictsLeft > 0 {
		p.conflictsLeft--
		return nil, faults.ErrConflict
	}
	code := p.find(codeID)
	if code == nil {
		return nil, faults.ErrNotFound
	}
	code.status = req.Target
	code.orderID = req.OrderID
	return &models.CodeEvent{ID: uuid.New(), CodeID: codeID, Status: req.Target, OrderID: req.OrderID}, nil
}

// rollbackRunner restores pool state when the transaction function fails,
// approximating a real rollback
type rollbackRunner struct {
	pool *fakePool
}

func (r *rollbackRunner) WithTx(_ context.Context, fn func(tx pgx.Tx) error) error {
	snapshot := make([]poolCode, len(r.pool.codes))
	for i, c := range r.pool.codes {
		snapshot[i] = *c
	}
	if err := fn(nil); err != nil {
		for i := range r.pool.codes {
			*r.pool.codes[i] = snapshot[i]
		}
		return err
	}
	return nil
}

func newReserveService(pool *fakePool) *ReserveService {
	return NewReserveService(logger.New("error", "json"), &rollbackRunner{pool: pool}, pool, pool)
}

func reserveRequest(ownerID, profileID uuid.UUID, tuple models.ProductTuple, quantity int) *ReserveRequest {
	return &ReserveRequest{
		OwnerID:   ownerID,
		ProfileID: profileID,
		OrderID:   uuid.New(),
		Tuple:     tuple,
		Quantity:  quantity,
	}
}

func TestReserveTakesOldestFirst(t *testing.T) {
	owner := uuid.New()
	profile := uuid.New()
	tuple := models.ProductTuple{MaterialID: uuid.New()}
	pool := &fakePool{}
	first := pool.add(&poolCode{ownerID: owner, profileID: profile, tuple: tuple})
	second := pool.add(&poolCode{ownerID: owner, profileID: profile, tuple: tuple})
	pool.add(&poolCode{ownerID: owner, profileID: profile, tuple: tuple})

	reserved, err := newReserveService(pool).Reserve(context.Background(), reserveRequest(owner, profile, tuple, 2))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reserved) != 2 || reserved[0] != first || reserved[1] != second {
		t.Fatalf("expected the two oldest codes in order, got %v", reserved)
	}
}

func TestReservePrefersSelfPool(t *testing.T) {
	owner := uuid.New()
	self := uuid.New()
	partner := uuid.New()
	tuple := models.ProductTuple{MaterialID: uuid.New()}
	pool := &fakePool{}
	// partner code is older but the self pool must drain first
	partnerCode := pool.add(&poolCode{ownerID: owner, profileID: partner, tuple: tuple})
	selfCode := pool.add(&poolCode{ownerID: owner, profileID: self, tuple: tuple})

	reserved, err := newReserveService(pool).Reserve(context.Background(), reserveRequest(owner, self, tuple, 2))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reserved[0] != selfCode || reserved[1] != partnerCode {
		t.Fatal("self-owned code must be allocated before the partner's")
	}
}

func TestReserveShortageRollsBackEverything(t *testing.T) {
	owner := uuid.New()
	profile := uuid.New()
	tuple := models.ProductTuple{MaterialID: uuid.New()}
	pool := &fakePool{}
	pool.add(&poolCode{ownerID: owner, profileID: profile, tuple: tuple})
	pool.add(&poolCode{ownerID: owner, profileID: profile, tuple: tuple})

	_, err := newReserveService(pool).Reserve(context.Background(), reserveRequest(owner, profile, tuple, 3))
	var insufficient *faults.InsufficientError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientError, got %v", err)
	}
	if insufficient.Requested != 3 || insufficient.Available != 2 {
		t.Fatalf("shortage = %+v, want requested 3 available 2", insufficient)
	}
	for _, c := range pool.codes {
		if c.status != models.StatusNew {
			t.Fatal("partial reservation must be rolled back")
		}
	}
}

func TestReserveHonorsTupleExactly(t *testing.T) {
	owner := uuid.New()
	profile := uuid.New()
	material := uuid.New()
	offer := uuid.New()
	pool := &fakePool{}
	// same material, different offer component; NULL must not match a value
	pool.add(&poolCode{ownerID: owner, profileID: profile, tuple: models.ProductTuple{MaterialID: material, OfferID: &offer}})

	_, err := newReserveService(pool).Reserve(context.Background(),
		reserveRequest(owner, profile, models.ProductTuple{MaterialID: material}, 1))
	if !isInsufficient(err) {
		t.Fatalf("tuple with NULL offer must not match a code with an offer, got %v", err)
	}
}

func TestReserveSkipsForeignSellerPins(t *testing.T) {
	owner := uuid.New()
	profile := uuid.New()
	other := uuid.New()
	tuple := models.ProductTuple{MaterialID: uuid.New()}
	pool := &fakePool{}
	pool.add(&poolCode{ownerID: owner, profileID: profile, sellerID: &other, tuple: tuple})

	_, err := newReserveService(pool).Reserve(context.Background(), reserveRequest(owner, profile, tuple, 1))
	if !isInsufficient(err) {
		t.Fatalf("code pinned to another seller must be invisible, got %v", err)
	}
}

func TestReserveRetriesLostRaces(t *testing.T) {
	owner := uuid.New()
	profile := uuid.New()
	tuple := models.ProductTuple{MaterialID: uuid.New()}
	pool := &fakePool{conflictsLeft: 1}
	pool.add(&poolCode{ownerID: owner, profileID: profile, tuple: tuple})

	reserved, err := newReserveService(pool).Reserve(context.Background(), reserveRequest(owner, profile, tuple, 1))
	if err != nil {
		t.Fatalf("one lost race must be retried, got %v", err)
	}
	if len(reserved) != 1 {
		t.Fatalf("reserved = %d, want 1", len(reserved))
	}
}

func TestReserveValidatesRequest(t *testing.T) {
	pool := &fakePool{}
	svc := newReserveService(pool)

	req := reserveRequest(uuid.New(), uuid.New(), models.ProductTuple{MaterialID: uuid.New()}, 0)
	if _, err := svc.Reserve(context.Background(), req); !faults.IsValidation(err) {
		t.Fatalf("zero quantity must fail validation, got %v", err)
	}

	req = reserveRequest(uuid.New(), uuid.New(), models.ProductTuple{}, 1)
	if _, err := svc.Reserve(context.Background(), req); !faults.IsValidation(err) {
		t.Fatalf("missing material must fail validation, got %v", err)
	}
}

func TestPartsBulkTransitions(t *testing.T) {
	owner := uuid.New()
	profile := uuid.New()
	partID := uuid.New()
	orderID := uuid.New()
	tuple := models.ProductTuple{MaterialID: uuid.New()}
	pool := &fakePool{}
	pool.add(&poolCode{ownerID: owner, profileID: profile, partID: partID, tuple: tuple})
	pool.add(&poolCode{ownerID: owner, profileID: profile, partID: partID, tuple: tuple})
	reservedID := pool.add(&poolCode{ownerID: owner, profileID: profile, partID: partID, tuple: tuple})
	pool.find(reservedID).status = models.StatusProcess
	pool.find(reservedID).orderID = &orderID

	svc := NewPartsService(logger.New("error", "json"), &rollbackRunner{pool: pool}, pool, pool)
	moved, err := svc.Decommission(context.Background(), partID, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if moved != 2 {
		t.Fatalf("moved = %d, want the 2 available codes", moved)
	}
	if pool.find(reservedID).status != models.StatusProcess {
		t.Fatal("reserved codes of the part must stay untouched")
	}
}

func isInsufficient(err error) bool {
	var insufficient *faults.InsufficientError
	return errors.As(err, &insufficient)
}
