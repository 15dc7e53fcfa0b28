package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sellerhub/marking/common/faults"
)

func TestMapConflictTranslatesRetryableAborts(t *testing.T) {
	for _, code := range []string{serializationFailure, deadlockDetected} {
		pgErr := &pgconn.PgError{Code: code, Message: "aborted"}
		err := mapConflict(fmt.Errorf("update event pointer: %w", pgErr))
		if !faults.IsConflict(err) {
			t.Fatalf("code %s should map to a conflict, got %v", code, err)
		}
	}
}

func TestMapConflictLeavesOtherErrorsAlone(t *testing.T) {
	plain := errors.New("connection reset")
	if err := mapConflict(plain); err != plain {
		t.Fatalf("non-pg error changed: %v", err)
	}

	unique := &pgconn.PgError{Code: "23505"}
	if faults.IsConflict(mapConflict(unique)) {
		t.Fatal("unique violation must not become a conflict")
	}

	if err := mapConflict(nil); err != nil {
		t.Fatalf("nil error changed: %v", err)
	}
}
