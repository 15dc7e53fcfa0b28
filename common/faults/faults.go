// Package faults defines the error taxonomy shared by the allocation,
// transition, and ingestion paths. Expected outcomes (no eligible code, a
// duplicate page) are modeled as typed errors so callers can branch without
// string matching.
package faults

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrNotFound marks "no such row / no eligible candidate" outcomes. Allocation
// treats it as a normal result; order reactions treat it as a data integrity
// problem.
var ErrNotFound = errors.New("not found")

// ErrConflict marks a lost race for the same allocation; callers retry from
// scratch with a bound.
var ErrConflict = errors.New("allocation conflict")

// ValidationError rejects a malformed transition request before persistence
type ValidationError struct {
	CodeID uuid.UUID
	Reason string
}

func (e *ValidationError) Error() string {
	if e.CodeID == uuid.Nil {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed for code %s: %s", e.CodeID, e.Reason)
}

// DecodeError means the symbol could not be decoded or decoded to a
// structurally invalid value. Not fatal: the page still becomes a
// permanently error-tagged record.
type DecodeError struct {
	Page   int
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode failed on page %d: %s", e.Page, e.Reason)
}

// MismatchError means a decoded value belongs to a different product than
// requested; the remaining pages of the source document are aborted.
type MismatchError struct {
	Page  int
	Value string
	GTIN  string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("page %d decodes to product item %s not matching the requested product", e.Page, e.GTIN)
}

// DuplicateError means the decoded value already exists for this owner;
// skip-and-continue.
type DuplicateError struct {
	OwnerID uuid.UUID
	Value   string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("code value already registered for owner %s", e.OwnerID)
}

// InsufficientError is the user-visible allocation shortage outcome
type InsufficientError struct {
	Requested int
	Available int
}

func (e *InsufficientError) Error() string {
	return fmt.Sprintf("insufficient codes: requested %d, available %d", e.Requested, e.Available)
}

// IsNotFound reports whether err is a not-found outcome
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict reports whether err is a lost allocation race
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsValidation reports whether err is a transition validation rejection
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsDuplicate reports whether err is a per-owner duplicate value
func IsDuplicate(err error) bool {
	var de *DuplicateError
	return errors.As(err, &de)
}

// IsMismatch reports whether err is a product mismatch batch abort
func IsMismatch(err error) bool {
	var me *MismatchError
	return errors.As(err, &me)
}
