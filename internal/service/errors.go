// Package service holds the enrollment core: the hold manager, the expiry
// sweeper, the payment reconciliation engine, and the checkout, catalog
// and admin operations built on them.  Every dependency is injected
// through a constructor so tests can substitute fakes.
package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/lingua-enrollment/internal/repository"
)

var (
	// ErrSlotUnavailable means a requested slot already has a blocking
	// reservation.  The caller may retry with different slots.
	ErrSlotUnavailable = errors.New("slot unavailable")
	// ErrValidation marks malformed requests.
	ErrValidation = errors.New("validation error")
	// ErrUpstreamProcessor means the payment processor call failed.
	ErrUpstreamProcessor = errors.New("payment processor unavailable")
	// ErrReconciliationMiss means a payment resolved to no reservation and
	// no non-slot checkout.  It is logged, never returned to the processor.
	ErrReconciliationMiss = errors.New("payment matched no reservation")
	// ErrStorage means the ledger could not be read or written.
	ErrStorage = errors.New("storage error")

	// ErrNotFound and ErrConflict are the repository errors surfaced by
	// admin operations.
	ErrNotFound = repository.ErrNotFound
	ErrConflict = repository.ErrConflict
)

// SlotUnavailableError lists the slots that blocked a hold.
type SlotUnavailableError struct {
	SlotIDs []uint64
}

func (e *SlotUnavailableError) Error() string {
	ids := make([]string, len(e.SlotIDs))
	for i, id := range e.SlotIDs {
		ids[i] = fmt.Sprint(id)
	}
	return fmt.Sprintf("slot unavailable: %s", strings.Join(ids, ","))
}

// Is lets errors.Is(err, ErrSlotUnavailable) match.
func (e *SlotUnavailableError) Is(target error) bool { return target == ErrSlotUnavailable }

// ValidationError describes one rejected field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// Is lets errors.Is(err, ErrValidation) match.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}
