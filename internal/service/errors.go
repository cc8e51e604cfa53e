// Package service implements the order fulfillment and trust workflow engine.
package service

import (
	"errors"
	"fmt"

	"github.com/Camus10737/warket/internal/store"
)

// ValidationError reports bad input. No state was changed.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// InvalidTransitionError reports a state transition that is not legal from
// the current state.
type InvalidTransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s cannot transition from %q to %q", e.Entity, e.From, e.To)
}

// InvalidStateError reports an operation that is not legal in the entity's
// current state.
type InvalidStateError struct {
	Msg string
}

func (e *InvalidStateError) Error() string { return e.Msg }

// InsufficientStockError reports that an adjustment would make on-hand
// quantity negative. State is unchanged.
type InsufficientStockError struct {
	ProductID string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: %d available, %d requested",
		e.ProductID, e.Available, e.Requested)
}

// StockConflictError reports that a payment confirmation lost a race on
// stock and the order was parked in the problem state for manual resolution.
type StockConflictError struct {
	OrderID   string
	ProductID string
	Err       error
}

func (e *StockConflictError) Error() string {
	return fmt.Sprintf("stock conflict confirming order %s on product %s: %v",
		e.OrderID, e.ProductID, e.Err)
}

func (e *StockConflictError) Unwrap() error { return e.Err }

// ConcurrentModificationError reports a write against a stale revision.
type ConcurrentModificationError struct {
	Entity string
	ID     string
}

func (e *ConcurrentModificationError) Error() string {
	return fmt.Sprintf("%s %s was modified concurrently", e.Entity, e.ID)
}

// AlreadyProcessedError is the idempotency guard: the order's payment was
// already confirmed and no side effects were repeated.
type AlreadyProcessedError struct {
	OrderID string
}

func (e *AlreadyProcessedError) Error() string {
	return fmt.Sprintf("payment for order %s was already processed", e.OrderID)
}

// TerminalStateError reports a mutation attempted on a terminal entity.
type TerminalStateError struct {
	Entity string
	ID     string
	Status string
}

func (e *TerminalStateError) Error() string {
	return fmt.Sprintf("%s %s is in terminal state %q", e.Entity, e.ID, e.Status)
}

// mapStoreErr converts store-level failures into engine errors.
func mapStoreErr(entity, id string, err error) error {
	if errors.Is(err, store.ErrRevisionConflict) {
		return &ConcurrentModificationError{Entity: entity, ID: id}
	}
	return err
}
