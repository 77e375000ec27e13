package orders

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joao-fontenele/shopflow/internal/domain"
)

// ErrConcurrencyConflict is returned when the order transaction kept losing
// against concurrent orders for the same products.
var ErrConcurrencyConflict = errors.New("order conflicted with concurrent updates")

// ValidationError lists every rule the request broke. It is returned before
// any storage is touched.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid order: " + strings.Join(e.Problems, "; ")
}

type NotFoundError struct {
	ProductID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

type InsufficientStockError struct {
	ProductID   string
	ProductName string
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", e.ProductName, e.Requested, e.Available)
}

// StorageError wraps any persistence failure that is not a business rule.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// TransitionError is returned when an order cannot move from its current
// status to the requested one.
type TransitionError struct {
	From domain.OrderStatus
	To   domain.OrderStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot change status from %s to %s", e.From, e.To)
}
