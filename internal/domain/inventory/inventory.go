package inventory

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrInvalidQuantity   = errors.New("inventory: quantity must be greater than zero")
	ErrInvalidAdjustment = errors.New("inventory: stock change must not be zero")
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
)

// InsufficientStockError names the product whose stock could not cover a request.
// Available is -1 when the storage layer rejected the update without reporting the level.
type InsufficientStockError struct {
	ProductID int64
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	if e.Available < 0 {
		return fmt.Sprintf("inventory: insufficient stock for product %d (requested %d)", e.ProductID, e.Requested)
	}
	return fmt.Sprintf("inventory: insufficient stock for product %d (requested %d, available %d)",
		e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

// Adjuster applies a signed stock change as a single conditional update.
// It returns the resulting stock level.
type Adjuster interface {
	AdjustStock(ctx context.Context, productID int64, delta int) (int, error)
}
