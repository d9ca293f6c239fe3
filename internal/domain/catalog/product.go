package catalog

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("catalog: product not found")

// Product is the catalog row as the storefront core reads it.
type Product struct {
	ID          int64
	Name        string
	Description string
	Barcode     string
	Price       decimal.Decimal
	Stock       int
	CategoryID  int64
	Category    string
}

type Reader interface {
	// FindProduct returns ErrNotFound when no product has the id.
	FindProduct(ctx context.Context, id int64) (*Product, error)
	// ProductsByID silently omits ids that do not exist.
	ProductsByID(ctx context.Context, ids []int64) (map[int64]Product, error)
	// ListProducts returns every product ordered by name.
	ListProducts(ctx context.Context) ([]Product, error)
}
