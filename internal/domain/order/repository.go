package order

import "context"

// Tx is the storage collaborator as seen from inside one unit of work.
type Tx interface {
	// LockStock reads the product's stock and holds it against concurrent
	// writers until the unit of work ends. Unknown products yield catalog.ErrNotFound.
	LockStock(ctx context.Context, productID int64) (int, error)
	// DecrementStock subtracts quantity iff the result stays non-negative,
	// otherwise it returns an error matching inventory.ErrInsufficientStock.
	DecrementStock(ctx context.Context, productID int64, quantity int) error
	InsertOrder(ctx context.Context, o *Order) (int64, error)
	InsertLine(ctx context.Context, orderID int64, l Line) error
	InsertPayment(ctx context.Context, p Payment) error
}

// UnitOfWork runs fn atomically: every mutation made through tx commits when fn
// returns nil and none survives when it returns an error.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
