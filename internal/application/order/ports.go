package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/Zhima-Mochi/supershop/internal/application"

	"github.com/shopspring/decimal"
)

// ErrKeyInFlight is returned by Reserve while another request holds the key.
var ErrKeyInFlight = fmt.Errorf("%w: idempotency key in flight", application.ErrConflict)

// Receipt is what a completed key remembers: enough to answer a replay the
// same way the first request was answered.
type Receipt struct {
	OrderID int64
	Total   decimal.Decimal
}

// IdempotencyStore remembers which order a client-supplied key produced.
// Keys are namespaced by scope (the ordering user) so two users never collide.
type IdempotencyStore interface {
	// Reserve claims key. reserved is false when the key already completed, in
	// which case the receipt describes the order it produced. A key still being
	// processed yields ErrKeyInFlight.
	Reserve(ctx context.Context, scope, key string) (receipt Receipt, reserved bool, err error)
	// Complete records the order produced under a reserved key.
	Complete(ctx context.Context, scope, key string, receipt Receipt) error
	// Release frees a reserved key after a failed attempt so the client may retry.
	Release(ctx context.Context, scope, key string) error
}

// IsKeyInFlight reports whether err came from a reservation held by another request.
func IsKeyInFlight(err error) bool { return errors.Is(err, ErrKeyInFlight) }
