package order

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// PlacedLine reports a committed line together with the product's stock after the decrement.
type PlacedLine struct {
	ProductID      int64
	Quantity       int
	RemainingStock int
}

// OrderPlacedEvent is emitted after the inventory ledger commits an order.
type OrderPlacedEvent struct {
	OrderID    int64
	UserID     int64
	Total      decimal.Decimal
	Lines      []PlacedLine
	OccurredAt time.Time
}

func (OrderPlacedEvent) EventName() string { return "order.placed" }

func (e OrderPlacedEvent) EventID() string { return "order-" + strconv.FormatInt(e.OrderID, 10) }

// NewOrderPlacedEvent builds the event from the committed order and the
// per-product remaining stock.
func NewOrderPlacedEvent(o *Order, remaining map[int64]int) OrderPlacedEvent {
	qs := o.Quantities()
	lines := make([]PlacedLine, 0, len(qs))
	for _, q := range qs {
		lines = append(lines, PlacedLine{
			ProductID:      q.ProductID,
			Quantity:       q.Quantity,
			RemainingStock: remaining[q.ProductID],
		})
	}
	return OrderPlacedEvent{
		OrderID:    o.ID,
		UserID:     o.UserID,
		Total:      o.Total,
		Lines:      lines,
		OccurredAt: time.Now().UTC(),
	}
}
