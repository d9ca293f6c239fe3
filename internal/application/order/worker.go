package order

import (
	"context"

	"github.com/Zhima-Mochi/supershop/internal/application"
	domorder "github.com/Zhima-Mochi/supershop/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/supershop/internal/domain/outbox"
	"github.com/Zhima-Mochi/supershop/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	workerService   = "order-worker"
	useCaseOnPlaced = "order.worker.placed"
)

// Worker reacts to committed orders: it feeds the sales counters and flags
// products whose remaining stock fell to the low-stock threshold.
type Worker struct {
	subscriber domoutbox.Subscriber
	threshold  int
	inst       *application.Instruments

	ordersPlaced observability.Counter // orders_placed_total
	unitsSold    observability.Counter // units_sold_total
	stockLow     observability.Counter // stock_low_total
}

// NewWorker builds the worker; lowStockThreshold below zero disables the warning.
func NewWorker(subscriber domoutbox.Subscriber, tel observability.Observability, lowStockThreshold int) *Worker {
	_, _, metrics := observability.Resolve(tel)
	return &Worker{
		subscriber:   subscriber,
		threshold:    lowStockThreshold,
		inst:         application.NewInstruments(tel, workerService),
		ordersPlaced: metrics.Counter(observability.MOrdersPlaced),
		unitsSold:    metrics.Counter(observability.MUnitsSold),
		stockLow:     metrics.Counter(observability.MStockLow),
	}
}

func (w *Worker) Start() {
	if w.subscriber == nil {
		return
	}
	w.subscriber.Subscribe(domorder.OrderPlacedEvent{}.EventName(), w.handleOrderPlaced)
}

func (w *Worker) handleOrderPlaced(ctx context.Context, e domoutbox.Event) (err error) {
	evt, ok := e.(domorder.OrderPlacedEvent)
	if !ok {
		return nil
	}

	ctx, run := w.inst.Begin(ctx, useCaseOnPlaced, "OrderPlaced",
		attribute.String("event", e.EventName()),
		attribute.Int64("order.id", evt.OrderID),
	)
	defer func() { run.End(err) }()
	run.With(observability.F("order_id", evt.OrderID))

	w.ordersPlaced.Add(1)
	units := 0
	low := 0
	for _, l := range evt.Lines {
		units += l.Quantity
		if w.threshold >= 0 && l.RemainingStock <= w.threshold {
			low++
			w.stockLow.Add(1)
			run.Logger().Warn("stock_low",
				observability.F("product_id", l.ProductID),
				observability.F("remaining_stock", l.RemainingStock),
				observability.F("threshold", w.threshold),
			)
		}
	}
	w.unitsSold.Add(float64(units))

	if low > 0 {
		run.Status("STOCK_LOW")
	}
	run.With(
		observability.F("units", units),
		observability.F("low_stock_products", low),
	)
	return ctx.Err()
}
