package order

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Zhima-Mochi/supershop/internal/application"
	"github.com/Zhima-Mochi/supershop/internal/domain/catalog"
	"github.com/Zhima-Mochi/supershop/internal/domain/inventory"
	domain "github.com/Zhima-Mochi/supershop/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/supershop/internal/domain/outbox"
	"github.com/Zhima-Mochi/supershop/internal/observability"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	orderService      = "order-service"
	useCasePlaceOrder = "order.place"
	publishPeer       = "outbox"
	publishEndpoint   = "order.placed"
	publishTimeout    = 300 * time.Millisecond
	releaseTimeout    = 2 * time.Second
)

// PlaceOrderUseCase is the inventory ledger: it turns a cart into an order,
// its line items, its payment and the matching stock decrements in one unit of work.
type PlaceOrderUseCase struct {
	uow         domain.UnitOfWork
	idempotency IdempotencyStore
	publisher   domoutbox.Publisher
	txTimeout   time.Duration
	inst        *application.Instruments
}

type Options struct {
	// TxTimeout bounds the unit of work. Zero leaves it to the storage layer.
	TxTimeout time.Duration
}

// NewPlaceOrderUseCase wires the use case. idempotency and publisher may be nil.
func NewPlaceOrderUseCase(
	uow domain.UnitOfWork,
	idempotency IdempotencyStore,
	publisher domoutbox.Publisher,
	tel observability.Observability,
	opts Options,
) *PlaceOrderUseCase {
	return &PlaceOrderUseCase{
		uow:         uow,
		idempotency: idempotency,
		publisher:   publisher,
		txTimeout:   opts.TxTimeout,
		inst:        application.NewInstruments(tel, orderService),
	}
}

type PlaceOrderInput struct {
	IdempotencyKey string
	UserID         int64
	Lines          []domain.Line
	PaymentMethod  string
}

type PlaceOrderResult struct {
	OrderID  int64
	Total    decimal.Decimal
	Replayed bool
}

var _ application.UseCase[PlaceOrderInput, *PlaceOrderResult] = (*PlaceOrderUseCase)(nil)

// Execute validates the cart, claims the idempotency key if one was given and
// commits the order. Every failure inside the unit of work rolls it back.
func (uc *PlaceOrderUseCase) Execute(ctx context.Context, cmd PlaceOrderInput) (_ *PlaceOrderResult, err error) {
	ctx, run := uc.inst.Begin(ctx, useCasePlaceOrder, "PlaceOrder",
		attribute.Int64("order.user_id", cmd.UserID),
		attribute.Int("order.lines", len(cmd.Lines)),
	)
	defer func() { run.End(err) }()

	entity, derr := domain.New(cmd.UserID, cmd.Lines, cmd.PaymentMethod)
	if derr != nil {
		run.Fail("INVALID_ORDER")
		return nil, fmt.Errorf("%w: %w", application.ErrValidation, derr)
	}
	if err := ctx.Err(); err != nil {
		run.Fail("CONTEXT_CANCELED")
		return nil, err
	}

	scope := strconv.FormatInt(cmd.UserID, 10)
	if cmd.IdempotencyKey != "" && uc.idempotency != nil {
		existing, reserved, rerr := uc.idempotency.Reserve(ctx, scope, cmd.IdempotencyKey)
		switch {
		case rerr != nil && IsKeyInFlight(rerr):
			run.Fail("IDEMPOTENCY_IN_FLIGHT")
			return nil, rerr
		case rerr != nil:
			run.Fail("IDEMPOTENCY_RESERVE_FAILED")
			return nil, application.WrapStorage(rerr)
		case !reserved:
			run.Status("IDEMPOTENT_REPLAY")
			run.With(observability.F("order_id", existing.OrderID))
			run.Span().AddEvent("order.idempotent_replay",
				trace.WithAttributes(attribute.Int64("order.id", existing.OrderID)),
			)
			return &PlaceOrderResult{OrderID: existing.OrderID, Total: existing.Total, Replayed: true}, nil
		}
		defer func() {
			uc.settleKey(ctx, scope, cmd.IdempotencyKey, Receipt{OrderID: entity.ID, Total: entity.Total}, err)
		}()
	}

	remaining, err := uc.commit(ctx, entity)
	if err != nil {
		switch {
		case errors.Is(err, catalog.ErrNotFound):
			run.Fail("PRODUCT_NOT_FOUND")
		case errors.Is(err, inventory.ErrInsufficientStock):
			run.Fail("INSUFFICIENT_STOCK")
		case errors.Is(err, context.DeadlineExceeded):
			run.Fail("TX_TIMEOUT")
		default:
			run.Fail("TX_FAILED")
		}
		return nil, application.WrapStorage(err)
	}

	run.With(
		observability.F("order_id", entity.ID),
		observability.F("total", entity.Total.StringFixed(2)),
	)
	run.Span().AddEvent("order.placed",
		trace.WithAttributes(attribute.Int64("order.id", entity.ID)),
	)

	if perr := uc.publish(ctx, domain.NewOrderPlacedEvent(entity, remaining)); perr != nil {
		run.Status("EVENT_PUBLISH_FAILED")
		run.With(observability.F("event_publish_error", perr.Error()))
	}

	return &PlaceOrderResult{OrderID: entity.ID, Total: entity.Total}, nil
}

// commit runs the ledger's unit of work and returns each product's stock after the decrement.
func (uc *PlaceOrderUseCase) commit(ctx context.Context, o *domain.Order) (map[int64]int, error) {
	if uc.txTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, uc.txTimeout)
		defer cancel()
	}

	quantities := o.Quantities()
	var remaining map[int64]int

	err := uc.uow.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		remaining = make(map[int64]int, len(quantities))

		// Every line is checked before anything is written.
		for _, q := range quantities {
			stock, err := tx.LockStock(ctx, q.ProductID)
			if err != nil {
				return fmt.Errorf("lock stock %d: %w", q.ProductID, err)
			}
			if stock < q.Quantity {
				return &inventory.InsufficientStockError{
					ProductID: q.ProductID,
					Requested: q.Quantity,
					Available: stock,
				}
			}
			remaining[q.ProductID] = stock - q.Quantity
		}

		id, err := tx.InsertOrder(ctx, o)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		o.ID = id

		for _, l := range o.Lines {
			if err := tx.InsertLine(ctx, id, l); err != nil {
				return fmt.Errorf("insert line for product %d: %w", l.ProductID, err)
			}
		}
		if err := tx.InsertPayment(ctx, o.Payment()); err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}

		for _, q := range quantities {
			if err := tx.DecrementStock(ctx, q.ProductID, q.Quantity); err != nil {
				return fmt.Errorf("decrement stock %d: %w", q.ProductID, err)
			}
		}
		return nil
	})
	if err != nil {
		o.ID = 0
		return nil, err
	}
	return remaining, nil
}

func (uc *PlaceOrderUseCase) settleKey(ctx context.Context, scope, key string, receipt Receipt, err error) {
	// The request context may already be done; the key must still be settled.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	logger := uc.inst.Logger()
	if err != nil {
		if rerr := uc.idempotency.Release(ctx, scope, key); rerr != nil {
			logger.Warn("idempotency_release_failed", observability.F("error", rerr))
		}
		return
	}
	if cerr := uc.idempotency.Complete(ctx, scope, key, receipt); cerr != nil {
		logger.Warn("idempotency_complete_failed",
			observability.F("order_id", receipt.OrderID),
			observability.F("error", cerr),
		)
	}
}

// publish is best effort: the order is already committed when it runs.
func (uc *PlaceOrderUseCase) publish(ctx context.Context, evt domoutbox.Event) error {
	if uc.publisher == nil {
		return nil
	}
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	start := time.Now()
	outcome := "success"
	err := uc.publisher.Publish(pubCtx, evt)
	if err != nil {
		outcome = "error"
	} else if pubCtx.Err() != nil {
		outcome = "canceled"
		err = pubCtx.Err()
	}
	uc.inst.External(publishPeer, publishEndpoint, outcome, time.Since(start))
	return err
}
