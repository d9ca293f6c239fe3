package order_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Zhima-Mochi/supershop/internal/application"
	apporder "github.com/Zhima-Mochi/supershop/internal/application/order"
	"github.com/Zhima-Mochi/supershop/internal/domain/catalog"
	"github.com/Zhima-Mochi/supershop/internal/domain/inventory"
	domain "github.com/Zhima-Mochi/supershop/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/supershop/internal/domain/outbox"
	"github.com/Zhima-Mochi/supershop/internal/infrastructure/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []domoutbox.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e domoutbox.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func newStore() *memory.Store {
	s := memory.NewStore()
	s.PutProduct(catalog.Product{ID: 1, Name: "Apple", Price: decimal.RequireFromString("1.50"), Stock: 10})
	s.PutProduct(catalog.Product{ID: 2, Name: "Bread", Price: decimal.RequireFromString("3.25"), Stock: 3})
	return s
}

func line(productID int64, qty int, price string) domain.Line {
	return domain.Line{ProductID: productID, Quantity: qty, UnitPrice: decimal.RequireFromString(price)}
}

func stockOf(t *testing.T, s *memory.Store, id int64) int {
	t.Helper()
	v, ok := s.Stock(id)
	require.True(t, ok)
	return v
}

func TestPlaceOrderCommitsEverything(t *testing.T) {
	store := newStore()
	pub := &recordingPublisher{}
	uc := apporder.NewPlaceOrderUseCase(store, nil, pub, nil, apporder.Options{})

	res, err := uc.Execute(context.Background(), apporder.PlaceOrderInput{
		UserID: 9,
		Lines:  []domain.Line{line(1, 4, "1.50"), line(2, 3, "3.25")},
	})
	require.NoError(t, err)
	assert.False(t, res.Replayed)
	assert.Equal(t, "15.75", res.Total.StringFixed(2))

	assert.Equal(t, 6, stockOf(t, store, 1))
	assert.Equal(t, 0, stockOf(t, store, 2))

	o, pay, ok := store.Order(res.OrderID)
	require.True(t, ok)
	assert.Equal(t, domain.StatusCompleted, o.Status)
	assert.Len(t, o.Lines, 2)
	require.NotNil(t, pay)
	assert.True(t, pay.Amount.Equal(o.Total))

	require.Len(t, pub.events, 1)
	evt, ok := pub.events[0].(domain.OrderPlacedEvent)
	require.True(t, ok)
	assert.Equal(t, res.OrderID, evt.OrderID)
	assert.Equal(t, []domain.PlacedLine{
		{ProductID: 1, Quantity: 4, RemainingStock: 6},
		{ProductID: 2, Quantity: 3, RemainingStock: 0},
	}, evt.Lines)
}

func TestPlaceOrderKeepsCallerPrice(t *testing.T) {
	store := newStore()
	uc := apporder.NewPlaceOrderUseCase(store, nil, nil, nil, apporder.Options{})

	res, err := uc.Execute(context.Background(), apporder.PlaceOrderInput{
		UserID: 9,
		Lines:  []domain.Line{line(1, 1, "0.99")},
	})
	require.NoError(t, err)

	o, _, _ := store.Order(res.OrderID)
	assert.Equal(t, "0.99", o.Lines[0].UnitPrice.StringFixed(2))
}

func TestPlaceOrderInsufficientStockChangesNothing(t *testing.T) {
	store := newStore()
	uc := apporder.NewPlaceOrderUseCase(store, nil, nil, nil, apporder.Options{})

	_, err := uc.Execute(context.Background(), apporder.PlaceOrderInput{
		UserID: 9,
		Lines:  []domain.Line{line(1, 2, "1.50"), line(2, 4, "3.25")},
	})
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)

	var ise *inventory.InsufficientStockError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, int64(2), ise.ProductID)

	assert.Equal(t, 10, stockOf(t, store, 1))
	assert.Equal(t, 3, stockOf(t, store, 2))
	assert.Zero(t, store.OrderCount())
}

func TestPlaceOrderAggregatesRepeatedProduct(t *testing.T) {
	store := newStore()
	uc := apporder.NewPlaceOrderUseCase(store, nil, nil, nil, apporder.Options{})

	_, err := uc.Execute(context.Background(), apporder.PlaceOrderInput{
		UserID: 9,
		Lines:  []domain.Line{line(2, 2, "3.25"), line(2, 2, "3.00")},
	})
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)
	assert.Equal(t, 3, stockOf(t, store, 2))
}

func TestPlaceOrderUnknownProduct(t *testing.T) {
	store := newStore()
	uc := apporder.NewPlaceOrderUseCase(store, nil, nil, nil, apporder.Options{})

	_, err := uc.Execute(context.Background(), apporder.PlaceOrderInput{
		UserID: 9,
		Lines:  []domain.Line{line(1, 1, "1.50"), line(77, 1, "1.00")},
	})
	require.ErrorIs(t, err, catalog.ErrNotFound)
	assert.Equal(t, 10, stockOf(t, store, 1))
	assert.Zero(t, store.OrderCount())
}

func TestPlaceOrderValidation(t *testing.T) {
	tests := []struct {
		name string
		in   apporder.PlaceOrderInput
	}{
		{"missing user", apporder.PlaceOrderInput{Lines: []domain.Line{line(1, 1, "1.00")}}},
		{"empty cart", apporder.PlaceOrderInput{UserID: 1}},
		{"zero quantity", apporder.PlaceOrderInput{UserID: 1, Lines: []domain.Line{line(1, 0, "1.00")}}},
		{"negative price", apporder.PlaceOrderInput{UserID: 1, Lines: []domain.Line{line(1, 1, "-1.00")}}},
		{"sub-cent price", apporder.PlaceOrderInput{UserID: 1, Lines: []domain.Line{line(1, 1, "1.001")}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := newStore()
			uc := apporder.NewPlaceOrderUseCase(store, nil, nil, nil, apporder.Options{})
			_, err := uc.Execute(context.Background(), tc.in)
			require.ErrorIs(t, err, application.ErrValidation)
			assert.ErrorIs(t, err, domain.ErrInvalidOrder)
			assert.Zero(t, store.OrderCount())
		})
	}
}

func TestPlaceOrderConcurrentBuyersNeverOversell(t *testing.T) {
	store := newStore()
	uc := apporder.NewPlaceOrderUseCase(store, nil, nil, nil, apporder.Options{})

	const buyers = 25
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(user int64) {
			defer wg.Done()
			_, err := uc.Execute(context.Background(), apporder.PlaceOrderInput{
				UserID: user,
				Lines:  []domain.Line{line(1, 1, "1.50")},
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, inventory.ErrInsufficientStock):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(int64(i + 1))
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)
	assert.Equal(t, buyers-10, rejected)
	assert.Equal(t, 0, stockOf(t, store, 1))
	assert.Equal(t, 10, store.OrderCount())
}

func TestPlaceOrderIdempotentReplay(t *testing.T) {
	store := newStore()
	idem := memory.NewIdempotencyStore(0, 0)
	uc := apporder.NewPlaceOrderUseCase(store, idem, nil, nil, apporder.Options{})
	in := apporder.PlaceOrderInput{
		IdempotencyKey: "cart-1",
		UserID:         9,
		Lines:          []domain.Line{line(1, 2, "1.50")},
	}

	first, err := uc.Execute(context.Background(), in)
	require.NoError(t, err)

	second, err := uc.Execute(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.OrderID, second.OrderID)
	assert.Equal(t, "3.00", second.Total.StringFixed(2))

	assert.Equal(t, 8, stockOf(t, store, 1))
	assert.Equal(t, 1, store.OrderCount())
}

func TestPlaceOrderKeyInFlight(t *testing.T) {
	store := newStore()
	idem := memory.NewIdempotencyStore(0, 0)
	_, reserved, err := idem.Reserve(context.Background(), "9", "cart-1")
	require.NoError(t, err)
	require.True(t, reserved)

	uc := apporder.NewPlaceOrderUseCase(store, idem, nil, nil, apporder.Options{})
	_, err = uc.Execute(context.Background(), apporder.PlaceOrderInput{
		IdempotencyKey: "cart-1",
		UserID:         9,
		Lines:          []domain.Line{line(1, 1, "1.50")},
	})
	assert.ErrorIs(t, err, application.ErrConflict)
	assert.Zero(t, store.OrderCount())
}

func TestPlaceOrderFailureReleasesKey(t *testing.T) {
	store := newStore()
	idem := memory.NewIdempotencyStore(0, 0)
	uc := apporder.NewPlaceOrderUseCase(store, idem, nil, nil, apporder.Options{})
	in := apporder.PlaceOrderInput{
		IdempotencyKey: "cart-1",
		UserID:         9,
		Lines:          []domain.Line{line(2, 5, "3.25")},
	}

	_, err := uc.Execute(context.Background(), in)
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)

	_, err = store.AdjustStock(context.Background(), 2, 2)
	require.NoError(t, err)

	res, err := uc.Execute(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, res.Replayed)
}

func TestPlaceOrderPublishFailureStillSucceeds(t *testing.T) {
	store := newStore()
	pub := &recordingPublisher{err: errors.New("bus closed")}
	uc := apporder.NewPlaceOrderUseCase(store, nil, pub, nil, apporder.Options{})

	res, err := uc.Execute(context.Background(), apporder.PlaceOrderInput{
		UserID: 9,
		Lines:  []domain.Line{line(1, 1, "1.50")},
	})
	require.NoError(t, err)
	assert.NotZero(t, res.OrderID)
	assert.Equal(t, 9, stockOf(t, store, 1))
}

type failingUnitOfWork struct{ err error }

func (f failingUnitOfWork) WithinTx(context.Context, func(context.Context, domain.Tx) error) error {
	return f.err
}

func TestPlaceOrderStorageFailure(t *testing.T) {
	uc := apporder.NewPlaceOrderUseCase(failingUnitOfWork{err: errors.New("connection reset")}, nil, nil, nil, apporder.Options{})

	_, err := uc.Execute(context.Background(), apporder.PlaceOrderInput{
		UserID: 9,
		Lines:  []domain.Line{line(1, 1, "1.50")},
	})
	assert.ErrorIs(t, err, application.ErrStorage)
}
