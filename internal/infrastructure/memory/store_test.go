package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	apporder "github.com/Zhima-Mochi/supershop/internal/application/order"
	"github.com/Zhima-Mochi/supershop/internal/domain/catalog"
	"github.com/Zhima-Mochi/supershop/internal/domain/inventory"
	domain "github.com/Zhima-Mochi/supershop/internal/domain/order"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStoreWithProducts(t *testing.T) *Store {
	t.Helper()
	s := NewStore()
	s.PutProduct(catalog.Product{ID: 1, Name: "Apple", Price: decimal.RequireFromString("1.50"), Stock: 10})
	s.PutProduct(catalog.Product{ID: 2, Name: "Bread", Price: decimal.RequireFromString("3.00"), Stock: 5})
	return s
}

func line(productID int64, qty int, price string) domain.Line {
	return domain.Line{ProductID: productID, Quantity: qty, UnitPrice: decimal.RequireFromString(price)}
}

func TestWithinTxCommits(t *testing.T) {
	s := newStoreWithProducts(t)
	o, err := domain.New(7, []domain.Line{line(1, 2, "1.50")}, "")
	require.NoError(t, err)

	var orderID int64
	err = s.WithinTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		stock, err := tx.LockStock(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, 10, stock)

		orderID, err = tx.InsertOrder(ctx, o)
		if err != nil {
			return err
		}
		o.ID = orderID
		if err := tx.InsertLine(ctx, orderID, o.Lines[0]); err != nil {
			return err
		}
		if err := tx.InsertPayment(ctx, o.Payment()); err != nil {
			return err
		}
		return tx.DecrementStock(ctx, 1, 2)
	})
	require.NoError(t, err)

	stock, _ := s.Stock(1)
	assert.Equal(t, 8, stock)

	got, pay, ok := s.Order(orderID)
	require.True(t, ok)
	require.Len(t, got.Lines, 1)
	assert.Equal(t, "3.00", got.Total.StringFixed(2))
	require.NotNil(t, pay)
	assert.True(t, pay.Amount.Equal(got.Total))
	assert.Equal(t, "card", pay.Method)
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	s := newStoreWithProducts(t)
	o, err := domain.New(7, []domain.Line{line(1, 2, "1.50")}, "")
	require.NoError(t, err)

	boom := errors.New("boom")
	err = s.WithinTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		id, err := tx.InsertOrder(ctx, o)
		require.NoError(t, err)
		require.NoError(t, tx.InsertLine(ctx, id, o.Lines[0]))
		require.NoError(t, tx.DecrementStock(ctx, 1, 2))
		return boom
	})
	require.ErrorIs(t, err, boom)

	stock, _ := s.Stock(1)
	assert.Equal(t, 10, stock)
	assert.Zero(t, s.OrderCount())
}

func TestDecrementStockRefusesNegative(t *testing.T) {
	s := newStoreWithProducts(t)
	err := s.WithinTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		return tx.DecrementStock(ctx, 2, 6)
	})

	var ise *inventory.InsufficientStockError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, int64(2), ise.ProductID)
	assert.Equal(t, 5, ise.Available)
	assert.ErrorIs(t, err, inventory.ErrInsufficientStock)
}

func TestLockStockUnknownProduct(t *testing.T) {
	s := newStoreWithProducts(t)
	err := s.WithinTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		_, err := tx.LockStock(ctx, 99)
		return err
	})
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestWithinTxExpiredContext(t *testing.T) {
	s := newStoreWithProducts(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	called := false
	err := s.WithinTx(ctx, func(context.Context, domain.Tx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, called)
}

func TestAdjustStock(t *testing.T) {
	s := newStoreWithProducts(t)
	ctx := context.Background()

	got, err := s.AdjustStock(ctx, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, 8, got)

	got, err = s.AdjustStock(ctx, 2, -8)
	require.NoError(t, err)
	assert.Equal(t, 0, got)

	_, err = s.AdjustStock(ctx, 2, -1)
	assert.ErrorIs(t, err, inventory.ErrInsufficientStock)

	_, err = s.AdjustStock(ctx, 99, 1)
	assert.ErrorIs(t, err, catalog.ErrNotFound)

	_, err = s.AdjustStock(ctx, 1, 0)
	assert.ErrorIs(t, err, inventory.ErrInvalidAdjustment)
}

func TestCatalogReads(t *testing.T) {
	s := newStoreWithProducts(t)
	ctx := context.Background()

	p, err := s.FindProduct(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "Bread", p.Name)

	_, err = s.FindProduct(ctx, 42)
	assert.ErrorIs(t, err, catalog.ErrNotFound)

	byID, err := s.ProductsByID(ctx, []int64{1, 42})
	require.NoError(t, err)
	assert.Len(t, byID, 1)

	all, err := s.ListProducts(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Apple", all[0].Name)
}

func TestSalesReadsSkipIncompleteOrders(t *testing.T) {
	s := newStoreWithProducts(t)
	ctx := context.Background()
	march := time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC)

	s.SeedOrder(domain.Order{UserID: 1, Status: domain.StatusCompleted, CreatedAt: march,
		Lines: []domain.Line{line(1, 2, "1.50"), line(2, 1, "3.00")}})
	s.SeedOrder(domain.Order{UserID: 1, Status: domain.StatusPending, CreatedAt: march,
		Lines: []domain.Line{line(1, 9, "1.50")}})
	s.SeedOrder(domain.Order{UserID: 2, Status: domain.StatusCompleted, CreatedAt: march,
		Lines: []domain.Line{line(2, 4, "2.50")}})

	pairs, err := s.CompletedOrderProducts(ctx)
	require.NoError(t, err)
	assert.Len(t, pairs, 3)

	with, err := s.CompletedOrderProductsWith(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, with, 2)

	sales, err := s.CompletedSales(ctx, 2)
	require.NoError(t, err)
	require.Len(t, sales, 2)
	assert.Equal(t, march, sales[0].CreatedAt)

	top, err := s.TopSellers(ctx, 10)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, int64(2), top[0].ProductID)
	assert.Equal(t, 5, top[0].TotalSold)
	assert.Equal(t, "13.00", top[0].Revenue.StringFixed(2))

	totals, err := s.Totals(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, totals.Products)
	assert.Equal(t, 3, totals.Orders)
	assert.Equal(t, 15, totals.Stock)
	assert.Equal(t, "16.00", totals.Revenue.StringFixed(2))
}

func TestIdempotencyStoreLifecycle(t *testing.T) {
	s := NewIdempotencyStore(time.Minute, time.Minute)
	ctx := context.Background()

	_, reserved, err := s.Reserve(ctx, "7", "k1")
	require.NoError(t, err)
	assert.True(t, reserved)

	_, _, err = s.Reserve(ctx, "7", "k1")
	assert.ErrorIs(t, err, apporder.ErrKeyInFlight)

	_, reserved, err = s.Reserve(ctx, "8", "k1")
	require.NoError(t, err)
	assert.True(t, reserved, "keys are scoped per user")

	require.NoError(t, s.Complete(ctx, "7", "k1", apporder.Receipt{OrderID: 42, Total: decimal.RequireFromString("4.00")}))
	got, reserved, err := s.Reserve(ctx, "7", "k1")
	require.NoError(t, err)
	assert.False(t, reserved)
	assert.Equal(t, int64(42), got.OrderID)
	assert.Equal(t, "4.00", got.Total.StringFixed(2))

	require.NoError(t, s.Release(ctx, "8", "k1"))
	_, reserved, err = s.Reserve(ctx, "8", "k1")
	require.NoError(t, err)
	assert.True(t, reserved)
}

func TestIdempotencyStoreExpiry(t *testing.T) {
	s := NewIdempotencyStore(time.Minute, 10*time.Second)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	_, _, err := s.Reserve(ctx, "7", "done")
	require.NoError(t, err)
	require.NoError(t, s.Complete(ctx, "7", "done", apporder.Receipt{OrderID: 1}))

	_, _, err = s.Reserve(ctx, "7", "pending")
	require.NoError(t, err)

	now = now.Add(15 * time.Second)
	_, reserved, err := s.Reserve(ctx, "7", "pending")
	require.NoError(t, err)
	assert.True(t, reserved, "pending reservations expire after the pending ttl")

	got, reserved, err := s.Reserve(ctx, "7", "done")
	require.NoError(t, err)
	assert.False(t, reserved, "completed keys outlive the pending ttl")
	assert.Equal(t, int64(1), got.OrderID)

	now = now.Add(2 * time.Minute)
	_, reserved, err = s.Reserve(ctx, "7", "done")
	require.NoError(t, err)
	assert.True(t, reserved)
}

func TestIdempotencyStorePrunesExpiredKeys(t *testing.T) {
	s := NewIdempotencyStore(time.Minute, time.Second)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	for _, k := range []string{"a", "b", "c"} {
		_, _, err := s.Reserve(ctx, "7", k)
		require.NoError(t, err)
		require.NoError(t, s.Complete(ctx, "7", k, apporder.Receipt{OrderID: 1}))
	}
	_, _, err := s.Reserve(ctx, "7", "stuck")
	require.NoError(t, err)
	require.Equal(t, 4, s.Len())

	now = now.Add(2 * time.Minute)
	_, _, err = s.Reserve(ctx, "9", "fresh")
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())
}
