package analysis_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Zhima-Mochi/supershop/internal/application"
	appanalysis "github.com/Zhima-Mochi/supershop/internal/application/analysis"
	"github.com/Zhima-Mochi/supershop/internal/domain/analysis"
	"github.com/Zhima-Mochi/supershop/internal/domain/catalog"
	domain "github.com/Zhima-Mochi/supershop/internal/domain/order"
	"github.com/Zhima-Mochi/supershop/internal/infrastructure/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	productA int64 = 1
	productB int64 = 2
	productC int64 = 3
	productD int64 = 4
)

func price(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func seed(t *testing.T) *memory.Store {
	t.Helper()
	s := memory.NewStore()
	s.PutProduct(catalog.Product{ID: productA, Name: "Apple", Price: price("1.00"), Stock: 50})
	s.PutProduct(catalog.Product{ID: productB, Name: "Bread", Price: price("2.50"), Stock: 50})
	s.PutProduct(catalog.Product{ID: productC, Name: "Cheese", Price: price("4.00"), Stock: 50})
	s.PutProduct(catalog.Product{ID: productD, Name: "Dates", Price: price("6.00"), Stock: 50})

	jan := time.Date(2025, time.January, 10, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2025, time.February, 10, 0, 0, 0, 0, time.UTC)
	order := func(at time.Time, status domain.Status, lines ...domain.Line) {
		s.SeedOrder(domain.Order{UserID: 1, Status: status, CreatedAt: at, Lines: lines})
	}
	l := func(id int64, q int, p string) domain.Line {
		return domain.Line{ProductID: id, Quantity: q, UnitPrice: price(p)}
	}
	order(jan, domain.StatusCompleted, l(productA, 1, "1.00"), l(productB, 2, "2.50"))
	order(jan, domain.StatusCompleted, l(productA, 2, "1.00"), l(productC, 1, "4.00"))
	order(feb, domain.StatusCompleted, l(productA, 1, "1.00"), l(productA, 1, "0.90"), l(productB, 1, "2.50"), l(productC, 1, "4.00"))
	order(feb, domain.StatusPending, l(productA, 5, "1.00"), l(productD, 1, "6.00"))
	return s
}

func TestGlobalAssociations(t *testing.T) {
	store := seed(t)
	svc := appanalysis.NewService(store, store, nil)

	got, err := svc.GlobalAssociations(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 66.7, got.Associations[productA][productB])
	assert.Equal(t, 100.0, got.Associations[productB][productA])
	assert.Equal(t, 50.0, got.Associations[productB][productC])
	assert.NotContains(t, got.Associations, productD, "pending orders are ignored")
	assert.Len(t, got.Products, 4)

	again, err := svc.GlobalAssociations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestProductAnalysis(t *testing.T) {
	store := seed(t)
	svc := appanalysis.NewService(store, store, nil)

	got, err := svc.ProductAnalysis(context.Background(), productA)
	require.NoError(t, err)

	assert.Equal(t, "Apple", got.Product.Name)
	require.Len(t, got.Associated, 2)
	assert.Equal(t, productB, got.Associated[0].ProductID)
	assert.Equal(t, 2, got.Associated[0].Count)
	assert.Equal(t, 66.7, got.Associated[0].Percentage)
	assert.Equal(t, "Bread", got.Associated[0].Name)
	assert.Equal(t, productC, got.Associated[1].ProductID)

	assert.Equal(t, 3, got.Stats.TotalOrders)
	assert.Equal(t, 5, got.Stats.TotalSold)
	assert.Equal(t, "4.90", got.Stats.TotalRevenue.StringFixed(2))
	assert.Equal(t, "1.67", got.Stats.AvgQuantityPerOrder.StringFixed(2))

	assert.Equal(t, []string{"2025-02", "2025-01"}, months(got.Trend))
	assert.Equal(t, 2, got.Trend[0].Sold)
}

func TestProductAnalysisNeverSold(t *testing.T) {
	store := seed(t)
	svc := appanalysis.NewService(store, store, nil)

	got, err := svc.ProductAnalysis(context.Background(), productD)
	require.NoError(t, err)
	assert.Empty(t, got.Associated)
	assert.NotNil(t, got.Associated)
	assert.Empty(t, got.Trend)
	assert.Zero(t, got.Stats.TotalOrders)
	assert.True(t, got.Stats.TotalRevenue.IsZero())
}

func TestProductAnalysisNotFound(t *testing.T) {
	svc := appanalysis.NewService(seed(t), seed(t), nil)

	_, err := svc.ProductAnalysis(context.Background(), 404)
	assert.ErrorIs(t, err, catalog.ErrNotFound)

	_, err = svc.ProductAnalysis(context.Background(), -1)
	assert.ErrorIs(t, err, application.ErrValidation)
}

func TestSalesOverview(t *testing.T) {
	store := seed(t)
	svc := appanalysis.NewService(store, store, nil)

	got, err := svc.SalesOverview(context.Background())
	require.NoError(t, err)
	require.Len(t, got.TopProducts, 4)
	assert.Equal(t, productA, got.TopProducts[0].ProductID)
	assert.Equal(t, 5, got.TopProducts[0].TotalSold)
	assert.Equal(t, 4, got.Totals.Orders)
	assert.Equal(t, 200, got.Totals.Stock)
	assert.Equal(t, "20.40", got.Totals.Revenue.StringFixed(2))
}

type brokenReader struct{ analysis.Reader }

func (brokenReader) CompletedOrderProducts(context.Context) ([]analysis.OrderProduct, error) {
	return nil, errors.New("driver: bad connection")
}

func TestGlobalAssociationsStorageFailure(t *testing.T) {
	store := seed(t)
	svc := appanalysis.NewService(brokenReader{Reader: store}, store, nil)

	_, err := svc.GlobalAssociations(context.Background())
	assert.ErrorIs(t, err, application.ErrStorage)
}

func months(points []analysis.MonthlyPoint) []string {
	out := make([]string, len(points))
	for i, p := range points {
		out[i] = p.Month
	}
	return out
}
