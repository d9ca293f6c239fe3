package analysis

import (
	"context"
	"sort"
	"time"

	"github.com/Zhima-Mochi/supershop/internal/domain/money"
	"github.com/shopspring/decimal"
)

// Sale is one line item of a completed order for a given product.
type Sale struct {
	OrderID   int64           `db:"order_id"`
	Quantity  int             `db:"quantity"`
	UnitPrice decimal.Decimal `db:"price"`
	CreatedAt time.Time       `db:"created_at"`
}

// Stats aggregates a product's sales. Zero-valued when it never sold.
type Stats struct {
	TotalOrders         int
	TotalSold           int
	TotalRevenue        decimal.Decimal
	AvgQuantityPerOrder decimal.Decimal
}

// Summarize counts distinct orders and sums quantity and revenue over every line.
func Summarize(sales []Sale) Stats {
	st := Stats{TotalRevenue: decimal.Zero, AvgQuantityPerOrder: decimal.Zero}
	orders := make(map[int64]struct{}, len(sales))
	for _, s := range sales {
		orders[s.OrderID] = struct{}{}
		st.TotalSold += s.Quantity
		st.TotalRevenue = st.TotalRevenue.Add(money.LineTotal(s.UnitPrice, s.Quantity))
	}
	st.TotalOrders = len(orders)
	if st.TotalOrders > 0 {
		st.AvgQuantityPerOrder = decimal.NewFromInt(int64(st.TotalSold)).
			Div(decimal.NewFromInt(int64(st.TotalOrders))).
			Round(money.Scale)
	}
	return st
}

// MonthlyPoint is the units and revenue sold in one calendar month (UTC, "2006-01").
type MonthlyPoint struct {
	Month   string
	Sold    int
	Revenue decimal.Decimal
}

// MonthlyTrend buckets sales by month and returns at most months buckets,
// newest first. Months without sales are not reported.
func MonthlyTrend(sales []Sale, months int) []MonthlyPoint {
	byMonth := make(map[string]*MonthlyPoint)
	for _, s := range sales {
		key := s.CreatedAt.UTC().Format("2006-01")
		p, ok := byMonth[key]
		if !ok {
			p = &MonthlyPoint{Month: key, Revenue: decimal.Zero}
			byMonth[key] = p
		}
		p.Sold += s.Quantity
		p.Revenue = p.Revenue.Add(money.LineTotal(s.UnitPrice, s.Quantity))
	}

	out := make([]MonthlyPoint, 0, len(byMonth))
	for _, p := range byMonth {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month > out[j].Month })
	if months > 0 && len(out) > months {
		out = out[:months]
	}
	return out
}

// ProductSales is a product's lifetime sales used by the sales overview.
type ProductSales struct {
	ProductID int64           `db:"product_id"`
	Name      string          `db:"name"`
	Price     decimal.Decimal `db:"price"`
	Stock     int             `db:"stock"`
	TotalSold int             `db:"total_sold"`
	Revenue   decimal.Decimal `db:"revenue"`
}

// Totals are store-wide figures for the sales overview.
type Totals struct {
	Products int
	Orders   int
	Revenue  decimal.Decimal
	Stock    int
}

// Reader is the read side of the storage collaborator used by the analyzer.
type Reader interface {
	// CompletedOrderProducts returns every (order, product) pair of completed orders.
	CompletedOrderProducts(ctx context.Context) ([]OrderProduct, error)
	// CompletedOrderProductsWith restricts the pairs to completed orders containing productID.
	CompletedOrderProductsWith(ctx context.Context, productID int64) ([]OrderProduct, error)
	// CompletedSales returns every completed line item for productID.
	CompletedSales(ctx context.Context, productID int64) ([]Sale, error)
	// TopSellers ranks products by units sold, ties by ascending id.
	TopSellers(ctx context.Context, limit int) ([]ProductSales, error)
	Totals(ctx context.Context) (Totals, error)
}
