package memory

import (
	"context"
	"sort"

	"github.com/Zhima-Mochi/supershop/internal/domain/analysis"
	"github.com/Zhima-Mochi/supershop/internal/domain/money"
	domain "github.com/Zhima-Mochi/supershop/internal/domain/order"
	"github.com/shopspring/decimal"
)

var _ analysis.Reader = (*Store)(nil)

// completedOrders returns completed orders by ascending id. Callers hold the read lock.
func (s *Store) completedOrders() []*domain.Order {
	out := make([]*domain.Order, 0, len(s.orders))
	for _, rec := range s.orders {
		if rec.order.Status == domain.StatusCompleted {
			out = append(out, rec.order)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func contains(o *domain.Order, productID int64) bool {
	for _, l := range o.Lines {
		if l.ProductID == productID {
			return true
		}
	}
	return false
}

func (s *Store) CompletedOrderProducts(ctx context.Context) ([]analysis.OrderProduct, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []analysis.OrderProduct
	for _, o := range s.completedOrders() {
		for _, l := range o.Lines {
			out = append(out, analysis.OrderProduct{OrderID: o.ID, ProductID: l.ProductID})
		}
	}
	return out, nil
}

func (s *Store) CompletedOrderProductsWith(ctx context.Context, productID int64) ([]analysis.OrderProduct, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []analysis.OrderProduct
	for _, o := range s.completedOrders() {
		if !contains(o, productID) {
			continue
		}
		for _, l := range o.Lines {
			out = append(out, analysis.OrderProduct{OrderID: o.ID, ProductID: l.ProductID})
		}
	}
	return out, nil
}

func (s *Store) CompletedSales(ctx context.Context, productID int64) ([]analysis.Sale, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []analysis.Sale
	for _, o := range s.completedOrders() {
		for _, l := range o.Lines {
			if l.ProductID != productID {
				continue
			}
			out = append(out, analysis.Sale{
				OrderID:   o.ID,
				Quantity:  l.Quantity,
				UnitPrice: l.UnitPrice,
				CreatedAt: o.CreatedAt,
			})
		}
	}
	return out, nil
}

func (s *Store) TopSellers(ctx context.Context, limit int) ([]analysis.ProductSales, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	byID := make(map[int64]*analysis.ProductSales, len(s.products))
	for id, p := range s.products {
		byID[id] = &analysis.ProductSales{
			ProductID: id,
			Name:      p.Name,
			Price:     p.Price,
			Stock:     p.Stock,
			Revenue:   decimal.Zero,
		}
	}
	for _, o := range s.completedOrders() {
		for _, l := range o.Lines {
			ps, ok := byID[l.ProductID]
			if !ok {
				continue
			}
			ps.TotalSold += l.Quantity
			ps.Revenue = ps.Revenue.Add(money.LineTotal(l.UnitPrice, l.Quantity))
		}
	}

	out := make([]analysis.ProductSales, 0, len(byID))
	for _, ps := range byID {
		out = append(out, *ps)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalSold != out[j].TotalSold {
			return out[i].TotalSold > out[j].TotalSold
		}
		return out[i].ProductID < out[j].ProductID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) Totals(ctx context.Context) (analysis.Totals, error) {
	if err := ctx.Err(); err != nil {
		return analysis.Totals{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	t := analysis.Totals{
		Products: len(s.products),
		Orders:   len(s.orders),
		Revenue:  decimal.Zero,
	}
	for _, p := range s.products {
		t.Stock += p.Stock
	}
	for _, o := range s.completedOrders() {
		for _, l := range o.Lines {
			t.Revenue = t.Revenue.Add(l.Subtotal())
		}
	}
	return t, nil
}
