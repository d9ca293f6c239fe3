// Package analysis computes purchase-association statistics over completed orders.
//
// Everything here is a pure function of the rows handed in; nothing is cached
// or persisted between calls.
package analysis

import (
	"sort"

	"github.com/Zhima-Mochi/supershop/internal/domain/money"
)

// OrderProduct is one (order, product) pair from a completed order. The same
// pair may appear more than once when an order has several lines for one product.
type OrderProduct struct {
	OrderID   int64 `db:"order_id"`
	ProductID int64 `db:"product_id"`
}

// Matrix holds per-product purchase counts and symmetric pairwise co-occurrence
// counts. A product counts once per order no matter how many lines it has there.
//
// Building it costs O(orders × distinct items per order²), which is fine for a
// storefront-sized catalog but grows quadratically with basket size.
type Matrix struct {
	purchases map[int64]int
	co        map[int64]map[int64]int
}

// BuildMatrix groups rows by order and counts presences and pairs.
func BuildMatrix(rows []OrderProduct) *Matrix {
	baskets := make(map[int64]map[int64]struct{})
	for _, r := range rows {
		b, ok := baskets[r.OrderID]
		if !ok {
			b = make(map[int64]struct{})
			baskets[r.OrderID] = b
		}
		b[r.ProductID] = struct{}{}
	}

	m := &Matrix{
		purchases: make(map[int64]int),
		co:        make(map[int64]map[int64]int),
	}
	for _, b := range baskets {
		ids := make([]int64, 0, len(b))
		for id := range b {
			ids = append(ids, id)
			m.purchases[id]++
		}
		for i := 0; i < len(ids); i++ {
			for j := i + 1; j < len(ids); j++ {
				m.incr(ids[i], ids[j])
				m.incr(ids[j], ids[i])
			}
		}
	}
	return m
}

func (m *Matrix) incr(a, b int64) {
	row, ok := m.co[a]
	if !ok {
		row = make(map[int64]int)
		m.co[a] = row
	}
	row[b]++
}

// PurchaseCount is the number of orders containing the product.
func (m *Matrix) PurchaseCount(productID int64) int { return m.purchases[productID] }

// CoOccurrence is the number of orders containing both products.
func (m *Matrix) CoOccurrence(a, b int64) int { return m.co[a][b] }

// Products lists every product seen in at least one order, ascending.
func (m *Matrix) Products() []int64 {
	ids := make([]int64, 0, len(m.purchases))
	for id := range m.purchases {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Affinity is the share of a's orders that also contain b, as a percentage
// rounded to one decimal. It is not symmetric: the denominator is a's count.
func (m *Matrix) Affinity(a, b int64) float64 {
	return money.Percent(m.co[a][b], m.purchases[a])
}

// Affinities maps every purchased product to its co-purchased products and
// their affinity. Products never bought together with anything map to an empty set.
func (m *Matrix) Affinities() map[int64]map[int64]float64 {
	out := make(map[int64]map[int64]float64, len(m.purchases))
	for a := range m.purchases {
		row := make(map[int64]float64, len(m.co[a]))
		for b := range m.co[a] {
			row[b] = m.Affinity(a, b)
		}
		out[a] = row
	}
	return out
}

// Related is a product bought together with a reference product.
type Related struct {
	ProductID  int64
	Count      int
	Percentage float64
}

// Related returns up to limit products co-purchased with productID, highest
// count first, ties broken by ascending product id. limit <= 0 means no limit.
func (m *Matrix) Related(productID int64, limit int) []Related {
	row := m.co[productID]
	out := make([]Related, 0, len(row))
	for id, n := range row {
		out = append(out, Related{ProductID: id, Count: n, Percentage: m.Affinity(productID, id)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].ProductID < out[j].ProductID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
