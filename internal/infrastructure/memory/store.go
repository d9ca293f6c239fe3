// Package memory is an in-process storage collaborator. Units of work run one
// at a time under the store lock and stage their writes until they commit.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Zhima-Mochi/supershop/internal/domain/catalog"
	"github.com/Zhima-Mochi/supershop/internal/domain/inventory"
	domain "github.com/Zhima-Mochi/supershop/internal/domain/order"
)

type orderRecord struct {
	order   *domain.Order
	payment *domain.Payment
}

type Store struct {
	mu       sync.RWMutex
	products map[int64]*catalog.Product
	orders   map[int64]*orderRecord
	lastID   int64
	now      func() time.Time
}

func NewStore() *Store {
	return &Store{
		products: make(map[int64]*catalog.Product),
		orders:   make(map[int64]*orderRecord),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

var (
	_ domain.UnitOfWork  = (*Store)(nil)
	_ inventory.Adjuster = (*Store)(nil)
)

// PutProduct inserts or replaces a catalog row.
func (s *Store) PutProduct(p catalog.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := p
	s.products[p.ID] = &c
}

// Stock returns the committed stock of a product and whether it exists.
func (s *Store) Stock(productID int64) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[productID]
	if !ok {
		return 0, false
	}
	return p.Stock, true
}

// SeedOrder records a historical order directly, bypassing stock checks.
// It exists to load fixtures for analysis.
func (s *Store) SeedOrder(o domain.Order) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastID++
	c := o.Clone()
	c.ID = s.lastID
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	if c.Status == "" {
		c.Status = domain.StatusCompleted
	}
	p := c.Payment()
	s.orders[c.ID] = &orderRecord{order: c, payment: &p}
	return c.ID
}

// Order returns a committed order with its payment.
func (s *Store) Order(id int64) (*domain.Order, *domain.Payment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.orders[id]
	if !ok {
		return nil, nil, false
	}
	var pay *domain.Payment
	if rec.payment != nil {
		p := *rec.payment
		pay = &p
	}
	return rec.order.Clone(), pay, true
}

// OrderCount is the number of committed orders.
func (s *Store) OrderCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orders)
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	t := &tx{
		store:  s,
		stock:  make(map[int64]int),
		orders: make(map[int64]*orderRecord),
		lastID: s.lastID,
	}
	if err := fn(ctx, t); err != nil {
		return err
	}
	// A deadline that passed while fn ran still aborts the unit of work.
	if err := ctx.Err(); err != nil {
		return err
	}

	for id, stock := range t.stock {
		s.products[id].Stock = stock
	}
	for id, rec := range t.orders {
		s.orders[id] = rec
	}
	s.lastID = t.lastID
	return nil
}

// tx stages writes; nothing reaches the store until WithinTx commits.
type tx struct {
	store  *Store
	stock  map[int64]int
	orders map[int64]*orderRecord
	lastID int64
}

func (t *tx) currentStock(productID int64) (int, error) {
	if v, ok := t.stock[productID]; ok {
		return v, nil
	}
	p, ok := t.store.products[productID]
	if !ok {
		return 0, fmt.Errorf("product %d: %w", productID, catalog.ErrNotFound)
	}
	return p.Stock, nil
}

func (t *tx) LockStock(ctx context.Context, productID int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return t.currentStock(productID)
}

func (t *tx) DecrementStock(ctx context.Context, productID int64, quantity int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if quantity <= 0 {
		return inventory.ErrInvalidQuantity
	}
	cur, err := t.currentStock(productID)
	if err != nil {
		return err
	}
	if cur < quantity {
		return &inventory.InsufficientStockError{ProductID: productID, Requested: quantity, Available: cur}
	}
	t.stock[productID] = cur - quantity
	return nil
}

func (t *tx) InsertOrder(ctx context.Context, o *domain.Order) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	t.lastID++
	c := o.Clone()
	c.ID = t.lastID
	c.Lines = nil
	if c.CreatedAt.IsZero() {
		c.CreatedAt = t.store.now()
	}
	t.orders[c.ID] = &orderRecord{order: c}
	return c.ID, nil
}

func (t *tx) InsertLine(ctx context.Context, orderID int64, l domain.Line) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rec, ok := t.orders[orderID]
	if !ok {
		return fmt.Errorf("memory: order %d not written in this unit of work", orderID)
	}
	if _, err := t.currentStock(l.ProductID); err != nil {
		return err
	}
	rec.order.Lines = append(rec.order.Lines, l)
	return nil
}

func (t *tx) InsertPayment(ctx context.Context, p domain.Payment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rec, ok := t.orders[p.OrderID]
	if !ok {
		return fmt.Errorf("memory: order %d not written in this unit of work", p.OrderID)
	}
	if rec.payment != nil {
		return fmt.Errorf("memory: order %d already has a payment", p.OrderID)
	}
	c := p
	rec.payment = &c
	return nil
}

// AdjustStock applies delta under the store lock, refusing to go below zero.
func (s *Store) AdjustStock(ctx context.Context, productID int64, delta int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if delta == 0 {
		return 0, inventory.ErrInvalidAdjustment
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok {
		return 0, fmt.Errorf("product %d: %w", productID, catalog.ErrNotFound)
	}
	next := p.Stock + delta
	if next < 0 {
		return 0, &inventory.InsufficientStockError{ProductID: productID, Requested: -delta, Available: p.Stock}
	}
	p.Stock = next
	return next, nil
}
