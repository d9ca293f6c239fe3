package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/Zhima-Mochi/supershop/internal/domain/catalog"
)

var _ catalog.Reader = (*Store)(nil)

func (s *Store) FindProduct(ctx context.Context, id int64) (*catalog.Product, error) {
	_ = ctx

	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, fmt.Errorf("product %d: %w", id, catalog.ErrNotFound)
	}
	c := *p
	return &c, nil
}

func (s *Store) ProductsByID(ctx context.Context, ids []int64) (map[int64]catalog.Product, error) {
	_ = ctx

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[int64]catalog.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			out[id] = *p
		}
	}
	return out, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]catalog.Product, error) {
	_ = ctx

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]catalog.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
