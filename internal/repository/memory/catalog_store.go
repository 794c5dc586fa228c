package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"shelf/internal/domain"
	"shelf/internal/port"
	"shelf/internal/rules"
)

// CatalogStore is an in-memory product catalog. Scans iterate over a copy
// taken under the read lock, so writers never tear a scan in progress.
type CatalogStore struct {
	mu       sync.RWMutex
	products map[uuid.UUID]domain.Product
	order    domain.CatalogOrder
	revision int64
}

// NewCatalogStore creates an empty catalog that streams in the given order.
func NewCatalogStore(order domain.CatalogOrder) *CatalogStore {
	if order == "" {
		order = domain.CatalogOrderCreated
	}
	return &CatalogStore{
		products: make(map[uuid.UUID]domain.Product),
		order:    order,
	}
}

var (
	_ port.FilteringCatalog = (*CatalogStore)(nil)
	_ port.ProductWriter    = (*CatalogStore)(nil)
)

// UpsertProducts inserts or replaces products and bumps the catalog revision.
func (s *CatalogStore) UpsertProducts(_ context.Context, products []domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range products {
		p := products[i]
		p.Tags = append(domain.StringList(nil), p.Tags...)
		s.products[p.ID] = p
	}
	s.revision++
	return nil
}

// DeleteProduct removes a product from the catalog.
func (s *CatalogStore) DeleteProduct(_ context.Context, id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[id]; ok {
		delete(s.products, id)
		s.revision++
	}
}

func (s *CatalogStore) sorted() []domain.Product {
	s.mu.RLock()
	out := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := &out[i], &out[j]
		switch s.order {
		case domain.CatalogOrderTitle:
			at, bt := strings.ToLower(a.Title), strings.ToLower(b.Title)
			if at != bt {
				return at < bt
			}
		default:
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
		}
		return a.ID.String() < b.ID.String()
	})
	return out
}

func (s *CatalogStore) ListProducts(ctx context.Context, visit port.ProductVisitor) error {
	return s.scan(ctx, s.sorted(), nil, visit)
}

// FilterProducts applies hints case-insensitively, which keeps the result a
// superset of what a case-sensitive rule would accept.
func (s *CatalogStore) FilterProducts(ctx context.Context, hints []domain.PredicateHint, visit port.ProductVisitor) error {
	e := rules.NewEvaluator(rules.CaseInsensitive)
	tests := make([]domain.CollectionRule, 0, len(hints))
	for _, h := range hints {
		r := domain.CollectionRule{Field: h.Field, Relation: h.Relation, Value: h.Value}
		if err := rules.ValidateRule(r); err != nil {
			return fmt.Errorf("memory.CatalogStore.FilterProducts: %w", err)
		}
		tests = append(tests, r)
	}
	keep := func(p *domain.Product) bool {
		for _, r := range tests {
			if ok, _ := e.Evaluate(r, p); !ok {
				return false
			}
		}
		return true
	}
	return s.scan(ctx, s.sorted(), keep, visit)
}

func (s *CatalogStore) scan(ctx context.Context, products []domain.Product, keep func(*domain.Product) bool, visit port.ProductVisitor) error {
	for i := range products {
		if err := ctx.Err(); err != nil {
			return err
		}
		p := &products[i]
		if keep != nil && !keep(p) {
			continue
		}
		if err := visit(p); err != nil {
			return err
		}
	}
	return nil
}

func (s *CatalogStore) GetProducts(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[uuid.UUID]*domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			cp := p
			out[id] = &cp
		}
	}
	return out, nil
}

func (s *CatalogStore) Revision(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return strconv.FormatInt(s.revision, 10), nil
}
