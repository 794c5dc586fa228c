package port

import (
	"context"

	"github.com/google/uuid"

	"shelf/internal/domain"
)

// ProductVisitor receives products from a catalog scan. Returning an error
// stops the scan and the error is returned by the scanning call.
type ProductVisitor func(product *domain.Product) error

// CatalogStore is the read-only product catalog.
type CatalogStore interface {
	// ListProducts streams every product in the store's deterministic order.
	ListProducts(ctx context.Context, visit ProductVisitor) error
	// GetProducts looks up products by id. Unknown ids are absent from the result.
	GetProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.Product, error)
	// Revision returns a token that changes whenever the catalog's contents change.
	Revision(ctx context.Context) (string, error)
}

// FilteringCatalog is a CatalogStore that can narrow a scan with predicate
// hints. The filtered stream keeps ListProducts order and must contain every
// product that satisfies all hints; it may contain more.
type FilteringCatalog interface {
	CatalogStore
	FilterProducts(ctx context.Context, hints []domain.PredicateHint, visit ProductVisitor) error
}

// ProductWriter loads products into a catalog store. It is used by seeding
// tools and tests, never by resolution.
type ProductWriter interface {
	UpsertProducts(ctx context.Context, products []domain.Product) error
}

// ProductRepository is a catalog store that can also be written to.
type ProductRepository interface {
	FilteringCatalog
	ProductWriter
}
