// Package membership computes the ordered product membership of a collection.
package membership

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"shelf/internal/domain"
	"shelf/internal/metrics"
	"shelf/internal/port"
	"shelf/internal/rules"
)

// Resolution is the ordered membership of one collection at one generation.
type Resolution struct {
	CollectionID    uuid.UUID
	Generation      int64
	Kind            domain.MembershipKind
	Items           []domain.ProductRef
	CatalogRevision string
}

// Resolver turns collection snapshots into ordered membership sequences. It
// holds no mutable state; concurrent Resolve calls are independent.
type Resolver struct {
	catalog   port.CatalogStore
	evaluator *rules.Evaluator
	cache     port.ResolutionCache
	logger    *zap.Logger
}

// NewResolver creates a Resolver. cache may be nil.
func NewResolver(catalog port.CatalogStore, evaluator *rules.Evaluator, cache port.ResolutionCache, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		catalog:   catalog,
		evaluator: evaluator,
		cache:     cache,
		logger:    logger,
	}
}

// Resolve returns the full ordered membership for snap. Manual collections
// yield their stored list verbatim; automatic collections stream the catalog
// through the compiled rule set. A catalog failure is reported as
// ErrCatalogUnavailable and never as a shorter sequence.
func (r *Resolver) Resolve(ctx context.Context, snap *domain.CollectionSnapshot) (*Resolution, error) {
	start := time.Now()
	kind := snap.Kind()

	res := &Resolution{
		CollectionID: snap.Collection.ID,
		Generation:   snap.Generation(),
		Kind:         kind,
	}

	var err error
	switch kind {
	case domain.MembershipAutomatic:
		res.Items, res.CatalogRevision, err = r.resolveAutomatic(ctx, snap)
	default:
		res.Items = toRefs(snap.Members)
	}

	metrics.ResolutionDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ResolutionsTotal.WithLabelValues(string(kind), "error").Inc()
		return nil, err
	}
	metrics.ResolutionsTotal.WithLabelValues(string(kind), "ok").Inc()
	return res, nil
}

func toRefs(members []uuid.UUID) []domain.ProductRef {
	items := make([]domain.ProductRef, len(members))
	for i, id := range members {
		items[i] = domain.ProductRef{ID: id}
	}
	return items
}

func (r *Resolver) resolveAutomatic(ctx context.Context, snap *domain.CollectionSnapshot) ([]domain.ProductRef, string, error) {
	if len(snap.Members) > 0 {
		return nil, "", fmt.Errorf("membership.Resolve: collection %s: %w", snap.Collection.ID, domain.ErrMixedMembership)
	}

	matcher, err := r.evaluator.Compile(snap.Collection.RuleSet)
	if err != nil {
		return nil, "", fmt.Errorf("membership.Resolve: collection %s: %w", snap.Collection.ID, err)
	}

	revision, err := r.catalog.Revision(ctx)
	if err != nil {
		return nil, "", r.catalogError(ctx, err)
	}

	key := port.ResolutionKey{
		CollectionID:    snap.Collection.ID,
		Generation:      snap.Generation(),
		CatalogRevision: revision,
		CaseSensitive:   r.evaluator.Policy() == rules.CaseSensitive,
	}
	if items, ok := r.cached(ctx, key); ok {
		return items, revision, nil
	}

	items, err := r.scan(ctx, matcher)
	if err != nil {
		return nil, "", err
	}

	r.store(ctx, key, items)
	return items, revision, nil
}

func (r *Resolver) scan(ctx context.Context, matcher *rules.Matcher) ([]domain.ProductRef, error) {
	items := []domain.ProductRef{}
	visit := func(p *domain.Product) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if matcher.Match(p) {
			items = append(items, domain.ProductRef{ID: p.ID})
		}
		return nil
	}

	var err error
	if fc, ok := r.catalog.(port.FilteringCatalog); ok && len(matcher.Hints()) > 0 {
		err = fc.FilterProducts(ctx, matcher.Hints(), visit)
	} else {
		err = r.catalog.ListProducts(ctx, visit)
	}
	if err != nil {
		return nil, r.catalogError(ctx, err)
	}
	return items, nil
}

// catalogError separates the caller giving up from the catalog failing.
func (r *Resolver) catalogError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("membership.Resolve: scan aborted: %w", ctxErr)
	}
	return fmt.Errorf("membership.Resolve: %w: %w", domain.ErrCatalogUnavailable, err)
}

func (r *Resolver) cached(ctx context.Context, key port.ResolutionKey) ([]domain.ProductRef, bool) {
	if r.cache == nil {
		return nil, false
	}
	ids, ok, err := r.cache.Get(ctx, key)
	if err != nil {
		metrics.ResolutionCacheLookups.WithLabelValues("error").Inc()
		r.logger.Warn("membership.Resolve: cache lookup failed",
			zap.String("collection_id", key.CollectionID.String()), zap.Error(err))
		return nil, false
	}
	if !ok {
		metrics.ResolutionCacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	}
	metrics.ResolutionCacheLookups.WithLabelValues("hit").Inc()
	return toRefs(ids), true
}

// store caches items only if the catalog did not change during the scan, so
// a cached sequence always belongs to exactly one catalog revision.
func (r *Resolver) store(ctx context.Context, key port.ResolutionKey, items []domain.ProductRef) {
	if r.cache == nil {
		return
	}
	after, err := r.catalog.Revision(ctx)
	if err != nil || after != key.CatalogRevision {
		return
	}
	ids := make([]uuid.UUID, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	if err := r.cache.Set(ctx, key, ids); err != nil {
		r.logger.Warn("membership.Resolve: cache store failed",
			zap.String("collection_id", key.CollectionID.String()), zap.Error(err))
	}
}
