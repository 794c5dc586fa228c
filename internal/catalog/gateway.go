// Package catalog guards the product catalog behind a circuit breaker and a
// per-call deadline.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"shelf/internal/config"
	"shelf/internal/domain"
	"shelf/internal/metrics"
	"shelf/internal/port"
)

// Gateway wraps a CatalogStore. Every call runs under the configured timeout
// and counts toward the breaker; while the breaker is open calls fail fast
// with ErrCatalogUnavailable. Errors raised by the visitor, and failures after
// the caller's own context was cancelled or hit its deadline, are passed
// through untouched and never count against the breaker.
type Gateway struct {
	store   port.CatalogStore
	breaker *gobreaker.CircuitBreaker
	timeout time.Duration
	logger  *zap.Logger
}

var _ port.FilteringCatalog = (*Gateway)(nil)

// NewGateway creates a Gateway around store.
func NewGateway(store port.CatalogStore, cfg config.CatalogConfig, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	minRequests := cfg.BreakerMinRequests
	ratio := cfg.BreakerFailureRatio

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "catalog",
		MaxRequests: cfg.BreakerMaxHalfOpen,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < minRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= ratio
		},
		IsSuccessful: func(err error) bool {
			var v visitorError
			var g callerGone
			return err == nil || errors.As(err, &v) || errors.As(err, &g)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CatalogBreakerState.Set(float64(to))
			logger.Warn("catalog.Gateway: breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &Gateway{
		store:   store,
		breaker: breaker,
		timeout: cfg.RequestTimeout,
		logger:  logger,
	}
}

// visitorError marks errors produced by the caller's visitor rather than the
// store.
type visitorError struct{ err error }

func (e visitorError) Error() string { return e.err.Error() }
func (e visitorError) Unwrap() error { return e.err }

// callerGone marks failures that happened after the caller's own context
// ended. They say nothing about catalog health.
type callerGone struct{ err error }

func (e callerGone) Error() string { return e.err.Error() }
func (e callerGone) Unwrap() error { return e.err }

func (g *Gateway) ListProducts(ctx context.Context, visit port.ProductVisitor) error {
	return g.run(ctx, "ListProducts", func(ctx context.Context) error {
		return g.store.ListProducts(ctx, wrapVisitor(visit))
	})
}

// FilterProducts narrows the scan when the wrapped store supports hints and
// falls back to a full ListProducts otherwise.
func (g *Gateway) FilterProducts(ctx context.Context, hints []domain.PredicateHint, visit port.ProductVisitor) error {
	fc, ok := g.store.(port.FilteringCatalog)
	if !ok {
		return g.ListProducts(ctx, visit)
	}
	return g.run(ctx, "FilterProducts", func(ctx context.Context) error {
		return fc.FilterProducts(ctx, hints, wrapVisitor(visit))
	})
}

func (g *Gateway) GetProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.Product, error) {
	var out map[uuid.UUID]*domain.Product
	err := g.run(ctx, "GetProducts", func(ctx context.Context) error {
		var err error
		out, err = g.store.GetProducts(ctx, ids)
		return err
	})
	return out, err
}

func (g *Gateway) Revision(ctx context.Context) (string, error) {
	var rev string
	err := g.run(ctx, "Revision", func(ctx context.Context) error {
		var err error
		rev, err = g.store.Revision(ctx)
		return err
	})
	return rev, err
}

func wrapVisitor(visit port.ProductVisitor) port.ProductVisitor {
	return func(p *domain.Product) error {
		if err := visit(p); err != nil {
			return visitorError{err: err}
		}
		return nil
	}
}

func (g *Gateway) run(ctx context.Context, op string, call func(ctx context.Context) error) error {
	callCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	_, err := g.breaker.Execute(func() (interface{}, error) {
		err := call(callCtx)
		var v visitorError
		if err != nil && !errors.As(err, &v) && ctx.Err() != nil {
			return nil, callerGone{err: ctx.Err()}
		}
		return nil, err
	})
	if err == nil {
		return nil
	}

	var v visitorError
	var gone callerGone
	switch {
	case errors.As(err, &v):
		return v.err
	case errors.As(err, &gone):
		return gone.err
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		g.logger.Debug("catalog.Gateway: rejected by breaker", zap.String("op", op))
		return fmt.Errorf("catalog.%s: %w: %w", op, domain.ErrCatalogUnavailable, err)
	default:
		g.logger.Warn("catalog.Gateway: call failed", zap.String("op", op), zap.Error(err))
		return fmt.Errorf("catalog.%s: %w: %w", op, domain.ErrCatalogUnavailable, err)
	}
}
