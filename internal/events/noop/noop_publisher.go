package noop

import (
	"context"

	"go.uber.org/zap"

	"shelf/internal/domain"
	"shelf/internal/port"
)

type noopPublisher struct {
	logger *zap.Logger
}

// NewNoopPublisher creates an EventPublisher that only logs change events.
func NewNoopPublisher(logger *zap.Logger) port.EventPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &noopPublisher{logger: logger}
}

func (p *noopPublisher) PublishCollectionChanged(_ context.Context, event *domain.CollectionChangedEvent) error {
	p.logger.Debug("[NOOP EVENT] collection changed",
		zap.String("collection_id", event.CollectionID.String()),
		zap.Int64("generation", event.Generation),
		zap.String("change", string(event.Change)))
	return nil
}

func (p *noopPublisher) Close() error {
	return nil
}
