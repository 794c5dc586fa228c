package port

import (
	"context"

	"shelf/internal/domain"
)

// EventPublisher publishes collection change notifications.
type EventPublisher interface {
	PublishCollectionChanged(ctx context.Context, event *domain.CollectionChangedEvent) error
	Close() error
}
