package port

import (
	"context"

	"github.com/google/uuid"

	"shelf/internal/domain"
)

// MutateFunc edits a private copy of a collection snapshot. Returning an error
// abandons the mutation.
type MutateFunc func(draft *domain.CollectionSnapshot) error

// CollectionRepository defines the contract for collection persistence.
//
// Readers always observe a whole snapshot of one generation. Mutations of a
// single collection are serialized; each successful Mutate increments the
// generation by exactly one.
type CollectionRepository interface {
	Create(ctx context.Context, snapshot *domain.CollectionSnapshot) error
	GetSnapshot(ctx context.Context, collectionID uuid.UUID) (*domain.CollectionSnapshot, error)
	List(ctx context.Context, offset, limit int) ([]domain.Collection, int, error)
	UpdateDetails(ctx context.Context, collection *domain.Collection) error
	Mutate(ctx context.Context, collectionID uuid.UUID, fn MutateFunc) (*domain.CollectionSnapshot, error)
	Delete(ctx context.Context, collectionID uuid.UUID) error
}
