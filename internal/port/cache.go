package port

import (
	"context"

	"github.com/google/uuid"
)

// ResolutionKey identifies one resolution of an automatic collection. The
// same rules resolve differently under a different case policy, so the policy
// is part of the key.
type ResolutionKey struct {
	CollectionID    uuid.UUID
	Generation      int64
	CatalogRevision string
	CaseSensitive   bool
}

// ResolutionCache stores resolved membership sequences.
type ResolutionCache interface {
	Get(ctx context.Context, key ResolutionKey) ([]uuid.UUID, bool, error)
	Set(ctx context.Context, key ResolutionKey, ids []uuid.UUID) error
}
