// Package memory provides in-process implementations of the collection and
// catalog stores, used for local development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"shelf/internal/domain"
	"shelf/internal/port"
)

// collectionEntry holds the current snapshot of one collection. Writers
// serialize on mu and publish a fresh snapshot with an atomic swap; readers
// only load the pointer and never block.
type collectionEntry struct {
	mu      sync.Mutex
	deleted bool
	current atomic.Pointer[domain.CollectionSnapshot]
}

// CollectionStore is a copy-on-write, in-memory CollectionRepository.
// Snapshots returned by it are shared and must be treated as read-only.
type CollectionStore struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*collectionEntry
	now     func() time.Time
}

// NewCollectionStore creates an empty CollectionStore.
func NewCollectionStore() *CollectionStore {
	return &CollectionStore{
		entries: make(map[uuid.UUID]*collectionEntry),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

var _ port.CollectionRepository = (*CollectionStore)(nil)

func (s *CollectionStore) entry(id uuid.UUID) (*collectionEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	return e, ok
}

func (s *CollectionStore) Create(_ context.Context, snapshot *domain.CollectionSnapshot) error {
	snap := snapshot.Clone()
	now := s.now()
	snap.Collection.CreatedAt = now
	snap.Collection.UpdatedAt = now
	if snap.Collection.Generation == 0 {
		snap.Collection.Generation = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[snap.Collection.ID]; exists {
		return fmt.Errorf("%w: collection %s already exists", domain.ErrValidation, snap.Collection.ID)
	}
	e := &collectionEntry{}
	e.current.Store(snap)
	s.entries[snap.Collection.ID] = e

	snapshot.Collection.CreatedAt = now
	snapshot.Collection.UpdatedAt = now
	snapshot.Collection.Generation = snap.Collection.Generation
	return nil
}

func (s *CollectionStore) GetSnapshot(_ context.Context, collectionID uuid.UUID) (*domain.CollectionSnapshot, error) {
	e, ok := s.entry(collectionID)
	if !ok {
		return nil, domain.ErrCollectionNotFound
	}
	return e.current.Load(), nil
}

func (s *CollectionStore) List(_ context.Context, offset, limit int) ([]domain.Collection, int, error) {
	s.mu.RLock()
	all := make([]domain.Collection, 0, len(s.entries))
	for _, e := range s.entries {
		all = append(all, e.current.Load().Collection)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID.String() < all[j].ID.String()
	})

	total := len(all)
	if offset >= total {
		return []domain.Collection{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (s *CollectionStore) UpdateDetails(_ context.Context, c *domain.Collection) error {
	e, ok := s.entry(c.ID)
	if !ok {
		return domain.ErrCollectionNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return domain.ErrCollectionNotFound
	}

	next := e.current.Load().Clone()
	next.Collection.Title = c.Title
	next.Collection.Description = c.Description
	next.Collection.ImageKey = c.ImageKey
	next.Collection.UpdatedAt = s.now()
	e.current.Store(next)

	c.UpdatedAt = next.Collection.UpdatedAt
	c.Generation = next.Collection.Generation
	return nil
}

func (s *CollectionStore) Mutate(ctx context.Context, collectionID uuid.UUID, fn port.MutateFunc) (*domain.CollectionSnapshot, error) {
	e, ok := s.entry(collectionID)
	if !ok {
		return nil, domain.ErrCollectionNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return nil, domain.ErrCollectionNotFound
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prev := e.current.Load()
	draft := prev.Clone()
	if err := fn(draft); err != nil {
		return nil, err
	}
	draft.Collection.ID = prev.Collection.ID
	draft.Collection.CreatedAt = prev.Collection.CreatedAt
	draft.Collection.Generation = prev.Collection.Generation + 1
	draft.Collection.UpdatedAt = s.now()

	e.current.Store(draft)
	return draft, nil
}

func (s *CollectionStore) Delete(_ context.Context, collectionID uuid.UUID) error {
	s.mu.Lock()
	e, ok := s.entries[collectionID]
	if ok {
		delete(s.entries, collectionID)
	}
	s.mu.Unlock()
	if !ok {
		return domain.ErrCollectionNotFound
	}

	e.mu.Lock()
	e.deleted = true
	e.mu.Unlock()
	return nil
}
