package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"shelf/internal/domain"
	"shelf/internal/port"
)

const collectionColumns = `id, title, description, image_key, rule_set, generation, created_at, updated_at`

type collectionRepo struct {
	db *sqlx.DB
}

// NewCollectionRepo creates a new PostgreSQL-backed CollectionRepository.
//
// Readers use a read-only REPEATABLE READ transaction so the collection row
// and its member rows always come from one generation. Writers lock the
// collection row with SELECT ... FOR UPDATE, which serializes mutations per
// collection without blocking readers.
func NewCollectionRepo(db *sqlx.DB) port.CollectionRepository {
	return &collectionRepo{db: db}
}

func (r *collectionRepo) Create(ctx context.Context, snap *domain.CollectionSnapshot) error {
	now := time.Now().UTC()
	c := &snap.Collection
	c.CreatedAt = now
	c.UpdatedAt = now
	if c.Generation == 0 {
		c.Generation = 1
	}

	err := inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO collections (`+collectionColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			c.ID, c.Title, c.Description, c.ImageKey, c.RuleSet, c.Generation, c.CreatedAt, c.UpdatedAt)
		if err != nil {
			return err
		}
		return insertMembers(ctx, tx, c.ID, snap.Members)
	})
	if err != nil {
		return fmt.Errorf("collectionRepo.Create: %w", err)
	}
	return nil
}

func (r *collectionRepo) GetSnapshot(ctx context.Context, collectionID uuid.UUID) (*domain.CollectionSnapshot, error) {
	var snap *domain.CollectionSnapshot
	err := readSnapshot(ctx, r.db, func(tx *sqlx.Tx) error {
		var err error
		snap, err = loadSnapshot(ctx, tx, collectionID, false)
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrCollectionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("collectionRepo.GetSnapshot: %w", err)
	}
	return snap, nil
}

func (r *collectionRepo) List(ctx context.Context, offset, limit int) ([]domain.Collection, int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM collections"); err != nil {
		return nil, 0, fmt.Errorf("collectionRepo.List count: %w", err)
	}

	collections := []domain.Collection{}
	err := r.db.SelectContext(ctx, &collections,
		`SELECT `+collectionColumns+` FROM collections
		 ORDER BY created_at DESC, id LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("collectionRepo.List: %w", err)
	}
	return collections, total, nil
}

func (r *collectionRepo) UpdateDetails(ctx context.Context, c *domain.Collection) error {
	c.UpdatedAt = time.Now().UTC()
	err := r.db.GetContext(ctx, &c.Generation,
		`UPDATE collections SET title = $1, description = $2, image_key = $3, updated_at = $4
		 WHERE id = $5 RETURNING generation`,
		c.Title, c.Description, c.ImageKey, c.UpdatedAt, c.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrCollectionNotFound
		}
		return fmt.Errorf("collectionRepo.UpdateDetails: %w", err)
	}
	return nil
}

func (r *collectionRepo) Mutate(ctx context.Context, collectionID uuid.UUID, fn port.MutateFunc) (*domain.CollectionSnapshot, error) {
	var next *domain.CollectionSnapshot
	err := inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		prev, err := loadSnapshot(ctx, tx, collectionID, true)
		if err != nil {
			return err
		}

		draft := prev.Clone()
		if err := fn(draft); err != nil {
			return err
		}
		draft.Collection.ID = prev.Collection.ID
		draft.Collection.CreatedAt = prev.Collection.CreatedAt
		draft.Collection.UpdatedAt = time.Now().UTC()

		c := &draft.Collection
		err = tx.GetContext(ctx, &c.Generation,
			`UPDATE collections
			 SET title = $1, description = $2, image_key = $3, rule_set = $4,
			     generation = generation + 1, updated_at = $5
			 WHERE id = $6 RETURNING generation`,
			c.Title, c.Description, c.ImageKey, c.RuleSet, c.UpdatedAt, c.ID)
		if err != nil {
			return err
		}

		if !sameMembers(prev.Members, draft.Members) {
			if _, err := tx.ExecContext(ctx,
				"DELETE FROM collection_products WHERE collection_id = $1", c.ID); err != nil {
				return err
			}
			if err := insertMembers(ctx, tx, c.ID, draft.Members); err != nil {
				return err
			}
		}
		next = draft
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrCollectionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("collectionRepo.Mutate: %w", err)
	}
	return next, nil
}

func (r *collectionRepo) Delete(ctx context.Context, collectionID uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM collections WHERE id = $1", collectionID)
	if err != nil {
		return fmt.Errorf("collectionRepo.Delete: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrCollectionNotFound
	}
	return nil
}

func loadSnapshot(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, forUpdate bool) (*domain.CollectionSnapshot, error) {
	query := `SELECT ` + collectionColumns + ` FROM collections WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	snap := &domain.CollectionSnapshot{}
	if err := tx.GetContext(ctx, &snap.Collection, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrCollectionNotFound
		}
		return nil, err
	}

	snap.Members = []uuid.UUID{}
	err := tx.SelectContext(ctx, &snap.Members,
		`SELECT product_id FROM collection_products
		 WHERE collection_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func insertMembers(ctx context.Context, tx *sqlx.Tx, collectionID uuid.UUID, members []uuid.UUID) error {
	if len(members) == 0 {
		return nil
	}
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.String()
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO collection_products (collection_id, product_id, position)
		 SELECT $1, m.product_id, m.ord - 1
		 FROM unnest($2::uuid[]) WITH ORDINALITY AS m(product_id, ord)`,
		collectionID, ids)
	return err
}

func sameMembers(a, b []uuid.UUID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
