package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"shelf/internal/domain"
	"shelf/internal/port"
)

const productColumns = `id, title, product_type, vendor, tags, variant_title,
	price, compare_at_price, weight, inventory, created_at, updated_at`

var stringColumns = map[domain.RuleField]string{
	domain.RuleFieldTitle:        "title",
	domain.RuleFieldType:         "product_type",
	domain.RuleFieldVendor:       "vendor",
	domain.RuleFieldVariantTitle: "variant_title",
}

var numberColumns = map[domain.RuleField]string{
	domain.RuleFieldPrice:          "price",
	domain.RuleFieldCompareAtPrice: "compare_at_price",
	domain.RuleFieldWeight:         "weight",
	domain.RuleFieldInventory:      "inventory",
}

type productRepo struct {
	db      *sqlx.DB
	orderBy string
}

// NewProductRepo creates a PostgreSQL-backed product catalog that streams
// products in the given order.
func NewProductRepo(db *sqlx.DB, order domain.CatalogOrder) port.ProductRepository {
	orderBy := "created_at, id"
	if order == domain.CatalogOrderTitle {
		orderBy = "lower(title), id"
	}
	return &productRepo{db: db, orderBy: orderBy}
}

func (r *productRepo) ListProducts(ctx context.Context, visit port.ProductVisitor) error {
	if err := r.stream(ctx, "", nil, visit); err != nil {
		return fmt.Errorf("productRepo.ListProducts: %w", err)
	}
	return nil
}

// FilterProducts pushes hints into the WHERE clause. String equality is
// compared case-insensitively so the result stays a superset under either
// case policy.
func (r *productRepo) FilterProducts(ctx context.Context, hints []domain.PredicateHint, visit port.ProductVisitor) error {
	where, args := buildFilter(hints)
	if err := r.stream(ctx, where, args, visit); err != nil {
		return fmt.Errorf("productRepo.FilterProducts: %w", err)
	}
	return nil
}

func (r *productRepo) stream(ctx context.Context, where string, args []interface{}, visit port.ProductVisitor) error {
	query := `SELECT ` + productColumns + ` FROM products`
	if where != "" {
		query += ` WHERE ` + where
	}
	query += ` ORDER BY ` + r.orderBy

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.Product
		if err := rows.StructScan(&p); err != nil {
			return err
		}
		if err := visit(&p); err != nil {
			return err
		}
	}
	return rows.Err()
}

// buildFilter translates hints into a conjunctive WHERE clause. Hints it does
// not understand are dropped, which only widens the result.
func buildFilter(hints []domain.PredicateHint) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	next := func(v interface{}) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	for _, h := range hints {
		if h.Field == domain.RuleFieldTag && h.Relation == domain.RelationEquals {
			conds = append(conds, fmt.Sprintf(
				"EXISTS (SELECT 1 FROM jsonb_array_elements_text(tags) AS t(tag) WHERE lower(t.tag) = lower(%s))",
				next(h.Value)))
			continue
		}
		if col, ok := stringColumns[h.Field]; ok && h.Relation == domain.RelationEquals {
			conds = append(conds, fmt.Sprintf("lower(%s) = lower(%s)", col, next(h.Value)))
			continue
		}
		col, ok := numberColumns[h.Field]
		if !ok {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(h.Value), 64)
		if err != nil {
			continue
		}
		var op string
		switch h.Relation {
		case domain.RelationEquals:
			op = "="
		case domain.RelationGreaterThan:
			op = ">"
		case domain.RelationLessThan:
			op = "<"
		default:
			continue
		}
		conds = append(conds, fmt.Sprintf("%s %s %s::double precision", col, op, next(v)))
	}
	return strings.Join(conds, " AND "), args
}

func (r *productRepo) GetProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.Product, error) {
	out := make(map[uuid.UUID]*domain.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}

	var products []domain.Product
	err := r.db.SelectContext(ctx, &products,
		`SELECT `+productColumns+` FROM products WHERE id = ANY($1::uuid[])`, keys)
	if err != nil {
		return nil, fmt.Errorf("productRepo.GetProducts: %w", err)
	}
	for i := range products {
		out[products[i].ID] = &products[i]
	}
	return out, nil
}

// Revision reads the counter that a statement-level trigger on products bumps
// on every insert, update and delete.
func (r *productRepo) Revision(ctx context.Context) (string, error) {
	var rev int64
	if err := r.db.GetContext(ctx, &rev, "SELECT revision FROM catalog_state WHERE id = 1"); err != nil {
		return "", fmt.Errorf("productRepo.Revision: %w", err)
	}
	return strconv.FormatInt(rev, 10), nil
}

func (r *productRepo) UpsertProducts(ctx context.Context, products []domain.Product) error {
	err := inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		for i := range products {
			p := &products[i]
			if p.Tags == nil {
				p.Tags = domain.StringList{}
			}
			_, err := tx.NamedExecContext(ctx,
				`INSERT INTO products (`+productColumns+`)
				 VALUES (:id, :title, :product_type, :vendor, :tags, :variant_title,
				         :price, :compare_at_price, :weight, :inventory, :created_at, :updated_at)
				 ON CONFLICT (id) DO UPDATE SET
				   title = EXCLUDED.title,
				   product_type = EXCLUDED.product_type,
				   vendor = EXCLUDED.vendor,
				   tags = EXCLUDED.tags,
				   variant_title = EXCLUDED.variant_title,
				   price = EXCLUDED.price,
				   compare_at_price = EXCLUDED.compare_at_price,
				   weight = EXCLUDED.weight,
				   inventory = EXCLUDED.inventory,
				   updated_at = EXCLUDED.updated_at`, p)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("productRepo.UpsertProducts: %w", err)
	}
	return nil
}
