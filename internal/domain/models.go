package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// CollectionRule is a single (field, relation, value) predicate over product attributes.
type CollectionRule struct {
	Field    RuleField    `json:"field"`
	Relation RuleRelation `json:"relation"`
	Value    string       `json:"value"`
}

// RuleSet is an ordered list of rules plus the mode used to combine them.
// Rule order is kept for display only.
type RuleSet struct {
	Mode  CombinationMode  `json:"mode"`
	Rules []CollectionRule `json:"rules"`
}

// Clone returns a deep copy of the rule set.
func (rs *RuleSet) Clone() *RuleSet {
	if rs == nil {
		return nil
	}
	out := &RuleSet{Mode: rs.Mode, Rules: make([]CollectionRule, len(rs.Rules))}
	copy(out.Rules, rs.Rules)
	return out
}

// Value implements driver.Valuer so a rule set can be stored in a JSONB column.
func (rs *RuleSet) Value() (driver.Value, error) {
	if rs == nil {
		return nil, nil
	}
	return json.Marshal(rs)
}

// Scan implements sql.Scanner for JSONB rule set columns.
func (rs *RuleSet) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, rs)
	case string:
		return json.Unmarshal([]byte(v), rs)
	default:
		return errors.New("domain.RuleSet: unsupported scan source")
	}
}

// Collection is a named grouping of products whose membership is either an
// explicit list or the result of evaluating a RuleSet against the catalog.
type Collection struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Title       string    `db:"title" json:"title"`
	Description string    `db:"description" json:"description"`
	ImageKey    *string   `db:"image_key" json:"-"`
	ImageURL    string    `db:"-" json:"image_url,omitempty"`
	RuleSet     *RuleSet  `db:"rule_set" json:"rule_set,omitempty"`
	Generation  int64     `db:"generation" json:"generation"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Kind reports whether the collection is rule-based or manually curated.
func (c *Collection) Kind() MembershipKind {
	if c.RuleSet != nil {
		return MembershipAutomatic
	}
	return MembershipManual
}

// CollectionSnapshot is an immutable view of everything that determines a
// collection's membership at one generation.
type CollectionSnapshot struct {
	Collection Collection
	Members    []uuid.UUID
}

// Kind is the membership tag of the snapshot's collection.
func (s *CollectionSnapshot) Kind() MembershipKind {
	return s.Collection.Kind()
}

// Generation returns the snapshot's membership generation.
func (s *CollectionSnapshot) Generation() int64 {
	return s.Collection.Generation
}

// Clone returns a deep copy so callers can derive a new snapshot without
// touching one that readers may hold.
func (s *CollectionSnapshot) Clone() *CollectionSnapshot {
	out := &CollectionSnapshot{Collection: s.Collection}
	out.Collection.RuleSet = s.Collection.RuleSet.Clone()
	if s.Collection.ImageKey != nil {
		key := *s.Collection.ImageKey
		out.Collection.ImageKey = &key
	}
	out.Members = make([]uuid.UUID, len(s.Members))
	copy(out.Members, s.Members)
	return out
}

// StringList is a list of strings persisted as a JSONB array.
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(l))
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		return json.Unmarshal(v, (*[]string)(l))
	case string:
		return json.Unmarshal([]byte(v), (*[]string)(l))
	default:
		return errors.New("domain.StringList: unsupported scan source")
	}
}

// Product is a catalog entry. Numeric attributes are nullable; a nil pointer
// is a typed null.
type Product struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	Title          string     `db:"title" json:"title"`
	ProductType    string     `db:"product_type" json:"product_type"`
	Vendor         string     `db:"vendor" json:"vendor"`
	Tags           StringList `db:"tags" json:"tags"`
	VariantTitle   string     `db:"variant_title" json:"variant_title"`
	Price          *float64   `db:"price" json:"price"`
	CompareAtPrice *float64   `db:"compare_at_price" json:"compare_at_price"`
	Weight         *float64   `db:"weight" json:"weight"`
	Inventory      *int64     `db:"inventory" json:"inventory"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// ProductRef identifies a product inside a resolved membership sequence.
type ProductRef struct {
	ID uuid.UUID `json:"id"`
}

// PredicateHint is a rule the catalog store may use to pre-filter candidates.
type PredicateHint struct {
	Field    RuleField
	Relation RuleRelation
	Value    string
}

// CollectionChangedEvent is published after a membership-affecting mutation commits.
type CollectionChangedEvent struct {
	EventID      uuid.UUID  `json:"event_id"`
	CollectionID uuid.UUID  `json:"collection_id"`
	Generation   int64      `json:"generation"`
	Change       ChangeKind `json:"change"`
	OccurredAt   time.Time  `json:"occurred_at"`
}
