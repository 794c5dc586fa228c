package rules

import (
	"strings"

	"shelf/internal/domain"
)

// relation describes how one comparator behaves. Negated relations match when
// no attribute value satisfies the positive comparison, so a typed null (no
// values) only satisfies negated relations.
type relation[T any] struct {
	compare func(attr, value T) bool
	negate  bool
}

var stringRelations = map[domain.RuleRelation]relation[string]{
	domain.RelationEquals:      {compare: func(a, v string) bool { return a == v }},
	domain.RelationNotEquals:   {compare: func(a, v string) bool { return a == v }, negate: true},
	domain.RelationContains:    {compare: strings.Contains},
	domain.RelationNotContains: {compare: strings.Contains, negate: true},
	domain.RelationStartsWith:  {compare: strings.HasPrefix},
	domain.RelationEndsWith:    {compare: strings.HasSuffix},
}

var numberRelations = map[domain.RuleRelation]relation[float64]{
	domain.RelationEquals:      {compare: func(a, v float64) bool { return a == v }},
	domain.RelationNotEquals:   {compare: func(a, v float64) bool { return a == v }, negate: true},
	domain.RelationGreaterThan: {compare: func(a, v float64) bool { return a > v }},
	domain.RelationLessThan:    {compare: func(a, v float64) bool { return a < v }},
}

// stringAttributes reads the string-typed attributes of a product. TAG is the
// only multi-valued attribute.
var stringAttributes = map[domain.RuleField]func(*domain.Product) []string{
	domain.RuleFieldTitle:        func(p *domain.Product) []string { return []string{p.Title} },
	domain.RuleFieldType:         func(p *domain.Product) []string { return []string{p.ProductType} },
	domain.RuleFieldVendor:       func(p *domain.Product) []string { return []string{p.Vendor} },
	domain.RuleFieldTag:          func(p *domain.Product) []string { return p.Tags },
	domain.RuleFieldVariantTitle: func(p *domain.Product) []string { return []string{p.VariantTitle} },
}

// numberAttributes reads numeric attributes; ok is false for a typed null.
var numberAttributes = map[domain.RuleField]func(*domain.Product) (float64, bool){
	domain.RuleFieldPrice:          func(p *domain.Product) (float64, bool) { return deref(p.Price) },
	domain.RuleFieldCompareAtPrice: func(p *domain.Product) (float64, bool) { return deref(p.CompareAtPrice) },
	domain.RuleFieldWeight:         func(p *domain.Product) (float64, bool) { return deref(p.Weight) },
	domain.RuleFieldInventory: func(p *domain.Product) (float64, bool) {
		if p.Inventory == nil {
			return 0, false
		}
		return float64(*p.Inventory), true
	},
}

func deref(v *float64) (float64, bool) {
	if v == nil {
		return 0, false
	}
	return *v, true
}

// RelationsFor returns the relations valid for a field, in a stable order.
// It returns nil for an unknown field.
func RelationsFor(field domain.RuleField) []domain.RuleRelation {
	ft, ok := domain.RuleFieldTypes[field]
	if !ok {
		return nil
	}
	if ft == domain.FieldTypeString {
		return []domain.RuleRelation{
			domain.RelationEquals, domain.RelationNotEquals,
			domain.RelationContains, domain.RelationNotContains,
			domain.RelationStartsWith, domain.RelationEndsWith,
		}
	}
	return []domain.RuleRelation{
		domain.RelationEquals, domain.RelationNotEquals,
		domain.RelationGreaterThan, domain.RelationLessThan,
	}
}
