package rules_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shelf/internal/domain"
	"shelf/internal/rules"
)

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int64) *int64       { return &v }

func sampleProduct() *domain.Product {
	return &domain.Product{
		ID:           uuid.New(),
		Title:        "Trail Running Shoe",
		ProductType:  "Footwear",
		Vendor:       "Acme",
		Tags:         domain.StringList{"outdoor", "Summer-Sale"},
		VariantTitle: "Blue / 42",
		Price:        floatPtr(49.5),
		Weight:       nil,
		Inventory:    intPtr(12),
	}
}

func rule(field domain.RuleField, rel domain.RuleRelation, value string) domain.CollectionRule {
	return domain.CollectionRule{Field: field, Relation: rel, Value: value}
}

// --- String relations ---

func TestEvaluator_StringRelations(t *testing.T) {
	e := rules.NewEvaluator(rules.CaseInsensitive)
	p := sampleProduct()

	tests := []struct {
		name string
		rule domain.CollectionRule
		want bool
	}{
		{"equals", rule(domain.RuleFieldVendor, domain.RelationEquals, "Acme"), true},
		{"equals case folded", rule(domain.RuleFieldVendor, domain.RelationEquals, "ACME"), true},
		{"not equals", rule(domain.RuleFieldVendor, domain.RelationNotEquals, "Other"), true},
		{"contains", rule(domain.RuleFieldTitle, domain.RelationContains, "running"), true},
		{"not contains", rule(domain.RuleFieldTitle, domain.RelationNotContains, "boot"), true},
		{"starts with", rule(domain.RuleFieldTitle, domain.RelationStartsWith, "trail"), true},
		{"ends with", rule(domain.RuleFieldTitle, domain.RelationEndsWith, "shoe"), true},
		{"ends with miss", rule(domain.RuleFieldTitle, domain.RelationEndsWith, "boot"), false},
		{"type equals", rule(domain.RuleFieldType, domain.RelationEquals, "footwear"), true},
		{"variant title contains", rule(domain.RuleFieldVariantTitle, domain.RelationContains, "blue"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Evaluate(tt.rule, p)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluator_CaseSensitivePolicy(t *testing.T) {
	e := rules.NewEvaluator(rules.CaseSensitive)
	p := sampleProduct()

	got, err := e.Evaluate(rule(domain.RuleFieldVendor, domain.RelationEquals, "ACME"), p)
	require.NoError(t, err)
	assert.False(t, got)

	got, err = e.Evaluate(rule(domain.RuleFieldVendor, domain.RelationEquals, "Acme"), p)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestEvaluator_TagIsMultiValued(t *testing.T) {
	e := rules.NewEvaluator(rules.CaseInsensitive)
	p := sampleProduct()

	got, err := e.Evaluate(rule(domain.RuleFieldTag, domain.RelationEquals, "summer-sale"), p)
	require.NoError(t, err)
	assert.True(t, got, "any tag equal should match")

	got, err = e.Evaluate(rule(domain.RuleFieldTag, domain.RelationNotEquals, "outdoor"), p)
	require.NoError(t, err)
	assert.False(t, got, "NOT_EQUALS fails when some tag equals")

	got, err = e.Evaluate(rule(domain.RuleFieldTag, domain.RelationNotContains, "winter"), p)
	require.NoError(t, err)
	assert.True(t, got)

	p.Tags = nil
	got, err = e.Evaluate(rule(domain.RuleFieldTag, domain.RelationContains, "sale"), p)
	require.NoError(t, err)
	assert.False(t, got)
}

// --- Numeric relations ---

func TestEvaluator_NumericRelations(t *testing.T) {
	e := rules.NewEvaluator(rules.CaseInsensitive)
	p := sampleProduct()

	tests := []struct {
		name string
		rule domain.CollectionRule
		want bool
	}{
		{"price less than", rule(domain.RuleFieldPrice, domain.RelationLessThan, "50"), true},
		{"price greater than", rule(domain.RuleFieldPrice, domain.RelationGreaterThan, "50"), false},
		{"price equals decimal", rule(domain.RuleFieldPrice, domain.RelationEquals, "49.50"), true},
		{"price not equals", rule(domain.RuleFieldPrice, domain.RelationNotEquals, "10"), true},
		{"inventory greater than", rule(domain.RuleFieldInventory, domain.RelationGreaterThan, "0"), true},
		{"inventory equals", rule(domain.RuleFieldInventory, domain.RelationEquals, " 12 "), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Evaluate(tt.rule, p)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluator_TypedNullOnlySatisfiesNotEquals(t *testing.T) {
	e := rules.NewEvaluator(rules.CaseInsensitive)
	p := sampleProduct() // Weight is nil

	for _, rel := range []domain.RuleRelation{domain.RelationEquals, domain.RelationGreaterThan, domain.RelationLessThan} {
		got, err := e.Evaluate(rule(domain.RuleFieldWeight, rel, "1"), p)
		require.NoError(t, err)
		assert.False(t, got, rel)
	}

	got, err := e.Evaluate(rule(domain.RuleFieldWeight, domain.RelationNotEquals, "1"), p)
	require.NoError(t, err)
	assert.True(t, got)
}

// --- Validation ---

func TestEvaluator_UnknownFieldIsAnError(t *testing.T) {
	e := rules.NewEvaluator(rules.CaseInsensitive)

	got, err := e.Evaluate(rule("COLOR", domain.RelationEquals, "red"), sampleProduct())

	assert.False(t, got)
	assert.ErrorIs(t, err, domain.ErrUnknownRuleField)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestValidateRule(t *testing.T) {
	tests := []struct {
		name    string
		rule    domain.CollectionRule
		wantErr error
	}{
		{"valid string", rule(domain.RuleFieldTitle, domain.RelationContains, "x"), nil},
		{"valid numeric", rule(domain.RuleFieldPrice, domain.RelationGreaterThan, "10.25"), nil},
		{"contains on numeric", rule(domain.RuleFieldPrice, domain.RelationContains, "1"), domain.ErrRuleTypeMismatch},
		{"greater than on string", rule(domain.RuleFieldVendor, domain.RelationGreaterThan, "a"), domain.ErrRuleTypeMismatch},
		{"non numeric price", rule(domain.RuleFieldPrice, domain.RelationEquals, "cheap"), domain.ErrInvalidRuleValue},
		{"fractional inventory", rule(domain.RuleFieldInventory, domain.RelationEquals, "1.5"), domain.ErrInvalidRuleValue},
		{"nan price", rule(domain.RuleFieldPrice, domain.RelationLessThan, "NaN"), domain.ErrInvalidRuleValue},
		{"unknown relation", rule(domain.RuleFieldTitle, "MATCHES", "x"), domain.ErrRuleTypeMismatch},
		{"unknown field", rule("SKU", domain.RelationEquals, "x"), domain.ErrUnknownRuleField},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := rules.ValidateRule(tt.rule)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestValidateRuleSet(t *testing.T) {
	assert.NoError(t, rules.ValidateRuleSet(nil))

	err := rules.ValidateRuleSet(&domain.RuleSet{Mode: "XOR"})
	assert.ErrorIs(t, err, domain.ErrInvalidCombinationMode)

	err = rules.ValidateRuleSet(&domain.RuleSet{
		Mode: domain.ModeDisjunctive,
		Rules: []domain.CollectionRule{
			rule(domain.RuleFieldVendor, domain.RelationEquals, "Acme"),
			rule(domain.RuleFieldPrice, domain.RelationStartsWith, "5"),
		},
	})
	assert.ErrorIs(t, err, domain.ErrRuleTypeMismatch)
	assert.Contains(t, err.Error(), "rule 1")
}

func TestRelationsFor(t *testing.T) {
	assert.Contains(t, rules.RelationsFor(domain.RuleFieldTitle), domain.RelationStartsWith)
	assert.NotContains(t, rules.RelationsFor(domain.RuleFieldPrice), domain.RelationContains)
	assert.Nil(t, rules.RelationsFor("SKU"))
}

func TestEvaluator_MismatchNamesAllowedRelations(t *testing.T) {
	e := rules.NewEvaluator(rules.CaseInsensitive)

	_, err := e.Evaluate(rule(domain.RuleFieldPrice, domain.RelationContains, "1"), &domain.Product{})

	require.ErrorIs(t, err, domain.ErrRuleTypeMismatch)
	assert.Contains(t, err.Error(), "allowed: EQUALS, NOT_EQUALS, GREATER_THAN, LESS_THAN")
}
