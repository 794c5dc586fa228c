package domain

// RuleField names a product attribute a collection rule can test.
type RuleField string

const (
	RuleFieldTitle          RuleField = "TITLE"
	RuleFieldType           RuleField = "TYPE"
	RuleFieldVendor         RuleField = "VENDOR"
	RuleFieldTag            RuleField = "TAG"
	RuleFieldVariantTitle   RuleField = "VARIANT_TITLE"
	RuleFieldPrice          RuleField = "PRICE"
	RuleFieldCompareAtPrice RuleField = "COMPARE_AT_PRICE"
	RuleFieldWeight         RuleField = "WEIGHT"
	RuleFieldInventory      RuleField = "INVENTORY"
)

// FieldType is the value type implied by a RuleField.
type FieldType string

const (
	FieldTypeString  FieldType = "string"
	FieldTypeNumber  FieldType = "number"
	FieldTypeInteger FieldType = "integer"
)

// RuleFieldTypes maps each known RuleField to its value type.
var RuleFieldTypes = map[RuleField]FieldType{
	RuleFieldTitle:          FieldTypeString,
	RuleFieldType:           FieldTypeString,
	RuleFieldVendor:         FieldTypeString,
	RuleFieldTag:            FieldTypeString,
	RuleFieldVariantTitle:   FieldTypeString,
	RuleFieldPrice:          FieldTypeNumber,
	RuleFieldCompareAtPrice: FieldTypeNumber,
	RuleFieldWeight:         FieldTypeNumber,
	RuleFieldInventory:      FieldTypeInteger,
}

// RuleRelation is the comparator a rule applies between attribute and value.
type RuleRelation string

const (
	RelationEquals      RuleRelation = "EQUALS"
	RelationNotEquals   RuleRelation = "NOT_EQUALS"
	RelationContains    RuleRelation = "CONTAINS"
	RelationNotContains RuleRelation = "NOT_CONTAINS"
	RelationStartsWith  RuleRelation = "STARTS_WITH"
	RelationEndsWith    RuleRelation = "ENDS_WITH"
	RelationGreaterThan RuleRelation = "GREATER_THAN"
	RelationLessThan    RuleRelation = "LESS_THAN"
)

// CombinationMode controls how rule matches are folded into one result.
type CombinationMode string

const (
	ModeConjunctive CombinationMode = "CONJUNCTIVE"
	ModeDisjunctive CombinationMode = "DISJUNCTIVE"
)

// ValidCombinationModes lists the accepted combination modes.
var ValidCombinationModes = map[CombinationMode]bool{
	ModeConjunctive: true,
	ModeDisjunctive: true,
}

// MembershipKind is the tag distinguishing how a collection's members are computed.
type MembershipKind string

const (
	MembershipManual    MembershipKind = "manual"
	MembershipAutomatic MembershipKind = "automatic"
)

// CatalogOrder is the deterministic order in which the catalog streams products.
type CatalogOrder string

const (
	CatalogOrderCreated CatalogOrder = "created"
	CatalogOrderTitle   CatalogOrder = "title"
)

// ChangeKind describes a membership-affecting mutation.
type ChangeKind string

const (
	ChangeCreated         ChangeKind = "created"
	ChangeRulesUpdated    ChangeKind = "rules_updated"
	ChangeProductsAdded   ChangeKind = "products_added"
	ChangeProductsRemoved ChangeKind = "products_removed"
	ChangeProductMoved    ChangeKind = "product_moved"
	ChangeDeleted         ChangeKind = "deleted"
)
