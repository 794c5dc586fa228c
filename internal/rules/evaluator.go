// Package rules evaluates collection rules against catalog products.
//
// Rules are validated and compiled once, when they are created or loaded, so
// that matching a product never parses values or reports type errors.
package rules

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"shelf/internal/domain"
)

// CasePolicy controls string comparison for one evaluation run.
type CasePolicy int

const (
	CaseInsensitive CasePolicy = iota
	CaseSensitive
)

// Evaluator evaluates individual rules under a fixed case policy.
type Evaluator struct {
	policy CasePolicy
}

// NewEvaluator creates an Evaluator with the given case policy.
func NewEvaluator(policy CasePolicy) *Evaluator {
	return &Evaluator{policy: policy}
}

// Policy returns the evaluator's case policy.
func (e *Evaluator) Policy() CasePolicy {
	return e.policy
}

// Evaluate reports whether product satisfies rule. Unknown fields and
// incompatible relations or values are returned as validation errors rather
// than treated as non-matches.
func (e *Evaluator) Evaluate(rule domain.CollectionRule, product *domain.Product) (bool, error) {
	c, err := e.compile(rule)
	if err != nil {
		return false, err
	}
	return c(product), nil
}

// ValidateRule checks that a rule's field is known, its relation is valid for
// the field's type and its value parses under that type.
func ValidateRule(rule domain.CollectionRule) error {
	_, err := NewEvaluator(CaseSensitive).compile(rule)
	return err
}

// ValidateRuleSet validates the combination mode and every rule of rs.
func ValidateRuleSet(rs *domain.RuleSet) error {
	if rs == nil {
		return nil
	}
	if !domain.ValidCombinationModes[rs.Mode] {
		return fmt.Errorf("%w: %q", domain.ErrInvalidCombinationMode, rs.Mode)
	}
	for i, r := range rs.Rules {
		if err := ValidateRule(r); err != nil {
			return fmt.Errorf("rule %d: %w", i, err)
		}
	}
	return nil
}

type matchFunc func(*domain.Product) bool

func relationMismatch(rule domain.CollectionRule) error {
	allowed := RelationsFor(rule.Field)
	names := make([]string, len(allowed))
	for i, r := range allowed {
		names[i] = string(r)
	}
	return fmt.Errorf("%w: %s does not support %s (allowed: %s)",
		domain.ErrRuleTypeMismatch, rule.Field, rule.Relation, strings.Join(names, ", "))
}

func (e *Evaluator) compile(rule domain.CollectionRule) (matchFunc, error) {
	ft, ok := domain.RuleFieldTypes[rule.Field]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownRuleField, rule.Field)
	}

	switch ft {
	case domain.FieldTypeString:
		rel, ok := stringRelations[rule.Relation]
		if !ok {
			return nil, relationMismatch(rule)
		}
		return e.compileString(rule.Field, rel, rule.Value), nil

	default:
		rel, ok := numberRelations[rule.Relation]
		if !ok {
			return nil, relationMismatch(rule)
		}
		value, err := parseNumber(ft, rule.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: %s value %q: %v", domain.ErrInvalidRuleValue, rule.Field, rule.Value, err)
		}
		return compileNumber(rule.Field, rel, value), nil
	}
}

func (e *Evaluator) compileString(field domain.RuleField, rel relation[string], value string) matchFunc {
	read := stringAttributes[field]
	fold := e.policy == CaseInsensitive
	if fold {
		value = strings.ToLower(value)
	}
	return func(p *domain.Product) bool {
		hit := false
		for _, attr := range read(p) {
			if fold {
				attr = strings.ToLower(attr)
			}
			if rel.compare(attr, value) {
				hit = true
				break
			}
		}
		return hit != rel.negate
	}
}

func compileNumber(field domain.RuleField, rel relation[float64], value float64) matchFunc {
	read := numberAttributes[field]
	return func(p *domain.Product) bool {
		attr, ok := read(p)
		hit := ok && rel.compare(attr, value)
		return hit != rel.negate
	}
}

func parseNumber(ft domain.FieldType, raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if ft == domain.FieldTypeInteger {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, err
		}
		return float64(n), nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errors.New("not a finite number")
	}
	return f, nil
}
