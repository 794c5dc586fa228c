package rules

import (
	"fmt"

	"shelf/internal/domain"
)

// Combine evaluates every rule of rs against product and folds the results by
// the rule set's mode. An empty conjunctive set matches every product and an
// empty disjunctive set matches none.
func (e *Evaluator) Combine(rs *domain.RuleSet, product *domain.Product) (bool, error) {
	m, err := e.Compile(rs)
	if err != nil {
		return false, err
	}
	return m.Match(product), nil
}

// Matcher is a validated, compiled rule set. It is immutable and safe for
// concurrent use.
type Matcher struct {
	mode  domain.CombinationMode
	rules []domain.CollectionRule
	tests []matchFunc
}

// Compile validates rs and compiles it for repeated matching.
func (e *Evaluator) Compile(rs *domain.RuleSet) (*Matcher, error) {
	if rs == nil {
		return nil, fmt.Errorf("%w: rule set is required", domain.ErrValidation)
	}
	if !domain.ValidCombinationModes[rs.Mode] {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidCombinationMode, rs.Mode)
	}

	m := &Matcher{
		mode:  rs.Mode,
		rules: make([]domain.CollectionRule, len(rs.Rules)),
		tests: make([]matchFunc, 0, len(rs.Rules)),
	}
	copy(m.rules, rs.Rules)
	for i, r := range rs.Rules {
		test, err := e.compile(r)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		m.tests = append(m.tests, test)
	}
	return m, nil
}

// Match reports whether product belongs to the rule set. Conjunctive sets stop
// at the first non-match and disjunctive sets at the first match.
func (m *Matcher) Match(product *domain.Product) bool {
	if m.mode == domain.ModeConjunctive {
		for _, test := range m.tests {
			if !test(product) {
				return false
			}
		}
		return true
	}

	for _, test := range m.tests {
		if test(product) {
			return true
		}
	}
	return false
}

// Hints returns the rules a catalog store may use to narrow its scan. Only
// conjunctive sets produce hints, since each conjunct is a necessary
// condition; a store must return a superset of the true matches.
func (m *Matcher) Hints() []domain.PredicateHint {
	if m.mode != domain.ModeConjunctive {
		return nil
	}
	var hints []domain.PredicateHint
	for _, r := range m.rules {
		switch r.Relation {
		case domain.RelationEquals, domain.RelationGreaterThan, domain.RelationLessThan:
			hints = append(hints, domain.PredicateHint{Field: r.Field, Relation: r.Relation, Value: r.Value})
		}
	}
	return hints
}
