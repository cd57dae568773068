// Package criteria evaluates quotes against user-defined criteria sets.
package criteria

import (
	"fmt"

	"quote-screener/internal/domain"
)

// Engine evaluates quotes against criteria sets.
// It holds no state and is safe for concurrent use.
type Engine struct{}

// NewEngine creates a new criteria engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Matches reports whether the quote satisfies every enabled criterion.
// A missing field fails that criterion. A set with no enabled criteria
// matches every quote.
func (e *Engine) Matches(q *domain.Quote, set *domain.CriteriaSet) bool {
	if q == nil {
		return false
	}
	for _, c := range set.Enabled() {
		v, ok := q.Value(c.Field)
		if !ok || !c.Contains(v) {
			return false
		}
	}
	return true
}

// Filter returns the quotes that match the set, preserving input order.
func (e *Engine) Filter(quotes []*domain.Quote, set *domain.CriteriaSet) []*domain.Quote {
	var out []*domain.Quote
	for _, q := range quotes {
		if e.Matches(q, set) {
			out = append(out, q)
		}
	}
	return out
}

// CriterionResult is the outcome of one enabled criterion for one quote.
type CriterionResult struct {
	Field  domain.Field
	Range  string // "[min, max]"
	Actual string // formatted value, or "absent"
	Pass   bool
}

// Explain evaluates each enabled criterion separately.
// Used by the detail view to show why a quote did or did not match.
func (e *Engine) Explain(q *domain.Quote, set *domain.CriteriaSet) []CriterionResult {
	enabled := set.Enabled()
	results := make([]CriterionResult, 0, len(enabled))
	for _, c := range enabled {
		r := CriterionResult{
			Field:  c.Field,
			Range:  fmt.Sprintf("[%g, %g]", c.Min, c.Max),
			Actual: "absent",
		}
		if v, ok := q.Value(c.Field); ok {
			r.Actual = fmt.Sprintf("%g", v)
			r.Pass = c.Contains(v)
		}
		results = append(results, r)
	}
	return results
}
