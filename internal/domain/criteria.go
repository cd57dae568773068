package domain

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

var (
	// ErrInvalidRange is returned when a criterion has min > max or a NaN bound.
	ErrInvalidRange = errors.New("invalid range: min must not exceed max")

	// ErrDuplicateCriterion is returned when a criteria set names a field twice.
	ErrDuplicateCriterion = errors.New("duplicate criterion field")
)

// Criterion is an inclusive numeric range filter on one quote field.
type Criterion struct {
	Field   Field   `json:"field" yaml:"field"`
	Min     float64 `json:"min" yaml:"min"`
	Max     float64 `json:"max" yaml:"max"`
	Enabled bool    `json:"enabled" yaml:"enabled"`
}

// Validate checks the field name and range bounds.
func (c Criterion) Validate() error {
	if !c.Field.IsValid() {
		return fmt.Errorf("%w: %q", ErrUnknownField, c.Field)
	}
	if math.IsNaN(c.Min) || math.IsNaN(c.Max) {
		return fmt.Errorf("%w: %s has NaN bound", ErrInvalidRange, c.Field)
	}
	if c.Min > c.Max {
		return fmt.Errorf("%w: %s [%g, %g]", ErrInvalidRange, c.Field, c.Min, c.Max)
	}
	return nil
}

// Contains reports whether v lies in [Min, Max].
func (c Criterion) Contains(v float64) bool {
	return c.Min <= v && v <= c.Max
}

// CriteriaSet is a validated mapping of field to criterion.
// A set is never mutated after construction; edits return a new set,
// so a set can be shared by concurrent evaluations.
type CriteriaSet struct {
	byField map[Field]Criterion
	enabled []Criterion // ordered by field, computed once
}

// NewCriteriaSet validates criteria and builds a set.
// Returns ErrInvalidRange, ErrUnknownField or ErrDuplicateCriterion.
func NewCriteriaSet(criteria ...Criterion) (*CriteriaSet, error) {
	s := &CriteriaSet{byField: make(map[Field]Criterion, len(criteria))}
	for _, c := range criteria {
		if err := c.Validate(); err != nil {
			return nil, err
		}
		if _, exists := s.byField[c.Field]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateCriterion, c.Field)
		}
		s.byField[c.Field] = c
	}
	return s.seal(), nil
}

// MustCriteriaSet is NewCriteriaSet for static definitions; it panics on error.
func MustCriteriaSet(criteria ...Criterion) *CriteriaSet {
	s, err := NewCriteriaSet(criteria...)
	if err != nil {
		panic(err)
	}
	return s
}

// With returns a copy of the set with c added or replaced.
// The receiver is left untouched when c is invalid.
func (s *CriteriaSet) With(c Criterion) (*CriteriaSet, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	next := s.Clone()
	next.byField[c.Field] = c
	return next.seal(), nil
}

// Without returns a copy of the set with the field removed.
func (s *CriteriaSet) Without(f Field) *CriteriaSet {
	next := s.Clone()
	delete(next.byField, f)
	return next.seal()
}

// Get returns the criterion for a field.
func (s *CriteriaSet) Get(f Field) (Criterion, bool) {
	if s == nil {
		return Criterion{}, false
	}
	c, ok := s.byField[f]
	return c, ok
}

// Criteria returns all criteria ordered by field name.
func (s *CriteriaSet) Criteria() []Criterion {
	if s == nil {
		return nil
	}
	out := make([]Criterion, 0, len(s.byField))
	for _, c := range s.byField {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Field < out[j].Field
	})
	return out
}

// Enabled returns enabled criteria ordered by field name.
// The slice is shared and must not be modified.
func (s *CriteriaSet) Enabled() []Criterion {
	if s == nil {
		return nil
	}
	return s.enabled
}

func (s *CriteriaSet) seal() *CriteriaSet {
	s.enabled = nil
	for _, c := range s.Criteria() {
		if c.Enabled {
			s.enabled = append(s.enabled, c)
		}
	}
	return s
}

// Len returns the number of criteria, enabled or not.
func (s *CriteriaSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.byField)
}

// Clone returns a deep copy of the set. A nil set clones to an empty set.
func (s *CriteriaSet) Clone() *CriteriaSet {
	next := &CriteriaSet{byField: make(map[Field]Criterion)}
	if s == nil {
		return next
	}
	for f, c := range s.byField {
		next.byField[f] = c
	}
	return next.seal()
}
