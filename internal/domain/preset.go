package domain

import "fmt"

// SortKey orders screening results. Ties always break on symbol ascending.
type SortKey struct {
	Field      Field `json:"field" yaml:"field"`
	Descending bool  `json:"descending" yaml:"descending"`
}

// DefaultSortKey ranks by market cap, largest first.
var DefaultSortKey = SortKey{Field: FieldMarketCap, Descending: true}

// Validate checks the sort field.
func (k SortKey) Validate() error {
	if !k.Field.IsValid() {
		return fmt.Errorf("%w: %q", ErrUnknownField, k.Field)
	}
	return nil
}

// Preset is a named criteria template. Applying it clones the criteria,
// so sessions never share a set with the template.
type Preset struct {
	Name        string
	Description string
	Criteria    *CriteriaSet
	Sort        SortKey
}

// Apply returns a fresh criteria set and the preset's sort key.
func (p Preset) Apply() (*CriteriaSet, SortKey) {
	sortKey := p.Sort
	if sortKey.Field == "" {
		sortKey = DefaultSortKey
	}
	return p.Criteria.Clone(), sortKey
}
