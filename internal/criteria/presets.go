package criteria

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"quote-screener/internal/domain"
)

// ErrUnknownPreset is returned when no preset has the requested name.
var ErrUnknownPreset = errors.New("unknown preset")

// unbounded is used as the open end of one-sided ranges.
const unbounded = math.MaxFloat64

// Preset names.
const (
	PresetGrowth    = "Growth Stocks"
	PresetValue     = "Value Picks"
	PresetMomentum  = "Momentum Plays"
	PresetDividend  = "Dividend Champions"
	PresetCustom    = "Custom"
	PresetAll       = "All Stocks"
	PresetGainers   = "Top Gainers"
	PresetLosers    = "Top Losers"
	PresetHighVol   = "High Volume"
	PresetDividends = "Dividend"
)

// BuiltinPresets returns the preset catalog shipped with the screener.
// Each call returns fresh presets.
func BuiltinPresets() []domain.Preset {
	return []domain.Preset{
		{
			Name:        PresetGrowth,
			Description: "High growth potential companies",
			Criteria: domain.MustCriteriaSet(
				domain.Criterion{Field: domain.FieldPERatio, Min: 0, Max: 30, Enabled: true},
				domain.Criterion{Field: domain.FieldRevenueGrowth, Min: 20, Max: unbounded, Enabled: true},
			),
		},
		{
			Name:        PresetValue,
			Description: "Undervalued quality companies",
			Criteria: domain.MustCriteriaSet(
				domain.Criterion{Field: domain.FieldPERatio, Min: 0, Max: 15, Enabled: true},
				domain.Criterion{Field: domain.FieldPBRatio, Min: 0, Max: 2, Enabled: true},
				domain.Criterion{Field: domain.FieldDebtToEquity, Min: 0, Max: 0.5, Enabled: true},
			),
		},
		{
			Name:        PresetMomentum,
			Description: "Strong price momentum stocks",
			Criteria: domain.MustCriteriaSet(
				domain.Criterion{Field: domain.FieldRSI, Min: 50, Max: 100, Enabled: true},
				domain.Criterion{Field: domain.FieldChangePercent, Min: 0, Max: unbounded, Enabled: true},
			),
			Sort: domain.SortKey{Field: domain.FieldChangePercent, Descending: true},
		},
		{
			Name:        PresetDividend,
			Description: "Consistent dividend payers",
			Criteria: domain.MustCriteriaSet(
				domain.Criterion{Field: domain.FieldDividendYield, Min: 3, Max: unbounded, Enabled: true},
			),
			Sort: domain.SortKey{Field: domain.FieldDividendYield, Descending: true},
		},
		{
			Name:        PresetCustom,
			Description: "Starting point for a custom screen",
			Criteria: domain.MustCriteriaSet(
				domain.Criterion{Field: domain.FieldMarketCap, Min: 1000, Max: 50000, Enabled: true},
				domain.Criterion{Field: domain.FieldPERatio, Min: 5, Max: 30, Enabled: true},
				domain.Criterion{Field: domain.FieldDividendYield, Min: 0, Max: 10, Enabled: false},
				domain.Criterion{Field: domain.FieldRevenue, Min: 100, Max: 10000, Enabled: true},
				domain.Criterion{Field: domain.FieldDebtToEquity, Min: 0, Max: 1, Enabled: false},
				domain.Criterion{Field: domain.FieldROE, Min: 10, Max: 50, Enabled: true},
			),
		},
		// Quick filters from the screener tab.
		{
			Name:        PresetAll,
			Description: "Every instrument in the catalog",
			Criteria:    domain.MustCriteriaSet(),
		},
		{
			Name:        PresetGainers,
			Description: "Biggest gainers today",
			Criteria: domain.MustCriteriaSet(
				domain.Criterion{Field: domain.FieldChangePercent, Min: math.SmallestNonzeroFloat64, Max: unbounded, Enabled: true},
			),
			Sort: domain.SortKey{Field: domain.FieldChangePercent, Descending: true},
		},
		{
			Name:        PresetLosers,
			Description: "Biggest losers today",
			Criteria: domain.MustCriteriaSet(
				domain.Criterion{Field: domain.FieldChangePercent, Min: -unbounded, Max: -math.SmallestNonzeroFloat64, Enabled: true},
			),
			Sort: domain.SortKey{Field: domain.FieldChangePercent, Descending: false},
		},
		{
			Name:        PresetHighVol,
			Description: "Most traded instruments",
			Criteria:    domain.MustCriteriaSet(),
			Sort:        domain.SortKey{Field: domain.FieldVolume, Descending: true},
		},
		{
			Name:        PresetDividends,
			Description: "Instruments paying a dividend",
			Criteria: domain.MustCriteriaSet(
				domain.Criterion{Field: domain.FieldDividendYield, Min: math.SmallestNonzeroFloat64, Max: unbounded, Enabled: true},
			),
			Sort: domain.SortKey{Field: domain.FieldDividendYield, Descending: true},
		},
	}
}

// Registry resolves presets by case-insensitive name.
type Registry struct {
	presets map[string]domain.Preset
}

// NewRegistry builds a registry. Later presets override earlier ones with the same name.
func NewRegistry(presets ...[]domain.Preset) *Registry {
	r := &Registry{presets: make(map[string]domain.Preset)}
	for _, group := range presets {
		for _, p := range group {
			r.presets[strings.ToLower(p.Name)] = p
		}
	}
	return r
}

// Get returns the preset with the given name.
func (r *Registry) Get(name string) (domain.Preset, error) {
	p, ok := r.presets[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return domain.Preset{}, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
	}
	return p, nil
}

// List returns all presets ordered by name.
func (r *Registry) List() []domain.Preset {
	out := make([]domain.Preset, 0, len(r.presets))
	for _, p := range r.presets {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}
