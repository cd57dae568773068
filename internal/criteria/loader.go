package criteria

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"quote-screener/internal/domain"
)

// presetFile is the on-disk preset format:
//
//	presets:
//	  - name: Large Caps
//	    description: Biggest companies
//	    sort: {field: marketCap, descending: true}
//	    criteria:
//	      marketCap: {min: 100000, enabled: true}
type presetFile struct {
	Presets []presetSpec `yaml:"presets"`
}

type presetSpec struct {
	Name        string                   `yaml:"name"`
	Description string                   `yaml:"description"`
	Sort        *domain.SortKey          `yaml:"sort"`
	Criteria    map[string]criterionSpec `yaml:"criteria"`
}

// criterionSpec leaves a bound open when it is omitted.
type criterionSpec struct {
	Min     *float64 `yaml:"min"`
	Max     *float64 `yaml:"max"`
	Enabled *bool    `yaml:"enabled"`
}

// LoadPresetFile reads presets from a YAML file.
func LoadPresetFile(path string) ([]domain.Preset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open preset file: %w", err)
	}
	defer f.Close()

	return LoadPresets(f)
}

// LoadPresets decodes and validates presets from YAML.
// A criterion with an invalid range fails the whole file.
func LoadPresets(r io.Reader) ([]domain.Preset, error) {
	var file presetFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("decode presets: %w", err)
	}

	presets := make([]domain.Preset, 0, len(file.Presets))
	for _, spec := range file.Presets {
		if spec.Name == "" {
			return nil, fmt.Errorf("preset without name")
		}

		criteria := make([]domain.Criterion, 0, len(spec.Criteria))
		for name, cs := range spec.Criteria {
			field, err := domain.ParseField(name)
			if err != nil {
				return nil, fmt.Errorf("preset %q: %w", spec.Name, err)
			}
			c := domain.Criterion{Field: field, Min: -unbounded, Max: unbounded, Enabled: true}
			if cs.Min != nil {
				c.Min = *cs.Min
			}
			if cs.Max != nil {
				c.Max = *cs.Max
			}
			if cs.Enabled != nil {
				c.Enabled = *cs.Enabled
			}
			criteria = append(criteria, c)
		}

		set, err := domain.NewCriteriaSet(criteria...)
		if err != nil {
			return nil, fmt.Errorf("preset %q: %w", spec.Name, err)
		}

		p := domain.Preset{Name: spec.Name, Description: spec.Description, Criteria: set}
		if spec.Sort != nil {
			if err := spec.Sort.Validate(); err != nil {
				return nil, fmt.Errorf("preset %q sort: %w", spec.Name, err)
			}
			p.Sort = *spec.Sort
		}
		presets = append(presets, p)
	}

	return presets, nil
}
