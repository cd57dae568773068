package catalog

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"quote-screener/internal/domain"
	"quote-screener/internal/storage"
)

// LoadFile loads a catalog from a .csv, .yaml or .yml file.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()

	var instruments []*domain.Instrument
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		instruments, err = ReadCSV(f)
	case ".yaml", ".yml":
		instruments, err = ReadYAML(f)
	default:
		return nil, fmt.Errorf("unsupported catalog format: %s", path)
	}
	if err != nil {
		return nil, err
	}

	return New(instruments)
}

// LoadStore loads a catalog from an instrument store.
func LoadStore(ctx context.Context, store storage.InstrumentStore) (*Catalog, error) {
	instruments, err := store.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load instruments: %w", err)
	}
	return New(instruments)
}

// ReadCSV reads instruments from CSV with a header row.
// Required column: symbol. Optional: exchange, name, sector, industry, instrument_key.
func ReadCSV(r io.Reader) ([]*domain.Instrument, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read catalog csv: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	// Map header names to column indexes
	cols := make(map[string]int)
	for i, name := range records[0] {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := cols["symbol"]; !ok {
		return nil, fmt.Errorf("catalog csv: missing symbol column")
	}

	get := func(record []string, col string) string {
		i, ok := cols[col]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	instruments := make([]*domain.Instrument, 0, len(records)-1)
	for line, record := range records[1:] {
		symbol := get(record, "symbol")
		if symbol == "" {
			return nil, fmt.Errorf("catalog csv line %d: %w", line+2, ErrEmptySymbol)
		}
		instruments = append(instruments, &domain.Instrument{
			Symbol:        symbol,
			Exchange:      get(record, "exchange"),
			Name:          get(record, "name"),
			Sector:        get(record, "sector"),
			Industry:      get(record, "industry"),
			InstrumentKey: get(record, "instrument_key"),
		})
	}

	return instruments, nil
}

type catalogFile struct {
	Instruments []instrumentSpec `yaml:"instruments"`
}

type instrumentSpec struct {
	Symbol        string `yaml:"symbol"`
	Exchange      string `yaml:"exchange"`
	Name          string `yaml:"name"`
	Sector        string `yaml:"sector"`
	Industry      string `yaml:"industry"`
	InstrumentKey string `yaml:"instrument_key"`
}

// ReadYAML reads instruments from a YAML document with an "instruments" list.
func ReadYAML(r io.Reader) ([]*domain.Instrument, error) {
	var file catalogFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode catalog yaml: %w", err)
	}

	instruments := make([]*domain.Instrument, 0, len(file.Instruments))
	for _, s := range file.Instruments {
		instruments = append(instruments, &domain.Instrument{
			Symbol:        s.Symbol,
			Exchange:      s.Exchange,
			Name:          s.Name,
			Sector:        s.Sector,
			Industry:      s.Industry,
			InstrumentKey: s.InstrumentKey,
		})
	}
	return instruments, nil
}
