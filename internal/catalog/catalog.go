// Package catalog holds the fixed set of known instruments.
package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"quote-screener/internal/domain"
)

var (
	// ErrDuplicateInstrument is returned when two instruments share a symbol or feed key.
	ErrDuplicateInstrument = errors.New("duplicate instrument")

	// ErrEmptySymbol is returned for an instrument without a symbol.
	ErrEmptySymbol = errors.New("instrument symbol is empty")
)

// Catalog is an immutable set of instruments loaded at startup.
// Reloading is a restart.
type Catalog struct {
	bySymbol map[string]domain.Instrument
	byKey    map[string]string // instrument key -> symbol
	symbols  []string          // ordered ASC
}

// New builds a catalog. Symbols are matched case-sensitively and must be unique,
// as must non-empty instrument keys.
func New(instruments []*domain.Instrument) (*Catalog, error) {
	c := &Catalog{
		bySymbol: make(map[string]domain.Instrument, len(instruments)),
		byKey:    make(map[string]string),
		symbols:  make([]string, 0, len(instruments)),
	}

	for _, i := range instruments {
		if i == nil || strings.TrimSpace(i.Symbol) == "" {
			return nil, ErrEmptySymbol
		}
		if _, exists := c.bySymbol[i.Symbol]; exists {
			return nil, fmt.Errorf("%w: symbol %s", ErrDuplicateInstrument, i.Symbol)
		}
		if i.InstrumentKey != "" {
			if _, exists := c.byKey[i.InstrumentKey]; exists {
				return nil, fmt.Errorf("%w: key %s", ErrDuplicateInstrument, i.InstrumentKey)
			}
			c.byKey[i.InstrumentKey] = i.Symbol
		}
		c.bySymbol[i.Symbol] = *i
		c.symbols = append(c.symbols, i.Symbol)
	}

	sort.Strings(c.symbols)
	return c, nil
}

// Lookup returns the instrument with the given symbol.
func (c *Catalog) Lookup(symbol string) (domain.Instrument, bool) {
	i, ok := c.bySymbol[symbol]
	return i, ok
}

// LookupKey returns the instrument with the given feed instrument key.
func (c *Catalog) LookupKey(key string) (domain.Instrument, bool) {
	symbol, ok := c.byKey[key]
	if !ok {
		return domain.Instrument{}, false
	}
	return c.Lookup(symbol)
}

// Resolve accepts either a symbol or a feed instrument key.
func (c *Catalog) Resolve(id string) (domain.Instrument, bool) {
	if i, ok := c.Lookup(id); ok {
		return i, true
	}
	return c.LookupKey(id)
}

// Instruments returns all instruments ordered by symbol ASC.
func (c *Catalog) Instruments() []domain.Instrument {
	out := make([]domain.Instrument, 0, len(c.symbols))
	for _, s := range c.symbols {
		out = append(out, c.bySymbol[s])
	}
	return out
}

// Symbols returns all symbols ordered ASC.
func (c *Catalog) Symbols() []string {
	out := make([]string, len(c.symbols))
	copy(out, c.symbols)
	return out
}

// InstrumentKeys returns the non-empty feed keys ordered by symbol.
func (c *Catalog) InstrumentKeys() []string {
	var keys []string
	for _, s := range c.symbols {
		if k := c.bySymbol[s].InstrumentKey; k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// Len returns the number of instruments.
func (c *Catalog) Len() int {
	return len(c.symbols)
}
