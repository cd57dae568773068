// Package ingestion normalizes upstream quote events and feeds the quote store.
package ingestion

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"quote-screener/internal/domain"
)

var (
	// ErrMalformedQuote is returned when required fields are missing or non-numeric.
	ErrMalformedQuote = errors.New("malformed quote")

	// ErrUnknownInstrument is returned when the identifier is not in the catalog.
	ErrUnknownInstrument = errors.New("unknown instrument")
)

// Resolver maps a symbol or feed instrument key to a catalog instrument.
type Resolver interface {
	Resolve(id string) (domain.Instrument, bool)
}

// QuoteWriter accepts normalized quotes.
type QuoteWriter interface {
	ApplyQuote(q *domain.Quote) error
}

// Adapter converts raw events into quotes and forwards them to the store.
type Adapter struct {
	resolver Resolver
	store    QuoteWriter
}

// NewAdapter creates an ingestion adapter.
func NewAdapter(resolver Resolver, store QuoteWriter) *Adapter {
	return &Adapter{resolver: resolver, store: store}
}

// Ingest normalizes ev and applies it to the store.
// Returns ErrMalformedQuote or ErrUnknownInstrument without touching the store,
// or the store's error (storage.ErrStaleTimestamp for out-of-order ticks).
func (a *Adapter) Ingest(ev RawEvent) (*domain.Quote, error) {
	q, err := a.Normalize(ev)
	if err != nil {
		return nil, err
	}
	if err := a.store.ApplyQuote(q); err != nil {
		return q, err
	}
	return q, nil
}

// Normalize converts ev into a quote for a catalog instrument without applying it.
func (a *Adapter) Normalize(ev RawEvent) (*domain.Quote, error) {
	p := ev.Payload
	if p == nil {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformedQuote)
	}
	p = flattenLTPC(p)

	id, ok := lookupString(p, "symbol", "instrumentKey", "instrument_key", "instrument_token", "ticker")
	if !ok {
		return nil, fmt.Errorf("%w: missing instrument identifier", ErrMalformedQuote)
	}
	instrument, ok := a.resolver.Resolve(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownInstrument, id)
	}

	q := &domain.Quote{Symbol: instrument.Symbol}

	raw, ok := lookup(p, "price", "ltp", "lastPrice", "last_price")
	if !ok {
		return nil, fmt.Errorf("%w: %s: missing price", ErrMalformedQuote, id)
	}
	price, err := toDecimal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: price: %v", ErrMalformedQuote, id, err)
	}
	q.Price = price.InexactFloat64()

	if q.Timestamp, err = parseTimestamp(p, ev.ReceivedAt); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedQuote, id, err)
	}

	// Change either arrives directly or derives from the previous close
	change, hasChange, err := optionalNumber(p, "change", "netChange", "net_change")
	if err != nil {
		return nil, fmt.Errorf("%w: %s: change: %v", ErrMalformedQuote, id, err)
	}
	pct, hasPct, err := optionalNumber(p, "changePercent", "change_percent", "pChange")
	if err != nil {
		return nil, fmt.Errorf("%w: %s: changePercent: %v", ErrMalformedQuote, id, err)
	}
	if !hasChange || !hasPct {
		if rawClose, ok := lookup(p, "close", "cp", "prevClose", "previousClose"); ok {
			prev, err := toDecimal(rawClose)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: close: %v", ErrMalformedQuote, id, err)
			}
			diff := price.Sub(prev)
			if !hasChange {
				change, hasChange = diff.Round(4).InexactFloat64(), true
			}
			if !hasPct && !prev.IsZero() {
				pct, hasPct = diff.Div(prev).Mul(decHundred).Round(4).InexactFloat64(), true
			}
		}
	}
	q.Change = change
	q.ChangePercent = pct

	if q.Volume, _, err = optionalNumber(p, "volume", "vtt", "totalVolume"); err != nil {
		return nil, fmt.Errorf("%w: %s: volume: %v", ErrMalformedQuote, id, err)
	}

	for _, f := range optionalFields {
		raw, ok := lookup(p, f.keys...)
		if !ok || raw == nil {
			continue
		}
		parse := ParseNumber
		if f.amount {
			parse = ParseCrore
		}
		v, err := parse(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %s: %v", ErrMalformedQuote, id, f.keys[0], err)
		}
		*f.target(q) = domain.Float(v)
	}

	return q, nil
}

// optionalFields lists the fundamentals read from the payload.
// Amounts (market cap, revenue) are normalized to crore.
var optionalFields = []struct {
	keys   []string
	amount bool
	target func(q *domain.Quote) **float64
}{
	{[]string{"marketCap", "market_cap", "mcap"}, true, func(q *domain.Quote) **float64 { return &q.MarketCap }},
	{[]string{"pe", "peRatio", "pe_ratio"}, false, func(q *domain.Quote) **float64 { return &q.PERatio }},
	{[]string{"pb", "pbRatio", "pb_ratio"}, false, func(q *domain.Quote) **float64 { return &q.PBRatio }},
	{[]string{"dividendYield", "dividend_yield", "divYield"}, false, func(q *domain.Quote) **float64 { return &q.DividendYield }},
	{[]string{"roe"}, false, func(q *domain.Quote) **float64 { return &q.ROE }},
	{[]string{"rsi"}, false, func(q *domain.Quote) **float64 { return &q.RSI }},
	{[]string{"beta"}, false, func(q *domain.Quote) **float64 { return &q.Beta }},
	{[]string{"revenue"}, true, func(q *domain.Quote) **float64 { return &q.Revenue }},
	{[]string{"revenueGrowth", "revenue_growth"}, false, func(q *domain.Quote) **float64 { return &q.RevenueGrowth }},
	{[]string{"debtToEquity", "debt_to_equity", "de"}, false, func(q *domain.Quote) **float64 { return &q.DebtToEquity }},
}

// parseTimestamp reads the exchange timestamp in unix ms. Values below 1e11
// are taken as seconds. Falls back to the receive time.
func parseTimestamp(p map[string]any, receivedAt time.Time) (int64, error) {
	raw, ok := lookup(p, "timestamp", "ts", "ltt", "lastTradeTime", "currentTs")
	if !ok {
		if receivedAt.IsZero() {
			return 0, errors.New("missing timestamp")
		}
		return receivedAt.UnixMilli(), nil
	}

	if s, ok := raw.(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t.UnixMilli(), nil
		}
	}

	d, err := toDecimal(raw)
	if err != nil {
		return 0, fmt.Errorf("timestamp: %v", err)
	}
	ts := d.IntPart()
	if ts <= 0 {
		return 0, fmt.Errorf("timestamp: non-positive %d", ts)
	}
	if ts < 1e11 {
		ts *= 1000
	}
	return ts, nil
}

func optionalNumber(p map[string]any, keys ...string) (float64, bool, error) {
	raw, ok := lookup(p, keys...)
	if !ok || raw == nil {
		return 0, false, nil
	}
	v, err := ParseNumber(raw)
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

func lookup(p map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := p[k]; ok {
			return v, true
		}
	}
	return nil, false
}

func lookupString(p map[string]any, keys ...string) (string, bool) {
	v, ok := lookup(p, keys...)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	s = strings.TrimSpace(s)
	return s, ok && s != ""
}

// flattenLTPC lifts a nested last-traded-price block ("ltpc") to the top level,
// as sent by the brokerage full-mode feed. Top-level keys win.
func flattenLTPC(p map[string]any) map[string]any {
	ltpc := findMap(p, "ltpc", 4)
	if ltpc == nil {
		return p
	}

	out := make(map[string]any, len(p)+len(ltpc))
	for k, v := range ltpc {
		out[k] = v
	}
	for k, v := range p {
		out[k] = v
	}
	if vtt, ok := findValue(p, "vtt", 4); ok {
		if _, exists := out["vtt"]; !exists {
			out["vtt"] = vtt
		}
	}
	return out
}

func findMap(p map[string]any, key string, depth int) map[string]any {
	if depth == 0 {
		return nil
	}
	if m, ok := p[key].(map[string]any); ok {
		return m
	}
	for _, v := range p {
		if child, ok := v.(map[string]any); ok {
			if m := findMap(child, key, depth-1); m != nil {
				return m
			}
		}
	}
	return nil
}

func findValue(p map[string]any, key string, depth int) (any, bool) {
	if depth == 0 {
		return nil, false
	}
	if v, ok := p[key]; ok {
		return v, true
	}
	for _, v := range p {
		if child, ok := v.(map[string]any); ok {
			if found, ok := findValue(child, key, depth-1); ok {
				return found, true
			}
		}
	}
	return nil, false
}
