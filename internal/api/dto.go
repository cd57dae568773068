package api

import (
	"fmt"
	"math"
	"time"

	"quote-screener/internal/criteria"
	"quote-screener/internal/domain"
	"quote-screener/internal/projection"
	"quote-screener/internal/screening"
)

// criterionJSON is a criterion on the wire. Missing bounds are open;
// a missing enabled flag means enabled.
type criterionJSON struct {
	Field   string   `json:"field"`
	Min     *float64 `json:"min"`
	Max     *float64 `json:"max"`
	Enabled *bool    `json:"enabled"`
}

func (j criterionJSON) toCriterion() (domain.Criterion, error) {
	field, err := domain.ParseField(j.Field)
	if err != nil {
		return domain.Criterion{}, err
	}
	c := domain.Criterion{Field: field, Min: -math.MaxFloat64, Max: math.MaxFloat64, Enabled: true}
	if j.Min != nil {
		c.Min = *j.Min
	}
	if j.Max != nil {
		c.Max = *j.Max
	}
	if j.Enabled != nil {
		c.Enabled = *j.Enabled
	}
	return c, nil
}

func criteriaSetFrom(list []criterionJSON) (*domain.CriteriaSet, error) {
	cs := make([]domain.Criterion, 0, len(list))
	for _, j := range list {
		c, err := j.toCriterion()
		if err != nil {
			return nil, err
		}
		cs = append(cs, c)
	}
	return domain.NewCriteriaSet(cs...)
}

func criteriaJSON(set *domain.CriteriaSet) []criterionJSON {
	list := set.Criteria()
	out := make([]criterionJSON, len(list))
	for i, c := range list {
		enabled := c.Enabled
		out[i] = criterionJSON{
			Field:   c.Field.String(),
			Min:     bound(c.Min),
			Max:     bound(c.Max),
			Enabled: &enabled,
		}
	}
	return out
}

// bound returns nil for an open end.
func bound(v float64) *float64 {
	if math.Abs(v) == math.MaxFloat64 || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

type sortJSON struct {
	Field      string `json:"field"`
	Descending bool   `json:"descending"`
}

func (j sortJSON) toSortKey() (domain.SortKey, error) {
	field, err := domain.ParseField(j.Field)
	if err != nil {
		return domain.SortKey{}, err
	}
	return domain.SortKey{Field: field, Descending: j.Descending}, nil
}

func sortKeyJSON(k domain.SortKey) sortJSON {
	return sortJSON{Field: k.Field.String(), Descending: k.Descending}
}

type quoteJSON struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"changePercent"`
	Volume        float64   `json:"volume"`
	Timestamp     int64     `json:"timestamp"`
	LastUpdated   time.Time `json:"lastUpdated"`
	MarketCap     *float64  `json:"marketCap,omitempty"`
	PERatio       *float64  `json:"peRatio,omitempty"`
	PBRatio       *float64  `json:"pbRatio,omitempty"`
	DividendYield *float64  `json:"dividendYield,omitempty"`
	ROE           *float64  `json:"roe,omitempty"`
	RSI           *float64  `json:"rsi,omitempty"`
	Beta          *float64  `json:"beta,omitempty"`
	Revenue       *float64  `json:"revenue,omitempty"`
	RevenueGrowth *float64  `json:"revenueGrowth,omitempty"`
	DebtToEquity  *float64  `json:"debtToEquity,omitempty"`
	Stale         bool      `json:"stale"`
}

func toQuoteJSON(q *domain.Quote, stale bool) quoteJSON {
	return quoteJSON{
		Symbol:        q.Symbol,
		Price:         q.Price,
		Change:        q.Change,
		ChangePercent: q.ChangePercent,
		Volume:        q.Volume,
		Timestamp:     q.Timestamp,
		LastUpdated:   q.LastUpdated,
		MarketCap:     q.MarketCap,
		PERatio:       q.PERatio,
		PBRatio:       q.PBRatio,
		DividendYield: q.DividendYield,
		ROE:           q.ROE,
		RSI:           q.RSI,
		Beta:          q.Beta,
		Revenue:       q.Revenue,
		RevenueGrowth: q.RevenueGrowth,
		DebtToEquity:  q.DebtToEquity,
		Stale:         stale,
	}
}

type instrumentJSON struct {
	Symbol        string `json:"symbol"`
	Exchange      string `json:"exchange,omitempty"`
	Name          string `json:"name,omitempty"`
	Sector        string `json:"sector,omitempty"`
	Industry      string `json:"industry,omitempty"`
	InstrumentKey string `json:"instrumentKey,omitempty"`
}

func toInstrumentJSON(inst domain.Instrument) instrumentJSON {
	return instrumentJSON(inst)
}

type itemJSON struct {
	Rank       int            `json:"rank"`
	Instrument instrumentJSON `json:"instrument"`
	Quote      quoteJSON      `json:"quote"`
}

func toItemsJSON(items []projection.Item) []itemJSON {
	out := make([]itemJSON, len(items))
	for i, it := range items {
		out[i] = itemJSON{
			Rank:       it.Rank,
			Instrument: toInstrumentJSON(it.Instrument),
			Quote:      toQuoteJSON(it.Quote, it.Stale),
		}
	}
	return out
}

type pageJSON struct {
	Version uint64     `json:"version"`
	Epoch   uint64     `json:"epoch"`
	Total   int        `json:"total"`
	Offset  int        `json:"offset"`
	Sort    sortJSON   `json:"sort"`
	Items   []itemJSON `json:"items"`
}

type moveJSON struct {
	Symbol string `json:"symbol"`
	From   int    `json:"from"`
	To     int    `json:"to"`
}

type diffJSON struct {
	FromVersion uint64     `json:"fromVersion"`
	ToVersion   uint64     `json:"toVersion"`
	Epoch       uint64     `json:"epoch"`
	Added       []itemJSON `json:"added"`
	Removed     []string   `json:"removed"`
	Reordered   []moveJSON `json:"reordered"`
}

func toDiffJSON(d *projection.Diff) diffJSON {
	moves := make([]moveJSON, len(d.Reordered))
	for i, m := range d.Reordered {
		moves[i] = moveJSON(m)
	}
	return diffJSON{
		FromVersion: d.FromVersion,
		ToVersion:   d.ToVersion,
		Epoch:       d.Epoch,
		Added:       toItemsJSON(d.Added),
		Removed:     d.Removed,
		Reordered:   moves,
	}
}

type sessionJSON struct {
	ID       string          `json:"id"`
	State    string          `json:"state"`
	Version  uint64          `json:"version"`
	Epoch    uint64          `json:"epoch"`
	Total    int             `json:"total"`
	Sort     sortJSON        `json:"sort"`
	Criteria []criterionJSON `json:"criteria"`
}

func toSessionJSON(s *screening.Session, snap *screening.Snapshot) sessionJSON {
	return sessionJSON{
		ID:       s.ID(),
		State:    s.State().String(),
		Version:  snap.Version,
		Epoch:    snap.Epoch,
		Total:    snap.Len(),
		Sort:     sortKeyJSON(snap.Sort),
		Criteria: criteriaJSON(snap.Criteria),
	}
}

type presetJSON struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Sort        sortJSON        `json:"sort"`
	Criteria    []criterionJSON `json:"criteria"`
}

func toPresetJSON(p domain.Preset) presetJSON {
	set, sortKey := p.Apply()
	return presetJSON{
		Name:        p.Name,
		Description: p.Description,
		Sort:        sortKeyJSON(sortKey),
		Criteria:    criteriaJSON(set),
	}
}

type explainJSON struct {
	Field  string `json:"field"`
	Range  string `json:"range"`
	Actual string `json:"actual"`
	Pass   bool   `json:"pass"`
}

func toExplainJSON(results []criteria.CriterionResult) []explainJSON {
	out := make([]explainJSON, len(results))
	for i, r := range results {
		out[i] = explainJSON{Field: r.Field.String(), Range: r.Range, Actual: r.Actual, Pass: r.Pass}
	}
	return out
}

// createSessionRequest starts a session from a preset or explicit criteria.
// Criteria and sort override the preset when both are given.
type createSessionRequest struct {
	Preset   string          `json:"preset"`
	Criteria []criterionJSON `json:"criteria"`
	Sort     *sortJSON       `json:"sort"`
}

type replaceCriteriaRequest struct {
	Criteria []criterionJSON `json:"criteria"`
	Sort     *sortJSON       `json:"sort"`
}

type setCriterionRequest struct {
	Min     *float64 `json:"min"`
	Max     *float64 `json:"max"`
	Enabled *bool    `json:"enabled"`
}

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{errBadRequest}, args...)...)
}
