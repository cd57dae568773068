// Package projection turns screening snapshots into pages and diffs.
package projection

import (
	"errors"
	"fmt"
	"sort"

	"quote-screener/internal/domain"
	"quote-screener/internal/observability"
	"quote-screener/internal/screening"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

var (
	// ErrFullRefreshRequired is returned when a diff base version is no longer
	// available, belongs to an earlier epoch, or was never published.
	ErrFullRefreshRequired = errors.New("full refresh required")

	// ErrInvalidPage is returned for a negative offset or limit.
	ErrInvalidPage = errors.New("invalid page bounds")
)

// SnapshotSource is a screening session as seen by the projector.
type SnapshotSource interface {
	Snapshot() (*screening.Snapshot, error)
}

// StaleChecker reports whether a stored quote is stale.
type StaleChecker interface {
	IsStale(symbol string) bool
}

// Item is one projected row.
type Item struct {
	Rank       int
	Instrument domain.Instrument
	Quote      *domain.Quote
	Stale      bool
}

// Page is a window of a session's result set at one version.
type Page struct {
	Version uint64
	Epoch   uint64
	Total   int
	Offset  int
	Sort    domain.SortKey
	Items   []Item
}

// Move records a row whose relative position changed.
type Move struct {
	Symbol string
	From   int // rank at the base version
	To     int // rank at the current version
}

// Diff describes how to turn the result order at FromVersion into the
// order at ToVersion: drop Removed and the Reordered symbols, then insert
// Added and Reordered rows at their ranks in ascending rank order.
type Diff struct {
	FromVersion uint64
	ToVersion   uint64
	Epoch       uint64
	Added       []Item
	Removed     []string
	Reordered   []Move
}

// Empty reports whether the diff carries no change.
func (d *Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Reordered) == 0
}

// Projector reads published snapshots. It never waits for an in-flight pass.
type Projector struct {
	stale StaleChecker
}

// NewProjector creates a projector. A nil checker reports nothing as stale.
func NewProjector(stale StaleChecker) *Projector {
	return &Projector{stale: stale}
}

// Page returns up to limit rows starting at offset. A zero limit means
// DefaultPageSize; limits above MaxPageSize are clamped.
func (p *Projector) Page(src SnapshotSource, offset, limit int) (*Page, error) {
	if offset < 0 || limit < 0 {
		return nil, fmt.Errorf("%w: offset=%d limit=%d", ErrInvalidPage, offset, limit)
	}
	if limit == 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	snap, err := src.Snapshot()
	if err != nil {
		return nil, err
	}

	page := &Page{
		Version: snap.Version,
		Epoch:   snap.Epoch,
		Total:   snap.Len(),
		Offset:  offset,
		Sort:    snap.Sort,
	}
	if offset >= snap.Len() {
		page.Items = []Item{}
		return page, nil
	}

	end := offset + limit
	if end > snap.Len() {
		end = snap.Len()
	}
	page.Items = make([]Item, 0, end-offset)
	for i := offset; i < end; i++ {
		page.Items = append(page.Items, p.item(snap.Rows[i], i))
	}
	return page, nil
}

// DiffSince returns the changes between version and the current snapshot.
func (p *Projector) DiffSince(src SnapshotSource, version uint64) (*Diff, error) {
	snap, err := src.Snapshot()
	if err != nil {
		return nil, err
	}

	if version > snap.Version {
		observability.RecordFullRefresh()
		return nil, fmt.Errorf("%w: version %d is ahead of %d", ErrFullRefreshRequired, version, snap.Version)
	}
	base, epoch, ok := snap.OrderAt(version)
	if !ok || epoch != snap.Epoch {
		observability.RecordFullRefresh()
		return nil, fmt.Errorf("%w: version %d not retained (oldest %d)", ErrFullRefreshRequired, version, snap.OldestVersion())
	}

	diff := &Diff{
		FromVersion: version,
		ToVersion:   snap.Version,
		Epoch:       snap.Epoch,
		Added:       []Item{},
		Removed:     []string{},
		Reordered:   []Move{},
	}
	if version == snap.Version {
		return diff, nil
	}

	baseRank := make(map[string]int, len(base))
	for i, sym := range base {
		baseRank[sym] = i
	}
	for _, sym := range base {
		if _, _, ok := snap.Row(sym); !ok {
			diff.Removed = append(diff.Removed, sym)
		}
	}

	// Common symbols in current order, with their base ranks
	var common []int
	var commonRows []int
	for i, r := range snap.Rows {
		from, ok := baseRank[r.Instrument.Symbol]
		if !ok {
			diff.Added = append(diff.Added, p.item(r, i))
			continue
		}
		common = append(common, from)
		commonRows = append(commonRows, i)
	}

	stable := longestIncreasing(common)
	for j, from := range common {
		if stable[j] {
			continue
		}
		to := commonRows[j]
		diff.Reordered = append(diff.Reordered, Move{
			Symbol: snap.Rows[to].Instrument.Symbol,
			From:   from,
			To:     to,
		})
	}
	sort.Strings(diff.Removed)
	return diff, nil
}

func (p *Projector) item(r screening.Row, rank int) Item {
	stale := false
	if p.stale != nil {
		stale = p.stale.IsStale(r.Instrument.Symbol)
	}
	return Item{Rank: rank, Instrument: r.Instrument, Quote: r.Quote, Stale: stale}
}

// longestIncreasing marks the members of one longest strictly increasing
// subsequence of xs.
func longestIncreasing(xs []int) []bool {
	marks := make([]bool, len(xs))
	if len(xs) == 0 {
		return marks
	}

	tails := make([]int, 0, len(xs)) // indexes into xs
	prev := make([]int, len(xs))
	for i, x := range xs {
		k := sort.Search(len(tails), func(j int) bool { return xs[tails[j]] >= x })
		if k > 0 {
			prev[i] = tails[k-1]
		} else {
			prev[i] = -1
		}
		if k == len(tails) {
			tails = append(tails, i)
		} else {
			tails[k] = i
		}
	}

	for i := tails[len(tails)-1]; i >= 0; i = prev[i] {
		marks[i] = true
	}
	return marks
}
