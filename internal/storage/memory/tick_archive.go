package memory

import (
	"context"
	"sort"
	"sync"

	"quote-screener/internal/domain"
	"quote-screener/internal/storage"
)

// DefaultTicksPerSymbol keeps one hour of history at a 5s poll.
const DefaultTicksPerSymbol = 720

// TickArchive is an in-memory implementation of storage.TickArchive.
// It keeps the newest ticks per symbol and evicts older ones.
type TickArchive struct {
	mu        sync.RWMutex
	bySymbol  map[string][]*domain.Quote // ascending timestamp
	perSymbol int
}

// TickArchiveOptions contains configuration for creating a TickArchive.
type TickArchiveOptions struct {
	TicksPerSymbol int // Default: DefaultTicksPerSymbol
}

// NewTickArchive creates a new in-memory tick archive.
func NewTickArchive(opts TickArchiveOptions) *TickArchive {
	perSymbol := opts.TicksPerSymbol
	if perSymbol <= 0 {
		perSymbol = DefaultTicksPerSymbol
	}
	return &TickArchive{
		bySymbol:  make(map[string][]*domain.Quote),
		perSymbol: perSymbol,
	}
}

// InsertBulk appends quotes, skipping ones already archived.
func (a *TickArchive) InsertBulk(_ context.Context, quotes []*domain.Quote) (int, error) {
	for _, q := range quotes {
		if q == nil || q.Symbol == "" {
			return 0, storage.ErrInvalidInput
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	written := 0
	for _, q := range quotes {
		ticks := a.bySymbol[q.Symbol]
		i := sort.Search(len(ticks), func(i int) bool { return ticks[i].Timestamp >= q.Timestamp })
		if i < len(ticks) && ticks[i].Timestamp == q.Timestamp {
			continue
		}
		ticks = append(ticks, nil)
		copy(ticks[i+1:], ticks[i:])
		ticks[i] = q.Clone()
		if len(ticks) > a.perSymbol {
			ticks = ticks[len(ticks)-a.perSymbol:]
		}
		a.bySymbol[q.Symbol] = ticks
		written++
	}
	return written, nil
}

// GetByTimeRange retrieves quotes for a symbol within [start, end] (inclusive).
func (a *TickArchive) GetByTimeRange(_ context.Context, symbol string, start, end int64) ([]*domain.Quote, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	ticks := a.bySymbol[symbol]
	i := sort.Search(len(ticks), func(i int) bool { return ticks[i].Timestamp >= start })

	var result []*domain.Quote
	for ; i < len(ticks) && ticks[i].Timestamp <= end; i++ {
		result = append(result, ticks[i].Clone())
	}
	return result, nil
}

// GetLatest retrieves the newest archived quote per symbol, ordered by symbol ASC.
func (a *TickArchive) GetLatest(_ context.Context) ([]*domain.Quote, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	result := make([]*domain.Quote, 0, len(a.bySymbol))
	for _, ticks := range a.bySymbol {
		if len(ticks) > 0 {
			result = append(result, ticks[len(ticks)-1].Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Symbol < result[j].Symbol
	})
	return result, nil
}

// Len returns the number of archived ticks across all symbols.
func (a *TickArchive) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	n := 0
	for _, ticks := range a.bySymbol {
		n += len(ticks)
	}
	return n
}

// Verify interface compliance at compile time.
var _ storage.TickArchive = (*TickArchive)(nil)
