package memory

import (
	"sort"
	"sync"
	"time"

	"quote-screener/internal/domain"
	"quote-screener/internal/storage"
)

// DefaultStaleAfter matches the periodic refresh cadence of the upstream feeds.
const DefaultStaleAfter = 30 * time.Second

// QuoteStore holds the latest accepted quote per symbol.
// It has a single writer (the ingestion runner) and any number of readers.
type QuoteStore struct {
	mu         sync.RWMutex
	data       map[string]*quoteEntry // keyed by symbol
	dirty      map[string]struct{}
	staleAfter time.Duration
	now        func() time.Time
	notify     chan struct{}
}

type quoteEntry struct {
	quote       *domain.Quote
	forcedStale bool // set on feed disconnect, cleared by the next accepted quote
}

// QuoteStoreOptions contains configuration for creating a QuoteStore.
type QuoteStoreOptions struct {
	StaleAfter time.Duration    // Default: 30s
	Clock      func() time.Time // Default: time.Now
}

// NewQuoteStore creates a new in-memory quote store.
func NewQuoteStore(opts QuoteStoreOptions) *QuoteStore {
	staleAfter := opts.StaleAfter
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	return &QuoteStore{
		data:       make(map[string]*quoteEntry),
		dirty:      make(map[string]struct{}),
		staleAfter: staleAfter,
		now:        clock,
		notify:     make(chan struct{}, 1),
	}
}

// ApplyQuote stores q if it is newer than the stored quote for its symbol.
// Returns ErrStaleTimestamp if q.Timestamp <= stored timestamp; the stored
// quote is left untouched. On success the symbol is marked dirty.
func (s *QuoteStore) ApplyQuote(q *domain.Quote) error {
	if q == nil || q.Symbol == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	if existing, ok := s.data[q.Symbol]; ok && q.Timestamp <= existing.quote.Timestamp {
		s.mu.Unlock()
		return storage.ErrStaleTimestamp
	}

	// Store a copy to prevent external mutation
	quoteCopy := q.Clone()
	quoteCopy.LastUpdated = s.now()
	s.data[q.Symbol] = &quoteEntry{quote: quoteCopy}
	s.dirty[q.Symbol] = struct{}{}
	s.mu.Unlock()

	// Coalescing, non-blocking wake-up for the screening manager
	select {
	case s.notify <- struct{}{}:
	default:
	}
	return nil
}

// SeedQuote stores a quote recovered from the tick archive. Seeded quotes
// obey the same ordering rule but stay stale until a live quote replaces them.
func (s *QuoteStore) SeedQuote(q *domain.Quote) error {
	if err := s.ApplyQuote(q); err != nil {
		return err
	}

	s.mu.Lock()
	if e, ok := s.data[q.Symbol]; ok {
		e.forcedStale = true
	}
	s.mu.Unlock()
	return nil
}

// Get retrieves the latest quote for a symbol. Returns ErrNotFound if none was accepted yet.
func (s *QuoteStore) Get(symbol string) (*domain.Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.data[symbol]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return e.quote.Clone(), nil
}

// All returns copies of every stored quote ordered by symbol ASC.
func (s *QuoteStore) All() []*domain.Quote {
	s.mu.RLock()
	result := make([]*domain.Quote, 0, len(s.data))
	for _, e := range s.data {
		result = append(result, e.quote.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].Symbol < result[j].Symbol
	})
	return result
}

// SnapshotDirty returns the symbols changed since the previous call,
// ordered by symbol ASC, and clears the dirty set.
func (s *QuoteStore) SnapshotDirty() []string {
	s.mu.Lock()
	if len(s.dirty) == 0 {
		s.mu.Unlock()
		return nil
	}
	result := make([]string, 0, len(s.dirty))
	for symbol := range s.dirty {
		result = append(result, symbol)
	}
	s.dirty = make(map[string]struct{})
	s.mu.Unlock()

	sort.Strings(result)
	return result
}

// MarkAllStale flags every stored quote as stale without removing it.
// Used when the push feed disconnects. Returns the number of quotes flagged.
func (s *QuoteStore) MarkAllStale() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.data {
		e.forcedStale = true
	}
	return len(s.data)
}

// IsStale reports whether the quote for symbol is stale: flagged by a
// disconnect, or older than the staleness threshold. Unknown symbols are stale.
func (s *QuoteStore) IsStale(symbol string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.data[symbol]
	if !ok {
		return true
	}
	return e.forcedStale || s.now().Sub(e.quote.LastUpdated) > s.staleAfter
}

// StaleAfter returns the configured staleness threshold.
func (s *QuoteStore) StaleAfter() time.Duration {
	return s.staleAfter
}

// Notify returns a channel that receives a value after quotes were applied.
// Signals coalesce: one receive may stand for many applied quotes.
func (s *QuoteStore) Notify() <-chan struct{} {
	return s.notify
}

// Len returns the number of symbols with a stored quote.
func (s *QuoteStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
