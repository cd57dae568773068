package memory

import (
	"context"
	"sort"
	"sync"

	"quote-screener/internal/domain"
	"quote-screener/internal/storage"
)

// InstrumentStore is an in-memory implementation of storage.InstrumentStore.
type InstrumentStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Instrument // keyed by symbol
}

// NewInstrumentStore creates a new in-memory instrument store.
func NewInstrumentStore() *InstrumentStore {
	return &InstrumentStore{
		data: make(map[string]*domain.Instrument),
	}
}

// Insert adds a new instrument. Returns ErrDuplicateKey if symbol exists.
func (s *InstrumentStore) Insert(_ context.Context, i *domain.Instrument) error {
	if i == nil || i.Symbol == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[i.Symbol]; exists {
		return storage.ErrDuplicateKey
	}

	instrumentCopy := *i
	s.data[i.Symbol] = &instrumentCopy
	return nil
}

// InsertBulk adds multiple instruments atomically. Fails entire batch on any duplicate.
func (s *InstrumentStore) InsertBulk(_ context.Context, instruments []*domain.Instrument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(instruments))
	for _, i := range instruments {
		if i == nil || i.Symbol == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[i.Symbol]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := seen[i.Symbol]; exists {
			return storage.ErrDuplicateKey
		}
		seen[i.Symbol] = struct{}{}
	}

	for _, i := range instruments {
		instrumentCopy := *i
		s.data[i.Symbol] = &instrumentCopy
	}
	return nil
}

// GetBySymbol retrieves an instrument. Returns ErrNotFound if not exists.
func (s *InstrumentStore) GetBySymbol(_ context.Context, symbol string) (*domain.Instrument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, exists := s.data[symbol]
	if !exists {
		return nil, storage.ErrNotFound
	}

	instrumentCopy := *i
	return &instrumentCopy, nil
}

// GetAll retrieves every instrument ordered by symbol ASC.
func (s *InstrumentStore) GetAll(_ context.Context) ([]*domain.Instrument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Instrument, 0, len(s.data))
	for _, i := range s.data {
		instrumentCopy := *i
		result = append(result, &instrumentCopy)
	}

	sort.Slice(result, func(a, b int) bool {
		return result[a].Symbol < result[b].Symbol
	})
	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.InstrumentStore = (*InstrumentStore)(nil)
