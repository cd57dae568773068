package storage

import (
	"context"

	"quote-screener/internal/domain"
)

// InstrumentStore provides access to the instruments catalog table.
type InstrumentStore interface {
	// Insert adds a new instrument. Returns ErrDuplicateKey if symbol exists.
	Insert(ctx context.Context, i *domain.Instrument) error

	// InsertBulk adds multiple instruments atomically. Fails entire batch on any duplicate.
	InsertBulk(ctx context.Context, instruments []*domain.Instrument) error

	// GetBySymbol retrieves an instrument. Returns ErrNotFound if not exists.
	GetBySymbol(ctx context.Context, symbol string) (*domain.Instrument, error)

	// GetAll retrieves every instrument ordered by symbol ASC.
	GetAll(ctx context.Context) ([]*domain.Instrument, error)
}

// TickArchive stores the history of accepted quotes.
type TickArchive interface {
	// InsertBulk appends accepted quotes and returns how many were written.
	// Quotes whose (symbol, timestamp) is already archived, or repeated
	// within the batch, are skipped rather than failing the batch.
	InsertBulk(ctx context.Context, quotes []*domain.Quote) (int, error)

	// GetByTimeRange retrieves quotes for a symbol within [start, end] (inclusive), ordered by timestamp ASC.
	GetByTimeRange(ctx context.Context, symbol string, start, end int64) ([]*domain.Quote, error)

	// GetLatest retrieves the newest archived quote per symbol.
	GetLatest(ctx context.Context) ([]*domain.Quote, error)
}
