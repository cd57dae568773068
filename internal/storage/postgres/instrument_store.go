package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"quote-screener/internal/domain"
	"quote-screener/internal/storage"
)

// InstrumentStore implements storage.InstrumentStore using PostgreSQL.
type InstrumentStore struct {
	pool *Pool
}

// NewInstrumentStore creates a new InstrumentStore.
func NewInstrumentStore(pool *Pool) *InstrumentStore {
	return &InstrumentStore{pool: pool}
}

// Compile-time interface check.
var _ storage.InstrumentStore = (*InstrumentStore)(nil)

const insertInstrumentQuery = `
	INSERT INTO instruments (
		symbol, exchange, name, sector, industry, instrument_key
	) VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
`

// Insert adds a new instrument. Returns ErrDuplicateKey if symbol or instrument key exists.
func (s *InstrumentStore) Insert(ctx context.Context, i *domain.Instrument) (err error) {
	if i == nil || i.Symbol == "" {
		return storage.ErrInvalidInput
	}
	defer observe("insert_instrument", time.Now(), &err)

	_, err = s.pool.Exec(ctx, insertInstrumentQuery, instrumentArgs(i)...)
	return wrapErr("insert instrument "+i.Symbol, err)
}

// InsertBulk adds multiple instruments in one transaction. Fails entire batch on any duplicate.
func (s *InstrumentStore) InsertBulk(ctx context.Context, instruments []*domain.Instrument) (err error) {
	if len(instruments) == 0 {
		return nil
	}
	for _, i := range instruments {
		if i == nil || i.Symbol == "" {
			return storage.ErrInvalidInput
		}
	}
	defer observe("insert_instruments", time.Now(), &err)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, i := range instruments {
		batch.Queue(insertInstrumentQuery, instrumentArgs(i)...)
	}
	results := tx.SendBatch(ctx, batch)
	for _, i := range instruments {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return wrapErr("insert instrument "+i.Symbol, err)
		}
	}
	if err := results.Close(); err != nil {
		return wrapErr("insert instruments", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func instrumentArgs(i *domain.Instrument) []any {
	return []any{i.Symbol, i.Exchange, i.Name, i.Sector, i.Industry, i.InstrumentKey}
}

// GetBySymbol retrieves an instrument. Returns ErrNotFound if not exists.
func (s *InstrumentStore) GetBySymbol(ctx context.Context, symbol string) (*domain.Instrument, error) {
	query := `
		SELECT symbol, exchange, name, sector, industry, COALESCE(instrument_key, '')
		FROM instruments
		WHERE symbol = $1
	`

	i, err := scanInstrument(s.pool.QueryRow(ctx, query, symbol))
	if err != nil {
		return nil, wrapErr("get instrument "+symbol, err)
	}
	return i, nil
}

// GetAll retrieves every instrument ordered by symbol ASC.
func (s *InstrumentStore) GetAll(ctx context.Context) (_ []*domain.Instrument, err error) {
	defer observe("get_all", time.Now(), &err)

	query := `
		SELECT symbol, exchange, name, sector, industry, COALESCE(instrument_key, '')
		FROM instruments
		ORDER BY symbol ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query instruments: %w", err)
	}
	defer rows.Close()

	var instruments []*domain.Instrument
	for rows.Next() {
		i, err := scanInstrument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan instrument: %w", err)
		}
		instruments = append(instruments, i)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate instruments: %w", err)
	}

	return instruments, nil
}

// scanInstrument scans a single row into an Instrument.
func scanInstrument(row pgx.Row) (*domain.Instrument, error) {
	var i domain.Instrument

	err := row.Scan(
		&i.Symbol,
		&i.Exchange,
		&i.Name,
		&i.Sector,
		&i.Industry,
		&i.InstrumentKey,
	)
	if err != nil {
		return nil, err
	}

	return &i, nil
}
