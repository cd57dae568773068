package clickhouse

import (
	"context"
	"fmt"
	"time"

	"quote-screener/internal/domain"
	"quote-screener/internal/observability"
	"quote-screener/internal/storage"
)

// TickArchive implements storage.TickArchive using ClickHouse.
type TickArchive struct {
	conn *Conn
}

// NewTickArchive creates a new TickArchive.
func NewTickArchive(conn *Conn) *TickArchive {
	return &TickArchive{conn: conn}
}

// Compile-time interface check.
var _ storage.TickArchive = (*TickArchive)(nil)

const tickColumns = `
	symbol, timestamp_ms, price, change, change_percent, volume,
	market_cap, pe_ratio, pb_ratio, dividend_yield, roe, rsi, beta,
	revenue, revenue_growth, debt_to_equity, received_at
`

// InsertBulk appends accepted quotes and returns how many were written.
// Ticks already stored under the same (symbol, timestamp_ms), or repeated
// within the batch, are skipped.
func (s *TickArchive) InsertBulk(ctx context.Context, quotes []*domain.Quote) (written int, err error) {
	if len(quotes) == 0 {
		return 0, nil
	}
	defer func(start time.Time) {
		observability.RecordDBQuery("clickhouse", "insert_ticks", time.Since(start).Seconds(), err)
	}(time.Now())

	type key struct {
		symbol      string
		timestampMs int64
	}
	seen := make(map[key]struct{}, len(quotes))
	fresh := make([]*domain.Quote, 0, len(quotes))
	for _, q := range quotes {
		if q == nil || q.Symbol == "" || q.Timestamp < 0 {
			return 0, storage.ErrInvalidInput
		}
		k := key{q.Symbol, q.Timestamp}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		fresh = append(fresh, q)
	}

	pending := fresh[:0]
	for _, q := range fresh {
		exists, err := s.exists(ctx, q.Symbol, q.Timestamp)
		if err != nil {
			return 0, fmt.Errorf("check exists: %w", err)
		}
		if !exists {
			pending = append(pending, q)
		}
	}
	if len(pending) == 0 {
		return 0, nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO quote_ticks (`+tickColumns+`)`)
	if err != nil {
		return 0, fmt.Errorf("prepare batch: %w", err)
	}

	for _, q := range pending {
		receivedAt := q.LastUpdated
		if receivedAt.IsZero() {
			receivedAt = time.UnixMilli(q.Timestamp)
		}
		err = batch.Append(
			q.Symbol, uint64(q.Timestamp), q.Price, q.Change, q.ChangePercent, q.Volume,
			q.MarketCap, q.PERatio, q.PBRatio, q.DividendYield, q.ROE, q.RSI, q.Beta,
			q.Revenue, q.RevenueGrowth, q.DebtToEquity, receivedAt,
		)
		if err != nil {
			return 0, fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return 0, fmt.Errorf("send batch: %w", err)
	}

	return len(pending), nil
}

// GetByTimeRange retrieves quotes for a symbol within [start, end] (inclusive), ordered by timestamp ASC.
func (s *TickArchive) GetByTimeRange(ctx context.Context, symbol string, start, end int64) ([]*domain.Quote, error) {
	query := `
		SELECT ` + tickColumns + `
		FROM quote_ticks
		WHERE symbol = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, symbol, uint64(start), uint64(end))
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanQuoteTicks(rows)
}

// GetLatest retrieves the newest archived quote per symbol, ordered by symbol ASC.
func (s *TickArchive) GetLatest(ctx context.Context) ([]*domain.Quote, error) {
	query := `
		SELECT ` + tickColumns + `
		FROM quote_ticks
		ORDER BY symbol ASC, timestamp_ms DESC
		LIMIT 1 BY symbol
	`

	rows, err := s.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query latest: %w", err)
	}
	defer rows.Close()

	return scanQuoteTicks(rows)
}

// exists checks if a tick with the given key exists.
func (s *TickArchive) exists(ctx context.Context, symbol string, timestampMs int64) (bool, error) {
	query := `
		SELECT count(*) FROM quote_ticks
		WHERE symbol = ? AND timestamp_ms = ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query, symbol, uint64(timestampMs)).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// scanQuoteTicks scans multiple rows.
func scanQuoteTicks(rows chRows) ([]*domain.Quote, error) {
	var quotes []*domain.Quote

	for rows.Next() {
		var q domain.Quote
		var timestampMs uint64

		err := rows.Scan(
			&q.Symbol, &timestampMs, &q.Price, &q.Change, &q.ChangePercent, &q.Volume,
			&q.MarketCap, &q.PERatio, &q.PBRatio, &q.DividendYield, &q.ROE, &q.RSI, &q.Beta,
			&q.Revenue, &q.RevenueGrowth, &q.DebtToEquity, &q.LastUpdated,
		)
		if err != nil {
			return nil, fmt.Errorf("scan quote tick row: %w", err)
		}

		q.Timestamp = int64(timestampMs)
		quotes = append(quotes, &q)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quote tick rows: %w", err)
	}

	return quotes, nil
}
