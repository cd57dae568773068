package migrations

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"quote-screener/internal/observability"
	"quote-screener/internal/storage/postgres"
)

const pgLedgerDDL = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version     TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		applied_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)
`

// RunPostgresMigrations applies pending embedded migrations, each in its own
// transaction together with its schema_migrations row.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool) (*Result, error) {
	migs, err := Load(PostgresFS, "postgres")
	if err != nil {
		return nil, err
	}

	if err := pgExec(ctx, pool, "ledger", pgLedgerDDL); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}
	done, err := pgApplied(ctx, pool)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	for _, m := range migs {
		if done[m.Version] {
			res.Skipped = append(res.Skipped, m.Version)
			continue
		}
		if err := pgApply(ctx, pool, m); err != nil {
			return res, fmt.Errorf("apply migration %s_%s: %w", m.Version, m.Name, err)
		}
		res.Applied = append(res.Applied, m.Version)
	}
	return res, nil
}

func pgApply(ctx context.Context, pool *postgres.Pool, m Migration) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := pgExec(ctx, tx, "migrate", m.SQL); err != nil {
		return err
	}
	if err := pgExec(ctx, tx, "ledger",
		`INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, m.Version, m.Name); err != nil {
		return fmt.Errorf("record version: %w", err)
	}
	return tx.Commit(ctx)
}

func pgApplied(ctx context.Context, pool *postgres.Pool) (map[string]bool, error) {
	rows, err := pool.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	versions, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}

	done := make(map[string]bool, len(versions))
	for _, v := range versions {
		done[v] = true
	}
	return done, nil
}

type pgExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// pgExec runs one statement and records it under op.
func pgExec(ctx context.Context, db pgExecer, op, sql string, args ...any) error {
	start := time.Now()
	_, err := db.Exec(ctx, sql, args...)
	observability.RecordDBQuery("postgres", op, time.Since(start).Seconds(), err)
	return err
}
