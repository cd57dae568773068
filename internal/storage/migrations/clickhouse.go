package migrations

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"quote-screener/internal/observability"
	chstore "quote-screener/internal/storage/clickhouse"
)

const chLedgerDDL = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version     String,
		name        String,
		applied_at  DateTime64(3)
	) ENGINE = ReplacingMergeTree()
	ORDER BY version
`

// RunClickhouseMigrations creates the DSN's database if needed and applies
// pending embedded migrations. The returned connection targets that database.
//
// ClickHouse has no transactional DDL; a version is recorded only after all
// of its statements succeeded, so a failed migration is retried whole and its
// statements must be idempotent (IF NOT EXISTS).
func RunClickhouseMigrations(ctx context.Context, dsn string) (*chstore.Conn, *Result, error) {
	dbName, err := databaseFromDSN(dsn)
	if err != nil {
		return nil, nil, err
	}
	migs, err := Load(ClickhouseFS, "clickhouse")
	if err != nil {
		return nil, nil, err
	}
	for _, m := range migs {
		if err := validateNoSemicolonInStrings(m.SQL); err != nil {
			return nil, nil, fmt.Errorf("migration %s_%s: %w", m.Version, m.Name, err)
		}
	}

	admin, err := chstore.NewConnWithDatabase(ctx, dsn, "")
	if err != nil {
		return nil, nil, fmt.Errorf("connect clickhouse admin: %w", err)
	}
	err = chExec(ctx, admin, "create_database", "CREATE DATABASE IF NOT EXISTS "+dbName)
	admin.Close()
	if err != nil {
		return nil, nil, fmt.Errorf("create database %s: %w", dbName, err)
	}

	conn, err := chstore.NewConnWithDatabase(ctx, dsn, dbName)
	if err != nil {
		return nil, nil, fmt.Errorf("connect clickhouse db: %w", err)
	}
	res, err := chMigrate(ctx, conn, migs)
	if err != nil {
		conn.Close()
		return nil, res, err
	}
	return conn, res, nil
}

func chMigrate(ctx context.Context, conn *chstore.Conn, migs []Migration) (*Result, error) {
	if err := chExec(ctx, conn, "ledger", chLedgerDDL); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}

	rows, err := conn.Query(ctx, `SELECT DISTINCT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	done := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan schema_migrations: %w", err)
		}
		done[v] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}

	res := &Result{}
	for _, m := range migs {
		if done[m.Version] {
			res.Skipped = append(res.Skipped, m.Version)
			continue
		}
		// The driver runs one statement per Exec
		for _, stmt := range splitStatements(m.SQL) {
			if err := chExec(ctx, conn, "migrate", stmt); err != nil {
				return res, fmt.Errorf("apply migration %s_%s: %w", m.Version, m.Name, err)
			}
		}
		err := chExec(ctx, conn, "ledger",
			`INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)`,
			m.Version, m.Name, time.Now().UTC())
		if err != nil {
			return res, fmt.Errorf("record migration %s: %w", m.Version, err)
		}
		res.Applied = append(res.Applied, m.Version)
	}
	return res, nil
}

// chExec runs one statement and records it under op.
func chExec(ctx context.Context, conn *chstore.Conn, op, stmt string, args ...any) error {
	start := time.Now()
	err := conn.Exec(ctx, stmt, args...)
	observability.RecordDBQuery("clickhouse", op, time.Since(start).Seconds(), err)
	return err
}

// splitStatements breaks a migration into statements at lines ending in ';'.
// Blank lines and "--" comment lines are dropped. Semicolons inside string
// literals are rejected beforehand by validateNoSemicolonInStrings.
func splitStatements(sql string) []string {
	var stmts []string
	var cur strings.Builder
	emit := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			stmts = append(stmts, s)
		}
		cur.Reset()
	}

	for _, line := range strings.Split(sql, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		for {
			i := strings.IndexByte(line, ';')
			if i < 0 {
				break
			}
			cur.WriteString(line[:i])
			emit()
			line = line[i+1:]
		}
		cur.WriteString(line)
		cur.WriteByte('\n')
	}
	emit()
	return stmts
}

// validateNoSemicolonInStrings rejects ';' inside single-quoted literals,
// which splitStatements would cut in half. '' is an escaped quote.
func validateNoSemicolonInStrings(sql string) error {
	quoted := false
	for i := 0; i < len(sql); i++ {
		switch sql[i] {
		case '\'':
			if quoted && i+1 < len(sql) && sql[i+1] == '\'' {
				i++
				continue
			}
			quoted = !quoted
		case ';':
			if quoted {
				return fmt.Errorf("semicolon inside string literal at offset %d", i)
			}
		}
	}
	return nil
}

// databaseFromDSN returns the database named in the DSN path.
func databaseFromDSN(dsn string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	db := strings.TrimPrefix(u.Path, "/")
	if db == "" {
		return "", fmt.Errorf("clickhouse dsn %q names no database", u.Redacted())
	}
	return db, nil
}
