// Package migrations applies the embedded schema for PostgreSQL and ClickHouse
// and records applied versions in a schema_migrations table per database.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

// PostgresFS embeds all PostgreSQL migration files.
//
//go:embed postgres/*.sql
var PostgresFS embed.FS

// ClickhouseFS embeds all ClickHouse migration files.
//
//go:embed clickhouse/*.sql
var ClickhouseFS embed.FS

// Migration is one versioned SQL file, named NNN_name.sql.
type Migration struct {
	Version string
	Name    string
	SQL     string
}

// Result reports what a run did.
type Result struct {
	Applied []string // versions applied by this run
	Skipped []string // versions already recorded
}

func (r *Result) String() string {
	return fmt.Sprintf("%d applied, %d already up to date", len(r.Applied), len(r.Skipped))
}

// Load reads the migrations in dir ordered by version. Empty files are skipped.
func Load(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations %s: %w", dir, err)
	}

	var out []Migration
	seen := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		base := strings.TrimSuffix(entry.Name(), ".sql")
		version, name, ok := strings.Cut(base, "_")
		if !ok || version == "" || name == "" || strings.Trim(version, "0123456789") != "" {
			return nil, fmt.Errorf("migration %s: name must look like 001_description.sql", entry.Name())
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("migration version %s used by %s and %s", version, prev, entry.Name())
		}
		seen[version] = entry.Name()

		data, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if strings.TrimSpace(string(data)) == "" {
			continue
		}
		out = append(out, Migration{Version: version, Name: name, SQL: string(data)})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}
