package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"quote-screener/internal/catalog"
	"quote-screener/internal/domain"
	"quote-screener/internal/storage/migrations"
	pgstore "quote-screener/internal/storage/postgres"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply embedded PostgreSQL and ClickHouse migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Storage.PostgresDSN == "" && cfg.Storage.ClickHouseDSN == "" {
				return fmt.Errorf("set POSTGRES_DSN and/or CLICKHOUSE_DSN")
			}
			ctx := cmd.Context()
			logger := newLogger("migrate")

			if cfg.Storage.PostgresDSN != "" {
				pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
				if err != nil {
					return err
				}
				defer pool.Close()
				res, err := migrations.RunPostgresMigrations(ctx, pool)
				if err != nil {
					return err
				}
				logger.Printf("PostgreSQL migrations: %s %v", res, res.Applied)
			}
			if cfg.Storage.ClickHouseDSN != "" {
				conn, res, err := migrations.RunClickhouseMigrations(ctx, cfg.Storage.ClickHouseDSN)
				if err != nil {
					return err
				}
				conn.Close()
				logger.Printf("ClickHouse migrations: %s %v", res, res.Applied)
			}
			return nil
		},
	}
}

func importCatalogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import-catalog",
		Short: "Load the catalog file into the PostgreSQL instruments table",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Storage.PostgresDSN == "" {
				return fmt.Errorf("set POSTGRES_DSN")
			}
			c, err := loadCatalogFile(cfg)
			if err != nil {
				return err
			}
			return importCatalog(cmd.Context(), cfg.Storage.PostgresDSN, c)
		},
	}
}

func importCatalog(ctx context.Context, dsn string, c *catalog.Catalog) error {
	pool, err := pgstore.NewPool(ctx, dsn)
	if err != nil {
		return err
	}
	defer pool.Close()

	instruments := c.Instruments()
	batch := make([]*domain.Instrument, len(instruments))
	for i := range instruments {
		batch[i] = &instruments[i]
	}
	if err := pgstore.NewInstrumentStore(pool).InsertBulk(ctx, batch); err != nil {
		return fmt.Errorf("import %d instruments: %w", len(batch), err)
	}
	newLogger("migrate").Printf("Imported %d instruments", len(batch))
	return nil
}
