package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"quote-screener/internal/domain"
	"quote-screener/internal/storage/migrations"
	"quote-screener/internal/storage/postgres"
)

// startPostgres runs a disposable PostgreSQL with the embedded schema applied.
// Skipped under -short.
func startPostgres(t *testing.T) *postgres.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("screener"),
		tcpostgres.WithUsername("screener"),
		tcpostgres.WithPassword("screener"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := postgres.NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	res, err := migrations.RunPostgresMigrations(ctx, pool)
	require.NoError(t, err, "apply migrations")
	require.NotEmpty(t, res.Applied)
	return pool
}

// seedInstruments loads a small NSE catalog through the store under test.
func seedInstruments(t *testing.T, store *postgres.InstrumentStore) []*domain.Instrument {
	t.Helper()
	instruments := []*domain.Instrument{
		{Symbol: "RELIANCE", Exchange: "NSE", Name: "Reliance Industries", Sector: "Energy", Industry: "Refineries", InstrumentKey: "NSE_EQ|INE002A01018"},
		{Symbol: "INFY", Exchange: "NSE", Name: "Infosys", Sector: "IT", Industry: "IT Services", InstrumentKey: "NSE_EQ|INE009A01021"},
		{Symbol: "HDFCBANK", Exchange: "NSE", Name: "HDFC Bank", Sector: "Banking", Industry: "Private Bank"},
	}
	require.NoError(t, store.InsertBulk(context.Background(), instruments))
	return instruments
}
