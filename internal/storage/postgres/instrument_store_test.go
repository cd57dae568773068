package postgres_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quote-screener/internal/catalog"
	"quote-screener/internal/domain"
	"quote-screener/internal/storage"
	"quote-screener/internal/storage/migrations"
	"quote-screener/internal/storage/postgres"
)

func TestInstrumentStore_Insert(t *testing.T) {
	pool := startPostgres(t)
	store := postgres.NewInstrumentStore(pool)
	ctx := context.Background()

	tcs := &domain.Instrument{
		Symbol:        "TCS",
		Exchange:      "NSE",
		Name:          "Tata Consultancy Services",
		Sector:        "IT",
		Industry:      "IT Services",
		InstrumentKey: "NSE_EQ|INE467B01029",
	}
	require.NoError(t, store.Insert(ctx, tcs))

	got, err := store.GetBySymbol(ctx, "TCS")
	require.NoError(t, err)
	assert.Equal(t, tcs, got)

	err = store.Insert(ctx, &domain.Instrument{Symbol: "TCS"})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	// Instrument keys are unique too
	err = store.Insert(ctx, &domain.Instrument{Symbol: "TCS2", InstrumentKey: "NSE_EQ|INE467B01029"})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	assert.ErrorIs(t, store.Insert(ctx, &domain.Instrument{}), storage.ErrInvalidInput)

	_, err = store.GetBySymbol(ctx, "MISSING")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestInstrumentStore_InsertBulk(t *testing.T) {
	pool := startPostgres(t)
	store := postgres.NewInstrumentStore(pool)
	ctx := context.Background()

	seedInstruments(t, store)

	all, err := store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "HDFCBANK", all[0].Symbol)
	assert.Equal(t, "INFY", all[1].Symbol)
	assert.Equal(t, "RELIANCE", all[2].Symbol)
	assert.Empty(t, all[0].InstrumentKey)

	// Whole batch rolls back on a duplicate
	err = store.InsertBulk(ctx, []*domain.Instrument{
		{Symbol: "WIPRO"},
		{Symbol: "INFY"},
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	_, err = store.GetBySymbol(ctx, "WIPRO")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestInstrumentStore_LoadsCatalog(t *testing.T) {
	pool := startPostgres(t)
	store := postgres.NewInstrumentStore(pool)
	seedInstruments(t, store)

	c, err := catalog.LoadStore(context.Background(), store)
	require.NoError(t, err)
	assert.Equal(t, 3, c.Len())

	inst, ok := c.LookupKey("NSE_EQ|INE009A01021")
	require.True(t, ok)
	assert.Equal(t, "INFY", inst.Symbol)
}

func TestMigrations_Rerunnable(t *testing.T) {
	pool := startPostgres(t)
	ctx := context.Background()

	res, err := migrations.RunPostgresMigrations(ctx, pool)
	require.NoError(t, err)
	assert.Empty(t, res.Applied)
	assert.NotEmpty(t, res.Skipped)

	var recorded int
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM schema_migrations`).Scan(&recorded))
	assert.Equal(t, len(res.Skipped), recorded)
}
