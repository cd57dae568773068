package main

import (
	"bytes"
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quote-screener/internal/catalog"
	"quote-screener/internal/criteria"
	"quote-screener/internal/domain"
)

func TestRunScan(t *testing.T) {
	c, err := catalog.New([]*domain.Instrument{
		{Symbol: "INFY"}, {Symbol: "TCS"}, {Symbol: "WIPRO"},
	})
	require.NoError(t, err)
	preset, err := criteria.NewRegistry(criteria.BuiltinPresets()).Get(criteria.PresetAll)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, runScan(context.Background(), &out, c, preset, 2, 10, 7))

	text := out.String()
	assert.Contains(t, text, "All Stocks: 3 of 3 instruments match (sorted by marketCap desc)")
	for _, sym := range []string{"INFY", "TCS", "WIPRO"} {
		assert.Contains(t, text, sym)
	}
}

func TestDescribeCriterion(t *testing.T) {
	assert.Equal(t, "peRatio in [0, 30]",
		describeCriterion(domain.Criterion{Field: domain.FieldPERatio, Min: 0, Max: 30, Enabled: true}))
	assert.Equal(t, "rsi >= 50",
		describeCriterion(domain.Criterion{Field: domain.FieldRSI, Min: 50, Max: math.MaxFloat64, Enabled: true}))
	assert.Equal(t, "beta <= 1 (off)",
		describeCriterion(domain.Criterion{Field: domain.FieldBeta, Min: -math.MaxFloat64, Max: 1}))
}
