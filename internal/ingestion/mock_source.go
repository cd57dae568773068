package ingestion

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"quote-screener/internal/domain"
)

// MockPollSource simulates a polled feed with a random walk over the catalog.
// Fundamentals are drawn once per instrument; price, volume and the values
// derived from price move on every Fetch.
type MockPollSource struct {
	mu         sync.Mutex
	rng        *rand.Rand
	clock      func() time.Time
	volatility float64
	states     []*mockState
	lastTs     int64
}

type mockState struct {
	symbol    string
	prevClose float64
	price     float64
	volume    float64
	shares    float64 // crore shares; market cap = shares * price
	eps       float64
	bookValue float64
	dividend  float64
	roe       float64
	rsi       float64
	beta      float64
	revenue   float64
	growth    float64
	debtRatio float64
}

// MockPollSourceOptions contains configuration for creating a MockPollSource.
type MockPollSourceOptions struct {
	Instruments []domain.Instrument
	Seed        int64            // Default: 1
	Volatility  float64          // Default: 0.01 (max 1% move per fetch)
	Clock       func() time.Time // Default: time.Now
}

// NewMockPollSource creates a mock feed over the given instruments.
func NewMockPollSource(opts MockPollSourceOptions) *MockPollSource {
	seed := opts.Seed
	if seed == 0 {
		seed = 1
	}
	volatility := opts.Volatility
	if volatility <= 0 {
		volatility = 0.01
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	rng := rand.New(rand.NewSource(seed))
	states := make([]*mockState, 0, len(opts.Instruments))
	for _, i := range opts.Instruments {
		price := round2(50 + rng.Float64()*4950)
		states = append(states, &mockState{
			symbol:    i.Symbol,
			prevClose: price,
			price:     price,
			volume:    math.Floor(1e5 + rng.Float64()*5e6),
			shares:    1 + rng.Float64()*600,
			eps:       price / (5 + rng.Float64()*55),
			bookValue: price / (0.5 + rng.Float64()*9.5),
			dividend:  price * rng.Float64() * 0.06,
			roe:       round2(rng.Float64() * 45),
			rsi:       round2(20 + rng.Float64()*60),
			beta:      round2(0.4 + rng.Float64()*1.4),
			revenue:   round2(50 + rng.Float64()*200000),
			growth:    round2(-10 + rng.Float64()*50),
			debtRatio: round2(rng.Float64() * 2),
		})
	}

	return &MockPollSource{
		rng:        rng,
		clock:      clock,
		volatility: volatility,
		states:     states,
	}
}

// Fetch advances the random walk one step and returns one event per instrument.
func (s *MockPollSource) Fetch(ctx context.Context) ([]RawEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	ts := now.UnixMilli()
	if ts <= s.lastTs {
		ts = s.lastTs + 1
	}
	s.lastTs = ts

	events := make([]RawEvent, 0, len(s.states))
	for _, st := range s.states {
		move := (s.rng.Float64()*2 - 1) * s.volatility
		st.price = math.Max(0.05, round2(st.price*(1+move)))
		st.volume += math.Floor(s.rng.Float64() * 1e4)
		st.rsi = math.Min(100, math.Max(0, round2(st.rsi+move*100)))

		change := round2(st.price - st.prevClose)
		events = append(events, RawEvent{
			Source: SourcePoll,
			Payload: map[string]any{
				"symbol":        st.symbol,
				"price":         st.price,
				"change":        change,
				"changePercent": round2(change / st.prevClose * 100),
				"volume":        st.volume,
				"timestamp":     ts,
				"marketCap":     fmt.Sprintf("%.2f Cr", st.shares*st.price),
				"pe":            round2(st.price / st.eps),
				"pb":            round2(st.price / st.bookValue),
				"dividendYield": round2(st.dividend / st.price * 100),
				"roe":           st.roe,
				"rsi":           st.rsi,
				"beta":          st.beta,
				"revenue":       st.revenue,
				"revenueGrowth": st.growth,
				"debtToEquity":  st.debtRatio,
			},
			ReceivedAt: now,
		})
	}
	return events, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Compile-time interface check.
var _ PollSource = (*MockPollSource)(nil)
