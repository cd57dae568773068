package screening

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quote-screener/internal/catalog"
	"quote-screener/internal/domain"
	"quote-screener/internal/storage/memory"
)

type fixture struct {
	catalog *catalog.Catalog
	store   *memory.QuoteStore
	ts      int64
}

func newFixture(t *testing.T, symbols ...string) *fixture {
	t.Helper()
	instruments := make([]*domain.Instrument, len(symbols))
	for i, sym := range symbols {
		instruments[i] = &domain.Instrument{Symbol: sym, Exchange: "NSE", Name: sym + " Ltd"}
	}
	c, err := catalog.New(instruments)
	require.NoError(t, err)
	return &fixture{
		catalog: c,
		store:   memory.NewQuoteStore(memory.QuoteStoreOptions{}),
		ts:      1_700_000_000_000,
	}
}

func (f *fixture) apply(t *testing.T, symbol string, marketCap float64) {
	t.Helper()
	f.ts++
	require.NoError(t, f.store.ApplyQuote(&domain.Quote{
		Symbol:    symbol,
		Price:     100,
		Timestamp: f.ts,
		MarketCap: domain.Float(marketCap),
	}))
}

func (f *fixture) session(opts ...func(*SessionOptions)) *Session {
	o := SessionOptions{ID: "test", Universe: f.catalog, Quotes: f.store}
	for _, fn := range opts {
		fn(&o)
	}
	return NewSession(o)
}

func marketCapSet(min, max float64) *domain.CriteriaSet {
	return domain.MustCriteriaSet(domain.Criterion{
		Field: domain.FieldMarketCap, Min: min, Max: max, Enabled: true,
	})
}

func TestSession_ScanThenIncrementalUpdate(t *testing.T) {
	f := newFixture(t, "A", "B")
	f.apply(t, "A", 5000)
	f.apply(t, "B", 50000)
	f.store.SnapshotDirty()

	s := f.session()
	require.NoError(t, s.Start(context.Background(), marketCapSet(10000, 100000), domain.DefaultSortKey))
	assert.Equal(t, StateReady, s.State())

	snap, err := s.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, snap.Symbols())
	assert.Equal(t, uint64(1), snap.Version)

	f.apply(t, "A", 20000)
	dirty := f.store.SnapshotDirty()
	assert.Equal(t, []string{"A"}, dirty)

	changed, err := s.Update(dirty)
	require.NoError(t, err)
	assert.True(t, changed)

	snap, err = s.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "A"}, snap.Symbols())
	assert.Equal(t, uint64(2), snap.Version)
	assert.Equal(t, StateReady, s.State())
}

func TestSession_InvalidCriterionLeavesResultUnchanged(t *testing.T) {
	f := newFixture(t, "A", "B")
	f.apply(t, "A", 5000)
	f.apply(t, "B", 50000)

	s := f.session()
	require.NoError(t, s.Start(context.Background(), marketCapSet(10000, 100000), domain.DefaultSortKey))
	before, err := s.Snapshot()
	require.NoError(t, err)

	err = s.SetCriterion(context.Background(), domain.Criterion{
		Field: domain.FieldPERatio, Min: 50, Max: 10, Enabled: true,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidRange)

	after, err := s.Snapshot()
	require.NoError(t, err)
	assert.Same(t, before, after)
	assert.Equal(t, StateReady, s.State())
	_, ok := after.Criteria.Get(domain.FieldPERatio)
	assert.False(t, ok)
}

func TestSession_EmptySetMatchesAll(t *testing.T) {
	f := newFixture(t, "A", "B", "C")
	f.apply(t, "A", 1)
	f.apply(t, "B", 3)
	// C has no quote and is not part of the result

	s := f.session()
	require.NoError(t, s.Start(context.Background(), nil, domain.DefaultSortKey))
	snap, err := s.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "A"}, snap.Symbols())
}

func TestSession_RankingAbsentLastAndTieBreak(t *testing.T) {
	f := newFixture(t, "A", "B", "C", "D")
	f.apply(t, "C", 10)
	f.apply(t, "A", 10)
	f.apply(t, "D", 20)
	f.ts++
	require.NoError(t, f.store.ApplyQuote(&domain.Quote{Symbol: "B", Price: 1, Timestamp: f.ts}))

	s := f.session()
	require.NoError(t, s.Start(context.Background(), nil, domain.DefaultSortKey))
	snap, _ := s.Snapshot()
	assert.Equal(t, []string{"D", "A", "C", "B"}, snap.Symbols())

	require.NoError(t, s.SetSort(domain.SortKey{Field: domain.FieldMarketCap}))
	snap, _ = s.Snapshot()
	assert.Equal(t, []string{"A", "C", "D", "B"}, snap.Symbols())
}

func TestSession_VersionAndEpoch(t *testing.T) {
	f := newFixture(t, "A", "B", "C")
	f.apply(t, "A", 100)
	f.apply(t, "B", 200)
	f.apply(t, "C", 300)
	f.store.SnapshotDirty()

	s := f.session()
	ctx := context.Background()
	require.NoError(t, s.Start(ctx, nil, domain.DefaultSortKey))
	snap, _ := s.Snapshot()
	assert.Equal(t, uint64(1), snap.Version)
	assert.Equal(t, uint64(1), snap.Epoch)

	// Value change without reordering keeps the version
	f.apply(t, "C", 310)
	changed, err := s.Update(f.store.SnapshotDirty())
	require.NoError(t, err)
	assert.False(t, changed)
	snap, _ = s.Snapshot()
	assert.Equal(t, uint64(1), snap.Version)
	row, rank, ok := snap.Row("C")
	require.True(t, ok)
	assert.Equal(t, 0, rank)
	mc, _ := row.Quote.Value(domain.FieldMarketCap)
	assert.Equal(t, 310.0, mc)

	// Field edit keeps the epoch
	require.NoError(t, s.SetCriterion(ctx, domain.Criterion{Field: domain.FieldMarketCap, Min: 150, Max: 1000, Enabled: true}))
	snap, _ = s.Snapshot()
	assert.Equal(t, []string{"C", "B"}, snap.Symbols())
	assert.Equal(t, uint64(2), snap.Version)
	assert.Equal(t, uint64(1), snap.Epoch)

	order, epoch, ok := snap.OrderAt(1)
	require.True(t, ok)
	assert.Equal(t, uint64(1), epoch)
	assert.Equal(t, []string{"C", "B", "A"}, order)

	// Replacement starts a new epoch and drops history
	require.NoError(t, s.ReplaceCriteria(ctx, marketCapSet(0, 250), nil))
	snap, _ = s.Snapshot()
	assert.Equal(t, []string{"B", "A"}, snap.Symbols())
	assert.Equal(t, uint64(3), snap.Version)
	assert.Equal(t, uint64(2), snap.Epoch)
	_, _, ok = snap.OrderAt(2)
	assert.False(t, ok)
	assert.Equal(t, uint64(3), snap.OldestVersion())
}

func TestSession_RemoveCriterion(t *testing.T) {
	f := newFixture(t, "A", "B")
	f.apply(t, "A", 5000)
	f.apply(t, "B", 50000)

	s := f.session()
	ctx := context.Background()
	require.NoError(t, s.Start(ctx, marketCapSet(10000, 100000), domain.DefaultSortKey))

	require.NoError(t, s.RemoveCriterion(ctx, domain.FieldMarketCap))
	snap, _ := s.Snapshot()
	assert.Equal(t, []string{"B", "A"}, snap.Symbols())

	err := s.RemoveCriterion(ctx, domain.FieldMarketCap)
	assert.ErrorIs(t, err, ErrCriterionNotSet)
	assert.Equal(t, StateReady, s.State())
}

func TestSession_HistoryLimit(t *testing.T) {
	f := newFixture(t, "A", "B")
	f.apply(t, "A", 1)
	f.apply(t, "B", 2)
	f.store.SnapshotDirty()

	s := f.session(func(o *SessionOptions) { o.HistoryLimit = 3 })
	require.NoError(t, s.Start(context.Background(), nil, domain.DefaultSortKey))

	// Each swap reorders and bumps the version
	for i := 0; i < 5; i++ {
		if i%2 == 0 {
			f.apply(t, "A", float64(10+i))
		} else {
			f.apply(t, "B", float64(10+i))
		}
		_, err := s.Update(f.store.SnapshotDirty())
		require.NoError(t, err)
	}

	snap, _ := s.Snapshot()
	assert.Equal(t, uint64(6), snap.Version)
	assert.Equal(t, uint64(4), snap.OldestVersion())
	_, _, ok := snap.OrderAt(3)
	assert.False(t, ok)
	_, _, ok = snap.OrderAt(4)
	assert.True(t, ok)
}

func TestSession_Lifecycle(t *testing.T) {
	f := newFixture(t, "A")
	f.apply(t, "A", 1)
	s := f.session()
	ctx := context.Background()

	assert.Equal(t, StateIdle, s.State())
	_, err := s.Snapshot()
	assert.ErrorIs(t, err, ErrSessionNotReady)
	_, err = s.Update([]string{"A"})
	assert.ErrorIs(t, err, ErrSessionNotReady)

	require.NoError(t, s.Start(ctx, nil, domain.DefaultSortKey))
	assert.ErrorIs(t, s.Start(ctx, nil, domain.DefaultSortKey), ErrSessionStarted)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, StateClosed, s.State())

	_, err = s.Snapshot()
	assert.ErrorIs(t, err, ErrSessionClosed)
	_, err = s.Update([]string{"A"})
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.ErrorIs(t, s.SetSort(domain.DefaultSortKey), ErrSessionClosed)
	assert.ErrorIs(t, s.Start(ctx, nil, domain.DefaultSortKey), ErrSessionClosed)
}

func TestSession_StartCancelled(t *testing.T) {
	f := newFixture(t, "A")
	f.apply(t, "A", 1)
	s := f.session()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Start(ctx, nil, domain.DefaultSortKey), context.Canceled)
	assert.Equal(t, StateIdle, s.State())

	require.NoError(t, s.Start(context.Background(), nil, domain.DefaultSortKey))
}

// blockingReader parks Get until released, so a test can close a session
// in the middle of a scan.
type blockingReader struct {
	QuoteReader
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingReader) Get(symbol string) (*domain.Quote, error) {
	b.once.Do(func() {
		close(b.entered)
		<-b.release
	})
	return b.QuoteReader.Get(symbol)
}

func TestSession_CloseDuringScanDiscardsResult(t *testing.T) {
	f := newFixture(t, "A", "B")
	f.apply(t, "A", 1)
	f.apply(t, "B", 2)

	reader := &blockingReader{QuoteReader: f.store, entered: make(chan struct{}), release: make(chan struct{})}
	s := f.session(func(o *SessionOptions) { o.Quotes = reader })

	done := make(chan error, 1)
	go func() { done <- s.Start(context.Background(), nil, domain.DefaultSortKey) }()

	<-reader.entered
	require.NoError(t, s.Close())
	close(reader.release)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrSessionClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("scan did not finish")
	}
	assert.Equal(t, StateClosed, s.State())
	assert.Nil(t, s.snap.Load())
}

func TestSession_IncrementalMatchesFullScan(t *testing.T) {
	const n = 200
	symbols := make([]string, n)
	for i := range symbols {
		symbols[i] = fmt.Sprintf("S%03d", i)
	}
	f := newFixture(t, symbols...)
	rng := rand.New(rand.NewSource(7))

	for _, sym := range symbols {
		if rng.Intn(10) == 0 {
			continue
		}
		f.apply(t, sym, float64(rng.Intn(1000)))
	}
	f.store.SnapshotDirty()

	set := marketCapSet(200, 700)
	ctx := context.Background()
	live := f.session()
	require.NoError(t, live.Start(ctx, set, domain.DefaultSortKey))

	for round := 0; round < 50; round++ {
		for k := 0; k < 1+rng.Intn(20); k++ {
			f.apply(t, symbols[rng.Intn(n)], float64(rng.Intn(1000)))
		}
		_, err := live.Update(f.store.SnapshotDirty())
		require.NoError(t, err)

		fresh := f.session()
		require.NoError(t, fresh.Start(ctx, set, domain.DefaultSortKey))

		got, _ := live.Snapshot()
		want, _ := fresh.Snapshot()
		require.Equal(t, want.Symbols(), got.Symbols(), "round %d", round)
	}
}

func TestSession_ConcurrentReadersSeeCompleteSnapshots(t *testing.T) {
	const n = 100
	symbols := make([]string, n)
	for i := range symbols {
		symbols[i] = fmt.Sprintf("S%03d", i)
	}
	f := newFixture(t, symbols...)
	for i, sym := range symbols {
		f.apply(t, sym, float64(i))
	}
	f.store.SnapshotDirty()

	s := f.session()
	require.NoError(t, s.Start(context.Background(), marketCapSet(0, 1e9), domain.DefaultSortKey))

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				snap, err := s.Snapshot()
				if err != nil {
					t.Errorf("snapshot: %v", err)
					return
				}
				if snap.Len() != n {
					t.Errorf("snapshot has %d rows, want %d", snap.Len(), n)
					return
				}
				for i := 1; i < snap.Len(); i++ {
					if less(snap.Rows[i], snap.Rows[i-1], snap.Sort) {
						t.Errorf("snapshot v%d out of order at %d", snap.Version, i)
						return
					}
				}
			}
		}()
	}

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		f.apply(t, symbols[rng.Intn(n)], float64(rng.Intn(1000)))
		_, err := s.Update(f.store.SnapshotDirty())
		require.NoError(t, err)
	}
	cancel()
	wg.Wait()
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "updating", StateUpdating.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "unknown", State(42).String())
}
