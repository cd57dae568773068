package memory

import (
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"quote-screener/internal/domain"
	"quote-screener/internal/storage"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 9, 15, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestQuoteStore_ApplyAndGet(t *testing.T) {
	store := NewQuoteStore(QuoteStoreOptions{})

	q := &domain.Quote{Symbol: "RELIANCE", Price: 2450.5, Timestamp: 1000, MarketCap: domain.Float(1660000)}
	if err := store.ApplyQuote(q); err != nil {
		t.Fatalf("ApplyQuote failed: %v", err)
	}

	got, err := store.Get("RELIANCE")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Price != 2450.5 {
		t.Errorf("Price mismatch: got %v, want 2450.5", got.Price)
	}
	if got.LastUpdated.IsZero() {
		t.Error("LastUpdated should be set by the store")
	}

	// Mutating the returned copy must not affect the store
	*got.MarketCap = 1
	again, _ := store.Get("RELIANCE")
	if *again.MarketCap != 1660000 {
		t.Errorf("store leaked internal quote: marketCap=%v", *again.MarketCap)
	}
}

func TestQuoteStore_NotFound(t *testing.T) {
	store := NewQuoteStore(QuoteStoreOptions{})

	_, err := store.Get("MISSING")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestQuoteStore_InvalidInput(t *testing.T) {
	store := NewQuoteStore(QuoteStoreOptions{})

	if err := store.ApplyQuote(nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for nil, got %v", err)
	}
	if err := store.ApplyQuote(&domain.Quote{Timestamp: 1}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for empty symbol, got %v", err)
	}
}

func TestQuoteStore_StaleRejection(t *testing.T) {
	store := NewQuoteStore(QuoteStoreOptions{})

	if err := store.ApplyQuote(&domain.Quote{Symbol: "A", Price: 10, Timestamp: 2000}); err != nil {
		t.Fatalf("ApplyQuote failed: %v", err)
	}

	// Equal timestamp: rejected (redelivery)
	err := store.ApplyQuote(&domain.Quote{Symbol: "A", Price: 11, Timestamp: 2000})
	if !errors.Is(err, storage.ErrStaleTimestamp) {
		t.Errorf("Expected ErrStaleTimestamp for equal timestamp, got %v", err)
	}

	// Older timestamp: rejected (out of order)
	err = store.ApplyQuote(&domain.Quote{Symbol: "A", Price: 9, Timestamp: 1999})
	if !errors.Is(err, storage.ErrStaleTimestamp) {
		t.Errorf("Expected ErrStaleTimestamp for older timestamp, got %v", err)
	}

	got, _ := store.Get("A")
	if got.Price != 10 {
		t.Errorf("rejected quote overwrote stored value: price=%v", got.Price)
	}
}

// For any sequence of ticks, the stored quote is the one with the greatest
// timestamp, and it is the first delivery of that timestamp.
func TestQuoteStore_StaleRejectionProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for iter := 0; iter < 100; iter++ {
		store := NewQuoteStore(QuoteStoreOptions{})
		var maxTS int64 = -1
		var wantPrice float64

		for i := 0; i < 50; i++ {
			ts := rng.Int63n(30)
			price := float64(i)
			err := store.ApplyQuote(&domain.Quote{Symbol: "X", Price: price, Timestamp: ts})
			if ts > maxTS {
				if err != nil {
					t.Fatalf("newer quote rejected: %v", err)
				}
				maxTS = ts
				wantPrice = price
			} else if !errors.Is(err, storage.ErrStaleTimestamp) {
				t.Fatalf("older/equal quote accepted (ts=%d max=%d)", ts, maxTS)
			}
		}

		got, _ := store.Get("X")
		if got.Timestamp != maxTS || got.Price != wantPrice {
			t.Fatalf("got ts=%d price=%v, want ts=%d price=%v", got.Timestamp, got.Price, maxTS, wantPrice)
		}
	}
}

func TestQuoteStore_SnapshotDirty(t *testing.T) {
	store := NewQuoteStore(QuoteStoreOptions{})

	store.ApplyQuote(&domain.Quote{Symbol: "B", Timestamp: 1})
	store.ApplyQuote(&domain.Quote{Symbol: "A", Timestamp: 1})
	store.ApplyQuote(&domain.Quote{Symbol: "B", Timestamp: 2})
	store.ApplyQuote(&domain.Quote{Symbol: "C", Timestamp: 0})
	store.ApplyQuote(&domain.Quote{Symbol: "C", Timestamp: 0}) // rejected, still dirty from first

	dirty := store.SnapshotDirty()
	want := []string{"A", "B", "C"}
	if len(dirty) != len(want) {
		t.Fatalf("Expected %v, got %v", want, dirty)
	}
	for i := range want {
		if dirty[i] != want[i] {
			t.Errorf("dirty[%d] = %s, want %s", i, dirty[i], want[i])
		}
	}

	if again := store.SnapshotDirty(); len(again) != 0 {
		t.Errorf("dirty set should be cleared, got %v", again)
	}

	// Rejected quotes do not dirty the symbol
	store.ApplyQuote(&domain.Quote{Symbol: "A", Timestamp: 1})
	if again := store.SnapshotDirty(); len(again) != 0 {
		t.Errorf("stale quote must not mark dirty, got %v", again)
	}
}

func TestQuoteStore_StalenessThreshold(t *testing.T) {
	clock := newFakeClock()
	store := NewQuoteStore(QuoteStoreOptions{StaleAfter: 30 * time.Second, Clock: clock.Now})

	store.ApplyQuote(&domain.Quote{Symbol: "A", Timestamp: 1})
	if store.IsStale("A") {
		t.Error("fresh quote reported stale")
	}

	clock.Advance(30 * time.Second)
	if store.IsStale("A") {
		t.Error("quote at exactly the threshold should not be stale")
	}

	clock.Advance(time.Millisecond)
	if !store.IsStale("A") {
		t.Error("quote past the threshold should be stale")
	}

	// Stale quotes are still served
	if _, err := store.Get("A"); err != nil {
		t.Errorf("stale quote should remain readable: %v", err)
	}

	store.ApplyQuote(&domain.Quote{Symbol: "A", Timestamp: 2})
	if store.IsStale("A") {
		t.Error("fresh tick should clear staleness")
	}

	if !store.IsStale("UNKNOWN") {
		t.Error("unknown symbol should be stale")
	}
}

func TestQuoteStore_MarkAllStale(t *testing.T) {
	store := NewQuoteStore(QuoteStoreOptions{})
	store.ApplyQuote(&domain.Quote{Symbol: "A", Timestamp: 1})
	store.ApplyQuote(&domain.Quote{Symbol: "B", Timestamp: 1})

	if n := store.MarkAllStale(); n != 2 {
		t.Errorf("MarkAllStale flagged %d, want 2", n)
	}
	if !store.IsStale("A") || !store.IsStale("B") {
		t.Error("all quotes should be stale after disconnect")
	}
	if store.Len() != 2 {
		t.Error("MarkAllStale must not delete quotes")
	}

	store.ApplyQuote(&domain.Quote{Symbol: "A", Timestamp: 2})
	if store.IsStale("A") {
		t.Error("fresh tick should clear the forced stale flag")
	}
	if !store.IsStale("B") {
		t.Error("B should stay stale until its own tick")
	}
}

func TestQuoteStore_SeedQuoteIsStale(t *testing.T) {
	store := NewQuoteStore(QuoteStoreOptions{})

	if err := store.SeedQuote(&domain.Quote{Symbol: "A", Timestamp: 5}); err != nil {
		t.Fatalf("SeedQuote failed: %v", err)
	}
	if !store.IsStale("A") {
		t.Error("seeded quote should be stale")
	}
	if err := store.ApplyQuote(&domain.Quote{Symbol: "A", Timestamp: 5}); !errors.Is(err, storage.ErrStaleTimestamp) {
		t.Errorf("seeded timestamp should still order ticks, got %v", err)
	}
}

func TestQuoteStore_NotifyCoalesces(t *testing.T) {
	store := NewQuoteStore(QuoteStoreOptions{})
	store.ApplyQuote(&domain.Quote{Symbol: "A", Timestamp: 1})
	store.ApplyQuote(&domain.Quote{Symbol: "B", Timestamp: 1})

	select {
	case <-store.Notify():
	default:
		t.Fatal("expected a notification")
	}
	select {
	case <-store.Notify():
		t.Fatal("notifications should coalesce")
	default:
	}
}

func TestQuoteStore_ConcurrentReaders(t *testing.T) {
	store := NewQuoteStore(QuoteStoreOptions{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := int64(1); i <= 1000; i++ {
			store.ApplyQuote(&domain.Quote{Symbol: "A", Price: float64(i), Timestamp: i})
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var last int64
			for i := 0; i < 1000; i++ {
				q, err := store.Get("A")
				if err != nil {
					continue
				}
				if q.Timestamp < last {
					t.Errorf("timestamp went backwards: %d < %d", q.Timestamp, last)
					return
				}
				last = q.Timestamp
				store.All()
				store.IsStale("A")
			}
		}()
	}

	wg.Wait()
}
