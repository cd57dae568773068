package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"quote-screener/internal/domain"
	"quote-screener/internal/observability"
	"quote-screener/internal/storage"
)

// Store is the quote store as seen by the runner.
type Store interface {
	QuoteWriter
	SeedQuote(q *domain.Quote) error
	Get(symbol string) (*domain.Quote, error)
	MarkAllStale() int
	Len() int
}

// maxArchiveBuffer bounds quotes kept across failed archive flushes.
const maxArchiveBuffer = 50000

// Runner is the single writer of the quote store. It serializes poll batches
// and stream events into the adapter, handles feed disconnects and archives
// accepted quotes.
type Runner struct {
	adapter       *Adapter
	store         Store
	pollSource    PollSource
	streamSource  StreamSource
	archive       storage.TickArchive
	pollInterval  time.Duration
	flushInterval time.Duration
	staleWindow   int
	logger        *log.Logger

	// Accepted quotes waiting for the next archive flush
	archiveBuffer []*domain.Quote

	// Stale-rejection ratio over the current window
	windowEvents int
	windowStale  int

	stats runnerCounters
}

type runnerCounters struct {
	applied       atomic.Int64
	stale         atomic.Int64
	malformed     atomic.Int64
	unknown       atomic.Int64
	disconnects   atomic.Int64
	archived      atomic.Int64
	lastAppliedMs atomic.Int64
	connected     atomic.Bool
}

// RunnerOptions contains configuration for creating a Runner.
type RunnerOptions struct {
	Adapter       *Adapter
	Store         Store
	PollSource    PollSource          // optional
	StreamSource  StreamSource        // optional
	Archive       storage.TickArchive // optional
	PollInterval  time.Duration       // Default: 5s
	FlushInterval time.Duration       // Default: 5s - archive flush cadence
	StaleWindow   int                 // Default: 100 events - stale ratio window
	Logger        *log.Logger
}

// NewRunner creates a new ingestion runner.
func NewRunner(opts RunnerOptions) *Runner {
	pollInterval := opts.PollInterval
	if pollInterval == 0 {
		pollInterval = 5 * time.Second
	}

	flushInterval := opts.FlushInterval
	if flushInterval == 0 {
		flushInterval = 5 * time.Second
	}

	staleWindow := opts.StaleWindow
	if staleWindow == 0 {
		staleWindow = 100
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Runner{
		adapter:       opts.Adapter,
		store:         opts.Store,
		pollSource:    opts.PollSource,
		streamSource:  opts.StreamSource,
		archive:       opts.Archive,
		pollInterval:  pollInterval,
		flushInterval: flushInterval,
		staleWindow:   staleWindow,
		logger:        logger,
	}
}

// Run starts continuous ingestion.
// It blocks until context is cancelled or the stream closes.
func (r *Runner) Run(ctx context.Context) error {
	if r.pollSource == nil && r.streamSource == nil {
		return errors.New("no feed source configured")
	}

	r.logger.Println("[ingest] starting runner")

	var eventsCh <-chan RawEvent
	var connCh <-chan ConnEvent
	if r.streamSource != nil {
		var err error
		eventsCh, connCh, err = r.streamSource.Subscribe(ctx)
		if err != nil {
			return fmt.Errorf("subscribe stream: %w", err)
		}
		r.logger.Println("[ingest] subscribed to push feed")
	}

	var pollC <-chan time.Time
	if r.pollSource != nil {
		pollTicker := time.NewTicker(r.pollInterval)
		defer pollTicker.Stop()
		pollC = pollTicker.C

		// First batch immediately so sessions have data to scan
		r.poll(ctx)
	}

	var flushC <-chan time.Time
	if r.archive != nil {
		flushTicker := time.NewTicker(r.flushInterval)
		defer flushTicker.Stop()
		flushC = flushTicker.C
	}

	r.logger.Printf("[ingest] runner started, poll interval: %v, flush interval: %v", r.pollInterval, r.flushInterval)

	for {
		select {
		case <-ctx.Done():
			// Flush with a fresh context; the run context is already cancelled
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			r.flush(flushCtx)
			cancel()
			r.logger.Println("[ingest] runner stopping")
			return ctx.Err()

		case ev, ok := <-eventsCh:
			if !ok {
				r.logger.Println("[ingest] stream events channel closed")
				return errors.New("stream events channel closed")
			}
			r.HandleEvent(ev)

		case ev, ok := <-connCh:
			if !ok {
				connCh = nil
				continue
			}
			r.HandleConn(ev)

		case <-pollC:
			r.poll(ctx)

		case <-flushC:
			r.flush(ctx)
		}
	}
}

// poll fetches one batch from the poll source.
func (r *Runner) poll(ctx context.Context) {
	events, err := r.pollSource.Fetch(ctx)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Printf("[ingest] poll failed: %v", err)
		}
		return
	}
	for _, ev := range events {
		r.HandleEvent(ev)
	}
}

// HandleEvent ingests one raw event. Per-event failures are counted and
// dropped; they never stop the runner.
func (r *Runner) HandleEvent(ev RawEvent) {
	q, err := r.adapter.Ingest(ev)
	source := ev.Source
	if source == "" {
		source = "unknown"
	}

	switch {
	case err == nil:
		r.stats.applied.Add(1)
		r.stats.lastAppliedMs.Store(q.Timestamp)
		observability.RecordIngest(source, observability.OutcomeApplied)
		observability.RecordApplied(time.Now().Unix(), r.store.Len())
		if r.archive != nil {
			// Archive the stored copy; it carries the receive time
			if stored, err := r.store.Get(q.Symbol); err == nil && stored.Timestamp == q.Timestamp {
				q = stored
			}
			r.archiveBuffer = append(r.archiveBuffer, q)
			observability.SetArchiveBuffer(len(r.archiveBuffer))
		}
		r.observeWindow(false)

	case errors.Is(err, storage.ErrStaleTimestamp):
		// Routine under redelivery; only the ratio is worth reporting
		r.stats.stale.Add(1)
		observability.RecordIngest(source, observability.OutcomeStale)
		r.observeWindow(true)

	case errors.Is(err, ErrUnknownInstrument):
		r.stats.unknown.Add(1)
		observability.RecordIngest(source, observability.OutcomeUnknown)
		r.logger.Printf("[ingest] dropping event: %v", err)
		r.observeWindow(false)

	case errors.Is(err, ErrMalformedQuote):
		r.stats.malformed.Add(1)
		observability.RecordIngest(source, observability.OutcomeMalformed)
		r.logger.Printf("[ingest] dropping event: %v", err)
		r.observeWindow(false)

	default:
		r.stats.malformed.Add(1)
		observability.RecordIngest(source, observability.OutcomeMalformed)
		r.logger.Printf("[ingest] error applying quote: %v", err)
		r.observeWindow(false)
	}
}

// observeWindow tracks the stale-rejection ratio and warns when stale
// rejections dominate a full window, which points at upstream clock or
// ordering trouble.
func (r *Runner) observeWindow(stale bool) {
	r.windowEvents++
	if stale {
		r.windowStale++
	}
	if r.windowEvents < r.staleWindow {
		return
	}
	if r.windowStale*2 > r.windowEvents {
		r.logger.Printf("[ingest] WARNING: %d of last %d events rejected as stale", r.windowStale, r.windowEvents)
	}
	r.windowEvents = 0
	r.windowStale = 0
}

// HandleConn reacts to a push-feed connection transition. A disconnect
// marks every stored quote stale; a reconnect needs no replay because the
// feed client restores its subscription.
func (r *Runner) HandleConn(ev ConnEvent) {
	if ev.Connected {
		if !r.stats.connected.Swap(true) {
			observability.SetFeedConnected(true)
			r.logger.Println("[ingest] feed connected")
		}
		return
	}

	wasConnected := r.stats.connected.Swap(false)
	n := r.store.MarkAllStale()
	r.stats.disconnects.Add(1)
	if wasConnected {
		observability.SetFeedConnected(false)
	}
	r.logger.Printf("[ingest] feed disconnected (%v), %d quotes marked stale", ev.Err, n)
}

// flush writes buffered quotes to the tick archive. Ticks the archive
// already holds are skipped by the archive itself; on any other failure the
// batch is kept and retried on the next flush.
func (r *Runner) flush(ctx context.Context) {
	if r.archive == nil || len(r.archiveBuffer) == 0 {
		return
	}

	batch := r.archiveBuffer
	n, err := r.archive.InsertBulk(ctx, batch)
	observability.RecordArchiveFlush(n, err)

	if err != nil {
		if len(batch) > maxArchiveBuffer {
			dropped := len(batch) - maxArchiveBuffer
			r.archiveBuffer = batch[dropped:]
			r.logger.Printf("[ingest] archive buffer full, dropped %d oldest quotes", dropped)
		}
		r.logger.Printf("[ingest] archive flush failed (%d quotes kept): %v", len(r.archiveBuffer), err)
		observability.SetArchiveBuffer(len(r.archiveBuffer))
		return
	}

	r.stats.archived.Add(int64(n))
	r.archiveBuffer = nil
	if skipped := len(batch) - n; skipped > 0 {
		r.logger.Printf("[ingest] archive flush: %d written, %d already archived", n, skipped)
	}
	observability.SetArchiveBuffer(0)
}

// RunnerStats is a point-in-time view of runner counters.
type RunnerStats struct {
	Applied       int64
	Stale         int64
	Malformed     int64
	Unknown       int64
	Disconnects   int64
	Archived      int64
	LastAppliedMs int64
	Connected     bool
}

// Stats returns current runner statistics. Safe to call from any goroutine.
func (r *Runner) Stats() RunnerStats {
	return RunnerStats{
		Applied:       r.stats.applied.Load(),
		Stale:         r.stats.stale.Load(),
		Malformed:     r.stats.malformed.Load(),
		Unknown:       r.stats.unknown.Load(),
		Disconnects:   r.stats.disconnects.Load(),
		Archived:      r.stats.archived.Load(),
		LastAppliedMs: r.stats.lastAppliedMs.Load(),
		Connected:     r.stats.connected.Load(),
	}
}

// WarmStart seeds the store with the newest archived quote per symbol.
// Seeded quotes are flagged stale until a live tick replaces them.
// Returns the number of quotes seeded; archived symbols no longer in the
// catalog are skipped.
func WarmStart(ctx context.Context, archive storage.TickArchive, resolver Resolver, store Store) (int, error) {
	latest, err := archive.GetLatest(ctx)
	if err != nil {
		return 0, fmt.Errorf("load latest ticks: %w", err)
	}

	seeded := 0
	for _, q := range latest {
		if _, ok := resolver.Resolve(q.Symbol); !ok {
			continue
		}
		if err := store.SeedQuote(q); err != nil {
			if errors.Is(err, storage.ErrStaleTimestamp) {
				continue
			}
			return seeded, fmt.Errorf("seed %s: %w", q.Symbol, err)
		}
		seeded++
	}
	return seeded, nil
}
