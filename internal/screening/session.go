package screening

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"quote-screener/internal/criteria"
	"quote-screener/internal/domain"
	"quote-screener/internal/observability"
)

// DefaultHistoryLimit is the number of result orders kept for diffs.
const DefaultHistoryLimit = 64

// scanCheckEvery is how many instruments a full scan evaluates between
// cancellation checks.
const scanCheckEvery = 256

// Universe is the instrument set a session screens.
type Universe interface {
	Instruments() []domain.Instrument
	Lookup(symbol string) (domain.Instrument, bool)
}

// QuoteReader reads the latest quote per symbol.
type QuoteReader interface {
	Get(symbol string) (*domain.Quote, error)
}

// SessionOptions contains configuration for creating a Session.
type SessionOptions struct {
	ID           string
	Universe     Universe
	Quotes       QuoteReader
	Engine       *criteria.Engine // Default: criteria.NewEngine()
	HistoryLimit int              // Default: DefaultHistoryLimit
	Clock        func() time.Time // Default: time.Now
	Logger       *log.Logger      // Default: log.Default()
}

// Session keeps the ranked result set for one criteria set.
//
// Passes (scan, update, re-rank) are serialized. Each pass builds a new
// Snapshot and publishes it with one atomic store, so readers see either
// the previous or the next complete result and never block on a pass.
type Session struct {
	id           string
	universe     Universe
	quotes       QuoteReader
	engine       *criteria.Engine
	historyLimit int
	clock        func() time.Time
	logger       *log.Logger

	passMu  sync.Mutex
	state   atomic.Int32
	closed  atomic.Bool
	snap    atomic.Pointer[Snapshot]
	onClose func(*Session)
}

// NewSession creates an idle session. Call Start to run the first scan.
func NewSession(opts SessionOptions) *Session {
	engine := opts.Engine
	if engine == nil {
		engine = criteria.NewEngine()
	}
	historyLimit := opts.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Session{
		id:           opts.ID,
		universe:     opts.Universe,
		quotes:       opts.Quotes,
		engine:       engine,
		historyLimit: historyLimit,
		clock:        clock,
		logger:       logger,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Snapshot returns the latest published result.
func (s *Session) Snapshot() (*Snapshot, error) {
	if s.closed.Load() {
		return nil, ErrSessionClosed
	}
	snap := s.snap.Load()
	if snap == nil {
		return nil, ErrSessionNotReady
	}
	return snap, nil
}

// Start runs the initial full scan. A nil set matches every instrument.
func (s *Session) Start(ctx context.Context, set *domain.CriteriaSet, sortKey domain.SortKey) error {
	if err := sortKey.Validate(); err != nil {
		return err
	}
	if set == nil {
		set = domain.MustCriteriaSet()
	}

	s.passMu.Lock()
	defer s.passMu.Unlock()

	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateScanning)) {
		if s.closed.Load() {
			return ErrSessionClosed
		}
		return ErrSessionStarted
	}

	start := time.Now()
	rows, err := s.scan(ctx, set, sortKey)
	if err != nil {
		s.state.CompareAndSwap(int32(StateScanning), int32(StateIdle))
		return err
	}
	if err := s.publish(nil, rows, set, sortKey, false); err != nil {
		return err
	}
	s.state.CompareAndSwap(int32(StateScanning), int32(StateReady))
	observability.RecordPass("scan", time.Since(start).Seconds())
	return nil
}

// Update re-evaluates the dirty symbols and patches the result set.
// Symbols outside the universe are ignored. Reports whether a new
// version was published.
func (s *Session) Update(dirty []string) (bool, error) {
	if len(dirty) == 0 {
		return false, nil
	}

	s.passMu.Lock()
	defer s.passMu.Unlock()

	prev, err := s.begin(StateUpdating)
	if err != nil {
		return false, err
	}
	defer s.state.CompareAndSwap(int32(StateUpdating), int32(StateReady))

	start := time.Now()

	dirtySet := make(map[string]struct{}, len(dirty))
	var fresh []Row
	touched := false
	for _, symbol := range dirty {
		if _, seen := dirtySet[symbol]; seen {
			continue
		}
		dirtySet[symbol] = struct{}{}

		if _, _, ok := prev.Row(symbol); ok {
			touched = true
		}
		inst, ok := s.universe.Lookup(symbol)
		if !ok {
			continue
		}
		q, err := s.quotes.Get(symbol)
		if err != nil {
			continue
		}
		if s.engine.Matches(q, prev.Criteria) {
			fresh = append(fresh, Row{Instrument: inst, Quote: q})
			touched = true
		}
	}
	if !touched {
		return false, nil
	}

	kept := make([]Row, 0, len(prev.Rows))
	for _, r := range prev.Rows {
		if _, ok := dirtySet[r.Instrument.Symbol]; !ok {
			kept = append(kept, r)
		}
	}
	sortRows(fresh, prev.Sort)
	rows := mergeRows(kept, fresh, prev.Sort)

	if err := s.publish(prev, rows, prev.Criteria, prev.Sort, false); err != nil {
		return false, err
	}
	observability.RecordPass("update", time.Since(start).Seconds())
	return s.snap.Load().Version != prev.Version, nil
}

// SetCriterion adds or replaces one criterion and re-evaluates the universe.
// An invalid criterion is rejected and the session is left untouched.
// The epoch is kept, so clients can still diff across the change.
func (s *Session) SetCriterion(ctx context.Context, c domain.Criterion) error {
	if err := c.Validate(); err != nil {
		observability.RecordCriteriaRejected()
		return err
	}
	return s.rescan(ctx, false, func(prev *Snapshot) (*domain.CriteriaSet, domain.SortKey, error) {
		set, err := prev.Criteria.With(c)
		return set, prev.Sort, err
	})
}

// RemoveCriterion drops the criterion on field, if any.
func (s *Session) RemoveCriterion(ctx context.Context, field domain.Field) error {
	return s.rescan(ctx, false, func(prev *Snapshot) (*domain.CriteriaSet, domain.SortKey, error) {
		if _, ok := prev.Criteria.Get(field); !ok {
			return nil, prev.Sort, fmt.Errorf("%w: %s", ErrCriterionNotSet, field)
		}
		return prev.Criteria.Without(field), prev.Sort, nil
	})
}

// ReplaceCriteria swaps the whole criteria set and starts a new epoch.
// Diffs against versions from an earlier epoch require a full refresh.
func (s *Session) ReplaceCriteria(ctx context.Context, set *domain.CriteriaSet, sortKey *domain.SortKey) error {
	if sortKey != nil {
		if err := sortKey.Validate(); err != nil {
			return err
		}
	}
	if set == nil {
		set = domain.MustCriteriaSet()
	}
	return s.rescan(ctx, true, func(prev *Snapshot) (*domain.CriteriaSet, domain.SortKey, error) {
		key := prev.Sort
		if sortKey != nil {
			key = *sortKey
		}
		return set, key, nil
	})
}

// SetSort re-ranks the current rows without re-evaluating criteria.
func (s *Session) SetSort(sortKey domain.SortKey) error {
	if err := sortKey.Validate(); err != nil {
		return err
	}

	s.passMu.Lock()
	defer s.passMu.Unlock()

	prev, err := s.begin(StateUpdating)
	if err != nil {
		return err
	}
	defer s.state.CompareAndSwap(int32(StateUpdating), int32(StateReady))

	start := time.Now()
	rows := make([]Row, len(prev.Rows))
	copy(rows, prev.Rows)
	sortRows(rows, sortKey)

	if err := s.publish(prev, rows, prev.Criteria, sortKey, false); err != nil {
		return err
	}
	observability.RecordPass("rerank", time.Since(start).Seconds())
	return nil
}

// Close terminates the session. In-flight passes abandon their result.
// Close is idempotent.
func (s *Session) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.state.Store(int32(StateClosed))
	if s.onClose != nil {
		s.onClose(s)
	}
	return nil
}

type criteriaEdit func(prev *Snapshot) (*domain.CriteriaSet, domain.SortKey, error)

// rescan runs a full scan under an edited criteria set.
func (s *Session) rescan(ctx context.Context, newEpoch bool, edit criteriaEdit) error {
	s.passMu.Lock()
	defer s.passMu.Unlock()

	prev, err := s.begin(StateScanning)
	if err != nil {
		return err
	}
	defer s.state.CompareAndSwap(int32(StateScanning), int32(StateReady))

	set, sortKey, err := edit(prev)
	if err != nil {
		return err
	}

	start := time.Now()
	rows, err := s.scan(ctx, set, sortKey)
	if err != nil {
		return err
	}
	if err := s.publish(prev, rows, set, sortKey, newEpoch); err != nil {
		return err
	}
	observability.RecordPass("scan", time.Since(start).Seconds())
	return nil
}

// begin moves a ready session into a pass state. Callers hold passMu.
func (s *Session) begin(next State) (*Snapshot, error) {
	if s.state.CompareAndSwap(int32(StateReady), int32(next)) {
		return s.snap.Load(), nil
	}
	if s.closed.Load() {
		return nil, ErrSessionClosed
	}
	return nil, ErrSessionNotReady
}

// scan evaluates the whole universe and returns the ranked matches.
func (s *Session) scan(ctx context.Context, set *domain.CriteriaSet, sortKey domain.SortKey) ([]Row, error) {
	instruments := s.universe.Instruments()
	rows := make([]Row, 0, len(instruments)/4)

	for i, inst := range instruments {
		if i%scanCheckEvery == 0 {
			if s.closed.Load() {
				return nil, ErrSessionClosed
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		q, err := s.quotes.Get(inst.Symbol)
		if err != nil {
			continue
		}
		if s.engine.Matches(q, set) {
			rows = append(rows, Row{Instrument: inst, Quote: q})
		}
	}

	sortRows(rows, sortKey)
	return rows, nil
}

// publish builds the next snapshot from prev and stores it.
// A closed session discards the result.
func (s *Session) publish(prev *Snapshot, rows []Row, set *domain.CriteriaSet, sortKey domain.SortKey, newEpoch bool) error {
	next := &Snapshot{
		Criteria:    set,
		Sort:        sortKey,
		Rows:        rows,
		PublishedAt: s.clock(),
		index:       buildIndex(rows),
	}

	switch {
	case prev == nil:
		next.Version, next.Epoch = 1, 1
	case newEpoch:
		next.Version, next.Epoch = prev.Version+1, prev.Epoch+1
	default:
		next.Epoch = prev.Epoch
		last := prev.history[len(prev.history)-1]
		if sameOrder(last.symbols, rows) {
			next.Version = prev.Version
			next.history = prev.history
		} else {
			next.Version = prev.Version + 1
		}
	}

	if next.history == nil {
		rec := &orderRecord{version: next.Version, epoch: next.Epoch, symbols: next.Symbols()}
		if prev == nil || newEpoch {
			next.history = []*orderRecord{rec}
		} else {
			keep := prev.history
			if len(keep) >= s.historyLimit {
				keep = keep[len(keep)-s.historyLimit+1:]
			}
			history := make([]*orderRecord, 0, len(keep)+1)
			history = append(history, keep...)
			next.history = append(history, rec)
		}
	}

	if s.closed.Load() {
		return ErrSessionClosed
	}
	s.snap.Store(next)
	return nil
}
