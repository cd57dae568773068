package screening

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"quote-screener/internal/criteria"
	"quote-screener/internal/domain"
	"quote-screener/internal/observability"
)

// DirtySource is the quote store as seen by the manager.
type DirtySource interface {
	QuoteReader
	SnapshotDirty() []string
	Notify() <-chan struct{}
}

// ManagerOptions contains configuration for creating a Manager.
type ManagerOptions struct {
	Universe     Universe
	Quotes       DirtySource
	Engine       *criteria.Engine // Default: criteria.NewEngine()
	HistoryLimit int              // Default: DefaultHistoryLimit
	MaxSessions  int              // 0 means unlimited
	Clock        func() time.Time // Default: time.Now
	Logger       *log.Logger      // Default: log.Default()
}

// ErrTooManySessions is returned by Create when MaxSessions is reached.
var ErrTooManySessions = errors.New("too many screening sessions")

// Manager owns the live sessions and drives their incremental updates.
// It is the only consumer of the store's dirty set.
type Manager struct {
	opts   ManagerOptions
	engine *criteria.Engine
	logger *log.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a manager with no sessions.
func NewManager(opts ManagerOptions) *Manager {
	if opts.Engine == nil {
		opts.Engine = criteria.NewEngine()
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Manager{
		opts:     opts,
		engine:   opts.Engine,
		logger:   opts.Logger,
		sessions: make(map[string]*Session),
	}
}

// Create starts a new session and runs its initial scan.
func (m *Manager) Create(ctx context.Context, set *domain.CriteriaSet, sortKey domain.SortKey) (*Session, error) {
	s := NewSession(SessionOptions{
		ID:           uuid.NewString(),
		Universe:     m.opts.Universe,
		Quotes:       m.opts.Quotes,
		Engine:       m.engine,
		HistoryLimit: m.opts.HistoryLimit,
		Clock:        m.opts.Clock,
		Logger:       m.logger,
	})
	s.onClose = m.remove

	m.mu.Lock()
	if m.opts.MaxSessions > 0 && len(m.sessions) >= m.opts.MaxSessions {
		m.mu.Unlock()
		return nil, ErrTooManySessions
	}
	m.sessions[s.id] = s
	n := len(m.sessions)
	m.mu.Unlock()
	observability.SetActiveSessions(n)

	if err := s.Start(ctx, set, sortKey); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// CreateFromPreset starts a session from a preset template.
func (m *Manager) CreateFromPreset(ctx context.Context, p domain.Preset) (*Session, error) {
	set, sortKey := p.Apply()
	return m.Create(ctx, set, sortKey)
}

// Get returns the session with the given ID.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Close closes and removes the session with the given ID.
func (m *Manager) Close(id string) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	return s.Close()
}

// CloseAll closes every session.
func (m *Manager) CloseAll() {
	for _, s := range m.list() {
		_ = s.Close()
	}
}

// IDs returns the live session IDs in ascending order.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Tick drains the dirty set and applies it to every ready session.
// Returns the number of dirty symbols processed.
func (m *Manager) Tick() int {
	dirty := m.opts.Quotes.SnapshotDirty()
	if len(dirty) == 0 {
		return 0
	}
	observability.RecordDirtyBatch(len(dirty))

	for _, s := range m.list() {
		if _, err := s.Update(dirty); err != nil {
			if errors.Is(err, ErrSessionClosed) || errors.Is(err, ErrSessionNotReady) {
				continue
			}
			m.logger.Printf("[screening] session %s update failed: %v", s.id, err)
		}
	}
	return len(dirty)
}

// Run applies dirty batches whenever the store signals new quotes,
// until ctx is cancelled. All sessions are closed on return.
func (m *Manager) Run(ctx context.Context) error {
	defer m.CloseAll()

	notify := m.opts.Quotes.Notify()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-notify:
			m.Tick()
		}
	}
}

func (m *Manager) list() []*Session {
	m.mu.RLock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	m.mu.RUnlock()
	return out
}

func (m *Manager) remove(s *Session) {
	m.mu.Lock()
	delete(m.sessions, s.id)
	n := len(m.sessions)
	m.mu.Unlock()
	observability.SetActiveSessions(n)
}
