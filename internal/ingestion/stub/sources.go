// Package stub provides controllable feed sources for tests and demos.
package stub

import (
	"context"
	"errors"
	"sync"
	"time"

	"quote-screener/internal/ingestion"
)

// StubPollSource returns queued batches in order, then empty batches.
// Implements ingestion.PollSource interface.
type StubPollSource struct {
	mu      sync.Mutex
	batches [][]ingestion.RawEvent
	err     error
	calls   int
}

// NewStubPollSource creates a poll source that replays the given batches.
func NewStubPollSource(batches ...[]ingestion.RawEvent) *StubPollSource {
	return &StubPollSource{batches: batches}
}

// Push queues another batch.
func (s *StubPollSource) Push(batch []ingestion.RawEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, batch)
}

// FailWith makes subsequent fetches return err (nil clears it).
func (s *StubPollSource) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Calls returns the number of Fetch calls so far.
func (s *StubPollSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Fetch returns the next queued batch.
func (s *StubPollSource) Fetch(ctx context.Context) ([]ingestion.RawEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.err != nil {
		return nil, s.err
	}
	if len(s.batches) == 0 {
		return nil, nil
	}
	batch := s.batches[0]
	s.batches = s.batches[1:]
	return batch, nil
}

// StubStreamSource is a push source driven by the test.
// Implements ingestion.StreamSource interface.
type StubStreamSource struct {
	events chan ingestion.RawEvent
	conn   chan ingestion.ConnEvent
	once   sync.Once
}

// NewStubStreamSource creates a stream source with buffered channels.
func NewStubStreamSource() *StubStreamSource {
	return &StubStreamSource{
		events: make(chan ingestion.RawEvent, 100),
		conn:   make(chan ingestion.ConnEvent, 10),
	}
}

// Subscribe returns the source channels.
func (s *StubStreamSource) Subscribe(_ context.Context) (<-chan ingestion.RawEvent, <-chan ingestion.ConnEvent, error) {
	return s.events, s.conn, nil
}

// Send delivers one payload as a stream event.
func (s *StubStreamSource) Send(payload map[string]any) {
	s.events <- ingestion.RawEvent{
		Source:     ingestion.SourceStream,
		Payload:    payload,
		ReceivedAt: time.Now(),
	}
}

// Connect reports a (re)connect.
func (s *StubStreamSource) Connect() {
	s.conn <- ingestion.ConnEvent{Connected: true, At: time.Now()}
}

// Disconnect reports a connection loss.
func (s *StubStreamSource) Disconnect() {
	s.conn <- ingestion.ConnEvent{At: time.Now(), Err: errors.New("connection reset")}
}

// Close closes the event channel, ending the runner's stream.
func (s *StubStreamSource) Close() {
	s.once.Do(func() { close(s.events) })
}
