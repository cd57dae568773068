package ingestion

import (
	"context"
	"fmt"
	"log"
	"time"

	"quote-screener/internal/feed"
	"quote-screener/internal/observability"
)

// WSStreamSource adapts a push feed into raw events and connection events.
type WSStreamSource struct {
	stream feed.Stream
	keys   []string
	logger *log.Logger
}

// NewWSStreamSource creates a stream source subscribing to instrumentKeys.
func NewWSStreamSource(stream feed.Stream, instrumentKeys []string, logger *log.Logger) *WSStreamSource {
	if logger == nil {
		logger = log.Default()
	}
	return &WSStreamSource{stream: stream, keys: instrumentKeys, logger: logger}
}

// Subscribe subscribes the instrument keys and starts translating messages.
func (s *WSStreamSource) Subscribe(ctx context.Context) (<-chan RawEvent, <-chan ConnEvent, error) {
	if err := s.stream.Subscribe(ctx, s.keys); err != nil {
		return nil, nil, fmt.Errorf("subscribe %d instruments: %w", len(s.keys), err)
	}

	eventsCh := make(chan RawEvent, 1000)
	connCh := make(chan ConnEvent, 16)

	go func() {
		defer close(eventsCh)
		defer close(connCh)

		messages := s.stream.Messages()
		states := s.stream.States()

		for {
			select {
			case <-ctx.Done():
				return

			case msg, ok := <-messages:
				if !ok {
					return
				}
				events, err := DecodeMessage(msg, SourceStream, time.Now())
				if err != nil {
					observability.RecordIngest(SourceStream, observability.OutcomeMalformed)
					s.logger.Printf("[ingest] dropping message: %v", err)
					continue
				}
				for _, ev := range events {
					select {
					case eventsCh <- ev:
					case <-ctx.Done():
						return
					}
				}

			case st, ok := <-states:
				if !ok {
					states = nil
					continue
				}
				ev := ConnEvent{Connected: st.State == feed.StateConnected, At: st.At, Err: st.Err}
				select {
				case connCh <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return eventsCh, connCh, nil
}

// Compile-time interface check.
var _ StreamSource = (*WSStreamSource)(nil)
