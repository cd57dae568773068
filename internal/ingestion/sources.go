package ingestion

import (
	"context"
	"time"
)

// Source names used in RawEvent.Source and metrics labels.
const (
	SourcePoll   = "poll"
	SourceStream = "stream"
	SourceSeed   = "seed"
)

// RawEvent is one upstream quote message before normalization.
// Payload holds decoded JSON: strings, float64 or json.Number values, nested maps.
type RawEvent struct {
	Source     string
	Payload    map[string]any
	ReceivedAt time.Time
}

// ConnEvent reports a push-feed connection transition.
type ConnEvent struct {
	Connected bool
	At        time.Time
	Err       error // cause of a disconnect, nil otherwise
}

// PollSource is a pull feed invoked on a fixed interval.
type PollSource interface {
	// Fetch returns the current batch of raw quote events.
	Fetch(ctx context.Context) ([]RawEvent, error)
}

// StreamSource is a push feed delivering one raw event per message.
type StreamSource interface {
	// Subscribe starts delivery. Both channels are closed when ctx is cancelled
	// or the underlying connection is closed for good.
	Subscribe(ctx context.Context) (<-chan RawEvent, <-chan ConnEvent, error)
}
