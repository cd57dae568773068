package ingestion

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// DecodeMessage splits one push-feed message into raw events.
// Accepted shapes: a quote object, an array of quote objects, or
// {"feeds": {instrumentKey: {...}}} where the map key becomes "instrumentKey".
func DecodeMessage(data []byte, source string, receivedAt time.Time) ([]RawEvent, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrMalformedQuote, err)
	}

	event := func(p map[string]any) RawEvent {
		return RawEvent{Source: source, Payload: p, ReceivedAt: receivedAt}
	}

	switch msg := v.(type) {
	case []any:
		events := make([]RawEvent, 0, len(msg))
		for i, item := range msg {
			p, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: element %d is not an object", ErrMalformedQuote, i)
			}
			events = append(events, event(p))
		}
		return events, nil

	case map[string]any:
		feeds, ok := msg["feeds"].(map[string]any)
		if !ok {
			return []RawEvent{event(msg)}, nil
		}

		keys := make([]string, 0, len(feeds))
		for k := range feeds {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		events := make([]RawEvent, 0, len(keys))
		for _, k := range keys {
			p, ok := feeds[k].(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: feed %s is not an object", ErrMalformedQuote, k)
			}
			if _, has := p["instrumentKey"]; !has {
				p["instrumentKey"] = k
			}
			if ts, has := msg["currentTs"]; has {
				if _, set := p["currentTs"]; !set {
					p["currentTs"] = ts
				}
			}
			events = append(events, event(p))
		}
		return events, nil
	}

	return nil, fmt.Errorf("%w: unexpected message type %T", ErrMalformedQuote, v)
}
