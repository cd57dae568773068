package ingestion

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeMessage_Object(t *testing.T) {
	now := time.Now()
	events, err := DecodeMessage([]byte(`{"symbol":"TCS","price":3500.25}`), SourceStream, now)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, SourceStream, events[0].Source)
	assert.Equal(t, now, events[0].ReceivedAt)
	assert.Equal(t, json.Number("3500.25"), events[0].Payload["price"])
}

func TestDecodeMessage_Array(t *testing.T) {
	events, err := DecodeMessage([]byte(`[{"symbol":"TCS"},{"symbol":"INFY"}]`), SourceStream, time.Now())
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "INFY", events[1].Payload["symbol"])

	_, err = DecodeMessage([]byte(`[{"symbol":"TCS"}, 5]`), SourceStream, time.Now())
	assert.ErrorIs(t, err, ErrMalformedQuote)
}

func TestDecodeMessage_FeedsMap(t *testing.T) {
	msg := `{
		"type": "live_feed",
		"currentTs": "1700000000500",
		"feeds": {
			"NSE_EQ|INE467B01029": {"fullFeed": {"marketFF": {"ltpc": {"ltp": 3520, "cp": 3500}}}},
			"NSE_EQ|INE002A01018": {"ltpc": {"ltp": 2950, "ltt": "1700000000400", "cp": 2900}}
		}
	}`
	events, err := DecodeMessage([]byte(msg), SourceStream, time.Now())
	require.NoError(t, err)
	require.Len(t, events, 2)

	// Sorted by key
	assert.Equal(t, "NSE_EQ|INE002A01018", events[0].Payload["instrumentKey"])
	assert.Equal(t, "NSE_EQ|INE467B01029", events[1].Payload["instrumentKey"])
	assert.Equal(t, "1700000000500", events[1].Payload["currentTs"])

	a, _ := newTestAdapter(t)
	q, err := a.Normalize(events[0])
	require.NoError(t, err)
	assert.Equal(t, "RELIANCE", q.Symbol)
	assert.Equal(t, int64(1700000000400), q.Timestamp, "last trade time wins over message time")

	q, err = a.Normalize(events[1])
	require.NoError(t, err)
	assert.Equal(t, "TCS", q.Symbol)
	assert.Equal(t, int64(1700000000500), q.Timestamp)
}

func TestDecodeMessage_Invalid(t *testing.T) {
	for _, msg := range []string{`not json`, `42`, `"text"`, `{"feeds": {"X": 1}}`} {
		_, err := DecodeMessage([]byte(msg), SourceStream, time.Now())
		assert.ErrorIs(t, err, ErrMalformedQuote, msg)
	}
}
