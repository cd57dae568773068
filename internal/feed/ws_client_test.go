package feed

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func testConfig() *ClientConfig {
	cfg := DefaultClientConfig()
	cfg.ReconnectDelay = 20 * time.Millisecond
	cfg.MaxReconnectDelay = 100 * time.Millisecond
	cfg.PingInterval = 0
	cfg.Token = "secret"
	cfg.Logger = log.New(io.Discard, "", 0)
	return &cfg
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func expectState(t *testing.T, ch <-chan StateChange, want ConnState) StateChange {
	t.Helper()
	select {
	case s := <-ch:
		if s.State != want {
			t.Fatalf("expected state %s, got %s", want, s.State)
		}
		return s
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for state %s", want)
	}
	return StateChange{}
}

func TestClient_SubscribeSendsRequestWithBearerToken(t *testing.T) {
	requests := make(chan subscribeRequest, 1)
	authHeaders := make(chan string, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeaders <- r.Header.Get("Authorization")
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer c.Close()

		_, msg, err := c.ReadMessage()
		if err != nil {
			return
		}
		var req subscribeRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			t.Errorf("unmarshal request: %v", err)
			return
		}
		requests <- req

		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	ctx := context.Background()
	client, err := Dial(ctx, wsURL(server), testConfig())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	expectState(t, client.States(), StateConnected)

	if err := client.Subscribe(ctx, []string{"NSE_EQ|INE002A01018", "NSE_EQ|INE467B01029"}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if got := <-authHeaders; got != "Bearer secret" {
		t.Errorf("expected bearer header, got %q", got)
	}

	select {
	case req := <-requests:
		if req.Method != "sub" {
			t.Errorf("expected method sub, got %s", req.Method)
		}
		if req.Data.Mode != ModeFull {
			t.Errorf("expected mode full, got %s", req.Data.Mode)
		}
		if len(req.Data.InstrumentKeys) != 2 {
			t.Errorf("expected 2 keys, got %d", len(req.Data.InstrumentKeys))
		}
		if req.GUID == "" {
			t.Error("expected guid")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for subscribe request")
	}
}

func TestClient_UnsubscribeDropsKey(t *testing.T) {
	requests := make(chan subscribeRequest, 4)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		for {
			var req subscribeRequest
			if err := c.ReadJSON(&req); err != nil {
				return
			}
			requests <- req
		}
	}))
	defer server.Close()

	ctx := context.Background()
	client, err := Dial(ctx, wsURL(server), testConfig())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()
	expectState(t, client.States(), StateConnected)

	if err := client.Subscribe(ctx, []string{"A", "B"}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := client.Unsubscribe(ctx, []string{"A"}); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}

	for _, want := range []string{"sub", "unsub"} {
		select {
		case req := <-requests:
			if req.Method != want {
				t.Errorf("expected method %s, got %s", want, req.Method)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout waiting for %s request", want)
		}
	}

	client.keysMu.Lock()
	_, hasA := client.keys["A"]
	_, hasB := client.keys["B"]
	client.keysMu.Unlock()
	if hasA || !hasB {
		t.Errorf("expected only B subscribed, got A=%v B=%v", hasA, hasB)
	}
}

func TestClient_DeliversMessages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer c.Close()

		c.WriteMessage(websocket.TextMessage, []byte(`{"symbol":"TCS","price":3500}`))
		c.WriteMessage(websocket.TextMessage, []byte(`{"symbol":"INFY","price":1500}`))

		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	client, err := Dial(context.Background(), wsURL(server), testConfig())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	for _, want := range []string{"TCS", "INFY"} {
		select {
		case msg := <-client.Messages():
			if !strings.Contains(string(msg), want) {
				t.Errorf("expected message for %s, got %s", want, msg)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout waiting for %s", want)
		}
	}
}

func TestClient_ReconnectsAndResubscribes(t *testing.T) {
	var mu sync.Mutex
	connections := 0
	resubscribed := make(chan subscribeRequest, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer c.Close()

		mu.Lock()
		connections++
		n := connections
		mu.Unlock()

		_, msg, err := c.ReadMessage()
		if err != nil {
			return
		}

		if n == 1 {
			// Drop the first connection right after the subscription
			return
		}

		var req subscribeRequest
		if err := json.Unmarshal(msg, &req); err == nil {
			resubscribed <- req
		}
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	ctx := context.Background()
	client, err := Dial(ctx, wsURL(server), testConfig())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	expectState(t, client.States(), StateConnected)
	if err := client.Subscribe(ctx, []string{"NSE_EQ|INE002A01018"}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	down := expectState(t, client.States(), StateDisconnected)
	if down.Err == nil {
		t.Error("expected disconnect cause")
	}
	expectState(t, client.States(), StateConnected)

	select {
	case req := <-resubscribed:
		if len(req.Data.InstrumentKeys) != 1 || req.Data.InstrumentKeys[0] != "NSE_EQ|INE002A01018" {
			t.Errorf("unexpected resubscribe keys: %v", req.Data.InstrumentKeys)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for resubscribe")
	}
}

func TestClient_CloseIsIdempotent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	client, err := Dial(context.Background(), wsURL(server), testConfig())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	if err := client.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := client.Subscribe(context.Background(), []string{"X"}); err == nil {
		t.Error("expected error after close")
	}

	// Channels are closed after Close
	if _, ok := <-client.Messages(); ok {
		t.Error("expected messages channel closed")
	}
}

func TestDial_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if _, err := Dial(ctx, "ws://127.0.0.1:1", testConfig()); err == nil {
		t.Fatal("expected dial error")
	}
}
