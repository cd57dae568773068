package feed

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ClientConfig configures WebSocket client behavior.
type ClientConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// Token is sent as a bearer Authorization header when non-empty.
	Token string
	// Mode is the subscription mode. Default: ModeFull.
	Mode string
	// Logger for connection events. Default: log.Default().
	Logger *log.Logger
}

// DefaultClientConfig returns default WebSocket configuration.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		Mode:              ModeFull,
	}
}

// Client implements Stream using gorilla/websocket.
// It reconnects with exponential backoff and restores subscriptions
// after every reconnect.
type Client struct {
	endpoint string
	config   ClientConfig
	logger   *log.Logger

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool

	// keys holds subscribed instrument keys for resubscription after reconnect
	keys   map[string]struct{}
	keysMu sync.Mutex

	messages chan []byte
	states   chan StateChange

	// done signals shutdown
	done chan struct{}
	wg   sync.WaitGroup
}

// Dial creates a new client and connects to the endpoint.
func Dial(ctx context.Context, endpoint string, config *ClientConfig) (*Client, error) {
	cfg := DefaultClientConfig()
	if config != nil {
		cfg = *config
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeFull
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	c := &Client{
		endpoint: endpoint,
		config:   cfg,
		logger:   logger,
		keys:     make(map[string]struct{}),
		messages: make(chan []byte, 10000),
		states:   make(chan StateChange, 16),
		done:     make(chan struct{}),
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	c.states <- StateChange{State: StateConnected, At: time.Now()}

	// Start reader goroutine
	c.wg.Add(1)
	go c.readLoop()

	// Start ping goroutine
	if cfg.PingInterval > 0 {
		c.wg.Add(1)
		go c.pingLoop()
	}

	return c, nil
}

// connect establishes WebSocket connection.
func (c *Client) connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	header := http.Header{}
	if c.config.Token != "" {
		header.Set("Authorization", "Bearer "+c.config.Token)
	}
	header.Set("Accept", "*/*")

	conn, _, err := dialer.DialContext(ctx, c.endpoint, header)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	return nil
}

// Subscribe adds instrument keys to the subscription. Keys are remembered
// and re-sent after every reconnect.
func (c *Client) Subscribe(_ context.Context, instrumentKeys []string) error {
	if c.closed.Load() {
		return fmt.Errorf("client closed")
	}
	if len(instrumentKeys) == 0 {
		return nil
	}

	c.keysMu.Lock()
	for _, k := range instrumentKeys {
		c.keys[k] = struct{}{}
	}
	c.keysMu.Unlock()

	return c.send("sub", instrumentKeys)
}

// Unsubscribe removes instrument keys from the subscription.
func (c *Client) Unsubscribe(_ context.Context, instrumentKeys []string) error {
	if c.closed.Load() {
		return fmt.Errorf("client closed")
	}

	c.keysMu.Lock()
	for _, k := range instrumentKeys {
		delete(c.keys, k)
	}
	c.keysMu.Unlock()

	return c.send("unsub", instrumentKeys)
}

// send writes a subscription request on the current connection.
func (c *Client) send(method string, instrumentKeys []string) error {
	req := subscribeRequest{
		GUID:   uuid.NewString(),
		Method: method,
		Data: subscribeData{
			Mode:           c.config.Mode,
			InstrumentKeys: instrumentKeys,
		},
	}

	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("not connected")
	}

	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	if err := c.conn.WriteJSON(req); err != nil {
		return fmt.Errorf("write %s: %w", method, err)
	}
	return nil
}

// Messages returns raw message payloads.
func (c *Client) Messages() <-chan []byte {
	return c.messages
}

// States returns connection state transitions.
func (c *Client) States() <-chan StateChange {
	return c.states
}

// Close closes the WebSocket connection.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil // Already closed
	}

	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.wg.Wait()

	close(c.messages)
	close(c.states)
	return nil
}

// readLoop reads messages and reconnects with exponential backoff on failure.
func (c *Client) readLoop() {
	defer c.wg.Done()

	reconnectDelay := c.config.ReconnectDelay

	for !c.closed.Load() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			if !c.wait(reconnectDelay) {
				return
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			err := c.connect(ctx)
			cancel()
			if err != nil {
				c.logger.Printf("[feed] reconnect failed: %v (next attempt in %s)", err, reconnectDelay)
				reconnectDelay = nextDelay(reconnectDelay, c.config.MaxReconnectDelay)
				continue
			}

			if c.closed.Load() {
				c.connMu.Lock()
				c.conn.Close()
				c.connMu.Unlock()
				return
			}

			reconnectDelay = c.config.ReconnectDelay
			c.logger.Printf("[feed] reconnected to %s", c.endpoint)
			c.emit(StateChange{State: StateConnected, At: time.Now()})
			c.resubscribeAll()
			continue
		}

		if c.config.ReadTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}

			c.connMu.Lock()
			if c.conn == conn {
				c.conn.Close()
				c.conn = nil
			}
			c.connMu.Unlock()

			c.logger.Printf("[feed] connection lost: %v", err)
			c.emit(StateChange{State: StateDisconnected, At: time.Now(), Err: err})
			continue
		}

		// Block until delivered - never drop quotes; buffer absorbs bursts
		select {
		case c.messages <- message:
		case <-c.done:
			return
		}
	}
}

// resubscribeAll re-sends the remembered instrument keys after reconnect.
func (c *Client) resubscribeAll() {
	c.keysMu.Lock()
	keys := make([]string, 0, len(c.keys))
	for k := range c.keys {
		keys = append(keys, k)
	}
	c.keysMu.Unlock()

	if len(keys) == 0 {
		return
	}
	sort.Strings(keys)

	if err := c.send("sub", keys); err != nil {
		// Next read fails and triggers another reconnect
		c.logger.Printf("[feed] resubscribe failed: %v", err)
	}
}

// emit delivers a state change unless the client is closing.
func (c *Client) emit(s StateChange) {
	select {
	case c.states <- s:
	case <-c.done:
	}
}

// wait sleeps for d, returning false if the client closed meanwhile.
func (c *Client) wait(d time.Duration) bool {
	select {
	case <-c.done:
		return false
	case <-time.After(d):
		return true
	}
}

func nextDelay(d, max time.Duration) time.Duration {
	d *= 2
	if d > max {
		d = max
	}
	return d
}

// pingLoop sends periodic ping frames to keep connection alive.
func (c *Client) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
				// A dead connection surfaces as a read error in readLoop
				_ = c.conn.WriteMessage(websocket.PingMessage, nil)
			}
			c.connMu.Unlock()
		}
	}
}

// Compile-time interface check.
var _ Stream = (*Client)(nil)
