package solana

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"circuit-vaults-service/internal/observability"
)

// WSConfig configures WebSocket client behavior.
type WSConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// AccountUpdate is an immutable snapshot of an account published whenever the
// on-chain account changes. Consumers receive values over a channel and keep
// only the latest; nothing here is shared or mutated after publication.
type AccountUpdate struct {
	Address string
	Slot    int64
	Data    []byte
}

// WSClient subscribes to account changes via accountSubscribe and publishes
// AccountUpdate values to per-address channels.
type WSClient struct {
	endpoint string
	config   WSConfig

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	// subs maps subscription ID to the publication channel.
	subs   map[int64]chan AccountUpdate
	subsMu sync.RWMutex

	// addresses maps subscription ID to account address, kept for
	// resubscription after reconnect.
	addresses   map[int64]string
	addressesMu sync.RWMutex

	// pendingSubs maps request ID to channel waiting for subscription ID.
	pendingSubs   map[uint64]chan int64
	pendingSubsMu sync.Mutex

	done chan struct{}
	wg   sync.WaitGroup
}

// NewWSClient creates a new WebSocket client and connects to the endpoint.
func NewWSClient(ctx context.Context, endpoint string, config *WSConfig) (*WSClient, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}

	c := &WSClient{
		endpoint:    endpoint,
		config:      cfg,
		subs:        make(map[int64]chan AccountUpdate),
		addresses:   make(map[int64]string),
		pendingSubs: make(map[uint64]chan int64),
		done:        make(chan struct{}),
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	c.wg.Add(2)
	go c.readLoop()
	go c.pingLoop()

	return c, nil
}

// connect establishes the WebSocket connection.
func (c *WSClient) connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	c.conn = conn
	return nil
}

// SubscribeAccount subscribes to change notifications for one account. The
// returned channel carries immutable update snapshots; it is closed when the
// client shuts down. Slow consumers drop intermediate updates rather than
// block the read loop.
func (c *WSClient) SubscribeAccount(ctx context.Context, address string) (<-chan AccountUpdate, error) {
	if c.closed.Load() {
		return nil, fmt.Errorf("client closed")
	}

	subID, err := c.sendSubscribe(ctx, address)
	if err != nil {
		return nil, err
	}

	ch := make(chan AccountUpdate, 1)

	c.subsMu.Lock()
	c.subs[subID] = ch
	c.subsMu.Unlock()

	c.addressesMu.Lock()
	c.addresses[subID] = address
	c.addressesMu.Unlock()

	return ch, nil
}

func (c *WSClient) sendSubscribe(ctx context.Context, address string) (int64, error) {
	reqID := c.requestID.Add(1)

	wait := make(chan int64, 1)
	c.pendingSubsMu.Lock()
	c.pendingSubs[reqID] = wait
	c.pendingSubsMu.Unlock()

	defer func() {
		c.pendingSubsMu.Lock()
		delete(c.pendingSubs, reqID)
		c.pendingSubsMu.Unlock()
	}()

	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "accountSubscribe",
		Params: []interface{}{
			address,
			map[string]interface{}{"encoding": "base64", "commitment": "confirmed"},
		},
	}

	if err := c.writeJSON(req); err != nil {
		return 0, fmt.Errorf("send accountSubscribe: %w", err)
	}

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case subID := <-wait:
		return subID, nil
	case <-c.done:
		return 0, fmt.Errorf("client closed")
	}
}

func (c *WSClient) writeJSON(v interface{}) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	return c.conn.WriteJSON(v)
}

// wsMessage is either a subscription confirmation or a notification.
type wsMessage struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Method string          `json:"method"`
	Params *struct {
		Subscription int64 `json:"subscription"`
		Result       struct {
			Context struct {
				Slot int64 `json:"slot"`
			} `json:"context"`
			Value struct {
				Data []interface{} `json:"data"`
			} `json:"value"`
		} `json:"result"`
	} `json:"params"`
}

// readLoop reads messages and dispatches them until shutdown, reconnecting
// with exponential backoff on read errors.
func (c *WSClient) readLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.done:
			return
		default:
		}

		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}
			if err := c.reconnect(); err != nil {
				return
			}
			continue
		}

		var msg wsMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}

		switch {
		case msg.ID != 0 && msg.Result != nil:
			var subID int64
			if err := json.Unmarshal(msg.Result, &subID); err != nil {
				continue
			}
			c.pendingSubsMu.Lock()
			if wait, ok := c.pendingSubs[msg.ID]; ok {
				wait <- subID
			}
			c.pendingSubsMu.Unlock()

		case msg.Method == "accountNotification" && msg.Params != nil:
			c.dispatch(msg)
		}
	}
}

func (c *WSClient) dispatch(msg wsMessage) {
	subID := msg.Params.Subscription

	c.addressesMu.RLock()
	address := c.addresses[subID]
	c.addressesMu.RUnlock()

	data := msg.Params.Result.Value.Data
	if len(data) < 1 {
		return
	}
	payload, ok := data[0].(string)
	if !ok {
		return
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return
	}

	update := AccountUpdate{
		Address: address,
		Slot:    msg.Params.Result.Context.Slot,
		Data:    raw,
	}
	observability.DefaultMetrics.AccountUpdates.Inc()

	c.subsMu.RLock()
	ch, ok := c.subs[subID]
	c.subsMu.RUnlock()
	if !ok {
		return
	}

	// Latest-value semantics: drop the stale buffered update if the
	// consumer has not drained it yet.
	select {
	case ch <- update:
	default:
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- update:
		default:
		}
	}
}

// reconnect re-establishes the connection and resubscribes all accounts.
func (c *WSClient) reconnect() error {
	delay := c.config.ReconnectDelay

	for {
		select {
		case <-c.done:
			return fmt.Errorf("client closed")
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := c.connect(ctx)
		cancel()
		if err == nil {
			observability.DefaultMetrics.WSReconnects.Inc()
			return c.resubscribeAll()
		}

		delay *= 2
		if delay > c.config.MaxReconnectDelay {
			delay = c.config.MaxReconnectDelay
		}
	}
}

// resubscribeAll re-sends accountSubscribe for every tracked address and
// rebinds publication channels to the new subscription IDs.
func (c *WSClient) resubscribeAll() error {
	c.addressesMu.Lock()
	old := c.addresses
	c.addresses = make(map[int64]string)
	c.addressesMu.Unlock()

	c.subsMu.Lock()
	oldSubs := c.subs
	c.subs = make(map[int64]chan AccountUpdate)
	c.subsMu.Unlock()

	channels := make(map[string]chan AccountUpdate)
	for subID, address := range old {
		if ch, ok := oldSubs[subID]; ok {
			channels[address] = ch
		}
	}

	for address, ch := range channels {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		subID, err := c.sendSubscribe(ctx, address)
		cancel()
		if err != nil {
			return fmt.Errorf("resubscribe %s: %w", address, err)
		}

		c.subsMu.Lock()
		c.subs[subID] = ch
		c.subsMu.Unlock()

		c.addressesMu.Lock()
		c.addresses[subID] = address
		c.addressesMu.Unlock()
	}

	return nil
}

// pingLoop sends periodic ping frames until shutdown.
func (c *WSClient) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			c.conn.WriteMessage(websocket.PingMessage, nil)
			c.connMu.Unlock()
		}
	}
}

// Close shuts down the client and closes all subscription channels.
func (c *WSClient) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(c.done)

	c.connMu.Lock()
	err := c.conn.Close()
	c.connMu.Unlock()

	c.wg.Wait()

	c.subsMu.Lock()
	for _, ch := range c.subs {
		close(ch)
	}
	c.subs = make(map[int64]chan AccountUpdate)
	c.subsMu.Unlock()

	return err
}
