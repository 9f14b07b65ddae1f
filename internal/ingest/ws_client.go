// Package ingest maintains the WebSocket stream of on-chain activity and
// feeds observed signatures into the parsing pipeline.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"solana-autolink/internal/domain"
	"solana-autolink/internal/observability"
	"solana-autolink/internal/retry"
)

// WSConfig configures WebSocket client behavior.
type WSConfig struct {
	// Reconnect is the backoff schedule for reconnect attempts.
	Reconnect retry.Policy
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// SubscribeTimeout bounds the wait for a subscription confirmation.
	SubscribeTimeout time.Duration
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		Reconnect:        retry.DefaultReconnectPolicy(),
		PingInterval:     30 * time.Second,
		ReadTimeout:      60 * time.Second,
		WriteTimeout:     10 * time.Second,
		SubscribeTimeout: 30 * time.Second,
	}
}

// SubSpec identifies one node subscription.
type SubSpec struct {
	Kind    domain.SubscriptionType
	Address string // observed wallet address
	// Signature is set for signature subscriptions only.
	Signature string
}

// Frame is one notification delivered on the shared frame channel.
// Account frames carry no signature; the consumer resolves recent
// signatures for the address itself.
type Frame struct {
	Spec     SubSpec
	RemoteID int64
	// Signature is set for logs and signature frames.
	Signature string
	Slot      int64
	// Err is non-nil when the node reports the transaction failed.
	Err any
}

// frameBuffer absorbs notification bursts; sends beyond it are dropped
// and counted rather than blocking the read loop.
const frameBuffer = 10000

// subscribeMethods maps a kind to its node method pair.
var subscribeMethods = map[domain.SubscriptionType][2]string{
	domain.SubAccount:   {"accountSubscribe", "accountUnsubscribe"},
	domain.SubLogs:      {"logsSubscribe", "logsUnsubscribe"},
	domain.SubSignature: {"signatureSubscribe", "signatureUnsubscribe"},
}

// WSClient is a JSON-RPC subscription client over one WebSocket
// connection. It transparently reconnects and resubscribes; consumers
// observe a single frame channel that survives reconnects.
type WSClient struct {
	endpoint string
	config   WSConfig
	logger   *log.Logger

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	// activeSubs maps remote subscription id to its spec for dispatch
	// and for resubscription after reconnect.
	activeSubs   map[int64]SubSpec
	activeSubsMu sync.Mutex

	// pendingSubs maps request id to channel waiting for the remote id.
	pendingSubs   map[uint64]chan int64
	pendingSubsMu sync.Mutex

	frames chan Frame

	// onResubscribed reports remote id changes after a reconnect so the
	// durable subscription rows can follow.
	onResubscribed func(spec SubSpec, oldID, newID int64)
	// onDown fires once when the reconnect schedule is exhausted.
	onDown func(err error)

	done chan struct{}
	wg   sync.WaitGroup

	reconnecting atomic.Bool
}

// WSOption configures optional WSClient callbacks.
type WSOption func(*WSClient)

// WithResubscribeHook registers a callback for remote id changes.
func WithResubscribeHook(fn func(spec SubSpec, oldID, newID int64)) WSOption {
	return func(c *WSClient) { c.onResubscribed = fn }
}

// WithDownHook registers a callback for a permanently lost connection.
func WithDownHook(fn func(err error)) WSOption {
	return func(c *WSClient) { c.onDown = fn }
}

// WithWSLogger sets the client logger.
func WithWSLogger(logger *log.Logger) WSOption {
	return func(c *WSClient) { c.logger = logger }
}

// NewWSClient creates a new WebSocket client and connects to the endpoint.
func NewWSClient(ctx context.Context, endpoint string, config *WSConfig, opts ...WSOption) (*WSClient, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}

	c := &WSClient{
		endpoint:    endpoint,
		config:      cfg,
		logger:      log.Default(),
		activeSubs:  make(map[int64]SubSpec),
		pendingSubs: make(map[uint64]chan int64),
		frames:      make(chan Frame, frameBuffer),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	observability.SetConnected(true)

	c.wg.Add(1)
	go c.readLoop()

	c.wg.Add(1)
	go c.pingLoop()

	return c, nil
}

// Frames returns the shared notification channel. It is closed on Close.
func (c *WSClient) Frames() <-chan Frame {
	return c.frames
}

// connect establishes the WebSocket connection.
func (c *WSClient) connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	// Pongs extend the read deadline so a quiet but healthy stream does
	// not trip the read timeout between notifications.
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	})

	c.conn = conn
	return nil
}

// subscribeParams builds the method-specific parameter list.
func subscribeParams(spec SubSpec) []any {
	switch spec.Kind {
	case domain.SubAccount:
		return []any{
			spec.Address,
			map[string]string{"encoding": "base64", "commitment": "confirmed"},
		}
	case domain.SubLogs:
		return []any{
			map[string]any{"mentions": []string{spec.Address}},
			map[string]string{"commitment": "confirmed"},
		}
	case domain.SubSignature:
		return []any{
			spec.Signature,
			map[string]string{"commitment": "confirmed"},
		}
	}
	return nil
}

// Subscribe opens a node subscription and returns the remote id.
func (c *WSClient) Subscribe(ctx context.Context, spec SubSpec) (int64, error) {
	if !spec.Kind.Valid() {
		return 0, fmt.Errorf("unknown subscription type %q", spec.Kind)
	}

	subID, err := c.subscribeInternal(ctx, spec)
	if err != nil {
		return 0, err
	}

	c.activeSubsMu.Lock()
	c.activeSubs[subID] = spec
	c.activeSubsMu.Unlock()
	observability.DefaultMetrics.SubscriptionsOpen.WithLabelValues(string(spec.Kind)).Inc()

	return subID, nil
}

// subscribeInternal performs the subscribe handshake without recording the
// spec, so resubscription can reuse it.
func (c *WSClient) subscribeInternal(ctx context.Context, spec SubSpec) (int64, error) {
	if c.closed.Load() {
		return 0, fmt.Errorf("client closed")
	}

	reqID := c.requestID.Add(1)
	req := wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  subscribeMethods[spec.Kind][0],
		Params:  subscribeParams(spec),
	}

	confirmCh := make(chan int64, 1)
	c.pendingSubsMu.Lock()
	c.pendingSubs[reqID] = confirmCh
	c.pendingSubsMu.Unlock()

	dropPending := func() {
		c.pendingSubsMu.Lock()
		delete(c.pendingSubs, reqID)
		c.pendingSubsMu.Unlock()
	}

	if err := c.writeJSON(req); err != nil {
		dropPending()
		return 0, fmt.Errorf("write subscribe: %w", err)
	}

	select {
	case subID := <-confirmCh:
		return subID, nil
	case <-time.After(c.config.SubscribeTimeout):
		dropPending()
		return 0, fmt.Errorf("subscription timeout after %s", c.config.SubscribeTimeout)
	case <-c.done:
		return 0, fmt.Errorf("client closed")
	case <-ctx.Done():
		dropPending()
		return 0, ctx.Err()
	}
}

// Unsubscribe closes a node subscription. Fire and forget: the node's
// acknowledgement is not awaited.
func (c *WSClient) Unsubscribe(remoteID int64) error {
	c.activeSubsMu.Lock()
	spec, ok := c.activeSubs[remoteID]
	if ok {
		delete(c.activeSubs, remoteID)
	}
	c.activeSubsMu.Unlock()
	if !ok {
		return fmt.Errorf("unknown subscription id %d", remoteID)
	}
	observability.DefaultMetrics.SubscriptionsOpen.WithLabelValues(string(spec.Kind)).Dec()

	req := wsRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  subscribeMethods[spec.Kind][1],
		Params:  []any{remoteID},
	}
	if err := c.writeJSON(req); err != nil {
		return fmt.Errorf("write unsubscribe: %w", err)
	}
	return nil
}

// writeJSON writes one frame under the connection lock.
func (c *WSClient) writeJSON(v any) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	return c.conn.WriteJSON(v)
}

// Close closes the WebSocket connection and the frame channel.
func (c *WSClient) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.pendingSubsMu.Lock()
	for id, ch := range c.pendingSubs {
		close(ch)
		delete(c.pendingSubs, id)
	}
	c.pendingSubsMu.Unlock()

	c.wg.Wait()
	close(c.frames)
	observability.SetConnected(false)
	return nil
}

// readLoop reads messages from the WebSocket and dispatches them. On read
// errors it kicks off a single-flight reconnect and keeps polling.
func (c *WSClient) readLoop() {
	defer c.wg.Done()

	for !c.closed.Load() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}

			observability.SetConnected(false)
			if !c.reconnecting.Swap(true) {
				go c.reconnect()
			}

			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		c.handleMessage(message)
	}
}

// reconnect walks the backoff schedule until a connection sticks or the
// schedule is exhausted. Exhaustion is surfaced through the down hook.
func (c *WSClient) reconnect() {
	defer c.reconnecting.Store(false)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	for attempt := 1; ; attempt++ {
		if c.closed.Load() {
			return
		}
		if c.config.Reconnect.Exhausted(attempt) {
			err := fmt.Errorf("reconnect failed after %d attempts", attempt-1)
			c.logger.Printf("Stream connection lost for good: %v", err)
			if c.onDown != nil {
				c.onDown(err)
			}
			return
		}

		select {
		case <-c.done:
			return
		case <-time.After(c.config.Reconnect.Delay(attempt)):
		}

		observability.RecordReconnect()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := c.connect(ctx)
		cancel()
		if err != nil {
			c.logger.Printf("Reconnect attempt %d failed: %v", attempt, err)
			continue
		}

		observability.SetConnected(true)
		c.resubscribeAll()
		return
	}
}

// resubscribeAll re-opens every active subscription on the new connection
// and reports the id changes.
func (c *WSClient) resubscribeAll() {
	c.activeSubsMu.Lock()
	subs := make(map[int64]SubSpec, len(c.activeSubs))
	for id, spec := range c.activeSubs {
		subs[id] = spec
	}
	c.activeSubsMu.Unlock()

	for oldID, spec := range subs {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		newID, err := c.subscribeInternal(ctx, spec)
		cancel()
		if err != nil {
			c.logger.Printf("Resubscribe %s %s failed: %v", spec.Kind, spec.Address, err)
			continue
		}

		c.activeSubsMu.Lock()
		delete(c.activeSubs, oldID)
		c.activeSubs[newID] = spec
		c.activeSubsMu.Unlock()

		if c.onResubscribed != nil {
			c.onResubscribed(spec, oldID, newID)
		}
	}
}

// handleMessage processes one incoming WebSocket message.
func (c *WSClient) handleMessage(message []byte) {
	var resp wsSubscribeResponse
	if err := json.Unmarshal(message, &resp); err == nil && resp.Result > 0 {
		c.handleSubscribeResponse(&resp)
		return
	}

	var notif wsNotification
	if err := json.Unmarshal(message, &notif); err == nil && notif.Params != nil {
		switch notif.Method {
		case "accountNotification", "logsNotification", "signatureNotification":
			c.handleNotification(&notif)
		}
		return
	}

	var errResp struct {
		ID    uint64 `json:"id"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(message, &errResp); err == nil && errResp.Error != nil {
		c.logger.Printf("Stream error response: code=%d msg=%s", errResp.Error.Code, errResp.Error.Message)
	}
}

// handleSubscribeResponse resolves the pending subscribe waiting on the
// request id.
func (c *WSClient) handleSubscribeResponse(resp *wsSubscribeResponse) {
	c.pendingSubsMu.Lock()
	ch, ok := c.pendingSubs[resp.ID]
	if ok {
		delete(c.pendingSubs, resp.ID)
	}
	c.pendingSubsMu.Unlock()

	if ok {
		select {
		case ch <- resp.Result:
		default:
		}
	}
}

// handleNotification converts a node notification into a Frame.
func (c *WSClient) handleNotification(notif *wsNotification) {
	remoteID := notif.Params.Subscription

	c.activeSubsMu.Lock()
	spec, ok := c.activeSubs[remoteID]
	if ok && spec.Kind == domain.SubSignature {
		// signatureSubscribe fires once and is retired by the node.
		delete(c.activeSubs, remoteID)
		observability.DefaultMetrics.SubscriptionsOpen.WithLabelValues(string(spec.Kind)).Dec()
	}
	c.activeSubsMu.Unlock()
	if !ok {
		return
	}

	frame := Frame{
		Spec:     spec,
		RemoteID: remoteID,
	}
	if notif.Params.Result.Context != nil {
		frame.Slot = notif.Params.Result.Context.Slot
	}
	switch spec.Kind {
	case domain.SubLogs:
		frame.Signature = notif.Params.Result.Value.Signature
		frame.Err = notif.Params.Result.Value.Err
	case domain.SubSignature:
		frame.Signature = spec.Signature
		frame.Err = notif.Params.Result.Value.Err
	}

	observability.RecordFrame(string(spec.Kind))
	select {
	case c.frames <- frame:
	default:
		// Consumer is behind and the buffer is full.
		observability.RecordFrameDropped()
	}
}

// pingLoop sends periodic ping frames to keep the connection alive.
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
			if c.conn != nil {
				c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
				// A failed ping surfaces as a read error; the reader
				// owns reconnects.
				c.conn.WriteMessage(websocket.PingMessage, nil)
			}
			c.connMu.Unlock()
		}
	}
}

// WebSocket message types

type wsRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

type wsSubscribeResponse struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Result  int64  `json:"result"` // remote subscription id
}

type wsNotification struct {
	JSONRPC string                `json:"jsonrpc"`
	Method  string                `json:"method"`
	Params  *wsNotificationParams `json:"params"`
}

type wsNotificationParams struct {
	Subscription int64                `json:"subscription"`
	Result       wsNotificationResult `json:"result"`
}

type wsNotificationResult struct {
	Context *wsContext          `json:"context"`
	Value   wsNotificationValue `json:"value"`
}

type wsContext struct {
	Slot int64 `json:"slot"`
}

// wsNotificationValue is the union of the value shapes the three
// notification kinds produce; unused fields stay zero.
type wsNotificationValue struct {
	Signature string   `json:"signature"`
	Logs      []string `json:"logs"`
	Err       any      `json:"err"`
	Lamports  uint64   `json:"lamports"`
}
