package ingest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"solana-autolink/internal/domain"
	"solana-autolink/internal/retry"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

// fastWSConfig shrinks the reconnect schedule to milliseconds so reconnect
// paths finish inside test timeouts.
func fastWSConfig(maxAttempts int) *WSConfig {
	return &WSConfig{
		Reconnect: retry.Policy{
			MaxAttempts: maxAttempts,
			BaseDelay:   5 * time.Millisecond,
			Multiplier:  1.0,
			MaxDelay:    5 * time.Millisecond,
		},
		PingInterval:     time.Hour,
		ReadTimeout:      2 * time.Second,
		WriteTimeout:     time.Second,
		SubscribeTimeout: 2 * time.Second,
	}
}

func TestWSClient_Connect(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	client, err := NewWSClient(context.Background(), wsURL(server), nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	if client.closed.Load() {
		t.Error("client should not be closed")
	}
}

func TestWSClient_SubscribeLogs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
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

		var req wsRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			t.Errorf("unmarshal request: %v", err)
			return
		}
		if req.Method != "logsSubscribe" {
			t.Errorf("method = %s, want logsSubscribe", req.Method)
		}

		resp := wsSubscribeResponse{JSONRPC: "2.0", ID: req.ID, Result: 12345}
		if err := c.WriteJSON(resp); err != nil {
			return
		}

		time.Sleep(50 * time.Millisecond)
		notif := wsNotification{
			JSONRPC: "2.0",
			Method:  "logsNotification",
			Params: &wsNotificationParams{
				Subscription: 12345,
				Result: wsNotificationResult{
					Context: &wsContext{Slot: 100},
					Value:   wsNotificationValue{Signature: "testsig"},
				},
			},
		}
		if err := c.WriteJSON(notif); err != nil {
			return
		}

		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	client, err := NewWSClient(context.Background(), wsURL(server), nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	spec := SubSpec{Kind: domain.SubLogs, Address: "WalletX"}
	subID, err := client.Subscribe(context.Background(), spec)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if subID != 12345 {
		t.Errorf("subID = %d, want 12345", subID)
	}

	select {
	case frame := <-client.Frames():
		if frame.Signature != "testsig" {
			t.Errorf("signature = %q, want testsig", frame.Signature)
		}
		if frame.Slot != 100 {
			t.Errorf("slot = %d, want 100", frame.Slot)
		}
		if frame.Spec.Address != "WalletX" {
			t.Errorf("address = %q, want WalletX", frame.Spec.Address)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
	}
}

func TestWSClient_SignatureFrameCarriesTarget(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()

		_, msg, err := c.ReadMessage()
		if err != nil {
			return
		}
		var req wsRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			return
		}
		if req.Method != "signatureSubscribe" {
			t.Errorf("method = %s, want signatureSubscribe", req.Method)
		}
		c.WriteJSON(wsSubscribeResponse{JSONRPC: "2.0", ID: req.ID, Result: 7})

		time.Sleep(50 * time.Millisecond)
		c.WriteJSON(wsNotification{
			JSONRPC: "2.0",
			Method:  "signatureNotification",
			Params: &wsNotificationParams{
				Subscription: 7,
				Result: wsNotificationResult{
					Context: &wsContext{Slot: 42},
					Value:   wsNotificationValue{Err: nil},
				},
			},
		})

		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	client, err := NewWSClient(context.Background(), wsURL(server), nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	spec := SubSpec{Kind: domain.SubSignature, Address: "WalletX", Signature: "targetsig"}
	if _, err := client.Subscribe(context.Background(), spec); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	select {
	case frame := <-client.Frames():
		// The notification carries no signature; the frame gets it from
		// the subscription spec.
		if frame.Signature != "targetsig" {
			t.Errorf("signature = %q, want targetsig", frame.Signature)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
	}

	// signatureSubscribe is one-shot; the sub must be retired.
	client.activeSubsMu.Lock()
	n := len(client.activeSubs)
	client.activeSubsMu.Unlock()
	if n != 0 {
		t.Errorf("active subs = %d, want 0 after one-shot fire", n)
	}
}

func TestWSClient_ReconnectResubscribes(t *testing.T) {
	var conns atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := conns.Add(1)
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				return
			}
			var req wsRequest
			if err := json.Unmarshal(msg, &req); err != nil {
				return
			}
			if err := c.WriteJSON(wsSubscribeResponse{JSONRPC: "2.0", ID: req.ID, Result: n * 100}); err != nil {
				return
			}
			if n == 1 {
				// Drop the first connection once its subscription is
				// confirmed to force a reconnect.
				time.Sleep(50 * time.Millisecond)
				return
			}
		}
	}))
	defer server.Close()

	type idChange struct {
		spec  SubSpec
		oldID int64
		newID int64
	}
	changes := make(chan idChange, 1)

	client, err := NewWSClient(context.Background(), wsURL(server), fastWSConfig(5),
		WithResubscribeHook(func(spec SubSpec, oldID, newID int64) {
			changes <- idChange{spec: spec, oldID: oldID, newID: newID}
		}))
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	subID, err := client.Subscribe(context.Background(), SubSpec{Kind: domain.SubLogs, Address: "WalletX"})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if subID != 100 {
		t.Fatalf("subID = %d, want 100", subID)
	}

	select {
	case ch := <-changes:
		if ch.oldID != 100 || ch.newID != 200 {
			t.Errorf("id change = %d -> %d, want 100 -> 200", ch.oldID, ch.newID)
		}
		if ch.spec.Address != "WalletX" {
			t.Errorf("spec address = %q, want WalletX", ch.spec.Address)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for resubscription")
	}

	client.activeSubsMu.Lock()
	_, rebound := client.activeSubs[200]
	client.activeSubsMu.Unlock()
	if !rebound {
		t.Error("subscription not rebound to the new remote id")
	}
}

func TestWSClient_ReconnectExhaustionFatal(t *testing.T) {
	var dials atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if dials.Add(1) > 1 {
			// Every dial after the first is refused.
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c.Close()
	}))
	defer server.Close()

	var downs atomic.Int64
	downCh := make(chan error, 1)
	client, err := NewWSClient(context.Background(), wsURL(server), fastWSConfig(2),
		WithDownHook(func(err error) {
			downs.Add(1)
			select {
			case downCh <- err:
			default:
			}
		}))
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	select {
	case err := <-downCh:
		if err == nil {
			t.Fatal("down hook fired with nil error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the down hook")
	}

	// The schedule allows two reconnect attempts after the initial dial.
	time.Sleep(100 * time.Millisecond)
	if n := dials.Load(); n != 3 {
		t.Errorf("dials = %d, want 3 (no dial past the attempt budget)", n)
	}
	if n := downs.Load(); n != 1 {
		t.Errorf("down hook fired %d times, want once", n)
	}
}

func TestWSClient_QuietStreamStaysConnected(t *testing.T) {
	var dials atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dials.Add(1)
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()

		// The server read loop answers client pings with pongs through
		// the default ping handler.
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	config := fastWSConfig(5)
	config.PingInterval = 50 * time.Millisecond
	config.ReadTimeout = 200 * time.Millisecond

	client, err := NewWSClient(context.Background(), wsURL(server), config)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	// No notifications arrive for several read timeouts; the pong
	// responses must keep the connection open.
	time.Sleep(700 * time.Millisecond)
	if n := dials.Load(); n != 1 {
		t.Errorf("dials = %d, want 1 (quiet connection must not reconnect)", n)
	}
}

func TestWSClient_SubscribeUnknownKind(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	client, err := NewWSClient(context.Background(), wsURL(server), nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	if _, err := client.Subscribe(context.Background(), SubSpec{Kind: "bogus"}); err == nil {
		t.Error("subscribe with unknown kind succeeded, want error")
	}
}

func TestWSClient_CloseIsIdempotent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	client, err := NewWSClient(context.Background(), wsURL(server), nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}

	if err := client.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	if _, ok := <-client.Frames(); ok {
		t.Error("frame channel still open after Close")
	}
}
