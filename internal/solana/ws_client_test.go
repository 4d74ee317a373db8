package solana

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// idleServer accepts a connection and reads until it closes.
func idleServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
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
}

func toWS(url string) string {
	return "ws" + strings.TrimPrefix(url, "http")
}

func TestWSClient_Connect(t *testing.T) {
	server := idleServer(t)
	defer server.Close()

	client, err := NewWSClient(context.Background(), toWS(server.URL), nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	if client.closed.Load() {
		t.Error("client should not be closed")
	}
}

func TestWSClient_SubscribeSignature(t *testing.T) {
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
		if req.Method != "signatureSubscribe" {
			t.Errorf("expected signatureSubscribe, got %s", req.Method)
		}
		if req.Params[0] != "sigABC" {
			t.Errorf("expected signature sigABC, got %v", req.Params[0])
		}

		subID := int64(42)
		c.WriteJSON(wsSubscribeResponse{JSONRPC: "2.0", ID: req.ID, Result: &subID})

		time.Sleep(20 * time.Millisecond)
		c.WriteJSON(map[string]interface{}{
			"jsonrpc": "2.0",
			"method":  "signatureNotification",
			"params": map[string]interface{}{
				"subscription": subID,
				"result": map[string]interface{}{
					"context": map[string]interface{}{"slot": 555},
					"value":   map[string]interface{}{"err": nil},
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

	client, err := NewWSClient(context.Background(), toWS(server.URL), nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ch, err := client.SubscribeSignature(ctx, "sigABC", CommitmentConfirmed)
	if err != nil {
		t.Fatalf("SubscribeSignature: %v", err)
	}

	select {
	case n, ok := <-ch:
		if !ok {
			t.Fatal("channel closed before notification")
		}
		if n.Signature != "sigABC" {
			t.Errorf("expected sigABC, got %s", n.Signature)
		}
		if n.Slot != 555 {
			t.Errorf("expected slot 555, got %d", n.Slot)
		}
		if n.Err != nil {
			t.Errorf("expected no error, got %v", n.Err)
		}
	case <-ctx.Done():
		t.Fatal("timeout waiting for notification")
	}

	// One-shot: the channel is closed after delivery.
	if _, ok := <-ch; ok {
		t.Error("expected channel to be closed after notification")
	}
}

func TestWSClient_UnsubscribeAfterTimedOutConfirm(t *testing.T) {
	unsubscribed := make(chan wsRequest, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
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
				t.Errorf("unmarshal request: %v", err)
				return
			}
			switch req.Method {
			case "signatureSubscribe":
				subID := int64(7)
				c.WriteJSON(wsSubscribeResponse{JSONRPC: "2.0", ID: req.ID, Result: &subID})
			case "signatureUnsubscribe":
				unsubscribed <- req
				c.WriteJSON(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": true})
			}
		}
	}))
	defer server.Close()

	client, err := NewWSClient(context.Background(), toWS(server.URL), nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	rpc := &statusRPC{statuses: []*SignatureStatus{nil}}
	confirmer := NewConfirmer(rpc, client, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := confirmer.Confirm(ctx, "sigLost", CommitmentConfirmed); err != context.DeadlineExceeded {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	client.subsMu.Lock()
	remaining := len(client.subs)
	client.subsMu.Unlock()
	if remaining != 0 {
		t.Errorf("expected no subscriptions after timeout, got %d", remaining)
	}

	select {
	case req := <-unsubscribed:
		if len(req.Params) != 1 || req.Params[0] != float64(7) {
			t.Errorf("expected unsubscribe of 7, got %v", req.Params)
		}
	case <-time.After(time.Second):
		t.Fatal("server never received signatureUnsubscribe")
	}
}

func TestWSClient_SubscribeTimeout(t *testing.T) {
	server := idleServer(t)
	defer server.Close()

	cfg := DefaultWSConfig()
	cfg.SubscribeTimeout = 50 * time.Millisecond

	client, err := NewWSClient(context.Background(), toWS(server.URL), &cfg)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	_, err = client.SubscribeSignature(context.Background(), "sigABC", "")
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !strings.Contains(err.Error(), "timeout") {
		t.Errorf("expected timeout error, got %v", err)
	}
}

func TestWSClient_Close(t *testing.T) {
	server := idleServer(t)
	defer server.Close()

	client, err := NewWSClient(context.Background(), toWS(server.URL), nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if !client.closed.Load() {
		t.Error("client should be closed")
	}

	// Double close should be safe
	if err := client.Close(); err != nil {
		t.Errorf("double Close: %v", err)
	}
}

func TestWSClient_SubscribeAfterClose(t *testing.T) {
	server := idleServer(t)
	defer server.Close()

	client, err := NewWSClient(context.Background(), toWS(server.URL), nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	client.Close()

	if _, err := client.SubscribeSignature(context.Background(), "sigABC", ""); err == nil {
		t.Error("expected error when subscribing after close")
	}
}

func TestWSClient_CustomConfig(t *testing.T) {
	server := idleServer(t)
	defer server.Close()

	cfg := &WSClientConfig{
		ReconnectDelay:    500 * time.Millisecond,
		MaxReconnectDelay: 5 * time.Second,
		PingInterval:      10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Second,
	}

	client, err := NewWSClient(context.Background(), toWS(server.URL), cfg)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	if client.config.ReconnectDelay != 500*time.Millisecond {
		t.Errorf("expected ReconnectDelay 500ms, got %v", client.config.ReconnectDelay)
	}
	if client.config.PingInterval != 10*time.Second {
		t.Errorf("expected PingInterval 10s, got %v", client.config.PingInterval)
	}
	if client.config.SubscribeTimeout != DefaultWSConfig().SubscribeTimeout {
		t.Errorf("expected default SubscribeTimeout, got %v", client.config.SubscribeTimeout)
	}
}
