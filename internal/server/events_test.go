package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/invoice-ai/invoiceai/constants"
	"github.com/invoice-ai/invoiceai/internal/entity"
)

func dialHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestHubBroadcastsStatusEvents(t *testing.T) {
	hub := NewHub(testLogger())
	conn := dialHub(t, hub)

	inv := &entity.Invoice{
		ID:                uuid.New(),
		FileName:          "live.pdf",
		Status:            constants.StatusProcessing,
		OverallConfidence: 0,
	}
	// Registration races with the dial returning; give the hub a beat.
	deadline := time.Now().Add(time.Second)
	for {
		hub.Notify(inv)
		_ = conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		_, msg, err := conn.ReadMessage()
		if err == nil {
			var event StatusEvent
			if err := json.Unmarshal(msg, &event); err != nil {
				t.Fatalf("decode event: %v", err)
			}
			if event.Type != "status" || event.InvoiceID != inv.ID.String() {
				t.Fatalf("event = %+v", event)
			}
			if event.Status != string(constants.StatusProcessing) {
				t.Fatalf("event status = %q, want processing", event.Status)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("no event received: %v", err)
		}
	}
}

func TestHubDropsDisconnectedClients(t *testing.T) {
	hub := NewHub(testLogger())
	conn := dialHub(t, hub)

	// Wait until the client registers.
	deadline := time.Now().Add(time.Second)
	for {
		hub.mu.RLock()
		n := len(hub.clients)
		hub.mu.RUnlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	_ = conn.Close()

	deadline = time.Now().Add(time.Second)
	for {
		hub.mu.RLock()
		n := len(hub.clients)
		hub.mu.RUnlock()
		if n == 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("client not dropped, %d still registered", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
