package websocket

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

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub()
	go hub.Run(ctx)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r)
	}))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, have %d", n, hub.ClientCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestNotifyBroadcastsToAllClients(t *testing.T) {
	hub, srv := startHub(t)
	a := dial(t, srv)
	b := dial(t, srv)
	waitClients(t, hub, 2)

	hub.Notify("sync.completed", map[string]int{"created": 3})

	for _, conn := range []*websocket.Conn{a, b} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var ev Event
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("read failed: %v", err)
		}
		if ev.Type != "sync.completed" || ev.MsgID == "" {
			t.Errorf("unexpected event %+v", ev)
		}
		payload, _ := json.Marshal(ev.Payload)
		if string(payload) != `{"created":3}` {
			t.Errorf("payload = %s", payload)
		}
	}
}

func TestIdentifyReplacesPreviousConnection(t *testing.T) {
	hub, srv := startHub(t)
	first := dial(t, srv)
	waitClients(t, hub, 1)

	identify := func(conn *websocket.Conn) {
		t.Helper()
		if err := conn.WriteJSON(BaseMessage{Type: "CLIENT_IDENTIFY", ClientID: "tablet-1", MsgID: "m1"}); err != nil {
			t.Fatal(err)
		}
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var ack map[string]string
		if err := conn.ReadJSON(&ack); err != nil {
			t.Fatalf("no ack: %v", err)
		}
		if ack["type"] != "ACK" || ack["msgId"] != "m1" {
			t.Errorf("unexpected ack %v", ack)
		}
	}
	identify(first)

	second := dial(t, srv)
	waitClients(t, hub, 2)
	identify(second)
	waitClients(t, hub, 1)

	if !hub.SendTo("tablet-1", map[string]string{"type": "HELLO"}) {
		t.Fatal("identified client not found")
	}
	second.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg map[string]string
	if err := second.ReadJSON(&msg); err != nil || msg["type"] != "HELLO" {
		t.Errorf("second connection should receive direct messages: %v %v", msg, err)
	}
}
