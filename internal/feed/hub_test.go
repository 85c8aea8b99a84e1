package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/petems/whowhatwhere/internal/watchdog"
	"github.com/rs/zerolog"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	for i := 0; i < 200; i++ {
		if h.Clients() == n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("clients = %d, want %d", h.Clients(), n)
}

func testAlert() watchdog.Alert {
	p := watchdog.Packet{
		Direction: watchdog.Outbound,
		SrcIP:     netip.MustParseAddr("10.0.0.2"),
		DstIP:     netip.MustParseAddr("1.2.3.4"),
		Protocol:  watchdog.ProtocolTCP,
		DstPort:   443,
		Size:      1200,
	}
	return watchdog.Alert{
		RuleID:  "https",
		Message: "HTTPS traffic",
		Output:  watchdog.OutputVisual,
		Packet:  p,
		Summary: p.Summary(),
		Time:    time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestHubBroadcast(t *testing.T) {
	h := NewHub("", zerolog.Nop())
	srv := httptest.NewServer(h.Handler())
	defer srv.Close()
	defer h.Stop()

	a, b := dial(t, srv), dial(t, srv)
	waitClients(t, h, 2)

	if err := h.Send(context.Background(), testAlert()); err != nil {
		t.Fatal(err)
	}
	for _, conn := range []*websocket.Conn{a, b} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("ReadJSON: %v", err)
		}
		if msg.Type != "alert" || msg.Message != "HTTPS traffic" || msg.Dest != "1.2.3.4" || msg.Direction != "outbound" {
			t.Errorf("message = %+v", msg)
		}
		if len(msg.Output) != 1 || msg.Output[0] != "visual" {
			t.Errorf("output = %v", msg.Output)
		}
	}
}

func TestHubDropsClosedClient(t *testing.T) {
	h := NewHub("", zerolog.Nop())
	srv := httptest.NewServer(h.Handler())
	defer srv.Close()
	defer h.Stop()

	gone := dial(t, srv)
	stay := dial(t, srv)
	waitClients(t, h, 2)

	gone.Close()
	waitClients(t, h, 1)

	if err := h.Send(context.Background(), testAlert()); err != nil {
		t.Fatal(err)
	}
	stay.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	if err := stay.ReadJSON(&msg); err != nil {
		t.Fatalf("remaining client should still receive alerts: %v", err)
	}
}

func TestHubStart(t *testing.T) {
	h := NewHub("127.0.0.1:0", zerolog.Nop())
	if err := h.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer h.Stop()
	if !strings.HasPrefix(h.URL(), "ws://127.0.0.1:") {
		t.Errorf("URL = %s", h.URL())
	}
	if err := h.Start(context.Background()); err == nil {
		t.Error("second Start should fail")
	}

	conn, _, err := websocket.DefaultDialer.Dial(h.URL(), nil)
	if err != nil {
		t.Fatal(err)
	}
	conn.Close()
	if err := h.Stop(); err != nil {
		t.Errorf("Stop: %v", err)
	}
}

func TestHubRefusesForeignOrigin(t *testing.T) {
	h := NewHub("", zerolog.Nop())
	srv := httptest.NewServer(h.Handler())
	defer srv.Close()
	defer h.Stop()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evil.example"}})
	if err == nil {
		t.Fatal("foreign origin should be refused")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("response = %v, want 403", resp)
	}

	for _, origin := range []string{"http://localhost:3000", "http://127.0.0.1:8080", "http://[::1]"} {
		conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {origin}})
		if err != nil {
			t.Errorf("origin %s: %v", origin, err)
			continue
		}
		conn.Close()
	}
}

func TestLocalOrigin(t *testing.T) {
	tests := map[string]bool{
		"":                      true,
		"http://localhost":      true,
		"http://127.0.0.1:9000": true,
		"http://[::1]:9000":     true,
		"https://example.com":   false,
		"http://localhost.evil": false,
		"http://192.168.1.5":    false,
		"null":                  false,
	}
	for origin, want := range tests {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		if got := localOrigin(r); got != want {
			t.Errorf("localOrigin(%q) = %v, want %v", origin, got, want)
		}
	}
}

func TestHubSendDoesNotWaitForStalledClient(t *testing.T) {
	h := NewHub("", zerolog.Nop())
	srv := httptest.NewServer(h.Handler())
	defer srv.Close()
	defer h.Stop()

	live := dial(t, srv)
	waitClients(t, h, 1)

	// nothing drains this client's queue
	stalled := newClient(nil)
	h.mu.Lock()
	h.clients[stalled] = struct{}{}
	h.mu.Unlock()

	for i := 0; i < sendQueue; i++ {
		stalled.send <- []byte("{}")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.Send(context.Background(), testAlert())
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Send blocked on a stalled client")
	}

	select {
	case <-stalled.closed:
	default:
		t.Error("stalled client should be dropped once its queue is full")
	}
	waitClients(t, h, 1)

	live.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	if err := live.ReadJSON(&msg); err != nil {
		t.Fatalf("live client should still receive alerts: %v", err)
	}
}
