// Package feed streams alerts to WebSocket clients.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/petems/whowhatwhere/internal/watchdog"
	"github.com/rs/zerolog"
)

const (
	writeDeadline = 5 * time.Second
	readDeadline  = 90 * time.Second
	pingInterval  = 30 * time.Second
	// clients only send control frames
	maxReadMessageSize = 4 * 1024
	// alerts queued per client before it counts as stalled
	sendQueue = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     localOrigin,
}

// localOrigin admits non-browser clients, which send no Origin, and pages
// served from this machine. Any other web page is refused so it cannot read
// the alert stream.
func localOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip, err := netip.ParseAddr(host)
	return err == nil && ip.IsLoopback()
}

// Message is the JSON frame sent for each alert.
type Message struct {
	Type      string    `json:"type"`
	RuleID    string    `json:"rule_id"`
	RuleIndex int       `json:"rule_index"`
	Message   string    `json:"message"`
	Output    []string  `json:"output"`
	Notes     string    `json:"notes,omitempty"`
	Summary   string    `json:"summary"`
	Time      time.Time `json:"time"`
	Direction string    `json:"direction"`
	Protocol  string    `json:"protocol"`
	Source    string    `json:"source"`
	Dest      string    `json:"dest"`
	Size      int       `json:"size"`
}

func NewMessage(a watchdog.Alert) Message {
	return Message{
		Type:      "alert",
		RuleID:    a.RuleID,
		RuleIndex: a.RuleIndex,
		Message:   a.Message,
		Output:    a.Output.Names(),
		Notes:     a.Notes,
		Summary:   a.Summary,
		Time:      a.Time,
		Direction: a.Packet.Direction.String(),
		Protocol:  string(a.Packet.Protocol),
		Source:    a.Packet.SrcIP.String(),
		Dest:      a.Packet.DstIP.String(),
		Size:      a.Packet.Size,
	}
}

type client struct {
	conn   *websocket.Conn
	remote string
	send   chan []byte
	// gorilla/websocket allows one concurrent writer
	writeMu sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}
}

func newClient(conn *websocket.Conn) *client {
	c := &client{
		conn:   conn,
		send:   make(chan []byte, sendQueue),
		closed: make(chan struct{}),
	}
	if conn != nil {
		c.remote = conn.RemoteAddr().String()
	}
	return c
}

// close stops the client's writers and closes its connection. Safe to call
// more than once.
func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

func (c *client) write(msgType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
		return err
	}
	return c.conn.WriteMessage(msgType, data)
}

// Hub broadcasts alerts to every connected client. It implements
// alert.Channel and is registered as a dispatcher tap.
type Hub struct {
	addr string
	log  zerolog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}

	server    *http.Server
	url       string
	closeOnce sync.Once
}

func NewHub(addr string, log zerolog.Logger) *Hub {
	return &Hub{
		addr:    addr,
		log:     log,
		clients: make(map[*client]struct{}),
	}
}

// Handler serves the WebSocket endpoint at /ws.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.handleWS)
	return mux
}

// Start listens on the configured address.
func (h *Hub) Start(ctx context.Context) error {
	if h.server != nil {
		return fmt.Errorf("feed already started")
	}
	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", h.addr, err)
	}
	h.url = fmt.Sprintf("ws://%s/ws", ln.Addr())
	h.server = &http.Server{
		Handler:     h.Handler(),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	go func() {
		if err := h.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			h.log.Error().Err(err).Msg("Feed server error")
		}
	}()

	h.log.Info().Str("url", h.url).Msg("Alert feed started")
	return nil
}

// URL returns the WebSocket URL once started.
func (h *Hub) URL() string { return h.url }

func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) Name() string { return "feed" }

// Send queues the alert for every client and returns without waiting for the
// writes. A client whose queue is full is dropped; the others still receive
// the alert.
func (h *Hub) Send(ctx context.Context, a watchdog.Alert) error {
	data, err := json.Marshal(NewMessage(a))
	if err != nil {
		return fmt.Errorf("failed to encode alert: %w", err)
	}

	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		select {
		case c.send <- data:
		case <-c.closed:
		default:
			h.log.Warn().Str("remote", c.remote).Msg("Feed client stalled, dropping client")
			h.drop(c)
		}
	}
	return nil
}

// Stop closes every client and shuts the server down. Safe to call more
// than once.
func (h *Hub) Stop() error {
	var stopErr error
	h.closeOnce.Do(func() {
		h.mu.Lock()
		clients := h.clients
		h.clients = make(map[*client]struct{})
		h.mu.Unlock()
		for c := range clients {
			c.close()
		}

		if h.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := h.server.Shutdown(ctx); err != nil {
				stopErr = fmt.Errorf("failed to stop feed: %w", err)
			}
		}
	})
	return stopErr
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}

func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("Feed upgrade failed")
		return
	}
	conn.SetReadLimit(maxReadMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(readDeadline)); err != nil {
		conn.Close()
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	c := newClient(conn)
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.log.Info().Str("remote", c.remote).Msg("Feed client connected")

	go h.writeLoop(c)
	defer func() {
		h.drop(c)
		h.log.Info().Str("remote", c.remote).Msg("Feed client disconnected")
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug().Err(err).Msg("Feed read error")
			}
			return
		}
	}
}

// writeLoop owns the client's outgoing frames: queued alerts and pings.
func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.closed:
			return
		case data := <-c.send:
			if err := c.write(websocket.TextMessage, data); err != nil {
				h.log.Warn().Err(err).Str("remote", c.remote).Msg("Feed write failed, dropping client")
				h.drop(c)
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				h.drop(c)
				return
			}
		}
	}
}
