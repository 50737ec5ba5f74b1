package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/unbundle/unbundle/internal/logging"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Keep-alive interval so intermediaries do not time out idle streams.
	keepAlivePeriod = 60 * time.Second
)

// ReloadMessage is the event frame pushed to connected browsers.
type ReloadMessage struct {
	Type string `json:"type"`
}

// reloadClient is one connected live-reload listener.
type reloadClient struct {
	conn   *websocket.Conn
	reload chan struct{}
}

// Hub holds the set of connected live-reload clients.
//
// Broadcast is destructive: every notified client is removed from the set,
// and stays removed until it registers again. A reloading page reopens the
// stream, so in practice each client re-registers right after acting on the
// signal. Clients that linger without reloading simply stop receiving
// signals, which is the intended at-most-once behavior.
type Hub struct {
	mutex     sync.Mutex
	clients   map[*reloadClient]struct{}
	keepAlive time.Duration
	logger    logging.Logger
}

// NewHub creates an empty live-reload hub.
func NewHub(logger logging.Logger) *Hub {
	return &Hub{
		clients:   make(map[*reloadClient]struct{}),
		keepAlive: keepAlivePeriod,
		logger:    logger.WithComponent("livereload"),
	}
}

// Handle upgrades the request to a live-reload stream. It blocks until the
// client disconnects, a reload is pushed, or the server shuts down.
func (h *Hub) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Local development tool: pages are served from arbitrary hosts on
		// the LAN, so origin checking is disabled like the rest of the
		// permissive CORS surface.
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.logger.Warn(r.Context(), err, "livereload upgrade failed")
		return
	}

	// The client never sends application frames; CloseRead keeps control
	// frames serviced and signals disconnect through the context.
	ctx := conn.CloseRead(r.Context())

	client := &reloadClient{
		conn:   conn,
		reload: make(chan struct{}, 1),
	}

	if err := h.write(ctx, conn, ReloadMessage{Type: "connected"}); err != nil {
		conn.Close(websocket.StatusNormalClosure, "")
		return
	}

	h.register(client)
	defer h.unregister(client)

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case <-ticker.C:
			if err := h.write(ctx, conn, ReloadMessage{Type: "waiting"}); err != nil {
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
		case <-client.reload:
			// Best-effort push; the page reloads and reconnects on its own
			h.write(ctx, conn, ReloadMessage{Type: "reload"})
			conn.Close(websocket.StatusNormalClosure, "reload")
			return
		}
	}
}

// Broadcast pushes one reload signal to every registered client and drains
// the set.
func (h *Hub) Broadcast() {
	h.mutex.Lock()
	clients := h.clients
	h.clients = make(map[*reloadClient]struct{})
	h.mutex.Unlock()

	for client := range clients {
		select {
		case client.reload <- struct{}{}:
		default:
		}
	}
}

// ClientCount returns the number of currently registered clients.
func (h *Hub) ClientCount() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	return len(h.clients)
}

// Drain closes every registered connection, for shutdown.
func (h *Hub) Drain() {
	h.mutex.Lock()
	clients := h.clients
	h.clients = make(map[*reloadClient]struct{})
	h.mutex.Unlock()

	for client := range clients {
		client.conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
}

func (h *Hub) register(client *reloadClient) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.clients[client] = struct{}{}
}

func (h *Hub) unregister(client *reloadClient) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	delete(h.clients, client)
}

func (h *Hub) write(ctx context.Context, conn *websocket.Conn, msg ReloadMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	writeCtx, cancel := context.WithTimeout(ctx, writeWait)
	defer cancel()

	return conn.Write(writeCtx, websocket.MessageText, data)
}
