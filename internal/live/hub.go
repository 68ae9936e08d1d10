// Package live carries the dashboard's realtime feed: a WebSocket hub
// on the server side and a reconnecting client with polling fallback
// for edge consumers.
package live

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"harborgrid-cloud/internal/observability/metrics"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong before the peer is considered gone.
	pongWait = 60 * time.Second
	// Ping period must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Inbound frames are ignored; keep the limit tight.
	maxMessageSize = 512

	sendBuffer = 32
)

// Frame is the envelope broadcast to live clients.
type Frame struct {
	Type string    `json:"type"`
	Data any       `json:"data"`
	At   time.Time `json:"at"`
}

type hubClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans out frames to connected WebSocket clients.
type Hub struct {
	mu       sync.Mutex
	clients  map[*hubClient]struct{}
	upgrader websocket.Upgrader
	logger   *log.Logger
}

// NewHub constructs a hub.
func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{
		clients: make(map[*hubClient]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The auth middleware has already vetted the request.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Broadcast sends a frame to every connected client. Clients that
// cannot keep up are disconnected rather than allowed to block the
// fanout.
func (h *Hub) Broadcast(frameType string, data any) {
	if h == nil {
		return
	}
	payload, err := json.Marshal(Frame{Type: frameType, Data: data, At: time.Now().UTC()})
	if err != nil {
		h.logger.Printf("live hub: marshal frame: %v", err)
		return
	}

	h.mu.Lock()
	var slow []*hubClient
	for client := range h.clients {
		select {
		case client.send <- payload:
		default:
			slow = append(slow, client)
		}
	}
	for _, client := range slow {
		delete(h.clients, client)
		close(client.send)
		metrics.IncLiveDropped()
	}
	count := len(h.clients)
	h.mu.Unlock()

	metrics.IncLiveBroadcast()
	metrics.SetLiveClients(count)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades GET /api/v1/live to a WebSocket session.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("live hub: upgrade: %v", err)
		return
	}

	client := &hubClient{conn: conn, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	h.clients[client] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	metrics.SetLiveClients(count)

	go h.writePump(client)
	go h.readPump(client)
}

func (h *Hub) unregister(client *hubClient) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	count := len(h.clients)
	h.mu.Unlock()
	metrics.SetLiveClients(count)
	_ = client.conn.Close()
}

// readPump discards inbound frames and tracks pongs for liveness.
func (h *Hub) readPump(client *hubClient) {
	defer h.unregister(client)
	client.conn.SetReadLimit(maxMessageSize)
	_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(client *hubClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = client.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
