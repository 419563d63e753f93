package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/your-org/attendance/internal/observability"
	"github.com/your-org/attendance/pkg/dto"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // dashboard may be served from another origin
	},
}

// Client represents a connected WebSocket client.
type Client struct {
	conn     *websocket.Conn
	send     chan []byte
	deviceID string // optional filter
}

type message struct {
	deviceID string
	data     []byte
}

// Hub maintains active WebSocket clients and broadcasts attendance updates.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run starts the hub event loop until ctx is done. Call this in a goroutine.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				h.remove(client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			observability.WSConnections.Inc()
			slog.Debug("ws client connected", "filter", client.deviceID)

		case client := <-h.unregister:
			h.mu.Lock()
			h.remove(client)
			h.mu.Unlock()
			slog.Debug("ws client disconnected")

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if client.deviceID != "" && client.deviceID != msg.deviceID {
					continue
				}
				select {
				case client.send <- msg.data:
				default:
					// Client buffer full: disconnect it.
					h.remove(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// remove must be called with h.mu held.
func (h *Hub) remove(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)
	observability.WSConnections.Dec()
}

// BroadcastEvent queues an attendance update for all connected clients. It
// drops the event when the hub is backed up.
func (h *Hub) BroadcastEvent(event *dto.WSEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("marshal ws event", "error", err)
		return
	}
	select {
	case h.broadcast <- message{deviceID: event.DeviceID, data: data}:
	default:
		slog.Warn("ws broadcast queue full, event dropped", "employee_code", event.EmployeeCode)
	}
}

// HandleWS handles WebSocket upgrade requests. Clients may pass ?device_id=
// to receive updates from one reader only.
func (h *Hub) HandleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "error", err)
		return
	}

	client := &Client{
		conn:     conn,
		send:     make(chan []byte, 64),
		deviceID: c.Query("device_id"),
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump(h)
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()

	for {
		// Incoming messages are ignored; reading detects disconnects.
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
