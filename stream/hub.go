package stream

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"agentdash/domain"
)

const (
	clientSendBuffer = 16
	writeTimeout     = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	// The dashboard frontend is served from a different origin; access
	// control is CORS-wide open just like the HTTP API.
	CheckOrigin: func(*http.Request) bool { return true },
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans live events out to every connected websocket client. The channel
// is push-only from the client's perspective; inbound frames are discarded
// except for pings, which get a pong back.
type Hub struct {
	log *log.Logger

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

func NewHub(logger *log.Logger) *Hub {
	return &Hub{log: logger, clients: make(map[*wsClient]struct{})}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast sends the event to every connected client. Clients whose send
// buffer is full are dropped rather than allowed to stall the rest.
func (h *Hub) Broadcast(ev domain.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.log.Errorf("marshal event: %v", err)
		return
	}

	h.mu.Lock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			delete(h.clients, c)
			close(c.send)
		}
	}
	h.mu.Unlock()
}

// Handler upgrades the request and serves the client until it disconnects.
func (h *Hub) Handler() echo.HandlerFunc {
	return func(c echo.Context) error {
		conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			h.log.Debugf("websocket upgrade: %v", err)
			return nil
		}
		client := &wsClient{conn: conn, send: make(chan []byte, clientSendBuffer)}
		h.register(client)

		go h.writeLoop(client)
		h.readLoop(client)
		return nil
	}
}

func (h *Hub) register(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

func (h *Hub) readLoop(c *wsClient) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type == "ping" {
			select {
			case c.send <- []byte(`{"type":"pong"}`):
			default:
			}
		}
	}
}

func (h *Hub) writeLoop(c *wsClient) {
	defer c.conn.Close()
	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.unregister(c)
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
