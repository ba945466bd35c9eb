package middleware

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"gwconsole/internal/utils"

	"github.com/gorilla/websocket"
)

const wsWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || sameHost(origin, r.Host)
	},
}

func sameHost(origin, host string) bool {
	for _, scheme := range []string{"http://", "https://"} {
		if origin == scheme+host {
			return true
		}
	}
	return false
}

type wsClient struct {
	conn     *websocket.Conn
	username string
	mu       sync.Mutex
}

func (c *wsClient) write(message []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, message)
}

// Hub fans messages out to websocket connections, grouped by operator.
type Hub struct {
	clients map[*wsClient]struct{}
	mutex   sync.RWMutex
	logger  *utils.Logger
}

func NewHub(logger *utils.Logger) *Hub {
	return &Hub{
		clients: make(map[*wsClient]struct{}),
		logger:  logger,
	}
}

// SendTo writes message to every connection of username.
func (h *Hub) SendTo(username string, message []byte) {
	for _, c := range h.snapshot(username) {
		if err := c.write(message); err != nil {
			h.logf("WebSocket write error for %s: %v", c.username, err)
			h.remove(c)
		}
	}
}

// SendJSON encodes v and sends it to username.
func (h *Hub) SendJSON(username string, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		h.logf("WebSocket encode error: %v", err)
		return
	}
	h.SendTo(username, payload)
}

// Broadcast writes message to every connection.
func (h *Hub) Broadcast(message []byte) {
	for _, c := range h.snapshot("") {
		if err := c.write(message); err != nil {
			h.logf("WebSocket write error: %v", err)
			h.remove(c)
		}
	}
}

// Disconnect closes every connection of username.
func (h *Hub) Disconnect(username string) {
	for _, c := range h.snapshot(username) {
		h.remove(c)
	}
}

func (h *Hub) GetClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// ClientCount returns the connections of username.
func (h *Hub) ClientCount(username string) int {
	return len(h.snapshot(username))
}

func (h *Hub) snapshot(username string) []*wsClient {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	out := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		if username == "" || c.username == username {
			out = append(out, c)
		}
	}
	return out
}

func (h *Hub) add(c *wsClient) {
	h.mutex.Lock()
	h.clients[c] = struct{}{}
	h.mutex.Unlock()
	h.logf("WebSocket client connected for %s", c.username)
}

func (h *Hub) remove(c *wsClient) {
	h.mutex.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mutex.Unlock()
	if ok {
		c.conn.Close()
		h.logf("WebSocket client disconnected for %s", c.username)
	}
}

// Serve upgrades the request for username and blocks until the client goes
// away. onOpen runs after registration and onClose before return.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, username string, onOpen, onClose func()) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logf("WebSocket upgrade error: %v", err)
		return
	}

	client := &wsClient{conn: conn, username: username}
	h.add(client)
	if onOpen != nil {
		onOpen()
	}
	defer func() {
		if onClose != nil {
			onClose()
		}
		h.remove(client)
	}()

	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logf("WebSocket error: %v", err)
			}
			break
		}
	}
}

func (h *Hub) logf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if h.logger != nil {
		h.logger.Write(msg)
		return
	}
	log.Println(msg)
}
