package realtime

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"rentport/internal/constants"
)

// Client is one authenticated websocket connection held by the hub.
// Writes go through a buffered send channel so a slow connection never
// blocks a broadcast; a full buffer drops the connection, and the tab
// re-fetches on reconnect.
type Client struct {
	UserID    string
	TabID     string
	TokenHash string // hash of the session token that authenticated the upgrade

	conn    *websocket.Conn
	send    chan []byte
	closing sync.Once
	hub     *Hub
}

// Hub fans resource events out to every connected tab.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*Client]struct{})}
}

func (h *Hub) Register(conn *websocket.Conn, userID, tabID, tokenHash string) *Client {
	c := &Client{
		UserID:    userID,
		TabID:     tabID,
		TokenHash: tokenHash,
		conn:      conn,
		send:      make(chan []byte, constants.ClientSendBuffer),
		hub:       h,
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go c.writePump()
	return c
}

func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()

	if ok {
		c.close()
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastResource pushes a "<resource>:update" frame to every tab.
func (h *Hub) BroadcastResource(resource string, kind EventKind, record any) {
	frame, err := ResourceFrame(resource, kind, record)
	if err != nil {
		log.Printf("Failed to encode %s event for %s: %v", kind, resource, err)
		return
	}
	h.broadcast(frame)
}

// Broadcast pushes a generic frame (non-resource events).
func (h *Hub) Broadcast(eventType string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Failed to encode %s payload: %v", eventType, err)
		return
	}
	h.broadcast(Frame{Type: eventType, Payload: raw})
}

func (h *Hub) broadcast(frame Frame) {
	msg, err := json.Marshal(frame)
	if err != nil {
		return
	}

	h.mu.RLock()
	var stale []*Client
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			stale = append(stale, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range stale {
		log.Printf("🔌 Dropping slow realtime client: tab %s", c.TabID)
		h.Unregister(c)
	}
}

// CloseSession drops every connection authenticated by the given
// session token. Called when the session store reports the token
// expired, so a lapsed tab stops receiving pushes.
func (h *Hub) CloseSession(tokenHash string) {
	h.mu.Lock()
	var lapsed []*Client
	for c := range h.clients {
		if c.TokenHash == tokenHash {
			lapsed = append(lapsed, c)
			delete(h.clients, c)
		}
	}
	h.mu.Unlock()

	for _, c := range lapsed {
		log.Printf("🔌 Dropping realtime client with expired session: tab %s", c.TabID)
		c.close()
	}
}

// CloseAll is called on server shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*Client]struct{})
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

// ReadLoop consumes inbound frames (acks from the tab) until the
// connection fails, then unregisters the client.
func (c *Client) ReadLoop(onFrame func(from *Client, frame Frame)) {
	defer c.hub.Unregister(c)

	c.conn.SetReadLimit(constants.MaxWSMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(constants.WSPongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(constants.WSPongTimeout))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var frame Frame
		if err := json.Unmarshal(msg, &frame); err != nil {
			continue
		}
		if onFrame != nil {
			onFrame(c, frame)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(constants.WSPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.SetWriteDeadline(time.Now().Add(constants.WSWriteTimeout))
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"))
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(constants.WSWriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(constants.WSWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) close() {
	c.closing.Do(func() {
		close(c.send)
	})
}
