package websocket

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sirupsen/logrus"

	"github.com/wricardo/minimetro/game/engine"
)

var log = logrus.WithField("module", "websocket")

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512

	// Per-client outbound queue; slow readers beyond it are dropped.
	sendBuffer = 256
)

// Event names carried in Message.Event
const (
	EventSnapshot = "snapshot"
	EventGameOver = "game_over"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Message is the JSON frame sent to subscribers
type Message struct {
	SessionID string           `json:"session_id"`
	Event     string           `json:"event"`
	Snapshot  *engine.Snapshot `json:"snapshot,omitempty"`
	Data      interface{}      `json:"data,omitempty"`
}

// Client is one WebSocket subscriber of a session
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	sessionID string
}

// Hub fans session snapshots out to subscribed clients. Registration and
// broadcasts are serialized through Run; reads of the subscriber table take
// the reader-biased lock so they never wait behind a frame.
type Hub struct {
	mu       *xsync.RBMutex
	sessions map[string]map[*Client]bool

	broadcast  chan *Message
	register   chan *Client
	unregister chan *Client
	quit       chan struct{}
}

// NewHub creates a new WebSocket hub
func NewHub() *Hub {
	return &Hub{
		mu:         xsync.NewRBMutex(),
		sessions:   make(map[string]map[*Client]bool),
		broadcast:  make(chan *Message, sendBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		quit:       make(chan struct{}),
	}
}

// Run starts the hub's event loop. It returns after Close.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastMessage(message)

		case <-h.quit:
			h.closeAll()
			return
		}
	}
}

// Close stops Run and disconnects every client
func (h *Hub) Close() {
	close(h.quit)
}

// ServeWS upgrades the request and subscribes it to sessionID. A non-nil
// initial snapshot is queued before any broadcast.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, sessionID string, initial *engine.Snapshot) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	client := &Client{
		hub:       h,
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
		sessionID: sessionID,
	}

	if initial != nil {
		if data, err := encode(&Message{SessionID: sessionID, Event: EventSnapshot, Snapshot: initial}); err == nil {
			client.send <- data
		}
	}

	select {
	case h.register <- client:
	case <-h.quit:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// BroadcastSnapshot queues a snapshot for every client of the session. A
// regular frame is dropped when the hub is saturated, since the next one
// supersedes it. The final game over frame has no successor, so it waits for
// room in the queue until the hub is closed.
func (h *Hub) BroadcastSnapshot(sessionID string, snap engine.Snapshot) {
	if snap.GameOver {
		h.enqueue(&Message{SessionID: sessionID, Event: EventGameOver, Snapshot: &snap}, true)
		return
	}
	h.enqueue(&Message{SessionID: sessionID, Event: EventSnapshot, Snapshot: &snap}, false)
}

// BroadcastEvent sends a custom event to all clients in a session
func (h *Hub) BroadcastEvent(sessionID string, event string, data interface{}) {
	h.enqueue(&Message{SessionID: sessionID, Event: event, Data: data}, false)
}

// ClientCount returns the number of subscribers of a session
func (h *Hub) ClientCount(sessionID string) int {
	t := h.mu.RLock()
	defer h.mu.RUnlock(t)
	return len(h.sessions[sessionID])
}

// Sessions returns the number of sessions with at least one subscriber
func (h *Hub) Sessions() int {
	t := h.mu.RLock()
	defer h.mu.RUnlock(t)
	return len(h.sessions)
}

func (h *Hub) enqueue(message *Message, wait bool) {
	if h.ClientCount(message.SessionID) == 0 {
		return
	}
	if wait {
		select {
		case h.broadcast <- message:
		case <-h.quit:
		}
		return
	}
	select {
	case h.broadcast <- message:
	default:
		log.WithField("session", message.SessionID).Debug("broadcast queue full, dropping frame")
	}
}

// registerClient adds a client to a session
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	if h.sessions[client.sessionID] == nil {
		h.sessions[client.sessionID] = make(map[*Client]bool)
	}
	h.sessions[client.sessionID][client] = true
	total := len(h.sessions[client.sessionID])
	h.mu.Unlock()

	log.WithFields(logrus.Fields{"session": client.sessionID, "clients": total}).Debug("client registered")
}

// unregisterClient removes a client from a session
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(client)
}

func (h *Hub) removeLocked(client *Client) {
	clients, ok := h.sessions[client.sessionID]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	close(client.send)

	// Clean up empty sessions
	if len(clients) == 0 {
		delete(h.sessions, client.sessionID)
	}

	log.WithFields(logrus.Fields{"session": client.sessionID, "clients": len(clients)}).Debug("client unregistered")
}

// broadcastMessage sends a message to all clients in a session
func (h *Hub) broadcastMessage(message *Message) {
	data, err := encode(message)
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.sessions[message.SessionID] {
		select {
		case client.send <- data:
		default:
			// Client's send queue is full, drop it
			h.removeLocked(client)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, clients := range h.sessions {
		for client := range clients {
			h.removeLocked(client)
		}
	}
}

func encode(message *Message) ([]byte, error) {
	data, err := json.Marshal(message)
	if err != nil {
		log.WithError(err).WithField("event", message.Event).Error("failed to marshal websocket message")
	}
	return data, err
}

// readPump drains the connection so control frames are processed; clients
// only subscribe, they never send commands here.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.quit:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.WithError(err).WithField("session", c.sessionID).Warn("websocket read error")
			}
			return
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection. Each
// queued message is written as its own frame so clients can parse frames
// independently.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
