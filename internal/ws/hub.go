package ws

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/wagate/backend/internal/engine"
	"github.com/wagate/backend/internal/logging"
	"github.com/wagate/backend/internal/session"
)

// Client is one connected websocket subscriber. Writes go through a buffered
// send channel drained by writePump; a full buffer marks the client as too
// slow and gets it disconnected.
type Client struct {
	conn *websocket.Conn

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func newClient(conn *websocket.Conn, buffer int) *Client {
	c := &Client{
		conn: conn,
		send: make(chan []byte, buffer),
	}
	go c.writePump()
	return c
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// trySend enqueues a message without blocking. It reports false when the
// buffer is full; a send racing close is dropped rather than panicking.
func (c *Client) trySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Hub is the push channel: it tracks connected clients and their per-session
// room memberships, and implements session.Notifier so the event relay can
// publish QR codes, status updates and completion signals to subscribers of
// one session without touching transport details.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]bool
	rooms      map[string]map[*Client]bool // keyed by session name
	sendBuffer int
	log        zerolog.Logger
}

var _ session.Notifier = (*Hub)(nil)

func NewHub(sendBuffer int) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
		sendBuffer: sendBuffer,
		log:        logging.WithComponent("ws"),
	}
}

// Add registers a freshly upgraded connection and starts serving it. The
// read loop handles join-session/leave-session control frames and returns
// when the peer goes away.
func (h *Hub) Add(conn *websocket.Conn) *Client {
	c := newClient(conn, h.sendBuffer)

	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()

	go h.readPump(c)
	return c
}

func (h *Hub) readPump(c *Client) {
	defer h.Remove(c)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg controlMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.log.Debug().Err(err).Msg("ignoring malformed control frame")
			continue
		}
		switch msg.Event {
		case ctrlJoinSession:
			h.Join(c, msg.Session)
		case ctrlLeaveSession:
			h.Leave(c, msg.Session)
		}
	}
}

// Remove drops a client from the hub and every room it joined, and closes
// its connection. Idempotent.
func (h *Hub) Remove(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		for name, room := range h.rooms {
			delete(room, c)
			if len(room) == 0 {
				delete(h.rooms, name)
			}
		}
		c.close()
	}
	h.mu.Unlock()
}

// Join subscribes a client to a session's events.
func (h *Hub) Join(c *Client, sessionName string) {
	if sessionName == "" {
		return
	}
	h.mu.Lock()
	if h.clients[c] {
		room, ok := h.rooms[sessionName]
		if !ok {
			room = make(map[*Client]bool)
			h.rooms[sessionName] = room
		}
		room[c] = true
	}
	h.mu.Unlock()
	h.log.Debug().Str("session", sessionName).Msg("client joined session room")
}

// Leave unsubscribes a client from a session's events.
func (h *Hub) Leave(c *Client, sessionName string) {
	h.mu.Lock()
	if room, ok := h.rooms[sessionName]; ok {
		delete(room, c)
		if len(room) == 0 {
			delete(h.rooms, sessionName)
		}
	}
	h.mu.Unlock()
}

// PublishQR implements session.Notifier.
func (h *Hub) PublishQR(sessionName string, evt engine.QREvent) {
	h.publish(sessionName, EventQRCode, QRPayload{
		Image:       evt.Image,
		ASCII:       evt.ASCII,
		Attempt:     evt.Attempt,
		Code:        evt.Code,
		SessionName: evt.SessionName,
	})
}

// PublishStatus implements session.Notifier.
func (h *Hub) PublishStatus(sessionName string, evt session.StatusEvent) {
	h.publish(sessionName, EventStatusUpdate, StatusPayload{
		Status:      evt.Kind,
		SessionName: evt.SessionName,
		Timestamp:   evt.Timestamp,
		Message:     evt.Message,
	})
}

// PublishComplete implements session.Notifier.
func (h *Hub) PublishComplete(sessionName string, evt session.CompleteEvent) {
	h.publish(sessionName, EventSessionComplete, CompletePayload{
		SessionName: evt.SessionName,
		Status:      evt.Status,
		Message:     evt.Message,
		Timestamp:   evt.Timestamp,
	})
}

// DisconnectSession implements session.Notifier: it terminates the
// connection of every subscriber currently joined to the session's room.
func (h *Hub) DisconnectSession(sessionName string) {
	h.mu.RLock()
	room := h.rooms[sessionName]
	members := make([]*Client, 0, len(room))
	for c := range room {
		members = append(members, c)
	}
	h.mu.RUnlock()

	for _, c := range members {
		h.Remove(c)
	}
	if len(members) > 0 {
		h.log.Info().Str("session", sessionName).Int("clients", len(members)).Msg("disconnected session subscribers")
	}
}

func (h *Hub) publish(sessionName, event string, payload interface{}) {
	data, err := json.Marshal(Envelope{
		Event:   event,
		Session: sessionName,
		Payload: payload,
	})
	if err != nil {
		h.log.Error().Err(err).Str("event", event).Msg("marshal failed")
		return
	}

	h.mu.RLock()
	room := h.rooms[sessionName]
	members := make([]*Client, 0, len(room))
	for c := range room {
		members = append(members, c)
	}
	h.mu.RUnlock()

	for _, c := range members {
		if !c.trySend(data) {
			// Client can't keep up, disconnect it.
			h.log.Warn().Str("session", sessionName).Msg("ws client too slow, disconnecting")
			h.Remove(c)
		}
	}
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SubscriberCount reports how many clients are joined to a session's room.
func (h *Hub) SubscriberCount(sessionName string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[sessionName])
}
