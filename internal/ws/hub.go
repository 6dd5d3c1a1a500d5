package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/SAP-F-2025/quiro-companion/internal/events"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/gorilla/websocket"
)

const (
	writeWait = 5 * time.Second
	// sendBuffer is how many messages may wait for a slow client before it
	// is dropped.
	sendBuffer = 32
)

var ErrNotConnected = errors.New("ws: connection not registered")

type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// client owns the writes to one connection. Messages are queued on send and
// written by writePump; closing send flushes the queue and closes the socket.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans session events out to the websocket connections watching each
// session. The hub lock only guards the maps and never waits on a socket.
type Hub struct {
	mu       sync.Mutex
	sessions map[string]map[*websocket.Conn]*client
	logger   *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		sessions: make(map[string]map[*websocket.Conn]*client),
		logger:   logger,
	}
}

func (h *Hub) AddConnection(sessionID string, conn *websocket.Conn) {
	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	if h.sessions[sessionID] == nil {
		h.sessions[sessionID] = make(map[*websocket.Conn]*client)
	}
	h.sessions[sessionID][conn] = c
	total := len(h.sessions[sessionID])
	h.mu.Unlock()

	go h.writePump(sessionID, c)
	h.logger.Debug("ws: client connected", "session_id", sessionID, "total", total)
}

func (h *Hub) RemoveConnection(sessionID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(sessionID, conn)
}

func (h *Hub) removeLocked(sessionID string, conn *websocket.Conn) {
	conns, ok := h.sessions[sessionID]
	if !ok {
		return
	}
	c, ok := conns[conn]
	if !ok {
		return
	}
	delete(conns, conn)
	close(c.send)
	if len(conns) == 0 {
		delete(h.sessions, sessionID)
	}
	h.logger.Debug("ws: client disconnected", "session_id", sessionID)
}

// Connections reports how many clients watch the session.
func (h *Hub) Connections(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions[sessionID])
}

// Send queues a message for one connection.
func (h *Hub) Send(sessionID string, conn *websocket.Conn, msg WSMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.sessions[sessionID][conn]
	if !ok {
		return ErrNotConnected
	}
	h.enqueueLocked(sessionID, c, data)
	return nil
}

// Broadcast queues a message for every watcher of the session.
func (h *Hub) Broadcast(sessionID string, msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("ws: marshal error", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.sessions[sessionID] {
		h.enqueueLocked(sessionID, c, data)
	}
}

// enqueueLocked drops a client whose queue is full.
func (h *Hub) enqueueLocked(sessionID string, c *client, data []byte) {
	select {
	case c.send <- data:
	default:
		h.logger.Warn("ws: client too slow, disconnecting", "session_id", sessionID)
		h.removeLocked(sessionID, c.conn)
	}
}

// CloseSession disconnects every client of the session once its queued
// messages are written.
func (h *Hub) CloseSession(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.sessions[sessionID] {
		h.removeLocked(sessionID, conn)
	}
}

func (h *Hub) writePump(sessionID string, c *client) {
	defer c.conn.Close()

	for data := range c.send {
		if err := write(c.conn, data); err != nil {
			h.logger.Warn("ws: write error", "session_id", sessionID, "error", err)
			h.RemoveConnection(sessionID, c.conn)
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"),
		time.Now().Add(writeWait))
}

// Run relays session events from the subscription until ctx is done or the
// channel closes.
func (h *Hub) Run(ctx context.Context, messages <-chan *message.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			h.dispatch(msg)
			msg.Ack()
		}
	}
}

func (h *Hub) dispatch(msg *message.Message) {
	event, err := events.DecodeSessionEvent(msg)
	if err != nil {
		h.logger.Warn("ws: dropping undecodable event", "message_id", msg.UUID, "error", err)
		return
	}
	sessionID := msg.Metadata.Get("session_id")
	if sessionID == "" {
		sessionID = event.SessionID
	}

	h.Broadcast(sessionID, WSMessage{Type: string(event.Type), Data: event.Data})
	if event.Type == events.EventSessionClosed {
		h.CloseSession(sessionID)
	}
}

func write(conn *websocket.Conn, data []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}
