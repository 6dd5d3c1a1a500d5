package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/SAP-F-2025/quiro-companion/internal/events"
	"github.com/SAP-F-2025/quiro-companion/internal/models"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHubServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		sessionID := r.URL.Query().Get("session")
		hub.AddConnection(sessionID, conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				hub.RemoveConnection(sessionID, conn)
				return
			}
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func dial(t *testing.T, server *httptest.Server, sessionID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/?session=" + sessionID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg WSMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHub_RelaysEventsToSessionWatchers(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := NewHub(logger)
	server := newHubServer(t, hub)

	watcher := dial(t, server, "s1")
	other := dial(t, server, "s2")
	require.Eventually(t, func() bool {
		return hub.Connections("s1") == 1 && hub.Connections("s2") == 1
	}, 2*time.Second, 5*time.Millisecond)

	publisher := events.NewChannelEventPublisher("test.sessions", logger)
	t.Cleanup(func() { publisher.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	messages, err := publisher.Subscribe(ctx)
	require.NoError(t, err)
	go hub.Run(ctx, messages)

	view := models.SessionView{SessionID: "s1", State: models.StateScanning, ScannerActive: true}
	require.NoError(t, publisher.PublishSessionEvent(ctx, events.NewSessionEvent(events.EventStateChanged, view)))

	msg := readMessage(t, watcher)
	assert.Equal(t, string(events.EventStateChanged), msg.Type)
	data, ok := msg.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "SCANNING", data["state"])

	require.NoError(t, other.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err = other.ReadMessage()
	assert.Error(t, err, "other sessions must not see the event")

	require.NoError(t, publisher.PublishSessionEvent(ctx, events.NewSessionEvent(events.EventSessionClosed, view)))
	msg = readMessage(t, watcher)
	assert.Equal(t, string(events.EventSessionClosed), msg.Type)
	require.Eventually(t, func() bool { return hub.Connections("s1") == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestHub_SendToSingleConnection(t *testing.T) {
	hub := NewHub(nil)
	server := newHubServer(t, hub)
	client := dial(t, server, "s1")
	require.Eventually(t, func() bool { return hub.Connections("s1") == 1 }, 2*time.Second, 5*time.Millisecond)

	hub.mu.Lock()
	var conn *websocket.Conn
	for c := range hub.sessions["s1"] {
		conn = c
	}
	hub.mu.Unlock()

	require.NoError(t, hub.Send("s1", conn, WSMessage{Type: "snapshot", Data: "hello"}))
	msg := readMessage(t, client)
	assert.Equal(t, "snapshot", msg.Type)
	assert.Equal(t, "hello", msg.Data)
}

func TestHub_SlowClientDoesNotStallOtherSessions(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := NewHub(logger)
	server := newHubServer(t, hub)

	// The slow client never reads, so its socket buffers fill up.
	_ = dial(t, server, "slow")
	fast := dial(t, server, "fast")
	require.Eventually(t, func() bool {
		return hub.Connections("slow") == 1 && hub.Connections("fast") == 1
	}, 2*time.Second, 5*time.Millisecond)

	payload := strings.Repeat("x", 128<<10)
	start := time.Now()
	for i := 0; i < 128; i++ {
		hub.Broadcast("slow", WSMessage{Type: "bulk", Data: payload})
	}
	assert.Less(t, time.Since(start), time.Second, "broadcast must not wait on a socket")

	hub.Broadcast("fast", WSMessage{Type: "ping", Data: "ok"})
	msg := readMessage(t, fast)
	assert.Equal(t, "ping", msg.Type)
}

func TestHub_SendToUnknownConnection(t *testing.T) {
	hub := NewHub(nil)
	assert.ErrorIs(t, hub.Send("s1", &websocket.Conn{}, WSMessage{Type: "snapshot"}), ErrNotConnected)
}
