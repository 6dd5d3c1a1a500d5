package handlers

import (
	"net/http"

	"github.com/SAP-F-2025/quiro-companion/internal/services"
	"github.com/SAP-F-2025/quiro-companion/internal/utils"
	"github.com/SAP-F-2025/quiro-companion/internal/ws"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const snapshotMessage = "session.snapshot"

type WSHandler struct {
	BaseHandler
	hub      *ws.Hub
	registry *services.SessionRegistry
	upgrader websocket.Upgrader
}

func NewWSHandler(hub *ws.Hub, registry *services.SessionRegistry, logger utils.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		BaseHandler: NewBaseHandler(logger),
		hub:         hub,
		registry:    registry,
		upgrader: websocket.Upgrader{
			CheckOrigin: originChecker(allowedOrigins),
		},
	}
}

// HandleWebSocket streams the session's events. The first message is the
// current snapshot.
// @Router /sessions/{id}/ws [get]
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	id := ParseStringIDParam(c, "id")
	if id == "" {
		return
	}
	session, err := h.registry.Get(id)
	if err != nil {
		h.RespondWithError(c, http.StatusNotFound, "Session not found", err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.LogWarn(c, "websocket upgrade failed", "error", err)
		return
	}

	h.hub.AddConnection(id, conn)
	defer h.hub.RemoveConnection(id, conn)

	if err := h.hub.Send(id, conn, ws.WSMessage{Type: snapshotMessage, Data: session.Controller.View()}); err != nil {
		return
	}

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}
