package handlers

import (
	"context"
	"errors"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"

	"github.com/SAP-F-2025/quiro-companion/internal/models"
	"github.com/SAP-F-2025/quiro-companion/internal/scanner"
	"github.com/SAP-F-2025/quiro-companion/internal/services"
	"github.com/SAP-F-2025/quiro-companion/internal/utils"
	"github.com/SAP-F-2025/quiro-companion/internal/validator"
	"github.com/gin-gonic/gin"
)

const DefaultMaxFrameBytes = 4 << 20

// SessionHandler exposes the player actions of one session.
type SessionHandler struct {
	BaseHandler
	registry      *services.SessionRegistry
	validator     *validator.Validator
	maxFrameBytes int64
}

func NewSessionHandler(
	registry *services.SessionRegistry,
	validator *validator.Validator,
	logger utils.Logger,
) *SessionHandler {
	return &SessionHandler{
		BaseHandler:   NewBaseHandler(logger),
		registry:      registry,
		validator:     validator,
		maxFrameBytes: DefaultMaxFrameBytes,
	}
}

// CreateSession opens a fresh session in IDLE.
// @Router /sessions [post]
func (h *SessionHandler) CreateSession(c *gin.Context) {
	session := h.registry.Create(requestContext(c))
	h.LogRequest(c, "Session created", "new_session_id", session.Controller.ID())
	c.JSON(http.StatusCreated, session.Controller.View())
}

func (h *SessionHandler) ListSessions(c *gin.Context) {
	views := h.registry.Views()
	c.JSON(http.StatusOK, gin.H{
		"sessions": views,
		"count":    len(views),
	})
}

// GetSession returns the current snapshot.
// @Router /sessions/{id} [get]
func (h *SessionHandler) GetSession(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, session.Controller.View())
}

// DeleteSession closes the session and releases its camera.
// @Router /sessions/{id} [delete]
func (h *SessionHandler) DeleteSession(c *gin.Context) {
	id := ParseStringIDParam(c, "id")
	if id == "" {
		return
	}
	if err := h.registry.Remove(requestContext(c), id); err != nil {
		h.RespondWithError(c, actionStatus(err), "Session not found", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// StartScan moves the session to SCANNING and opens the camera.
// @Router /sessions/{id}/scan [post]
func (h *SessionHandler) StartScan(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	h.LogRequest(c, "Starting scan")
	view, err := session.Controller.StartScan(requestContext(c))
	h.respondWithView(c, view, err)
}

// SetTypedID records the manual input field.
// @Router /sessions/{id}/typed-id [put]
func (h *SessionHandler) SetTypedID(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	var req TypedIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.RespondWithError(c, http.StatusBadRequest, "Invalid request payload", err, err.Error())
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		h.RespondWithError(c, http.StatusBadRequest, "Validation failed", err, err)
		return
	}

	view, err := session.Controller.SetTypedID(requestContext(c), req.ID)
	h.respondWithView(c, view, err)
}

// Search fetches the question for the given id, or for the last scanned or
// typed one.
// @Router /sessions/{id}/search [post]
func (h *SessionHandler) Search(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	var req SearchRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.RespondWithError(c, http.StatusBadRequest, "Invalid request payload", err, err.Error())
			return
		}
		if err := h.validator.ValidateStruct(&req); err != nil {
			h.RespondWithError(c, http.StatusBadRequest, "Validation failed", err, err)
			return
		}
	}

	h.LogRequest(c, "Searching question", "card_id", req.ID)
	view, err := session.Controller.FetchQuestion(requestContext(c), req.ID)
	h.respondWithView(c, view, err)
}

// Cancel leaves scanning. It is the same as a reset.
// @Router /sessions/{id}/cancel [post]
func (h *SessionHandler) Cancel(c *gin.Context) {
	h.reset(c, "Scan cancelled")
}

// PlayAgain returns a finished session to IDLE.
// @Router /sessions/{id}/reset [post]
func (h *SessionHandler) PlayAgain(c *gin.Context) {
	h.reset(c, "Session reset")
}

func (h *SessionHandler) reset(c *gin.Context, message string) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	h.LogRequest(c, message)
	view, err := session.Controller.Reset(requestContext(c))
	h.respondWithView(c, view, err)
}

// GiveUp ends the answer window early.
// @Router /sessions/{id}/give-up [post]
func (h *SessionHandler) GiveUp(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	h.LogRequest(c, "Player gave up")
	view, err := session.Controller.GiveUp(requestContext(c))
	h.respondWithView(c, view, err)
}

// GrantCamera tells the session the browser obtained camera access.
// @Router /sessions/{id}/camera/grant [post]
func (h *SessionHandler) GrantCamera(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	session.Camera.Grant()
	c.JSON(http.StatusOK, session.Controller.View())
}

// DenyCamera reports a refused prompt or a device error.
// @Router /sessions/{id}/camera/deny [post]
func (h *SessionHandler) DenyCamera(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	var req CameraDenyRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.RespondWithError(c, http.StatusBadRequest, "Invalid request payload", err, err.Error())
			return
		}
		if err := h.validator.ValidateStruct(&req); err != nil {
			h.RespondWithError(c, http.StatusBadRequest, "Validation failed", err, err)
			return
		}
	}

	h.LogWarn(c, "Camera denied by client", "reason", req.Reason)
	session.Camera.Deny(req.Reason)
	c.JSON(http.StatusOK, session.Controller.View())
}

// PushFrame feeds one JPEG or PNG camera snapshot to the scanner.
// @Router /sessions/{id}/frames [post]
func (h *SessionHandler) PushFrame(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	body := http.MaxBytesReader(c.Writer, c.Request.Body, h.maxFrameBytes)
	img, format, err := image.Decode(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.RespondWithError(c, http.StatusRequestEntityTooLarge, "Frame too large", err)
			return
		}
		h.RespondWithError(c, http.StatusBadRequest, "Frame is not a JPEG or PNG image", err)
		return
	}

	if err := session.Camera.PushFrame(img); err != nil {
		if errors.Is(err, scanner.ErrCameraInactive) {
			c.JSON(http.StatusConflict, ErrorResponse{
				Message: "Camera is not scanning",
				Code:    "CAMERA_INACTIVE",
			})
			return
		}
		h.RespondWithError(c, http.StatusInternalServerError, "Failed to accept frame", err)
		return
	}

	h.LogDebug(c, "Frame accepted", "format", format, "width", img.Bounds().Dx(), "height", img.Bounds().Dy())
	c.Status(http.StatusAccepted)
}

func (h *SessionHandler) session(c *gin.Context) (*services.Session, bool) {
	id := ParseStringIDParam(c, "id")
	if id == "" {
		return nil, false
	}
	session, err := h.registry.Get(id)
	if err != nil {
		h.RespondWithError(c, http.StatusNotFound, "Session not found", err)
		return nil, false
	}
	return session, true
}

// respondWithView writes the snapshot. Conflicts still carry the snapshot so
// the client can resync.
func (h *SessionHandler) respondWithView(c *gin.Context, view models.SessionView, err error) {
	status := actionStatus(err)
	if status == http.StatusOK {
		c.JSON(status, view)
		return
	}
	h.LogWarn(c, "Action rejected", "status_code", status, "error", err)
	c.JSON(status, ErrorResponse{
		Message: err.Error(),
		Code:    errorCode(err),
		Details: view,
	})
}

// requestContext carries the request id into service logs.
func requestContext(c *gin.Context) context.Context {
	return services.WithRequestID(c.Request.Context(), c.GetHeader(utils.RequestIDHeader))
}
