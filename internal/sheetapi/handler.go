package sheetapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/SAP-F-2025/quiro-companion/internal/backend"
	"github.com/SAP-F-2025/quiro-companion/internal/models"
	"github.com/SAP-F-2025/quiro-companion/internal/services"
	"github.com/SAP-F-2025/quiro-companion/internal/validator"
	"github.com/skip2/go-qrcode"
	"github.com/valyala/fasthttp"
)

const (
	StatusError = "error"

	defaultQRSize  = 256
	maxQRSize      = 1024
	requestTimeout = 10 * time.Second
)

// Messages returned in the error envelope.
const (
	MsgMissingID     = "ID kartu kosong."
	MsgInvalidID     = "ID kartu tidak valid."
	MsgUnknownAction = "Aksi tidak dikenal."
	MsgCardNotFound  = "Kartu tidak ditemukan."
	MsgNoQuestion    = "Soal untuk kartu ini tidak ditemukan."
	MsgNoQuestions   = "Belum ada soal di spreadsheet."
	MsgInternal      = "Terjadi kesalahan di server."
)

// Handler serves the spreadsheet backend contract over fasthttp.
type Handler struct {
	svc       services.SheetService
	validator *validator.Validator
	logger    *slog.Logger
	publicURL string
}

type HandlerConfig struct {
	Service   services.SheetService
	Validator *validator.Validator
	Logger    *slog.Logger
	// PublicURL prefixes card ids in printed QR codes. Empty encodes the bare id.
	PublicURL string
}

func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Validator == nil {
		cfg.Validator = validator.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Handler{
		svc:       cfg.Service,
		validator: cfg.Validator,
		logger:    cfg.Logger,
		publicURL: strings.TrimSpace(cfg.PublicURL),
	}
}

// NewServer wraps the handler in a fasthttp server.
func NewServer(h *Handler) *fasthttp.Server {
	return &fasthttp.Server{
		Handler:      h.HandleRequest,
		Name:         "quiro-sheetd",
		ReadTimeout:  requestTimeout,
		WriteTimeout: requestTimeout,
	}
}

func (h *Handler) HandleRequest(ctx *fasthttp.RequestCtx) {
	path := string(ctx.Path())
	method := string(ctx.Method())
	start := time.Now()

	ctx.Response.Header.Set("Cache-Control", "no-cache")
	ctx.Response.Header.Set("Access-Control-Allow-Origin", "*")
	ctx.Response.Header.Set("Access-Control-Allow-Methods", "GET, OPTIONS")

	defer func() {
		h.logger.Debug("Sheet request",
			"method", method,
			"path", path,
			"status_code", ctx.Response.StatusCode(),
			"duration", time.Since(start))
	}()

	if method == fasthttp.MethodOptions {
		ctx.SetStatusCode(fasthttp.StatusNoContent)
		return
	}
	if method != fasthttp.MethodGet {
		ctx.SetStatusCode(fasthttp.StatusMethodNotAllowed)
		return
	}

	switch {
	case path == "/" || path == "/exec":
		h.Exec(ctx)
	case path == "/health":
		h.respondWithJSON(ctx, fasthttp.StatusOK, map[string]string{"status": "healthy"})
	case path == "/cards":
		h.ListCards(ctx)
	case strings.HasPrefix(path, "/cards/") && strings.HasSuffix(path, "/qr.png"):
		parts := strings.Split(path, "/")
		if len(parts) != 4 {
			ctx.SetStatusCode(fasthttp.StatusNotFound)
			return
		}
		id, err := url.PathUnescape(parts[2])
		if err != nil {
			ctx.SetStatusCode(fasthttp.StatusBadRequest)
			return
		}
		ctx.SetUserValue("id", id)
		h.CardQR(ctx)
	default:
		ctx.SetStatusCode(fasthttp.StatusNotFound)
	}
}

// Exec dispatches ?action=get_question|update_number&id=<card>. Failures are
// reported in the envelope with HTTP 200, the way the spreadsheet script does.
func (h *Handler) Exec(ctx *fasthttp.RequestCtx) {
	args := ctx.QueryArgs()
	action := string(args.Peek("action"))
	id := strings.TrimSpace(string(args.Peek("id")))

	if action != backend.ActionGetQuestion && action != backend.ActionUpdateNumber {
		h.respondWithError(ctx, MsgUnknownAction)
		return
	}
	if id == "" {
		h.respondWithError(ctx, MsgMissingID)
		return
	}
	if err := h.validator.ValidateCardID(id); err != nil {
		h.respondWithError(ctx, MsgInvalidID)
		return
	}

	reqCtx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	switch action {
	case backend.ActionGetQuestion:
		q, err := h.svc.GetQuestion(reqCtx, id)
		if err != nil {
			h.respondWithServiceError(ctx, action, id, err)
			return
		}
		h.respondWithJSON(ctx, fasthttp.StatusOK, models.BackendResponse{
			Status: models.BackendStatusSuccess,
			Data:   q,
		})
	case backend.ActionUpdateNumber:
		advance, err := h.svc.UpdateNumber(reqCtx, id)
		if err != nil {
			h.respondWithServiceError(ctx, action, id, err)
			return
		}
		h.respondWithJSON(ctx, fasthttp.StatusOK, models.BackendResponse{
			Status:  models.BackendStatusSuccess,
			Message: fmt.Sprintf("Nomor soal diganti ke %d", advance.ToNumber),
		})
	}
}

func (h *Handler) ListCards(ctx *fasthttp.RequestCtx) {
	reqCtx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	cards, err := h.svc.ListCards(reqCtx)
	if err != nil {
		h.logger.Error("Failed to list cards", "error", err)
		h.respondWithJSON(ctx, fasthttp.StatusInternalServerError, models.BackendResponse{Status: StatusError, Message: MsgInternal})
		return
	}
	h.respondWithJSON(ctx, fasthttp.StatusOK, map[string]interface{}{
		"cards": cards,
		"count": len(cards),
	})
}

// CardQR renders a printable QR code for a card. ?size= sets the edge length
// in pixels.
func (h *Handler) CardQR(ctx *fasthttp.RequestCtx) {
	id, _ := ctx.UserValue("id").(string)
	if err := h.validator.ValidateCardID(id); err != nil {
		ctx.SetStatusCode(fasthttp.StatusBadRequest)
		ctx.SetBodyString(MsgInvalidID)
		return
	}

	size := defaultQRSize
	if raw := ctx.QueryArgs().Peek("size"); len(raw) > 0 {
		n, err := strconv.Atoi(string(raw))
		if err != nil || n < 64 || n > maxQRSize {
			ctx.SetStatusCode(fasthttp.StatusBadRequest)
			ctx.SetBodyString("size must be between 64 and 1024")
			return
		}
		size = n
	}

	png, err := qrcode.Encode(h.qrContent(id), qrcode.Medium, size)
	if err != nil {
		h.logger.Error("Failed to render card QR", "card_id", id, "error", err)
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetContentType("image/png")
	ctx.SetBody(png)
}

func (h *Handler) qrContent(id string) string {
	if h.publicURL == "" {
		return id
	}
	return strings.TrimRight(h.publicURL, "/") + "/?id=" + url.QueryEscape(id)
}

func (h *Handler) respondWithServiceError(ctx *fasthttp.RequestCtx, action, id string, err error) {
	var msg string
	switch {
	case errors.Is(err, services.ErrCardNotFound):
		msg = MsgCardNotFound
	case errors.Is(err, services.ErrQuestionNotFound):
		msg = MsgNoQuestion
	case errors.Is(err, services.ErrNoQuestions):
		msg = MsgNoQuestions
	case errors.Is(err, services.ErrMissingIdentifier):
		msg = MsgMissingID
	default:
		h.logger.Error("Sheet action failed", "action", action, "card_id", id, "error", err)
		msg = MsgInternal
	}
	h.respondWithError(ctx, msg)
}

func (h *Handler) respondWithError(ctx *fasthttp.RequestCtx, message string) {
	h.respondWithJSON(ctx, fasthttp.StatusOK, models.BackendResponse{Status: StatusError, Message: message})
}

func (h *Handler) respondWithJSON(ctx *fasthttp.RequestCtx, statusCode int, response interface{}) {
	ctx.SetContentType("application/json")
	ctx.SetStatusCode(statusCode)

	data, err := json.Marshal(response)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		ctx.SetBodyString(`{"status":"error","message":"` + MsgInternal + `"}`)
		return
	}
	ctx.SetBody(data)
}
