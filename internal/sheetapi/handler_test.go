package sheetapi

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"io"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/SAP-F-2025/quiro-companion/internal/backend"
	"github.com/SAP-F-2025/quiro-companion/internal/models"
	"github.com/SAP-F-2025/quiro-companion/internal/repositories"
	"github.com/SAP-F-2025/quiro-companion/internal/repositories/xlsx"
	"github.com/SAP-F-2025/quiro-companion/internal/scanner"
	"github.com/SAP-F-2025/quiro-companion/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

type MockSheetService struct {
	mock.Mock
}

func (m *MockSheetService) GetQuestion(ctx context.Context, cardID string) (*models.Question, error) {
	args := m.Called(ctx, cardID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Question), args.Error(1)
}

func (m *MockSheetService) UpdateNumber(ctx context.Context, cardID string) (*models.CardAdvance, error) {
	args := m.Called(ctx, cardID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CardAdvance), args.Error(1)
}

func (m *MockSheetService) ListCards(ctx context.Context) ([]*models.Card, error) {
	args := m.Called(ctx)
	return args.Get(0).([]*models.Card), args.Error(1)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func serve(h *Handler, method, uri string) *fasthttp.RequestCtx {
	var ctx fasthttp.RequestCtx
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(uri)
	h.HandleRequest(&ctx)
	return &ctx
}

func decodeEnvelope(t *testing.T, ctx *fasthttp.RequestCtx) models.BackendResponse {
	t.Helper()
	var resp models.BackendResponse
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &resp), string(ctx.Response.Body()))
	return resp
}

func TestExec_GetQuestion(t *testing.T) {
	svc := &MockSheetService{}
	svc.On("GetQuestion", mock.Anything, "KARTU-01").Return(&models.Question{
		ID:     "KARTU-01",
		Number: "12",
		Text:   "Apa nama planet terbesar?",
	}, nil)
	h := NewHandler(HandlerConfig{Service: svc, Logger: testLogger()})

	ctx := serve(h, fasthttp.MethodGet, "/exec?action=get_question&id=KARTU-01")
	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, "application/json", string(ctx.Response.Header.ContentType()))

	resp := decodeEnvelope(t, ctx)
	assert.True(t, resp.Succeeded())
	require.NotNil(t, resp.Data)
	assert.Equal(t, models.QuestionNumber("12"), resp.Data.Number)
	assert.Contains(t, string(ctx.Response.Body()), `"nomorSoal":12`)
}

func TestExec_ErrorEnvelopes(t *testing.T) {
	tests := []struct {
		name    string
		uri     string
		setup   func(svc *MockSheetService)
		message string
	}{
		{
			name:    "unknown action",
			uri:     "/exec?action=delete&id=KARTU-01",
			message: MsgUnknownAction,
		},
		{
			name:    "missing action",
			uri:     "/exec?id=KARTU-01",
			message: MsgUnknownAction,
		},
		{
			name:    "missing id",
			uri:     "/exec?action=get_question",
			message: MsgMissingID,
		},
		{
			name: "unknown card",
			uri:  "/exec?action=get_question&id=NOPE",
			setup: func(svc *MockSheetService) {
				svc.On("GetQuestion", mock.Anything, "NOPE").Return(nil, repositories.ErrCardNotFound)
			},
			message: MsgCardNotFound,
		},
		{
			name: "dangling number",
			uri:  "/exec?action=get_question&id=K2",
			setup: func(svc *MockSheetService) {
				svc.On("GetQuestion", mock.Anything, "K2").Return(nil, repositories.ErrQuestionNotFound)
			},
			message: MsgNoQuestion,
		},
		{
			name: "empty question sheet",
			uri:  "/exec?action=update_number&id=K3",
			setup: func(svc *MockSheetService) {
				svc.On("UpdateNumber", mock.Anything, "K3").Return(nil, repositories.ErrNoQuestions)
			},
			message: MsgNoQuestions,
		},
		{
			name: "store failure",
			uri:  "/exec?action=update_number&id=K4",
			setup: func(svc *MockSheetService) {
				svc.On("UpdateNumber", mock.Anything, "K4").Return(nil, io.ErrUnexpectedEOF)
			},
			message: MsgInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockSheetService{}
			if tt.setup != nil {
				tt.setup(svc)
			}
			h := NewHandler(HandlerConfig{Service: svc, Logger: testLogger()})

			ctx := serve(h, fasthttp.MethodGet, tt.uri)
			assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
			resp := decodeEnvelope(t, ctx)
			assert.Equal(t, StatusError, resp.Status)
			assert.Equal(t, tt.message, resp.Message)
			assert.Nil(t, resp.Data)
			svc.AssertExpectations(t)
		})
	}
}

func TestHandleRequest_Routing(t *testing.T) {
	h := NewHandler(HandlerConfig{Service: &MockSheetService{}, Logger: testLogger()})

	assert.Equal(t, fasthttp.StatusOK, serve(h, fasthttp.MethodGet, "/health").Response.StatusCode())
	assert.Equal(t, fasthttp.StatusNoContent, serve(h, fasthttp.MethodOptions, "/exec").Response.StatusCode())
	assert.Equal(t, fasthttp.StatusMethodNotAllowed, serve(h, fasthttp.MethodPost, "/exec").Response.StatusCode())
	assert.Equal(t, fasthttp.StatusNotFound, serve(h, fasthttp.MethodGet, "/nowhere").Response.StatusCode())
	assert.Equal(t, fasthttp.StatusNotFound, serve(h, fasthttp.MethodGet, "/cards/a/b/qr.png").Response.StatusCode())
}

func TestCardQR_DecodesBackToCardID(t *testing.T) {
	h := NewHandler(HandlerConfig{Service: &MockSheetService{}, Logger: testLogger()})

	ctx := serve(h, fasthttp.MethodGet, "/cards/KARTU-07/qr.png?size=300")
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, "image/png", string(ctx.Response.Header.ContentType()))

	img, err := png.Decode(bytes.NewReader(ctx.Response.Body()))
	require.NoError(t, err)
	assert.Equal(t, 300, img.Bounds().Dx())

	text, err := scanner.NewQRDecoder(true).Decode(img)
	require.NoError(t, err)
	assert.Equal(t, "KARTU-07", text)

	assert.Equal(t, fasthttp.StatusBadRequest,
		serve(h, fasthttp.MethodGet, "/cards/KARTU-07/qr.png?size=5").Response.StatusCode())
}

func TestCardQR_PublicURL(t *testing.T) {
	h := NewHandler(HandlerConfig{PublicURL: "https://quiro.example/", Logger: testLogger()})
	assert.Equal(t, "https://quiro.example/?id=KARTU+07", h.qrContent("KARTU 07"))
}

// TestSheetBackend_ClientRoundTrip drives the real companion client against
// the handler over an in-memory listener, backed by a workbook on disk.
func TestSheetBackend_ClientRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "soal.xlsx")
	require.NoError(t, xlsx.CreateWorkbook(path,
		[]models.SheetQuestion{
			{Number: 1, Text: "Soal pertama", MediaDrive: "https://drive.example/1"},
			{Number: 2, Text: "Soal kedua"},
		},
		[]models.Card{{ID: "KARTU-01", QuestionNumber: 1}},
	))
	store, err := xlsx.Open(path, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	h := NewHandler(HandlerConfig{
		Service: services.NewSheetService(store, testLogger()),
		Logger:  testLogger(),
	})

	ln := fasthttputil.NewInmemoryListener()
	server := NewServer(h)
	go server.Serve(ln)
	t.Cleanup(func() {
		server.Shutdown()
		ln.Close()
	})

	client := backend.NewClient(backend.ClientConfig{
		BaseURL: "http://sheet.test/exec",
		HTTPClient: &http.Client{Transport: &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				return ln.Dial()
			},
		}},
		Logger: testLogger(),
	})
	ctx := context.Background()

	q, err := client.GetQuestion(ctx, "KARTU-01")
	require.NoError(t, err)
	assert.Equal(t, models.QuestionNumber("1"), q.Number)
	assert.Equal(t, "Soal pertama", q.Text)
	assert.True(t, q.HasMedia())

	require.NoError(t, client.UpdateNumber(ctx, "KARTU-01"))

	q, err = client.GetQuestion(ctx, "KARTU-01")
	require.NoError(t, err)
	assert.Equal(t, models.QuestionNumber("2"), q.Number)

	_, err = client.GetQuestion(ctx, "NOPE")
	require.Error(t, err)
	assert.True(t, backend.IsRejected(err))
	assert.Equal(t, MsgCardNotFound, backend.RejectionMessage(err))
}
