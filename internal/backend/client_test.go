package backend

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/SAP-F-2025/quiro-companion/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(baseURL string) *Client {
	return NewClient(ClientConfig{
		BaseURL: baseURL,
		Timeout: 2 * time.Second,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func serveJSON(t *testing.T, status int, body string, check func(r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_GetQuestion_Success(t *testing.T) {
	srv := serveJSON(t, http.StatusOK,
		`{"status":"success","data":{"id":"A1","nomorSoal":1,"pertanyaan":"Q?","mediaDrive":"","mediaLainnya":""}}`,
		func(r *http.Request) {
			assert.Equal(t, http.MethodGet, r.Method)
			assert.Equal(t, "get_question", r.URL.Query().Get("action"))
			assert.Equal(t, "A1", r.URL.Query().Get("id"))
		})

	q, err := newTestClient(srv.URL).GetQuestion(context.Background(), "A1")
	require.NoError(t, err)
	assert.Equal(t, &models.Question{ID: "A1", Number: "1", Text: "Q?"}, q)
	assert.False(t, q.HasMedia())
}

func TestClient_GetQuestion_KeepsExistingQuery(t *testing.T) {
	srv := serveJSON(t, http.StatusOK,
		`{"status":"success","data":{"nomorSoal":"7","pertanyaan":"Sebutkan ibukota Jawa Barat","mediaDrive":"https://drive.example/x"}}`,
		func(r *http.Request) {
			assert.Equal(t, "/macros/s/abc/exec", r.URL.Path)
			assert.Equal(t, "1", r.URL.Query().Get("v"))
		})

	q, err := newTestClient(srv.URL+"/macros/s/abc/exec?v=1").GetQuestion(context.Background(), "B2")
	require.NoError(t, err)
	assert.Equal(t, "B2", q.ID, "missing id falls back to the requested one")
	assert.Equal(t, models.QuestionNumber("7"), q.Number)
	assert.True(t, q.HasMedia())
}

func TestClient_GetQuestion_Rejected(t *testing.T) {
	srv := serveJSON(t, http.StatusOK, `{"status":"error","message":"not found"}`, nil)

	_, err := newTestClient(srv.URL).GetQuestion(context.Background(), "ZZ")
	require.Error(t, err)
	assert.True(t, IsRejected(err))
	assert.False(t, IsTransport(err))
	assert.ErrorIs(t, err, ErrRejected)
	assert.Equal(t, "not found", RejectionMessage(err))
}

func TestClient_GetQuestion_SuccessWithoutData(t *testing.T) {
	srv := serveJSON(t, http.StatusOK, `{"status":"success"}`, nil)

	_, err := newTestClient(srv.URL).GetQuestion(context.Background(), "A1")
	assert.True(t, IsRejected(err))
	assert.Empty(t, RejectionMessage(err))
}

func TestClient_RejectedWithErrorStatusCode(t *testing.T) {
	srv := serveJSON(t, http.StatusNotFound, `{"status":"error","message":"ID tidak terdaftar"}`, nil)

	err := newTestClient(srv.URL).UpdateNumber(context.Background(), "A1")
	assert.True(t, IsRejected(err))
	assert.Equal(t, "ID tidak terdaftar", RejectionMessage(err))
}

func TestClient_TransportFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error without body", http.StatusBadGateway, ""},
		{"html error page", http.StatusInternalServerError, "<html>oops</html>"},
		{"ok with garbage", http.StatusOK, "not json"},
		{"ok without status", http.StatusOK, `{"data":{}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := serveJSON(t, tt.status, tt.body, nil)

			_, err := newTestClient(srv.URL).GetQuestion(context.Background(), "A1")
			require.Error(t, err)
			assert.True(t, IsTransport(err))
			assert.False(t, IsRejected(err))
		})
	}
}

func TestClient_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	err := newTestClient(addr).UpdateNumber(context.Background(), "A1")
	assert.True(t, IsTransport(err))

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, ActionUpdateNumber, te.Action)
}

func TestClient_UpdateNumber(t *testing.T) {
	srv := serveJSON(t, http.StatusOK, `{"status":"success"}`, func(r *http.Request) {
		assert.Equal(t, "update_number", r.URL.Query().Get("action"))
		assert.Equal(t, "A1", r.URL.Query().Get("id"))
	})

	assert.NoError(t, newTestClient(srv.URL).UpdateNumber(context.Background(), "A1"))
}

func TestClient_NotConfigured(t *testing.T) {
	c := newTestClient("   ")
	assert.False(t, c.Configured())

	_, err := c.GetQuestion(context.Background(), "A1")
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.ErrorIs(t, c.UpdateNumber(context.Background(), "A1"), ErrNotConfigured)
}

func TestClient_ContextCancelled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(srv.URL).GetQuestion(ctx, "A1")
	assert.True(t, IsTransport(err))
	assert.ErrorIs(t, err, context.Canceled)
}
