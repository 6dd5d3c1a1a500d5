package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/SAP-F-2025/quiro-companion/internal/models"
)

const (
	ActionGetQuestion  = "get_question"
	ActionUpdateNumber = "update_number"

	maxResponseBytes = 1 << 20
)

// Client talks to the spreadsheet backend. Both actions are plain GET
// requests against one base address.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

type ClientConfig struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

func NewClient(cfg ClientConfig) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimSpace(cfg.BaseURL),
		httpClient: httpClient,
		logger:     logger,
	}
}

// Configured reports whether a base address was supplied.
func (c *Client) Configured() bool {
	return c.baseURL != ""
}

// GetQuestion fetches the question currently assigned to id.
func (c *Client) GetQuestion(ctx context.Context, id string) (*models.Question, error) {
	resp, err := c.call(ctx, ActionGetQuestion, id)
	if err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return nil, &RejectedError{Action: ActionGetQuestion, Status: resp.Status}
	}
	q := *resp.Data
	if q.ID == "" {
		q.ID = id
	}
	return &q, nil
}

// UpdateNumber asks the backend to assign a new random question to id.
func (c *Client) UpdateNumber(ctx context.Context, id string) error {
	_, err := c.call(ctx, ActionUpdateNumber, id)
	return err
}

func (c *Client) call(ctx context.Context, action, id string) (*models.BackendResponse, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	endpoint, err := c.endpoint(action, id)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &TransportError{Action: action, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	res, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "Backend request failed", "action", action, "id", id, "error", err)
		return nil, &TransportError{Action: action, Err: err}
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return nil, &TransportError{Action: action, StatusCode: res.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	var payload models.BackendResponse
	if err := json.Unmarshal(body, &payload); err != nil || payload.Status == "" {
		if err == nil {
			err = errors.New("response has no status")
		}
		c.logger.WarnContext(ctx, "Backend returned an unusable body",
			"action", action, "id", id, "status_code", res.StatusCode, "error", err)
		return nil, &TransportError{Action: action, StatusCode: res.StatusCode, Err: fmt.Errorf("decode body: %w", err)}
	}

	c.logger.DebugContext(ctx, "Backend responded",
		"action", action,
		"id", id,
		"status_code", res.StatusCode,
		"status", payload.Status,
		"duration", time.Since(start))

	if !payload.Succeeded() {
		return nil, &RejectedError{Action: action, Status: payload.Status, Message: payload.Message}
	}
	return &payload, nil
}

func (c *Client) endpoint(action, id string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotConfigured, err)
	}
	q := u.Query()
	q.Set("action", action)
	q.Set("id", id)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
