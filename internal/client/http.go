package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/alfredjeanlab/hivewire/internal/event"
)

// HTTPClient talks to the hub's HTTP/JSON surface.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPClient creates a new HTTP client targeting the given base URL
// (e.g. "http://localhost:7691").
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
}

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error { return nil }

// APIError is an error response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// Health checks the server health endpoint.
func (c *HTTPClient) Health(ctx context.Context) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/health", nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// Status fetches the server's lifecycle snapshot.
func (c *HTTPClient) Status(ctx context.Context) (*Status, error) {
	var st Status
	if err := c.doJSON(ctx, http.MethodGet, "/v1/status", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Clients lists the currently registered connections.
func (c *HTTPClient) Clients(ctx context.Context) ([]ClientInfo, error) {
	var resp struct {
		Clients []ClientInfo `json:"clients"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/clients", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Clients, nil
}

// History fetches buffered events. An empty channel means all channels;
// limit <= 0 returns everything retained.
func (c *HTTPClient) History(ctx context.Context, channel string, limit int) ([]*event.Event, error) {
	q := url.Values{}
	if channel != "" {
		q.Set("channel", channel)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/v1/events"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var resp struct {
		Events []*event.Event `json:"events"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

// Clear empties the server's replay buffer.
func (c *HTTPClient) Clear(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodDelete, "/v1/events", nil, nil)
}

// Emit publishes a single event through the one-shot ingress.
func (c *HTTPClient) Emit(ctx context.Context, channel, typ string, payload json.RawMessage) error {
	body := struct {
		Channel string          `json:"channel"`
		Type    string          `json:"type"`
		Event   json.RawMessage `json:"event,omitempty"`
	}{Channel: channel, Type: typ, Event: payload}
	return c.doJSON(ctx, http.MethodPost, "/v1/events", body, nil)
}

// doJSON performs an HTTP request with optional JSON body and decodes the response.
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body, result any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: apiErr.Error}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
	}

	if result != nil {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
