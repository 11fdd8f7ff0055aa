// Package chatclient talks to the relay's chat endpoint and turns its loosely
// shaped replies into display text.
package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/xiaot623/chatrelay/internal/protocol"
)

// DefaultBaseURL is where a locally started relay listens.
const DefaultBaseURL = "http://localhost:5000"

// DefaultErrorMessage is used when a failure carries no message at all.
const DefaultErrorMessage = "Request failed"

// StatusError is a non-2xx relay reply.
type StatusError struct {
	StatusCode int
	// Message is the envelope's error field, empty if the body had none.
	Message string
	Body    []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("Request failed with status code %d", e.StatusCode)
}

// ErrorMessage is the best-effort text shown for a failed send: the relay's
// envelope error, else the error itself, else DefaultErrorMessage.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.Message != "" {
		return statusErr.Message
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return DefaultErrorMessage
}

// Client is an HTTP client for the relay.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a relay client. An empty baseURL means DefaultBaseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// BaseURL returns the relay address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Chat calls POST /api/chat and returns the raw response body on success.
func (c *Client) Chat(ctx context.Context, req *protocol.ChatRequest) (json.RawMessage, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal chat request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "failed to reach relay")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read relay response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: respBody}
		var env protocol.Envelope
		if json.Unmarshal(respBody, &env) == nil {
			statusErr.Message = env.Error
		}
		return nil, statusErr
	}

	return respBody, nil
}

// Health calls GET /health.
func (c *Client) Health(ctx context.Context) (*protocol.Health, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "failed to reach relay")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	var health protocol.Health
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, errors.Wrap(err, "failed to decode health response")
	}
	return &health, nil
}
