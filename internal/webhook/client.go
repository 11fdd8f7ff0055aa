package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/xiaot623/chatrelay/internal/protocol"
)

// HeaderRequestID carries the relay request id to the webhook.
const HeaderRequestID = "X-Request-Id"

// Error describes a failed webhook call.
type Error struct {
	// StatusCode is the upstream HTTP status, 0 when no response arrived.
	StatusCode int
	// Body is the upstream reply body, nil when no response arrived.
	Body    json.RawMessage
	Timeout bool
	Message string
	cause   error
}

func (e *Error) Error() string {
	return e.Message
}

// Cause returns the underlying transport error, if any.
func (e *Error) Cause() error {
	return e.cause
}

// Unwrap supports errors.Is/As on the transport error.
func (e *Error) Unwrap() error {
	return e.cause
}

// Client posts payloads to a fixed webhook URL.
type Client struct {
	url        string
	timeout    time.Duration
	httpClient *http.Client
}

// NewClient creates a webhook client with a bounded request timeout.
func NewClient(url string, timeout time.Duration) *Client {
	return &Client{
		url:     url,
		timeout: timeout,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Target returns the webhook URL.
func (c *Client) Target() string {
	return c.url
}

// Forward posts the payload to the webhook. No retries are attempted.
func (c *Client) Forward(ctx context.Context, requestID string, payload *protocol.WebhookPayload) (*Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal webhook payload")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Message: err.Error(), cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json, text/plain, */*")
	if requestID != "" {
		httpReq.Header.Set(HeaderRequestID, requestID)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, c.transportError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.transportError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{
			StatusCode: resp.StatusCode,
			Body:       protocol.RawJSON(respBody),
			Message:    fmt.Sprintf("Request failed with status code %d", resp.StatusCode),
		}
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       protocol.RawJSON(respBody),
	}, nil
}

func (c *Client) transportError(err error) *Error {
	if isTimeout(err) {
		return &Error{
			Timeout: true,
			Message: fmt.Sprintf("timeout of %dms exceeded", c.timeout.Milliseconds()),
			cause:   err,
		}
	}
	return &Error{Message: err.Error(), cause: err}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
