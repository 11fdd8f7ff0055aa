// Package webhook forwards chat messages to the upstream automation webhook.
package webhook

import (
	"context"
	"encoding/json"

	"github.com/xiaot623/chatrelay/internal/protocol"
)

// Forwarder delivers a payload to the webhook and returns its reply.
type Forwarder interface {
	// Forward posts the payload once. A non-2xx reply, a transport failure and a
	// timeout are all reported as *Error.
	Forward(ctx context.Context, requestID string, payload *protocol.WebhookPayload) (*Response, error)

	// Target is the URL requests are sent to.
	Target() string
}

// Response is a successful webhook reply.
type Response struct {
	StatusCode int
	Body       json.RawMessage // JSON as received, or the raw text as a JSON string
}

// Ensure Client and MockClient implement Forwarder.
var (
	_ Forwarder = (*Client)(nil)
	_ Forwarder = (*MockClient)(nil)
)
