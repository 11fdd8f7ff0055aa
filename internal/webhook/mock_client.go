package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"github.com/xiaot623/chatrelay/internal/protocol"
)

// DefaultGreeting is the mock reply when no message is given.
const DefaultGreeting = "Hello! Ask me anything."

// MockTarget is reported as the target while in mock mode.
const MockTarget = "mock://webhook"

// MockClient answers in-process with an echo of the message.
type MockClient struct{}

// NewMockClient creates a new mock forwarder.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// Target returns the mock pseudo-URL.
func (m *MockClient) Target() string {
	return MockTarget
}

// Forward returns a webhook-shaped {"text": ...} reply.
func (m *MockClient) Forward(ctx context.Context, requestID string, payload *protocol.WebhookPayload) (*Response, error) {
	select {
	case <-ctx.Done():
		return nil, &Error{Message: ctx.Err().Error(), cause: ctx.Err()}
	default:
	}

	body, err := json.Marshal(protocol.MockReply{Text: MockReplyText(payload.Message)})
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal mock reply")
	}
	return &Response{StatusCode: http.StatusOK, Body: body}, nil
}

// MockReplyText echoes message, or greets when it is blank.
func MockReplyText(message string) string {
	if strings.TrimSpace(message) == "" {
		return DefaultGreeting
	}
	return "You said: " + message
}
