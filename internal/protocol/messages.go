// Package protocol defines the JSON contract between chat clients, the relay and the webhook.
package protocol

import "encoding/json"

// ErrMessageRequired is the envelope error returned for a missing or malformed message.
const ErrMessageRequired = "Message is required"

// ChatRequest is the body of POST /api/chat.
//
// ChatID and Route are opaque to the relay and forwarded as sent, so they are kept raw.
type ChatRequest struct {
	ChatID  json.RawMessage `json:"chatId,omitempty"`
	Route   json.RawMessage `json:"route,omitempty"`
	Message json.RawMessage `json:"message,omitempty"`
}

// NewChatRequest builds a request from plain strings. Empty chatID and route are omitted.
func NewChatRequest(chatID, route, message string) *ChatRequest {
	req := &ChatRequest{Message: mustString(message)}
	if chatID != "" {
		req.ChatID = mustString(chatID)
	}
	if route != "" {
		req.Route = mustString(route)
	}
	return req
}

// Text returns the message when it is a non-empty JSON string.
func (r *ChatRequest) Text() (string, bool) {
	if r == nil || len(r.Message) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(r.Message, &s); err != nil || s == "" {
		return "", false
	}
	return s, true
}

// WebhookPayload is what the relay posts upstream. The message is repeated under
// the field names different automation flows tend to read.
type WebhookPayload struct {
	ChatID  json.RawMessage `json:"chatId,omitempty"`
	Route   json.RawMessage `json:"route,omitempty"`
	Message string          `json:"message"`
	Text    string          `json:"text"`
	Prompt  string          `json:"prompt"`
	Input   string          `json:"input"`
}

// NewWebhookPayload fans message out to every synonym field.
func NewWebhookPayload(chatID, route json.RawMessage, message string) *WebhookPayload {
	return &WebhookPayload{
		ChatID:  chatID,
		Route:   route,
		Message: message,
		Text:    message,
		Prompt:  message,
		Input:   message,
	}
}

// Envelope is the uniform relay response.
type Envelope struct {
	Success         bool            `json:"success"`
	WebhookResponse json.RawMessage `json:"webhookResponse,omitempty"`
	Error           string          `json:"error,omitempty"`
	UpstreamStatus  int             `json:"upstreamStatus,omitempty"`
	UpstreamData    json.RawMessage `json:"upstreamData,omitempty"`
	Target          string          `json:"target,omitempty"`
}

// Success wraps an upstream body.
func Success(body json.RawMessage) *Envelope {
	return &Envelope{Success: true, WebhookResponse: body}
}

// Failure builds a failure envelope with no upstream details.
func Failure(message string) *Envelope {
	return &Envelope{Success: false, Error: message}
}

// Health is the body of GET /health.
type Health struct {
	Status            string `json:"status"`
	WebhookConfigured bool   `json:"webhookConfigured"`
	Target            string `json:"target"`
}

// MockReply is the webhook-shaped body produced by the mock endpoint and mock forwarder.
type MockReply struct {
	Text string `json:"text"`
}

// WebSocket frame types sent by the relay.
const (
	TypeReply = "reply"
	TypePush  = "push"
	TypeError = "error"
)

// Frame is a relay-to-client WebSocket message.
type Frame struct {
	Type      string    `json:"type"`
	Ts        int64     `json:"ts"`
	RequestID string    `json:"requestId,omitempty"`
	ChatID    string    `json:"chatId,omitempty"`
	Status    int       `json:"status,omitempty"`
	Envelope  *Envelope `json:"envelope,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// RawJSON encodes body as a JSON value: JSON bodies pass through, anything else
// becomes a JSON string and an empty body becomes "".
func RawJSON(body []byte) json.RawMessage {
	if len(body) > 0 && json.Valid(body) {
		return json.RawMessage(body)
	}
	return mustString(string(body))
}

func mustString(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}
