package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/chatrelay/internal/protocol"
	"github.com/xiaot623/chatrelay/internal/webhook"
)

type fakeForwarder struct {
	mu       sync.Mutex
	calls    []*protocol.WebhookPayload
	response *webhook.Response
	err      error
}

func (f *fakeForwarder) Forward(ctx context.Context, requestID string, payload *protocol.WebhookPayload) (*webhook.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, payload)
	return f.response, f.err
}

func (f *fakeForwarder) Target() string { return "http://hooks.local/chat" }

func (f *fakeForwarder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func decodeRequest(t *testing.T, body string) *protocol.ChatRequest {
	t.Helper()
	var req protocol.ChatRequest
	require.NoError(t, json.Unmarshal([]byte(body), &req))
	return &req
}

func TestChatRejectsInvalidMessage(t *testing.T) {
	for _, body := range []string{`{}`, `{"message":123}`, `{"message":""}`, `{"message":null}`, `{"message":["hi"]}`} {
		t.Run(body, func(t *testing.T) {
			fwd := &fakeForwarder{}
			svc := New(fwd, zerolog.Nop())

			result := svc.Chat(context.Background(), "r1", decodeRequest(t, body))
			assert.Equal(t, http.StatusBadRequest, result.Status)

			out, err := json.Marshal(result.Envelope)
			require.NoError(t, err)
			assert.JSONEq(t, `{"success":false,"error":"Message is required"}`, string(out))
			assert.Zero(t, fwd.callCount())
		})
	}
}

func TestChatSuccessPassesBodyThrough(t *testing.T) {
	fwd := &fakeForwarder{response: &webhook.Response{StatusCode: 200, Body: json.RawMessage(`{"output":"hi","meta":{"n":1}}`)}}
	svc := New(fwd, zerolog.Nop())

	result := svc.Chat(context.Background(), "r1", decodeRequest(t, `{"message":"hello","chatId":"c-1","route":"general"}`))
	assert.Equal(t, http.StatusOK, result.Status)

	out, err := json.Marshal(result.Envelope)
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true,"webhookResponse":{"output":"hi","meta":{"n":1}}}`, string(out))

	require.Equal(t, 1, fwd.callCount())
	payload := fwd.calls[0]
	assert.Equal(t, "hello", payload.Message)
	assert.Equal(t, "hello", payload.Text)
	assert.Equal(t, "hello", payload.Prompt)
	assert.Equal(t, "hello", payload.Input)
	assert.JSONEq(t, `"c-1"`, string(payload.ChatID))
	assert.JSONEq(t, `"general"`, string(payload.Route))
}

func TestChatUpstreamStatusPassthrough(t *testing.T) {
	fwd := &fakeForwarder{err: &webhook.Error{
		StatusCode: http.StatusBadGateway,
		Body:       json.RawMessage(`"bad gateway"`),
		Message:    "Request failed with status code 502",
	}}
	svc := New(fwd, zerolog.Nop())

	result := svc.Chat(context.Background(), "r1", decodeRequest(t, `{"message":"hello"}`))
	assert.Equal(t, http.StatusBadGateway, result.Status)

	out, err := json.Marshal(result.Envelope)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"success": false,
		"error": "Request failed with status code 502",
		"upstreamStatus": 502,
		"upstreamData": "bad gateway",
		"target": "http://hooks.local/chat"
	}`, string(out))
}

func TestChatTransportErrorIs500(t *testing.T) {
	fwd := &fakeForwarder{err: &webhook.Error{Timeout: true, Message: "timeout of 20000ms exceeded"}}
	svc := New(fwd, zerolog.Nop())

	result := svc.Chat(context.Background(), "r1", decodeRequest(t, `{"message":"hello"}`))
	assert.Equal(t, http.StatusInternalServerError, result.Status)
	assert.False(t, result.Envelope.Success)
	assert.Equal(t, "timeout of 20000ms exceeded", result.Envelope.Error)
	assert.Equal(t, 500, result.Envelope.UpstreamStatus)
	assert.Equal(t, "null", string(result.Envelope.UpstreamData))
}

func TestChatUntypedErrorIs500(t *testing.T) {
	fwd := &fakeForwarder{err: errors.New("boom")}
	svc := New(fwd, zerolog.Nop())

	result := svc.Chat(context.Background(), "r1", decodeRequest(t, `{"message":"hello"}`))
	assert.Equal(t, http.StatusInternalServerError, result.Status)
	assert.Equal(t, "boom", result.Envelope.Error)
	assert.Equal(t, "http://hooks.local/chat", result.Envelope.Target)
}

func TestChatAgainstMockForwarder(t *testing.T) {
	svc := New(webhook.NewMockClient(), zerolog.Nop())

	result := svc.Chat(context.Background(), "r1", protocol.NewChatRequest("c-1", "", "ping"))
	assert.Equal(t, http.StatusOK, result.Status)
	assert.JSONEq(t, `{"text":"You said: ping"}`, string(result.Envelope.WebhookResponse))
	assert.Equal(t, webhook.MockTarget, svc.Target())
}
