package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/chatrelay/internal/protocol"
	"github.com/xiaot623/chatrelay/internal/relay"
	"github.com/xiaot623/chatrelay/internal/webhook"
)

const chatUsage = "Use POST /api/chat with JSON { message }"

// handleHealth reports the webhook target.
// GET /health
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, protocol.Health{
		Status:            "ok",
		WebhookConfigured: s.cfg.WebhookConfigured(),
		Target:            s.relay.Target(),
	})
}

// handleChatUsage points callers that GET the chat endpoint at the right method.
// GET /api/chat
func (s *Server) handleChatUsage(c echo.Context) error {
	return c.JSON(http.StatusMethodNotAllowed, protocol.Failure(chatUsage))
}

// handleChat forwards one message to the webhook.
// POST /api/chat
func (s *Server) handleChat(c echo.Context) error {
	var req protocol.ChatRequest
	if err := c.Bind(&req); err != nil {
		result := relay.Reject()
		return c.JSON(result.Status, result.Envelope)
	}

	result := s.relay.Chat(c.Request().Context(), requestID(c), &req)
	return c.JSON(result.Status, result.Envelope)
}

// handleMock answers like a webhook would, without calling one.
// POST /api/mock
func (s *Server) handleMock(c echo.Context) error {
	var req protocol.ChatRequest
	// Any body is acceptable here; a bad one just gets the greeting.
	_ = c.Bind(&req)

	return c.JSON(http.StatusOK, protocol.Envelope{
		Success:         true,
		WebhookResponse: mustJSON(protocol.MockReply{Text: webhook.MockReplyText(mockMessage(req.Message))}),
	})
}

// mockMessage renders a loosely typed message the way a template string would:
// strings as-is, other truthy scalars as their JSON text, falsy values as empty.
func mockMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return ""
	case float64:
		if t == 0 {
			return ""
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case nil:
		return ""
	default:
		return string(raw)
	}
}

func requestID(c echo.Context) string {
	return c.Response().Header().Get(echo.HeaderXRequestID)
}

func mustJSON(v interface{}) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}
