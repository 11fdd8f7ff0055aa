package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/chatrelay/internal/config"
	"github.com/xiaot623/chatrelay/internal/hub"
	"github.com/xiaot623/chatrelay/internal/protocol"
	"github.com/xiaot623/chatrelay/internal/relay"
	"github.com/xiaot623/chatrelay/internal/webhook"
)

func newTestServer(t *testing.T) string {
	t.Helper()
	cfg := &config.Config{
		PingInterval:   time.Second,
		WriteTimeout:   time.Second,
		ReadTimeout:    5 * time.Second,
		MaxMessageSize: 65536,
	}

	h := hub.NewHub()
	go h.Run()
	t.Cleanup(h.Stop)

	svc := relay.New(webhook.NewMockClient(), zerolog.Nop())
	e := echo.New()
	e.GET("/api/chat/ws", NewServer(cfg, h, svc, zerolog.Nop()).HandleWebSocket)

	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/chat/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) protocol.Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame protocol.Frame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestReplyIsBroadcastToChat(t *testing.T) {
	url := newTestServer(t) + "?chatId=chat-1"
	sender := dial(t, url)
	follower := dial(t, url)

	// Give the hub a moment to register both connections.
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, sender.WriteJSON(map[string]string{"message": "hello"}))

	for _, conn := range []*websocket.Conn{sender, follower} {
		frame := readFrame(t, conn)
		assert.Equal(t, protocol.TypeReply, frame.Type)
		assert.Equal(t, "chat-1", frame.ChatID)
		assert.Equal(t, http.StatusOK, frame.Status)
		require.NotNil(t, frame.Envelope)
		assert.True(t, frame.Envelope.Success)
		assert.JSONEq(t, `{"text":"You said: hello"}`, string(frame.Envelope.WebhookResponse))
	}
}

func TestUnboundConnectionGetsOwnReply(t *testing.T) {
	conn := dial(t, newTestServer(t))

	require.NoError(t, conn.WriteJSON(map[string]string{"message": "solo"}))

	frame := readFrame(t, conn)
	assert.Equal(t, protocol.TypeReply, frame.Type)
	assert.Empty(t, frame.ChatID)
	require.NotNil(t, frame.Envelope)
	assert.JSONEq(t, `{"text":"You said: solo"}`, string(frame.Envelope.WebhookResponse))
}

func TestInvalidFrames(t *testing.T) {
	conn := dial(t, newTestServer(t)+"?chatId=chat-1")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	frame := readFrame(t, conn)
	assert.Equal(t, protocol.TypeError, frame.Type)
	assert.Equal(t, "invalid JSON message", frame.Error)

	raw, _ := json.Marshal(map[string]int{"message": 123})
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, raw))
	frame = readFrame(t, conn)
	assert.Equal(t, protocol.TypeError, frame.Type)
	assert.Equal(t, http.StatusBadRequest, frame.Status)
	assert.Equal(t, protocol.ErrMessageRequired, frame.Error)
}
