// Package ws serves the WebSocket variant of the chat relay.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/xiaot623/chatrelay/internal/config"
	"github.com/xiaot623/chatrelay/internal/hub"
	"github.com/xiaot623/chatrelay/internal/protocol"
	"github.com/xiaot623/chatrelay/internal/relay"
)

// Server handles WebSocket connections.
type Server struct {
	cfg      *config.Config
	hub      *hub.Hub
	relay    *relay.Service
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// NewServer creates a new WebSocket server.
func NewServer(cfg *config.Config, h *hub.Hub, svc *relay.Service, logger zerolog.Logger) *Server {
	return &Server{
		cfg:   cfg,
		hub:   h,
		relay: svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Same policy as the HTTP endpoint's CORS: any origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger.With().Str("component", "ws").Logger(),
	}
}

// HandleWebSocket upgrades the request and binds the connection to the chatId query param.
// GET /api/chat/ws?chatId=...
func (s *Server) HandleWebSocket(c echo.Context) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to upgrade WebSocket")
		return err
	}

	conn := s.hub.NewConnection(ws, c.QueryParam("chatId"))
	s.hub.Register(conn)

	ws.SetReadLimit(s.cfg.MaxMessageSize)

	go s.writePump(conn)
	go s.readPump(conn)

	return nil
}

// readPump reads chat requests until the connection drops.
func (s *Server) readPump(conn *hub.Connection) {
	defer func() {
		s.hub.Unregister(conn)
		conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		return nil
	})

	for {
		_, message, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Warn().Err(err).Str("conn_id", conn.ID).Msg("WebSocket error")
			}
			break
		}

		s.handleMessage(conn, message)
	}
}

// writePump drains the connection's send queue and keeps it alive with pings.
func (s *Server) writePump(conn *hub.Connection) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if !ok {
				// Hub closed the channel
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.logger.Warn().Err(err).Str("conn_id", conn.ID).Msg("failed to write message")
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage relays one frame. The webhook call runs off the read loop so a slow
// upstream does not stall pings or further requests.
func (s *Server) handleMessage(conn *hub.Connection, data []byte) {
	requestID := uuid.New().String()

	var req protocol.ChatRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.sendError(conn, requestID, "invalid JSON message")
		return
	}
	if _, ok := req.Text(); !ok {
		s.sendError(conn, requestID, protocol.ErrMessageRequired)
		return
	}
	if len(req.ChatID) == 0 && conn.ChatID != "" {
		req.ChatID, _ = json.Marshal(conn.ChatID)
	}

	go func() {
		// The webhook client carries its own timeout.
		result := s.relay.Chat(context.Background(), requestID, &req)

		frame := protocol.Frame{
			Type:      protocol.TypeReply,
			Ts:        time.Now().UnixMilli(),
			RequestID: requestID,
			ChatID:    conn.ChatID,
			Status:    result.Status,
			Envelope:  result.Envelope,
		}
		if conn.ChatID == "" {
			if err := s.hub.SendJSONToConnection(conn, frame); err != nil {
				s.logger.Warn().Err(err).Str("conn_id", conn.ID).Msg("failed to deliver reply")
			}
			return
		}
		if err := s.hub.BroadcastJSON(conn.ChatID, frame); err != nil {
			s.logger.Error().Err(err).Str("chat_id", conn.ChatID).Msg("failed to broadcast reply")
		}
	}()
}

// sendError reports a rejected frame to the sending connection only.
func (s *Server) sendError(conn *hub.Connection, requestID, message string) {
	frame := protocol.Frame{
		Type:      protocol.TypeError,
		Ts:        time.Now().UnixMilli(),
		RequestID: requestID,
		ChatID:    conn.ChatID,
		Status:    http.StatusBadRequest,
		Error:     message,
	}
	if err := s.hub.SendJSONToConnection(conn, frame); err != nil {
		s.logger.Warn().Err(err).Str("conn_id", conn.ID).Msg("failed to send error")
	}
}
