// Package rpc exposes a JSON-RPC endpoint that lets asynchronous workflows
// deliver replies to the WebSocket connections of a chat.
package rpc

import (
	"context"
	"encoding/json"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/xiaot623/chatrelay/internal/hub"
	"github.com/xiaot623/chatrelay/internal/protocol"
)

// ServiceName is the JSON-RPC service prefix, e.g. "Relay.Push".
const ServiceName = "Relay"

// Server accepts JSON-RPC connections.
type Server struct {
	mu        sync.Mutex
	listener  net.Listener
	rpcServer *rpc.Server
	logger    zerolog.Logger
	done      chan struct{}
}

// NewServer creates a push server backed by h.
func NewServer(h *hub.Hub, logger zerolog.Logger) (*Server, error) {
	rpcServer := rpc.NewServer()
	handler := &Handler{hub: h, logger: logger}
	if err := rpcServer.RegisterName(ServiceName, handler); err != nil {
		return nil, errors.Wrap(err, "failed to register rpc handler")
	}

	return &Server{
		rpcServer: rpcServer,
		logger:    logger,
		done:      make(chan struct{}),
	}, nil
}

// Start listens on addr and serves until Shutdown.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", addr)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until it is closed.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				close(s.done)
				return nil
			}
			s.logger.Warn().Err(err).Msg("rpc accept error")
			continue
		}

		go s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(conn))
	}
}

// Shutdown stops accepting new connections.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return nil
	}

	if err := ln.Close(); err != nil {
		return err
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handler implements the Relay RPC methods.
type Handler struct {
	hub    *hub.Hub
	logger zerolog.Logger
}

// PushRequest delivers Reply to everyone following ChatID.
type PushRequest struct {
	ChatID    string          `json:"chatId"`
	RequestID string          `json:"requestId,omitempty"`
	Reply     json.RawMessage `json:"reply"`
}

// PushResponse reports whether any connection was following the chat.
type PushResponse struct {
	OK        bool `json:"ok"`
	Delivered bool `json:"delivered"`
}

// Push broadcasts a reply frame shaped like a successful chat envelope.
func (h *Handler) Push(req *PushRequest, resp *PushResponse) error {
	if req == nil {
		return errors.New("push request is required")
	}
	if req.ChatID == "" {
		return errors.New("chatId is required")
	}
	if len(req.Reply) == 0 {
		return errors.New("reply is required")
	}

	frame := protocol.Frame{
		Type:      protocol.TypePush,
		Ts:        time.Now().UnixMilli(),
		RequestID: req.RequestID,
		ChatID:    req.ChatID,
		Status:    200,
		Envelope:  protocol.Success(req.Reply),
	}

	delivered := h.hub.HasActiveConnections(req.ChatID)
	if err := h.hub.BroadcastJSON(req.ChatID, frame); err != nil {
		return errors.Wrap(err, "failed to broadcast push")
	}

	h.logger.Info().
		Str("chat_id", req.ChatID).
		Str("request_id", req.RequestID).
		Bool("delivered", delivered).
		Msg("reply pushed")

	if resp != nil {
		resp.OK = true
		resp.Delivered = delivered
	}
	return nil
}
