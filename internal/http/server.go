// Package http provides the relay's HTTP server.
package http

import (
	"context"
	"net/http"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/xiaot623/chatrelay/internal/config"
	"github.com/xiaot623/chatrelay/internal/relay"
)

// WebSocketHandler serves the WebSocket relay channel.
type WebSocketHandler interface {
	HandleWebSocket(c echo.Context) error
}

// Server is the relay HTTP server.
type Server struct {
	echo   *echo.Echo
	cfg    *config.Config
	relay  *relay.Service
	logger zerolog.Logger
}

// NewServer creates the relay HTTP server and registers its routes.
// ws may be nil to disable the WebSocket channel.
func NewServer(cfg *config.Config, svc *relay.Service, ws WebSocketHandler, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:   e,
		cfg:    cfg,
		relay:  svc,
		logger: logger,
	}

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: func() string { return uuid.New().String() },
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			evt := s.logger.Info()
			if v.Error != nil {
				evt = s.logger.Error().Err(v.Error)
			}
			evt.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	}))
	e.Use(middleware.CORS())

	// Register routes
	e.GET("/health", s.handleHealth)
	e.GET("/api/chat", s.handleChatUsage)
	e.POST("/api/chat", s.handleChat)
	e.POST("/api/mock", s.handleMock)
	if ws != nil {
		e.GET("/api/chat/ws", ws.HandleWebSocket)
	}

	s.registerStatic()

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start starts the HTTP server.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// registerStatic serves a built frontend from StaticDir, falling back to index.html
// for client-side routes.
func (s *Server) registerStatic() {
	if s.cfg.StaticDir == "" {
		return
	}
	if info, err := os.Stat(s.cfg.StaticDir); err != nil || !info.IsDir() {
		s.logger.Warn().Str("dir", s.cfg.StaticDir).Msg("static dir not found, frontend will not be served")
		return
	}

	s.echo.Use(middleware.StaticWithConfig(middleware.StaticConfig{
		Root:  s.cfg.StaticDir,
		Index: "index.html",
		HTML5: true,
		Skipper: func(c echo.Context) bool {
			p := c.Request().URL.Path
			return p == "/health" || strings.HasPrefix(p, "/api/")
		},
	}))
}
