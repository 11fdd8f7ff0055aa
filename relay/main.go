// Command relay forwards chat messages from the web client to the automation webhook.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/xiaot623/chatrelay/internal/config"
	internalhttp "github.com/xiaot623/chatrelay/internal/http"
	"github.com/xiaot623/chatrelay/internal/hub"
	"github.com/xiaot623/chatrelay/internal/logging"
	"github.com/xiaot623/chatrelay/internal/relay"
	"github.com/xiaot623/chatrelay/internal/transport/rpc"
	"github.com/xiaot623/chatrelay/internal/webhook"
	"github.com/xiaot623/chatrelay/internal/ws"
)

func main() {
	// Load configuration
	cfg := config.Load()
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	logger.Info().
		Int("port", cfg.Port).
		Str("webhook", cfg.WebhookURL).
		Dur("webhook_timeout", cfg.WebhookTimeout).
		Bool("mock", cfg.MockMode()).
		Msg("starting relay")

	// Initialize hub
	connectionHub := hub.NewHub()
	go connectionHub.Run()

	svc := relay.New(webhook.NewForwarder(cfg), logger)
	wsServer := ws.NewServer(cfg, connectionHub, svc, logger)
	server := internalhttp.NewServer(cfg, svc, wsServer, logger)

	var rpcServer *rpc.Server
	if cfg.RPCAddr != "" {
		var err error
		rpcServer, err = rpc.NewServer(connectionHub, logger)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create rpc server")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.Port)
		logger.Info().Str("addr", addr).Msg("server running")
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			return errors.Wrap(err, "failed to start HTTP server")
		}
		return nil
	})

	if rpcServer != nil {
		g.Go(func() error {
			logger.Info().Str("addr", cfg.RPCAddr).Msg("push rpc running")
			return rpcServer.Start(cfg.RPCAddr)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down relay...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if rpcServer != nil {
			if err := rpcServer.Shutdown(shutdownCtx); err != nil {
				logger.Warn().Err(err).Msg("failed to shutdown rpc server")
			}
		}
		connectionHub.Stop()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "failed to shutdown HTTP server gracefully")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("relay stopped with error")
	}

	logger.Info().Msg("relay stopped")
}
