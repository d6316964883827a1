package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/xiaot623/spike/internal/config"
	internalhttp "github.com/xiaot623/spike/internal/http"
	"github.com/xiaot623/spike/internal/hub"
	"github.com/xiaot623/spike/internal/logging"
	"github.com/xiaot623/spike/internal/metrics"
	"github.com/xiaot623/spike/internal/policy"
	"github.com/xiaot623/spike/internal/relay"
	"github.com/xiaot623/spike/internal/repository"
	"github.com/xiaot623/spike/internal/service"
	"github.com/xiaot623/spike/internal/ws"
)

func main() {
	// Load configuration
	cfg := config.Load()

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid logging configuration: %v\n", err)
		os.Exit(1)
	}

	logger.Info().
		Int("port", cfg.Port).
		Str("database", cfg.DatabaseURL).
		Strs("cors_origins", cfg.CORSOrigins).
		Msg("starting spike server")

	// Initialize store
	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize store")
	}
	defer db.Close()

	// Initialize policy engine
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	policyEngine, err := policy.NewEngineFromFile(ctx, cfg.JoinPolicyFile)
	if err != nil {
		logger.Fatal().Err(err).Str("file", cfg.JoinPolicyFile).Msg("failed to initialize join policy")
	}

	// Initialize metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Initialize hub
	connectionHub := hub.NewHub(cfg.SendBuffer, m, logger)
	go connectionHub.Run()

	// Initialize relay
	chatRelay := relay.New(db, relay.Options{
		MaxInFlightWrites: cfg.MaxInFlightWrites,
		PersistTimeout:    cfg.PersistTimeout,
		Policy:            policyEngine,
		Metrics:           m,
		Logger:            logger,
	})

	// Initialize servers
	wsServer := ws.NewServer(ctx, cfg, connectionHub, chatRelay, logger)
	httpServer := internalhttp.NewServer(cfg, service.New(db), connectionHub, chatRelay, wsServer.HandleWebSocket, m, reg, logger)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("failed to start HTTP server")
		}
	}()

	logger.Info().Int("port", cfg.Port).Msg("server started")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown HTTP server gracefully")
	}

	// Hijacked WebSocket connections are not tracked by the HTTP server.
	connectionHub.CloseAll()
	cancel()
	chatRelay.Wait()
	connectionHub.Stop()

	logger.Info().Msg("server stopped")
}
