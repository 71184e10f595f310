package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/pipelinepulse/internal/adapter/httpserver"
	"github.com/pscheid92/pipelinepulse/internal/adapter/metrics"
	"github.com/pscheid92/pipelinepulse/internal/notifier"
	"github.com/pscheid92/pipelinepulse/internal/platform/config"
	"github.com/pscheid92/pipelinepulse/internal/platform/logging"
	"github.com/pscheid92/pipelinepulse/internal/platform/version"
)

func runGracefulShutdown(cfg *config.Config, srv *httpserver.Server, n *notifier.Notifier) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		// Upgraded connections survive the HTTP shutdown; close them here.
		n.Stop()

		close(done)
	}()

	return done
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "version", version.Get().String())

	registry := metrics.NewRegistry()
	wsMetrics := metrics.NewWebSocketMetrics(registry)

	n, err := notifier.New(clock, wsMetrics)
	if err != nil {
		slog.Error("Failed to create notifier", "error", err)
		os.Exit(1)
	}

	healthChecks := []httpserver.HealthCheck{
		{Name: "notifier", Check: n.Ready},
	}
	srv, err := httpserver.NewServer(cfg, n, clock, registry, wsMetrics, healthChecks)
	if err != nil {
		slog.Error("Failed to create server", "error", err)
		os.Exit(1)
	}

	if _, err := srv.Listen(); err != nil {
		slog.Error("Failed to bind", "error", err)
		os.Exit(1)
	}

	done := runGracefulShutdown(cfg, srv, n)

	slog.Info("WebSocket server is running on " + cfg.WebSocketURL())
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
