package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/worldsync/internal/adapter/httpserver"
	"github.com/pscheid92/worldsync/internal/adapter/metrics"
	"github.com/pscheid92/worldsync/internal/broadcast"
	"github.com/pscheid92/worldsync/internal/platform/config"
	"github.com/pscheid92/worldsync/internal/platform/logging"
	"github.com/pscheid92/worldsync/internal/platform/version"
	"github.com/pscheid92/worldsync/internal/world"
)

func runGracefulShutdown(cfg *config.Config, srv *httpserver.Server, broadcaster *broadcast.Broadcaster) <-chan struct{} {
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

		// Closing the broadcaster closes every mailbox; each session then
		// sends its close frame and tears down.
		broadcaster.Close()

		if err := srv.WaitForSessions(shutdownCtx); err != nil {
			slog.Warn("Channel sessions did not drain", "error", err)
		}

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

	reg := metrics.NewRegistry()

	broadcaster := broadcast.NewBroadcaster(metrics.NewBroadcastMetrics(reg))
	store := world.NewStore(broadcaster, metrics.NewWorldMetrics(reg))

	healthChecks := []httpserver.HealthCheck{
		{Name: "broadcaster", Check: broadcaster.Check},
	}

	srv, err := httpserver.NewServer(cfg, store, broadcaster, reg, clock, healthChecks)
	if err != nil {
		slog.Error("Failed to create server", "error", err)
		os.Exit(1)
	}

	done := runGracefulShutdown(cfg, srv, broadcaster)

	if err := srv.Start(); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
	slog.Info("Server stopped")
}
