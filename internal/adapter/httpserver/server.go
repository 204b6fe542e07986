package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/worldsync/internal/adapter/metrics"
	"github.com/pscheid92/worldsync/internal/adapter/websocket"
	"github.com/pscheid92/worldsync/internal/domain"
	"github.com/pscheid92/worldsync/internal/platform/config"
	"github.com/pscheid92/worldsync/internal/protocol"
	"github.com/pscheid92/worldsync/internal/session"
)

type Server struct {
	echo   *echo.Echo
	config *config.Config
	clock  clockwork.Clock

	store       domain.EntityStore
	broadcaster Broadcaster
	parser      *protocol.Parser

	upgrader *gorillaws.Upgrader
	limits   *connectionLimits
	sessions sync.WaitGroup

	registry     *prometheus.Registry
	httpMetrics  *metrics.HTTPMetrics
	wsMetrics    *metrics.WebSocketMetrics
	healthChecks []HealthCheck
	startTime    time.Time
}

// Broadcaster is the fan-out the server hands to sessions. Count feeds the
// liveness report.
type Broadcaster interface {
	session.Broadcaster
	Count() int
}

// NewServer wires the HTTP API and the /subscribe channel onto store and
// broadcaster. reg may be nil, in which case nothing is recorded and
// /metrics is not served.
func NewServer(cfg *config.Config, store domain.EntityStore, broadcaster Broadcaster, reg *prometheus.Registry, clock clockwork.Clock, healthChecks []HealthCheck) (*Server, error) {
	parser, err := protocol.NewParser()
	if err != nil {
		return nil, fmt.Errorf("failed to build packet parser: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:         e,
		config:       cfg,
		clock:        clock,
		store:        store,
		broadcaster:  broadcaster,
		parser:       parser,
		limits:       newConnectionLimits(clock, cfg.MaxWebSocketConnections, cfg.MaxConnectionsPerIP, cfg.ConnectionRatePerIP, cfg.ConnectionBurst),
		registry:     reg,
		healthChecks: healthChecks,
		startTime:    clock.Now(),
	}
	if reg != nil {
		srv.httpMetrics = metrics.NewHTTPMetrics(reg)
		srv.wsMetrics = metrics.NewWebSocketMetrics(reg)
	}
	srv.upgrader = websocket.NewUpgrader(websocket.NewCheckOrigin(cfg.AppURL, cfg.IsDevelopment(), func(string) {
		srv.recordRejection(limitReasonOrigin)
	}))

	srv.registerRoutes()

	return srv, nil
}

// Start serves until Shutdown. http.ErrServerClosed is not an error.
func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests. Hijacked WebSocket connections are not
// covered; close the broadcaster and then call WaitForSessions.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// WaitForSessions blocks until every channel session has torn down or ctx
// is done.
func (s *Server) WaitForSessions(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("sessions still open at shutdown deadline: %w", ctx.Err())
	}
}

// ServeHTTP exposes the router, mainly for httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

func (s *Server) sessionConfig() session.Config {
	return session.Config{
		PingInterval:    s.config.PingInterval,
		PongTimeout:     s.config.PongTimeout,
		WriteTimeout:    s.config.WriteTimeout,
		MaxMessageBytes: s.config.MaxMessageBytes,
	}
}

func (s *Server) recordRateLimited(scope string) {
	if s.httpMetrics != nil {
		s.httpMetrics.RateLimited.WithLabelValues(scope).Inc()
	}
}

func (s *Server) recordRejection(reason limitReason) {
	if s.wsMetrics != nil {
		s.wsMetrics.RejectedConnections.WithLabelValues(string(reason)).Inc()
	}
}
