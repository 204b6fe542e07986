package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/worldsync/internal/platform/correlation"
	apperrors "github.com/pscheid92/worldsync/internal/platform/errors"
	"github.com/pscheid92/worldsync/internal/session"
)

// handleSubscribe admits the caller, upgrades to WebSocket and runs the
// channel session until it tears down.
func (s *Server) handleSubscribe(c echo.Context) error {
	ctx := c.Request().Context()
	ip := c.RealIP()

	// Counted before the upgrade hijacks the connection: until then echo's
	// Shutdown still waits for this request, so Add cannot race with Wait.
	s.sessions.Add(1)
	defer s.sessions.Done()

	if reason := s.limits.acquire(ip); reason != limitReasonNone {
		s.recordRejection(reason)
		return admissionError(reason).WithField("remote_ip", ip)
	}
	defer s.limits.release(ip)

	header := http.Header{}
	if id, ok := correlation.ID(ctx); ok {
		header.Set(correlation.Header, id)
	}

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), header)
	if err != nil {
		// the upgrader has already written the error response
		slog.DebugContext(ctx, "WebSocket upgrade failed", "error", err, "remote_ip", ip)
		return nil
	}

	sess := session.New(conn, s.store, s.broadcaster, s.parser, s.sessionConfig(), s.clock, s.wsMetrics)
	if err := sess.Run(ctx); err != nil {
		slog.WarnContext(ctx, "Session not admitted", "error", err, "remote_ip", ip)
	}
	return nil
}

func admissionError(reason limitReason) *apperrors.Error {
	switch reason {
	case limitReasonGlobal:
		return apperrors.UnavailableError("server at connection capacity", nil)
	case limitReasonPerIP:
		return apperrors.RateLimitedError("too many open connections from this address")
	default:
		return apperrors.RateLimitedError("connection rate exceeded")
	}
}
