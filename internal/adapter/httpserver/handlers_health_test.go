package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/worldsync/internal/broadcast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func healthOK(_ context.Context) error { return nil }

func healthErr(msg string) func(context.Context) error {
	return func(_ context.Context) error { return errors.New(msg) }
}

func TestHandleStartup(t *testing.T) {
	env := newTestServer(t, withHealthChecks(
		HealthCheck{Name: "broadcaster", Check: healthOK},
	))

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health/startup", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := env.srv.handleStartup(c)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ready"}`, rec.Body.String())
}

func TestHandleReadiness_FirstFailingCheckIsReported(t *testing.T) {
	env := newTestServer(t, withHealthChecks(
		HealthCheck{Name: "broadcaster", Check: healthOK},
		HealthCheck{Name: "static", Check: healthErr("missing index")},
		HealthCheck{Name: "later", Check: healthErr("never reached")},
	))

	rec := env.getJSON("/health/ready")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"unhealthy"`)
	assert.Contains(t, rec.Body.String(), `"failed_check":"static"`)
	assert.Contains(t, rec.Body.String(), `"error":"missing index"`)
}

func TestHandleReadiness_BroadcasterClosed(t *testing.T) {
	env := newTestServer(t)
	env.srv.healthChecks = []HealthCheck{{Name: "broadcaster", Check: env.broadcaster.Check}}

	assert.Equal(t, http.StatusOK, env.getJSON("/health/ready").Code)

	env.broadcaster.Close()
	rec := env.getJSON("/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"failed_check":"broadcaster"`)
}

func TestHandleReadiness_NoChecks(t *testing.T) {
	env := newTestServer(t)

	rec := env.getJSON("/health/ready")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ready"}`, rec.Body.String())
}

func TestHandleLiveness_UptimeFollowsClock(t *testing.T) {
	env := newTestServer(t)
	env.clock.Advance(90 * time.Second)

	rec := env.getJSON("/health/live")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.InDelta(t, 90.0, body["uptime"], 0.001)
	assert.Equal(t, 0.0, body["connections"])
}

func TestHandleLiveness_ReportsWorldAndSubscribers(t *testing.T) {
	env := newTestServer(t)
	env.store.Update("cat", "x", 1)
	env.store.Update("dog", "y", 2)
	sub := broadcast.NewSubscriber(nil)
	require.NoError(t, env.broadcaster.Register(sub))

	rec := env.getJSON("/health/live")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2.0, body["entities"])
	assert.Equal(t, 1.0, body["subscribers"])
}

func TestHandleVersion(t *testing.T) {
	env := newTestServer(t)

	rec := env.getJSON("/version")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "dev", body["version"])
	assert.NotEmpty(t, body["go_version"])
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestServer(t)
	env.getJSON("/world")

	rec := env.getJSON("/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `worldsync_http_requests_total{method="GET",route="/world",status_code="200"} 1`)
}
