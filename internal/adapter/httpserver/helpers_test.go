package httpserver

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/worldsync/internal/broadcast"
	"github.com/pscheid92/worldsync/internal/platform/config"
	"github.com/pscheid92/worldsync/internal/world"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	srv         *Server
	store       *world.Store
	broadcaster *broadcast.Broadcaster
	clock       *clockwork.FakeClock
	registry    *prometheus.Registry
}

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:                  "test",
		Port:                    "0",
		AppURL:                  "http://world.test",
		LogLevel:                "info",
		LogFormat:               "text",
		MaxWebSocketConnections: 100,
		MaxConnectionsPerIP:     100,
		ConnectionRatePerIP:     1000,
		ConnectionBurst:         1000,
		APIRateLimit:            1000,
		APIRateBurst:            1000,
		MaxMessageBytes:         1024,
		PingInterval:            30 * time.Second,
		PongTimeout:             60 * time.Second,
		WriteTimeout:            5 * time.Second,
		ShutdownTimeout:         time.Second,
	}
}

type serverOption func(*config.Config, *[]HealthCheck)

func withConfig(mutate func(*config.Config)) serverOption {
	return func(cfg *config.Config, _ *[]HealthCheck) { mutate(cfg) }
}

func withHealthChecks(checks ...HealthCheck) serverOption {
	return func(_ *config.Config, hc *[]HealthCheck) { *hc = checks }
}

func newTestServer(t *testing.T, opts ...serverOption) *testEnv {
	t.Helper()

	cfg := testConfig()
	var checks []HealthCheck
	for _, opt := range opts {
		opt(cfg, &checks)
	}

	b := broadcast.NewBroadcaster(nil)
	t.Cleanup(b.Close)
	store := world.NewStore(b, nil)
	clock := clockwork.NewFakeClockAt(time.Now())
	reg := prometheus.NewRegistry()

	srv, err := NewServer(cfg, store, b, reg, clock, checks)
	require.NoError(t, err)

	return &testEnv{srv: srv, store: store, broadcaster: b, clock: clock, registry: reg}
}

func (e *testEnv) request(method, target, contentType, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) getJSON(target string) *httptest.ResponseRecorder {
	return e.request(http.MethodGet, target, "", "")
}

func (e *testEnv) postJSON(method, target, body string) *httptest.ResponseRecorder {
	return e.request(method, target, echo.MIMEApplicationJSON, body)
}

// callHandler wraps a handler with error middleware, matching production behavior
func callHandler(handler echo.HandlerFunc, c echo.Context) error {
	return ErrorHandlingMiddleware()(handler)(c)
}
