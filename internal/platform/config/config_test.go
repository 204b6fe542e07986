package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultValues(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "http://localhost:8080", cfg.AppURL)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "static", cfg.StaticDir)
	assert.Equal(t, 10000, cfg.MaxWebSocketConnections)
	assert.Equal(t, 100, cfg.MaxConnectionsPerIP)
	assert.InDelta(t, 10.0, cfg.ConnectionRatePerIP, 0.001)
	assert.Equal(t, 20, cfg.ConnectionBurst)
	assert.Equal(t, int64(65536), cfg.MaxMessageBytes)
	assert.Equal(t, 30*time.Second, cfg.PingInterval)
	assert.Equal(t, 60*time.Second, cfg.PongTimeout)
	assert.Equal(t, 5*time.Second, cfg.WriteTimeout)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_CustomPortAndEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("APP_ENV", "production")
	t.Setenv("WS_PING_INTERVAL", "10s")
	t.Setenv("WS_PONG_TIMEOUT", "25s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "production", cfg.AppEnv)
	assert.Equal(t, 10*time.Second, cfg.PingInterval)
	assert.Equal(t, 25*time.Second, cfg.PongTimeout)
	assert.False(t, cfg.IsDevelopment())
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{"unknown log level", "LOG_LEVEL", "verbose", "LOG_LEVEL must be one of"},
		{"unknown log format", "LOG_FORMAT", "xml", "LOG_FORMAT must be text or json"},
		{"non-numeric port", "PORT", "http", "PORT must be numeric"},
		{"port out of range", "PORT", "70000", "PORT must be between"},
		{"zero connection cap", "MAX_WEBSOCKET_CONNECTIONS", "0", "MAX_WEBSOCKET_CONNECTIONS must be positive"},
		{"negative per-IP cap", "MAX_CONNECTIONS_PER_IP", "-1", "MAX_CONNECTIONS_PER_IP must be positive"},
		{"zero message size", "MAX_MESSAGE_BYTES", "0", "MAX_MESSAGE_BYTES must be positive"},
		{"pong not after ping", "WS_PONG_TIMEOUT", "30s", "WS_PONG_TIMEOUT must be greater than WS_PING_INTERVAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_UnparsableDuration(t *testing.T) {
	t.Setenv("SHUTDOWN_TIMEOUT", "soon")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load environment variables")
}
