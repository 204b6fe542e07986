package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"8080"`
	AppURL    string `env:"APP_URL" default:"http://localhost:8080"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`
	StaticDir string `env:"STATIC_DIR" default:"static"`

	MaxWebSocketConnections int     `env:"MAX_WEBSOCKET_CONNECTIONS" default:"10000"`
	MaxConnectionsPerIP     int     `env:"MAX_CONNECTIONS_PER_IP" default:"100"`
	ConnectionRatePerIP     float64 `env:"CONNECTION_RATE" default:"10"`
	ConnectionBurst         int     `env:"CONNECTION_BURST" default:"20"`
	APIRateLimit            float64 `env:"API_RATE_LIMIT" default:"100"`
	APIRateBurst            int     `env:"API_RATE_BURST" default:"200"`

	MaxMessageBytes int64         `env:"MAX_MESSAGE_BYTES" default:"65536"`
	PingInterval    time.Duration `env:"WS_PING_INTERVAL" default:"30s"`
	PongTimeout     time.Duration `env:"WS_PONG_TIMEOUT" default:"60s"`
	WriteTimeout    time.Duration `env:"WS_WRITE_TIMEOUT" default:"5s"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// IsDevelopment reports whether the server runs with development defaults
// such as relaxed origin checks.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error, got %q", cfg.LogLevel)
	}

	switch cfg.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", cfg.LogFormat)
	}

	port, err := strconv.Atoi(cfg.Port)
	if err != nil {
		return fmt.Errorf("PORT must be numeric: %w", err)
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", port)
	}

	positive := map[string]float64{
		"MAX_WEBSOCKET_CONNECTIONS": float64(cfg.MaxWebSocketConnections),
		"MAX_CONNECTIONS_PER_IP":    float64(cfg.MaxConnectionsPerIP),
		"CONNECTION_RATE":           cfg.ConnectionRatePerIP,
		"CONNECTION_BURST":          float64(cfg.ConnectionBurst),
		"API_RATE_LIMIT":            cfg.APIRateLimit,
		"API_RATE_BURST":            float64(cfg.APIRateBurst),
		"MAX_MESSAGE_BYTES":         float64(cfg.MaxMessageBytes),
		"WS_PING_INTERVAL":          float64(cfg.PingInterval),
		"WS_WRITE_TIMEOUT":          float64(cfg.WriteTimeout),
		"SHUTDOWN_TIMEOUT":          float64(cfg.ShutdownTimeout),
	}
	for name, value := range positive {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	if cfg.PongTimeout <= cfg.PingInterval {
		return errors.New("WS_PONG_TIMEOUT must be greater than WS_PING_INTERVAL")
	}

	return nil
}
