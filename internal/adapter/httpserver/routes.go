package httpserver

import (
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pscheid92/worldsync/internal/adapter/metrics"
)

const indexPath = "/static/index.html"

func (s *Server) registerRoutes() {
	s.echo.Use(correlationMiddleware)
	s.echo.Use(s.setupRequestLoggerMiddleware())
	s.echo.Use(middleware.Recover())
	s.echo.Use(ErrorHandlingMiddleware())
	s.echo.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:      "",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "DENY",
		HSTSMaxAge:         63072000, // 2 years; only sent over HTTPS
		HSTSPreloadEnabled: true,
		ContentSecurityPolicy: "default-src 'self'; " +
			"script-src 'self' 'unsafe-inline'; " +
			"style-src 'self' 'unsafe-inline'; " +
			"connect-src 'self' ws: wss:; " +
			"frame-ancestors 'none'",
		ReferrerPolicy: "strict-origin-when-cross-origin",
	}))
	if s.httpMetrics != nil {
		s.echo.Use(s.httpMetrics.Middleware())
	}

	s.echo.GET("/", s.handleIndex)
	s.registerStaticRoutes()
	s.registerHealthRoutes()
	s.registerWorldRoutes()
	s.echo.GET("/subscribe", s.handleSubscribe)

	if s.registry != nil {
		s.echo.GET("/metrics", echo.WrapHandler(metrics.Handler(s.registry)))
	}
}

func (s *Server) setupRequestLoggerMiddleware() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
			}
			slog.InfoContext(c.Request().Context(), "Request", attrs...)
			return nil
		},
	})
}

// bodyLimit caps request bodies at the same size as channel packets.
func (s *Server) bodyLimit() echo.MiddlewareFunc {
	return middleware.BodyLimit(strconv.FormatInt(s.config.MaxMessageBytes, 10))
}

func (s *Server) handleIndex(c echo.Context) error {
	return c.Redirect(http.StatusFound, indexPath)
}

func (s *Server) registerStaticRoutes() {
	if s.config.StaticDir == "" {
		return
	}
	info, err := os.Stat(s.config.StaticDir)
	if err != nil || !info.IsDir() {
		slog.Warn("Static directory not found, /static disabled", "dir", s.config.StaticDir)
		return
	}
	s.echo.Static("/static", s.config.StaticDir)
}
