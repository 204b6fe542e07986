package httpserver

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	apperrors "github.com/pscheid92/worldsync/internal/platform/errors"
	"golang.org/x/time/rate"
)

const rateLimiterExpiry = 5 * time.Minute

// Reads and mutations of the world draw from separate per-IP budgets, so a
// client hammering GET /world cannot starve its own updates.
const (
	rateScopeRead  = "read"
	rateScopeWrite = "write"
)

// newRateLimiter limits world API requests per client IP within one scope.
// onDeny may be nil.
func newRateLimiter(scope string, ratePerSecond float64, burst int, onDeny func(scope string)) echo.MiddlewareFunc {
	store := middleware.NewRateLimiterMemoryStoreWithConfig(
		middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(ratePerSecond),
			Burst:     burst,
			ExpiresIn: rateLimiterExpiry,
		},
	)
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		Store: store,
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			if onDeny != nil {
				onDeny(scope)
			}
			return apperrors.RateLimitedError("rate limit exceeded").
				WithField("scope", scope).
				WithField("remote_ip", identifier)
		},
	})
}
