package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	applogger "MarketCore/pkg/logger"
)

// RequestLogging logs one line per request; 5xx responses are logged as errors
// and requests slower than slow as warnings.
func RequestLogging(l *applogger.Logger, slow time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			latency := time.Since(start)
			status := c.Response().Status
			fields := []applogger.Field{
				applogger.String("method", c.Request().Method),
				applogger.String("route", routeOf(c)),
				applogger.Int("status", status),
				applogger.Duration("latency", latency),
				applogger.Int64("bytes", c.Response().Size),
			}
			switch {
			case status >= 500:
				l.Error("http request failed", fields...)
			case slow > 0 && latency >= slow:
				l.Warn("http request slow", fields...)
			default:
				l.Debug("http request", fields...)
			}
			return nil
		}
	}
}
