package middleware

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Logger writes one line per request. 5xx log at error, 4xx at warn.
func Logger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				status = StatusOf(err)
			}

			var evt *zerolog.Event
			switch {
			case status >= http.StatusInternalServerError:
				evt = logger.Error().Err(err)
			case status >= http.StatusBadRequest:
				evt = logger.Warn()
			default:
				evt = logger.Info()
			}

			withRequest(evt, c).
				Int("status", status).
				Dur("latency", time.Since(start)).
				Str("remote_ip", c.RealIP()).
				Msg("request")
			return err
		}
	}
}

// withRequest adds the request id, route and caller to evt.
func withRequest(evt *zerolog.Event, c echo.Context) *zerolog.Event {
	req := c.Request()
	rid, _ := c.Get("request_id").(string)
	evt = evt.
		Str("request_id", rid).
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Str("route", c.Path())
	if uid, ok := c.Get("user_id").(int64); ok {
		evt = evt.Int64("user_id", uid)
	}
	return evt
}
