package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/harms/harms/internal/platform/apperror"
)

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusOf returns the HTTP status an error will be rendered with.
func StatusOf(err error) int {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return apperror.HTTPStatus(apperror.KindOf(err))
}

// ErrorHandler renders errors as {"error": message}. Internal errors are
// logged with their cause and replaced by a generic message.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		message := "internal server error"

		var he *echo.HTTPError
		var ae *apperror.Error
		switch {
		case errors.As(err, &he):
			status = he.Code
			if he.Internal != nil {
				logger.Debug().Err(he.Internal).Int("status", status).Msg("http error")
			}
			if status < http.StatusInternalServerError {
				message = httpErrorMessage(he)
			}
		case errors.As(err, &ae) && ae.Kind != apperror.KindInternal:
			status = apperror.HTTPStatus(ae.Kind)
			message = ae.Message
		}

		if status >= http.StatusInternalServerError {
			rid, _ := c.Get("request_id").(string)
			logger.Error().Err(err).Str("request_id", rid).Str("path", c.Request().URL.Path).Msg("request failed")
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(status)
		} else {
			writeErr = c.JSON(status, ErrorResponse{Error: message})
		}
		if writeErr != nil {
			logger.Error().Err(writeErr).Msg("write error response")
		}
	}
}

func httpErrorMessage(he *echo.HTTPError) string {
	switch m := he.Message.(type) {
	case string:
		return m
	case error:
		return m.Error()
	default:
		if m == nil {
			return http.StatusText(he.Code)
		}
		return fmt.Sprint(m)
	}
}
