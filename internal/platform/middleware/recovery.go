package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/harms/harms/internal/platform/apperror"
)

// Recovery turns a handler panic into an internal error. The unit of work
// sees the error and rolls back.
func Recovery(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				if e, ok := r.(error); ok && e == http.ErrAbortHandler {
					panic(r)
				}
				withRequest(logger.Error(), c).
					Str("panic", fmt.Sprint(r)).
					Bytes("stack", debug.Stack()).
					Msg("panic recovered")
				err = apperror.Internal("panic recovered", fmt.Errorf("%v", r))
			}()
			return next(c)
		}
	}
}
