package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/namaste/internal/platform/fhir"
)

// RecoveryConfig configures RecoveryWithConfig.
type RecoveryConfig struct {
	Logger zerolog.Logger
	// OnPanic runs after the panic is logged, e.g. to count it.
	OnPanic func(c echo.Context, recovered interface{})
}

// Recovery turns a handler panic into a 500 OperationOutcome and logs the stack.
func Recovery(logger zerolog.Logger) echo.MiddlewareFunc {
	return RecoveryWithConfig(RecoveryConfig{Logger: logger})
}

// RecoveryWithConfig is Recovery with a panic hook. http.ErrAbortHandler is
// re-panicked so net/http can abort the connection quietly.
func RecoveryWithConfig(cfg RecoveryConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				if r == http.ErrAbortHandler {
					panic(r)
				}

				rid, _ := c.Get("request_id").(string)
				cfg.Logger.Error().
					Str("request_id", rid).
					Str("method", c.Request().Method).
					Str("route", c.Path()).
					Interface("panic", r).
					Bytes("stack", debug.Stack()).
					Msg("panic recovered")
				if cfg.OnPanic != nil {
					cfg.OnPanic(c, r)
				}

				// Headers already sent: nothing useful can be written.
				if c.Response().Committed {
					err = nil
					return
				}
				err = c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome("internal server error"))
			}()
			return next(c)
		}
	}
}
