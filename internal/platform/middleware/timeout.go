package middleware

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/medcalc/medcalc/internal/platform/apperr"
)

// RequestTimeout puts a deadline on the request context. The handler runs on
// the request goroutine and must observe the context; the calculation engine
// checks it between expressions. When the deadline has passed by the time
// the handler returns, the request fails with a Timeout error (504) unless a
// response was already written.
//
// Paths starting with one of skipPrefixes run without a deadline; the server
// uses this for the metrics scrape and health endpoints.
func RequestTimeout(timeout time.Duration, skipPrefixes ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path
			for _, p := range skipPrefixes {
				if strings.HasPrefix(path, p) {
					return next(c)
				}
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Response().Committed {
				return apperr.Wrap(apperr.Timeout, ctx.Err(), "request processing exceeded the allowed time limit")
			}
			return err
		}
	}
}
