package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	apiCSP = "default-src 'none'; frame-ancestors 'none'"
	// The API docs page loads Swagger UI from unpkg and boots it inline.
	pageCSP = "default-src 'none'; script-src https://unpkg.com 'unsafe-inline'; " +
		"style-src https://unpkg.com 'unsafe-inline'; img-src 'self' data:; " +
		"connect-src 'self'; frame-ancestors 'none'"
)

// SecurityHeaders sets the response headers for a JSON API that echoes
// clinical values back to the caller. Responses are never cached. Paths
// starting with one of pages are HTML pages and get a content policy that
// lets them load their scripts; everything else gets a deny-all policy.
// HSTS is only sent on requests that arrived over TLS, directly or through
// a proxy that sets X-Forwarded-Proto.
func SecurityHeaders(pages ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()

			h.Set(echo.HeaderXContentTypeOptions, "nosniff")
			h.Set(echo.HeaderXFrameOptions, "DENY")
			h.Set(echo.HeaderXXSSProtection, "0")
			h.Set(echo.HeaderReferrerPolicy, "no-referrer")
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			h.Set(echo.HeaderCacheControl, "no-store")

			csp := apiCSP
			path := c.Request().URL.Path
			for _, p := range pages {
				if strings.HasPrefix(path, p) {
					csp = pageCSP
					break
				}
			}
			h.Set(echo.HeaderContentSecurityPolicy, csp)

			if c.IsTLS() || c.Scheme() == "https" {
				h.Set(echo.HeaderStrictTransportSecurity, "max-age=31536000; includeSubDomains")
			}
			return next(c)
		}
	}
}
