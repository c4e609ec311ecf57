package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// SecurityHeadersConfig tunes SecurityHeaders per deployment.
type SecurityHeadersConfig struct {
	// HSTS adds Strict-Transport-Security. Leave off when the server is
	// reached over plain HTTP, as in local development.
	HSTS bool
	// DownloadPrefixes are paths that return files (the access-log CSV)
	// rather than JSON.
	DownloadPrefixes []string
}

// SecurityHeaders sets hardening headers on every response. Assessment,
// payment and access-log payloads carry patient data, so nothing is cached
// and nothing is indexed. File downloads additionally get X-Download-Options
// so older browsers save the CSV instead of opening it in place.
func SecurityHeaders(cfg SecurityHeadersConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()

			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Cross-Origin-Resource-Policy", "same-site")
			// The mobile client asks for location and payment consent itself.
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=(), payment=()")
			h.Set("Cache-Control", "no-store")
			h.Set("Pragma", "no-cache")
			h.Set("X-Robots-Tag", "noindex, nofollow")
			if cfg.HSTS {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}

			path := c.Request().URL.Path
			for _, prefix := range cfg.DownloadPrefixes {
				if strings.HasPrefix(path, prefix) {
					h.Set("X-Download-Options", "noopen")
					break
				}
			}

			return next(c)
		}
	}
}
