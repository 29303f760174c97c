package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// SecurityOptions configures SecurityHeaders. Enable HSTS only when every
// hop, reverse proxy included, speaks HTTPS.
type SecurityOptions struct {
	EnableHSTS   bool
	HSTSMaxAge   time.Duration // <= 0 defaults to 180 days
	NoStore      bool          // add Cache-Control: no-store
	EnablePolicy bool          // add Permissions-Policy and friends
}

// SecurityHeaders sets a conservative header set for a JSON API behind a
// reverse proxy. The static portion is computed once; HSTS is decided per
// request because it must never be sent over plain HTTP.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	static := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "no-referrer",
	}
	if opt.EnablePolicy {
		static["Permissions-Policy"] = "geolocation=(), microphone=(), camera=(), payment=()"
		static["X-Permitted-Cross-Domain-Policies"] = "none"
	}
	if opt.NoStore {
		static["Cache-Control"] = "no-store"
		static["Pragma"] = "no-cache"
		static["Expires"] = "0"
	}

	maxAge := int(opt.HSTSMaxAge.Seconds())
	if maxAge <= 0 {
		maxAge = int((180 * 24 * time.Hour).Seconds())
	}
	hstsValue := "max-age=" + strconv.Itoa(maxAge) + "; includeSubDomains; preload"

	return func(c *gin.Context) {
		h := c.Writer.Header()
		for k, v := range static {
			h.Set(k, v)
		}

		if opt.EnableHSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hstsValue)
		}

		// Browser clients need the correlation ID readable cross-origin.
		if h.Get(requestIDHeader) != "" {
			exposeHeader(h, requestIDHeader)
		}

		c.Next()
	}
}

// exposeHeader appends name to Access-Control-Expose-Headers unless already
// present.
func exposeHeader(h http.Header, name string) {
	const key = "Access-Control-Expose-Headers"
	cur := h.Get(key)
	switch {
	case cur == "":
		h.Set(key, name)
	case !strings.Contains(cur, name):
		h.Set(key, cur+", "+name)
	}
}

// isHTTPS reports whether the request arrived over TLS, directly or behind a
// proxy that set X-Forwarded-Proto.
func isHTTPS(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
