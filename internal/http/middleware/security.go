package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// SecurityOptions configures SecurityHeaders.
type SecurityOptions struct {
	EnableHSTS   bool          // only when traffic is HTTPS end-to-end
	HSTSMaxAge   time.Duration // defaults to 180 days
	NoStore      bool          // Cache-Control: no-store on every route not in Revalidate
	EnablePolicy bool          // Permissions-Policy and X-Permitted-Cross-Domain-Policies

	// Revalidate lists route patterns (gin FullPath) that answer with an ETag.
	// They get "Cache-Control: no-cache" so clients may keep a copy and send
	// If-None-Match instead of refetching the ledger.
	Revalidate []string
}

// SecurityHeaders hardens every response: nosniff, X-Frame-Options DENY and
// Referrer-Policy no-referrer always, plus the optional headers in opt.
// Cache headers are decided by route, so it must run after routing (any
// r.Use position works; FullPath is resolved before middleware runs).
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	maxAge := int(opt.HSTSMaxAge.Seconds())
	if maxAge <= 0 {
		maxAge = int((180 * 24 * time.Hour).Seconds())
	}
	hsts := "max-age=" + strconv.Itoa(maxAge) + "; includeSubDomains"

	revalidate := make(map[string]struct{}, len(opt.Revalidate))
	for _, p := range opt.Revalidate {
		revalidate[p] = struct{}{}
	}

	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")

		if opt.EnablePolicy {
			// The gateway serves JSON only; no browser feature is ever needed.
			h.Set("Permissions-Policy", "camera=(), geolocation=(), microphone=(), payment=(), usb=()")
			h.Set("X-Permitted-Cross-Domain-Policies", "none")
		}

		if _, ok := revalidate[c.FullPath()]; ok {
			h.Set("Cache-Control", "private, no-cache")
		} else if opt.NoStore {
			h.Set("Cache-Control", "no-store")
			h.Set("Pragma", "no-cache")
		}

		if opt.EnableHSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}

		c.Next()
	}
}

// isHTTPS reports whether the request arrived over TLS, directly or via a
// proxy that set X-Forwarded-Proto: https.
func isHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	proto, _, _ := strings.Cut(r.Header.Get("X-Forwarded-Proto"), ",")
	return strings.EqualFold(strings.TrimSpace(proto), "https")
}
