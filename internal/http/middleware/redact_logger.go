// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements RedactingLogger, the access logger of the gateway. It
// attaches a request-scoped zerolog.Logger for handlers and emits one
// structured line per request with sensitive values scrubbed:
//
//   - request and response bodies are never logged
//   - configured query parameters (licence plates by default) are masked
//   - UUIDs and email addresses are pattern-redacted in queries and headers
//   - Authorization, Cookie and Set-Cookie headers are fully masked
//
// Usage:
//
//	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
//	    MaskHeaders: []string{"X-Api-Key"},
//	}))
package middleware

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// RedactOptions configures additional scrub behavior for RedactingLogger.
type RedactOptions struct {
	// MaskHeaders are extra header names (case-insensitive) whose values are
	// replaced with "[REDACTED]".
	MaskHeaders []string
	// MaskQueryParams are query parameter names whose values are replaced
	// with "[REDACTED]". Defaults to "plate" when empty.
	MaskQueryParams []string
}

var (
	uuidRE  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}\-[0-9a-f]{4}\-[1-5][0-9a-f]{3}\-[89ab][0-9a-f]{3}\-[0-9a-f]{12}\b`)
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
)

func redactPatterns(s string) string {
	if s == "" {
		return s
	}
	s = uuidRE.ReplaceAllString(s, "[REDACTED:id]")
	return emailRE.ReplaceAllString(s, "[REDACTED:email]")
}

// redactQuery masks the values of the given params and pattern-redacts the
// rest. Unparseable queries are pattern-redacted as a whole.
func redactQuery(raw string, mask map[string]struct{}) string {
	if raw == "" {
		return ""
	}
	vals, err := url.ParseQuery(raw)
	if err != nil {
		return redactPatterns(truncate(raw, maxQueryLogLength))
	}
	for k, vv := range vals {
		if _, ok := mask[strings.ToLower(k)]; ok {
			for i := range vv {
				vv[i] = "[REDACTED]"
			}
		}
	}
	// Encode sorts keys, which keeps log lines stable.
	out, _ := url.QueryUnescape(vals.Encode())
	return redactPatterns(truncate(out, maxQueryLogLength))
}

func lowerSet(def []string, extra []string) map[string]struct{} {
	m := make(map[string]struct{}, len(def)+len(extra))
	for _, s := range append(def, extra...) {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			m[s] = struct{}{}
		}
	}
	return m
}

// RedactingLogger returns a Gin middleware that logs each request with
// sensitive values scrubbed and stores a request-scoped logger carrying
// request_id, method and route under the "logger" context key.
//
// Level is error for 5xx or when handlers recorded c.Errors, warn for 4xx,
// info otherwise.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	maskHeaders := lowerSet([]string{"authorization", "cookie", "set-cookie"}, opts.MaskHeaders)
	queryParams := opts.MaskQueryParams
	if len(queryParams) == 0 {
		queryParams = []string{"plate"}
	}
	maskQuery := lowerSet(nil, queryParams)

	return func(c *gin.Context) {
		start := time.Now()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		lg := log.With().
			Str("request_id", requestIDFrom(c)).
			Str("method", c.Request.Method).
			Str("path", path).
			Logger()
		c.Set(loggerKey, &lg)

		safeHeaders := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			if _, ok := maskHeaders[strings.ToLower(k)]; ok {
				safeHeaders[k] = "[REDACTED]"
				continue
			}
			safeHeaders[k] = redactPatterns(strings.Join(vv, ", "))
		}
		safeQuery := redactQuery(c.Request.URL.RawQuery, maskQuery)

		c.Next()

		status := c.Writer.Status()
		ev := lg.Info()
		switch {
		case len(c.Errors) > 0 || status >= 500:
			ev = lg.Error()
			if len(c.Errors) > 0 {
				ev = ev.Str("errors", c.Errors.String())
			}
		case status >= 400:
			ev = lg.Warn()
		}

		// Basic auth runs inside the API group, after this middleware.
		if op := operatorFrom(c); op != "" {
			ev = ev.Str("operator", op)
		}

		ev.
			Str("remote_ip", c.ClientIP()).
			Str("query", safeQuery).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", safeHeaders).
			Msg("http_request")
	}
}
