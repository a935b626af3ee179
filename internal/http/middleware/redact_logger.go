// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// RedactingLogger is the access logger. It never logs bodies (prompts and
// uploads stay out of the logs), masks credential headers, and scrubs
// e-mail addresses and phone numbers from query strings and header values.
// Paths are logged as the matched route ("/api/v1/chats/:id"), so chat ids
// do not appear in access logs.
//
// Before the handler runs it attaches a request-scoped logger carrying the
// request id, method and route. Handlers get it with LoggerFrom; services
// get it with zerolog.Ctx(ctx).
package middleware

import (
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RedactOptions configures additional scrub behavior for RedactingLogger.
//
// MaskHeaders lists extra header names whose values are replaced with
// "[REDACTED]" (case-insensitive). Authorization, Cookie, Set-Cookie and
// Idempotency-Key are always masked.
//
// Base is the logger requests derive from; nil means the global logger.
type RedactOptions struct {
	MaskHeaders []string
	Base        *zerolog.Logger
}

var (
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	// Digits only, so hex ids are never taken for phone numbers. "+" and "("
	// are non-word runes, so those prefixes are separate branches rather
	// than sitting behind \b.
	phoneRE = regexp.MustCompile(`(?:\+\d{1,3}[ .-]?\(?|\(|\b(?:\d{1,3}[ .-])?)(?:\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
)

// redact scrubs e-mail addresses, then phone numbers, from s.
func redact(s string) string {
	if s == "" {
		return s
	}
	s = emailRE.ReplaceAllString(s, "[REDACTED:email]")
	return phoneRE.ReplaceAllString(s, "[REDACTED:phone]")
}

// routeOf returns the matched route, or "unmatched" for 404s.
func routeOf(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return "unmatched"
}

// RedactingLogger returns the access-log middleware. Requests are logged at
// info, 4xx at warn and 5xx at error.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	masked := map[string]struct{}{
		"authorization":   {},
		"cookie":          {},
		"set-cookie":      {},
		"idempotency-key": {},
	}
	for _, h := range opts.MaskHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			masked[h] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		start := time.Now()
		base := log.Logger
		if opts.Base != nil {
			base = *opts.Base
		}
		route := routeOf(c)

		reqLog := base.With().
			Str("request_id", RequestIDFrom(c)).
			Str("method", c.Request.Method).
			Str("route", route).
			Logger()
		attachLogger(c, reqLog)

		headers := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			if _, ok := masked[strings.ToLower(k)]; ok {
				headers[k] = "[REDACTED]"
				continue
			}
			headers[k] = redact(strings.Join(vv, ", "))
		}
		query := redact(c.Request.URL.RawQuery)

		c.Next()

		status := c.Writer.Status()
		var ev *zerolog.Event
		switch {
		case status >= 500:
			ev = reqLog.Error()
		case status >= 400:
			ev = reqLog.Warn()
		default:
			ev = reqLog.Info()
		}
		if len(c.Errors) > 0 {
			ev = ev.Str("errors", c.Errors.String())
		}
		ev.
			Str("query", query).
			Str("remote_ip", c.ClientIP()).
			Int64("bytes_in", c.Request.ContentLength).
			Int("status", status).
			Int("bytes_out", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", headers).
			Msg("http_request")
	}
}
