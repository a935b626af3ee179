package middleware

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func serveSecure(opt SecurityOptions, mutate func(*http.Request)) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), SecurityHeaders(opt))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if mutate != nil {
		mutate(req)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSecurityHeaders_Baseline(t *testing.T) {
	w := serveSecure(SecurityOptions{}, nil)
	want := map[string]string{
		"X-Content-Type-Options":        "nosniff",
		"X-Frame-Options":               "DENY",
		"Referrer-Policy":               "no-referrer",
		"Content-Security-Policy":       "default-src 'none'; img-src 'self'; frame-ancestors 'none'",
		"Access-Control-Expose-Headers": "X-Request-ID",
	}
	for k, v := range want {
		if got := w.Header().Get(k); got != v {
			t.Errorf("%s = %q; want %q", k, got, v)
		}
	}
	if w.Header().Get("Strict-Transport-Security") != "" || w.Header().Get("Cache-Control") != "" {
		t.Fatalf("optional headers set without options")
	}
}

func TestSecurityHeaders_HSTSOnlyOverHTTPS(t *testing.T) {
	opt := SecurityOptions{EnableHSTS: true, HSTSMaxAge: time.Hour}
	if got := serveSecure(opt, nil).Header().Get("Strict-Transport-Security"); got != "" {
		t.Fatalf("HSTS over plain HTTP: %q", got)
	}
	got := serveSecure(opt, func(r *http.Request) { r.Header.Set("X-Forwarded-Proto", "HTTPS") }).Header().Get("Strict-Transport-Security")
	if got != "max-age=3600; includeSubDomains" {
		t.Fatalf("HSTS via proxy = %q", got)
	}
	got = serveSecure(SecurityOptions{EnableHSTS: true}, func(r *http.Request) { r.TLS = &tls.ConnectionState{} }).Header().Get("Strict-Transport-Security")
	if got != "max-age=15552000; includeSubDomains" {
		t.Fatalf("HSTS default max-age = %q", got)
	}
}

func TestSecurityHeaders_NoStore(t *testing.T) {
	if got := serveSecure(SecurityOptions{NoStore: true}, nil).Header().Get("Cache-Control"); got != "no-store" {
		t.Fatalf("Cache-Control = %q", got)
	}
}
