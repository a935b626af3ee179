package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestRedact(t *testing.T) {
	cases := map[string]string{
		"":                          "",
		"email=jane.doe@example.com": "email=[REDACTED:email]",
		"call +1 212-555-1212 now":  "call [REDACTED:phone] now",
		"+44 20 7946 0958":          "[REDACTED:phone]",
		"tel (212) 555-1212.":       "tel [REDACTED:phone].",
		"+1 (212) 555-1212":         "[REDACTED:phone]",
		"212.555.1212":              "[REDACTED:phone]",
		"order 1234":                "order 1234",
		"id=6f1c2f0e-3c0f-4a51-9d3b-2b7f4c1d9e11": "id=6f1c2f0e-3c0f-4a51-9d3b-2b7f4c1d9e11",
	}
	for in, want := range cases {
		if got := redact(in); got != want {
			t.Errorf("redact(%q) = %q; want %q", in, got, want)
		}
	}
}

func lastLogLine(t *testing.T, s string) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(s), "\n")
	var m map[string]any
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &m); err != nil {
		t.Fatalf("log line not JSON: %v\n%s", err, s)
	}
	return m
}

func TestRedactingLogger_MasksAndUsesRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID(), RedactingLogger(RedactOptions{MaskHeaders: []string{"X-API-Key"}}))
	r.POST("/chats/:id/messages", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodPost, "/chats/6f1c2f0e-3c0f-4a51-9d3b-2b7f4c1d9e11/messages?who=jane@example.com", strings.NewReader(`{"content":"secret prompt"}`))
	req.Header.Set("Authorization", "Bearer token")
	req.Header.Set("X-API-Key", "k")
	req.Header.Set(HeaderIdempotencyKey, "key-1")
	r.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	if strings.Contains(out, "secret prompt") || strings.Contains(out, "Bearer token") || strings.Contains(out, "key-1") {
		t.Fatalf("sensitive data logged:\n%s", out)
	}
	if strings.Contains(out, "6f1c2f0e") {
		t.Fatalf("raw path logged:\n%s", out)
	}
	m := lastLogLine(t, out)
	if m["route"] != "/chats/:id/messages" || m["query"] != "who=[REDACTED:email]" || m["level"] != "info" {
		t.Fatalf("log = %v", m)
	}
	h, _ := m["headers"].(map[string]any)
	if h["Authorization"] != "[REDACTED]" || h["X-Api-Key"] != "[REDACTED]" || h["Idempotency-Key"] != "[REDACTED]" {
		t.Fatalf("headers = %v", h)
	}
}

func TestRedactingLogger_LevelsByStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RedactingLogger(RedactOptions{}))
	r.GET("/bad", func(c *gin.Context) { c.Status(http.StatusBadRequest) })
	r.GET("/fail", func(c *gin.Context) { c.Status(http.StatusBadGateway) })

	for path, want := range map[string]string{"/bad": "warn", "/fail": "error", "/missing": "warn"} {
		buf.Reset()
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
		m := lastLogLine(t, buf.String())
		if m["level"] != want {
			t.Fatalf("%s logged at %v; want %s", path, m["level"], want)
		}
		if path == "/missing" && m["route"] != "unmatched" {
			t.Fatalf("unmatched route label = %v", m["route"])
		}
	}
}
