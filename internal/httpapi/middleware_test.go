package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/openfinance-sandbox/fapigw/internal/obs"
)

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw...)
	return r
}

func TestRateLimitExceeded(t *testing.T) {
	r := newEngine(RequestID(), RateLimit(1, 1))
	r.GET("/limited", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/limited", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	rr1 := httptest.NewRecorder()
	r.ServeHTTP(rr1, req.Clone(req.Context()))
	if rr1.Code != http.StatusOK {
		t.Fatalf("expected first call 200, got %d", rr1.Code)
	}

	rr2 := httptest.NewRecorder()
	r.ServeHTTP(rr2, req.Clone(req.Context()))
	if rr2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr2.Code)
	}
	if rr2.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
	if rr2.Header().Get(headerRequestID) == "" {
		t.Fatalf("expected request id header")
	}

	var body problemEnvelope
	if err := json.Unmarshal(rr2.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode rate limit body: %v", err)
	}
	if len(body.Errors) != 1 || body.Errors[0].Code != codeRateLimited {
		t.Fatalf("unexpected errors: %+v", body.Errors)
	}
	if body.Meta.RequestDateTime.IsZero() {
		t.Fatalf("expected meta.requestDateTime")
	}
}

func TestRateLimitDisabled(t *testing.T) {
	r := newEngine(RateLimit(0, 0))
	r.GET("/open", func(c *gin.Context) { c.Status(http.StatusOK) })
	for i := 0; i < 5; i++ {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/open", nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("call %d: expected 200, got %d", i, rr.Code)
		}
	}
}

func TestLoggingJSONEmitsStructuredEntry(t *testing.T) {
	logger := obs.Logger()
	origOut := logger.Out

	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(origOut)

	r := newEngine(RequestID(), LoggingJSON())
	r.GET("/log-test/:id", func(c *gin.Context) {
		c.String(http.StatusTeapot, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/log-test/42", nil)
	req.Header.Set("User-Agent", "middleware-test")
	req.Header.Set(headerInteractionID, "iid-1")
	req.RemoteAddr = "127.0.0.1:1234"

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	line := strings.TrimSpace(buf.String())
	if line == "" {
		t.Fatal("expected log line")
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log is not valid JSON: %v", err)
	}
	for _, key := range []string{"ts", "level", "msg", "request_id", "interaction_id", "method", "path", "status", "duration_ms"} {
		if _, ok := entry[key]; !ok {
			t.Fatalf("expected key %q in log entry", key)
		}
	}
	if entry["msg"] != "request_complete" {
		t.Fatalf("unexpected msg: %v", entry["msg"])
	}
	if entry["status"] != float64(http.StatusTeapot) {
		t.Fatalf("unexpected status: %v", entry["status"])
	}
	if entry["path"] != "/log-test/:id" {
		t.Fatalf("expected route template as path, got %v", entry["path"])
	}
}

func TestRequestIDReusesInboundValue(t *testing.T) {
	r := newEngine(RequestID())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(headerRequestID, "abc-123")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if got := rr.Header().Get(headerRequestID); got != "abc-123" {
		t.Fatalf("expected inbound request id, got %q", got)
	}
}

func TestSecurityHeaders(t *testing.T) {
	r := newEngine(SecurityHeaders())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	for k, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Cache-Control":          "no-store",
	} {
		if got := rr.Header().Get(k); got != want {
			t.Fatalf("%s: expected %q, got %q", k, want, got)
		}
	}
}
