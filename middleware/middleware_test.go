package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func newRouter(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw...)
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return r
}

func TestCORSPreflight(t *testing.T) {
	r := newRouter(CORS())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/ping", nil))

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("expected wildcard origin, got %q", got)
	}
	if !strings.Contains(w.Header().Get("Access-Control-Allow-Headers"), "Last-Event-ID") {
		t.Error("stream resume header missing from allowed headers")
	}
	if w.Header().Get("Access-Control-Max-Age") == "" {
		t.Error("preflight should carry a max age")
	}
}

func TestCORSOriginAllowlist(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.AllowOrigins = []string{"https://app.lootvault.io"}
	r := newRouter(CORSWithConfig(cfg))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://elsewhere.example.com")
	r.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("unlisted origin must not be allowed, got %q", got)
	}
	if w.Header().Get("Vary") != "Origin" {
		t.Error("allowlisted policy should vary on origin")
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://app.lootvault.io")
	r.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.lootvault.io" {
		t.Errorf("listed origin should be echoed back, got %q", got)
	}
}

func TestTraceIDReplacesNonUUID(t *testing.T) {
	r := newRouter(TraceID())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(TraceIDHeader, "not-a-uuid")
	r.ServeHTTP(w, req)

	got := w.Header().Get(TraceIDHeader)
	if got == "not-a-uuid" {
		t.Error("junk trace id must be replaced")
	}
	if _, err := uuid.Parse(got); err != nil {
		t.Errorf("response trace id should be a uuid, got %q", got)
	}
}

func TestTraceIDHonorsInboundUUID(t *testing.T) {
	r := newRouter(TraceID())

	inbound := uuid.New().String()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(TraceIDHeader, inbound)
	r.ServeHTTP(w, req)

	if got := w.Header().Get(TraceIDHeader); got != inbound {
		t.Errorf("expected inbound trace id %q kept, got %q", inbound, got)
	}
}

func TestTimeoutSkipsExemptPaths(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(TimeoutWithConfig(TimeoutConfig{
		Timeout:   10 * time.Millisecond,
		SkipPaths: []string{"/stream"},
	}))
	slow := func(c *gin.Context) {
		select {
		case <-c.Request.Context().Done():
		case <-time.After(50 * time.Millisecond):
			c.String(http.StatusOK, "done")
		}
	}
	r.GET("/slow", slow)
	r.GET("/stream", slow)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/slow", nil))
	if w.Code != http.StatusRequestTimeout {
		t.Errorf("expected 408 for slow handler, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stream", nil))
	if w.Code != http.StatusOK {
		t.Errorf("exempt path must not time out, got %d", w.Code)
	}
}
