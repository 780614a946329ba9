package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/scrollsnap/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(apiKeyContextKey))
	})
	return r
}

func TestAuth(t *testing.T) {
	r := newEngine(Auth([]string{"alpha", "beta"}))

	tests := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{"no key", "", "", http.StatusUnauthorized},
		{"x-api-key", "X-API-Key", "beta", http.StatusOK},
		{"bearer", "Authorization", "Bearer alpha", http.StatusOK},
		{"wrong key", "X-API-Key", "gamma", http.StatusUnauthorized},
		{"basic auth", "Authorization", "Basic alpha", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestAuth_NoKeysIsOpen(t *testing.T) {
	r := newEngine(Auth([]string{""}))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want open access", w.Code)
	}
}

func TestRateLimit(t *testing.T) {
	r := newEngine(Auth([]string{"a", "b"}), RateLimit(config.RateLimitConfig{RequestsPerSecond: 0.5, Burst: 1}))

	call := func(key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-API-Key", key)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	if w := call("a"); w.Code != http.StatusOK {
		t.Fatalf("first request status = %d", w.Code)
	}
	w := call("a")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "2" {
		t.Errorf("Retry-After = %q, want 2", got)
	}
	if w := call("b"); w.Code != http.StatusOK {
		t.Errorf("other key shares the bucket: status = %d", w.Code)
	}
}

func TestLimiterSet_Evict(t *testing.T) {
	s := &limiterSet{limiters: map[string]*limiterEntry{}, limit: 1, burst: 1}
	now := time.Date(2024, 5, 17, 0, 0, 0, 0, time.UTC)
	s.get("old", now)
	s.get("new", now.Add(limiterTTL))
	s.evict(now.Add(limiterTTL / 2))
	if _, ok := s.limiters["old"]; ok {
		t.Error("idle limiter not evicted")
	}
	if _, ok := s.limiters["new"]; !ok {
		t.Error("active limiter evicted")
	}
}
