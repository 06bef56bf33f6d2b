package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) {
		if _, ok := c.Get("request_id"); !ok {
			t.Error("request_id not set on context")
		}
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	r.ServeHTTP(w, req)

	if id := w.Header().Get("X-Request-ID"); id == "" {
		t.Error("X-Request-ID header not set")
	}

	// Each request gets a distinct ID.
	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, req)
	if w.Header().Get("X-Request-ID") == w2.Header().Get("X-Request-ID") {
		t.Error("request IDs repeat across requests")
	}
}

func TestRateLimiterAllows(t *testing.T) {
	rl := NewIPRateLimiter(10, 5)
	if !rl.Allow("10.0.0.1") {
		t.Error("first request should be allowed")
	}
}

func TestRateLimiterBlocksAfterBurst(t *testing.T) {
	rl := NewIPRateLimiter(0.001, 2)

	r := gin.New()
	r.Use(rl.Middleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.2:1234"
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Errorf("burst requests got %v, want 200s", codes[:2])
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("post-burst request got %d, want 429", codes[2])
	}
}

func TestRateLimiterEvictsIdleEntries(t *testing.T) {
	rl := NewIPRateLimiter(10, 5)
	rl.Allow("10.0.0.5")
	rl.Allow("10.0.0.6")

	rl.mu.Lock()
	rl.entries["10.0.0.5"].lastSeen = time.Now().Add(-time.Hour)
	rl.mu.Unlock()

	rl.evictIdle(time.Now().Add(-limiterIdleTimeout))

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if _, ok := rl.entries["10.0.0.5"]; ok {
		t.Error("idle entry was not evicted")
	}
	if _, ok := rl.entries["10.0.0.6"]; !ok {
		t.Error("recently seen entry was evicted")
	}
}

func TestRateLimiterPerIP(t *testing.T) {
	rl := NewIPRateLimiter(0.001, 1)

	if !rl.Allow("10.0.0.3") {
		t.Fatal("first request from first IP should be allowed")
	}
	if rl.Allow("10.0.0.3") {
		t.Error("second request from same IP should be blocked")
	}
	// A different IP has its own bucket.
	if !rl.Allow("10.0.0.4") {
		t.Error("request from a different IP should be allowed")
	}
}
