// Package middleware provides Gin middleware for the Victory Integration
// server: request IDs, request logging, and per-IP rate limiting.
package middleware

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// RequestID returns a middleware that assigns each request a UUID, exposed
// on the context and as the X-Request-ID response header.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uuid.New().String()
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// Logging returns a middleware that logs request and response metadata
// including method, path, status code, latency, and client IP.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()
		clientIP := c.ClientIP()
		method := c.Request.Method

		if query != "" {
			path = path + "?" + query
		}

		switch {
		case statusCode >= 500:
			log.Printf("[ERROR] %s %s | %d | %v | %s | errors: %s",
				method, path, statusCode, latency, clientIP, c.Errors.ByType(gin.ErrorTypePrivate).String())
		case statusCode >= 400:
			log.Printf("[WARN]  %s %s | %d | %v | %s",
				method, path, statusCode, latency, clientIP)
		default:
			log.Printf("[INFO]  %s %s | %d | %v | %s",
				method, path, statusCode, latency, clientIP)
		}
	}
}

const (
	limiterIdleTimeout = 10 * time.Minute
	limiterSweepPeriod = time.Minute
)

type ipEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter provides per-IP rate limiting using token buckets. Entries
// for idle IPs are swept periodically so the map does not grow with every
// client ever seen.
type IPRateLimiter struct {
	mu      sync.Mutex
	entries map[string]*ipEntry
	rate    rate.Limit
	burst   int
}

// NewIPRateLimiter creates a per-IP rate limiter allowing r requests per
// second with the given burst size.
func NewIPRateLimiter(r rate.Limit, burst int) *IPRateLimiter {
	rl := &IPRateLimiter{
		entries: make(map[string]*ipEntry),
		rate:    r,
		burst:   burst,
	}
	go rl.sweep()
	return rl
}

func (rl *IPRateLimiter) getLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	e, ok := rl.entries[ip]
	if !ok {
		e = &ipEntry{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.entries[ip] = e
	}
	e.lastSeen = time.Now()
	return e.limiter
}

func (rl *IPRateLimiter) sweep() {
	for range time.Tick(limiterSweepPeriod) {
		rl.evictIdle(time.Now().Add(-limiterIdleTimeout))
	}
}

// evictIdle drops entries last seen before cutoff.
func (rl *IPRateLimiter) evictIdle(cutoff time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, e := range rl.entries {
		if e.lastSeen.Before(cutoff) {
			delete(rl.entries, ip)
		}
	}
}

// Allow reports whether a request from the given IP should be allowed.
func (rl *IPRateLimiter) Allow(ip string) bool {
	return rl.getLimiter(ip).Allow()
}

// Middleware returns a gin handler that rate limits requests by client IP.
func (rl *IPRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Allow(c.ClientIP()) {
			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate_limit_exceeded",
			})
			return
		}
		c.Next()
	}
}
