package httpapi

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/openfinance-sandbox/fapigw/internal/audit"
	"github.com/openfinance-sandbox/fapigw/internal/ids"
	"github.com/openfinance-sandbox/fapigw/internal/obs"
)

const (
	headerRequestID     = "X-Request-Id"
	headerInteractionID = "x-fapi-interaction-id"
)

// RequestID assigns every request an id (reusing a sane inbound one) and
// carries it, with the FAPI interaction id, into the audit context.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := strings.TrimSpace(c.GetHeader(headerRequestID))
		if rid == "" || len(rid) > 128 {
			rid = ids.New()
		}
		c.Header(headerRequestID, rid)

		ctx := audit.WithRequestID(c.Request.Context(), rid)
		ctx = audit.WithInteractionID(ctx, c.GetHeader(headerInteractionID))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// LoggingJSON emits one structured line per request.
func LoggingJSON() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		fields := map[string]any{
			"request_id":  audit.RequestIDFromContext(c.Request.Context()),
			"method":      c.Request.Method,
			"path":        path,
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"remote_ip":   c.ClientIP(),
			"user_agent":  c.Request.UserAgent(),
		}
		if iid := audit.InteractionIDFromContext(c.Request.Context()); iid != "" {
			fields["interaction_id"] = iid
		}
		obs.LogRequest(fields)
	}
}

// SecurityHeaders sets hardening headers for an API that only serves
// signed JSON.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cache-Control", "no-store")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		c.Next()
	}
}

// MaxBodyBytes limits request body size.
func MaxBodyBytes(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}

// rateLimiter keeps one token bucket per client IP.
type rateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	burst   int
	perSec  int
	ttl     time.Duration
	lastGC  time.Time
}

type bucket struct {
	lim *rate.Limiter
	ts  time.Time
}

func newRateLimiter(burst, perSecond int) *rateLimiter {
	return &rateLimiter{
		buckets: make(map[string]*bucket),
		burst:   burst,
		perSec:  perSecond,
		ttl:     5 * time.Minute,
		lastGC:  time.Now(),
	}
}

func (rl *rateLimiter) allow(ip string, now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastGC) > time.Minute {
		for k, b := range rl.buckets {
			if now.Sub(b.ts) > rl.ttl {
				delete(rl.buckets, k)
			}
		}
		rl.lastGC = now
	}

	b, ok := rl.buckets[ip]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rate.Limit(rl.perSec), rl.burst)}
		rl.buckets[ip] = b
	}
	b.ts = now
	return b.lim.AllowN(now, 1)
}

// RateLimit: token-bucket per client IP. burst <= 0 disables limiting.
func RateLimit(burst, perSecond int) gin.HandlerFunc {
	if burst <= 0 || perSecond <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	rl := newRateLimiter(burst, perSecond)
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if ip == "" {
			ip = "unknown"
		}
		if !rl.allow(ip, time.Now()) {
			c.Header("Retry-After", "1")
			obs.RecordRejection("rate_limited")
			writeProblem(c, http.StatusTooManyRequests, codeRateLimited, "Too many requests", "Request rate limit exceeded")
			c.Abort()
			return
		}
		c.Next()
	}
}
