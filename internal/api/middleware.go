// internal/api/middleware.go
package api

import (
	"fmt"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Corphon/odissey/internal/utils"
)

const (
	requestIDKey    = "request_id"
	requestIDHeader = "X-Request-ID"
)

// RequestIDMiddleware 为每个请求分配请求ID，客户端传入时沿用
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(requestIDKey, requestID)
		c.Header(requestIDHeader, requestID)
		c.Next()
	}
}

// MetricsMiddleware 记录请求计数和耗时
func MetricsMiddleware(metrics *utils.APIMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.RecordAPIRequest(route, c.Request.Method, c.Writer.Status(), time.Since(start))
	}
}

// RateLimiter 固定窗口限流器，按 key 计数
type RateLimiter struct {
	visitors  map[string]*Visitor
	mu        sync.Mutex
	lastSweep time.Time
	now       func() time.Time
}

// Visitor represents a client with rate limiting data
type Visitor struct {
	Limit     int
	Remaining int
	Reset     time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		visitors: make(map[string]*Visitor),
		now:      time.Now,
	}
}

// sweep removes visitors whose window has expired; caller holds mu
func (rl *RateLimiter) sweep(now time.Time) {
	if now.Sub(rl.lastSweep) < time.Minute {
		return
	}
	rl.lastSweep = now
	for key, visitor := range rl.visitors {
		if now.After(visitor.Reset) {
			delete(rl.visitors, key)
		}
	}
}

// Allow checks if a visitor is allowed to make a request
func (rl *RateLimiter) Allow(key string, limit int, window time.Duration) (bool, Visitor) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.sweep(now)

	visitor, exists := rl.visitors[key]
	if !exists || now.After(visitor.Reset) {
		// New visitor or previous window has expired
		visitor = &Visitor{
			Limit:     limit,
			Remaining: limit - 1,
			Reset:     now.Add(window),
		}
		rl.visitors[key] = visitor
		return true, *visitor
	}

	if visitor.Remaining <= 0 {
		return false, *visitor
	}

	visitor.Remaining--
	return true, *visitor
}

// RateLimitMiddleware creates a rate limiting middleware; limit <= 0 disables it
func RateLimitMiddleware(rl *RateLimiter, rh *ResponseHelper, limit int, window time.Duration, keyFunc func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit <= 0 {
			c.Next()
			return
		}

		allowed, visitor := rl.Allow(keyFunc(c), limit, window)
		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", visitor.Limit))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", max(visitor.Remaining, 0)))
		c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", visitor.Reset.Unix()))

		if !allowed {
			rh.TooManyRequests(c, "Rate limit exceeded")
			c.Abort()
			return
		}
		c.Next()
	}
}

// InteractRateLimit 互动接口按客户端IP限流（每分钟 limit 次）
func InteractRateLimit(rl *RateLimiter, rh *ResponseHelper, limit int) gin.HandlerFunc {
	return RateLimitMiddleware(rl, rh, limit, time.Minute, func(c *gin.Context) string {
		return c.ClientIP()
	})
}
