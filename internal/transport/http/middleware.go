package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RequestLogger logs one line per request.
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// Recovery turns a handler panic into a 500 and logs it.
func Recovery(log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		log.Error("handler panic", zap.String("path", c.Request.URL.Path), zap.Any("panic", recovered))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error", "error_type": "internal"})
	})
}

type RateLimitConfig struct {
	// MaxRequests per Window per client IP and route.
	MaxRequests int
	Window      time.Duration
	KeyPrefix   string
}

// RateLimiter is a fixed-window limiter backed by Redis INCR/EXPIRE. Redis
// errors let the request through.
type RateLimiter struct {
	client redis.UniversalClient
	log    *zap.Logger
}

func NewRateLimiter(client redis.UniversalClient, log *zap.Logger) *RateLimiter {
	if log == nil {
		log = zap.NewNop()
	}
	return &RateLimiter{client: client, log: log}
}

func (rl *RateLimiter) Limit(cfg RateLimitConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		key := fmt.Sprintf("%s:%s:%s", cfg.KeyPrefix, clientIP, path)

		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		count, err := rl.client.Incr(ctx, key).Result()
		if err != nil {
			rl.log.Warn("rate limiter unavailable, allowing request", zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}
		if count == 1 {
			if err := rl.client.Expire(ctx, key, cfg.Window).Err(); err != nil {
				rl.log.Warn("rate limiter expire failed", zap.String("key", key), zap.Error(err))
			}
		}

		remaining := cfg.MaxRequests - int(count)
		if remaining < 0 {
			remaining = 0
		}
		ttl, _ := rl.client.TTL(ctx, key).Result()
		retryAfter := int(ttl.Seconds())
		if retryAfter < 0 {
			retryAfter = int(cfg.Window.Seconds())
		}

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", cfg.MaxRequests))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
		c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", retryAfter))

		if int(count) > cfg.MaxRequests {
			rl.log.Info("rate limit exceeded",
				zap.String("client_ip", clientIP), zap.String("path", path), zap.Int64("count", count))
			c.Header("Retry-After", fmt.Sprintf("%d", retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "too many requests",
				"error_type":  "rate_limited",
				"retry_after": retryAfter,
			})
			return
		}
		c.Next()
	}
}
