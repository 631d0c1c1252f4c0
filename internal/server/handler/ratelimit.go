package handler

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// How often the limiter map is scanned for stale client entries, and how
	// long a client must be idle before its bucket is dropped. The bridge
	// polls constantly from one IP, so its entry effectively never expires.
	limiterCleanupEvery = 5 * time.Minute
	limiterStaleAfter   = 10 * time.Minute
)

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter returns a Gin middleware that enforces per-IP token-bucket
// rate limiting. rps is the steady-state requests per second; burst is the
// maximum burst size.
func RateLimiter(rps, burst int, logger *zap.Logger) gin.HandlerFunc {
	var mu sync.Mutex
	limiters := make(map[string]*ipLimiter)

	// Background cleanup goroutine.
	go func() {
		for {
			time.Sleep(limiterCleanupEvery)
			mu.Lock()
			evicted := 0
			for ip, l := range limiters {
				if time.Since(l.lastSeen) > limiterStaleAfter {
					delete(limiters, ip)
					evicted++
				}
			}
			remaining := len(limiters)
			mu.Unlock()
			if evicted > 0 {
				logger.Debug("evicted stale rate limiters",
					zap.Int("evicted", evicted),
					zap.Int("remaining", remaining),
				)
			}
		}
	}()

	return func(c *gin.Context) {
		ip := c.ClientIP()

		mu.Lock()
		l, ok := limiters[ip]
		if !ok {
			l = &ipLimiter{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
			limiters[ip] = l
		}
		l.lastSeen = time.Now()
		mu.Unlock()

		if !l.limiter.Allow() {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
