package ratelimit

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"aggregator/pkg/metrics"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
	mu       sync.Mutex
}

type Config struct {
	RPS             float64
	Burst           int
	CleanupInterval time.Duration
	MaxAge          time.Duration
}

func DefaultConfig() Config {
	return Config{
		RPS:             100.0,
		Burst:           200,
		CleanupInterval: 5 * time.Minute,
		MaxAge:          10 * time.Minute,
	}
}

// Middleware applies a per-client token bucket. Producers beyond the budget
// get 429 and are expected to re-publish; replays are safe because the
// ledger treats them as duplicates.
func Middleware(config Config) gin.HandlerFunc {
	limiters := make(map[string]*limiterEntry)
	var mu sync.RWMutex

	go func() {
		ticker := time.NewTicker(config.CleanupInterval)
		defer ticker.Stop()
		for range ticker.C {
			mu.Lock()
			now := time.Now()
			for ip, entry := range limiters {
				entry.mu.Lock()
				lastSeen := entry.lastSeen
				entry.mu.Unlock()
				if now.Sub(lastSeen) > config.MaxAge {
					delete(limiters, ip)
				}
			}
			mu.Unlock()
		}
	}()

	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		if clientIP == "" {
			clientIP = "unknown"
		}

		mu.RLock()
		entry, ok := limiters[clientIP]
		mu.RUnlock()

		if !ok {
			mu.Lock()
			entry, ok = limiters[clientIP]
			if !ok {
				entry = &limiterEntry{
					limiter: rate.NewLimiter(rate.Limit(config.RPS), config.Burst),
				}
				limiters[clientIP] = entry
			}
			mu.Unlock()
		}

		entry.mu.Lock()
		entry.lastSeen = time.Now()
		entry.mu.Unlock()

		if !entry.limiter.Allow() {
			metrics.RateLimitRejectionsTotal.Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": gin.H{
					"code":    "RATE_LIMITED",
					"message": "too many requests",
				},
			})
			return
		}

		c.Next()
	}
}
