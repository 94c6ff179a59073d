package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimitConfig bounds request throughput per client IP.
type RateLimitConfig struct {
	RequestsPerSecond int
	Burst             int
}

// clientIdleEviction is how long an IP may sit idle before its limiter
// is dropped.
const clientIdleEviction = 3 * time.Minute

type rateClient struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimit enforces a per-IP token bucket. Idle entries are swept
// inline so the map does not grow with every IP ever seen.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	var (
		mu        sync.Mutex
		clients   = make(map[string]*rateClient)
		lastSweep = time.Now()
	)

	return func(c *gin.Context) {
		now := time.Now()

		mu.Lock()
		if now.Sub(lastSweep) > clientIdleEviction {
			for ip, cl := range clients {
				if now.Sub(cl.lastSeen) > clientIdleEviction {
					delete(clients, ip)
				}
			}
			lastSweep = now
		}
		ip := c.ClientIP()
		cl, ok := clients[ip]
		if !ok {
			cl = &rateClient{limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)}
			clients[ip] = cl
		}
		cl.lastSeen = now
		mu.Unlock()

		if !cl.limiter.Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			c.Abort()
			return
		}
		c.Next()
	}
}
