package mw

import (
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// KeyedRateLimiter stores a rate limiter per client key (reader id or IP address).
type KeyedRateLimiter struct {
	keys map[string]*rate.Limiter
	mu   *sync.RWMutex
	r    rate.Limit
	b    int
}

// NewKeyedRateLimiter creates a new KeyedRateLimiter.
func NewKeyedRateLimiter(r rate.Limit, b int) *KeyedRateLimiter {
	return &KeyedRateLimiter{
		keys: make(map[string]*rate.Limiter),
		mu:   &sync.RWMutex{},
		r:    r,
		b:    b,
	}
}

// Add creates a new rate limiter for a key.
func (i *KeyedRateLimiter) Add(key string) *rate.Limiter {
	i.mu.Lock()
	defer i.mu.Unlock()

	if limiter, exists := i.keys[key]; exists {
		return limiter
	}
	limiter := rate.NewLimiter(i.r, i.b)
	i.keys[key] = limiter
	return limiter
}

// GetLimiter returns the rate limiter for a key.
func (i *KeyedRateLimiter) GetLimiter(key string) *rate.Limiter {
	i.mu.RLock()
	limiter, exists := i.keys[key]
	i.mu.RUnlock()

	if !exists {
		return i.Add(key)
	}
	return limiter
}

// RateLimiter is a middleware for per-client rate limiting. When keyHeader is set and present
// on the request (a reader identifying itself), its value is the key; otherwise the client IP.
func RateLimiter(r rate.Limit, b int, keyHeader string) gin.HandlerFunc {
	limiter := NewKeyedRateLimiter(r, b)
	return func(c *gin.Context) {
		if !limiter.GetLimiter(clientKey(c, keyHeader)).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"status": "error", "msg": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

func clientKey(c *gin.Context, keyHeader string) string {
	if keyHeader != "" {
		if v := strings.TrimSpace(c.GetHeader(keyHeader)); v != "" {
			return "reader:" + v
		}
	}
	return "ip:" + c.ClientIP()
}
