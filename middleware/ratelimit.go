package middleware

import (
	"fmt"
	"log"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/pouch-store-api/cache"
)

// RateLimit allows limit requests per client IP and path in each window.
// Counters live in store so several instances can share them through redis.
func RateLimit(store cache.Store, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := fmt.Sprintf("ratelimit:%s:%s", c.ClientIP(), c.FullPath())
		if c.FullPath() == "" {
			key = fmt.Sprintf("ratelimit:%s:%s", c.ClientIP(), c.Request.URL.Path)
		}

		count, ttl, err := store.Incr(c.Request.Context(), key, window)
		if err != nil {
			// Fail open on store errors
			log.Printf("Rate limiter unavailable: %v", err)
			c.Next()
			return
		}

		resetSeconds := int(math.Ceil(ttl.Seconds()))
		remaining := int64(limit) - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(ttl).Unix(), 10))

		if count > int64(limit) {
			c.Header("Retry-After", strconv.Itoa(resetSeconds))
			abortWithError(c, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests, please try again later")
			return
		}

		c.Next()
	}
}
