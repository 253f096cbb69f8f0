package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nina/mediascout/internal/ratelimit"
)

// RateLimit enforces the given limiter per resolved identity. Limit
// state is exposed through X-RateLimit-* headers on every response; a
// denied request gets 429 with a Retry-After hint in seconds.
//
// Parameters:
//   - authed: limiter applied to identified users.
//   - anon: limiter applied to anonymous requests, keyed by client IP.
//
// Returns:
//   - gin.HandlerFunc: middleware handler.
func RateLimit(authed, anon *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		limiter := authed
		if IsAnonymous(c) {
			limiter = anon
		}
		if limiter == nil {
			c.Next()
			return
		}

		res := limiter.Check(c.Request.Context(), UserID(c))

		c.Header("X-RateLimit-Limit", strconv.Itoa(limiter.Config().MaxRequests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

		if !res.Allowed {
			retryAfter := res.RetryAfter(time.Now())
			seconds := int(retryAfter.Seconds())
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", strconv.Itoa(seconds))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"code":        "RATE_LIMITED",
				"retry_after": seconds,
			})
			return
		}

		c.Next()
	}
}
