package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/nina/mediascout/internal/logger"
)

// Context keys set by the identity middleware.
const (
	CtxUserID   = "user_id"
	CtxUserRole = "user_role"

	// RoleAnonymous marks requests with no identity header. They are
	// keyed by client IP for rate limiting.
	RoleAnonymous = "anonymous"
	RoleUser      = "user"
	RoleAdmin     = "admin"
)

// Identity resolves the acting user from the opaque identity headers
// set by the gateway. Authentication happens upstream; this middleware
// only propagates who the request is for. Anonymous requests fall back
// to the client IP as their identifier.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader("X-User-ID")
		role := c.GetHeader("X-User-Role")

		if userID == "" {
			userID = c.ClientIP()
			role = RoleAnonymous
		} else if role == "" {
			role = RoleUser
		}

		c.Set(CtxUserID, userID)
		c.Set(CtxUserRole, role)

		ctx := logger.SetUserID(c.Request.Context(), userID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// UserID returns the resolved identity of the request.
func UserID(c *gin.Context) string {
	return c.GetString(CtxUserID)
}

// UserRole returns the resolved role of the request.
func UserRole(c *gin.Context) string {
	return c.GetString(CtxUserRole)
}

// IsAnonymous reports whether the request carries no user identity.
func IsAnonymous(c *gin.Context) bool {
	return UserRole(c) == RoleAnonymous
}
