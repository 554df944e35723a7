package ginapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/pilab-dev/frigg/internal/metrics"
)

// UserIDHeader carries the id of the local user the request acts for. It is
// set by the trusted application in front of this service.
const UserIDHeader = "X-Frigg-User-ID"

// AuthUserIDKey is the gin context key of the user id.
const AuthUserIDKey = "auth-user-id"

// UserIDMiddleware requires UserIDHeader and stores it under AuthUserIDKey.
func UserIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(UserIDHeader)
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code": "missing_user",
				"msg":  "Missing " + UserIDHeader + " header",
			})
			return
		}
		c.Set(AuthUserIDKey, userID)
		c.Next()
	}
}

// MetricsMiddleware counts served requests by method and status.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		metrics.APIRequestsTotal.WithLabelValues(c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

// SecurityHeadersMiddleware adds the security headers of a JSON API.
func SecurityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Cache-Control", "no-store")
		c.Next()
	}
}
