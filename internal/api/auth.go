package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ──────────────────────────────────────────────────────────────────
// Bearer Token Authentication Middleware
//
// Guards the admin plane with the configured admin token. If no token was
// configured at startup, every admin request is rejected rather than left
// open — config.Load already logs a warning at startup for that case.
// ──────────────────────────────────────────────────────────────────

// AdminAuthMiddleware returns a Gin middleware that validates bearer tokens
// against adminToken using a constant-time comparison.
func AdminAuthMiddleware(adminToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminToken == "" {
			c.JSON(http.StatusForbidden, gin.H{"error": "admin plane is not configured"})
			c.Abort()
			return
		}

		auth := c.GetHeader("Authorization")
		if auth == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "missing Authorization header",
				"hint":  "use: Authorization: Bearer <admin token>",
			})
			c.Abort()
			return
		}

		parts := strings.SplitN(auth, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusForbidden, gin.H{"error": "invalid Authorization header format"})
			c.Abort()
			return
		}

		// Use constant-time comparison to prevent timing-based token enumeration.
		if subtle.ConstantTimeCompare([]byte(parts[1]), []byte(adminToken)) != 1 {
			c.JSON(http.StatusForbidden, gin.H{"error": "invalid admin token"})
			c.Abort()
			return
		}

		c.Next()
	}
}

// AdminWSAuthMiddleware is AdminAuthMiddleware's counterpart for the admin
// realtime endpoint. Browser WebSocket clients cannot set an Authorization
// header during the handshake, so the token is also accepted from the
// query string (?token=...), per spec.md §6.
func AdminWSAuthMiddleware(adminToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminToken == "" {
			c.JSON(http.StatusForbidden, gin.H{"error": "admin plane is not configured"})
			c.Abort()
			return
		}

		presented := c.Query("token")
		if presented == "" {
			if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				presented = strings.TrimPrefix(auth, "Bearer ")
			}
		}
		if presented == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "missing admin token",
				"hint":  "use: ?token=<admin token>",
			})
			c.Abort()
			return
		}

		if subtle.ConstantTimeCompare([]byte(presented), []byte(adminToken)) != 1 {
			c.JSON(http.StatusForbidden, gin.H{"error": "invalid admin token"})
			c.Abort()
			return
		}

		c.Next()
	}
}
