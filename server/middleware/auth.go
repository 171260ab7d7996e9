package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequireToken guards control routes with a shared API token taken from the
// Authorization bearer, the X-API-Token header or a token query parameter
// (browsers cannot set headers on WebSocket upgrades). An empty token
// disables the check.
func RequireToken(token string, logger *zap.Logger) gin.HandlerFunc {
	expected := []byte(token)

	return func(c *gin.Context) {
		if len(expected) == 0 {
			c.Next()
			return
		}

		presented := extractToken(c)
		if presented == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization token required"})
			c.Abort()
			return
		}

		if subtle.ConstantTimeCompare([]byte(presented), expected) != 1 {
			logger.Warn("Invalid API token", zap.String("client_ip", c.ClientIP()))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			c.Abort()
			return
		}

		c.Next()
	}
}

func extractToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if token := c.GetHeader("X-API-Token"); token != "" {
		return token
	}
	return c.Query("token")
}
