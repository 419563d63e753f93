package auth

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	headerName = "X-API-Key"
	// queryName carries the key for browser WebSocket clients, which cannot
	// set request headers.
	queryName = "api_key"
)

// APIKeyMiddleware checks the dashboard API key. An empty apiKey disables
// the check.
func APIKeyMiddleware(apiKey string) gin.HandlerFunc {
	want := []byte(apiKey)
	return func(c *gin.Context) {
		if apiKey == "" {
			c.Next()
			return
		}

		provided := c.GetHeader(headerName)
		if provided == "" {
			provided = c.Query(queryName)
		}
		switch {
		case provided == "":
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing API key"})
			return
		case subtle.ConstantTimeCompare([]byte(provided), want) != 1:
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid API key"})
			return
		}
		c.Next()
	}
}
