package server

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// requireJSON rejects bodies that are not declared as JSON. Browsers send
// text/plain and form posts cross-origin without a preflight.
func requireJSON(c *gin.Context) {
	if c.ContentType() != "application/json" {
		writeJSON(c, http.StatusUnsupportedMediaType, errorResp{Error: "content type must be application/json"})
		c.Abort()
		return
	}
	c.Next()
}

// bearerAuth checks the Authorization header against token. An empty token
// disables the check.
func bearerAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		scheme, got, ok := strings.Cut(c.GetHeader("Authorization"), " ")
		if !ok || !strings.EqualFold(scheme, "bearer") ||
			subtle.ConstantTimeCompare([]byte(strings.TrimSpace(got)), []byte(token)) != 1 {
			c.Header("WWW-Authenticate", "Bearer")
			writeJSON(c, http.StatusUnauthorized, errorResp{Error: "authentication required"})
			c.Abort()
			return
		}
		c.Next()
	}
}
