package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// TokenQueryParam carries the token for clients that cannot set headers on a
// websocket upgrade, such as browsers.
const TokenQueryParam = "token"

// BearerToken rejects requests that do not present token either as
// "Authorization: Bearer <token>" or as the token query parameter. An empty
// token disables the check.
func BearerToken(token string, skipPaths ...string) gin.HandlerFunc {
	skip := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = true
	}

	return func(c *gin.Context) {
		if token == "" || skip[c.Request.URL.Path] {
			c.Next()
			return
		}

		presented, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok {
			presented = c.Query(TokenQueryParam)
		}
		if presented == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "invalid or missing token",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
