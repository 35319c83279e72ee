package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"socialhub/pkg/models"
)

const CtxUserIDKey = "user_id"
const CtxUsernameKey = "username"

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(h string) (string, bool) {
	if !strings.HasPrefix(h, "Bearer ") {
		return "", false
	}
	tok := strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	return tok, tok != ""
}

// TokenFromRequest reads the bearer header and falls back to the "token"
// query parameter, which browsers need for WebSocket upgrades.
func TokenFromRequest(r *http.Request) string {
	if tok, ok := BearerToken(r.Header.Get("Authorization")); ok {
		return tok
	}
	return r.URL.Query().Get("token")
}

func RequireJWT(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr, ok := BearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.Envelope{Message: "missing bearer token"})
			return
		}
		claims, err := ParseJWT(secret, tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.Envelope{Message: "invalid token"})
			return
		}
		c.Set(CtxUserIDKey, claims.UserID)
		c.Set(CtxUsernameKey, claims.Username)
		c.Next()
	}
}

// UserID returns the authenticated user set by RequireJWT.
func UserID(c *gin.Context) string {
	return c.GetString(CtxUserIDKey)
}
