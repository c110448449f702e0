package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/gin-gonic/gin"
)

const sessionContextKey = "auth.session"

// TokenResolver looks up the session behind a presented API token hash.
// Implemented by the server against the user table; split out so the
// middleware stays free of persistence concerns.
type TokenResolver interface {
	ResolveToken(c *gin.Context, tokenHash string) (Session, bool)
}

func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Middleware attaches the caller's Session to the gin context when a valid
// bearer token is presented. Missing or unknown tokens leave no session
// attached; handlers that require one reject the request themselves so the
// anonymous contact-form intake stays reachable.
func Middleware(resolver TokenResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			c.Next()
			return
		}

		sess, ok := resolver.ResolveToken(c, HashToken(strings.TrimSpace(token)))
		if ok {
			c.Set(sessionContextKey, sess)
		}
		c.Next()
	}
}

// SessionFromGin returns the resolved session, if any.
func SessionFromGin(c *gin.Context) (Session, bool) {
	v, ok := c.Get(sessionContextKey)
	if !ok {
		return Session{}, false
	}
	sess, ok := v.(Session)
	return sess, ok
}
