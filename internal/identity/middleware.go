package identity

import (
	"strings"

	"github.com/gin-gonic/gin"
)

const contextKey = "identity"

// Resolver is the single identity-resolution step: bearer token first, then
// the anonymous session cookie. Handlers downstream read an already-validated
// Identity and never re-derive it.
func Resolver(tokens *TokenManager, cookies *CookieManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if header := strings.TrimSpace(c.GetHeader("Authorization")); header != "" {
			if token, ok := strings.CutPrefix(header, "Bearer "); ok {
				if ident, err := tokens.Parse(strings.TrimSpace(token)); err == nil {
					c.Set(contextKey, ident)
					c.Next()
					return
				}
			}
			// An invalid token degrades to anonymous rather than failing the
			// request; endpoints that require an account check for one.
		}

		if sessionID, ok := cookies.Read(c); ok {
			c.Set(contextKey, ForSession(sessionID))
		}
		c.Next()
	}
}

// FromContext returns the resolved identity for this request.
func FromContext(c *gin.Context) (Identity, bool) {
	value, ok := c.Get(contextKey)
	if !ok {
		return Identity{}, false
	}
	ident, ok := value.(Identity)
	if !ok || ident.IsZero() {
		return Identity{}, false
	}
	return ident, true
}

// SetForRequest stores a freshly minted identity, used when a handler creates
// the session cookie mid-request.
func SetForRequest(c *gin.Context, ident Identity) {
	c.Set(contextKey, ident)
}
