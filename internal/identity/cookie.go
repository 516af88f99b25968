package identity

import (
	"net/http"
	"strings"
	"time"

	"github.com/cvforge/cvforge/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const DefaultCookieName = "cv_sid"

const cookieTTL = 30 * 24 * time.Hour

// CookieManager manages the anonymous session cookie. The cookie is
// cross-site capable in production so payment redirects can return to a
// different origin.
type CookieManager struct {
	cookieName string
	secure     bool
	sameSite   http.SameSite
}

func NewCookieManager(cfg config.Config) *CookieManager {
	sameSite := http.SameSiteLaxMode
	if cfg.IsProduction() {
		sameSite = http.SameSiteNoneMode
	}
	return &CookieManager{
		cookieName: DefaultCookieName,
		secure:     cfg.AuthCookieSecure,
		sameSite:   sameSite,
	}
}

func (m *CookieManager) CookieName() string {
	return m.cookieName
}

func (m *CookieManager) Read(c *gin.Context) (string, bool) {
	value, err := c.Cookie(m.cookieName)
	if err != nil {
		return "", false
	}
	if strings.TrimSpace(value) == "" {
		return "", false
	}
	return value, true
}

// Ensure returns the session id from the request cookie, minting and setting
// a new one when absent, so later reconciliation can find the same identity.
func (m *CookieManager) Ensure(c *gin.Context) string {
	if value, ok := m.Read(c); ok {
		return value
	}
	value := uuid.NewString()
	m.Set(c, value)
	return value
}

func (m *CookieManager) Set(c *gin.Context, value string) {
	c.SetSameSite(m.sameSite)
	c.SetCookie(m.cookieName, value, int(cookieTTL.Seconds()), "/", "", m.secure, true)
}

func (m *CookieManager) Clear(c *gin.Context) {
	c.SetSameSite(m.sameSite)
	c.SetCookie(m.cookieName, "", -1, "/", "", m.secure, true)
}
