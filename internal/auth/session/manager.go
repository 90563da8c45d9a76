package session

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/futorumeshi/internal/clock"
	"github.com/smallbiznis/futorumeshi/internal/config"
)

const DefaultCookieName = "_sid"

// Manager reads and writes the operator session cookie.
type Manager struct {
	cookieName string
	secure     bool
	clock      clock.Clock
}

func NewManager(cfg config.Config, clk clock.Clock) *Manager {
	return &Manager{
		cookieName: DefaultCookieName,
		secure:     cfg.AuthCookieSecure,
		clock:      clk,
	}
}

func (m *Manager) CookieName() string {
	return m.cookieName
}

// ReadToken prefers the session cookie and falls back to an Authorization bearer token.
func (m *Manager) ReadToken(c *gin.Context) (string, bool) {
	if token, err := c.Cookie(m.cookieName); err == nil {
		if token = strings.TrimSpace(token); token != "" {
			return token, true
		}
	}

	header := strings.TrimSpace(c.GetHeader("Authorization"))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func (m *Manager) Set(c *gin.Context, value string, expiresAt time.Time) {
	maxAge := int(expiresAt.Sub(m.clock.Now()).Seconds())
	if maxAge < 0 {
		maxAge = 0
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(m.cookieName, value, maxAge, "/", "", m.secure, true)
}

func (m *Manager) Clear(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(m.cookieName, "", -1, "/", "", m.secure, true)
}
