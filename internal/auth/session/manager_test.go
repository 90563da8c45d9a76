package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/futorumeshi/internal/clock"
	"github.com/smallbiznis/futorumeshi/internal/config"
)

func newContext(req *http.Request) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	return c, w
}

func TestReadTokenFromCookieOrBearer(t *testing.T) {
	m := NewManager(config.Config{}, clock.SystemClock{})

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: "cookie-token"})
	req.Header.Set("Authorization", "Bearer header-token")
	c, _ := newContext(req)
	if token, ok := m.ReadToken(c); !ok || token != "cookie-token" {
		t.Fatalf("expected cookie token, got %q %v", token, ok)
	}

	req = httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "bearer header-token")
	c, _ = newContext(req)
	if token, ok := m.ReadToken(c); !ok || token != "header-token" {
		t.Fatalf("expected bearer token, got %q %v", token, ok)
	}

	req = httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Basic Zm9vOmJhcg==")
	c, _ = newContext(req)
	if _, ok := m.ReadToken(c); ok {
		t.Fatalf("expected basic auth to be ignored")
	}
}

func TestSetWritesHttpOnlyCookie(t *testing.T) {
	now := time.Date(2024, time.May, 1, 9, 0, 0, 0, time.UTC)
	m := NewManager(config.Config{AuthCookieSecure: true}, clock.NewFakeClock(now))

	c, w := newContext(httptest.NewRequest(http.MethodPost, "/auth/login", nil))
	m.Set(c, "tok", now.Add(time.Hour))

	cookies := w.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected one cookie, got %d", len(cookies))
	}
	cookie := cookies[0]
	if cookie.Name != DefaultCookieName || cookie.Value != "tok" {
		t.Fatalf("unexpected cookie %+v", cookie)
	}
	if !cookie.HttpOnly || !cookie.Secure || cookie.MaxAge != 3600 {
		t.Fatalf("unexpected cookie attributes %+v", cookie)
	}
}
