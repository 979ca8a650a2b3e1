package httpserver

import (
	"net/http"
	"time"

	"github.com/and161185/console-auth/internal/model"
)

// CookieConfig sets the attributes of the session cookies.
type CookieConfig struct {
	Secure bool
	Domain string
}

func (c CookieConfig) cookie(name, value, path string, expires time.Time) *http.Cookie {
	ck := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Domain:   c.Domain,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteStrictMode,
	}
	if value == "" {
		ck.MaxAge = -1
		ck.Expires = time.Unix(0, 0)
		return ck
	}
	ck.Expires = expires
	return ck
}

func (c CookieConfig) setSession(w http.ResponseWriter, t model.Tokens) {
	http.SetCookie(w, c.cookie(AccessCookie, t.AccessToken, "/", t.AccessExpiresAt))
	http.SetCookie(w, c.cookie(RefreshCookie, t.RefreshToken, "/auth", t.RefreshExpiresAt))
}

func (c CookieConfig) clearSession(w http.ResponseWriter) {
	http.SetCookie(w, c.cookie(AccessCookie, "", "/", time.Time{}))
	http.SetCookie(w, c.cookie(RefreshCookie, "", "/auth", time.Time{}))
}
