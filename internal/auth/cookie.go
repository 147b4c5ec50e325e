package auth

import (
	"net/http"
	"time"
)

// CookieWriter sets and clears the session cookie with fixed attributes.
type CookieWriter struct {
	Secure bool
	Domain string
}

func (w CookieWriter) Set(rw http.ResponseWriter, token string, ttl time.Duration) {
	http.SetCookie(rw, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Domain:   w.Domain,
		MaxAge:   int(ttl / time.Second),
		HttpOnly: true,
		Secure:   w.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (w CookieWriter) Clear(rw http.ResponseWriter) {
	http.SetCookie(rw, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		Domain:   w.Domain,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   w.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
