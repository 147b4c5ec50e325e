package auth

import (
	"context"
	"net/http"
	"strings"
)

const CookieName = "auth_token"

// Extractor finds a raw token on a request. ok is false when this source carries none.
type Extractor interface {
	Extract(r *http.Request) (token string, ok bool)
}

type ExtractorFunc func(r *http.Request) (string, bool)

func (f ExtractorFunc) Extract(r *http.Request) (string, bool) { return f(r) }

// CookieExtractor reads the session cookie.
func CookieExtractor(name string) Extractor {
	return ExtractorFunc(func(r *http.Request) (string, bool) {
		c, err := r.Cookie(name)
		if err != nil || c.Value == "" {
			return "", false
		}
		return c.Value, true
	})
}

// BearerExtractor reads "Authorization: Bearer <token>".
func BearerExtractor() Extractor {
	return ExtractorFunc(func(r *http.Request) (string, bool) {
		h := r.Header.Get("Authorization")
		scheme, token, found := strings.Cut(h, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") {
			return "", false
		}
		token = strings.TrimSpace(token)
		return token, token != ""
	})
}

// Authenticator resolves the caller from the first extractor that yields a token.
// Later extractors are not consulted once one has produced a token, even an invalid one.
type Authenticator struct {
	tokens     *TokenManager
	extractors []Extractor
}

// NewAuthenticator uses the documented priority: session cookie, then bearer header.
func NewAuthenticator(tokens *TokenManager) *Authenticator {
	return NewAuthenticatorWith(tokens, CookieExtractor(CookieName), BearerExtractor())
}

func NewAuthenticatorWith(tokens *TokenManager, extractors ...Extractor) *Authenticator {
	return &Authenticator{tokens: tokens, extractors: extractors}
}

func (a *Authenticator) Authenticate(r *http.Request) (*Claims, error) {
	for _, ex := range a.extractors {
		if token, ok := ex.Extract(r); ok {
			return a.tokens.Parse(token)
		}
	}
	return nil, ErrNoToken
}

type ctxKey struct{}

func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(ctxKey{}).(*Claims)
	return c, ok
}
