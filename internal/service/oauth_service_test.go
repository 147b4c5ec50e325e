package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"mareye-api/internal/auth"
	"mareye-api/internal/config"
	"mareye-api/internal/models"
)

var testGoogleConfig = config.GoogleConfig{
	ClientID:     "client-id",
	ClientSecret: "client-secret",
	RedirectURL:  "http://localhost:8080/api/auth/google/callback",
}

func TestOAuthDisabledWithoutCredentials(t *testing.T) {
	svc := NewOAuthService(config.GoogleConfig{}, newFakeUsers(), auth.NewTokenManager("s"), nil, zap.NewNop())

	assert.False(t, svc.Enabled())
	_, _, err := svc.AuthURL()
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = svc.Callback(context.Background(), "code")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestOAuthAuthURL(t *testing.T) {
	svc := NewOAuthService(testGoogleConfig, newFakeUsers(), auth.NewTokenManager("s"), nil, zap.NewNop())

	raw, state, err := svc.AuthURL()
	require.NoError(t, err)
	require.NotEmpty(t, state)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "accounts.google.com", u.Host)
	assert.Equal(t, state, q.Get("state"))
	assert.Equal(t, "openid email profile", q.Get("scope"))
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "consent", q.Get("prompt"))
	assert.Equal(t, testGoogleConfig.RedirectURL, q.Get("redirect_uri"))

	_, other, err := svc.AuthURL()
	require.NoError(t, err)
	assert.NotEqual(t, state, other)
}

func newGoogleFake(t *testing.T, profile models.GoogleProfile) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "good-code", r.PostForm.Get("code"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"access","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(profile)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestOAuthCallback(t *testing.T) {
	srv := newGoogleFake(t, models.GoogleProfile{
		Sub:           "google-123",
		Email:         "diver@example.com",
		GivenName:     "Dana",
		FamilyName:    "Reef",
		Picture:       "https://example.com/p.png",
		EmailVerified: true,
	})
	users := newFakeUsers()
	tokens := auth.NewTokenManager("s")
	publisher := &recordingPublisher{}

	svc := NewOAuthService(testGoogleConfig, users, tokens, publisher, zap.NewNop())
	svc.oauth.Endpoint = oauth2.Endpoint{AuthURL: srv.URL + "/auth", TokenURL: srv.URL + "/token"}
	svc.userInfoURL = srv.URL + "/userinfo"

	session, err := svc.Callback(context.Background(), "good-code")
	require.NoError(t, err)
	assert.Equal(t, auth.GoogleLoginTTL, session.TTL)
	assert.Equal(t, "google-123", session.User.GoogleID)
	assert.True(t, session.User.IsEmailVerified)
	assert.Equal(t, "Dana", session.User.FirstName)

	claims, err := tokens.Parse(session.Token)
	require.NoError(t, err)
	assert.Equal(t, "diver@example.com", claims.Email)
	assert.Equal(t, []string{models.EventUserLogin}, publisher.types())

	_, err = svc.Callback(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestOAuthCallbackRequiresEmail(t *testing.T) {
	srv := newGoogleFake(t, models.GoogleProfile{Sub: "google-123"})
	svc := NewOAuthService(testGoogleConfig, newFakeUsers(), auth.NewTokenManager("s"), nil, zap.NewNop())
	svc.oauth.Endpoint = oauth2.Endpoint{AuthURL: srv.URL + "/auth", TokenURL: srv.URL + "/token"}
	svc.userInfoURL = srv.URL + "/userinfo"

	_, err := svc.Callback(context.Background(), "good-code")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestOAuthCallbackRejectsUnverifiedEmail(t *testing.T) {
	srv := newGoogleFake(t, models.GoogleProfile{
		Sub:           "attacker-sub",
		Email:         "diver@example.com",
		EmailVerified: false,
	})
	owner := &models.User{Email: "diver@example.com", Username: "diver", Password: "hash", IsEmailVerified: true}
	users := newFakeUsers(owner)
	publisher := &recordingPublisher{}

	svc := NewOAuthService(testGoogleConfig, users, auth.NewTokenManager("s"), publisher, zap.NewNop())
	svc.oauth.Endpoint = oauth2.Endpoint{AuthURL: srv.URL + "/auth", TokenURL: srv.URL + "/token"}
	svc.userInfoURL = srv.URL + "/userinfo"

	session, err := svc.Callback(context.Background(), "good-code")
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Nil(t, session)

	stored, err := users.FindByEmail(context.Background(), "diver@example.com")
	require.NoError(t, err)
	assert.Empty(t, stored.GoogleID)
	assert.Empty(t, publisher.types())
}

func TestOAuthCallbackExchangeFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	svc := NewOAuthService(testGoogleConfig, newFakeUsers(), auth.NewTokenManager("s"), nil, zap.NewNop())
	svc.oauth.Endpoint = oauth2.Endpoint{AuthURL: srv.URL + "/auth", TokenURL: srv.URL + "/token"}

	_, err := svc.Callback(context.Background(), "bad-code")
	assert.ErrorIs(t, err, ErrUpstream)
}
