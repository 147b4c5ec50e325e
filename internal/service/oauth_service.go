package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"mareye-api/internal/auth"
	"mareye-api/internal/config"
	"mareye-api/internal/events"
	"mareye-api/internal/metrics"
	"mareye-api/internal/models"
	"mareye-api/internal/repository/mongo"
	"mareye-api/internal/util"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"

// OAuthService implements Google sign-in with the authorization code flow.
type OAuthService struct {
	oauth       *oauth2.Config
	userInfoURL string
	users       mongo.UserRepository
	tokens      *auth.TokenManager
	events      events.Publisher
	logger      *zap.Logger
	now         func() time.Time
}

func NewOAuthService(cfg config.GoogleConfig, users mongo.UserRepository, tokens *auth.TokenManager, publisher events.Publisher, logger *zap.Logger) *OAuthService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &OAuthService{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		},
		userInfoURL: googleUserInfoURL,
		users:       users,
		tokens:      tokens,
		events:      publisher,
		logger:      logger,
		now:         time.Now,
	}
}

func (s *OAuthService) Enabled() bool {
	return s.oauth.ClientID != "" && s.oauth.ClientSecret != "" && s.oauth.RedirectURL != ""
}

// AuthURL returns the consent screen URL and the state value the caller must remember.
func (s *OAuthService) AuthURL() (string, string, error) {
	if !s.Enabled() {
		return "", "", fmt.Errorf("%w: google sign-in", ErrNotConfigured)
	}
	state := uuid.NewString()
	url := s.oauth.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
	return url, state, nil
}

// Callback exchanges the code, loads the Google profile and signs the user in for 7 days.
func (s *OAuthService) Callback(ctx context.Context, code string) (*Session, error) {
	if !s.Enabled() {
		return nil, fmt.Errorf("%w: google sign-in", ErrNotConfigured)
	}
	if code == "" {
		return nil, fmt.Errorf("%w: missing code", ErrInvalidInput)
	}

	tok, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		metrics.AuthLoginsTotal.WithLabelValues("google", "error").Inc()
		return nil, fmt.Errorf("%w: token exchange: %v", ErrUpstream, err)
	}

	profile, err := s.fetchProfile(ctx, tok)
	if err != nil {
		metrics.AuthLoginsTotal.WithLabelValues("google", "error").Inc()
		return nil, err
	}
	if profile.Email == "" {
		metrics.AuthLoginsTotal.WithLabelValues("google", "invalid").Inc()
		return nil, fmt.Errorf("%w: google account has no email", ErrInvalidInput)
	}
	// an unverified address must never be linked to the account that owns it
	if !profile.EmailVerified {
		metrics.AuthLoginsTotal.WithLabelValues("google", "invalid").Inc()
		s.logger.Warn("Rejected Google sign-in with unverified email", util.Email("email", profile.Email))
		return nil, fmt.Errorf("%w: google email is not verified", ErrInvalidInput)
	}

	user, err := s.users.UpsertGoogleUser(ctx, profile, s.now().UTC())
	if err != nil {
		metrics.AuthLoginsTotal.WithLabelValues("google", "error").Inc()
		return nil, err
	}

	token, err := s.tokens.Issue(user.ID.Hex(), user.Email, auth.GoogleLoginTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	metrics.AuthLoginsTotal.WithLabelValues("google", "success").Inc()
	s.events.Publish(ctx, models.AuthEvent{Type: models.EventUserLogin, UserID: user.ID.Hex(), Email: user.Email, Method: "google"})
	s.logger.Info("Google sign-in", util.String("user_id", user.ID.Hex()), util.Email("email", user.Email))

	return &Session{Token: token, TTL: auth.GoogleLoginTTL, User: user}, nil
}

func (s *OAuthService) fetchProfile(ctx context.Context, tok *oauth2.Token) (*models.GoogleProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.userInfoURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.oauth.Client(ctx, tok).Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: userinfo: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: userinfo returned %s", ErrUpstream, resp.Status)
	}

	var profile models.GoogleProfile
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&profile); err != nil {
		return nil, fmt.Errorf("%w: decode userinfo: %v", ErrUpstream, err)
	}
	return &profile, nil
}
