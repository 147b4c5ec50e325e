package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"mareye-api/internal/auth"
	"mareye-api/internal/events"
	"mareye-api/internal/metrics"
	"mareye-api/internal/models"
	"mareye-api/internal/otp"
	"mareye-api/internal/repository/mongo"
	"mareye-api/internal/util"
)

const bcryptCost = 10

// WelcomeMailer sends the post-registration greeting.
type WelcomeMailer interface {
	SendWelcome(ctx context.Context, to, name string) error
}

// AuthService owns registration, login and the OTP flows.
type AuthService struct {
	users   mongo.UserRepository
	otp     *otp.Service
	tokens  *auth.TokenManager
	mailer  WelcomeMailer
	events  events.Publisher
	logger  *zap.Logger
	now     func() time.Time
	bgAsync func(fn func())
}

func NewAuthService(
	users mongo.UserRepository,
	otpService *otp.Service,
	tokens *auth.TokenManager,
	mailer WelcomeMailer,
	publisher events.Publisher,
	logger *zap.Logger,
) *AuthService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &AuthService{
		users:   users,
		otp:     otpService,
		tokens:  tokens,
		mailer:  mailer,
		events:  publisher,
		logger:  logger,
		now:     time.Now,
		bgAsync: func(fn func()) { go fn() },
	}
}

// RegisterRequest is both the direct registration body and the OTP userData payload.
type RegisterRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	DOB       string `json:"dob"`
	Avatar    string `json:"avatar"`
}

// Session is an issued token and the user it belongs to.
type Session struct {
	Token string
	TTL   time.Duration
	User  *models.User
}

// pendingRegistration is stored with the OTP; the password is already hashed.
type pendingRegistration struct {
	Username     string `json:"username"`
	PasswordHash string `json:"passwordHash"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	DOB          string `json:"dob"`
	Avatar       string `json:"avatar"`
}

// Register creates a password account without email verification.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*models.User, error) {
	email := util.NormalizeEmail(req.Email)
	if strings.TrimSpace(req.Username) == "" || email == "" || req.Password == "" {
		return nil, fmt.Errorf("%w: missing required fields", ErrInvalidInput)
	}
	if !util.IsValidEmail(email) {
		return nil, fmt.Errorf("%w: invalid email address", ErrInvalidInput)
	}
	if err := validateNames(req); err != nil {
		return nil, err
	}

	exists, err := s.users.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if exists {
		metrics.AuthRegistrationsTotal.WithLabelValues("password", "conflict").Inc()
		return nil, ErrUserAlreadyExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := s.createUser(ctx, email, pendingRegistration{
		Username:     strings.TrimSpace(req.Username),
		PasswordHash: string(hash),
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		DOB:          req.DOB,
		Avatar:       req.Avatar,
	}, false, "password")
	if err != nil {
		return nil, err
	}

	s.sendWelcome(user)
	return user, nil
}

// Login checks a password and issues a one hour session.
// Unknown email and wrong password are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	email = util.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: missing email or password", ErrInvalidInput)
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, mongo.ErrNotFound) {
			s.loginFailed(ctx, email, "unknown_email")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if user.Password == "" || bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		s.loginFailed(ctx, email, "wrong_password")
		return nil, ErrInvalidCredentials
	}

	session, err := s.session(user, auth.LoginTTL)
	if err != nil {
		return nil, err
	}
	metrics.AuthLoginsTotal.WithLabelValues("password", "success").Inc()
	s.publish(ctx, models.EventUserLogin, user, "password")
	return session, nil
}

type SendOTPRequest struct {
	Email    string           `json:"email"`
	Type     string           `json:"type"`
	UserData *RegisterRequest `json:"userData,omitempty"`
}

// SendOTP checks the account state for the purpose and issues a code.
func (s *AuthService) SendOTP(ctx context.Context, req SendOTPRequest) error {
	email := util.NormalizeEmail(req.Email)
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	purpose, err := parsePurpose(req.Type)
	if err != nil {
		return err
	}

	exists, err := s.users.ExistsByEmail(ctx, email)
	if err != nil {
		return err
	}

	issue := otp.IssueRequest{Email: email, Purpose: purpose}
	switch purpose {
	case otp.PurposeRegistration:
		if exists {
			return ErrUserAlreadyExists
		}
		if req.UserData != nil {
			payload, name, err := s.pendingPayload(email, req.UserData)
			if err != nil {
				return err
			}
			issue.Payload = payload
			issue.RecipientName = name
		}
	case otp.PurposeLogin:
		if !exists {
			return ErrUserNotFound
		}
	}

	if err := s.otp.Issue(ctx, issue); err != nil {
		switch {
		case errors.Is(err, otp.ErrRateLimited):
			return fmt.Errorf("%w: %v", ErrTooManyRequests, err)
		case errors.Is(err, otp.ErrDelivery):
			return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
		}
		return err
	}

	s.events.Publish(ctx, models.AuthEvent{Type: models.EventOTPIssued, Email: email, Details: map[string]string{"purpose": string(purpose)}})
	return nil
}

type VerifyOTPRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
	Type  string `json:"type"`
}

// VerifyOTP consumes a code and completes the registration or login it was issued for.
// Verification failures are returned as the otp package errors.
func (s *AuthService) VerifyOTP(ctx context.Context, req VerifyOTPRequest) (*Session, bool, error) {
	email := util.NormalizeEmail(req.Email)
	code := strings.TrimSpace(req.OTP)
	if email == "" || code == "" {
		return nil, false, fmt.Errorf("%w: email and otp are required", ErrInvalidInput)
	}
	purpose, err := parsePurpose(req.Type)
	if err != nil {
		return nil, false, err
	}

	verified, err := s.otp.Verify(ctx, email, code)
	if err != nil {
		return nil, false, err
	}
	if verified.Purpose != purpose {
		return nil, false, fmt.Errorf("%w: code was issued for %s", ErrInvalidInput, verified.Purpose)
	}

	if purpose == otp.PurposeLogin {
		user, err := s.users.FindByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, mongo.ErrNotFound) {
				return nil, false, ErrUserNotFound
			}
			return nil, false, err
		}
		session, err := s.session(user, auth.OTPVerifyTTL)
		if err != nil {
			return nil, false, err
		}
		metrics.AuthLoginsTotal.WithLabelValues("otp", "success").Inc()
		s.publish(ctx, models.EventUserLogin, user, "otp")
		return session, false, nil
	}

	if len(verified.Payload) == 0 {
		return nil, false, fmt.Errorf("%w: user data not found", ErrInvalidInput)
	}
	var pending pendingRegistration
	if err := json.Unmarshal(verified.Payload, &pending); err != nil {
		return nil, false, fmt.Errorf("%w: user data not found", ErrInvalidInput)
	}

	user, err := s.createUser(ctx, email, pending, true, "otp")
	if err != nil {
		return nil, false, err
	}
	session, err := s.session(user, auth.OTPVerifyTTL)
	if err != nil {
		return nil, false, err
	}
	s.sendWelcome(user)
	return session, true, nil
}

func (s *AuthService) pendingPayload(email string, data *RegisterRequest) (json.RawMessage, string, error) {
	if data.Password == "" {
		return nil, "", fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	if err := validateNames(*data); err != nil {
		return nil, "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(data.Password), bcryptCost)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash password: %w", err)
	}

	username := strings.TrimSpace(data.Username)
	if username == "" {
		username, _, _ = strings.Cut(email, "@")
	}
	payload, err := json.Marshal(pendingRegistration{
		Username:     username,
		PasswordHash: string(hash),
		FirstName:    data.FirstName,
		LastName:     data.LastName,
		DOB:          data.DOB,
		Avatar:       data.Avatar,
	})
	if err != nil {
		return nil, "", err
	}

	name := data.FirstName
	if name == "" {
		name = data.Username
	}
	return payload, name, nil
}

func (s *AuthService) createUser(ctx context.Context, email string, p pendingRegistration, verified bool, flow string) (*models.User, error) {
	now := s.now().UTC()
	user := &models.User{
		Username:        p.Username,
		Email:           email,
		Password:        p.PasswordHash,
		FirstName:       p.FirstName,
		LastName:        p.LastName,
		DOB:             p.DOB,
		Avatar:          p.Avatar,
		IsEmailVerified: verified,
		Subscription:    models.DefaultSubscription(),
		Tokens:          models.DefaultTokenUsage(now),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	created, err := s.users.Create(ctx, user)
	if err != nil {
		if errors.Is(err, mongo.ErrDuplicate) {
			metrics.AuthRegistrationsTotal.WithLabelValues(flow, "conflict").Inc()
			return nil, ErrUserAlreadyExists
		}
		metrics.AuthRegistrationsTotal.WithLabelValues(flow, "error").Inc()
		return nil, err
	}

	metrics.AuthRegistrationsTotal.WithLabelValues(flow, "success").Inc()
	s.publish(ctx, models.EventUserRegistered, created, flow)
	s.logger.Info("User registered",
		util.String("user_id", created.ID.Hex()),
		util.Email("email", email),
		util.String("flow", flow),
	)
	return created, nil
}

func (s *AuthService) session(user *models.User, ttl time.Duration) (*Session, error) {
	token, err := s.tokens.Issue(user.ID.Hex(), user.Email, ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}
	return &Session{Token: token, TTL: ttl, User: user}, nil
}

func (s *AuthService) sendWelcome(user *models.User) {
	if s.mailer == nil {
		return
	}
	s.bgAsync(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = s.mailer.SendWelcome(ctx, user.Email, user.DisplayName())
	})
}

func (s *AuthService) loginFailed(ctx context.Context, email, reason string) {
	metrics.AuthLoginsTotal.WithLabelValues("password", "invalid").Inc()
	s.events.Publish(ctx, models.AuthEvent{Type: models.EventLoginFailed, Email: email, Method: "password", Details: map[string]string{"reason": reason}})
}

func (s *AuthService) publish(ctx context.Context, eventType string, user *models.User, method string) {
	s.events.Publish(ctx, models.AuthEvent{
		Type:   eventType,
		UserID: user.ID.Hex(),
		Email:  user.Email,
		Method: method,
	})
}

func validateNames(req RegisterRequest) error {
	for _, v := range []string{req.Username, req.FirstName, req.LastName} {
		if util.ContainsSuspicious(v) {
			return fmt.Errorf("%w: names may not contain markup", ErrInvalidInput)
		}
	}
	return nil
}

func parsePurpose(t string) (otp.Purpose, error) {
	if strings.TrimSpace(t) == "" {
		return otp.PurposeRegistration, nil
	}
	p := otp.Purpose(t)
	if !p.Valid() {
		return "", fmt.Errorf("%w: invalid verification type", ErrInvalidInput)
	}
	return p, nil
}
