package handler

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"mareye-api/internal/auth"
	"mareye-api/internal/models"
	"mareye-api/internal/service"
	"mareye-api/internal/util"
)

const (
	oauthStateCookie = "oauth_state"
	oauthStateTTL    = 10 * time.Minute
)

type AuthService interface {
	Register(ctx context.Context, req service.RegisterRequest) (*models.User, error)
	Login(ctx context.Context, email, password string) (*service.Session, error)
	SendOTP(ctx context.Context, req service.SendOTPRequest) error
	VerifyOTP(ctx context.Context, req service.VerifyOTPRequest) (*service.Session, bool, error)
}

type OAuthService interface {
	AuthURL() (string, string, error)
	Callback(ctx context.Context, code string) (*service.Session, error)
}

// AuthHandler serves registration, login, OTP and Google sign-in.
type AuthHandler struct {
	base
	auth        AuthService
	oauth       OAuthService
	cookies     auth.CookieWriter
	frontendURL string
}

func NewAuthHandler(authService AuthService, oauthService OAuthService, cookies auth.CookieWriter, frontendURL string, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		base:        base{logger: logger},
		auth:        authService,
		oauth:       oauthService,
		cookies:     cookies,
		frontendURL: strings.TrimRight(frontendURL, "/"),
	}
}

func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Post("/register", h.Register)
	r.Post("/login", h.Login)
	r.Post("/logout", h.Logout)
	r.Post("/send-otp", h.SendOTP)
	r.Post("/verify-otp", h.VerifyOTP)
	r.Get("/auth/google", h.GoogleStart)
	r.Get("/auth/google/callback", h.GoogleCallback)
}

// userBody is the user object of auth responses; firstName falls back to the username.
func userBody(u *models.User) models.PublicUser {
	p := u.Public()
	p.FirstName = u.DisplayName()
	return p
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req service.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if req.Username == "" || req.Email == "" || req.Password == "" {
		h.respondWithError(w, http.StatusBadRequest, nil, "Missing required fields")
		return
	}

	user, err := h.auth.Register(r.Context(), req)
	if err != nil {
		h.respondWithError(w, getStatusCode(err), err, clientMessage(err, "Registration failed"))
		return
	}

	h.respondWithJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"message": "User registered successfully",
		"user":    userBody(user),
	})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		h.respondWithError(w, http.StatusBadRequest, nil, "Missing email or password")
		return
	}

	session, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.respondWithError(w, getStatusCode(err), err, clientMessage(err, "Login failed"))
		return
	}

	h.cookies.Set(w, session.Token, session.TTL)
	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Login successful",
		"token":   session.Token,
		"user":    userBody(session.User),
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.cookies.Clear(w)
	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Logged out successfully",
	})
}

func (h *AuthHandler) SendOTP(w http.ResponseWriter, r *http.Request) {
	var req service.SendOTPRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		h.respondWithError(w, http.StatusBadRequest, nil, "Email is required")
		return
	}

	err := h.auth.SendOTP(r.Context(), req)
	switch {
	case err == nil:
		h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"message": "OTP sent successfully",
		})
	case errors.Is(err, service.ErrUserAlreadyExists):
		h.respondWithError(w, http.StatusBadRequest, err, "User already exists with this email")
	case errors.Is(err, service.ErrUserNotFound):
		h.respondWithError(w, http.StatusNotFound, err, "No account found with this email")
	case errors.Is(err, service.ErrDeliveryFailed):
		h.respondWithError(w, http.StatusInternalServerError, err, "Failed to send OTP email")
	default:
		h.respondWithError(w, getStatusCode(err), err, clientMessage(err, "Failed to send OTP"))
	}
}

func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req service.VerifyOTPRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Email) == "" || strings.TrimSpace(req.OTP) == "" {
		h.respondWithError(w, http.StatusBadRequest, nil, "Email and OTP are required")
		return
	}

	session, created, err := h.auth.VerifyOTP(r.Context(), req)
	if err != nil {
		h.respondWithError(w, getStatusCode(err), err, clientMessage(err, "OTP verification failed"))
		return
	}

	status, message := http.StatusOK, "Login successful"
	if created {
		status, message = http.StatusCreated, "Registration successful"
	}
	h.cookies.Set(w, session.Token, session.TTL)
	h.respondWithJSON(w, status, map[string]interface{}{
		"success": true,
		"message": message,
		"token":   session.Token,
		"user":    userBody(session.User),
	})
}

// GoogleStart redirects to the consent screen and remembers the state in a short-lived cookie.
func (h *AuthHandler) GoogleStart(w http.ResponseWriter, r *http.Request) {
	target, state, err := h.oauth.AuthURL()
	if err != nil {
		h.respondWithError(w, getStatusCode(err), err, "Failed to start Google OAuth")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/api/auth/google",
		MaxAge:   int(oauthStateTTL / time.Second),
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, target, http.StatusFound)
}

func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	http.SetCookie(w, &http.Cookie{Name: oauthStateCookie, Path: "/api/auth/google", MaxAge: -1, HttpOnly: true, Secure: h.cookies.Secure})

	if e := q.Get("error"); e != "" {
		h.loginRedirect(w, r, e)
		return
	}
	c, err := r.Cookie(oauthStateCookie)
	if err != nil || c.Value == "" || c.Value != q.Get("state") {
		h.logger.Warn("Google callback with mismatched state", util.String("remote_addr", r.RemoteAddr))
		h.loginRedirect(w, r, "Invalid OAuth state")
		return
	}
	code := q.Get("code")
	if code == "" {
		h.loginRedirect(w, r, "Missing code")
		return
	}

	session, err := h.oauth.Callback(r.Context(), code)
	if err != nil {
		h.logger.Error("Google OAuth callback error", util.ErrorField(err))
		if errors.Is(err, service.ErrInvalidInput) {
			h.loginRedirect(w, r, "Email not available from Google")
			return
		}
		h.loginRedirect(w, r, "Google sign-in failed")
		return
	}

	h.cookies.Set(w, session.Token, session.TTL)
	http.Redirect(w, r, h.frontendURL+"/", http.StatusFound)
}

func (h *AuthHandler) loginRedirect(w http.ResponseWriter, r *http.Request, reason string) {
	http.Redirect(w, r, h.frontendURL+"/auth/login?error="+url.QueryEscape(reason), http.StatusFound)
}
