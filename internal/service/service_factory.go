package service

import (
	"go.uber.org/zap"

	"mareye-api/internal/auth"
	"mareye-api/internal/config"
	"mareye-api/internal/email"
	"mareye-api/internal/events"
	"mareye-api/internal/otp"
	"mareye-api/internal/repository/mongo"
)

// Dependencies are the clients and repositories the services are built from.
// Analyzer, Chat, Search and Index are nil when the feature is not configured.
type Dependencies struct {
	Config    *config.Config
	Users     mongo.UserRepository
	Watchlist mongo.WatchlistRepository
	Analyses  mongo.AnalysisRepository
	OTP       *otp.Service
	Tokens    *auth.TokenManager
	Mailer    *email.Service
	Publisher events.Publisher
	Analyzer  Analyzer
	Chat      Chatter
	Search    AnalysisSearcher
	Index     AnalysisIndexer
}

// ServiceFactory creates and manages service instances
type ServiceFactory struct {
	deps   Dependencies
	logger *zap.Logger

	authService      *AuthService
	oauthService     *OAuthService
	profileService   *ProfileService
	watchlistService *WatchlistService
	aiService        *AIService
	contactService   *ContactService
}

func NewServiceFactory(deps Dependencies, logger *zap.Logger) *ServiceFactory {
	return &ServiceFactory{deps: deps, logger: logger}
}

// AuthService returns the auth service instance (singleton)
func (f *ServiceFactory) AuthService() *AuthService {
	if f.authService == nil {
		var mailer WelcomeMailer
		if f.deps.Mailer != nil {
			mailer = f.deps.Mailer
		}
		f.authService = NewAuthService(f.deps.Users, f.deps.OTP, f.deps.Tokens, mailer, f.deps.Publisher, f.logger)
	}
	return f.authService
}

func (f *ServiceFactory) OAuthService() *OAuthService {
	if f.oauthService == nil {
		f.oauthService = NewOAuthService(f.deps.Config.Google, f.deps.Users, f.deps.Tokens, f.deps.Publisher, f.logger)
	}
	return f.oauthService
}

func (f *ServiceFactory) ProfileService() *ProfileService {
	if f.profileService == nil {
		f.profileService = NewProfileService(f.deps.Users, f.deps.Analyses, f.deps.Search)
	}
	return f.profileService
}

func (f *ServiceFactory) WatchlistService() *WatchlistService {
	if f.watchlistService == nil {
		f.watchlistService = NewWatchlistService(f.deps.Watchlist)
	}
	return f.watchlistService
}

func (f *ServiceFactory) AIService() *AIService {
	if f.aiService == nil {
		f.aiService = NewAIService(f.deps.Analyzer, f.deps.Chat, f.deps.Analyses, f.deps.Index, f.logger)
	}
	return f.aiService
}

func (f *ServiceFactory) ContactService() *ContactService {
	if f.contactService == nil {
		f.contactService = NewContactService(f.deps.Mailer, f.deps.Config.Server.MaxUploadBytes, f.logger)
	}
	return f.contactService
}
