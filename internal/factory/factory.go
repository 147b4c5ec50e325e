package factory

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"mareye-api/internal/ai"
	"mareye-api/internal/auth"
	"mareye-api/internal/backend"
	"mareye-api/internal/client"
	"mareye-api/internal/config"
	"mareye-api/internal/email"
	"mareye-api/internal/events"
	"mareye-api/internal/handler"
	"mareye-api/internal/hashing"
	"mareye-api/internal/otp"
	"mareye-api/internal/repository/elastic"
	"mareye-api/internal/repository/mongo"
	"mareye-api/internal/repository/redis"
	"mareye-api/internal/service"
	"mareye-api/internal/tls"
	"mareye-api/internal/util"
)

// Factory manages the lifecycle of all application dependencies
type Factory struct {
	config     *config.Config
	tlsManager *tls.Manager

	// Clients
	mongoClient   *client.MongoClient
	redisClient   *client.RedisClient
	kafkaProducer *client.KafkaProducer
	esClient      *client.ESClient
	gemini        *ai.Gemini
	groq          *ai.Groq

	hasher    *hashing.Hasher
	tokens    *auth.TokenManager
	mailer    *email.Service
	publisher events.Publisher
	otp       *otp.Service

	analysisIndex  *elastic.AnalysisIndex
	serviceFactory *service.ServiceFactory

	stopSweeper context.CancelFunc
	closeOnce   sync.Once
	closed      chan struct{}
}

// NewFactory connects every configured backend. MongoDB is required; Kafka,
// Elasticsearch and the AI providers are optional and degrade to disabled features.
func NewFactory(cfg *config.Config) (*Factory, error) {
	f := &Factory{
		config: cfg,
		closed: make(chan struct{}),
	}

	if cfg.Server.EnableTLS {
		f.tlsManager = tls.NewManager(cfg.Server)
	}

	if err := f.initializeClients(); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	f.initializeManagers()

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
		util.String("otp_store", cfg.OTP.Store),
		util.Bool("kafka_enabled", f.kafkaProducer != nil),
		util.Bool("search_enabled", f.esClient != nil),
		util.Bool("gemini_enabled", f.gemini != nil),
		util.Bool("groq_enabled", f.groq != nil),
	)

	return f, nil
}

// initializeClients initializes all external service clients with health checks
func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	mc, err := client.NewMongoClient(f.config.Mongo)
	if err != nil {
		return fmt.Errorf("mongodb: %w", err)
	}
	f.mongoClient = mc
	if err := mongo.EnsureIndexes(ctx, mc.Database); err != nil {
		return fmt.Errorf("mongodb indexes: %w", err)
	}

	var initErrors []error

	if f.config.OTP.Store == "redis" {
		if rc, err := client.NewRedisClient(f.config.Redis); err != nil {
			initErrors = append(initErrors, fmt.Errorf("redis: %w", err))
		} else {
			f.redisClient = rc
			util.Info("Redis client initialized and healthy")
		}
	}

	if len(f.config.Kafka.Brokers) > 0 {
		if producer, err := client.NewKafkaProducer(f.config.Kafka, util.Get()); err != nil {
			util.Warn("Kafka producer initialization failed - proceeding without auth events", util.ErrorField(err))
		} else {
			f.kafkaProducer = producer
		}
	}

	if f.config.Elasticsearch.URL != "" {
		if es, err := client.NewElasticsearchClient(f.config.Elasticsearch); err != nil {
			util.Warn("Elasticsearch initialization failed - history search disabled", util.ErrorField(err))
		} else if err := es.HealthCheck(ctx); err != nil {
			util.Warn("Elasticsearch health check failed - history search disabled", util.ErrorField(err))
		} else {
			f.esClient = es
			f.analysisIndex = elastic.NewAnalysisIndex(es, f.config.Elasticsearch.AnalysisIndex)
			util.Info("Elasticsearch client initialized and healthy")
		}
	}

	if f.config.AI.GeminiAPIKey != "" {
		if g, err := ai.NewGemini(ctx, f.config.AI, util.Get()); err != nil {
			util.Warn("Gemini client initialization failed - AI analysis disabled", util.ErrorField(err))
		} else {
			f.gemini = g
		}
	}
	if f.config.AI.GroqAPIKey != "" {
		f.groq = ai.NewGroq(f.config.AI)
	}

	if len(initErrors) > 0 {
		if f.config.IsProduction() {
			return fmt.Errorf("critical service initialization failed: %w", errors.Join(initErrors...))
		}
		for _, err := range initErrors {
			util.Warn("Service initialization warning", util.ErrorField(err))
		}
	}

	return nil
}

// initializeManagers wires hashing, tokens, mail, events and the OTP service.
func (f *Factory) initializeManagers() {
	logger := util.Get()

	f.hasher = hashing.NewHasher(f.config.OTP.Pepper, hashing.DefaultParams)
	f.tokens = auth.NewTokenManager(f.config.JWT.Secret)
	f.mailer = email.NewService(
		email.NewTransport(f.config.Email, logger),
		f.config.Email.From,
		f.config.Email.AdminEmail,
		f.config.Server.FrontendURL,
		logger,
	)

	if f.kafkaProducer != nil {
		f.publisher = events.NewKafkaPublisher(f.kafkaProducer, logger)
	} else {
		f.publisher = events.NopPublisher{}
	}

	var (
		store   otp.Store
		limiter otp.Limiter
	)
	if f.redisClient != nil {
		store = redis.NewOTPStore(f.redisClient)
		limiter = redis.NewSendLimiter(f.redisClient, f.config.OTP.SendLimit, f.config.OTP.SendWindow)
	} else {
		if f.config.OTP.Store == "redis" {
			util.Warn("Falling back to in-memory OTP store")
		}
		store = otp.NewMemoryStore()
		limiter = otp.NewMemoryLimiter(f.config.OTP.SendLimit, f.config.OTP.SendWindow)
	}

	f.otp = otp.NewService(store, f.mailer, f.hasher, otp.Options{
		TTL:           f.config.OTP.TTL,
		MaxAttempts:   f.config.OTP.MaxAttempts,
		SweepInterval: f.config.OTP.SweepInterval,
		Limiter:       limiter,
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	f.stopSweeper = cancel
	f.otp.StartSweeper(ctx)
}

// ==============================
// Service Factory
// ==============================
func (f *Factory) ServiceFactory() *service.ServiceFactory {
	if f.serviceFactory == nil {
		db := f.mongoClient.Database
		deps := service.Dependencies{
			Config:    f.config,
			Users:     mongo.NewUserRepository(db, util.Get()),
			Watchlist: mongo.NewWatchlistRepository(db),
			Analyses:  mongo.NewAnalysisRepository(db),
			OTP:       f.otp,
			Tokens:    f.tokens,
			Mailer:    f.mailer,
			Publisher: f.publisher,
		}
		// assigned only when present so the interfaces stay nil otherwise
		if f.gemini != nil {
			deps.Analyzer = f.gemini
		}
		if f.groq != nil {
			deps.Chat = f.groq
		}
		if f.analysisIndex != nil {
			deps.Search = f.analysisIndex
			deps.Index = f.analysisIndex
		}
		f.serviceFactory = service.NewServiceFactory(deps, util.Get())
	}
	return f.serviceFactory
}

// Router builds the HTTP handler tree. metricsHandler may be nil.
func (f *Factory) Router(metricsHandler http.Handler) http.Handler {
	logger := util.Get()
	services := f.ServiceFactory()

	handlers := handler.Handlers{
		Auth: handler.NewAuthHandler(
			services.AuthService(),
			services.OAuthService(),
			auth.CookieWriter{Secure: f.config.Cookie.Secure, Domain: f.config.Cookie.Domain},
			f.config.Server.FrontendURL,
			logger,
		),
		Account: handler.NewAccountHandler(services.ProfileService(), services.WatchlistService(), logger),
		AI:      handler.NewAIHandler(services.AIService(), logger),
		Proxy: handler.NewProxyHandler(
			backend.NewEnhancement(f.config.Backends, logger),
			backend.NewDetection(f.config.Backends, logger),
			f.config.Server.MaxUploadBytes,
			f.config.Server.UploadTimeout,
			logger,
		),
		Contact: handler.NewContactHandler(services.ContactService(), logger),
	}

	return handler.NewRouter(handler.RouterOptions{
		AllowedOrigins:    f.config.Server.AllowedOrigins,
		RequestsPerMinute: f.config.RateLimit.RequestsPerMinute,
		RequireHTTPS:      f.config.IsProduction() && f.config.Server.EnableTLS,
		Authenticator:     auth.NewAuthenticator(f.tokens),
		Readiness:         f.HealthCheck,
		Metrics:           metricsHandler,
	}, handlers, logger)
}

// ==============================
// Health Checks
// ==============================

// HealthCheck reports every dependency /ready cares about; a nil value means healthy.
// Kafka is left out because auth events are best effort.
func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	checks := map[string]func(context.Context) error{
		"mongodb": func(ctx context.Context) error {
			if f.mongoClient == nil {
				return errors.New("mongodb client not initialized")
			}
			return f.mongoClient.HealthCheck(ctx)
		},
	}
	if f.config.OTP.Store == "redis" {
		checks["redis"] = func(ctx context.Context) error {
			if f.redisClient == nil {
				return errors.New("redis client not initialized")
			}
			return f.redisClient.HealthCheck(ctx)
		}
	}
	if f.esClient != nil {
		checks["elasticsearch"] = f.esClient.HealthCheck
	}

	var (
		mu     sync.Mutex
		health = make(map[string]error, len(checks))
		g      errgroup.Group
	)
	for name, check := range checks {
		name, check := name, check
		g.Go(func() error {
			err := check(ctx)
			mu.Lock()
			health[name] = err
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return health
}

func (f *Factory) IsHealthy(ctx context.Context) bool {
	for _, err := range f.HealthCheck(ctx) {
		if err != nil {
			return false
		}
	}
	return true
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("Shutting down factory...")

		if f.stopSweeper != nil {
			f.stopSweeper()
		}

		if f.gemini != nil {
			if err := f.gemini.Close(); err != nil {
				util.Error("Failed to close Gemini client", util.ErrorField(err))
			}
		}

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			} else {
				util.Info("Kafka producer closed")
			}
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			} else {
				util.Info("Redis client closed")
			}
		}

		if f.mongoClient != nil {
			if err := f.mongoClient.Close(); err == nil {
				util.Info("MongoDB client closed")
			}
		}

		util.Info("Factory shutdown completed")
		util.Sync()
	})

	return nil
}

func (f *Factory) WaitForClose() {
	<-f.closed
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) TLSManager() *tls.Manager {
	return f.tlsManager
}
