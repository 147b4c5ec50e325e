package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

const devJWTSecret = "mareye-dev-secret-change-me"

var (
	current *Config
	mu      sync.RWMutex
)

type Config struct {
	Environment string

	Server        ServerConfig
	Logging       LoggingConfig
	Redis         RedisConfig
	Mongo         MongoConfig
	Kafka         KafkaConfig
	Elasticsearch ElasticsearchConfig
	JWT           JWTConfig
	Cookie        CookieConfig
	OTP           OTPConfig
	Email         EmailConfig
	Google        GoogleConfig
	AI            AIConfig
	Backends      BackendsConfig
	RateLimit     RateLimitConfig
}

type ServerConfig struct {
	Port              string
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	// UploadTimeout bounds proxied upload requests in place of ReadTimeout and WriteTimeout.
	UploadTimeout   time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
	FrontendURL     string
	MaxUploadBytes  int64

	EnableTLS   bool
	AutoCert    bool
	Domain      string
	CertFile    string
	KeyFile     string
	AutoCertDir string
	Email       string
}

type LoggingConfig struct {
	Level  string
	Format string
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
	// TLSCAFile is an optional CA bundle for rediss:// endpoints with private certificates.
	TLSCAFile string
}

type MongoConfig struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type ElasticsearchConfig struct {
	URL           string
	Username      string
	Password      string
	AnalysisIndex string
}

type JWTConfig struct {
	Secret string
}

type CookieConfig struct {
	Secure bool
	Domain string
}

type OTPConfig struct {
	// Store is "redis" or "memory".
	Store         string
	Pepper        string
	TTL           time.Duration
	MaxAttempts   int
	SweepInterval time.Duration
	SendLimit     int
	SendWindow    time.Duration
}

type EmailConfig struct {
	Disabled   bool
	Host       string
	Port       int
	Secure     bool
	Username   string
	Password   string
	From       string
	AdminEmail string
	Timeout    time.Duration
}

type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

type AIConfig struct {
	GeminiAPIKey      string
	GeminiTextModel   string
	GeminiVisionModel string
	GroqAPIKey        string
	GroqBaseURL       string
	GroqModel         string
	Timeout           time.Duration
}

type BackendsConfig struct {
	EnhancementURL     string
	EnhancementTimeout time.Duration
	DetectionURL       string
	DetectionTimeout   time.Duration
}

type RateLimitConfig struct {
	RequestsPerMinute int
}

// LoadConfig reads .env (if present) and the process environment.
func LoadConfig() *Config {
	_ = godotenv.Load()

	env := getEnv("APP_ENV", "development")
	production := env == "production"

	cfg := &Config{
		Environment: env,
		Server: ServerConfig{
			Port:              getEnv("PORT", "8080"),
			ReadHeaderTimeout: getDuration("SERVER_READ_HEADER_TIMEOUT", 10*time.Second),
			ReadTimeout:       getDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			UploadTimeout:     getDuration("SERVER_UPLOAD_TIMEOUT", 15*time.Minute),
			WriteTimeout:      getDuration("SERVER_WRITE_TIMEOUT", 180*time.Second),
			IdleTimeout:       getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout:   getDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			AllowedOrigins:    getStringSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			FrontendURL:       strings.TrimRight(getEnv("FRONTEND_URL", ""), "/"),
			MaxUploadBytes:    int64(getInt("MAX_UPLOAD_BYTES", 100<<20)),
			EnableTLS:         getBool("TLS_ENABLED", false),
			AutoCert:          getBool("TLS_AUTOCERT", false),
			Domain:            getEnv("TLS_DOMAIN", "localhost"),
			CertFile:          getEnv("TLS_CERT_FILE", ""),
			KeyFile:           getEnv("TLS_KEY_FILE", ""),
			AutoCertDir:       getEnv("TLS_AUTOCERT_DIR", "./certs"),
			Email:             getEnv("TLS_EMAIL", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", defaultFormat(production)),
		},
		Redis: RedisConfig{
			URL:       getEnv("REDIS_URL", "redis://localhost:6379/0"),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        getInt("REDIS_DB", 0),
			PoolSize:  getInt("REDIS_POOL_SIZE", 20),
			TLSCAFile: getEnv("REDIS_TLS_CA_FILE", ""),
		},
		Mongo: MongoConfig{
			URI:            getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			Database:       getEnv("MONGODB_DB", "mareye"),
			ConnectTimeout: getDuration("MONGODB_CONNECT_TIMEOUT", 10*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: getStringSlice("KAFKA_BROKERS", nil),
			Topic:   getEnv("KAFKA_AUTH_EVENTS_TOPIC", "mareye.auth-events"),
		},
		Elasticsearch: ElasticsearchConfig{
			URL:           getEnv("ELASTICSEARCH_URL", ""),
			Username:      getEnv("ELASTICSEARCH_USERNAME", ""),
			Password:      getEnv("ELASTICSEARCH_PASSWORD", ""),
			AnalysisIndex: getEnv("ELASTICSEARCH_ANALYSIS_INDEX", "mareye-analyses"),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", ""),
		},
		Cookie: CookieConfig{
			Secure: getBool("COOKIE_SECURE", production),
			Domain: getEnv("COOKIE_DOMAIN", ""),
		},
		OTP: OTPConfig{
			Store:         getEnv("OTP_STORE", defaultOTPStore(production)),
			Pepper:        getEnv("OTP_PEPPER", ""),
			TTL:           getDuration("OTP_TTL", 10*time.Minute),
			MaxAttempts:   getInt("OTP_MAX_ATTEMPTS", 3),
			SweepInterval: getDuration("OTP_SWEEP_INTERVAL", 5*time.Minute),
			SendLimit:     getInt("OTP_SEND_LIMIT", 5),
			SendWindow:    getDuration("OTP_SEND_WINDOW", 15*time.Minute),
		},
		Email: EmailConfig{
			Disabled:   getBool("EMAIL_DISABLE", false),
			Host:       getEnv("SMTP_HOST", "smtp.gmail.com"),
			Port:       getInt("SMTP_PORT", 587),
			Secure:     getBool("SMTP_SECURE", false),
			Username:   getEnv("HOST_EMAIL", ""),
			Password:   getEnv("HOST_EMAIL_PASSWORD", ""),
			From:       getEnv("EMAIL_FROM", ""),
			AdminEmail: getEnv("ADMIN_EMAIL", ""),
			Timeout:    getDuration("SMTP_TIMEOUT", 15*time.Second),
		},
		Google: GoogleConfig{
			ClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
			ClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
			RedirectURL:  getEnv("GOOGLE_REDIRECT_URI", "http://localhost:8080/api/auth/google/callback"),
		},
		AI: AIConfig{
			GeminiAPIKey:      getEnv("GEMINI_API_KEY", ""),
			GeminiTextModel:   getEnv("GEMINI_TEXT_MODEL", "gemini-2.0-flash"),
			GeminiVisionModel: getEnv("GEMINI_VISION_MODEL", "gemini-1.5-flash"),
			GroqAPIKey:        getEnv("GROQ_API_KEY", getEnv("GROK_API_KEY", "")),
			GroqBaseURL:       strings.TrimRight(getEnv("GROQ_BASE_URL", "https://api.groq.com/openai/v1"), "/"),
			GroqModel:         getEnv("GROQ_MODEL", "llama-3.1-70b-versatile"),
			Timeout:           getDuration("AI_TIMEOUT", 60*time.Second),
		},
		Backends: BackendsConfig{
			EnhancementURL:     strings.TrimRight(getEnv("CNN_API_URL", "https://mereyecnn.onrender.com"), "/"),
			EnhancementTimeout: getDuration("ENHANCEMENT_TIMEOUT", 120*time.Second),
			DetectionURL:       strings.TrimRight(getEnv("DETECTION_API_URL", "http://localhost:10000"), "/"),
			DetectionTimeout:   getDuration("DETECTION_TIMEOUT", 120*time.Second),
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: getInt("RATE_LIMIT_PER_MINUTE", 100),
		},
	}

	if cfg.Email.From == "" {
		cfg.Email.From = cfg.Email.Username
	}
	if cfg.Email.AdminEmail == "" {
		cfg.Email.AdminEmail = cfg.Email.Username
	}
	if cfg.JWT.Secret == "" && !production {
		cfg.JWT.Secret = devJWTSecret
	}

	Set(cfg)
	return cfg
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.IsProduction() && (c.JWT.Secret == "" || c.JWT.Secret == devJWTSecret || len(c.JWT.Secret) < 32) {
		errs = append(errs, errors.New("JWT_SECRET must be set to at least 32 characters in production"))
	}
	if c.IsProduction() && c.OTP.Pepper == "" {
		errs = append(errs, errors.New("OTP_PEPPER must be set in production"))
	}
	if c.OTP.Store != "redis" && c.OTP.Store != "memory" {
		errs = append(errs, fmt.Errorf("OTP_STORE must be redis or memory, got %q", c.OTP.Store))
	}
	if c.OTP.TTL <= 0 {
		errs = append(errs, errors.New("OTP_TTL must be positive"))
	}
	if c.OTP.MaxAttempts < 1 {
		errs = append(errs, errors.New("OTP_MAX_ATTEMPTS must be at least 1"))
	}
	if c.Server.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("MAX_UPLOAD_BYTES must be positive"))
	}
	if c.Server.EnableTLS && !c.Server.AutoCert && (c.Server.CertFile == "") != (c.Server.KeyFile == "") {
		errs = append(errs, errors.New("TLS_CERT_FILE and TLS_KEY_FILE must be set together"))
	}

	return errors.Join(errs...)
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// UsesDevSecret reports whether tokens are signed with the built-in development secret.
func (c *Config) UsesDevSecret() bool {
	return c.JWT.Secret == devJWTSecret
}

// Get returns the most recently loaded configuration.
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

func Set(cfg *Config) {
	mu.Lock()
	current = cfg
	mu.Unlock()
}

func defaultFormat(production bool) string {
	if production {
		return "json"
	}
	return "console"
}

func defaultOTPStore(production bool) string {
	if production {
		return "redis"
	}
	return "memory"
}

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return v
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if v, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return v
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if v, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return v
	}
	return defaultValue
}

func getStringSlice(key string, defaultValue []string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
