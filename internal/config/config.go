package config

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const devJWTSecret = "dev-jwt-secret-change-in-production"

// Config holds application configuration loaded from .env and environment variables
type Config struct {
	Env     string `mapstructure:"APP_ENV"`
	AppName string `mapstructure:"APP_NAME"`
	Port    string `mapstructure:"PORT"`

	DatabaseURL   string `mapstructure:"DATABASE_URL"`
	RunMigrations bool   `mapstructure:"RUN_MIGRATIONS"`
	SeedDevData   bool   `mapstructure:"SEED_DEV_DATA"`

	// RedisURL enables the email queue, the OTP purge scheduler and message events.
	// Empty means emails are delivered inline.
	RedisURL          string `mapstructure:"REDIS_URL"`
	WorkerConcurrency int    `mapstructure:"WORKER_CONCURRENCY"`
	OTPPurgeSchedule  string `mapstructure:"OTP_PURGE_SCHEDULE"`
	MessageStream     string `mapstructure:"MESSAGE_STREAM"`

	JWTSecret string `mapstructure:"JWT_SECRET"`
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTTTL is a duration string; "0" issues credentials without expiry.
	JWTTTL string `mapstructure:"JWT_TTL"`

	// EncryptionKey is a base64 AES-256 key for provider access tokens at rest.
	EncryptionKey string `mapstructure:"ENCRYPTION_KEY"`
	SessionSecret string `mapstructure:"SESSION_SECRET"`

	SMTPHost      string `mapstructure:"SMTP_HOST"`
	SMTPPort      int    `mapstructure:"SMTP_PORT"`
	SMTPUser      string `mapstructure:"SMTP_USER"`
	SMTPPassword  string `mapstructure:"SMTP_PASSWORD"`
	SMTPFrom      string `mapstructure:"SMTP_FROM"`
	OperatorEmail string `mapstructure:"OPERATOR_EMAIL"`
	SiteOwner     string `mapstructure:"SITE_OWNER"`
	// SMTPTimeout bounds one SMTP session, including inline sends during a request.
	SMTPTimeout time.Duration `mapstructure:"SMTP_TIMEOUT"`

	GoogleClientID       string `mapstructure:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret   string `mapstructure:"GOOGLE_CLIENT_SECRET"`
	GoogleCallbackURL    string `mapstructure:"GOOGLE_CALLBACK_URL"`
	FacebookClientID     string `mapstructure:"FACEBOOK_CLIENT_ID"`
	FacebookClientSecret string `mapstructure:"FACEBOOK_CLIENT_SECRET"`
	FacebookCallbackURL  string `mapstructure:"FACEBOOK_CALLBACK_URL"`
	GitHubClientID       string `mapstructure:"GITHUB_CLIENT_ID"`
	GitHubClientSecret   string `mapstructure:"GITHUB_CLIENT_SECRET"`
	GitHubCallbackURL    string `mapstructure:"GITHUB_CALLBACK_URL"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`
}

// Load reads .env (if present) and the environment, applies defaults and validates.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // a missing .env is fine

	v.AutomaticEnv()

	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "Portfolio")
	v.SetDefault("PORT", "8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("RUN_MIGRATIONS", true)
	v.SetDefault("SEED_DEV_DATA", false)
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("WORKER_CONCURRENCY", 5)
	v.SetDefault("OTP_PURGE_SCHEDULE", "@every 1h")
	v.SetDefault("MESSAGE_STREAM", "contact:messages")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_ISSUER", "portfolio-backend")
	v.SetDefault("JWT_TTL", "24h")
	v.SetDefault("ENCRYPTION_KEY", "")
	v.SetDefault("SESSION_SECRET", "")
	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USER", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("SMTP_FROM", "")
	v.SetDefault("OPERATOR_EMAIL", "")
	v.SetDefault("SITE_OWNER", "the site owner")
	v.SetDefault("SMTP_TIMEOUT", "30s")
	v.SetDefault("GOOGLE_CLIENT_ID", "")
	v.SetDefault("GOOGLE_CLIENT_SECRET", "")
	v.SetDefault("GOOGLE_CALLBACK_URL", "")
	v.SetDefault("FACEBOOK_CLIENT_ID", "")
	v.SetDefault("FACEBOOK_CLIENT_SECRET", "")
	v.SetDefault("FACEBOOK_CALLBACK_URL", "")
	v.SetDefault("GITHUB_CLIENT_ID", "")
	v.SetDefault("GITHUB_CLIENT_SECRET", "")
	v.SetDefault("GITHUB_CALLBACK_URL", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.Port == "" {
		return nil, errors.New("config: PORT must be set")
	}

	if cfg.JWTSecret == "" {
		if cfg.IsProduction() {
			return nil, errors.New("config: JWT_SECRET must be set when APP_ENV=production")
		}
		cfg.JWTSecret = devJWTSecret
		log.Println("WARNING: Using default JWT_SECRET. Generate a secure secret with: openssl rand -hex 32")
	}

	if cfg.SessionSecret == "" {
		if cfg.IsProduction() {
			return nil, errors.New("config: SESSION_SECRET must be set when APP_ENV=production")
		}
		cfg.SessionSecret = "dev-secret-change-in-production-use-openssl-rand-hex-32"
	}

	if ttl, err := cfg.parseTTL(); err != nil || ttl < 0 {
		return nil, errors.New("config: JWT_TTL must be a non-negative duration such as 24h or 0")
	}
	if cfg.SMTPTimeout <= 0 {
		return nil, errors.New("config: SMTP_TIMEOUT must be a positive duration")
	}

	if cfg.SMTPFrom == "" {
		cfg.SMTPFrom = cfg.SMTPUser
	}
	if cfg.OperatorEmail == "" {
		cfg.OperatorEmail = cfg.SMTPFrom
	}

	return &cfg, nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// CredentialTTL returns the credential lifetime validated by Load. Zero means no expiry.
func (c *Config) CredentialTTL() time.Duration {
	d, _ := c.parseTTL()
	return d
}

func (c *Config) parseTTL() (time.Duration, error) {
	if c.JWTTTL == "" || c.JWTTTL == "0" {
		return 0, nil
	}
	return time.ParseDuration(c.JWTTTL)
}
