package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	RateLimit RateLimitConfig
	Documents DocumentsConfig
	Photos    PhotosConfig
	Mail      MailConfig
	Dashboard DashboardConfig
	Jobs      JobsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Issuer            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
	SingleSession     bool
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// RateLimitConfig throttles credential endpoints.
type RateLimitConfig struct {
	Enabled   bool
	LoginRate string
}

// DocumentsConfig controls generated document storage, download tokens and
// the bounds on uploaded attachments.
type DocumentsConfig struct {
	StorageDir             string
	SignedURLSecret        string
	SignedURLTTL           time.Duration
	CleanupInterval        time.Duration
	ResultTTL              time.Duration
	MaxAttachmentSizeBytes int64
	AttachmentMIMEs        []string
}

// PhotosConfig bounds student photo uploads.
type PhotosConfig struct {
	StorageDir       string
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
}

// MailConfig selects the outbound mail backend.
type MailConfig struct {
	Provider    string
	SendgridKey string
	FromName    string
	FromEmail   string
}

// DashboardConfig governs summary caching.
type DashboardConfig struct {
	CacheTTL time.Duration
}

// JobsConfig tunes the background worker queue.
type JobsConfig struct {
	Workers    int
	MaxRetries int
	RetryDelay time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Issuer:            v.GetString("JWT_ISSUER"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 12*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
		SingleSession:     v.GetBool("JWT_SINGLE_SESSION"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.RateLimit = RateLimitConfig{
		Enabled:   v.GetBool("RATE_LIMIT_ENABLED"),
		LoginRate: v.GetString("RATE_LIMIT_LOGIN"),
	}

	maxAttachmentSize := v.GetInt64("DOCUMENTS_MAX_ATTACHMENT_SIZE")
	if maxAttachmentSize <= 0 {
		maxAttachmentSize = 10 * 1024 * 1024
	}
	cfg.Documents = DocumentsConfig{
		StorageDir:             v.GetString("DOCUMENTS_STORAGE_DIR"),
		SignedURLSecret:        v.GetString("DOCUMENTS_SIGNED_URL_SECRET"),
		SignedURLTTL:           parseDuration(v.GetString("DOCUMENTS_SIGNED_URL_TTL"), 24*time.Hour),
		CleanupInterval:        parseDuration(v.GetString("DOCUMENTS_CLEANUP_INTERVAL"), time.Hour),
		ResultTTL:              parseDuration(v.GetString("DOCUMENTS_RESULT_TTL"), 30*24*time.Hour),
		MaxAttachmentSizeBytes: maxAttachmentSize,
		AttachmentMIMEs:        splitAndTrim(v.GetString("DOCUMENTS_ATTACHMENT_MIME_TYPES")),
	}

	maxPhotoSize := v.GetInt64("PHOTOS_MAX_FILE_SIZE")
	if maxPhotoSize <= 0 {
		maxPhotoSize = 5 * 1024 * 1024
	}
	cfg.Photos = PhotosConfig{
		StorageDir:       v.GetString("PHOTOS_STORAGE_DIR"),
		MaxFileSizeBytes: maxPhotoSize,
		AllowedMIMEs:     splitAndTrim(v.GetString("PHOTOS_ALLOWED_MIME_TYPES")),
	}

	cfg.Mail = MailConfig{
		Provider:    v.GetString("MAIL_PROVIDER"),
		SendgridKey: v.GetString("SENDGRID_API_KEY"),
		FromName:    v.GetString("MAIL_FROM_NAME"),
		FromEmail:   v.GetString("MAIL_FROM_EMAIL"),
	}

	cfg.Dashboard = DashboardConfig{
		CacheTTL: parseDuration(v.GetString("DASHBOARD_CACHE_TTL"), 5*time.Minute),
	}

	cfg.Jobs = JobsConfig{
		Workers:    v.GetInt("JOBS_WORKERS"),
		MaxRetries: v.GetInt("JOBS_MAX_RETRIES"),
		RetryDelay: parseDuration(v.GetString("JOBS_RETRY_DELAY"), time.Second),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "registrar")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "registrar-api")
	v.SetDefault("JWT_EXPIRATION", "12h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")
	v.SetDefault("JWT_SINGLE_SESSION", false)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("RATE_LIMIT_ENABLED", true)
	v.SetDefault("RATE_LIMIT_LOGIN", "10-M")

	v.SetDefault("DOCUMENTS_STORAGE_DIR", "./documents")
	v.SetDefault("DOCUMENTS_SIGNED_URL_SECRET", "dev_documents_secret")
	v.SetDefault("DOCUMENTS_SIGNED_URL_TTL", "24h")
	v.SetDefault("DOCUMENTS_CLEANUP_INTERVAL", "1h")
	v.SetDefault("DOCUMENTS_RESULT_TTL", "720h")
	v.SetDefault("DOCUMENTS_MAX_ATTACHMENT_SIZE", 10*1024*1024)
	v.SetDefault("DOCUMENTS_ATTACHMENT_MIME_TYPES", "application/pdf,image/jpeg,image/png")

	v.SetDefault("PHOTOS_STORAGE_DIR", "./photos")
	v.SetDefault("PHOTOS_MAX_FILE_SIZE", 5*1024*1024)
	v.SetDefault("PHOTOS_ALLOWED_MIME_TYPES", "image/jpeg,image/png")

	v.SetDefault("MAIL_PROVIDER", "console")
	v.SetDefault("SENDGRID_API_KEY", "")
	v.SetDefault("MAIL_FROM_NAME", "Office of the Registrar")
	v.SetDefault("MAIL_FROM_EMAIL", "registrar@example.edu")

	v.SetDefault("DASHBOARD_CACHE_TTL", "5m")

	v.SetDefault("JOBS_WORKERS", 2)
	v.SetDefault("JOBS_MAX_RETRIES", 3)
	v.SetDefault("JOBS_RETRY_DELAY", "1s")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
