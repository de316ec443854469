// Package config provides application configuration loading and management.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Supported identity strategies.
const (
	AuthStrategyToken   = "token"
	AuthStrategySession = "session"
)

// Supported persistent store drivers.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite"
	StoreDriverMongo    = "mongo"
)

// Supported artifact store drivers.
const (
	ArtifactDriverLocal = "local"
	ArtifactDriverMinio = "minio"
)

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	Port                string `mapstructure:"PORT"`
	Env                 string `mapstructure:"APP_ENV"`
	AllowedOrigins      string `mapstructure:"ALLOWED_ORIGINS"`
	FeatureFlags        string `mapstructure:"FEATURE_FLAGS"`
	ReadTimeoutSeconds  int    `mapstructure:"HTTP_READ_TIMEOUT_SECONDS"`
	WriteTimeoutSeconds int    `mapstructure:"HTTP_WRITE_TIMEOUT_SECONDS"`

	// Identity
	AuthStrategy      string `mapstructure:"AUTH_STRATEGY"`
	JWTSecret         string `mapstructure:"JWT_SECRET"`
	JWTIssuer         string `mapstructure:"JWT_ISSUER"`
	JWTAudience       string `mapstructure:"JWT_AUDIENCE"`
	TokenTTLMinutes   int    `mapstructure:"TOKEN_TTL_MINUTES"`
	SessionTTLMinutes int    `mapstructure:"SESSION_TTL_MINUTES"`
	SessionCookieKey  string `mapstructure:"SESSION_COOKIE_KEY"`
	BcryptCost        int    `mapstructure:"BCRYPT_COST"`

	// Persistent store
	StoreDriver              string `mapstructure:"STORE_DRIVER"`
	DBHost                   string `mapstructure:"DB_HOST"`
	DBPort                   string `mapstructure:"DB_PORT"`
	DBUser                   string `mapstructure:"DB_USER"`
	DBPassword               string `mapstructure:"DB_PASSWORD"`
	DBName                   string `mapstructure:"DB_NAME"`
	DBSSLMode                string `mapstructure:"DB_SSLMODE"`
	DBSchemaMode             string `mapstructure:"DB_SCHEMA_MODE"`
	DBAutoMigrateDestructive bool   `mapstructure:"DB_AUTOMIGRATE_ALLOW_DESTRUCTIVE"`
	DBMaxOpenConns           int    `mapstructure:"DB_MAX_OPEN_CONNS"`
	DBMaxIdleConns           int    `mapstructure:"DB_MAX_IDLE_CONNS"`
	DBConnMaxLifetimeMinutes int    `mapstructure:"DB_CONN_MAX_LIFETIME_MINUTES"`
	SQLitePath               string `mapstructure:"SQLITE_PATH"`
	MongoURI                 string `mapstructure:"MONGO_URI"`
	MongoDatabase            string `mapstructure:"MONGO_DATABASE"`

	// Cache, sessions and notification bus
	RedisURL string `mapstructure:"REDIS_URL"`

	// Artifact store
	ArtifactDriver       string `mapstructure:"ARTIFACT_DRIVER"`
	ArtifactDir          string `mapstructure:"ARTIFACT_DIR"`
	MinioEndpoint        string `mapstructure:"MINIO_ENDPOINT"`
	MinioAccessKey       string `mapstructure:"MINIO_ACCESS_KEY"`
	MinioSecretKey       string `mapstructure:"MINIO_SECRET_KEY"`
	MinioBucket          string `mapstructure:"MINIO_BUCKET"`
	MinioUseSSL          bool   `mapstructure:"MINIO_USE_SSL"`
	ImageMaxUploadSizeMB int    `mapstructure:"IMAGE_MAX_UPLOAD_SIZE_MB"`

	// Feed
	FeedPageSize int `mapstructure:"FEED_PAGE_SIZE"`

	// Tracing
	TracingEnabled      bool    `mapstructure:"TRACING_ENABLED"`
	TracingExporter     string  `mapstructure:"TRACING_EXPORTER"`
	TracingOTLPEndpoint string  `mapstructure:"TRACING_OTLP_ENDPOINT"`
	TracingSampleRatio  float64 `mapstructure:"TRACING_SAMPLE_RATIO"`
}

var defaults = map[string]any{
	"PORT":                         "8080",
	"APP_ENV":                      "development",
	"ALLOWED_ORIGINS":              "http://localhost:3000,http://localhost:5173",
	"FEATURE_FLAGS":                "image_staging=on,live_feed=on",
	"HTTP_READ_TIMEOUT_SECONDS":    15,
	"HTTP_WRITE_TIMEOUT_SECONDS":   15,
	"AUTH_STRATEGY":                AuthStrategyToken,
	"JWT_ISSUER":                   "feedline-api",
	"JWT_AUDIENCE":                 "feedline-client",
	"TOKEN_TTL_MINUTES":            60,
	"SESSION_TTL_MINUTES":          60 * 24,
	"BCRYPT_COST":                  12,
	"STORE_DRIVER":                 StoreDriverPostgres,
	"DB_HOST":                      "localhost",
	"DB_PORT":                      "5432",
	"DB_USER":                      "feedline",
	"DB_NAME":                      "feedline",
	"DB_SSLMODE":                   "disable",
	"DB_SCHEMA_MODE":               "hybrid",
	"DB_MAX_OPEN_CONNS":            25,
	"DB_MAX_IDLE_CONNS":            5,
	"DB_CONN_MAX_LIFETIME_MINUTES": 30,
	"SQLITE_PATH":                  "feedline.db",
	"MONGO_DATABASE":               "feedline",
	"REDIS_URL":                    "localhost:6379",
	"ARTIFACT_DRIVER":              ArtifactDriverLocal,
	"ARTIFACT_DIR":                 "./data",
	"MINIO_BUCKET":                 "feedline-images",
	"IMAGE_MAX_UPLOAD_SIZE_MB":     10,
	"FEED_PAGE_SIZE":               2,
	"TRACING_EXPORTER":             "stdout",
	"TRACING_SAMPLE_RATIO":         1.0,
}

// LoadConfig loads application configuration from .env, config files and environment variables.
func LoadConfig() (*Config, error) {
	// A missing .env file is normal outside local development.
	_ = godotenv.Load()

	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	// The base config file is optional.
	_ = viper.ReadInConfig()

	env := viper.GetString("APP_ENV")
	if env != "" && env != "development" && env != "test" {
		viper.SetConfigName("config." + env)
		if err := viper.MergeInConfig(); err != nil {
			log.Printf("no profile-specific config 'config.%s.yml', using environment only", env)
		} else {
			log.Printf("Loaded profile-specific configuration: config.%s.yml", env)
		}
	}

	for key, value := range defaults {
		viper.SetDefault(key, value)
	}
	// Secrets have no defaults but must still be bound for Unmarshal to see them.
	for _, key := range []string{"JWT_SECRET", "SESSION_COOKIE_KEY", "DB_PASSWORD", "MONGO_URI",
		"MINIO_ENDPOINT", "MINIO_ACCESS_KEY", "MINIO_SECRET_KEY", "TRACING_ENABLED",
		"TRACING_OTLP_ENDPOINT", "MINIO_USE_SSL", "DB_AUTOMIGRATE_ALLOW_DESTRUCTIVE"} {
		_ = viper.BindEnv(key)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	config.normalize()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func (c *Config) normalize() {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	c.DBSSLMode = strings.ToLower(strings.TrimSpace(c.DBSSLMode))
	c.AuthStrategy = strings.ToLower(strings.TrimSpace(c.AuthStrategy))
	c.StoreDriver = strings.ToLower(strings.TrimSpace(c.StoreDriver))
	c.ArtifactDriver = strings.ToLower(strings.TrimSpace(c.ArtifactDriver))
	c.DBSchemaMode = strings.ToLower(strings.TrimSpace(c.DBSchemaMode))
}

// IsProduction reports whether the config describes a production deployment.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// Validate ensures that required configuration values are present and meet security standards.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.ImageMaxUploadSizeMB <= 0 {
		return errors.New("IMAGE_MAX_UPLOAD_SIZE_MB must be positive")
	}
	if c.DBConnMaxLifetimeMinutes < 0 {
		return errors.New("DB_CONN_MAX_LIFETIME_MINUTES must not be negative")
	}

	switch c.AuthStrategy {
	case "", AuthStrategyToken:
		if c.JWTSecret == "" {
			return errors.New("JWT_SECRET is required for the token auth strategy")
		}
	case AuthStrategySession:
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required for the session auth strategy")
		}
		key, err := base64.StdEncoding.DecodeString(c.SessionCookieKey)
		if err != nil || len(key) != 32 {
			return errors.New("SESSION_COOKIE_KEY must be a base64 encoded 32 byte key")
		}
	default:
		return fmt.Errorf("unsupported AUTH_STRATEGY %q", c.AuthStrategy)
	}

	switch c.StoreDriver {
	case "", StoreDriverPostgres, StoreDriverSQLite:
	case StoreDriverMongo:
		if c.MongoURI == "" {
			return errors.New("MONGO_URI is required for the mongo store driver")
		}
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.StoreDriver)
	}

	switch c.ArtifactDriver {
	case "", ArtifactDriverLocal:
	case ArtifactDriverMinio:
		if c.MinioEndpoint == "" || c.MinioAccessKey == "" || c.MinioSecretKey == "" {
			return errors.New("MINIO_ENDPOINT, MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required for the minio artifact driver")
		}
	default:
		return fmt.Errorf("unsupported ARTIFACT_DRIVER %q", c.ArtifactDriver)
	}

	if c.IsProduction() {
		if c.AuthStrategy != AuthStrategySession && len(c.JWTSecret) < 32 {
			return errors.New("JWT_SECRET must be at least 32 characters in production")
		}
		if c.StoreDriver == StoreDriverPostgres || c.StoreDriver == "" {
			if c.DBPassword == "" {
				return errors.New("DB_PASSWORD is required in production")
			}
			if c.DBSSLMode == "" || c.DBSSLMode == "disable" {
				return errors.New("DB_SSLMODE must enable SSL in production")
			}
		}
		if c.AllowedOrigins == "*" {
			log.Println("WARNING: ALLOWED_ORIGINS is set to '*' in production. This is insecure.")
		}
	} else if c.AuthStrategy != AuthStrategySession && len(c.JWTSecret) < 32 {
		log.Println("WARNING: JWT_SECRET is shorter than 32 characters. Consider using a stronger secret for production.")
	}

	return nil
}
