package config

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Env:                      "development",
		Port:                     "8080",
		AuthStrategy:             AuthStrategyToken,
		JWTSecret:                "secure-secret-at-least-32-chars-long",
		StoreDriver:              StoreDriverPostgres,
		DBPassword:               "secure-password",
		DBSSLMode:                "require",
		ArtifactDriver:           ArtifactDriverLocal,
		ImageMaxUploadSizeMB:     10,
		DBConnMaxLifetimeMinutes: 1,
		RedisURL:                 "redis://localhost:6379",
	}
}

func TestConfig_ValidateSSLMode(t *testing.T) {
	tests := []struct {
		name        string
		env         string
		sslMode     string
		expectError bool
	}{
		{"Production with empty SSL mode", "production", "", true},
		{"Production with disable SSL mode", "production", "disable", true},
		{"Production with require SSL mode", "production", "require", false},
		{"Prod with empty SSL mode", "prod", "", true},
		{"Prod with verify-full SSL mode", "prod", "verify-full", false},
		{"Development with disable SSL mode", "development", "disable", false},
		{"Test with empty SSL mode", "test", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			c.Env = tt.env
			c.DBSSLMode = tt.sslMode

			err := c.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateStrategiesAndDrivers(t *testing.T) {
	goodKey := base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", 32)))

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"token strategy requires secret", func(c *Config) { c.JWTSecret = "" }, "JWT_SECRET"},
		{"session strategy requires cookie key", func(c *Config) {
			c.AuthStrategy = AuthStrategySession
			c.SessionCookieKey = "short"
		}, "SESSION_COOKIE_KEY"},
		{"session strategy with valid key", func(c *Config) {
			c.AuthStrategy = AuthStrategySession
			c.JWTSecret = ""
			c.SessionCookieKey = goodKey
		}, ""},
		{"unknown strategy", func(c *Config) { c.AuthStrategy = "oauth" }, "AUTH_STRATEGY"},
		{"mongo requires uri", func(c *Config) { c.StoreDriver = StoreDriverMongo }, "MONGO_URI"},
		{"unknown store driver", func(c *Config) { c.StoreDriver = "cassandra" }, "STORE_DRIVER"},
		{"minio requires credentials", func(c *Config) { c.ArtifactDriver = ArtifactDriverMinio }, "MINIO_ENDPOINT"},
		{"upload size must be positive", func(c *Config) { c.ImageMaxUploadSizeMB = 0 }, "IMAGE_MAX_UPLOAD_SIZE_MB"},
		{"production rejects short secret", func(c *Config) {
			c.Env = "production"
			c.JWTSecret = "short"
		}, "at least 32"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadConfig_NormalizesAndAppliesDefaults(t *testing.T) {
	defer viper.Reset()

	t.Setenv("APP_ENV", "development")
	t.Setenv("DB_SSLMODE", "  DISABLE  ")
	t.Setenv("JWT_SECRET", "dev-secret-that-is-long-enough-1234")
	t.Setenv("STORE_DRIVER", " SQLite ")

	c, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "disable", c.DBSSLMode)
	assert.Equal(t, StoreDriverSQLite, c.StoreDriver)
	assert.Equal(t, 2, c.FeedPageSize)
	assert.Equal(t, 12, c.BcryptCost)
	assert.Equal(t, 60, c.TokenTTLMinutes)
	assert.Equal(t, AuthStrategyToken, c.AuthStrategy)
}

func TestLoadConfig_MissingSecretFails(t *testing.T) {
	defer viper.Reset()

	t.Setenv("APP_ENV", "development")
	t.Setenv("JWT_SECRET", "")

	_, err := LoadConfig()
	assert.Error(t, err)
}
