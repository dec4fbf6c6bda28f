package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	customerSecret = "customer-secret-0123456789abcdef0123"
	adminSecret    = "admin-secret-0123456789abcdef0123456"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DB_DRIVER", "")
	t.Setenv("DB_QUERY_TIMEOUT", "")
	t.Setenv("ORDER_VERIFY_TOTAL", "")

	cfg := LoadConfig()

	assert.Equal(t, "mysql", cfg.DBDriver)
	assert.Equal(t, 10*time.Second, cfg.DBQueryTimeout)
	assert.False(t, cfg.VerifyTotal)
	assert.Equal(t, 10, cfg.MaxPriority)
}

func TestLoadConfigSecretFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jwt")
	require.NoError(t, os.WriteFile(path, []byte(customerSecret+"\n"), 0o600))
	t.Setenv("JWT_SECRET_FILE", path)
	t.Setenv("JWT_SECRET", "ignored")

	cfg := LoadConfig()

	assert.Equal(t, customerSecret, cfg.JWTSecret)
}

func TestLoadConfigParsesTypedValues(t *testing.T) {
	t.Setenv("DB_QUERY_TIMEOUT", "3s")
	t.Setenv("DB_MAX_OPEN_CONNS", "not-a-number")
	t.Setenv("HIGH_VALUE_THRESHOLD", "250.5")
	t.Setenv("ORDER_VERIFY_TOTAL", "true")

	cfg := LoadConfig()

	assert.Equal(t, 3*time.Second, cfg.DBQueryTimeout)
	assert.Equal(t, 20, cfg.DBMaxOpenConns)
	assert.Equal(t, 250.5, cfg.HighValueThreshold)
	assert.True(t, cfg.VerifyTotal)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			DBDriver:       "sqlite",
			JWTSecret:      customerSecret,
			AdminJWTSecret: adminSecret,
			TokenTTL:       time.Hour,
		}
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing customer secret", func(c *Config) { c.JWTSecret = "" }, "JWT_SECRET is not set"},
		{"missing admin secret", func(c *Config) { c.AdminJWTSecret = "" }, "ADMIN_JWT_SECRET is not set"},
		{"short secret", func(c *Config) { c.JWTSecret = "short" }, "at least 32 bytes"},
		{"shared secret", func(c *Config) { c.AdminJWTSecret = c.JWTSecret }, "must differ"},
		{"unknown driver", func(c *Config) { c.DBDriver = "postgres" }, "unsupported DB_DRIVER"},
		{"zero ttl", func(c *Config) { c.TokenTTL = 0 }, "TOKEN_TTL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.want), err.Error())
		})
	}
}
