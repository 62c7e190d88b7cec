package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("ENV", "test")
	t.Setenv("ACCESS_TOKEN_SECRET", "access-secret")
	t.Setenv("REFRESH_TOKEN_SECRET", "refresh-secret")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.ServerPort)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 15*time.Minute, cfg.Auth.AccessTokenExpiry)
	assert.Equal(t, 240*time.Hour, cfg.Auth.RefreshTokenExpiry)
	assert.True(t, cfg.Auth.SecureCookies)
	assert.Equal(t, StorageBackendMinio, cfg.Storage.Backend)
	assert.Equal(t, "account-events", cfg.MQ.EventsChannel)
	assert.Empty(t, cfg.MQ.Backend)
	assert.Equal(t, int64(10<<20), cfg.Upload.MaxBytes)
}

func TestLoadConfigOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("ACCESS_TOKEN_EXPIRY", "1h")
	t.Setenv("STORAGE_BACKEND", "s3")
	t.Setenv("S3_BUCKET", "media")
	t.Setenv("MQ_BACKEND", "rabbitmq")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.ServerPort)
	assert.Equal(t, time.Hour, cfg.Auth.AccessTokenExpiry)
	assert.Equal(t, StorageBackendS3, cfg.Storage.Backend)
	assert.Equal(t, "media", cfg.Storage.S3.Bucket)
	assert.Equal(t, MQBackendRabbitMQ, cfg.MQ.Backend)
}

func TestLoadConfigRequiresSecrets(t *testing.T) {
	t.Setenv("ENV", "test")
	t.Setenv("ACCESS_TOKEN_SECRET", "")
	t.Setenv("REFRESH_TOKEN_SECRET", "")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ACCESS_TOKEN_SECRET is required")
	assert.Contains(t, err.Error(), "REFRESH_TOKEN_SECRET is required")
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Auth: AuthConfig{
				AccessTokenSecret:  "a",
				AccessTokenExpiry:  time.Minute,
				RefreshTokenSecret: "r",
				RefreshTokenExpiry: time.Hour,
			},
			Storage: StorageConfig{Backend: StorageBackendMinio},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:    "same secrets",
			mutate:  func(c *Config) { c.Auth.RefreshTokenSecret = "a" },
			wantErr: "must differ",
		},
		{
			name:    "zero expiry",
			mutate:  func(c *Config) { c.Auth.RefreshTokenExpiry = 0 },
			wantErr: "REFRESH_TOKEN_EXPIRY",
		},
		{
			name:    "unknown storage",
			mutate:  func(c *Config) { c.Storage.Backend = "ftp" },
			wantErr: "STORAGE_BACKEND",
		},
		{
			name:    "unknown mq",
			mutate:  func(c *Config) { c.MQ.Backend = "kafka" },
			wantErr: "MQ_BACKEND",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
