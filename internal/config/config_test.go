package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", strings.Repeat("j", 32))
	t.Setenv("APP_ENCRYPTION_KEY", strings.Repeat("a", 32))
	t.Setenv("DB_ENCRYPTION_KEY", strings.Repeat("d", 32))
	t.Setenv("BACKUP_ENCRYPTION_KEY", "backup-key")
	for _, key := range []string{"HTTP_ADDR", "PORT", "APP_ENV", "NODE_ENV", "STORE_DRIVER", "RATE_LIMIT_BACKEND",
		"TOKEN_TTL", "BCRYPT_COST", "MAX_LOGIN_ATTEMPTS", "ACCOUNT_LOCK_DURATION", "CLIENT_URL", "HASH_CONCURRENCY"} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":5000", cfg.HTTPAddr)
	assert.Equal(t, StoreSQLCipher, cfg.StoreDriver)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, 12, cfg.BcryptCost)
	assert.Equal(t, 5, cfg.MaxLoginAttempts)
	assert.Equal(t, 30*time.Minute, cfg.LockDuration)
	assert.Equal(t, "http://localhost:5173", cfg.ClientURL)
	assert.False(t, cfg.IsProduction())
}

func TestLoadMissingSecretIsFatal(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			StoreDriver:         StoreSQLCipher,
			JWTSecret:           strings.Repeat("j", 32),
			AppEncryptionKey:    strings.Repeat("a", 32),
			DBEncryptionKey:     strings.Repeat("d", 32),
			BackupEncryptionKey: "backup",
			RateLimitBackend:    RateLimitMemory,
			TokenTTL:            time.Hour,
			MaxLoginAttempts:    5,
			LockDuration:        30 * time.Minute,
			HashConcurrency:     1,
		}
	}

	require.NoError(t, base().Validate())

	cases := map[string]func(*Config){
		"short secret":     func(c *Config) { c.JWTSecret = "short" },
		"short app key":    func(c *Config) { c.AppEncryptionKey = "short" },
		"missing db key":   func(c *Config) { c.DBEncryptionKey = "" },
		"unknown driver":   func(c *Config) { c.StoreDriver = "postgres" },
		"redis no addr":    func(c *Config) { c.RateLimitBackend = RateLimitRedis },
		"zero attempts":    func(c *Config) { c.MaxLoginAttempts = 0 },
		"mongo no uri":     func(c *Config) { c.StoreDriver = StoreMongo; c.MongoURI = "" },
		"zero concurrency": func(c *Config) { c.HashConcurrency = 0 },
		"zero lock":        func(c *Config) { c.LockDuration = 0 },
		"negative lock":    func(c *Config) { c.LockDuration = -time.Minute },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	t.Run("mongo skips sqlcipher keys", func(t *testing.T) {
		cfg := base()
		cfg.StoreDriver = StoreMongo
		cfg.MongoURI = "mongodb://localhost:27017"
		cfg.DBEncryptionKey = ""
		assert.NoError(t, cfg.Validate())
	})
}
