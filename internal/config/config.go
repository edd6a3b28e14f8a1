package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreSQLCipher = "sqlcipher"
	StoreMongo     = "mongo"

	RateLimitMemory = "memory"
	RateLimitRedis  = "redis"
)

type Config struct {
	// HTTP server
	HTTPAddr    string
	ClientURL   string
	Environment string
	LogLevel    string

	// Credential store
	StoreDriver     string
	DBPath          string
	DBEncryptionKey string
	MongoURI        string
	MongoDatabase   string

	// Profile field encryption
	AppEncryptionKey string

	// Sessions
	JWTSecret string
	TokenTTL  time.Duration

	// Password hashing and lockout
	BcryptCost       int
	HashConcurrency  int
	MaxLoginAttempts int
	LockDuration     time.Duration

	// Rate limiting
	RateLimitBackend string
	RateLimitRPS     int
	RateLimitBurst   int
	RateLimitWindow  time.Duration
	RedisAddr        string
	RedisPassword    string

	// Audit configuration
	AuditLogPath   string
	AuditAsyncMode bool

	// Backup configuration
	BackupDir           string
	BackupEncryptionKey string
	BackupInterval      time.Duration
	BackupRetentionDays int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (not required in production)
	_ = godotenv.Load()

	config := &Config{
		HTTPAddr:            getEnv("HTTP_ADDR", ":"+getEnv("PORT", "5000")),
		ClientURL:           getEnv("CLIENT_URL", "http://localhost:5173"),
		Environment:         getEnv("APP_ENV", getEnv("NODE_ENV", "development")),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		StoreDriver:         strings.ToLower(getEnv("STORE_DRIVER", StoreSQLCipher)),
		DBPath:              getEnv("DB_PATH", "./data/campus_portal.db"),
		DBEncryptionKey:     getEnv("DB_ENCRYPTION_KEY", ""),
		MongoURI:            getEnv("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDatabase:       getEnv("MONGODB_DATABASE", "jain-university"),
		AppEncryptionKey:    getEnv("APP_ENCRYPTION_KEY", ""),
		JWTSecret:           getEnv("JWT_SECRET", ""),
		TokenTTL:            getEnvAsDuration("TOKEN_TTL", 24*time.Hour),
		BcryptCost:          getEnvAsInt("BCRYPT_COST", 12),
		HashConcurrency:     getEnvAsInt("HASH_CONCURRENCY", 4),
		MaxLoginAttempts:    getEnvAsInt("MAX_LOGIN_ATTEMPTS", 5),
		LockDuration:        getEnvAsDuration("ACCOUNT_LOCK_DURATION", 30*time.Minute),
		RateLimitBackend:    strings.ToLower(getEnv("RATE_LIMIT_BACKEND", RateLimitMemory)),
		RateLimitRPS:        getEnvAsInt("RATE_LIMIT_REQUESTS_PER_SECOND", 5),
		RateLimitBurst:      getEnvAsInt("RATE_LIMIT_BURST", 20),
		RateLimitWindow:     getEnvAsDuration("RATE_LIMIT_WINDOW", time.Minute),
		RedisAddr:           getEnv("REDIS_ADDR", ""),
		RedisPassword:       getEnv("REDIS_PASSWORD", ""),
		AuditLogPath:        getEnv("AUDIT_LOG_PATH", "./logs/audit.log"),
		AuditAsyncMode:      getEnvAsBool("AUDIT_ASYNC_MODE", true),
		BackupDir:           getEnv("BACKUP_DIR", "./backups"),
		BackupEncryptionKey: getEnv("BACKUP_ENCRYPTION_KEY", ""),
		BackupInterval:      time.Duration(getEnvAsInt("BACKUP_INTERVAL_HOURS", 24)) * time.Hour,
		BackupRetentionDays: getEnvAsInt("BACKUP_RETENTION_DAYS", 30),
	}

	// Validate critical configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate ensures all required configuration is present
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}

	if c.AppEncryptionKey == "" {
		return fmt.Errorf("APP_ENCRYPTION_KEY is required")
	}

	if len(c.AppEncryptionKey) < 32 {
		return fmt.Errorf("APP_ENCRYPTION_KEY must be at least 32 characters")
	}

	switch c.StoreDriver {
	case StoreSQLCipher:
		if c.DBEncryptionKey == "" {
			return fmt.Errorf("DB_ENCRYPTION_KEY is required")
		}
		if len(c.DBEncryptionKey) < 32 {
			return fmt.Errorf("DB_ENCRYPTION_KEY must be at least 32 characters")
		}
		if c.BackupEncryptionKey == "" {
			return fmt.Errorf("BACKUP_ENCRYPTION_KEY is required")
		}
	case StoreMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGODB_URI is required")
		}
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.StoreDriver)
	}

	switch c.RateLimitBackend {
	case RateLimitMemory:
	case RateLimitRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required for the redis rate limit backend")
		}
	default:
		return fmt.Errorf("unsupported RATE_LIMIT_BACKEND %q", c.RateLimitBackend)
	}

	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive")
	}

	if c.LockDuration <= 0 {
		return fmt.Errorf("ACCOUNT_LOCK_DURATION must be positive")
	}

	if c.MaxLoginAttempts < 1 {
		return fmt.Errorf("MAX_LOGIN_ATTEMPTS must be at least 1")
	}

	if c.HashConcurrency < 1 {
		return fmt.Errorf("HASH_CONCURRENCY must be at least 1")
	}

	return nil
}

// IsProduction reports whether cookies must be marked Secure
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Helper functions to read environment variables
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}
