package config // package config loads application configuration from environment variables

import (
	"errors"
	"fmt"
	"time"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  Required variables are reported together by
// Load so a misconfigured deployment shows every missing key at once.
type Config struct {
	Env  string // application environment (e.g. "dev", "prod")
	Port string // HTTP port to listen on

	DBUser string // database username
	DBPass string // database password (optional)
	DBHost string // database host address
	DBPort string // database port number
	DBName string // database name

	JWTSecret        string // secret used to sign access tokens
	JWTRefreshSecret string // secret used to sign refresh tokens
	AccessTTLMin     int    // access token time-to-live in minutes
	RefreshTTLDays   int    // refresh token time-to-live in days
	BcryptCost       int    // bcrypt cost for password hashing

	CORSOrigins []string // allowed browser origins

	UploadDir         string // root directory for stored uploads
	DocumentMaxBytes  int64  // size limit for event documents
	MigrationMaxBytes int64  // size limit for migration files

	AMQPURL          string // broker URL; empty selects the in-process job runner
	MigrationWorkers int    // goroutines used by the in-process job runner

	LogLevel  string // zerolog level name
	LogFormat string // "json" or "console"

	ShutdownTimeout time.Duration

	Redis     RedisConfig
	Cache     CacheConfig
	RateLimit RateLimitConfig
}

// Load reads configuration values from the environment.  Missing required
// variables and malformed integers are collected into a single error.
func Load() (Config, error) {
	var errs []error
	req := func(key string) string {
		v, err := must(key)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}

	cfg := Config{
		Env:    req("APP_ENV"),
		Port:   req("APP_PORT"),
		DBUser: req("DB_USER"),
		DBPass: envStr("DB_PASS", ""),
		DBHost: req("DB_HOST"),
		DBPort: req("DB_PORT"),
		DBName: req("DB_NAME"),

		JWTSecret:        req("JWT_SECRET"),
		JWTRefreshSecret: req("JWT_REFRESH_SECRET"),
		AccessTTLMin:     envInt("ACCESS_TOKEN_TTL_MIN", 24*60),
		RefreshTTLDays:   envInt("REFRESH_TOKEN_TTL_DAYS", 7),
		BcryptCost:       envInt("BCRYPT_COST", 10),

		CORSOrigins: envList("CORS_ORIGINS", "http://localhost:3000"),

		UploadDir:         envStr("UPLOAD_DIR", "uploads"),
		DocumentMaxBytes:  int64(envInt("DOCUMENT_MAX_BYTES", 10<<20)),
		MigrationMaxBytes: int64(envInt("MIGRATION_MAX_BYTES", 50<<20)),

		AMQPURL:          envStr("RABBITMQ_URL", envStr("AMQP_URL", "")),
		MigrationWorkers: envInt("MIGRATION_WORKERS", 2),

		LogLevel:  envStr("LOG_LEVEL", "info"),
		LogFormat: envStr("LOG_FORMAT", "json"),

		ShutdownTimeout: envDur("SHUTDOWN_TIMEOUT", 10*time.Second),

		Redis:     LoadRedisConfig(),
		Cache:     LoadCacheConfig(),
		RateLimit: LoadRateLimitConfig(),
	}

	if cfg.JWTSecret != "" && cfg.JWTSecret == cfg.JWTRefreshSecret {
		errs = append(errs, errors.New("JWT_REFRESH_SECRET must differ from JWT_SECRET"))
	}
	if cfg.AccessTTLMin < 1 {
		errs = append(errs, fmt.Errorf("ACCESS_TOKEN_TTL_MIN must be positive, got %d", cfg.AccessTTLMin))
	}
	if cfg.RefreshTTLDays < 1 {
		errs = append(errs, fmt.Errorf("REFRESH_TOKEN_TTL_DAYS must be positive, got %d", cfg.RefreshTTLDays))
	}
	if cfg.MigrationWorkers < 1 {
		cfg.MigrationWorkers = 1
	}
	return cfg, errors.Join(errs...)
}

// AccessTTL returns the access token lifetime.
func (c Config) AccessTTL() time.Duration { return time.Duration(c.AccessTTLMin) * time.Minute }

// RefreshTTL returns the refresh token lifetime.
func (c Config) RefreshTTL() time.Duration {
	return time.Duration(c.RefreshTTLDays) * 24 * time.Hour
}
