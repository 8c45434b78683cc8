package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Storage drivers accepted by STORAGE_DRIVER.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

type Config struct {
	Env            string
	Port           int
	APIPrefix      string
	StorageDriver  string
	MigrateOnStart bool

	Database  DatabaseConfig
	Redis     RedisConfig
	Cache     CacheConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	Capacity  CapacityConfig
	RateLimit RateLimitConfig
	Reconcile ReconcileConfig
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

// CacheConfig toggles the Redis roster cache.
type CacheConfig struct {
	Enabled   bool
	RosterTTL time.Duration
}

type JWTConfig struct {
	Secret string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// CapacityConfig decides which attendance states occupy a seat.
type CapacityConfig struct {
	AbsentHoldsSeat bool
}

// RateLimitConfig configures the per-organization token bucket.
type RateLimitConfig struct {
	PerSecond float64
	Burst     int
}

// ReconcileConfig drives the credit projection reconciliation queue.
type ReconcileConfig struct {
	Interval time.Duration
	Workers  int
	Retries  int
	Batch    int
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
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")
	cfg.StorageDriver = strings.ToLower(v.GetString("STORAGE_DRIVER"))
	cfg.MigrateOnStart = v.GetBool("MIGRATE_ON_START")

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

	cfg.Cache = CacheConfig{
		Enabled:   v.GetBool("ENABLE_CACHE"),
		RosterTTL: parseDuration(v.GetString("ROSTER_CACHE_TTL"), 2*time.Minute),
	}

	cfg.JWT = JWTConfig{Secret: v.GetString("JWT_SECRET")}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Capacity = CapacityConfig{AbsentHoldsSeat: v.GetBool("ABSENT_HOLDS_SEAT")}

	cfg.RateLimit = RateLimitConfig{
		PerSecond: v.GetFloat64("RATE_LIMIT_PER_SECOND"),
		Burst:     v.GetInt("RATE_LIMIT_BURST"),
	}

	cfg.Reconcile = ReconcileConfig{
		Interval: parseDuration(v.GetString("RECONCILE_INTERVAL"), 15*time.Minute),
		Workers:  v.GetInt("RECONCILE_WORKERS"),
		Retries:  v.GetInt("RECONCILE_RETRIES"),
		Batch:    v.GetInt("RECONCILE_BATCH"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")
	v.SetDefault("STORAGE_DRIVER", StoragePostgres)
	v.SetDefault("MIGRATE_ON_START", false)

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "reposition")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("ENABLE_CACHE", false)
	v.SetDefault("ROSTER_CACHE_TTL", "2m")

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ABSENT_HOLDS_SEAT", false)

	v.SetDefault("RATE_LIMIT_PER_SECOND", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)

	v.SetDefault("RECONCILE_INTERVAL", "15m")
	v.SetDefault("RECONCILE_WORKERS", 1)
	v.SetDefault("RECONCILE_RETRIES", 3)
	v.SetDefault("RECONCILE_BATCH", 100)
}

// isMissingFile tolerates an absent .env; with SetConfigFile viper reports it as a path error.
func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
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
