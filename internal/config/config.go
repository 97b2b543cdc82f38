package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Addr     string `mapstructure:"ADDR"`
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	DBAddr        string `mapstructure:"DB_ADDR"`
	DBMaxConns    int32  `mapstructure:"DB_MAX_CONNS"`
	DBMaxIdleTime string `mapstructure:"DB_MAX_IDLE_TIME"`

	AuthTokenSecret string        `mapstructure:"AUTH_TOKEN_SECRET"`
	AuthTokenExp    time.Duration `mapstructure:"AUTH_TOKEN_EXP"`
	AuthTokenIss    string        `mapstructure:"AUTH_TOKEN_ISS"`
	AuthBasicUser   string        `mapstructure:"AUTH_BASIC_USER"`
	AuthBasicPass   string        `mapstructure:"AUTH_BASIC_PASS"`

	// --- object storage ---
	StorageBackend     string        `mapstructure:"STORAGE_BACKEND"` // s3 | cloudinary
	StorageTimeout     time.Duration `mapstructure:"STORAGE_TIMEOUT"`
	StorageConcurrency int           `mapstructure:"STORAGE_CONCURRENCY"`

	S3Endpoint  string `mapstructure:"S3_ENDPOINT"`
	S3Region    string `mapstructure:"S3_REGION"`
	S3Bucket    string `mapstructure:"S3_BUCKET"`
	S3AccessKey string `mapstructure:"S3_ACCESS_KEY"`
	S3SecretKey string `mapstructure:"S3_SECRET_KEY"`
	S3UseSSL    bool   `mapstructure:"S3_USE_SSL"`
	S3PathStyle bool   `mapstructure:"S3_PATH_STYLE"`

	CloudinaryURL    string `mapstructure:"CLOUDINARY_URL"`
	CloudinaryFolder string `mapstructure:"CLOUDINARY_FOLDER"`

	// --- signed urls ---
	SignedURLExpiry    time.Duration `mapstructure:"SIGNED_URL_EXPIRY"`
	SignedURLCacheSize int           `mapstructure:"SIGNED_URL_CACHE_SIZE"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisDB       int    `mapstructure:"REDIS_DB"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`

	RateLimitRequests int  `mapstructure:"RATELIMITER_REQUESTS_COUNT"`
	RateLimitEnabled  bool `mapstructure:"RATE_LIMITER_ENABLED"`
}

var keys = []string{
	"ADDR", "ENV", "LOG_LEVEL",
	"DB_ADDR", "DB_MAX_CONNS", "DB_MAX_IDLE_TIME",
	"AUTH_TOKEN_SECRET", "AUTH_TOKEN_EXP", "AUTH_TOKEN_ISS", "AUTH_BASIC_USER", "AUTH_BASIC_PASS",
	"STORAGE_BACKEND", "STORAGE_TIMEOUT", "STORAGE_CONCURRENCY",
	"S3_ENDPOINT", "S3_REGION", "S3_BUCKET", "S3_ACCESS_KEY", "S3_SECRET_KEY", "S3_USE_SSL", "S3_PATH_STYLE",
	"CLOUDINARY_URL", "CLOUDINARY_FOLDER",
	"SIGNED_URL_EXPIRY", "SIGNED_URL_CACHE_SIZE",
	"REDIS_ADDR", "REDIS_DB", "REDIS_PASSWORD",
	"RATELIMITER_REQUESTS_COUNT", "RATE_LIMITER_ENABLED",
}

// Load reads .env (when present) and the process environment.
func Load() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, errors.New("failed to load .env")
		}
	}

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ADDR", ":8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_MAX_CONNS", 30)
	v.SetDefault("DB_MAX_IDLE_TIME", "15m")
	v.SetDefault("AUTH_TOKEN_EXP", "72h")
	v.SetDefault("AUTH_TOKEN_ISS", "acessolivre")
	v.SetDefault("STORAGE_BACKEND", "s3")
	v.SetDefault("STORAGE_TIMEOUT", "30s")
	v.SetDefault("STORAGE_CONCURRENCY", 10)
	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("CLOUDINARY_FOLDER", "acesso-livre")
	v.SetDefault("SIGNED_URL_EXPIRY", "1h")
	v.SetDefault("SIGNED_URL_CACHE_SIZE", 1000)
	v.SetDefault("RATELIMITER_REQUESTS_COUNT", 200)
	v.SetDefault("RATE_LIMITER_ENABLED", false)
}

func (c *Config) Validate() error {
	if c.DBAddr == "" {
		return errors.New("DB_ADDR is required")
	}
	if c.AuthTokenSecret == "" {
		return errors.New("AUTH_TOKEN_SECRET is required")
	}
	switch c.StorageBackend {
	case "s3":
		if c.S3Endpoint == "" || c.S3Bucket == "" {
			return errors.New("S3_ENDPOINT and S3_BUCKET are required for the s3 backend")
		}
	case "cloudinary":
		if c.CloudinaryURL == "" {
			return errors.New("CLOUDINARY_URL is required for the cloudinary backend")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend)
	}
	if c.SignedURLExpiry <= 0 {
		return errors.New("SIGNED_URL_EXPIRY must be positive")
	}
	return nil
}

func (c *Config) String() string {
	var sb strings.Builder
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("  Addr: %s\n", c.Addr))
	sb.WriteString(fmt.Sprintf("  Env: %s\n", c.Env))
	sb.WriteString(fmt.Sprintf("  LogLevel: %s\n", c.LogLevel))
	sb.WriteString(fmt.Sprintf("  DBAddr: %s\n", maskDSN(c.DBAddr)))
	sb.WriteString(fmt.Sprintf("  DBMaxConns: %d\n", c.DBMaxConns))
	sb.WriteString(fmt.Sprintf("  StorageBackend: %s\n", c.StorageBackend))
	sb.WriteString(fmt.Sprintf("  StorageTimeout: %s\n", c.StorageTimeout))
	sb.WriteString(fmt.Sprintf("  StorageConcurrency: %d\n", c.StorageConcurrency))
	sb.WriteString(fmt.Sprintf("  S3Endpoint: %s\n", c.S3Endpoint))
	sb.WriteString(fmt.Sprintf("  S3Bucket: %s\n", c.S3Bucket))
	sb.WriteString(fmt.Sprintf("  S3AccessKey: %s\n", mask(c.S3AccessKey)))
	sb.WriteString(fmt.Sprintf("  S3SecretKey: %s\n", mask(c.S3SecretKey)))
	sb.WriteString(fmt.Sprintf("  CloudinaryURL: %s\n", mask(c.CloudinaryURL)))
	sb.WriteString(fmt.Sprintf("  SignedURLExpiry: %s\n", c.SignedURLExpiry))
	sb.WriteString(fmt.Sprintf("  SignedURLCacheSize: %d\n", c.SignedURLCacheSize))
	sb.WriteString(fmt.Sprintf("  RedisAddr: %s\n", c.RedisAddr))
	sb.WriteString(fmt.Sprintf("  AuthTokenSecret: %s\n", mask(c.AuthTokenSecret)))
	sb.WriteString(fmt.Sprintf("  RateLimitEnabled: %v (%d)\n", c.RateLimitEnabled, c.RateLimitRequests))
	return sb.String()
}

func mask(s string) string {
	if s == "" {
		return "(empty)"
	}
	return "********"
}

// maskDSN hides the password part of a postgres url.
func maskDSN(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	scheme := strings.Index(dsn, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return dsn
	}
	creds := dsn[scheme+3 : at]
	if i := strings.Index(creds, ":"); i >= 0 {
		creds = creds[:i] + ":********"
	}
	return dsn[:scheme+3] + creds + dsn[at:]
}
