package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig
	DB         DBConfig
	Storage    StorageConfig
	S3         S3Config
	Log        LogConfig
	CORS       CORSConfig
	Catalog    CatalogConfig
	Pagination PaginationConfig
	Rules      RulesConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Environment  string        `mapstructure:"environment"`
}

// DBConfig holds PostgreSQL connection settings.
type DBConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxOpen  int    `mapstructure:"max_open"`
	MaxIdle  int    `mapstructure:"max_idle"`
}

// DSN returns the PostgreSQL connection string.
func (d *DBConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// StorageConfig selects the collection and catalog store implementation.
type StorageConfig struct {
	// Driver is "postgres" or "memory".
	Driver string `mapstructure:"driver"`
}

// S3Config holds settings for the collection image bucket.
type S3Config struct {
	Region         string `mapstructure:"region"`
	Bucket         string `mapstructure:"bucket"`
	Endpoint       string `mapstructure:"endpoint"`
	AccessKey      string `mapstructure:"access_key"`
	SecretKey      string `mapstructure:"secret_key"`
	MaxImageSizeMB int64  `mapstructure:"max_image_size_mb"`
	PresignExpiry  int64  `mapstructure:"presign_expiry"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// CatalogConfig controls how the product catalog is scanned and protected.
type CatalogConfig struct {
	Order               string        `mapstructure:"order"`
	RequestTimeout      time.Duration `mapstructure:"request_timeout"`
	MaxRetries          int           `mapstructure:"max_retries"`
	RetryInitialDelay   time.Duration `mapstructure:"retry_initial_delay"`
	BreakerMaxHalfOpen  uint32        `mapstructure:"breaker_max_half_open"`
	BreakerInterval     time.Duration `mapstructure:"breaker_interval"`
	BreakerTimeout      time.Duration `mapstructure:"breaker_timeout"`
	BreakerMinRequests  uint32        `mapstructure:"breaker_min_requests"`
	BreakerFailureRatio float64       `mapstructure:"breaker_failure_ratio"`
	// SeedFile is an XLSX workbook loaded into the in-memory catalog at
	// startup. Ignored by the postgres driver; use cmd/seedcatalog there.
	SeedFile  string `mapstructure:"seed_file"`
	SeedSheet string `mapstructure:"seed_sheet"`
}

// PaginationConfig holds page size bounds and cursor signing settings.
type PaginationConfig struct {
	DefaultPageSize int           `mapstructure:"default_page_size"`
	MaxPageSize     int           `mapstructure:"max_page_size"`
	CursorSecret    string        `mapstructure:"cursor_secret"`
	CursorTTL       time.Duration `mapstructure:"cursor_ttl"`
}

// RulesConfig holds rule evaluation settings.
type RulesConfig struct {
	CaseSensitive bool `mapstructure:"case_sensitive"`
}

// RedisConfig holds resolution cache settings. An empty Addr disables the cache.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
	Prefix   string        `mapstructure:"prefix"`
}

// KafkaConfig holds change event settings. No brokers disables publishing.
type KafkaConfig struct {
	Brokers        []string      `mapstructure:"brokers"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
	Topic   string   `mapstructure:"topic"`
}

// Load reads configuration from environment variables with the SHELF_ prefix.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SHELF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Server defaults
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.environment", "development")

	// DB defaults
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "shelf")
	v.SetDefault("db.password", "shelf_secret")
	v.SetDefault("db.name", "shelf_db")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_open", 25)
	v.SetDefault("db.max_idle", 10)

	v.SetDefault("storage.driver", "postgres")

	// S3 defaults
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.bucket", "shelf-collection-images")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.max_image_size_mb", 10)
	v.SetDefault("s3.presign_expiry", 3600)

	// Log defaults
	v.SetDefault("log.level", "debug")
	v.SetDefault("log.format", "console")

	// CORS defaults (localhost origins for development)
	v.SetDefault("cors.allowed_origins", "http://localhost:3000,http://127.0.0.1:3000")

	// Catalog defaults
	v.SetDefault("catalog.order", "created")
	v.SetDefault("catalog.request_timeout", "10s")
	v.SetDefault("catalog.max_retries", 2)
	v.SetDefault("catalog.retry_initial_delay", "100ms")
	v.SetDefault("catalog.breaker_max_half_open", 3)
	v.SetDefault("catalog.breaker_interval", "60s")
	v.SetDefault("catalog.breaker_timeout", "30s")
	v.SetDefault("catalog.breaker_min_requests", 5)
	v.SetDefault("catalog.breaker_failure_ratio", 0.6)
	v.SetDefault("catalog.seed_file", "")
	v.SetDefault("catalog.seed_sheet", "")

	// Pagination defaults
	v.SetDefault("pagination.default_page_size", 20)
	v.SetDefault("pagination.max_page_size", 250)
	v.SetDefault("pagination.cursor_secret", "change-me-in-production")
	v.SetDefault("pagination.cursor_ttl", "0s")

	v.SetDefault("rules.case_sensitive", false)

	// Redis defaults (empty addr disables the resolution cache)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", "10m")
	v.SetDefault("redis.prefix", "shelf:resolution:")

	// Kafka defaults (no brokers disables change events)
	v.SetDefault("kafka.brokers", "")
	v.SetDefault("kafka.topic", "shelf.collection-changed")
	v.SetDefault("kafka.publish_timeout", "2s")

	// Bind environment variables explicitly for nested keys
	envBindings := map[string]string{
		"server.port":                   "SHELF_SERVER_PORT",
		"server.read_timeout":           "SHELF_SERVER_READ_TIMEOUT",
		"server.write_timeout":          "SHELF_SERVER_WRITE_TIMEOUT",
		"server.environment":            "SHELF_SERVER_ENVIRONMENT",
		"db.host":                       "SHELF_DB_HOST",
		"db.port":                       "SHELF_DB_PORT",
		"db.user":                       "SHELF_DB_USER",
		"db.password":                   "SHELF_DB_PASSWORD",
		"db.name":                       "SHELF_DB_NAME",
		"db.sslmode":                    "SHELF_DB_SSLMODE",
		"db.max_open":                   "SHELF_DB_MAX_OPEN",
		"db.max_idle":                   "SHELF_DB_MAX_IDLE",
		"storage.driver":                "SHELF_STORAGE_DRIVER",
		"s3.region":                     "SHELF_S3_REGION",
		"s3.bucket":                     "SHELF_S3_BUCKET",
		"s3.endpoint":                   "SHELF_S3_ENDPOINT",
		"s3.access_key":                 "SHELF_S3_ACCESS_KEY",
		"s3.secret_key":                 "SHELF_S3_SECRET_KEY",
		"s3.max_image_size_mb":          "SHELF_S3_MAX_IMAGE_SIZE_MB",
		"s3.presign_expiry":             "SHELF_S3_PRESIGN_EXPIRY",
		"log.level":                     "SHELF_LOG_LEVEL",
		"log.format":                    "SHELF_LOG_FORMAT",
		"cors.allowed_origins":          "SHELF_CORS_ALLOWED_ORIGINS",
		"catalog.order":                 "SHELF_CATALOG_ORDER",
		"catalog.request_timeout":       "SHELF_CATALOG_REQUEST_TIMEOUT",
		"catalog.max_retries":           "SHELF_CATALOG_MAX_RETRIES",
		"catalog.retry_initial_delay":   "SHELF_CATALOG_RETRY_INITIAL_DELAY",
		"catalog.breaker_max_half_open": "SHELF_CATALOG_BREAKER_MAX_HALF_OPEN",
		"catalog.breaker_interval":      "SHELF_CATALOG_BREAKER_INTERVAL",
		"catalog.breaker_timeout":       "SHELF_CATALOG_BREAKER_TIMEOUT",
		"catalog.breaker_min_requests":  "SHELF_CATALOG_BREAKER_MIN_REQUESTS",
		"catalog.breaker_failure_ratio": "SHELF_CATALOG_BREAKER_FAILURE_RATIO",
		"catalog.seed_file":             "SHELF_CATALOG_SEED_FILE",
		"catalog.seed_sheet":            "SHELF_CATALOG_SEED_SHEET",
		"pagination.default_page_size":  "SHELF_PAGINATION_DEFAULT_PAGE_SIZE",
		"pagination.max_page_size":      "SHELF_PAGINATION_MAX_PAGE_SIZE",
		"pagination.cursor_secret":      "SHELF_PAGINATION_CURSOR_SECRET",
		"pagination.cursor_ttl":         "SHELF_PAGINATION_CURSOR_TTL",
		"rules.case_sensitive":          "SHELF_RULES_CASE_SENSITIVE",
		"redis.addr":                    "SHELF_REDIS_ADDR",
		"redis.password":                "SHELF_REDIS_PASSWORD",
		"redis.db":                      "SHELF_REDIS_DB",
		"redis.ttl":                     "SHELF_REDIS_TTL",
		"redis.prefix":                  "SHELF_REDIS_PREFIX",
		"kafka.brokers":                 "SHELF_KAFKA_BROKERS",
		"kafka.topic":                   "SHELF_KAFKA_TOPIC",
		"kafka.publish_timeout":         "SHELF_KAFKA_PUBLISH_TIMEOUT",
	}
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}

	cfg := &Config{}

	// Railway/Heroku/Render set a PORT env var. Use it if SHELF_SERVER_PORT is not explicitly set.
	serverPort := v.GetString("server.port")
	if port := os.Getenv("PORT"); port != "" && os.Getenv("SHELF_SERVER_PORT") == "" {
		serverPort = ":" + port
	}

	cfg.Server = ServerConfig{
		Port:         serverPort,
		ReadTimeout:  v.GetDuration("server.read_timeout"),
		WriteTimeout: v.GetDuration("server.write_timeout"),
		Environment:  v.GetString("server.environment"),
	}
	cfg.DB = DBConfig{
		Host:     v.GetString("db.host"),
		Port:     v.GetInt("db.port"),
		User:     v.GetString("db.user"),
		Password: v.GetString("db.password"),
		Name:     v.GetString("db.name"),
		SSLMode:  v.GetString("db.sslmode"),
		MaxOpen:  v.GetInt("db.max_open"),
		MaxIdle:  v.GetInt("db.max_idle"),
	}
	cfg.Storage = StorageConfig{
		Driver: strings.ToLower(v.GetString("storage.driver")),
	}
	cfg.S3 = S3Config{
		Region:         v.GetString("s3.region"),
		Bucket:         v.GetString("s3.bucket"),
		Endpoint:       v.GetString("s3.endpoint"),
		AccessKey:      v.GetString("s3.access_key"),
		SecretKey:      v.GetString("s3.secret_key"),
		MaxImageSizeMB: v.GetInt64("s3.max_image_size_mb"),
		PresignExpiry:  v.GetInt64("s3.presign_expiry"),
	}
	cfg.Log = LogConfig{
		Level:  v.GetString("log.level"),
		Format: v.GetString("log.format"),
	}
	cfg.CORS = CORSConfig{
		AllowedOrigins: splitList(v.GetString("cors.allowed_origins")),
	}
	cfg.Catalog = CatalogConfig{
		Order:               strings.ToLower(v.GetString("catalog.order")),
		RequestTimeout:      v.GetDuration("catalog.request_timeout"),
		MaxRetries:          v.GetInt("catalog.max_retries"),
		RetryInitialDelay:   v.GetDuration("catalog.retry_initial_delay"),
		BreakerMaxHalfOpen:  v.GetUint32("catalog.breaker_max_half_open"),
		BreakerInterval:     v.GetDuration("catalog.breaker_interval"),
		BreakerTimeout:      v.GetDuration("catalog.breaker_timeout"),
		BreakerMinRequests:  v.GetUint32("catalog.breaker_min_requests"),
		BreakerFailureRatio: v.GetFloat64("catalog.breaker_failure_ratio"),
		SeedFile:            v.GetString("catalog.seed_file"),
		SeedSheet:           v.GetString("catalog.seed_sheet"),
	}
	cfg.Pagination = PaginationConfig{
		DefaultPageSize: v.GetInt("pagination.default_page_size"),
		MaxPageSize:     v.GetInt("pagination.max_page_size"),
		CursorSecret:    v.GetString("pagination.cursor_secret"),
		CursorTTL:       v.GetDuration("pagination.cursor_ttl"),
	}
	cfg.Rules = RulesConfig{
		CaseSensitive: v.GetBool("rules.case_sensitive"),
	}
	cfg.Redis = RedisConfig{
		Addr:     v.GetString("redis.addr"),
		Password: v.GetString("redis.password"),
		DB:       v.GetInt("redis.db"),
		TTL:      v.GetDuration("redis.ttl"),
		Prefix:   v.GetString("redis.prefix"),
	}
	cfg.Kafka = KafkaConfig{
		Brokers:        splitList(v.GetString("kafka.brokers")),
		Topic:          v.GetString("kafka.topic"),
		PublishTimeout: v.GetDuration("kafka.publish_timeout"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Catalog.Order {
	case "created", "title":
	default:
		return fmt.Errorf("config: unknown catalog order %q", c.Catalog.Order)
	}
	if c.Pagination.DefaultPageSize < 0 || c.Pagination.MaxPageSize < 0 {
		return errors.New("config: page sizes must be non-negative")
	}
	if c.Pagination.MaxPageSize > 0 && c.Pagination.DefaultPageSize > c.Pagination.MaxPageSize {
		return fmt.Errorf("config: default page size %d exceeds max page size %d",
			c.Pagination.DefaultPageSize, c.Pagination.MaxPageSize)
	}
	if c.Pagination.CursorSecret == "" {
		return errors.New("config: pagination cursor secret is required")
	}
	if c.Catalog.MaxRetries < 0 {
		return errors.New("config: catalog max retries must be non-negative")
	}
	return nil
}

// splitList parses a comma-separated list, dropping empty entries.
func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
