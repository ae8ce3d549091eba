package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StoreMongo  = "mongo"
	StoreMemory = "memory"
)

type Config struct {
	HTTPPort           string
	RequestTimeout     time.Duration
	ShutdownTimeout    time.Duration
	MaxRequestBodySize int64
	LogLevel           string

	CartStore           string
	CartCleanupInterval time.Duration
	MongoURI            string
	MongoDBName         string
	MongoConnectTimeout time.Duration
	MongoMaxPoolSize    uint64

	// RedisAddr empty disables the cart cache.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	CatalogDBPath string

	PostgresHost        string
	PostgresPort        int
	PostgresUser        string
	PostgresPassword    string
	PostgresDBName      string
	OrdersMigrationsDir string

	BreakerFailures    uint32
	BreakerOpenTimeout time.Duration

	// KafkaBrokers empty disables order events.
	KafkaBrokers []string
	KafkaTopic   string

	JWTSecret string
	JWTIssuer string

	IdentityTimeout time.Duration
	PricingTimeout  time.Duration
	OrderTimeout    time.Duration
	ClearTimeout    time.Duration
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	p := &parser{}

	cfg := &Config{
		HTTPPort:           getEnv("HTTP_PORT", "8080"),
		RequestTimeout:     p.duration("REQUEST_TIMEOUT", 30*time.Second),
		ShutdownTimeout:    p.duration("SHUTDOWN_TIMEOUT", 10*time.Second),
		MaxRequestBodySize: p.int64("MAX_REQUEST_BODY_SIZE", 1<<20),
		LogLevel:           getEnv("LOG_LEVEL", "info"),

		CartStore:           strings.ToLower(getEnv("CART_STORE", StoreMongo)),
		CartCleanupInterval: p.duration("CART_CLEANUP_INTERVAL", time.Hour),
		MongoURI:            getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDBName:         getEnv("MONGO_DB_NAME", "cartdb"),
		MongoConnectTimeout: p.duration("MONGO_CONNECT_TIMEOUT", 10*time.Second),
		MongoMaxPoolSize:    uint64(p.int64("MONGO_MAX_POOL_SIZE", 100)),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       int(p.int64("REDIS_DB", 0)),
		CacheTTL:      p.duration("CART_CACHE_TTL", 15*time.Minute),

		CatalogDBPath: getEnv("CATALOG_DB_PATH", "catalog.db"),

		PostgresHost:        getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:        int(p.int64("POSTGRES_PORT", 5432)),
		PostgresUser:        getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword:    getEnv("POSTGRES_PASSWORD", "postgres"),
		PostgresDBName:      getEnv("POSTGRES_DB", "orders"),
		OrdersMigrationsDir: getEnv("ORDERS_MIGRATIONS_DIR", "./internal/orders/migrations"),

		BreakerFailures:    uint32(p.int64("ORDER_BREAKER_FAILURES", 5)),
		BreakerOpenTimeout: p.duration("ORDER_BREAKER_OPEN_TIMEOUT", 30*time.Second),

		KafkaBrokers: splitList(getEnv("KAFKA_BROKERS", "")),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "orders-placed"),

		JWTSecret: getEnv("JWT_SECRET", ""),
		JWTIssuer: getEnv("JWT_ISSUER", "cartflow"),

		IdentityTimeout: p.duration("IDENTITY_TIMEOUT", 2*time.Second),
		PricingTimeout:  p.duration("PRICING_TIMEOUT", 3*time.Second),
		OrderTimeout:    p.duration("ORDER_TIMEOUT", 10*time.Second),
		ClearTimeout:    p.duration("CART_CLEAR_TIMEOUT", 5*time.Second),
	}

	if err := errors.Join(p.errs...); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.CartStore != StoreMongo && c.CartStore != StoreMemory {
		errs = append(errs, fmt.Errorf("CART_STORE must be %q or %q, got %q", StoreMongo, StoreMemory, c.CartStore))
	}
	if c.BreakerFailures == 0 {
		errs = append(errs, errors.New("ORDER_BREAKER_FAILURES must be positive"))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parser collects every malformed variable instead of stopping at the first.
type parser struct {
	errs []error
}

func (p *parser) duration(key string, defaultValue time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		p.errs = append(p.errs, fmt.Errorf("invalid %s %q: expected a non-negative duration", key, raw))
		return defaultValue
	}
	return d
}

func (p *parser) int64(key string, defaultValue int64) int64 {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		p.errs = append(p.errs, fmt.Errorf("invalid %s %q: expected a non-negative integer", key, raw))
		return defaultValue
	}
	return n
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
