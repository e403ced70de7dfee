package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/checkout"
	"github.com/xenking/storefront/internal/storage"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (SHOP_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	ImageBaseURL string `default:"" usage:"Base URL prepended to relative product image references" flag:"image-base-url"`
	Storage      StorageConfig
	Redis        RedisConfig
	Checkout     CheckoutConfig
	Coupon       CouponConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// StorageConfig selects the backend holding products, users, coupons and
// orders.
type StorageConfig struct {
	Driver            string        `default:"postgres" usage:"Storage backend: postgres, mongo or memory"`
	PostgresURL       string        `usage:"PostgreSQL connection URL (SHOP_STORAGE_POSTGRES_URL or DATABASE_URL)" flag:"postgres-url"`
	SynchronousCommit string        `default:"on" usage:"synchronous_commit for checkout transactions" flag:"synchronous-commit"`
	MongoURL          string        `usage:"MongoDB connection URL (SHOP_STORAGE_MONGO_URL or MONGO_URL)" flag:"mongo-url"`
	MongoDatabase     string        `default:"shop" usage:"MongoDB database name" flag:"mongo-database"`
	MongoWriteTimeout time.Duration `default:"1s" usage:"Majority write concern timeout" flag:"mongo-write-timeout"`
}

// RedisConfig enables the per-user checkout lock when Addr is set.
type RedisConfig struct {
	Addr     string `default:"" usage:"Redis address for the checkout lock; empty disables it" flag:"redis-addr"`
	Password string `default:"" usage:"Redis password" flag:"redis-password"`
	DB       int    `default:"0" usage:"Redis database" flag:"redis-db"`
}

// CheckoutConfig tunes order completion.
type CheckoutConfig struct {
	StockPolicy   string        `default:"reject" usage:"Stock policy: reject or allow-negative" flag:"stock-policy"`
	CommitTimeout time.Duration `default:"1s" usage:"Checkout transaction timeout" flag:"commit-timeout"`
	LockTTL       time.Duration `default:"5s" usage:"Checkout lock TTL" flag:"lock-ttl"`
}

// CouponConfig controls issued coupons.
type CouponConfig struct {
	Discount string `default:"10" usage:"Discount percent of generated coupons" flag:"coupon-discount"`
}

// RateLimitConfig controls the per-client fixed window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins []string `default:"*" usage:"Allowed CORS origins"`
	MaxAge  int      `default:"86400" usage:"Preflight cache duration in seconds" flag:"cors-max-age"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "SHOP",
		Files:     []string{"config.yaml", "/etc/shop/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's SHOP_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.Storage.PostgresURL == "" {
		c.Storage.PostgresURL = os.Getenv("DATABASE_URL")
	}
	if c.Storage.MongoURL == "" {
		c.Storage.MongoURL = os.Getenv("MONGO_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}

// Validate reports settings that would only fail later at startup.
func (c *Config) Validate() error {
	switch storage.Driver(c.Storage.Driver) {
	case storage.DriverPostgres:
		if c.Storage.PostgresURL == "" {
			return errors.New("postgres URL is required: set SHOP_STORAGE_POSTGRES_URL or DATABASE_URL")
		}
	case storage.DriverMongo:
		if c.Storage.MongoURL == "" {
			return errors.New("mongo URL is required: set SHOP_STORAGE_MONGO_URL or MONGO_URL")
		}
	case storage.DriverMemory:
	default:
		return errors.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if _, err := checkout.ParseStockPolicy(c.Checkout.StockPolicy); err != nil {
		return err
	}
	if _, err := c.CouponDiscount(); err != nil {
		return err
	}
	return nil
}

// CouponDiscount parses the configured coupon percentage.
func (c *Config) CouponDiscount() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(c.Coupon.Discount)
	if err != nil {
		return decimal.Decimal{}, errors.Wrap(err, "parse coupon discount")
	}
	return d, nil
}

// StorageOptions converts the storage section for storage.Open.
func (c *Config) StorageOptions() storage.Config {
	return storage.Config{
		Driver:            storage.Driver(c.Storage.Driver),
		PostgresURL:       c.Storage.PostgresURL,
		SynchronousCommit: c.Storage.SynchronousCommit,
		MongoURL:          c.Storage.MongoURL,
		MongoDatabase:     c.Storage.MongoDatabase,
		MongoWriteTimeout: c.Storage.MongoWriteTimeout,
	}
}
