package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/xenking/storefront/internal/domain/checkout"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/summary"
	"github.com/xenking/storefront/internal/handler"
	"github.com/xenking/storefront/internal/storage"
	"github.com/xenking/storefront/pkg/health"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

func validConfig() Config {
	return Config{
		Addr:     defaultAddr,
		Storage:  StorageConfig{Driver: "memory"},
		Checkout: CheckoutConfig{StockPolicy: "reject"},
		Coupon:   CouponConfig{Discount: "10"},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "memory", mutate: func(*Config) {}},
		{
			name:    "postgres without url",
			mutate:  func(c *Config) { c.Storage.Driver = "postgres" },
			wantErr: "postgres URL is required",
		},
		{
			name: "postgres",
			mutate: func(c *Config) {
				c.Storage.Driver = "postgres"
				c.Storage.PostgresURL = "postgres://localhost/shop"
			},
		},
		{
			name:    "mongo without url",
			mutate:  func(c *Config) { c.Storage.Driver = "mongo" },
			wantErr: "mongo URL is required",
		},
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.Storage.Driver = "sqlite" },
			wantErr: `unknown storage driver "sqlite"`,
		},
		{
			name:    "bad stock policy",
			mutate:  func(c *Config) { c.Checkout.StockPolicy = "backorder" },
			wantErr: "backorder",
		},
		{
			name:    "bad coupon discount",
			mutate:  func(c *Config) { c.Coupon.Discount = "ten" },
			wantErr: "parse coupon discount",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_PlatformDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://platform/shop")
	t.Setenv("MONGO_URL", "mongodb://platform:27017")
	t.Setenv("PORT", "9000")

	cfg := validConfig()
	cfg.applyPlatformDefaults()
	assert.Equal(t, "postgres://platform/shop", cfg.Storage.PostgresURL)
	assert.Equal(t, "mongodb://platform:27017", cfg.Storage.MongoURL)
	assert.Equal(t, "0.0.0.0:9000", cfg.Addr)

	cfg = validConfig()
	cfg.Addr = "127.0.0.1:8081"
	cfg.Storage.PostgresURL = "postgres://explicit/shop"
	cfg.applyPlatformDefaults()
	assert.Equal(t, "127.0.0.1:8081", cfg.Addr, "explicit address wins over PORT")
	assert.Equal(t, "postgres://explicit/shop", cfg.Storage.PostgresURL)
}

func TestConfig_StorageOptions(t *testing.T) {
	cfg := validConfig()
	cfg.Storage = StorageConfig{
		Driver:            "mongo",
		MongoURL:          "mongodb://localhost",
		MongoDatabase:     "shop",
		MongoWriteTimeout: time.Second,
		SynchronousCommit: "off",
	}

	assert.Equal(t, storage.Config{
		Driver:            storage.DriverMongo,
		MongoURL:          "mongodb://localhost",
		MongoDatabase:     "shop",
		MongoWriteTimeout: time.Second,
		SynchronousCommit: "off",
	}, cfg.StorageOptions())
}

type noopTelemetry struct{}

func (noopTelemetry) TracerProvider() trace.TracerProvider { return tracenoop.NewTracerProvider() }
func (noopTelemetry) MeterProvider() metric.MeterProvider  { return metricnoop.NewMeterProvider() }

func TestRouter(t *testing.T) {
	ctx := context.Background()
	cfg := validConfig()
	cfg.CORS = CORSConfig{Origins: []string{"https://shop.test"}, MaxAge: 60}

	backend, err := storage.Open(ctx, cfg.StorageOptions())
	require.NoError(t, err)
	engine, err := checkout.NewEngine(backend.Users, backend.Coupons, backend.Tx, checkout.Config{
		MeterProvider:  metricnoop.NewMeterProvider(),
		TracerProvider: tracenoop.NewTracerProvider(),
	})
	require.NoError(t, err)
	issuer, err := coupon.NewIssuer(backend.Coupons, coupon.DefaultDiscount)
	require.NoError(t, err)
	h := handler.NewHandler(handler.Config{}, engine, issuer, summary.NewReporter(backend.Orders), backend.Users, backend.Products)

	hs := health.New()
	hs.AddReadinessCheck("memory", time.Second, health.PingCheck(backend))
	hs.SetReady(true)

	router := newRouter(ctx, &cfg, noopTelemetry{}, h, hs)

	t.Run("probes", func(t *testing.T) {
		for _, path := range []string{"/livez", "/readyz"} {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
			assert.Equal(t, http.StatusOK, w.Code, path)
		}
	})

	t.Run("api through the chain", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/products", nil)
		req.Header.Set("Origin", "https://shop.test")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "[]", w.Body.String())
		assert.Equal(t, "https://shop.test", w.Header().Get("Access-Control-Allow-Origin"))
		assert.NotEmpty(t, w.Header().Get(httpmiddleware.RequestIDHeader))
	})

	t.Run("checkout of unknown user", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/orders/complete", strings.NewReader(`{"userId":"nobody"}`)))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
