// Package app wires the storefront API server.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/checkout"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/summary"
	"github.com/xenking/storefront/internal/handler"
	"github.com/xenking/storefront/internal/storage"
	"github.com/xenking/storefront/internal/storage/redis"
	"github.com/xenking/storefront/pkg/health"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

const serviceName = "storefront-api"

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage.Driver),
	)

	backend, err := storage.Open(ctx, cfg.StorageOptions())
	if err != nil {
		return errors.Wrap(err, "open storage")
	}
	defer func() {
		if err := backend.Close(context.WithoutCancel(ctx)); err != nil {
			lg.Error("Close storage", zap.Error(err))
		}
	}()

	healthSvc := health.New()
	healthSvc.AddReadinessCheck(string(backend.Driver), 5*time.Second, health.PingCheck(backend))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	engineCfg := checkout.Config{
		StockPolicy:    checkout.StockPolicy(cfg.Checkout.StockPolicy),
		CommitTimeout:  cfg.Checkout.CommitTimeout,
		LockTTL:        cfg.Checkout.LockTTL,
		MeterProvider:  m.MeterProvider(),
		TracerProvider: m.TracerProvider(),
	}
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = client.Close() }()

		locker := redis.NewLocker(client)
		engineCfg.Locker = locker
		healthSvc.AddReadinessCheck("redis", time.Second, health.PingCheck(locker))
		lg.Info("Checkout lock enabled", zap.String("redis", cfg.Redis.Addr))
	}

	engine, err := checkout.NewEngine(backend.Users, backend.Coupons, backend.Tx, engineCfg)
	if err != nil {
		return errors.Wrap(err, "create checkout engine")
	}
	discount, err := cfg.CouponDiscount()
	if err != nil {
		return err
	}
	issuer, err := coupon.NewIssuer(backend.Coupons, discount)
	if err != nil {
		return errors.Wrap(err, "create coupon issuer")
	}

	h := handler.NewHandler(
		handler.Config{ImageBaseURL: cfg.ImageBaseURL},
		engine,
		issuer,
		summary.NewReporter(backend.Orders),
		backend.Users,
		backend.Products,
	)

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           newRouter(ctx, cfg, m, h, healthSvc),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// newRouter mounts probes and API routes. Route-aware middlewares sit on
// the chi router; the rest wrap it.
func newRouter(ctx context.Context, cfg *Config, m httpmiddleware.Telemetry, h *handler.Handler, hs *health.Health) http.Handler {
	r := chi.NewRouter()
	r.Use(
		httpmiddleware.Instrument(serviceName, m),
		httpmiddleware.LogRequests(),
	)
	r.Get("/livez", hs.LiveEndpoint)
	r.Get("/readyz", hs.ReadyEndpoint)
	h.Mount(r)

	return httpmiddleware.Wrap(r,
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			Origins: cfg.CORS.Origins,
			Methods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
			Headers: []string{"Content-Type", httpmiddleware.RequestIDHeader},
			MaxAge:  cfg.CORS.MaxAge,
		}),
		httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
			Max:    cfg.RateLimit.Max,
			Window: cfg.RateLimit.Window,
		}),
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(zctx.From(ctx)),
	)
}
