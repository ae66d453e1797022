// Package app wires configuration, storage, domain services and the HTTP
// server into a runnable application.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/souq-labs/souq-api/internal/domain/auth"
	"github.com/souq-labs/souq-api/internal/domain/cart"
	"github.com/souq-labs/souq-api/internal/domain/coupon"
	"github.com/souq-labs/souq-api/internal/domain/order"
	"github.com/souq-labs/souq-api/internal/handler"
	"github.com/souq-labs/souq-api/internal/repository"
	"github.com/souq-labs/souq-api/internal/router"
	"github.com/souq-labs/souq-api/pkg/health"
	"github.com/souq-labs/souq-api/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// Handler-level instruments resolve through the otel globals.
	otel.SetTracerProvider(m.TracerProvider())
	otel.SetMeterProvider(m.MeterProvider())

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)

	// Repositories. The coupon repository is wrapped with a bloom filter
	// so definitely-unknown codes never reach the database.
	productRepo := repository.NewProductRepository(pool)
	couponRepo := coupon.NewFilteredRepository(
		repository.NewCouponRepository(pool),
		cfg.Coupons.ExpectedCodes,
		cfg.Coupons.FalsePositiveRate,
	)
	if err := couponRepo.Warm(ctx); err != nil {
		return errors.Wrap(err, "warm coupon filter")
	}
	// Pick up codes the bulk ingest tool writes while we run.
	go couponRepo.RewarmEvery(ctx, cfg.Coupons.RewarmInterval)
	cartRepo := repository.NewCartRepository(pool)
	orderRepo := repository.NewOrderRepository(pool)
	tokenRepo := repository.NewTokenRepository(pool)
	store := repository.NewStore(pool)

	// Domain services.
	cartService := cart.NewService(cartRepo, productRepo)
	orderService := order.NewService(store, orderRepo, cartRepo)
	authenticator := auth.NewAuthenticator(tokenRepo, []byte(cfg.TokenPepper))

	// Idle guest carts are expired in the background, best effort.
	go cart.NewSweeper(cartRepo, cfg.Carts.GuestTTL, cfg.Carts.SweepInterval).Run(ctx)

	// HTTP surface: health endpoints + API routes on one router.
	r := router.New()
	r.Get("/livez", healthSvc.LiveEndpoint)
	r.Get("/readyz", healthSvc.ReadyEndpoint)
	handler.NewHandler(productRepo, couponRepo, cartService, orderService, authenticator).Register(r)

	healthSvc.SetReady(true)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(
			otelhttp.NewHandler(r, "souq-api",
				otelhttp.WithTracerProvider(m.TracerProvider()),
				otelhttp.WithMeterProvider(m.MeterProvider()),
			),
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", handler.GuestIDHeader},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.LogRequests(),
		),
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
