package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-storefront/internal/api"
	"github.com/xenking/kart-storefront/internal/commerce"
	"github.com/xenking/kart-storefront/internal/domain/checkout"
	"github.com/xenking/kart-storefront/internal/domain/order"
	"github.com/xenking/kart-storefront/internal/storage"
	"github.com/xenking/kart-storefront/internal/storage/file"
	"github.com/xenking/kart-storefront/internal/storage/memory"
	"github.com/xenking/kart-storefront/internal/storage/postgres"
	"github.com/xenking/kart-storefront/internal/storefront"
	"github.com/xenking/kart-storefront/pkg/health"
	"github.com/xenking/kart-storefront/pkg/httpmiddleware"
)

// openStore returns the configured state store and a close function.
func openStore(ctx context.Context, cfg StorageConfig, h *health.Health) (storage.Store, func(), error) {
	switch cfg.Driver {
	case "file":
		s, err := file.New(cfg.Dir)
		if err != nil {
			return nil, nil, errors.Wrap(err, "open file store")
		}
		return s, func() {}, nil
	case "postgres":
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, errors.Wrap(err, "create db pool")
		}
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, errors.Wrap(err, "run migrations")
		}
		h.Add(health.Readiness, "postgres", 5*time.Second, health.PingCheck(pool))
		return postgres.New(pool), pool.Close, nil
	default:
		return memory.New(), func() {}, nil
	}
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("commerce", cfg.Commerce.BaseURL),
		zap.String("storage", cfg.Storage.Driver),
	)

	healthSvc := health.New()

	store, closeStore, err := openStore(ctx, cfg.Storage, healthSvc)
	if err != nil {
		return err
	}
	defer closeStore()

	client, err := commerce.New(cfg.Commerce.BaseURL,
		commerce.WithTimeout(cfg.Commerce.Timeout),
		commerce.WithTracerProvider(m.TracerProvider()),
		commerce.WithMeterProvider(m.MeterProvider()),
	)
	if err != nil {
		return errors.Wrap(err, "create commerce client")
	}

	healthSvc.Add(health.Readiness, "commerce", 5*time.Second, health.PingCheck(client))
	healthSvc.Add(health.Liveness, "goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	tokens, err := api.NewTokens([]byte(cfg.Session.Secret), cfg.Session.TTL, store)
	if err != nil {
		return errors.Wrap(err, "session tokens")
	}
	go tokens.Run(ctx, cfg.Sweep.Interval)

	cartOpts := cfg.Cart.options()
	cartOpts.MeterProvider = m.MeterProvider()
	registry := storefront.NewRegistry(store, client, storefront.Config{
		Cart: cartOpts,
		Checkout: checkout.Config{
			ClearAttempts: cfg.Checkout.ClearAttempts,
			ClearBackoff:  cfg.Checkout.ClearBackoff,
		},
	})
	go registry.Run(ctx, cfg.Sweep.Interval, cfg.Sweep.Idle)

	limiter := httpmiddleware.NewLimiter(cfg.RateLimit.Max, cfg.RateLimit.Window)
	go limiter.Run(ctx)

	srv := api.New(api.Deps{
		Auth:     client,
		Catalog:  client,
		Desk:     order.NewDesk(client),
		Registry: registry,
		Tokens:   tokens,
		Limiter:  limiter,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/api/", srv.Handler())

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		// Mutations wait for the commerce backend.
		WriteTimeout:   cfg.Commerce.Timeout + 5*time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
		Addr:           cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", httpmiddleware.HeaderRequestID},
				ExposeHeaders:    []string{httpmiddleware.HeaderRequestID, "Retry-After"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
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
