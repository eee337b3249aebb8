// Package app wires configuration, storage, the storefront and the HTTP
// server into a runnable service.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/catalog"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/handler"
	"github.com/xenking/storefront/internal/persist"
	"github.com/xenking/storefront/internal/storage/file"
	"github.com/xenking/storefront/internal/storage/memory"
	"github.com/xenking/storefront/internal/storage/postgres"
	"github.com/xenking/storefront/internal/storefront"
	"github.com/xenking/storefront/pkg/health"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage.Driver),
		zap.String("catalog", cfg.Catalog.Source),
	)

	var pool *pgxpool.Pool
	if cfg.needsDatabase() {
		var err error
		if pool, err = postgres.NewPool(ctx, cfg.DatabaseURL); err != nil {
			return errors.Wrap(err, "create db pool")
		}
		defer pool.Close()

		if err := postgres.RunMigrations(ctx, pool); err != nil {
			return errors.Wrap(err, "run migrations")
		}
	}

	storage, err := newStorage(cfg.Storage, pool)
	if err != nil {
		return errors.Wrap(err, "create storage")
	}
	products, err := newCatalog(cfg.Catalog, pool)
	if err != nil {
		return errors.Wrap(err, "create catalog")
	}

	front, err := storefront.Open(ctx, storage, persist.Options{
		Logger:         lg.Named("persist"),
		MeterProvider:  m.MeterProvider(),
		TracerProvider: m.TracerProvider(),
		RetryDelay:     cfg.Persist.RetryDelay,
	})
	if err != nil {
		return errors.Wrap(err, "open storefront")
	}
	defer front.Close()
	lg.Info("Storefront loaded",
		zap.Int("cart_count", front.CartCount()),
		zap.Int("favorites_count", front.FavoritesCount()),
	)

	healthSvc := health.New()
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	if p, ok := storage.(persist.Pinger); ok {
		healthSvc.AddReadinessCheck("storage", 5*time.Second, p.Ping)
	}
	healthSvc.AddReadinessCheck("persistence", time.Second, health.ErrorCheck(front.PersistenceErr))
	healthSvc.Start(ctx, 10*time.Second)
	defer healthSvc.Stop()
	healthSvc.SetReady(true)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("GET /readyz", healthSvc.ReadyEndpoint)
	handler.New(products, front).Register(mux)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", httpmiddleware.RequestIDHeader},
				ExposeHeaders:    []string{httpmiddleware.RequestIDHeader},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("storefront-api", m.TracerProvider(), m.MeterProvider()),
			httpmiddleware.LogRequests(),
		),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		healthSvc.SetReady(false)
		if ctx.Err() != nil {
			lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
			time.Sleep(cfg.Graceful.ReadinessDelay)
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		if err := front.SaveToStorage(shutdownCtx); err != nil {
			lg.Error("Final save failed", zap.Error(err))
		}
		return nil
	})
	return g.Wait()
}

// newStorage builds the durable store selected by cfg. pool is nil unless a
// database is configured.
func newStorage(cfg StorageConfig, pool *pgxpool.Pool) (persist.Storage, error) {
	switch cfg.Driver {
	case StorageMemory:
		return memory.New(cfg.Quota), nil
	case StorageFile:
		return file.New(cfg.Dir, cfg.Compress)
	case StoragePostgres:
		if pool == nil {
			return nil, errors.New("postgres storage requires a database")
		}
		return postgres.NewStorage(pool), nil
	default:
		return nil, errors.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func newCatalog(cfg CatalogConfig, pool *pgxpool.Pool) (product.Repository, error) {
	switch cfg.Source {
	case CatalogEmbedded:
		return catalog.Embedded()
	case CatalogPostgres:
		if pool == nil {
			return nil, errors.New("postgres catalog requires a database")
		}
		return postgres.NewProductRepository(pool), nil
	default:
		return nil, errors.Errorf("unknown catalog source %q", cfg.Source)
	}
}
