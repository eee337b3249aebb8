package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/db"
	"github.com/xenking/storefront/internal/catalog"
	"github.com/xenking/storefront/internal/codec"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/storage/postgres"
)

const upsertConcurrency = 4

func main() {
	var (
		databaseURL  string
		productsFile string
		resetStorage bool
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "", "path to products JSON file (embedded demo catalog when empty)")
	flag.BoolVar(&resetStorage, "reset-storage", false, "empty the persisted cart and favorites")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, databaseURL, productsFile, resetStorage); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed")
}

func run(ctx context.Context, lg *zap.Logger, databaseURL, productsFile string, resetStorage bool) error {
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	lg.Info("Running migrations")
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, lg, pool, productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if resetStorage {
		if err := resetCollections(ctx, lg, pool); err != nil {
			return errors.Wrap(err, "reset storage")
		}
	}
	return nil
}

func seedProducts(ctx context.Context, lg *zap.Logger, pool *pgxpool.Pool, productsFile string) error {
	data := db.Products
	if productsFile != "" {
		lg.Info("Reading products file", zap.String("path", productsFile))
		var err error
		if data, err = os.ReadFile(productsFile); err != nil {
			return errors.Wrap(err, "read products file")
		}
	}

	products, err := catalog.Parse(data)
	if err != nil {
		return errors.Wrap(err, "parse products")
	}
	// Reject duplicate IDs before touching the database.
	if _, err := catalog.New(products); err != nil {
		return err
	}

	lg.Info("Upserting products", zap.Int("count", len(products)))
	repo := postgres.NewProductRepository(pool)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(upsertConcurrency)
	for _, p := range products {
		g.Go(func() error {
			if err := repo.Upsert(ctx, p); err != nil {
				return err
			}
			lg.Debug("Upserted product", zap.String("id", p.ID), zap.String("name", p.Name))
			return nil
		})
	}
	return g.Wait()
}

func resetCollections(ctx context.Context, lg *zap.Logger, pool *pgxpool.Pool) error {
	storage := postgres.NewStorage(pool)
	if err := storage.Set(ctx, string(cart.KeyCart), string(codec.EncodeCart(nil))); err != nil {
		return err
	}
	if err := storage.Set(ctx, string(cart.KeyFavorites), string(codec.EncodeFavorites(nil))); err != nil {
		return err
	}
	lg.Info("Persisted cart and favorites emptied")
	return nil
}
