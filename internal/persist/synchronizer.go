// Package persist mirrors a cart.Store to durable storage.
//
// The Synchronizer subscribes to the Store once at construction. Every
// mutation re-encodes the whole changed collection and writes it through to
// Storage before the mutating call returns. At startup Load seeds the Store
// from Storage; corrupt persisted data yields an empty collection instead of
// an error.
package persist

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/codec"
	"github.com/xenking/storefront/internal/domain/cart"
)

const instrumentationName = "github.com/xenking/storefront/internal/persist"

// Options configures a Synchronizer. Zero values select defaults.
type Options struct {
	Logger         *zap.Logger
	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
	// RetryDelay is the pause before the single retry of a failed write.
	RetryDelay time.Duration
}

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.MeterProvider == nil {
		o.MeterProvider = metricnoop.NewMeterProvider()
	}
	if o.TracerProvider == nil {
		o.TracerProvider = tracenoop.NewTracerProvider()
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 50 * time.Millisecond
	}
}

// Synchronizer keeps Storage in step with a cart.Store.
type Synchronizer struct {
	store      *cart.Store
	storage    Storage
	lg         *zap.Logger
	tracer     trace.Tracer
	retryDelay time.Duration

	// mu serializes writes. seen holds the newest version attempted per key;
	// older changes arriving late are skipped so storage never regresses.
	mu   sync.Mutex
	seen map[cart.Key]uint64

	errMu  sync.Mutex
	failed map[cart.Key]error

	writes         metric.Int64Counter
	writeFailures  metric.Int64Counter
	decodeFailures metric.Int64Counter

	unsubscribe func()
}

// New creates a Synchronizer and subscribes it to store.
func New(store *cart.Store, storage Storage, opts Options) (*Synchronizer, error) {
	opts.setDefaults()

	meter := opts.MeterProvider.Meter(instrumentationName)
	s := &Synchronizer{
		store:      store,
		storage:    storage,
		lg:         opts.Logger,
		tracer:     opts.TracerProvider.Tracer(instrumentationName),
		retryDelay: opts.RetryDelay,
		seen:       make(map[cart.Key]uint64, 2),
		failed:     make(map[cart.Key]error, 2),
	}

	var err error
	if s.writes, err = meter.Int64Counter("storefront.persist.writes",
		metric.WithDescription("Collections written to durable storage"),
	); err != nil {
		return nil, errors.Wrap(err, "writes counter")
	}
	if s.writeFailures, err = meter.Int64Counter("storefront.persist.write_failures",
		metric.WithDescription("Collection writes that failed after retry"),
	); err != nil {
		return nil, errors.Wrap(err, "write failures counter")
	}
	if s.decodeFailures, err = meter.Int64Counter("storefront.persist.decode_failures",
		metric.WithDescription("Persisted collections discarded as malformed"),
	); err != nil {
		return nil, errors.Wrap(err, "decode failures counter")
	}

	s.unsubscribe = store.Subscribe(s.onChange)
	return s, nil
}

// Close stops observing the Store.
func (s *Synchronizer) Close() {
	s.unsubscribe()
}

// Load replaces the Store collections with the persisted ones. Absent keys
// leave the collection untouched. Malformed data resets the collection to
// empty and is logged, never returned.
func (s *Synchronizer) Load(ctx context.Context) {
	if data, ok := s.read(ctx, cart.KeyCart); ok {
		items, err := codec.DecodeCart(data)
		if err != nil {
			s.discard(ctx, cart.KeyCart, err)
		}
		s.store.ResetCart(items)
	}

	if data, ok := s.read(ctx, cart.KeyFavorites); ok {
		items, err := codec.DecodeFavorites(data)
		if err != nil {
			s.discard(ctx, cart.KeyFavorites, err)
		}
		s.store.ResetFavorites(items)
	}
}

// Save writes both collections from the current Store state.
func (s *Synchronizer) Save(ctx context.Context) error {
	snap := s.store.Snapshot()
	if err := s.write(ctx, cart.KeyCart, snap.Version, codec.EncodeCart(snap.Cart)); err != nil {
		return err
	}
	return s.write(ctx, cart.KeyFavorites, snap.Version, codec.EncodeFavorites(snap.Favorites))
}

// Err returns the last write failure that has not been cleared by a later
// successful write of the same collection, or nil when persistence is healthy.
func (s *Synchronizer) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()

	for _, key := range []cart.Key{cart.KeyCart, cart.KeyFavorites} {
		if err := s.failed[key]; err != nil {
			return err
		}
	}
	return nil
}

func (s *Synchronizer) onChange(ctx context.Context, c cart.Change) {
	var data []byte
	switch c.Key {
	case cart.KeyCart:
		data = codec.EncodeCart(c.Cart)
	case cart.KeyFavorites:
		data = codec.EncodeFavorites(c.Favorites)
	default:
		s.lg.Warn("Ignoring change of unknown collection", zap.String("key", string(c.Key)))
		return
	}

	// Failures are recorded in Err; the mutation itself always succeeds.
	_ = s.write(ctx, c.Key, c.Version, data)
}

// write stores data under key, retrying once. In-memory state is never
// touched here, so a failed write only degrades durability.
func (s *Synchronizer) write(ctx context.Context, key cart.Key, version uint64, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if version < s.seen[key] {
		return nil
	}
	s.seen[key] = version

	ctx, span := s.tracer.Start(ctx, "persist.write", trace.WithAttributes(
		attribute.String("storefront.key", string(key)),
		attribute.Int("storefront.bytes", len(data)),
	))
	defer span.End()

	attrs := metric.WithAttributes(attribute.String("key", string(key)))
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, s.storage.Set(ctx, string(key), string(data))
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(s.retryDelay)),
		backoff.WithMaxTries(2),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.lg.Warn("Storage write failed, retrying",
				zap.String("key", string(key)),
				zap.Duration("delay", next),
				zap.Error(err),
			)
		}),
	)
	if err != nil {
		err = errors.Wrapf(err, "write %s", key)
		span.RecordError(err)
		span.SetStatus(codes.Error, "write failed")
		s.writeFailures.Add(ctx, 1, attrs)
		s.setFailed(key, err)
		s.lg.Error("Persistence degraded, collection kept in memory only",
			zap.String("key", string(key)),
			zap.Error(err),
		)
		return err
	}

	s.writes.Add(ctx, 1, attrs)
	s.setFailed(key, nil)
	return nil
}

func (s *Synchronizer) read(ctx context.Context, key cart.Key) ([]byte, bool) {
	v, ok, err := s.storage.Get(ctx, string(key))
	if err != nil {
		s.lg.Error("Storage read failed, keeping current collection",
			zap.String("key", string(key)),
			zap.Error(err),
		)
		return nil, false
	}
	if !ok || v == "" {
		return nil, false
	}
	return []byte(v), true
}

func (s *Synchronizer) discard(ctx context.Context, key cart.Key, err error) {
	s.decodeFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("key", string(key))))
	s.lg.Warn("Discarding malformed persisted collection",
		zap.String("key", string(key)),
		zap.Error(err),
	)
}

func (s *Synchronizer) setFailed(key cart.Key, err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	s.failed[key] = err
}
