package persist

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/codec"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/product"
)

// --- Mock implementations ---

type mockStorage struct {
	mu       sync.Mutex
	values   map[string]string
	setCalls int
	failSets int // number of upcoming Set calls to fail; -1 fails forever
	getErr   error
}

func newMockStorage() *mockStorage {
	return &mockStorage{values: make(map[string]string)}
}

func (m *mockStorage) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return "", false, m.getErr
	}
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *mockStorage) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setCalls++
	if m.failSets != 0 {
		if m.failSets > 0 {
			m.failSets--
		}
		return errors.New("quota exceeded")
	}
	m.values[key] = value
	return nil
}

func (m *mockStorage) value(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[key]
}

// --- Helpers ---

func newTestProduct(id, name, price string) product.Product {
	return product.Product{
		ID:    id,
		Name:  name,
		Price: decimal.RequireFromString(price),
		Image: name + ".jpg",
	}
}

func newTestSync(t *testing.T, storage Storage) (*cart.Store, *Synchronizer) {
	t.Helper()
	store := cart.NewStore()
	s, err := New(store, storage, Options{RetryDelay: time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return store, s
}

// --- Tests ---

func TestWriteThrough(t *testing.T) {
	storage := newMockStorage()
	store, _ := newTestSync(t, storage)
	ctx := context.Background()

	require.NoError(t, store.AddToCart(ctx, newTestProduct("1", "Headphones", "199.99")))

	// The write happened before AddToCart returned.
	items, err := codec.DecodeCart([]byte(storage.value("cart")))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "1", items[0].ProductID)
	assert.Equal(t, 1, items[0].Quantity)
	assert.Empty(t, storage.value("favorites"), "only the changed collection is written")

	require.NoError(t, store.AddToCart(ctx, newTestProduct("1", "Headphones", "199.99")))
	items, err = codec.DecodeCart([]byte(storage.value("cart")))
	require.NoError(t, err)
	assert.Equal(t, 2, items[0].Quantity)

	require.NoError(t, store.AddToFavorites(ctx, newTestProduct("2", "Shoes", "59.0")))
	favs, err := codec.DecodeFavorites([]byte(storage.value("favorites")))
	require.NoError(t, err)
	assert.Len(t, favs, 1)

	store.RemoveFromFavorites(ctx, "2")
	assert.Equal(t, "[]", storage.value("favorites"))
}

func TestWriteThrough_StoredItemsDecodeIdentically(t *testing.T) {
	storage := newMockStorage()
	store, _ := newTestSync(t, storage)
	ctx := context.Background()

	p := newTestProduct("1", "Headphones", "0")
	p.Price = decimal.New(5, 2)
	require.NoError(t, store.AddToCart(ctx, p))
	require.NoError(t, store.AddToCart(ctx, newTestProduct("2", "Shoes", "59.0")))

	items, err := codec.DecodeCart([]byte(storage.value("cart")))
	require.NoError(t, err)
	assert.Equal(t, store.CartItems(), items)
}

func TestSurvivesRestart(t *testing.T) {
	storage := newMockStorage()
	ctx := context.Background()

	store, _ := newTestSync(t, storage)
	require.NoError(t, store.AddToCart(ctx, newTestProduct("1", "Headphones", "199.99")))
	require.NoError(t, store.AddToCart(ctx, newTestProduct("2", "Shoes", "59.0")))
	require.NoError(t, store.AddToCart(ctx, newTestProduct("1", "Headphones", "199.99")))
	require.NoError(t, store.AddToFavorites(ctx, newTestProduct("3", "Hat", "15.00")))
	require.NoError(t, store.AddToFavorites(ctx, newTestProduct("3", "Hat", "15.00")))
	before := store.Snapshot()

	restarted, s := newTestSync(t, storage)
	s.Load(ctx)
	after := restarted.Snapshot()

	require.Len(t, after.Cart, len(before.Cart))
	for i := range before.Cart {
		assert.Equal(t, before.Cart[i].ProductID, after.Cart[i].ProductID)
		assert.Equal(t, before.Cart[i].Quantity, after.Cart[i].Quantity)
		assert.True(t, before.Cart[i].Price.Equal(after.Cart[i].Price))
		assert.True(t, before.Cart[i].AddedAt.Equal(after.Cart[i].AddedAt))
	}
	require.Len(t, after.Favorites, 2)
	assert.Equal(t, "3", after.Favorites[1].ProductID)
}

func TestLoad_MalformedFallsBackToEmpty(t *testing.T) {
	storage := newMockStorage()
	store, s := newTestSync(t, storage)
	require.NoError(t, store.AddToCart(context.Background(), newTestProduct("9", "Stale", "1")))

	storage.values["cart"] = "{not json"
	storage.values["favorites"] = string(codec.EncodeFavorites([]cart.FavoriteItem{{
		LineItem: cart.LineItem{
			ID: "2", ProductID: "2", Name: "Shoes", Price: decimal.NewFromInt(59),
			Image: "s.jpg", AddedAt: time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC),
		},
	}}))

	s.Load(context.Background())

	assert.Empty(t, store.CartItems())
	require.Len(t, store.Favorites(), 1)
	assert.Equal(t, "Shoes", store.Favorites()[0].Name)
	assert.NoError(t, s.Err(), "decode failures are not persistence failures")
}

func TestLoad_TrailingGarbageFallsBackToEmpty(t *testing.T) {
	storage := newMockStorage()
	store, s := newTestSync(t, storage)
	ctx := context.Background()
	require.NoError(t, store.AddToCart(ctx, newTestProduct("1", "Headphones", "199.99")))
	require.NoError(t, store.AddToFavorites(ctx, newTestProduct("2", "Shoes", "59.0")))
	require.NotEmpty(t, storage.value("cart"))
	require.NotEmpty(t, storage.value("favorites"))

	storage.mu.Lock()
	storage.values["cart"] += "garbage"
	storage.values["favorites"] += "]"
	storage.mu.Unlock()

	s.Load(ctx)

	assert.Empty(t, store.CartItems())
	assert.Empty(t, store.Favorites())
	assert.NoError(t, s.Err())
}

func TestLoad_AbsentKeysLeaveCollections(t *testing.T) {
	storage := newMockStorage()
	store, s := newTestSync(t, storage)
	require.NoError(t, store.AddToFavorites(context.Background(), newTestProduct("2", "Shoes", "59.0")))
	storage.values = map[string]string{"cart": ""}

	s.Load(context.Background())

	assert.Empty(t, store.CartItems())
	assert.Len(t, store.Favorites(), 1)
}

func TestLoad_ReadErrorKeepsCollections(t *testing.T) {
	storage := newMockStorage()
	store, s := newTestSync(t, storage)
	require.NoError(t, store.AddToCart(context.Background(), newTestProduct("1", "Headphones", "199.99")))

	storage.getErr = errors.New("connection refused")
	s.Load(context.Background())

	assert.Len(t, store.CartItems(), 1)
}

func TestWrite_RetriesOnce(t *testing.T) {
	storage := newMockStorage()
	storage.failSets = 1
	store, s := newTestSync(t, storage)

	require.NoError(t, store.AddToCart(context.Background(), newTestProduct("1", "Headphones", "199.99")))

	assert.Equal(t, 2, storage.setCalls)
	assert.NoError(t, s.Err())
	assert.NotEmpty(t, storage.value("cart"))
}

func TestWrite_FailureDegradesButKeepsState(t *testing.T) {
	storage := newMockStorage()
	storage.failSets = -1
	store, s := newTestSync(t, storage)
	ctx := context.Background()

	require.NoError(t, store.AddToCart(ctx, newTestProduct("1", "Headphones", "199.99")))

	assert.Equal(t, 2, storage.setCalls, "one attempt plus one retry")
	require.Error(t, s.Err())
	assert.Contains(t, s.Err().Error(), "write cart")
	assert.True(t, store.IsInCart("1"), "in-memory state survives write failure")

	// A later successful write clears the degraded signal.
	storage.mu.Lock()
	storage.failSets = 0
	storage.mu.Unlock()
	require.NoError(t, store.AddToCart(ctx, newTestProduct("1", "Headphones", "199.99")))
	assert.NoError(t, s.Err())

	items, err := codec.DecodeCart([]byte(storage.value("cart")))
	require.NoError(t, err)
	assert.Equal(t, 2, items[0].Quantity)
}

func TestWrite_SkipsStaleVersions(t *testing.T) {
	storage := newMockStorage()
	_, s := newTestSync(t, storage)
	ctx := context.Background()

	require.NoError(t, s.write(ctx, cart.KeyCart, 5, []byte("[]")))
	require.NoError(t, s.write(ctx, cart.KeyCart, 3, []byte("stale")))
	assert.Equal(t, "[]", storage.value("cart"))

	// Versions are tracked per collection.
	require.NoError(t, s.write(ctx, cart.KeyFavorites, 1, []byte("[]")))
	assert.Equal(t, "[]", storage.value("favorites"))
}

func TestSave_WritesBothCollections(t *testing.T) {
	storage := newMockStorage()
	store, s := newTestSync(t, storage)
	store.ResetCart([]cart.CartItem{{
		LineItem: cart.LineItem{ID: "1", ProductID: "1", Name: "Headphones", Price: decimal.NewFromInt(1)},
		Quantity: 4,
	}})

	require.NoError(t, s.Save(context.Background()))

	items, err := codec.DecodeCart([]byte(storage.value("cart")))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 4, items[0].Quantity)
	assert.Equal(t, "[]", storage.value("favorites"))
}

func TestSave_ReturnsWriteError(t *testing.T) {
	storage := newMockStorage()
	storage.failSets = -1
	_, s := newTestSync(t, storage)

	err := s.Save(context.Background())
	require.Error(t, err)
	assert.Equal(t, err, s.Err())
}

func TestConcurrentMutationsPersistLatest(t *testing.T) {
	storage := newMockStorage()
	store, _ := newTestSync(t, storage)
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, store.AddToCart(ctx, newTestProduct("1", "Headphones", "199.99")))
		}()
	}
	wg.Wait()

	items, err := codec.DecodeCart([]byte(storage.value("cart")))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 100, items[0].Quantity)
}
