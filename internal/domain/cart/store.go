// Package cart holds the shopping cart and favorites collections.
//
// A Store is constructed once per process and shared by reference with every
// consumer. All mutations are serialized by a single mutex; after each
// mutation the registered subscribers receive a copy of the changed
// collection, which is how the persistence layer mirrors the Store to durable
// storage before the mutating call returns.
package cart

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/product"
)

// ChangeFunc observes Store mutations. It runs synchronously on the
// goroutine that performed the mutation, after the Store lock is released.
// It may read the Store but must not mutate it.
type ChangeFunc func(ctx context.Context, c Change)

type subscriber struct {
	id uint64
	fn ChangeFunc
}

// Store is the authoritative in-memory cart and favorites state.
type Store struct {
	mu        sync.Mutex
	cart      []CartItem
	favorites []FavoriteItem
	version   uint64

	subsMu sync.RWMutex
	subs   []subscriber
	nextID uint64

	now func() time.Time
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{now: time.Now}
}

// Subscribe registers fn to be called after every mutation. Subscribers are
// called in registration order. The returned function removes fn.
func (s *Store) Subscribe(fn ChangeFunc) (unsubscribe func()) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscriber{id: id, fn: fn})

	return func() {
		s.subsMu.Lock()
		defer s.subsMu.Unlock()
		s.subs = slices.DeleteFunc(s.subs, func(sub subscriber) bool { return sub.id == id })
	}
}

// AddToCart increments the quantity of the cart entry for p.ID, or appends a
// new entry with quantity 1 when the product is not in the cart yet.
func (s *Store) AddToCart(ctx context.Context, p product.Product) error {
	if err := validateProduct(p); err != nil {
		return err
	}

	s.mu.Lock()
	if i := s.cartIndex(p.ID); i >= 0 {
		s.cart[i].Quantity++
	} else {
		s.cart = append(s.cart, CartItem{
			LineItem: s.lineItem(p),
			Quantity: 1,
		})
	}
	change := s.cartChangeLocked()
	s.mu.Unlock()

	s.notify(ctx, change)
	return nil
}

// RemoveFromCart deletes the cart entry for productID. Removing a product
// that is not in the cart is a no-op.
func (s *Store) RemoveFromCart(ctx context.Context, productID string) {
	s.mu.Lock()
	n := len(s.cart)
	s.cart = slices.DeleteFunc(s.cart, func(it CartItem) bool { return it.ProductID == productID })
	if len(s.cart) == n {
		s.mu.Unlock()
		return
	}
	change := s.cartChangeLocked()
	s.mu.Unlock()

	s.notify(ctx, change)
}

// IsInCart reports whether the cart holds an entry for productID.
func (s *Store) IsInCart(productID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cartIndex(productID) >= 0
}

// AddToFavorites appends a favorites entry for p. Favorites are not
// deduplicated: adding the same product twice yields two entries.
func (s *Store) AddToFavorites(ctx context.Context, p product.Product) error {
	if err := validateProduct(p); err != nil {
		return err
	}

	s.mu.Lock()
	s.favorites = append(s.favorites, FavoriteItem{LineItem: s.lineItem(p)})
	change := s.favoritesChangeLocked()
	s.mu.Unlock()

	s.notify(ctx, change)
	return nil
}

// RemoveFromFavorites deletes every favorites entry for productID.
func (s *Store) RemoveFromFavorites(ctx context.Context, productID string) {
	s.mu.Lock()
	n := len(s.favorites)
	s.favorites = slices.DeleteFunc(s.favorites, func(it FavoriteItem) bool { return it.ProductID == productID })
	if len(s.favorites) == n {
		s.mu.Unlock()
		return
	}
	change := s.favoritesChangeLocked()
	s.mu.Unlock()

	s.notify(ctx, change)
}

// IsInFavorites reports whether favorites hold at least one entry for productID.
func (s *Store) IsInFavorites(productID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.ContainsFunc(s.favorites, func(it FavoriteItem) bool { return it.ProductID == productID })
}

// CartItems returns a copy of the cart in insertion order.
func (s *Store) CartItems() []CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.cart)
}

// Favorites returns a copy of the favorites in insertion order.
func (s *Store) Favorites() []FavoriteItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.favorites)
}

// Snapshot returns a consistent copy of both collections.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Version:   s.version,
		Cart:      slices.Clone(s.cart),
		Favorites: slices.Clone(s.favorites),
	}
}

// ResetCart replaces the cart wholesale without notifying subscribers.
// Entries sharing a product ID are merged into the first one by summing
// quantities, and entries with a non-positive quantity are dropped.
func (s *Store) ResetCart(items []CartItem) {
	merged := make([]CartItem, 0, len(items))
	seen := make(map[string]int, len(items))
	for _, it := range items {
		if it.Quantity < 1 {
			continue
		}
		if i, ok := seen[it.ProductID]; ok {
			merged[i].Quantity += it.Quantity
			continue
		}
		seen[it.ProductID] = len(merged)
		merged = append(merged, it)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cart = merged
	s.version++
}

// ResetFavorites replaces the favorites wholesale without notifying subscribers.
func (s *Store) ResetFavorites(items []FavoriteItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.favorites = slices.Clone(items)
	s.version++
}

func (s *Store) notify(ctx context.Context, c Change) {
	s.subsMu.RLock()
	subs := slices.Clone(s.subs)
	s.subsMu.RUnlock()

	for _, sub := range subs {
		sub.fn(ctx, c)
	}
}

func (s *Store) cartChangeLocked() Change {
	s.version++
	return Change{Key: KeyCart, Version: s.version, Cart: slices.Clone(s.cart)}
}

func (s *Store) favoritesChangeLocked() Change {
	s.version++
	return Change{Key: KeyFavorites, Version: s.version, Favorites: slices.Clone(s.favorites)}
}

func (s *Store) cartIndex(productID string) int {
	return slices.IndexFunc(s.cart, func(it CartItem) bool { return it.ProductID == productID })
}

// lineItem snapshots p. AddedAt is stored in UTC without a monotonic reading
// so that it survives an encode/decode round trip unchanged.
func (s *Store) lineItem(p product.Product) LineItem {
	return LineItem{
		ID:        p.ID,
		ProductID: p.ID,
		Name:      p.Name,
		Price:     PlainPrice(p.Price),
		Image:     p.Image,
		AddedAt:   s.now().UTC(),
	}
}

// PlainPrice rewrites a positive exponent into the coefficient, so 5E2 is
// held as 500. Stored prices never carry a positive exponent, which keeps
// them identical across an encode/decode round trip.
func PlainPrice(d decimal.Decimal) decimal.Decimal {
	if d.Exponent() > 0 {
		return decimal.NewFromBigInt(d.BigInt(), 0)
	}
	return d
}

func validateProduct(p product.Product) error {
	switch {
	case p.ID == "":
		return &InvalidProductError{Reason: "empty id"}
	case p.Price.IsNegative():
		return &InvalidProductError{ProductID: p.ID, Reason: "negative price"}
	}
	return nil
}
