// Package storefront is the surface UI code depends on: read access to the
// cart and favorites, every mutation, and explicit storage sync points.
package storefront

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/persist"
)

// Storefront wires a cart.Store to durable storage.
type Storefront struct {
	store  *cart.Store
	syncer *persist.Synchronizer
}

// Open constructs the Store, subscribes persistence to it and loads the
// persisted collections. It fails only if telemetry instruments cannot be
// created; unreadable or corrupt storage yields empty collections.
func Open(ctx context.Context, storage persist.Storage, opts persist.Options) (*Storefront, error) {
	store := cart.NewStore()
	syncer, err := persist.New(store, storage, opts)
	if err != nil {
		return nil, err
	}
	syncer.Load(ctx)

	return &Storefront{store: store, syncer: syncer}, nil
}

// Close detaches persistence. Mutations after Close are not persisted.
func (f *Storefront) Close() {
	f.syncer.Close()
}

// CartItems returns a copy of the cart.
func (f *Storefront) CartItems() []cart.CartItem { return f.store.CartItems() }

// Favorites returns a copy of the favorites.
func (f *Storefront) Favorites() []cart.FavoriteItem { return f.store.Favorites() }

// CartCount returns the total quantity of all cart entries.
func (f *Storefront) CartCount() int {
	n := 0
	for _, it := range f.store.CartItems() {
		n += it.Quantity
	}
	return n
}

// CartSubtotal returns the sum of price times quantity over the cart.
func (f *Storefront) CartSubtotal() decimal.Decimal {
	total := decimal.Zero
	for _, it := range f.store.CartItems() {
		total = total.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total
}

// FavoritesCount returns the number of favorites entries, duplicates included.
func (f *Storefront) FavoritesCount() int { return len(f.store.Favorites()) }

// Subscribe registers fn for every change; see cart.Store.Subscribe.
func (f *Storefront) Subscribe(fn cart.ChangeFunc) (unsubscribe func()) {
	return f.store.Subscribe(fn)
}

// PersistenceErr reports the outstanding write failure, if any. While it is
// non-nil the collections are usable but may not survive a restart.
func (f *Storefront) PersistenceErr() error { return f.syncer.Err() }

// AddToCart adds one unit of p to the cart.
func (f *Storefront) AddToCart(ctx context.Context, p product.Product) error {
	return f.store.AddToCart(ctx, p)
}

// RemoveFromCart deletes the cart entry for productID.
func (f *Storefront) RemoveFromCart(ctx context.Context, productID string) {
	f.store.RemoveFromCart(ctx, productID)
}

// IsInCart reports whether productID is in the cart.
func (f *Storefront) IsInCart(productID string) bool { return f.store.IsInCart(productID) }

// AddToFavorites appends p to the favorites.
func (f *Storefront) AddToFavorites(ctx context.Context, p product.Product) error {
	return f.store.AddToFavorites(ctx, p)
}

// RemoveFromFavorites deletes every favorites entry for productID.
func (f *Storefront) RemoveFromFavorites(ctx context.Context, productID string) {
	f.store.RemoveFromFavorites(ctx, productID)
}

// IsInFavorites reports whether productID is among the favorites.
func (f *Storefront) IsInFavorites(productID string) bool { return f.store.IsInFavorites(productID) }

// LoadFromStorage reloads both collections from storage.
func (f *Storefront) LoadFromStorage(ctx context.Context) { f.syncer.Load(ctx) }

// SaveToStorage writes both collections to storage.
func (f *Storefront) SaveToStorage(ctx context.Context) error { return f.syncer.Save(ctx) }
