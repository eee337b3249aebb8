package cart

import (
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Key names a persisted collection.
type Key string

const (
	// KeyCart is the storage key of the cart collection.
	KeyCart Key = "cart"
	// KeyFavorites is the storage key of the favorites collection.
	KeyFavorites Key = "favorites"
)

// ErrInvalidProduct is matched by every *InvalidProductError.
var ErrInvalidProduct = errors.New("invalid product")

// InvalidProductError indicates a product snapshot that cannot be stored.
type InvalidProductError struct {
	ProductID string
	Reason    string
}

func (e *InvalidProductError) Error() string {
	return fmt.Sprintf("invalid product %q: %s", e.ProductID, e.Reason)
}

// Is reports whether target is ErrInvalidProduct.
func (e *InvalidProductError) Is(target error) bool {
	return target == ErrInvalidProduct
}

// LineItem is the product snapshot shared by cart and favorite entries.
// Name, Price and Image are copied at insertion and never refreshed.
type LineItem struct {
	ID        string
	ProductID string
	Name      string
	Price     decimal.Decimal
	Image     string
	AddedAt   time.Time
}

// CartItem is a cart entry. Quantity is always at least 1.
// Size and Color are empty when not set.
type CartItem struct {
	LineItem
	Quantity int
	Size     string
	Color    string
}

// FavoriteItem is a favorites entry. Notes is empty when not set.
type FavoriteItem struct {
	LineItem
	Notes string
}

// Change describes a mutation of one collection. Exactly one of Cart or
// Favorites is meaningful, selected by Key. The slices are copies owned by
// the receiver.
type Change struct {
	Key       Key
	Version   uint64
	Cart      []CartItem
	Favorites []FavoriteItem
}

// Snapshot is a consistent copy of both collections.
type Snapshot struct {
	Version   uint64
	Cart      []CartItem
	Favorites []FavoriteItem
}
