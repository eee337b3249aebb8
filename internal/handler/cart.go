package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/codec"
)

// GetCart serves GET /api/cart.
func (h *Handler) GetCart(w http.ResponseWriter, _ *http.Request) {
	h.writeCart(w, http.StatusOK)
}

// AddToCart serves POST /api/cart/{productId}: one more unit of the
// catalog product goes into the cart.
func (h *Handler) AddToCart(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookup(w, r, r.PathValue("productId"))
	if !ok {
		return
	}
	if err := h.front.AddToCart(r.Context(), p); err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeCart(w, http.StatusOK)
}

// RemoveFromCart serves DELETE /api/cart/{productId}. Removing a product
// that is not in the cart succeeds.
func (h *Handler) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	h.front.RemoveFromCart(r.Context(), r.PathValue("productId"))
	h.writeCart(w, http.StatusOK)
}

// GetFavorites serves GET /api/favorites.
func (h *Handler) GetFavorites(w http.ResponseWriter, _ *http.Request) {
	h.writeFavorites(w, http.StatusOK)
}

// AddToFavorites serves POST /api/favorites/{productId}.
func (h *Handler) AddToFavorites(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookup(w, r, r.PathValue("productId"))
	if !ok {
		return
	}
	if err := h.front.AddToFavorites(r.Context(), p); err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeFavorites(w, http.StatusOK)
}

// RemoveFromFavorites serves DELETE /api/favorites/{productId}.
func (h *Handler) RemoveFromFavorites(w http.ResponseWriter, r *http.Request) {
	h.front.RemoveFromFavorites(r.Context(), r.PathValue("productId"))
	h.writeFavorites(w, http.StatusOK)
}

func (h *Handler) writeCart(w http.ResponseWriter, status int) {
	var e jx.Encoder
	h.encodeCart(&e)
	writeJSON(w, status, &e)
}

func (h *Handler) writeFavorites(w http.ResponseWriter, status int) {
	var e jx.Encoder
	h.encodeFavorites(&e)
	writeJSON(w, status, &e)
}

// encodeCart writes {"items":[...],"count":n,"subtotal":x,"persistenceDegraded":b}.
// Items use the persisted record layout.
func (h *Handler) encodeCart(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("items")
	e.Raw(codec.EncodeCart(h.front.CartItems()))
	e.FieldStart("count")
	e.Int(h.front.CartCount())
	e.FieldStart("subtotal")
	codec.EncodePrice(e, h.front.CartSubtotal())
	h.encodeDegraded(e)
	e.ObjEnd()
}

func (h *Handler) encodeFavorites(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("items")
	e.Raw(codec.EncodeFavorites(h.front.Favorites()))
	e.FieldStart("count")
	e.Int(h.front.FavoritesCount())
	h.encodeDegraded(e)
	e.ObjEnd()
}

func (h *Handler) encodeDegraded(e *jx.Encoder) {
	e.FieldStart("persistenceDegraded")
	e.Bool(h.front.PersistenceErr() != nil)
}
