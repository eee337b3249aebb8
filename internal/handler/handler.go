// Package handler exposes the storefront over HTTP for the demo UI.
package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/storefront"
)

// Handler serves the catalog, cart, favorites and storage routes.
type Handler struct {
	products product.Repository
	front    *storefront.Storefront
}

// New returns a Handler backed by products and front.
func New(products product.Repository, front *storefront.Storefront) *Handler {
	return &Handler{products: products, front: front}
}

// Register mounts every route on mux under /api.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/products", h.ListProducts)
	mux.HandleFunc("GET /api/products/{id}", h.GetProduct)

	mux.HandleFunc("GET /api/cart", h.GetCart)
	mux.HandleFunc("POST /api/cart/{productId}", h.AddToCart)
	mux.HandleFunc("DELETE /api/cart/{productId}", h.RemoveFromCart)

	mux.HandleFunc("GET /api/favorites", h.GetFavorites)
	mux.HandleFunc("POST /api/favorites/{productId}", h.AddToFavorites)
	mux.HandleFunc("DELETE /api/favorites/{productId}", h.RemoveFromFavorites)

	mux.HandleFunc("POST /api/storage/load", h.LoadStorage)
	mux.HandleFunc("POST /api/storage/save", h.SaveStorage)
}

// lookup resolves a product snapshot, writing the error response itself
// when it returns false.
func (h *Handler) lookup(w http.ResponseWriter, r *http.Request, id string) (product.Product, bool) {
	p, err := h.products.GetByID(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return product.Product{}, false
	}
	return *p, true
}

// fail maps domain errors to status codes.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var invalid *cart.InvalidProductError
	switch {
	case errors.Is(err, product.ErrNotFound):
		writeError(w, http.StatusNotFound, "product not found")
	case errors.As(err, &invalid):
		writeError(w, http.StatusUnprocessableEntity, invalid.Error())
	default:
		logError(r.Context(), "Request failed", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func logError(ctx context.Context, msg string, err error) {
	zctx.From(ctx).Error(msg, zap.Error(err))
}

func writeJSON(w http.ResponseWriter, status int, e *jx.Encoder) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("code")
	e.Int(status)
	e.FieldStart("message")
	e.Str(msg)
	e.ObjEnd()
	writeJSON(w, status, &e)
}
