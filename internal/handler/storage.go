package handler

import (
	"net/http"

	"github.com/go-faster/jx"
)

// LoadStorage serves POST /api/storage/load: both collections are reloaded
// from durable storage and returned.
func (h *Handler) LoadStorage(w http.ResponseWriter, r *http.Request) {
	h.front.LoadFromStorage(r.Context())
	h.writeState(w, http.StatusOK)
}

// SaveStorage serves POST /api/storage/save: both collections are written
// to durable storage. A failed write answers 503 with the current state
// still held in memory.
func (h *Handler) SaveStorage(w http.ResponseWriter, r *http.Request) {
	if err := h.front.SaveToStorage(r.Context()); err != nil {
		logError(r.Context(), "Save to storage failed", err)
		h.writeState(w, http.StatusServiceUnavailable)
		return
	}
	h.writeState(w, http.StatusOK)
}

func (h *Handler) writeState(w http.ResponseWriter, status int) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("cart")
	h.encodeCart(&e)
	e.FieldStart("favorites")
	h.encodeFavorites(&e)
	e.ObjEnd()
	writeJSON(w, status, &e)
}
