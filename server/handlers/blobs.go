package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/coral-p2025/coral/errors"
	"github.com/coral-p2025/coral/server/middleware"
)

// BlobStore holds registered sandbox documents.
type BlobStore interface {
	Get(id string) (string, bool)
	Revoke(id string) bool
}

// sandboxPolicy lets the document run its own scripts but keeps it in an
// opaque origin, away from the embedding page.
const sandboxPolicy = "sandbox allow-scripts; default-src 'none'; img-src * data:; style-src 'unsafe-inline'; script-src 'unsafe-inline'"

// BlobHandler serves and revokes sandbox documents by id.
type BlobHandler struct {
	store BlobStore
}

// NewBlobHandler creates a blob handler.
func NewBlobHandler(store BlobStore) *BlobHandler {
	return &BlobHandler{store: store}
}

// Get serves GET {blob_path}/{id}.
func (h *BlobHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, ok := h.store.Get(id)
	if !ok {
		errors.WriteError(w, errors.NewNotFoundError(middleware.GetRequestID(r.Context()), "Document not found"))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Security-Policy", sandboxPolicy)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(doc))
}

// Delete serves DELETE {blob_path}/{id}. Callers revoke documents they no
// longer display; nothing expires them otherwise.
func (h *BlobHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if !h.store.Revoke(chi.URLParam(r, "id")) {
		errors.WriteError(w, errors.NewNotFoundError(middleware.GetRequestID(r.Context()), "Document not found"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
