package handlers

import (
	"net/http"

	"github.com/coral-p2025/coral/errors"
	"github.com/coral-p2025/coral/server/middleware"
	"github.com/coral-p2025/coral/server/validation"
)

// Transformer rewrites model output for display.
type Transformer interface {
	Transform(content string) string
}

// PreviewResponse is the body returned by POST /v1/preview.
type PreviewResponse struct {
	Content string `json:"content"`
}

// PreviewHandler serves POST /v1/preview. It replaces the first html code
// block of the content with an iframe pointing at the registered document.
type PreviewHandler struct {
	transformer Transformer
}

// NewPreviewHandler creates a preview handler.
func NewPreviewHandler(t Transformer) *PreviewHandler {
	return &PreviewHandler{transformer: t}
}

// ServeHTTP implements http.Handler.
func (h *PreviewHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req, ok := validation.PreviewRequestFrom(r.Context())
	if !ok {
		errors.WriteError(w, errors.NewBadRequestError(middleware.GetRequestID(r.Context()), "Missing preview request", nil))
		return
	}
	writeJSON(w, http.StatusOK, PreviewResponse{Content: h.transformer.Transform(req.Content)})
}
