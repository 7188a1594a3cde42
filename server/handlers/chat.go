// Package handlers provides the HTTP handlers of the coral server.
//
// Bodies reach the handlers already decoded and validated by the
// validation middleware; handlers turn them into pipeline calls and write
// JSON responses. Errors are written with the errors package so every
// failure carries the request id.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/coral-p2025/coral/chat"
	"github.com/coral-p2025/coral/errors"
	"github.com/coral-p2025/coral/server/middleware"
	"github.com/coral-p2025/coral/server/processing"
	"github.com/coral-p2025/coral/server/validation"
)

// Replier produces a reply for a message.
type Replier interface {
	GetReply(ctx context.Context, args processing.ReplyArgs) chat.ReplyResult
}

// ChatHandler serves POST /v1/chat, the reply pipeline for the browser chat
// UI. A failed reply is still a 200: the result's error_message is what the
// UI shows in place of the reply.
type ChatHandler struct {
	replier Replier
	logger  *zap.Logger
}

// NewChatHandler creates a chat handler.
func NewChatHandler(replier Replier, logger *zap.Logger) *ChatHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatHandler{replier: replier, logger: logger}
}

// ServeHTTP implements http.Handler.
func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	req, ok := validation.ChatRequestFrom(r.Context())
	if !ok {
		errors.WriteError(w, errors.NewBadRequestError(requestID, "Missing chat request", nil))
		return
	}

	result := h.replier.GetReply(r.Context(), processing.ReplyArgs{
		Event:          processing.Text(req.Message),
		Tools:          req.ChatTools(),
		Model:          req.Model,
		Temperature:    req.Temperature,
		Preamble:       req.Preamble,
		ConversationID: req.ConversationID,
		IsFirstMessage: req.ConversationID == "",
		CitationStyle:  chat.CitationMarkdown,
	})

	h.logger.Debug("chat reply",
		zap.String("request_id", requestID),
		zap.String("conversation_id", req.ConversationID),
		zap.Bool("failed", result.Failed()),
	)
	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
