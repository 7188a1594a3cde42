// Package validation checks request bodies before they reach a handler.
// Bodies are decoded once, validated with go-playground/validator and
// handed to the handler through the request context.
package validation

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"reflect"
	"strings"
	"sync/atomic"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/coral-p2025/coral/server/middleware"
)

// maxBodyBytes bounds a request body.
const maxBodyBytes = 1 << 20

type contextKey string

const (
	chatRequestKey    contextKey = "chat_request"
	previewRequestKey contextKey = "preview_request"
)

// ValidationErrorDetail describes one invalid field.
type ValidationErrorDetail struct {
	Field   string `json:"field"`           // The field that failed validation
	Message string `json:"message"`         // Human-readable error message
	Code    string `json:"code"`            // Machine-readable error code
	Value   string `json:"value,omitempty"` // The invalid value (if safe to return)
}

// APIError is the body of a rejected request.
type APIError struct {
	Type       string                  `json:"type"`
	Message    string                  `json:"message"`
	RequestID  string                  `json:"request_id"`
	Code       int                     `json:"code"`
	Details    []ValidationErrorDetail `json:"details,omitempty"`
	Suggestion string                  `json:"suggestion,omitempty"`
}

// Validator validates /v1/chat and /v1/preview bodies.
type Validator struct {
	validate  *validator.Validate
	counter   *TokenCounter
	maxTokens atomic.Int64
	logger    *zap.Logger
}

// New creates a validator bounding chat messages to maxTokens tokens.
// counter may be nil, which disables the token check.
func New(counter *TokenCounter, maxTokens int, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	v := &Validator{
		validate: validate,
		counter:  counter,
		logger:   logger,
	}
	v.maxTokens.Store(int64(maxTokens))
	return v
}

// NewWithDefaultEncoding creates a validator using DefaultEncoding. When the
// encoding cannot be loaded the token check is skipped and a warning logged.
func NewWithDefaultEncoding(maxTokens int, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	counter, err := NewTokenCounter(DefaultEncoding)
	if err != nil {
		logger.Warn("token counting disabled", zap.Error(err))
		counter = nil
	}
	return New(counter, maxTokens, logger)
}

// SetMaxTokens changes the message token limit. Zero disables the check.
func (v *Validator) SetMaxTokens(n int) {
	v.maxTokens.Store(int64(n))
}

// ChatRequestFrom returns the validated chat request stored by ValidateChat.
func ChatRequestFrom(ctx context.Context) (ChatRequest, bool) {
	req, ok := ctx.Value(chatRequestKey).(ChatRequest)
	return req, ok
}

// PreviewRequestFrom returns the validated preview request stored by
// ValidatePreview.
func PreviewRequestFrom(ctx context.Context) (PreviewRequest, bool) {
	req, ok := ctx.Value(previewRequestKey).(PreviewRequest)
	return req, ok
}

// ValidateChat validates POST /v1/chat bodies, including the token bound.
func (v *Validator) ValidateChat(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		if !v.decode(w, r, &req) {
			return
		}

		if v.counter != nil {
			limit := int(v.maxTokens.Load())
			if count, err := v.counter.ValidateTokens(req, limit); err != nil {
				v.logger.Debug("message over token limit",
					zap.String("request_id", middleware.GetRequestID(r.Context())),
					zap.Int("tokens", count),
					zap.Int("limit", limit),
				)
				sendError(w, r, "Token limit exceeded", []ValidationErrorDetail{{
					Field:   "message",
					Message: err.Error(),
					Code:    "token_limit_exceeded",
					Value:   fmt.Sprintf("%d", limit),
				}}, http.StatusUnprocessableEntity)
				return
			}
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), chatRequestKey, req)))
	})
}

// ValidatePreview validates POST /v1/preview bodies.
func (v *Validator) ValidatePreview(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req PreviewRequest
		if !v.decode(w, r, &req) {
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), previewRequestKey, req)))
	})
}

// decode reads and validates the JSON body into dst. It writes the error
// response and returns false when the body is rejected.
func (v *Validator) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	ct := r.Header.Get("Content-Type")
	if mediaType, _, err := mime.ParseMediaType(ct); err != nil || mediaType != "application/json" {
		sendError(w, r, "Invalid or missing Content-Type header", []ValidationErrorDetail{{
			Field:   "header:Content-Type",
			Message: "Content-Type must be application/json",
			Code:    "invalid_content_type",
			Value:   ct,
		}}, http.StatusBadRequest)
		return false
	}

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		sendError(w, r, "Invalid request format", []ValidationErrorDetail{{
			Field:   "body",
			Message: err.Error(),
			Code:    "invalid_json",
		}}, http.StatusBadRequest)
		return false
	}

	if err := v.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !asValidationErrors(err, &verrs) {
			sendError(w, r, "Request validation failed", nil, http.StatusUnprocessableEntity)
			return false
		}
		details := make([]ValidationErrorDetail, 0, len(verrs))
		for _, fe := range verrs {
			details = append(details, ValidationErrorDetail{
				Field:   fieldPath(fe),
				Message: fieldMessage(fe),
				Code:    fe.Tag() + "_validation_failed",
				Value:   fmt.Sprintf("%v", fe.Value()),
			})
		}
		sendError(w, r, "Request validation failed", details, http.StatusUnprocessableEntity)
		return false
	}
	return true
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	verrs, ok := err.(validator.ValidationErrors)
	if ok {
		*target = verrs
	}
	return ok
}

// fieldPath drops the struct name from the namespace:
// "ChatRequest.tools[0].name" becomes "tools[0].name".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("field '%s' is required", fe.Field())
	case "max":
		return fmt.Sprintf("field '%s' must be at most %s long", fe.Field(), fe.Param())
	case "gte":
		return fmt.Sprintf("field '%s' must be at least %s", fe.Field(), fe.Param())
	case "lte":
		return fmt.Sprintf("field '%s' must be at most %s", fe.Field(), fe.Param())
	}
	return fmt.Sprintf("validation failed: %s", fe.Error())
}

func sendError(w http.ResponseWriter, r *http.Request, message string, details []ValidationErrorDetail, code int) {
	apiError := APIError{
		Type:      "validation_error",
		Message:   message,
		RequestID: middleware.GetRequestID(r.Context()),
		Code:      code,
		Details:   details,
	}

	switch code {
	case http.StatusBadRequest:
		apiError.Suggestion = "Send a JSON body with Content-Type: application/json"
	case http.StatusUnprocessableEntity:
		apiError.Suggestion = "The request format is correct but the content is invalid"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(apiError)
}
