// Package errors provides the structured error responses used by the coral
// HTTP surface, with request ID correlation and zap logging.
//
// Handlers write errors through WriteError or one of the shorthands:
//
//	errors.ErrorWithType(w, "Invalid body", errors.BadRequestError, http.StatusBadRequest)
//
// or build a typed error with the constructors in types.go:
//
//	err := errors.NewValidationError(requestID, "Invalid request", map[string]interface{}{
//	    "field": "message",
//	    "error": "required",
//	})
//
// Failures of the reply pipeline itself are not reported through this
// package: they are folded into the reply result so the caller always gets
// something to show the user.
package errors

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// DefaultLogger is the package-wide logger. It starts as a production
// logger and is replaced at startup with SetLogger.
var DefaultLogger *zap.Logger

func init() {
	var err error
	DefaultLogger, err = zap.NewProduction()
	if err != nil {
		DefaultLogger = zap.NewNop()
	}
}

// SetLogger installs logger as DefaultLogger. A nil logger is ignored.
func SetLogger(logger *zap.Logger) {
	if logger != nil {
		DefaultLogger = logger
	}
}

// ErrorType categorizes an error for API clients.
type ErrorType string

const (
	// ValidationError is a request that parsed but failed validation
	ValidationError ErrorType = "validation_error"

	// InternalError is an unexpected server failure
	InternalError ErrorType = "internal_error"

	// ConfigError is an invalid or unloadable configuration
	ConfigError ErrorType = "config_error"

	// UpstreamError is a failure of the remote chat backend
	UpstreamError ErrorType = "upstream_error"

	// RateLimitError is a client over its request budget
	RateLimitError ErrorType = "rate_limit_error"

	// UnavailableError is a request rejected because the server is saturated
	UnavailableError ErrorType = "unavailable"

	// BadRequestError is a malformed request
	BadRequestError ErrorType = "bad_request"

	// NotFoundError is a missing resource
	NotFoundError ErrorType = "not_found"

	// SignatureError is a Slack request whose signature does not verify
	SignatureError ErrorType = "invalid_signature"
)

// CoralError is an error with the context needed to render it as a JSON
// response and to log it.
type CoralError struct {
	// Type categorizes the error for client handling
	Type ErrorType `json:"type"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Code is the HTTP status code (not exposed in JSON)
	Code int `json:"-"`

	// RequestID links the error to a specific request
	RequestID string `json:"request_id"`

	// Details contains additional error context
	Details map[string]interface{} `json:"details,omitempty"`

	err error
}

func (e *CoralError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error.
func (e *CoralError) Unwrap() error {
	return e.err
}

// Is matches any *CoralError of the same Type.
func (e *CoralError) Is(target error) bool {
	t, ok := target.(*CoralError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WriteError writes err as a JSON response with err.Code as the status.
func WriteError(w http.ResponseWriter, err *CoralError) {
	if err.RequestID == "" {
		err.RequestID = w.Header().Get("X-Request-ID")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Code)
	json.NewEncoder(w).Encode(err)
}

// Error is a drop-in replacement for http.Error that writes an
// InternalError-typed JSON body.
func Error(w http.ResponseWriter, message string, code int) {
	ErrorWithType(w, message, InternalError, code)
}

// ErrorWithType is like Error but lets the caller pick the error type.
func ErrorWithType(w http.ResponseWriter, message string, errType ErrorType, code int) {
	WriteError(w, &CoralError{
		Type:      errType,
		Message:   message,
		Code:      code,
		RequestID: w.Header().Get("X-Request-ID"),
	})
}
