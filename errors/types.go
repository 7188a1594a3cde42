package errors

import (
	"net/http"
)

// NewError creates a CoralError with every field under caller control.
// Prefer the specialized constructors below.
func NewError(errType ErrorType, message string, code int, requestID string, details map[string]interface{}, err error) *CoralError {
	return &CoralError{
		Type:      errType,
		Message:   message,
		Code:      code,
		RequestID: requestID,
		Details:   details,
		err:       err,
	}
}

// NewValidationError reports a request body that failed validation.
//
// Example:
//
//	err := NewValidationError("req_123", "Invalid request", map[string]interface{}{
//	    "field": "message",
//	    "error": "must not be empty",
//	})
func NewValidationError(requestID, message string, validationDetails map[string]interface{}) *CoralError {
	return &CoralError{
		Type:      ValidationError,
		Message:   message,
		Code:      http.StatusBadRequest,
		RequestID: requestID,
		Details:   validationDetails,
	}
}

// NewBadRequestError reports a request that could not be parsed.
func NewBadRequestError(requestID, message string, err error) *CoralError {
	return &CoralError{
		Type:      BadRequestError,
		Message:   message,
		Code:      http.StatusBadRequest,
		RequestID: requestID,
		err:       err,
	}
}

// NewRateLimitError reports a client over its rate limit. retryAfter is in
// seconds.
func NewRateLimitError(requestID string, retryAfter int) *CoralError {
	return &CoralError{
		Type:      RateLimitError,
		Message:   "Rate limit exceeded",
		Code:      http.StatusTooManyRequests,
		RequestID: requestID,
		Details: map[string]interface{}{
			"retry_after": retryAfter,
		},
	}
}

// NewUnavailableError reports a request shed because the server is at
// capacity.
func NewUnavailableError(requestID, message string) *CoralError {
	return &CoralError{
		Type:      UnavailableError,
		Message:   message,
		Code:      http.StatusServiceUnavailable,
		RequestID: requestID,
	}
}

// NewUpstreamError reports a failure of the remote chat backend.
func NewUpstreamError(requestID string, message string, err error) *CoralError {
	return &CoralError{
		Type:      UpstreamError,
		Message:   message,
		Code:      http.StatusBadGateway,
		RequestID: requestID,
		err:       err,
	}
}

// NewNotFoundError reports a missing resource.
func NewNotFoundError(requestID, message string) *CoralError {
	return &CoralError{
		Type:      NotFoundError,
		Message:   message,
		Code:      http.StatusNotFound,
		RequestID: requestID,
	}
}

// NewSignatureError reports a Slack request that failed signature
// verification.
func NewSignatureError(requestID string, err error) *CoralError {
	return &CoralError{
		Type:      SignatureError,
		Message:   "Request signature verification failed",
		Code:      http.StatusUnauthorized,
		RequestID: requestID,
		err:       err,
	}
}

// NewInternalError hides err behind a generic message.
func NewInternalError(requestID string, err error) *CoralError {
	return &CoralError{
		Type:      InternalError,
		Message:   "An internal error occurred",
		Code:      http.StatusInternalServerError,
		RequestID: requestID,
		err:       err,
	}
}
