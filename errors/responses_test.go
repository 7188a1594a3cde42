package errors

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name           string
		err            *CoralError
		expectedCode   int
		expectedType   ErrorType
		expectedFields []string
	}{
		{
			name:           "signature error",
			err:            NewSignatureError("test-id", nil),
			expectedCode:   http.StatusUnauthorized,
			expectedType:   SignatureError,
			expectedFields: []string{"type", "message", "request_id"},
		},
		{
			name: "error with details",
			err: NewValidationError("test-id", "validation failed", map[string]interface{}{
				"field": "message",
				"error": "required",
			}),
			expectedCode:   http.StatusBadRequest,
			expectedType:   ValidationError,
			expectedFields: []string{"type", "message", "request_id", "details"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()

			WriteError(rr, tt.err)

			if rr.Code != tt.expectedCode {
				t.Errorf("WriteError() status = %v, want %v", rr.Code, tt.expectedCode)
			}
			if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("WriteError() content-type = %v, want application/json", ct)
			}

			var response map[string]interface{}
			if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
				t.Fatalf("Failed to decode response body: %v", err)
			}

			if errorType, ok := response["type"].(string); !ok || ErrorType(errorType) != tt.expectedType {
				t.Errorf("WriteError() error type = %v, want %v", errorType, tt.expectedType)
			}
			for _, field := range tt.expectedFields {
				if _, exists := response[field]; !exists {
					t.Errorf("WriteError() missing expected field: %s", field)
				}
			}
		})
	}
}

func TestErrorWithTypeUsesResponseRequestID(t *testing.T) {
	rr := httptest.NewRecorder()
	rr.Header().Set("X-Request-ID", "abc")

	ErrorWithType(rr, "queue full", UnavailableError, http.StatusServiceUnavailable)

	var body CoralError
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.RequestID != "abc" {
		t.Errorf("request id = %q, want abc", body.RequestID)
	}
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d", rr.Code)
	}
}
