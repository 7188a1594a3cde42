package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestCoralError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *CoralError
		want string
	}{
		{
			name: "without wrapped error",
			err: &CoralError{
				Type:    ValidationError,
				Message: "invalid input",
			},
			want: "validation_error: invalid input",
		},
		{
			name: "with wrapped error",
			err: &CoralError{
				Type:    UpstreamError,
				Message: "chat backend failed",
				err:     errors.New("connection refused"),
			},
			want: "upstream_error: chat backend failed: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("CoralError.Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCoralError_Is(t *testing.T) {
	err1 := &CoralError{Type: RateLimitError, Message: "test1"}
	err2 := &CoralError{Type: RateLimitError, Message: "test2"}
	err3 := &CoralError{Type: ValidationError, Message: "test3"}

	if !err1.Is(err2) {
		t.Error("Expected err1.Is(err2) to be true for same error type")
	}
	if err1.Is(err3) {
		t.Error("Expected err1.Is(err3) to be false for different error types")
	}

	wrapped := fmt.Errorf("handler: %w", err1)
	if !Is(wrapped, &CoralError{Type: RateLimitError}) {
		t.Error("Expected Is to match through a wrapping error")
	}
}

func TestCoralError_Unwrap(t *testing.T) {
	innerErr := errors.New("inner error")
	err := NewUpstreamError("req", "outer error", innerErr)

	if unwrapped := err.Unwrap(); unwrapped != innerErr {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, innerErr)
	}
	if !errors.Is(err, innerErr) {
		t.Error("errors.Is should find the inner error")
	}
}
