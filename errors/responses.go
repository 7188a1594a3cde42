package errors

import (
	"errors"
)

// RequestIDKey is the log field name carrying the request ID.
const RequestIDKey = "request_id"

// As is errors.As, re-exported so callers importing this package under
// the name errors keep access to it.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Is is errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
