package mocks

import "errors"

// ErrUserNotFound is returned by MockResolver for unknown users.
var ErrUserNotFound = errors.New("user_not_found")
