package provider

import "errors"

var (
	// ErrNoBackends indicates that the manager has nothing to send requests to
	ErrNoBackends = errors.New("no chat backends configured")
)
