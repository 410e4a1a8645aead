package provider

import "errors"

// Domain errors for provider resolution and calls.
var (
	// ErrProviderNotFound indicates no provider is registered for the
	// capability and provider type.
	ErrProviderNotFound = errors.New("provider not found")

	// ErrDuplicateProvider indicates a provider type was registered twice
	// for the same capability.
	ErrDuplicateProvider = errors.New("provider already registered")

	// ErrCallFailed indicates a provider call failed after retries.
	ErrCallFailed = errors.New("provider call failed")
)
