package seenn

import "errors"

var (
	// ErrBaseURLRequired means New was called without a base URL.
	ErrBaseURLRequired = errors.New("seenn: base URL is required")

	// ErrDisposed means the client was disposed and cannot be reused.
	ErrDisposed = errors.New("seenn: client disposed")

	// ErrPollingOnly means a polling-specific method was called while a
	// non-polling (or no) transport is active.
	ErrPollingOnly = errors.New("seenn: polling transport not active")

	// ErrUnknownTransport means the configured transport kind is not
	// recognized.
	ErrUnknownTransport = errors.New("seenn: unknown transport kind")
)
