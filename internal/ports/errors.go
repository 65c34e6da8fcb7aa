package ports

import "errors"

// Standard application-level errors. Adapters wrap the underlying
// transport or parse error with one of these so callers can branch on
// errors.Is without importing adapter packages.
var (
	// General
	ErrUnknown         = errors.New("unknown error occurred")
	ErrInvalidRequest  = errors.New("invalid request parameters")
	ErrTimeout         = errors.New("operation timed out")
	ErrContextCanceled = errors.New("operation canceled via context")
	ErrConfiguration   = errors.New("invalid or missing configuration")

	// Upstream feed
	ErrUpstream         = errors.New("upstream request failed")
	ErrConnectionFailed = errors.New("failed to connect to the upstream feed")
	ErrConnectionClosed = errors.New("upstream stream connection closed")
	ErrNotConnected     = errors.New("stream is not connected")
	ErrMalformedMessage = errors.New("message did not match any known wire shape")

	// Lifecycle
	ErrShutdown = errors.New("component is shut down")
)
