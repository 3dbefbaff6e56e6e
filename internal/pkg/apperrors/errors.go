package apperrors

import (
	"errors"
	"fmt"
)

// Standard application errors
var (
	// ErrNotFound is returned when a requested resource is not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput is returned when the input provided by the client is invalid.
	ErrInvalidInput = errors.New("invalid input provided")

	// ErrExternalServiceFailure is returned when an interaction with an external service fails.
	ErrExternalServiceFailure = errors.New("external service interaction failed")

	// ErrTimeout is returned when an operation times out.
	ErrTimeout = errors.New("operation timed out")

	// ErrInternal is returned for unexpected internal system errors.
	ErrInternal = errors.New("internal system error")

	// ErrMalformedResponse is returned when an upstream answer does not match the expected schema.
	ErrMalformedResponse = errors.New("malformed upstream response")

	// ErrConnectionClosed is returned for calls on a connection that has gone away.
	ErrConnectionClosed = errors.New("connection closed")
)

// Connection errors. Both are transient: callers may retry.
var (
	// ErrConnectionTimeout is returned when no endpoint completed a handshake within the overall bound.
	ErrConnectionTimeout = fmt.Errorf("%w: connection attempt", ErrTimeout)

	// ErrConnectionRefused is returned when every candidate endpoint was tried and failed.
	ErrConnectionRefused = fmt.Errorf("%w: all endpoints refused the connection", ErrExternalServiceFailure)
)
