package domain

import "errors"

var (
	// ErrNetworkNotFound means the requested network is not part of the registry.
	ErrNetworkNotFound = errors.New("network not found")

	// ErrNoEndpoints means the network has no endpoints to connect to.
	ErrNoEndpoints = errors.New("no endpoints configured for the network")

	// ErrInvalidAddress means the address could not be decoded as a 32-byte account.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrPrefixMismatch means the address is well-formed but encoded for a different network.
	ErrPrefixMismatch = errors.New("address prefix does not match network")

	// ErrGenesisMismatch means an endpoint serves a different chain than the one configured.
	ErrGenesisMismatch = errors.New("endpoint genesis hash does not match network")

	// ErrCacheFailure means an internal error occurred while interacting with the cache (not a cache miss).
	ErrCacheFailure = errors.New("cache operation failed")
)
