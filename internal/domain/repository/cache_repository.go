package repository

import (
	"context"
	"time"

	"substrate-gateway/internal/domain/entity"
)

// CacheRepository defines the interface for caching checked endpoints and last-known query results.
type CacheRepository interface {
	// GetEndpointDetails retrieves the cached endpoint check results of a network.
	GetEndpointDetails(ctx context.Context, network entity.NetworkID) ([]entity.EndpointDetail, bool, error)

	// SetEndpointDetails stores endpoint check results of a network with a specified TTL.
	SetEndpointDetails(ctx context.Context, network entity.NetworkID, details []entity.EndpointDetail, ttl time.Duration) error

	// GetSnapshot retrieves the last-known value stored under key.
	GetSnapshot(ctx context.Context, key string) (entity.Snapshot, bool, error)

	// SetSnapshot stores a last-known value under key with a specified TTL.
	SetSnapshot(ctx context.Context, key string, snapshot entity.Snapshot, ttl time.Duration) error
}
