package service

import (
	"context"
	"time"

	"substrate-gateway/internal/domain/entity"
)

// EndpointChecker defines the interface for checking node endpoint status.
type EndpointChecker interface {
	CheckEndpoint(ctx context.Context, endpoint entity.EndpointURL) (bool, time.Duration, error)
}
