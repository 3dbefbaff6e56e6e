package port

import (
	"context"

	"substrate-gateway/internal/domain/entity"
	domainService "substrate-gateway/internal/domain/service"
)

// ConnectionProvider hands out the shared live connection of a network.
type ConnectionProvider interface {
	// GetConnection returns the live connection of network, establishing it if needed.
	// Concurrent callers share one attempt and observe the same outcome.
	GetConnection(ctx context.Context, network entity.NetworkID) (domainService.Connection, error)

	// Status describes the connection slot of network without touching it.
	Status(network entity.NetworkID) entity.ConnectionStatus
}
