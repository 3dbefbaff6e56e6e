package repository

import "substrate-gateway/internal/domain/entity"

// NetworkRepository gives read-only access to the network registry.
type NetworkRepository interface {
	// GetNetwork returns the network definition for id.
	GetNetwork(id entity.NetworkID) (entity.Network, error)

	// ListNetworks returns every configured network in registry order.
	ListNetworks() []entity.Network
}
