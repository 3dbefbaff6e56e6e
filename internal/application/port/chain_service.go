package port

import (
	"context"

	"substrate-gateway/internal/domain/entity"
	domainService "substrate-gateway/internal/domain/service"
)

// ChainService answers account and chain queries. Request errors (unknown
// network, bad address) are returned as error; data outcomes, including
// upstream failures, are carried by the returned Result.
type ChainService interface {
	FetchAccountData(ctx context.Context, network entity.NetworkID, address string) (entity.Result[entity.AccountBalance], error)

	// SubscribeAccountData delivers the balance every time the account changes.
	SubscribeAccountData(
		ctx context.Context,
		network entity.NetworkID,
		address string,
		fn func(entity.Result[entity.AccountBalance]),
	) (domainService.Subscription, error)

	FetchStakingData(ctx context.Context, network entity.NetworkID, address string) (entity.Result[entity.StakingInfo], error)
	FetchValidators(ctx context.Context, network entity.NetworkID) (entity.Result[[]entity.Validator], error)
	FetchNominations(ctx context.Context, network entity.NetworkID, address string) (entity.Result[[]string], error)
	FetchChainMetadata(ctx context.Context, network entity.NetworkID) (entity.Result[entity.ChainMetadata], error)

	// SubscribeNewBlocks delivers every new head of network.
	SubscribeNewBlocks(ctx context.Context, network entity.NetworkID, fn func(entity.BlockHeader)) (domainService.Subscription, error)

	FetchTransactionHistory(ctx context.Context, network entity.NetworkID, address string) (entity.Result[[]entity.Transfer], error)

	// NetworkStatus combines the connection slot with the latest head seen.
	NetworkStatus(network entity.NetworkID) (entity.NetworkStatus, error)

	// ListNetworks returns the registry.
	ListNetworks() []entity.Network
}

// EndpointService reports endpoint health.
type EndpointService interface {
	// CheckEndpoints returns the health of every endpoint of network, cached when possible.
	CheckEndpoints(ctx context.Context, network entity.NetworkID) ([]entity.EndpointDetail, error)
}
