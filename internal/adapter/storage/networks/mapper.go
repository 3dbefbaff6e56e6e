package networks

import (
	"fmt"

	dto "substrate-gateway/internal/adapter/storage/networks/dto"
	"substrate-gateway/internal/adapter/ss58"
	"substrate-gateway/internal/domain/entity"

	"go.uber.org/zap"
)

// mapPrefix validates a raw address prefix.
func mapPrefix(raw *int, id string) (int, error) {
	if raw == nil {
		return 0, fmt.Errorf("network '%s' has no prefix (use %d for none)", id, entity.NoPrefix)
	}
	p := *raw
	if p == entity.NoPrefix {
		return p, nil
	}
	if p < 0 || p > ss58.MaxPrefix || p == 46 || p == 47 {
		return 0, fmt.Errorf("network '%s' has invalid prefix %d", id, p)
	}
	return p, nil
}

// toDomainNetworks converts raw registry entries to domain networks. Invalid
// endpoints are skipped; structural problems reject the whole registry.
func toDomainNetworks(raws []dto.NetworkRaw, logger *zap.Logger) ([]entity.Network, error) {
	seen := make(map[entity.NetworkID]struct{}, len(raws))
	networks := make([]entity.Network, 0, len(raws))

	for _, raw := range raws {
		id, err := entity.ParseNetworkID(raw.ID)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("network '%s' is defined twice", id)
		}
		seen[id] = struct{}{}

		prefix, err := mapPrefix(raw.Prefix, raw.ID)
		if err != nil {
			return nil, err
		}
		if raw.Decimals < 0 {
			return nil, fmt.Errorf("network '%s' has negative decimals", id)
		}

		endpoints := make([]entity.EndpointURL, 0, len(raw.Endpoints))
		for _, rawURL := range raw.Endpoints {
			u, err := entity.NewEndpointURL(rawURL)
			if err != nil {
				logger.Warn("Skipping invalid endpoint URL during mapping",
					zap.String("rawUrl", rawURL),
					zap.String("network", id.String()),
					zap.Error(err))
				continue
			}
			if !u.IsWebSocket() {
				logger.Warn("Skipping non-websocket endpoint; subscriptions need ws or wss",
					zap.String("rawUrl", rawURL),
					zap.String("network", id.String()))
				continue
			}
			endpoints = append(endpoints, u)
		}
		if len(raw.Endpoints) > 0 && len(endpoints) == 0 {
			return nil, fmt.Errorf("network '%s' has no usable endpoints", id)
		}

		networks = append(networks, entity.Network{
			ID:                 id,
			Name:               raw.Name,
			Ticker:             raw.Ticker,
			Decimals:           raw.Decimals,
			Prefix:             prefix,
			ChainID:            raw.ChainID,
			ExistentialDeposit: raw.ExistentialDeposit,
			Endpoints:          endpoints,
			GenesisHash:        raw.GenesisHash,
			IndexerSlug:        raw.Indexer,
			Staking:            raw.Staking,
		})
	}
	return networks, nil
}
