package networks

import (
	_ "embed"
	"fmt"
	"os"

	dto "substrate-gateway/internal/adapter/storage/networks/dto"
	"substrate-gateway/internal/config"
	"substrate-gateway/internal/domain"
	"substrate-gateway/internal/domain/entity"
	domainRepo "substrate-gateway/internal/domain/repository"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Compile-time check
var _ domainRepo.NetworkRepository = (*Repository)(nil)

//go:embed networks.yaml
var defaultRegistry []byte

// Repository is the immutable network registry. It is filled once at
// construction and only read afterwards, so it needs no locking.
type Repository struct {
	networks []entity.Network
	byID     map[entity.NetworkID]int
}

// NewRepository loads the compiled-in registry, or the override file when configured.
func NewRepository(cfg config.NetworksConfig, logger *zap.Logger) (*Repository, error) {
	logger = logger.Named("NetworkRegistry")

	source, data := "embedded", defaultRegistry
	if cfg.File != "" {
		b, err := os.ReadFile(cfg.File)
		if err != nil {
			return nil, fmt.Errorf("failed to read network registry %s: %w", cfg.File, err)
		}
		source, data = cfg.File, b
	}

	repo, err := Parse(data, logger)
	if err != nil {
		return nil, fmt.Errorf("network registry %s: %w", source, err)
	}
	logger.Info("Loaded network registry",
		zap.String("source", source), zap.Int("count", len(repo.networks)))
	return repo, nil
}

// Parse builds a registry from a YAML document.
func Parse(data []byte, logger *zap.Logger) (*Repository, error) {
	var raw dto.RegistryRaw
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse registry: %w", err)
	}
	if len(raw.Networks) == 0 {
		return nil, fmt.Errorf("registry defines no networks")
	}

	networks, err := toDomainNetworks(raw.Networks, logger)
	if err != nil {
		return nil, err
	}

	byID := make(map[entity.NetworkID]int, len(networks))
	for i, n := range networks {
		byID[n.ID] = i
	}
	return &Repository{networks: networks, byID: byID}, nil
}

// GetNetwork returns the network definition for id.
func (r *Repository) GetNetwork(id entity.NetworkID) (entity.Network, error) {
	i, ok := r.byID[id]
	if !ok {
		return entity.Network{}, fmt.Errorf("%w: %s", domain.ErrNetworkNotFound, id)
	}
	return cloneNetwork(r.networks[i]), nil
}

// ListNetworks returns every configured network in registry order.
func (r *Repository) ListNetworks() []entity.Network {
	out := make([]entity.Network, len(r.networks))
	for i, n := range r.networks {
		out[i] = cloneNetwork(n)
	}
	return out
}

// cloneNetwork copies the endpoint slice so callers cannot mutate the registry.
func cloneNetwork(n entity.Network) entity.Network {
	n.Endpoints = append([]entity.EndpointURL(nil), n.Endpoints...)
	return n
}
