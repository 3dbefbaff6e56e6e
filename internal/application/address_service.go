package application

import (
	"fmt"

	"substrate-gateway/internal/adapter/ss58"
	"substrate-gateway/internal/application/port"
	"substrate-gateway/internal/domain"
	"substrate-gateway/internal/domain/entity"
	domainRepo "substrate-gateway/internal/domain/repository"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Compile-time check
var _ port.AddressService = (*addressService)(nil)

// addressService implements port.AddressService on top of the SS58 codec and
// the network registry.
type addressService struct {
	networks domainRepo.NetworkRepository
	logger   *zap.Logger
}

// NewAddressService creates a new instance of the address service.
func NewAddressService(networks domainRepo.NetworkRepository, logger *zap.Logger) port.AddressService {
	return newAddressService(networks, logger)
}

func newAddressService(networks domainRepo.NetworkRepository, logger *zap.Logger) *addressService {
	return &addressService{
		networks: networks,
		logger:   logger.Named("AddressService"),
	}
}

// IsValidAddress decodes with any prefix; the key must be exactly 32 bytes.
func (s *addressService) IsValidAddress(address string) bool {
	_, _, err := ss58.DecodeAccountID(address)
	return err == nil
}

// ValidateAddressPrefix re-encodes the decoded key with expectedPrefix and
// compares the result with the input byte for byte.
func (s *addressService) ValidateAddressPrefix(address string, expectedPrefix int) bool {
	if expectedPrefix == entity.NoPrefix {
		return true
	}
	accountID, _, err := ss58.DecodeAccountID(address)
	if err != nil {
		return false
	}
	reencoded, err := ss58.Encode(accountID, expectedPrefix)
	if err != nil {
		return false
	}
	return reencoded == address
}

// NormalizeAddress fails open: anything it cannot re-encode comes back unchanged.
func (s *addressService) NormalizeAddress(address string, networkID entity.NetworkID) string {
	network, err := s.networks.GetNetwork(networkID)
	if err != nil {
		return address
	}
	return normalizeFor(address, network)
}

func normalizeFor(address string, network entity.Network) string {
	if !network.UsesPrefix() {
		if common.IsHexAddress(address) {
			return common.HexToAddress(address).Hex()
		}
		return address
	}
	accountID, _, err := ss58.DecodeAccountID(address)
	if err != nil {
		return address
	}
	normalized, err := ss58.Encode(accountID, network.Prefix)
	if err != nil {
		return address
	}
	return normalized
}

// ValidateForNetwork fails only when the network is unknown.
func (s *addressService) ValidateForNetwork(address string, networkID entity.NetworkID) (entity.AddressReport, error) {
	network, err := s.networks.GetNetwork(networkID)
	if err != nil {
		return entity.AddressReport{}, err
	}

	report := entity.AddressReport{
		Address:    address,
		Network:    network.ID,
		Normalized: normalizeFor(address, network),
	}
	if network.UsesPrefix() {
		report.Valid = s.IsValidAddress(address)
		report.PrefixMatches = report.Valid && s.ValidateAddressPrefix(address, network.Prefix)
	} else {
		report.Valid = common.IsHexAddress(address)
		report.PrefixMatches = report.Valid
	}
	return report, nil
}

// resolveAccount turns a user-supplied address into the account id used in
// storage keys and the address form of network. Addresses encoded for a
// sibling network of the registry are accepted and normalized; any other
// prefix is a mismatch.
func (s *addressService) resolveAccount(address string, network entity.Network) ([]byte, string, error) {
	if !network.UsesPrefix() {
		if !common.IsHexAddress(address) {
			return nil, "", fmt.Errorf("%w: %q is not a hex account address", domain.ErrInvalidAddress, address)
		}
		addr := common.HexToAddress(address)
		return addr.Bytes(), addr.Hex(), nil
	}

	accountID, prefix, err := ss58.DecodeAccountID(address)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", domain.ErrInvalidAddress, err)
	}
	if prefix != network.Prefix && !s.isRegisteredPrefix(prefix) {
		s.logger.Debug("Rejecting address with foreign prefix",
			zap.String("network", network.ID.String()), zap.Int("prefix", prefix))
		return nil, "", fmt.Errorf("%w: prefix %d is not used by %s or any sibling network",
			domain.ErrPrefixMismatch, prefix, network.ID)
	}

	normalized, err := ss58.Encode(accountID, network.Prefix)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", domain.ErrInvalidAddress, err)
	}
	return accountID, normalized, nil
}

func (s *addressService) isRegisteredPrefix(prefix int) bool {
	for _, n := range s.networks.ListNetworks() {
		if n.UsesPrefix() && n.Prefix == prefix {
			return true
		}
	}
	return false
}
