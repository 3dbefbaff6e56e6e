package port

import "substrate-gateway/internal/domain/entity"

// AddressService validates and normalizes account addresses. Every method is
// total: malformed input yields false or the input itself, never a panic.
type AddressService interface {
	// IsValidAddress reports whether address is a checksummed SS58 address of a 32-byte account.
	IsValidAddress(address string) bool

	// ValidateAddressPrefix reports whether address is already encoded with expectedPrefix.
	// entity.NoPrefix accepts anything.
	ValidateAddressPrefix(address string, expectedPrefix int) bool

	// NormalizeAddress re-encodes address for network, or returns it unchanged.
	NormalizeAddress(address string, network entity.NetworkID) string

	// ValidateForNetwork reports validity, prefix match and normalized form of address.
	ValidateForNetwork(address string, network entity.NetworkID) (entity.AddressReport, error)
}
