package entity

import (
	"fmt"
	"strings"
)

// NetworkID names one of the supported chains.
type NetworkID string

// Supported networks.
const (
	NetworkPolkadot NetworkID = "polkadot"
	NetworkAcala    NetworkID = "acala"
	NetworkEthereum NetworkID = "ethereum"
)

// NoPrefix marks networks whose address format has no SS58 prefix concept.
const NoPrefix = -1

// KnownNetworkIDs lists every network the gateway can be configured for.
var KnownNetworkIDs = []NetworkID{NetworkPolkadot, NetworkAcala, NetworkEthereum}

// ParseNetworkID resolves a case-insensitive network name.
func ParseNetworkID(raw string) (NetworkID, error) {
	id := NetworkID(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range KnownNetworkIDs {
		if id == known {
			return id, nil
		}
	}
	return "", fmt.Errorf("unknown network '%s'", raw)
}

// String returns the string representation of the NetworkID.
func (n NetworkID) String() string {
	return string(n)
}

// Network is the static description of a chain the gateway talks to.
type Network struct {
	ID                 NetworkID
	Name               string
	Ticker             string
	Decimals           int
	Prefix             int
	ChainID            int64
	ExistentialDeposit string
	Endpoints          []EndpointURL
	GenesisHash        string
	IndexerSlug        string
	Staking            bool
}

// UsesPrefix reports whether addresses on this network carry an SS58 prefix.
func (n Network) UsesPrefix() bool {
	return n.Prefix != NoPrefix
}
