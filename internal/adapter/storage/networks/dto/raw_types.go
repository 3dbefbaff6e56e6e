package networks_dto

// RegistryRaw is the top-level document of a network registry file.
type RegistryRaw struct {
	Networks []NetworkRaw `yaml:"networks"`
}

// NetworkRaw represents one network as written in a registry file.
type NetworkRaw struct {
	ID                 string   `yaml:"id"`
	Name               string   `yaml:"name"`
	Ticker             string   `yaml:"ticker"`
	Decimals           int      `yaml:"decimals"`
	Prefix             *int     `yaml:"prefix"`
	ChainID            int64    `yaml:"chain_id"`
	ExistentialDeposit string   `yaml:"existential_deposit,omitempty"`
	GenesisHash        string   `yaml:"genesis_hash,omitempty"`
	Indexer            string   `yaml:"indexer,omitempty"`
	Staking            bool     `yaml:"staking"`
	Endpoints          []string `yaml:"endpoints"`
}
