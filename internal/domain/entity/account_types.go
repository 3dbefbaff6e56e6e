package entity

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/holiman/uint256"
)

// Amount is an exact on-chain token quantity together with the decimals used to render it.
type Amount struct {
	Planck   *uint256.Int
	Decimals int
}

// NewAmount wraps a planck value. A nil value is treated as zero.
func NewAmount(planck *uint256.Int, decimals int) Amount {
	if planck == nil {
		planck = new(uint256.Int)
	}
	return Amount{Planck: planck, Decimals: decimals}
}

// IsZero reports whether the amount is zero.
func (a Amount) IsZero() bool {
	return a.Planck == nil || a.Planck.IsZero()
}

// String renders the amount as an exact decimal string without trailing zeros.
func (a Amount) String() string {
	if a.Planck == nil {
		return "0"
	}
	digits := a.Planck.Dec()
	if a.Decimals <= 0 {
		return digits
	}
	if len(digits) <= a.Decimals {
		digits = strings.Repeat("0", a.Decimals-len(digits)+1) + digits
	}
	whole := digits[:len(digits)-a.Decimals]
	frac := strings.TrimRight(digits[len(digits)-a.Decimals:], "0")
	if frac == "" {
		return whole
	}
	return whole + "." + frac
}

// MarshalJSON encodes the amount as a decimal string.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// AccountBalance is the balance part of System.Account.
type AccountBalance struct {
	Free     Amount `json:"free"`
	Reserved Amount `json:"reserved"`
	Frozen   Amount `json:"frozen"`
}

// StakingInfo summarizes the staking ledger of an account. Bonded is the
// active stake; Unlocking is what is bonded but scheduled for release.
type StakingInfo struct {
	Bonded    Amount `json:"bonded"`
	Total     Amount `json:"total"`
	Unlocking Amount `json:"unlocking"`
}

// Validator is one entry of the validator set with its preferences.
type Validator struct {
	Address    string `json:"address"`
	Commission string `json:"commission"`
	Identity   string `json:"identity"`
	Blocked    bool   `json:"blocked"`
}

// ChainMetadata is the runtime version and genesis of a chain.
type ChainMetadata struct {
	SpecName    string `json:"specName"`
	SpecVersion uint32 `json:"specVersion"`
	ImplName    string `json:"implName"`
	TxVersion   uint32 `json:"txVersion"`
	GenesisHash string `json:"genesisHash"`
}

// BlockHeader is the subset of a block header the gateway tracks.
type BlockHeader struct {
	Number     uint64 `json:"number"`
	Hash       string `json:"hash"`
	ParentHash string `json:"parentHash"`
}

// TransferDirection tells whether a transfer left or reached the queried account.
type TransferDirection string

// Transfer directions.
const (
	TransferSend    TransferDirection = "send"
	TransferReceive TransferDirection = "receive"
)

// TransferStatus is the execution outcome of a transfer.
type TransferStatus string

// Transfer statuses.
const (
	TransferConfirmed TransferStatus = "confirmed"
	TransferFailed    TransferStatus = "failed"
)

// Transfer is one entry of an account's transfer history.
type Transfer struct {
	ID           string            `json:"id"`
	Direction    TransferDirection `json:"type"`
	Amount       string            `json:"amount"`
	Token        string            `json:"token"`
	Timestamp    time.Time         `json:"timestamp"`
	Status       TransferStatus    `json:"status"`
	Counterparty string            `json:"address"`
	Fee          *Amount           `json:"fee,omitempty"`
	TxHash       string            `json:"txHash"`
}

// IndexedTransfer is a transfer as reported by an indexer, before it is
// related to the queried account.
type IndexedTransfer struct {
	Hash      string
	From      string
	To        string
	Amount    string
	Symbol    string
	Timestamp time.Time
	Success   bool
	Fee       *Amount
}

// NetworkStatus is the user-facing connectivity state of a network.
type NetworkStatus struct {
	ConnectionStatus
	LatestBlock *BlockHeader `json:"latestBlock,omitempty"`
	LastHeadAt  *time.Time   `json:"lastHeadAt,omitempty"`
	Synced      bool         `json:"synced"`
}

// AddressReport is the outcome of validating an address for a network.
type AddressReport struct {
	Address       string    `json:"address"`
	Network       NetworkID `json:"network"`
	Valid         bool      `json:"valid"`
	PrefixMatches bool      `json:"prefixMatches"`
	Normalized    string    `json:"normalized"`
}
