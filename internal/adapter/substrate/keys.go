// Package substrate builds storage keys and decodes the handful of fixed
// storage layouts the gateway reads from Substrate nodes.
package substrate

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/crypto/blake2b"
)

// Twox64 is the xxhash64 digest of data with seed 0, little-endian.
func Twox64(data []byte) []byte {
	return twox(data, 0)
}

// Twox128 concatenates the xxhash64 digests of data with seeds 0 and 1.
func Twox128(data []byte) []byte {
	return append(twox(data, 0), twox(data, 1)...)
}

func twox(data []byte, seed uint64) []byte {
	d := xxhash.NewWithSeed(seed)
	_, _ = d.Write(data)
	out := make([]byte, 8)
	binary.LittleEndian.PutUint64(out, d.Sum64())
	return out
}

// Twox64Concat is the Twox64Concat storage hasher.
func Twox64Concat(data []byte) []byte {
	return append(Twox64(data), data...)
}

// Blake2_128Concat is the Blake2_128Concat storage hasher.
func Blake2_128Concat(data []byte) []byte {
	h, err := blake2b.New(16, nil)
	if err != nil {
		// Only reachable with an invalid size or key.
		panic(err)
	}
	h.Write(data)
	return append(h.Sum(nil), data...)
}

// Hasher hashes a map key for a storage item.
type Hasher func([]byte) []byte

// StoragePrefix returns twox128(pallet) || twox128(item).
func StoragePrefix(pallet, item string) []byte {
	return append(Twox128([]byte(pallet)), Twox128([]byte(item))...)
}

// StorageKey returns the key of a single-key map entry.
func StorageKey(pallet, item string, hasher Hasher, key []byte) []byte {
	return append(StoragePrefix(pallet, item), hasher(key)...)
}

// StakingValidatorsPrefix is the prefix shared by every Staking.Validators key.
var StakingValidatorsPrefix = StoragePrefix("Staking", "Validators")

// SystemAccountKey is the System.Account key of an account id.
func SystemAccountKey(accountID []byte) []byte {
	return StorageKey("System", "Account", Blake2_128Concat, accountID)
}

// StakingLedgerKey is the Staking.Ledger key of a controller account id.
func StakingLedgerKey(accountID []byte) []byte {
	return StorageKey("Staking", "Ledger", Blake2_128Concat, accountID)
}

// StakingNominatorsKey is the Staking.Nominators key of a stash account id.
func StakingNominatorsKey(accountID []byte) []byte {
	return StorageKey("Staking", "Nominators", Twox64Concat, accountID)
}

// AccountIDFromTwox64ConcatKey extracts the account id that trails a
// Twox64Concat map key.
func AccountIDFromTwox64ConcatKey(key []byte) ([]byte, error) {
	if len(key) < 32+8+32 {
		return nil, fmt.Errorf("storage key of %d bytes is too short", len(key))
	}
	return key[len(key)-32:], nil
}

// HexEncode renders bytes as 0x-prefixed hex.
func HexEncode(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

// HexDecode parses 0x-prefixed (or bare) hex.
func HexDecode(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(s, "0x"))
}
