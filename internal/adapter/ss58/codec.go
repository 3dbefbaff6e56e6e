// Package ss58 implements the SS58 address format used by Substrate chains.
//
// An address is the base58 encoding of
//
//	prefix || payload || checksum
//
// where prefix is one byte for identifiers below 64 and two bytes up to
// 16383, and checksum is the leading 1 or 2 bytes of
// blake2b-512("SS58PRE" || prefix || payload).
package ss58

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/decred/base58"
	"golang.org/x/crypto/blake2b"
)

// MaxPrefix is the largest network identifier the format can carry.
const MaxPrefix = 16383

// AccountIDLen is the payload length of a 32-byte public key address.
const AccountIDLen = 32

var (
	// ErrInvalidEncoding is returned for strings that are not base58.
	ErrInvalidEncoding = errors.New("ss58: invalid base58 encoding")

	// ErrInvalidLength is returned when the decoded data has no valid payload length.
	ErrInvalidLength = errors.New("ss58: invalid decoded length")

	// ErrInvalidChecksum is returned when the checksum does not match.
	ErrInvalidChecksum = errors.New("ss58: invalid checksum")

	// ErrInvalidPrefix is returned for out-of-range or reserved network identifiers.
	ErrInvalidPrefix = errors.New("ss58: invalid prefix")
)

var checksumPreimage = []byte("SS58PRE")

// checksumLen returns the checksum length used for a payload length.
func checksumLen(payloadLen int) (int, bool) {
	switch payloadLen {
	case 1, 2, 4, 8:
		return 1, true
	case 32, 33:
		return 2, true
	default:
		return 0, false
	}
}

func isReserved(prefix int) bool {
	return prefix == 46 || prefix == 47
}

func checksum(data []byte) []byte {
	sum := blake2b.Sum512(append(append([]byte{}, checksumPreimage...), data...))
	return sum[:]
}

// encodePrefix returns the one or two byte form of prefix.
func encodePrefix(prefix int) ([]byte, error) {
	if prefix < 0 || prefix > MaxPrefix || isReserved(prefix) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPrefix, prefix)
	}
	if prefix < 64 {
		return []byte{byte(prefix)}, nil
	}
	return []byte{
		byte((prefix&0b1111_1100)>>2) | 0b0100_0000,
		byte(prefix>>8) | byte((prefix&0b0000_0011)<<6),
	}, nil
}

// decodePrefix reads the network identifier from the head of data.
func decodePrefix(data []byte) (prefix int, n int, err error) {
	switch {
	case data[0] >= 0b1000_0000:
		return 0, 0, fmt.Errorf("%w: leading byte %#x", ErrInvalidPrefix, data[0])
	case data[0]&0b0100_0000 == 0:
		prefix, n = int(data[0]), 1
	default:
		if len(data) < 2 {
			return 0, 0, ErrInvalidLength
		}
		lower := (data[0] << 2) | (data[1] >> 6)
		upper := data[1] & 0b0011_1111
		prefix, n = int(lower)|int(upper)<<8, 2
	}
	if isReserved(prefix) {
		return 0, 0, fmt.Errorf("%w: %d is reserved", ErrInvalidPrefix, prefix)
	}
	return prefix, n, nil
}

// Encode returns the SS58 address of payload under prefix.
func Encode(payload []byte, prefix int) (string, error) {
	cl, ok := checksumLen(len(payload))
	if !ok {
		return "", fmt.Errorf("%w: payload of %d bytes", ErrInvalidLength, len(payload))
	}
	head, err := encodePrefix(prefix)
	if err != nil {
		return "", err
	}

	data := make([]byte, 0, len(head)+len(payload)+cl)
	data = append(data, head...)
	data = append(data, payload...)
	data = append(data, checksum(data)[:cl]...)
	return base58.Encode(data), nil
}

// Decode returns the payload and prefix of an SS58 address. The checksum is
// always verified.
func Decode(address string) (payload []byte, prefix int, err error) {
	if address == "" {
		return nil, 0, ErrInvalidEncoding
	}
	data := base58.Decode(address)
	if len(data) == 0 {
		return nil, 0, ErrInvalidEncoding
	}
	if len(data) < 2 {
		return nil, 0, ErrInvalidLength
	}

	prefix, n, err := decodePrefix(data)
	if err != nil {
		return nil, 0, err
	}

	rest := len(data) - n
	payloadLen := -1
	for _, candidate := range []int{1, 2, 4, 8, 32, 33} {
		cl, _ := checksumLen(candidate)
		if candidate+cl == rest {
			payloadLen = candidate
			break
		}
	}
	if payloadLen < 0 {
		return nil, 0, fmt.Errorf("%w: %d bytes", ErrInvalidLength, len(data))
	}

	body := data[:n+payloadLen]
	if !bytes.Equal(checksum(body)[:rest-payloadLen], data[n+payloadLen:]) {
		return nil, 0, ErrInvalidChecksum
	}
	return append([]byte(nil), data[n:n+payloadLen]...), prefix, nil
}

// DecodeAccountID decodes an address and requires a 32-byte payload.
func DecodeAccountID(address string) ([]byte, int, error) {
	payload, prefix, err := Decode(address)
	if err != nil {
		return nil, 0, err
	}
	if len(payload) != AccountIDLen {
		return nil, 0, fmt.Errorf("%w: payload of %d bytes is not an account id", ErrInvalidLength, len(payload))
	}
	return payload, prefix, nil
}
