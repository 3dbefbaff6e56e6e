package substrate

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

// ErrShortInput is returned when a storage value ends before its layout does.
var ErrShortInput = errors.New("storage value too short")

// Decoder reads little-endian fixed-width and compact integers from a storage value.
type Decoder struct {
	buf []byte
	off int
}

// NewDecoder returns a decoder over b.
func NewDecoder(b []byte) *Decoder {
	return &Decoder{buf: b}
}

// Remaining is the number of unread bytes.
func (d *Decoder) Remaining() int {
	return len(d.buf) - d.off
}

// ReadBytes reads the next n bytes.
func (d *Decoder) ReadBytes(n int) ([]byte, error) {
	if n < 0 || d.Remaining() < n {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrShortInput, n, d.off, d.Remaining())
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b, nil
}

// ReadU8 reads one byte.
func (d *Decoder) ReadU8() (uint8, error) {
	b, err := d.ReadBytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadBool reads a one-byte boolean.
func (d *Decoder) ReadBool() (bool, error) {
	b, err := d.ReadU8()
	if err != nil {
		return false, err
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("invalid bool byte %#x", b)
	}
}

// ReadU32 reads a little-endian u32.
func (d *Decoder) ReadU32() (uint32, error) {
	b, err := d.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, nil
}

// ReadU128 reads a little-endian u128.
func (d *Decoder) ReadU128() (*uint256.Int, error) {
	b, err := d.ReadBytes(16)
	if err != nil {
		return nil, err
	}
	return leToUint(b), nil
}

// ReadCompact reads a compact-encoded unsigned integer.
func (d *Decoder) ReadCompact() (*uint256.Int, error) {
	first, err := d.ReadU8()
	if err != nil {
		return nil, err
	}
	switch first & 0b11 {
	case 0b00:
		return uint256.NewInt(uint64(first >> 2)), nil
	case 0b01:
		second, err := d.ReadU8()
		if err != nil {
			return nil, err
		}
		return uint256.NewInt(uint64(first>>2) | uint64(second)<<6), nil
	case 0b10:
		rest, err := d.ReadBytes(3)
		if err != nil {
			return nil, err
		}
		v := uint64(first>>2) | uint64(rest[0])<<6 | uint64(rest[1])<<14 | uint64(rest[2])<<22
		return uint256.NewInt(v), nil
	default:
		n := int(first>>2) + 4
		if n > 32 {
			return nil, fmt.Errorf("compact integer of %d bytes exceeds 256 bits", n)
		}
		b, err := d.ReadBytes(n)
		if err != nil {
			return nil, err
		}
		return leToUint(b), nil
	}
}

// ReadCompactLen reads a compact integer used as a collection length.
func (d *Decoder) ReadCompactLen() (int, error) {
	v, err := d.ReadCompact()
	if err != nil {
		return 0, err
	}
	if !v.IsUint64() || v.Uint64() > uint64(d.Remaining()) {
		return 0, fmt.Errorf("%w: collection length %s exceeds input", ErrShortInput, v.Dec())
	}
	return int(v.Uint64()), nil
}

func leToUint(le []byte) *uint256.Int {
	be := make([]byte, len(le))
	for i, b := range le {
		be[len(le)-1-i] = b
	}
	return new(uint256.Int).SetBytes(be)
}

// AccountInfo is the System.Account value.
type AccountInfo struct {
	Nonce    uint32
	Free     *uint256.Int
	Reserved *uint256.Int
	Frozen   *uint256.Int
}

// DecodeAccountInfo decodes
// {nonce, consumers, providers, sufficients: u32, data: {free, reserved, frozen, flags: u128}}.
// The third balance field is read as frozen on both current and legacy
// (misc_frozen) layouts.
func DecodeAccountInfo(b []byte) (AccountInfo, error) {
	d := NewDecoder(b)
	var info AccountInfo
	var err error
	if info.Nonce, err = d.ReadU32(); err != nil {
		return info, err
	}
	if _, err = d.ReadBytes(12); err != nil {
		return info, err
	}
	if info.Free, err = d.ReadU128(); err != nil {
		return info, err
	}
	if info.Reserved, err = d.ReadU128(); err != nil {
		return info, err
	}
	if info.Frozen, err = d.ReadU128(); err != nil {
		return info, err
	}
	return info, nil
}

// StakingLedger is the prefix of the Staking.Ledger value the gateway uses.
type StakingLedger struct {
	Stash  []byte
	Total  *uint256.Int
	Active *uint256.Int
}

// DecodeStakingLedger decodes {stash: AccountId32, total, active: Compact<u128>, ...}.
func DecodeStakingLedger(b []byte) (StakingLedger, error) {
	d := NewDecoder(b)
	var l StakingLedger
	stash, err := d.ReadBytes(32)
	if err != nil {
		return l, err
	}
	l.Stash = append([]byte(nil), stash...)
	if l.Total, err = d.ReadCompact(); err != nil {
		return l, err
	}
	if l.Active, err = d.ReadCompact(); err != nil {
		return l, err
	}
	return l, nil
}

// Nominations is the Staking.Nominators value.
type Nominations struct {
	Targets     [][]byte
	SubmittedIn uint32
	Suppressed  bool
}

// DecodeNominations decodes {targets: Vec<AccountId32>, submitted_in: u32, suppressed: bool}.
func DecodeNominations(b []byte) (Nominations, error) {
	d := NewDecoder(b)
	var n Nominations
	count, err := d.ReadCompactLen()
	if err != nil {
		return n, err
	}
	n.Targets = make([][]byte, 0, count)
	for i := 0; i < count; i++ {
		t, err := d.ReadBytes(32)
		if err != nil {
			return n, err
		}
		n.Targets = append(n.Targets, append([]byte(nil), t...))
	}
	if n.SubmittedIn, err = d.ReadU32(); err != nil {
		return n, err
	}
	if n.Suppressed, err = d.ReadBool(); err != nil {
		return n, err
	}
	return n, nil
}

// ValidatorPrefs is the Staking.Validators value.
type ValidatorPrefs struct {
	// Commission in parts per billion.
	Commission uint64
	Blocked    bool
}

// DecodeValidatorPrefs decodes {commission: Compact<Perbill>, blocked: bool}.
func DecodeValidatorPrefs(b []byte) (ValidatorPrefs, error) {
	d := NewDecoder(b)
	var p ValidatorPrefs
	c, err := d.ReadCompact()
	if err != nil {
		return p, err
	}
	if !c.IsUint64() || c.Uint64() > 1_000_000_000 {
		return p, fmt.Errorf("commission %s exceeds one billion parts", c.Dec())
	}
	p.Commission = c.Uint64()
	if p.Blocked, err = d.ReadBool(); err != nil {
		return p, err
	}
	return p, nil
}

// FormatCommission renders a Perbill commission as a percentage with two decimals.
func FormatCommission(perbill uint64) string {
	// 1% is 10_000_000 parts per billion; round to the nearest hundredth.
	hundredths := (perbill + 50_000) / 100_000
	return fmt.Sprintf("%d.%02d%%", hundredths/100, hundredths%100)
}
