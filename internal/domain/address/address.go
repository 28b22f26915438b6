// Package address decodes and encodes SS58 wallet addresses used across the
// Polkadot ecosystem.
package address

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

// Well-known SS58 network prefixes.
const (
	PrefixPolkadot  uint16 = 0
	PrefixKusama    uint16 = 2
	PrefixBifrost   uint16 = 6
	PrefixAcala     uint16 = 10
	PrefixSubstrate uint16 = 42
	PrefixHydraDX   uint16 = 63
)

const (
	accountLen  = 32
	checksumLen = 2
	maxPrefix   = 16383
	// Prefixes below this fit in a single byte.
	simplePrefixLimit = 64
)

var checksumPreimage = []byte("SS58PRE")

var networks = map[string]uint16{
	"polkadot":  PrefixPolkadot,
	"kusama":    PrefixKusama,
	"bifrost":   PrefixBifrost,
	"acala":     PrefixAcala,
	"substrate": PrefixSubstrate,
	"hydradx":   PrefixHydraDX,
}

// AccountID is a 32-byte public key.
type AccountID [accountLen]byte

// String returns the hex form of the account.
func (a AccountID) String() string {
	return fmt.Sprintf("0x%x", a[:])
}

// NetworkPrefix returns the SS58 prefix registered for a network name.
func NetworkPrefix(network string) (uint16, bool) {
	p, ok := networks[strings.ToLower(strings.TrimSpace(network))]
	return p, ok
}

// MatchesNetwork reports whether an address encoded with prefix belongs on
// network. The generic substrate prefix is accepted on every network.
func MatchesNetwork(prefix uint16, network string) bool {
	want, ok := NetworkPrefix(network)
	return ok && (prefix == want || prefix == PrefixSubstrate)
}

// Decode parses an SS58 address and returns the account and its network
// prefix.
func Decode(addr string) (AccountID, uint16, error) {
	var id AccountID
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return id, 0, fmt.Errorf("%w: empty", ErrInvalidAddress)
	}
	data, err := base58.Decode(addr)
	if err != nil {
		return id, 0, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(data) < 1 {
		return id, 0, fmt.Errorf("%w: empty payload", ErrInvalidAddress)
	}

	var prefixLen int
	var prefix uint16
	switch {
	case data[0] < simplePrefixLimit:
		prefixLen, prefix = 1, uint16(data[0])
	case data[0] < 128:
		if len(data) < 2 {
			return id, 0, fmt.Errorf("%w: truncated prefix", ErrInvalidAddress)
		}
		lower := (data[0] << 2) | (data[1] >> 6)
		upper := data[1] & 0x3f
		prefixLen, prefix = 2, uint16(lower)|uint16(upper)<<8
	default:
		return id, 0, fmt.Errorf("%w: reserved prefix byte %d", ErrInvalidAddress, data[0])
	}

	if len(data) != prefixLen+accountLen+checksumLen {
		return id, 0, fmt.Errorf("%w: unexpected length %d", ErrInvalidAddress, len(data))
	}

	body := data[:prefixLen+accountLen]
	sum := checksum(body)
	if !bytes.Equal(sum, data[prefixLen+accountLen:]) {
		return id, 0, fmt.Errorf("%w: %w", ErrInvalidAddress, ErrChecksum)
	}
	copy(id[:], data[prefixLen:prefixLen+accountLen])
	return id, prefix, nil
}

// Encode renders an account under the given network prefix.
func Encode(id AccountID, prefix uint16) (string, error) {
	if prefix > maxPrefix {
		return "", fmt.Errorf("%w: prefix %d out of range", ErrInvalidAddress, prefix)
	}
	var body []byte
	if prefix < simplePrefixLimit {
		body = append(body, byte(prefix))
	} else {
		first := byte((prefix&0x00fc)>>2) | 0x40
		second := byte(prefix>>8) | byte(prefix&0x0003)<<6
		body = append(body, first, second)
	}
	body = append(body, id[:]...)
	body = append(body, checksum(body)...)
	return base58.Encode(body), nil
}

// Validate reports whether addr is a well-formed SS58 address.
func Validate(addr string) error {
	_, _, err := Decode(addr)
	return err
}

func checksum(body []byte) []byte {
	h, _ := blake2b.New512(nil)
	h.Write(checksumPreimage)
	h.Write(body)
	return h.Sum(nil)[:checksumLen]
}
