package substrate

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/okian/dotrep/internal/adapters/chain"
	"github.com/okian/dotrep/internal/domain/address"
)

// systemEventsKey is the storage key of System.Events:
// twox128("System") ++ twox128("Events").
const systemEventsKey = "0x26aa394eea5630e07c48ae0c9558cef780d41e5e16056765bc8461851072c9d7"

const (
	accountLen = 32
	amountLen  = 16 // u128
	hashLen    = 32

	// pallet, event, from, to, amount
	transferLen = 2 + 2*accountLen + amountLen

	phaseApplyExtrinsic = 0x00
	phaseFinalization   = 0x01
	phaseInitialization = 0x02

	// ApplyExtrinsic carries a u32 extrinsic index.
	applyExtrinsicLen = 1 + 4
)

var errShortInput = errors.New("scale: short input")

// EventIndex locates an event in a runtime: the pallet index and the event's
// variant index within that pallet.
type EventIndex struct {
	Pallet byte
	Event  byte
}

// String renders the index as "pallet:event".
func (e EventIndex) String() string {
	return fmt.Sprintf("%d:%d", e.Pallet, e.Event)
}

// balances.Transfer is variant 2 of pallet_balances::Event. The pallet index
// differs per runtime.
var transferEvents = map[string]EventIndex{
	"polkadot": {Pallet: 5, Event: 2},
	"kusama":   {Pallet: 4, Event: 2},
}

// TransferEventFor returns the balances.Transfer index of a known runtime.
func TransferEventFor(network string) (EventIndex, bool) {
	ev, ok := transferEvents[strings.ToLower(strings.TrimSpace(network))]
	return ev, ok
}

// decodeCompact decodes a SCALE compact unsigned integer and returns the
// value and the number of bytes consumed.
func decodeCompact(b []byte) (uint64, int, error) {
	if len(b) == 0 {
		return 0, 0, errShortInput
	}
	switch b[0] & 0x03 {
	case 0x00:
		return uint64(b[0] >> 2), 1, nil
	case 0x01:
		if len(b) < 2 {
			return 0, 0, errShortInput
		}
		return uint64(binary.LittleEndian.Uint16(b) >> 2), 2, nil
	case 0x02:
		if len(b) < 4 {
			return 0, 0, errShortInput
		}
		return uint64(binary.LittleEndian.Uint32(b) >> 2), 4, nil
	default:
		n := int(b[0]>>2) + 4
		if n > 8 {
			return 0, 0, fmt.Errorf("scale: compact of %d bytes overflows uint64", n)
		}
		if len(b) < 1+n {
			return 0, 0, errShortInput
		}
		var buf [8]byte
		copy(buf[:], b[1:1+n])
		return binary.LittleEndian.Uint64(buf[:]), 1 + n, nil
	}
}

// transfersIn returns the balances.Transfer events in an encoded
// Vec<EventRecord> that move funds from or to account.
//
// Records of other events cannot be skipped without runtime metadata, so
// transfers are located by their fixed layout: a phase, the event index, two
// account ids, a u128 amount and a topics vector. Matching additionally
// requires one of the accounts to be the scanned one.
func transfersIn(raw []byte, ev EventIndex, account address.AccountID) ([]chain.Transfer, error) {
	count, n, err := decodeCompact(raw)
	if err != nil {
		return nil, fmt.Errorf("events length: %w", err)
	}
	if count == 0 {
		return nil, nil
	}

	var out []chain.Transfer
	for i := n; i+transferLen < len(raw); i++ {
		if raw[i] != ev.Pallet || raw[i+1] != ev.Event || !phaseBefore(raw, n, i) {
			continue
		}
		from := raw[i+2 : i+2+accountLen]
		to := raw[i+2+accountLen : i+2+2*accountLen]

		var dir string
		switch {
		case bytes.Equal(from, account[:]):
			dir = chain.DirectionSent
		case bytes.Equal(to, account[:]):
			dir = chain.DirectionReceived
		default:
			continue
		}

		topics, size, err := decodeCompact(raw[i+transferLen:])
		if err != nil || topics > uint64(len(raw)) || uint64(len(raw)-i-transferLen-size) < topics*hashLen {
			continue
		}

		out = append(out, chain.Transfer{
			Direction: dir,
			Amount:    decodeU128(raw[i+2+2*accountLen : i+transferLen]).String(),
		})
		i += transferLen + size + int(topics)*hashLen - 1
	}
	return out, nil
}

// phaseBefore reports whether a Phase encoding ends right before offset i.
func phaseBefore(raw []byte, start, i int) bool {
	if i-applyExtrinsicLen >= start && raw[i-applyExtrinsicLen] == phaseApplyExtrinsic {
		return true
	}
	return i-1 >= start && (raw[i-1] == phaseFinalization || raw[i-1] == phaseInitialization)
}

// decodeU128 decodes a little-endian u128.
func decodeU128(b []byte) *big.Int {
	be := make([]byte, len(b))
	for i, v := range b {
		be[len(b)-1-i] = v
	}
	return new(big.Int).SetBytes(be)
}
