// Package protocol decodes the broker's binary BidOfferV3 wire message
// (spec.md §6). Decoding is a single pass over the byte slice with direct
// field access and no intermediate map/reflection, per spec.md §9's
// "explicit 40-field unroll" redesign note.
package protocol

import (
	"encoding/binary"
	"fmt"
)

// Levels is the number of price levels carried per side.
const Levels = 10

// Money is the wire representation of a fixed-precision price: the exact
// value is units + nanos*1e-9. No arbitrary-precision decimal is used
// anywhere on this path (spec.md §4.2).
type Money struct {
	Units int64
	Nanos int32
}

// Float64 converts Money to a float64 by the exact expression required by
// spec.md §4.2. Downstream comparisons must use an absolute tolerance
// (<= 1e-9); this function performs no rounding beyond what float64 already
// implies.
func (m Money) Float64() float64 {
	return float64(m.Units) + float64(m.Nanos)*1e-9
}

// BidOfferV3 is the decoded wire message for topic
// "proto/topic/bidofferv3/{SYMBOL}".
type BidOfferV3 struct {
	Symbol      string
	BidPrices   [Levels]Money
	BidVolumes  [Levels]int64
	AskPrices   [Levels]Money
	AskVolumes  [Levels]int64
	BidFlag     int32
	AskFlag     int32
}

// wire layout (little-endian, fixed-width, no padding):
//
//	uint16  symbol length (N)
//	N bytes symbol (ASCII/UTF-8, not normalized here)
//	10x { int64 units, int32 nanos, int64 volume }   bid levels
//	10x { int64 units, int32 nanos, int64 volume }   ask levels
//	int32   bid_flag
//	int32   ask_flag
const levelWidth = 8 + 4 + 8 // units + nanos + volume
const fixedTrailerWidth = 4 + 4

// DecodeBidOfferV3 decodes a single BidOfferV3 message. It performs no
// allocation beyond the returned struct and the symbol string, and returns
// an error (never panics) on any malformed input — the adapter counts this
// as a ParseError and drops the message (spec.md §4.2, §7).
func DecodeBidOfferV3(b []byte) (BidOfferV3, error) {
	if len(b) < 2 {
		return BidOfferV3{}, fmt.Errorf("protocol: message too short for symbol length header (%d bytes)", len(b))
	}
	symLen := int(binary.LittleEndian.Uint16(b[0:2]))
	off := 2
	if symLen <= 0 || off+symLen > len(b) {
		return BidOfferV3{}, fmt.Errorf("protocol: invalid symbol length %d (message %d bytes)", symLen, len(b))
	}
	symbol := string(b[off : off+symLen])
	off += symLen

	needed := off + 2*Levels*levelWidth + fixedTrailerWidth
	if len(b) < needed {
		return BidOfferV3{}, fmt.Errorf("protocol: message truncated: need %d bytes, have %d", needed, len(b))
	}

	var msg BidOfferV3
	msg.Symbol = symbol

	for i := 0; i < Levels; i++ {
		units := int64(binary.LittleEndian.Uint64(b[off : off+8]))
		off += 8
		nanos := int32(binary.LittleEndian.Uint32(b[off : off+4]))
		off += 4
		vol := int64(binary.LittleEndian.Uint64(b[off : off+8]))
		off += 8
		msg.BidPrices[i] = Money{Units: units, Nanos: nanos}
		msg.BidVolumes[i] = vol
	}
	for i := 0; i < Levels; i++ {
		units := int64(binary.LittleEndian.Uint64(b[off : off+8]))
		off += 8
		nanos := int32(binary.LittleEndian.Uint32(b[off : off+4]))
		off += 4
		vol := int64(binary.LittleEndian.Uint64(b[off : off+8]))
		off += 8
		msg.AskPrices[i] = Money{Units: units, Nanos: nanos}
		msg.AskVolumes[i] = vol
	}

	msg.BidFlag = int32(binary.LittleEndian.Uint32(b[off : off+4]))
	off += 4
	msg.AskFlag = int32(binary.LittleEndian.Uint32(b[off : off+4]))
	off += 4

	return msg, nil
}

// EncodeBidOfferV3 is the inverse of DecodeBidOfferV3, used by tests to
// build round-trip fixtures and synthesized broker payloads.
func EncodeBidOfferV3(msg BidOfferV3) []byte {
	total := 2 + len(msg.Symbol) + 2*Levels*levelWidth + fixedTrailerWidth
	buf := make([]byte, total)

	binary.LittleEndian.PutUint16(buf[0:2], uint16(len(msg.Symbol)))
	off := 2
	copy(buf[off:off+len(msg.Symbol)], msg.Symbol)
	off += len(msg.Symbol)

	for i := 0; i < Levels; i++ {
		binary.LittleEndian.PutUint64(buf[off:off+8], uint64(msg.BidPrices[i].Units))
		off += 8
		binary.LittleEndian.PutUint32(buf[off:off+4], uint32(msg.BidPrices[i].Nanos))
		off += 4
		binary.LittleEndian.PutUint64(buf[off:off+8], uint64(msg.BidVolumes[i]))
		off += 8
	}
	for i := 0; i < Levels; i++ {
		binary.LittleEndian.PutUint64(buf[off:off+8], uint64(msg.AskPrices[i].Units))
		off += 8
		binary.LittleEndian.PutUint32(buf[off:off+4], uint32(msg.AskPrices[i].Nanos))
		off += 4
		binary.LittleEndian.PutUint64(buf[off:off+8], uint64(msg.AskVolumes[i]))
		off += 8
	}
	binary.LittleEndian.PutUint32(buf[off:off+4], uint32(msg.BidFlag))
	off += 4
	binary.LittleEndian.PutUint32(buf[off:off+4], uint32(msg.AskFlag))
	off += 4

	return buf
}
