// Package event defines the immutable typed market-data snapshots produced
// by the adapter and carried through the dispatcher to the strategy.
package event

import (
	"fmt"
	"strings"
)

// Flag is the auction/session indicator carried on both sides of a quote.
type Flag int32

const (
	FlagUndefined Flag = 0
	FlagNormal    Flag = 1
	FlagAto       Flag = 2
	FlagAtc       Flag = 3
)

func (f Flag) String() string {
	switch f {
	case FlagUndefined:
		return "UNDEFINED"
	case FlagNormal:
		return "NORMAL"
	case FlagAto:
		return "ATO"
	case FlagAtc:
		return "ATC"
	default:
		return fmt.Sprintf("FLAG(%d)", int32(f))
	}
}

func isAuctionFlag(f Flag) bool {
	return f == FlagAto || f == FlagAtc
}

// DepthLevels is the fixed tuple length used by depth-of-book events.
const DepthLevels = 10

// Kind tags which variant an Event holds.
type Kind int8

const (
	KindTopOfBook Kind = iota
	KindDepthBook
)

// TopOfBook is the best-bid/best-offer snapshot variant.
type TopOfBook struct {
	Symbol          string
	Bid             float64
	Ask             float64
	BidVol          uint64
	AskVol          uint64
	BidFlag         Flag
	AskFlag         Flag
	RecvTSNanos     int64
	RecvMonoNanos   int64
	ConnectionEpoch uint64
}

// IsAuction reports whether either side of the quote is in an auction state.
func (t TopOfBook) IsAuction() bool { return isAuctionFlag(t.BidFlag) || isAuctionFlag(t.AskFlag) }

// DepthBook is the ten-level market-by-price snapshot variant. BidVols and
// AskVols share the same element type: the spec's "a negative volume could
// reach a strategy" trade-off (see DESIGN.md Open Questions) applies
// symmetrically to both sides, on the wire a negative reading becomes a
// large uint64 on either side rather than silently staying negative on one
// and wrapping on the other.
type DepthBook struct {
	Symbol          string
	BidPrices       [DepthLevels]float64
	AskPrices       [DepthLevels]float64
	BidVols         [DepthLevels]uint64 // fast path: not bounds-checked, see type doc above
	AskVols         [DepthLevels]uint64 // fast path: not bounds-checked, see type doc above
	BidFlag         Flag
	AskFlag         Flag
	RecvTSNanos     int64
	RecvMonoNanos   int64
	ConnectionEpoch uint64
}

// IsAuction reports whether either side of the book is in an auction state.
func (d DepthBook) IsAuction() bool { return isAuctionFlag(d.BidFlag) || isAuctionFlag(d.AskFlag) }

// Event is the sealed sum type produced by the adapter. Exactly one of
// TopOfBook/DepthBook is meaningful, selected by Kind.
type Event struct {
	Kind      Kind
	TopOfBook TopOfBook
	DepthBook DepthBook
}

// IsAuction dispatches to whichever variant is populated.
func (e Event) IsAuction() bool {
	switch e.Kind {
	case KindTopOfBook:
		return e.TopOfBook.IsAuction()
	case KindDepthBook:
		return e.DepthBook.IsAuction()
	default:
		return false
	}
}

// Symbol returns the populated variant's symbol.
func (e Event) Symbol() string {
	switch e.Kind {
	case KindTopOfBook:
		return e.TopOfBook.Symbol
	case KindDepthBook:
		return e.DepthBook.Symbol
	default:
		return ""
	}
}

// NewTopOfBookFast builds a TopOfBook without per-field validation. It is the
// hot-path constructor and trusts the adapter's inputs: the decoder rejects
// an empty symbol and timestamps come from the clock, but the adapter
// converts wire volumes to uint64 without a range check.
// connection_epoch is NOT defaulted here by design (see DESIGN.md Open
// Questions) — any caller bypassing the adapter must set it explicitly.
func NewTopOfBookFast(t TopOfBook) Event {
	return Event{Kind: KindTopOfBook, TopOfBook: t}
}

// NewDepthBookFast builds a DepthBook without per-field validation, including
// skipping per-element range checks on the depth tuples (documented
// trade-off, not a bug — see DESIGN.md Open Questions).
func NewDepthBookFast(d DepthBook) Event {
	return Event{Kind: KindDepthBook, DepthBook: d}
}

// NewTopOfBookValidated builds a TopOfBook, normalizing the symbol to upper
// case and rejecting an empty symbol or negative timestamps. Flag values are
// not range-checked. Intended for tests and any untrusted/external input path.
func NewTopOfBookValidated(t TopOfBook) (Event, error) {
	t.Symbol = strings.ToUpper(strings.TrimSpace(t.Symbol))
	if t.Symbol == "" {
		return Event{}, fmt.Errorf("event: symbol must be non-empty")
	}
	if t.RecvTSNanos < 0 {
		return Event{}, fmt.Errorf("event: recv_ts_ns must be non-negative, got %d", t.RecvTSNanos)
	}
	if t.RecvMonoNanos < 0 {
		return Event{}, fmt.Errorf("event: recv_mono_ns must be non-negative, got %d", t.RecvMonoNanos)
	}
	return NewTopOfBookFast(t), nil
}

// NewDepthBookValidated builds a DepthBook, normalizing the symbol to upper
// case and rejecting an empty symbol or negative timestamps. Depth-tuple
// elements and flag values are not checked.
func NewDepthBookValidated(d DepthBook) (Event, error) {
	d.Symbol = strings.ToUpper(strings.TrimSpace(d.Symbol))
	if d.Symbol == "" {
		return Event{}, fmt.Errorf("event: symbol must be non-empty")
	}
	if d.RecvTSNanos < 0 {
		return Event{}, fmt.Errorf("event: recv_ts_ns must be non-negative, got %d", d.RecvTSNanos)
	}
	if d.RecvMonoNanos < 0 {
		return Event{}, fmt.Errorf("event: recv_mono_ns must be non-negative, got %d", d.RecvMonoNanos)
	}
	return NewDepthBookFast(d), nil
}
