// Package adapter decodes a binary BidOfferV3 message into an immutable
// typed event.Event and emits it via a user-supplied callback, with strict,
// mutually-exclusive error accounting (spec.md §4.2).
package adapter

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/brokerfeed/ingestcore/internal/clock"
	"github.com/brokerfeed/ingestcore/internal/event"
	"github.com/brokerfeed/ingestcore/internal/protocol"
)

// Mode selects what Event variant the adapter emits per message.
type Mode int

const (
	// ModeTopOfBook allocates a handful of fields per message; the default,
	// low-latency mode.
	ModeTopOfBook Mode = iota
	// ModeDepth allocates one event plus four length-10 sequences per
	// message. Not intended for ultra-low-latency strategies (spec.md §4.2).
	ModeDepth
)

// TopicPrefix is the fixed topic namespace for subscribable symbols
// (spec.md §4.2, §6): "proto/topic/bidofferv3/{SYMBOL}".
const TopicPrefix = "proto/topic/bidofferv3/"

// EpochSource is the adapter's non-owning handle to the transport: just
// enough surface to stamp connection_epoch onto outgoing events (spec.md
// §3.2 ownership notes).
type EpochSource interface {
	Epoch() uint64
}

// EmitFunc receives every successfully decoded event. It is the adapter's
// only owned collaborator on the hot path (spec.md §3.2); a panic inside it
// is isolated per message (spec.md §4.2).
type EmitFunc func(event.Event)

// Config configures an Adapter. FullDepth selects Mode (spec.md §6).
type Config struct {
	FullDepth bool
}

// DefaultConfig returns the spec's default: full_depth=false.
func DefaultConfig() Config { return Config{FullDepth: false} }

const (
	rateLimitFirstN   = 10
	rateLimitEveryNth = 1000
)

// rateLimitedCounter tracks one error category's occurrence count so the
// adapter can log the first N0 occurrences in full and every Nth one after
// that (spec.md §4.2). Counters are the canonical signal; these logs are
// supplementary.
type rateLimitedCounter struct{ n atomic.Uint64 }

// shouldLog reports whether the occurrence just recorded should be logged,
// and whether it's still within the "first N0, full detail" phase.
func (r *rateLimitedCounter) shouldLog() (log bool, detailed bool) {
	n := r.n.Add(1)
	if n <= rateLimitFirstN {
		return true, true
	}
	return n%rateLimitEveryNth == 0, false
}

// Stats is a snapshot of the adapter's mutually-exclusive per-message
// counters (spec.md §3.1). Exactly one increments per inbound message.
type Stats struct {
	MessagesParsed uint64
	ParseErrors    uint64
	CallbackErrors uint64
}

// Adapter decodes BidOfferV3 payloads delivered on subscribed topics and
// emits typed events.
type Adapter struct {
	cfg   Config
	clock clock.Clock
	epoch EpochSource
	emit  EmitFunc
	log   zerolog.Logger

	messagesParsed uint64
	parseErrors    uint64
	callbackErrors uint64

	parseErrLimiter    rateLimitedCounter
	callbackErrLimiter rateLimitedCounter

	mu                sync.RWMutex
	subscribedSymbols map[string]struct{}
}

// New builds an Adapter. epoch supplies connection_epoch at emission time;
// emit receives every successfully decoded event.
func New(cfg Config, clk clock.Clock, epoch EpochSource, emit EmitFunc, log zerolog.Logger) *Adapter {
	return &Adapter{
		cfg:               cfg,
		clock:             clk,
		epoch:             epoch,
		emit:              emit,
		log:               log.With().Str("component", "adapter").Logger(),
		subscribedSymbols: make(map[string]struct{}),
	}
}

// TopicFor returns the fully-qualified topic for symbol, uppercasing it for
// subscribe-time normalization (spec.md §4.2).
func TopicFor(symbol string) string {
	return TopicPrefix + strings.ToUpper(strings.TrimSpace(symbol))
}

// TrackSubscription records that symbol has been subscribed, for
// observability (spec.md §4.2 "the set of subscribed symbols is tracked").
func (a *Adapter) TrackSubscription(symbol string) {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	a.mu.Lock()
	a.subscribedSymbols[sym] = struct{}{}
	a.mu.Unlock()
}

// SubscribedSymbols returns a snapshot of every symbol currently tracked.
func (a *Adapter) SubscribedSymbols() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]string, 0, len(a.subscribedSymbols))
	for sym := range a.subscribedSymbols {
		out = append(out, sym)
	}
	return out
}

// Stats returns the adapter's mutually-exclusive counters.
func (a *Adapter) Stats() Stats {
	return Stats{
		MessagesParsed: atomic.LoadUint64(&a.messagesParsed),
		ParseErrors:    atomic.LoadUint64(&a.parseErrors),
		CallbackErrors: atomic.LoadUint64(&a.callbackErrors),
	}
}

// HandleMessage is the adapter's hot path, invoked by the transport's
// on-message callback for every inbound payload on a subscribed topic.
// Exactly one of messages_parsed/parse_errors/callback_errors increments by
// exactly 1 per call (spec.md §3.1 invariant, §8 property 2).
func (a *Adapter) HandleMessage(payload []byte) {
	recvTSNanos := a.clock.WallNowNanos()
	recvMonoNanos := a.clock.MonoNowNanos()

	ev, err := a.decode(payload, recvTSNanos, recvMonoNanos)
	if err != nil {
		atomic.AddUint64(&a.parseErrors, 1)
		if log, detailed := a.parseErrLimiter.shouldLog(); log {
			a.logError("parse_error", err, detailed)
		}
		return
	}

	if !a.invokeEmit(ev) {
		atomic.AddUint64(&a.callbackErrors, 1)
		return
	}
	atomic.AddUint64(&a.messagesParsed, 1)
}

// decode performs the single-pass binary decode plus Money conversion and
// builds the event via the non-validating hot-path constructor. It is
// wrapped separately from the emit callback so a decode failure is counted
// as ParseError while a callback failure is counted as CallbackError
// (spec.md §4.2 step 5).
func (a *Adapter) decode(payload []byte, recvTSNanos, recvMonoNanos int64) (ev event.Event, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recoverToError(r)
		}
	}()

	msg, decErr := protocol.DecodeBidOfferV3(payload)
	if decErr != nil {
		return event.Event{}, decErr
	}

	epoch := a.epoch.Epoch()
	symbol := strings.ToUpper(msg.Symbol)

	if a.cfg.FullDepth {
		var bidPrices, askPrices [event.DepthLevels]float64
		var bidVols, askVols [event.DepthLevels]uint64
		for i := 0; i < event.DepthLevels; i++ {
			bidPrices[i] = msg.BidPrices[i].Float64()
			askPrices[i] = msg.AskPrices[i].Float64()
			bidVols[i] = uint64(msg.BidVolumes[i])
			askVols[i] = uint64(msg.AskVolumes[i])
		}
		return event.NewDepthBookFast(event.DepthBook{
			Symbol:          symbol,
			BidPrices:       bidPrices,
			AskPrices:       askPrices,
			BidVols:         bidVols,
			AskVols:         askVols,
			BidFlag:         event.Flag(msg.BidFlag),
			AskFlag:         event.Flag(msg.AskFlag),
			RecvTSNanos:     recvTSNanos,
			RecvMonoNanos:   recvMonoNanos,
			ConnectionEpoch: epoch,
		}), nil
	}

	return event.NewTopOfBookFast(event.TopOfBook{
		Symbol:          symbol,
		Bid:             msg.BidPrices[0].Float64(),
		Ask:             msg.AskPrices[0].Float64(),
		BidVol:          uint64(msg.BidVolumes[0]),
		AskVol:          uint64(msg.AskVolumes[0]),
		BidFlag:         event.Flag(msg.BidFlag),
		AskFlag:         event.Flag(msg.AskFlag),
		RecvTSNanos:     recvTSNanos,
		RecvMonoNanos:   recvMonoNanos,
		ConnectionEpoch: epoch,
	}), nil
}

// invokeEmit calls the user callback in isolation: a panic there is
// recovered, logged (rate-limited), and counted as CallbackError without
// affecting any other message.
func (a *Adapter) invokeEmit(ev event.Event) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			if log, detailed := a.callbackErrLimiter.shouldLog(); log {
				a.logError("callback_error", recoverToError(r), detailed)
			}
		}
	}()
	a.emit(ev)
	return true
}

func (a *Adapter) logError(category string, err error, detailed bool) {
	if detailed {
		a.log.Error().Str("category", category).Err(err).Msg("adapter error")
		return
	}
	a.log.Warn().Str("category", category).Err(err).Msg("adapter error (rate-limited summary)")
}

func recoverToError(r interface{}) error {
	if err, ok := r.(error); ok {
		return err
	}
	return &panicError{value: r}
}

type panicError struct{ value interface{} }

func (p *panicError) Error() string { return fmt.Sprintf("adapter: recovered panic: %v", p.value) }
