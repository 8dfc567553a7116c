// Package liveness implements the two-tier (global + per-symbol) staleness
// monitor described in spec.md §4.4. It operates purely on monotonic
// nanosecond readings supplied by the caller, so wall-clock (NTP) jumps
// never affect it. It is single-threaded (strategy thread) and performs no
// internal synchronization.
package liveness

// Config configures a Monitor. PerSymbolMaxGap overrides MaxGapSeconds for
// the named symbols.
type Config struct {
	MaxGapSeconds   float64
	PerSymbolMaxGap map[string]float64
}

// DefaultConfig returns the spec's defaults: max_gap_seconds=5.0, no
// per-symbol overrides.
func DefaultConfig() Config {
	return Config{MaxGapSeconds: 5.0, PerSymbolMaxGap: map[string]float64{}}
}

// Monitor tracks last-seen monotonic timestamps, globally and per symbol.
type Monitor struct {
	globalMaxGapNanos int64
	perSymbolGapNanos map[string]int64

	hasGlobal  bool
	globalLast int64

	lastSeen map[string]int64
}

// New builds a Monitor from cfg. cfg.MaxGapSeconds must be > 0.
func New(cfg Config) *Monitor {
	m := &Monitor{
		globalMaxGapNanos: secondsToNanos(cfg.MaxGapSeconds),
		perSymbolGapNanos: make(map[string]int64, len(cfg.PerSymbolMaxGap)),
		lastSeen:          make(map[string]int64),
	}
	for sym, secs := range cfg.PerSymbolMaxGap {
		m.perSymbolGapNanos[sym] = secondsToNanos(secs)
	}
	return m
}

func secondsToNanos(s float64) int64 { return int64(s * 1e9) }

// OnEvent records an observation for symbol at now_mono_ns, updating both
// the per-symbol and the global last-seen timestamp.
func (m *Monitor) OnEvent(symbol string, nowMonoNanos int64) {
	m.lastSeen[symbol] = nowMonoNanos
	m.hasGlobal = true
	m.globalLast = nowMonoNanos
}

// HasEverReceived reports whether at least one event has ever been
// observed.
func (m *Monitor) HasEverReceived() bool { return m.hasGlobal }

// HasSeen reports whether the given symbol was ever observed.
func (m *Monitor) HasSeen(symbol string) bool {
	_, ok := m.lastSeen[symbol]
	return ok
}

// IsFeedDead reports whether the feed as a whole has stalled. Before any
// event has ever been observed this is "unknown", not "dead", so it
// returns false (spec.md §4.4).
func (m *Monitor) IsFeedDead(nowMonoNanos int64) bool {
	if !m.hasGlobal {
		return false
	}
	return clampNonNegative(nowMonoNanos-m.globalLast) > m.globalMaxGapNanos
}

// IsStale reports whether symbol has gone quiet longer than its configured
// threshold (the per-symbol override, or the global default). Never-seen
// symbols are never stale.
func (m *Monitor) IsStale(symbol string, nowMonoNanos int64) bool {
	last, ok := m.lastSeen[symbol]
	if !ok {
		return false
	}
	return clampNonNegative(nowMonoNanos-last) > m.thresholdFor(symbol)
}

func (m *Monitor) thresholdFor(symbol string) int64 {
	if gap, ok := m.perSymbolGapNanos[symbol]; ok {
		return gap
	}
	return m.globalMaxGapNanos
}

// StaleSymbols returns every observed symbol that is currently stale. Order
// is unspecified.
func (m *Monitor) StaleSymbols(nowMonoNanos int64) []string {
	var out []string
	for sym := range m.lastSeen {
		if m.IsStale(sym, nowMonoNanos) {
			out = append(out, sym)
		}
	}
	return out
}

// LastSeenGapMillis returns milliseconds since symbol's last event, and
// true, or (0, false) if the symbol was never seen.
func (m *Monitor) LastSeenGapMillis(symbol string, nowMonoNanos int64) (int64, bool) {
	last, ok := m.lastSeen[symbol]
	if !ok {
		return 0, false
	}
	return clampNonNegative(nowMonoNanos-last) / 1e6, true
}

// clampNonNegative guards against inverted deltas. True monotonic sources
// never need this (now is always >= last), but injected test timestamps
// may invert it — see DESIGN.md Open Questions for why the clamp is kept.
func clampNonNegative(delta int64) int64 {
	if delta < 0 {
		return 0
	}
	return delta
}
