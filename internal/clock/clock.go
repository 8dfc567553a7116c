// Package clock provides the monotonic/wallclock seam used across the
// ingestion core so tests can drive liveness and latency calculations
// without real sleeps.
package clock

import "time"

// Clock supplies wall-clock and monotonic readings. The monotonic reading
// is expressed in nanoseconds since an arbitrary, per-process epoch: callers
// must only ever take differences between two readings of the same Clock.
type Clock interface {
	WallNowNanos() int64
	MonoNowNanos() int64
}

// System is the production Clock backed by the runtime's monotonic clock.
type System struct{}

func (System) WallNowNanos() int64 { return time.Now().UnixNano() }

func (System) MonoNowNanos() int64 {
	// time.Since against a fixed reference retains the monotonic reading
	// embedded in time.Time values since Go 1.9.
	return time.Since(processStart).Nanoseconds()
}

var processStart = time.Now()

// Fake is a manually advanced Clock for deterministic tests.
type Fake struct {
	wall int64
	mono int64
}

// NewFake builds a Fake clock starting at the given wall/mono readings.
func NewFake(wallNanos, monoNanos int64) *Fake {
	return &Fake{wall: wallNanos, mono: monoNanos}
}

func (f *Fake) WallNowNanos() int64 { return f.wall }
func (f *Fake) MonoNowNanos() int64 { return f.mono }

// Advance moves both readings by d. Fake does not reject a negative d; tests
// that need an inverted monotonic reading (to exercise the clamp in
// internal/liveness) use SetMono.
func (f *Fake) Advance(d time.Duration) {
	f.wall += d.Nanoseconds()
	f.mono += d.Nanoseconds()
}

// SetMono pins the monotonic reading directly, for tests that need to
// construct an inverted delta.
func (f *Fake) SetMono(n int64) { f.mono = n }
