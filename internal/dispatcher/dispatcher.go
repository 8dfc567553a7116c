// Package dispatcher implements the bounded single-producer/single-consumer
// queue that decouples the adapter's hot path from the strategy thread
// (spec.md §4.3). It is a pre-sized ring buffer with drop-oldest
// backpressure, race-free drop accounting, and an EMA-smoothed drop-rate
// health signal.
package dispatcher

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/brokerfeed/ingestcore/internal/event"
)

// Config configures a Dispatcher. Zero values are rejected by New; use
// DefaultConfig for the spec's defaults (spec.md §6).
type Config struct {
	MaxLen               int
	EMAAlpha             float64
	DropWarningThreshold float64
}

// DefaultConfig returns the spec's defaults: maxlen=100_000, ema_alpha=0.01,
// drop_warning_threshold=0.01.
func DefaultConfig() Config {
	return Config{MaxLen: 100_000, EMAAlpha: 0.01, DropWarningThreshold: 0.01}
}

func (c Config) validate() error {
	if c.MaxLen <= 0 {
		return fmt.Errorf("dispatcher: maxlen must be > 0, got %d", c.MaxLen)
	}
	if c.EMAAlpha <= 0 || c.EMAAlpha > 1 {
		return fmt.Errorf("dispatcher: ema_alpha must be in (0,1], got %v", c.EMAAlpha)
	}
	if c.DropWarningThreshold <= 0 || c.DropWarningThreshold > 1 {
		return fmt.Errorf("dispatcher: drop_warning_threshold must be in (0,1], got %v", c.DropWarningThreshold)
	}
	return nil
}

// Stats is an eventually-consistent snapshot of the dispatcher's counters.
// Each counter has a single writer; the tuple as a whole is not
// transactional.
type Stats struct {
	TotalPushed  uint64
	TotalPolled  uint64
	TotalDropped uint64
	QueueLen     int
	MaxLen       int
}

// Health is the smoothed drop-rate signal plus queue utilization.
type Health struct {
	DropRateEMA      float64
	QueueUtilization float64
	TotalDropped     uint64
	TotalPushed      uint64
}

// Dispatcher is a bounded ring buffer. Exactly one goroutine may call Push
// and exactly one (possibly different) goroutine may call Poll; Clear
// requires both to be quiesced (spec.md §4.3's concurrency contract).
//
// Eviction on a full buffer requires advancing the read index from the
// write side, which the producer and consumer would otherwise both touch
// unsynchronized. Rather than hand-roll a lock-free ring with wraparound
// CAS loops, the index bookkeeping (head/tail/len) is held under a single
// short mutex — the same "short-held lock" discipline spec.md §5 already
// prescribes for the subscription table. Only index arithmetic and a single
// event copy happen under the lock; nothing here blocks on I/O.
type Dispatcher struct {
	cfg Config
	log zerolog.Logger

	mu   sync.Mutex
	buf  []event.Event
	head int
	tail int
	n    int

	totalPushed  uint64
	totalPolled  uint64
	totalDropped uint64

	// dropRateEMABits is written only by the producer (Push) and read by
	// any thread via Health(); stored behind an atomic so readers never
	// observe a torn 64-bit word.
	dropRateEMABits atomic.Uint64

	aboveThreshold bool // edge-tracking for warn/info logs; producer-only
}

// New builds a Dispatcher. cfg is validated against spec.md §6's bounds.
func New(cfg Config, log zerolog.Logger) (*Dispatcher, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	d := &Dispatcher{
		cfg: cfg,
		log: log.With().Str("component", "dispatcher").Logger(),
		buf: make([]event.Event, cfg.MaxLen),
	}
	return d, nil
}

// Push is called only by the producer thread. It evicts the oldest event
// when the buffer is full, so Push never blocks and never fails.
//
// Race-free drop accounting: whether the buffer is full is determined
// before the append — this pre-check is sound because Push is the only
// path that grows n, and the lock makes the full-check/evict/append
// sequence atomic with respect to a concurrent Poll.
func (d *Dispatcher) Push(e event.Event) {
	d.mu.Lock()
	dropped := d.n == d.cfg.MaxLen
	if dropped {
		d.head = (d.head + 1) % d.cfg.MaxLen // oldest slot about to be overwritten
		atomic.AddUint64(&d.totalDropped, 1)
	} else {
		d.n++
	}
	d.buf[d.tail] = e
	d.tail = (d.tail + 1) % d.cfg.MaxLen
	d.mu.Unlock()

	atomic.AddUint64(&d.totalPushed, 1)
	d.updateEMA(dropped)
}

func (d *Dispatcher) updateEMA(dropped bool) {
	sample := 0.0
	if dropped {
		sample = 1.0
	}
	prev := math.Float64frombits(d.dropRateEMABits.Load())
	next := d.cfg.EMAAlpha*sample + (1-d.cfg.EMAAlpha)*prev
	d.dropRateEMABits.Store(math.Float64bits(next))

	above := next > d.cfg.DropWarningThreshold
	if above && !d.aboveThreshold {
		d.log.Warn().Float64("drop_rate_ema", next).Msg("drop rate crossed warning threshold")
	} else if !above && d.aboveThreshold {
		d.log.Info().Float64("drop_rate_ema", next).Msg("drop rate recovered below warning threshold")
	}
	d.aboveThreshold = above
}

// Poll is called only by the consumer thread. It pops up to maxEvents items
// from the front in FIFO order, stopping early if the queue is empty.
func (d *Dispatcher) Poll(maxEvents int) ([]event.Event, error) {
	if maxEvents <= 0 {
		return nil, fmt.Errorf("dispatcher: poll maxEvents must be > 0, got %d", maxEvents)
	}

	d.mu.Lock()
	n := d.n
	if n > maxEvents {
		n = maxEvents
	}
	var out []event.Event
	if n > 0 {
		out = make([]event.Event, n)
		for i := 0; i < n; i++ {
			out[i] = d.buf[d.head]
			d.head = (d.head + 1) % d.cfg.MaxLen
		}
		d.n -= n
	}
	d.mu.Unlock()

	if n == 0 {
		return nil, nil
	}
	atomic.AddUint64(&d.totalPolled, uint64(n))
	return out, nil
}

// Clear empties the queue and resets all counters and the EMA. The caller
// must ensure the producer and consumer are quiesced before calling Clear.
func (d *Dispatcher) Clear() {
	d.mu.Lock()
	d.head, d.tail, d.n = 0, 0, 0
	d.mu.Unlock()

	atomic.StoreUint64(&d.totalPushed, 0)
	atomic.StoreUint64(&d.totalPolled, 0)
	atomic.StoreUint64(&d.totalDropped, 0)
	d.dropRateEMABits.Store(0)
	d.aboveThreshold = false
}

// Stats returns an eventually-consistent snapshot (spec.md §4.3).
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	qlen := d.n
	d.mu.Unlock()

	return Stats{
		TotalPushed:  atomic.LoadUint64(&d.totalPushed),
		TotalPolled:  atomic.LoadUint64(&d.totalPolled),
		TotalDropped: atomic.LoadUint64(&d.totalDropped),
		QueueLen:     qlen,
		MaxLen:       d.cfg.MaxLen,
	}
}

// Health returns the smoothed drop-rate signal (spec.md §4.3).
func (d *Dispatcher) Health() Health {
	d.mu.Lock()
	qlen := d.n
	d.mu.Unlock()

	return Health{
		DropRateEMA:      math.Float64frombits(d.dropRateEMABits.Load()),
		QueueUtilization: float64(qlen) / float64(d.cfg.MaxLen),
		TotalDropped:     atomic.LoadUint64(&d.totalDropped),
		TotalPushed:      atomic.LoadUint64(&d.totalPushed),
	}
}
