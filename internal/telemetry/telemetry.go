// Package telemetry periodically logs a one-line health summary, in the
// same shape as the original backend's 1-second stats-log ticker, and
// edge-logs feed-liveness transitions the same way the original
// connection-liveness ticker logged "connection dead"/"connection alive".
package telemetry

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/brokerfeed/ingestcore/internal/adapter"
	"github.com/brokerfeed/ingestcore/internal/dispatcher"
	"github.com/brokerfeed/ingestcore/internal/liveness"
	"github.com/brokerfeed/ingestcore/internal/transport"
)

// Sources bundles the components a stats-log tick reads from.
type Sources struct {
	Transport  *transport.Transport
	Adapter    *adapter.Adapter
	Dispatcher *dispatcher.Dispatcher
	Liveness   *liveness.Monitor
	NowMono    func() int64
}

// Run logs one summary line per interval until ctx is cancelled, and
// edge-logs is_feed_dead() transitions, mirroring the original's
// "connection dead"/"connection alive" ticker.
func Run(ctx context.Context, interval time.Duration, src Sources, log zerolog.Logger) {
	log = log.With().Str("component", "telemetry").Logger()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	wasDead := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		tstats := src.Transport.Stats()
		astats := src.Adapter.Stats()
		dstats := src.Dispatcher.Stats()
		health := src.Dispatcher.Health()

		log.Info().
			Str("state", tstats.State.String()).
			Uint64("reconnect_count", tstats.ReconnectCount).
			Uint64("reconnect_epoch", tstats.ReconnectEpoch).
			Uint64("messages_received", tstats.MessagesReceived).
			Uint64("messages_parsed", astats.MessagesParsed).
			Uint64("parse_errors", astats.ParseErrors).
			Uint64("callback_errors", astats.CallbackErrors).
			Int("queue_len", dstats.QueueLen).
			Uint64("total_dropped", dstats.TotalDropped).
			Float64("drop_rate_ema", health.DropRateEMA).
			Msg("stats")

		now := src.NowMono()
		dead := src.Liveness.IsFeedDead(now)
		if dead && !wasDead {
			log.Warn().Msg("feed dead (no events within max_gap_seconds)")
		}
		if !dead && wasDead {
			log.Info().Msg("feed alive (events resumed)")
		}
		wasDead = dead
	}
}
