// Command feedgateway is the composition root wiring config, transport,
// adapter, dispatcher and liveness monitor together, following the shape
// of the original backend's main.go: load config, build the MQTT client,
// wire handlers, run stats/liveness tickers, wait for a signal, shut down
// cleanly.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/brokerfeed/ingestcore/internal/adapter"
	"github.com/brokerfeed/ingestcore/internal/clock"
	appconfig "github.com/brokerfeed/ingestcore/internal/config"
	"github.com/brokerfeed/ingestcore/internal/dispatcher"
	"github.com/brokerfeed/ingestcore/internal/event"
	"github.com/brokerfeed/ingestcore/internal/liveness"
	"github.com/brokerfeed/ingestcore/internal/telemetry"
	"github.com/brokerfeed/ingestcore/internal/transport"
)

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()

	cfg, err := appconfig.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("feedgateway: config load failed")
	}
	if cfg.Log.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	var clk clock.Clock = clock.System{}

	disp, err := dispatcher.New(cfg.DispatcherConfig(), log)
	if err != nil {
		log.Fatal().Err(err).Msg("feedgateway: dispatcher config invalid")
	}
	live := liveness.New(cfg.LivenessConfig())

	trans, err := transport.New(cfg.TransportConfig(), nil, nil, clk, log)
	if err != nil {
		log.Fatal().Err(err).Msg("feedgateway: transport config invalid")
	}

	// The adapter's emit callback is the only point where a decoded event
	// reaches both the dispatcher (for the strategy to poll) and the
	// liveness monitor (for staleness tracking); both are cheap,
	// non-blocking calls so the hot path contract (spec §5) holds.
	emit := func(ev event.Event) {
		live.OnEvent(ev.Symbol(), clk.MonoNowNanos())
		disp.Push(ev)
	}
	ad := adapter.New(cfg.AdapterConfig(), clk, trans, emit, log)

	for _, symbol := range cfg.Symbols {
		ad.TrackSubscription(symbol)
		topic := adapter.TopicFor(symbol)
		trans.Subscribe(topic, func(_ string, payload []byte) {
			ad.HandleMessage(payload)
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := trans.Connect(ctx); err != nil {
		log.Fatal().Err(err).Msg("feedgateway: initial connect failed")
	}

	go telemetry.Run(ctx, 1*time.Second, telemetry.Sources{
		Transport:  trans,
		Adapter:    ad,
		Dispatcher: disp,
		Liveness:   live,
		NowMono:    clk.MonoNowNanos,
	}, log)

	sigc := make(chan os.Signal, 2)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigc
	log.Info().Str("signal", sig.String()).Msg("feedgateway: shutting down")

	cancel()
	trans.Shutdown()
}
