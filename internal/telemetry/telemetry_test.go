package telemetry

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/brokerfeed/ingestcore/internal/adapter"
	"github.com/brokerfeed/ingestcore/internal/clock"
	"github.com/brokerfeed/ingestcore/internal/dispatcher"
	"github.com/brokerfeed/ingestcore/internal/event"
	"github.com/brokerfeed/ingestcore/internal/liveness"
	"github.com/brokerfeed/ingestcore/internal/transport"
)

func newTestSources(t *testing.T) (Sources, *clock.Fake) {
	t.Helper()

	tcfg := transport.DefaultConfig()
	tcfg.AppID = "app"
	tcfg.AppSecret = "c2VjcmV0"
	tcfg.AppCode = "code"
	tcfg.BrokerID = "BRK-1"
	trans, err := transport.New(tcfg, nil, nil, clock.System{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("transport.New: %v", err)
	}

	disp, err := dispatcher.New(dispatcher.DefaultConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("dispatcher.New: %v", err)
	}

	live := liveness.New(liveness.DefaultConfig())

	clk := clock.NewFake(0, 0)
	ad := adapter.New(adapter.DefaultConfig(), clk, trans, func(event.Event) {}, zerolog.Nop())

	return Sources{
		Transport:  trans,
		Adapter:    ad,
		Dispatcher: disp,
		Liveness:   live,
		NowMono:    clk.MonoNowNanos,
	}, clk
}

func TestRunLogsOneSummaryPerTickAndStopsOnCancel(t *testing.T) {
	src, _ := newTestSources(t)

	var buf bytes.Buffer
	log := zerolog.New(&buf)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Run(ctx, 5*time.Millisecond, src, log)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}

	out := buf.String()
	if !strings.Contains(out, `"message":"stats"`) {
		t.Fatalf("expected at least one stats log line, got: %s", out)
	}
	if !strings.Contains(out, `"state":"init"`) {
		t.Fatalf("expected state=init in stats line, got: %s", out)
	}
}

func TestRunLogsFeedDeadTransition(t *testing.T) {
	src, clk := newTestSources(t)
	src.Liveness.OnEvent("AOT", clk.MonoNowNanos())
	clk.Advance(100 * time.Second) // well past max_gap_seconds -> dead from tick 1

	var buf bytes.Buffer
	log := zerolog.New(&buf)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Run(ctx, 5*time.Millisecond, src, log)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	if !strings.Contains(buf.String(), "feed dead") {
		t.Fatalf("expected a feed dead log line, got: %s", buf.String())
	}
}
