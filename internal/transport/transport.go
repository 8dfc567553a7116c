// Package transport maintains a single authenticated MQTT-over-WSS session
// to a broker address obtained at runtime: authentication, reconnect with
// exponential backoff, controlled token refresh, client-generation fencing
// and subscription replay (spec.md §4.1).
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/brokerfeed/ingestcore/internal/clock"
)

// refreshWatcherMaxSleep bounds the token-refresh watcher's wake interval:
// min(60s, time-to-refresh) (spec.md §4.1).
const refreshWatcherMaxSleep = 60 * time.Second

// connectTimeout bounds REST calls, the WS handshake and subscribe acks.
const connectTimeout = 10 * time.Second

// Transport is the transport state machine of spec.md §4.1. The zero value
// is not usable; construct with New.
type Transport struct {
	cfg             Config
	authClient      AuthClient
	discoveryClient DiscoveryClient
	clk             clock.Clock
	log             zerolog.Logger

	subs *subscriptionTable

	mu                    sync.Mutex
	state                 State
	client                mqtt.Client
	reconnecting          bool
	lastConnectTSNanos    int64
	lastDisconnectTSNanos int64
	reconnectCount        uint64
	env                   resolvedEnvironment
	accessToken           string
	tokenType             string
	tokenExpiresAt        time.Time
	lastHosts             []string

	clientGeneration atomic.Uint64
	reconnectEpoch   atomic.Uint64

	messagesReceived uint64
	callbackErrors   uint64

	group    *errgroup.Group
	groupCtx context.Context
	cancel   context.CancelFunc

	shutdownOnce sync.Once
}

// New constructs a Transport in State Init. authClient/discoveryClient are
// the out-of-scope REST collaborators (spec.md §1); nil selects the default
// net/http-backed implementations.
func New(cfg Config, authClient AuthClient, discoveryClient DiscoveryClient, clk clock.Clock, log zerolog.Logger) (*Transport, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if authClient == nil {
		authClient = NewHTTPAuthClient()
	}
	if discoveryClient == nil {
		discoveryClient = NewHTTPDiscoveryClient()
	}
	return &Transport{
		cfg:             cfg,
		authClient:      authClient,
		discoveryClient: discoveryClient,
		clk:             clk,
		log:             log.With().Str("component", "transport").Logger(),
		subs:            newSubscriptionTable(),
		state:           StateInit,
	}, nil
}

// Epoch satisfies adapter.EpochSource: the current reconnect_epoch.
func (t *Transport) Epoch() uint64 { return t.reconnectEpoch.Load() }

// State returns the current lifecycle state.
func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Stats returns a point-in-time snapshot of counters and state (spec.md
// §4.1 stats()).
func (t *Transport) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Stats{
		State:                 t.state,
		MessagesReceived:      atomic.LoadUint64(&t.messagesReceived),
		CallbackErrors:        atomic.LoadUint64(&t.callbackErrors),
		ReconnectCount:        t.reconnectCount,
		ReconnectEpoch:        t.reconnectEpoch.Load(),
		LastConnectTSNanos:    t.lastConnectTSNanos,
		LastDisconnectTSNanos: t.lastDisconnectTSNanos,
		ClientGeneration:      t.clientGeneration.Load(),
	}
}

// Connect performs the connect sequence of spec.md §4.1: authenticate,
// discover, build the first MQTT client, start its I/O loop and the
// background token-refresh watcher. Only legal from Init.
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.state != StateInit {
		t.mu.Unlock()
		return fmt.Errorf("%w: connect() called in state %s", ErrInvalidState, t.state)
	}
	t.state = StateConnecting
	t.mu.Unlock()

	gctx, cancel := context.WithCancel(ctx)
	group, gctx := errgroup.WithContext(gctx)
	t.group = group
	t.groupCtx = gctx
	t.cancel = cancel

	if err := t.authAndDiscover(ctx); err != nil {
		return err
	}
	if err := t.buildAndConnect(1); err != nil {
		return err
	}

	t.group.Go(func() error {
		t.tokenRefreshWatcher(t.groupCtx)
		return nil
	})
	return nil
}

// authAndDiscover performs the REST authenticate+discover pair and stores
// the resulting token/host material (spec.md §4.1 steps a, b).
func (t *Transport) authAndDiscover(ctx context.Context) error {
	env := resolveEnvironment(t.cfg)

	authCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	auth, err := t.authClient.Authenticate(authCtx, env, t.cfg)
	cancel()
	if err != nil {
		return err
	}

	discCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	disc, err := t.discoveryClient.Discover(discCtx, env, auth.AccessToken, auth.TokenType)
	cancel()
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.env = env
	t.accessToken = disc.Token
	t.tokenType = disc.TokenType
	t.tokenExpiresAt = auth.ExpiresAt
	t.lastHosts = disc.Hosts
	t.mu.Unlock()
	return nil
}

// buildAndConnect builds a fresh MQTT client stamped with generation,
// assigns it as the transport's current client, and waits for the TCP/MQTT
// CONNECT to succeed. The previous client, if any, is cleanly disconnected
// only after the new one is up (spec.md §4.1 reconnect procedure step 2).
func (t *Transport) buildAndConnect(generation uint64) error {
	t.mu.Lock()
	hosts := t.lastHosts
	token := t.accessToken
	tokenType := t.tokenType
	t.mu.Unlock()

	if len(hosts) == 0 {
		return fmt.Errorf("%w: no hosts from discovery", ErrDiscoveryFailed)
	}

	opts := t.buildClientOptions(hosts[0], token, tokenType, generation)
	client := mqtt.NewClient(opts)

	t.mu.Lock()
	old := t.client
	t.client = client
	t.mu.Unlock()
	t.clientGeneration.Store(generation)

	tok := client.Connect()
	if !tok.WaitTimeout(connectTimeout) {
		return fmt.Errorf("transport: connect timed out after %s", connectTimeout)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("transport: connect: %w", err)
	}

	if old != nil {
		old.Disconnect(250)
	}
	return nil
}

// buildClientOptions constructs the paho ClientOptions for one connection
// attempt: WSS transport over a custom dialer carrying the Authorization
// header (spec.md §6), clean_session=true, owned reconnection (the
// transport's own reconnect procedure replaces paho's built-in one).
func (t *Transport) buildClientOptions(host, token, tokenType string, generation uint64) *mqtt.ClientOptions {
	brokerURL := fmt.Sprintf("wss://%s:%d", host, t.cfg.Port)

	opts := mqtt.NewClientOptions().AddBroker(brokerURL)
	opts.SetClientID(fmt.Sprintf("%s-%d", t.cfg.AppID, generation))
	opts.SetCleanSession(true)
	opts.SetKeepAlive(t.cfg.KeepAlive)
	opts.SetAutoReconnect(false)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetOrderMatters(false)

	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	opts.SetCustomOpenConnectionFn(customDialer(t.env.BrokerID, tokenType, token, connectTimeout, tlsConfig))

	opts.SetOnConnectHandler(func(mqtt.Client) {
		t.handleConnectSuccess(generation)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		t.handleConnectionLost(generation, err)
	})

	return opts
}

// handleConnectSuccess replays every subscribed topic on the new client,
// then transitions to Connected and, if this is a reconnect, bumps
// reconnect_epoch only after replay has been issued (spec.md §4.1, §5
// ordering guarantee).
func (t *Transport) handleConnectSuccess(generation uint64) {
	t.mu.Lock()
	client := t.client
	t.mu.Unlock()
	if client == nil || t.clientGeneration.Load() != generation {
		return
	}

	for _, topic := range t.subs.topics() {
		t.issueBrokerSubscribe(client, topic, generation)
	}

	isReconnect := generation > 1

	t.mu.Lock()
	t.lastConnectTSNanos = t.clk.WallNowNanos()
	t.state = StateConnected
	if isReconnect {
		t.reconnectCount++
	}
	t.reconnecting = false
	t.mu.Unlock()

	if isReconnect {
		t.reconnectEpoch.Add(1)
	}

	t.log.Info().Uint64("generation", generation).Bool("reconnect", isReconnect).Msg("transport connected")
}

// handleConnectionLost is paho's ConnectionLostHandler. A disconnect from a
// superseded client generation is ignored; otherwise a reconnect is
// triggered (spec.md §4.1 reconnect triggers).
func (t *Transport) handleConnectionLost(generation uint64, err error) {
	t.mu.Lock()
	if t.state == StateShutdown {
		t.mu.Unlock()
		return
	}
	if generation != t.clientGeneration.Load() {
		t.mu.Unlock()
		return
	}
	t.lastDisconnectTSNanos = t.clk.WallNowNanos()
	t.mu.Unlock()

	t.log.Warn().Err(err).Msg("transport: connection lost")
	t.triggerReconnect("connection_lost")
}

// issueBrokerSubscribe issues one broker-side subscribe and waits briefly
// for the ack; failures are logged, not propagated (spec.md §7: I/O-thread
// errors are never surfaced to the strategy thread).
func (t *Transport) issueBrokerSubscribe(client mqtt.Client, topic string, generation uint64) {
	tok := client.Subscribe(topic, 0, t.onBrokerMessage(generation))
	if !tok.WaitTimeout(connectTimeout) {
		t.log.Warn().Str("topic", topic).Msg("transport: subscribe timed out")
		return
	}
	if err := tok.Error(); err != nil {
		t.log.Warn().Str("topic", topic).Err(err).Msg("transport: subscribe failed")
	}
}

// onBrokerMessage builds the on-message hot path for one client generation
// (spec.md §4.1 "On-message hot path"). A message whose captured generation
// no longer matches the live one is silently dropped: no counter, no log
// (spec.md §7, StalePayload).
func (t *Transport) onBrokerMessage(generation uint64) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		if generation != t.clientGeneration.Load() {
			return
		}
		atomic.AddUint64(&t.messagesReceived, 1)

		topic := msg.Topic()
		payload := msg.Payload()
		for _, cb := range t.subs.callbacksFor(topic) {
			t.invokeCallback(cb, topic, payload)
		}
	}
}

// invokeCallback isolates one subscriber callback: a panic increments
// callback_errors and is logged, without affecting sibling callbacks or
// subsequent messages (spec.md §4.1 step 4).
func (t *Transport) invokeCallback(cb MessageCallback, topic string, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			atomic.AddUint64(&t.callbackErrors, 1)
			t.log.Error().Interface("panic", r).Str("topic", topic).Msg("transport: message callback failed")
		}
	}()
	cb(topic, payload)
}

// Subscribe appends callback to topic's callback list (spec.md §4.1
// subscribe()). A brand-new topic while Connected is subscribed immediately;
// otherwise it is queued for replay on the next Connected transition.
func (t *Transport) Subscribe(topic string, callback MessageCallback) {
	isNew := t.subs.add(topic, callback)

	t.mu.Lock()
	connected := t.state == StateConnected
	client := t.client
	t.mu.Unlock()

	if isNew && connected && client != nil {
		t.issueBrokerSubscribe(client, topic, t.clientGeneration.Load())
	}
}

// Unsubscribe removes topic and all its callbacks, issuing a broker-side
// unsubscribe if Connected (spec.md §4.1 unsubscribe()).
func (t *Transport) Unsubscribe(topic string) {
	existed := t.subs.remove(topic)

	t.mu.Lock()
	connected := t.state == StateConnected
	client := t.client
	t.mu.Unlock()

	if existed && connected && client != nil {
		tok := client.Unsubscribe(topic)
		go func() {
			if !tok.WaitTimeout(connectTimeout) {
				t.log.Warn().Str("topic", topic).Msg("transport: unsubscribe timed out")
				return
			}
			if err := tok.Error(); err != nil {
				t.log.Warn().Str("topic", topic).Err(err).Msg("transport: unsubscribe failed")
			}
		}()
	}
}

// triggerReconnect gates entry to the reconnect procedure behind a single
// Reconnecting flag: duplicate triggers (near-simultaneous disconnect and
// token refresh) are coalesced (spec.md §4.1 reconnect procedure).
func (t *Transport) triggerReconnect(reason string) {
	t.mu.Lock()
	if t.state == StateShutdown || t.reconnecting {
		t.mu.Unlock()
		return
	}
	t.reconnecting = true
	t.state = StateReconnecting
	t.mu.Unlock()

	t.log.Warn().Str("reason", reason).Msg("transport: reconnecting")
	t.group.Go(func() error {
		t.reconnectLoop(t.groupCtx)
		return nil
	})
}

// reconnectLoop runs in its own goroutine until shutdown or success: re-fetch
// host+token, build a new client with an incremented generation, attempt
// connect, and back off with jitter on failure (spec.md §4.1 reconnect
// procedure).
func (t *Transport) reconnectLoop(ctx context.Context) {
	delay := t.cfg.ReconnectMinDelay

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		t.mu.Lock()
		shuttingDown := t.state == StateShutdown
		t.mu.Unlock()
		if shuttingDown {
			return
		}

		if err := t.authAndDiscover(ctx); err != nil {
			t.log.Warn().Err(err).Msg("transport: reconnect auth/discovery failed")
			if !t.sleepBackoff(ctx, &delay) {
				return
			}
			continue
		}

		nextGen := t.clientGeneration.Load() + 1
		if err := t.buildAndConnect(nextGen); err != nil {
			t.log.Warn().Err(err).Msg("transport: reconnect attempt failed")
			if !t.sleepBackoff(ctx, &delay) {
				return
			}
			continue
		}

		return
	}
}

// sleepBackoff waits delay*jitter(0.8..1.2), cancel-aware, then doubles delay
// up to reconnect_max_delay (spec.md §4.1). Returns false if ctx was
// cancelled during the sleep.
func (t *Transport) sleepBackoff(ctx context.Context, delay *time.Duration) bool {
	jitter := 0.8 + rand.Float64()*0.4
	wait := time.Duration(float64(*delay) * jitter)

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
	}

	next := *delay * 2
	if next > t.cfg.ReconnectMaxDelay {
		next = t.cfg.ReconnectMaxDelay
	}
	*delay = next
	return true
}

// tokenRefreshWatcher wakes periodically (min(60s, time-to-refresh)) and
// schedules a controlled reconnect once the token is within its refresh lead
// of expiry (spec.md §4.1 "Authentication and token refresh").
func (t *Transport) tokenRefreshWatcher(ctx context.Context) {
	for {
		t.mu.Lock()
		expiresAt := t.tokenExpiresAt
		t.mu.Unlock()

		sleepFor := refreshWatcherMaxSleep
		if !expiresAt.IsZero() {
			timeToRefresh := time.Until(expiresAt.Add(-t.cfg.TokenRefreshBeforeExp))
			if timeToRefresh < 0 {
				timeToRefresh = 0
			}
			if timeToRefresh < sleepFor {
				sleepFor = timeToRefresh
			}
		}

		timer := time.NewTimer(sleepFor)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		t.mu.Lock()
		expiresAt = t.tokenExpiresAt
		shuttingDown := t.state == StateShutdown
		t.mu.Unlock()
		if shuttingDown {
			return
		}

		if !expiresAt.IsZero() && !time.Now().Before(expiresAt.Add(-t.cfg.TokenRefreshBeforeExp)) {
			t.triggerReconnect("token_refresh")
		}
	}
}

// Shutdown transitions to Shutdown, cancels all background goroutines and
// disconnects the current client. Idempotent: repeated calls are no-ops
// (spec.md §4.1 shutdown(), §8 property 10).
func (t *Transport) Shutdown() {
	t.shutdownOnce.Do(func() {
		t.mu.Lock()
		t.state = StateShutdown
		client := t.client
		t.mu.Unlock()

		if t.cancel != nil {
			t.cancel()
		}

		if client != nil {
			func() {
				defer func() {
					if r := recover(); r != nil {
						t.log.Debug().Interface("panic", r).Msg("transport: shutdown disconnect recovered")
					}
				}()
				client.Disconnect(250)
			}()
		}

		if t.group != nil {
			_ = t.group.Wait()
		}
	})
}
