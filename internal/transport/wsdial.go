package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"
)

// wsPath is the fixed WS path template from spec.md §6:
// /api/dispatcher/v3/{broker_id}/mqtt.
func wsPath(brokerID string) string {
	return fmt.Sprintf("/api/dispatcher/v3/%s/mqtt", brokerID)
}

// customDialer builds the function wired into paho's
// ClientOptions.SetCustomOpenConnectionFn. It dials the broker's WSS
// endpoint directly with gorilla/websocket (rather than going through
// paho's built-in websocket support) so the per-connection Authorization
// header, TLS config and connect timeout are all under our control, the
// same separation the pack's own market-data feed clients use (dhan-go's
// marketfeed.Client, the bybit-options-roller market stream — see
// DESIGN.md). The *websocket.Conn is adapted to net.Conn so paho's MQTT
// framing can run over it unmodified.
func customDialer(brokerID, tokenType, token string, connectTimeout time.Duration, tlsConfig *tls.Config) func(uri *url.URL, _ mqtt.ClientOptions) (net.Conn, error) {
	return func(uri *url.URL, _ mqtt.ClientOptions) (net.Conn, error) {
		header := http.Header{}
		header.Set("Authorization", tokenType+" "+token)

		dialer := &websocket.Dialer{
			HandshakeTimeout: connectTimeout,
			TLSClientConfig:  tlsConfig,
			NetDialContext:   (&net.Dialer{Timeout: connectTimeout}).DialContext,
		}

		wsURL := *uri
		wsURL.Path = wsPath(brokerID)

		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()

		conn, _, err := dialer.DialContext(ctx, wsURL.String(), header)
		if err != nil {
			return nil, fmt.Errorf("transport: websocket dial: %w", err)
		}
		return newWSNetConn(conn), nil
	}
}

// wsNetConn adapts a message-oriented *websocket.Conn to the stream-oriented
// net.Conn interface paho's packet codec expects: each Write call becomes
// one binary WS message, and Read transparently spans message boundaries by
// buffering the remainder of a partially-consumed message.
type wsNetConn struct {
	conn *websocket.Conn
	rest []byte
}

func newWSNetConn(conn *websocket.Conn) *wsNetConn { return &wsNetConn{conn: conn} }

func (c *wsNetConn) Read(p []byte) (int, error) {
	if len(c.rest) == 0 {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return 0, err
		}
		c.rest = data
	}
	n := copy(p, c.rest)
	c.rest = c.rest[n:]
	return n, nil
}

func (c *wsNetConn) Write(p []byte) (int, error) {
	if err := c.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *wsNetConn) Close() error                       { return c.conn.Close() }
func (c *wsNetConn) LocalAddr() net.Addr                { return c.conn.LocalAddr() }
func (c *wsNetConn) RemoteAddr() net.Addr               { return c.conn.RemoteAddr() }
func (c *wsNetConn) SetDeadline(t time.Time) error {
	if err := c.conn.SetReadDeadline(t); err != nil {
		return err
	}
	return c.conn.SetWriteDeadline(t)
}
func (c *wsNetConn) SetReadDeadline(t time.Time) error  { return c.conn.SetReadDeadline(t) }
func (c *wsNetConn) SetWriteDeadline(t time.Time) error { return c.conn.SetWriteDeadline(t) }
