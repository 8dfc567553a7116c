package transport

import (
	"fmt"
	"strings"
	"time"
)

// Config enumerates every transport setting from spec.md §6.
type Config struct {
	AppID    string
	AppSecret string
	AppCode  string
	BrokerID string

	// BaseURL overrides the resolved environment base URL when non-empty.
	BaseURL string

	Port      int
	KeepAlive time.Duration

	ReconnectMinDelay time.Duration
	ReconnectMaxDelay time.Duration

	TokenRefreshBeforeExp time.Duration
}

// DefaultConfig returns the spec's defaults: port=443, keepalive=30s,
// reconnect_min_delay=1s, reconnect_max_delay=30s,
// token_refresh_before_exp_seconds=100.
func DefaultConfig() Config {
	return Config{
		Port:                  443,
		KeepAlive:             30 * time.Second,
		ReconnectMinDelay:     1 * time.Second,
		ReconnectMaxDelay:     30 * time.Second,
		TokenRefreshBeforeExp: 100 * time.Second,
	}
}

func (c Config) validate() error {
	if c.AppID == "" || c.AppSecret == "" || c.AppCode == "" || c.BrokerID == "" {
		return fmt.Errorf("transport: app_id, app_secret, app_code and broker_id are required")
	}
	if c.ReconnectMinDelay < 100*time.Millisecond {
		return fmt.Errorf("transport: reconnect_min_delay must be >= 0.1s, got %v", c.ReconnectMinDelay)
	}
	if c.ReconnectMaxDelay < 1*time.Second {
		return fmt.Errorf("transport: reconnect_max_delay must be >= 1s, got %v", c.ReconnectMaxDelay)
	}
	if c.TokenRefreshBeforeExp < 10*time.Second {
		return fmt.Errorf("transport: token_refresh_before_exp_seconds must be >= 10, got %v", c.TokenRefreshBeforeExp)
	}
	if c.Port <= 0 {
		return fmt.Errorf("transport: port must be > 0, got %d", c.Port)
	}
	if c.KeepAlive < 5*time.Second || c.KeepAlive > 300*time.Second {
		return fmt.Errorf("transport: keepalive must be in [5s,300s], got %v", c.KeepAlive)
	}
	return nil
}

const sandboxBrokerID = "SANDBOX"

// resolvedEnvironment is the outcome of translating the configured broker
// id / base URL override into a concrete broker id and base URL (spec.md
// §4.1 "Authentication and token refresh").
type resolvedEnvironment struct {
	BrokerID string
	BaseURL  string
}

// resolveEnvironment implements the SANDBOX translation and base URL
// override precedence described in spec.md §4.1.
func resolveEnvironment(cfg Config) resolvedEnvironment {
	env := resolvedEnvironment{BrokerID: cfg.BrokerID, BaseURL: "https://api.marketfeed.example"}
	if isSandboxBrokerID(cfg.BrokerID) {
		env.BrokerID = "UAT-001"
		env.BaseURL = "https://uat-api.marketfeed.example"
	}
	if cfg.BaseURL != "" {
		env.BaseURL = cfg.BaseURL
	}
	return env
}

func isSandboxBrokerID(brokerID string) bool {
	return strings.EqualFold(brokerID, sandboxBrokerID)
}
