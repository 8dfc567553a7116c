// Package config loads the ingestion core's top-level configuration from
// YAML, applying the same code-side defaults pattern as the original
// backend config loader: parse into an all-optional struct, then fill in
// spec defaults for anything left zero.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/brokerfeed/ingestcore/internal/adapter"
	"github.com/brokerfeed/ingestcore/internal/dispatcher"
	"github.com/brokerfeed/ingestcore/internal/liveness"
	"github.com/brokerfeed/ingestcore/internal/transport"
)

// configEnvVar names the environment variable carrying the config file
// path, mirroring the original BACKEND_CONFIG convention.
const configEnvVar = "INGESTCORE_CONFIG"

const defaultConfigPath = "configs/ingestcore.yaml"

// Config aggregates every subsystem's configuration (spec.md §6).
type Config struct {
	Transport struct {
		AppID    string `yaml:"app_id"`
		AppSecret string `yaml:"app_secret"`
		AppCode  string `yaml:"app_code"`
		BrokerID string `yaml:"broker_id"`
		BaseURL  string `yaml:"base_url"`

		Port      int `yaml:"port"`
		KeepAliveSecs int `yaml:"keepalive_secs"`

		ReconnectMinDelaySecs float64 `yaml:"reconnect_min_delay_secs"`
		ReconnectMaxDelaySecs float64 `yaml:"reconnect_max_delay_secs"`

		TokenRefreshBeforeExpSecs int `yaml:"token_refresh_before_exp_seconds"`
	} `yaml:"transport"`

	Adapter struct {
		FullDepth *bool `yaml:"full_depth"`
	} `yaml:"adapter"`

	Dispatcher struct {
		MaxLen               int     `yaml:"maxlen"`
		EMAAlpha             float64 `yaml:"ema_alpha"`
		DropWarningThreshold float64 `yaml:"drop_warning_threshold"`
	} `yaml:"dispatcher"`

	Liveness struct {
		MaxGapSeconds   float64            `yaml:"max_gap_seconds"`
		PerSymbolMaxGap map[string]float64 `yaml:"per_symbol_max_gap"`
	} `yaml:"liveness"`

	Symbols []string `yaml:"symbols"`

	Log struct {
		Debug bool `yaml:"debug"`
	} `yaml:"log"`
}

// Load reads the config file named by INGESTCORE_CONFIG (or
// configs/ingestcore.yaml when unset), applying spec defaults for anything
// left unset.
func Load() (Config, error) {
	path := os.Getenv(configEnvVar)
	if path == "" {
		path = defaultConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	c.applyDefaults()
	return c, nil
}

func (c *Config) applyDefaults() {
	td := transport.DefaultConfig()
	if c.Transport.Port == 0 {
		c.Transport.Port = td.Port
	}
	if c.Transport.KeepAliveSecs == 0 {
		c.Transport.KeepAliveSecs = int(td.KeepAlive / time.Second)
	}
	if c.Transport.ReconnectMinDelaySecs == 0 {
		c.Transport.ReconnectMinDelaySecs = td.ReconnectMinDelay.Seconds()
	}
	if c.Transport.ReconnectMaxDelaySecs == 0 {
		c.Transport.ReconnectMaxDelaySecs = td.ReconnectMaxDelay.Seconds()
	}
	if c.Transport.TokenRefreshBeforeExpSecs == 0 {
		c.Transport.TokenRefreshBeforeExpSecs = int(td.TokenRefreshBeforeExp / time.Second)
	}

	if c.Adapter.FullDepth == nil {
		v := adapter.DefaultConfig().FullDepth
		c.Adapter.FullDepth = &v
	}

	dd := dispatcher.DefaultConfig()
	if c.Dispatcher.MaxLen == 0 {
		c.Dispatcher.MaxLen = dd.MaxLen
	}
	if c.Dispatcher.EMAAlpha == 0 {
		c.Dispatcher.EMAAlpha = dd.EMAAlpha
	}
	if c.Dispatcher.DropWarningThreshold == 0 {
		c.Dispatcher.DropWarningThreshold = dd.DropWarningThreshold
	}

	ld := liveness.DefaultConfig()
	if c.Liveness.MaxGapSeconds == 0 {
		c.Liveness.MaxGapSeconds = ld.MaxGapSeconds
	}
	if c.Liveness.PerSymbolMaxGap == nil {
		c.Liveness.PerSymbolMaxGap = map[string]float64{}
	}
}

// TransportConfig builds a transport.Config from the loaded values.
func (c Config) TransportConfig() transport.Config {
	return transport.Config{
		AppID:                 c.Transport.AppID,
		AppSecret:             c.Transport.AppSecret,
		AppCode:               c.Transport.AppCode,
		BrokerID:              c.Transport.BrokerID,
		BaseURL:               c.Transport.BaseURL,
		Port:                  c.Transport.Port,
		KeepAlive:             time.Duration(c.Transport.KeepAliveSecs) * time.Second,
		ReconnectMinDelay:     durationFromSeconds(c.Transport.ReconnectMinDelaySecs),
		ReconnectMaxDelay:     durationFromSeconds(c.Transport.ReconnectMaxDelaySecs),
		TokenRefreshBeforeExp: time.Duration(c.Transport.TokenRefreshBeforeExpSecs) * time.Second,
	}
}

// AdapterConfig builds an adapter.Config from the loaded values.
func (c Config) AdapterConfig() adapter.Config {
	fullDepth := false
	if c.Adapter.FullDepth != nil {
		fullDepth = *c.Adapter.FullDepth
	}
	return adapter.Config{FullDepth: fullDepth}
}

// DispatcherConfig builds a dispatcher.Config from the loaded values.
func (c Config) DispatcherConfig() dispatcher.Config {
	return dispatcher.Config{
		MaxLen:               c.Dispatcher.MaxLen,
		EMAAlpha:             c.Dispatcher.EMAAlpha,
		DropWarningThreshold: c.Dispatcher.DropWarningThreshold,
	}
}

// LivenessConfig builds a liveness.Config from the loaded values.
func (c Config) LivenessConfig() liveness.Config {
	return liveness.Config{
		MaxGapSeconds:   c.Liveness.MaxGapSeconds,
		PerSymbolMaxGap: c.Liveness.PerSymbolMaxGap,
	}
}

func durationFromSeconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
