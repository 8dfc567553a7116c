package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/brokerfeed/ingestcore/internal/transport"
)

func writeFixture(t *testing.T, yamlBody string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "ingestcore.yaml")
	if err := os.WriteFile(path, []byte(yamlBody), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	t.Setenv(configEnvVar, path)
}

func TestLoadAppliesDefaultsForUnsetFields(t *testing.T) {
	writeFixture(t, `
transport:
  app_id: app1
  app_secret: c2VjcmV0
  app_code: code1
  broker_id: BRK-1
symbols: ["AOT", "PTT"]
`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	tc := cfg.TransportConfig()
	def := transport.DefaultConfig()
	if tc.Port != def.Port {
		t.Errorf("Port = %d, want default %d", tc.Port, def.Port)
	}
	if tc.KeepAlive != def.KeepAlive {
		t.Errorf("KeepAlive = %v, want default %v", tc.KeepAlive, def.KeepAlive)
	}
	if tc.ReconnectMinDelay != def.ReconnectMinDelay {
		t.Errorf("ReconnectMinDelay = %v, want default %v", tc.ReconnectMinDelay, def.ReconnectMinDelay)
	}
	if tc.AppID != "app1" {
		t.Errorf("AppID = %q, want app1 (explicit value preserved)", tc.AppID)
	}

	if len(cfg.Symbols) != 2 || cfg.Symbols[0] != "AOT" || cfg.Symbols[1] != "PTT" {
		t.Errorf("Symbols = %v, want [AOT PTT]", cfg.Symbols)
	}

	dc := cfg.DispatcherConfig()
	if dc.MaxLen == 0 {
		t.Error("DispatcherConfig().MaxLen left at zero, want default applied")
	}

	lc := cfg.LivenessConfig()
	if lc.MaxGapSeconds == 0 {
		t.Error("LivenessConfig().MaxGapSeconds left at zero, want default applied")
	}
	if lc.PerSymbolMaxGap == nil {
		t.Error("LivenessConfig().PerSymbolMaxGap is nil, want empty map")
	}
}

func TestLoadPreservesExplicitOverrides(t *testing.T) {
	writeFixture(t, `
transport:
  app_id: app1
  app_secret: c2VjcmV0
  app_code: code1
  broker_id: BRK-1
  port: 9999
  reconnect_min_delay_secs: 2.5
dispatcher:
  maxlen: 500
adapter:
  full_depth: true
liveness:
  max_gap_seconds: 12
  per_symbol_max_gap:
    AOT: 30
`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	tc := cfg.TransportConfig()
	if tc.Port != 9999 {
		t.Errorf("Port = %d, want 9999 (explicit override)", tc.Port)
	}
	if tc.ReconnectMinDelay.Seconds() != 2.5 {
		t.Errorf("ReconnectMinDelay = %v, want 2.5s", tc.ReconnectMinDelay)
	}

	dc := cfg.DispatcherConfig()
	if dc.MaxLen != 500 {
		t.Errorf("MaxLen = %d, want 500", dc.MaxLen)
	}

	ac := cfg.AdapterConfig()
	if !ac.FullDepth {
		t.Error("FullDepth = false, want true (explicit override)")
	}

	lc := cfg.LivenessConfig()
	if lc.MaxGapSeconds != 12 {
		t.Errorf("MaxGapSeconds = %v, want 12", lc.MaxGapSeconds)
	}
	if lc.PerSymbolMaxGap["AOT"] != 30 {
		t.Errorf("PerSymbolMaxGap[AOT] = %v, want 30", lc.PerSymbolMaxGap["AOT"])
	}
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	t.Setenv(configEnvVar, filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadInvalidYAMLReturnsError(t *testing.T) {
	writeFixture(t, "transport: [this is not a mapping")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for malformed YAML")
	}
}

func TestAdapterConfigDefaultsFullDepthFalse(t *testing.T) {
	writeFixture(t, `
transport:
  app_id: app1
  app_secret: c2VjcmV0
  app_code: code1
  broker_id: BRK-1
`)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AdapterConfig().FullDepth {
		t.Error("FullDepth default = true, want false per adapter.DefaultConfig()")
	}
}
