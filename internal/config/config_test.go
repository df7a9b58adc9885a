package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/breeze-rmm/audlink/internal/audio"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	def := Default()
	if cfg.InputSocket != def.InputSocket || cfg.PacketSamples != 256 || cfg.SendMode != "async" {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audlink.yaml")
	yaml := `input_socket: "127.0.0.1:7000"
output_socket: "239.0.0.3:7001"
sources:
  - name: mic1
    channels: 2
  - name: mic2
    channels: 1
framing: rtp
strict_send: true
`
	if err := os.WriteFile(path, []byte(yaml), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("AUDLINK_PACKET_SAMPLES", "128")
	t.Setenv("AUDLINK_SEND_MODE", "sync")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.InputSocket != "127.0.0.1:7000" || cfg.OutputSocket != "239.0.0.3:7001" {
		t.Fatalf("sockets = %q %q", cfg.InputSocket, cfg.OutputSocket)
	}
	if len(cfg.Sources) != 2 || cfg.Sources[0] != (audio.Source{Name: "mic1", Channels: 2}) {
		t.Fatalf("sources = %+v", cfg.Sources)
	}
	if cfg.Framing != "rtp" || !cfg.StrictSend {
		t.Fatalf("framing=%q strict=%v", cfg.Framing, cfg.StrictSend)
	}
	if cfg.PacketSamples != 128 || cfg.SendMode != "sync" {
		t.Fatalf("env overrides not applied: samples=%d mode=%q", cfg.PacketSamples, cfg.SendMode)
	}
	// Untouched keys keep their defaults.
	if cfg.SendQueueSize != 64 {
		t.Fatalf("SendQueueSize = %d, want 64", cfg.SendQueueSize)
	}
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audlink.yaml")
	if err := os.WriteFile(path, []byte("sources: [\n"), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("Load should fail on malformed YAML")
	}
}

func TestSaveToRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "audlink.yaml")
	cfg := Default()
	cfg.Sources = []audio.Source{{Name: "Line In", Channels: 8}}
	cfg.ControlWSToken = "secret"

	if err := SaveTo(cfg, path); err != nil {
		t.Fatalf("SaveTo: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Fatalf("mode = %o, want 600", perm)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got.Sources) != 1 || got.Sources[0].Name != "Line In" || got.Sources[0].Channels != 8 {
		t.Fatalf("sources = %+v", got.Sources)
	}
	if got.ControlWSToken != "secret" {
		t.Fatalf("token = %q", got.ControlWSToken)
	}
}

func TestValidConfigHasNoErrors(t *testing.T) {
	cfg := Default()
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("default config has fatals: %v", result.Fatals)
	}
	if len(result.Warnings) > 0 {
		t.Fatalf("default config has warnings: %v", result.Warnings)
	}
}

func TestValidateTieredFatals(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad input socket", func(c *Config) { c.InputSocket = "nowhere" }, "input_socket"},
		{"bad output socket", func(c *Config) { c.OutputSocket = "" }, "output_socket"},
		{"zero channels", func(c *Config) { c.Sources = []audio.Source{{Name: "a", Channels: 0}} }, "invalid channel count"},
		{"duplicate source", func(c *Config) { c.Sources = []audio.Source{{Name: "a", Channels: 1}, {Name: "a", Channels: 2}} }, "duplicate"},
		{"empty name", func(c *Config) { c.Sources = []audio.Source{{Name: "", Channels: 1}} }, "empty source name"},
		{"long name", func(c *Config) { c.Sources = []audio.Source{{Name: strings.Repeat("x", 256), Channels: 1}} }, "too long"},
		{"send mode", func(c *Config) { c.SendMode = "carrier" }, "send_mode"},
		{"framing", func(c *Config) { c.Framing = "mp3" }, "framing"},
		{"ws scheme", func(c *Config) { c.ControlWSURL = "ftp://example.com" }, "control_ws_url"},
		{"token control chars", func(c *Config) { c.ControlWSToken = "tok\x00en" }, "control characters"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			result := cfg.ValidateTiered()
			if !result.HasFatals() {
				t.Fatal("expected a fatal")
			}
			found := false
			for _, err := range result.Fatals {
				if strings.Contains(err.Error(), tt.want) {
					found = true
				}
			}
			if !found {
				t.Fatalf("fatals %v do not mention %q", result.Fatals, tt.want)
			}
		})
	}
}

func TestValidateTieredClampingIsWarning(t *testing.T) {
	cfg := Default()
	cfg.PacketSamples = 0
	cfg.SendQueueSize = 1_000_000
	cfg.DSCP = 99
	cfg.SendTimeoutMs = -5

	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("clamped values should be warnings: %v", result.Fatals)
	}
	if len(result.Warnings) != 4 {
		t.Fatalf("warnings = %v, want 4", result.Warnings)
	}
	if cfg.PacketSamples != 16 || cfg.SendQueueSize != 4096 || cfg.DSCP != 63 || cfg.SendTimeoutMs != 0 {
		t.Fatalf("not clamped: %+v", cfg)
	}
}

func TestValidateTieredSoftWarnings(t *testing.T) {
	cfg := Default()
	cfg.Sources = nil
	cfg.StrictSend = true
	cfg.LogLevel = "verbose"
	cfg.LogFormat = "xml"

	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("unexpected fatals: %v", result.Fatals)
	}
	if len(result.Warnings) != 4 {
		t.Fatalf("warnings = %v, want 4", result.Warnings)
	}
}

func TestAllErrorsReturnsBoth(t *testing.T) {
	cfg := Default()
	cfg.Framing = "bogus" // fatal
	cfg.LogFormat = "xml" // warning
	result := cfg.ValidateTiered()

	if all := result.AllErrors(); len(all) != 2 {
		t.Fatalf("AllErrors() = %v, want fatal and warning", all)
	}
}
