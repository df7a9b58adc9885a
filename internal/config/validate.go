package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"unicode"

	"github.com/breeze-rmm/audlink/internal/audio"
	"github.com/breeze-rmm/audlink/internal/packet"
	"github.com/breeze-rmm/audlink/internal/transport"
)

var validLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

// ValidationResult separates errors that must stop startup from values that
// were corrected.
type ValidationResult struct {
	Fatals   []error
	Warnings []error
}

func (r ValidationResult) HasFatals() bool {
	return len(r.Fatals) > 0
}

// AllErrors returns fatals followed by warnings.
func (r ValidationResult) AllErrors() []error {
	all := make([]error, 0, len(r.Fatals)+len(r.Warnings))
	all = append(all, r.Fatals...)
	return append(all, r.Warnings...)
}

// ValidateTiered checks the config. Out-of-range numbers are clamped in place
// and reported as warnings; anything that would make the transmitter fail or
// misbehave is fatal.
func (c *Config) ValidateTiered() ValidationResult {
	var r ValidationResult
	fatal := func(format string, args ...any) {
		r.Fatals = append(r.Fatals, fmt.Errorf(format, args...))
	}
	warn := func(format string, args ...any) {
		r.Warnings = append(r.Warnings, fmt.Errorf(format, args...))
	}

	if _, err := transport.ParseEndpoint(c.InputSocket); err != nil {
		fatal("input_socket %q is not a valid endpoint: %w", c.InputSocket, err)
	}
	if _, err := transport.ParseEndpoint(c.OutputSocket); err != nil {
		fatal("output_socket %q is not a valid endpoint: %w", c.OutputSocket, err)
	}

	if len(c.Sources) == 0 {
		warn("no sources configured, every push will be rejected")
	} else if _, err := audio.NewSnapshot(c.Sources); err != nil {
		fatal("sources: %w", err)
	}

	switch c.SendMode {
	case transport.ModeAsync, transport.ModeSync:
	default:
		fatal("send_mode %q is not valid (use async or sync)", c.SendMode)
	}
	switch c.Framing {
	case packet.FramingNative, packet.FramingRTP:
	default:
		fatal("framing %q is not valid (use native or rtp)", c.Framing)
	}
	if c.StrictSend && c.SendMode == transport.ModeAsync {
		warn("strict_send has no effect with send_mode async")
	}

	if c.ControlWSURL != "" {
		u, err := url.Parse(c.ControlWSURL)
		if err != nil {
			fatal("control_ws_url %q is not a valid URL: %w", c.ControlWSURL, err)
		} else {
			switch u.Scheme {
			case "ws", "wss", "http", "https":
			default:
				fatal("control_ws_url scheme must be ws, wss, http or https, got %q", u.Scheme)
			}
		}
	}
	for _, ch := range c.ControlWSToken {
		if unicode.IsControl(ch) {
			fatal("control_ws_token contains control characters")
			break
		}
	}

	// Datagrams must stay below 64 KiB.
	c.PacketSamples = clamp(&r, "packet_samples", c.PacketSamples, 16, 8192)
	c.SendQueueSize = clamp(&r, "send_queue_size", c.SendQueueSize, 1, 4096)
	c.SendTimeoutMs = clamp(&r, "send_timeout_ms", c.SendTimeoutMs, 0, 1000)
	c.MulticastTTL = clamp(&r, "multicast_ttl", c.MulticastTTL, 0, 255)
	c.DSCP = clamp(&r, "dscp", c.DSCP, 0, 63)
	c.SendBufferBytes = clamp(&r, "send_buffer_bytes", c.SendBufferBytes, 0, 16<<20)
	c.StatsIntervalSeconds = clamp(&r, "stats_interval_seconds", c.StatsIntervalSeconds, 0, 3600)
	c.LogMaxSizeMB = clamp(&r, "log_max_size_mb", c.LogMaxSizeMB, 1, 1024)
	c.LogMaxBackups = clamp(&r, "log_max_backups", c.LogMaxBackups, 0, 100)

	if c.LogLevel != "" && !validLogLevels[strings.ToLower(c.LogLevel)] {
		warn("log_level %q is not valid (use debug, info, warn, error)", c.LogLevel)
	}
	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		warn("log_format %q is not valid (use text or json)", c.LogFormat)
	}

	return r
}

func clamp(r *ValidationResult, key string, v, lo, hi int) int {
	switch {
	case v < lo:
		r.Warnings = append(r.Warnings, fmt.Errorf("%s %d is below minimum %d, clamping", key, v, lo))
		return lo
	case v > hi:
		r.Warnings = append(r.Warnings, fmt.Errorf("%s %d exceeds maximum %d, clamping", key, v, hi))
		return hi
	}
	return v
}

// Validate runs ValidateTiered, logs every problem and returns them all.
func (c *Config) Validate() []error {
	r := c.ValidateTiered()
	for _, err := range r.Fatals {
		slog.Error("config validation", "error", err)
	}
	for _, err := range r.Warnings {
		slog.Warn("config validation", "error", err)
	}
	return r.AllErrors()
}
