package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/viper"

	"github.com/breeze-rmm/audlink/internal/audio"
)

type Config struct {
	InputSocket  string         `mapstructure:"input_socket"`
	OutputSocket string         `mapstructure:"output_socket"`
	Sources      []audio.Source `mapstructure:"sources"`

	PacketSamples   int    `mapstructure:"packet_samples"`
	SendQueueSize   int    `mapstructure:"send_queue_size"`
	SendMode        string `mapstructure:"send_mode"`
	StrictSend      bool   `mapstructure:"strict_send"`
	SendTimeoutMs   int    `mapstructure:"send_timeout_ms"`
	Framing         string `mapstructure:"framing"`
	MulticastTTL    int    `mapstructure:"multicast_ttl"`
	DSCP            int    `mapstructure:"dscp"`
	SendBufferBytes int    `mapstructure:"send_buffer_bytes"`

	ControlWSURL   string `mapstructure:"control_ws_url"`
	ControlWSToken string `mapstructure:"control_ws_token"`

	LogLevel      string `mapstructure:"log_level"`
	LogFormat     string `mapstructure:"log_format"`
	LogFile       string `mapstructure:"log_file"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb"`
	LogMaxBackups int    `mapstructure:"log_max_backups"`

	StatsIntervalSeconds int `mapstructure:"stats_interval_seconds"`
}

func Default() *Config {
	return &Config{
		InputSocket:          "0.0.0.0:9000",
		OutputSocket:         "127.0.0.1:9001",
		Sources:              []audio.Source{{Name: "tone", Channels: 2}},
		PacketSamples:        256,
		SendQueueSize:        64,
		SendMode:             "async",
		SendTimeoutMs:        5,
		Framing:              "native",
		MulticastTTL:         1,
		LogLevel:             "info",
		LogFormat:            "text",
		LogMaxSizeMB:         20,
		LogMaxBackups:        3,
		StatsIntervalSeconds: 30,
	}
}

// Load reads audlink.yaml (or cfgFile) on top of the defaults. Every key can
// be overridden with an AUDLINK_ prefixed environment variable, e.g.
// AUDLINK_OUTPUT_SOCKET. A missing config file is not an error.
func Load(cfgFile string) (*Config, error) {
	cfg := Default()
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("audlink")
		v.SetConfigType("yaml")
		v.AddConfigPath(configDir())
		v.AddConfigPath(".")
	}

	// Defaults make every key known to viper so env overrides reach Unmarshal.
	setAll(v, cfg)
	v.SetEnvPrefix("AUDLINK")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func Save(cfg *Config) error {
	return SaveTo(cfg, "")
}

func SaveTo(cfg *Config, cfgFile string) error {
	v := viper.New()
	for key, value := range values(cfg) {
		v.Set(key, value)
	}

	var cfgPath string
	if cfgFile != "" {
		cfgPath = cfgFile
		dir := filepath.Dir(cfgPath)
		if dir != "." {
			if err := os.MkdirAll(dir, 0700); err != nil {
				return err
			}
		}
	} else {
		cfgPath = filepath.Join(configDir(), "audlink.yaml")
		if err := os.MkdirAll(configDir(), 0700); err != nil {
			return err
		}
	}

	if err := v.WriteConfigAs(cfgPath); err != nil {
		return err
	}

	// Owner-only: may contain the control token.
	return os.Chmod(cfgPath, 0600)
}

func setAll(v *viper.Viper, cfg *Config) {
	for key, value := range values(cfg) {
		v.SetDefault(key, value)
	}
}

func values(cfg *Config) map[string]any {
	sources := make([]map[string]any, 0, len(cfg.Sources))
	for _, s := range cfg.Sources {
		sources = append(sources, map[string]any{"name": s.Name, "channels": s.Channels})
	}
	return map[string]any{
		"input_socket":           cfg.InputSocket,
		"output_socket":          cfg.OutputSocket,
		"sources":                sources,
		"packet_samples":         cfg.PacketSamples,
		"send_queue_size":        cfg.SendQueueSize,
		"send_mode":              cfg.SendMode,
		"strict_send":            cfg.StrictSend,
		"send_timeout_ms":        cfg.SendTimeoutMs,
		"framing":                cfg.Framing,
		"multicast_ttl":          cfg.MulticastTTL,
		"dscp":                   cfg.DSCP,
		"send_buffer_bytes":      cfg.SendBufferBytes,
		"control_ws_url":         cfg.ControlWSURL,
		"control_ws_token":       cfg.ControlWSToken,
		"log_level":              cfg.LogLevel,
		"log_format":             cfg.LogFormat,
		"log_file":               cfg.LogFile,
		"log_max_size_mb":        cfg.LogMaxSizeMB,
		"log_max_backups":        cfg.LogMaxBackups,
		"stats_interval_seconds": cfg.StatsIntervalSeconds,
	}
}

func configDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), "Audlink")
	case "darwin":
		return "/Library/Application Support/Audlink"
	default:
		return "/etc/audlink"
	}
}
