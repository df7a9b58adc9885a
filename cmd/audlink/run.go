package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/breeze-rmm/audlink/internal/capture"
	"github.com/breeze-rmm/audlink/internal/config"
	"github.com/breeze-rmm/audlink/internal/logging"
	"github.com/breeze-rmm/audlink/internal/transmitter"
)

var (
	sampleRate      int
	framesPerBuffer int
	deviceSource    string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the transmitter",
	Long: `Start a transmitter for the configured sources. Every source is fed by a
test tone unless --device names the source that reads the default input device.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		out, closer, err := logging.Output(cfg.LogFile, cfg.LogMaxSizeMB, cfg.LogMaxBackups)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer closer.Close()
		logging.Init(cfg.LogFormat, cfg.LogLevel, out)

		return runTransmitter(cmd.Context(), cfg)
	},
}

func init() {
	runCmd.Flags().IntVar(&sampleRate, "sample-rate", 48000, "capture sample rate in Hz")
	runCmd.Flags().IntVar(&framesPerBuffer, "frames", 480, "frames per capture buffer")
	runCmd.Flags().StringVar(&deviceSource, "device", "", "source fed by the default input device (needs -tags portaudio)")
}

func runTransmitter(parent context.Context, cfg *config.Config) error {
	log := logging.L("run")
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	tx, err := transmitter.New(ctx, transmitter.Options{
		InputSocket:   cfg.InputSocket,
		OutputSocket:  cfg.OutputSocket,
		Sources:       cfg.Sources,
		PacketSamples: cfg.PacketSamples,
		SendMode:      cfg.SendMode,
		QueueSize:     cfg.SendQueueSize,
		StrictSend:    cfg.StrictSend,
		WriteTimeout:  time.Duration(cfg.SendTimeoutMs) * time.Millisecond,
		Framing:       cfg.Framing,
		MulticastTTL:  cfg.MulticastTTL,
		DSCP:          cfg.DSCP,
		SendBuffer:    cfg.SendBufferBytes,
		ControlURL:    cfg.ControlWSURL,
		ControlToken:  cfg.ControlWSToken,
	})
	if err != nil {
		return fmt.Errorf("failed to start transmitter (%s): %w", transmitter.ResultOf(err), err)
	}

	capturers, err := startCapture(tx, cfg)
	if err != nil {
		closeTransmitter(tx)
		return err
	}

	log.Info("audlink running",
		"version", version,
		"id", tx.ID(),
		"control", tx.ControlAddr().String(),
		"output", cfg.OutputSocket,
	)

	var ticks <-chan time.Time
	if cfg.StatsIntervalSeconds > 0 {
		ticker := time.NewTicker(time.Duration(cfg.StatsIntervalSeconds) * time.Second)
		defer ticker.Stop()
		ticks = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			// Capture goroutines are the only pushers; stop them before Close.
			for _, c := range capturers {
				c.Stop()
			}
			return closeTransmitter(tx)
		case <-ticks:
			snap := tx.Counters()
			log.Info("transmitter stats", append(snap.LogArgs(), "health", string(tx.Health().Overall()))...)
		}
	}
}

func startCapture(tx *transmitter.Transmitter, cfg *config.Config) ([]capture.Capturer, error) {
	var started []capture.Capturer
	stopAll := func() {
		for _, c := range started {
			c.Stop()
		}
	}

	for _, src := range cfg.Sources {
		format := capture.Format{
			Channels:        src.Channels,
			SampleRate:      sampleRate,
			FramesPerBuffer: framesPerBuffer,
		}

		var c capture.Capturer
		var err error
		if src.Name == deviceSource {
			c, err = capture.NewDevice(format)
		} else {
			c, err = capture.NewTone(format, 440)
		}
		if err != nil {
			stopAll()
			return nil, fmt.Errorf("source %q: %w", src.Name, err)
		}

		name := src.Name
		if err := c.Start(func(buf []float32, frames, channels int) {
			tx.Push(name, buf, frames, channels)
		}); err != nil {
			stopAll()
			return nil, fmt.Errorf("source %q: %w", src.Name, err)
		}
		started = append(started, c)
	}
	return started, nil
}

func closeTransmitter(tx *transmitter.Transmitter) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return tx.Close(ctx)
}
