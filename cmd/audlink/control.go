package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/breeze-rmm/audlink/internal/audio"
	"github.com/breeze-rmm/audlink/internal/config"
	"github.com/breeze-rmm/audlink/internal/control"
)

var (
	controlAddr    string
	controlTimeout time.Duration
	selectChannels int
	remoteSources  bool
)

var selectCmd = &cobra.Command{
	Use:   "select <source>",
	Short: "Ask a transmitter to forward a source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := request(cmd.Context(), control.Request{
			Type:     control.TypeSelect,
			Source:   args[0],
			Channels: selectChannels,
		})
		if err != nil {
			return err
		}
		fmt.Printf("selected %s\n", args[0])
		return nil
	},
}

var deselectCmd = &cobra.Command{
	Use:   "deselect",
	Short: "Stop forwarding",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := request(cmd.Context(), control.Request{Type: control.TypeDeselect})
		return err
	},
}

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Resend the retained packets of the selected source",
	RunE: func(cmd *cobra.Command, args []string) error {
		reply, err := request(cmd.Context(), control.Request{Type: control.TypeReplay})
		if err != nil {
			return err
		}
		fmt.Printf("replayed %d packets\n", reply.Replayed)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print a transmitter's state and counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		reply, err := request(cmd.Context(), control.Request{Type: control.TypeStats})
		if err != nil {
			return err
		}
		return printYAML(reply.Stats)
	},
}

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Print the configured sources",
	Long:  `Print the sources from the config file, or with --remote the sources a running transmitter reports.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var sources []audio.Source
		if remoteSources {
			reply, err := request(cmd.Context(), control.Request{Type: control.TypeListSources})
			if err != nil {
				return err
			}
			sources = reply.Sources
		} else {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			sources = cfg.Sources
		}
		return printYAML(map[string]any{"sources": sources})
	},
}

func init() {
	for _, cmd := range []*cobra.Command{selectCmd, deselectCmd, replayCmd, statsCmd, sourcesCmd} {
		cmd.Flags().StringVarP(&controlAddr, "addr", "a", "", "transmitter control endpoint (default from input_socket)")
		cmd.Flags().DurationVar(&controlTimeout, "timeout", 2*time.Second, "reply timeout")
	}
	selectCmd.Flags().IntVar(&selectChannels, "channels", 0, "forward only the first N channels (0 = all)")
	sourcesCmd.Flags().BoolVar(&remoteSources, "remote", false, "ask the running transmitter instead of reading the config")
}

func request(parent context.Context, req control.Request) (control.Reply, error) {
	addr, err := resolveControlAddr()
	if err != nil {
		return control.Reply{}, err
	}
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, controlTimeout)
	defer cancel()

	req.ID = uuid.NewString()
	return control.Send(ctx, addr, req)
}

// resolveControlAddr falls back to the configured input socket, with a
// wildcard host replaced by loopback.
func resolveControlAddr() (string, error) {
	if controlAddr != "" {
		return controlAddr, nil
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return "", fmt.Errorf("failed to load config: %w", err)
	}
	host, port, err := net.SplitHostPort(cfg.InputSocket)
	if err != nil {
		return "", fmt.Errorf("input_socket %q: %w", cfg.InputSocket, err)
	}
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port), nil
}

func printYAML(v any) error {
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
