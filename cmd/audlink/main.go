package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/breeze-rmm/audlink/internal/config"
	"github.com/breeze-rmm/audlink/internal/logging"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "audlink",
	Short: "Audio capture-to-network transmitter",
	Long: `audlink forwards the audio of the source a remote peer selected over UDP.
Nothing is sent until a peer selects a source on the control endpoint.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("audlink %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", buildDate)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is audlink.yaml in the config dir or .)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(listenCmd)
	rootCmd.AddCommand(selectCmd)
	rootCmd.AddCommand(deselectCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(sourcesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig loads and validates the config. Warnings are logged, fatals
// are returned as one error.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	result := cfg.ValidateTiered()
	for _, w := range result.Warnings {
		logging.L("config").Warn("config value adjusted", logging.KeyError, w)
	}
	if result.HasFatals() {
		for _, f := range result.Fatals {
			logging.L("config").Error("invalid config", logging.KeyError, f)
		}
		return nil, fmt.Errorf("config has %d fatal error(s), first: %w", len(result.Fatals), result.Fatals[0])
	}
	return cfg, nil
}
