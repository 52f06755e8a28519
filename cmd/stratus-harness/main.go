// stratus-harness captures and inspects account fixtures for the test
// harness.
//
// A fixture is a compressed account snapshot. Capture one from a live
// cluster with "clone", check it with "inspect", and load it in a test with
// harness.Context.LoadFixture.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Version information
var (
	Version   = "0.1.0"
	GitCommit = "dev"
)

// Reference RPC endpoints used when --rpc is not given.
var referenceEndpoints = []string{
	"https://rpc.mainnet.x1.xyz",
	"https://entrypoint0.mainnet.x1.xyz",
	"https://entrypoint1.mainnet.x1.xyz",
	"https://entrypoint2.mainnet.x1.xyz",
}

var (
	logLevel string
	logger   zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "stratus-harness",
	Short:         "Capture and inspect harness account fixtures",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := zerolog.ParseLevel(logLevel)
		if err != nil {
			return fmt.Errorf("log level: %w", err)
		}
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
			Level(level).
			With().Timestamp().Logger()
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and exit",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "stratus-harness %s (%s)\n", Version, GitCommit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.AddCommand(versionCmd, cloneCmd, inspectCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
