package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/omegaprime/omegaledger/internal/metrics"
)

const (
	appName = "omegaledger"
	version = "v1.2.0"
)

// configPath is the global --config flag, shared by every subcommand.
var configPath string

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	metrics.Initialize()

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Decision ledger, regime memory and negotiation workflow",
		Version: version,
		Long: `omegaledger records trading decisions with their regime/tier
classification and exit outcomes, tracks the latest regime per
symbol/timeframe, and runs the human-in-the-loop negotiation workflow
over proposed actions.`,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "Path to YAML configuration")

	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newHealthCmd())
	rootCmd.AddCommand(newDecisionCmd())
	rootCmd.AddCommand(newRegimeCmd())
	rootCmd.AddCommand(newNegotiateCmd())
	rootCmd.AddCommand(newWorkerCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
