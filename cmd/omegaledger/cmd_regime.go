package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/omegaprime/omegaledger/internal/ledger"
	"github.com/omegaprime/omegaledger/internal/persistence"
)

func newRegimeCmd() *cobra.Command {
	regimeCmd := &cobra.Command{
		Use:   "regime",
		Short: "Inspect and update regime memory",
		Long:  "Regime memory holds the latest classified regime per (symbol, timeframe). Writes are atomic upserts; last writer wins.",
	}

	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Upsert the current regime for a symbol/timeframe",
		RunE:  runRegimeSet,
	}
	setCmd.Flags().String("symbol", "", "Instrument symbol")
	setCmd.Flags().String("timeframe", "", "Timeframe (e.g. 1h)")
	setCmd.Flags().String("regime", "", "Regime (COMPRESSION|EXPANSION|NEUTRAL)")
	setCmd.MarkFlagRequired("symbol")
	setCmd.MarkFlagRequired("timeframe")
	setCmd.MarkFlagRequired("regime")

	getCmd := &cobra.Command{
		Use:   "get",
		Short: "Look up the current regime for a symbol/timeframe",
		RunE:  runRegimeGet,
	}
	getCmd.Flags().String("symbol", "", "Instrument symbol")
	getCmd.Flags().String("timeframe", "", "Timeframe (e.g. 1h)")
	getCmd.MarkFlagRequired("symbol")
	getCmd.MarkFlagRequired("timeframe")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all tracked symbol/timeframe regimes",
		RunE:  runRegimeList,
	}

	regimeCmd.AddCommand(setCmd, getCmd, listCmd)
	return regimeCmd
}

func runRegimeSet(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()

	regime, err := ledger.ParseRegime(mustString(flags, "regime"))
	if err != nil {
		return err
	}

	state := &persistence.RegimeState{
		Symbol:    mustString(flags, "symbol"),
		Timeframe: mustString(flags, "timeframe"),
		Regime:    regime,
	}

	return withRegimes(cmd, func(repo persistence.RegimeRepo) error {
		if err := repo.Upsert(cmd.Context(), state); err != nil {
			return err
		}
		log.Info().
			Str("symbol", state.Symbol).
			Str("timeframe", state.Timeframe).
			Str("regime", string(state.Regime)).
			Msg("regime memory updated")
		return printJSON(state)
	})
}

func runRegimeGet(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	symbol := mustString(flags, "symbol")
	timeframe := mustString(flags, "timeframe")

	return withRegimes(cmd, func(repo persistence.RegimeRepo) error {
		state, err := repo.Get(cmd.Context(), symbol, timeframe)
		if err != nil {
			return err
		}
		if state == nil {
			return fmt.Errorf("no regime classified yet for %s/%s", symbol, timeframe)
		}
		return printJSON(state)
	})
}

func runRegimeList(cmd *cobra.Command, args []string) error {
	return withRegimes(cmd, func(repo persistence.RegimeRepo) error {
		states, err := repo.List(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(states)
	})
}

// withRegimes opens the database and wraps the regime repository in the
// configured cache for the duration of one command.
func withRegimes(cmd *cobra.Command, fn func(persistence.RegimeRepo) error) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}

	manager, err := openManager(config)
	if err != nil {
		return err
	}
	defer manager.Close()

	return fn(regimeStore(config, manager.Repository()))
}
