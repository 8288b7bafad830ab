package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/omegaprime/omegaledger/internal/ledger"
	"github.com/omegaprime/omegaledger/internal/persistence"
)

func newDecisionCmd() *cobra.Command {
	decisionCmd := &cobra.Command{
		Use:   "decision",
		Short: "Record and manage decision ledger entries",
	}

	decisionCmd.AddCommand(newDecisionRecordCmd())
	decisionCmd.AddCommand(newDecisionEnrichCmd())
	decisionCmd.AddCommand(newDecisionCloseCmd())
	decisionCmd.AddCommand(newDecisionShowCmd())
	decisionCmd.AddCommand(newDecisionListCmd())
	decisionCmd.AddCommand(newDecisionDeleteCmd())

	return decisionCmd
}

func newDecisionRecordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a new trading decision",
		Long:  "Inserts a ledger entry with its classification. Enrichment and exit fields start empty and are backfilled later.",
		RunE:  runDecisionRecord,
	}

	cmd.Flags().String("account", persistence.DefaultAccount, "Owner account tag")
	cmd.Flags().String("symbol", "", "Instrument symbol")
	cmd.Flags().String("timeframe", "", "Decision timeframe (e.g. 1h)")
	cmd.Flags().String("stance", "", "Stance (ENTER_LONG|ENTER_SHORT|HOLD_LONG|HOLD_SHORT|HOLD_LONG_PAID|HOLD_SHORT_PAID|STAND_DOWN|WAIT)")
	cmd.Flags().String("tier", "", "Conviction tier (S+++..C, Ø)")
	cmd.Flags().String("regime", "", "Regime (COMPRESSION|EXPANSION|NEUTRAL)")
	cmd.Flags().String("authority", string(ledger.AuthorityNormal), "Authority (NORMAL|PRIME)")
	cmd.Flags().Bool("paid", false, "Position already paid")
	cmd.Flags().Int("confidence", 0, "Confidence score 0-100")
	cmd.Flags().String("entry-price", "", "Entry price")
	cmd.Flags().String("stop-price", "", "Stop price")
	cmd.Flags().String("min-target", "", "Minimum target price")
	cmd.Flags().String("max-target", "", "Maximum target price")

	cmd.MarkFlagRequired("timeframe")
	cmd.MarkFlagRequired("stance")
	cmd.MarkFlagRequired("tier")
	cmd.MarkFlagRequired("regime")

	return cmd
}

func runDecisionRecord(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()

	stance, err := ledger.ParseStance(mustString(flags, "stance"))
	if err != nil {
		return err
	}
	tier, err := ledger.ParseTier(mustString(flags, "tier"))
	if err != nil {
		return err
	}
	regime, err := ledger.ParseRegime(mustString(flags, "regime"))
	if err != nil {
		return err
	}
	authority, err := ledger.ParseAuthority(mustString(flags, "authority"))
	if err != nil {
		return err
	}

	entry := &persistence.DecisionEntry{
		Account:   mustString(flags, "account"),
		Timeframe: mustString(flags, "timeframe"),
		Stance:    stance,
		Tier:      tier,
		Regime:    regime,
		Authority: authority,
	}
	entry.Paid, _ = flags.GetBool("paid")

	if symbol := mustString(flags, "symbol"); symbol != "" {
		entry.Symbol = &symbol
	}
	if flags.Changed("confidence") {
		confidence, _ := flags.GetInt("confidence")
		entry.Confidence = &confidence
	}
	if entry.EntryPrice, err = parsePrice(flags, "entry-price"); err != nil {
		return err
	}
	if entry.StopPrice, err = parsePrice(flags, "stop-price"); err != nil {
		return err
	}
	if entry.MinTarget, err = parsePrice(flags, "min-target"); err != nil {
		return err
	}
	if entry.MaxTarget, err = parsePrice(flags, "max-target"); err != nil {
		return err
	}

	return withLedger(cmd, func(repo persistence.LedgerRepo) error {
		if err := repo.Create(cmd.Context(), entry); err != nil {
			return err
		}
		log.Info().Str("id", entry.ID.String()).Str("stance", string(entry.Stance)).Msg("decision recorded")
		return printJSON(entry)
	})
}

func newDecisionEnrichCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enrich",
		Short: "Backfill forensic replay fields on a decision",
		Long:  "Writes only the fields given on the command line; classification and already-set fields are untouched.",
		RunE:  runDecisionEnrich,
	}

	cmd.Flags().String("id", "", "Decision id")
	cmd.Flags().Int("memory-score", 0, "Memory score")
	cmd.Flags().String("whale-band", "", "Whale band label")
	cmd.Flags().Int("hold-strength", 0, "Hold strength")
	cmd.Flags().Int("continuation-efficiency", 0, "Continuation efficiency")
	cmd.Flags().String("timeline-stage", "", "Timeline event stage to append")
	cmd.Flags().String("timeline-note", "", "Timeline event note")
	cmd.MarkFlagRequired("id")

	return cmd
}

func runDecisionEnrich(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()

	id, err := uuid.Parse(mustString(flags, "id"))
	if err != nil {
		return fmt.Errorf("invalid decision id: %w", err)
	}

	var enr persistence.Enrichment
	if flags.Changed("memory-score") {
		v, _ := flags.GetInt("memory-score")
		enr.MemoryScore = &v
	}
	if flags.Changed("whale-band") {
		v := mustString(flags, "whale-band")
		enr.WhaleBand = &v
	}
	if flags.Changed("hold-strength") {
		v, _ := flags.GetInt("hold-strength")
		enr.HoldStrength = &v
	}
	if flags.Changed("continuation-efficiency") {
		v, _ := flags.GetInt("continuation-efficiency")
		enr.ContinuationEfficiency = &v
	}
	if stage := mustString(flags, "timeline-stage"); stage != "" {
		enr.Timeline = append(enr.Timeline, persistence.TimelineEvent{
			At:    nowUTC(),
			Stage: stage,
			Note:  mustString(flags, "timeline-note"),
		})
	}
	if enr.Empty() {
		return fmt.Errorf("nothing to enrich: pass at least one field")
	}

	return withLedger(cmd, func(repo persistence.LedgerRepo) error {
		if err := repo.UpdateEnrichment(cmd.Context(), id, enr); err != nil {
			return err
		}
		log.Info().Str("id", id.String()).Msg("decision enriched")
		return nil
	})
}

func newDecisionCloseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "close",
		Short: "Record a decision's exit outcome",
		Long:  "Sets exit reason and quality exactly once; a closed decision cannot be reopened.",
		RunE:  runDecisionClose,
	}

	cmd.Flags().String("id", "", "Decision id")
	cmd.Flags().String("reason", "", "Exit reason (CRYPTO_TIMEOUT|DISTRIBUTION|MOMENTUM_FADE|REGIME_SHIFT|HTF_CONFLICT|TIME_DECAY|HUMAN_EXIT)")
	cmd.Flags().String("quality", "", "Exit quality (EARLY|GOOD|LATE)")
	cmd.MarkFlagRequired("id")
	cmd.MarkFlagRequired("reason")
	cmd.MarkFlagRequired("quality")

	return cmd
}

func runDecisionClose(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()

	id, err := uuid.Parse(mustString(flags, "id"))
	if err != nil {
		return fmt.Errorf("invalid decision id: %w", err)
	}
	reason, err := ledger.ParseExitReason(mustString(flags, "reason"))
	if err != nil {
		return err
	}
	quality, err := ledger.ParseExitQuality(mustString(flags, "quality"))
	if err != nil {
		return err
	}

	return withLedger(cmd, func(repo persistence.LedgerRepo) error {
		if err := repo.Close(cmd.Context(), id, reason, quality); err != nil {
			return err
		}
		log.Info().Str("id", id.String()).Str("reason", string(reason)).Msg("decision closed")
		return nil
	})
}

func newDecisionShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show one decision",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(mustString(cmd.Flags(), "id"))
			if err != nil {
				return fmt.Errorf("invalid decision id: %w", err)
			}

			return withLedger(cmd, func(repo persistence.LedgerRepo) error {
				entry, err := repo.Get(cmd.Context(), id)
				if err != nil {
					return err
				}
				if entry == nil {
					return fmt.Errorf("decision %s not found", id)
				}
				return printJSON(entry)
			})
		},
	}
	cmd.Flags().String("id", "", "Decision id")
	cmd.MarkFlagRequired("id")
	return cmd
}

func newDecisionListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent decisions",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			account := mustString(flags, "account")
			limit, _ := flags.GetInt("limit")
			openOnly, _ := flags.GetBool("open")

			return withLedger(cmd, func(repo persistence.LedgerRepo) error {
				var entries []persistence.DecisionEntry
				var err error
				if openOnly {
					entries, err = repo.ListOpen(cmd.Context(), limit)
				} else {
					entries, err = repo.ListByAccount(cmd.Context(), account, limit)
				}
				if err != nil {
					return err
				}
				return printJSON(entries)
			})
		},
	}
	cmd.Flags().String("account", persistence.DefaultAccount, "Owner account tag")
	cmd.Flags().Int("limit", 20, "Maximum entries to return")
	cmd.Flags().Bool("open", false, "Only decisions without an exit outcome")
	return cmd
}

func newDecisionDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Purge a decision and its negotiation rounds",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(mustString(cmd.Flags(), "id"))
			if err != nil {
				return fmt.Errorf("invalid decision id: %w", err)
			}

			return withLedger(cmd, func(repo persistence.LedgerRepo) error {
				if err := repo.Delete(cmd.Context(), id); err != nil {
					return err
				}
				log.Info().Str("id", id.String()).Msg("decision purged")
				return nil
			})
		},
	}
	cmd.Flags().String("id", "", "Decision id")
	cmd.MarkFlagRequired("id")
	return cmd
}

// withLedger opens the database for the duration of one command.
func withLedger(cmd *cobra.Command, fn func(persistence.LedgerRepo) error) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}

	manager, err := openManager(config)
	if err != nil {
		return err
	}
	defer manager.Close()

	return fn(manager.Repository().Ledger)
}

func mustString(flags *pflag.FlagSet, name string) string {
	v, _ := flags.GetString(name)
	return v
}

func parsePrice(flags *pflag.FlagSet, name string) (decimal.NullDecimal, error) {
	raw := mustString(flags, name)
	if raw == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("invalid %s %q: %w", name, raw, err)
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}, nil
}
