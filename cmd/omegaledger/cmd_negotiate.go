package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/omegaprime/omegaledger/internal/ledger"
	"github.com/omegaprime/omegaledger/internal/metrics"
	"github.com/omegaprime/omegaledger/internal/persistence"
)

func newNegotiateCmd() *cobra.Command {
	negotiateCmd := &cobra.Command{
		Use:   "negotiate",
		Short: "Propose and resolve negotiation rounds",
		Long: `A negotiation round records a machine-proposed action and the human's
disposition on it. Rounds are append-only per decision; each round is
terminal on the first response, human or automated.`,
	}

	negotiateCmd.AddCommand(newNegotiateProposeCmd())
	negotiateCmd.AddCommand(newNegotiateRespondCmd())
	negotiateCmd.AddCommand(newNegotiateListCmd())

	return negotiateCmd
}

func newNegotiateProposeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "propose",
		Short: "Open a new negotiation round for a decision",
		RunE:  runNegotiatePropose,
	}
	cmd.Flags().String("decision", "", "Decision id the round belongs to")
	cmd.Flags().String("action", "", "System-proposed action (a stance, e.g. ENTER_LONG)")
	cmd.MarkFlagRequired("decision")
	cmd.MarkFlagRequired("action")
	return cmd
}

func runNegotiatePropose(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()

	decisionID, err := uuid.Parse(mustString(flags, "decision"))
	if err != nil {
		return fmt.Errorf("invalid decision id: %w", err)
	}
	action, err := ledger.ParseStance(mustString(flags, "action"))
	if err != nil {
		return err
	}

	round := &persistence.NegotiationRound{
		DecisionID:   decisionID,
		SystemAction: action,
	}

	return withNegotiations(cmd, func(repo persistence.NegotiationRepo) error {
		if err := repo.Propose(cmd.Context(), round); err != nil {
			return err
		}
		metrics.Default().RoundsProposed.Inc()
		log.Info().Int64("round_id", round.ID).Str("decision", decisionID.String()).Msg("negotiation round proposed")
		return printJSON(round)
	})
}

func newNegotiateRespondCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "respond",
		Short: "Record the human disposition on a round",
		Long: `Requires CONFIRM or ADMIN role; identity is resolved from --user and
--token against the configured credential table. An unknown user or bad
token degrades to READ, which may not respond.`,
		RunE: runNegotiateRespond,
	}
	cmd.Flags().Int64("id", 0, "Negotiation round id")
	cmd.Flags().String("action", "", "Disposition (CONFIRM|REJECT|HOLD)")
	cmd.Flags().String("reason", "", "Optional free-text reason")
	cmd.Flags().String("user", "", "Operator user id")
	cmd.Flags().String("token", "", "Operator token")
	cmd.MarkFlagRequired("id")
	cmd.MarkFlagRequired("action")
	return cmd
}

func runNegotiateRespond(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()

	id, _ := flags.GetInt64("id")
	action, err := ledger.ParseHumanAction(mustString(flags, "action"))
	if err != nil {
		return err
	}

	config, err := loadConfig()
	if err != nil {
		return err
	}

	ident := ledger.ResolveIdentity(mustString(flags, "user"), mustString(flags, "token"), config.Users)
	target, err := ledger.ResponseState(action)
	if err != nil {
		return err
	}
	if !ledger.CanTransition(ledger.StatePending, target, ident.Role) {
		return fmt.Errorf("%s (%s) may not %s a negotiation round", ident.UserID, ident.Role, action)
	}

	var reason *string
	if r := mustString(flags, "reason"); r != "" {
		reason = &r
	}

	manager, err := openManager(config)
	if err != nil {
		return err
	}
	defer manager.Close()

	if err := manager.Repository().Negotiations.Respond(cmd.Context(), id, action, reason); err != nil {
		return err
	}

	metrics.Default().RoundsResolved.WithLabelValues("human").Inc()
	log.Info().
		Int64("round_id", id).
		Str("action", string(action)).
		Str("by", ident.UserID).
		Str("role", string(ident.Role)).
		Msg("negotiation round resolved")
	return nil
}

func newNegotiateListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List negotiation rounds for a decision",
		RunE: func(cmd *cobra.Command, args []string) error {
			decisionID, err := uuid.Parse(mustString(cmd.Flags(), "decision"))
			if err != nil {
				return fmt.Errorf("invalid decision id: %w", err)
			}

			return withNegotiations(cmd, func(repo persistence.NegotiationRepo) error {
				rounds, err := repo.ListByDecision(cmd.Context(), decisionID)
				if err != nil {
					return err
				}
				return printJSON(rounds)
			})
		},
	}
	cmd.Flags().String("decision", "", "Decision id")
	cmd.MarkFlagRequired("decision")
	return cmd
}

// withNegotiations opens the database for the duration of one command.
func withNegotiations(cmd *cobra.Command, fn func(persistence.NegotiationRepo) error) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}

	manager, err := openManager(config)
	if err != nil {
		return err
	}
	defer manager.Close()

	return fn(manager.Repository().Negotiations)
}
