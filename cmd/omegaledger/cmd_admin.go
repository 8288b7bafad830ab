package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Long:  "Brings the database schema up to date. Re-running is a no-op: applied versions are tracked in schema_migrations.",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig()
			if err != nil {
				return err
			}

			manager, err := openManager(config)
			if err != nil {
				return err
			}
			defer manager.Close()

			applied, err := manager.Migrate(cmd.Context())
			if err != nil {
				return err
			}

			if applied == 0 {
				log.Info().Msg("schema already up to date")
			} else {
				log.Info().Int("applied", applied).Msg("schema migrations applied")
			}
			return nil
		},
	}
}

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Report persistence layer health",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig()
			if err != nil {
				return err
			}

			manager, err := openManager(config)
			if err != nil {
				return err
			}
			defer manager.Close()

			return printJSON(manager.Health().Health(cmd.Context()))
		},
	}
}
