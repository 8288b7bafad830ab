package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/omegaprime/omegaledger/internal/interfaces/ops"
	"github.com/omegaprime/omegaledger/internal/worker"
)

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the auto-confirm sweeper and ops listener",
		Long: `Runs until interrupted. The sweeper auto-confirms negotiation rounds no
human answered within the policy window; the ops listener serves
/metrics and /healthz locally.`,
		RunE: runWorker,
	}
}

func runWorker(cmd *cobra.Command, args []string) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}

	manager, err := openManager(config)
	if err != nil {
		return err
	}
	defer manager.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sweeper := worker.NewSweeper(manager.Repository().Negotiations, worker.SweeperConfig{
		Window:     config.Worker.Window,
		Interval:   config.Worker.SweepInterval,
		Rate:       config.Worker.SweepRate,
		Burst:      config.Worker.SweepBurst,
		BatchLimit: config.Worker.BatchLimit,
	})

	serverConfig := ops.DefaultServerConfig()
	serverConfig.Host = config.Ops.Host
	serverConfig.Port = config.Ops.Port
	server := ops.NewServer(serverConfig, manager.Health())

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	go func() {
		if err := sweeper.Run(ctx); err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("sweeper exited")
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("ops listener shutdown failed")
	}

	log.Info().Msg("worker stopped")
	return nil
}
