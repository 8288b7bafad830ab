// Package worker runs the automated collaborator of the negotiation
// workflow: a sweep that auto-confirms negotiation rounds no human
// answered within the policy window.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/omegaprime/omegaledger/internal/metrics"
	"github.com/omegaprime/omegaledger/internal/persistence"
)

// SweeperConfig holds the auto-confirm policy.
type SweeperConfig struct {
	// Window is how long a proposed round waits for a human response.
	Window time.Duration
	// Interval is the sweep cadence.
	Interval time.Duration
	// Rate caps auto-confirm writes per second; Burst is the bucket size.
	Rate  float64
	Burst int
	// BatchLimit bounds the rounds one pass picks up.
	BatchLimit int
}

// DefaultSweeperConfig returns the default auto-confirm policy.
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Window:     15 * time.Minute,
		Interval:   time.Minute,
		Rate:       10,
		Burst:      5,
		BatchLimit: 100,
	}
}

// SweepResult summarizes one sweep pass.
type SweepResult struct {
	Confirmed int // rounds auto-confirmed this pass
	Lost      int // rounds a human resolved while the sweep was running
	Failed    int // rounds that errored
}

// Sweeper periodically auto-confirms stale negotiation rounds. The
// per-round update is guarded in the store, so losing a race to a human
// response is a clean no-op, not an overwrite.
type Sweeper struct {
	negotiations persistence.NegotiationRepo
	config       SweeperConfig
	limiter      *rate.Limiter
	clock        func() time.Time
	m            *metrics.Registry
}

// NewSweeper creates a sweeper over the negotiation repository.
func NewSweeper(negotiations persistence.NegotiationRepo, config SweeperConfig) *Sweeper {
	if config.Window <= 0 {
		config.Window = 15 * time.Minute
	}
	if config.Interval <= 0 {
		config.Interval = time.Minute
	}
	if config.Rate <= 0 {
		config.Rate = 10
	}
	if config.Burst <= 0 {
		config.Burst = 1
	}
	if config.BatchLimit <= 0 {
		config.BatchLimit = 100
	}

	return &Sweeper{
		negotiations: negotiations,
		config:       config,
		limiter:      rate.NewLimiter(rate.Limit(config.Rate), config.Burst),
		clock:        time.Now,
		m:            metrics.Default(),
	}
}

// Run sweeps on the configured interval until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	log.Info().
		Dur("window", s.config.Window).
		Dur("interval", s.config.Interval).
		Msg("auto-confirm sweeper started")

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("auto-confirm sweeper stopped")
			return ctx.Err()
		case <-ticker.C:
			result, err := s.Sweep(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					continue
				}
				log.Error().Err(err).Msg("auto-confirm sweep failed")
				continue
			}
			if result.Confirmed > 0 || result.Lost > 0 || result.Failed > 0 {
				log.Info().
					Int("confirmed", result.Confirmed).
					Int("lost_to_human", result.Lost).
					Int("failed", result.Failed).
					Msg("auto-confirm sweep finished")
			}
		}
	}
}

// Sweep runs one pass: every round still proposed at or before now-window
// is auto-confirmed, paced by the rate limiter.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	start := s.clock()
	defer func() {
		s.m.SweepDuration.Observe(time.Since(start).Seconds())
	}()

	cutoff := start.Add(-s.config.Window)
	pending, err := s.negotiations.ListPendingBefore(ctx, cutoff, s.config.BatchLimit)
	if err != nil {
		return SweepResult{}, fmt.Errorf("failed to list pending rounds: %w", err)
	}

	var result SweepResult
	for _, round := range pending {
		if err := s.limiter.Wait(ctx); err != nil {
			return result, err
		}

		err := s.negotiations.AutoConfirm(ctx, round.ID)
		switch {
		case err == nil:
			result.Confirmed++
			s.m.SweepRounds.WithLabelValues("confirmed").Inc()
			s.m.RoundsResolved.WithLabelValues("auto").Inc()
		case errors.Is(err, persistence.ErrRoundResolved):
			// A human answered between the list and the update; theirs wins.
			result.Lost++
			s.m.SweepRounds.WithLabelValues("lost_to_human").Inc()
		default:
			result.Failed++
			s.m.SweepRounds.WithLabelValues("failed").Inc()
			log.Warn().Err(err).Int64("round_id", round.ID).Msg("auto-confirm failed")
		}
	}

	return result, nil
}
