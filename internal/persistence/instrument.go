package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/omegaprime/omegaledger/internal/ledger"
	"github.com/omegaprime/omegaledger/internal/metrics"
)

// Instrument wraps a repository collection so every operation records an
// outcome counter and a duration histogram, keyed by table and operation.
func Instrument(repos *Repository) *Repository {
	m := metrics.Default()
	return &Repository{
		Ledger:       &instrumentedLedger{next: repos.Ledger, m: m},
		Regimes:      &instrumentedRegimes{next: repos.Regimes, m: m},
		Negotiations: &instrumentedNegotiations{next: repos.Negotiations, m: m},
	}
}

func observe(m *metrics.Registry, table, op string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.RepoOps.WithLabelValues(table, op, result).Inc()
	m.RepoDuration.WithLabelValues(table, op).Observe(time.Since(start).Seconds())
}

type instrumentedLedger struct {
	next LedgerRepo
	m    *metrics.Registry
}

func (r *instrumentedLedger) Create(ctx context.Context, entry *DecisionEntry) error {
	start := time.Now()
	err := r.next.Create(ctx, entry)
	observe(r.m, "decision_ledger", "create", start, err)
	return err
}

func (r *instrumentedLedger) Get(ctx context.Context, id uuid.UUID) (*DecisionEntry, error) {
	start := time.Now()
	entry, err := r.next.Get(ctx, id)
	observe(r.m, "decision_ledger", "get", start, err)
	return entry, err
}

func (r *instrumentedLedger) ListByAccount(ctx context.Context, account string, limit int) ([]DecisionEntry, error) {
	start := time.Now()
	entries, err := r.next.ListByAccount(ctx, account, limit)
	observe(r.m, "decision_ledger", "list_by_account", start, err)
	return entries, err
}

func (r *instrumentedLedger) ListOpen(ctx context.Context, limit int) ([]DecisionEntry, error) {
	start := time.Now()
	entries, err := r.next.ListOpen(ctx, limit)
	observe(r.m, "decision_ledger", "list_open", start, err)
	return entries, err
}

func (r *instrumentedLedger) UpdateEnrichment(ctx context.Context, id uuid.UUID, enr Enrichment) error {
	start := time.Now()
	err := r.next.UpdateEnrichment(ctx, id, enr)
	observe(r.m, "decision_ledger", "update_enrichment", start, err)
	return err
}

func (r *instrumentedLedger) Close(ctx context.Context, id uuid.UUID, reason ledger.ExitReason, quality ledger.ExitQuality) error {
	start := time.Now()
	err := r.next.Close(ctx, id, reason, quality)
	observe(r.m, "decision_ledger", "close", start, err)
	return err
}

func (r *instrumentedLedger) Delete(ctx context.Context, id uuid.UUID) error {
	start := time.Now()
	err := r.next.Delete(ctx, id)
	observe(r.m, "decision_ledger", "delete", start, err)
	return err
}

type instrumentedRegimes struct {
	next RegimeRepo
	m    *metrics.Registry
}

func (r *instrumentedRegimes) Upsert(ctx context.Context, state *RegimeState) error {
	start := time.Now()
	err := r.next.Upsert(ctx, state)
	observe(r.m, "regime_memory", "upsert", start, err)
	return err
}

func (r *instrumentedRegimes) Get(ctx context.Context, symbol, timeframe string) (*RegimeState, error) {
	start := time.Now()
	state, err := r.next.Get(ctx, symbol, timeframe)
	observe(r.m, "regime_memory", "get", start, err)
	return state, err
}

func (r *instrumentedRegimes) List(ctx context.Context) ([]RegimeState, error) {
	start := time.Now()
	states, err := r.next.List(ctx)
	observe(r.m, "regime_memory", "list", start, err)
	return states, err
}

type instrumentedNegotiations struct {
	next NegotiationRepo
	m    *metrics.Registry
}

func (r *instrumentedNegotiations) Propose(ctx context.Context, round *NegotiationRound) error {
	start := time.Now()
	err := r.next.Propose(ctx, round)
	observe(r.m, "decision_negotiation", "propose", start, err)
	return err
}

func (r *instrumentedNegotiations) Respond(ctx context.Context, id int64, action ledger.HumanAction, reason *string) error {
	start := time.Now()
	err := r.next.Respond(ctx, id, action, reason)
	observe(r.m, "decision_negotiation", "respond", start, err)
	return err
}

func (r *instrumentedNegotiations) AutoConfirm(ctx context.Context, id int64) error {
	start := time.Now()
	err := r.next.AutoConfirm(ctx, id)
	observe(r.m, "decision_negotiation", "auto_confirm", start, err)
	return err
}

func (r *instrumentedNegotiations) Get(ctx context.Context, id int64) (*NegotiationRound, error) {
	start := time.Now()
	round, err := r.next.Get(ctx, id)
	observe(r.m, "decision_negotiation", "get", start, err)
	return round, err
}

func (r *instrumentedNegotiations) ListByDecision(ctx context.Context, decisionID uuid.UUID) ([]NegotiationRound, error) {
	start := time.Now()
	rounds, err := r.next.ListByDecision(ctx, decisionID)
	observe(r.m, "decision_negotiation", "list_by_decision", start, err)
	return rounds, err
}

func (r *instrumentedNegotiations) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]NegotiationRound, error) {
	start := time.Now()
	rounds, err := r.next.ListPendingBefore(ctx, cutoff, limit)
	observe(r.m, "decision_negotiation", "list_pending_before", start, err)
	return rounds, err
}
