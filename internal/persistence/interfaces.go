// Package persistence defines the store-agnostic records and repository
// interfaces of the decision ledger: one row per trading decision, a
// current-state regime memory keyed by symbol/timeframe, and an append-only
// negotiation log owned by its decision.
package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/omegaprime/omegaledger/internal/ledger"
)

// DefaultAccount is the owner tag stamped on decisions recorded without an
// explicit account.
const DefaultAccount = "JAYLYN"

// Sentinel errors shared by all repository implementations.
var (
	// ErrDecisionClosed signals an exit update against a decision whose
	// exit_reason already left NONE. Closed decisions cannot be reopened.
	ErrDecisionClosed = errors.New("decision already closed")

	// ErrRoundResolved signals a response against a negotiation round that a
	// human or the auto-confirm sweeper already resolved.
	ErrRoundResolved = errors.New("negotiation round already resolved")

	// ErrInvalidReference signals a negotiation row pointing at a decision
	// that does not exist.
	ErrInvalidReference = errors.New("referenced decision does not exist")

	// ErrDuplicate signals a unique-key collision.
	ErrDuplicate = errors.New("duplicate record")
)

// TimelineEvent is one timestamped sub-event in a decision's replay
// timeline, serialized to JSONB in storage.
type TimelineEvent struct {
	At    time.Time `json:"at"`
	Stage string    `json:"stage"`
	Note  string    `json:"note,omitempty"`
}

// DecisionEntry is one recorded trading decision: classification written at
// emit time, forensic fields backfilled later by enrichment, exit fields
// populated once when the position resolves.
type DecisionEntry struct {
	ID        uuid.UUID        `json:"id" db:"id"`
	Account   string           `json:"account" db:"account"`
	Symbol    *string          `json:"symbol,omitempty" db:"symbol"`
	Timeframe string           `json:"timeframe" db:"timeframe"`
	Regime    ledger.Regime    `json:"regime" db:"regime"`
	Tier      ledger.Tier      `json:"tier" db:"tier"`
	Stance    ledger.Stance    `json:"stance" db:"stance"`
	Authority ledger.Authority `json:"authority" db:"authority"`
	Paid      bool             `json:"paid" db:"paid"`

	Confidence *int                `json:"confidence,omitempty" db:"confidence"`
	EntryPrice decimal.NullDecimal `json:"entry_price,omitempty" db:"entry_price"`
	StopPrice  decimal.NullDecimal `json:"stop_price,omitempty" db:"stop_price"`
	MinTarget  decimal.NullDecimal `json:"min_target,omitempty" db:"min_target"`
	MaxTarget  decimal.NullDecimal `json:"max_target,omitempty" db:"max_target"`

	// Forensic replay enrichment, nullable until backfilled.
	MemoryScore            *int            `json:"memory_score,omitempty" db:"memory_score"`
	WhaleBand              *string         `json:"whale_band,omitempty" db:"whale_band"`
	HoldStrength           *int            `json:"hold_strength,omitempty" db:"hold_strength"`
	ContinuationEfficiency *int            `json:"continuation_efficiency,omitempty" db:"continuation_efficiency"`
	DecisionTimeline       []TimelineEvent `json:"decision_timeline,omitempty" db:"decision_timeline"`

	ExitReason  ledger.ExitReason   `json:"exit_reason" db:"exit_reason"`
	ExitQuality *ledger.ExitQuality `json:"exit_quality,omitempty" db:"exit_quality"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Closed reports whether the decision's exit outcome has been recorded.
func (d *DecisionEntry) Closed() bool { return d.ExitReason.Terminal() }

// Enrichment is a narrow partial update of the forensic fields. Only
// non-nil fields are written; a field never reverts to null once set.
type Enrichment struct {
	MemoryScore            *int
	WhaleBand              *string
	HoldStrength           *int
	ContinuationEfficiency *int
	Timeline               []TimelineEvent // appended to decision_timeline
}

// Empty reports whether the update would write nothing.
func (e Enrichment) Empty() bool {
	return e.MemoryScore == nil && e.WhaleBand == nil && e.HoldStrength == nil &&
		e.ContinuationEfficiency == nil && len(e.Timeline) == 0
}

// RegimeState is the latest known regime for one (symbol, timeframe) pair.
// It is a materialized current state overwritten in place, not a log.
type RegimeState struct {
	Symbol    string        `json:"symbol" db:"symbol"`
	Timeframe string        `json:"timeframe" db:"timeframe"`
	Regime    ledger.Regime `json:"regime" db:"regime"`
	UpdatedAt time.Time     `json:"updated_at" db:"updated_at"`
}

// RoundState is the per-round negotiation state.
type RoundState string

const (
	RoundProposed       RoundState = "PROPOSED"
	RoundHumanResponded RoundState = "HUMAN_RESPONDED"
	RoundAutoConfirmed  RoundState = "AUTO_CONFIRMED"
)

// NegotiationRound is one proposal-and-response cycle for a decision.
// Rounds are append-only; many rounds may exist per decision, ordered by
// creation time, each terminal on the first response (human or automated).
type NegotiationRound struct {
	ID           int64               `json:"id" db:"id"`
	DecisionID   uuid.UUID           `json:"decision_id" db:"decision_id"`
	SystemAction ledger.Stance       `json:"system_action" db:"system_action"`
	HumanAction  *ledger.HumanAction `json:"human_action,omitempty" db:"human_action"`
	HumanReason  *string             `json:"human_reason,omitempty" db:"human_reason"`
	AutoConfirm  bool                `json:"auto_confirm" db:"auto_confirm"`
	CreatedAt    time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at" db:"updated_at"`
}

// State derives the round's workflow state. An auto-confirmed round has no
// human action by convention; if both are somehow set, the human response
// wins.
func (n *NegotiationRound) State() RoundState {
	if n.HumanAction != nil {
		return RoundHumanResponded
	}
	if n.AutoConfirm {
		return RoundAutoConfirmed
	}
	return RoundProposed
}

// Resolved reports whether the round reached a terminal state.
func (n *NegotiationRound) Resolved() bool { return n.State() != RoundProposed }

// LedgerRepo persists decision ledger entries.
type LedgerRepo interface {
	// Create inserts a new decision, filling ID and timestamps on the entry.
	Create(ctx context.Context, entry *DecisionEntry) error

	// Get retrieves one decision; nil without error when absent.
	Get(ctx context.Context, id uuid.UUID) (*DecisionEntry, error)

	// ListByAccount retrieves recent decisions for an account, newest first.
	ListByAccount(ctx context.Context, account string, limit int) ([]DecisionEntry, error)

	// ListOpen retrieves decisions whose exit outcome is still NONE.
	ListOpen(ctx context.Context, limit int) ([]DecisionEntry, error)

	// UpdateEnrichment backfills forensic fields without touching
	// classification. Only the fields present in the update are written.
	UpdateEnrichment(ctx context.Context, id uuid.UUID, enr Enrichment) error

	// Close records the exit outcome exactly once; ErrDecisionClosed when
	// the decision already resolved.
	Close(ctx context.Context, id uuid.UUID, reason ledger.ExitReason, quality ledger.ExitQuality) error

	// Delete purges a decision and, by cascade, its negotiation rounds.
	Delete(ctx context.Context, id uuid.UUID) error
}

// RegimeRepo persists the regime memory current-state table.
type RegimeRepo interface {
	// Upsert atomically inserts or overwrites the regime for a key,
	// refreshing updated_at. Last writer wins.
	Upsert(ctx context.Context, state *RegimeState) error

	// Get retrieves the current regime for a key; nil without error when no
	// regime has been classified yet (absence is distinct from NEUTRAL).
	Get(ctx context.Context, symbol, timeframe string) (*RegimeState, error)

	// List retrieves every tracked (symbol, timeframe) pair.
	List(ctx context.Context) ([]RegimeState, error)
}

// NegotiationRepo persists negotiation rounds.
type NegotiationRepo interface {
	// Propose appends a new round with no response yet, filling ID and
	// timestamps. ErrInvalidReference when the decision does not exist.
	Propose(ctx context.Context, round *NegotiationRound) error

	// Respond records the human disposition on a round, guarded so a racing
	// auto-confirm or earlier response is never overwritten; ErrRoundResolved
	// when the guard fails.
	Respond(ctx context.Context, id int64, action ledger.HumanAction, reason *string) error

	// AutoConfirm resolves a round without human input under the same guard.
	AutoConfirm(ctx context.Context, id int64) error

	// Get retrieves one round; nil without error when absent.
	Get(ctx context.Context, id int64) (*NegotiationRound, error)

	// ListByDecision retrieves all rounds for a decision in creation order.
	ListByDecision(ctx context.Context, decisionID uuid.UUID) ([]NegotiationRound, error)

	// ListPendingBefore retrieves unresolved rounds proposed at or before
	// the cutoff, oldest first, for the auto-confirm sweep.
	ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]NegotiationRound, error)
}

// Repository aggregates all persistence interfaces.
type Repository struct {
	Ledger       LedgerRepo
	Regimes      RegimeRepo
	Negotiations NegotiationRepo
}

// HealthCheck represents repository health status.
type HealthCheck struct {
	Healthy        bool           `json:"healthy"`
	Errors         []string       `json:"errors,omitempty"`
	ConnectionPool map[string]int `json:"connection_pool"`
	LastCheck      time.Time      `json:"last_check"`
	ResponseTimeMS int64          `json:"response_time_ms"`
}

// RepositoryHealth provides health monitoring for the persistence layer.
type RepositoryHealth interface {
	// Health returns current repository health status.
	Health(ctx context.Context) HealthCheck

	// Ping tests basic connectivity to the database.
	Ping(ctx context.Context) error

	// Stats returns connection pool and query statistics.
	Stats(ctx context.Context) map[string]interface{}
}
