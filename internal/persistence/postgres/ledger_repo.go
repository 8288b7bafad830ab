package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/omegaprime/omegaledger/internal/ledger"
	"github.com/omegaprime/omegaledger/internal/persistence"
)

// ledgerRepo implements LedgerRepo for PostgreSQL
type ledgerRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewLedgerRepo creates a new PostgreSQL decision ledger repository
func NewLedgerRepo(db *sqlx.DB, timeout time.Duration) persistence.LedgerRepo {
	return &ledgerRepo{
		db:      db,
		timeout: timeout,
	}
}

const ledgerColumns = `id, account, symbol, timeframe, regime, tier, stance, authority, paid,
	       confidence, entry_price, stop_price, min_target, max_target,
	       memory_score, whale_band, hold_strength, continuation_efficiency, decision_timeline,
	       exit_reason, exit_quality, created_at, updated_at`

// Create inserts a new decision with its classification fields. Enrichment
// and exit fields start empty; defaults are applied here so the entry is
// valid and queryable before enrichment completes.
func (r *ledgerRepo) Create(ctx context.Context, entry *persistence.DecisionEntry) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if entry.Account == "" {
		entry.Account = persistence.DefaultAccount
	}
	if entry.Authority == "" {
		entry.Authority = ledger.AuthorityNormal
	}
	if entry.ExitReason == "" {
		entry.ExitReason = ledger.ExitNone
	}
	if err := validateEntry(entry); err != nil {
		return err
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}

	timelineJSON, err := marshalTimeline(entry.DecisionTimeline)
	if err != nil {
		return fmt.Errorf("failed to marshal decision timeline: %w", err)
	}

	query := `
		INSERT INTO decision_ledger
		(id, account, symbol, timeframe, regime, tier, stance, authority, paid,
		 confidence, entry_price, stop_price, min_target, max_target, decision_timeline, exit_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING created_at, updated_at`

	err = r.db.QueryRowxContext(ctx, query,
		entry.ID, entry.Account, entry.Symbol, entry.Timeframe,
		entry.Regime, entry.Tier, entry.Stance, entry.Authority, entry.Paid,
		entry.Confidence, entry.EntryPrice, entry.StopPrice, entry.MinTarget, entry.MaxTarget,
		timelineJSON, entry.ExitReason).
		Scan(&entry.CreatedAt, &entry.UpdatedAt)

	if err != nil {
		return translateError("failed to insert decision", err)
	}

	return nil
}

// Get retrieves one decision by id; nil without error when absent.
func (r *ledgerRepo) Get(ctx context.Context, id uuid.UUID) (*persistence.DecisionEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT ` + ledgerColumns + `
		FROM decision_ledger
		WHERE id = $1`

	row := r.db.QueryRowxContext(ctx, query, id)
	entry, err := scanDecision(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get decision: %w", err)
	}

	return entry, nil
}

// ListByAccount retrieves recent decisions for an account, newest first.
func (r *ledgerRepo) ListByAccount(ctx context.Context, account string, limit int) ([]persistence.DecisionEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT ` + ledgerColumns + `
		FROM decision_ledger
		WHERE account = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.db.QueryxContext(ctx, query, account, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions by account: %w", err)
	}
	defer rows.Close()

	return scanDecisions(rows)
}

// ListOpen retrieves decisions whose exit outcome is still NONE.
func (r *ledgerRepo) ListOpen(ctx context.Context, limit int) ([]persistence.DecisionEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT ` + ledgerColumns + `
		FROM decision_ledger
		WHERE exit_reason = 'NONE'
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := r.db.QueryxContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query open decisions: %w", err)
	}
	defer rows.Close()

	return scanDecisions(rows)
}

// UpdateEnrichment backfills forensic fields with a narrow update that
// writes only the columns present in the update, so the enrichment writer
// never contends with the classification writer on the same row. Timeline
// events are appended to the stored JSONB array.
func (r *ledgerRepo) UpdateEnrichment(ctx context.Context, id uuid.UUID, enr persistence.Enrichment) error {
	if enr.Empty() {
		return fmt.Errorf("enrichment update contains no fields")
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	sets := make([]string, 0, 6)
	args := make([]interface{}, 0, 7)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if enr.MemoryScore != nil {
		sets = append(sets, "memory_score = "+arg(*enr.MemoryScore))
	}
	if enr.WhaleBand != nil {
		sets = append(sets, "whale_band = "+arg(*enr.WhaleBand))
	}
	if enr.HoldStrength != nil {
		sets = append(sets, "hold_strength = "+arg(*enr.HoldStrength))
	}
	if enr.ContinuationEfficiency != nil {
		sets = append(sets, "continuation_efficiency = "+arg(*enr.ContinuationEfficiency))
	}
	if len(enr.Timeline) > 0 {
		eventsJSON, err := json.Marshal(enr.Timeline)
		if err != nil {
			return fmt.Errorf("failed to marshal timeline events: %w", err)
		}
		sets = append(sets, "decision_timeline = COALESCE(decision_timeline, '[]'::jsonb) || "+arg(eventsJSON)+"::jsonb")
	}
	sets = append(sets, "updated_at = NOW()")

	query := "UPDATE decision_ledger SET " + strings.Join(sets, ", ") + " WHERE id = " + arg(id)

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return translateError("failed to enrich decision", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read enrichment result: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("decision %s not found", id)
	}

	return nil
}

// Close records the exit outcome. The WHERE guard makes the transition
// one-way: once exit_reason leaves NONE the decision cannot be reopened or
// re-closed.
func (r *ledgerRepo) Close(ctx context.Context, id uuid.UUID, reason ledger.ExitReason, quality ledger.ExitQuality) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if !reason.Terminal() {
		return fmt.Errorf("exit reason %q does not close a decision: %w", reason, ledger.ErrInvalidValue)
	}
	if !quality.Valid() {
		return fmt.Errorf("invalid exit quality %q: %w", quality, ledger.ErrInvalidValue)
	}

	query := `
		UPDATE decision_ledger
		SET exit_reason = $1, exit_quality = $2, updated_at = NOW()
		WHERE id = $3 AND exit_reason = 'NONE'`

	result, err := r.db.ExecContext(ctx, query, reason, quality, id)
	if err != nil {
		return translateError("failed to close decision", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read close result: %w", err)
	}
	if rows == 0 {
		// Distinguish a missing decision from an already-closed one.
		existing, getErr := r.Get(ctx, id)
		if getErr != nil {
			return getErr
		}
		if existing == nil {
			return fmt.Errorf("decision %s not found", id)
		}
		return fmt.Errorf("decision %s: %w", id, persistence.ErrDecisionClosed)
	}

	return nil
}

// Delete purges a decision; negotiation rounds follow by cascade.
func (r *ledgerRepo) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	result, err := r.db.ExecContext(ctx, `DELETE FROM decision_ledger WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete decision: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("decision %s not found", id)
	}

	return nil
}

// validateEntry enforces the closed enumerations and confidence range
// before any SQL runs; the database CHECK constraints are the backstop.
func validateEntry(entry *persistence.DecisionEntry) error {
	if entry.Timeframe == "" {
		return fmt.Errorf("timeframe is required")
	}
	if !entry.Stance.Valid() {
		return fmt.Errorf("invalid stance %q: %w", entry.Stance, ledger.ErrInvalidValue)
	}
	if !entry.Tier.Valid() {
		return fmt.Errorf("invalid tier %q: %w", entry.Tier, ledger.ErrInvalidValue)
	}
	if !entry.Regime.Valid() {
		return fmt.Errorf("invalid regime %q: %w", entry.Regime, ledger.ErrInvalidValue)
	}
	if !entry.Authority.Valid() {
		return fmt.Errorf("invalid authority %q: %w", entry.Authority, ledger.ErrInvalidValue)
	}
	if !entry.ExitReason.Valid() {
		return fmt.Errorf("invalid exit reason %q: %w", entry.ExitReason, ledger.ErrInvalidValue)
	}
	if entry.ExitQuality != nil && !entry.ExitQuality.Valid() {
		return fmt.Errorf("invalid exit quality %q: %w", *entry.ExitQuality, ledger.ErrInvalidValue)
	}
	return ledger.ValidateConfidence(entry.Confidence)
}

func marshalTimeline(events []persistence.TimelineEvent) ([]byte, error) {
	if len(events) == 0 {
		return []byte("[]"), nil
	}
	return json.Marshal(events)
}

// rowScanner covers both *sqlx.Row and *sqlx.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDecision(row rowScanner) (*persistence.DecisionEntry, error) {
	var entry persistence.DecisionEntry
	var timelineJSON []byte
	var exitQuality sql.NullString

	err := row.Scan(
		&entry.ID, &entry.Account, &entry.Symbol, &entry.Timeframe,
		&entry.Regime, &entry.Tier, &entry.Stance, &entry.Authority, &entry.Paid,
		&entry.Confidence, &entry.EntryPrice, &entry.StopPrice, &entry.MinTarget, &entry.MaxTarget,
		&entry.MemoryScore, &entry.WhaleBand, &entry.HoldStrength, &entry.ContinuationEfficiency,
		&timelineJSON, &entry.ExitReason, &exitQuality, &entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if len(timelineJSON) > 0 {
		if err := json.Unmarshal(timelineJSON, &entry.DecisionTimeline); err != nil {
			return nil, fmt.Errorf("failed to unmarshal decision timeline: %w", err)
		}
	}
	if exitQuality.Valid {
		q := ledger.ExitQuality(exitQuality.String)
		entry.ExitQuality = &q
	}

	return &entry, nil
}

func scanDecisions(rows *sqlx.Rows) ([]persistence.DecisionEntry, error) {
	var entries []persistence.DecisionEntry

	for rows.Next() {
		entry, err := scanDecision(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		entries = append(entries, *entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return entries, nil
}
