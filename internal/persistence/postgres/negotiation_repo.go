package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/omegaprime/omegaledger/internal/ledger"
	"github.com/omegaprime/omegaledger/internal/persistence"
)

// negotiationRepo implements NegotiationRepo for PostgreSQL
type negotiationRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewNegotiationRepo creates a new PostgreSQL negotiation repository
func NewNegotiationRepo(db *sqlx.DB, timeout time.Duration) persistence.NegotiationRepo {
	return &negotiationRepo{
		db:      db,
		timeout: timeout,
	}
}

const negotiationColumns = `id, decision_id, system_action, human_action, human_reason,
	       auto_confirm, created_at, updated_at`

// Propose appends a new round in the PROPOSED state. The foreign key
// rejects rounds for decisions that do not exist.
func (r *negotiationRepo) Propose(ctx context.Context, round *persistence.NegotiationRound) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if !round.SystemAction.Valid() {
		return fmt.Errorf("invalid system action %q: %w", round.SystemAction, ledger.ErrInvalidValue)
	}
	if round.DecisionID == uuid.Nil {
		return fmt.Errorf("decision id is required")
	}

	query := `
		INSERT INTO decision_negotiation (decision_id, system_action)
		VALUES ($1, $2)
		RETURNING id, auto_confirm, created_at, updated_at`

	err := r.db.QueryRowxContext(ctx, query, round.DecisionID, round.SystemAction).
		Scan(&round.ID, &round.AutoConfirm, &round.CreatedAt, &round.UpdatedAt)
	if err != nil {
		return translateError("failed to propose negotiation round", err)
	}

	return nil
}

// Respond records the human disposition on a round. The guard only matches
// unresolved rounds, so a racing auto-confirm (or an earlier human
// response) is never silently overwritten.
func (r *negotiationRepo) Respond(ctx context.Context, id int64, action ledger.HumanAction, reason *string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if !action.Valid() {
		return fmt.Errorf("invalid human action %q: %w", action, ledger.ErrInvalidValue)
	}

	query := `
		UPDATE decision_negotiation
		SET human_action = $1, human_reason = $2, updated_at = NOW()
		WHERE id = $3 AND human_action IS NULL AND auto_confirm = FALSE`

	result, err := r.db.ExecContext(ctx, query, action, reason, id)
	if err != nil {
		return translateError("failed to respond to negotiation round", err)
	}

	return r.checkResolved(ctx, id, result)
}

// AutoConfirm resolves a round without human input, leaving human_action
// null. Same optimistic guard as Respond: a prior human response wins.
func (r *negotiationRepo) AutoConfirm(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		UPDATE decision_negotiation
		SET auto_confirm = TRUE, updated_at = NOW()
		WHERE id = $1 AND human_action IS NULL AND auto_confirm = FALSE`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return translateError("failed to auto-confirm negotiation round", err)
	}

	return r.checkResolved(ctx, id, result)
}

// checkResolved turns a zero-row guarded update into ErrRoundResolved, or a
// not-found error when the round does not exist at all.
func (r *negotiationRepo) checkResolved(ctx context.Context, id int64, result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if rows > 0 {
		return nil
	}

	existing, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("negotiation round %d not found", id)
	}
	return fmt.Errorf("negotiation round %d: %w", id, persistence.ErrRoundResolved)
}

// Get retrieves one round; nil without error when absent.
func (r *negotiationRepo) Get(ctx context.Context, id int64) (*persistence.NegotiationRound, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT ` + negotiationColumns + `
		FROM decision_negotiation
		WHERE id = $1`

	row := r.db.QueryRowxContext(ctx, query, id)
	round, err := scanRound(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get negotiation round: %w", err)
	}

	return round, nil
}

// ListByDecision retrieves all rounds for a decision in creation order.
func (r *negotiationRepo) ListByDecision(ctx context.Context, decisionID uuid.UUID) ([]persistence.NegotiationRound, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT ` + negotiationColumns + `
		FROM decision_negotiation
		WHERE decision_id = $1
		ORDER BY created_at ASC, id ASC`

	rows, err := r.db.QueryxContext(ctx, query, decisionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query negotiation rounds: %w", err)
	}
	defer rows.Close()

	return scanRounds(rows)
}

// ListPendingBefore retrieves unresolved rounds proposed at or before the
// cutoff, oldest first. The auto-confirm sweep feeds from this.
func (r *negotiationRepo) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]persistence.NegotiationRound, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT ` + negotiationColumns + `
		FROM decision_negotiation
		WHERE human_action IS NULL AND auto_confirm = FALSE AND created_at <= $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2`

	rows, err := r.db.QueryxContext(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending rounds: %w", err)
	}
	defer rows.Close()

	return scanRounds(rows)
}

func scanRound(row rowScanner) (*persistence.NegotiationRound, error) {
	var round persistence.NegotiationRound
	var humanAction sql.NullString

	err := row.Scan(
		&round.ID, &round.DecisionID, &round.SystemAction, &humanAction,
		&round.HumanReason, &round.AutoConfirm, &round.CreatedAt, &round.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if humanAction.Valid {
		action := ledger.HumanAction(humanAction.String)
		round.HumanAction = &action
	}

	return &round, nil
}

func scanRounds(rows *sqlx.Rows) ([]persistence.NegotiationRound, error) {
	var rounds []persistence.NegotiationRound

	for rows.Next() {
		round, err := scanRound(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan negotiation round: %w", err)
		}
		rounds = append(rounds, *round)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return rounds, nil
}
