package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/omegaprime/omegaledger/internal/ledger"
	"github.com/omegaprime/omegaledger/internal/persistence"
)

// regimeRepo implements RegimeRepo for PostgreSQL
type regimeRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewRegimeRepo creates a new PostgreSQL regime memory repository
func NewRegimeRepo(db *sqlx.DB, timeout time.Duration) persistence.RegimeRepo {
	return &regimeRepo{
		db:      db,
		timeout: timeout,
	}
}

// Upsert inserts or overwrites the regime for (symbol, timeframe). The
// conflict clause makes the write atomic: concurrent classifiers serialize
// through the store and the last commit wins, no read-modify-write.
func (r *regimeRepo) Upsert(ctx context.Context, state *persistence.RegimeState) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if state.Symbol == "" || state.Timeframe == "" {
		return fmt.Errorf("symbol and timeframe are required")
	}
	if !state.Regime.Valid() {
		return fmt.Errorf("invalid regime %q: %w", state.Regime, ledger.ErrInvalidValue)
	}

	query := `
		INSERT INTO regime_memory (symbol, timeframe, regime, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (symbol, timeframe) DO UPDATE SET
			regime = EXCLUDED.regime,
			updated_at = NOW()
		RETURNING updated_at`

	err := r.db.QueryRowxContext(ctx, query, state.Symbol, state.Timeframe, state.Regime).
		Scan(&state.UpdatedAt)
	if err != nil {
		return translateError("failed to upsert regime memory", err)
	}

	return nil
}

// Get retrieves the current regime for a key; nil without error when no
// regime has been classified yet.
func (r *regimeRepo) Get(ctx context.Context, symbol, timeframe string) (*persistence.RegimeState, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT symbol, timeframe, regime, updated_at
		FROM regime_memory
		WHERE symbol = $1 AND timeframe = $2`

	var state persistence.RegimeState
	err := r.db.QueryRowxContext(ctx, query, symbol, timeframe).
		Scan(&state.Symbol, &state.Timeframe, &state.Regime, &state.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get regime memory: %w", err)
	}

	return &state, nil
}

// List retrieves every tracked (symbol, timeframe) pair.
func (r *regimeRepo) List(ctx context.Context) ([]persistence.RegimeState, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT symbol, timeframe, regime, updated_at
		FROM regime_memory
		ORDER BY symbol, timeframe`

	rows, err := r.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query regime memory: %w", err)
	}
	defer rows.Close()

	var states []persistence.RegimeState
	for rows.Next() {
		var state persistence.RegimeState
		if err := rows.Scan(&state.Symbol, &state.Timeframe, &state.Regime, &state.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan regime state: %w", err)
		}
		states = append(states, state)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return states, nil
}
