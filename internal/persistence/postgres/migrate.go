package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

// migration is one versioned structural change. Versions are applied in
// order exactly once; the schema_migrations ledger, not catch-and-ignore
// semantics, is what makes re-running a no-op.
type migration struct {
	Version    int
	Name       string
	Statements []string
}

// migrations is the ordered schema history. The later steps mirror the
// phased evolution of the schema: base tables first, enrichment and exit
// columns next, then a one-time normalization of legacy enum spellings,
// and finally the CHECK constraints that freeze the canonical value sets.
var migrations = []migration{
	{
		Version: 1,
		Name:    "base_tables",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS decision_ledger (
				id UUID PRIMARY KEY,
				account TEXT NOT NULL DEFAULT 'JAYLYN',
				symbol TEXT,
				timeframe TEXT NOT NULL,
				regime TEXT NOT NULL,
				tier TEXT NOT NULL,
				stance TEXT NOT NULL,
				authority TEXT NOT NULL DEFAULT 'NORMAL',
				paid BOOLEAN NOT NULL DEFAULT FALSE,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE TABLE IF NOT EXISTS regime_memory (
				symbol TEXT NOT NULL,
				timeframe TEXT NOT NULL,
				regime TEXT NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				PRIMARY KEY (symbol, timeframe)
			)`,
			`CREATE TABLE IF NOT EXISTS decision_negotiation (
				id BIGSERIAL PRIMARY KEY,
				decision_id UUID NOT NULL REFERENCES decision_ledger(id) ON DELETE CASCADE,
				system_action TEXT NOT NULL,
				human_action TEXT,
				human_reason TEXT,
				auto_confirm BOOLEAN NOT NULL DEFAULT FALSE,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
		},
	},
	{
		Version: 2,
		Name:    "enrichment_and_exit_columns",
		Statements: []string{
			`ALTER TABLE decision_ledger ADD COLUMN IF NOT EXISTS confidence INTEGER`,
			`ALTER TABLE decision_ledger ADD COLUMN IF NOT EXISTS entry_price NUMERIC`,
			`ALTER TABLE decision_ledger ADD COLUMN IF NOT EXISTS stop_price NUMERIC`,
			`ALTER TABLE decision_ledger ADD COLUMN IF NOT EXISTS min_target NUMERIC`,
			`ALTER TABLE decision_ledger ADD COLUMN IF NOT EXISTS max_target NUMERIC`,
			`ALTER TABLE decision_ledger ADD COLUMN IF NOT EXISTS memory_score INTEGER`,
			`ALTER TABLE decision_ledger ADD COLUMN IF NOT EXISTS whale_band TEXT`,
			`ALTER TABLE decision_ledger ADD COLUMN IF NOT EXISTS hold_strength INTEGER`,
			`ALTER TABLE decision_ledger ADD COLUMN IF NOT EXISTS continuation_efficiency INTEGER`,
			`ALTER TABLE decision_ledger ADD COLUMN IF NOT EXISTS decision_timeline JSONB`,
			`ALTER TABLE decision_ledger ADD COLUMN IF NOT EXISTS exit_reason TEXT NOT NULL DEFAULT 'NONE'`,
			`ALTER TABLE decision_ledger ADD COLUMN IF NOT EXISTS exit_quality TEXT`,
		},
	},
	{
		Version: 3,
		Name:    "normalize_legacy_enum_spellings",
		Statements: []string{
			// Earlier schema phases wrote spaced stance spellings.
			`UPDATE decision_ledger SET stance = REPLACE(stance, ' ', '_') WHERE stance LIKE '% %'`,
			`UPDATE decision_negotiation SET system_action = REPLACE(system_action, ' ', '_') WHERE system_action LIKE '% %'`,
			`UPDATE decision_ledger SET exit_reason = 'NONE'
				WHERE exit_reason NOT IN ('CRYPTO_TIMEOUT','DISTRIBUTION','MOMENTUM_FADE','REGIME_SHIFT','HTF_CONFLICT','TIME_DECAY','HUMAN_EXIT','NONE')`,
		},
	},
	{
		Version: 4,
		Name:    "enum_checks_and_indexes",
		Statements: []string{
			`ALTER TABLE decision_ledger ADD CONSTRAINT decision_ledger_stance_check
				CHECK (stance IN ('ENTER_LONG','ENTER_SHORT','HOLD_LONG','HOLD_SHORT','HOLD_LONG_PAID','HOLD_SHORT_PAID','STAND_DOWN','WAIT'))`,
			`ALTER TABLE decision_ledger ADD CONSTRAINT decision_ledger_tier_check
				CHECK (tier IN ('S+++','S++','S+','S','A','B','C','Ø'))`,
			`ALTER TABLE decision_ledger ADD CONSTRAINT decision_ledger_regime_check
				CHECK (regime IN ('COMPRESSION','EXPANSION','NEUTRAL'))`,
			`ALTER TABLE decision_ledger ADD CONSTRAINT decision_ledger_authority_check
				CHECK (authority IN ('NORMAL','PRIME'))`,
			`ALTER TABLE decision_ledger ADD CONSTRAINT decision_ledger_exit_reason_check
				CHECK (exit_reason IN ('CRYPTO_TIMEOUT','DISTRIBUTION','MOMENTUM_FADE','REGIME_SHIFT','HTF_CONFLICT','TIME_DECAY','HUMAN_EXIT','NONE'))`,
			`ALTER TABLE decision_ledger ADD CONSTRAINT decision_ledger_exit_quality_check
				CHECK (exit_quality IS NULL OR exit_quality IN ('EARLY','GOOD','LATE'))`,
			`ALTER TABLE decision_ledger ADD CONSTRAINT decision_ledger_confidence_check
				CHECK (confidence IS NULL OR (confidence >= 0 AND confidence <= 100))`,
			`ALTER TABLE regime_memory ADD CONSTRAINT regime_memory_regime_check
				CHECK (regime IN ('COMPRESSION','EXPANSION','NEUTRAL'))`,
			`ALTER TABLE decision_negotiation ADD CONSTRAINT decision_negotiation_human_action_check
				CHECK (human_action IS NULL OR human_action IN ('CONFIRM','REJECT','HOLD'))`,
			`CREATE INDEX IF NOT EXISTS idx_decision_ledger_account_created
				ON decision_ledger (account, created_at DESC)`,
			`CREATE INDEX IF NOT EXISTS idx_decision_negotiation_decision
				ON decision_negotiation (decision_id, created_at)`,
			`CREATE INDEX IF NOT EXISTS idx_decision_negotiation_pending
				ON decision_negotiation (created_at) WHERE human_action IS NULL AND auto_confirm = FALSE`,
		},
	},
}

// Migrator applies the schema history against a database.
type Migrator struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewMigrator creates a migrator with a per-migration timeout.
func NewMigrator(db *sqlx.DB, timeout time.Duration) *Migrator {
	return &Migrator{db: db, timeout: timeout}
}

// Versions returns the known migration versions in order.
func Versions() []int {
	versions := make([]int, len(migrations))
	for i, m := range migrations {
		versions[i] = m.Version
	}
	return versions
}

// Apply brings the schema up to date and returns the number of migrations
// it ran. Already-applied versions are skipped via the ledger, so running
// Apply repeatedly is a no-op.
func (m *Migrator) Apply(ctx context.Context) (int, error) {
	if err := m.ensureLedger(ctx); err != nil {
		return 0, err
	}

	applied := 0
	for _, mig := range migrations {
		done, err := m.isApplied(ctx, mig.Version)
		if err != nil {
			return applied, err
		}
		if done {
			continue
		}

		if err := m.apply(ctx, mig); err != nil {
			return applied, err
		}
		log.Info().Int("version", mig.Version).Str("name", mig.Name).Msg("schema migration applied")
		applied++
	}

	return applied, nil
}

func (m *Migrator) ensureLedger(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}
	return nil
}

func (m *Migrator) isApplied(ctx context.Context, version int) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	var exists bool
	err := m.db.QueryRowxContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`, version).
		Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check migration %d: %w", version, err)
	}
	return exists, nil
}

// apply runs one migration and its ledger insert in a single transaction,
// so a half-applied migration never records as done.
func (m *Migrator) apply(ctx context.Context, mig migration) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration %d: %w", mig.Version, err)
	}
	defer tx.Rollback()

	for _, stmt := range mig.Statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", mig.Version, mig.Name, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`,
		mig.Version, mig.Name); err != nil {
		return fmt.Errorf("failed to record migration %d: %w", mig.Version, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %d: %w", mig.Version, err)
	}

	return nil
}
