package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omegaprime/omegaledger/internal/ledger"
	"github.com/omegaprime/omegaledger/internal/persistence"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	return sqlx.NewDb(mockDB, "postgres"), mock
}

var ledgerTestColumns = []string{
	"id", "account", "symbol", "timeframe", "regime", "tier", "stance", "authority", "paid",
	"confidence", "entry_price", "stop_price", "min_target", "max_target",
	"memory_score", "whale_band", "hold_strength", "continuation_efficiency", "decision_timeline",
	"exit_reason", "exit_quality", "created_at", "updated_at",
}

func ledgerRow(id uuid.UUID, exitReason string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(ledgerTestColumns).AddRow(
		id.String(), "JAYLYN", nil, "1h", "NEUTRAL", "B", "WAIT", "NORMAL", false,
		nil, nil, nil, nil, nil,
		nil, nil, nil, nil, []byte("[]"),
		exitReason, nil, now, now,
	)
}

func TestLedgerRepo_Create_Defaults(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLedgerRepo(db, 5*time.Second)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO decision_ledger")).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	entry := &persistence.DecisionEntry{
		Timeframe: "1h",
		Stance:    ledger.StanceWait,
		Tier:      ledger.TierB,
		Regime:    ledger.RegimeNeutral,
	}

	require.NoError(t, repo.Create(context.Background(), entry))

	// Defaults applied before the insert.
	assert.Equal(t, persistence.DefaultAccount, entry.Account)
	assert.Equal(t, ledger.AuthorityNormal, entry.Authority)
	assert.Equal(t, ledger.ExitNone, entry.ExitReason)
	assert.Nil(t, entry.ExitQuality)
	assert.False(t, entry.Paid)
	assert.NotEqual(t, uuid.Nil, entry.ID)
	assert.Equal(t, now, entry.CreatedAt)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepo_Create_RejectsInvalidEnums(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLedgerRepo(db, 5*time.Second)

	tests := []struct {
		name  string
		entry persistence.DecisionEntry
	}{
		{"bad_stance", persistence.DecisionEntry{Timeframe: "1h", Stance: "BUY", Tier: ledger.TierA, Regime: ledger.RegimeNeutral}},
		{"bad_tier", persistence.DecisionEntry{Timeframe: "1h", Stance: ledger.StanceWait, Tier: "S-", Regime: ledger.RegimeNeutral}},
		{"bad_regime", persistence.DecisionEntry{Timeframe: "1h", Stance: ledger.StanceWait, Tier: ledger.TierA, Regime: "CHOP"}},
		{"spaced_legacy_stance", persistence.DecisionEntry{Timeframe: "1h", Stance: "ENTER LONG", Tier: ledger.TierA, Regime: ledger.RegimeNeutral}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := tt.entry
			err := repo.Create(context.Background(), &entry)
			require.Error(t, err)
			assert.ErrorIs(t, err, ledger.ErrInvalidValue)
		})
	}

	// No SQL may run for a rejected write.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepo_Create_RejectsConfidenceOutOfRange(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLedgerRepo(db, 5*time.Second)

	confidence := 150
	entry := &persistence.DecisionEntry{
		Timeframe:  "1h",
		Stance:     ledger.StanceWait,
		Tier:       ledger.TierB,
		Regime:     ledger.RegimeNeutral,
		Confidence: &confidence,
	}

	err := repo.Create(context.Background(), entry)
	assert.ErrorIs(t, err, ledger.ErrInvalidValue)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepo_Get_AbsentIsNil(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLedgerRepo(db, 5*time.Second)

	id := uuid.New()
	mock.ExpectQuery(regexp.QuoteMeta("FROM decision_ledger")).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(ledgerTestColumns))

	entry, err := repo.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, entry)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepo_UpdateEnrichment_NarrowUpdate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLedgerRepo(db, 5*time.Second)

	id := uuid.New()
	score := 72
	band := "large"

	// Only the provided columns appear in the SET clause.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE decision_ledger SET memory_score = $1, whale_band = $2, updated_at = NOW() WHERE id = $3")).
		WithArgs(score, band, id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateEnrichment(context.Background(), id, persistence.Enrichment{
		MemoryScore: &score,
		WhaleBand:   &band,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepo_UpdateEnrichment_AppendsTimeline(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLedgerRepo(db, 5*time.Second)

	id := uuid.New()
	mock.ExpectExec(regexp.QuoteMeta("decision_timeline = COALESCE(decision_timeline, '[]'::jsonb) ||")).
		WithArgs(sqlmock.AnyArg(), id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateEnrichment(context.Background(), id, persistence.Enrichment{
		Timeline: []persistence.TimelineEvent{{At: time.Now().UTC(), Stage: "entry", Note: "filled"}},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepo_UpdateEnrichment_EmptyIsError(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLedgerRepo(db, 5*time.Second)

	err := repo.UpdateEnrichment(context.Background(), uuid.New(), persistence.Enrichment{})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepo_Close_OneWay(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLedgerRepo(db, 5*time.Second)

	id := uuid.New()
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $3 AND exit_reason = 'NONE'")).
		WithArgs(ledger.ExitMomentumFade, ledger.QualityGood, id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Close(context.Background(), id, ledger.ExitMomentumFade, ledger.QualityGood)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepo_Close_AlreadyClosed(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLedgerRepo(db, 5*time.Second)

	id := uuid.New()
	// Guard matches no rows; the follow-up lookup finds a closed decision.
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $3 AND exit_reason = 'NONE'")).
		WithArgs(ledger.ExitTimeDecay, ledger.QualityLate, id).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM decision_ledger")).
		WithArgs(id).
		WillReturnRows(ledgerRow(id, "MOMENTUM_FADE"))

	err := repo.Close(context.Background(), id, ledger.ExitTimeDecay, ledger.QualityLate)
	require.Error(t, err)
	assert.ErrorIs(t, err, persistence.ErrDecisionClosed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepo_Close_RejectsNone(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLedgerRepo(db, 5*time.Second)

	err := repo.Close(context.Background(), uuid.New(), ledger.ExitNone, ledger.QualityGood)
	assert.ErrorIs(t, err, ledger.ErrInvalidValue)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepo_Delete(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLedgerRepo(db, 5*time.Second)

	id := uuid.New()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM decision_ledger WHERE id = $1")).
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Delete(context.Background(), id))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepo_ListOpen(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLedgerRepo(db, 5*time.Second)

	id := uuid.New()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE exit_reason = 'NONE'")).
		WithArgs(10).
		WillReturnRows(ledgerRow(id, "NONE"))

	entries, err := repo.ListOpen(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, id, entries[0].ID)
	assert.Equal(t, ledger.ExitNone, entries[0].ExitReason)
	assert.Nil(t, entries[0].ExitQuality)
	assert.NoError(t, mock.ExpectationsWereMet())
}
