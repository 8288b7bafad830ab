package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omegaprime/omegaledger/internal/ledger"
	"github.com/omegaprime/omegaledger/internal/persistence"
)

func TestRegimeRepo_Upsert(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRegimeRepo(db, 5*time.Second)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (symbol, timeframe) DO UPDATE SET")).
		WithArgs("BTCUSD", "1h", ledger.RegimeExpansion).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(now))

	state := &persistence.RegimeState{Symbol: "BTCUSD", Timeframe: "1h", Regime: ledger.RegimeExpansion}
	require.NoError(t, repo.Upsert(context.Background(), state))
	assert.Equal(t, now, state.UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegimeRepo_Upsert_Validation(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRegimeRepo(db, 5*time.Second)

	tests := []struct {
		name  string
		state persistence.RegimeState
	}{
		{"missing_symbol", persistence.RegimeState{Timeframe: "1h", Regime: ledger.RegimeNeutral}},
		{"missing_timeframe", persistence.RegimeState{Symbol: "BTCUSD", Regime: ledger.RegimeNeutral}},
		{"invalid_regime", persistence.RegimeState{Symbol: "BTCUSD", Timeframe: "1h", Regime: "TRENDING"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := tt.state
			assert.Error(t, repo.Upsert(context.Background(), &state))
		})
	}

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegimeRepo_Get_AbsentIsNil(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRegimeRepo(db, 5*time.Second)

	mock.ExpectQuery(regexp.QuoteMeta("FROM regime_memory")).
		WithArgs("ETHUSD", "4h").
		WillReturnRows(sqlmock.NewRows([]string{"symbol", "timeframe", "regime", "updated_at"}))

	state, err := repo.Get(context.Background(), "ETHUSD", "4h")
	require.NoError(t, err)
	assert.Nil(t, state)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegimeRepo_List(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRegimeRepo(db, 5*time.Second)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY symbol, timeframe")).
		WillReturnRows(sqlmock.NewRows([]string{"symbol", "timeframe", "regime", "updated_at"}).
			AddRow("BTCUSD", "1h", "COMPRESSION", now).
			AddRow("BTCUSD", "4h", "EXPANSION", now))

	states, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, states, 2)
	assert.Equal(t, ledger.RegimeCompression, states[0].Regime)
	assert.Equal(t, ledger.RegimeExpansion, states[1].Regime)
	assert.NoError(t, mock.ExpectationsWereMet())
}
