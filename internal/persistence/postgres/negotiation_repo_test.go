package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omegaprime/omegaledger/internal/ledger"
	"github.com/omegaprime/omegaledger/internal/persistence"
)

var negotiationTestColumns = []string{
	"id", "decision_id", "system_action", "human_action", "human_reason",
	"auto_confirm", "created_at", "updated_at",
}

func TestNegotiationRepo_Propose(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewNegotiationRepo(db, 5*time.Second)

	decisionID := uuid.New()
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO decision_negotiation (decision_id, system_action)")).
		WithArgs(decisionID, ledger.StanceEnterLong).
		WillReturnRows(sqlmock.NewRows([]string{"id", "auto_confirm", "created_at", "updated_at"}).
			AddRow(int64(7), false, now, now))

	round := &persistence.NegotiationRound{DecisionID: decisionID, SystemAction: ledger.StanceEnterLong}
	require.NoError(t, repo.Propose(context.Background(), round))
	assert.Equal(t, int64(7), round.ID)
	assert.False(t, round.AutoConfirm)
	assert.Equal(t, persistence.RoundProposed, round.State())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNegotiationRepo_Propose_UnknownDecision(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewNegotiationRepo(db, 5*time.Second)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO decision_negotiation")).
		WillReturnError(&pq.Error{Code: "23503"})

	round := &persistence.NegotiationRound{DecisionID: uuid.New(), SystemAction: ledger.StanceWait}
	err := repo.Propose(context.Background(), round)
	require.Error(t, err)
	assert.ErrorIs(t, err, persistence.ErrInvalidReference)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNegotiationRepo_Propose_Validation(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewNegotiationRepo(db, 5*time.Second)

	// Invalid system action fails before any SQL.
	round := &persistence.NegotiationRound{DecisionID: uuid.New(), SystemAction: "BUY"}
	assert.ErrorIs(t, repo.Propose(context.Background(), round), ledger.ErrInvalidValue)

	// Missing decision id fails before any SQL.
	round = &persistence.NegotiationRound{SystemAction: ledger.StanceWait}
	assert.Error(t, repo.Propose(context.Background(), round))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNegotiationRepo_Respond(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewNegotiationRepo(db, 5*time.Second)

	reason := "structure broke on the retest"
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $3 AND human_action IS NULL AND auto_confirm = FALSE")).
		WithArgs(ledger.ActionReject, &reason, int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Respond(context.Background(), 3, ledger.ActionReject, &reason))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNegotiationRepo_Respond_AlreadyResolved(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewNegotiationRepo(db, 5*time.Second)

	now := time.Now()
	mock.ExpectExec(regexp.QuoteMeta("human_action IS NULL AND auto_confirm = FALSE")).
		WithArgs(ledger.ActionConfirm, nil, int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	// Follow-up lookup finds an auto-confirmed round.
	mock.ExpectQuery(regexp.QuoteMeta("FROM decision_negotiation")).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(negotiationTestColumns).
			AddRow(int64(3), uuid.New().String(), "ENTER_LONG", nil, nil, true, now, now))

	err := repo.Respond(context.Background(), 3, ledger.ActionConfirm, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, persistence.ErrRoundResolved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNegotiationRepo_AutoConfirm_HumanWinsRace(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewNegotiationRepo(db, 5*time.Second)

	now := time.Now()
	mock.ExpectExec(regexp.QuoteMeta("SET auto_confirm = TRUE")).
		WithArgs(int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM decision_negotiation")).
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows(negotiationTestColumns).
			AddRow(int64(9), uuid.New().String(), "ENTER_SHORT", "REJECT", "late signal", false, now, now))

	err := repo.AutoConfirm(context.Background(), 9)
	assert.ErrorIs(t, err, persistence.ErrRoundResolved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNegotiationRepo_AutoConfirm_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewNegotiationRepo(db, 5*time.Second)

	mock.ExpectExec(regexp.QuoteMeta("SET auto_confirm = TRUE")).
		WithArgs(int64(404)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM decision_negotiation")).
		WithArgs(int64(404)).
		WillReturnRows(sqlmock.NewRows(negotiationTestColumns))

	err := repo.AutoConfirm(context.Background(), 404)
	require.Error(t, err)
	assert.NotErrorIs(t, err, persistence.ErrRoundResolved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNegotiationRepo_ListPendingBefore(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewNegotiationRepo(db, 5*time.Second)

	cutoff := time.Now().Add(-15 * time.Minute)
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("created_at <= $1")).
		WithArgs(cutoff, 100).
		WillReturnRows(sqlmock.NewRows(negotiationTestColumns).
			AddRow(int64(1), uuid.New().String(), "HOLD_LONG", nil, nil, false, now, now).
			AddRow(int64(2), uuid.New().String(), "WAIT", nil, nil, false, now, now))

	rounds, err := repo.ListPendingBefore(context.Background(), cutoff, 100)
	require.NoError(t, err)
	require.Len(t, rounds, 2)
	for _, round := range rounds {
		assert.Equal(t, persistence.RoundProposed, round.State())
		assert.False(t, round.Resolved())
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}
