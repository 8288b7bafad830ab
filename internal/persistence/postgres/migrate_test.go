package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrator_Apply_FreshDatabase(t *testing.T) {
	db, mock := newMockDB(t)
	migrator := NewMigrator(db, 5*time.Second)

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS schema_migrations")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	for _, mig := range migrations {
		mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)")).
			WithArgs(mig.Version).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		mock.ExpectBegin()
		for _, stmt := range mig.Statements {
			mock.ExpectExec(regexp.QuoteMeta(stmt)).WillReturnResult(sqlmock.NewResult(0, 0))
		}
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schema_migrations (version, name) VALUES ($1, $2)")).
			WithArgs(mig.Version, mig.Name).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()
	}

	applied, err := migrator.Apply(context.Background())
	require.NoError(t, err)
	assert.Equal(t, len(migrations), applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrator_Apply_AllApplied(t *testing.T) {
	db, mock := newMockDB(t)
	migrator := NewMigrator(db, 5*time.Second)

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS schema_migrations")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	// Every version is already in the ledger, so no DDL runs.
	for _, mig := range migrations {
		mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
			WithArgs(mig.Version).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	}

	applied, err := migrator.Apply(context.Background())
	require.NoError(t, err)
	assert.Zero(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrator_Apply_FailureRollsBack(t *testing.T) {
	db, mock := newMockDB(t)
	migrator := NewMigrator(db, 5*time.Second)

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS schema_migrations")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS decision_ledger")).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	applied, err := migrator.Apply(context.Background())
	require.Error(t, err)
	assert.Zero(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrationVersionsAreOrdered(t *testing.T) {
	versions := Versions()
	require.NotEmpty(t, versions)

	assert.Equal(t, 1, versions[0])
	for i := 1; i < len(versions); i++ {
		assert.Equal(t, versions[i-1]+1, versions[i], "versions must be contiguous")
	}
}
