package postgres

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (sqlmock.Sqlmock, func() error) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return mock, func() error { return Migrate(context.Background(), db) }
}

func TestMigrate_RunsEveryStepInOneTransaction(t *testing.T) {
	mock, migrate := newMock(t)

	mock.ExpectBegin()
	for _, stmt := range migrations {
		mock.ExpectExec(stmt).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectCommit()

	require.NoError(t, migrate())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_RollsBackOnFailure(t *testing.T) {
	mock, migrate := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(migrations[0]).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(migrations[1]).WillReturnError(errors.New("permission denied"))
	mock.ExpectRollback()

	err := migrate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step 1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func stepIndex(t *testing.T, match func(string) bool) int {
	t.Helper()
	for i, stmt := range migrations {
		if match(stmt) {
			return i
		}
	}
	t.Fatalf("no migration step matched")
	return -1
}

func TestMigrations_UserMergeMovesOwnershipBeforeDelete(t *testing.T) {
	prefix := func(p string) func(string) bool {
		return func(stmt string) bool { return strings.HasPrefix(stmt, p) }
	}
	cartTable := stepIndex(t, prefix("CREATE TABLE IF NOT EXISTS cart"))
	orderTable := stepIndex(t, prefix("CREATE TABLE IF NOT EXISTS orders"))
	merge := stepIndex(t, prefix("CREATE TEMP TABLE user_merge"))
	clashCheck := stepIndex(t, func(stmt string) bool { return strings.Contains(stmt, "more than one cart") })
	moveCarts := stepIndex(t, prefix("UPDATE cart c SET user_id = m.keep_id"))
	moveOrders := stepIndex(t, prefix("UPDATE orders o SET user_id = m.keep_id"))
	deleteDups := stepIndex(t, prefix("DELETE FROM users"))
	index := stepIndex(t, func(stmt string) bool { return strings.Contains(stmt, "users_email_lower_key") })

	assert.Less(t, cartTable, merge)
	assert.Less(t, orderTable, merge)
	assert.Less(t, merge, clashCheck)
	assert.Less(t, clashCheck, moveCarts)
	assert.Less(t, moveCarts, deleteDups)
	assert.Less(t, moveOrders, deleteDups)
	assert.Less(t, deleteDups, index)
	assert.Contains(t, migrations[deleteDups], "user_merge")
}

func TestMigrate_CartClashAbortsBeforeAnyUserIsDeleted(t *testing.T) {
	mock, migrate := newMock(t)
	clashCheck := stepIndex(t, func(stmt string) bool { return strings.Contains(stmt, "more than one cart") })

	mock.ExpectBegin()
	for _, stmt := range migrations[:clashCheck] {
		mock.ExpectExec(stmt).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectExec(migrations[clashCheck]).
		WillReturnError(errors.New("duplicate users hold more than one cart, resolve by hand: a@example.com"))
	mock.ExpectRollback()

	err := migrate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a@example.com")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpen_RequiresURL(t *testing.T) {
	_, err := Open(context.Background(), Options{})
	require.Error(t, err)
}
