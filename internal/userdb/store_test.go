package userdb

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newMockStore builds a store over a single mocked connection with the three
// account statements expected in prepare order.
func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectPrepare(sqlQueryUser)
	mock.ExpectPrepare(sqlUserExists)
	mock.ExpectPrepare(sqlInsertUser)

	pool, err := newPoolFromDB(context.Background(), db, 1, 1)
	require.NoError(t, err)

	ids, err := NewSnowflake(1)
	require.NoError(t, err)
	return NewStore(pool, ids), mock
}

func TestVerifyUserSuccess(t *testing.T) {
	store, mock := newMockStore(t)

	stored, err := HashPassword("secret")
	require.NoError(t, err)
	mock.ExpectQuery(sqlQueryUser).WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"uid", "passcode"}).AddRow(int64(42), stored))

	uid, err := store.VerifyUser(context.Background(), "alice", "secret")
	require.NoError(t, err)
	assert.Equal(t, int64(42), uid)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVerifyUserWrongPassword(t *testing.T) {
	store, mock := newMockStore(t)

	stored, err := HashPassword("secret")
	require.NoError(t, err)
	mock.ExpectQuery(sqlQueryUser).WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"uid", "passcode"}).AddRow(int64(42), stored))

	_, err = store.VerifyUser(context.Background(), "alice", "not-secret")
	assert.ErrorIs(t, err, ErrWrongPassword)
}

func TestVerifyUserUnknown(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(sqlQueryUser).WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"uid", "passcode"}))

	_, err := store.VerifyUser(context.Background(), "ghost", "whatever")
	assert.ErrorIs(t, err, ErrUnknownUser)
}

func TestUserExists(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(sqlUserExists).WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	taken, err := store.UserExists(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, taken)

	mock.ExpectQuery(sqlUserExists).WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))
	taken, err = store.UserExists(context.Background(), "ghost")
	require.NoError(t, err)
	assert.False(t, taken)
}

func TestRegisterUserSuccess(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(sqlUserExists).WithArgs("bob").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))
	mock.ExpectExec(sqlInsertUser).
		WithArgs(sqlmock.AnyArg(), "bob", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	uid, err := store.RegisterUser(context.Background(), "bob", "pw")
	require.NoError(t, err)
	assert.Positive(t, uid)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegisterUserTaken(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(sqlUserExists).WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	_, err := store.RegisterUser(context.Background(), "alice", "pw")
	assert.ErrorIs(t, err, ErrUserExists)
}
