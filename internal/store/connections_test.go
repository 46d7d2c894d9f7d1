// internal/store/connections_test.go
package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockConnectionStore(t *testing.T) (*ConnectionStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewConnectionStore(db, createTestLogger(t)), mock
}

func TestConnectionStore_TouchTimestamps(t *testing.T) {
	s, mock := newMockConnectionStore(t)
	at := time.Now()

	mock.ExpectExec("INSERT INTO user_connections \\(user_id, last_connected_at\\)").
		WithArgs("u1", at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO user_connections \\(user_id, last_disconnected_at\\)").
		WithArgs("u1", at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.TouchConnected(context.Background(), "u1", at))
	require.NoError(t, s.TouchDisconnected(context.Background(), "u1", at))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConnectionStore_LastDisconnectedAt(t *testing.T) {
	t.Run("known user", func(t *testing.T) {
		s, mock := newMockConnectionStore(t)
		at := time.Now().Add(-time.Hour)

		mock.ExpectQuery("SELECT last_disconnected_at FROM user_connections").
			WithArgs("u1").
			WillReturnRows(sqlmock.NewRows([]string{"last_disconnected_at"}).AddRow(at))

		got, err := s.LastDisconnectedAt(context.Background(), "u1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.WithinDuration(t, at, *got, time.Second)
	})

	t.Run("never disconnected", func(t *testing.T) {
		s, mock := newMockConnectionStore(t)

		mock.ExpectQuery("SELECT last_disconnected_at FROM user_connections").
			WithArgs("u-fresh").
			WillReturnRows(sqlmock.NewRows([]string{"last_disconnected_at"}))

		got, err := s.LastDisconnectedAt(context.Background(), "u-fresh")
		require.NoError(t, err)
		assert.Nil(t, got, "no row means no replay window")
	})
}
