// internal/store/notifications_test.go
package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	apperrors "ezlab-notifier/internal/common/errors"
	"ezlab-notifier/internal/common/logger"
	"ezlab-notifier/internal/models"
)

func createTestLogger(t *testing.T) logger.Logger {
	return logger.NewZapAdapter(zaptest.NewLogger(t))
}

func newMockNotificationStore(t *testing.T) (*NotificationStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewNotificationStore(db, createTestLogger(t)), mock
}

func notificationRowColumns() []string {
	return []string{"id", "user_id", "type", "title", "body", "data", "priority",
		"is_read", "read_at", "delivered_via", "sent_at", "expires_at"}
}

func TestNotificationStore_Create(t *testing.T) {
	s, mock := newMockNotificationStore(t)

	now := time.Now()
	n := &models.Notification{
		ID:        "ce6c6b50-0000-4000-8000-000000000001",
		UserID:    "u1",
		Type:      models.TypeWelcome,
		Title:     "Welcome to Ez Lab Testing",
		Body:      "Hi Jo, your account is ready.",
		Data:      map[string]string{"userName": "Jo"},
		Priority:  models.PriorityMedium,
		SentAt:    now,
		ExpiresAt: now.Add(90 * 24 * time.Hour),
	}

	mock.ExpectExec("INSERT INTO notifications").
		WithArgs(n.ID, "u1", "WELCOME", n.Title, n.Body, sqlmock.AnyArg(), "MEDIUM",
			false, nil, sqlmock.AnyArg(), n.SentAt, n.ExpiresAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.Create(context.Background(), n))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationStore_FindByID_NotFound(t *testing.T) {
	s, mock := newMockNotificationStore(t)

	mock.ExpectQuery("SELECT (.+) FROM notifications").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(notificationRowColumns()))

	_, err := s.FindByID(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestNotificationStore_FindMany_FiltersAndTotal(t *testing.T) {
	s, mock := newMockNotificationStore(t)

	now := time.Now()
	unread := false
	typ := models.TypeOrderCreated

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM notifications WHERE user_id = \\$1 AND type = \\$2 AND is_read = \\$3").
		WithArgs("u1", "ORDER_CREATED", false).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))

	mock.ExpectQuery("SELECT (.+) FROM notifications WHERE user_id = \\$1 AND type = \\$2 AND is_read = \\$3 ORDER BY sent_at DESC").
		WithArgs("u1", "ORDER_CREATED", false, 20, 0).
		WillReturnRows(sqlmock.NewRows(notificationRowColumns()).
			AddRow("n1", "u1", "ORDER_CREATED", "Order placed", "Your order is in.",
				[]byte(`{"orderId":"o1"}`), "MEDIUM", false, nil, []byte("{socket}"), now, now.Add(time.Hour)))

	list, total, err := s.FindMany(context.Background(), "u1", FindOptions{
		Type:   &typ,
		IsRead: &unread,
	})
	require.NoError(t, err)
	assert.Equal(t, 42, total)
	require.Len(t, list, 1)
	assert.Equal(t, "n1", list[0].ID)
	assert.Equal(t, map[string]string{"orderId": "o1"}, list[0].Data)
	assert.Equal(t, []models.DeliveryChannel{models.ChannelSocket}, list[0].DeliveredVia)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationStore_MarkAsRead_Ownership(t *testing.T) {
	t.Run("owned and unread", func(t *testing.T) {
		s, mock := newMockNotificationStore(t)
		mock.ExpectExec("UPDATE notifications").
			WithArgs("n1", "u1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, s.MarkAsRead(context.Background(), "n1", "u1"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing notification", func(t *testing.T) {
		s, mock := newMockNotificationStore(t)
		mock.ExpectExec("UPDATE notifications").
			WithArgs("gone", "u1").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT user_id FROM notifications").
			WithArgs("gone").
			WillReturnRows(sqlmock.NewRows([]string{"user_id"}))

		err := s.MarkAsRead(context.Background(), "gone", "u1")
		assert.True(t, apperrors.IsNotFound(err))
	})

	t.Run("someone else's notification", func(t *testing.T) {
		s, mock := newMockNotificationStore(t)
		mock.ExpectExec("UPDATE notifications").
			WithArgs("n1", "intruder").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT user_id FROM notifications").
			WithArgs("n1").
			WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("u1"))

		err := s.MarkAsRead(context.Background(), "n1", "intruder")
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeUnauthorized, apperrors.CodeOf(err))
	})

	t.Run("already read is not an error", func(t *testing.T) {
		s, mock := newMockNotificationStore(t)
		mock.ExpectExec("UPDATE notifications").
			WithArgs("n1", "u1").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT user_id FROM notifications").
			WithArgs("n1").
			WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("u1"))

		assert.NoError(t, s.MarkAsRead(context.Background(), "n1", "u1"))
	})
}

func TestNotificationStore_AppendDeliveredVia(t *testing.T) {
	s, mock := newMockNotificationStore(t)

	// The guard predicate keeps the append idempotent; a second call for
	// the same channel matches zero rows and that is fine.
	mock.ExpectExec(`UPDATE notifications SET delivered_via = array_append\(delivered_via, \$2\) WHERE id = \$1 AND NOT \(\$2 = ANY\(delivered_via\)\)`).
		WithArgs("n1", "socket").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE notifications SET delivered_via = array_append`).
		WithArgs("n1", "socket").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.AppendDeliveredVia(context.Background(), "n1", models.ChannelSocket))
	require.NoError(t, s.AppendDeliveredVia(context.Background(), "n1", models.ChannelSocket))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationStore_FindMissed_WindowAndOrder(t *testing.T) {
	s, mock := newMockNotificationStore(t)

	end := time.Now()
	start := end.Add(-8 * time.Minute)

	mock.ExpectQuery(`SELECT (.+) FROM notifications WHERE user_id = \$1 AND is_read = FALSE AND sent_at > \$2 AND sent_at <= \$3 ORDER BY sent_at ASC`).
		WithArgs("u1", start, end).
		WillReturnRows(sqlmock.NewRows(notificationRowColumns()).
			AddRow("older", "u1", "ORDER_CREATED", "t", "b", []byte(`{}`), "MEDIUM",
				false, nil, []byte("{}"), end.Add(-7*time.Minute), end.Add(time.Hour)).
			AddRow("newer", "u1", "RESULTS_READY", "t", "b", []byte(`{}`), "HIGH",
				false, nil, []byte("{}"), end.Add(-time.Minute), end.Add(time.Hour)))

	missed, err := s.FindMissed(context.Background(), "u1", start, end)
	require.NoError(t, err)
	require.Len(t, missed, 2)
	assert.Equal(t, "older", missed[0].ID)
	assert.Equal(t, "newer", missed[1].ID)
}

func TestNotificationStore_UnreadCount(t *testing.T) {
	s, mock := newMockNotificationStore(t)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM notifications WHERE user_id = \\$1 AND is_read = FALSE").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	count, err := s.UnreadCount(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 7, count)
}

func TestNotificationStore_DeleteExpired(t *testing.T) {
	s, mock := newMockNotificationStore(t)

	now := time.Now()
	mock.ExpectExec("DELETE FROM notifications WHERE expires_at <= \\$1").
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 12))

	deleted, err := s.DeleteExpired(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(12), deleted)
}
