// internal/store/notifications.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	apperrors "ezlab-notifier/internal/common/errors"
	"ezlab-notifier/internal/common/logger"
	"ezlab-notifier/internal/models"
)

// NotificationStore persists notification records and their delivery and
// read state.
type NotificationStore struct {
	db  *sql.DB
	log logger.Logger
}

func NewNotificationStore(db *sql.DB, log logger.Logger) *NotificationStore {
	return &NotificationStore{
		db:  db,
		log: log.WithFields(map[string]interface{}{"component": "notification-store"}),
	}
}

// FindOptions narrows and pages FindMany.
type FindOptions struct {
	Limit  int
	Offset int
	Type   *models.NotificationType
	IsRead *bool
}

const notificationColumns = `id, user_id, type, title, body, data, priority,
       is_read, read_at, delivered_via, sent_at, expires_at`

func (s *NotificationStore) Create(ctx context.Context, n *models.Notification) error {
	data, err := json.Marshal(n.Data)
	if err != nil {
		return fmt.Errorf("marshal notification data: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO notifications (`+notificationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		n.ID, n.UserID, string(n.Type), n.Title, n.Body, data, string(n.Priority),
		n.IsRead, n.ReadAt, channelArray(n.DeliveredVia), n.SentAt, n.ExpiresAt,
	)
	if err != nil {
		return apperrors.NewDatabaseQueryFailedError(err)
	}
	return nil
}

func (s *NotificationStore) FindByID(ctx context.Context, id string) (*models.Notification, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE id = $1`, id)

	n, err := scanNotification(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotificationNotFoundError(id)
	}
	if err != nil {
		return nil, apperrors.NewDatabaseQueryFailedError(err)
	}
	return n, nil
}

// FindMany returns one page of a user's notifications, newest first, plus
// the total matching count for pagination.
func (s *NotificationStore) FindMany(ctx context.Context, userID string, opts FindOptions) ([]*models.Notification, int, error) {
	if opts.Limit <= 0 {
		opts.Limit = 20
	}

	where := "WHERE user_id = $1"
	args := []interface{}{userID}
	if opts.Type != nil {
		args = append(args, string(*opts.Type))
		where += fmt.Sprintf(" AND type = $%d", len(args))
	}
	if opts.IsRead != nil {
		args = append(args, *opts.IsRead)
		where += fmt.Sprintf(" AND is_read = $%d", len(args))
	}

	var total int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM notifications "+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, apperrors.NewDatabaseQueryFailedError(err)
	}

	args = append(args, opts.Limit, opts.Offset)
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s
		FROM notifications
		%s
		ORDER BY sent_at DESC
		LIMIT $%d OFFSET $%d`, notificationColumns, where, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, apperrors.NewDatabaseQueryFailedError(err)
	}
	defer rows.Close()

	list, err := collectNotifications(rows)
	if err != nil {
		return nil, 0, apperrors.NewDatabaseQueryFailedError(err)
	}
	return list, total, nil
}

func (s *NotificationStore) UnreadCount(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM notifications
		WHERE user_id = $1 AND is_read = FALSE`, userID).Scan(&count)
	if err != nil {
		return 0, apperrors.NewDatabaseQueryFailedError(err)
	}
	return count, nil
}

// MarkAsRead flags one notification read. The user_id predicate enforces
// ownership; a zero row count means not-found-or-not-yours.
func (s *NotificationStore) MarkAsRead(ctx context.Context, id, userID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE notifications
		SET is_read = TRUE, read_at = NOW()
		WHERE id = $1 AND user_id = $2 AND is_read = FALSE`, id, userID)
	if err != nil {
		return apperrors.NewDatabaseQueryFailedError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return apperrors.NewDatabaseQueryFailedError(err)
	}
	if affected == 0 {
		return s.readMarkMiss(ctx, id, userID)
	}
	return nil
}

// readMarkMiss distinguishes already-read (fine) from missing/foreign.
func (s *NotificationStore) readMarkMiss(ctx context.Context, id, userID string) error {
	var owner string
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id FROM notifications WHERE id = $1`, id).Scan(&owner)
	if err == sql.ErrNoRows {
		return apperrors.NewNotificationNotFoundError(id)
	}
	if err != nil {
		return apperrors.NewDatabaseQueryFailedError(err)
	}
	if owner != userID {
		return apperrors.NewUnauthorizedError("notification belongs to another user")
	}
	return nil // already read
}

func (s *NotificationStore) MarkAllAsRead(ctx context.Context, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE notifications
		SET is_read = TRUE, read_at = NOW()
		WHERE user_id = $1 AND is_read = FALSE`, userID)
	if err != nil {
		return 0, apperrors.NewDatabaseQueryFailedError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, apperrors.NewDatabaseQueryFailedError(err)
	}
	return affected, nil
}

func (s *NotificationStore) Delete(ctx context.Context, id, userID string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM notifications
		WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return apperrors.NewDatabaseQueryFailedError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return apperrors.NewDatabaseQueryFailedError(err)
	}
	if affected == 0 {
		return apperrors.NewNotificationNotFoundError(id)
	}
	return nil
}

// AppendDeliveredVia records a channel in the delivered-via set. The
// NOT ... = ANY predicate makes the append idempotent and safe under
// concurrent senders without read-modify-write.
func (s *NotificationStore) AppendDeliveredVia(ctx context.Context, id string, ch models.DeliveryChannel) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE notifications
		SET delivered_via = array_append(delivered_via, $2)
		WHERE id = $1 AND NOT ($2 = ANY(delivered_via))`, id, string(ch))
	if err != nil {
		return apperrors.NewDatabaseQueryFailedError(err)
	}
	return nil
}

// FindMissed returns the user's unread notifications inside the replay
// window, oldest first so the client receives them in causal order.
func (s *NotificationStore) FindMissed(ctx context.Context, userID string, windowStart, windowEnd time.Time) ([]*models.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE user_id = $1
		  AND is_read = FALSE
		  AND sent_at > $2
		  AND sent_at <= $3
		ORDER BY sent_at ASC`, userID, windowStart, windowEnd)
	if err != nil {
		return nil, apperrors.NewDatabaseQueryFailedError(err)
	}
	defer rows.Close()

	list, err := collectNotifications(rows)
	if err != nil {
		return nil, apperrors.NewDatabaseQueryFailedError(err)
	}
	return list, nil
}

// DeleteExpired removes notifications past their expiry. Called by the
// scheduled sweep.
func (s *NotificationStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM notifications
		WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, apperrors.NewDatabaseQueryFailedError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, apperrors.NewDatabaseQueryFailedError(err)
	}
	return affected, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanNotification(row rowScanner) (*models.Notification, error) {
	var (
		n        models.Notification
		typ      string
		priority string
		data     []byte
		via      pq.StringArray
	)
	err := row.Scan(&n.ID, &n.UserID, &typ, &n.Title, &n.Body, &data, &priority,
		&n.IsRead, &n.ReadAt, &via, &n.SentAt, &n.ExpiresAt)
	if err != nil {
		return nil, err
	}

	n.Type = models.NotificationType(typ)
	n.Priority = models.NotificationPriority(priority)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &n.Data); err != nil {
			return nil, fmt.Errorf("unmarshal notification data: %w", err)
		}
	}
	n.DeliveredVia = make([]models.DeliveryChannel, len(via))
	for i, v := range via {
		n.DeliveredVia[i] = models.DeliveryChannel(v)
	}
	return &n, nil
}

func collectNotifications(rows *sql.Rows) ([]*models.Notification, error) {
	var list []*models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, n)
	}
	return list, rows.Err()
}

func channelArray(via []models.DeliveryChannel) pq.StringArray {
	out := make(pq.StringArray, len(via))
	for i, ch := range via {
		out[i] = string(ch)
	}
	return out
}
