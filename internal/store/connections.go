// internal/store/connections.go
package store

import (
	"context"
	"database/sql"
	"time"

	apperrors "ezlab-notifier/internal/common/errors"
	"ezlab-notifier/internal/common/logger"
)

// ConnectionStore persists the per-user lastConnectedAt/lastDisconnectedAt
// pair. Live connection state stays in memory; only these two timestamps
// survive a restart, enough to compute the replay window.
type ConnectionStore struct {
	db  *sql.DB
	log logger.Logger
}

func NewConnectionStore(db *sql.DB, log logger.Logger) *ConnectionStore {
	return &ConnectionStore{
		db:  db,
		log: log.WithFields(map[string]interface{}{"component": "connection-store"}),
	}
}

func (s *ConnectionStore) TouchConnected(ctx context.Context, userID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_connections (user_id, last_connected_at)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE
		SET last_connected_at = EXCLUDED.last_connected_at`, userID, at)
	if err != nil {
		return apperrors.NewDatabaseQueryFailedError(err)
	}
	return nil
}

func (s *ConnectionStore) TouchDisconnected(ctx context.Context, userID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_connections (user_id, last_disconnected_at)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE
		SET last_disconnected_at = EXCLUDED.last_disconnected_at`, userID, at)
	if err != nil {
		return apperrors.NewDatabaseQueryFailedError(err)
	}
	return nil
}

// LastDisconnectedAt returns nil for a user who has never disconnected;
// callers treat that as "no replay window".
func (s *ConnectionStore) LastDisconnectedAt(ctx context.Context, userID string) (*time.Time, error) {
	var at sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT last_disconnected_at
		FROM user_connections
		WHERE user_id = $1`, userID).Scan(&at)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewDatabaseQueryFailedError(err)
	}
	if !at.Valid {
		return nil, nil
	}
	return &at.Time, nil
}
