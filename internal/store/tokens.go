// internal/store/tokens.go
package store

import (
	"context"
	"database/sql"

	apperrors "ezlab-notifier/internal/common/errors"
	"ezlab-notifier/internal/common/logger"
	"ezlab-notifier/internal/models"
)

// TokenStore persists device push tokens. The token string is the primary
// key: re-registering a token from another account rebinds it.
type TokenStore struct {
	db  *sql.DB
	log logger.Logger
}

func NewTokenStore(db *sql.DB, log logger.Logger) *TokenStore {
	return &TokenStore{
		db:  db,
		log: log.WithFields(map[string]interface{}{"component": "token-store"}),
	}
}

// Upsert registers a token for a user, reviving it if it was revoked.
func (s *TokenStore) Upsert(ctx context.Context, t *models.PushToken) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO push_tokens (token, user_id, platform, revoked, created_at)
		VALUES ($1, $2, $3, FALSE, NOW())
		ON CONFLICT (token) DO UPDATE
		SET user_id = EXCLUDED.user_id,
		    platform = EXCLUDED.platform,
		    revoked = FALSE`,
		t.Token, t.UserID, string(t.Platform))
	if err != nil {
		return apperrors.NewDatabaseQueryFailedError(err)
	}
	return nil
}

// DeleteToken removes a token, whether on explicit unregister or on a
// provider report that the token is dead.
func (s *TokenStore) DeleteToken(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM push_tokens WHERE token = $1`, token)
	if err != nil {
		return apperrors.NewDatabaseQueryFailedError(err)
	}
	return nil
}

// FindActiveTokens lists a user's non-revoked tokens, oldest first.
func (s *TokenStore) FindActiveTokens(ctx context.Context, userID string) ([]models.PushToken, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT token, user_id, platform, revoked, created_at
		FROM push_tokens
		WHERE user_id = $1 AND revoked = FALSE
		ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, apperrors.NewDatabaseQueryFailedError(err)
	}
	defer rows.Close()

	var tokens []models.PushToken
	for rows.Next() {
		var (
			t        models.PushToken
			platform string
		)
		if err := rows.Scan(&t.Token, &t.UserID, &platform, &t.Revoked, &t.CreatedAt); err != nil {
			return nil, apperrors.NewDatabaseQueryFailedError(err)
		}
		t.Platform = models.Platform(platform)
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseQueryFailedError(err)
	}
	return tokens, nil
}
