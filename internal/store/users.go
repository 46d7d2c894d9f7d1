// internal/store/users.go
package store

import (
	"context"
	"database/sql"

	apperrors "ezlab-notifier/internal/common/errors"
	"ezlab-notifier/internal/common/logger"
	"ezlab-notifier/internal/models"
)

// UserDirectory is a read-only view over the main backend's users table.
// This service never writes user rows.
type UserDirectory struct {
	db  *sql.DB
	log logger.Logger
}

func NewUserDirectory(db *sql.DB, log logger.Logger) *UserDirectory {
	return &UserDirectory{
		db:  db,
		log: log.WithFields(map[string]interface{}{"component": "user-directory"}),
	}
}

func (d *UserDirectory) FindByID(ctx context.Context, id string) (*models.User, error) {
	var (
		u    models.User
		role string
	)
	err := d.db.QueryRowContext(ctx, `
		SELECT id, email, role, is_verified
		FROM users
		WHERE id = $1`, id).Scan(&u.ID, &u.Email, &role, &u.IsVerified)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewUserNotFoundError(id)
	}
	if err != nil {
		return nil, apperrors.NewDatabaseQueryFailedError(err)
	}
	u.Role = models.Role(role)
	return &u, nil
}

// FindUsersByRole lists verified users holding a role, for role
// broadcasts and bulk sends.
func (d *UserDirectory) FindUsersByRole(ctx context.Context, role models.Role) ([]models.UserRef, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, email
		FROM users
		WHERE role = $1 AND is_verified = TRUE`, string(role))
	if err != nil {
		return nil, apperrors.NewDatabaseQueryFailedError(err)
	}
	defer rows.Close()
	return collectUserRefs(rows)
}

// FindAllUsers lists every verified user, the bulk-send default when no
// role filter is given.
func (d *UserDirectory) FindAllUsers(ctx context.Context) ([]models.UserRef, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, email
		FROM users
		WHERE is_verified = TRUE`)
	if err != nil {
		return nil, apperrors.NewDatabaseQueryFailedError(err)
	}
	defer rows.Close()
	return collectUserRefs(rows)
}

func collectUserRefs(rows *sql.Rows) ([]models.UserRef, error) {
	var refs []models.UserRef
	for rows.Next() {
		var r models.UserRef
		if err := rows.Scan(&r.ID, &r.Email); err != nil {
			return nil, apperrors.NewDatabaseQueryFailedError(err)
		}
		refs = append(refs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseQueryFailedError(err)
	}
	return refs, nil
}
