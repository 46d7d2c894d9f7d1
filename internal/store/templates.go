// internal/store/templates.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	apperrors "ezlab-notifier/internal/common/errors"
	"ezlab-notifier/internal/common/logger"
	"ezlab-notifier/internal/models"
)

// TemplateStore persists notification templates, one row per type.
type TemplateStore struct {
	db  *sql.DB
	log logger.Logger
}

func NewTemplateStore(db *sql.DB, log logger.Logger) *TemplateStore {
	return &TemplateStore{
		db:  db,
		log: log.WithFields(map[string]interface{}{"component": "template-store"}),
	}
}

// FindByType returns the template for a notification type, active or not.
// The caller decides whether inactive blocks dispatch.
func (s *TemplateStore) FindByType(ctx context.Context, typ models.NotificationType) (*models.NotificationTemplate, error) {
	var (
		tpl       models.NotificationTemplate
		rawType   string
		variables []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT type, name, description, email_subject, email_body,
		       push_title, push_body, variables, is_active
		FROM notification_templates
		WHERE type = $1`, string(typ)).Scan(
		&rawType, &tpl.Name, &tpl.Description, &tpl.EmailSubject, &tpl.EmailBody,
		&tpl.PushTitle, &tpl.PushBody, &variables, &tpl.IsActive,
	)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewTemplateNotFoundError(string(typ))
	}
	if err != nil {
		return nil, apperrors.NewDatabaseQueryFailedError(err)
	}

	tpl.Type = models.NotificationType(rawType)
	if len(variables) > 0 {
		if err := json.Unmarshal(variables, &tpl.Variables); err != nil {
			return nil, fmt.Errorf("unmarshal template variables: %w", err)
		}
	}
	return &tpl, nil
}

// Upsert writes a template, used when seeding the default registry. An
// existing row's is_active flag is preserved so operators can disable a
// type without the seed re-enabling it on restart.
func (s *TemplateStore) Upsert(ctx context.Context, tpl *models.NotificationTemplate) error {
	variables, err := json.Marshal(tpl.Variables)
	if err != nil {
		return fmt.Errorf("marshal template variables: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO notification_templates
			(type, name, description, email_subject, email_body,
			 push_title, push_body, variables, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (type) DO UPDATE
		SET name = EXCLUDED.name,
		    description = EXCLUDED.description,
		    email_subject = EXCLUDED.email_subject,
		    email_body = EXCLUDED.email_body,
		    push_title = EXCLUDED.push_title,
		    push_body = EXCLUDED.push_body,
		    variables = EXCLUDED.variables`,
		string(tpl.Type), tpl.Name, tpl.Description, tpl.EmailSubject, tpl.EmailBody,
		tpl.PushTitle, tpl.PushBody, variables, tpl.IsActive)
	if err != nil {
		return apperrors.NewDatabaseQueryFailedError(err)
	}
	return nil
}
