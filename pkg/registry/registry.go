// pkg/registry/registry.go

// Package registry ships the default notification templates. The
// templates are embedded in the binary, validated against a JSON
// Schema at load time, and upserted into the template store on
// startup so a fresh database can deliver every notification type.
package registry

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"ezlab-notifier/internal/common/logger"
	"ezlab-notifier/internal/models"
)

//go:embed templates.json
var templatesFS embed.FS

// Upserter writes one template row, creating or updating by type.
type Upserter interface {
	Upsert(ctx context.Context, tpl *models.NotificationTemplate) error
}

// Load parses and validates the embedded template set. Every entry is
// checked against the schema; a single bad entry fails the whole load
// since a partially seeded registry is worse than a loud startup error.
func Load() ([]*models.NotificationTemplate, error) {
	raw, err := templatesFS.ReadFile("templates.json")
	if err != nil {
		return nil, fmt.Errorf("read embedded templates: %w", err)
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse embedded templates: %w", err)
	}

	schemaLoader := gojsonschema.NewGoLoader(templateSchema)
	templates := make([]*models.NotificationTemplate, 0, len(entries))
	seen := make(map[models.NotificationType]bool, len(entries))

	for i, entry := range entries {
		if err := validateEntry(schemaLoader, entry); err != nil {
			return nil, fmt.Errorf("template entry %d: %w", i, err)
		}

		var tpl models.NotificationTemplate
		if err := json.Unmarshal(entry, &tpl); err != nil {
			return nil, fmt.Errorf("template entry %d: %w", i, err)
		}
		if seen[tpl.Type] {
			return nil, fmt.Errorf("template entry %d: duplicate type %s", i, tpl.Type)
		}
		seen[tpl.Type] = true

		tpl.IsActive = true
		templates = append(templates, &tpl)
	}

	return templates, nil
}

func validateEntry(schemaLoader gojsonschema.JSONLoader, entry json.RawMessage) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(entry))
	if err != nil {
		return fmt.Errorf("validation error: %w", err)
	}
	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return fmt.Errorf("schema validation failed: %v", errs)
	}
	return nil
}

// Seed upserts the embedded templates through the store. It returns the
// number of templates written. The store keeps an existing row's active
// flag, so seeding never re-enables a type an operator disabled.
func Seed(ctx context.Context, store Upserter, log logger.Logger) (int, error) {
	templates, err := Load()
	if err != nil {
		return 0, err
	}

	for _, tpl := range templates {
		if err := store.Upsert(ctx, tpl); err != nil {
			return 0, fmt.Errorf("seed template %s: %w", tpl.Type, err)
		}
	}

	log.Info("notification templates seeded", map[string]interface{}{
		"count": len(templates),
	})
	return len(templates), nil
}
