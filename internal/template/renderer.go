// internal/template/renderer.go
//
// Package template renders notification templates. Rendering is a pure
// substitution of {{name}} placeholders and can never fail: unresolved
// placeholders pass through verbatim so a bad variable map degrades the
// message instead of blocking the notification.
package template

import (
	"regexp"
	"strings"

	"ezlab-notifier/internal/models"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_]*)\s*\}\}`)

// Render substitutes {{name}} placeholders from vars. Placeholders with no
// matching variable are left as-is.
func Render(tpl string, vars map[string]string) string {
	if len(vars) == 0 || !strings.Contains(tpl, "{{") {
		return tpl
	}
	return placeholderRe.ReplaceAllStringFunc(tpl, func(match string) string {
		name := placeholderRe.FindStringSubmatch(match)[1]
		if val, ok := vars[name]; ok {
			return val
		}
		return match
	})
}

// Rendered holds the four independently rendered template fields.
type Rendered struct {
	EmailSubject string
	EmailBody    string
	PushTitle    string
	PushBody     string
}

// RenderAll renders every field of the template. Each field renders
// independently; one field never blocks another.
func RenderAll(t *models.NotificationTemplate, vars map[string]string) Rendered {
	return Rendered{
		EmailSubject: Render(t.EmailSubject, vars),
		EmailBody:    Render(t.EmailBody, vars),
		PushTitle:    Render(t.PushTitle, vars),
		PushBody:     Render(t.PushBody, vars),
	}
}

// Validation reports which declared variables are absent from a variable map.
type Validation struct {
	Valid   bool
	Missing []string
}

// Validate is a pure presence check against the template's declared
// variables. Used for warning only; a failed validation never blocks
// dispatch.
func Validate(vars map[string]string, declared []models.TemplateVariable) Validation {
	var missing []string
	for _, v := range declared {
		if _, ok := vars[v.Name]; !ok {
			missing = append(missing, v.Name)
		}
	}
	return Validation{Valid: len(missing) == 0, Missing: missing}
}
