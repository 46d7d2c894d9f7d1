// internal/models/template.go
package models

// TemplateVariable declares one named placeholder a template expects.
type TemplateVariable struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Example     string `json:"example,omitempty"`
}

// NotificationTemplate holds the four renderable fields for one
// notification type. At most one template exists per type; an inactive
// template blocks dispatch for its type.
type NotificationTemplate struct {
	Type         NotificationType   `json:"type"`
	Name         string             `json:"name"`
	Description  string             `json:"description"`
	EmailSubject string             `json:"emailSubject"`
	EmailBody    string             `json:"emailBody"`
	PushTitle    string             `json:"pushTitle"`
	PushBody     string             `json:"pushBody"`
	Variables    []TemplateVariable `json:"variables"`
	IsActive     bool               `json:"isActive"`
}
