// internal/queue/jobs.go
package queue

import (
	"encoding/json"
	"time"

	"ezlab-notifier/internal/models"
)

// Queue names. The coordination queue fans out into the other two, so its
// workers run at lower concurrency.
const (
	QueueCoordination = "notification"
	QueuePush         = "fcm"
	QueueEmail        = "email"
)

// Priority is the queue-level priority; lower is processed first.
type Priority int

const (
	PriorityHigh   Priority = 1
	PriorityNormal Priority = 2
	PriorityLow    Priority = 3
)

// FromNotificationPriority maps a notification priority onto queue levels.
func FromNotificationPriority(p models.NotificationPriority) Priority {
	switch p {
	case models.PriorityHigh:
		return PriorityHigh
	case models.PriorityLow:
		return PriorityLow
	default:
		return PriorityNormal
	}
}

// Job is the envelope persisted in Redis for every queue entry. Payload is
// one of the tagged per-queue job types; the worker for a queue knows which
// one to unmarshal.
type Job struct {
	ID          string          `json:"id"`
	Queue       string          `json:"queue"`
	Priority    Priority        `json:"priority"`
	Payload     json.RawMessage `json:"payload"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"maxAttempts"`
	EnqueuedAt  time.Time       `json:"enqueuedAt"`
	LastError   string          `json:"lastError,omitempty"`
}

// UnmarshalPayload decodes the envelope payload into v.
func (j *Job) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(j.Payload, v)
}

// CoordinationJob asks a worker to attempt socket delivery for one user.
// If the user is offline the job ends there: push/email decisions were
// already made at enqueue time.
type CoordinationJob struct {
	UserID         string                      `json:"userId"`
	NotificationID string                      `json:"notificationId"`
	Type           models.NotificationType     `json:"type"`
	Title          string                      `json:"title"`
	Body           string                      `json:"body"`
	Data           map[string]string           `json:"data,omitempty"`
	Priority       models.NotificationPriority `json:"priority"`
}

// PushJob delivers one push message to one device token.
type PushJob struct {
	Token          string            `json:"token"`
	UserID         string            `json:"userId"`
	NotificationID string            `json:"notificationId,omitempty"`
	Title          string            `json:"title"`
	Body           string            `json:"body"`
	Data           map[string]string `json:"data,omitempty"`
}

// EmailJob delivers one subject/HTML pair to one address.
type EmailJob struct {
	To             string `json:"to"`
	Subject        string `json:"subject"`
	HTML           string `json:"html"`
	NotificationID string `json:"notificationId,omitempty"`
}
