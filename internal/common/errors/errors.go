// Package errors provides the standardized error taxonomy for the
// notification dispatch pipeline. Errors carry a code and a Retryable
// flag; the queue workers use the flag to decide between backoff retry
// and a terminal failed state.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeUserNotFound         ErrorCode = "USER_NOT_FOUND"
	ErrCodeTemplateNotFound     ErrorCode = "TEMPLATE_NOT_FOUND"
	ErrCodeTemplateInactive     ErrorCode = "TEMPLATE_INACTIVE"
	ErrCodeNotificationNotFound ErrorCode = "NOTIFICATION_NOT_FOUND"
	ErrCodeUnauthorized         ErrorCode = "UNAUTHORIZED"

	ErrCodeChannelSendFailed ErrorCode = "CHANNEL_SEND_FAILED"
	ErrCodeInvalidPushToken  ErrorCode = "INVALID_PUSH_TOKEN"
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	ErrCodeDatabaseQueryFailed ErrorCode = "DATABASE_QUERY_FAILED"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Retryable bool      `json:"retryable"`
	Timestamp time.Time `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// ==========================
// Constructors
// ==========================

// NewUserNotFoundError signals a missing user directory record. Aborts the
// operation, no retry.
func NewUserNotFoundError(userID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeUserNotFound,
		Message:   "User not found",
		Details:   fmt.Sprintf("userId: %s", userID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewTemplateNotFoundError signals a missing template for a type.
func NewTemplateNotFoundError(notificationType string) *StandardError {
	return &StandardError{
		Code:      ErrCodeTemplateNotFound,
		Message:   "Notification template not found",
		Details:   fmt.Sprintf("type: %s", notificationType),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewTemplateInactiveError signals a disabled template; dispatch for the
// type is blocked until the template is reactivated.
func NewTemplateInactiveError(notificationType string) *StandardError {
	return &StandardError{
		Code:      ErrCodeTemplateInactive,
		Message:   "Notification template is inactive",
		Details:   fmt.Sprintf("type: %s", notificationType),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewNotificationNotFoundError signals a missing notification record.
func NewNotificationNotFoundError(notificationID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotificationNotFound,
		Message:   "Notification not found",
		Details:   fmt.Sprintf("notificationId: %s", notificationID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewUnauthorizedError signals an ownership mismatch on read/delete/mark-read.
func NewUnauthorizedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeUnauthorized,
		Message:   "Not authorized for this notification",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewChannelSendFailedError wraps a transient provider or network failure
// during a channel send. The queue retries it with backoff.
func NewChannelSendFailedError(channel string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeChannelSendFailed,
		Message:   "Channel delivery failed",
		Details:   fmt.Sprintf("channel: %s, error: %v", channel, err),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewInvalidPushTokenError marks a token the provider reports as permanently
// invalid. Handled inline by pruning the token; never retried.
func NewInvalidPushTokenError(token string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidPushToken,
		Message:   "Push token permanently invalid",
		Details:   fmt.Sprintf("token: %s", truncateToken(token)),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewRateLimitExceededError signals the internal queue rate limiter
// deferred a job. Always retried, never dropped.
func NewRateLimitExceededError(queue string) *StandardError {
	return &StandardError{
		Code:      ErrCodeRateLimitExceeded,
		Message:   "Queue rate limit exceeded",
		Details:   fmt.Sprintf("queue: %s", queue),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewDatabaseQueryFailedError wraps a persistence failure.
func NewDatabaseQueryFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseQueryFailed,
		Message:   "Database query failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// ==========================
// Inspection helpers
// ==========================

// CodeOf extracts the error code, or empty string for foreign errors.
func CodeOf(err error) ErrorCode {
	var se *StandardError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// IsNotFound reports whether err is any of the not-found codes.
func IsNotFound(err error) bool {
	switch CodeOf(err) {
	case ErrCodeUserNotFound, ErrCodeTemplateNotFound, ErrCodeNotificationNotFound:
		return true
	}
	return false
}

// IsRetryable reports whether the queue should retry the job that produced
// err. Foreign errors default to retryable: an unclassified failure is
// assumed transient rather than silently terminal.
func IsRetryable(err error) bool {
	var se *StandardError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return true
}

func truncateToken(token string) string {
	if len(token) <= 10 {
		return token
	}
	return token[:10] + "..."
}
