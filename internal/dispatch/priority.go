// internal/dispatch/priority.go
package dispatch

import (
	"time"

	"ezlab-notifier/internal/models"
)

// priorityByType is the fixed type to priority table. Not configurable at
// runtime; changing a type's urgency is a code change.
var priorityByType = map[models.NotificationType]models.NotificationPriority{
	models.TypeOrderCreated:         models.PriorityMedium,
	models.TypeOrderConfirmed:       models.PriorityHigh,
	models.TypeOrderCancelled:       models.PriorityMedium,
	models.TypeOrderInProgress:      models.PriorityMedium,
	models.TypeOrderCompleted:       models.PriorityHigh,
	models.TypeResultsReady:         models.PriorityHigh,
	models.TypeResultsAbnormal:      models.PriorityHigh,
	models.TypeAppointmentScheduled: models.PriorityHigh,
	models.TypeAppointmentReminder:  models.PriorityHigh,
	models.TypeNewDiscount:          models.PriorityLow,
	models.TypeDiscountExpiring:     models.PriorityMedium,
	models.TypeLabCenterUpdated:     models.PriorityLow,
	models.TypeLabCenterClosed:      models.PriorityHigh,
	models.TypeSystemAlert:          models.PriorityHigh,
	models.TypeAdminAnnouncement:    models.PriorityMedium,
	models.TypeWelcome:              models.PriorityMedium,
	models.TypeAccountVerified:      models.PriorityHigh,
	models.TypePasswordReset:        models.PriorityHigh,
}

// emailCriticalTypes always trigger an email regardless of computed
// priority or presence.
var emailCriticalTypes = map[models.NotificationType]struct{}{
	models.TypeOrderConfirmed:       {},
	models.TypeOrderCompleted:       {},
	models.TypeResultsReady:         {},
	models.TypeResultsAbnormal:      {},
	models.TypeAppointmentScheduled: {},
	models.TypeAppointmentReminder:  {},
	models.TypeSystemAlert:          {},
	models.TypeAccountVerified:      {},
	models.TypePasswordReset:        {},
}

// PriorityFor returns the fixed priority of a notification type. Unknown
// types default to MEDIUM.
func PriorityFor(t models.NotificationType) models.NotificationPriority {
	if p, ok := priorityByType[t]; ok {
		return p
	}
	return models.PriorityMedium
}

// IsEmailCritical reports whether the type always gets an email.
func IsEmailCritical(t models.NotificationType) bool {
	_, ok := emailCriticalTypes[t]
	return ok
}

const (
	customerRetention   = 90 * 24 * time.Hour
	privilegedRetention = 365 * 24 * time.Hour
)

// expiryFor computes a notification's expiry from the recipient's role.
func expiryFor(role models.Role, now time.Time) time.Time {
	if role == models.RoleCustomer {
		return now.Add(customerRetention)
	}
	return now.Add(privilegedRetention)
}
