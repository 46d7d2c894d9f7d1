// internal/models/notification.go
package models

import "time"

// NotificationType enumerates every event the dispatcher knows how to deliver.
type NotificationType string

const (
	TypeOrderCreated         NotificationType = "ORDER_CREATED"
	TypeOrderConfirmed       NotificationType = "ORDER_CONFIRMED"
	TypeOrderCancelled       NotificationType = "ORDER_CANCELLED"
	TypeOrderInProgress      NotificationType = "ORDER_IN_PROGRESS"
	TypeOrderCompleted       NotificationType = "ORDER_COMPLETED"
	TypeResultsReady         NotificationType = "RESULTS_READY"
	TypeResultsAbnormal      NotificationType = "RESULTS_ABNORMAL"
	TypeAppointmentScheduled NotificationType = "APPOINTMENT_SCHEDULED"
	TypeAppointmentReminder  NotificationType = "APPOINTMENT_REMINDER"
	TypeNewDiscount          NotificationType = "NEW_DISCOUNT"
	TypeDiscountExpiring     NotificationType = "DISCOUNT_EXPIRING"
	TypeLabCenterUpdated     NotificationType = "LAB_CENTER_UPDATED"
	TypeLabCenterClosed      NotificationType = "LAB_CENTER_CLOSED"
	TypeSystemAlert          NotificationType = "SYSTEM_ALERT"
	TypeAdminAnnouncement    NotificationType = "ADMIN_ANNOUNCEMENT"
	TypeWelcome              NotificationType = "WELCOME"
	TypeAccountVerified      NotificationType = "ACCOUNT_VERIFIED"
	TypePasswordReset        NotificationType = "PASSWORD_RESET"
)

// NotificationPriority maps onto queue priority levels at enqueue time.
type NotificationPriority string

const (
	PriorityHigh   NotificationPriority = "HIGH"
	PriorityMedium NotificationPriority = "MEDIUM"
	PriorityLow    NotificationPriority = "LOW"
)

// DeliveryChannel identifies one entry of a notification's delivered-via set.
type DeliveryChannel string

const (
	ChannelSocket          DeliveryChannel = "socket"
	ChannelFCM             DeliveryChannel = "fcm"
	ChannelEmail           DeliveryChannel = "email"
	ChannelSocketReconnect DeliveryChannel = "socket_reconnect"
)

// Notification is one delivery attempt to one user. DeliveredVia is an
// append-only set maintained by the channel senders; appends are idempotent
// per channel name.
type Notification struct {
	ID           string               `json:"id"`
	UserID       string               `json:"userId"`
	Type         NotificationType     `json:"type"`
	Title        string               `json:"title"`
	Body         string               `json:"body"`
	Data         map[string]string    `json:"data,omitempty"`
	Priority     NotificationPriority `json:"priority"`
	IsRead       bool                 `json:"isRead"`
	ReadAt       *time.Time           `json:"readAt,omitempty"`
	DeliveredVia []DeliveryChannel    `json:"deliveredVia"`
	SentAt       time.Time            `json:"sentAt"`
	ExpiresAt    time.Time            `json:"expiresAt"`
}

// DeliveredThrough reports whether ch is already recorded in DeliveredVia.
func (n *Notification) DeliveredThrough(ch DeliveryChannel) bool {
	for _, c := range n.DeliveredVia {
		if c == ch {
			return true
		}
	}
	return false
}
