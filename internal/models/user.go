// internal/models/user.go
package models

import "time"

// Role mirrors the user directory's role enum.
type Role string

const (
	RoleCustomer   Role = "CUSTOMER"
	RoleLabStaff   Role = "LAB_STAFF"
	RoleAdmin      Role = "ADMIN"
	RoleSuperAdmin Role = "SUPER_ADMIN"
)

// User is the projection of a directory record the dispatcher needs.
type User struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	Role       Role   `json:"role"`
	IsVerified bool   `json:"isVerified"`
}

// UserRef is the minimal identity used for bulk fan-out.
type UserRef struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Platform enumerates push token platforms.
type Platform string

const (
	PlatformWeb     Platform = "web"
	PlatformAndroid Platform = "android"
	PlatformIOS     Platform = "ios"
)

// PushToken binds a device registration token to a user. UserID stays empty
// until the token is bound at login.
type PushToken struct {
	UserID    string    `json:"userId,omitempty"`
	Token     string    `json:"token"`
	Platform  Platform  `json:"platform"`
	Revoked   bool      `json:"revoked"`
	CreatedAt time.Time `json:"createdAt"`
}

// UserConnection is the single durable timestamp pair per user backing the
// reconnection replay window. Both fields move only on the transition
// between zero and non-zero live connections.
type UserConnection struct {
	UserID             string     `json:"userId"`
	LastConnectedAt    *time.Time `json:"lastConnectedAt,omitempty"`
	LastDisconnectedAt *time.Time `json:"lastDisconnectedAt,omitempty"`
}
