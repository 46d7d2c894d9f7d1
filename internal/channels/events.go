// internal/channels/events.go
package channels

// Socket event names shared by the real-time sender, the reconnection
// replay and the websocket gateway.
const (
	EventNotificationNew    = "notification:new"
	EventNotificationMissed = "notification:missed"
	EventCountUpdate        = "notification:count-update"
	EventNotificationData   = "notification:data"
	EventNotificationRead   = "notification:read"

	EventMarkRead    = "notification:mark-read"
	EventMarkAllRead = "notification:mark-all-read"
	EventFetch       = "notification:fetch"
)
