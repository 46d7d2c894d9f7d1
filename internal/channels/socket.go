// internal/channels/socket.go
package channels

import (
	"ezlab-notifier/internal/common/logger"
	"ezlab-notifier/internal/common/metrics"
	"ezlab-notifier/internal/models"
)

// Emitter is the presence surface the socket sender needs.
type Emitter interface {
	EmitToUser(userID, event string, payload interface{}) bool
	IsOnline(userID string) bool
}

// SocketSender emits notifications to a user's live connections. An
// offline user is not an error here, it is the signal that routes the
// caller to push and email instead.
type SocketSender struct {
	emitter Emitter
	log     logger.Logger
}

func NewSocketSender(emitter Emitter, log logger.Logger) *SocketSender {
	return &SocketSender{
		emitter: emitter,
		log:     log.WithFields(map[string]interface{}{"component": "socket-sender"}),
	}
}

// Deliver emits notification:new to every connection the user has.
// Returns false when the user is offline.
func (s *SocketSender) Deliver(n *models.Notification) bool {
	if !s.emitter.EmitToUser(n.UserID, EventNotificationNew, n) {
		return false
	}
	metrics.NotificationsDelivered.WithLabelValues(string(models.ChannelSocket)).Inc()
	return true
}
