// internal/replay/replay.go

// Package replay redelivers notifications a user missed while offline.
// The window is anchored to the disconnect time, not last-read time, so
// it only covers notifications generated while the user was demonstrably
// gone.
package replay

import (
	"context"
	"time"

	"ezlab-notifier/internal/channels"
	"ezlab-notifier/internal/common/logger"
	"ezlab-notifier/internal/models"
)

// MissedSource queries the unread notifications inside a window.
type MissedSource interface {
	FindMissed(ctx context.Context, userID string, windowStart, windowEnd time.Time) ([]*models.Notification, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	AppendDeliveredVia(ctx context.Context, id string, ch models.DeliveryChannel) error
}

// Emitter pushes replay events to the user's connections.
type Emitter interface {
	EmitToUser(userID, event string, payload interface{}) bool
}

// Handler runs the reconnection replay.
type Handler struct {
	source MissedSource
	emit   Emitter
	window time.Duration
	log    logger.Logger
}

func NewHandler(source MissedSource, emit Emitter, window time.Duration, log logger.Logger) *Handler {
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &Handler{
		source: source,
		emit:   emit,
		window: window,
		log:    log.WithFields(map[string]interface{}{"component": "replay"}),
	}
}

// HandleReconnect replays the missed window for a freshly connected user
// and pushes an updated unread count. A nil lastDisconnectedAt means a
// first-ever connection: nothing to replay. Replay is best-effort; it
// never fails the connection.
func (h *Handler) HandleReconnect(ctx context.Context, userID string, lastDisconnectedAt *time.Time) int {
	if lastDisconnectedAt == nil {
		return 0
	}

	// Pad the window backwards to tolerate clock and propagation skew
	// around the recorded disconnect instant.
	windowStart := lastDisconnectedAt.Add(-h.window)
	now := time.Now()

	missed, err := h.source.FindMissed(ctx, userID, windowStart, now)
	if err != nil {
		h.log.Error("failed to query missed notifications", map[string]interface{}{
			"userId": userID,
			"error":  err,
		})
		return 0
	}
	if len(missed) == 0 {
		return 0
	}

	for _, n := range missed {
		h.emit.EmitToUser(userID, channels.EventNotificationMissed, n)

		if n.DeliveredThrough(models.ChannelSocketReconnect) {
			continue
		}
		if err := h.source.AppendDeliveredVia(ctx, n.ID, models.ChannelSocketReconnect); err != nil {
			h.log.Error("failed to record replay delivery", map[string]interface{}{
				"notificationId": n.ID,
				"error":          err,
			})
		}
	}

	if count, err := h.source.UnreadCount(ctx, userID); err == nil {
		h.emit.EmitToUser(userID, channels.EventCountUpdate, map[string]int{"count": count})
	} else {
		h.log.Error("failed to refresh unread count", map[string]interface{}{
			"userId": userID,
			"error":  err,
		})
	}

	h.log.Info("replayed missed notifications", map[string]interface{}{
		"userId": userID,
		"count":  len(missed),
	})
	return len(missed)
}
