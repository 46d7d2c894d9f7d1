// internal/gateway/handler.go
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"ezlab-notifier/internal/channels"
	"ezlab-notifier/internal/common/config"
	"ezlab-notifier/internal/common/logger"
	"ezlab-notifier/internal/dispatch"
	"ezlab-notifier/internal/models"
	"ezlab-notifier/internal/presence"
	"ezlab-notifier/internal/store"
)

// Presence is the tracker surface the gateway drives.
type Presence interface {
	AddConnection(ctx context.Context, userID string, c presence.Conn) error
	RemoveConnection(ctx context.Context, connID string) error
	LastDisconnectedAt(ctx context.Context, userID string) (*time.Time, error)
}

// Replayer runs the missed-notification replay on reconnect.
type Replayer interface {
	HandleReconnect(ctx context.Context, userID string, lastDisconnectedAt *time.Time) int
}

// NotificationAPI is the slice of the dispatch service the socket
// protocol exposes to clients.
type NotificationAPI interface {
	GetNotifications(ctx context.Context, userID string, opts store.FindOptions) (*dispatch.Page, error)
	GetUnreadCount(ctx context.Context, userID string) (int, error)
	MarkAsRead(ctx context.Context, userID, notificationID string) error
	MarkAllAsRead(ctx context.Context, userID string) error
}

// Authenticator resolves the connecting user from the upgrade request.
// Authentication itself lives in the main backend; the notifier only
// needs the resolved identity.
type Authenticator func(r *http.Request) (string, error)

// QueryUserID is the development resolver: the client passes its id as a
// query parameter.
func QueryUserID(r *http.Request) (string, error) {
	id := r.URL.Query().Get("userId")
	if id == "" {
		return "", http.ErrNoCookie
	}
	return id, nil
}

// Handler owns the websocket endpoint.
type Handler struct {
	presence Presence
	replay   Replayer
	api      NotificationAPI
	auth     Authenticator
	upgrader websocket.Upgrader
	log      logger.Logger
}

func NewHandler(p Presence, r Replayer, api NotificationAPI, auth Authenticator, cfg config.SocketConfig, log logger.Logger) *Handler {
	if auth == nil {
		auth = QueryUserID
	}
	return &Handler{
		presence: p,
		replay:   r,
		api:      api,
		auth:     auth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log: log.WithFields(map[string]interface{}{"component": "gateway"}),
	}
}

// ServeHTTP upgrades the connection and runs its lifecycle: register with
// presence, replay the missed window, push the unread count, then serve
// client events until the connection drops.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := h.auth(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	// The disconnect timestamp must be read before presence touches the
	// connection record.
	lastDisconnectedAt, err := h.presence.LastDisconnectedAt(r.Context(), userID)
	if err != nil {
		h.log.Error("failed to load disconnect timestamp", map[string]interface{}{
			"userId": userID,
			"error":  err,
		})
		lastDisconnectedAt = nil
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("upgrade failed", map[string]interface{}{"error": err})
		return
	}

	client := NewClient(userID, conn, h.log)
	if err := h.presence.AddConnection(r.Context(), userID, client); err != nil {
		h.log.Error("failed to register connection", map[string]interface{}{
			"userId": userID,
			"error":  err,
		})
	}
	go client.WritePump()

	h.onConnect(userID, client, lastDisconnectedAt)
	h.readLoop(userID, client, conn)

	// Disconnect path. The request context may already be done.
	if err := h.presence.RemoveConnection(context.Background(), client.ID()); err != nil {
		h.log.Error("failed to unregister connection", map[string]interface{}{
			"connId": client.ID(),
			"error":  err,
		})
	}
	client.Close()
}

func (h *Handler) onConnect(userID string, client *Client, lastDisconnectedAt *time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	h.replay.HandleReconnect(ctx, userID, lastDisconnectedAt)

	count, err := h.api.GetUnreadCount(ctx, userID)
	if err != nil {
		h.log.Error("failed to load unread count", map[string]interface{}{
			"userId": userID,
			"error":  err,
		})
		return
	}
	_ = client.Emit(channels.EventCountUpdate, map[string]int{"count": count})
}

func (h *Handler) readLoop(userID string, client *Client, conn *websocket.Conn) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var ev clientEvent
		if err := conn.ReadJSON(&ev); err != nil {
			return
		}
		h.handleClientEvent(userID, client, ev)
	}
}

func (h *Handler) handleClientEvent(userID string, client *Client, ev clientEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch ev.Event {
	case channels.EventMarkRead:
		var data struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(ev.Data, &data); err != nil || data.ID == "" {
			return
		}
		if err := h.api.MarkAsRead(ctx, userID, data.ID); err != nil {
			h.log.Warn("mark-read failed", map[string]interface{}{
				"userId":         userID,
				"notificationId": data.ID,
				"error":          err,
			})
			return
		}
		h.pushCount(ctx, userID, client)

	case channels.EventMarkAllRead:
		if err := h.api.MarkAllAsRead(ctx, userID); err != nil {
			h.log.Warn("mark-all-read failed", map[string]interface{}{
				"userId": userID,
				"error":  err,
			})
			return
		}
		h.pushCount(ctx, userID, client)

	case channels.EventFetch:
		var data struct {
			Limit  int                      `json:"limit"`
			Offset int                      `json:"offset"`
			Type   *models.NotificationType `json:"type"`
			IsRead *bool                    `json:"isRead"`
		}
		if len(ev.Data) > 0 {
			_ = json.Unmarshal(ev.Data, &data)
		}
		page, err := h.api.GetNotifications(ctx, userID, store.FindOptions{
			Limit:  data.Limit,
			Offset: data.Offset,
			Type:   data.Type,
			IsRead: data.IsRead,
		})
		if err != nil {
			h.log.Warn("fetch failed", map[string]interface{}{
				"userId": userID,
				"error":  err,
			})
			return
		}
		_ = client.Emit(channels.EventNotificationData, page)

	default:
		h.log.Debug("unknown client event", map[string]interface{}{
			"userId": userID,
			"event":  ev.Event,
		})
	}
}

func (h *Handler) pushCount(ctx context.Context, userID string, client *Client) {
	count, err := h.api.GetUnreadCount(ctx, userID)
	if err != nil {
		return
	}
	_ = client.Emit(channels.EventCountUpdate, map[string]int{"count": count})
}
