// internal/dispatch/service.go

// Package dispatch is the delivery router: it decides, per notification,
// which channels carry it, renders the template, persists the record and
// feeds the queues.
package dispatch

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"ezlab-notifier/internal/channels"
	"ezlab-notifier/internal/common/config"
	apperrors "ezlab-notifier/internal/common/errors"
	"ezlab-notifier/internal/common/logger"
	"ezlab-notifier/internal/common/observability"
	"ezlab-notifier/internal/models"
	"ezlab-notifier/internal/queue"
	"ezlab-notifier/internal/store"
	"ezlab-notifier/internal/template"
)

// UserDirectory resolves recipients.
type UserDirectory interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindUsersByRole(ctx context.Context, role models.Role) ([]models.UserRef, error)
	FindAllUsers(ctx context.Context) ([]models.UserRef, error)
}

// TemplateSource resolves the template for a notification type.
type TemplateSource interface {
	FindByType(ctx context.Context, typ models.NotificationType) (*models.NotificationTemplate, error)
}

// NotificationRecords is the persistence surface the router needs.
type NotificationRecords interface {
	Create(ctx context.Context, n *models.Notification) error
	FindMany(ctx context.Context, userID string, opts store.FindOptions) ([]*models.Notification, int, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	MarkAsRead(ctx context.Context, id, userID string) error
	MarkAllAsRead(ctx context.Context, userID string) (int64, error)
	Delete(ctx context.Context, id, userID string) error
	AppendDeliveredVia(ctx context.Context, id string, ch models.DeliveryChannel) error
}

// TokenDirectory manages device push tokens.
type TokenDirectory interface {
	Upsert(ctx context.Context, t *models.PushToken) error
	DeleteToken(ctx context.Context, token string) error
	FindActiveTokens(ctx context.Context, userID string) ([]models.PushToken, error)
}

// JobQueue is the enqueue-side surface of one queue.
type JobQueue interface {
	Enqueue(ctx context.Context, payload interface{}, opts ...queue.Option) (*queue.Job, error)
}

// SocketDeliverer attempts immediate real-time delivery.
type SocketDeliverer interface {
	Deliver(n *models.Notification) bool
}

// Presence answers online checks and read-event emits.
type Presence interface {
	IsOnline(userID string) bool
	EmitToUser(userID, event string, payload interface{}) bool
}

// Page is one page of a user's notifications.
type Page struct {
	Data       []*models.Notification `json:"data"`
	Total      int                    `json:"total"`
	Limit      int                    `json:"limit"`
	Offset     int                    `json:"offset"`
	TotalPages int                    `json:"totalPages"`
}

// BulkResult summarizes a bulk fan-out.
type BulkResult struct {
	TotalQueued int                     `json:"totalQueued"`
	Type        models.NotificationType `json:"type"`
}

// Service is the delivery router.
type Service struct {
	users         UserDirectory
	templates     TemplateSource
	notifications NotificationRecords
	tokens        TokenDirectory
	presence      Presence
	socket        SocketDeliverer

	coordinationQ JobQueue
	pushQ         JobQueue
	emailQ        JobQueue

	bulk config.BulkConfig
	obs  *observability.Observability
	log  logger.Logger

	now func() time.Time
}

func NewService(
	users UserDirectory,
	templates TemplateSource,
	notifications NotificationRecords,
	tokens TokenDirectory,
	presence Presence,
	socket SocketDeliverer,
	coordinationQ, pushQ, emailQ JobQueue,
	bulk config.BulkConfig,
	obs *observability.Observability,
	log logger.Logger,
) *Service {
	return &Service{
		users:         users,
		templates:     templates,
		notifications: notifications,
		tokens:        tokens,
		presence:      presence,
		socket:        socket,
		coordinationQ: coordinationQ,
		pushQ:         pushQ,
		emailQ:        emailQ,
		bulk:          bulk,
		obs:           obs,
		log:           log.WithFields(map[string]interface{}{"component": "dispatch"}),
		now:           time.Now,
	}
}

// SendNotification runs the full single-user dispatch workflow and returns
// the persisted record. A missing user or missing/inactive template aborts
// with a typed error; everything after record creation is best-effort.
func (s *Service) SendNotification(ctx context.Context, userID string, typ models.NotificationType, data map[string]string) (*models.Notification, error) {
	start := s.now()

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		s.obs.RecordDispatch(ctx, string(typ), "user_not_found")
		return nil, err
	}

	tpl, err := s.templates.FindByType(ctx, typ)
	if err != nil {
		s.obs.RecordDispatch(ctx, string(typ), "template_missing")
		return nil, err
	}
	if !tpl.IsActive {
		s.obs.RecordDispatch(ctx, string(typ), "template_inactive")
		return nil, apperrors.NewTemplateInactiveError(string(typ))
	}

	if v := template.Validate(data, tpl.Variables); !v.Valid {
		s.log.Warn("missing template variables", map[string]interface{}{
			"type":    string(typ),
			"missing": strings.Join(v.Missing, ", "),
		})
	}

	rendered := template.RenderAll(tpl, data)
	priority := PriorityFor(typ)

	now := s.now()
	n := &models.Notification{
		ID:           uuid.NewString(),
		UserID:       userID,
		Type:         typ,
		Title:        rendered.PushTitle,
		Body:         rendered.PushBody,
		Data:         data,
		Priority:     priority,
		DeliveredVia: []models.DeliveryChannel{},
		SentAt:       now,
		ExpiresAt:    expiryFor(user.Role, now),
	}
	if err := s.notifications.Create(ctx, n); err != nil {
		s.obs.RecordDispatch(ctx, string(typ), "persist_failed")
		return nil, err
	}

	if s.presence.IsOnline(userID) {
		s.deliverSocket(ctx, n)
	} else {
		s.enqueuePush(ctx, n, rendered)
	}

	if IsEmailCritical(typ) || priority == models.PriorityHigh {
		s.enqueueEmail(ctx, n, user.Email, rendered)
	}

	s.obs.RecordDispatch(ctx, string(typ), "dispatched")
	s.obs.RecordDispatchDuration(ctx, s.now().Sub(start))
	s.log.Info("notification dispatched", map[string]interface{}{
		"notificationId": n.ID,
		"userId":         userID,
		"type":           string(typ),
		"priority":       string(priority),
	})
	return n, nil
}

func (s *Service) deliverSocket(ctx context.Context, n *models.Notification) {
	if !s.socket.Deliver(n) {
		// Raced a disconnect between the presence check and the emit.
		return
	}
	if err := s.notifications.AppendDeliveredVia(ctx, n.ID, models.ChannelSocket); err != nil {
		s.log.Error("failed to record socket delivery", map[string]interface{}{
			"notificationId": n.ID,
			"error":          err,
		})
	}
}

func (s *Service) enqueuePush(ctx context.Context, n *models.Notification, rendered template.Rendered) {
	tokens, err := s.tokens.FindActiveTokens(ctx, n.UserID)
	if err != nil {
		s.log.Error("failed to list push tokens", map[string]interface{}{
			"userId": n.UserID,
			"error":  err,
		})
		return
	}

	for _, t := range tokens {
		_, err := s.pushQ.Enqueue(ctx, queue.PushJob{
			Token:          t.Token,
			UserID:         n.UserID,
			NotificationID: n.ID,
			Title:          rendered.PushTitle,
			Body:           rendered.PushBody,
			Data:           n.Data,
		}, queue.WithPriority(queue.FromNotificationPriority(n.Priority)))
		if err != nil {
			s.log.Error("failed to enqueue push job", map[string]interface{}{
				"notificationId": n.ID,
				"error":          err,
			})
		}
	}
}

func (s *Service) enqueueEmail(ctx context.Context, n *models.Notification, to string, rendered template.Rendered) {
	_, err := s.emailQ.Enqueue(ctx, queue.EmailJob{
		To:             to,
		Subject:        rendered.EmailSubject,
		HTML:           rendered.EmailBody,
		NotificationID: n.ID,
	}, queue.WithPriority(queue.PriorityHigh))
	if err != nil {
		s.log.Error("failed to enqueue email job", map[string]interface{}{
			"notificationId": n.ID,
			"error":          err,
		})
	}
}

// SendBulkNotification fans a notification out to many users through the
// coordination queue. The template render happens once; users are chunked
// into batches and each batch's jobs carry a staggered delay so the
// downstream senders see a ramp, not a spike. Per-user enqueue failures
// are logged and skipped.
func (s *Service) SendBulkNotification(ctx context.Context, typ models.NotificationType, data map[string]string, targetRoles []models.Role) (*BulkResult, error) {
	tpl, err := s.templates.FindByType(ctx, typ)
	if err != nil {
		return nil, err
	}
	if !tpl.IsActive {
		return nil, apperrors.NewTemplateInactiveError(string(typ))
	}

	rendered := template.RenderAll(tpl, data)

	users, err := s.resolveTargets(ctx, targetRoles)
	if err != nil {
		return nil, err
	}

	s.log.Info("bulk notification fan-out", map[string]interface{}{
		"type":  string(typ),
		"users": len(users),
	})

	batchSize := s.bulk.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	stagger := time.Duration(s.bulk.StaggerMs) * time.Millisecond

	queued := 0
	for i := 0; i < len(users); i += batchSize {
		end := i + batchSize
		if end > len(users) {
			end = len(users)
		}
		delay := time.Duration(i/batchSize) * stagger

		for _, u := range users[i:end] {
			_, err := s.coordinationQ.Enqueue(ctx, queue.CoordinationJob{
				UserID:   u.ID,
				Type:     typ,
				Title:    rendered.PushTitle,
				Body:     rendered.PushBody,
				Data:     data,
				Priority: models.PriorityLow,
			}, queue.WithPriority(queue.PriorityLow), queue.WithDelay(delay))
			if err != nil {
				s.log.Error("failed to enqueue bulk job", map[string]interface{}{
					"userId": u.ID,
					"type":   string(typ),
					"error":  err,
				})
				continue
			}
			queued++
		}

		s.log.Info("bulk batch queued", map[string]interface{}{
			"queued": queued,
			"total":  len(users),
		})
	}

	return &BulkResult{TotalQueued: queued, Type: typ}, nil
}

func (s *Service) resolveTargets(ctx context.Context, roles []models.Role) ([]models.UserRef, error) {
	if len(roles) == 0 {
		return s.users.FindAllUsers(ctx)
	}

	var out []models.UserRef
	seen := make(map[string]struct{})
	for _, role := range roles {
		refs, err := s.users.FindUsersByRole(ctx, role)
		if err != nil {
			return nil, err
		}
		for _, r := range refs {
			if _, dup := seen[r.ID]; dup {
				continue
			}
			seen[r.ID] = struct{}{}
			out = append(out, r)
		}
	}
	return out, nil
}

// GetNotifications returns one page of a user's notifications, newest
// first.
func (s *Service) GetNotifications(ctx context.Context, userID string, opts store.FindOptions) (*Page, error) {
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	list, total, err := s.notifications.FindMany(ctx, userID, opts)
	if err != nil {
		return nil, err
	}

	totalPages := total / opts.Limit
	if total%opts.Limit != 0 {
		totalPages++
	}
	return &Page{
		Data:       list,
		Total:      total,
		Limit:      opts.Limit,
		Offset:     opts.Offset,
		TotalPages: totalPages,
	}, nil
}

func (s *Service) GetUnreadCount(ctx context.Context, userID string) (int, error) {
	return s.notifications.UnreadCount(ctx, userID)
}

// MarkAsRead flags one notification read and echoes the read event to the
// user's other connections.
func (s *Service) MarkAsRead(ctx context.Context, userID, notificationID string) error {
	if err := s.notifications.MarkAsRead(ctx, notificationID, userID); err != nil {
		return err
	}
	s.presence.EmitToUser(userID, channels.EventNotificationRead, map[string]string{
		"id": notificationID,
	})
	return nil
}

func (s *Service) MarkAllAsRead(ctx context.Context, userID string) error {
	marked, err := s.notifications.MarkAllAsRead(ctx, userID)
	if err != nil {
		return err
	}
	s.log.Info("all notifications marked read", map[string]interface{}{
		"userId": userID,
		"marked": marked,
	})
	return nil
}

func (s *Service) DeleteNotification(ctx context.Context, userID, notificationID string) error {
	return s.notifications.Delete(ctx, notificationID, userID)
}

// RegisterToken binds a device token to a user, rebinding it if another
// account registered it earlier.
func (s *Service) RegisterToken(ctx context.Context, userID, token string, platform models.Platform) error {
	if platform == "" {
		platform = models.PlatformWeb
	}
	return s.tokens.Upsert(ctx, &models.PushToken{
		UserID:   userID,
		Token:    token,
		Platform: platform,
	})
}

func (s *Service) UnregisterToken(ctx context.Context, token string) error {
	return s.tokens.DeleteToken(ctx, token)
}

// Typed convenience wrappers used by the backend's domain modules.

func (s *Service) SendOrderNotification(ctx context.Context, userID string, data map[string]string) (*models.Notification, error) {
	return s.SendNotification(ctx, userID, models.TypeOrderCreated, data)
}

func (s *Service) SendDiscountNotification(ctx context.Context, userID string, data map[string]string) (*models.Notification, error) {
	return s.SendNotification(ctx, userID, models.TypeNewDiscount, data)
}

func (s *Service) SendLabCenterNotification(ctx context.Context, userID string, typ models.NotificationType, data map[string]string) (*models.Notification, error) {
	if typ != models.TypeLabCenterUpdated && typ != models.TypeLabCenterClosed {
		typ = models.TypeLabCenterUpdated
	}
	return s.SendNotification(ctx, userID, typ, data)
}

func (s *Service) SendSystemAlert(ctx context.Context, userID string, data map[string]string) (*models.Notification, error) {
	return s.SendNotification(ctx, userID, models.TypeSystemAlert, data)
}
