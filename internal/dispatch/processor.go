// internal/dispatch/processor.go
package dispatch

import (
	"context"
	"fmt"

	"ezlab-notifier/internal/common/logger"
	"ezlab-notifier/internal/models"
	"ezlab-notifier/internal/queue"
)

// PushChannel is the push sender surface the processor needs.
type PushChannel interface {
	SendToToken(ctx context.Context, token, userID, title, body string, data map[string]string) error
}

// EmailChannel is the email sender surface the processor needs.
type EmailChannel interface {
	Send(ctx context.Context, to, subject, html string) error
}

// DeliveryMarker records a successful delivery on the notification.
type DeliveryMarker interface {
	AppendDeliveredVia(ctx context.Context, id string, ch models.DeliveryChannel) error
}

// Processor holds the worker handlers for the three queues.
type Processor struct {
	socket SocketDeliverer
	push   PushChannel
	email  EmailChannel
	marks  DeliveryMarker
	log    logger.Logger
}

func NewProcessor(socket SocketDeliverer, push PushChannel, email EmailChannel, marks DeliveryMarker, log logger.Logger) *Processor {
	return &Processor{
		socket: socket,
		push:   push,
		email:  email,
		marks:  marks,
		log:    log.WithFields(map[string]interface{}{"component": "processor"}),
	}
}

// ProcessCoordination attempts socket delivery for one user. An offline
// user ends the job: for bulk fan-out there is no per-user fallback, and
// for single sends the push/email jobs were enqueued at dispatch time.
func (p *Processor) ProcessCoordination(ctx context.Context, job *queue.Job) error {
	var c queue.CoordinationJob
	if err := job.UnmarshalPayload(&c); err != nil {
		return fmt.Errorf("decode coordination job: %w", err)
	}

	n := &models.Notification{
		ID:       c.NotificationID,
		UserID:   c.UserID,
		Type:     c.Type,
		Title:    c.Title,
		Body:     c.Body,
		Data:     c.Data,
		Priority: c.Priority,
	}

	if !p.socket.Deliver(n) {
		p.log.Debug("user offline, coordination job done", map[string]interface{}{
			"userId": c.UserID,
		})
		return nil
	}

	if c.NotificationID != "" {
		p.mark(ctx, c.NotificationID, models.ChannelSocket)
	}
	return nil
}

// ProcessPush delivers one push job to one device token.
func (p *Processor) ProcessPush(ctx context.Context, job *queue.Job) error {
	var pj queue.PushJob
	if err := job.UnmarshalPayload(&pj); err != nil {
		return fmt.Errorf("decode push job: %w", err)
	}

	if err := p.push.SendToToken(ctx, pj.Token, pj.UserID, pj.Title, pj.Body, pj.Data); err != nil {
		return err
	}

	if pj.NotificationID != "" {
		p.mark(ctx, pj.NotificationID, models.ChannelFCM)
	}
	return nil
}

// ProcessEmail delivers one email job.
func (p *Processor) ProcessEmail(ctx context.Context, job *queue.Job) error {
	var ej queue.EmailJob
	if err := job.UnmarshalPayload(&ej); err != nil {
		return fmt.Errorf("decode email job: %w", err)
	}

	if err := p.email.Send(ctx, ej.To, ej.Subject, ej.HTML); err != nil {
		return err
	}

	if ej.NotificationID != "" {
		p.mark(ctx, ej.NotificationID, models.ChannelEmail)
	}
	return nil
}

// mark is best-effort: a failed delivered-via update never fails the job,
// since the delivery itself succeeded.
func (p *Processor) mark(ctx context.Context, id string, ch models.DeliveryChannel) {
	if err := p.marks.AppendDeliveredVia(ctx, id, ch); err != nil {
		p.log.Error("failed to record delivery channel", map[string]interface{}{
			"notificationId": id,
			"channel":        string(ch),
			"error":          err,
		})
	}
}
