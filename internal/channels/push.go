// internal/channels/push.go
package channels

import (
	"context"

	"firebase.google.com/go/v4/errorutils"
	"firebase.google.com/go/v4/messaging"

	"ezlab-notifier/internal/common/config"
	apperrors "ezlab-notifier/internal/common/errors"
	"ezlab-notifier/internal/common/logger"
	"ezlab-notifier/internal/common/metrics"
	"ezlab-notifier/internal/models"
)

// MessagingClient is the slice of the FCM client the push sender needs.
// *messaging.Client satisfies it.
type MessagingClient interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// TokenPruner removes device tokens the provider reports as dead.
type TokenPruner interface {
	DeleteToken(ctx context.Context, token string) error
	FindActiveTokens(ctx context.Context, userID string) ([]models.PushToken, error)
}

// PushSender delivers push messages through Firebase Cloud Messaging.
// Invalid-token responses are handled here: the token is pruned and the
// send counts as done, so the job is never retried against a dead token.
type PushSender struct {
	client MessagingClient
	tokens TokenPruner
	cfg    config.FCMConfig
	log    logger.Logger
}

func NewPushSender(client MessagingClient, tokens TokenPruner, cfg config.FCMConfig, log logger.Logger) *PushSender {
	return &PushSender{
		client: client,
		tokens: tokens,
		cfg:    cfg,
		log:    log.WithFields(map[string]interface{}{"component": "push-sender"}),
	}
}

// SendToToken delivers one message to one device token.
func (s *PushSender) SendToToken(ctx context.Context, token, userID, title, body string, data map[string]string) error {
	msg := s.buildMessage(title, body, data)
	msg.Token = token

	_, err := s.client.Send(ctx, msg)
	if err == nil {
		metrics.NotificationsDelivered.WithLabelValues(string(models.ChannelFCM)).Inc()
		return nil
	}

	if isDeadToken(err) {
		s.pruneToken(ctx, token, userID)
		return nil
	}
	return apperrors.NewChannelSendFailedError(string(models.ChannelFCM), err)
}

// SendToUser multicasts to every active token the user has registered,
// pruning dead tokens found in the per-token responses. Returns the number
// of devices that accepted the message.
func (s *PushSender) SendToUser(ctx context.Context, userID, title, body string, data map[string]string) (int, error) {
	tokens, err := s.tokens.FindActiveTokens(ctx, userID)
	if err != nil {
		return 0, err
	}
	if len(tokens) == 0 {
		s.log.Debug("no active push tokens", map[string]interface{}{"userId": userID})
		return 0, nil
	}

	raw := make([]string, len(tokens))
	for i, t := range tokens {
		raw[i] = t.Token
	}

	msg := &messaging.MulticastMessage{
		Notification: &messaging.Notification{Title: title, Body: body},
		Data:         data,
		Tokens:       raw,
		Webpush:      s.webpushConfig(),
	}

	batch, err := s.client.SendEachForMulticast(ctx, msg)
	if err != nil {
		return 0, apperrors.NewChannelSendFailedError(string(models.ChannelFCM), err)
	}

	for i, resp := range batch.Responses {
		if resp.Success {
			continue
		}
		if isDeadToken(resp.Error) {
			s.pruneToken(ctx, raw[i], userID)
			continue
		}
		s.log.Warn("push delivery failed for device", map[string]interface{}{
			"userId": userID,
			"error":  resp.Error,
		})
	}

	if batch.SuccessCount > 0 {
		metrics.NotificationsDelivered.WithLabelValues(string(models.ChannelFCM)).Add(float64(batch.SuccessCount))
	}
	return batch.SuccessCount, nil
}

func (s *PushSender) buildMessage(title, body string, data map[string]string) *messaging.Message {
	return &messaging.Message{
		Notification: &messaging.Notification{Title: title, Body: body},
		Data:         data,
		Webpush:      s.webpushConfig(),
	}
}

func (s *PushSender) webpushConfig() *messaging.WebpushConfig {
	if s.cfg.WebLink == "" && s.cfg.WebIcon == "" {
		return nil
	}
	cfg := &messaging.WebpushConfig{}
	if s.cfg.WebLink != "" {
		cfg.FCMOptions = &messaging.WebpushFCMOptions{Link: s.cfg.WebLink}
	}
	if s.cfg.WebIcon != "" {
		cfg.Notification = &messaging.WebpushNotification{Icon: s.cfg.WebIcon}
	}
	return cfg
}

func (s *PushSender) pruneToken(ctx context.Context, token, userID string) {
	s.log.Info("pruning invalid push token", map[string]interface{}{
		"userId": userID,
	})
	if err := s.tokens.DeleteToken(ctx, token); err != nil {
		s.log.Error("failed to prune push token", map[string]interface{}{
			"userId": userID,
			"error":  err,
		})
		return
	}
	metrics.PushTokensPruned.Inc()
}

// isDeadToken reports whether the provider says the token can never work
// again. Unregistered covers uninstalls and rotations; invalid-argument
// covers malformed tokens. Variable so tests can stub the SDK checks.
var isDeadToken = func(err error) bool {
	if err == nil {
		return false
	}
	return messaging.IsRegistrationTokenNotRegistered(err) || errorutils.IsInvalidArgument(err)
}
