// internal/channels/push_test.go
package channels

import (
	"context"
	"errors"
	"testing"

	"firebase.google.com/go/v4/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ezlab-notifier/internal/common/config"
	apperrors "ezlab-notifier/internal/common/errors"
	"ezlab-notifier/internal/common/logger"
	"ezlab-notifier/internal/models"
)

type mockMessagingClient struct {
	sendFunc      func(ctx context.Context, msg *messaging.Message) (string, error)
	multicastFunc func(ctx context.Context, msg *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

func (m *mockMessagingClient) Send(ctx context.Context, msg *messaging.Message) (string, error) {
	return m.sendFunc(ctx, msg)
}

func (m *mockMessagingClient) SendEachForMulticast(ctx context.Context, msg *messaging.MulticastMessage) (*messaging.BatchResponse, error) {
	return m.multicastFunc(ctx, msg)
}

type mockTokenPruner struct {
	deleted []string
	tokens  []models.PushToken
	findErr error
}

func (m *mockTokenPruner) DeleteToken(ctx context.Context, token string) error {
	m.deleted = append(m.deleted, token)
	return nil
}

func (m *mockTokenPruner) FindActiveTokens(ctx context.Context, userID string) ([]models.PushToken, error) {
	return m.tokens, m.findErr
}

// stubDeadToken swaps the SDK error classifier for the test's duration.
func stubDeadToken(t *testing.T, fn func(error) bool) {
	t.Helper()
	orig := isDeadToken
	isDeadToken = fn
	t.Cleanup(func() { isDeadToken = orig })
}

func TestPushSender_SendToToken_Success(t *testing.T) {
	var sent *messaging.Message
	client := &mockMessagingClient{
		sendFunc: func(ctx context.Context, msg *messaging.Message) (string, error) {
			sent = msg
			return "projects/x/messages/1", nil
		},
	}
	pruner := &mockTokenPruner{}
	cfg := config.FCMConfig{WebLink: "https://app.example.com/notifications", WebIcon: "/icon.png"}
	sender := NewPushSender(client, pruner, cfg, logger.NewNop())

	err := sender.SendToToken(context.Background(), "tok-A", "u1", "Hello", "World", map[string]string{"k": "v"})
	require.NoError(t, err)

	require.NotNil(t, sent)
	assert.Equal(t, "tok-A", sent.Token)
	assert.Equal(t, "Hello", sent.Notification.Title)
	assert.Equal(t, "World", sent.Notification.Body)
	require.NotNil(t, sent.Webpush)
	assert.Equal(t, "https://app.example.com/notifications", sent.Webpush.FCMOptions.Link)
	assert.Empty(t, pruner.deleted)
}

func TestPushSender_SendToToken_DeadTokenPruned(t *testing.T) {
	client := &mockMessagingClient{
		sendFunc: func(ctx context.Context, msg *messaging.Message) (string, error) {
			return "", errors.New("registration-token-not-registered")
		},
	}
	pruner := &mockTokenPruner{}
	sender := NewPushSender(client, pruner, config.FCMConfig{}, logger.NewNop())
	stubDeadToken(t, func(error) bool { return true })

	err := sender.SendToToken(context.Background(), "tok-dead", "u1", "Hello", "World", nil)
	require.NoError(t, err, "a dead token is a handled outcome, not a job failure")
	assert.Equal(t, []string{"tok-dead"}, pruner.deleted)
}

func TestPushSender_SendToToken_TransientErrorRetryable(t *testing.T) {
	client := &mockMessagingClient{
		sendFunc: func(ctx context.Context, msg *messaging.Message) (string, error) {
			return "", errors.New("fcm unavailable")
		},
	}
	pruner := &mockTokenPruner{}
	sender := NewPushSender(client, pruner, config.FCMConfig{}, logger.NewNop())
	stubDeadToken(t, func(error) bool { return false })

	err := sender.SendToToken(context.Background(), "tok-A", "u1", "Hello", "World", nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeChannelSendFailed, apperrors.CodeOf(err))
	assert.True(t, apperrors.IsRetryable(err))
	assert.Empty(t, pruner.deleted)
}

func TestPushSender_SendToUser_MulticastPrunesPerResponse(t *testing.T) {
	deadErr := errors.New("registration-token-not-registered")
	client := &mockMessagingClient{
		multicastFunc: func(ctx context.Context, msg *messaging.MulticastMessage) (*messaging.BatchResponse, error) {
			assert.Equal(t, []string{"tok-1", "tok-2", "tok-3"}, msg.Tokens)
			return &messaging.BatchResponse{
				SuccessCount: 1,
				FailureCount: 2,
				Responses: []*messaging.SendResponse{
					{Success: true, MessageID: "m1"},
					{Success: false, Error: deadErr},
					{Success: false, Error: errors.New("timeout")},
				},
			}, nil
		},
	}
	pruner := &mockTokenPruner{tokens: []models.PushToken{
		{UserID: "u1", Token: "tok-1", Platform: models.PlatformWeb},
		{UserID: "u1", Token: "tok-2", Platform: models.PlatformAndroid},
		{UserID: "u1", Token: "tok-3", Platform: models.PlatformIOS},
	}}
	sender := NewPushSender(client, pruner, config.FCMConfig{}, logger.NewNop())
	stubDeadToken(t, func(err error) bool { return errors.Is(err, deadErr) })

	sent, err := sender.SendToUser(context.Background(), "u1", "Hello", "World", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, []string{"tok-2"}, pruner.deleted, "only the dead token is pruned")
}

func TestPushSender_SendToUser_NoTokens(t *testing.T) {
	client := &mockMessagingClient{
		multicastFunc: func(ctx context.Context, msg *messaging.MulticastMessage) (*messaging.BatchResponse, error) {
			t.Fatal("multicast must not be called without tokens")
			return nil, nil
		},
	}
	sender := NewPushSender(client, &mockTokenPruner{}, config.FCMConfig{}, logger.NewNop())

	sent, err := sender.SendToUser(context.Background(), "u1", "Hello", "World", nil)
	require.NoError(t, err)
	assert.Zero(t, sent)
}
