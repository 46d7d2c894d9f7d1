// internal/dispatch/processor_test.go
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ezlab-notifier/internal/common/logger"
	"ezlab-notifier/internal/models"
	"ezlab-notifier/internal/queue"
)

type fakePush struct {
	sent []string
	err  error
}

func (f *fakePush) SendToToken(ctx context.Context, token, userID, title, body string, data map[string]string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, token)
	return nil
}

type fakeEmail struct {
	sent []string
	err  error
}

func (f *fakeEmail) Send(ctx context.Context, to, subject, html string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, to)
	return nil
}

type fakeMarker struct {
	marks []string
}

func (f *fakeMarker) AppendDeliveredVia(ctx context.Context, id string, ch models.DeliveryChannel) error {
	f.marks = append(f.marks, id+":"+string(ch))
	return nil
}

func jobWith(t *testing.T, payload interface{}) *queue.Job {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return &queue.Job{ID: "job-1", Payload: raw, MaxAttempts: 3}
}

func newProcessorHarness(online bool) (*Processor, *fakeSocket, *fakePush, *fakeEmail, *fakeMarker) {
	presence := &fakePresence{online: map[string]bool{"u1": online}}
	socket := &fakeSocket{presence: presence}
	push := &fakePush{}
	email := &fakeEmail{}
	marker := &fakeMarker{}
	p := NewProcessor(socket, push, email, marker, logger.NewNop())
	return p, socket, push, email, marker
}

func TestProcessCoordination_OnlineDeliversAndMarks(t *testing.T) {
	p, socket, _, _, marker := newProcessorHarness(true)

	job := jobWith(t, queue.CoordinationJob{
		UserID:         "u1",
		NotificationID: "n1",
		Type:           models.TypeWelcome,
		Title:          "Welcome to Ez Lab Testing",
		Body:           "Hi Jo, your account is ready.",
	})

	require.NoError(t, p.ProcessCoordination(context.Background(), job))
	require.Len(t, socket.delivered, 1)
	assert.Equal(t, "n1", socket.delivered[0].ID)
	assert.Equal(t, []string{"n1:socket"}, marker.marks)
}

func TestProcessCoordination_OfflineEndsQuietly(t *testing.T) {
	p, socket, push, email, marker := newProcessorHarness(false)

	job := jobWith(t, queue.CoordinationJob{UserID: "u1", NotificationID: "n1"})

	require.NoError(t, p.ProcessCoordination(context.Background(), job),
		"offline is the expected outcome, never a retry")
	assert.Empty(t, socket.delivered)
	assert.Empty(t, push.sent)
	assert.Empty(t, email.sent)
	assert.Empty(t, marker.marks)
}

func TestProcessCoordination_BulkJobWithoutRecord(t *testing.T) {
	p, socket, _, _, marker := newProcessorHarness(true)

	job := jobWith(t, queue.CoordinationJob{UserID: "u1", Title: "Maintenance tonight"})

	require.NoError(t, p.ProcessCoordination(context.Background(), job))
	assert.Len(t, socket.delivered, 1)
	assert.Empty(t, marker.marks, "no record id means nothing to mark")
}

func TestProcessPush(t *testing.T) {
	p, _, push, _, marker := newProcessorHarness(false)

	job := jobWith(t, queue.PushJob{Token: "tok-A", UserID: "u1", NotificationID: "n1", Title: "t", Body: "b"})

	require.NoError(t, p.ProcessPush(context.Background(), job))
	assert.Equal(t, []string{"tok-A"}, push.sent)
	assert.Equal(t, []string{"n1:fcm"}, marker.marks)
}

func TestProcessPush_SendFailurePropagates(t *testing.T) {
	p, _, push, _, marker := newProcessorHarness(false)
	push.err = errors.New("fcm unavailable")

	job := jobWith(t, queue.PushJob{Token: "tok-A", NotificationID: "n1"})

	require.Error(t, p.ProcessPush(context.Background(), job))
	assert.Empty(t, marker.marks, "failed sends are never marked delivered")
}

func TestProcessEmail(t *testing.T) {
	p, _, _, email, marker := newProcessorHarness(false)

	job := jobWith(t, queue.EmailJob{To: "jo@example.com", Subject: "s", HTML: "<p>b</p>", NotificationID: "n1"})

	require.NoError(t, p.ProcessEmail(context.Background(), job))
	assert.Equal(t, []string{"jo@example.com"}, email.sent)
	assert.Equal(t, []string{"n1:email"}, marker.marks)
}

func TestProcess_MalformedPayload(t *testing.T) {
	p, _, _, _, _ := newProcessorHarness(false)

	job := &queue.Job{ID: "bad", Payload: []byte(`{`)}
	assert.Error(t, p.ProcessCoordination(context.Background(), job))
	assert.Error(t, p.ProcessPush(context.Background(), job))
	assert.Error(t, p.ProcessEmail(context.Background(), job))
}
