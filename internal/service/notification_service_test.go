package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tams-dev/tams-api/internal/models"
	appErrors "github.com/tams-dev/tams-api/pkg/errors"
)

type mockNotificationRepo struct {
	notifications map[string]models.Notification
	read          []string
}

func (m *mockNotificationRepo) Create(ctx context.Context, n *models.Notification) error {
	if m.notifications == nil {
		m.notifications = make(map[string]models.Notification)
	}
	m.notifications[n.ID] = *n
	return nil
}

func (m *mockNotificationRepo) ListForRecipient(ctx context.Context, recipientID string, limit int) ([]models.Notification, error) {
	var out []models.Notification
	for _, n := range m.notifications {
		if n.RecipientID == recipientID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *mockNotificationRepo) MarkRead(ctx context.Context, id, recipientID string) (bool, error) {
	n, ok := m.notifications[id]
	if !ok || n.RecipientID != recipientID {
		return false, nil
	}
	n.IsRead = true
	m.notifications[id] = n
	m.read = append(m.read, id)
	return true, nil
}

func (m *mockNotificationRepo) CountUnread(ctx context.Context, recipientID string) (int, error) {
	count := 0
	for _, n := range m.notifications {
		if n.RecipientID == recipientID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func TestNotificationServiceNotify(t *testing.T) {
	repo := &mockNotificationRepo{}
	users := &mockTAReader{users: map[string]models.User{"ta-1": activeTA("ta-1", "CS")}}
	svc := NewNotificationService(repo, users, zap.NewNop())

	err := svc.Notify(context.Background(), "ta-1", "New assignment", "You have a new duty.")
	require.NoError(t, err)
	require.Len(t, repo.notifications, 1)
	for _, n := range repo.notifications {
		assert.Equal(t, "ta-1", n.RecipientID)
		assert.False(t, n.IsRead)
	}
}

func TestNotificationServiceNotifyUnknownRecipient(t *testing.T) {
	svc := NewNotificationService(&mockNotificationRepo{}, &mockTAReader{}, zap.NewNop())

	err := svc.Notify(context.Background(), "ghost", "subject", "message")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestNotificationServiceMarkRead(t *testing.T) {
	repo := &mockNotificationRepo{notifications: map[string]models.Notification{
		"n1": {ID: "n1", RecipientID: "ta-1"},
	}}
	users := &mockTAReader{users: map[string]models.User{"ta-1": activeTA("ta-1", "CS")}}
	svc := NewNotificationService(repo, users, zap.NewNop())

	require.NoError(t, svc.MarkRead(context.Background(), "n1", "ta-1"))
	assert.Contains(t, repo.read, "n1")

	err := svc.MarkRead(context.Background(), "n1", "ta-2")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestNotificationServiceCountUnread(t *testing.T) {
	repo := &mockNotificationRepo{notifications: map[string]models.Notification{
		"n1": {ID: "n1", RecipientID: "ta-1"},
		"n2": {ID: "n2", RecipientID: "ta-1", IsRead: true},
	}}
	users := &mockTAReader{users: map[string]models.User{"ta-1": activeTA("ta-1", "CS")}}
	svc := NewNotificationService(repo, users, zap.NewNop())

	count, err := svc.CountUnread(context.Background(), "ta-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
