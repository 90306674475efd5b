package quickactions

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spark-playbook/playbook/internal/shared"
)

type stubStore struct {
	inserted []NewAction
	status   shared.ActionStatus
	limit    int
}

func (s *stubStore) Recent(_ context.Context, limit int) ([]Action, error) {
	s.limit = limit
	return nil, nil
}
func (s *stubStore) Between(_ context.Context, _, _ uuid.UUID, limit int) ([]Action, error) {
	s.limit = limit
	return nil, nil
}
func (s *stubStore) ForUser(_ context.Context, _ uuid.UUID, limit int) ([]Action, error) {
	s.limit = limit
	return nil, nil
}
func (s *stubStore) Insert(_ context.Context, in NewAction) (uuid.UUID, error) {
	s.inserted = append(s.inserted, in)
	return uuid.New(), nil
}
func (s *stubStore) UpdateStatus(_ context.Context, _, _ uuid.UUID, status shared.ActionStatus, _ time.Time) error {
	s.status = status
	return nil
}

func TestSendTrimsAndRejectsBlank(t *testing.T) {
	store := &stubStore{}
	svc := NewService(store)

	_, err := svc.Send(context.Background(), NewAction{Content: "   \n"})
	require.ErrorIs(t, err, ErrEmptyContent)
	assert.Empty(t, store.inserted)

	_, err = svc.Send(context.Background(), NewAction{Content: "  call the bank  "})
	require.NoError(t, err)
	require.Len(t, store.inserted, 1)
	assert.Equal(t, "call the bank", store.inserted[0].Content)
}

func TestSetStatusValidates(t *testing.T) {
	store := &stubStore{}
	svc := NewService(store)
	require.ErrorIs(t, svc.SetStatus(context.Background(), uuid.New(), uuid.New(), "archived"), ErrInvalidStatus)
	require.NoError(t, svc.SetStatus(context.Background(), uuid.New(), uuid.New(), shared.ActionSeen))
	assert.Equal(t, shared.ActionSeen, store.status)
}

func TestListingsUseFeedLimit(t *testing.T) {
	store := &stubStore{}
	svc := NewService(store)
	_, _ = svc.ForUser(context.Background(), uuid.New())
	assert.Equal(t, 10, store.limit)
}

func TestSentBy(t *testing.T) {
	me := uuid.New()
	a := Action{FromUserID: &me}
	assert.True(t, a.SentBy(me))
	assert.False(t, a.SentBy(uuid.New()))
	assert.False(t, Action{}.SentBy(me))
}
