package quickactions

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spark-playbook/playbook/internal/shared"
)

// Store is the persistence surface of Service.
type Store interface {
	Recent(ctx context.Context, limit int) ([]Action, error)
	Between(ctx context.Context, a, b uuid.UUID, limit int) ([]Action, error)
	ForUser(ctx context.Context, userID uuid.UUID, limit int) ([]Action, error)
	Insert(ctx context.Context, in NewAction) (uuid.UUID, error)
	UpdateStatus(ctx context.Context, id, recipientID uuid.UUID, status shared.ActionStatus, at time.Time) error
}

// FeedLimit caps every quick action listing.
const FeedLimit = 10

// Service applies input rules before writing.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService constructs a Service.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// Recent lists the newest actions.
func (s *Service) Recent(ctx context.Context) ([]Action, error) {
	return s.store.Recent(ctx, FeedLimit)
}

// Between lists actions exchanged by a and b.
func (s *Service) Between(ctx context.Context, a, b uuid.UUID) ([]Action, error) {
	return s.store.Between(ctx, a, b, FeedLimit)
}

// ForUser lists actions to or from userID.
func (s *Service) ForUser(ctx context.Context, userID uuid.UUID) ([]Action, error) {
	return s.store.ForUser(ctx, userID, FeedLimit)
}

// Send trims content and stores the action.
func (s *Service) Send(ctx context.Context, in NewAction) (uuid.UUID, error) {
	in.Content = strings.TrimSpace(in.Content)
	if in.Content == "" {
		return uuid.Nil, ErrEmptyContent
	}
	return s.store.Insert(ctx, in)
}

// SetStatus updates an action addressed to recipientID.
func (s *Service) SetStatus(ctx context.Context, id, recipientID uuid.UUID, status shared.ActionStatus) error {
	if !status.Valid() {
		return ErrInvalidStatus
	}
	return s.store.UpdateStatus(ctx, id, recipientID, status, s.now().UTC())
}
