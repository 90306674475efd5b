// Package quickactions holds the short asks passed between principal, EA
// and managers.
package quickactions

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/spark-playbook/playbook/internal/profiles"
	"github.com/spark-playbook/playbook/internal/shared"
)

var (
	// ErrEmptyContent rejects a whitespace-only action.
	ErrEmptyContent = errors.New("quick action content is required")
	// ErrNotFound means the action does not exist or is not addressed to the caller.
	ErrNotFound = errors.New("quick action not found")
	// ErrInvalidStatus rejects unknown status values.
	ErrInvalidStatus = errors.New("invalid quick action status")
)

// Action is one quick action.
type Action struct {
	ID          uuid.UUID
	FromUserID  *uuid.UUID
	ToUserID    uuid.UUID
	Content     string
	Status      shared.ActionStatus
	Priority    *shared.Priority
	SeenAt      *time.Time
	CompletedAt *time.Time
	CreatedAt   time.Time
	From        *profiles.Person
	To          profiles.Person
}

// SentBy reports whether userID authored the action.
func (a Action) SentBy(userID uuid.UUID) bool {
	return a.FromUserID != nil && *a.FromUserID == userID
}

// NewAction is the input to Send.
type NewAction struct {
	FromUserID uuid.UUID
	ToUserID   uuid.UUID
	Content    string
	Priority   *shared.Priority
}
