// Package workitems reads work items for the dashboards.
package workitems

import (
	"time"

	"github.com/google/uuid"

	"github.com/spark-playbook/playbook/internal/profiles"
	"github.com/spark-playbook/playbook/internal/shared"
)

// Status is the lifecycle state of a work item.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusBlocked    Status = "blocked"
	StatusResolved   Status = "resolved"
)

// Label renders the status for display.
func (s Status) Label() string {
	switch s {
	case StatusOpen:
		return "Open"
	case StatusInProgress:
		return "In Progress"
	case StatusBlocked:
		return "Blocked"
	case StatusResolved:
		return "Resolved"
	}
	return string(s)
}

// Category classifies a work item.
type Category string

const (
	CategoryWin          Category = "win"
	CategoryPainPoint    Category = "pain_point"
	CategoryDiscussion   Category = "discussion"
	CategoryCriticalPath Category = "critical_path"
)

// Label renders the category for display.
func (c Category) Label() string {
	switch c {
	case CategoryWin:
		return "Win"
	case CategoryPainPoint:
		return "Pain Point"
	case CategoryDiscussion:
		return "Discussion"
	case CategoryCriticalPath:
		return "Critical Path"
	}
	return string(c)
}

// Item is a tracked piece of work owned by one user.
type Item struct {
	ID            uuid.UUID
	OwnerID       uuid.UUID
	Title         string
	Description   string
	Category      Category
	Priority      shared.Priority
	Status        Status
	DueDate       *time.Time
	BlockedReason string
	IsEscalated   bool
	CreatedAt     time.Time
	Owner         profiles.Person
	Business      *profiles.Business
}

// Pulse summarizes one business's open work.
type Pulse struct {
	Business profiles.Business
	Open     int
	Critical int
}
