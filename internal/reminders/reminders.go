// Package reminders reads a user's upcoming reminders.
package reminders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Reminder is a dated prompt for one user.
type Reminder struct {
	ID          uuid.UUID
	Title       string
	Description string
	Type        string
	DueDate     time.Time
}

// Overdue reports whether the reminder's due date has passed at now.
func (r Reminder) Overdue(now time.Time) bool {
	return r.DueDate.Before(now)
}

type querier interface {
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
}

// Repository reads reminders from PostgreSQL.
type Repository struct {
	db querier
}

// NewRepository constructs a repository.
func NewRepository(db querier) *Repository {
	return &Repository{db: db}
}

// Upcoming lists userID's open reminders by due date.
func (r *Repository) Upcoming(ctx context.Context, userID uuid.UUID, limit int) ([]Reminder, error) {
	rows, err := r.db.Query(ctx, `SELECT id, title, coalesce(description, ''), reminder_type, due_date
FROM reminders
WHERE user_id = $1 AND NOT is_completed
ORDER BY due_date
LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("select reminders: %w", err)
	}
	defer rows.Close()
	var out []Reminder
	for rows.Next() {
		var rm Reminder
		if err := rows.Scan(&rm.ID, &rm.Title, &rm.Description, &rm.Type, &rm.DueDate); err != nil {
			return nil, err
		}
		out = append(out, rm)
	}
	return out, rows.Err()
}
