// Package tasks stores tasks delegated to an executive assistant.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spark-playbook/playbook/internal/shared"
)

var (
	// ErrNotFound means the task does not exist or is not assigned to the caller.
	ErrNotFound = errors.New("task not found")
	// ErrInvalidStatus rejects unknown status values.
	ErrInvalidStatus = errors.New("invalid task status")
)

// Task is one delegated task.
type Task struct {
	ID          uuid.UUID
	Description string
	Status      shared.ActionStatus
	DueDate     *time.Time
	CreatedAt   time.Time
}

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
}

// Repository persists delegated tasks in PostgreSQL.
type Repository struct {
	db  dbtx
	now func() time.Time
}

// NewRepository constructs a repository.
func NewRepository(db dbtx) *Repository {
	return &Repository{db: db, now: time.Now}
}

// Open lists tasks assigned to assigneeID that are not done, newest first.
func (r *Repository) Open(ctx context.Context, assigneeID uuid.UUID) ([]Task, error) {
	rows, err := r.db.Query(ctx, `SELECT id, description, status, due_date, created_at
FROM delegated_tasks
WHERE assigned_to_id = $1 AND status <> 'done'
ORDER BY created_at DESC`, assigneeID)
	if err != nil {
		return nil, fmt.Errorf("select delegated tasks: %w", err)
	}
	defer rows.Close()
	var out []Task
	for rows.Next() {
		var t Task
		if err := rows.Scan(&t.ID, &t.Description, &t.Status, &t.DueDate, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// SetStatus updates a task assigned to assigneeID. done stamps completed_at.
func (r *Repository) SetStatus(ctx context.Context, id, assigneeID uuid.UUID, status shared.ActionStatus) error {
	if !status.Valid() {
		return ErrInvalidStatus
	}
	at := r.now().UTC()
	tag, err := r.db.Exec(ctx, `UPDATE delegated_tasks SET
	status = $3::action_status,
	completed_at = CASE WHEN $3 = 'done' THEN $4 ELSE completed_at END,
	updated_at = $4
WHERE id = $1 AND assigned_to_id = $2`, id, assigneeID, string(status), at)
	if err != nil {
		return fmt.Errorf("update delegated task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
