package quickactions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/spark-playbook/playbook/internal/profiles"
	"github.com/spark-playbook/playbook/internal/shared"
)

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository persists quick actions in PostgreSQL.
type Repository struct {
	db dbtx
}

// NewRepository constructs a repository.
func NewRepository(db dbtx) *Repository {
	return &Repository{db: db}
}

const actionSelect = `SELECT q.id, q.from_user_id, q.to_user_id, q.content, q.status, q.priority, q.seen_at, q.completed_at, q.created_at,
	coalesce(f.full_name, ''), coalesce(f.email, ''),
	coalesce(t.full_name, ''), coalesce(t.email, '')
FROM quick_actions q
LEFT JOIN profiles f ON f.user_id = q.from_user_id
LEFT JOIN profiles t ON t.user_id = q.to_user_id`

// Recent lists the newest actions visible to the caller.
func (r *Repository) Recent(ctx context.Context, limit int) ([]Action, error) {
	return r.list(ctx, actionSelect+` ORDER BY q.created_at DESC LIMIT $1`, limit)
}

// Between lists the newest actions exchanged in either direction between a and b.
func (r *Repository) Between(ctx context.Context, a, b uuid.UUID, limit int) ([]Action, error) {
	return r.list(ctx, actionSelect+`
WHERE (q.from_user_id = $1 AND q.to_user_id = $2) OR (q.from_user_id = $2 AND q.to_user_id = $1)
ORDER BY q.created_at DESC LIMIT $3`, a, b, limit)
}

// ForUser lists the newest actions sent to or from userID.
func (r *Repository) ForUser(ctx context.Context, userID uuid.UUID, limit int) ([]Action, error) {
	return r.list(ctx, actionSelect+`
WHERE q.to_user_id = $1 OR q.from_user_id = $1
ORDER BY q.created_at DESC LIMIT $2`, userID, limit)
}

// Insert stores a new action with status new.
func (r *Repository) Insert(ctx context.Context, in NewAction) (uuid.UUID, error) {
	id := uuid.New()
	var priority pgtype.Text
	if in.Priority != nil {
		priority = pgtype.Text{String: string(*in.Priority), Valid: true}
	}
	_, err := r.db.Exec(ctx, `INSERT INTO quick_actions (id, from_user_id, to_user_id, content, priority)
VALUES ($1, $2, $3, $4, $5::priority_level)`, id, in.FromUserID, in.ToUserID, in.Content, priority)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert quick action: %w", err)
	}
	return id, nil
}

// UpdateStatus changes the status of an action addressed to recipientID.
// seen stamps seen_at and done stamps completed_at.
func (r *Repository) UpdateStatus(ctx context.Context, id, recipientID uuid.UUID, status shared.ActionStatus, at time.Time) error {
	tag, err := r.db.Exec(ctx, `UPDATE quick_actions SET
	status = $3::action_status,
	seen_at = CASE WHEN $3 = 'seen' THEN $4 ELSE seen_at END,
	completed_at = CASE WHEN $3 = 'done' THEN $4 ELSE completed_at END,
	updated_at = $4
WHERE id = $1 AND to_user_id = $2`, id, recipientID, string(status), at)
	if err != nil {
		return fmt.Errorf("update quick action: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) list(ctx context.Context, sql string, args ...interface{}) ([]Action, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("select quick actions: %w", err)
	}
	defer rows.Close()
	var out []Action
	for rows.Next() {
		var (
			a         Action
			priority  pgtype.Text
			fromName  string
			fromEmail string
		)
		if err := rows.Scan(&a.ID, &a.FromUserID, &a.ToUserID, &a.Content, &a.Status, &priority, &a.SeenAt, &a.CompletedAt, &a.CreatedAt,
			&fromName, &fromEmail, &a.To.FullName, &a.To.Email); err != nil {
			return nil, err
		}
		a.To.UserID = a.ToUserID
		if priority.Valid {
			p := shared.Priority(priority.String)
			a.Priority = &p
		}
		if a.FromUserID != nil {
			a.From = &profiles.Person{UserID: *a.FromUserID, FullName: fromName, Email: fromEmail}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
