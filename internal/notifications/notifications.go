// Package notifications serves the header badge feed: the unread rows of a
// user plus rows inserted while a browser is listening.
package notifications

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Channel is the PostgreSQL NOTIFY channel fed by the insert trigger.
const Channel = "notifications_insert"

// ErrNotFound means the notification does not exist or belongs to someone else.
var ErrNotFound = errors.New("notification not found")

// Notification mirrors one notifications row. The JSON tags match the
// trigger payload produced by row_to_json.
type Notification struct {
	ID        uuid.UUID  `json:"id"`
	UserID    uuid.UUID  `json:"user_id"`
	Type      string     `json:"type"`
	Title     string     `json:"title"`
	Content   string     `json:"content"`
	Link      string     `json:"link"`
	IsRead    bool       `json:"is_read"`
	ReadAt    *time.Time `json:"read_at"`
	CreatedAt time.Time  `json:"created_at"`
}

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
}

// Repository reads and updates notifications in PostgreSQL.
type Repository struct {
	db  dbtx
	now func() time.Time
}

// NewRepository constructs a repository.
func NewRepository(db dbtx) *Repository {
	return &Repository{db: db, now: time.Now}
}

// Unread lists the newest unread notifications of userID.
func (r *Repository) Unread(ctx context.Context, userID uuid.UUID, limit int) ([]Notification, error) {
	rows, err := r.db.Query(ctx, `SELECT id, user_id, type, title, coalesce(content, ''), coalesce(link, ''),
	is_read, read_at, created_at
FROM notifications
WHERE user_id = $1 AND NOT is_read
ORDER BY created_at DESC
LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query unread notifications: %w", err)
	}
	defer rows.Close()
	var out []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Content, &n.Link, &n.IsRead, &n.ReadAt, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkRead flags one notification of userID as read.
func (r *Repository) MarkRead(ctx context.Context, id, userID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `UPDATE notifications SET is_read = true, read_at = $3
WHERE id = $1 AND user_id = $2`, id, userID, r.now())
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
