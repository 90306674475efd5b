// Package notes stores direction notes addressed to a user and their replies.
package notes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spark-playbook/playbook/internal/profiles"
)

var (
	// ErrNotFound means the note does not exist or is not addressed to the caller.
	ErrNotFound = errors.New("note not found")
	// ErrEmptyReply rejects a blank reply.
	ErrEmptyReply = errors.New("reply content is required")
)

// Note is a message targeted at one user.
type Note struct {
	ID             uuid.UUID
	TargetUserID   uuid.UUID
	Content        string
	IsAcknowledged bool
	AcknowledgedAt *time.Time
	CreatedAt      time.Time
	Author         *profiles.Person
	Replies        []Reply
}

// Reply is a response on a note.
type Reply struct {
	ID        uuid.UUID
	NoteID    uuid.UUID
	Content   string
	CreatedAt time.Time
	User      profiles.Person
}

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
}

// Repository persists notes in PostgreSQL.
type Repository struct {
	db  dbtx
	now func() time.Time
}

// NewRepository constructs a repository.
func NewRepository(db dbtx) *Repository {
	return &Repository{db: db, now: time.Now}
}

// ForTarget lists the newest limit notes for userID with their replies.
func (r *Repository) ForTarget(ctx context.Context, userID uuid.UUID, limit int) ([]Note, error) {
	rows, err := r.db.Query(ctx, `SELECT n.id, n.target_user_id, n.content, n.is_acknowledged, n.acknowledged_at, n.created_at,
	n.author_id, coalesce(a.full_name, ''), coalesce(a.email, '')
FROM notes n
LEFT JOIN profiles a ON a.user_id = n.author_id
WHERE n.target_user_id = $1
ORDER BY n.created_at DESC
LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("select notes: %w", err)
	}
	var (
		out   []Note
		ids   []uuid.UUID
		index = map[uuid.UUID]int{}
	)
	for rows.Next() {
		var (
			n        Note
			authorID *uuid.UUID
			author   profiles.Person
		)
		if err := rows.Scan(&n.ID, &n.TargetUserID, &n.Content, &n.IsAcknowledged, &n.AcknowledgedAt, &n.CreatedAt,
			&authorID, &author.FullName, &author.Email); err != nil {
			rows.Close()
			return nil, err
		}
		if authorID != nil {
			author.UserID = *authorID
			n.Author = &author
		}
		index[n.ID] = len(out)
		ids = append(ids, n.ID)
		out = append(out, n)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return out, nil
	}

	replies, err := r.db.Query(ctx, `SELECT nr.id, nr.note_id, nr.content, nr.created_at, nr.user_id, coalesce(p.full_name, ''), coalesce(p.email, '')
FROM note_replies nr
LEFT JOIN profiles p ON p.user_id = nr.user_id
WHERE nr.note_id = ANY($1)
ORDER BY nr.created_at`, ids)
	if err != nil {
		return nil, fmt.Errorf("select note replies: %w", err)
	}
	defer replies.Close()
	for replies.Next() {
		var rp Reply
		if err := replies.Scan(&rp.ID, &rp.NoteID, &rp.Content, &rp.CreatedAt, &rp.User.UserID, &rp.User.FullName, &rp.User.Email); err != nil {
			return nil, err
		}
		if i, ok := index[rp.NoteID]; ok {
			out[i].Replies = append(out[i].Replies, rp)
		}
	}
	return out, replies.Err()
}

// Acknowledge marks a note addressed to userID as read.
func (r *Repository) Acknowledge(ctx context.Context, noteID, userID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `UPDATE notes SET is_acknowledged = true, acknowledged_at = $3
WHERE id = $1 AND target_user_id = $2`, noteID, userID, r.now().UTC())
	if err != nil {
		return fmt.Errorf("acknowledge note: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Reply adds userID's reply to noteID.
func (r *Repository) Reply(ctx context.Context, noteID, userID uuid.UUID, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return ErrEmptyReply
	}
	_, err := r.db.Exec(ctx, `INSERT INTO note_replies (id, note_id, user_id, content) VALUES ($1, $2, $3, $4)`,
		uuid.New(), noteID, userID, content)
	if err != nil {
		return fmt.Errorf("insert note reply: %w", err)
	}
	return nil
}
