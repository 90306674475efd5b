// Package focus stores the focus items set for a manager and the
// manager's responses to them.
package focus

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

// ErrEmptyResponse rejects a blank response.
var ErrEmptyResponse = errors.New("response content is required")

// Item is one focus item.
type Item struct {
	ID           uuid.UUID
	TargetUserID uuid.UUID
	Title        string
	Description  string
	DisplayOrder int
	SetBy        *profiles.Person
	Responses    []Response
}

// Response is a note added against a focus item.
type Response struct {
	ID        uuid.UUID
	ItemID    uuid.UUID
	Content   string
	CreatedAt time.Time
	User      profiles.Person
}

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
}

// Repository persists focus items in PostgreSQL.
type Repository struct {
	db dbtx
}

// NewRepository constructs a repository.
func NewRepository(db dbtx) *Repository {
	return &Repository{db: db}
}

// Active lists userID's active focus items in display order with responses.
func (r *Repository) Active(ctx context.Context, userID uuid.UUID) ([]Item, error) {
	rows, err := r.db.Query(ctx, `SELECT f.id, f.target_user_id, f.title, coalesce(f.description, ''), f.display_order,
	f.set_by_user_id, coalesce(s.full_name, ''), coalesce(s.email, '')
FROM focus_items f
LEFT JOIN profiles s ON s.user_id = f.set_by_user_id
WHERE f.target_user_id = $1 AND f.is_active
ORDER BY f.display_order`, userID)
	if err != nil {
		return nil, fmt.Errorf("select focus items: %w", err)
	}
	var (
		out   []Item
		ids   []uuid.UUID
		index = map[uuid.UUID]int{}
	)
	for rows.Next() {
		var (
			it      Item
			setByID *uuid.UUID
			setBy   profiles.Person
		)
		if err := rows.Scan(&it.ID, &it.TargetUserID, &it.Title, &it.Description, &it.DisplayOrder,
			&setByID, &setBy.FullName, &setBy.Email); err != nil {
			rows.Close()
			return nil, err
		}
		if setByID != nil {
			setBy.UserID = *setByID
			it.SetBy = &setBy
		}
		index[it.ID] = len(out)
		ids = append(ids, it.ID)
		out = append(out, it)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return out, nil
	}

	resp, err := r.db.Query(ctx, `SELECT fr.id, fr.focus_item_id, fr.content, fr.created_at, fr.user_id, coalesce(p.full_name, ''), coalesce(p.email, '')
FROM focus_item_responses fr
LEFT JOIN profiles p ON p.user_id = fr.user_id
WHERE fr.focus_item_id = ANY($1)
ORDER BY fr.created_at`, ids)
	if err != nil {
		return nil, fmt.Errorf("select focus responses: %w", err)
	}
	defer resp.Close()
	for resp.Next() {
		var fr Response
		if err := resp.Scan(&fr.ID, &fr.ItemID, &fr.Content, &fr.CreatedAt, &fr.User.UserID, &fr.User.FullName, &fr.User.Email); err != nil {
			return nil, err
		}
		if i, ok := index[fr.ItemID]; ok {
			out[i].Responses = append(out[i].Responses, fr)
		}
	}
	return out, resp.Err()
}

// Respond records userID's response on itemID.
func (r *Repository) Respond(ctx context.Context, itemID, userID uuid.UUID, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return ErrEmptyResponse
	}
	_, err := r.db.Exec(ctx, `INSERT INTO focus_item_responses (id, focus_item_id, user_id, content) VALUES ($1, $2, $3, $4)`,
		uuid.New(), itemID, userID, content)
	if err != nil {
		return fmt.Errorf("insert focus response: %w", err)
	}
	return nil
}
