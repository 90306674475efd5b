package workitems

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/spark-playbook/playbook/internal/profiles"
)

type querier interface {
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
}

// Repository reads work items from PostgreSQL.
type Repository struct {
	db querier
}

// NewRepository constructs a repository.
func NewRepository(db querier) *Repository {
	return &Repository{db: db}
}

const itemSelect = `SELECT w.id, w.owner_id, w.title, coalesce(w.description, ''), w.category, w.priority, w.status,
	w.due_date, coalesce(w.blocked_reason, ''), w.is_escalated, w.created_at,
	coalesce(p.full_name, ''), coalesce(p.email, ''),
	b.id, coalesce(b.name, ''), coalesce(b.slug, ''), coalesce(b.color, '')
FROM work_items w
LEFT JOIN profiles p ON p.user_id = w.owner_id
LEFT JOIN businesses b ON b.id = w.business_id`

// Critical lists unresolved items that are critical, escalated or blocked, newest first.
func (r *Repository) Critical(ctx context.Context) ([]Item, error) {
	return r.list(ctx, itemSelect+`
WHERE (w.priority = 'critical' OR w.is_escalated OR w.status = 'blocked')
  AND w.status <> 'resolved'
ORDER BY w.created_at DESC`)
}

// ActiveForOwner lists ownerID's unresolved items, highest priority then newest first.
func (r *Repository) ActiveForOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]Item, error) {
	return r.list(ctx, itemSelect+`
WHERE w.owner_id = $1 AND w.status <> 'resolved'
ORDER BY w.priority DESC, w.created_at DESC
LIMIT $2`, ownerID, limit)
}

// Pulse counts open and open-critical items per business in one grouped query.
func (r *Repository) Pulse(ctx context.Context) ([]Pulse, error) {
	rows, err := r.db.Query(ctx, `SELECT b.id, b.name, b.slug, coalesce(b.description, ''), b.color,
	count(w.id) FILTER (WHERE w.status <> 'resolved'),
	count(w.id) FILTER (WHERE w.status <> 'resolved' AND w.priority = 'critical')
FROM businesses b
LEFT JOIN work_items w ON w.business_id = b.id
GROUP BY b.id, b.name, b.slug, b.description, b.color
ORDER BY b.name`)
	if err != nil {
		return nil, fmt.Errorf("portfolio pulse: %w", err)
	}
	defer rows.Close()
	var out []Pulse
	for rows.Next() {
		var p Pulse
		if err := rows.Scan(&p.Business.ID, &p.Business.Name, &p.Business.Slug, &p.Business.Description, &p.Business.Color, &p.Open, &p.Critical); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repository) list(ctx context.Context, sql string, args ...interface{}) ([]Item, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("select work items: %w", err)
	}
	defer rows.Close()
	var out []Item
	for rows.Next() {
		var (
			it         Item
			businessID pgtype.UUID
			biz        profiles.Business
		)
		if err := rows.Scan(&it.ID, &it.OwnerID, &it.Title, &it.Description, &it.Category, &it.Priority, &it.Status,
			&it.DueDate, &it.BlockedReason, &it.IsEscalated, &it.CreatedAt,
			&it.Owner.FullName, &it.Owner.Email,
			&businessID, &biz.Name, &biz.Slug, &biz.Color); err != nil {
			return nil, err
		}
		it.Owner.UserID = it.OwnerID
		if businessID.Valid {
			biz.ID = businessID.Bytes
			it.Business = &biz
		}
		out = append(out, it)
	}
	return out, rows.Err()
}
