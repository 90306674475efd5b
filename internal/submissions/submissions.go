// Package submissions reads weekly submissions and submission streaks.
package submissions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/spark-playbook/playbook/internal/profiles"
)

// Submission is a non-draft weekly update.
type Submission struct {
	ID          uuid.UUID
	WeekEnding  time.Time
	SubmittedAt *time.Time
	Author      profiles.Person
	Business    *profiles.Business
}

type dbtx interface {
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository reads submissions from PostgreSQL.
type Repository struct {
	db dbtx
}

// NewRepository constructs a repository.
func NewRepository(db dbtx) *Repository {
	return &Repository{db: db}
}

// TeamFeed lists the newest submitted (non-draft) submissions.
func (r *Repository) TeamFeed(ctx context.Context, limit int) ([]Submission, error) {
	rows, err := r.db.Query(ctx, `SELECT s.id, s.week_ending, s.submitted_at, s.user_id, coalesce(p.full_name, ''), coalesce(p.email, ''),
	b.id, coalesce(b.name, ''), coalesce(b.slug, ''), coalesce(b.color, '')
FROM submissions s
LEFT JOIN profiles p ON p.user_id = s.user_id
LEFT JOIN businesses b ON b.id = s.business_id
WHERE NOT s.is_draft
ORDER BY s.submitted_at DESC NULLS LAST
LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("select team feed: %w", err)
	}
	defer rows.Close()
	var out []Submission
	for rows.Next() {
		var (
			s   Submission
			bid pgtype.UUID
			biz profiles.Business
		)
		if err := rows.Scan(&s.ID, &s.WeekEnding, &s.SubmittedAt, &s.Author.UserID, &s.Author.FullName, &s.Author.Email,
			&bid, &biz.Name, &biz.Slug, &biz.Color); err != nil {
			return nil, err
		}
		if bid.Valid {
			biz.ID = bid.Bytes
			s.Business = &biz
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Streak returns userID's current submission streak, zero when none is recorded.
func (r *Repository) Streak(ctx context.Context, userID uuid.UUID) (int, error) {
	var streak int
	err := r.db.QueryRow(ctx, `SELECT current_streak FROM submission_streaks WHERE user_id = $1`, userID).Scan(&streak)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("select streak: %w", err)
	}
	return streak, nil
}
