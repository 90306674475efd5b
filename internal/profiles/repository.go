package profiles

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spark-playbook/playbook/internal/platform/db"
	"github.com/spark-playbook/playbook/internal/roles"
)

// ErrDuplicateProfile is returned when an identity already has a profile.
var ErrDuplicateProfile = errors.New("profiles: profile already exists")

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool, pool: pool}
}

// WithTx runs fn with a repository bound to a single transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, *Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &Repository{db: tx, pool: r.pool})
	})
}

// Profile returns the profile for userID, or nil when none exists yet.
func (r *Repository) Profile(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	var p Profile
	err := r.db.QueryRow(ctx, `SELECT id, user_id, email, full_name, coalesce(avatar_url, ''), created_at, updated_at
FROM profiles WHERE user_id = $1`, userID).
		Scan(&p.ID, &p.UserID, &p.Email, &p.FullName, &p.AvatarURL, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select profile: %w", err)
	}
	return &p, nil
}

// CreateProfile inserts the profile row for a new identity.
func (r *Repository) CreateProfile(ctx context.Context, in NewProfile) (Profile, error) {
	var p Profile
	err := r.db.QueryRow(ctx, `INSERT INTO profiles (id, user_id, email, full_name)
VALUES ($1, $2, $3, $4)
RETURNING id, user_id, email, full_name, coalesce(avatar_url, ''), created_at, updated_at`,
		uuid.New(), in.UserID, in.Email, in.FullName).
		Scan(&p.ID, &p.UserID, &p.Email, &p.FullName, &p.AvatarURL, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Profile{}, ErrDuplicateProfile
		}
		return Profile{}, fmt.Errorf("insert profile: %w", err)
	}
	return p, nil
}

// Roles returns the role tags assigned to userID.
func (r *Repository) Roles(ctx context.Context, userID uuid.UUID) (roles.Set, error) {
	rows, err := r.db.Query(ctx, `SELECT role FROM user_roles WHERE user_id = $1`, userID)
	if err != nil {
		return roles.Set{}, fmt.Errorf("select roles: %w", err)
	}
	defer rows.Close()
	var tags []roles.Role
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return roles.Set{}, err
		}
		tags = append(tags, roles.Role(tag))
	}
	if err := rows.Err(); err != nil {
		return roles.Set{}, err
	}
	return roles.NewSet(tags...), nil
}

// AssignRole grants role to userID. Granting an existing role is a no-op.
func (r *Repository) AssignRole(ctx context.Context, userID uuid.UUID, role roles.Role) error {
	_, err := r.db.Exec(ctx, `INSERT INTO user_roles (id, user_id, role) VALUES ($1, $2, $3)
ON CONFLICT (user_id, role) DO NOTHING`, uuid.New(), userID, string(role))
	if err != nil {
		return fmt.Errorf("insert role: %w", err)
	}
	return nil
}

// Memberships returns userID's business memberships with the business joined in.
func (r *Repository) Memberships(ctx context.Context, userID uuid.UUID) ([]Membership, error) {
	rows, err := r.db.Query(ctx, `SELECT m.id, m.user_id, m.business_id, m.is_primary, m.can_view_reports,
	b.id, b.name, b.slug, coalesce(b.description, ''), b.color
FROM business_memberships m
JOIN businesses b ON b.id = m.business_id
WHERE m.user_id = $1
ORDER BY m.is_primary DESC, b.name`, userID)
	if err != nil {
		return nil, fmt.Errorf("select memberships: %w", err)
	}
	defer rows.Close()
	var out []Membership
	for rows.Next() {
		var m Membership
		if err := rows.Scan(&m.ID, &m.UserID, &m.BusinessID, &m.IsPrimary, &m.CanViewReports,
			&m.Business.ID, &m.Business.Name, &m.Business.Slug, &m.Business.Description, &m.Business.Color); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// AddMembership links userID to businessID.
func (r *Repository) AddMembership(ctx context.Context, userID, businessID uuid.UUID, primary bool) error {
	_, err := r.db.Exec(ctx, `INSERT INTO business_memberships (id, user_id, business_id, is_primary)
VALUES ($1, $2, $3, $4)
ON CONFLICT (user_id, business_id) DO UPDATE SET is_primary = EXCLUDED.is_primary`, uuid.New(), userID, businessID, primary)
	if err != nil {
		return fmt.Errorf("insert membership: %w", err)
	}
	return nil
}

// ListBusinesses returns every business ordered by name.
func (r *Repository) ListBusinesses(ctx context.Context) ([]Business, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, slug, coalesce(description, ''), color FROM businesses ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("select businesses: %w", err)
	}
	defer rows.Close()
	var out []Business
	for rows.Next() {
		var b Business
		if err := rows.Scan(&b.ID, &b.Name, &b.Slug, &b.Description, &b.Color); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// UpsertBusiness inserts or updates a business keyed by slug.
func (r *Repository) UpsertBusiness(ctx context.Context, b Business) (Business, error) {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	err := r.db.QueryRow(ctx, `INSERT INTO businesses (id, name, slug, description, color)
VALUES ($1, $2, $3, nullif($4, ''), $5)
ON CONFLICT (slug) DO UPDATE SET name = EXCLUDED.name, description = EXCLUDED.description, color = EXCLUDED.color
RETURNING id`, b.ID, b.Name, b.Slug, b.Description, b.Color).Scan(&b.ID)
	if err != nil {
		return Business{}, fmt.Errorf("upsert business: %w", err)
	}
	return b, nil
}

// PrincipalID returns the user holding the principal role. ok is false when
// nobody does.
func (r *Repository) PrincipalID(ctx context.Context) (id uuid.UUID, ok bool, err error) {
	err = r.db.QueryRow(ctx, `SELECT user_id FROM user_roles WHERE role = 'principal' ORDER BY created_at LIMIT 1`).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, false, nil
		}
		return uuid.Nil, false, fmt.Errorf("select principal: %w", err)
	}
	return id, true, nil
}

// ProfileByEmail looks up a profile by its email; nil when missing.
func (r *Repository) ProfileByEmail(ctx context.Context, email string) (*Profile, error) {
	var p Profile
	err := r.db.QueryRow(ctx, `SELECT id, user_id, email, full_name, coalesce(avatar_url, ''), created_at, updated_at
FROM profiles WHERE lower(email) = lower($1)`, email).
		Scan(&p.ID, &p.UserID, &p.Email, &p.FullName, &p.AvatarURL, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select profile by email: %w", err)
	}
	return &p, nil
}
