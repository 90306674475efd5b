package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/spark-playbook/playbook/internal/platform/db"
)

// Store persists identities.
type Store interface {
	Create(ctx context.Context, rec record) (Identity, error)
	ByEmail(ctx context.Context, email string) (record, error)
	Confirm(ctx context.Context, token string, at time.Time) (Identity, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository is the PostgreSQL Store.
type Repository struct {
	db dbtx
}

// NewRepository constructs a Repository over a pool or transaction.
func NewRepository(db dbtx) *Repository {
	return &Repository{db: db}
}

const identityColumns = `id, email, password_hash, email_confirmed_at, coalesce(confirmation_token, ''), created_at`

func scanRecord(row pgx.Row) (record, error) {
	var (
		rec       record
		confirmed pgtype.Timestamptz
	)
	if err := row.Scan(&rec.ID, &rec.Email, &rec.PasswordHash, &confirmed, &rec.ConfirmationToken, &rec.CreatedAt); err != nil {
		return record{}, err
	}
	if confirmed.Valid {
		rec.ConfirmedAt = confirmed.Time
	}
	return rec, nil
}

// Create inserts a new identity. A duplicate email maps to ErrAlreadyRegistered.
func (r *Repository) Create(ctx context.Context, rec record) (Identity, error) {
	var confirmed pgtype.Timestamptz
	if !rec.ConfirmedAt.IsZero() {
		confirmed = pgtype.Timestamptz{Time: rec.ConfirmedAt, Valid: true}
	}
	var token pgtype.Text
	if rec.ConfirmationToken != "" {
		token = pgtype.Text{String: rec.ConfirmationToken, Valid: true}
	}
	row := r.db.QueryRow(ctx, `INSERT INTO identities (id, email, password_hash, email_confirmed_at, confirmation_token)
VALUES ($1, $2, $3, $4, $5)
RETURNING `+identityColumns, rec.ID, normalizeEmail(rec.Email), rec.PasswordHash, confirmed, token)
	out, err := scanRecord(row)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Identity{}, ErrAlreadyRegistered
		}
		return Identity{}, fmt.Errorf("insert identity: %w", err)
	}
	return out.Identity, nil
}

// ByEmail loads the identity for email. Missing rows map to ErrInvalidCredentials.
func (r *Repository) ByEmail(ctx context.Context, email string) (record, error) {
	row := r.db.QueryRow(ctx, `SELECT `+identityColumns+` FROM identities WHERE email = $1`, normalizeEmail(email))
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return record{}, ErrInvalidCredentials
		}
		return record{}, fmt.Errorf("select identity: %w", err)
	}
	return rec, nil
}

// Confirm marks the identity owning token as verified and burns the token.
func (r *Repository) Confirm(ctx context.Context, token string, at time.Time) (Identity, error) {
	row := r.db.QueryRow(ctx, `UPDATE identities
SET email_confirmed_at = $2, confirmation_token = NULL
WHERE confirmation_token = $1
RETURNING `+identityColumns, token, at)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Identity{}, ErrInvalidToken
		}
		return Identity{}, fmt.Errorf("confirm identity: %w", err)
	}
	return rec.Identity, nil
}

// Delete removes an identity. Deleting an unknown ID is not an error.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM identities WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
