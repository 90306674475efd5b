// Package provision creates a ready-to-use account in one call: a confirmed
// identity, its profile and one role assignment.
package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/spark-playbook/playbook/internal/identity"
	"github.com/spark-playbook/playbook/internal/profiles"
	"github.com/spark-playbook/playbook/internal/roles"
)

// Identities creates and removes identities. Satisfied by *identity.Provider.
type Identities interface {
	CreateIdentity(ctx context.Context, email, password string, confirmed bool) (identity.Identity, error)
	DeleteIdentity(ctx context.Context, id uuid.UUID) error
}

// Records writes the identity's dependent rows.
type Records interface {
	CreateProfile(ctx context.Context, in profiles.NewProfile) (profiles.Profile, error)
	AssignRole(ctx context.Context, userID uuid.UUID, role roles.Role) error
}

// TxRunner runs fn against Records bound to one transaction.
type TxRunner func(ctx context.Context, fn func(context.Context, Records) error) error

// ProfilesTx adapts a profiles repository to TxRunner.
func ProfilesTx(repo *profiles.Repository) TxRunner {
	return func(ctx context.Context, fn func(context.Context, Records) error) error {
		return repo.WithTx(ctx, func(ctx context.Context, tx *profiles.Repository) error {
			return fn(ctx, tx)
		})
	}
}

// Input is the provisioning request.
type Input struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	FullName string `json:"full_name" validate:"required"`
	Role     string `json:"role" validate:"required"`
}

// Service provisions accounts.
type Service struct {
	identities Identities
	tx         TxRunner
	logger     *slog.Logger
	validate   *validator.Validate
}

// NewService constructs a Service.
func NewService(identities Identities, tx TxRunner, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{identities: identities, tx: tx, logger: logger, validate: validator.New()}
}

// Provision creates the identity, then writes profile and role in one
// transaction. When that transaction fails the identity is deleted again.
func (s *Service) Provision(ctx context.Context, in Input) (uuid.UUID, error) {
	in.Email = strings.TrimSpace(in.Email)
	in.FullName = strings.TrimSpace(in.FullName)
	if err := s.validate.Struct(in); err != nil {
		return uuid.Nil, validationError(err)
	}
	role, err := roles.Parse(in.Role)
	if err != nil {
		return uuid.Nil, err
	}

	id, err := s.identities.CreateIdentity(ctx, in.Email, in.Password, true)
	if err != nil {
		return uuid.Nil, err
	}

	err = s.tx(ctx, func(ctx context.Context, rec Records) error {
		if _, err := rec.CreateProfile(ctx, profiles.NewProfile{UserID: id.ID, Email: id.Email, FullName: in.FullName}); err != nil {
			return err
		}
		return rec.AssignRole(ctx, id.ID, role)
	})
	if err != nil {
		if delErr := s.identities.DeleteIdentity(context.WithoutCancel(ctx), id.ID); delErr != nil {
			s.logger.Error("roll back provisioned identity",
				slog.String("identity_id", id.ID.String()), slog.Any("error", delErr))
			return uuid.Nil, errors.Join(err, delErr)
		}
		return uuid.Nil, err
	}
	s.logger.Info("account provisioned", slog.String("identity_id", id.ID.String()), slog.String("role", string(role)))
	return id.ID, nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	if fe.Field() == "FullName" {
		field = "full_name"
	}
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s is required", field)
	case "email":
		return fmt.Errorf("%s must be a valid email address", field)
	case "min":
		return fmt.Errorf("%s must be at least %s characters", field, fe.Param())
	default:
		return fmt.Errorf("%s is invalid", field)
	}
}
