package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Provider implements password authentication over a Store and Tokens.
type Provider struct {
	store  Store
	tokens *Tokens
	mailer Mailer
	logger *slog.Logger
	now    func() time.Time
	cost   int
}

// NewProvider constructs a Provider.
func NewProvider(store Store, tokens *Tokens, mailer Mailer, logger *slog.Logger) *Provider {
	return &Provider{
		store:  store,
		tokens: tokens,
		mailer: mailer,
		logger: logger,
		now:    time.Now,
		cost:   bcrypt.DefaultCost,
	}
}

// SignInWithPassword exchanges credentials for a session.
func (p *Provider) SignInWithPassword(ctx context.Context, email, password string) (Session, error) {
	rec, err := p.store.ByEmail(ctx, email)
	if err != nil {
		return Session{}, err
	}
	if err := bcrypt.CompareHashAndPassword(rec.PasswordHash, []byte(password)); err != nil {
		return Session{}, ErrInvalidCredentials
	}
	if !rec.Confirmed() {
		return Session{}, ErrEmailNotConfirmed
	}
	return p.tokens.Issue(ctx, rec.Identity)
}

// SignUp registers an unconfirmed identity and mails its confirmation link.
// A mail failure is logged; the identity stays registered.
func (p *Provider) SignUp(ctx context.Context, email, password string) (Identity, error) {
	token, err := randomToken()
	if err != nil {
		return Identity{}, err
	}
	id, err := p.create(ctx, email, password, token, time.Time{})
	if err != nil {
		return Identity{}, err
	}
	if p.mailer != nil {
		if err := p.mailer.SendConfirmation(ctx, id.Email, token); err != nil {
			p.logger.Error("send confirmation", slog.String("identity_id", id.ID.String()), slog.Any("error", err))
		}
	}
	return id, nil
}

// CreateIdentity registers an identity directly, bypassing confirmation when confirmed is set.
func (p *Provider) CreateIdentity(ctx context.Context, email, password string, confirmed bool) (Identity, error) {
	var at time.Time
	var token string
	if confirmed {
		at = p.now().UTC()
	} else {
		var err error
		if token, err = randomToken(); err != nil {
			return Identity{}, err
		}
	}
	return p.create(ctx, email, password, token, at)
}

// DeleteIdentity removes an identity.
func (p *Provider) DeleteIdentity(ctx context.Context, id uuid.UUID) error {
	return p.store.Delete(ctx, id)
}

// ConfirmEmail verifies the identity owning token.
func (p *Provider) ConfirmEmail(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrInvalidToken
	}
	return p.store.Confirm(ctx, token, p.now().UTC())
}

// Session resolves an access token.
func (p *Provider) Session(ctx context.Context, token string) (Session, error) {
	return p.tokens.Lookup(ctx, token)
}

// SignOut revokes an access token.
func (p *Provider) SignOut(ctx context.Context, token string) error {
	return p.tokens.Revoke(ctx, token)
}

func (p *Provider) create(ctx context.Context, email, password, token string, confirmedAt time.Time) (Identity, error) {
	if email == "" || password == "" {
		return Identity{}, errors.New("email and password are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return Identity{}, fmt.Errorf("identity: hash password: %w", err)
	}
	id, err := uuid.NewRandom()
	if err != nil {
		return Identity{}, err
	}
	return p.store.Create(ctx, record{
		Identity:          Identity{ID: id, Email: email, ConfirmedAt: confirmedAt},
		PasswordHash:      hash,
		ConfirmationToken: token,
	})
}
