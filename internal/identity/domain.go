// Package identity is the self-hosted identity provider: password
// identities in PostgreSQL, access tokens in Redis, and a per-browser
// client that reports session changes to its listeners.
package identity

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/spark-playbook/playbook/internal/shared"
)

var (
	// ErrInvalidCredentials is returned for an unknown email or a wrong password.
	ErrInvalidCredentials = shared.ErrInvalidCredentials
	// ErrEmailNotConfirmed is returned when signing in before the confirmation link was used.
	ErrEmailNotConfirmed = shared.ErrEmailNotConfirmed
	// ErrAlreadyRegistered is returned when an identity with the email exists.
	ErrAlreadyRegistered = shared.ErrAlreadyRegistered
	// ErrNoSession means the token is unknown, revoked or expired.
	ErrNoSession = errors.New("identity: no session")
	// ErrInvalidToken means a confirmation token did not match any identity.
	ErrInvalidToken = errors.New("identity: invalid confirmation token")
)

// Identity is an authenticated principal known to the provider.
type Identity struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	ConfirmedAt time.Time `json:"confirmed_at,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Confirmed reports whether the email was verified.
func (i Identity) Confirmed() bool {
	return !i.ConfirmedAt.IsZero()
}

// Session binds an access token to its identity.
type Session struct {
	AccessToken string    `json:"access_token"`
	Identity    Identity  `json:"identity"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Event names a session change reported to client listeners.
type Event string

const (
	EventSignedIn  Event = "SIGNED_IN"
	EventSignedOut Event = "SIGNED_OUT"
)

// Listener receives session changes. session is nil for EventSignedOut.
type Listener func(event Event, session *Session)

// Subscription detaches a listener.
type Subscription interface {
	Unsubscribe()
}

// SignUpInput carries the data collected by the sign-up form.
type SignUpInput struct {
	Email    string
	Password string
	FullName string
}

// record is the stored form of an identity.
type record struct {
	Identity
	PasswordHash      []byte
	ConfirmationToken string
}
