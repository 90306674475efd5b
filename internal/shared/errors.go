package shared

import (
	"errors"
	"strings"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrEmailNotConfirmed indicates the identity exists but its email was never verified.
	ErrEmailNotConfirmed = errors.New("email not confirmed")
	// ErrAlreadyRegistered indicates sign-up with an email that already has an identity.
	ErrAlreadyRegistered = errors.New("user already registered")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)

// AuthErrorKind groups failures surfaced by the sign-in and sign-up flows.
type AuthErrorKind string

const (
	AuthErrInvalidCredentials AuthErrorKind = "invalid-credentials"
	AuthErrUnverifiedIdentity AuthErrorKind = "unverified-identity"
	AuthErrAlreadyRegistered  AuthErrorKind = "already-registered"
	AuthErrProvider           AuthErrorKind = "generic-provider-error"
	AuthErrBackendFetch       AuthErrorKind = "backend-fetch-error"
)

// BackendFetchError wraps a failed profile, role or membership read.
type BackendFetchError struct {
	Resource string
	Err      error
}

func (e *BackendFetchError) Error() string {
	return "fetch " + e.Resource + ": " + e.Err.Error()
}

func (e *BackendFetchError) Unwrap() error { return e.Err }

// ClassifyAuthError maps err onto the auth error taxonomy. A nil error has no kind.
func ClassifyAuthError(err error) AuthErrorKind {
	var fetchErr *BackendFetchError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCredentials):
		return AuthErrInvalidCredentials
	case errors.Is(err, ErrEmailNotConfirmed):
		return AuthErrUnverifiedIdentity
	case errors.Is(err, ErrAlreadyRegistered):
		return AuthErrAlreadyRegistered
	case errors.As(err, &fetchErr):
		return AuthErrBackendFetch
	default:
		return AuthErrProvider
	}
}

// UserSafeMessage returns the text shown to the user for err.
func UserSafeMessage(err error) string {
	switch ClassifyAuthError(err) {
	case "":
		return ""
	case AuthErrInvalidCredentials:
		return "Invalid email or password"
	case AuthErrUnverifiedIdentity:
		return "Please verify your email before signing in"
	case AuthErrAlreadyRegistered:
		return "An account with this email already exists. Try signing in instead."
	case AuthErrBackendFetch:
		return "Something went wrong loading your account"
	}
	msg := strings.TrimSpace(err.Error())
	if msg == "" {
		return "Something went wrong"
	}
	return msg
}
