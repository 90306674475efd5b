package app

import (
	"context"
	"fmt"

	"github.com/spark-playbook/playbook/internal/authctx"
	"github.com/spark-playbook/playbook/internal/shared"
)

// TokenMover re-keys the identity token of a browser session.
type TokenMover func(ctx context.Context, fromSessionID, toSessionID string) error

// SessionRotator renews browser session IDs on sign-in and sign-out. The
// identity token moves to the new ID and the auth context of the old ID is
// disposed; the next request builds a fresh one from the moved token.
type SessionRotator struct {
	Sessions  *shared.SessionManager
	Registry  *authctx.Registry
	MoveToken TokenMover
}

// RotateSession implements auth.SessionRotator.
func (s SessionRotator) RotateSession(ctx context.Context, sess *shared.Session) error {
	prev := s.Sessions.Renew(sess)
	if s.MoveToken != nil {
		if err := s.MoveToken(ctx, prev, sess.ID); err != nil {
			return fmt.Errorf("move identity token: %w", err)
		}
	}
	if s.Registry != nil {
		s.Registry.Drop(prev)
	}
	return nil
}
