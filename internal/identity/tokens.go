package identity

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Tokens issues and resolves access tokens stored in Redis.
type Tokens struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewTokens constructs a token store with the given lifetime.
func NewTokens(client *redis.Client, ttl time.Duration) *Tokens {
	return &Tokens{client: client, ttl: ttl, now: time.Now}
}

// Issue mints a new access token for id.
func (t *Tokens) Issue(ctx context.Context, id Identity) (Session, error) {
	token, err := randomToken()
	if err != nil {
		return Session{}, err
	}
	sess := Session{AccessToken: token, Identity: id, ExpiresAt: t.now().Add(t.ttl).UTC()}
	data, err := json.Marshal(sess)
	if err != nil {
		return Session{}, err
	}
	if err := t.client.Set(ctx, tokenKey(token), data, t.ttl).Err(); err != nil {
		return Session{}, fmt.Errorf("identity: store token: %w", err)
	}
	return sess, nil
}

// Lookup resolves token. Unknown or expired tokens yield ErrNoSession.
func (t *Tokens) Lookup(ctx context.Context, token string) (Session, error) {
	if token == "" {
		return Session{}, ErrNoSession
	}
	data, err := t.client.Get(ctx, tokenKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Session{}, ErrNoSession
		}
		return Session{}, fmt.Errorf("identity: load token: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return Session{}, fmt.Errorf("identity: decode token: %w", err)
	}
	if !sess.ExpiresAt.IsZero() && t.now().After(sess.ExpiresAt) {
		return Session{}, ErrNoSession
	}
	return sess, nil
}

// Revoke deletes token.
func (t *Tokens) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := t.client.Del(ctx, tokenKey(token)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("identity: revoke token: %w", err)
	}
	return nil
}

func tokenKey(token string) string {
	return "identity:token:" + token
}

func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("identity: random token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
