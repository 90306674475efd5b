package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Authenticator is the provider surface a Client drives.
type Authenticator interface {
	SignInWithPassword(ctx context.Context, email, password string) (Session, error)
	SignUp(ctx context.Context, email, password string) (Identity, error)
	SignOut(ctx context.Context, token string) error
	Session(ctx context.Context, token string) (Session, error)
}

// TokenStore persists a client's access token between requests.
type TokenStore interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// Client is the per-browser-session handle onto the provider. Listeners are
// invoked synchronously while the client lock is held, so they must not call
// back into the client.
type Client struct {
	auth   Authenticator
	tokens TokenStore

	mu        sync.Mutex
	listeners map[uint64]Listener
	nextID    uint64
}

// NewClient constructs a Client.
func NewClient(auth Authenticator, tokens TokenStore) *Client {
	return &Client{auth: auth, tokens: tokens, listeners: make(map[uint64]Listener)}
}

// OnAuthStateChange registers fn for session changes.
func (c *Client) OnAuthStateChange(fn Listener) Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.listeners[id] = fn
	return &subscription{client: c, id: id}
}

// GetSession returns the current session or nil when signed out. Expired or
// revoked tokens are forgotten.
func (c *Client) GetSession(ctx context.Context) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	token, err := c.tokens.Load(ctx)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, nil
	}
	sess, err := c.auth.Session(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNoSession) {
			_ = c.tokens.Clear(ctx)
			return nil, nil
		}
		return nil, err
	}
	return &sess, nil
}

// SignInWithPassword authenticates and, on success, notifies listeners.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	sess, err := c.auth.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.tokens.Save(ctx, sess.AccessToken); err != nil {
		_ = c.auth.SignOut(ctx, sess.AccessToken)
		return nil, fmt.Errorf("identity: persist session: %w", err)
	}
	c.emitLocked(EventSignedIn, &sess)
	return &sess, nil
}

// SignUp registers a new identity. No session is started until the email is confirmed.
func (c *Client) SignUp(ctx context.Context, email, password string) (Identity, error) {
	return c.auth.SignUp(ctx, email, password)
}

// SignOut revokes the current token. Local state is cleared and listeners
// are notified even when revocation fails; that error is returned.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	token, loadErr := c.tokens.Load(ctx)
	var revokeErr error
	if loadErr == nil && token != "" {
		revokeErr = c.auth.SignOut(ctx, token)
	}
	clearErr := c.tokens.Clear(ctx)
	c.emitLocked(EventSignedOut, nil)
	return errors.Join(loadErr, revokeErr, clearErr)
}

func (c *Client) emitLocked(event Event, sess *Session) {
	for _, fn := range c.listeners {
		var copied *Session
		if sess != nil {
			s := *sess
			copied = &s
		}
		fn(event, copied)
	}
}

type subscription struct {
	client *Client
	id     uint64
	once   sync.Once
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.client.mu.Lock()
		delete(s.client.listeners, s.id)
		s.client.mu.Unlock()
	})
}

// RedisTokenStore keeps a client's access token under a key derived from
// the browser session ID.
type RedisTokenStore struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisTokenStore binds a token store to sessionID.
func NewRedisTokenStore(client *redis.Client, sessionID string, ttl time.Duration) *RedisTokenStore {
	return &RedisTokenStore{client: client, key: clientTokenKey(sessionID), ttl: ttl}
}

// MoveRedisToken re-keys the access token kept for fromSessionID so the
// store of toSessionID sees it. A missing token is not an error.
func MoveRedisToken(ctx context.Context, client *redis.Client, fromSessionID, toSessionID string, ttl time.Duration) error {
	from, to := clientTokenKey(fromSessionID), clientTokenKey(toSessionID)
	token, err := client.Get(ctx, from).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("identity: load session token: %w", err)
	}
	_, err = client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, to, token, ttl)
		pipe.Del(ctx, from)
		return nil
	})
	if err != nil {
		return fmt.Errorf("identity: move session token: %w", err)
	}
	return nil
}

func clientTokenKey(sessionID string) string {
	return "identity:client:" + sessionID
}

// Load implements TokenStore.
func (s *RedisTokenStore) Load(ctx context.Context) (string, error) {
	token, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return token, err
}

// Save implements TokenStore.
func (s *RedisTokenStore) Save(ctx context.Context, token string) error {
	return s.client.Set(ctx, s.key, token, s.ttl).Err()
}

// Clear implements TokenStore.
func (s *RedisTokenStore) Clear(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}
