// Package authctxtest provides in-memory collaborators for tests of code
// that reads the auth context from a request.
package authctxtest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/spark-playbook/playbook/internal/authctx"
	"github.com/spark-playbook/playbook/internal/identity"
	"github.com/spark-playbook/playbook/internal/profiles"
	"github.com/spark-playbook/playbook/internal/roles"
	"github.com/spark-playbook/playbook/internal/shared"
)

// Client is a scripted identity client. A successful sign-in notifies
// listeners the way the real client does.
type Client struct {
	mu        sync.Mutex
	session   *identity.Session
	listeners map[int]identity.Listener
	next      int

	// Accounts maps email to password for SignInWithPassword.
	Accounts map[string]string
	// SignInErr, when set, is returned by every sign-in.
	SignInErr error
	// SignUpErr, when set, is returned by every sign-up.
	SignUpErr error
	SignedUp  []string
}

// NewClient returns a client holding sess, which may be nil.
func NewClient(sess *identity.Session) *Client {
	return &Client{session: sess, listeners: make(map[int]identity.Listener), Accounts: make(map[string]string)}
}

func (c *Client) OnAuthStateChange(fn identity.Listener) identity.Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	id := c.next
	c.listeners[id] = fn
	return unsubscribeFunc(func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	})
}

func (c *Client) GetSession(context.Context) (*identity.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session, nil
}

func (c *Client) SignInWithPassword(_ context.Context, email, password string) (*identity.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SignInErr != nil {
		return nil, c.SignInErr
	}
	if want, ok := c.Accounts[email]; !ok || want != password {
		return nil, shared.ErrInvalidCredentials
	}
	sess := &identity.Session{
		AccessToken: uuid.NewString(),
		Identity:    identity.Identity{ID: uuid.NewSHA1(uuid.NameSpaceURL, []byte(email)), Email: email},
		ExpiresAt:   time.Now().Add(time.Hour),
	}
	c.session = sess
	for _, fn := range c.listeners {
		fn(identity.EventSignedIn, sess)
	}
	return sess, nil
}

func (c *Client) SignUp(_ context.Context, email, _ string) (identity.Identity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SignUpErr != nil {
		return identity.Identity{}, c.SignUpErr
	}
	c.SignedUp = append(c.SignedUp, email)
	return identity.Identity{ID: uuid.New(), Email: email}, nil
}

func (c *Client) SignOut(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = nil
	for _, fn := range c.listeners {
		fn(identity.EventSignedOut, nil)
	}
	return nil
}

type unsubscribeFunc func()

func (f unsubscribeFunc) Unsubscribe() { f() }

// Store serves one fixed profile, role set and membership list.
type Store struct {
	mu          sync.Mutex
	Prof        *profiles.Profile
	RoleSet     roles.Set
	Members     []profiles.Membership
	CreatedRows []profiles.NewProfile
}

func (s *Store) Profile(context.Context, uuid.UUID) (*profiles.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Prof == nil {
		return nil, nil
	}
	p := *s.Prof
	return &p, nil
}

func (s *Store) Roles(context.Context, uuid.UUID) (roles.Set, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.RoleSet, nil
}

func (s *Store) Memberships(context.Context, uuid.UUID) ([]profiles.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]profiles.Membership(nil), s.Members...), nil
}

func (s *Store) CreateProfile(_ context.Context, in profiles.NewProfile) (profiles.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CreatedRows = append(s.CreatedRows, in)
	return profiles.Profile{ID: uuid.New(), UserID: in.UserID, Email: in.Email, FullName: in.FullName}, nil
}

// SignedIn returns a started, hydrated context for a signed-in user holding
// the given roles. It is closed when the test ends.
func SignedIn(t testing.TB, email, fullName string, tags ...roles.Role) *authctx.Context {
	t.Helper()
	id := identity.Identity{ID: uuid.New(), Email: email, ConfirmedAt: time.Now()}
	client := NewClient(&identity.Session{AccessToken: uuid.NewString(), Identity: id, ExpiresAt: time.Now().Add(time.Hour)})
	store := &Store{
		Prof:    &profiles.Profile{ID: uuid.New(), UserID: id.ID, Email: email, FullName: fullName},
		RoleSet: roles.NewSet(tags...),
	}
	return Start(t, client, store)
}

// SignedOut returns a started context with no session.
func SignedOut(t testing.TB) *authctx.Context {
	t.Helper()
	return Start(t, NewClient(nil), &Store{})
}

// Start builds a context over client and store and waits for hydration.
func Start(t testing.TB, client *Client, store *Store) *authctx.Context {
	t.Helper()
	ac := authctx.New(client, store, authctx.Options{FetchTimeout: time.Second})
	t.Cleanup(ac.Close)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := ac.Start(ctx); err != nil {
		t.Fatalf("start auth context: %v", err)
	}
	if err := ac.WaitHydrated(ctx); err != nil {
		t.Fatalf("hydrate auth context: %v", err)
	}
	return ac
}
