package authctx

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/goleak"

	"github.com/spark-playbook/playbook/internal/identity"
	"github.com/spark-playbook/playbook/internal/profiles"
	"github.com/spark-playbook/playbook/internal/roles"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const testPassword = "s3cret-pass"

// fakeClient mirrors identity.Client: listeners run with mu held.
type fakeClient struct {
	mu         sync.Mutex
	listeners  map[int]identity.Listener
	next       int
	session    *identity.Session
	accounts   map[string]identity.Identity
	probeErr   error
	signUpErr  error
	signOutErr error
	// beforeProbe runs inside GetSession before the stored session is read.
	beforeProbe func()
}

func newFakeClient(accounts ...identity.Identity) *fakeClient {
	c := &fakeClient{listeners: map[int]identity.Listener{}, accounts: map[string]identity.Identity{}}
	for _, a := range accounts {
		c.accounts[a.Email] = a
	}
	return c
}

func (c *fakeClient) OnAuthStateChange(fn identity.Listener) identity.Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	id := c.next
	c.listeners[id] = fn
	return fakeSub(func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	})
}

func (c *fakeClient) emit(ev identity.Event, sess *identity.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emitLocked(ev, sess)
}

func (c *fakeClient) emitLocked(ev identity.Event, sess *identity.Session) {
	for _, fn := range c.listeners {
		fn(ev, sess)
	}
}

func (c *fakeClient) GetSession(context.Context) (*identity.Session, error) {
	if c.beforeProbe != nil {
		c.beforeProbe()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.probeErr != nil {
		return nil, c.probeErr
	}
	if c.session == nil {
		return nil, nil
	}
	s := *c.session
	return &s, nil
}

func (c *fakeClient) SignInWithPassword(_ context.Context, email, password string) (*identity.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.accounts[email]
	if !ok || password != testPassword {
		return nil, identity.ErrInvalidCredentials
	}
	sess := &identity.Session{AccessToken: uuid.NewString(), Identity: id}
	c.session = sess
	c.emitLocked(identity.EventSignedIn, sess)
	return sess, nil
}

func (c *fakeClient) SignUp(_ context.Context, email, _ string) (identity.Identity, error) {
	if c.signUpErr != nil {
		return identity.Identity{}, c.signUpErr
	}
	return identity.Identity{ID: uuid.New(), Email: email}, nil
}

func (c *fakeClient) SignOut(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.signOutErr != nil {
		return c.signOutErr
	}
	c.session = nil
	c.emitLocked(identity.EventSignedOut, nil)
	return nil
}

func (c *fakeClient) listenerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.listeners)
}

type fakeSub func()

func (f fakeSub) Unsubscribe() { f() }

type fakeStore struct {
	mu           sync.Mutex
	profiles     map[uuid.UUID]*profiles.Profile
	roles        map[uuid.UUID]roles.Set
	memberships  map[uuid.UUID][]profiles.Membership
	created      []profiles.NewProfile
	profileCalls int
	createErr    error
	rolesErr     error
	// gate, when set, blocks Profile until closed; entered is signalled first.
	gate    chan struct{}
	entered chan struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		profiles:    map[uuid.UUID]*profiles.Profile{},
		roles:       map[uuid.UUID]roles.Set{},
		memberships: map[uuid.UUID][]profiles.Membership{},
	}
}

func (s *fakeStore) add(id identity.Identity, name string, tags ...roles.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[id.ID] = &profiles.Profile{ID: uuid.New(), UserID: id.ID, Email: id.Email, FullName: name}
	s.roles[id.ID] = roles.NewSet(tags...)
	s.memberships[id.ID] = []profiles.Membership{{ID: uuid.New(), UserID: id.ID, BusinessID: uuid.New(), IsPrimary: true}}
}

func (s *fakeStore) Profile(ctx context.Context, userID uuid.UUID) (*profiles.Profile, error) {
	s.mu.Lock()
	s.profileCalls++
	gate, entered := s.gate, s.entered
	s.mu.Unlock()
	if gate != nil {
		if entered != nil {
			entered <- struct{}{}
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profiles[userID], nil
}

func (s *fakeStore) Roles(_ context.Context, userID uuid.UUID) (roles.Set, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rolesErr != nil {
		return roles.Set{}, s.rolesErr
	}
	return s.roles[userID], nil
}

func (s *fakeStore) Memberships(_ context.Context, userID uuid.UUID) ([]profiles.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.memberships[userID], nil
}

func (s *fakeStore) CreateProfile(_ context.Context, in profiles.NewProfile) (profiles.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return profiles.Profile{}, s.createErr
	}
	s.created = append(s.created, in)
	return profiles.Profile{ID: uuid.New(), UserID: in.UserID, Email: in.Email, FullName: in.FullName}, nil
}

func (s *fakeStore) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profileCalls
}

type countingRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func (r *countingRecorder) RecordAuth(action, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = map[string]int{}
	}
	r.counts[action+":"+outcome]++
}

func testOptions() Options {
	return Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil)), FetchTimeout: time.Second}
}

func newStarted(t *testing.T, client Client, store ProfileStore) *Context {
	t.Helper()
	c := New(client, store, testOptions())
	t.Cleanup(c.Close)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	return c
}

func waitHydrated(t *testing.T, c *Context) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.WaitHydrated(ctx); err != nil {
		t.Fatalf("wait hydrated: %v", err)
	}
}

func newAccount(email string) identity.Identity {
	return identity.Identity{ID: uuid.New(), Email: email, ConfirmedAt: time.Now()}
}
