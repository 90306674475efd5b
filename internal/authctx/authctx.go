// Package authctx keeps the per-browser-session authorization state: the
// signed-in identity plus its profile, role tags and business memberships.
//
// State is populated by two racing sources, a one-shot session probe and the
// identity client's change stream. The stream is subscribed before the probe
// runs. Every signed-in report schedules the dependent fetch on the context's
// own serial task loop; listeners never fetch inline because the client holds
// its lock while notifying them.
package authctx

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/spark-playbook/playbook/internal/identity"
	"github.com/spark-playbook/playbook/internal/profiles"
	"github.com/spark-playbook/playbook/internal/roles"
	"github.com/spark-playbook/playbook/internal/shared"
)

// ErrClosed is returned by operations on a disposed context.
var ErrClosed = errors.New("authctx: closed")

// Client is the identity client surface the context consumes.
type Client interface {
	OnAuthStateChange(fn identity.Listener) identity.Subscription
	GetSession(ctx context.Context) (*identity.Session, error)
	SignInWithPassword(ctx context.Context, email, password string) (*identity.Session, error)
	SignUp(ctx context.Context, email, password string) (identity.Identity, error)
	SignOut(ctx context.Context) error
}

// ProfileStore loads and creates the dependent records of an identity.
type ProfileStore interface {
	Profile(ctx context.Context, userID uuid.UUID) (*profiles.Profile, error)
	Roles(ctx context.Context, userID uuid.UUID) (roles.Set, error)
	Memberships(ctx context.Context, userID uuid.UUID) ([]profiles.Membership, error)
	CreateProfile(ctx context.Context, in profiles.NewProfile) (profiles.Profile, error)
}

// Recorder counts auth outcomes. observability.Metrics satisfies it.
type Recorder interface {
	RecordAuth(action, outcome string)
}

// Options tune a Context.
type Options struct {
	Logger       *slog.Logger
	FetchTimeout time.Duration
	Recorder     Recorder
}

// Snapshot is a read-only copy of the cached state.
type Snapshot struct {
	Identity    *identity.Identity
	Profile     *profiles.Profile
	Roles       roles.Set
	Memberships []profiles.Membership
	Loading     bool
}

// SignedIn reports whether an identity is present.
func (s Snapshot) SignedIn() bool { return s.Identity != nil }

func (s Snapshot) IsPrincipal() bool { return s.Roles.Has(roles.Principal) }
func (s Snapshot) IsEA() bool        { return s.Roles.Has(roles.EA) }
func (s Snapshot) IsGM() bool        { return s.Roles.Has(roles.GM) }
func (s Snapshot) IsManager() bool   { return s.Roles.Has(roles.Manager) }
func (s Snapshot) IsSales() bool     { return s.Roles.Has(roles.Sales) }

// UserID returns the signed-in identity's ID or uuid.Nil.
func (s Snapshot) UserID() uuid.UUID {
	if s.Identity == nil {
		return uuid.Nil
	}
	return s.Identity.ID
}

// Context is the single owned authorization state of one browser session.
type Context struct {
	client       Client
	store        ProfileStore
	logger       *slog.Logger
	fetchTimeout time.Duration
	recorder     Recorder

	queue     *taskQueue
	startOnce sync.Once
	closeOnce sync.Once

	mu          sync.Mutex
	ident       *identity.Identity
	profile     *profiles.Profile
	roleSet     roles.Set
	memberships []profiles.Membership
	loading     bool
	closed      bool
	sub         identity.Subscription
	// gen increments whenever cached dependents are invalidated; fetch
	// results from an older generation are discarded.
	gen       uint64
	scheduled bool
	pending   int
	events    uint64
	changed   chan struct{}
	lastUsed  time.Time
}

// New builds a Context in the loading state. Call Start to attach it.
func New(client Client, store ProfileStore, opts Options) *Context {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.FetchTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Context{
		client:       client,
		store:        store,
		logger:       logger,
		fetchTimeout: timeout,
		recorder:     opts.Recorder,
		queue:        newTaskQueue(),
		loading:      true,
		changed:      make(chan struct{}),
		lastUsed:     time.Now(),
	}
}

// Start subscribes to session changes and then probes the current session.
// A probe error is returned after loading has been cleared. Later calls are
// no-ops.
func (c *Context) Start(ctx context.Context) error {
	var err error
	c.startOnce.Do(func() { err = c.start(ctx) })
	return err
}

func (c *Context) start(ctx context.Context) error {
	if c.isClosed() {
		return ErrClosed
	}
	c.queue.start()
	sub := c.client.OnAuthStateChange(c.handleEvent)

	c.mu.Lock()
	c.sub = sub
	seen := c.events
	c.mu.Unlock()

	sess, err := c.client.GetSession(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.logger.Warn("session probe failed", slog.Any("error", err))
		c.setReadyLocked()
		return err
	}
	if c.events != seen {
		// The change stream already reported something fresher.
		c.setReadyLocked()
		return nil
	}
	c.applyLocked(sess)
	return nil
}

// handleEvent receives session changes. It runs with the client lock held.
func (c *Context) handleEvent(_ identity.Event, sess *identity.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.events++
	c.applyLocked(sess)
}

// applyLocked records a session report; nil means signed out.
func (c *Context) applyLocked(sess *identity.Session) {
	defer c.broadcastLocked()
	c.loading = false

	if sess == nil {
		c.ident = nil
		c.clearDependentsLocked()
		return
	}

	next := sess.Identity
	if c.ident != nil && c.ident.ID != next.ID {
		c.clearDependentsLocked()
	}
	c.ident = &next
	if !c.scheduled {
		c.scheduled = true
		c.scheduleFetchLocked(nil)
	}
}

func (c *Context) clearDependentsLocked() {
	c.profile = nil
	c.roleSet = roles.Set{}
	c.memberships = nil
	c.gen++
	c.scheduled = false
}

func (c *Context) setReadyLocked() {
	if c.loading {
		c.loading = false
		c.broadcastLocked()
	}
}

func (c *Context) broadcastLocked() {
	close(c.changed)
	c.changed = make(chan struct{})
}

// scheduleFetchLocked defers a dependent fetch for the current identity.
// done, when non-nil, receives the fetch outcome.
func (c *Context) scheduleFetchLocked(done chan<- error) {
	gen := c.gen
	userID := c.ident.ID
	c.pending++
	ok := c.queue.push(task{
		run: func(ctx context.Context) {
			err := c.fetch(ctx, gen, userID)
			if done != nil {
				done <- err
			}
		},
		drop: func() {
			c.mu.Lock()
			c.pending--
			c.broadcastLocked()
			c.mu.Unlock()
			if done != nil {
				done <- ErrClosed
			}
		},
	})
	if !ok {
		c.pending--
		if done != nil {
			done <- ErrClosed
		}
	}
}

// fetch loads profile, roles and memberships concurrently. Each field is
// only replaced when its own read succeeded.
func (c *Context) fetch(ctx context.Context, gen uint64, userID uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	var (
		profile     *profiles.Profile
		roleSet     roles.Set
		memberships []profiles.Membership
		profileErr  error
		rolesErr    error
		memErr      error
		g           errgroup.Group
	)
	g.Go(func() error {
		profile, profileErr = c.store.Profile(ctx, userID)
		return nil
	})
	g.Go(func() error {
		roleSet, rolesErr = c.store.Roles(ctx, userID)
		return nil
	})
	g.Go(func() error {
		memberships, memErr = c.store.Memberships(ctx, userID)
		return nil
	})
	_ = g.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending--
	defer c.broadcastLocked()

	if gen != c.gen {
		c.logger.Debug("discarding stale profile fetch", slog.String("user_id", userID.String()))
		return nil
	}

	var errs []error
	if profileErr != nil {
		errs = append(errs, &shared.BackendFetchError{Resource: "profile", Err: profileErr})
	} else {
		c.profile = profile
	}
	if rolesErr != nil {
		errs = append(errs, &shared.BackendFetchError{Resource: "roles", Err: rolesErr})
	} else {
		c.roleSet = roleSet
	}
	if memErr != nil {
		errs = append(errs, &shared.BackendFetchError{Resource: "memberships", Err: memErr})
	} else {
		c.memberships = memberships
	}
	err := errors.Join(errs...)
	if err != nil {
		c.logger.Error("profile fetch failed", slog.String("user_id", userID.String()), slog.Any("error", err))
		c.record("fetch", "error")
	}
	return err
}

// SignIn exchanges credentials with the provider. Success is reported back
// through the change stream; a failure leaves the cached state untouched.
func (c *Context) SignIn(ctx context.Context, email, password string) error {
	if c.isClosed() {
		return ErrClosed
	}
	if _, err := c.client.SignInWithPassword(ctx, email, password); err != nil {
		c.record("sign_in", string(shared.ClassifyAuthError(err)))
		return err
	}
	c.record("sign_in", "ok")
	return nil
}

// SignUp requests a new account and writes its profile row. A profile write
// failure is logged and not rolled back.
func (c *Context) SignUp(ctx context.Context, email, password, displayName string) error {
	if c.isClosed() {
		return ErrClosed
	}
	id, err := c.client.SignUp(ctx, email, password)
	if err != nil {
		c.record("sign_up", string(shared.ClassifyAuthError(err)))
		return err
	}
	c.record("sign_up", "ok")
	if _, err := c.store.CreateProfile(ctx, profiles.NewProfile{UserID: id.ID, Email: id.Email, FullName: displayName}); err != nil {
		c.logger.Error("create profile after sign-up", slog.String("user_id", id.ID.String()), slog.Any("error", err))
	}
	return nil
}

// SignOut asks the provider to end the session, then clears the cached
// state whatever the provider answered.
func (c *Context) SignOut(ctx context.Context) {
	if err := c.client.SignOut(ctx); err != nil {
		c.logger.Warn("provider sign-out failed", slog.Any("error", err))
	}
	c.record("sign_out", "ok")
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applyLocked(nil)
}

// RefreshProfile re-runs the dependent fetch for the current identity and
// waits for it. It is a no-op when nobody is signed in.
func (c *Context) RefreshProfile(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.ident == nil {
		c.mu.Unlock()
		return nil
	}
	done := make(chan error, 1)
	c.scheduleFetchLocked(done)
	c.mu.Unlock()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns a copy of the cached state.
func (c *Context) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{Roles: c.roleSet, Loading: c.loading}
	if c.ident != nil {
		id := *c.ident
		s.Identity = &id
	}
	if c.profile != nil {
		p := *c.profile
		s.Profile = &p
	}
	if c.memberships != nil {
		s.Memberships = append([]profiles.Membership(nil), c.memberships...)
	}
	return s
}

// WaitReady blocks until it is known whether a session exists.
func (c *Context) WaitReady(ctx context.Context) error {
	return c.waitFor(ctx, func() bool { return !c.loading })
}

// WaitHydrated blocks until no dependent fetch is pending.
func (c *Context) WaitHydrated(ctx context.Context) error {
	return c.waitFor(ctx, func() bool { return !c.loading && c.pending == 0 })
}

func (c *Context) waitFor(ctx context.Context, cond func() bool) error {
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return ErrClosed
		}
		if cond() {
			c.mu.Unlock()
			return nil
		}
		ch := c.changed
		c.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close unsubscribes from the change stream and stops the task loop.
func (c *Context) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.gen++
		sub := c.sub
		c.broadcastLocked()
		c.mu.Unlock()

		if sub != nil {
			sub.Unsubscribe()
		}
		c.queue.stop()
	})
}

func (c *Context) touch(now time.Time) {
	c.mu.Lock()
	c.lastUsed = now
	c.mu.Unlock()
}

func (c *Context) idleSince() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastUsed
}

func (c *Context) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Context) record(action, outcome string) {
	if c.recorder != nil {
		c.recorder.RecordAuth(action, outcome)
	}
}
