package authctx

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ClientFactory builds the identity client bound to one browser session.
type ClientFactory func(sessionID string) Client

// Registry maps browser session IDs to live contexts.
type Registry struct {
	factory ClientFactory
	store   ProfileStore
	opts    Options
	now     func() time.Time

	group singleflight.Group

	mu       sync.Mutex
	contexts map[string]*Context
	closed   bool
}

// NewRegistry constructs a Registry.
func NewRegistry(factory ClientFactory, store ProfileStore, opts Options) *Registry {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Registry{
		factory:  factory,
		store:    store,
		opts:     opts,
		now:      time.Now,
		contexts: make(map[string]*Context),
	}
}

// Get returns the context for sessionID, creating and starting it on first
// use. Concurrent first requests share one start, which outlives any one
// caller. A context whose probe failed is not kept.
func (r *Registry) Get(ctx context.Context, sessionID string) (*Context, error) {
	if c, ok, err := r.lookup(sessionID); ok || err != nil {
		return c, err
	}
	resultChan := r.group.DoChan(sessionID, func() (interface{}, error) {
		if c, ok, err := r.lookup(sessionID); ok || err != nil {
			return c, err
		}
		c := New(r.factory(sessionID), r.store, r.opts)
		// The probe must not die with whichever request happened to start it.
		probeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
		defer cancel()
		if err := c.Start(probeCtx); err != nil {
			c.Close()
			return nil, err
		}
		c.touch(r.now())

		r.mu.Lock()
		defer r.mu.Unlock()
		if r.closed {
			c.Close()
			return nil, ErrClosed
		}
		r.contexts[sessionID] = c
		return c, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Context), nil
	}
}

func (r *Registry) lookup(sessionID string) (*Context, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, false, ErrClosed
	}
	c, ok := r.contexts[sessionID]
	if ok {
		c.touch(r.now())
	}
	return c, ok, nil
}

// Drop disposes the context of sessionID, if any.
func (r *Registry) Drop(sessionID string) {
	r.mu.Lock()
	c, ok := r.contexts[sessionID]
	delete(r.contexts, sessionID)
	r.mu.Unlock()
	if ok {
		c.Close()
	}
}

// Len returns the number of live contexts.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.contexts)
}

// Sweep disposes contexts idle for longer than maxIdle and returns how many
// were removed.
func (r *Registry) Sweep(maxIdle time.Duration) int {
	cutoff := r.now().Add(-maxIdle)
	var stale []*Context
	r.mu.Lock()
	for id, c := range r.contexts {
		if c.idleSince().Before(cutoff) {
			stale = append(stale, c)
			delete(r.contexts, id)
		}
	}
	r.mu.Unlock()
	for _, c := range stale {
		c.Close()
	}
	return len(stale)
}

// Run sweeps every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, every, maxIdle time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(maxIdle); n > 0 {
				r.opts.Logger.Debug("swept idle auth contexts", slog.Int("count", n))
			}
		}
	}
}

// Close disposes every context. Later Get calls fail with ErrClosed.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	all := r.contexts
	r.contexts = make(map[string]*Context)
	r.mu.Unlock()
	for _, c := range all {
		c.Close()
	}
}

type contextKey struct{}

// WithContext stores c in ctx.
func WithContext(ctx context.Context, c *Context) context.Context {
	return context.WithValue(ctx, contextKey{}, c)
}

// FromContext returns the auth context bound to the request, or nil.
func FromContext(ctx context.Context) *Context {
	c, _ := ctx.Value(contextKey{}).(*Context)
	return c
}
