package identity

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	event Event
	email string
}

func TestClientEmitsSessionChanges(t *testing.T) {
	ctx := context.Background()
	p, _, _, _, rdb := newTestProvider(t)
	_, err := p.CreateIdentity(ctx, "dave@example.com", "s3cret-pass", true)
	require.NoError(t, err)

	client := NewClient(p, NewRedisTokenStore(rdb, "browser-1", time.Hour))

	var mu sync.Mutex
	var events []recorded
	sub := client.OnAuthStateChange(func(ev Event, sess *Session) {
		mu.Lock()
		defer mu.Unlock()
		r := recorded{event: ev}
		if sess != nil {
			r.email = sess.Identity.Email
		}
		events = append(events, r)
	})

	sess, err := client.GetSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, sess)

	_, err = client.SignInWithPassword(ctx, "dave@example.com", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = client.SignInWithPassword(ctx, "dave@example.com", "s3cret-pass")
	require.NoError(t, err)

	sess, err = client.GetSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "dave@example.com", sess.Identity.Email)

	// A second client for the same browser session sees the stored token.
	other := NewClient(p, NewRedisTokenStore(rdb, "browser-1", time.Hour))
	sess, err = other.GetSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, sess)

	require.NoError(t, client.SignOut(ctx))
	sess, err = client.GetSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, sess)

	sub.Unsubscribe()
	sub.Unsubscribe()
	_, err = client.SignInWithPassword(ctx, "dave@example.com", "s3cret-pass")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []recorded{
		{event: EventSignedIn, email: "dave@example.com"},
		{event: EventSignedOut},
	}, events)
}

func TestClientForgetsRevokedToken(t *testing.T) {
	ctx := context.Background()
	p, _, _, _, rdb := newTestProvider(t)
	_, err := p.CreateIdentity(ctx, "erin@example.com", "s3cret-pass", true)
	require.NoError(t, err)

	store := NewRedisTokenStore(rdb, "browser-2", time.Hour)
	client := NewClient(p, store)
	sess, err := client.SignInWithPassword(ctx, "erin@example.com", "s3cret-pass")
	require.NoError(t, err)
	require.NoError(t, p.SignOut(ctx, sess.AccessToken))

	got, err := client.GetSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
	token, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestMoveRedisTokenFollowsRenewedSession(t *testing.T) {
	ctx := context.Background()
	p, _, _, _, rdb := newTestProvider(t)
	_, err := p.CreateIdentity(ctx, "fay@example.com", "s3cret-pass", true)
	require.NoError(t, err)

	client := NewClient(p, NewRedisTokenStore(rdb, "browser-old", time.Hour))
	_, err = client.SignInWithPassword(ctx, "fay@example.com", "s3cret-pass")
	require.NoError(t, err)

	require.NoError(t, MoveRedisToken(ctx, rdb, "browser-old", "browser-new", time.Hour))

	moved, err := NewClient(p, NewRedisTokenStore(rdb, "browser-new", time.Hour)).GetSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, moved)
	assert.Equal(t, "fay@example.com", moved.Identity.Email)

	stale, err := NewClient(p, NewRedisTokenStore(rdb, "browser-old", time.Hour)).GetSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, stale, "old session id no longer signed in")

	assert.NoError(t, MoveRedisToken(ctx, rdb, "browser-missing", "browser-other", time.Hour))
}
