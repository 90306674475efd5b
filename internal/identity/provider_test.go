package identity

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type memStore struct {
	mu   sync.Mutex
	recs map[string]record
}

func newMemStore() *memStore {
	return &memStore{recs: make(map[string]record)}
}

func (m *memStore) Create(_ context.Context, rec record) (Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := normalizeEmail(rec.Email)
	if _, ok := m.recs[key]; ok {
		return Identity{}, ErrAlreadyRegistered
	}
	rec.Email = key
	rec.CreatedAt = time.Now()
	m.recs[key] = rec
	return rec.Identity, nil
}

func (m *memStore) ByEmail(_ context.Context, email string) (record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[normalizeEmail(email)]
	if !ok {
		return record{}, ErrInvalidCredentials
	}
	return rec, nil
}

func (m *memStore) Confirm(_ context.Context, token string, at time.Time) (Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, rec := range m.recs {
		if rec.ConfirmationToken != "" && rec.ConfirmationToken == token {
			rec.ConfirmedAt = at
			rec.ConfirmationToken = ""
			m.recs[k] = rec
			return rec.Identity, nil
		}
	}
	return Identity{}, ErrInvalidToken
}

func (m *memStore) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, rec := range m.recs {
		if rec.ID == id {
			delete(m.recs, k)
		}
	}
	return nil
}

type captureMailer struct {
	tokens map[string]string
}

func (c *captureMailer) SendConfirmation(_ context.Context, email, token string) error {
	c.tokens[email] = token
	return nil
}

func newTestProvider(t *testing.T) (*Provider, *memStore, *captureMailer, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	store := newMemStore()
	mailer := &captureMailer{tokens: map[string]string{}}
	p := NewProvider(store, NewTokens(rdb, time.Hour), mailer, slog.New(slog.NewTextHandler(io.Discard, nil)))
	p.cost = bcrypt.MinCost
	return p, store, mailer, mr, rdb
}

func TestSignUpRequiresConfirmation(t *testing.T) {
	ctx := context.Background()
	p, _, mailer, _, _ := newTestProvider(t)

	id, err := p.SignUp(ctx, "Ann@Example.com", "correct horse")
	require.NoError(t, err)
	assert.False(t, id.Confirmed())

	_, err = p.SignInWithPassword(ctx, "ann@example.com", "correct horse")
	require.ErrorIs(t, err, ErrEmailNotConfirmed)

	token := mailer.tokens["ann@example.com"]
	require.NotEmpty(t, token)
	confirmed, err := p.ConfirmEmail(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, id.ID, confirmed.ID)

	sess, err := p.SignInWithPassword(ctx, "ann@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, id.ID, sess.Identity.ID)

	_, err = p.ConfirmEmail(ctx, token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestSignUpDuplicate(t *testing.T) {
	ctx := context.Background()
	p, _, _, _, _ := newTestProvider(t)
	_, err := p.SignUp(ctx, "ann@example.com", "correct horse")
	require.NoError(t, err)
	_, err = p.SignUp(ctx, "ann@example.com", "another one")
	require.ErrorIs(t, err, ErrAlreadyRegistered)
}

func TestSignInFailures(t *testing.T) {
	ctx := context.Background()
	p, _, _, _, _ := newTestProvider(t)
	_, err := p.CreateIdentity(ctx, "bob@example.com", "s3cret-pass", true)
	require.NoError(t, err)

	_, err = p.SignInWithPassword(ctx, "bob@example.com", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = p.SignInWithPassword(ctx, "nobody@example.com", "s3cret-pass")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	p, _, _, mr, _ := newTestProvider(t)
	_, err := p.CreateIdentity(ctx, "bob@example.com", "s3cret-pass", true)
	require.NoError(t, err)

	sess, err := p.SignInWithPassword(ctx, "bob@example.com", "s3cret-pass")
	require.NoError(t, err)
	got, err := p.Session(ctx, sess.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, sess.Identity.Email, got.Identity.Email)

	require.NoError(t, p.SignOut(ctx, sess.AccessToken))
	_, err = p.Session(ctx, sess.AccessToken)
	require.ErrorIs(t, err, ErrNoSession)

	sess, err = p.SignInWithPassword(ctx, "bob@example.com", "s3cret-pass")
	require.NoError(t, err)
	mr.FastForward(2 * time.Hour)
	_, err = p.Session(ctx, sess.AccessToken)
	require.ErrorIs(t, err, ErrNoSession)
}

func TestDeleteIdentity(t *testing.T) {
	ctx := context.Background()
	p, store, _, _, _ := newTestProvider(t)
	id, err := p.CreateIdentity(ctx, "carol@example.com", "s3cret-pass", true)
	require.NoError(t, err)
	require.NoError(t, p.DeleteIdentity(ctx, id.ID))
	_, err = store.ByEmail(ctx, "carol@example.com")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestConfirmationLink(t *testing.T) {
	link := ConfirmationLink("https://playbook.example.com", "a+b/c")
	assert.True(t, strings.HasPrefix(link, "https://playbook.example.com/auth/confirm?token="))
	assert.Contains(t, link, "a%2Bb%2Fc")
}
