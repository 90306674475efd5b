package authctx

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spark-playbook/playbook/internal/identity"
	"github.com/spark-playbook/playbook/internal/roles"
	"github.com/spark-playbook/playbook/internal/shared"
)

func TestStartWithoutSessionIsReadyAndEmpty(t *testing.T) {
	c := newStarted(t, newFakeClient(), newFakeStore())

	require.NoError(t, c.WaitReady(context.Background()))
	snap := c.Snapshot()
	assert.False(t, snap.Loading)
	assert.False(t, snap.SignedIn())
	assert.Nil(t, snap.Profile)
	assert.Equal(t, 0, snap.Roles.Len())
}

func TestWaitReadyBeforeStartHonoursDeadline(t *testing.T) {
	c := New(newFakeClient(), newFakeStore(), testOptions())
	defer c.Close()
	assert.True(t, c.Snapshot().Loading)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, c.WaitReady(ctx), context.DeadlineExceeded)
}

func TestSignInHydratesProfileRolesAndMemberships(t *testing.T) {
	ann := newAccount("ann@example.com")
	store := newFakeStore()
	store.add(ann, "Ann Principal", roles.Principal, roles.EA)
	rec := &countingRecorder{}
	c := New(newFakeClient(ann), store, Options{Logger: testOptions().Logger, Recorder: rec})
	t.Cleanup(c.Close)
	require.NoError(t, c.Start(context.Background()))

	require.NoError(t, c.SignIn(context.Background(), "ann@example.com", testPassword))
	waitHydrated(t, c)

	snap := c.Snapshot()
	require.NotNil(t, snap.Identity)
	assert.Equal(t, ann.ID, snap.UserID())
	require.NotNil(t, snap.Profile)
	assert.Equal(t, "Ann Principal", snap.Profile.FullName)
	assert.Len(t, snap.Memberships, 1)
	assert.True(t, snap.IsPrincipal())
	assert.True(t, snap.IsEA())
	assert.False(t, snap.IsManager())
	assert.False(t, snap.IsGM())
	assert.False(t, snap.IsSales())
	assert.Equal(t, 1, store.calls())
	assert.Equal(t, 1, rec.counts["sign_in:ok"])
}

func TestSignInUnknownEmail(t *testing.T) {
	store := newFakeStore()
	c := newStarted(t, newFakeClient(), store)

	err := c.SignIn(context.Background(), "ghost@example.com", testPassword)
	require.Error(t, err)
	assert.Equal(t, shared.AuthErrInvalidCredentials, shared.ClassifyAuthError(err))
	assert.Equal(t, "Invalid email or password", shared.UserSafeMessage(err))

	waitHydrated(t, c)
	assert.False(t, c.Snapshot().SignedIn())
	assert.Equal(t, 0, store.calls())
}

func TestNotificationBeforeProbeFetchesOnce(t *testing.T) {
	bob := newAccount("bob@example.com")
	store := newFakeStore()
	store.add(bob, "Bob", roles.Manager)
	client := newFakeClient(bob)
	sess := &identity.Session{AccessToken: "t", Identity: bob}
	client.session = sess
	client.beforeProbe = func() {
		client.emit(identity.EventSignedIn, sess)
	}

	c := newStarted(t, client, store)
	waitHydrated(t, c)
	assert.Equal(t, 1, store.calls())

	// A repeated report for the same identity is deduplicated too.
	client.emit(identity.EventSignedIn, sess)
	waitHydrated(t, c)
	assert.Equal(t, 1, store.calls())
	assert.True(t, c.Snapshot().IsManager())
}

func TestProbeAloneFetchesOnce(t *testing.T) {
	bob := newAccount("bob@example.com")
	store := newFakeStore()
	store.add(bob, "Bob", roles.GM)
	client := newFakeClient(bob)
	client.session = &identity.Session{AccessToken: "t", Identity: bob}

	c := newStarted(t, client, store)
	waitHydrated(t, c)
	assert.Equal(t, 1, store.calls())
	assert.True(t, c.Snapshot().IsGM())
}

func TestSignOutDiscardsInFlightFetch(t *testing.T) {
	carol := newAccount("carol@example.com")
	store := newFakeStore()
	store.add(carol, "Carol", roles.Sales)
	store.gate = make(chan struct{})
	store.entered = make(chan struct{}, 1)
	c := newStarted(t, newFakeClient(carol), store)

	require.NoError(t, c.SignIn(context.Background(), "carol@example.com", testPassword))
	select {
	case <-store.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("fetch never started")
	}

	c.SignOut(context.Background())
	close(store.gate)
	waitHydrated(t, c)

	snap := c.Snapshot()
	assert.False(t, snap.SignedIn())
	assert.Nil(t, snap.Profile)
	assert.Equal(t, 0, snap.Roles.Len())
	assert.Empty(t, snap.Memberships)
}

func TestSignOutClearsWhenProviderFails(t *testing.T) {
	dan := newAccount("dan@example.com")
	store := newFakeStore()
	store.add(dan, "Dan", roles.Manager)
	client := newFakeClient(dan)
	c := newStarted(t, client, store)
	require.NoError(t, c.SignIn(context.Background(), "dan@example.com", testPassword))
	waitHydrated(t, c)
	require.NotNil(t, c.Snapshot().Profile)

	client.signOutErr = errors.New("provider unavailable")
	c.SignOut(context.Background())

	snap := c.Snapshot()
	assert.False(t, snap.SignedIn())
	assert.Nil(t, snap.Profile)
	assert.False(t, snap.IsManager())
}

func TestSignUpCreatesProfile(t *testing.T) {
	store := newFakeStore()
	c := newStarted(t, newFakeClient(), store)

	require.NoError(t, c.SignUp(context.Background(), "erin@example.com", testPassword, "Erin"))
	require.Len(t, store.created, 1)
	assert.Equal(t, "Erin", store.created[0].FullName)
	assert.Equal(t, "erin@example.com", store.created[0].Email)
	assert.False(t, c.Snapshot().SignedIn())
}

func TestSignUpProfileFailureIsNotReturned(t *testing.T) {
	store := newFakeStore()
	store.createErr = errors.New("insert failed")
	c := newStarted(t, newFakeClient(), store)

	require.NoError(t, c.SignUp(context.Background(), "erin@example.com", testPassword, "Erin"))
	assert.Empty(t, store.created)
}

func TestSignUpAlreadyRegisteredWritesNoProfile(t *testing.T) {
	store := newFakeStore()
	client := newFakeClient()
	client.signUpErr = identity.ErrAlreadyRegistered
	c := newStarted(t, client, store)

	err := c.SignUp(context.Background(), "erin@example.com", testPassword, "Erin")
	require.Error(t, err)
	assert.Equal(t, shared.AuthErrAlreadyRegistered, shared.ClassifyAuthError(err))
	assert.Equal(t, "An account with this email already exists. Try signing in instead.", shared.UserSafeMessage(err))
	assert.Empty(t, store.created)
}

func TestRefreshProfileKeepsFieldsOnFetchError(t *testing.T) {
	fay := newAccount("fay@example.com")
	store := newFakeStore()
	store.add(fay, "Fay", roles.EA)
	c := newStarted(t, newFakeClient(fay), store)
	require.NoError(t, c.SignIn(context.Background(), "fay@example.com", testPassword))
	waitHydrated(t, c)

	store.mu.Lock()
	store.rolesErr = errors.New("roles table unavailable")
	updated := *store.profiles[fay.ID]
	updated.FullName = "Fay Updated"
	store.profiles[fay.ID] = &updated
	store.mu.Unlock()

	err := c.RefreshProfile(context.Background())
	require.Error(t, err)
	assert.Equal(t, shared.AuthErrBackendFetch, shared.ClassifyAuthError(err))

	snap := c.Snapshot()
	assert.True(t, snap.IsEA(), "roles keep their previous value")
	assert.Equal(t, "Fay Updated", snap.Profile.FullName)
	assert.Equal(t, 2, store.calls())
}

func TestRefreshProfileWithoutIdentityIsNoop(t *testing.T) {
	store := newFakeStore()
	c := newStarted(t, newFakeClient(), store)
	require.NoError(t, c.RefreshProfile(context.Background()))
	assert.Equal(t, 0, store.calls())
}

func TestProbeErrorStillClearsLoading(t *testing.T) {
	client := newFakeClient()
	client.probeErr = errors.New("redis down")
	c := New(client, newFakeStore(), testOptions())
	defer c.Close()

	require.Error(t, c.Start(context.Background()))
	assert.False(t, c.Snapshot().Loading)
	require.NoError(t, c.Start(context.Background()), "second start is a no-op")
}

func TestCloseUnsubscribesAndRejectsWork(t *testing.T) {
	gil := newAccount("gil@example.com")
	store := newFakeStore()
	store.add(gil, "Gil", roles.Manager)
	store.gate = make(chan struct{})
	store.entered = make(chan struct{}, 1)
	client := newFakeClient(gil)
	c := New(client, store, testOptions())
	require.NoError(t, c.Start(context.Background()))
	require.Equal(t, 1, client.listenerCount())

	require.NoError(t, c.SignIn(context.Background(), "gil@example.com", testPassword))
	<-store.entered

	c.Close()
	c.Close()
	assert.Equal(t, 0, client.listenerCount())
	require.ErrorIs(t, c.SignIn(context.Background(), "gil@example.com", testPassword), ErrClosed)
	require.ErrorIs(t, c.RefreshProfile(context.Background()), ErrClosed)
	require.ErrorIs(t, c.WaitReady(context.Background()), ErrClosed)
	close(store.gate)
}
