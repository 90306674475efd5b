package auth_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spark-playbook/playbook/internal/auth"
	"github.com/spark-playbook/playbook/internal/authctx"
	"github.com/spark-playbook/playbook/internal/authctx/authctxtest"
	"github.com/spark-playbook/playbook/internal/identity"
	"github.com/spark-playbook/playbook/internal/roles"
	"github.com/spark-playbook/playbook/internal/shared"
	"github.com/spark-playbook/playbook/internal/view"
	_ "github.com/spark-playbook/playbook/testing"
)

type stubConfirmer struct {
	tokens map[string]identity.Identity
}

func (s stubConfirmer) ConfirmEmail(_ context.Context, token string) (identity.Identity, error) {
	id, ok := s.tokens[token]
	if !ok {
		return identity.Identity{}, identity.ErrInvalidToken
	}
	return id, nil
}

type harness struct {
	router   http.Handler
	sessions *shared.SessionManager
	sess     *shared.Session
	csrf     *shared.CSRFManager
}

type recordingRotator struct {
	sessions *shared.SessionManager
	err      error
	calls    int
}

func (r *recordingRotator) RotateSession(_ context.Context, sess *shared.Session) error {
	r.calls++
	if r.err != nil {
		return r.err
	}
	r.sessions.Renew(sess)
	return nil
}

func newHarness(t *testing.T, ac *authctx.Context) *harness {
	t.Helper()
	return newRotatingHarness(t, ac, nil)
}

func newRotatingHarness(t *testing.T, ac *authctx.Context, rotator *recordingRotator) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessions := shared.NewSessionManager(client, "test_session", time.Hour, false)
	templates, err := view.NewEngine()
	require.NoError(t, err)

	sess, err := sessions.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)

	confirmer := stubConfirmer{tokens: map[string]identity.Identity{"good": {Email: "new@example.com"}}}
	csrf := shared.NewCSRFManager("csrfsecret")
	var h *auth.Handler
	if rotator != nil {
		rotator.sessions = sessions
		h = auth.NewHandler(nil, confirmer, templates, csrf, rotator)
	} else {
		h = auth.NewHandler(nil, confirmer, templates, csrf, nil)
	}
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := shared.ContextWithSession(req.Context(), sess)
			next.ServeHTTP(w, req.WithContext(authctx.WithContext(ctx, ac)))
		})
	})
	r.Route("/auth", h.MountRoutes)
	return &harness{router: r, sessions: sessions, sess: sess, csrf: csrf}
}

func (h *harness) do(method, target string, form url.Values) *httptest.ResponseRecorder {
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func TestAuthPageRendersSignInForm(t *testing.T) {
	h := newHarness(t, authctxtest.SignedOut(t))

	rec := h.do(http.MethodGet, "/auth", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `action="/auth/login"`)
	assert.NotEmpty(t, h.sess.Get(shared.CSRFSessionKey), "csrf token issued")
}

func TestAuthPageSignUpTab(t *testing.T) {
	h := newHarness(t, authctxtest.SignedOut(t))

	rec := h.do(http.MethodGet, "/auth?tab=signup", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `action="/auth/signup"`)
}

func TestAuthPageRedirectsSignedInUser(t *testing.T) {
	h := newHarness(t, authctxtest.SignedIn(t, "gm@example.com", "Gina", roles.GM))

	rec := h.do(http.MethodGet, "/auth", nil)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
}

func TestLoginSuccessFlashesWelcome(t *testing.T) {
	client := authctxtest.NewClient(nil)
	client.Accounts["ea@example.com"] = "correct-horse"
	ac := authctxtest.Start(t, client, &authctxtest.Store{RoleSet: roles.NewSet(roles.EA)})
	h := newHarness(t, ac)

	rec := h.do(http.MethodPost, "/auth/login", url.Values{"email": {"ea@example.com"}, "password": {"correct-horse"}})

	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	flash := h.sess.PopFlash()
	require.NotNil(t, flash)
	assert.Equal(t, "Welcome back!", flash.Message)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, ac.WaitHydrated(ctx))
	snap := ac.Snapshot()
	assert.True(t, snap.SignedIn())
	assert.True(t, snap.IsEA())
}

func TestLoginRenewsSessionID(t *testing.T) {
	client := authctxtest.NewClient(nil)
	client.Accounts["gm@example.com"] = "correct-horse"
	ac := authctxtest.Start(t, client, &authctxtest.Store{RoleSet: roles.NewSet(roles.GM)})
	rotator := &recordingRotator{}
	h := newRotatingHarness(t, ac, rotator)
	before := h.sess.ID

	rec := h.do(http.MethodPost, "/auth/login", url.Values{"email": {"gm@example.com"}, "password": {"correct-horse"}})

	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, 1, rotator.calls)
	assert.NotEqual(t, before, h.sess.ID)
	token := h.sess.Get(shared.CSRFSessionKey)
	require.NotEmpty(t, token)
	assert.NoError(t, h.csrf.VerifyToken(context.Background(), h.sess, token), "csrf bound to the new id")
}

func TestLoginRotationFailureSignsOut(t *testing.T) {
	client := authctxtest.NewClient(nil)
	client.Accounts["gm@example.com"] = "correct-horse"
	ac := authctxtest.Start(t, client, &authctxtest.Store{RoleSet: roles.NewSet(roles.GM)})
	h := newRotatingHarness(t, ac, &recordingRotator{err: errors.New("redis down")})

	rec := h.do(http.MethodPost, "/auth/login", url.Values{"email": {"gm@example.com"}, "password": {"correct-horse"}})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Something went wrong while signing you in")
	assert.False(t, ac.Snapshot().SignedIn())
}

func TestLogoutRenewsSessionID(t *testing.T) {
	rotator := &recordingRotator{}
	h := newRotatingHarness(t, authctxtest.SignedIn(t, "gm@example.com", "Gina", roles.GM), rotator)
	before := h.sess.ID

	rec := h.do(http.MethodPost, "/auth/logout", url.Values{})

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, 1, rotator.calls)
	assert.NotEqual(t, before, h.sess.ID)
}

func TestLoginInvalidCredentials(t *testing.T) {
	client := authctxtest.NewClient(nil)
	client.Accounts["user@example.com"] = "correctpass"
	h := newHarness(t, authctxtest.Start(t, client, &authctxtest.Store{}))

	rec := h.do(http.MethodPost, "/auth/login", url.Values{"email": {"user@example.com"}, "password": {"wrongpass"}})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid email or password")
	assert.Nil(t, h.sess.PopFlash())
}

func TestLoginUnverifiedIdentity(t *testing.T) {
	client := authctxtest.NewClient(nil)
	client.SignInErr = shared.ErrEmailNotConfirmed
	h := newHarness(t, authctxtest.Start(t, client, &authctxtest.Store{}))

	rec := h.do(http.MethodPost, "/auth/login", url.Values{"email": {"user@example.com"}, "password": {"whatever"}})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Please verify your email before signing in")
}

func TestLoginValidation(t *testing.T) {
	h := newHarness(t, authctxtest.SignedOut(t))

	rec := h.do(http.MethodPost, "/auth/login", url.Values{"email": {"not-an-email"}, "password": {""}})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Please enter a valid email address")
	assert.Contains(t, body, "Password is required")
}

func TestSignUpSuccess(t *testing.T) {
	client := authctxtest.NewClient(nil)
	store := &authctxtest.Store{}
	h := newHarness(t, authctxtest.Start(t, client, store))

	rec := h.do(http.MethodPost, "/auth/signup", url.Values{
		"full_name": {"Nadia New"}, "email": {"nadia@example.com"}, "password": {"longenough"},
	})

	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/auth", rec.Header().Get("Location"))
	assert.Equal(t, []string{"nadia@example.com"}, client.SignedUp)
	require.Len(t, store.CreatedRows, 1)
	assert.Equal(t, "Nadia New", store.CreatedRows[0].FullName)
	flash := h.sess.PopFlash()
	require.NotNil(t, flash)
	assert.Equal(t, "Check your email to verify your account", flash.Message)
}

func TestSignUpValidation(t *testing.T) {
	client := authctxtest.NewClient(nil)
	h := newHarness(t, authctxtest.Start(t, client, &authctxtest.Store{}))

	rec := h.do(http.MethodPost, "/auth/signup", url.Values{
		"full_name": {"N"}, "email": {"nadia@example.com"}, "password": {"short"},
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Full name must be at least 2 characters")
	assert.Contains(t, body, "Password must be at least 8 characters")
	assert.Empty(t, client.SignedUp)
}

func TestSignUpAlreadyRegistered(t *testing.T) {
	client := authctxtest.NewClient(nil)
	client.SignUpErr = shared.ErrAlreadyRegistered
	h := newHarness(t, authctxtest.Start(t, client, &authctxtest.Store{}))

	rec := h.do(http.MethodPost, "/auth/signup", url.Values{
		"full_name": {"Nadia"}, "email": {"nadia@example.com"}, "password": {"longenough"},
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "An account with this email already exists. Try signing in instead.")
}

func TestSignUpProviderMessagePassedThrough(t *testing.T) {
	client := authctxtest.NewClient(nil)
	client.SignUpErr = errors.New("password is too common")
	h := newHarness(t, authctxtest.Start(t, client, &authctxtest.Store{}))

	rec := h.do(http.MethodPost, "/auth/signup", url.Values{
		"full_name": {"Nadia"}, "email": {"nadia@example.com"}, "password": {"password1"},
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "password is too common")
}

func TestLogoutClearsState(t *testing.T) {
	ac := authctxtest.SignedIn(t, "p@example.com", "Pat Principal", roles.Principal)
	h := newHarness(t, ac)

	rec := h.do(http.MethodPost, "/auth/logout", nil)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/auth", rec.Header().Get("Location"))
	snap := ac.Snapshot()
	assert.False(t, snap.SignedIn())
	assert.Zero(t, snap.Roles.Len())
}

func TestConfirmEmail(t *testing.T) {
	h := newHarness(t, authctxtest.SignedOut(t))

	rec := h.do(http.MethodGet, "/auth/confirm?token=good", nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	flash := h.sess.PopFlash()
	require.NotNil(t, flash)
	assert.Equal(t, "success", flash.Kind)

	h.do(http.MethodGet, "/auth/confirm?token=bad", nil)
	flash = h.sess.PopFlash()
	require.NotNil(t, flash)
	assert.Equal(t, "error", flash.Kind)
}
