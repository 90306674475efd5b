package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spark-playbook/playbook/internal/auth"
	"github.com/spark-playbook/playbook/internal/authctx"
	"github.com/spark-playbook/playbook/internal/authctx/authctxtest"
	"github.com/spark-playbook/playbook/internal/dashboard"
	"github.com/spark-playbook/playbook/internal/identity"
	"github.com/spark-playbook/playbook/internal/notifications"
	"github.com/spark-playbook/playbook/internal/profiles"
	"github.com/spark-playbook/playbook/internal/shared"
	"github.com/spark-playbook/playbook/internal/view"
)

// unreadStore serves an empty notification feed.
type unreadStore struct{}

func (unreadStore) Unread(context.Context, uuid.UUID, int) ([]notifications.Notification, error) {
	return nil, nil
}

func (unreadStore) MarkRead(context.Context, uuid.UUID, uuid.UUID) error { return nil }

// newTestRouter builds the router over miniredis sessions. When signedIn is
// true every browser session resolves to the same signed-in identity.
func newTestRouter(t *testing.T, signedIn bool) http.Handler {
	t.Helper()
	return NewRouter(testRouterParams(t, signedIn))
}

func testRouterParams(t *testing.T, signedIn bool) RouterParams {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	templates, err := view.NewEngine()
	require.NoError(t, err)
	sessions := shared.NewSessionManager(client, "test_session", time.Hour, false)
	csrf := shared.NewCSRFManager("test-secret")

	id := identity.Identity{ID: uuid.New(), Email: "manager@example.com", ConfirmedAt: time.Now()}
	store := &authctxtest.Store{Prof: &profiles.Profile{ID: uuid.New(), UserID: id.ID, Email: id.Email, FullName: "Morgan Lee"}}
	registry := authctx.NewRegistry(func(string) authctx.Client {
		if !signedIn {
			return authctxtest.NewClient(nil)
		}
		return authctxtest.NewClient(&identity.Session{AccessToken: uuid.NewString(), Identity: id, ExpiresAt: time.Now().Add(time.Hour)})
	}, store, authctx.Options{Logger: logger, FetchTimeout: time.Second})
	t.Cleanup(registry.Close)

	hub := notifications.NewHub(logger)
	t.Cleanup(hub.Close)

	return RouterParams{
		Logger:               logger,
		Config:               &Config{AppEnv: "test", AppRequestTimeout: 5 * time.Second},
		Templates:            templates,
		SessionManager:       sessions,
		CSRFManager:          csrf,
		Registry:             registry,
		AuthHandler:          auth.NewHandler(logger, nil, templates, csrf, SessionRotator{Sessions: sessions, Registry: registry}),
		DashboardHandler:     dashboard.NewHandler(logger, templates, csrf, dashboard.Deps{}, nil),
		NotificationsHandler: notifications.NewHandler(logger, unreadStore{}, hub, templates, csrf, nil),
	}
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	rec := get(t, newTestRouter(t, false), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestProtectedPathsRedirectToAuth(t *testing.T) {
	router := newTestRouter(t, false)
	for _, path := range []string{"/", "/team-feed", "/settings", "/notifications/stream"} {
		rec := get(t, router, path)
		assert.Equal(t, http.StatusSeeOther, rec.Code, path)
		assert.Equal(t, "/auth", rec.Header().Get("Location"), path)
	}
}

func TestHomeMountedWithoutDashboardHandler(t *testing.T) {
	params := testRouterParams(t, false)
	params.DashboardHandler = nil
	rec := get(t, NewRouter(params), "/")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/auth", rec.Header().Get("Location"))

	params = testRouterParams(t, true)
	params.DashboardHandler = nil
	rec = get(t, NewRouter(params), "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Dashboard")
}

func TestProtectedPathHTMXRedirect(t *testing.T) {
	router := newTestRouter(t, false)
	req := httptest.NewRequest(http.MethodGet, "/my-tasks", nil)
	req.Header.Set("HX-Request", "true")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "/auth", rec.Header().Get("HX-Redirect"))
}

func TestAuthPageIsPublic(t *testing.T) {
	rec := get(t, newTestRouter(t, false), "/auth")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Result().Cookies(), "session cookie committed")
}

func TestSignedInUserLeavesAuthPage(t *testing.T) {
	rec := get(t, newTestRouter(t, true), "/auth")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
}

func TestComingSoonTitleFromPath(t *testing.T) {
	rec := get(t, newTestRouter(t, true), "/team-feed")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Team Feed")
	assert.Contains(t, body, "coming soon")
	assert.Contains(t, body, "Morgan Lee")
}

func TestUnknownPathRendersNotFound(t *testing.T) {
	for _, signedIn := range []bool{false, true} {
		rec := get(t, newTestRouter(t, signedIn), "/does-not-exist")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.True(t, strings.Contains(rec.Body.String(), "Oops! Page not found"))
	}
}

func TestSecureHeaders(t *testing.T) {
	rec := get(t, newTestRouter(t, false), "/healthz")
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "default-src 'self'", rec.Header().Get("Content-Security-Policy"))
}

func TestPostWithoutCSRFIsRejected(t *testing.T) {
	router := newTestRouter(t, true)
	req := httptest.NewRequest(http.MethodPost, "/auth/logout", strings.NewReader(""))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
