package app

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/spark-playbook/playbook/internal/auth"
	"github.com/spark-playbook/playbook/internal/authctx"
	"github.com/spark-playbook/playbook/internal/dashboard"
	"github.com/spark-playbook/playbook/internal/navigation"
	"github.com/spark-playbook/playbook/internal/notifications"
	"github.com/spark-playbook/playbook/internal/observability"
	"github.com/spark-playbook/playbook/internal/provision"
	"github.com/spark-playbook/playbook/internal/shared"
	"github.com/spark-playbook/playbook/internal/view"
	"github.com/spark-playbook/playbook/jobs"
	"github.com/spark-playbook/playbook/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	Templates      *view.Engine
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Registry       *authctx.Registry
	Metrics        *observability.Metrics

	AuthHandler          *auth.Handler
	DashboardHandler     *dashboard.Handler
	NotificationsHandler *notifications.Handler
	// ProvisionHandler is nil when no provisioning key is configured.
	ProvisionHandler *provision.Handler
	JobHandler       *jobs.Handler
}

// NewRouter constructs the chi.Router with the playbook defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	mwConfig := MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
		Registry:       params.Registry,
	}
	for _, mw := range BaseStack(mwConfig) {
		r.Use(mw)
	}
	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.ProvisionHandler != nil {
		params.ProvisionHandler.MountRoutes(r)
	}

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	pages := pageHandler{logger: params.Logger, templates: params.Templates, csrf: params.CSRFManager}

	r.Group(func(r chi.Router) {
		for _, mw := range BrowserStack(mwConfig) {
			r.Use(mw)
		}

		r.Route("/auth", params.AuthHandler.MountRoutes)

		r.Group(func(r chi.Router) {
			r.Use(RequireSignIn)
			if params.DashboardHandler != nil {
				params.DashboardHandler.MountRoutes(r)
			} else {
				r.Get("/", pages.comingSoon)
			}
			if params.NotificationsHandler != nil {
				r.Route("/notifications", params.NotificationsHandler.MountRoutes)
			}
			for _, path := range navigation.Paths() {
				if path == "/" {
					continue
				}
				r.Get(path, pages.comingSoon)
			}
		})

		r.NotFound(pages.notFound)
	})

	return r
}

// pageHandler renders the static pages of the shell.
type pageHandler struct {
	logger    *slog.Logger
	templates *view.Engine
	csrf      *shared.CSRFManager
}

func (p pageHandler) comingSoon(w http.ResponseWriter, r *http.Request) {
	title := view.TitleFromPath(r.URL.Path)
	if title == "" {
		title = "Dashboard"
	}
	data := view.Page(r, p.csrf, title, nil)
	if err := p.templates.Render(w, "pages/coming_soon.html", data); err != nil {
		p.logger.Error("render coming soon", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (p pageHandler) notFound(w http.ResponseWriter, r *http.Request) {
	p.logger.Warn("route not found", slog.String("path", r.URL.Path))
	data := view.Page(r, p.csrf, "Page not found", nil)
	if err := p.templates.RenderStatus(w, http.StatusNotFound, "pages/not_found.html", data); err != nil {
		p.logger.Error("render not found", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	}
}

// staticCacheHandler wraps a file server with Cache-Control headers.
// Static assets are cached for 1 hour in browser.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
