// Package dashboard composes the role-specific home page. The variant comes
// from the signed-in role tags; each variant loads its sections concurrently
// and a failed section renders empty.
package dashboard

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/spark-playbook/playbook/internal/authctx"
	"github.com/spark-playbook/playbook/internal/focus"
	"github.com/spark-playbook/playbook/internal/navigation"
	"github.com/spark-playbook/playbook/internal/notes"
	"github.com/spark-playbook/playbook/internal/quickactions"
	"github.com/spark-playbook/playbook/internal/reminders"
	"github.com/spark-playbook/playbook/internal/shared"
	"github.com/spark-playbook/playbook/internal/submissions"
	"github.com/spark-playbook/playbook/internal/tasks"
	"github.com/spark-playbook/playbook/internal/view"
	"github.com/spark-playbook/playbook/internal/workitems"
)

const (
	teamFeedLimit  = 20
	notesLimit     = 10
	myItemsLimit   = 5
	remindersLimit = 5
)

// WorkItems is satisfied by *workitems.Service.
type WorkItems interface {
	Critical(ctx context.Context) ([]workitems.Item, error)
	ActiveForOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]workitems.Item, error)
	Pulse(ctx context.Context) ([]workitems.Pulse, error)
}

// QuickActions is satisfied by *quickactions.Service.
type QuickActions interface {
	Recent(ctx context.Context) ([]quickactions.Action, error)
	Between(ctx context.Context, a, b uuid.UUID) ([]quickactions.Action, error)
	ForUser(ctx context.Context, userID uuid.UUID) ([]quickactions.Action, error)
	Send(ctx context.Context, in quickactions.NewAction) (uuid.UUID, error)
	SetStatus(ctx context.Context, id, recipientID uuid.UUID, status shared.ActionStatus) error
}

// Notes is satisfied by *notes.Repository.
type Notes interface {
	ForTarget(ctx context.Context, userID uuid.UUID, limit int) ([]notes.Note, error)
	Acknowledge(ctx context.Context, noteID, userID uuid.UUID) error
	Reply(ctx context.Context, noteID, userID uuid.UUID, content string) error
}

// Focus is satisfied by *focus.Repository.
type Focus interface {
	Active(ctx context.Context, userID uuid.UUID) ([]focus.Item, error)
	Respond(ctx context.Context, itemID, userID uuid.UUID, content string) error
}

// Reminders is satisfied by *reminders.Repository.
type Reminders interface {
	Upcoming(ctx context.Context, userID uuid.UUID, limit int) ([]reminders.Reminder, error)
}

// Submissions is satisfied by *submissions.Repository.
type Submissions interface {
	TeamFeed(ctx context.Context, limit int) ([]submissions.Submission, error)
	Streak(ctx context.Context, userID uuid.UUID) (int, error)
}

// Tasks is satisfied by *tasks.Repository.
type Tasks interface {
	Open(ctx context.Context, assigneeID uuid.UUID) ([]tasks.Task, error)
	SetStatus(ctx context.Context, id, assigneeID uuid.UUID, status shared.ActionStatus) error
}

// Principals resolves the principal an EA works for. Satisfied by
// *profiles.Repository.
type Principals interface {
	PrincipalID(ctx context.Context) (uuid.UUID, bool, error)
}

// SectionRecorder counts section failures. observability.Metrics satisfies it.
type SectionRecorder interface {
	RecordSectionError(variant, section string)
}

// Deps groups the stores behind the dashboards.
type Deps struct {
	WorkItems    WorkItems
	QuickActions QuickActions
	Notes        Notes
	Focus        Focus
	Reminders    Reminders
	Submissions  Submissions
	Tasks        Tasks
	Principals   Principals
}

// Handler renders the dashboard and applies its inline mutations.
type Handler struct {
	logger    *slog.Logger
	templates *view.Engine
	csrf      *shared.CSRFManager
	deps      Deps
	recorder  SectionRecorder
	now       func() time.Time
	pages     map[navigation.Variant]variantPage
}

type variantPage struct {
	template string
	title    string
	load     func(h *Handler, ctx context.Context, snap authctx.Snapshot) any
}

// NewHandler constructs a Handler. recorder may be nil.
func NewHandler(logger *slog.Logger, templates *view.Engine, csrf *shared.CSRFManager, deps Deps, recorder SectionRecorder) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		templates: templates,
		csrf:      csrf,
		deps:      deps,
		recorder:  recorder,
		now:       time.Now,
		pages: map[navigation.Variant]variantPage{
			navigation.VariantPrincipal: {template: "pages/principal.html", title: "Dashboard", load: (*Handler).loadPrincipal},
			navigation.VariantEA:        {template: "pages/ea.html", title: "Dashboard", load: (*Handler).loadEA},
			navigation.VariantDefault:   {template: "pages/manager.html", title: "My Focus", load: (*Handler).loadManager},
		},
	}
}

// MountRoutes registers the dashboard and its mutation endpoints. The router
// wraps them in the signed-in guard.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.showDashboard)
	r.Post("/quick-actions", h.sendQuickAction)
	r.Post("/quick-actions/{id}/status", h.updateQuickAction)
	r.Post("/my-tasks/{id}/status", h.updateTask)
	r.Post("/notes/{id}/acknowledge", h.acknowledgeNote)
	r.Post("/notes/{id}/replies", h.replyNote)
	r.Post("/focus/{id}/responses", h.respondFocus)
}

// PrincipalData backs pages/principal.html.
type PrincipalData struct {
	Critical     []workitems.Item
	Pulse        []workitems.Pulse
	QuickActions QuickActionsSection
	TeamFeed     []submissions.Submission
	Failed       map[string]bool
}

// EAData backs pages/ea.html.
type EAData struct {
	Pulse        []workitems.Pulse
	QuickActions QuickActionsSection
	Tasks        TasksSection
	Failed       map[string]bool
}

// ManagerData backs pages/manager.html.
type ManagerData struct {
	Focus        FocusSection
	Notes        NotesSection
	QuickActions QuickActionsSection
	Items        []workitems.Item
	Reminders    []reminders.Reminder
	Streak       int
	Now          time.Time
	Failed       map[string]bool
}

// QuickActionsSection backs partials/quick_actions.html.
type QuickActionsSection struct {
	Actions []quickactions.Action
	UserID  uuid.UUID
	// SendTo is the recipient of the inline send form; uuid.Nil hides it.
	SendTo uuid.UUID
	Error  string
}

// CanSend reports whether the send form is shown.
func (s QuickActionsSection) CanSend() bool { return s.SendTo != uuid.Nil }

// CanUpdate reports whether the viewer may move a's status on.
func (s QuickActionsSection) CanUpdate(a quickactions.Action) bool {
	return a.ToUserID == s.UserID && a.Status != shared.ActionDone
}

// TasksSection backs partials/tasks.html.
type TasksSection struct {
	Tasks []tasks.Task
	Error string
}

// NotesSection backs partials/notes.html.
type NotesSection struct {
	Notes []notes.Note
	Error string
}

// FocusSection backs partials/focus.html.
type FocusSection struct {
	Items []focus.Item
	Error string
}

func (h *Handler) showDashboard(w http.ResponseWriter, r *http.Request) {
	ac := authctx.FromContext(r.Context())
	if ac == nil {
		http.Redirect(w, r, "/auth", http.StatusSeeOther)
		return
	}
	snap := ac.Snapshot()
	page := h.pages[navigation.Classify(snap.Roles)]
	data := page.load(h, r.Context(), snap)
	if err := h.templates.Render(w, page.template, view.Page(r, h.csrf, page.title, data)); err != nil {
		h.logger.Error("render dashboard", slog.String("template", page.template), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// sections runs loaders concurrently. A failing loader marks its section
// failed and never cancels the others.
type sections struct {
	h       *Handler
	variant navigation.Variant
	group   *errgroup.Group
	ctx     context.Context
	failed  chan string
}

func (h *Handler) newSections(ctx context.Context, variant navigation.Variant) *sections {
	g, gctx := errgroup.WithContext(ctx)
	return &sections{h: h, variant: variant, group: g, ctx: gctx, failed: make(chan string, 16)}
}

func (s *sections) load(name string, fn func(ctx context.Context) error) {
	s.group.Go(func() error {
		if err := fn(s.ctx); err != nil {
			s.h.logger.Error("load dashboard section",
				slog.String("variant", s.variant.String()), slog.String("section", name), slog.Any("error", err))
			if s.h.recorder != nil {
				s.h.recorder.RecordSectionError(s.variant.String(), name)
			}
			s.failed <- name
		}
		return nil
	})
}

func (s *sections) wait() map[string]bool {
	_ = s.group.Wait()
	close(s.failed)
	out := make(map[string]bool)
	for name := range s.failed {
		out[name] = true
	}
	return out
}

func (h *Handler) loadPrincipal(ctx context.Context, snap authctx.Snapshot) any {
	data := &PrincipalData{QuickActions: QuickActionsSection{UserID: snap.UserID()}}
	s := h.newSections(ctx, navigation.VariantPrincipal)
	s.load("critical", func(ctx context.Context) (err error) {
		data.Critical, err = h.deps.WorkItems.Critical(ctx)
		return err
	})
	s.load("pulse", func(ctx context.Context) (err error) {
		data.Pulse, err = h.deps.WorkItems.Pulse(ctx)
		return err
	})
	s.load("quick_actions", func(ctx context.Context) (err error) {
		data.QuickActions.Actions, err = h.deps.QuickActions.Recent(ctx)
		return err
	})
	s.load("team_feed", func(ctx context.Context) (err error) {
		data.TeamFeed, err = h.deps.Submissions.TeamFeed(ctx, teamFeedLimit)
		return err
	})
	data.Failed = s.wait()
	return data
}

func (h *Handler) loadEA(ctx context.Context, snap authctx.Snapshot) any {
	data := &EAData{}
	s := h.newSections(ctx, navigation.VariantEA)
	s.load("pulse", func(ctx context.Context) (err error) {
		data.Pulse, err = h.deps.WorkItems.Pulse(ctx)
		return err
	})
	s.load("quick_actions", func(ctx context.Context) (err error) {
		data.QuickActions, err = h.eaQuickActions(ctx, snap.UserID())
		return err
	})
	s.load("tasks", func(ctx context.Context) (err error) {
		data.Tasks.Tasks, err = h.deps.Tasks.Open(ctx, snap.UserID())
		return err
	})
	data.Failed = s.wait()
	return data
}

func (h *Handler) loadManager(ctx context.Context, snap authctx.Snapshot) any {
	userID := snap.UserID()
	data := &ManagerData{Now: h.now(), QuickActions: QuickActionsSection{UserID: userID}}
	s := h.newSections(ctx, navigation.VariantDefault)
	s.load("focus", func(ctx context.Context) (err error) {
		data.Focus.Items, err = h.deps.Focus.Active(ctx, userID)
		return err
	})
	s.load("notes", func(ctx context.Context) (err error) {
		data.Notes.Notes, err = h.deps.Notes.ForTarget(ctx, userID, notesLimit)
		return err
	})
	s.load("quick_actions", func(ctx context.Context) (err error) {
		data.QuickActions.Actions, err = h.deps.QuickActions.ForUser(ctx, userID)
		return err
	})
	s.load("items", func(ctx context.Context) (err error) {
		data.Items, err = h.deps.WorkItems.ActiveForOwner(ctx, userID, myItemsLimit)
		return err
	})
	s.load("reminders", func(ctx context.Context) (err error) {
		data.Reminders, err = h.deps.Reminders.Upcoming(ctx, userID, remindersLimit)
		return err
	})
	s.load("streak", func(ctx context.Context) (err error) {
		data.Streak, err = h.deps.Submissions.Streak(ctx, userID)
		return err
	})
	data.Failed = s.wait()
	return data
}

// eaQuickActions lists the exchange between the EA and the principal. With
// no principal on record the section is empty and the form hidden.
func (h *Handler) eaQuickActions(ctx context.Context, userID uuid.UUID) (QuickActionsSection, error) {
	section := QuickActionsSection{UserID: userID}
	principalID, ok, err := h.deps.Principals.PrincipalID(ctx)
	if err != nil || !ok {
		return section, err
	}
	section.SendTo = principalID
	section.Actions, err = h.deps.QuickActions.Between(ctx, userID, principalID)
	return section, err
}
