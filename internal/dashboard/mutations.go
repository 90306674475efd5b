package dashboard

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/spark-playbook/playbook/internal/authctx"
	"github.com/spark-playbook/playbook/internal/focus"
	"github.com/spark-playbook/playbook/internal/navigation"
	"github.com/spark-playbook/playbook/internal/notes"
	"github.com/spark-playbook/playbook/internal/quickactions"
	"github.com/spark-playbook/playbook/internal/shared"
	"github.com/spark-playbook/playbook/internal/tasks"
	"github.com/spark-playbook/playbook/internal/view"
)

const genericActionError = "Something went wrong, please try again"

// mutation is one inline write followed by a re-fetch of its section.
type mutation struct {
	partial string
	success string
	write   func(ctx context.Context, userID uuid.UUID) error
	refetch func(ctx context.Context, snap authctx.Snapshot, failure string) (any, error)
}

func (h *Handler) sendQuickAction(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	h.apply(w, r, mutation{
		partial: "partials/quick_actions.html",
		success: "Quick action sent",
		write: func(ctx context.Context, userID uuid.UUID) error {
			to, err := uuid.Parse(r.PostFormValue("to_user_id"))
			if err != nil {
				return quickactions.ErrNotFound
			}
			in := quickactions.NewAction{FromUserID: userID, ToUserID: to, Content: r.PostFormValue("content")}
			if p := shared.Priority(r.PostFormValue("priority")); p.Valid() {
				in.Priority = &p
			}
			_, err = h.deps.QuickActions.Send(ctx, in)
			return err
		},
		refetch: h.refetchQuickActions,
	})
}

func (h *Handler) updateQuickAction(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, mutation{
		partial: "partials/quick_actions.html",
		success: "Quick action updated",
		write: func(ctx context.Context, userID uuid.UUID) error {
			id, err := uuid.Parse(chi.URLParam(r, "id"))
			if err != nil {
				return quickactions.ErrNotFound
			}
			return h.deps.QuickActions.SetStatus(ctx, id, userID, shared.ActionStatus(r.PostFormValue("status")))
		},
		refetch: h.refetchQuickActions,
	})
}

func (h *Handler) updateTask(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, mutation{
		partial: "partials/tasks.html",
		success: "Task updated",
		write: func(ctx context.Context, userID uuid.UUID) error {
			id, err := uuid.Parse(chi.URLParam(r, "id"))
			if err != nil {
				return tasks.ErrNotFound
			}
			return h.deps.Tasks.SetStatus(ctx, id, userID, shared.ActionStatus(r.PostFormValue("status")))
		},
		refetch: func(ctx context.Context, snap authctx.Snapshot, failure string) (any, error) {
			list, err := h.deps.Tasks.Open(ctx, snap.UserID())
			return TasksSection{Tasks: list, Error: failure}, err
		},
	})
}

func (h *Handler) acknowledgeNote(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, mutation{
		partial: "partials/notes.html",
		success: "Note acknowledged",
		write: func(ctx context.Context, userID uuid.UUID) error {
			id, err := uuid.Parse(chi.URLParam(r, "id"))
			if err != nil {
				return notes.ErrNotFound
			}
			return h.deps.Notes.Acknowledge(ctx, id, userID)
		},
		refetch: h.refetchNotes,
	})
}

func (h *Handler) replyNote(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, mutation{
		partial: "partials/notes.html",
		success: "Reply sent",
		write: func(ctx context.Context, userID uuid.UUID) error {
			id, err := uuid.Parse(chi.URLParam(r, "id"))
			if err != nil {
				return notes.ErrNotFound
			}
			return h.deps.Notes.Reply(ctx, id, userID, r.PostFormValue("content"))
		},
		refetch: h.refetchNotes,
	})
}

func (h *Handler) respondFocus(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, mutation{
		partial: "partials/focus.html",
		success: "Response added",
		write: func(ctx context.Context, userID uuid.UUID) error {
			id, err := uuid.Parse(chi.URLParam(r, "id"))
			if err != nil {
				return errors.New("focus item not found")
			}
			return h.deps.Focus.Respond(ctx, id, userID, r.PostFormValue("content"))
		},
		refetch: func(ctx context.Context, snap authctx.Snapshot, failure string) (any, error) {
			items, err := h.deps.Focus.Active(ctx, snap.UserID())
			return FocusSection{Items: items, Error: failure}, err
		},
	})
}

func (h *Handler) refetchQuickActions(ctx context.Context, snap authctx.Snapshot, failure string) (any, error) {
	var (
		section QuickActionsSection
		err     error
	)
	switch navigation.Classify(snap.Roles) {
	case navigation.VariantPrincipal:
		section = QuickActionsSection{UserID: snap.UserID()}
		section.Actions, err = h.deps.QuickActions.Recent(ctx)
	case navigation.VariantEA:
		section, err = h.eaQuickActions(ctx, snap.UserID())
	default:
		section = QuickActionsSection{UserID: snap.UserID()}
		section.Actions, err = h.deps.QuickActions.ForUser(ctx, snap.UserID())
	}
	section.Error = failure
	return section, err
}

func (h *Handler) refetchNotes(ctx context.Context, snap authctx.Snapshot, failure string) (any, error) {
	list, err := h.deps.Notes.ForTarget(ctx, snap.UserID(), notesLimit)
	return NotesSection{Notes: list, Error: failure}, err
}

// apply runs the write, then re-fetches only the affected collection. An
// htmx call gets the section partial back; a plain form post is redirected
// home with a flash. Write errors never touch cached auth state.
func (h *Handler) apply(w http.ResponseWriter, r *http.Request, m mutation) {
	ctx := r.Context()
	ac := authctx.FromContext(ctx)
	if ac == nil {
		http.Redirect(w, r, "/auth", http.StatusSeeOther)
		return
	}
	snap := ac.Snapshot()
	if !snap.SignedIn() {
		http.Redirect(w, r, "/auth", http.StatusSeeOther)
		return
	}

	failure := ""
	if err := m.write(ctx, snap.UserID()); err != nil {
		failure = actionMessage(err)
		h.logger.Warn("dashboard action failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}

	if r.Header.Get("HX-Request") != "true" {
		if sess := shared.SessionFromContext(ctx); sess != nil {
			if failure != "" {
				sess.AddFlash(shared.FlashMessage{Kind: "error", Message: failure})
			} else {
				sess.AddFlash(shared.FlashMessage{Kind: "success", Message: m.success})
			}
		}
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	data, err := m.refetch(ctx, snap, failure)
	if err != nil {
		h.logger.Error("refetch dashboard section", slog.String("partial", m.partial), slog.Any("error", err))
		http.Error(w, genericActionError, http.StatusInternalServerError)
		return
	}
	td := view.TemplateData{CurrentPath: "/", Data: data}
	if sess := shared.SessionFromContext(ctx); sess != nil && h.csrf != nil {
		td.CSRFToken, _ = h.csrf.EnsureToken(ctx, sess)
	}
	if err := h.templates.Render(w, m.partial, td); err != nil {
		h.logger.Error("render dashboard partial", slog.String("partial", m.partial), slog.Any("error", err))
	}
}

// actionMessage maps a write error to the text shown to the user.
func actionMessage(err error) string {
	switch {
	case errors.Is(err, quickactions.ErrEmptyContent),
		errors.Is(err, quickactions.ErrInvalidStatus),
		errors.Is(err, quickactions.ErrNotFound),
		errors.Is(err, tasks.ErrInvalidStatus),
		errors.Is(err, tasks.ErrNotFound),
		errors.Is(err, notes.ErrNotFound),
		errors.Is(err, notes.ErrEmptyReply),
		errors.Is(err, focus.ErrEmptyResponse):
		return capitalize(err.Error())
	default:
		return genericActionError
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'a' && b[0] <= 'z' {
		b[0] -= 'a' - 'A'
	}
	return string(b)
}
