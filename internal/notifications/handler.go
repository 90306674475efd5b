package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/spark-playbook/playbook/internal/authctx"
	"github.com/spark-playbook/playbook/internal/shared"
	"github.com/spark-playbook/playbook/internal/view"
)

// Store is satisfied by *Repository.
type Store interface {
	Unread(ctx context.Context, userID uuid.UUID, limit int) ([]Notification, error)
	MarkRead(ctx context.Context, id, userID uuid.UUID) error
}

// Subscriber is satisfied by *Hub.
type Subscriber interface {
	Subscribe(userID uuid.UUID) (<-chan Notification, func())
}

// StreamRecorder tracks open streams and delivered rows.
// observability.Metrics satisfies it.
type StreamRecorder interface {
	StreamOpened() func()
	NotificationDelivered()
}

// View backs partials/notifications.html.
type View struct {
	Items  []Notification
	Unread int
}

// Handler serves the badge dropdown, the mark-read action and the
// realtime event stream.
type Handler struct {
	logger    *slog.Logger
	store     Store
	hub       Subscriber
	templates *view.Engine
	csrf      *shared.CSRFManager
	recorder  StreamRecorder
	heartbeat time.Duration
}

// NewHandler constructs a Handler. recorder may be nil.
func NewHandler(logger *slog.Logger, store Store, hub Subscriber, templates *view.Engine, csrf *shared.CSRFManager, recorder StreamRecorder) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		store:     store,
		hub:       hub,
		templates: templates,
		csrf:      csrf,
		recorder:  recorder,
		heartbeat: 25 * time.Second,
	}
}

// MountRoutes registers notification routes on the signed-in router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/{id}/read", h.markRead)
	r.Get("/stream", h.stream)
}

func currentUser(r *http.Request) (uuid.UUID, bool) {
	ac := authctx.FromContext(r.Context())
	if ac == nil {
		return uuid.Nil, false
	}
	id := ac.Snapshot().UserID()
	return id, id != uuid.Nil
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	h.renderList(w, r, userID)
}

func (h *Handler) renderList(w http.ResponseWriter, r *http.Request, userID uuid.UUID) {
	rows, err := h.store.Unread(r.Context(), userID, FeedLimit)
	if err != nil {
		h.logger.Error("load notifications", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	feed := NewFeed(rows)
	td := view.TemplateData{Data: View{Items: feed.Items(), Unread: feed.Unread()}}
	if sess := shared.SessionFromContext(r.Context()); sess != nil && h.csrf != nil {
		td.CSRFToken, _ = h.csrf.EnsureToken(r.Context(), sess)
	}
	if err := h.templates.Render(w, "partials/notifications.html", td); err != nil {
		h.logger.Error("render notifications", slog.Any("error", err))
	}
}

func (h *Handler) markRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err == nil {
		err = h.store.MarkRead(r.Context(), id, userID)
	} else {
		err = ErrNotFound
	}
	if err != nil {
		h.logger.Warn("mark notification read", slog.Any("error", err))
	}
	if r.Header.Get("HX-Request") != "true" {
		if sess := shared.SessionFromContext(r.Context()); sess != nil && err != nil {
			sess.AddFlash(shared.FlashMessage{Kind: "error", Message: "Could not update the notification"})
		}
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	h.renderList(w, r, userID)
}

type streamEvent struct {
	Notification Notification `json:"notification"`
	Unread       int          `json:"unread"`
}

// stream pushes rows inserted for the signed-in user as Server-Sent Events.
// The feed is seeded from the unread query so a row already listed is not
// counted twice.
func (h *Handler) stream(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	events, unsubscribe := h.hub.Subscribe(userID)
	defer unsubscribe()
	if h.recorder != nil {
		defer h.recorder.StreamOpened()()
	}

	rows, err := h.store.Unread(r.Context(), userID, FeedLimit)
	if err != nil {
		h.logger.Warn("seed notification stream", slog.Any("error", err))
	}
	feed := NewFeed(rows)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "retry: 5000\n\n")
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case n, open := <-events:
			if !open {
				return
			}
			if !feed.Push(n) {
				continue
			}
			payload, err := json.Marshal(streamEvent{Notification: n, Unread: feed.Unread()})
			if err != nil {
				h.logger.Warn("encode notification event", slog.Any("error", err))
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %s\nevent: notification\ndata: %s\n\n", n.ID, payload); err != nil {
				h.logger.Debug("notification stream closed", slog.Any("error", err))
				return
			}
			flusher.Flush()
			if h.recorder != nil {
				h.recorder.NotificationDelivered()
			}
		}
	}
}
