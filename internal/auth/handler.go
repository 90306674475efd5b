package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/spark-playbook/playbook/internal/authctx"
	"github.com/spark-playbook/playbook/internal/identity"
	"github.com/spark-playbook/playbook/internal/shared"
	"github.com/spark-playbook/playbook/internal/view"
)

const (
	welcomeBack   = "Welcome back!"
	checkYourMail = "Check your email to verify your account"
	sessionFailed = "Something went wrong while signing you in. Please try again."
)

// Confirmer redeems confirmation links. Satisfied by *identity.Provider.
type Confirmer interface {
	ConfirmEmail(ctx context.Context, token string) (identity.Identity, error)
}

// SessionRotator moves a browser session to a fresh ID once its signed-in
// identity changed, carrying the identity token along.
type SessionRotator interface {
	RotateSession(ctx context.Context, sess *shared.Session) error
}

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger    *slog.Logger
	confirmer Confirmer
	templates *view.Engine
	csrf      *shared.CSRFManager
	rotator   SessionRotator
	validator *validator.Validate
}

// NewHandler constructs a Handler instance. rotator may be nil.
func NewHandler(logger *slog.Logger, confirmer Confirmer, templates *view.Engine, csrf *shared.CSRFManager, rotator SessionRotator) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		confirmer: confirmer,
		templates: templates,
		csrf:      csrf,
		rotator:   rotator,
		validator: validator.New(),
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.showAuth)
	r.Post("/login", h.handleLogin)
	r.Post("/signup", h.handleSignUp)
	r.Post("/logout", h.handleLogout)
	r.Get("/confirm", h.handleConfirm)
}

func (h *Handler) showAuth(w http.ResponseWriter, r *http.Request) {
	if ac := authctx.FromContext(r.Context()); ac != nil && ac.Snapshot().SignedIn() {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	tab := tabSignIn
	if r.URL.Query().Get("tab") == tabSignUp {
		tab = tabSignUp
	}
	h.render(w, r, http.StatusOK, pageData{Tab: tab})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	ac := authctx.FromContext(r.Context())
	if ac == nil {
		h.logger.Error("auth context missing during login")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	form := signInForm{
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
	}
	data := pageData{Tab: tabSignIn, SignIn: form, Errors: map[string]string{}}
	if err := h.validator.Struct(form); err != nil {
		data.Errors = fieldErrors(err)
		h.render(w, r, http.StatusBadRequest, data)
		return
	}

	if err := ac.SignIn(r.Context(), form.Email, form.Password); err != nil {
		h.logger.Info("sign-in rejected",
			slog.String("kind", string(shared.ClassifyAuthError(err))), slog.Any("error", err))
		data.Errors["general"] = shared.UserSafeMessage(err)
		h.render(w, r, http.StatusBadRequest, data)
		return
	}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		if err := h.rotateSession(r.Context(), sess); err != nil {
			h.logger.Error("rotate session after sign-in", slog.Any("error", err))
			ac.SignOut(r.Context())
			data.Errors["general"] = sessionFailed
			h.render(w, r, http.StatusInternalServerError, data)
			return
		}
		sess.AddFlash(shared.FlashMessage{Kind: "success", Message: welcomeBack})
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) handleSignUp(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	ac := authctx.FromContext(r.Context())
	if ac == nil {
		h.logger.Error("auth context missing during sign-up")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	form := signUpForm{
		FullName: strings.TrimSpace(r.PostFormValue("full_name")),
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
	}
	data := pageData{Tab: tabSignUp, SignUp: form, Errors: map[string]string{}}
	if err := h.validator.Struct(form); err != nil {
		data.Errors = fieldErrors(err)
		h.render(w, r, http.StatusBadRequest, data)
		return
	}

	if err := ac.SignUp(r.Context(), form.Email, form.Password, form.FullName); err != nil {
		h.logger.Info("sign-up rejected",
			slog.String("kind", string(shared.ClassifyAuthError(err))), slog.Any("error", err))
		data.Errors["general"] = shared.UserSafeMessage(err)
		h.render(w, r, http.StatusBadRequest, data)
		return
	}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: "success", Message: checkYourMail})
	}
	http.Redirect(w, r, "/auth", http.StatusSeeOther)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if ac := authctx.FromContext(r.Context()); ac != nil {
		ac.SignOut(r.Context())
	}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		if err := h.rotateSession(r.Context(), sess); err != nil {
			h.logger.Warn("rotate session after sign-out", slog.Any("error", err))
		}
	}
	http.Redirect(w, r, "/auth", http.StatusSeeOther)
}

// rotateSession issues a fresh session ID and CSRF token once the signed-in
// identity changed. The CSRF token binds to the new ID.
func (h *Handler) rotateSession(ctx context.Context, sess *shared.Session) error {
	if h.rotator != nil {
		if err := h.rotator.RotateSession(ctx, sess); err != nil {
			return err
		}
	}
	if h.csrf == nil {
		return nil
	}
	if _, err := h.csrf.Rotate(sess); err != nil {
		h.logger.Warn("rotate csrf token", slog.Any("error", err))
	}
	return nil
}

func (h *Handler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	flash := shared.FlashMessage{Kind: "success", Message: "Email confirmed. You can sign in now."}
	if _, err := h.confirmer.ConfirmEmail(r.Context(), r.URL.Query().Get("token")); err != nil {
		h.logger.Warn("email confirmation failed", slog.Any("error", err))
		flash = shared.FlashMessage{Kind: "error", Message: "This confirmation link is invalid or has expired"}
	}
	if sess != nil {
		sess.AddFlash(flash)
	}
	http.Redirect(w, r, "/auth", http.StatusSeeOther)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, data pageData) {
	title := "Sign In"
	if data.Tab == tabSignUp {
		title = "Sign Up"
	}
	if err := h.templates.RenderStatus(w, status, "pages/auth.html", view.Page(r, h.csrf, title, data)); err != nil {
		h.logger.Error("render auth page", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
