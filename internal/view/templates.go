package view

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/spark-playbook/playbook/internal/authctx"
	"github.com/spark-playbook/playbook/internal/navigation"
	"github.com/spark-playbook/playbook/internal/shared"
	"github.com/spark-playbook/playbook/web"
)

// Engine renders HTML templates.
type Engine struct {
	templates *template.Template
}

// TemplateData contains values shared across templates.
type TemplateData struct {
	Title       string
	CSRFToken   string
	Flash       *shared.FlashMessage
	CurrentPath string
	Chrome      *Chrome
	Data        any
}

// Chrome is the signed-in shell: sidebar sections and the user badge.
type Chrome struct {
	Name      string
	Email     string
	Initials  string
	RoleLabel string
	Sections  []navigation.Section
	Settings  navigation.Item
}

// NewChrome derives the shell from an auth snapshot. It returns nil when
// nobody is signed in.
func NewChrome(snap authctx.Snapshot) *Chrome {
	if !snap.SignedIn() {
		return nil
	}
	c := &Chrome{
		Email:     snap.Identity.Email,
		RoleLabel: navigation.RoleLabel(snap.Roles),
		Sections:  navigation.Sections(snap.Roles),
		Settings:  navigation.SettingsItem,
	}
	if snap.Profile != nil {
		c.Name = snap.Profile.FullName
		c.Initials = snap.Profile.Initials()
	}
	if c.Name == "" {
		c.Name = c.Email
	}
	if c.Initials == "" && c.Email != "" {
		c.Initials = strings.ToUpper(c.Email[:1])
	}
	return c
}

// Page assembles TemplateData for the request: CSRF token and pending flash
// from the browser session plus the shell from the auth context.
func Page(r *http.Request, csrf *shared.CSRFManager, title string, data any) TemplateData {
	ctx := r.Context()
	td := TemplateData{Title: title, CurrentPath: r.URL.Path, Data: data}
	if sess := shared.SessionFromContext(ctx); sess != nil {
		if csrf != nil {
			td.CSRFToken, _ = csrf.EnsureToken(ctx, sess)
		}
		td.Flash = sess.PopFlash()
	}
	if ac := authctx.FromContext(ctx); ac != nil {
		td.Chrome = NewChrome(ac.Snapshot())
	}
	return td
}

// NewEngine parses templates at build-time.
func NewEngine() (*Engine, error) {
	funcMap := template.FuncMap{
		"formatDate": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("02 Jan 2006 15:04")
		},
		"formatDay": formatDay,
		"ago":       timeAgo,
		"active": func(current, url string) bool {
			return current == url
		},
		"withData": func(td TemplateData, data any) TemplateData {
			td.Data = data
			return td
		},
	}
	tpl, err := template.New("root").Funcs(funcMap).ParseFS(web.Templates, "templates/layouts/*.html", "templates/partials/*.html", "templates/pages/*.html")
	if err != nil {
		return nil, err
	}
	return &Engine{templates: tpl}, nil
}

// Render executes a named template with TemplateData.
func (e *Engine) Render(w http.ResponseWriter, name string, data TemplateData) error {
	return e.RenderStatus(w, http.StatusOK, name, data)
}

// RenderStatus renders into a buffer first so a template error does not
// leave a half-written page behind the status line.
func (e *Engine) RenderStatus(w http.ResponseWriter, status int, name string, data TemplateData) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	var buf bytes.Buffer
	if err := e.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

// formatDay accepts time.Time or *time.Time; nil and zero render empty.
func formatDay(v any) string {
	var t time.Time
	switch tv := v.(type) {
	case time.Time:
		t = tv
	case *time.Time:
		if tv != nil {
			t = *tv
		}
	}
	if t.IsZero() {
		return ""
	}
	return t.Format("Jan 2")
}

func timeAgo(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
