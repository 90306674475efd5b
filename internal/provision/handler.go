package provision

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/spark-playbook/playbook/internal/platform/httpx"
)

// Path is where the bootstrap endpoint is mounted.
const Path = "/functions/bootstrap-admin"

// Handler exposes Service over HTTP behind a bearer key.
type Handler struct {
	service *Service
	key     string
	logger  *slog.Logger
}

// NewHandler constructs a Handler. key must not be empty.
func NewHandler(service *Service, key string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, key: key, logger: logger}
}

// MountRoutes registers the endpoint and its preflight.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Options(Path, h.preflight)
	r.Post(Path, h.bootstrap)
}

func setCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "authorization, x-client-info, apikey, content-type")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
}

func (h *Handler) preflight(w http.ResponseWriter, _ *http.Request) {
	setCORS(w)
	w.WriteHeader(http.StatusOK)
}

type errorBody struct {
	Error string `json:"error"`
}

type successBody struct {
	Success bool   `json:"success"`
	UserID  string `json:"user_id"`
}

func (h *Handler) bootstrap(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	if !h.authorized(r) {
		httpx.JSON(w, http.StatusUnauthorized, errorBody{Error: httpx.ErrUnauthorized.Error()})
		return
	}
	var in Input
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.JSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	id, err := h.service.Provision(r.Context(), in)
	if err != nil {
		h.logger.Warn("bootstrap account failed", slog.String("email", in.Email), slog.Any("error", err))
		httpx.JSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	httpx.JSON(w, http.StatusOK, successBody{Success: true, UserID: id.String()})
}

func (h *Handler) authorized(r *http.Request) bool {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || h.key == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.key)) == 1
}
