package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/RichardoC/leadline/internal/db"
	"github.com/RichardoC/leadline/internal/llm"
	"github.com/RichardoC/leadline/internal/logging"
	"github.com/RichardoC/leadline/internal/mail"
	"github.com/RichardoC/leadline/internal/research"
	"github.com/RichardoC/leadline/internal/session"
)

type Handler struct {
	db            *db.Database
	sessions      *session.Service
	llm           *llm.Service
	research      *research.Service
	notifier      *mail.Notifier
	logger        *zap.Logger
	adminToken    string
	allowedOrigin string
	now           func() time.Time
}

// Options carries everything the handlers depend on.
type Options struct {
	DB            *db.Database
	Sessions      *session.Service
	LLM           *llm.Service
	Research      *research.Service
	Notifier      *mail.Notifier
	Logger        *zap.Logger
	AdminToken    string // empty disables the admin routes
	AllowedOrigin string
}

func NewHandler(opts Options) *Handler {
	return &Handler{
		db:            opts.DB,
		sessions:      opts.Sessions,
		llm:           opts.LLM,
		research:      opts.Research,
		notifier:      opts.Notifier,
		logger:        opts.Logger,
		adminToken:    opts.AdminToken,
		allowedOrigin: opts.AllowedOrigin,
		now:           time.Now,
	}
}

// Router wires every route. CORS and request logging wrap the whole mux so
// they also cover preflight and unmatched requests.
func (h *Handler) Router() http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.HandleFunc("/healthz", h.Health).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/chat", h.Chat).Methods(http.MethodPost)
	api.HandleFunc("/leads", h.CaptureLead).Methods(http.MethodPost)

	intel := api.PathPrefix("/intelligence").Subrouter()
	intel.HandleFunc("/intent", h.DetectIntent).Methods(http.MethodPost)
	intel.HandleFunc("/role", h.DetectRole).Methods(http.MethodPost)
	intel.HandleFunc("/suggest-tools", h.SuggestTools).Methods(http.MethodPost)
	intel.HandleFunc("/context/{session_id}", h.GetContext).Methods(http.MethodGet)
	intel.HandleFunc("/capabilities", h.RecordCapability).Methods(http.MethodPost)

	api.HandleFunc("/meetings", h.BookMeeting).Methods(http.MethodPost)
	api.HandleFunc("/meetings/{id}", h.GetMeeting).Methods(http.MethodGet)
	api.HandleFunc("/meetings/{id}/cancel", h.CancelMeeting).Methods(http.MethodPost)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(h.requireAdmin)
	admin.HandleFunc("/leads", h.ListLeads).Methods(http.MethodGet)
	admin.HandleFunc("/leads/export", h.ExportLeads).Methods(http.MethodGet)
	admin.HandleFunc("/leads/{id}", h.GetLead).Methods(http.MethodGet)
	admin.HandleFunc("/leads/{id}", h.UpdateLead).Methods(http.MethodPatch)
	admin.HandleFunc("/leads/{id}", h.DeleteLead).Methods(http.MethodDelete)
	admin.HandleFunc("/leads/{id}/research", h.ResearchLead).Methods(http.MethodPost)
	admin.HandleFunc("/activity", h.ListActivity).Methods(http.MethodGet)
	admin.HandleFunc("/stats", h.Stats).Methods(http.MethodGet)
	admin.HandleFunc("/meetings", h.ListMeetings).Methods(http.MethodGet)
	admin.HandleFunc("/sessions/{id}/messages", h.SessionMessages).Methods(http.MethodGet)

	return h.cors(logging.Middleware(h.logger)(r))
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(r.Context()); err != nil {
		h.logger.Error("Health check failed", zap.Error(err))
		h.writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
