// Package httpapi exposes the JSON REST API.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/civicmap/civicmap/internal/domain/user"
	"github.com/civicmap/civicmap/internal/metrics"
	"github.com/civicmap/civicmap/internal/middleware"
	"github.com/civicmap/civicmap/internal/services/analytics"
	"github.com/civicmap/civicmap/internal/services/containers"
	"github.com/civicmap/civicmap/internal/services/donations"
	"github.com/civicmap/civicmap/internal/services/initiatives"
	"github.com/civicmap/civicmap/internal/services/inventoryops"
	"github.com/civicmap/civicmap/internal/services/sections"
	"github.com/civicmap/civicmap/internal/services/users"
	"github.com/civicmap/civicmap/internal/storage"
	"github.com/civicmap/civicmap/pkg/logger"
)

// Services bundles everything the API serves.
type Services struct {
	Users       *users.Service
	Inventory   *inventoryops.Service
	Initiatives *initiatives.Service
	Sections    *sections.Service
	Containers  *containers.Service
	Donations   *donations.Service
	Analytics   *analytics.Service
}

// Config tunes the HTTP surface.
type Config struct {
	WebhookSecret  string
	AllowedOrigins []string
	// RateLimit requests per second per client; zero disables limiting.
	RateLimit float64
	RateBurst int
}

type handler struct {
	svc     Services
	cfg     Config
	metrics *metrics.Metrics
	log     *logger.Logger
}

// NewRouter builds the full route table with the middleware stack applied.
func NewRouter(svc Services, cfg Config, m *metrics.Metrics, log *logger.Logger) http.Handler {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	h := &handler{svc: svc, cfg: cfg, metrics: m, log: log}

	r := mux.NewRouter()
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(middleware.Logging(log))
	if m != nil {
		r.Use(middleware.Metrics(m))
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = int(cfg.RateLimit) * 2
		}
		r.Use(middleware.RateLimit(rate.Limit(cfg.RateLimit), burst))
	}
	r.Use(middleware.Authenticate(svc.Users))

	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	if m != nil {
		r.Handle("/metrics", m.Handler()).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api").Subrouter()

	// Auth
	api.HandleFunc("/auth/register", h.register).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", h.login).Methods(http.MethodPost)
	api.HandleFunc("/auth/confirm", h.confirmEmail).Methods(http.MethodPost)
	api.HandleFunc("/auth/password-reset", h.requestPasswordReset).Methods(http.MethodPost)
	api.HandleFunc("/auth/password-reset/confirm", h.resetPassword).Methods(http.MethodPost)
	api.Handle("/auth/me", middleware.RequireAuth(http.HandlerFunc(h.me))).Methods(http.MethodGet)

	// Users (admin)
	admin := func(fn http.HandlerFunc) http.Handler {
		return middleware.RequireRole(user.RoleAdmin)(fn)
	}
	moderator := func(fn http.HandlerFunc) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !middleware.HasRole(r.Context(), user.RoleAdmin) &&
				!middleware.HasRole(r.Context(), user.RoleSectionResponsible) {
				http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
				return
			}
			fn(w, r)
		})
	}
	api.Handle("/users", admin(h.listUsers)).Methods(http.MethodGet)
	api.Handle("/users/{id}/roles", admin(h.setRoles)).Methods(http.MethodPut)
	api.Handle("/users/{id}/section", admin(h.setSection)).Methods(http.MethodPut)
	api.Handle("/users/{id}/active", admin(h.setActive)).Methods(http.MethodPut)

	// Inventory
	api.HandleFunc("/inventory/map", h.inventoryMap).Methods(http.MethodGet)
	api.Handle("/inventory", middleware.RequireAuth(http.HandlerFunc(h.reportItem))).Methods(http.MethodPost)
	api.Handle("/inventory/pending", moderator(h.pendingItems)).Methods(http.MethodGet)
	api.HandleFunc("/inventory/{id}", h.getItem).Methods(http.MethodGet)
	api.HandleFunc("/inventory/{id}/share", h.shareItem).Methods(http.MethodPost)
	api.Handle("/inventory/{id}/importance", middleware.RequireAuth(http.HandlerFunc(h.voteImportance))).Methods(http.MethodPost)
	api.Handle("/inventory/{id}/resolved", middleware.RequireAuth(http.HandlerFunc(h.reportResolved))).Methods(http.MethodPost)
	api.Handle("/inventory/{id}/approve", moderator(h.approveItem)).Methods(http.MethodPost)
	api.Handle("/inventory/{id}/reject", moderator(h.rejectItem)).Methods(http.MethodPost)
	api.Handle("/inventory/{id}/resolve", moderator(h.resolveItem)).Methods(http.MethodPost)
	api.Handle("/inventory/{id}/remove", admin(h.removeItem)).Methods(http.MethodPost)
	api.HandleFunc("/categories", h.listCategories).Methods(http.MethodGet)

	// Initiatives
	api.HandleFunc("/initiatives", h.listInitiatives).Methods(http.MethodGet)
	api.Handle("/initiatives", middleware.RequireAuth(http.HandlerFunc(h.createInitiative))).Methods(http.MethodPost)
	api.Handle("/initiatives/pending", admin(h.pendingInitiatives)).Methods(http.MethodGet)
	api.HandleFunc("/initiatives/{slug}", h.getInitiative).Methods(http.MethodGet)
	api.Handle("/initiatives/{id}/approve", admin(h.approveInitiative)).Methods(http.MethodPost)
	api.Handle("/initiatives/{id}/reject", admin(h.rejectInitiative)).Methods(http.MethodPost)
	api.Handle("/initiatives/{id}/cancel", middleware.RequireAuth(http.HandlerFunc(h.cancelInitiative))).Methods(http.MethodPost)
	api.Handle("/initiatives/{id}/join", middleware.RequireAuth(http.HandlerFunc(h.joinInitiative))).Methods(http.MethodPost)
	api.Handle("/initiatives/{id}/leave", middleware.RequireAuth(http.HandlerFunc(h.leaveInitiative))).Methods(http.MethodPost)
	api.HandleFunc("/initiatives/{id}/participate", h.participate).Methods(http.MethodPost)
	api.HandleFunc("/initiatives/{id}/comments", h.listComments).Methods(http.MethodGet)
	api.Handle("/initiatives/{id}/comments", middleware.RequireAuth(http.HandlerFunc(h.addComment))).Methods(http.MethodPost)
	api.Handle("/comments/{id}", admin(h.deleteComment)).Methods(http.MethodDelete)

	// Container points
	api.HandleFunc("/containers", h.listContainerPoints).Methods(http.MethodGet)
	api.Handle("/containers", moderator(h.createContainerPoint)).Methods(http.MethodPost)
	api.Handle("/containers/suggestions", moderator(h.listContainerSuggestions)).Methods(http.MethodGet)
	api.Handle("/containers/suggest", middleware.RequireAuth(http.HandlerFunc(h.suggestContainerPoint))).Methods(http.MethodPost)
	api.Handle("/containers/{id}/status", moderator(h.setContainerStatus)).Methods(http.MethodPut)
	api.Handle("/containers/{id}/overflow", middleware.RequireAuth(http.HandlerFunc(h.reportContainerOverflow))).Methods(http.MethodPost)
	api.Handle("/containers/{id}", moderator(h.deleteContainerPoint)).Methods(http.MethodDelete)

	// Zones
	api.HandleFunc("/zones/districts", h.listDistricts).Methods(http.MethodGet)
	api.HandleFunc("/zones/sections", h.listSections).Methods(http.MethodGet)
	api.HandleFunc("/zones/locate", h.locate).Methods(http.MethodGet)

	// Donations and payments
	api.HandleFunc("/donations", h.startDonation).Methods(http.MethodPost)
	api.Handle("/donations", admin(h.listDonations)).Methods(http.MethodGet)
	api.HandleFunc("/reports/purchase", h.startReportPurchase).Methods(http.MethodPost)
	api.HandleFunc("/webhooks/stripe", h.stripeWebhook).Methods(http.MethodPost)
	// Older deployments registered this webhook path with the payment
	// provider; both routes stay live.
	r.HandleFunc("/donate/webhook", h.stripeWebhook).Methods(http.MethodPost)

	// Analytics
	api.HandleFunc("/analytics/summary", h.analyticsSummary).Methods(http.MethodGet)
	api.HandleFunc("/analytics/by-zone", h.analyticsByZone).Methods(http.MethodGet)
	api.HandleFunc("/analytics/trends", h.analyticsTrends).Methods(http.MethodGet)
	api.HandleFunc("/analytics/top-categories", h.analyticsTopCategories).Methods(http.MethodGet)
	api.Handle("/analytics/export", admin(h.analyticsExport)).Methods(http.MethodGet)
	api.HandleFunc("/analytics/report/{token}", h.downloadReport).Methods(http.MethodGet)

	return r
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

var errForbidden = errors.New("forbidden")

// decodeJSON decodes a request body, rejecting unknown fields.
func decodeJSON(r io.Reader, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// writeServiceError maps storage sentinels onto HTTP statuses; anything else
// is treated as a bad request.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, storage.ErrConflict):
		writeError(w, http.StatusConflict, err)
	default:
		writeError(w, http.StatusBadRequest, err)
	}
}
