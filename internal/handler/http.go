package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/skillboard-api/internal/attestation"
	"github.com/skillboard-api/internal/domain"
	"github.com/skillboard-api/internal/service"
	"github.com/skillboard-api/internal/websocket"
)

// Handler provides HTTP handlers for the skillboard API
type Handler struct {
	service      *service.SkillService
	attestations *attestation.Client
	hub          *websocket.Hub
	logger       *slog.Logger
}

// NewHandler creates a new HTTP handler. attestations and hub may be nil;
// the corresponding endpoints degrade gracefully.
func NewHandler(service *service.SkillService, attestations *attestation.Client, hub *websocket.Hub, logger *slog.Logger) *Handler {
	return &Handler{
		service:      service,
		attestations: attestations,
		hub:          hub,
		logger:       logger,
	}
}

// errorResponse carries a human-readable message and a stable
// machine-readable code
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)

	// Health check
	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)

	// WebSocket endpoint
	r.Get("/ws", h.HandleWebSocket)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/skills", func(r chi.Router) {
			r.Get("/", h.GetSkills)
			r.Post("/", h.CreateSkill)
			r.Put("/", h.MutateSkills)
		})

		r.Get("/admin/users", h.AdminListUsers)
		r.Get("/users", h.GetAttestedUsers)
		r.Put("/users/{address}/notifications", h.SetNotifications)
		r.Post("/webhook", h.NotificationWebhook)

		r.Get("/ws/stats", h.GetWebSocketStats)
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error JSON response with a machine-readable code
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, errorResponse{
		Error: err.Error(),
		Code:  domain.ErrorCode(err),
	})
}

// writeDomainError maps a domain error to its HTTP status
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	var decodeErr *attestation.DecodeError
	switch {
	case domain.IsValidationError(err):
		h.writeError(w, http.StatusBadRequest, err)
	case domain.IsNotFoundError(err):
		h.writeError(w, http.StatusNotFound, err)
	case errors.Is(err, domain.ErrAlreadyEndorsed):
		h.writeError(w, http.StatusConflict, err)
	case errors.As(err, &decodeErr):
		h.logger.Error("upstream attestation payload invalid", "error", err)
		h.writeJSON(w, http.StatusBadGateway, errorResponse{
			Error: "attestation indexer returned an unexpected payload",
			Code:  "upstream_invalid",
		})
	default:
		h.logger.Error("request failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
	}
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		h.writeError(w, http.StatusNotFound, domain.ErrInvalidRequest)
		return
	}
	websocket.ServeWs(h.hub, h.logger, w, r)
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	total := 0
	if h.hub != nil {
		total = h.hub.GetTotalConnections()
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"total_connections": total,
	})
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// ReadyCheck returns service readiness status
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// GetSkills lists skills. Query parameter precedence: address > skillId >
// top > all.
func (h *Handler) GetSkills(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if address := query.Get("address"); address != "" {
		skills, err := h.service.UserSkills(r.Context(), address)
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, map[string]interface{}{"skills": skills})
		return
	}

	if skillID := query.Get("skillId"); skillID != "" {
		skill, err := h.service.GetSkill(r.Context(), skillID)
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, map[string]interface{}{"skill": skill})
		return
	}

	if topStr := query.Get("top"); topStr != "" {
		limit, err := strconv.Atoi(topStr)
		if err != nil || limit <= 0 {
			limit = 10
		}
		skills, err := h.service.TopSkills(r.Context(), limit)
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, map[string]interface{}{"skills": skills})
		return
	}

	skills, err := h.service.ListSkills(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"skills": skills})
}

// CreateSkill handles skill creation
func (h *Handler) CreateSkill(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateSkillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	skill, err := h.service.CreateSkill(r.Context(), req)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]interface{}{"skill": skill})
}

// MutateSkills handles association mutations: type "add" gives an existing
// skill to a user, type "endorse" records an endorsement
func (h *Handler) MutateSkills(w http.ResponseWriter, r *http.Request) {
	var req domain.SkillMutationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	if err := req.Validate(); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	switch req.Type {
	case domain.MutationTypeAdd:
		if err := h.service.AddSkillToUser(r.Context(), req.Address, req.SkillID); err != nil {
			h.writeDomainError(w, err)
			return
		}
	case domain.MutationTypeEndorse:
		if err := h.service.Endorse(r.Context(), req.Address, req.SkilledAddress, req.SkillID); err != nil {
			h.writeDomainError(w, err)
			return
		}
	}

	h.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// AdminListUsers returns all registered users. No authentication is
// enforced; the notification flag is stripped from the response.
func (h *Handler) AdminListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	views := make([]domain.AdminUserView, len(users))
	for i := range users {
		views[i] = users[i].AdminView()
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"users":   views,
	})
}

// GetAttestedUsers serves attestation-derived views: ?skill= aggregates
// per-address endorsements for a skill, ?query= searches attested addresses
func (h *Handler) GetAttestedUsers(w http.ResponseWriter, r *http.Request) {
	if h.attestations == nil {
		h.writeError(w, http.StatusNotFound, domain.ErrInvalidRequest)
		return
	}

	query := r.URL.Query()
	skillName := query.Get("skill")
	search := query.Get("query")

	switch {
	case skillName != "":
		users, err := h.attestations.UsersWithSkill(r.Context(), skillName)
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "users": users})

	case search != "":
		addresses, err := h.attestations.SearchRecipients(r.Context(), search)
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		users := make([]map[string]string, len(addresses))
		for i, address := range addresses {
			users[i] = map[string]string{"address": address}
		}
		h.writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "users": users})

	default:
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
	}
}

// Webhook event names sent by the notification gateway
const (
	webhookNotificationsEnabled  = "notifications_enabled"
	webhookNotificationsDisabled = "notifications_disabled"
)

// NotificationWebhook receives opt-in lifecycle events from the notification
// gateway and keeps the stored delivery token in sync
func (h *Handler) NotificationWebhook(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FID   int64  `json:"fid"`
		Event string `json:"event"`
		Token string `json:"token,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	var err error
	switch req.Event {
	case webhookNotificationsEnabled:
		err = h.service.EnableNotifications(r.Context(), req.FID, req.Token)
	case webhookNotificationsDisabled:
		err = h.service.DisableNotifications(r.Context(), req.FID)
	default:
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// SetNotifications flips a user's notification opt-in flag
func (h *Handler) SetNotifications(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	if address == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	if err := h.service.SetNotificationsEnabled(r.Context(), address, req.Enabled); err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
