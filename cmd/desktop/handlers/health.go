package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// HealthHandler reports process liveness.
type HealthHandler struct {
	service string
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(service string) *HealthHandler {
	return &HealthHandler{service: service}
}

// Register mounts the health route.
func (h *HealthHandler) Register(r chi.Router) {
	r.Get("/api/health", h.Health)
}

// Health handles GET /api/health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"service": h.service,
	})
}
