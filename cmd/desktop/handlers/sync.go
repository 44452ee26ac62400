package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/leobar37/leobit2-sub001/internal/errors"
	syncpkg "github.com/leobar37/leobit2-sub001/internal/sync"
	"github.com/leobar37/leobit2-sub001/internal/sync/queue"
	"github.com/leobar37/leobit2-sub001/internal/uuid"
)

const (
	defaultQueueLimit = 50
	maxQueueLimit     = 500
)

// SyncHandler exposes the sync engine and the local queue.
type SyncHandler struct {
	engine syncpkg.SyncEngineInterface
	queue  *queue.Store
}

// NewSyncHandler creates a new SyncHandler.
func NewSyncHandler(engine syncpkg.SyncEngineInterface, queue *queue.Store) *SyncHandler {
	return &SyncHandler{engine: engine, queue: queue}
}

// Register mounts the sync routes.
func (h *SyncHandler) Register(r chi.Router) {
	r.Route("/api/sync", func(r chi.Router) {
		r.Post("/operations", h.EnqueueOperation)
		r.Get("/operations/{id}", h.GetOperation)
		r.Get("/queue", h.ListQueue)
		r.Get("/status", h.GetStatus)
		r.Post("/now", h.TriggerSync)
	})
}

// EnqueueOperation handles POST /api/sync/operations
// Records a mutation and returns its operation id.
func (h *SyncHandler) EnqueueOperation(w http.ResponseWriter, r *http.Request) {
	var in syncpkg.OperationInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, apperrors.Wrap(apperrors.ErrInvalid, "invalid request body", err))
		return
	}

	id, err := h.engine.EnqueueOperation(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":     id,
		"status": queue.StatusPending,
	})
}

// GetOperation handles GET /api/sync/operations/{id}
func (h *SyncHandler) GetOperation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := uuid.Validate(id); err != nil {
		writeError(w, apperrors.Wrap(apperrors.ErrInvalid, "malformed operation id", err))
		return
	}
	item, ok := h.queue.GetOperation(r.Context(), id)
	if !ok {
		writeError(w, apperrors.New(apperrors.ErrNotFound, "operation not found"))
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// ListQueue handles GET /api/sync/queue?status=&limit=
// Lists queue items with a status (default pending), oldest first.
func (h *SyncHandler) ListQueue(w http.ResponseWriter, r *http.Request) {
	status := queue.StatusPending
	if s := r.URL.Query().Get("status"); s != "" {
		status = queue.Status(s)
		if !status.Valid() {
			writeError(w, apperrors.New(apperrors.ErrInvalid, "status must be pending, processed or failed"))
			return
		}
	}

	limit := defaultQueueLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeError(w, apperrors.New(apperrors.ErrInvalid, "limit must be a positive integer"))
			return
		}
		if n > maxQueueLimit {
			n = maxQueueLimit
		}
		limit = n
	}

	items := h.queue.ListByStatus(r.Context(), status, limit)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": status,
		"items":  items,
		"count":  len(items),
	})
}

// GetStatus handles GET /api/sync/status
// Returns engine state, timer status, queue statistics and retry counters.
func (h *SyncHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"state":       h.engine.State(),
		"scheduler":   h.engine.SchedulerStatus(),
		"queue_stats": h.queue.GetStats(r.Context()),
		"retry_stats": h.queue.GetRetryStats(),
		"storage":     h.queue.Available(),
	})
}

// TriggerSync handles POST /api/sync/now
// Starts a background cycle. With ?wait=true the cycle runs in the request
// and its result is returned.
func (h *SyncHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		result, err := h.engine.Sync(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		if result.Skipped {
			writeError(w, apperrors.New(apperrors.ErrSyncInProgress, "sync already in progress"))
			return
		}
		if result.Offline {
			writeError(w, apperrors.New(apperrors.ErrSyncOffline, "remote is unreachable"))
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":     "success",
			"pushed":     result.Pushed,
			"processed":  result.Processed,
			"retried":    result.Retried,
			"terminated": result.Terminated,
			"pulled":     result.Pulled,
			"duration":   result.Duration.Milliseconds(),
		})
		return
	}

	if err := h.engine.ForceSync(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"status": "started",
	})
}
