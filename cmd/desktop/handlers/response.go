// Package handlers provides REST API handlers for the local sync backend.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/leobar37/leobit2-sub001/internal/errors"
	"github.com/leobar37/leobit2-sub001/internal/logging"
)

// writeJSON writes v with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn("Failed to encode response", map[string]interface{}{"error": err.Error()})
	}
}

// writeError writes an error envelope with the status matching its code.
func writeError(w http.ResponseWriter, err error) {
	code := apperrors.CodeOf(err)
	message := err.Error()
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		message = appErr.Message
	}

	writeJSON(w, statusFor(code), map[string]interface{}{
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
	})
}

func statusFor(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.ErrInvalid, apperrors.ErrValidation:
		return http.StatusBadRequest
	case apperrors.ErrNotFound:
		return http.StatusNotFound
	case apperrors.ErrSyncInProgress:
		return http.StatusConflict
	case apperrors.ErrSyncOffline, apperrors.ErrQueueUnavailable:
		return http.StatusServiceUnavailable
	case apperrors.ErrTransport, apperrors.ErrSyncTimeout:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
