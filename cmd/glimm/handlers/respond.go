// Package handlers provides the local REST API served by `glimm serve`.
package handlers

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/kimhsiao/glimm/backend/internal/errors"
	"github.com/kimhsiao/glimm/backend/internal/logging"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn("failed to write response", logging.Fields{"error": err.Error()})
	}
}

// writeError maps coded errors to HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	code := apperrors.CodeOf(err)

	status := http.StatusInternalServerError
	switch code {
	case apperrors.ErrInvalid, apperrors.ErrValidation, apperrors.ErrEmptyInput, apperrors.ErrCorruptedArchive, apperrors.ErrDecryption:
		status = http.StatusBadRequest
	case apperrors.ErrNotFound:
		status = http.StatusNotFound
	case apperrors.ErrPermission:
		status = http.StatusForbidden
	}

	if status == http.StatusInternalServerError {
		logging.Error("request failed", err)
	}
	writeJSON(w, status, ErrorResponse{Code: string(code), Message: err.Error()})
}

func methodNotAllowed(w http.ResponseWriter) {
	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
}

// Health handles GET /api/health.
func Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "glimm"})
}
