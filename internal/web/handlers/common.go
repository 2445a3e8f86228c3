package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/camera"
	"github.com/kozaktomas/face-attendance/internal/registry"
)

// result is the body of every mutating endpoint.
type result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondOK sends a successful result.
func respondOK(w http.ResponseWriter, message string) {
	respondJSON(w, http.StatusOK, result{Success: true, Message: message})
}

// respondError sends a failed result.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, result{Success: false, Message: message})
}

// statusFor maps domain errors to HTTP status codes for endpoints that do not
// answer with a result body.
func statusFor(err error) int {
	switch {
	case errors.Is(err, registry.ErrInvalidIdentity):
		return http.StatusBadRequest
	case errors.Is(err, registry.ErrNotFound), errors.Is(err, attendance.ErrNoLogToReset):
		return http.StatusNotFound
	case errors.Is(err, registry.ErrIdentityExists):
		return http.StatusConflict
	case errors.Is(err, registry.ErrNoFaceDetected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, camera.ErrCameraUnavailable), errors.Is(err, camera.ErrCameraClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondRejected reports a failed mutation. The browser client reads the
// outcome from the success field, so the status stays 200.
func respondRejected(w http.ResponseWriter, message string) {
	respondJSON(w, http.StatusOK, result{Success: false, Message: message})
}

// logUnexpected logs err unless it is an expected domain failure.
func logUnexpected(r *http.Request, err error) {
	if statusFor(err) == http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", sanitizeForLog(r.URL.Path), "error", err)
	}
}

// respondFailure logs unexpected errors and reports message as a rejected mutation.
func respondFailure(w http.ResponseWriter, r *http.Request, err error, message string) {
	logUnexpected(r, err)
	respondRejected(w, message)
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
