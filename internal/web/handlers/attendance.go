package handlers

import (
	"errors"
	"net/http"

	"github.com/kozaktomas/face-attendance/internal/attendance"
)

// AttendanceLog is the attendance store used by the handlers.
type AttendanceLog interface {
	Reset() error
	Session() []attendance.Event
	ReadAll() ([]attendance.Event, error)
}

// AttendanceHandler exposes the attendance log.
type AttendanceHandler struct {
	log AttendanceLog
}

// NewAttendanceHandler creates a new attendance handler.
func NewAttendanceHandler(log AttendanceLog) *AttendanceHandler {
	return &AttendanceHandler{log: log}
}

// Clear truncates the log and starts a fresh session.
func (h *AttendanceHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.log.Reset(); err != nil {
		msg := "Failed to clear attendance log"
		if errors.Is(err, attendance.ErrNoLogToReset) {
			msg = "No attendance log to clear"
		}
		respondFailure(w, r, err, msg)
		return
	}
	respondOK(w, "Attendance log cleared successfully")
}

// Session returns the rows recorded since start or the last clear.
func (h *AttendanceHandler) Session(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string][][]string{
		"attendance": attendance.Rows(h.log.Session()),
	})
}

// History returns every row in the durable log.
func (h *AttendanceHandler) History(w http.ResponseWriter, r *http.Request) {
	events, err := h.log.ReadAll()
	if err != nil {
		logUnexpected(r, err)
		respondError(w, statusFor(err), "Failed to read attendance log")
		return
	}
	respondJSON(w, http.StatusOK, map[string][][]string{
		"history": attendance.Rows(events),
	})
}
