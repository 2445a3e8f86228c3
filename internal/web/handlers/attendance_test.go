package handlers

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/kozaktomas/face-attendance/internal/attendance"
)

func newTestLog(t *testing.T) *attendance.Log {
	t.Helper()
	log, err := attendance.Open(filepath.Join(t.TempDir(), "attendance.csv"))
	if err != nil {
		t.Fatalf("attendance.Open() error = %v", err)
	}
	return log
}

func TestAttendanceHandler_SessionAndHistory(t *testing.T) {
	log := newTestLog(t)
	for _, name := range []string{"Alice", "Bob", "Alice"} {
		if _, err := log.MarkIfNew(name); err != nil {
			t.Fatal(err)
		}
	}
	h := NewAttendanceHandler(log)

	recorder := httptest.NewRecorder()
	h.Session(recorder, httptest.NewRequest(http.MethodGet, "/api/attendance_log", nil))
	assertStatusCode(t, recorder, http.StatusOK)
	var session map[string][][]string
	parseJSONResponse(t, recorder, &session)
	if len(session["attendance"]) != 2 || session["attendance"][0][0] != "Alice" {
		t.Errorf("attendance = %v", session["attendance"])
	}

	recorder = httptest.NewRecorder()
	h.History(recorder, httptest.NewRequest(http.MethodGet, "/api/attendance_history", nil))
	assertStatusCode(t, recorder, http.StatusOK)
	var history map[string][][]string
	parseJSONResponse(t, recorder, &history)
	if len(history["history"]) != 2 || history["history"][1][0] != "Bob" {
		t.Errorf("history = %v", history["history"])
	}
}

func TestAttendanceHandler_Clear(t *testing.T) {
	log := newTestLog(t)
	if _, err := log.MarkIfNew("Alice"); err != nil {
		t.Fatal(err)
	}
	h := NewAttendanceHandler(log)

	recorder := httptest.NewRecorder()
	h.Clear(recorder, httptest.NewRequest(http.MethodPost, "/api/clear_attendance", nil))
	assertStatusCode(t, recorder, http.StatusOK)
	assertResult(t, recorder, true, "Attendance log cleared successfully")
	if len(log.Session()) != 0 {
		t.Error("session not cleared")
	}

	if err := os.Remove(log.Path()); err != nil {
		t.Fatal(err)
	}
	recorder = httptest.NewRecorder()
	h.Clear(recorder, httptest.NewRequest(http.MethodPost, "/api/clear_attendance", nil))
	assertStatusCode(t, recorder, http.StatusOK)
	assertResult(t, recorder, false, "No attendance log to clear")
}
