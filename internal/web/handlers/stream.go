package handlers

import (
	"context"
	"iter"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-attendance/internal/pipeline"
)

// Streamer produces annotated JPEG frames.
type Streamer interface {
	Stream(ctx context.Context, mode pipeline.Mode) iter.Seq2[[]byte, error]
}

// StreamHandler serves the live camera feed.
type StreamHandler struct {
	streamer Streamer
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(s Streamer) *StreamHandler {
	return &StreamHandler{streamer: s}
}

// VideoFeed streams frames as multipart/x-mixed-replace until the client
// goes away or the camera stops delivering frames.
func (h *StreamHandler) VideoFeed(w http.ResponseWriter, r *http.Request) {
	mode, err := pipeline.ParseMode(chi.URLParam(r, "mode"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	rc := http.NewResponseController(w)
	var fw *pipeline.FrameWriter

	for jpg, err := range h.streamer.Stream(r.Context(), mode) {
		if err != nil {
			slog.Warn("starting video feed", "mode", mode, "error", err)
			respondError(w, statusFor(err), "Could not open webcam")
			return
		}

		if fw == nil {
			// The stream outlives the server's write timeout.
			_ = rc.SetWriteDeadline(time.Time{})
			w.Header().Set("Content-Type", pipeline.ContentType)
			w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
			w.WriteHeader(http.StatusOK)
			fw = pipeline.NewFrameWriter(w)
		}

		if err := fw.WriteFrame(jpg); err != nil {
			return
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}

	if fw == nil {
		respondError(w, http.StatusServiceUnavailable, "Failed to capture image")
		return
	}
	fw.Close()
}
