package handlers

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-attendance/internal/camera"
	"github.com/kozaktomas/face-attendance/internal/registry"
)

// Registry is the face registry used by the handlers.
type Registry interface {
	Enroll(ctx context.Context, identity string, frame image.Image) error
	Rename(ctx context.Context, oldIdentity, newIdentity string) error
	Replace(ctx context.Context, oldIdentity, newIdentity string, frame image.Image) error
	Delete(ctx context.Context, identity string) error
	List() []string
	Get(identity string) (registry.Record, bool)
}

// FrameSource captures a single frame from the camera.
type FrameSource interface {
	Capture(ctx context.Context) (image.Image, error)
}

// PhotoSource opens stored reference photos.
type PhotoSource interface {
	Open(ref string) (io.ReadCloser, error)
}

// FacesHandler manages enrollment.
type FacesHandler struct {
	registry Registry
	camera   FrameSource
	photos   PhotoSource
}

// NewFacesHandler creates a new faces handler.
func NewFacesHandler(reg Registry, cam FrameSource, photos PhotoSource) *FacesHandler {
	return &FacesHandler{registry: reg, camera: cam, photos: photos}
}

// capture grabs one frame and writes the failure response itself.
func (h *FacesHandler) capture(w http.ResponseWriter, r *http.Request) (image.Image, bool) {
	frame, err := h.camera.Capture(r.Context())
	if err != nil {
		slog.Warn("capturing frame", "error", err)
		if errors.Is(err, camera.ErrCameraUnavailable) {
			respondRejected(w, "Could not open webcam")
		} else {
			respondRejected(w, "Failed to capture image")
		}
		return nil, false
	}
	return frame, true
}

// Register enrolls the person in front of the camera under the posted name.
func (h *FacesHandler) Register(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		respondRejected(w, "Name is required")
		return
	}

	frame, ok := h.capture(w, r)
	if !ok {
		return
	}

	if err := h.registry.Enroll(r.Context(), name, frame); err != nil {
		respondFailure(w, r, err, enrollMessage(err, name))
		return
	}
	slog.Info("face registered", "identity", sanitizeForLog(name))
	respondOK(w, fmt.Sprintf("Registered %s successfully", name))
}

// Edit renames an identity, or re-enrolls it from a new frame when
// update_image is "true".
func (h *FacesHandler) Edit(w http.ResponseWriter, r *http.Request) {
	oldName := strings.TrimSpace(r.FormValue("old_name"))
	newName := strings.TrimSpace(r.FormValue("new_name"))
	updateImage := r.FormValue("update_image") == "true"

	if oldName == "" || newName == "" {
		respondRejected(w, "Both old and new names are required")
		return
	}
	if _, ok := h.registry.Get(oldName); !ok {
		respondRejected(w, fmt.Sprintf("%s not found", oldName))
		return
	}

	if !updateImage {
		if err := h.registry.Rename(r.Context(), oldName, newName); err != nil {
			respondFailure(w, r, err, editMessage(err, oldName, newName))
			return
		}
		respondOK(w, fmt.Sprintf("Updated name to %s", newName))
		return
	}

	frame, ok := h.capture(w, r)
	if !ok {
		return
	}
	if err := h.registry.Replace(r.Context(), oldName, newName, frame); err != nil {
		if errors.Is(err, registry.ErrNoFaceDetected) {
			respondRejected(w, "No face detected in new image")
			return
		}
		respondFailure(w, r, err, editMessage(err, oldName, newName))
		return
	}
	respondOK(w, fmt.Sprintf("Updated %s to %s with new face", oldName, newName))
}

// Delete removes an identity.
func (h *FacesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		respondRejected(w, "Name is required")
		return
	}

	if err := h.registry.Delete(r.Context(), name); err != nil {
		msg := "Failed to delete " + name
		if errors.Is(err, registry.ErrNotFound) {
			msg = fmt.Sprintf("%s not found", name)
		}
		respondFailure(w, r, err, msg)
		return
	}
	respondOK(w, fmt.Sprintf("Deleted %s successfully", name))
}

// List returns all registered identities.
func (h *FacesHandler) List(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string][]string{"users": h.registry.List()})
}

// Photo serves the reference photo of an identity.
func (h *FacesHandler) Photo(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	rec, ok := h.registry.Get(name)
	if !ok || rec.PhotoRef == "" {
		respondError(w, http.StatusNotFound, "photo not found")
		return
	}

	rc, err := h.photos.Open(rec.PhotoRef)
	if err != nil {
		slog.Warn("opening photo", "identity", sanitizeForLog(name), "error", err)
		respondError(w, http.StatusNotFound, "photo not found")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	io.Copy(w, rc)
}

func enrollMessage(err error, name string) string {
	switch {
	case errors.Is(err, registry.ErrNoFaceDetected):
		return "No face detected"
	case errors.Is(err, registry.ErrInvalidIdentity):
		return "Invalid name"
	default:
		return "Failed to register " + name
	}
}

func editMessage(err error, oldName, newName string) string {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		return fmt.Sprintf("%s not found", oldName)
	case errors.Is(err, registry.ErrIdentityExists):
		return fmt.Sprintf("%s is already registered", newName)
	case errors.Is(err, registry.ErrInvalidIdentity):
		return "Invalid name"
	default:
		return "Failed to update " + oldName
	}
}
