// Package pipeline turns camera frames into an annotated JPEG stream,
// recognizing faces and marking attendance along the way.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"iter"
	"log/slog"

	"github.com/google/uuid"

	"github.com/kozaktomas/face-attendance/internal/detector"
	"github.com/kozaktomas/face-attendance/internal/matcher"
	"github.com/kozaktomas/face-attendance/internal/signature"
)

// DefaultJPEGQuality is the encoding quality of streamed frames.
const DefaultJPEGQuality = 70

// Camera is the shared capture device.
type Camera interface {
	Acquire(ctx context.Context) (release func(), err error)
	Read() (image.Image, error)
}

// Recognizer matches a signature against enrolled identities.
type Recognizer interface {
	Identify(sig signature.Signature, threshold float64) matcher.Result
}

// Marker records attendance.
type Marker interface {
	MarkIfNew(identity string) (bool, error)
}

// Options configure recognition and encoding.
type Options struct {
	Threshold   float64
	JPEGQuality int
}

// Pipeline is safe for concurrent streams; they share the camera.
type Pipeline struct {
	camera     Camera
	localizer  detector.Localizer
	recognizer Recognizer
	marker     Marker
	opts       Options
}

// New builds a pipeline. A zero JPEGQuality selects DefaultJPEGQuality.
func New(cam Camera, localizer detector.Localizer, recognizer Recognizer, marker Marker, opts Options) *Pipeline {
	if opts.JPEGQuality == 0 {
		opts.JPEGQuality = DefaultJPEGQuality
	}
	return &Pipeline{
		camera:     cam,
		localizer:  localizer,
		recognizer: recognizer,
		marker:     marker,
		opts:       opts,
	}
}

// Stream returns a lazy sequence of annotated JPEG frames. The camera is
// acquired on the first pull and released whenever iteration stops: the
// consumer breaks, ctx is cancelled, or a frame cannot be read. If the camera
// cannot be acquired the sequence yields that error once and ends.
func (p *Pipeline) Stream(ctx context.Context, mode Mode) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		release, err := p.camera.Acquire(ctx)
		if err != nil {
			yield(nil, err)
			return
		}
		defer release()

		id := uuid.NewString()
		frames := 0
		slog.Info("stream started", "stream", id, "mode", mode)
		defer func() {
			slog.Info("stream stopped", "stream", id, "mode", mode, "frames", frames)
		}()

		for ctx.Err() == nil {
			frame, err := p.camera.Read()
			if err != nil {
				slog.Warn("frame read failed", "stream", id, "error", err)
				return
			}

			jpg, err := p.Process(frame, mode)
			if err != nil {
				slog.Error("processing frame", "stream", id, "error", err)
				return
			}
			frames++
			if !yield(jpg, nil) {
				return
			}
		}
	}
}

// Process runs one frame through detection (and recognition in attendance
// mode) and returns it annotated and JPEG-encoded.
func (p *Pipeline) Process(frame image.Image, mode Mode) ([]byte, error) {
	boxes := p.localizer.Locate(frame)

	labels := make([]string, len(boxes))
	for i, box := range boxes {
		if mode == ModeAttendance {
			labels[i] = p.recognize(frame, box)
		} else {
			labels[i] = "Face Detected"
		}
	}

	// Annotate a copy after all crops are taken so labels never leak into
	// another face's signature.
	canvas := detector.Clone(frame)
	for i, box := range boxes {
		drawBox(canvas, box, annotationColor)
		drawLabel(canvas, box, labels[i], annotationColor)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: p.opts.JPEGQuality}); err != nil {
		return nil, fmt.Errorf("encoding frame: %w", err)
	}
	return buf.Bytes(), nil
}

func (p *Pipeline) recognize(frame image.Image, box image.Rectangle) string {
	sig := signature.Encode(detector.Crop(frame, box))
	res := p.recognizer.Identify(sig, p.opts.Threshold)

	if res.Matched() {
		if _, err := p.marker.MarkIfNew(res.Identity); err != nil {
			// Left unmarked, so the next frame retries.
			slog.Warn("marking attendance", "identity", res.Identity, "error", err)
		}
	}
	return Label(res)
}

// Label renders a match result the way it is drawn on the frame.
func Label(res matcher.Result) string {
	if !res.HasScore {
		return res.Identity
	}
	return fmt.Sprintf("%s (%.2f)", res.Identity, res.Score)
}
