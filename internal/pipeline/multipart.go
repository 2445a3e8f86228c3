package pipeline

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
)

// Boundary separates frames in the multipart stream.
const Boundary = "frame"

// ContentType is the response type of a frame stream.
const ContentType = "multipart/x-mixed-replace; boundary=" + Boundary

var jpegPartHeader = textproto.MIMEHeader{"Content-Type": {"image/jpeg"}}

// FrameWriter frames JPEG images as parts of a multipart/x-mixed-replace body.
type FrameWriter struct {
	mw *multipart.Writer
}

// NewFrameWriter writes frames to w.
func NewFrameWriter(w io.Writer) *FrameWriter {
	mw := multipart.NewWriter(w)
	if err := mw.SetBoundary(Boundary); err != nil {
		panic(fmt.Sprintf("invalid multipart boundary %q: %v", Boundary, err))
	}
	return &FrameWriter{mw: mw}
}

// WriteFrame emits one JPEG part.
func (fw *FrameWriter) WriteFrame(jpg []byte) error {
	part, err := fw.mw.CreatePart(jpegPartHeader)
	if err != nil {
		return fmt.Errorf("starting frame part: %w", err)
	}
	if _, err := part.Write(jpg); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}

// Close writes the closing boundary.
func (fw *FrameWriter) Close() error {
	return fw.mw.Close()
}
