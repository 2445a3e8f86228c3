// Package opencv binds the face localizer and the capture device to OpenCV
// through gocv. It is the only package that needs cgo.
package opencv

import (
	"fmt"
	"image"
	"log/slog"
	"sync"

	"gocv.io/x/gocv"
)

// CascadeOptions tune the Haar cascade detector.
type CascadeOptions struct {
	ScaleFactor  float64
	MinNeighbors int
	MinSize      int
}

// DefaultCascadeOptions match the frontal-face model's usual settings.
var DefaultCascadeOptions = CascadeOptions{ScaleFactor: 1.2, MinNeighbors: 3, MinSize: 30}

// CascadeLocalizer finds faces with a Haar cascade classifier.
type CascadeLocalizer struct {
	mu         sync.Mutex
	classifier gocv.CascadeClassifier
	opts       CascadeOptions
}

// NewCascadeLocalizer loads the cascade model at path.
func NewCascadeLocalizer(path string, opts CascadeOptions) (*CascadeLocalizer, error) {
	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(path) {
		classifier.Close()
		return nil, fmt.Errorf("loading cascade classifier from %s", path)
	}
	return &CascadeLocalizer{classifier: classifier, opts: opts}, nil
}

// Locate returns face boxes in frame coordinates.
func (c *CascadeLocalizer) Locate(frame image.Image) []image.Rectangle {
	if frame == nil || frame.Bounds().Empty() {
		return nil
	}

	img, err := gocv.ImageToMatRGB(frame)
	if err != nil {
		slog.Warn("converting frame for detection", "error", err)
		return nil
	}
	defer img.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)

	minSize := image.Pt(c.opts.MinSize, c.opts.MinSize)

	c.mu.Lock()
	rects := c.classifier.DetectMultiScaleWithParams(gray, c.opts.ScaleFactor, c.opts.MinNeighbors, 0, minSize, image.Point{})
	c.mu.Unlock()

	offset := frame.Bounds().Min
	boxes := make([]image.Rectangle, 0, len(rects))
	for _, r := range rects {
		if r.Empty() {
			continue
		}
		boxes = append(boxes, r.Add(offset))
	}
	return boxes
}

// Close frees the classifier.
func (c *CascadeLocalizer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.classifier.Close()
}
