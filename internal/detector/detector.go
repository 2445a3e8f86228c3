// Package detector defines face localization over decoded video frames.
package detector

import (
	"image"
	"image/draw"
)

// Localizer finds faces in a frame. Implementations must be safe for
// concurrent use and return an empty result for a nil or empty frame.
type Localizer interface {
	Locate(frame image.Image) []image.Rectangle
}

// LocalizerFunc adapts a plain function to the Localizer interface.
type LocalizerFunc func(frame image.Image) []image.Rectangle

// Locate calls f(frame).
func (f LocalizerFunc) Locate(frame image.Image) []image.Rectangle {
	return f(frame)
}

// First returns the first box the localizer reports, if any.
func First(l Localizer, frame image.Image) (image.Rectangle, bool) {
	if frame == nil || frame.Bounds().Empty() {
		return image.Rectangle{}, false
	}
	boxes := l.Locate(frame)
	if len(boxes) == 0 {
		return image.Rectangle{}, false
	}
	return boxes[0], true
}

// Crop copies the part of frame inside box, clipped to the frame bounds.
// The result always starts at the origin.
func Crop(frame image.Image, box image.Rectangle) *image.RGBA {
	box = box.Intersect(frame.Bounds())
	dst := image.NewRGBA(image.Rect(0, 0, box.Dx(), box.Dy()))
	draw.Draw(dst, dst.Bounds(), frame, box.Min, draw.Src)
	return dst
}

// Clone copies frame into a new RGBA image with the same bounds.
func Clone(frame image.Image) *image.RGBA {
	dst := image.NewRGBA(frame.Bounds())
	draw.Draw(dst, dst.Bounds(), frame, frame.Bounds().Min, draw.Src)
	return dst
}
