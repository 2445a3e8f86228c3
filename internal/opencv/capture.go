package opencv

import (
	"context"
	"errors"
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/kozaktomas/face-attendance/internal/camera"
)

// VideoDevice reads frames from an OpenCV video capture.
type VideoDevice struct {
	capture *gocv.VideoCapture
	buf     gocv.Mat
}

// Opener returns a camera.OpenFunc for the capture device with the given index.
func Opener(index int) camera.OpenFunc {
	return func(_ context.Context, s camera.Settings) (camera.Device, error) {
		return OpenDevice(index, s)
	}
}

// OpenDevice opens capture device index and applies s.
func OpenDevice(index int, s camera.Settings) (*VideoDevice, error) {
	capture, err := gocv.VideoCaptureDevice(index)
	if err != nil {
		return nil, fmt.Errorf("opening capture device %d: %w", index, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("capture device %d did not open", index)
	}

	capture.Set(gocv.VideoCaptureFrameWidth, float64(s.Width))
	capture.Set(gocv.VideoCaptureFrameHeight, float64(s.Height))
	capture.Set(gocv.VideoCaptureFPS, float64(s.FPS))

	return &VideoDevice{capture: capture, buf: gocv.NewMat()}, nil
}

// Read grabs the next frame.
func (d *VideoDevice) Read() (image.Image, error) {
	if ok := d.capture.Read(&d.buf); !ok {
		return nil, errors.New("failed to grab frame")
	}
	if d.buf.Empty() {
		return nil, errors.New("empty frame")
	}
	img, err := d.buf.ToImage()
	if err != nil {
		return nil, fmt.Errorf("converting frame: %w", err)
	}
	return img, nil
}

// Close releases the capture device.
func (d *VideoDevice) Close() error {
	d.buf.Close()
	if err := d.capture.Close(); err != nil {
		return fmt.Errorf("closing capture: %w", err)
	}
	return nil
}
