//go:build linux

// Package v4l2 reads MJPEG frames straight from a Video4Linux device
// without going through OpenCV.
package v4l2

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"time"

	"github.com/blackjack/webcam"

	"github.com/kozaktomas/face-attendance/internal/camera"
)

// pixelFormatMJPEG is the V4L2 fourcc "MJPG".
const pixelFormatMJPEG webcam.PixelFormat = 0x47504A4D

// Device is a streaming V4L2 webcam.
type Device struct {
	cam     *webcam.Webcam
	timeout uint32
}

// Opener returns a camera.OpenFunc for the device at path. Each read waits
// at most readTimeout for a frame.
func Opener(path string, readTimeout time.Duration) camera.OpenFunc {
	return func(_ context.Context, s camera.Settings) (camera.Device, error) {
		return Open(path, s, readTimeout)
	}
}

// Open starts streaming from the device at path.
func Open(path string, s camera.Settings, readTimeout time.Duration) (*Device, error) {
	cam, err := webcam.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	if _, ok := cam.GetSupportedFormats()[pixelFormatMJPEG]; !ok {
		cam.Close()
		return nil, fmt.Errorf("%s does not support MJPEG", path)
	}
	_, w, h, err := cam.SetImageFormat(pixelFormatMJPEG, uint32(s.Width), uint32(s.Height))
	if err != nil {
		cam.Close()
		return nil, fmt.Errorf("setting image format on %s: %w", path, err)
	}
	if int(w) != s.Width || int(h) != s.Height {
		slog.Warn("camera resolution adjusted by driver", "device", path, "width", w, "height", h)
	}
	if err := cam.SetFramerate(float32(s.FPS)); err != nil {
		slog.Warn("camera framerate not applied", "device", path, "error", err)
	}
	if err := cam.StartStreaming(); err != nil {
		cam.Close()
		return nil, fmt.Errorf("starting stream on %s: %w", path, err)
	}

	timeout := uint32(readTimeout / time.Second)
	if timeout == 0 {
		timeout = 1
	}
	return &Device{cam: cam, timeout: timeout}, nil
}

// Read waits for the next frame and decodes it.
func (d *Device) Read() (image.Image, error) {
	if err := d.cam.WaitForFrame(d.timeout); err != nil {
		var timeout *webcam.Timeout
		if errors.As(err, &timeout) {
			return nil, fmt.Errorf("no frame within %ds", d.timeout)
		}
		return nil, fmt.Errorf("waiting for frame: %w", err)
	}

	raw, err := d.cam.ReadFrame()
	if err != nil {
		return nil, fmt.Errorf("reading frame: %w", err)
	}
	if len(raw) == 0 {
		return nil, errors.New("empty frame")
	}

	// The driver reuses its buffer on the next read.
	img, err := jpeg.Decode(bytes.NewReader(bytes.Clone(raw)))
	if err != nil {
		return nil, fmt.Errorf("decoding frame: %w", err)
	}
	return img, nil
}

// Close stops streaming and releases the device.
func (d *Device) Close() error {
	if err := d.cam.StopStreaming(); err != nil {
		slog.Warn("stopping camera stream", "error", err)
	}
	if err := d.cam.Close(); err != nil {
		return fmt.Errorf("closing device: %w", err)
	}
	return nil
}
