//go:build !linux

package v4l2

import (
	"context"
	"errors"
	"time"

	"github.com/kozaktomas/face-attendance/internal/camera"
)

// Opener reports that V4L2 capture is unavailable on this platform.
func Opener(path string, readTimeout time.Duration) camera.OpenFunc {
	return func(context.Context, camera.Settings) (camera.Device, error) {
		return nil, errors.New("v4l2 capture is only supported on linux")
	}
}
