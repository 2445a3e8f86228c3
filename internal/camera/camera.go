// Package camera owns the single capture device shared by every stream and
// enrollment request in the process.
package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
)

var (
	ErrCameraUnavailable = errors.New("camera unavailable")
	ErrCameraClosed      = errors.New("camera closed")
)

// Settings are applied when the device is opened.
type Settings struct {
	Width  int
	Height int
	FPS    int
}

// DefaultSettings is 640x480 at 30 frames per second.
var DefaultSettings = Settings{Width: 640, Height: 480, FPS: 30}

// Device is an opened capture device. Read blocks until a frame is
// available or the hardware gives up.
type Device interface {
	Read() (image.Image, error)
	Close() error
}

// OpenFunc acquires the physical device.
type OpenFunc func(ctx context.Context, s Settings) (Device, error)

// State is the lifecycle state of the managed device.
type State int

const (
	Closed State = iota
	Open
)

func (s State) String() string {
	if s == Open {
		return "open"
	}
	return "closed"
}

// Manager serializes every operation on the device. It is either Closed or
// Open; Open and Close are idempotent.
type Manager struct {
	mu       sync.Mutex
	open     OpenFunc
	settings Settings
	device   Device
	leases   int
}

// NewManager returns a closed manager that opens devices with open.
func NewManager(open OpenFunc, settings Settings) *Manager {
	return &Manager{open: open, settings: settings}
}

// State reports whether the device is currently open.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.device != nil {
		return Open
	}
	return Closed
}

// Open acquires the device unless it is already open.
func (m *Manager) Open(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openLocked(ctx)
}

func (m *Manager) openLocked(ctx context.Context) error {
	if m.device != nil {
		return nil
	}
	dev, err := m.open(ctx, m.settings)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCameraUnavailable, err)
	}
	m.device = dev
	slog.Info("camera opened", "width", m.settings.Width, "height", m.settings.Height, "fps", m.settings.FPS)
	return nil
}

// Close releases the device if it is open. Outstanding leases see
// ErrCameraClosed on their next read.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeLocked()
}

func (m *Manager) closeLocked() error {
	if m.device == nil {
		return nil
	}
	dev := m.device
	m.device = nil
	if err := dev.Close(); err != nil {
		return fmt.Errorf("closing camera: %w", err)
	}
	slog.Info("camera released")
	return nil
}

// Read returns the next frame from the open device.
func (m *Manager) Read() (image.Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.device == nil {
		return nil, ErrCameraClosed
	}
	frame, err := m.device.Read()
	if err != nil {
		return nil, fmt.Errorf("reading frame: %w", err)
	}
	return frame, nil
}

// Acquire opens the device if needed and registers a user of it. The
// returned release function closes the device once the last user is done;
// calling it more than once has no further effect.
func (m *Manager) Acquire(ctx context.Context) (release func(), err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.openLocked(ctx); err != nil {
		return nil, err
	}
	m.leases++

	var once sync.Once
	return func() {
		once.Do(m.release)
	}, nil
}

func (m *Manager) release() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.leases > 0 {
		m.leases--
	}
	if m.leases == 0 {
		if err := m.closeLocked(); err != nil {
			slog.Warn("releasing camera", "error", err)
		}
	}
}

// Capture grabs a single frame, opening the device only for as long as
// needed unless another user already holds it.
func (m *Manager) Capture(ctx context.Context) (image.Image, error) {
	release, err := m.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return m.Read()
}
