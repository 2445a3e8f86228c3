package cmd

import (
	"context"
	"fmt"
	"image"
	"log/slog"

	"github.com/kozaktomas/face-attendance/internal/camera"
	"github.com/kozaktomas/face-attendance/internal/camera/v4l2"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database/postgres"
	"github.com/kozaktomas/face-attendance/internal/detector"
	"github.com/kozaktomas/face-attendance/internal/opencv"
	"github.com/kozaktomas/face-attendance/internal/registry"
)

// app holds the long-lived components shared by the subcommands. Fields
// are filled lazily by the open* helpers; close releases whatever was opened.
type app struct {
	cfg       *config.Config
	pool      *postgres.Pool
	localizer *opencv.CascadeLocalizer
	photos    *registry.PhotoDir
	registry  *registry.Registry
	camera    *camera.Manager
}

func newApp() (*app, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &app{cfg: cfg}, nil
}

// registryStore returns the PostgreSQL store when DATABASE_URL is set and the
// msgpack snapshot file otherwise.
func (a *app) registryStore(ctx context.Context) (registry.Store, error) {
	if a.cfg.Database.URL == "" {
		slog.Info("using file registry store", "path", a.cfg.Storage.RegistryPath)
		return registry.NewFileStore(a.cfg.Storage.RegistryPath), nil
	}

	pool, err := postgres.Open(ctx, &a.cfg.Database)
	if err != nil {
		return nil, err
	}
	a.pool = pool
	slog.Info("using PostgreSQL registry store")
	return postgres.NewRegistryStore(pool), nil
}

func (a *app) openLocalizer() (*opencv.CascadeLocalizer, error) {
	if a.localizer != nil {
		return a.localizer, nil
	}
	loc, err := opencv.NewCascadeLocalizer(a.cfg.Detector.CascadePath, opencv.CascadeOptions{
		ScaleFactor:  a.cfg.Detector.ScaleFactor,
		MinNeighbors: a.cfg.Detector.MinNeighbors,
		MinSize:      a.cfg.Detector.MinSize,
	})
	if err != nil {
		return nil, err
	}
	a.localizer = loc
	return loc, nil
}

// noFaces stands in for the cascade when a command never enrolls, so that
// listing or renaming works without the model file.
var noFaces = detector.LocalizerFunc(func(image.Image) []image.Rectangle { return nil })

// openRegistry loads the registry. With detect unset, enrollment through
// the returned registry always fails with registry.ErrNoFaceDetected.
func (a *app) openRegistry(ctx context.Context, detect bool) (*registry.Registry, error) {
	if a.registry != nil {
		return a.registry, nil
	}

	var loc detector.Localizer = noFaces
	if detect {
		cascade, err := a.openLocalizer()
		if err != nil {
			return nil, err
		}
		loc = cascade
	}
	photos, err := registry.NewPhotoDir(a.cfg.Storage.PhotoDir)
	if err != nil {
		return nil, err
	}
	store, err := a.registryStore(ctx)
	if err != nil {
		return nil, err
	}

	reg, err := registry.New(ctx, store, photos, loc)
	if err != nil {
		return nil, fmt.Errorf("loading face registry: %w", err)
	}
	slog.Info("face registry loaded", "identities", reg.Len())
	a.photos = photos
	a.registry = reg
	return reg, nil
}

// openCamera returns a closed manager for the configured backend. The device
// itself is opened on first use.
func (a *app) openCamera() *camera.Manager {
	if a.camera != nil {
		return a.camera
	}

	var open camera.OpenFunc
	switch a.cfg.Camera.Backend {
	case "v4l2":
		open = v4l2.Opener(a.cfg.Camera.DevicePath, a.cfg.Camera.ReadTimeout())
	default:
		open = opencv.Opener(a.cfg.Camera.DeviceIndex)
	}

	a.camera = camera.NewManager(open, camera.Settings{
		Width:  a.cfg.Camera.Width,
		Height: a.cfg.Camera.Height,
		FPS:    a.cfg.Camera.FPS,
	})
	return a.camera
}

func (a *app) close() {
	if a.camera != nil {
		if err := a.camera.Close(); err != nil {
			slog.Warn("closing camera", "error", err)
		}
	}
	if a.localizer != nil {
		a.localizer.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
