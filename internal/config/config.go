package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Camera      CameraConfig      `yaml:"camera"`
	Detector    DetectorConfig    `yaml:"detector"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Stream      StreamConfig      `yaml:"stream"`
	Storage     StorageConfig     `yaml:"storage"`
	Database    DatabaseConfig    `yaml:"database"`
	Log         LogConfig         `yaml:"log"`
}

type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"` // CORS origins besides localhost
}

type CameraConfig struct {
	Backend            string `yaml:"backend"`      // opencv or v4l2
	DeviceIndex        int    `yaml:"device_index"` // used by the opencv backend
	DevicePath         string `yaml:"device_path"`  // used by the v4l2 backend
	Width              int    `yaml:"width"`
	Height             int    `yaml:"height"`
	FPS                int    `yaml:"fps"`
	ReadTimeoutSeconds int    `yaml:"read_timeout_seconds"`
}

// ReadTimeout returns the per-frame read timeout.
func (c CameraConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutSeconds) * time.Second
}

type DetectorConfig struct {
	CascadePath  string  `yaml:"cascade_path"`
	ScaleFactor  float64 `yaml:"scale_factor"`
	MinNeighbors int     `yaml:"min_neighbors"`
	MinSize      int     `yaml:"min_size"`
}

type RecognitionConfig struct {
	Threshold float64 `yaml:"threshold"` // a match must score strictly above this
}

type StreamConfig struct {
	JPEGQuality int `yaml:"jpeg_quality"`
}

type StorageConfig struct {
	RegistryPath   string `yaml:"registry_path"`
	PhotoDir       string `yaml:"photo_dir"`
	AttendancePath string `yaml:"attendance_path"`
}

type DatabaseConfig struct {
	URL          string `yaml:"-"` // PostgreSQL connection URL; empty selects the file registry store
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// envInt reads an environment variable and parses it as a non-negative integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable as a float64.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return defaultVal
}

// envString returns the environment variable or defaultVal when unset.
func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envList splits a comma-separated environment variable, dropping blanks.
func envList(key string, defaultVal []string) []string {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	var out []string
	for item := range strings.SplitSeq(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Defaults returns the embedded default configuration.
func Defaults() *Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	return &cfg
}

// Load returns the defaults overridden by environment variables.
func Load() *Config {
	d := Defaults()

	return &Config{
		Server: ServerConfig{
			Host: envString("WEB_HOST", d.Server.Host),
			Port: envInt("WEB_PORT", d.Server.Port),

			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS", d.Server.AllowedOrigins),
		},
		Camera: CameraConfig{
			Backend:            strings.ToLower(envString("CAMERA_BACKEND", d.Camera.Backend)),
			DeviceIndex:        envInt("CAMERA_DEVICE_INDEX", d.Camera.DeviceIndex),
			DevicePath:         envString("CAMERA_DEVICE_PATH", d.Camera.DevicePath),
			Width:              envInt("CAMERA_WIDTH", d.Camera.Width),
			Height:             envInt("CAMERA_HEIGHT", d.Camera.Height),
			FPS:                envInt("CAMERA_FPS", d.Camera.FPS),
			ReadTimeoutSeconds: envInt("CAMERA_READ_TIMEOUT_SECONDS", d.Camera.ReadTimeoutSeconds),
		},
		Detector: DetectorConfig{
			CascadePath:  envString("CASCADE_PATH", d.Detector.CascadePath),
			ScaleFactor:  envFloat("DETECTOR_SCALE_FACTOR", d.Detector.ScaleFactor),
			MinNeighbors: envInt("DETECTOR_MIN_NEIGHBORS", d.Detector.MinNeighbors),
			MinSize:      envInt("DETECTOR_MIN_SIZE", d.Detector.MinSize),
		},
		Recognition: RecognitionConfig{
			Threshold: envFloat("MATCH_THRESHOLD", d.Recognition.Threshold),
		},
		Stream: StreamConfig{
			JPEGQuality: envInt("STREAM_JPEG_QUALITY", d.Stream.JPEGQuality),
		},
		Storage: StorageConfig{
			RegistryPath:   envString("REGISTRY_PATH", d.Storage.RegistryPath),
			PhotoDir:       envString("PHOTO_DIR", d.Storage.PhotoDir),
			AttendancePath: envString("ATTENDANCE_PATH", d.Storage.AttendancePath),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", d.Database.MaxOpenConns),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", d.Database.MaxIdleConns),
		},
		Log: LogConfig{
			Level:  envString("LOG_LEVEL", d.Log.Level),
			Format: strings.ToLower(envString("LOG_FORMAT", d.Log.Format)),
		},
	}
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	switch c.Camera.Backend {
	case "opencv", "v4l2":
	default:
		return fmt.Errorf("unknown camera backend %q (want opencv or v4l2)", c.Camera.Backend)
	}
	if c.Recognition.Threshold < -1 || c.Recognition.Threshold >= 1 {
		return fmt.Errorf("match threshold %v outside [-1, 1)", c.Recognition.Threshold)
	}
	if c.Stream.JPEGQuality < 1 || c.Stream.JPEGQuality > 100 {
		return fmt.Errorf("jpeg quality %d outside [1, 100]", c.Stream.JPEGQuality)
	}
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 || c.Camera.FPS <= 0 {
		return fmt.Errorf("invalid camera mode %dx%d@%d", c.Camera.Width, c.Camera.Height, c.Camera.FPS)
	}
	return nil
}

// NewLogger builds the process logger from the log settings.
func (c LogConfig) NewLogger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
