package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-attendance/internal/detector"
	"github.com/kozaktomas/face-attendance/internal/registry"
)

var testFaceBox = image.Rect(20, 20, 60, 60)

// testLocalizer reports testFaceBox when the frame center is not black.
var testLocalizer = detector.LocalizerFunc(func(frame image.Image) []image.Rectangle {
	r, g, b, _ := frame.At(40, 40).RGBA()
	if r == 0 && g == 0 && b == 0 {
		return nil
	}
	return []image.Rectangle{testFaceBox}
})

func testFaceFrame(seed uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	for y := testFaceBox.Min.Y; y < testFaceBox.Max.Y; y++ {
		for x := testFaceBox.Min.X; x < testFaceBox.Max.X; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x*2) + seed, G: uint8(y * 3), B: seed + 30, A: 255})
		}
	}
	return img
}

// fakeCamera returns frame from Capture, or err when set.
type fakeCamera struct {
	frame    image.Image
	err      error
	captures int
}

func (c *fakeCamera) Capture(context.Context) (image.Image, error) {
	c.captures++
	if c.err != nil {
		return nil, c.err
	}
	return c.frame, nil
}

func newTestRegistry(t *testing.T) (*registry.Registry, *registry.PhotoDir) {
	t.Helper()
	dir := t.TempDir()
	photos, err := registry.NewPhotoDir(filepath.Join(dir, "photos"))
	if err != nil {
		t.Fatalf("NewPhotoDir() error = %v", err)
	}
	reg, err := registry.New(context.Background(), registry.NewFileStore(filepath.Join(dir, "registry.msgpack")), photos, testLocalizer)
	if err != nil {
		t.Fatalf("registry.New() error = %v", err)
	}
	return reg, photos
}

var errDeviceGone = errors.New("device gone")

// postForm builds a form-encoded POST request.
func postForm(path string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertResult checks the success flag and message of a result body
func assertResult(t *testing.T, recorder *httptest.ResponseRecorder, success bool, message string) {
	t.Helper()
	var res result
	parseJSONResponse(t, recorder, &res)
	if res.Success != success {
		t.Errorf("expected success %v, got %v", success, res.Success)
	}
	if res.Message != message {
		t.Errorf("expected message '%s', got '%s'", message, res.Message)
	}
}
