package registry

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"github.com/kozaktomas/face-attendance/internal/detector"
	"github.com/kozaktomas/face-attendance/internal/matcher"
	"github.com/kozaktomas/face-attendance/internal/signature"
)

var faceBox = image.Rect(20, 20, 60, 60)

// patchLocalizer reports faceBox whenever the frame has a non-black pixel in its center.
var patchLocalizer = detector.LocalizerFunc(func(frame image.Image) []image.Rectangle {
	r, g, b, _ := frame.At(40, 40).RGBA()
	if r == 0 && g == 0 && b == 0 {
		return nil
	}
	return []image.Rectangle{faceBox}
})

// faceFrame returns a black frame with a textured patch inside faceBox.
func faceFrame(seed uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			img.Set(x, y, color.RGBA{A: 255})
		}
	}
	for y := faceBox.Min.Y; y < faceBox.Max.Y; y++ {
		for x := faceBox.Min.X; x < faceBox.Max.X; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x*3) + seed, G: uint8(y*5) ^ seed, B: seed + 40, A: 255})
		}
	}
	return img
}

func blankFrame() *image.RGBA {
	return image.NewRGBA(image.Rect(0, 0, 100, 100))
}

// memStore is an in-memory Store whose next save can be made to fail.
type memStore struct {
	mu       sync.Mutex
	records  []Record
	saves    int
	failNext bool
}

func (m *memStore) Load(context.Context) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.records), nil
}

func (m *memStore) Save(_ context.Context, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext {
		m.failNext = false
		return errors.New("disk full")
	}
	m.saves++
	m.records = slices.Clone(records)
	return nil
}

func newTestRegistry(t *testing.T) (*Registry, *memStore, *PhotoDir) {
	t.Helper()
	photos, err := NewPhotoDir(filepath.Join(t.TempDir(), "photos"))
	if err != nil {
		t.Fatalf("NewPhotoDir() error = %v", err)
	}
	store := &memStore{}
	reg, err := New(context.Background(), store, photos, patchLocalizer)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return reg, store, photos
}

func photoExists(p *PhotoDir, identity string) bool {
	_, err := os.Stat(filepath.Join(p.dir, photoRef(identity)))
	return err == nil
}

func readPhoto(t *testing.T, p *PhotoDir, identity string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(p.dir, photoRef(identity)))
	if err != nil {
		t.Fatalf("reading photo for %s: %v", identity, err)
	}
	return data
}

func TestRegistry_EnrollListDeleteReenroll(t *testing.T) {
	ctx := context.Background()
	reg, store, photos := newTestRegistry(t)

	if err := reg.Enroll(ctx, "Alice", faceFrame(1)); err != nil {
		t.Fatalf("Enroll() error = %v", err)
	}
	if got := reg.List(); !slices.Equal(got, []string{"Alice"}) {
		t.Fatalf("List() = %v, want [Alice]", got)
	}
	if !photoExists(photos, "Alice") {
		t.Error("expected photo to be stored")
	}
	if store.saves != 1 {
		t.Errorf("saves = %d, want 1", store.saves)
	}

	if err := reg.Delete(ctx, "Alice"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if got := reg.List(); len(got) != 0 {
		t.Fatalf("List() = %v, want empty", got)
	}
	if photoExists(photos, "Alice") {
		t.Error("expected photo to be removed")
	}

	if err := reg.Enroll(ctx, "Alice", faceFrame(1)); err != nil {
		t.Fatalf("re-Enroll() error = %v", err)
	}
	if got := reg.List(); !slices.Equal(got, []string{"Alice"}) {
		t.Fatalf("List() = %v, want [Alice]", got)
	}
}

func TestRegistry_EnrollNoFace(t *testing.T) {
	reg, store, photos := newTestRegistry(t)

	err := reg.Enroll(context.Background(), "Alice", blankFrame())
	if !errors.Is(err, ErrNoFaceDetected) {
		t.Fatalf("err = %v, want ErrNoFaceDetected", err)
	}
	if reg.Len() != 0 || store.saves != 0 {
		t.Error("registry changed after failed enrollment")
	}
	if photoExists(photos, "Alice") {
		t.Error("photo stored after failed enrollment")
	}
}

func TestRegistry_EnrollInvalidName(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	err := reg.Enroll(context.Background(), "../etc", faceFrame(1))
	if !errors.Is(err, ErrInvalidIdentity) {
		t.Fatalf("err = %v, want ErrInvalidIdentity", err)
	}
}

func TestRegistry_EnrollOverwrites(t *testing.T) {
	ctx := context.Background()
	reg, _, _ := newTestRegistry(t)

	if err := reg.Enroll(ctx, "Alice", faceFrame(1)); err != nil {
		t.Fatal(err)
	}
	first, _ := reg.Get("Alice")
	if err := reg.Enroll(ctx, "Alice", faceFrame(90)); err != nil {
		t.Fatal(err)
	}
	second, _ := reg.Get("Alice")

	if reg.Len() != 1 {
		t.Errorf("Len() = %d, want 1", reg.Len())
	}
	if slices.Equal(first.Signature, second.Signature) {
		t.Error("expected signature to be replaced")
	}
}

func TestRegistry_EnrolledFaceMatchesItself(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	frame := faceFrame(7)
	if err := reg.Enroll(context.Background(), "Alice", frame); err != nil {
		t.Fatal(err)
	}

	sig := signature.Encode(detector.Crop(frame, faceBox))
	got := reg.Identify(sig, matcher.DefaultThreshold)
	if got.Identity != "Alice" {
		t.Errorf("Identity = %q, want Alice (score %f)", got.Identity, got.Score)
	}
}

func TestRegistry_RenameKeepsSignature(t *testing.T) {
	ctx := context.Background()
	reg, _, photos := newTestRegistry(t)

	if err := reg.Enroll(ctx, "Alice", faceFrame(3)); err != nil {
		t.Fatal(err)
	}
	before, _ := reg.Get("Alice")

	if err := reg.Rename(ctx, "Alice", "Alicia"); err != nil {
		t.Fatalf("Rename() error = %v", err)
	}

	if _, ok := reg.Get("Alice"); ok {
		t.Error("old identity still present")
	}
	after, ok := reg.Get("Alicia")
	if !ok {
		t.Fatal("new identity missing")
	}
	if !slices.Equal(before.Signature, after.Signature) {
		t.Error("signature changed on rename")
	}
	if photoExists(photos, "Alice") || !photoExists(photos, "Alicia") {
		t.Error("photo was not moved")
	}
	if after.PhotoRef != "Alicia.jpg" {
		t.Errorf("PhotoRef = %q, want Alicia.jpg", after.PhotoRef)
	}
}

func TestRegistry_RenameErrors(t *testing.T) {
	ctx := context.Background()
	reg, _, _ := newTestRegistry(t)
	if err := reg.Enroll(ctx, "Alice", faceFrame(1)); err != nil {
		t.Fatal(err)
	}
	if err := reg.Enroll(ctx, "Bob", faceFrame(2)); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		old, new string
		wantErr  error
	}{
		{"missing", "Carol", "Dave", ErrNotFound},
		{"taken", "Alice", "Bob", ErrIdentityExists},
		{"invalid", "Alice", "", ErrInvalidIdentity},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := reg.Rename(ctx, tc.old, tc.new); !errors.Is(err, tc.wantErr) {
				t.Errorf("err = %v, want %v", err, tc.wantErr)
			}
		})
	}

	if got := reg.List(); !slices.Equal(got, []string{"Alice", "Bob"}) {
		t.Errorf("List() = %v after failed renames", got)
	}
}

func TestRegistry_RenameSameName(t *testing.T) {
	ctx := context.Background()
	reg, store, _ := newTestRegistry(t)
	if err := reg.Enroll(ctx, "Alice", faceFrame(1)); err != nil {
		t.Fatal(err)
	}
	if err := reg.Rename(ctx, "Alice", " Alice "); err != nil {
		t.Fatalf("Rename() error = %v", err)
	}
	if store.saves != 1 {
		t.Errorf("saves = %d, want 1", store.saves)
	}
}

func TestRegistry_Replace(t *testing.T) {
	ctx := context.Background()
	reg, _, photos := newTestRegistry(t)
	if err := reg.Enroll(ctx, "Alice", faceFrame(1)); err != nil {
		t.Fatal(err)
	}
	before, _ := reg.Get("Alice")

	if err := reg.Replace(ctx, "Alice", "Alicia", faceFrame(120)); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}

	after, ok := reg.Get("Alicia")
	if !ok {
		t.Fatal("new identity missing")
	}
	if _, ok := reg.Get("Alice"); ok {
		t.Error("old identity still present")
	}
	if slices.Equal(before.Signature, after.Signature) {
		t.Error("expected a fresh signature")
	}
	if photoExists(photos, "Alice") || !photoExists(photos, "Alicia") {
		t.Error("photos not swapped")
	}
}

func TestRegistry_ReplaceSameName(t *testing.T) {
	ctx := context.Background()
	reg, _, photos := newTestRegistry(t)
	if err := reg.Enroll(ctx, "Alice", faceFrame(1)); err != nil {
		t.Fatal(err)
	}
	if err := reg.Replace(ctx, "Alice", "Alice", faceFrame(50)); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	if !photoExists(photos, "Alice") {
		t.Error("photo removed when replacing under the same name")
	}
}

func TestRegistry_ReplaceErrorsLeaveRegistryUntouched(t *testing.T) {
	ctx := context.Background()
	reg, store, _ := newTestRegistry(t)
	if err := reg.Enroll(ctx, "Alice", faceFrame(1)); err != nil {
		t.Fatal(err)
	}
	before, _ := reg.Get("Alice")

	if err := reg.Replace(ctx, "Alice", "Alicia", blankFrame()); !errors.Is(err, ErrNoFaceDetected) {
		t.Errorf("err = %v, want ErrNoFaceDetected", err)
	}
	if err := reg.Replace(ctx, "Nobody", "Alicia", faceFrame(2)); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}

	after, ok := reg.Get("Alice")
	if !ok || !slices.Equal(before.Signature, after.Signature) {
		t.Error("registry mutated by failed replace")
	}
	if store.saves != 1 {
		t.Errorf("saves = %d, want 1", store.saves)
	}
}

func TestRegistry_DeleteMissing(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	if err := reg.Delete(context.Background(), "Ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestRegistry_SaveFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	reg, store, photos := newTestRegistry(t)
	if err := reg.Enroll(ctx, "Alice", faceFrame(1)); err != nil {
		t.Fatal(err)
	}
	sig, _ := reg.Get("Alice")

	store.failNext = true
	if err := reg.Enroll(ctx, "Bob", faceFrame(2)); err == nil {
		t.Fatal("expected save error")
	}
	if _, ok := reg.Get("Bob"); ok {
		t.Error("Bob present after failed save")
	}
	if photoExists(photos, "Bob") {
		t.Error("Bob's photo kept after failed save")
	}

	photoBefore := readPhoto(t, photos, "Alice")
	store.failNext = true
	if err := reg.Enroll(ctx, "Alice", faceFrame(77)); err == nil {
		t.Fatal("expected save error")
	}
	if got, _ := reg.Get("Alice"); !slices.Equal(got.Signature, sig.Signature) {
		t.Error("Alice's signature changed after failed re-enroll")
	}
	if !bytes.Equal(readPhoto(t, photos, "Alice"), photoBefore) {
		t.Error("Alice's photo replaced after failed re-enroll")
	}

	store.failNext = true
	if err := reg.Replace(ctx, "Alice", "Alice", faceFrame(88)); err == nil {
		t.Fatal("expected save error")
	}
	if !bytes.Equal(readPhoto(t, photos, "Alice"), photoBefore) {
		t.Error("Alice's photo replaced after failed same-name replace")
	}

	store.failNext = true
	if err := reg.Replace(ctx, "Alice", "Alicia", faceFrame(99)); err == nil {
		t.Fatal("expected save error")
	}
	if photoExists(photos, "Alicia") {
		t.Error("Alicia's photo kept after failed replace")
	}
	if !bytes.Equal(readPhoto(t, photos, "Alice"), photoBefore) {
		t.Error("Alice's photo changed after failed replace")
	}

	store.failNext = true
	if err := reg.Rename(ctx, "Alice", "Alicia"); err == nil {
		t.Fatal("expected save error")
	}
	got, ok := reg.Get("Alice")
	if !ok || !slices.Equal(got.Signature, sig.Signature) {
		t.Error("Alice not restored after failed rename")
	}
	if !photoExists(photos, "Alice") {
		t.Error("Alice's photo not restored after failed rename")
	}

	store.failNext = true
	if err := reg.Delete(ctx, "Alice"); err == nil {
		t.Fatal("expected save error")
	}
	if _, ok := reg.Get("Alice"); !ok {
		t.Error("Alice missing after failed delete")
	}
	if got := reg.List(); !slices.Equal(got, []string{"Alice"}) {
		t.Errorf("List() = %v, want [Alice]", got)
	}
}

func TestRegistry_LoadsPersistedRecords(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := NewFileStore(filepath.Join(dir, "registry.msgpack"))
	photos, err := NewPhotoDir(filepath.Join(dir, "photos"))
	if err != nil {
		t.Fatal(err)
	}

	reg, err := New(ctx, store, photos, patchLocalizer)
	if err != nil {
		t.Fatal(err)
	}
	for i, name := range []string{"Carol", "Alice", "Bob"} {
		if err := reg.Enroll(ctx, name, faceFrame(uint8(i*40))); err != nil {
			t.Fatal(err)
		}
	}
	want, _ := reg.Get("Bob")

	reloaded, err := New(ctx, store, photos, patchLocalizer)
	if err != nil {
		t.Fatalf("reload error = %v", err)
	}
	if got := reloaded.List(); !slices.Equal(got, []string{"Alice", "Bob", "Carol"}) {
		t.Errorf("List() = %v", got)
	}
	got, _ := reloaded.Get("Bob")
	if !slices.Equal(got.Signature, want.Signature) {
		t.Error("signature not preserved across reload")
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	reg, _, _ := newTestRegistry(t)
	if err := reg.Enroll(ctx, "Alice", faceFrame(1)); err != nil {
		t.Fatal(err)
	}
	query := signature.Encode(detector.Crop(faceFrame(1), faceBox))

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for range 20 {
				reg.Identify(query, matcher.DefaultThreshold)
				reg.List()
			}
		}()
		go func() {
			defer wg.Done()
			name := string(rune('a' + i))
			if err := reg.Enroll(ctx, name, faceFrame(uint8(i))); err != nil {
				t.Errorf("Enroll(%s) error = %v", name, err)
			}
		}()
	}
	wg.Wait()

	if reg.Len() != 9 {
		t.Errorf("Len() = %d, want 9", reg.Len())
	}
}
