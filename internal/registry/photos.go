package registry

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/renameio"
)

const photoQuality = 95

// PhotoDir stores reference photos as <identity>.jpg inside one directory.
type PhotoDir struct {
	dir string
}

// NewPhotoDir creates dir if needed and returns a store rooted there.
func NewPhotoDir(dir string) (*PhotoDir, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating photo directory %s: %w", dir, err)
	}
	return &PhotoDir{dir: dir}, nil
}

func photoRef(identity string) string {
	return identity + ".jpg"
}

func (p *PhotoDir) path(ref string) (string, error) {
	if ref == "" || filepath.Base(ref) != ref {
		return "", fmt.Errorf("invalid photo reference %q", ref)
	}
	return filepath.Join(p.dir, ref), nil
}

// Put encodes frame as JPEG and stores it for identity. The returned undo
// puts back whatever was stored for identity before, or removes the photo
// when there was none.
func (p *PhotoDir) Put(identity string, frame image.Image) (string, func() error, error) {
	ref := photoRef(identity)
	path, err := p.path(ref)
	if err != nil {
		return "", nil, err
	}

	prev, err := os.ReadFile(path)
	hadPrev := err == nil
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: photoQuality}); err != nil {
		return "", nil, fmt.Errorf("encoding photo: %w", err)
	}
	if err := renameio.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", nil, fmt.Errorf("writing %s: %w", path, err)
	}

	undo := func() error {
		if hadPrev {
			if err := renameio.WriteFile(path, prev, 0o644); err != nil {
				return fmt.Errorf("restoring %s: %w", path, err)
			}
			return nil
		}
		return p.Remove(identity)
	}
	return ref, undo, nil
}

// Move renames the photo of from to belong to to. A missing source photo is
// not an error and yields an empty reference.
func (p *PhotoDir) Move(from, to string) (string, error) {
	src, err := p.path(photoRef(from))
	if err != nil {
		return "", err
	}
	ref := photoRef(to)
	dst, err := p.path(ref)
	if err != nil {
		return "", err
	}

	if err := os.Rename(src, dst); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("renaming %s: %w", src, err)
	}
	return ref, nil
}

// Remove deletes the photo of identity if there is one.
func (p *PhotoDir) Remove(identity string) error {
	path, err := p.path(photoRef(identity))
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", path, err)
	}
	return nil
}

// Open returns the stored photo for ref.
func (p *PhotoDir) Open(ref string) (io.ReadCloser, error) {
	path, err := p.path(ref)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening photo: %w", err)
	}
	return f, nil
}
