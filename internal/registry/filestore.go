package registry

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/kozaktomas/face-attendance/internal/signature"
)

// snapshotVersion is bumped whenever the on-disk layout changes.
const snapshotVersion = 1

type snapshot struct {
	Version int              `msgpack:"version"`
	SavedAt time.Time        `msgpack:"saved_at"`
	Records []snapshotRecord `msgpack:"records"`
}

type snapshotRecord struct {
	Identity  string    `msgpack:"identity"`
	Signature []float32 `msgpack:"signature"`
	PhotoRef  string    `msgpack:"photo_ref"`
}

// FileStore keeps the registry in a single msgpack snapshot file that is
// replaced atomically on every save.
type FileStore struct {
	path string
}

// NewFileStore returns a store backed by the file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the snapshot file location.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the snapshot. A missing file is an empty registry.
func (s *FileStore) Load(_ context.Context) ([]Record, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", s.path, err)
	}

	var snap snapshot
	if err := msgpack.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", s.path, err)
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported registry snapshot version %d in %s", snap.Version, s.path)
	}

	records := make([]Record, 0, len(snap.Records))
	for _, r := range snap.Records {
		if len(r.Signature) != signature.Size {
			return nil, fmt.Errorf("record %q has signature length %d, want %d", r.Identity, len(r.Signature), signature.Size)
		}
		records = append(records, Record{
			Identity:  r.Identity,
			Signature: signature.Signature(r.Signature),
			PhotoRef:  r.PhotoRef,
		})
	}
	return records, nil
}

// Save writes all records to a new snapshot.
func (s *FileStore) Save(_ context.Context, records []Record) error {
	snap := snapshot{
		Version: snapshotVersion,
		SavedAt: time.Now().UTC(),
		Records: make([]snapshotRecord, 0, len(records)),
	}
	for _, r := range records {
		snap.Records = append(snap.Records, snapshotRecord{
			Identity:  r.Identity,
			Signature: r.Signature,
			PhotoRef:  r.PhotoRef,
		})
	}

	data, err := msgpack.Marshal(&snap)
	if err != nil {
		return fmt.Errorf("encoding registry snapshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", s.path, err)
	}
	if err := renameio.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", s.path, err)
	}
	return nil
}
