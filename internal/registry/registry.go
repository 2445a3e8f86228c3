// Package registry keeps the durable mapping from identity to face signature
// together with each identity's reference photo.
package registry

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/kozaktomas/face-attendance/internal/detector"
	"github.com/kozaktomas/face-attendance/internal/matcher"
	"github.com/kozaktomas/face-attendance/internal/signature"
)

var (
	ErrNoFaceDetected  = errors.New("no face detected")
	ErrNotFound        = errors.New("identity not found")
	ErrIdentityExists  = errors.New("identity already exists")
	ErrInvalidIdentity = errors.New("invalid identity")
)

// Record is one enrolled identity.
type Record struct {
	Identity  string
	Signature signature.Signature
	PhotoRef  string
}

// Store persists the full registry. Save receives records sorted by identity
// and must replace whatever was stored before.
type Store interface {
	Load(ctx context.Context) ([]Record, error)
	Save(ctx context.Context, records []Record) error
}

// PhotoStore keeps the full frame captured at enrollment, one per identity.
type PhotoStore interface {
	Put(identity string, frame image.Image) (ref string, undo func() error, err error)
	Move(from, to string) (ref string, err error)
	Remove(identity string) error
}

// Registry is safe for concurrent use. Reads run in parallel; every mutation
// holds the write lock until the new state has been persisted.
type Registry struct {
	mu        sync.RWMutex
	records   map[string]Record
	entries   []matcher.Entry
	store     Store
	photos    PhotoStore
	localizer detector.Localizer
}

// New loads the persisted registry from store.
func New(ctx context.Context, store Store, photos PhotoStore, localizer detector.Localizer) (*Registry, error) {
	records, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading registry: %w", err)
	}

	r := &Registry{
		records:   make(map[string]Record, len(records)),
		store:     store,
		photos:    photos,
		localizer: localizer,
	}
	for _, rec := range records {
		r.records[rec.Identity] = rec
	}
	r.rebuildEntries()
	return r, nil
}

// Enroll registers identity from the first face found in frame, replacing
// any previous enrollment under the same name.
func (r *Registry) Enroll(ctx context.Context, identity string, frame image.Image) error {
	identity, err := ValidateIdentity(identity)
	if err != nil {
		return err
	}
	sig, err := r.encodeFirstFace(frame)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	prev, existed := r.records[identity]
	ref, undo, err := r.photos.Put(identity, frame)
	if err != nil {
		return fmt.Errorf("storing photo for %s: %w", identity, err)
	}

	r.records[identity] = Record{Identity: identity, Signature: sig, PhotoRef: ref}
	if err := r.persist(ctx); err != nil {
		if existed {
			r.records[identity] = prev
		} else {
			delete(r.records, identity)
		}
		r.rebuildEntries()
		undoPhoto(identity, undo)
		return err
	}
	return nil
}

// Rename moves an enrollment to a new name. The signature is kept unchanged.
func (r *Registry) Rename(ctx context.Context, oldIdentity, newIdentity string) error {
	oldIdentity = NormalizeIdentity(oldIdentity)
	newIdentity, err := ValidateIdentity(newIdentity)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.checkMove(oldIdentity, newIdentity)
	if err != nil {
		return err
	}
	if oldIdentity == newIdentity {
		return nil
	}

	ref, err := r.photos.Move(oldIdentity, newIdentity)
	if err != nil {
		return fmt.Errorf("moving photo for %s: %w", oldIdentity, err)
	}

	delete(r.records, oldIdentity)
	r.records[newIdentity] = Record{Identity: newIdentity, Signature: rec.Signature, PhotoRef: ref}
	if err := r.persist(ctx); err != nil {
		delete(r.records, newIdentity)
		r.records[oldIdentity] = rec
		r.rebuildEntries()
		if _, mvErr := r.photos.Move(newIdentity, oldIdentity); mvErr != nil {
			slog.Warn("restoring photo after failed rename", "identity", oldIdentity, "error", mvErr)
		}
		return err
	}
	return nil
}

// Replace re-enrolls oldIdentity from a new frame, optionally under a new
// name. Nothing changes when frame contains no face.
func (r *Registry) Replace(ctx context.Context, oldIdentity, newIdentity string, frame image.Image) error {
	oldIdentity = NormalizeIdentity(oldIdentity)
	newIdentity, err := ValidateIdentity(newIdentity)
	if err != nil {
		return err
	}

	r.mu.RLock()
	_, err = r.checkMove(oldIdentity, newIdentity)
	r.mu.RUnlock()
	if err != nil {
		return err
	}

	sig, err := r.encodeFirstFace(frame)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Re-check: the registry may have changed while the frame was encoded.
	prev, err := r.checkMove(oldIdentity, newIdentity)
	if err != nil {
		return err
	}

	ref, undo, err := r.photos.Put(newIdentity, frame)
	if err != nil {
		return fmt.Errorf("storing photo for %s: %w", newIdentity, err)
	}

	delete(r.records, oldIdentity)
	r.records[newIdentity] = Record{Identity: newIdentity, Signature: sig, PhotoRef: ref}
	if err := r.persist(ctx); err != nil {
		delete(r.records, newIdentity)
		r.records[oldIdentity] = prev
		r.rebuildEntries()
		undoPhoto(newIdentity, undo)
		return err
	}

	if oldIdentity != newIdentity {
		r.removePhoto(oldIdentity)
	}
	return nil
}

// Delete removes identity and its photo.
func (r *Registry) Delete(ctx context.Context, identity string) error {
	identity = NormalizeIdentity(identity)

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[identity]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, identity)
	}

	delete(r.records, identity)
	if err := r.persist(ctx); err != nil {
		r.records[identity] = rec
		r.rebuildEntries()
		return err
	}

	r.removePhoto(identity)
	return nil
}

// List returns all enrolled identities in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		names = append(names, e.Identity)
	}
	return names
}

// Get returns a copy of the record stored under identity.
func (r *Registry) Get(identity string) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[NormalizeIdentity(identity)]
	if !ok {
		return Record{}, false
	}
	rec.Signature = rec.Signature.Clone()
	return rec, true
}

// Len returns the number of enrolled identities.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// Entries returns the match candidates sorted by identity. The returned
// slice is replaced, never modified, on mutation and must not be written to.
func (r *Registry) Entries() []matcher.Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries
}

// Identify matches sig against the current registry.
func (r *Registry) Identify(sig signature.Signature, threshold float64) matcher.Result {
	return matcher.Match(sig, r.Entries(), threshold)
}

func (r *Registry) encodeFirstFace(frame image.Image) (signature.Signature, error) {
	box, ok := detector.First(r.localizer, frame)
	if !ok {
		return nil, ErrNoFaceDetected
	}
	return signature.Encode(detector.Crop(frame, box)), nil
}

// checkMove verifies that oldIdentity exists and newIdentity is free.
// Callers must hold r.mu.
func (r *Registry) checkMove(oldIdentity, newIdentity string) (Record, error) {
	rec, ok := r.records[oldIdentity]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, oldIdentity)
	}
	if newIdentity != oldIdentity {
		if _, taken := r.records[newIdentity]; taken {
			return Record{}, fmt.Errorf("%w: %s", ErrIdentityExists, newIdentity)
		}
	}
	return rec, nil
}

// persist rebuilds the match entries and saves the full registry.
// Callers must hold the write lock.
func (r *Registry) persist(ctx context.Context) error {
	r.rebuildEntries()

	records := make([]Record, 0, len(r.entries))
	for _, e := range r.entries {
		records = append(records, r.records[e.Identity])
	}
	if err := r.store.Save(ctx, records); err != nil {
		return fmt.Errorf("saving registry: %w", err)
	}
	return nil
}

func (r *Registry) rebuildEntries() {
	entries := make([]matcher.Entry, 0, len(r.records))
	for _, rec := range r.records {
		entries = append(entries, matcher.Entry{Identity: rec.Identity, Signature: rec.Signature})
	}
	slices.SortFunc(entries, func(a, b matcher.Entry) int {
		return strings.Compare(a.Identity, b.Identity)
	})
	r.entries = entries
}

// undoPhoto reverts a photo write after the registry failed to persist.
func undoPhoto(identity string, undo func() error) {
	if err := undo(); err != nil {
		slog.Warn("restoring photo after failed save", "identity", identity, "error", err)
	}
}

func (r *Registry) removePhoto(identity string) {
	if err := r.photos.Remove(identity); err != nil {
		slog.Warn("removing photo", "identity", identity, "error", err)
	}
}
