// Package workspace models the consumer side: the bitmap tracking which
// version of each component is checked out, the workspace configuration and
// dependency policy, and writing component files to disk.
package workspace

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"

	"github.com/snapline/snapline/ref"
)

// BitmapEntry tracks one component in the workspace
type BitmapEntry struct {
	ID      ref.ComponentID `json:"id"`
	Version string          `json:"version,omitempty"`
	Files   []string        `json:"files,omitempty"`

	// OnLanesOnly marks a component that exists on a lane but is not
	// available on main.  Flipped when exiting a lane.
	OnLanesOnly bool `json:"onLanesOnly,omitempty"`

	// DuringMerge marks a component whose last checkout left conflict
	// markers to resolve
	DuringMerge bool `json:"duringMerge,omitempty"`
}

// Bitmap is the workspace's persistent component map.  It is mutated only by
// checkout, write and removal operations, and held under an exclusive
// filesystem lock for the whole operation.
type Bitmap struct {
	path    string
	lock    *flock.Flock
	entries map[string]*BitmapEntry
}

type bitmapFile struct {
	Components []*BitmapEntry `json:"components"`
}

// LoadBitmap reads the bitmap file, which may not exist yet
func LoadBitmap(path string) (*Bitmap, error) {
	b := &Bitmap{
		path:    path,
		lock:    flock.New(path + ".lock"),
		entries: map[string]*BitmapEntry{},
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return b, nil
		}
		return nil, errors.Wrap(err, "reading workspace bitmap")
	}
	var f bitmapFile
	if err = json.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "parsing workspace bitmap, the file may be corrupted")
	}
	for _, e := range f.Components {
		b.entries[e.ID.FullName()] = e
	}
	return b, nil
}

// Lock takes the exclusive writer lock.  Held for the whole checkout.
func (b *Bitmap) Lock() error {
	if err := b.lock.Lock(); err != nil {
		return errors.Wrap(err, "locking workspace bitmap")
	}
	return nil
}

// Unlock releases the writer lock
func (b *Bitmap) Unlock() {
	_ = b.lock.Unlock()
}

// GetBitID returns the tracked id for a component.  With ignoreVersion the
// returned id has no version; otherwise it carries the tracked version.
func (b *Bitmap) GetBitID(id ref.ComponentID, ignoreVersion bool) (ref.ComponentID, bool) {
	e, ok := b.entries[id.FullName()]
	if !ok {
		return ref.ComponentID{}, false
	}
	if ignoreVersion {
		return e.ID.WithoutVersion(), true
	}
	return e.ID.WithVersion(e.Version), true
}

// Entry returns the tracked entry for a component
func (b *Bitmap) Entry(id ref.ComponentID) (*BitmapEntry, bool) {
	e, ok := b.entries[id.FullName()]
	return e, ok
}

// SetComponent records a component at a version with its file listing
func (b *Bitmap) SetComponent(id ref.ComponentID, version string, files []string) {
	key := id.FullName()
	e, ok := b.entries[key]
	if !ok {
		e = &BitmapEntry{ID: id.WithoutVersion()}
		b.entries[key] = e
	}
	e.Version = version
	e.Files = files
	e.DuringMerge = false
}

// SetDuringMerge flags or clears the during-merge state for a component
func (b *Bitmap) SetDuringMerge(id ref.ComponentID, during bool) {
	if e, ok := b.entries[id.FullName()]; ok {
		e.DuringMerge = during
	}
}

// RemoveComponent drops a component from the bitmap, reporting whether it
// was tracked
func (b *Bitmap) RemoveComponent(id ref.ComponentID) bool {
	key := id.FullName()
	if _, ok := b.entries[key]; !ok {
		return false
	}
	delete(b.entries, key)
	return true
}

// MakeComponentsAvailableOnMain clears the lanes-only flag, used when
// exiting a lane
func (b *Bitmap) MakeComponentsAvailableOnMain(ids []ref.ComponentID) {
	for _, id := range ids {
		if e, ok := b.entries[id.FullName()]; ok {
			e.OnLanesOnly = false
		}
	}
}

// All returns every tracked entry, ordered by component name
func (b *Bitmap) All() []*BitmapEntry {
	out := make([]*BitmapEntry, 0, len(b.entries))
	for _, e := range b.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID.FullName() < out[j].ID.FullName()
	})
	return out
}

// Save writes the bitmap atomically, write-temp then rename
func (b *Bitmap) Save() error {
	f := bitmapFile{Components: b.All()}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return errors.Wrap(err, "serialising workspace bitmap")
	}
	if err = os.MkdirAll(filepath.Dir(b.path), 0755); err != nil {
		return errors.Wrap(err, "creating workspace dir")
	}
	return writeFileAtomic(b.path, append(data, '\n'), 0644)
}
