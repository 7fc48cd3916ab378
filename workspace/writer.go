package workspace

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/snapline/snapline/merge"
	"github.com/snapline/snapline/ref"
)

// WriteComponent is one component's files to land on disk
type WriteComponent struct {
	ID      ref.ComponentID
	Version string
	Files   []merge.FileStatus
	// DuringMerge marks the bitmap entry as carrying conflict markers
	DuringMerge bool
}

// WriteRequest is the "write many components" capability input
type WriteRequest struct {
	Components                 []WriteComponent
	SkipDependencyInstallation bool
	SkipFilesWrite             bool
	SkipBitmap                 bool
	ResetConfig                bool
	Verbose                    bool
}

// WriteResults carries the write side errors that do not abort the
// operation: they are returned inside the result, never thrown
type WriteResults struct {
	InstallationError error
	CompilationError  error
}

// DependencyInstaller installs workspace dependencies after a write.  The
// package manager integration lives outside the core.
type DependencyInstaller interface {
	Install(root string) error
}

// NoInstaller skips dependency installation entirely
type NoInstaller struct{}

// Install is a no-op
func (NoInstaller) Install(string) error { return nil }

// Writer lands component file sets in the workspace and keeps the bitmap in
// step.  Components are written strictly in order: one component may be
// another's dependency, and the shared on-disk layout means B's write must
// see A's final state.
type Writer struct {
	WS        *Workspace
	Installer DependencyInstaller
	Log       *zap.Logger
}

// NewWriter builds a writer over the workspace
func NewWriter(ws *Workspace, installer DependencyInstaller, log *zap.Logger) *Writer {
	if installer == nil {
		installer = NoInstaller{}
	}
	return &Writer{WS: ws, Installer: installer, Log: log}
}

// WriteMany writes each component's files sequentially, updates the bitmap
// after each successful write, then runs dependency installation.  The
// bitmap entry for a component changes only once its files are fully on
// disk.
func (w *Writer) WriteMany(req WriteRequest) (WriteResults, error) {
	var results WriteResults
	for _, comp := range req.Components {
		if !req.SkipFilesWrite {
			if err := w.writeComponent(comp); err != nil {
				return results, err
			}
		}
		if !req.SkipBitmap {
			w.WS.Bitmap.SetComponent(comp.ID, comp.Version, keptPaths(comp.Files))
			if comp.DuringMerge {
				w.WS.Bitmap.SetDuringMerge(comp.ID, true)
			}
		}
		w.Log.Debug("component written",
			zap.String("id", comp.ID.FullName()),
			zap.String("version", comp.Version))
	}
	if !req.SkipBitmap {
		if err := w.WS.Bitmap.Save(); err != nil {
			return results, err
		}
	}
	if !req.SkipDependencyInstallation {
		if err := w.Installer.Install(w.WS.Root); err != nil {
			results.InstallationError = err
		}
	}
	return results, nil
}

func (w *Writer) writeComponent(comp WriteComponent) error {
	dir := w.WS.ComponentDir(comp.ID)
	for _, f := range comp.Files {
		path := filepath.Join(dir, filepath.FromSlash(f.Path))
		if f.Removed {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return errors.Wrapf(err, "removing %s of %s", f.Path, comp.ID.FullName())
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return errors.Wrapf(err, "creating dirs for %s of %s", f.Path, comp.ID.FullName())
		}
		if err := writeFileAtomic(path, f.Contents, 0644); err != nil {
			return errors.Wrapf(err, "writing %s of %s", f.Path, comp.ID.FullName())
		}
	}
	// drop stale files the new version no longer carries
	keep := map[string]bool{}
	for _, f := range comp.Files {
		if !f.Removed {
			keep[f.Path] = true
		}
	}
	existing, err := w.WS.ComponentFilePaths(comp.ID)
	if err != nil {
		return err
	}
	for _, rel := range existing {
		if !keep[rel] {
			if err := os.Remove(filepath.Join(dir, filepath.FromSlash(rel))); err != nil && !os.IsNotExist(err) {
				return errors.Wrapf(err, "removing stale %s of %s", rel, comp.ID.FullName())
			}
		}
	}
	return nil
}

// RemoveLocally deletes components from disk and from the bitmap
func (w *Writer) RemoveLocally(ids []ref.ComponentID, force bool) error {
	for _, id := range ids {
		dir := w.WS.ComponentDir(id)
		if err := os.RemoveAll(dir); err != nil {
			if !force {
				return errors.Wrapf(err, "removing %s", id.FullName())
			}
			w.Log.Debug("ignoring removal failure", zap.String("id", id.FullName()), zap.Error(err))
		}
		w.WS.Bitmap.RemoveComponent(id)
	}
	return w.WS.Bitmap.Save()
}

func keptPaths(files []merge.FileStatus) []string {
	var paths []string
	for _, f := range files {
		if !f.Removed {
			paths = append(paths, f.Path)
		}
	}
	sort.Strings(paths)
	return paths
}
