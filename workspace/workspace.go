package workspace

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/snapline/snapline/merge"
	"github.com/snapline/snapline/ref"
)

// MetaDir is the workspace metadata directory name
const MetaDir = ".snapline"

// ErrNotAWorkspace is returned when the current directory is not inside an
// initialized workspace.  A precondition failure, surfaced at the edge.
var ErrNotAWorkspace = errors.New("not inside a snapline workspace, run 'snapline init' first")

// workspaceFile is the persisted workspace configuration
type workspaceFile struct {
	DefaultScope string                `json:"defaultScope,omitempty"`
	CurrentLane  string                `json:"currentLane,omitempty"`
	Policy       merge.WorkspacePolicy `json:"policy"`
}

// Workspace is a consumer working copy: a root directory of component
// sources plus the metadata under .snapline
type Workspace struct {
	Root   string
	Bitmap *Bitmap

	config workspaceFile
}

// Init creates a fresh workspace at root
func Init(root, defaultScope string) (*Workspace, error) {
	metaDir := filepath.Join(root, MetaDir)
	if _, err := os.Stat(filepath.Join(metaDir, "workspace.json")); err == nil {
		return nil, errors.Errorf("'%s' is already a snapline workspace", root)
	}
	if err := os.MkdirAll(metaDir, 0755); err != nil {
		return nil, errors.Wrap(err, "creating workspace metadata dir")
	}
	w := &Workspace{Root: root, config: workspaceFile{DefaultScope: defaultScope}}
	if err := w.SaveConfig(); err != nil {
		return nil, err
	}
	bitmap, err := LoadBitmap(filepath.Join(metaDir, "bitmap.json"))
	if err != nil {
		return nil, err
	}
	w.Bitmap = bitmap
	return w, nil
}

// Load opens the workspace containing dir, walking up to find the metadata
// directory
func Load(dir string) (*Workspace, error) {
	root, err := findRoot(dir)
	if err != nil {
		return nil, err
	}
	w := &Workspace{Root: root}
	data, err := os.ReadFile(filepath.Join(root, MetaDir, "workspace.json"))
	if err != nil {
		return nil, errors.Wrap(err, "reading workspace config")
	}
	if err = json.Unmarshal(data, &w.config); err != nil {
		return nil, errors.Wrap(err, "parsing workspace config, the file may be corrupted")
	}
	bitmap, err := LoadBitmap(filepath.Join(root, MetaDir, "bitmap.json"))
	if err != nil {
		return nil, err
	}
	w.Bitmap = bitmap
	return w, nil
}

func findRoot(dir string) (string, error) {
	cur, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(cur, MetaDir, "workspace.json")); err == nil {
			return cur, nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", ErrNotAWorkspace
		}
		cur = parent
	}
}

// MetaPath returns the path of the workspace metadata directory
func (w *Workspace) MetaPath() string {
	return filepath.Join(w.Root, MetaDir)
}

// DefaultScope returns the scope new components default to
func (w *Workspace) DefaultScope() string {
	return w.config.DefaultScope
}

// CurrentLane returns the active lane id, empty when on main
func (w *Workspace) CurrentLane() string {
	return w.config.CurrentLane
}

// SetCurrentLane switches the active lane.  Empty means back to main.
func (w *Workspace) SetCurrentLane(laneID string) error {
	w.config.CurrentLane = laneID
	return w.SaveConfig()
}

// Policy returns the workspace dependency policy
func (w *Workspace) Policy() *merge.WorkspacePolicy {
	return &w.config.Policy
}

// SaveConfig persists the workspace configuration atomically
func (w *Workspace) SaveConfig() error {
	data, err := json.MarshalIndent(w.config, "", "  ")
	if err != nil {
		return errors.Wrap(err, "serialising workspace config")
	}
	return writeFileAtomic(filepath.Join(w.MetaPath(), "workspace.json"), append(data, '\n'), 0644)
}

// ComponentDir is where a component's files live inside the workspace
func (w *Workspace) ComponentDir(id ref.ComponentID) string {
	return filepath.Join(w.Root, id.Scope, id.Name)
}

// ReadComponentFile reads one of a component's files from disk.  A missing
// file returns ok=false rather than an error.
func (w *Workspace) ReadComponentFile(id ref.ComponentID, relativePath string) ([]byte, bool, error) {
	data, err := os.ReadFile(filepath.Join(w.ComponentDir(id), relativePath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, errors.Wrapf(err, "reading %s of %s", relativePath, id.FullName())
	}
	return data, true, nil
}

// ComponentFilePaths lists the files currently on disk for a component,
// relative to its directory
func (w *Workspace) ComponentFilePaths(id ref.ComponentID) ([]string, error) {
	dir := w.ComponentDir(id)
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "listing files of %s", id.FullName())
	}
	return files, nil
}

// Tmp creates the scratch directory used by the merge path.  The release
// function removes it and must run on every exit path.
func (w *Workspace) Tmp() (string, func(), error) {
	base := filepath.Join(w.MetaPath(), "tmp")
	if err := os.MkdirAll(base, 0755); err != nil {
		return "", nil, errors.Wrap(err, "creating scratch dir")
	}
	dir, err := os.MkdirTemp(base, "checkout-*")
	if err != nil {
		return "", nil, errors.Wrap(err, "creating scratch dir")
	}
	return dir, func() { os.RemoveAll(dir) }, nil
}

// WriteConflictMarkers rewrites the workspace policy file with diff3 style
// conflict markers for the given workspace level conflicts.  The caller
// reports a failure but treats it as non-fatal.
func (w *Workspace) WriteConflictMarkers(conflicts map[string]merge.ConflictTuple) error {
	if len(conflicts) == 0 {
		return nil
	}
	ours := w.config.Policy
	theirs := merge.WorkspacePolicy{
		Dependencies:     copyPolicyMap(ours.Dependencies),
		PeerDependencies: copyPolicyMap(ours.PeerDependencies),
	}
	for pkg, tuple := range conflicts {
		if _, ok := theirs.Dependencies[pkg]; ok {
			theirs.Dependencies[pkg] = tuple.Theirs
		}
		if _, ok := theirs.PeerDependencies[pkg]; ok {
			theirs.PeerDependencies[pkg] = tuple.Theirs
		}
	}
	oursJSON, err := json.MarshalIndent(workspaceFile{
		DefaultScope: w.config.DefaultScope, CurrentLane: w.config.CurrentLane, Policy: ours}, "", "  ")
	if err != nil {
		return err
	}
	theirsJSON, err := json.MarshalIndent(workspaceFile{
		DefaultScope: w.config.DefaultScope, CurrentLane: w.config.CurrentLane, Policy: theirs}, "", "  ")
	if err != nil {
		return err
	}
	marked, _, err := merge.MergeText(oursJSON, nil, theirsJSON, "workspace", "incoming")
	if err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(w.MetaPath(), "workspace.json"), marked, 0644)
}

func copyPolicyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// writeFileAtomic writes via a temp file and rename in the target dir
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return errors.Wrap(err, "creating temp file")
	}
	tmpName := tmp.Name()
	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, "writing temp file")
	}
	if err = tmp.Chmod(perm); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, "setting temp file mode")
	}
	if err = tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "closing temp file")
	}
	if err = os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "moving file into place")
	}
	return nil
}
