package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/snapline/snapline/model"
	"github.com/snapline/snapline/ref"
)

// Repo wraps the object store with typed access and the mutable indexes a
// content addressed store cannot answer by itself: which ModelComponent and
// VersionHistory record is current for a scope/name, and which lanes exist.
//
// ModelComponent and VersionHistory have identity per (scope, name): at most
// one in-memory instance per process, loaded lazily.
type Repo struct {
	Objects *Store

	root string // the .snapline directory

	mu        sync.Mutex
	models    map[string]*model.ModelComponent
	histories map[string]*model.VersionHistory
}

// componentRefs is the per component pointer file under refs/components
type componentRefs struct {
	Component ref.Ref `json:"component"`
	History   ref.Ref `json:"history,omitempty"`
}

// OpenRepo opens the repository under the given .snapline directory
func OpenRepo(root string) (*Repo, error) {
	objects, err := New(filepath.Join(root, "objects"))
	if err != nil {
		return nil, err
	}
	for _, d := range []string{"refs", "lanes"} {
		if err := os.MkdirAll(filepath.Join(root, d), 0755); err != nil {
			return nil, errors.Wrapf(err, "creating %s dir", d)
		}
	}
	return &Repo{
		Objects:   objects,
		root:      root,
		models:    map[string]*model.ModelComponent{},
		histories: map[string]*model.VersionHistory{},
	}, nil
}

func componentKey(scope, name string) string {
	return scope + "/" + name
}

func (r *Repo) refsPath(scope, name string) string {
	return filepath.Join(r.root, "refs", scope, strings.ReplaceAll(name, "/", "__"))
}

func (r *Repo) loadRefs(scope, name string) (*componentRefs, error) {
	data, err := os.ReadFile(r.refsPath(scope, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "reading refs for %s/%s", scope, name)
	}
	var cr componentRefs
	if err = json.Unmarshal(data, &cr); err != nil {
		return nil, errors.Wrapf(err, "parsing refs for %s/%s", scope, name)
	}
	return &cr, nil
}

func (r *Repo) saveRefs(scope, name string, cr *componentRefs) error {
	path := r.refsPath(scope, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "creating refs scope dir")
	}
	data, err := json.Marshal(cr)
	if err != nil {
		return err
	}
	return writeFileAtomic(path, append(data, '\n'), 0644)
}

// ModelComponent loads the head record for a component, or nil when the
// component is unknown locally
func (r *Repo) ModelComponent(scope, name string) (*model.ModelComponent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := componentKey(scope, name)
	if m, ok := r.models[key]; ok {
		return m, nil
	}
	cr, err := r.loadRefs(scope, name)
	if err != nil || cr == nil {
		return nil, err
	}
	rec, err := r.Objects.Get(cr.Component)
	if err != nil {
		return nil, err
	}
	m, ok := rec.(*model.ModelComponent)
	if !ok {
		return nil, errors.Errorf("refs for %s point at a %s record, not a component", key, rec.Kind())
	}
	r.models[key] = m
	return m, nil
}

// VersionHistory loads the history cache for a component.  A missing cache
// starts empty rather than failing, it fills as versions are recorded.
func (r *Repo) VersionHistory(scope, name string) (*model.VersionHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := componentKey(scope, name)
	if h, ok := r.histories[key]; ok {
		return h, nil
	}
	h := &model.VersionHistory{Scope: scope, Name: name}
	cr, err := r.loadRefs(scope, name)
	if err != nil {
		return nil, err
	}
	if cr != nil && !cr.History.IsEmpty() {
		rec, err := r.Objects.Get(cr.History)
		if err != nil {
			return nil, err
		}
		loaded, ok := rec.(*model.VersionHistory)
		if !ok {
			return nil, errors.Errorf("refs for %s point at a %s record, not a history", key, rec.Kind())
		}
		h = loaded
	}
	r.histories[key] = h
	return h, nil
}

// SaveModelComponent persists the record and repoints the component refs
func (r *Repo) SaveModelComponent(m *model.ModelComponent) error {
	h, err := r.Objects.Put(m)
	if err != nil {
		return err
	}
	cr, err := r.loadRefs(m.Scope, m.Name)
	if err != nil {
		return err
	}
	if cr == nil {
		cr = &componentRefs{}
	}
	cr.Component = h
	if err = r.saveRefs(m.Scope, m.Name, cr); err != nil {
		return err
	}
	r.mu.Lock()
	r.models[componentKey(m.Scope, m.Name)] = m
	r.mu.Unlock()
	return nil
}

// SaveVersionHistory persists a dirty history cache and repoints the refs
func (r *Repo) SaveVersionHistory(h *model.VersionHistory) error {
	hash, err := r.Objects.Put(h)
	if err != nil {
		return err
	}
	cr, err := r.loadRefs(h.Scope, h.Name)
	if err != nil {
		return err
	}
	if cr == nil {
		cr = &componentRefs{}
	}
	cr.History = hash
	if err = r.saveRefs(h.Scope, h.Name, cr); err != nil {
		return err
	}
	h.ClearDirty()
	r.mu.Lock()
	r.histories[componentKey(h.Scope, h.Name)] = h
	r.mu.Unlock()
	return nil
}

// Version loads a Version record
func (r *Repo) Version(h ref.Ref) (*model.Version, error) {
	rec, err := r.Objects.Get(h)
	if err != nil {
		return nil, err
	}
	v, ok := rec.(*model.Version)
	if !ok {
		return nil, errors.Errorf("%s is a %s record, not a version", h.Short(), rec.Kind())
	}
	return v, nil
}

// FileTree loads a FileTree record
func (r *Repo) FileTree(h ref.Ref) (*model.FileTree, error) {
	rec, err := r.Objects.Get(h)
	if err != nil {
		return nil, err
	}
	t, ok := rec.(*model.FileTree)
	if !ok {
		return nil, errors.Errorf("%s is a %s record, not a file tree", h.Short(), rec.Kind())
	}
	return t, nil
}

// Source loads the raw contents of a file blob
func (r *Repo) Source(h ref.Ref) ([]byte, error) {
	rec, err := r.Objects.Get(h)
	if err != nil {
		return nil, err
	}
	s, ok := rec.(*model.Source)
	if !ok {
		return nil, errors.Errorf("%s is a %s record, not a source", h.Short(), rec.Kind())
	}
	return s.Contents, nil
}

// PutVersion stores a version and records its edges in the history cache
func (r *Repo) PutVersion(scope, name string, v *model.Version) (ref.Ref, error) {
	h, err := r.Objects.Put(v)
	if err != nil {
		return "", err
	}
	hist, err := r.VersionHistory(scope, name)
	if err != nil {
		return "", err
	}
	hist.AddFromVersion(h, v)
	if err = r.SaveVersionHistory(hist); err != nil {
		return "", err
	}
	return h, nil
}

func (r *Repo) lanePath(scope, name string) string {
	return filepath.Join(r.root, "lanes", scope, strings.ReplaceAll(name, "/", "__")+".json")
}

// Lane loads a lane by scope and name, or nil when it does not exist.
// Lanes are mutable records identified by a stable random hash, so they live
// outside the content addressed store.
func (r *Repo) Lane(scope, name string) (*model.Lane, error) {
	data, err := os.ReadFile(r.lanePath(scope, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "reading lane %s/%s", scope, name)
	}
	var l model.Lane
	if err = json.Unmarshal(data, &l); err != nil {
		return nil, errors.Wrapf(err, "parsing lane %s/%s", scope, name)
	}
	return &l, nil
}

// SaveLane validates and persists a lane, clearing its in-memory flags
func (r *Repo) SaveLane(l *model.Lane) error {
	if err := l.Validate(); err != nil {
		return err
	}
	path := r.lanePath(l.Scope, l.Name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "creating lanes scope dir")
	}
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return err
	}
	if err = writeFileAtomic(path, append(data, '\n'), 0644); err != nil {
		return err
	}
	l.IsNew = false
	l.HasChanged = false
	return nil
}

// RemoveLane deletes a lane, reporting whether it existed
func (r *Repo) RemoveLane(scope, name string) (bool, error) {
	err := os.Remove(r.lanePath(scope, name))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "removing lane %s/%s", scope, name)
	}
	return true, nil
}

// Lanes lists every lane in the repository
func (r *Repo) Lanes() ([]*model.Lane, error) {
	var lanes []*model.Lane
	base := filepath.Join(r.root, "lanes")
	scopes, err := os.ReadDir(base)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	for _, scopeDir := range scopes {
		if !scopeDir.IsDir() {
			continue
		}
		files, err := os.ReadDir(filepath.Join(base, scopeDir.Name()))
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			name := strings.TrimSuffix(f.Name(), ".json")
			l, err := r.Lane(scopeDir.Name(), strings.ReplaceAll(name, "__", "/"))
			if err != nil {
				return nil, err
			}
			if l != nil {
				lanes = append(lanes, l)
			}
		}
	}
	return lanes, nil
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
