package store

import (
	"testing"

	"github.com/pkg/errors"

	"github.com/snapline/snapline/logger"
	"github.com/snapline/snapline/model"
	"github.com/snapline/snapline/ref"
)

// fakeHub serves records from memory and counts fetches
type fakeHub struct {
	records    map[ref.Ref][]byte
	components map[string]*model.ModelComponent
	fetches    int
}

func newFakeHub() *fakeHub {
	return &fakeHub{
		records:    map[ref.Ref][]byte{},
		components: map[string]*model.ModelComponent{},
	}
}

func (f *fakeHub) add(t *testing.T, r model.Record) ref.Ref {
	t.Helper()
	data, err := model.Serialize(r)
	if err != nil {
		t.Fatal(err)
	}
	h := ref.Compute(data)
	f.records[h] = data
	return h
}

func (f *fakeHub) FetchRecord(r ref.Ref) ([]byte, error) {
	f.fetches++
	data, ok := f.records[r]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "record %s on the hub", r.Short())
	}
	return data, nil
}

func (f *fakeHub) FetchComponent(scope, name string) (*model.ModelComponent, *model.VersionHistory, error) {
	m, ok := f.components[scope+"/"+name]
	if !ok {
		return nil, nil, errors.Wrapf(ErrScopeUnknown, "component %s/%s", scope, name)
	}
	return m, nil, nil
}

func TestImportRefsPullsTransitively(t *testing.T) {
	repo, err := OpenRepo(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	hub := newFakeHub()

	blob := hub.add(t, &model.Source{Contents: []byte("export {}\n")})
	treeRef := hub.add(t, &model.FileTree{Files: []model.FileEntry{{RelativePath: "index.ts", Blob: blob}}})
	versionRef := hub.add(t, &model.Version{Files: treeRef})

	imp := NewImporter(repo, hub, logger.Nop())
	if err := imp.ImportRefs([]ref.Ref{versionRef}, ImportOptions{Cache: true}); err != nil {
		t.Fatal(err)
	}
	for _, r := range []ref.Ref{versionRef, treeRef, blob} {
		if !repo.Objects.Has(r) {
			t.Fatalf("record %s was not imported", r.Short())
		}
	}

	// everything is local now, a second import fetches nothing
	before := hub.fetches
	if err := imp.ImportRefs([]ref.Ref{versionRef}, ImportOptions{Cache: true}); err != nil {
		t.Fatal(err)
	}
	if hub.fetches != before {
		t.Fatal("present records must not be refetched")
	}
}

func TestImportManySwallowsUnknownScopes(t *testing.T) {
	repo, err := OpenRepo(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	imp := NewImporter(repo, newFakeHub(), logger.Nop())

	// the hub has never heard of this component, it may be genuinely new
	err = imp.ImportManyIfMissing([]ref.ComponentID{{Scope: "acme", Name: "brand-new"}},
		ImportOptions{Cache: true})
	if err != nil {
		t.Fatalf("an unknown scope must be swallowed, got %v", err)
	}
}

func TestImportManySkipsScopelessIDs(t *testing.T) {
	repo, err := OpenRepo(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	hub := newFakeHub()
	imp := NewImporter(repo, hub, logger.Nop())
	err = imp.ImportManyIfMissing([]ref.ComponentID{{Name: "local-only"}}, ImportOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if hub.fetches != 0 {
		t.Fatal("ids without a scope never reach the hub")
	}
}

func TestImportManyMergesRemoteState(t *testing.T) {
	repo, err := OpenRepo(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	hub := newFakeHub()

	blob := hub.add(t, &model.Source{Contents: []byte("x\n")})
	treeRef := hub.add(t, &model.FileTree{Files: []model.FileEntry{{RelativePath: "x.ts", Blob: blob}}})
	versionRef := hub.add(t, &model.Version{Files: treeRef})
	hub.components["acme/button"] = &model.ModelComponent{
		Scope: "acme", Name: "button",
		Head: versionRef,
		Tags: map[string]ref.Ref{"1.0.0": versionRef},
	}

	imp := NewImporter(repo, hub, logger.Nop())
	err = imp.ImportManyIfMissing([]ref.ComponentID{{Scope: "acme", Name: "button"}},
		ImportOptions{Cache: true})
	if err != nil {
		t.Fatal(err)
	}
	m, err := repo.ModelComponent("acme", "button")
	if err != nil {
		t.Fatal(err)
	}
	if m == nil || m.RemoteHead.IsEmpty() && m.Head.IsEmpty() {
		t.Fatalf("remote component state was not recorded: %+v", m)
	}
	if !repo.Objects.Has(versionRef) {
		t.Fatal("the head version was not imported")
	}
}
