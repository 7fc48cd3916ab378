package store

import (
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/snapline/snapline/model"
	"github.com/snapline/snapline/ref"
)

// ImportOptions tunes an import run
type ImportOptions struct {
	// Cache reuses results from earlier imports in the same operation
	Cache bool
	// Latest targets the component's greatest semver tag rather than its head
	Latest bool
}

// HubClient is the slice of the hub the importer needs
type HubClient interface {
	FetchRecord(r ref.Ref) ([]byte, error)
	FetchComponent(scope, name string) (*model.ModelComponent, *model.VersionHistory, error)
}

// Importer fetches remotely owned records into the local store.  A process
// wide memoization cache avoids refetching within one operation; it must be
// invalidated at operation start.
type Importer struct {
	repo *Repo
	hub  HubClient
	log  *zap.Logger

	mu   sync.Mutex
	seen map[string]bool
}

// NewImporter wires an importer over the repo and hub
func NewImporter(repo *Repo, hub HubClient, log *zap.Logger) *Importer {
	return &Importer{repo: repo, hub: hub, log: log, seen: map[string]bool{}}
}

// InvalidateCache drops the per operation memoization
func (imp *Importer) InvalidateCache() {
	imp.mu.Lock()
	imp.seen = map[string]bool{}
	imp.mu.Unlock()
}

func (imp *Importer) markSeen(key string, cache bool) bool {
	if !cache {
		return false
	}
	imp.mu.Lock()
	defer imp.mu.Unlock()
	if imp.seen[key] {
		return true
	}
	imp.seen[key] = true
	return false
}

// ImportManyIfMissing fetches component metadata for every scoped id, then
// the version record it targets and that record's files when they are not
// present locally.  A scope the hub
// does not know yet is not an error: the component may be genuinely new and
// never exported, so the failure is logged and swallowed.
func (imp *Importer) ImportManyIfMissing(ids []ref.ComponentID, opts ImportOptions) error {
	for _, id := range ids {
		if !id.HasScope() {
			continue
		}
		if imp.markSeen("component:"+id.FullName(), opts.Cache) {
			continue
		}
		if err := imp.importComponent(id, opts); err != nil {
			if errors.Is(err, ErrScopeUnknown) {
				imp.log.Debug("component unknown on the hub, assuming it is new",
					zap.String("id", id.FullName()))
				continue
			}
			return err
		}
	}
	return nil
}

func (imp *Importer) importComponent(id ref.ComponentID, opts ImportOptions) error {
	remote, hist, err := imp.hub.FetchComponent(id.Scope, id.Name)
	if err != nil {
		return err
	}

	local, err := imp.repo.ModelComponent(id.Scope, id.Name)
	if err != nil {
		return err
	}
	if local == nil {
		local = remote
	} else {
		// the remote head and tags are merged into the local record; the
		// local head is never moved by an import
		local.RemoteHead = remote.HeadIncludeRemote()
		for tag, h := range remote.Tags {
			if _, ok := local.Tags[tag]; !ok {
				if local.Tags == nil {
					local.Tags = map[string]ref.Ref{}
				}
				local.Tags[tag] = h
			}
		}
	}
	if err = imp.repo.SaveModelComponent(local); err != nil {
		return err
	}

	if hist != nil {
		localHist, err := imp.repo.VersionHistory(id.Scope, id.Name)
		if err != nil {
			return err
		}
		for _, vp := range hist.Versions {
			localHist.AddFromVersion(vp.Hash, &model.Version{
				Parents:   vp.Parents,
				Unrelated: vp.Unrelated,
				Squashed:  vp.Squashed,
			})
		}
		if localHist.IsDirty() {
			if err = imp.repo.SaveVersionHistory(localHist); err != nil {
				return err
			}
		}
	}

	// decide which version record the caller is after
	target := local.HeadIncludeRemote()
	if opts.Latest {
		if latest := local.LatestVersionIfExist(); latest != "" {
			if h, ok := local.ResolveVersion(latest); ok {
				target = h
			}
		}
	}
	if id.Version != "" {
		if h, ok := local.ResolveVersion(id.Version); ok {
			target = h
		}
	}
	if target.IsEmpty() {
		return nil
	}
	return imp.ImportRefs([]ref.Ref{target}, opts)
}

// ImportRefs fetches the given records plus everything each version's file
// tree references.  Already present records are skipped.
func (imp *Importer) ImportRefs(refs []ref.Ref, opts ImportOptions) error {
	queue := append([]ref.Ref{}, refs...)
	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]
		if h.IsEmpty() || imp.repo.Objects.Has(h) {
			continue
		}
		if imp.markSeen("ref:"+h.String(), opts.Cache) {
			continue
		}
		data, err := imp.hub.FetchRecord(h)
		if err != nil {
			return err
		}
		if _, err = imp.repo.Objects.PutRaw(data); err != nil {
			return err
		}
		rec, err := model.Deserialize(data)
		if err != nil {
			return err
		}
		switch t := rec.(type) {
		case *model.Version:
			queue = append(queue, t.Files)
		case *model.FileTree:
			for _, f := range t.Files {
				queue = append(queue, f.Blob)
			}
		}
	}
	return nil
}
