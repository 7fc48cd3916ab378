package model

import (
	"github.com/snapline/snapline/ref"
)

// VersionParents is one denormalized entry in a component's history DAG
type VersionParents struct {
	Hash      ref.Ref   `json:"hash"`
	Parents   []ref.Ref `json:"parents"`
	Unrelated ref.Ref   `json:"unrelated,omitempty"`
	Squashed  []ref.Ref `json:"squashed,omitempty"`
}

// VersionHistory caches the parent edges of a component's entire history so
// traversal never needs to load full Version records.  GraphCompleteRefs
// memoizes "from this ref, every transitive parent is present".
type VersionHistory struct {
	Scope             string           `json:"scope"`
	Name              string           `json:"name"`
	Versions          []VersionParents `json:"versions"`
	GraphCompleteRefs []ref.Ref        `json:"graphCompleteRefs,omitempty"`

	dirty bool
}

func (h *VersionHistory) Kind() Kind { return KindVersionHistory }

// Lookup finds the entry for the given hash
func (h *VersionHistory) Lookup(r ref.Ref) (*VersionParents, bool) {
	for i := range h.Versions {
		if h.Versions[i].Hash == r {
			return &h.Versions[i], true
		}
	}
	return nil, false
}

// AddFromVersion records a version's edges.  No two entries may share a
// hash; adding an already present hash is a no-op.
func (h *VersionHistory) AddFromVersion(hash ref.Ref, v *Version) {
	if _, ok := h.Lookup(hash); ok {
		return
	}
	parents := make([]ref.Ref, len(v.Parents))
	copy(parents, v.Parents)
	squashed := make([]ref.Ref, len(v.Squashed))
	copy(squashed, v.Squashed)
	h.Versions = append(h.Versions, VersionParents{
		Hash:      hash,
		Parents:   parents,
		Unrelated: v.Unrelated,
		Squashed:  squashed,
	})
	h.dirty = true
}

// HasGraphCompleteMark reports whether r was already proven graph complete
func (h *VersionHistory) HasGraphCompleteMark(r ref.Ref) bool {
	return ref.ContainsRef(h.GraphCompleteRefs, r)
}

// MarkGraphComplete memoizes a successful completeness walk from r
func (h *VersionHistory) MarkGraphComplete(r ref.Ref) {
	if h.HasGraphCompleteMark(r) {
		return
	}
	h.GraphCompleteRefs = append(h.GraphCompleteRefs, r)
	h.dirty = true
}

// IsDirty reports whether the cache changed since load and needs persisting
func (h *VersionHistory) IsDirty() bool {
	return h.dirty
}

// ClearDirty resets the dirty flag, called after a successful save
func (h *VersionHistory) ClearDirty() {
	h.dirty = false
}
