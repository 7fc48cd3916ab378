package model

import (
	"sort"

	semver "github.com/Masterminds/semver/v3"
	"github.com/pkg/errors"

	"github.com/snapline/snapline/ref"
)

// ModelComponent is the per component index: the current main head and the
// tag to hash map.  It is the entry point to a component's history.
type ModelComponent struct {
	Scope string `json:"scope"`
	Name  string `json:"name"`

	// Head is the current local main head.  Empty when the component is only
	// known from a remote.
	Head ref.Ref `json:"head,omitempty"`

	// RemoteHead is the latest known head on the remote scope
	RemoteHead ref.Ref `json:"remoteHead,omitempty"`

	// Tags maps semver tag names to version hashes.  A tag, once written,
	// is never reassigned.
	Tags map[string]ref.Ref `json:"tags,omitempty"`
}

func (m *ModelComponent) Kind() Kind { return KindModelComponent }

// ID returns the component id without a version
func (m *ModelComponent) ID() ref.ComponentID {
	return ref.ComponentID{Scope: m.Scope, Name: m.Name}
}

// HeadIncludeRemote prefers the local head, falling back to the latest known
// remote head
func (m *ModelComponent) HeadIncludeRemote() ref.Ref {
	if !m.Head.IsEmpty() {
		return m.Head
	}
	return m.RemoteHead
}

// LatestVersionIfExist returns the greatest semver tag, or empty when the
// component has no tags
func (m *ModelComponent) LatestVersionIfExist() string {
	var latest *semver.Version
	var latestTag string
	for tag := range m.Tags {
		v, err := semver.NewVersion(tag)
		if err != nil {
			continue
		}
		if latest == nil || v.GreaterThan(latest) {
			latest = v
			latestTag = tag
		}
	}
	return latestTag
}

// SortedTags returns the tag names in ascending semver order.  Tags that do
// not parse as semver sort last, lexicographically.
func (m *ModelComponent) SortedTags() []string {
	tags := make([]string, 0, len(m.Tags))
	for t := range m.Tags {
		tags = append(tags, t)
	}
	sort.Slice(tags, func(i, j int) bool {
		vi, ei := semver.NewVersion(tags[i])
		vj, ej := semver.NewVersion(tags[j])
		if ei != nil && ej != nil {
			return tags[i] < tags[j]
		}
		if ei != nil {
			return false
		}
		if ej != nil {
			return true
		}
		return vi.LessThan(vj)
	})
	return tags
}

// ResolveVersion maps a version string, either a tag name or a full hash, to
// the version hash it names.  The second return is false when the string is
// neither a tag of this component nor a well formed hash; a hash is returned
// as is, without checking that it belongs to the component.
func (m *ModelComponent) ResolveVersion(version string) (ref.Ref, bool) {
	if h, ok := m.Tags[version]; ok {
		return h, true
	}
	r := ref.Ref(version)
	if r.IsValid() {
		return r, true
	}
	return "", false
}

// TagOf returns the tag naming the given hash, if any
func (m *ModelComponent) TagOf(r ref.Ref) (string, bool) {
	for tag, h := range m.Tags {
		if h == r {
			return tag, true
		}
	}
	return "", false
}

// AddTag records a new tag.  Reassigning an existing tag to a different hash
// is refused, tags are immutable once written.
func (m *ModelComponent) AddTag(tag string, r ref.Ref) error {
	if _, err := semver.NewVersion(tag); err != nil {
		return errors.Errorf("tag '%s' is not a valid semver version", tag)
	}
	if existing, ok := m.Tags[tag]; ok && existing != r {
		return errors.Errorf("tag '%s' already exists on %s", tag, m.ID())
	}
	if m.Tags == nil {
		m.Tags = map[string]ref.Ref{}
	}
	m.Tags[tag] = r
	return nil
}
