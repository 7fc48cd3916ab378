package model

import (
	"encoding/json"
	"time"

	"github.com/snapline/snapline/ref"
)

// LogInfo carries the who and when of a version
type LogInfo struct {
	Message  string    `json:"message,omitempty"`
	Username string    `json:"username,omitempty"`
	Email    string    `json:"email,omitempty"`
	Date     time.Time `json:"date"`
}

// Version is one point in a component's history.  Zero parents for the
// initial version, one for a linear step, two or more for merges.
type Version struct {
	Parents []ref.Ref `json:"parents"`

	// Unrelated links a formerly separate history that was grafted in.  It
	// carries no ancestry semantics but participates in membership queries.
	Unrelated ref.Ref `json:"unrelated,omitempty"`

	// Squashed lists the prior parents a collapsed range replaced, so that
	// "did this older hash already land" can still be answered.
	Squashed []ref.Ref `json:"squashed,omitempty"`

	// Files points at the FileTree record for this version
	Files ref.Ref `json:"files"`

	// Config is the opaque per extension payload.  Typed accessors are
	// resolved by the extensions themselves, outside this package.
	Config map[string]json.RawMessage `json:"config,omitempty"`

	// Removed marks the component deleted as of this version.  A workspace
	// holding the component must delete it on checkout.
	Removed bool `json:"removed,omitempty"`

	Log LogInfo `json:"log"`
}

func (v *Version) Kind() Kind { return KindVersion }

// Mentions reports whether r is absorbed by this version through its
// unrelated or squashed links.  Used for membership queries only, never for
// ancestry walks.
func (v *Version) Mentions(r ref.Ref) bool {
	if v.Unrelated == r && !r.IsEmpty() {
		return true
	}
	return ref.ContainsRef(v.Squashed, r)
}

// DepPolicy is the slice of a version's config the workspace dependency
// merger understands.  Fields beyond these stay opaque.
type DepPolicy struct {
	Dependencies     map[string]DepEntry `json:"dependencies,omitempty"`
	PeerDependencies map[string]DepEntry `json:"peerDependencies,omitempty"`
}

// DepEntry is one dependency inside a version's config payload.  Force marks
// a policy the user pinned by hand, as opposed to an auto detected one.
type DepEntry struct {
	Version string `json:"version"`
	Force   bool   `json:"force,omitempty"`
}

// DepsExtensionID is the config extension key holding the dependency policy
const DepsExtensionID = "snapline.deps"

// DepPolicyOf extracts the dependency policy from a version's config, or nil
// when the extension is absent
func DepPolicyOf(v *Version) (*DepPolicy, error) {
	raw, ok := v.Config[DepsExtensionID]
	if !ok {
		return nil, nil
	}
	var p DepPolicy
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
