package ref

import (
	"strings"

	"github.com/pkg/errors"
)

// ComponentID names a component.  Version is optional and holds either a tag
// name ("1.0.1") or a full snap hash.
type ComponentID struct {
	Scope   string `json:"scope"`
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// ParseComponentID parses "scope/name" or "scope/name@version"
func ParseComponentID(s string) (ComponentID, error) {
	var id ComponentID
	rest := s
	if at := strings.LastIndex(s, "@"); at != -1 {
		id.Version = s[at+1:]
		rest = s[:at]
	}
	slash := strings.Index(rest, "/")
	if slash == -1 || slash == 0 || slash == len(rest)-1 {
		return id, errors.Errorf("'%s' is not a valid component id, expected scope/name", s)
	}
	id.Scope = rest[:slash]
	id.Name = rest[slash+1:]
	return id, nil
}

// FullName returns scope/name without the version
func (id ComponentID) FullName() string {
	return id.Scope + "/" + id.Name
}

func (id ComponentID) String() string {
	if id.Version == "" {
		return id.FullName()
	}
	return id.FullName() + "@" + id.Version
}

// WithoutVersion returns a copy with the version cleared
func (id ComponentID) WithoutVersion() ComponentID {
	return ComponentID{Scope: id.Scope, Name: id.Name}
}

// WithVersion returns a copy carrying the given version
func (id ComponentID) WithVersion(v string) ComponentID {
	return ComponentID{Scope: id.Scope, Name: id.Name, Version: v}
}

// SameWithoutVersion reports whether two ids refer to the same component,
// ignoring any version
func (id ComponentID) SameWithoutVersion(other ComponentID) bool {
	return id.Scope == other.Scope && id.Name == other.Name
}

// HasScope reports whether the id carries a scope.  Components created
// locally and never exported have none.
func (id ComponentID) HasScope() bool {
	return id.Scope != ""
}
