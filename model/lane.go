package model

import (
	"crypto/sha1"
	"encoding/hex"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/snapline/snapline/ref"
)

const (
	// DefaultLaneName is the reserved name of the main development line
	DefaultLaneName = "main"
	// PreviousDefaultLaneName is the older reserved default name
	PreviousDefaultLaneName = "master"
)

// LaneComponent binds a component to its head on a lane.  The head must be a
// snap hash, never a tag.
type LaneComponent struct {
	ID   ref.ComponentID `json:"id"`
	Head ref.Ref         `json:"head"`
}

// LaneLog records who created the lane and when
type LaneLog struct {
	Date         string `json:"date"`
	Username     string `json:"username,omitempty"`
	Email        string `json:"email,omitempty"`
	ProfileImage string `json:"profileImage,omitempty"`
}

// Lane is a named set of component head bindings forming an isolated working
// context.  Unlike the other records it is mutable: its hash is a random,
// stable identity assigned at creation, not a content address.
type Lane struct {
	Scope           string           `json:"scope"`
	Name            string           `json:"name"`
	Hash            ref.Ref          `json:"hash"`
	Log             LaneLog          `json:"log"`
	Components      []LaneComponent  `json:"components"`
	ReadmeComponent *ref.ComponentID `json:"readmeComponent,omitempty"`
	ForkedFrom      string           `json:"forkedFrom,omitempty"`

	// in memory only, a lane is persisted on explicit save
	IsNew      bool `json:"-"`
	HasChanged bool `json:"-"`
}

func (l *Lane) Kind() Kind { return KindLane }

// UserInfo identifies the lane creator
type UserInfo struct {
	Username     string
	Email        string
	ProfileImage string
}

// CreateLane makes a new lane with a fresh random identity hash
func CreateLane(name, scope, forkedFrom string, user UserInfo) (*Lane, error) {
	if err := validateLaneName(name); err != nil {
		return nil, err
	}
	s := sha1.Sum([]byte(uuid.NewString()))
	return &Lane{
		Scope: scope,
		Name:  name,
		Hash:  ref.Ref(hex.EncodeToString(s[:])),
		Log: LaneLog{
			Date:     time.Now().UTC().Format(time.RFC3339),
			Username: user.Username,
			Email:    user.Email,
		},
		ForkedFrom: forkedFrom,
		IsNew:      true,
		HasChanged: true,
	}, nil
}

func validateLaneName(name string) error {
	if name == "" {
		return errors.New("lane name is required")
	}
	if name == DefaultLaneName || name == PreviousDefaultLaneName {
		return errors.Errorf("'%s' is a reserved name, please choose a different lane name", name)
	}
	return nil
}

// LaneID returns scope/name, the lane's human identity
func (l *Lane) LaneID() string {
	if l.Scope == "" {
		return l.Name
	}
	return l.Scope + "/" + l.Name
}

// AddComponent adds a binding, replacing any existing entry for the same
// component regardless of version.  HasChanged is set when the head moved.
func (l *Lane) AddComponent(c LaneComponent) {
	for i := range l.Components {
		if l.Components[i].ID.SameWithoutVersion(c.ID) {
			if l.Components[i].Head != c.Head {
				l.Components[i] = c
				l.HasChanged = true
			}
			return
		}
	}
	l.Components = append(l.Components, c)
	l.HasChanged = true
}

// RemoveComponent removes the binding for the given component, reporting
// whether anything was removed
func (l *Lane) RemoveComponent(id ref.ComponentID) bool {
	for i := range l.Components {
		if l.Components[i].ID.SameWithoutVersion(id) {
			l.Components = append(l.Components[:i], l.Components[i+1:]...)
			l.HasChanged = true
			return true
		}
	}
	return false
}

// SetReadmeComponent marks a component as the lane readme, or clears it
func (l *Lane) SetReadmeComponent(id *ref.ComponentID) {
	l.ReadmeComponent = id
	l.HasChanged = true
}

// HeadFor returns the recorded head for a component on this lane
func (l *Lane) HeadFor(id ref.ComponentID) (ref.Ref, bool) {
	for i := range l.Components {
		if l.Components[i].ID.SameWithoutVersion(id) {
			return l.Components[i].Head, true
		}
	}
	return "", false
}

// Validate enforces the lane invariants: no duplicate component ids, every
// head a snap hash, and a non reserved name.
func (l *Lane) Validate() error {
	if err := validateLaneName(l.Name); err != nil {
		return err
	}
	seen := map[string]bool{}
	for _, c := range l.Components {
		key := c.ID.FullName()
		if seen[key] {
			return errors.Errorf("lane %s lists component %s more than once", l.LaneID(), key)
		}
		seen[key] = true
		if !c.Head.IsValid() {
			return errors.Errorf("lane %s head for %s must be a snap hash, got '%s'",
				l.LaneID(), key, c.Head)
		}
	}
	return nil
}

// IsEqual reports whether two lanes share the same identity and the same set
// of component bindings, order independent
func (l *Lane) IsEqual(other *Lane) bool {
	if other == nil || l.Hash != other.Hash {
		return false
	}
	if len(l.Components) != len(other.Components) {
		return false
	}
	a := sortedBindings(l.Components)
	b := sortedBindings(other.Components)
	for i := range a {
		if a[i].ID.FullName() != b[i].ID.FullName() || a[i].Head != b[i].Head {
			return false
		}
	}
	return true
}

func sortedBindings(cs []LaneComponent) []LaneComponent {
	out := make([]LaneComponent, len(cs))
	copy(out, cs)
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID.FullName() < out[j].ID.FullName()
	})
	return out
}

// ComponentIDs returns the ids bound to this lane, without versions
func (l *Lane) ComponentIDs() []ref.ComponentID {
	ids := make([]ref.ComponentID, 0, len(l.Components))
	for _, c := range l.Components {
		ids = append(ids, c.ID.WithoutVersion())
	}
	return ids
}
