package history

import (
	"github.com/snapline/snapline/model"
	"github.com/snapline/snapline/ref"
)

// ComponentLoader resolves a component's head record and history cache.
// Implemented by store.Repo.
type ComponentLoader interface {
	ModelComponent(scope, name string) (*model.ModelComponent, error)
	VersionHistory(scope, name string) (*model.VersionHistory, error)
}

// UnmergedLaneComponents returns the lane components whose heads have not
// landed on their component's main head.  A component with no model record,
// or whose lane head is not reachable from the main head, counts as
// unmerged.
func UnmergedLaneComponents(l *model.Lane, loader ComponentLoader) ([]ref.ComponentID, error) {
	var unmerged []ref.ComponentID
	for _, c := range l.Components {
		m, err := loader.ModelComponent(c.ID.Scope, c.ID.Name)
		if err != nil {
			return nil, err
		}
		if m == nil || m.HeadIncludeRemote().IsEmpty() {
			unmerged = append(unmerged, c.ID.WithoutVersion())
			continue
		}
		h, err := loader.VersionHistory(c.ID.Scope, c.ID.Name)
		if err != nil {
			return nil, err
		}
		if !IsRefPartOfHistory(h, m.HeadIncludeRemote(), c.Head) {
			unmerged = append(unmerged, c.ID.WithoutVersion())
		}
	}
	return unmerged, nil
}

// IsLaneFullyMerged reports whether every component on the lane has landed
// on main
func IsLaneFullyMerged(l *model.Lane, loader ComponentLoader) (bool, error) {
	unmerged, err := UnmergedLaneComponents(l, loader)
	if err != nil {
		return false, err
	}
	return len(unmerged) == 0, nil
}
