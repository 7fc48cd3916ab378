package checkout

import (
	"github.com/snapline/snapline/history"
	"github.com/snapline/snapline/merge"
	"github.com/snapline/snapline/model"
	"github.com/snapline/snapline/ref"
)

// componentStatus is the per component classification the engine builds
// before attempting any merge
type componentStatus struct {
	id ref.ComponentID

	// currentLabel and currentRef describe what the bitmap tracks now
	currentLabel string
	currentRef   ref.Ref

	// targetLabel is what the bitmap will record, targetRef the version to
	// load from the model
	targetLabel string
	targetRef   ref.Ref

	failure         *ComponentFailure
	shouldBeRemoved bool
	needsMerge      bool

	merged *merge.ComponentMergeResult
}

func (s *componentStatus) fail(reason string, legitimate bool) *componentStatus {
	s.failure = &ComponentFailure{ID: s.id, Reason: reason, UnchangedLegitimately: legitimate}
	return s
}

// resolveTarget decides which version a component should move to, producing
// an early failure when no target exists.  The removed and modified checks
// need the target's Version record and run later, after the bulk import.
func (e *Engine) resolveTarget(id ref.ComponentID, props *Props, lane *model.Lane) *componentStatus {
	st := &componentStatus{id: id.WithoutVersion()}

	entry, tracked := e.WS.Bitmap.Entry(id)
	if tracked {
		st.currentLabel = entry.Version
		if entry.DuringMerge {
			return st.fail(reasonDuringMerge, false)
		}
	}

	m, err := e.Repo.ModelComponent(id.Scope, id.Name)
	if err != nil {
		return st.fail(err.Error(), false)
	}
	if m == nil {
		// never snapped and unknown remotely
		return st.fail(reasonNewComponent, true)
	}
	if tracked && st.currentLabel != "" {
		if r, ok := m.ResolveVersion(st.currentLabel); ok {
			st.currentRef = r
		}
	}

	version := ""
	target := props.Target
	if props.VersionPerID != nil {
		if v, ok := props.VersionPerID[id.FullName()]; ok {
			version = v
			target = TargetVersion
		}
	}
	if target == TargetVersion && version == "" {
		version = props.Version
	}

	switch target {
	case TargetHead:
		head := m.HeadIncludeRemote()
		if lane != nil {
			if laneHead, ok := lane.HeadFor(id); ok {
				head = laneHead
			}
		}
		if head.IsEmpty() {
			return st.fail(reasonNewComponent, true)
		}
		st.targetRef = head
		st.targetLabel = head.String()

	case TargetLatest:
		latest := m.LatestVersionIfExist()
		if latest == "" {
			return st.fail(reasonNewComponent, true)
		}
		r, _ := m.ResolveVersion(latest)
		st.targetRef = r
		st.targetLabel = latest

	case TargetReset:
		if !tracked || st.currentLabel == "" {
			return st.fail(reasonNewComponent, true)
		}
		if st.currentRef.IsEmpty() {
			return st.fail(reasonNoVersion(st.currentLabel), false)
		}
		st.targetRef = st.currentRef
		st.targetLabel = st.currentLabel
		return st

	case TargetVersion:
		r, ok := m.ResolveVersion(version)
		if !ok {
			return st.fail(reasonNoVersion(version), false)
		}
		st.targetRef = r
		st.targetLabel = version
	}

	// already there?
	if tracked && !st.currentRef.IsEmpty() && st.currentRef == st.targetRef {
		if target == TargetLatest {
			return st.fail(reasonAlreadyAtLatest, true)
		}
		return st.fail(reasonAlreadyAt(st.targetLabel), true)
	}

	// a head that diverged from its remote needs resolving before moving
	hist, err := e.Repo.VersionHistory(id.Scope, id.Name)
	if err != nil {
		return st.fail(err.Error(), false)
	}
	if history.IsMergePending(hist, m.Head, m.RemoteHead) {
		return st.fail(reasonMergePending, false)
	}

	return st
}

// finishStatus completes classification once the target's Version record is
// available locally: the removed flag, and whether a three way merge is
// needed.
func (e *Engine) finishStatus(st *componentStatus, props *Props) {
	if st.failure != nil {
		return
	}
	if !e.Repo.Objects.Has(st.targetRef) {
		st.fail(reasonNoVersion(st.targetLabel), false)
		return
	}
	v, err := e.Repo.Version(st.targetRef)
	if err != nil {
		st.fail(err.Error(), false)
		return
	}
	if v.Removed {
		st.shouldBeRemoved = true
		st.fail(reasonRemoved, true)
		return
	}

	modified, err := e.isModified(st.id, st.currentRef)
	if err != nil {
		st.fail(err.Error(), false)
		return
	}

	if props.Target == TargetReset {
		if !modified {
			st.fail(reasonNotModified, true)
		}
		return
	}
	if modified {
		st.needsMerge = true
	}
}

// isModified compares the component's on-disk files against the file tree
// of its currently tracked version.  An untracked current version cannot be
// compared and counts as unmodified.
func (e *Engine) isModified(id ref.ComponentID, currentRef ref.Ref) (bool, error) {
	if currentRef.IsEmpty() || !e.Repo.Objects.Has(currentRef) {
		return false, nil
	}
	v, err := e.Repo.Version(currentRef)
	if err != nil {
		return false, err
	}
	tree, err := e.Repo.FileTree(v.Files)
	if err != nil {
		return false, err
	}
	onDisk, err := e.WS.ComponentFilePaths(id)
	if err != nil {
		return false, err
	}
	diskSet := map[string]bool{}
	for _, p := range onDisk {
		diskSet[p] = true
	}
	for _, f := range tree.Files {
		data, ok, err := e.WS.ReadComponentFile(id, f.RelativePath)
		if err != nil {
			return false, err
		}
		if !ok {
			return true, nil
		}
		blobHash, err := model.HashOf(&model.Source{Contents: data})
		if err != nil {
			return false, err
		}
		if blobHash != f.Blob {
			return true, nil
		}
		delete(diskSet, f.RelativePath)
	}
	// anything left on disk is a file the tracked version does not know
	return len(diskSet) > 0, nil
}
