// Package merge implements the three way merger: file level merging of a
// component against its model version, and the field wise merge of the
// workspace dependency policy.
package merge

import (
	"bytes"
	"io"

	"github.com/epiclabs-io/diff3"
	"github.com/pkg/errors"

	"github.com/snapline/snapline/ref"
)

// Strategy picks a side when a three way merge cannot resolve cleanly
type Strategy string

const (
	// StrategyManual writes conflict markers for the user to resolve
	StrategyManual Strategy = "manual"
	// StrategyOurs keeps the workspace side
	StrategyOurs Strategy = "ours"
	// StrategyTheirs adopts the incoming side
	StrategyTheirs Strategy = "theirs"
	// StrategyNone means no strategy was chosen up front
	StrategyNone Strategy = ""
)

// ParseStrategy validates a strategy flag value
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyManual, StrategyOurs, StrategyTheirs, StrategyNone:
		return Strategy(s), nil
	}
	return StrategyNone, errors.Errorf("'%s' is not a merge strategy, use manual, ours or theirs", s)
}

// FileTriple is one file's three inputs.  A missing side is expressed by its
// Exists flag, the content slice is then ignored.
type FileTriple struct {
	Path string

	Base       []byte
	BaseExists bool

	Current       []byte
	CurrentExists bool

	Other       []byte
	OtherExists bool
}

// FileStatus is one file's merge outcome
type FileStatus struct {
	Path     string
	Contents []byte
	// Removed means the file should not exist in the result
	Removed bool
	// Conflict means Contents carries diff3 style conflict markers
	Conflict bool
}

// ComponentMergeResult collects a component's per file outcomes
type ComponentMergeResult struct {
	ID           ref.ComponentID
	Files        []FileStatus
	HasConflicts bool
}

// MergeFiles merges each triple and reports whether any conflicts remain.
// With strategy ours or theirs a would-be conflict is resolved by picking
// the respective side instead of writing markers.
func MergeFiles(id ref.ComponentID, triples []FileTriple, strategy Strategy) (*ComponentMergeResult, error) {
	result := &ComponentMergeResult{ID: id}
	for _, t := range triples {
		status, err := mergeOne(t, strategy)
		if err != nil {
			return nil, errors.Wrapf(err, "merging %s in %s", t.Path, id.FullName())
		}
		result.Files = append(result.Files, status)
		if status.Conflict {
			result.HasConflicts = true
		}
	}
	return result, nil
}

func mergeOne(t FileTriple, strategy Strategy) (FileStatus, error) {
	currentChanged := sideChanged(t.CurrentExists, t.Current, t.BaseExists, t.Base)
	otherChanged := sideChanged(t.OtherExists, t.Other, t.BaseExists, t.Base)

	switch {
	case !currentChanged:
		// workspace untouched, adopt the model side
		return adopt(t.Path, t.Other, t.OtherExists), nil
	case !otherChanged:
		// only the workspace changed, keep it
		return adopt(t.Path, t.Current, t.CurrentExists), nil
	case t.CurrentExists == t.OtherExists && (!t.CurrentExists || bytes.Equal(t.Current, t.Other)):
		// both changed the same way
		return adopt(t.Path, t.Current, t.CurrentExists), nil
	}

	// both sides changed, differently
	switch strategy {
	case StrategyOurs:
		return adopt(t.Path, t.Current, t.CurrentExists), nil
	case StrategyTheirs:
		return adopt(t.Path, t.Other, t.OtherExists), nil
	}

	// a deletion on one side against an edit on the other cannot be line
	// merged, the edited side survives with a conflict flag
	if !t.CurrentExists {
		return FileStatus{Path: t.Path, Contents: t.Other, Conflict: true}, nil
	}
	if !t.OtherExists {
		return FileStatus{Path: t.Path, Contents: t.Current, Conflict: true}, nil
	}

	merged, conflict, err := MergeText(t.Current, t.Base, t.Other, "workspace", "incoming")
	if err != nil {
		return FileStatus{}, err
	}
	return FileStatus{Path: t.Path, Contents: merged, Conflict: conflict}, nil
}

func sideChanged(exists bool, content []byte, baseExists bool, base []byte) bool {
	if exists != baseExists {
		return true
	}
	if !exists {
		return false
	}
	return !bytes.Equal(content, base)
}

func adopt(path string, contents []byte, exists bool) FileStatus {
	if !exists {
		return FileStatus{Path: path, Removed: true}
	}
	return FileStatus{Path: path, Contents: contents}
}

// MergeText runs a three way line merge with the same contract as UNIX
// merge(1): a clean merge, or marked text plus a conflict flag.
func MergeText(current, base, other []byte, currentLabel, otherLabel string) ([]byte, bool, error) {
	res, err := diff3.Merge(
		bytes.NewReader(current),
		bytes.NewReader(base),
		bytes.NewReader(other),
		true, currentLabel, otherLabel)
	if err != nil {
		return nil, false, errors.Wrap(err, "three way line merge")
	}
	out, err := io.ReadAll(res.Result)
	if err != nil {
		return nil, false, errors.Wrap(err, "reading merge output")
	}
	return out, res.Conflicts, nil
}
