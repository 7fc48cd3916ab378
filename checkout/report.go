package checkout

import (
	"fmt"

	"github.com/snapline/snapline/ref"
)

// Failure reasons, worded for humans.  Legitimate failures leave the
// component as it was on purpose; hard failures mean the user has something
// to fix.
const (
	reasonNewComponent = "new component, no version to checkout"
	reasonDuringMerge  = "in during-merge state, please resolve the conflicts first"
	reasonMergePending = "merge-pending, run 'snapline status' and resolve first"
	reasonRemoved      = "component has been removed"
	reasonNotModified  = "not modified"
)

func reasonNoVersion(version string) string {
	return fmt.Sprintf("doesn't have version %s", version)
}

func reasonAlreadyAt(version string) string {
	return fmt.Sprintf("already at version %s", version)
}

const reasonAlreadyAtLatest = "already at latest"

// ComponentFailure is one component's non applied outcome
type ComponentFailure struct {
	ID     ref.ComponentID
	Reason string
	// UnchangedLegitimately marks failures that are expected no-ops, such
	// as already being at the requested version
	UnchangedLegitimately bool
}

// Results summarizes a checkout run
type Results struct {
	Applied []ref.ComponentID
	Removed []ref.ComponentID
	Failed  []ComponentFailure

	// LeftUnresolvedConflicts is true when conflict markers were written
	// for the user to resolve
	LeftUnresolvedConflicts bool

	// NewFromLane lists lane components that were not in the request
	NewFromLane []ref.ComponentID
	// NewFromLaneAdded is true when those components were hydrated into the
	// workspace.  Stays false under WorkspaceOnly.
	NewFromLaneAdded bool

	InstallationError error
	CompilationError  error
}

// HardFailures returns the failures that are not legitimate no-ops; a non
// empty result maps to exit code 1
func (r *Results) HardFailures() []ComponentFailure {
	var out []ComponentFailure
	for _, f := range r.Failed {
		if !f.UnchangedLegitimately {
			out = append(out, f)
		}
	}
	return out
}
