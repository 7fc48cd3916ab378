// Package checkout implements the checkout engine: it reconciles the
// working copy with a chosen target version, per component, deciding
// between applying verbatim, three way merging, removing, or failing.
package checkout

import (
	"github.com/pkg/errors"

	"github.com/snapline/snapline/merge"
	"github.com/snapline/snapline/ref"
)

// Target selects what a checkout moves components to
type Target string

const (
	// TargetHead moves to each component's current head
	TargetHead Target = "head"
	// TargetLatest moves to each component's greatest semver tag
	TargetLatest Target = "latest"
	// TargetReset restores files from the model at the bitmap's version
	TargetReset Target = "reset"
	// TargetVersion moves to one literal version
	TargetVersion Target = "version"
)

// Props are the checkout inputs
type Props struct {
	Target Target
	// Version is the literal version for TargetVersion
	Version string

	// IDs limits the checkout to specific components; mutually exclusive
	// with All
	IDs []ref.ComponentID
	// All means every component tracked in the bitmap
	All bool

	// VersionPerID overrides the target per component id; authoritative
	// for the ids it matches, Target applies to the rest
	VersionPerID map[string]string

	MergeStrategy      merge.Strategy
	PromptMergeOptions bool

	// WorkspaceOnly limits a head checkout to components already in the
	// workspace; lane components are recorded but not hydrated
	WorkspaceOnly bool

	SkipFilesWrite bool
	SkipDepInstall bool
	Verbose        bool
}

// ErrValidation marks an impossible argument combination; the CLI maps it to
// exit code 2
var ErrValidation = errors.New("invalid arguments")

// Validate enforces the argument contract before any work happens
func (p *Props) Validate() error {
	switch p.Target {
	case TargetHead, TargetLatest, TargetReset:
		if p.Version != "" {
			return errors.Wrapf(ErrValidation, "a version cannot be combined with '%s'", p.Target)
		}
	case TargetVersion:
		if p.Version == "" {
			return errors.Wrap(ErrValidation, "a version is required")
		}
	default:
		return errors.Wrapf(ErrValidation, "unknown checkout target '%s'", p.Target)
	}
	if len(p.IDs) > 0 && p.All {
		return errors.Wrap(ErrValidation, "component ids and --all cannot be combined")
	}
	if p.WorkspaceOnly && p.Target != TargetHead {
		return errors.Wrap(ErrValidation, "--workspace-only is only allowed with 'head'")
	}
	return nil
}
