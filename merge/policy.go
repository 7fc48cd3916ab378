package merge

import (
	"regexp"
	"sort"
	"strings"

	semver "github.com/Masterminds/semver/v3"

	"github.com/snapline/snapline/ref"
)

// ConflictPrefix encodes an unresolved policy conflict inside a generated
// workspace config: CONFLICT::<ours>::<theirs>
const ConflictPrefix = "CONFLICT::"

// EncodeConflict renders the workspace config conflict encoding
func EncodeConflict(ours, theirs string) string {
	return ConflictPrefix + ours + "::" + theirs
}

// ConflictTuple is one package's disagreement between the workspace (ours)
// and an incoming version (theirs)
type ConflictTuple struct {
	Ours   string
	Theirs string
}

// ComponentPolicyResult is what one component's merge contributed to the
// workspace dependency policy: cleanly merged auto detected deps, and deps
// whose merge failed.
type ComponentPolicyResult struct {
	ID ref.ComponentID
	// Auto maps package name to version for auto detected (not forced)
	// deps whose merge was clean
	Auto map[string]string
	// Conflicts maps package name to the pair that failed to merge
	Conflicts map[string]ConflictTuple
}

// PolicyUpdate is a scheduled workspace policy change
type PolicyUpdate struct {
	From string
	To   string
}

// PolicyOutcome is the result of merging the per component results into the
// workspace dependency policy
type PolicyOutcome struct {
	// Updates maps package name to the scheduled version change
	Updates map[string]PolicyUpdate
	// Conflicts are the disagreements promoted to workspace level that
	// range compatibility could not clear
	Conflicts map[string]ConflictTuple
}

// WorkspacePolicy is the workspace's dependency policy, package name to
// version or range, for the recognized fields.
type WorkspacePolicy struct {
	Dependencies     map[string]string `json:"dependencies,omitempty"`
	PeerDependencies map[string]string `json:"peerDependencies,omitempty"`
}

// lookup finds a package in either recognized field
func (p *WorkspacePolicy) lookup(pkg string) (string, bool) {
	if v, ok := p.Dependencies[pkg]; ok {
		return v, true
	}
	v, ok := p.PeerDependencies[pkg]
	return v, ok
}

// Apply rewrites the policy fields with the scheduled updates
func (p *WorkspacePolicy) Apply(outcome *PolicyOutcome) {
	for pkg, upd := range outcome.Updates {
		if _, ok := p.Dependencies[pkg]; ok {
			p.Dependencies[pkg] = upd.To
		}
		if _, ok := p.PeerDependencies[pkg]; ok {
			p.PeerDependencies[pkg] = upd.To
		}
	}
}

// MergePolicy folds the per component merge results into the workspace
// dependency policy.  Two passes: aggregate the clean auto detected deps and
// the conflicting ones, then walk the workspace policy deciding updates and
// promoting single conflicts to workspace level.  A promoted conflict is
// cleared from its per component result either way.
func MergePolicy(ws *WorkspacePolicy, results []*ComponentPolicyResult) *PolicyOutcome {
	outcome := &PolicyOutcome{
		Updates:   map[string]PolicyUpdate{},
		Conflicts: map[string]ConflictTuple{},
	}

	// pass one: non conflicting aggregation
	auto := map[string]map[string]bool{}
	for _, res := range results {
		for pkg, version := range res.Auto {
			if auto[pkg] == nil {
				auto[pkg] = map[string]bool{}
			}
			auto[pkg][version] = true
		}
	}

	// pass two: conflicting aggregation
	conflicts := map[string]map[ConflictTuple]bool{}
	for _, res := range results {
		for pkg, tuple := range res.Conflicts {
			if conflicts[pkg] == nil {
				conflicts[pkg] = map[ConflictTuple]bool{}
			}
			conflicts[pkg][tuple] = true
		}
	}

	for _, pkg := range policyPackages(ws) {
		current, _ := ws.lookup(pkg)

		if versions := auto[pkg]; len(versions) == 1 {
			v := soleKey(versions)
			if v != current {
				// a single clean auto detected version that differs from the
				// workspace schedules an update; a value that is not semver
				// (a snap hash) is skipped
				action, to := classify(current, v)
				switch action {
				case actionUpdate:
					outcome.Updates[pkg] = PolicyUpdate{From: current, To: to}
				case actionNone, actionConflict:
					outcome.Updates[pkg] = PolicyUpdate{From: current, To: v}
				}
			}
		}

		if tuples := conflicts[pkg]; len(tuples) == 1 {
			tuple := soleTuple(tuples)
			action, to := classify(current, tuple.Theirs)
			switch action {
			case actionUpdate:
				// theirs fits the workspace range, the conflict dissolves
				outcome.Updates[pkg] = PolicyUpdate{From: current, To: to}
			case actionConflict:
				outcome.Conflicts[pkg] = ConflictTuple{Ours: current, Theirs: tuple.Theirs}
			}
			// promoted to workspace level either way, clear it from the
			// per component results
			for _, res := range results {
				delete(res.Conflicts, pkg)
			}
		}
	}
	return outcome
}

func policyPackages(ws *WorkspacePolicy) []string {
	seen := map[string]bool{}
	var pkgs []string
	for pkg := range ws.Dependencies {
		if !seen[pkg] {
			seen[pkg] = true
			pkgs = append(pkgs, pkg)
		}
	}
	for pkg := range ws.PeerDependencies {
		if !seen[pkg] {
			seen[pkg] = true
			pkgs = append(pkgs, pkg)
		}
	}
	sort.Strings(pkgs)
	return pkgs
}

func soleKey(m map[string]bool) string {
	for k := range m {
		return k
	}
	return ""
}

func soleTuple(m map[ConflictTuple]bool) ConflictTuple {
	for k := range m {
		return k
	}
	return ConflictTuple{}
}

type policyAction int

const (
	actionNone policyAction = iota
	actionUpdate
	actionConflict
	actionSkip
)

var versionInRange = regexp.MustCompile(`\d+\.\d+\.\d+(?:-[0-9A-Za-z.-]+)?`)

// rangeMin extracts the smallest literal version mentioned in a range
func rangeMin(r string) *semver.Version {
	var min *semver.Version
	for _, m := range versionInRange.FindAllString(r, -1) {
		v, err := semver.NewVersion(m)
		if err != nil {
			continue
		}
		if min == nil || v.LessThan(min) {
			min = v
		}
	}
	return min
}

// rangePrefix returns the leading ^ or ~ of a range, if any
func rangePrefix(r string) string {
	if strings.HasPrefix(r, "^") || strings.HasPrefix(r, "~") {
		return r[:1]
	}
	return ""
}

// classify decides what a theirs version or range means for the workspace's
// ours.  Exact versions and ranges are told apart by semver validity; a
// string that is neither, such as a snap hash, skips the package entirely.
func classify(ours, theirs string) (policyAction, string) {
	oursVer, oursVerErr := semver.NewVersion(ours)
	theirsVer, theirsVerErr := semver.NewVersion(theirs)
	oursIsVersion := oursVerErr == nil
	theirsIsVersion := theirsVerErr == nil

	oursRange, oursRangeErr := semver.NewConstraint(ours)
	theirsRange, theirsRangeErr := semver.NewConstraint(theirs)
	oursIsRange := !oursIsVersion && oursRangeErr == nil
	theirsIsRange := !theirsIsVersion && theirsRangeErr == nil

	switch {
	case oursIsVersion && theirsIsVersion:
		if theirsVer.GreaterThan(oursVer) {
			return actionConflict, ""
		}
		return actionNone, ""

	case oursIsRange && theirsIsRange:
		oursMin := rangeMin(ours)
		theirsMin := rangeMin(theirs)
		if oursMin != nil && theirsMin != nil && theirsMin.GreaterThan(oursMin) {
			return actionUpdate, theirs
		}
		return actionNone, ""

	case oursIsRange && theirsIsVersion:
		if oursRange.Check(theirsVer) {
			// preserve the workspace's range prefix around the new version
			return actionUpdate, rangePrefix(ours) + theirs
		}
		if min := rangeMin(ours); min != nil && min.GreaterThan(theirsVer) {
			return actionConflict, ""
		}
		return actionNone, ""

	case oursIsVersion && theirsIsRange:
		if theirsRange.Check(oursVer) {
			if min := rangeMin(theirs); min != nil {
				return actionUpdate, min.String()
			}
			return actionNone, ""
		}
		if min := rangeMin(theirs); min != nil && min.GreaterThan(oursVer) {
			return actionNone, ""
		}
		return actionNone, ""
	}

	// either side is not valid semver at all, likely a snap hash
	return actionSkip, ""
}
