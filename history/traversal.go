// Package history answers reachability and divergence questions over a
// component's VersionHistory DAG.  Walks follow parent edges only; the
// unrelated and squashed links are membership hints, consulted when asking
// "is this hash known" but never treated as ancestry.
package history

import (
	"sort"

	"github.com/snapline/snapline/model"
	"github.com/snapline/snapline/ref"
)

// WalkResult is the outcome of a parent walk.  Found and Missing are sorted,
// so re-invocation yields the same slices regardless of iteration order.
type WalkResult struct {
	Found   []ref.Ref
	Missing []ref.Ref
}

// AllHashesFrom walks the parent edges from start, depth first.  Hashes with
// no entry in the history cache end the walk on that edge and are reported
// as missing.
func AllHashesFrom(h *model.VersionHistory, start ref.Ref) WalkResult {
	found := map[ref.Ref]bool{}
	missing := map[ref.Ref]bool{}
	stack := []ref.Ref{start}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur.IsEmpty() || found[cur] || missing[cur] {
			continue
		}
		entry, ok := h.Lookup(cur)
		if !ok {
			missing[cur] = true
			continue
		}
		found[cur] = true
		stack = append(stack, entry.Parents...)
	}
	return WalkResult{Found: sortedSet(found), Missing: sortedSet(missing)}
}

func sortedSet(m map[ref.Ref]bool) []ref.Ref {
	out := make([]ref.Ref, 0, len(m))
	for r := range m {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IsRefPartOfHistory reports whether candidate is reachable from start, or
// was absorbed by a reachable version through a squashed or unrelated link
func IsRefPartOfHistory(h *model.VersionHistory, start, candidate ref.Ref) bool {
	walk := AllHashesFrom(h, start)
	if ref.ContainsRef(walk.Found, candidate) {
		return true
	}
	for _, r := range walk.Found {
		entry, ok := h.Lookup(r)
		if !ok {
			continue
		}
		if entry.Unrelated == candidate && !candidate.IsEmpty() {
			return true
		}
		if ref.ContainsRef(entry.Squashed, candidate) {
			return true
		}
	}
	return false
}

// IsGraphCompleteSince reports whether every transitive parent of r is
// present in the cache.  A successful walk is memoized on the history, so
// later calls answer without re-walking; the caller persists the dirty
// cache.
func IsGraphCompleteSince(h *model.VersionHistory, r ref.Ref) bool {
	if h.HasGraphCompleteMark(r) {
		return true
	}
	walk := AllHashesFrom(h, r)
	if len(walk.Missing) > 0 {
		return false
	}
	h.MarkGraphComplete(r)
	return true
}

// DivergeResult describes how two heads of the same component relate
type DivergeResult struct {
	// CommonAncestor is the nearest shared version, empty when none exists
	CommonAncestor ref.Ref
	// LocalOnly are hashes reachable from local but not from remote
	LocalOnly []ref.Ref
	// RemoteOnly are hashes reachable from remote but not from local
	RemoteOnly []ref.Ref
	// Diverged is true when both sides have hashes of their own
	Diverged bool
}

// DivergeData computes the divergence between a local and a remote head.
// When no common ancestor exists but either side absorbed the other through
// an unrelated or squashed link, the histories are considered joined:
// diverged is false and both ahead/behind lists are empty.
func DivergeData(h *model.VersionHistory, local, remote ref.Ref) DivergeResult {
	if local == remote {
		return DivergeResult{CommonAncestor: local}
	}
	localWalk := AllHashesFrom(h, local)
	remoteWalk := AllHashesFrom(h, remote)
	localSet := toSet(localWalk.Found)
	remoteSet := toSet(remoteWalk.Found)

	var common []ref.Ref
	for r := range localSet {
		if remoteSet[r] {
			common = append(common, r)
		}
	}

	if len(common) == 0 {
		if absorbed(h, localWalk.Found, remote) || absorbed(h, remoteWalk.Found, local) {
			return DivergeResult{}
		}
		return DivergeResult{
			LocalOnly:  localWalk.Found,
			RemoteOnly: remoteWalk.Found,
			Diverged:   true,
		}
	}

	ancestor := pickAncestor(h, common, localWalk.Found, remoteWalk.Found)
	var localOnly, remoteOnly []ref.Ref
	for _, r := range localWalk.Found {
		if !remoteSet[r] {
			localOnly = append(localOnly, r)
		}
	}
	for _, r := range remoteWalk.Found {
		if !localSet[r] {
			remoteOnly = append(remoteOnly, r)
		}
	}
	return DivergeResult{
		CommonAncestor: ancestor,
		LocalOnly:      localOnly,
		RemoteOnly:     remoteOnly,
		Diverged:       len(localOnly) > 0 && len(remoteOnly) > 0,
	}
}

// absorbed reports whether target is referenced by any reachable entry's
// unrelated or squashed links
func absorbed(h *model.VersionHistory, found []ref.Ref, target ref.Ref) bool {
	for _, r := range found {
		entry, ok := h.Lookup(r)
		if !ok {
			continue
		}
		if entry.Unrelated == target && !target.IsEmpty() {
			return true
		}
		if ref.ContainsRef(entry.Squashed, target) {
			return true
		}
	}
	return false
}

// pickAncestor selects the nearest common ancestor.  The lowest common
// ancestors are the common hashes not reachable from another common hash.
// When several remain, the one with the greatest number of descendants in
// local union remote wins; a tie goes to the lexicographically greatest
// hash.  Deterministic by construction.
func pickAncestor(h *model.VersionHistory, common, localFound, remoteFound []ref.Ref) ref.Ref {
	// drop common hashes that are ancestors of other common hashes
	var lowest []ref.Ref
	for _, c := range common {
		isAncestorOfCommon := false
		for _, other := range common {
			if other == c {
				continue
			}
			otherWalk := AllHashesFrom(h, other)
			if ref.ContainsRef(otherWalk.Found, c) {
				isAncestorOfCommon = true
				break
			}
		}
		if !isAncestorOfCommon {
			lowest = append(lowest, c)
		}
	}
	if len(lowest) == 1 {
		return lowest[0]
	}

	union := map[ref.Ref]bool{}
	for _, r := range localFound {
		union[r] = true
	}
	for _, r := range remoteFound {
		union[r] = true
	}

	descendants := func(c ref.Ref) int {
		count := 0
		for r := range union {
			if r == c {
				continue
			}
			walk := AllHashesFrom(h, r)
			if ref.ContainsRef(walk.Found, c) {
				count++
			}
		}
		return count
	}

	best := lowest[0]
	bestCount := descendants(best)
	for _, c := range lowest[1:] {
		count := descendants(c)
		if count > bestCount || (count == bestCount && c > best) {
			best = c
			bestCount = count
		}
	}
	return best
}

func toSet(refs []ref.Ref) map[ref.Ref]bool {
	m := make(map[ref.Ref]bool, len(refs))
	for _, r := range refs {
		m[r] = true
	}
	return m
}

// IsMergePending reports whether a local head and a recorded remote head
// have diverged as DivergeData reports it.  Heads with no common ancestor
// and no unrelated or squashed link between them count as diverged too.
func IsMergePending(h *model.VersionHistory, local, remote ref.Ref) bool {
	if local.IsEmpty() || remote.IsEmpty() {
		return false
	}
	return DivergeData(h, local, remote).Diverged
}
