package checkout

import (
	"go.uber.org/zap"

	"github.com/snapline/snapline/merge"
	"github.com/snapline/snapline/model"
)

// mergeWorkspacePolicy folds the dependency policies of the applied
// components into the workspace policy.  Updates are persisted; conflicts
// that survive range compatibility are written back with conflict markers,
// which is reported but never fatal.
func (e *Engine) mergeWorkspacePolicy(statuses []*componentStatus, results *Results) {
	var perComponent []*merge.ComponentPolicyResult
	for _, st := range statuses {
		if st.failure != nil {
			continue
		}
		res, err := e.componentPolicyResult(st)
		if err != nil {
			e.Log.Debug("skipping dependency policy of component",
				zap.String("id", st.id.FullName()), zap.Error(err))
			continue
		}
		if res != nil {
			perComponent = append(perComponent, res)
		}
	}
	if len(perComponent) == 0 {
		return
	}

	policy := e.WS.Policy()
	outcome := merge.MergePolicy(policy, perComponent)
	if len(outcome.Updates) > 0 {
		policy.Apply(outcome)
		if err := e.WS.SaveConfig(); err != nil {
			e.Log.Debug("persisting workspace policy updates failed", zap.Error(err))
		}
	}
	if len(outcome.Conflicts) > 0 {
		results.LeftUnresolvedConflicts = true
		for pkg, tuple := range outcome.Conflicts {
			if _, ok := policy.Dependencies[pkg]; ok {
				policy.Dependencies[pkg] = merge.EncodeConflict(tuple.Ours, tuple.Theirs)
			}
			if _, ok := policy.PeerDependencies[pkg]; ok {
				policy.PeerDependencies[pkg] = merge.EncodeConflict(tuple.Ours, tuple.Theirs)
			}
		}
		if err := e.WS.WriteConflictMarkers(outcome.Conflicts); err != nil {
			e.Log.Info("could not write workspace policy conflict markers", zap.Error(err))
		}
	}
}

// componentPolicyResult extracts what one component contributes to the
// workspace policy.  For merge-needed components a package both versions
// pin differently becomes a conflict tuple; everything else lands as an
// auto detected clean dep unless the user forced it.
func (e *Engine) componentPolicyResult(st *componentStatus) (*merge.ComponentPolicyResult, error) {
	targetVersion, err := e.Repo.Version(st.targetRef)
	if err != nil {
		return nil, err
	}
	targetPolicy, err := model.DepPolicyOf(targetVersion)
	if err != nil {
		return nil, err
	}
	if targetPolicy == nil {
		return nil, nil
	}

	var currentPolicy *model.DepPolicy
	if st.needsMerge && !st.currentRef.IsEmpty() && e.Repo.Objects.Has(st.currentRef) {
		currentVersion, err := e.Repo.Version(st.currentRef)
		if err != nil {
			return nil, err
		}
		currentPolicy, err = model.DepPolicyOf(currentVersion)
		if err != nil {
			return nil, err
		}
	}

	res := &merge.ComponentPolicyResult{
		ID:        st.id,
		Auto:      map[string]string{},
		Conflicts: map[string]merge.ConflictTuple{},
	}
	collect := func(target, current map[string]model.DepEntry) {
		for pkg, entry := range target {
			if entry.Force {
				continue
			}
			if current != nil {
				if cur, ok := current[pkg]; ok && cur.Version != entry.Version {
					res.Conflicts[pkg] = merge.ConflictTuple{Ours: cur.Version, Theirs: entry.Version}
					continue
				}
			}
			res.Auto[pkg] = entry.Version
		}
	}
	if currentPolicy != nil {
		collect(targetPolicy.Dependencies, currentPolicy.Dependencies)
		collect(targetPolicy.PeerDependencies, currentPolicy.PeerDependencies)
	} else {
		collect(targetPolicy.Dependencies, nil)
		collect(targetPolicy.PeerDependencies, nil)
	}
	return res, nil
}
