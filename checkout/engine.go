package checkout

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/snapline/snapline/merge"
	"github.com/snapline/snapline/model"
	"github.com/snapline/snapline/ref"
	"github.com/snapline/snapline/store"
	"github.com/snapline/snapline/workspace"
)

// Importer is the import capability the engine consumes
type Importer interface {
	ImportManyIfMissing(ids []ref.ComponentID, opts store.ImportOptions) error
	ImportRefs(refs []ref.Ref, opts store.ImportOptions) error
	InvalidateCache()
}

// Writer is the "write many components" capability
type Writer interface {
	WriteMany(req workspace.WriteRequest) (workspace.WriteResults, error)
	RemoveLocally(ids []ref.ComponentID, force bool) error
}

// Prompter asks the user for a merge strategy when conflicts appear and no
// strategy was chosen up front
type Prompter interface {
	PromptMergeStrategy() (merge.Strategy, error)
}

// Engine orchestrates a checkout.  Components are applied strictly one
// after another: a component may be another's dependency and the shared
// on-disk layout means each apply must see the previous one's final state.
type Engine struct {
	WS       *workspace.Workspace
	Repo     *store.Repo
	Importer Importer
	Writer   Writer
	Prompt   Prompter
	Log      *zap.Logger
}

// NewEngine wires a checkout engine
func NewEngine(ws *workspace.Workspace, repo *store.Repo, imp Importer, writer Writer, prompt Prompter, log *zap.Logger) *Engine {
	return &Engine{WS: ws, Repo: repo, Importer: imp, Writer: writer, Prompt: prompt, Log: log}
}

// Run executes the checkout pipeline
func (e *Engine) Run(props *Props) (*Results, error) {
	if err := props.Validate(); err != nil {
		return nil, err
	}

	if err := e.WS.Bitmap.Lock(); err != nil {
		return nil, err
	}
	defer e.WS.Bitmap.Unlock()

	e.Importer.InvalidateCache()

	lane, err := e.activeLane()
	if err != nil {
		return nil, err
	}

	ids := e.resolveIDs(props, lane)

	if props.Target == TargetHead {
		e.syncNewComponents(ids)
	}

	statuses := make([]*componentStatus, 0, len(ids))
	for _, id := range ids {
		statuses = append(statuses, e.resolveTarget(id, props, lane))
	}

	// bulk import every referenced version not present locally, without
	// dependencies; per component failures surface in finishStatus
	var missing []ref.Ref
	for _, st := range statuses {
		if st.failure == nil && !st.targetRef.IsEmpty() && !e.Repo.Objects.Has(st.targetRef) {
			missing = append(missing, st.targetRef)
		}
	}
	if len(missing) > 0 {
		if err := e.Importer.ImportRefs(missing, store.ImportOptions{Cache: true}); err != nil {
			e.Log.Debug("bulk import of target versions failed", zap.Error(err))
		}
	}

	for _, st := range statuses {
		e.finishStatus(st, props)
	}

	results := &Results{}

	strategy, err := e.mergeNeeded(statuses, props, results)
	if err != nil {
		return nil, err
	}

	// apply, strictly in order
	var toWrite []workspace.WriteComponent
	for _, st := range statuses {
		if st.failure != nil {
			// removals are reported as legitimate failures too
			results.Failed = append(results.Failed, *st.failure)
			continue
		}
		comp, err := e.buildWrite(st)
		if err != nil {
			results.Failed = append(results.Failed, ComponentFailure{ID: st.id, Reason: err.Error()})
			continue
		}
		toWrite = append(toWrite, comp)
		results.Applied = append(results.Applied, st.id.WithVersion(st.targetLabel))
	}

	e.mergeWorkspacePolicy(statuses, results)

	// components that live on the active lane but were not part of the
	// request join the workspace now
	if props.Target == TargetHead && lane != nil {
		newFromLane, err := e.newFromLane(lane, ids, props)
		if err != nil {
			return nil, err
		}
		results.NewFromLane = newFromLane.ids
		results.NewFromLaneAdded = newFromLane.added
		toWrite = append(toWrite, newFromLane.writes...)
	}

	writeResults, err := e.Writer.WriteMany(workspace.WriteRequest{
		Components:                 toWrite,
		SkipFilesWrite:             props.SkipFilesWrite,
		SkipDependencyInstallation: props.SkipDepInstall || (results.LeftUnresolvedConflicts && strategy == merge.StrategyManual),
		Verbose:                    props.Verbose,
	})
	if err != nil {
		return nil, err
	}
	results.InstallationError = writeResults.InstallationError
	results.CompilationError = writeResults.CompilationError

	if results.NewFromLaneAdded {
		for _, id := range results.NewFromLane {
			if entry, ok := e.WS.Bitmap.Entry(id); ok {
				entry.OnLanesOnly = true
			}
		}
		if err := e.WS.Bitmap.Save(); err != nil {
			return nil, err
		}
	}

	// deletions come last so a removed component's files never linger
	var toRemove []ref.ComponentID
	for _, st := range statuses {
		if st.shouldBeRemoved {
			toRemove = append(toRemove, st.id)
		}
	}
	if len(toRemove) > 0 {
		if err := e.Writer.RemoveLocally(toRemove, true); err != nil {
			return nil, err
		}
		results.Removed = toRemove
	}

	return results, nil
}

// activeLane loads the lane the workspace is on, if any
func (e *Engine) activeLane() (*model.Lane, error) {
	laneID := e.WS.CurrentLane()
	if laneID == "" {
		return nil, nil
	}
	scope, name := splitLaneID(laneID)
	lane, err := e.Repo.Lane(scope, name)
	if err != nil {
		return nil, err
	}
	if lane == nil {
		return nil, errors.Errorf("the workspace is on lane '%s' which no longer exists", laneID)
	}
	return lane, nil
}

func splitLaneID(laneID string) (string, string) {
	if i := strings.Index(laneID, "/"); i != -1 {
		return laneID[:i], laneID[i+1:]
	}
	return "", laneID
}

// resolveIDs decides which components this checkout touches.  With explicit
// ids those are taken as given; otherwise every tracked component.  An
// active lane filters the set down to its own components.
func (e *Engine) resolveIDs(props *Props, lane *model.Lane) []ref.ComponentID {
	var ids []ref.ComponentID
	if len(props.IDs) > 0 {
		ids = props.IDs
	} else {
		for _, entry := range e.WS.Bitmap.All() {
			ids = append(ids, entry.ID)
		}
	}
	if lane == nil {
		return ids
	}
	var filtered []ref.ComponentID
	for _, id := range ids {
		if _, ok := lane.HeadFor(id); ok {
			filtered = append(filtered, id)
		}
	}
	return filtered
}

// syncNewComponents tries to import components that have no version yet
// from their target scope, at latest.  They may be genuinely new and
// unknown remotely, so failures are retried once, then logged and
// swallowed.
func (e *Engine) syncNewComponents(ids []ref.ComponentID) {
	var newIDs []ref.ComponentID
	for _, id := range ids {
		entry, tracked := e.WS.Bitmap.Entry(id)
		if tracked && entry.Version == "" && id.HasScope() {
			newIDs = append(newIDs, id)
		}
	}
	if len(newIDs) == 0 {
		return
	}
	opts := store.ImportOptions{Cache: true, Latest: true}
	if err := e.Importer.ImportManyIfMissing(newIDs, opts); err != nil {
		if err = e.Importer.ImportManyIfMissing(newIDs, opts); err != nil {
			e.Log.Debug("syncing possibly-new components failed", zap.Error(err))
		}
	}
}

// mergeNeeded runs the three way merge for every component classified as
// needing one, resolving the strategy first.  When conflicts surface with
// no strategy and prompting disabled, the whole operation fails naming one
// offending component.
func (e *Engine) mergeNeeded(statuses []*componentStatus, props *Props, results *Results) (merge.Strategy, error) {
	var pending []*componentStatus
	for _, st := range statuses {
		if st.failure == nil && st.needsMerge {
			pending = append(pending, st)
		}
	}
	if len(pending) == 0 {
		return props.MergeStrategy, nil
	}

	_, release, err := e.WS.Tmp()
	if err != nil {
		return props.MergeStrategy, err
	}
	defer release()

	strategy := props.MergeStrategy
	runAll := func(s merge.Strategy) error {
		for _, st := range pending {
			merged, err := e.mergeComponent(st, s)
			if err != nil {
				return err
			}
			st.merged = merged
		}
		return nil
	}
	if err := runAll(strategy); err != nil {
		return strategy, err
	}

	anyConflict := false
	for _, st := range pending {
		if st.merged.HasConflicts {
			anyConflict = true
			break
		}
	}
	if anyConflict && strategy == merge.StrategyNone {
		if !props.PromptMergeOptions {
			for _, st := range pending {
				if st.merged.HasConflicts {
					return strategy, errors.Errorf(
						"checkout of %s resulted in merge conflicts, use --manual, --ours or --theirs",
						st.id.FullName())
				}
			}
		}
		chosen, err := e.Prompt.PromptMergeStrategy()
		if err != nil {
			return strategy, err
		}
		strategy = chosen
		if strategy != merge.StrategyManual {
			if err := runAll(strategy); err != nil {
				return strategy, err
			}
		}
	}

	for _, st := range pending {
		if st.merged.HasConflicts {
			results.LeftUnresolvedConflicts = true
		}
	}
	return strategy, nil
}

// mergeComponent builds the per file triples and merges them.  The
// currently tracked version serves as the base and the target as the other
// side: the diff the user made on top of the tracked version is re-applied
// on top of the target, the way a stash, switch, pop sequence would behave.
// Files the user never touched adopt the target's content outright.
func (e *Engine) mergeComponent(st *componentStatus, strategy merge.Strategy) (*merge.ComponentMergeResult, error) {
	otherTree, err := e.treeOf(st.targetRef)
	if err != nil {
		return nil, err
	}
	baseTree := otherTree
	if !st.currentRef.IsEmpty() && e.Repo.Objects.Has(st.currentRef) {
		baseTree, err = e.treeOf(st.currentRef)
		if err != nil {
			return nil, err
		}
	}

	paths := map[string]bool{}
	for _, f := range baseTree.Files {
		paths[f.RelativePath] = true
	}
	for _, f := range otherTree.Files {
		paths[f.RelativePath] = true
	}
	onDisk, err := e.WS.ComponentFilePaths(st.id)
	if err != nil {
		return nil, err
	}
	for _, p := range onDisk {
		paths[p] = true
	}

	sorted := make([]string, 0, len(paths))
	for path := range paths {
		sorted = append(sorted, path)
	}
	sort.Strings(sorted)

	var triples []merge.FileTriple
	for _, path := range sorted {
		t := merge.FileTriple{Path: path}
		if entry, ok := baseTree.Lookup(path); ok {
			contents, err := e.Repo.Source(entry.Blob)
			if err != nil {
				return nil, err
			}
			t.Base, t.BaseExists = contents, true
		}
		if entry, ok := otherTree.Lookup(path); ok {
			contents, err := e.Repo.Source(entry.Blob)
			if err != nil {
				return nil, err
			}
			t.Other, t.OtherExists = contents, true
		}
		if data, ok, err := e.WS.ReadComponentFile(st.id, path); err != nil {
			return nil, err
		} else if ok {
			t.Current, t.CurrentExists = data, true
		}
		triples = append(triples, t)
	}
	return merge.MergeFiles(st.id, triples, strategy)
}

func (e *Engine) treeOf(r ref.Ref) (*model.FileTree, error) {
	v, err := e.Repo.Version(r)
	if err != nil {
		return nil, err
	}
	return e.Repo.FileTree(v.Files)
}

// buildWrite produces the file set a component lands with
func (e *Engine) buildWrite(st *componentStatus) (workspace.WriteComponent, error) {
	comp := workspace.WriteComponent{ID: st.id, Version: st.targetLabel}
	if st.merged != nil {
		comp.Files = st.merged.Files
		comp.DuringMerge = st.merged.HasConflicts
		return comp, nil
	}
	files, err := e.filesOfVersion(st.targetRef)
	if err != nil {
		return comp, err
	}
	comp.Files = files
	return comp, nil
}

func (e *Engine) filesOfVersion(r ref.Ref) ([]merge.FileStatus, error) {
	v, err := e.Repo.Version(r)
	if err != nil {
		return nil, err
	}
	tree, err := e.Repo.FileTree(v.Files)
	if err != nil {
		return nil, err
	}
	var files []merge.FileStatus
	for _, f := range tree.Files {
		contents, err := e.Repo.Source(f.Blob)
		if err != nil {
			return nil, err
		}
		files = append(files, merge.FileStatus{Path: f.RelativePath, Contents: contents})
	}
	return files, nil
}

type newFromLaneResult struct {
	ids    []ref.ComponentID
	added  bool
	writes []workspace.WriteComponent
}

// newFromLane adds lane components that were not part of the request.
// Under WorkspaceOnly they are only reported, never hydrated, and the added
// flag stays false.
func (e *Engine) newFromLane(lane *model.Lane, requested []ref.ComponentID, props *Props) (*newFromLaneResult, error) {
	inRequest := map[string]bool{}
	for _, id := range requested {
		inRequest[id.FullName()] = true
	}
	result := &newFromLaneResult{}
	for _, c := range lane.Components {
		if inRequest[c.ID.FullName()] {
			continue
		}
		if _, tracked := e.WS.Bitmap.Entry(c.ID); tracked {
			continue
		}
		result.ids = append(result.ids, c.ID.WithoutVersion())
		if props.WorkspaceOnly {
			continue
		}
		if err := e.Importer.ImportRefs([]ref.Ref{c.Head}, store.ImportOptions{Cache: true}); err != nil {
			return nil, errors.Wrapf(err, "hydrating %s from lane %s", c.ID.FullName(), lane.LaneID())
		}
		files, err := e.filesOfVersion(c.Head)
		if err != nil {
			return nil, errors.Wrapf(err, "hydrating %s from lane %s", c.ID.FullName(), lane.LaneID())
		}
		result.writes = append(result.writes, workspace.WriteComponent{
			ID:      c.ID.WithoutVersion(),
			Version: c.Head.String(),
			Files:   files,
		})
		result.added = true
	}
	return result, nil
}

// TargetDescription renders a one line summary of the target for messages
func (p *Props) TargetDescription() string {
	if p.Target == TargetVersion {
		return fmt.Sprintf("version %s", p.Version)
	}
	return string(p.Target)
}
