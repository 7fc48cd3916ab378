package checkout

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	chk "gopkg.in/check.v1"

	"github.com/snapline/snapline/logger"
	"github.com/snapline/snapline/merge"
	"github.com/snapline/snapline/model"
	"github.com/snapline/snapline/ref"
	"github.com/snapline/snapline/store"
	"github.com/snapline/snapline/workspace"
)

func Test(t *testing.T) {
	chk.TestingT(t)
}

type CheckoutSuite struct {
	dir    string
	ws     *workspace.Workspace
	repo   *store.Repo
	engine *Engine

	button ref.ComponentID
	v1, v2 ref.Ref
}

var _ = chk.Suite(&CheckoutSuite{})

// nopImporter satisfies the Importer capability without a hub
type nopImporter struct{}

func (nopImporter) ImportManyIfMissing([]ref.ComponentID, store.ImportOptions) error { return nil }
func (nopImporter) ImportRefs([]ref.Ref, store.ImportOptions) error                  { return nil }
func (nopImporter) InvalidateCache()                                                 {}

// manualPrompter always picks the manual strategy
type manualPrompter struct{}

func (manualPrompter) PromptMergeStrategy() (merge.Strategy, error) {
	return merge.StrategyManual, nil
}

func (s *CheckoutSuite) SetUpTest(c *chk.C) {
	s.dir = c.MkDir()
	ws, err := workspace.Init(s.dir, "acme")
	c.Assert(err, chk.IsNil)
	s.ws = ws
	repo, err := store.OpenRepo(ws.MetaPath())
	c.Assert(err, chk.IsNil)
	s.repo = repo

	log := logger.Nop()
	writer := workspace.NewWriter(ws, workspace.NoInstaller{}, log)
	s.engine = NewEngine(ws, repo, nopImporter{}, writer, manualPrompter{}, log)

	// button has two tagged versions differing in index.ts
	s.button = ref.ComponentID{Scope: "acme", Name: "button"}
	s.v1 = s.putVersion(c, "button", map[string]string{
		"index.ts":   "export const size = 1\n",
		"styles.css": "body {}\n",
	}, nil, nil)
	s.v2 = s.putVersion(c, "button", map[string]string{
		"index.ts":   "export const size = 2\n",
		"styles.css": "body {}\n",
	}, []ref.Ref{s.v1}, nil)
	m := &model.ModelComponent{Scope: "acme", Name: "button", Head: s.v2}
	c.Assert(m.AddTag("1.0.0", s.v1), chk.IsNil)
	c.Assert(m.AddTag("1.0.1", s.v2), chk.IsNil)
	c.Assert(s.repo.SaveModelComponent(m), chk.IsNil)
}

// putVersion stores sources, a file tree and a version record
func (s *CheckoutSuite) putVersion(c *chk.C, name string, files map[string]string, parents []ref.Ref, mutate func(*model.Version)) ref.Ref {
	tree := &model.FileTree{}
	for path, contents := range files {
		blob, err := s.repo.Objects.Put(&model.Source{Contents: []byte(contents)})
		c.Assert(err, chk.IsNil)
		tree.Files = append(tree.Files, model.FileEntry{RelativePath: path, Blob: blob})
	}
	tree.Sort()
	treeRef, err := s.repo.Objects.Put(tree)
	c.Assert(err, chk.IsNil)
	v := &model.Version{
		Parents: parents,
		Files:   treeRef,
		Log:     model.LogInfo{Date: time.Date(2023, time.May, 4, 12, 0, 0, 0, time.UTC)},
	}
	if mutate != nil {
		mutate(v)
	}
	h, err := s.repo.PutVersion("acme", name, v)
	c.Assert(err, chk.IsNil)
	return h
}

// checkoutTo seeds the working copy and bitmap at the given version
func (s *CheckoutSuite) checkoutTo(c *chk.C, id ref.ComponentID, version string, r ref.Ref) {
	v, err := s.repo.Version(r)
	c.Assert(err, chk.IsNil)
	tree, err := s.repo.FileTree(v.Files)
	c.Assert(err, chk.IsNil)
	var paths []string
	for _, f := range tree.Files {
		contents, err := s.repo.Source(f.Blob)
		c.Assert(err, chk.IsNil)
		path := filepath.Join(s.ws.ComponentDir(id), f.RelativePath)
		c.Assert(os.MkdirAll(filepath.Dir(path), 0755), chk.IsNil)
		c.Assert(os.WriteFile(path, contents, 0644), chk.IsNil)
		paths = append(paths, f.RelativePath)
	}
	s.ws.Bitmap.SetComponent(id, version, paths)
	c.Assert(s.ws.Bitmap.Save(), chk.IsNil)
}

func (s *CheckoutSuite) readFile(c *chk.C, id ref.ComponentID, rel string) string {
	data, err := os.ReadFile(filepath.Join(s.ws.ComponentDir(id), rel))
	c.Assert(err, chk.IsNil)
	return string(data)
}

func (s *CheckoutSuite) writeFile(c *chk.C, id ref.ComponentID, rel, contents string) {
	path := filepath.Join(s.ws.ComponentDir(id), rel)
	c.Assert(os.MkdirAll(filepath.Dir(path), 0755), chk.IsNil)
	c.Assert(os.WriteFile(path, []byte(contents), 0644), chk.IsNil)
}

func (s *CheckoutSuite) bitmapVersion(c *chk.C, id ref.ComponentID) string {
	entry, ok := s.ws.Bitmap.Entry(id)
	c.Assert(ok, chk.Equals, true)
	return entry.Version
}

// Scenario: switch clean
func (s *CheckoutSuite) TestSwitchClean(c *chk.C) {
	s.checkoutTo(c, s.button, "1.0.0", s.v1)

	results, err := s.engine.Run(&Props{Target: TargetVersion, Version: "1.0.1"})
	c.Assert(err, chk.IsNil)
	c.Check(results.Failed, chk.HasLen, 0)
	c.Check(results.Applied, chk.HasLen, 1)
	c.Check(results.LeftUnresolvedConflicts, chk.Equals, false)
	c.Check(s.readFile(c, s.button, "index.ts"), chk.Equals, "export const size = 2\n")
	c.Check(s.bitmapVersion(c, s.button), chk.Equals, "1.0.1")
}

// Scenario: switch with stash semantics, the local edit survives
func (s *CheckoutSuite) TestSwitchWithModifications(c *chk.C) {
	s.checkoutTo(c, s.button, "1.0.1", s.v2)
	s.writeFile(c, s.button, "styles.css", "body { color: red }\n")

	results, err := s.engine.Run(&Props{Target: TargetVersion, Version: "1.0.0"})
	c.Assert(err, chk.IsNil)
	c.Check(results.Failed, chk.HasLen, 0)
	c.Check(results.LeftUnresolvedConflicts, chk.Equals, false)
	c.Check(s.readFile(c, s.button, "styles.css"), chk.Equals, "body { color: red }\n")
	// the untouched file lands on the target's content, not the old version's
	c.Check(s.readFile(c, s.button, "index.ts"), chk.Equals, "export const size = 1\n")
	c.Check(s.bitmapVersion(c, s.button), chk.Equals, "1.0.0")
}

// Scenario: reset a modified component
func (s *CheckoutSuite) TestResetModified(c *chk.C) {
	s.checkoutTo(c, s.button, "1.0.0", s.v1)
	s.writeFile(c, s.button, "index.ts", "export const size = 99\n")

	results, err := s.engine.Run(&Props{Target: TargetReset})
	c.Assert(err, chk.IsNil)
	c.Check(results.Failed, chk.HasLen, 0)
	c.Check(results.Applied, chk.HasLen, 1)
	c.Check(s.readFile(c, s.button, "index.ts"), chk.Equals, "export const size = 1\n")
	c.Check(s.bitmapVersion(c, s.button), chk.Equals, "1.0.0")
}

// Scenario: reset on an unmodified component is a legitimate no-op
func (s *CheckoutSuite) TestResetUnmodified(c *chk.C) {
	s.checkoutTo(c, s.button, "1.0.0", s.v1)

	results, err := s.engine.Run(&Props{Target: TargetReset})
	c.Assert(err, chk.IsNil)
	c.Check(results.Applied, chk.HasLen, 0)
	c.Assert(results.Failed, chk.HasLen, 1)
	c.Check(results.Failed[0].Reason, chk.Equals, "not modified")
	c.Check(results.Failed[0].UnchangedLegitimately, chk.Equals, true)
	c.Check(results.HardFailures(), chk.HasLen, 0)
}

// Scenario: the target version does not exist
func (s *CheckoutSuite) TestTargetMissingVersion(c *chk.C) {
	s.checkoutTo(c, s.button, "1.0.0", s.v1)

	results, err := s.engine.Run(&Props{Target: TargetVersion, Version: "9.9.9"})
	c.Assert(err, chk.IsNil)
	c.Assert(results.Failed, chk.HasLen, 1)
	c.Check(results.Failed[0].Reason, chk.Equals, "doesn't have version 9.9.9")
	c.Check(results.Failed[0].UnchangedLegitimately, chk.Equals, false)
	c.Check(results.HardFailures(), chk.HasLen, 1)
	c.Check(s.bitmapVersion(c, s.button), chk.Equals, "1.0.0")
}

// Scenario: already at the requested version
func (s *CheckoutSuite) TestAlreadyAtVersion(c *chk.C) {
	s.checkoutTo(c, s.button, "1.0.0", s.v1)

	results, err := s.engine.Run(&Props{Target: TargetVersion, Version: "1.0.0"})
	c.Assert(err, chk.IsNil)
	c.Assert(results.Failed, chk.HasLen, 1)
	c.Check(results.Failed[0].Reason, chk.Equals, "already at version 1.0.0")
	c.Check(results.Failed[0].UnchangedLegitimately, chk.Equals, true)
}

// After checkout head, the bitmap version equals the component head
func (s *CheckoutSuite) TestCheckoutHeadMonotonicity(c *chk.C) {
	s.checkoutTo(c, s.button, "1.0.0", s.v1)

	results, err := s.engine.Run(&Props{Target: TargetHead})
	c.Assert(err, chk.IsNil)
	c.Check(results.Failed, chk.HasLen, 0)
	c.Check(s.bitmapVersion(c, s.button), chk.Equals, s.v2.String())
}

// Scenario: head with an active lane pulls lane components in
func (s *CheckoutSuite) TestHeadWithLane(c *chk.C) {
	s.checkoutTo(c, s.button, "1.0.0", s.v1)

	cardHead := s.putVersion(c, "card", map[string]string{
		"card.ts": "export class Card {}\n",
	}, nil, nil)
	cardModel := &model.ModelComponent{Scope: "acme", Name: "card", Head: cardHead}
	c.Assert(s.repo.SaveModelComponent(cardModel), chk.IsNil)

	lane, err := model.CreateLane("feature-x", "acme", "", model.UserInfo{Username: "someone"})
	c.Assert(err, chk.IsNil)
	lane.AddComponent(model.LaneComponent{ID: s.button, Head: s.v2})
	lane.AddComponent(model.LaneComponent{ID: ref.ComponentID{Scope: "acme", Name: "card"}, Head: cardHead})
	c.Assert(s.repo.SaveLane(lane), chk.IsNil)
	c.Assert(s.ws.SetCurrentLane(lane.LaneID()), chk.IsNil)

	results, err := s.engine.Run(&Props{Target: TargetHead})
	c.Assert(err, chk.IsNil)
	c.Check(results.Failed, chk.HasLen, 0)
	c.Check(results.NewFromLaneAdded, chk.Equals, true)
	c.Assert(results.NewFromLane, chk.HasLen, 1)
	c.Check(results.NewFromLane[0].FullName(), chk.Equals, "acme/card")

	// button moved to the lane head, card joined from the lane
	c.Check(s.bitmapVersion(c, s.button), chk.Equals, s.v2.String())
	card := ref.ComponentID{Scope: "acme", Name: "card"}
	c.Check(s.bitmapVersion(c, card), chk.Equals, cardHead.String())
	c.Check(s.readFile(c, card, "card.ts"), chk.Equals, "export class Card {}\n")
	entry, _ := s.ws.Bitmap.Entry(card)
	c.Check(entry.OnLanesOnly, chk.Equals, true)
}

// WorkspaceOnly reports lane components without hydrating them
func (s *CheckoutSuite) TestHeadWithLaneWorkspaceOnly(c *chk.C) {
	s.checkoutTo(c, s.button, "1.0.0", s.v1)

	cardHead := s.putVersion(c, "card", map[string]string{"card.ts": "x\n"}, nil, nil)
	lane, err := model.CreateLane("feature-x", "acme", "", model.UserInfo{})
	c.Assert(err, chk.IsNil)
	lane.AddComponent(model.LaneComponent{ID: s.button, Head: s.v2})
	lane.AddComponent(model.LaneComponent{ID: ref.ComponentID{Scope: "acme", Name: "card"}, Head: cardHead})
	c.Assert(s.repo.SaveLane(lane), chk.IsNil)
	c.Assert(s.ws.SetCurrentLane(lane.LaneID()), chk.IsNil)

	results, err := s.engine.Run(&Props{Target: TargetHead, WorkspaceOnly: true})
	c.Assert(err, chk.IsNil)
	c.Check(results.NewFromLane, chk.HasLen, 1)
	c.Check(results.NewFromLaneAdded, chk.Equals, false)
	_, tracked := s.ws.Bitmap.Entry(ref.ComponentID{Scope: "acme", Name: "card"})
	c.Check(tracked, chk.Equals, false)
}

// Scenario: the target version marks the component removed
func (s *CheckoutSuite) TestRemovedComponent(c *chk.C) {
	s.checkoutTo(c, s.button, "1.0.0", s.v1)
	v3 := s.putVersion(c, "button", map[string]string{}, []ref.Ref{s.v2}, func(v *model.Version) {
		v.Removed = true
	})
	m, err := s.repo.ModelComponent("acme", "button")
	c.Assert(err, chk.IsNil)
	c.Assert(m.AddTag("1.0.2", v3), chk.IsNil)
	c.Assert(s.repo.SaveModelComponent(m), chk.IsNil)

	results, err := s.engine.Run(&Props{Target: TargetVersion, Version: "1.0.2"})
	c.Assert(err, chk.IsNil)
	c.Assert(results.Removed, chk.HasLen, 1)
	c.Assert(results.Failed, chk.HasLen, 1)
	c.Check(results.Failed[0].Reason, chk.Equals, "component has been removed")
	c.Check(results.Failed[0].UnchangedLegitimately, chk.Equals, true)

	_, tracked := s.ws.Bitmap.Entry(s.button)
	c.Check(tracked, chk.Equals, false)
	_, err = os.Stat(s.ws.ComponentDir(s.button))
	c.Check(os.IsNotExist(err), chk.Equals, true)
}

// Conflicting modifications with no strategy abort the whole operation
func (s *CheckoutSuite) TestConflictWithoutStrategyAborts(c *chk.C) {
	s.checkoutTo(c, s.button, "1.0.1", s.v2)
	s.writeFile(c, s.button, "index.ts", "export const size = 3\n")

	_, err := s.engine.Run(&Props{Target: TargetVersion, Version: "1.0.0"})
	c.Assert(err, chk.NotNil)
	c.Check(err.Error(), chk.Matches, ".*acme/button.*")
	// nothing moved
	c.Check(s.bitmapVersion(c, s.button), chk.Equals, "1.0.1")
}

// The theirs strategy resolves the conflict by adopting the model side
func (s *CheckoutSuite) TestConflictWithTheirs(c *chk.C) {
	s.checkoutTo(c, s.button, "1.0.1", s.v2)
	s.writeFile(c, s.button, "index.ts", "export const size = 3\n")

	results, err := s.engine.Run(&Props{
		Target: TargetVersion, Version: "1.0.0", MergeStrategy: merge.StrategyTheirs})
	c.Assert(err, chk.IsNil)
	c.Check(results.Failed, chk.HasLen, 0)
	c.Check(results.LeftUnresolvedConflicts, chk.Equals, false)
	// theirs is the incoming target version
	c.Check(s.readFile(c, s.button, "index.ts"), chk.Equals, "export const size = 1\n")
	c.Check(s.bitmapVersion(c, s.button), chk.Equals, "1.0.0")
}

// The manual strategy leaves markers and flags the during-merge state
func (s *CheckoutSuite) TestConflictWithManual(c *chk.C) {
	s.checkoutTo(c, s.button, "1.0.1", s.v2)
	s.writeFile(c, s.button, "index.ts", "export const size = 3\n")

	results, err := s.engine.Run(&Props{
		Target: TargetVersion, Version: "1.0.0", MergeStrategy: merge.StrategyManual})
	c.Assert(err, chk.IsNil)
	c.Check(results.LeftUnresolvedConflicts, chk.Equals, true)
	entry, _ := s.ws.Bitmap.Entry(s.button)
	c.Check(entry.DuringMerge, chk.Equals, true)

	// a second checkout refuses to touch the half merged component
	results, err = s.engine.Run(&Props{Target: TargetVersion, Version: "1.0.1"})
	c.Assert(err, chk.IsNil)
	c.Assert(results.Failed, chk.HasLen, 1)
	c.Check(results.Failed[0].Reason, chk.Matches, "in during-merge state.*")
	c.Check(results.Failed[0].UnchangedLegitimately, chk.Equals, false)
}

// Impossible argument combinations never start the pipeline
func (s *CheckoutSuite) TestValidation(c *chk.C) {
	bad := []*Props{
		{Target: TargetVersion},
		{Target: TargetHead, Version: "1.0.0"},
		{Target: "sideways"},
		{Target: TargetVersion, Version: "1.0.0", WorkspaceOnly: true},
		{Target: TargetHead, All: true, IDs: []ref.ComponentID{s.button}},
	}
	for _, props := range bad {
		_, err := s.engine.Run(props)
		c.Check(err, chk.NotNil)
	}
}

// VersionPerID overrides the target for the ids it names
func (s *CheckoutSuite) TestVersionPerID(c *chk.C) {
	s.checkoutTo(c, s.button, "1.0.1", s.v2)

	results, err := s.engine.Run(&Props{
		Target:       TargetHead,
		VersionPerID: map[string]string{"acme/button": "1.0.0"},
	})
	c.Assert(err, chk.IsNil)
	c.Check(results.Failed, chk.HasLen, 0)
	c.Check(s.bitmapVersion(c, s.button), chk.Equals, "1.0.0")
}
